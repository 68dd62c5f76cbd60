package executor

import (
	"sync"

	"github.com/pkoukk/tiktoken-go"
)

// TokenCounter counts tokens in a text string.
type TokenCounter interface {
	CountTokens(text string) int
}

// TiktokenCounter counts tokens with a tiktoken encoding. The encoding is
// initialized lazily (first use may download data); on init failure it falls
// back to character-based estimation.
type TiktokenCounter struct {
	encoding string
	enc      *tiktoken.Tiktoken
	once     sync.Once
	fallback EstimateCounter
}

// NewTiktokenCounter creates a counter for the given encoding.
// Empty encoding defaults to cl100k_base.
func NewTiktokenCounter(encoding string) *TiktokenCounter {
	if encoding == "" {
		encoding = "cl100k_base"
	}
	return &TiktokenCounter{encoding: encoding}
}

// CountTokens counts tokens in text.
func (c *TiktokenCounter) CountTokens(text string) int {
	c.once.Do(func() {
		enc, err := tiktoken.GetEncoding(c.encoding)
		if err == nil {
			c.enc = enc
		}
	})
	if c.enc == nil {
		return c.fallback.CountTokens(text)
	}
	return len(c.enc.Encode(text, nil, nil))
}

// EstimateCounter provides a simple character-based token estimation,
// roughly four characters per token.
type EstimateCounter struct{}

// CountTokens estimates tokens in text.
func (EstimateCounter) CountTokens(text string) int {
	if text == "" {
		return 0
	}
	tokens := len(text) / 4
	if tokens < 1 {
		return 1
	}
	return tokens
}
