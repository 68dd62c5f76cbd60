package types

import (
	"encoding/json"
	"time"
)

// ResultStatus is the outcome of a single unit execution.
type ResultStatus string

const (
	// ResultCompleted indicates the unit produced content successfully.
	ResultCompleted ResultStatus = "completed"
	// ResultFailed indicates the unit's executor call failed or timed out.
	// The error message is recorded as the result content.
	ResultFailed ResultStatus = "failed"
)

// AgentResult is one worker's or synthesis agent's output. Immutable once
// produced; owned by the tier that produced it until folded into a Report.
type AgentResult struct {
	// AgentID is stable and derived from tier and index (belter_0, drummer_1, camina).
	AgentID string `json:"agent_id"`

	// Status is completed or failed.
	Status ResultStatus `json:"status"`

	// Content is the produced text, or the error message on failure.
	Content string `json:"content"`

	// TokensUsed is the non-negative token count for the unit.
	TokensUsed int `json:"tokens_used"`

	// Elapsed is the wall-clock duration of the unit execution.
	Elapsed time.Duration `json:"elapsed"`
}

// MarshalJSON renders Elapsed as a duration string.
func (r AgentResult) MarshalJSON() ([]byte, error) {
	type Alias AgentResult
	return json.Marshal(&struct {
		Alias
		Elapsed string `json:"elapsed"`
	}{
		Alias:   (Alias)(r),
		Elapsed: r.Elapsed.String(),
	})
}

// UnmarshalJSON parses Elapsed from a duration string.
func (r *AgentResult) UnmarshalJSON(data []byte) error {
	type Alias AgentResult
	aux := &struct {
		*Alias
		Elapsed string `json:"elapsed"`
	}{
		Alias: (*Alias)(r),
	}
	if err := json.Unmarshal(data, aux); err != nil {
		return err
	}
	if aux.Elapsed != "" {
		d, err := time.ParseDuration(aux.Elapsed)
		if err != nil {
			return err
		}
		r.Elapsed = d
	}
	return nil
}

// ReportMetadata aggregates execution statistics for a completed run.
type ReportMetadata struct {
	// AgentCount is the number of worker-tier units that executed.
	AgentCount int `json:"agent_count"`

	// TotalTokens is the token sum across every tier.
	TotalTokens int `json:"total_tokens"`

	// Elapsed is the total pipeline wall-clock time.
	Elapsed time.Duration `json:"elapsed"`

	// EstimatedCost is the estimated cost in USD.
	EstimatedCost float64 `json:"estimated_cost"`
}

// MarshalJSON renders Elapsed as a duration string.
func (m ReportMetadata) MarshalJSON() ([]byte, error) {
	type Alias ReportMetadata
	return json.Marshal(&struct {
		Alias
		Elapsed string `json:"elapsed"`
	}{
		Alias:   (Alias)(m),
		Elapsed: m.Elapsed.String(),
	})
}

// UnmarshalJSON parses Elapsed from a duration string.
func (m *ReportMetadata) UnmarshalJSON(data []byte) error {
	type Alias ReportMetadata
	aux := &struct {
		*Alias
		Elapsed string `json:"elapsed"`
	}{
		Alias: (*Alias)(m),
	}
	if err := json.Unmarshal(data, aux); err != nil {
		return err
	}
	if aux.Elapsed != "" {
		d, err := time.ParseDuration(aux.Elapsed)
		if err != nil {
			return err
		}
		m.Elapsed = d
	}
	return nil
}

// Report is the immutable final assembled output of a completed session.
//
// MidTier is empty when that stage is disabled; Executive is nil when the
// executive stage is disabled. A disabled stage is always a skipped call,
// never a stage that ran and returned nothing.
type Report struct {
	// Title is the report title.
	Title string `json:"title"`

	// Workers holds the worker-tier results, ordered by agent index.
	Workers []AgentResult `json:"workers"`

	// MidTier holds the mid-tier synthesis results, ordered by cluster index.
	MidTier []AgentResult `json:"mid_tier,omitempty"`

	// Executive is the single executive synthesis result, if enabled.
	Executive *AgentResult `json:"executive,omitempty"`

	// Metadata holds aggregate statistics.
	Metadata ReportMetadata `json:"metadata"`
}

// TotalTokens sums tokens across all tiers.
func TotalTokens(workers, midTier []AgentResult, executive *AgentResult) int {
	total := 0
	for _, r := range workers {
		total += r.TokensUsed
	}
	for _, r := range midTier {
		total += r.TokensUsed
	}
	if executive != nil {
		total += executive.TokensUsed
	}
	return total
}
