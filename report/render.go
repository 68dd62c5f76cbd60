// Package report renders completed session reports in the formats exposed
// by the CLI and the results endpoint: markdown, plain text and JSON.
package report

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/geepers/cascade/types"
)

// Format selects a rendering of a report.
type Format string

const (
	FormatMarkdown Format = "markdown"
	FormatText     Format = "text"
	FormatJSON     Format = "json"
)

// ParseFormat validates a format string; empty selects markdown.
func ParseFormat(s string) (Format, error) {
	switch Format(s) {
	case "":
		return FormatMarkdown, nil
	case FormatMarkdown, FormatText, FormatJSON:
		return Format(s), nil
	default:
		return "", types.NewErrorf(types.ErrInvalidConfig, "unknown report format: %q", s)
	}
}

// Render formats the report.
func Render(r *types.Report, format Format) (string, error) {
	switch format {
	case FormatJSON:
		data, err := json.MarshalIndent(r, "", "  ")
		if err != nil {
			return "", err
		}
		return string(data), nil
	case FormatText:
		return renderText(r), nil
	case FormatMarkdown, "":
		return renderMarkdown(r), nil
	default:
		return "", types.NewErrorf(types.ErrInvalidConfig, "unknown report format: %q", format)
	}
}

func renderText(r *types.Report) string {
	summary := "N/A"
	if r.Executive != nil {
		summary = r.Executive.Content
	}

	lines := []string{
		fmt.Sprintf("Task: %s", r.Title),
		"",
		"Executive Summary:",
		summary,
		"",
		fmt.Sprintf("Agents: %d", r.Metadata.AgentCount),
		fmt.Sprintf("Time: %.1fs", r.Metadata.Elapsed.Seconds()),
		fmt.Sprintf("Cost: $%.4f", r.Metadata.EstimatedCost),
	}
	return strings.Join(lines, "\n")
}

func renderMarkdown(r *types.Report) string {
	var b strings.Builder

	fmt.Fprintf(&b, "# %s\n\n", r.Title)

	if r.Executive != nil {
		b.WriteString("## Executive Summary\n\n")
		b.WriteString(r.Executive.Content)
		b.WriteString("\n\n")
	}

	if len(r.MidTier) > 0 {
		b.WriteString("## Synthesis Reports\n\n")
		for _, res := range r.MidTier {
			fmt.Fprintf(&b, "### %s\n\n%s\n\n", res.AgentID, res.Content)
		}
	}

	if len(r.Workers) > 0 {
		b.WriteString("## Worker Findings\n\n")
		for _, res := range r.Workers {
			fmt.Fprintf(&b, "### %s (%s)\n\n%s\n\n", res.AgentID, res.Status, res.Content)
		}
	}

	b.WriteString("## Metadata\n\n")
	fmt.Fprintf(&b, "- **Agents**: %d\n", r.Metadata.AgentCount)
	fmt.Fprintf(&b, "- **Total Tokens**: %d\n", r.Metadata.TotalTokens)
	fmt.Fprintf(&b, "- **Execution Time**: %.1fs\n", r.Metadata.Elapsed.Seconds())
	fmt.Fprintf(&b, "- **Estimated Cost**: $%.4f\n", r.Metadata.EstimatedCost)

	return b.String()
}
