package report

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/geepers/cascade/types"
)

func sampleReport() *types.Report {
	exec := types.AgentResult{AgentID: "camina", Status: types.ResultCompleted, Content: "everything checks out"}
	return &types.Report{
		Title: "Research: drive anomalies",
		Workers: []types.AgentResult{
			{AgentID: "belter_0", Status: types.ResultCompleted, Content: "finding one", TokensUsed: 50},
			{AgentID: "belter_1", Status: types.ResultFailed, Content: "provider unavailable"},
		},
		MidTier: []types.AgentResult{
			{AgentID: "drummer_0", Status: types.ResultCompleted, Content: "grouped summary"},
		},
		Executive: &exec,
		Metadata: types.ReportMetadata{
			AgentCount:    2,
			TotalTokens:   50,
			Elapsed:       1500 * time.Millisecond,
			EstimatedCost: 0.0008,
		},
	}
}

func TestParseFormat(t *testing.T) {
	f, err := ParseFormat("")
	require.NoError(t, err)
	assert.Equal(t, FormatMarkdown, f)

	for _, s := range []string{"markdown", "text", "json"} {
		_, err := ParseFormat(s)
		assert.NoError(t, err, s)
	}

	_, err = ParseFormat("yaml")
	require.Error(t, err)
	assert.True(t, types.IsCode(err, types.ErrInvalidConfig))
}

func TestRender_Markdown(t *testing.T) {
	out, err := Render(sampleReport(), FormatMarkdown)
	require.NoError(t, err)

	assert.Contains(t, out, "# Research: drive anomalies")
	assert.Contains(t, out, "## Executive Summary")
	assert.Contains(t, out, "everything checks out")
	assert.Contains(t, out, "### drummer_0")
	assert.Contains(t, out, "### belter_1 (failed)")
	assert.Contains(t, out, "- **Agents**: 2")
	assert.Contains(t, out, "- **Execution Time**: 1.5s")
	assert.Contains(t, out, "- **Estimated Cost**: $0.0008")
}

func TestRender_Text(t *testing.T) {
	out, err := Render(sampleReport(), FormatText)
	require.NoError(t, err)

	assert.Contains(t, out, "Task: Research: drive anomalies")
	assert.Contains(t, out, "everything checks out")
	assert.Contains(t, out, "Cost: $0.0008")
}

func TestRender_TextWithoutExecutive(t *testing.T) {
	r := sampleReport()
	r.Executive = nil

	out, err := Render(r, FormatText)
	require.NoError(t, err)
	assert.Contains(t, out, "N/A")
}

func TestRender_JSON(t *testing.T) {
	out, err := Render(sampleReport(), FormatJSON)
	require.NoError(t, err)

	var decoded types.Report
	require.NoError(t, json.Unmarshal([]byte(out), &decoded))
	assert.Equal(t, "Research: drive anomalies", decoded.Title)
	assert.Len(t, decoded.Workers, 2)
}
