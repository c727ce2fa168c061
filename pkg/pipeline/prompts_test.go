package pipeline

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParsePayload(t *testing.T) {
	tests := []struct {
		name string
		text string
	}{
		{"bare object", `{"ticker": "GMR", "risk_score": 62}`},
		{"fenced json", "```json\n{\"ticker\": \"GMR\", \"risk_score\": 62}\n```"},
		{"bare fence", "```\n{\"ticker\": \"GMR\", \"risk_score\": 62}\n```"},
		{"leading commentary", "Here is the report:\n{\"ticker\": \"GMR\", \"risk_score\": 62}\nLet me know."},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			payload, err := parsePayload(tt.text)
			require.NoError(t, err)
			assert.Equal(t, "GMR", payload["ticker"])
			assert.Equal(t, float64(62), payload["risk_score"])
		})
	}
}

func TestParsePayloadRejectsNonJSON(t *testing.T) {
	_, err := parsePayload("I could not produce a report today.")
	assert.Error(t, err)

	_, err = parsePayload("{\"truncated\": ")
	assert.Error(t, err)
}

func TestStagePromptEmbedsInputs(t *testing.T) {
	prompt, err := stagePrompt(StageCompliance, map[string]any{
		"company_analysis_output.json": map[string]any{"overall_score": 71},
	})
	require.NoError(t, err)
	assert.Contains(t, prompt, "overall_score")
	assert.Contains(t, prompt, "valuation policy")
}
