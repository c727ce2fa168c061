package pipeline

import (
	"encoding/json"
	"fmt"
	"strings"
)

const stockPrompt = `You are a senior equity research analyst covering GMR Group.
Using the reference documents available through file search, produce a stock
analysis report. Use the code interpreter to compute indicators and render a
price/volume dashboard chart.

Respond with a single JSON object containing at least: "ticker",
"current_price", "risk_score" (0-100), "trend", "recommendation"
(buy/hold/sell) and "summary". Do not wrap the JSON in commentary.`

const fundamentalsPrompt = `You are a fundamentals analyst reviewing GMR Group's
financial statements. Using the reference documents available through file
search, assess revenue growth, margins, leverage and cash generation. Use the
code interpreter to render a fundamentals dashboard chart.

Respond with a single JSON object containing at least: "company",
"overall_score" (0-100), "rating", "strengths", "weaknesses" and "summary".
Do not wrap the JSON in commentary.`

const compliancePromptTemplate = `You are a compliance officer reviewing a
proposed investment against the valuation policy available through file
search. The fundamentals analysis under review is:

%s

Check the proposal against each policy rule and use the code interpreter to
render a compliance summary chart.

Respond with a single JSON object with two top-level keys: "findings" (a list
of rule checks, each with "rule", "status" and "notes") and "recommendation"
(an object with "decision" (approve/reject/escalate) and "rationale"). Do not
wrap the JSON in commentary.`

const synthesisPromptTemplate = `You are an investment committee rapporteur.
Merge the following stage outputs into one final research note.

%s

Respond with a single JSON object containing "headline", "overall_view",
"key_risks", "recommendation" and "stage_summaries". Do not wrap the JSON in
commentary.`

// stagePrompt builds the prompt for a live stage run. inputs maps artifact
// names to their decoded payloads for stages that consume prior output.
func stagePrompt(stage Stage, inputs map[string]any) (string, error) {
	switch stage {
	case StageStock:
		return stockPrompt, nil
	case StageFundamentals:
		return fundamentalsPrompt, nil
	case StageCompliance:
		blob, err := json.MarshalIndent(inputs, "", "  ")
		if err != nil {
			return "", fmt.Errorf("encode compliance inputs: %w", err)
		}
		return fmt.Sprintf(compliancePromptTemplate, blob), nil
	case StageSynthesis:
		blob, err := json.MarshalIndent(inputs, "", "  ")
		if err != nil {
			return "", fmt.Errorf("encode synthesis inputs: %w", err)
		}
		return fmt.Sprintf(synthesisPromptTemplate, blob), nil
	}
	return "", fmt.Errorf("no prompt for stage %s", stage)
}

// parsePayload decodes the JSON object from an agent reply, tolerating
// markdown code fences around the JSON.
func parsePayload(text string) (map[string]any, error) {
	trimmed := strings.TrimSpace(text)
	if strings.HasPrefix(trimmed, "```") {
		trimmed = strings.TrimPrefix(trimmed, "```json")
		trimmed = strings.TrimPrefix(trimmed, "```")
		if idx := strings.LastIndex(trimmed, "```"); idx >= 0 {
			trimmed = trimmed[:idx]
		}
		trimmed = strings.TrimSpace(trimmed)
	}
	// Fall back to the outermost braces when the model added commentary.
	if !strings.HasPrefix(trimmed, "{") {
		start := strings.Index(trimmed, "{")
		end := strings.LastIndex(trimmed, "}")
		if start < 0 || end <= start {
			return nil, fmt.Errorf("no JSON object in agent reply")
		}
		trimmed = trimmed[start : end+1]
	}
	var payload map[string]any
	if err := json.Unmarshal([]byte(trimmed), &payload); err != nil {
		return nil, fmt.Errorf("decode agent reply: %w", err)
	}
	return payload, nil
}
