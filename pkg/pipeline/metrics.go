package pipeline

// stageMetricKeys lists the payload fields surfaced into progress event data
// for dashboard consumption.
var stageMetricKeys = map[Stage][]string{
	StageStock:        {"ticker", "current_price", "risk_score", "trend", "recommendation"},
	StageFundamentals: {"company", "overall_score", "rating"},
	StageCompliance:   {"recommendation"},
	StageSynthesis:    {"headline", "recommendation"},
}

// extractMetrics pulls the stage's known metric fields out of its payload.
// Returns nil when none are present so event data stays omitted.
func extractMetrics(stage Stage, payload map[string]any) map[string]any {
	keys := stageMetricKeys[stage]
	var metrics map[string]any
	for _, key := range keys {
		val, ok := payload[key]
		if !ok {
			continue
		}
		// Skip nested structures; event data carries scalars only.
		switch val.(type) {
		case string, float64, bool, int:
			if metrics == nil {
				metrics = make(map[string]any)
			}
			metrics[key] = val
		case map[string]any:
			// Compliance nests its recommendation; surface the decision.
			if decision, ok := val.(map[string]any)["decision"]; ok {
				if metrics == nil {
					metrics = make(map[string]any)
				}
				metrics[key] = decision
			}
		}
	}
	return metrics
}
