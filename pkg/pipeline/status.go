package pipeline

import "github.com/investlabs/researchd/pkg/models"

// Aggregate classifies a run from its three analysis stage results.
// Cached artifacts count the same as fresh ones: the data is there either way.
func Aggregate(results []StageResult) models.PipelineResult {
	satisfied := 0
	for _, r := range results {
		if r.satisfied() {
			satisfied++
		}
	}
	switch {
	case len(results) > 0 && satisfied == len(results):
		return models.ResultSuccess
	case satisfied > 0:
		return models.ResultPartialSuccess
	default:
		return models.ResultFailure
	}
}
