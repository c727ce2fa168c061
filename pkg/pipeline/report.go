package pipeline

import (
	"fmt"
	"time"

	"github.com/investlabs/researchd/pkg/models"
)

// reportStage is one stage entry in the final orchestration report.
type reportStage struct {
	Status models.StageStatus `json:"status"`
	Detail string             `json:"detail,omitempty"`
}

// orchestrationReport is the final artifact written at the end of every run.
type orchestrationReport struct {
	SessionID     string                 `json:"session_id"`
	GeneratedAt   time.Time              `json:"generated_at"`
	UseCachedData bool                   `json:"use_cached_data"`
	OverallStatus models.PipelineResult  `json:"overall_status"`
	Stages        map[string]reportStage `json:"stages"`
	Synthesis     reportStage            `json:"synthesis"`
	FinalNote     map[string]any         `json:"final_note,omitempty"`
}

// reportFileName returns the timestamped final report name.
func reportFileName(now time.Time) string {
	return fmt.Sprintf("gmr_orchestration_%s.json", now.Format("20060102_150405"))
}

func buildReport(sess *models.AnalysisSession, results []StageResult, synth StageResult, overall models.PipelineResult, finalNote map[string]any, now time.Time) orchestrationReport {
	stages := make(map[string]reportStage, len(results))
	for _, r := range results {
		stages[r.Stage.String()] = reportStage{Status: r.Status, Detail: r.Detail}
	}
	return orchestrationReport{
		SessionID:     sess.ID,
		GeneratedAt:   now.UTC(),
		UseCachedData: sess.UseCachedData,
		OverallStatus: overall,
		Stages:        stages,
		Synthesis:     reportStage{Status: synth.Status, Detail: synth.Detail},
		FinalNote:     finalNote,
	}
}
