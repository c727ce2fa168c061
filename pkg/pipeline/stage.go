// Package pipeline drives the three-stage research pipeline and the final
// synthesis step, publishing progress events along the way.
package pipeline

import (
	"github.com/investlabs/researchd/pkg/agent"
	"github.com/investlabs/researchd/pkg/artifact"
	"github.com/investlabs/researchd/pkg/models"
)

// Stage is one step of the research pipeline. The set is closed: adding a
// stage means extending this enum and its switch tables.
type Stage int

const (
	StageStock Stage = iota
	StageFundamentals
	StageCompliance
	StageSynthesis
)

// analysisStages are the three input-producing stages, in execution order.
var analysisStages = []Stage{StageStock, StageFundamentals, StageCompliance}

// String returns the stage's machine name used in reports and event data.
func (s Stage) String() string {
	switch s {
	case StageStock:
		return "stock_analysis"
	case StageFundamentals:
		return "fundamentals_analysis"
	case StageCompliance:
		return "compliance_review"
	case StageSynthesis:
		return "synthesis"
	}
	return "unknown"
}

// DisplayName returns the human-readable name used in progress messages.
func (s Stage) DisplayName() string {
	switch s {
	case StageStock:
		return "Stock Analysis"
	case StageFundamentals:
		return "Fundamentals Analysis"
	case StageCompliance:
		return "Compliance Review"
	case StageSynthesis:
		return "Synthesis"
	}
	return "Unknown"
}

// Role returns the agent role that executes the stage.
func (s Stage) Role() string {
	switch s {
	case StageStock:
		return agent.RoleStockAnalyst
	case StageFundamentals:
		return agent.RoleFundamentals
	case StageCompliance:
		return agent.RoleComplianceOfficer
	case StageSynthesis:
		return agent.RoleSynthesis
	}
	return ""
}

// Artifacts returns the artifact files the stage produces. Cached mode
// treats the stage as satisfied when all of them are present.
func (s Stage) Artifacts() []string {
	switch s {
	case StageStock:
		return []string{artifact.StockReport}
	case StageFundamentals:
		return []string{artifact.CompanyAnalysis}
	case StageCompliance:
		return []string{artifact.ComplianceFindings, artifact.ComplianceRecommendation}
	}
	return nil
}

// Inputs returns the artifacts the stage needs before it can run live.
// A missing input short-circuits the stage to the missing status.
func (s Stage) Inputs() []string {
	switch s {
	case StageCompliance:
		return []string{artifact.CompanyAnalysis}
	case StageSynthesis:
		// Synthesis consumes whatever inputs exist; checked separately.
		return nil
	}
	return nil
}

// Dashboard returns the canonical dashboard image filename for the stage.
func (s Stage) Dashboard() string {
	switch s {
	case StageStock:
		return "stock_dashboard.png"
	case StageFundamentals:
		return "analysis_dashboard.png"
	case StageCompliance:
		return "compliance_dashboard.png"
	}
	return ""
}

// imagePrefix is the filename prefix for extra generated images.
func (s Stage) imagePrefix() string {
	switch s {
	case StageStock:
		return "stock"
	case StageFundamentals:
		return "fundamentals"
	case StageCompliance:
		return "compliance"
	case StageSynthesis:
		return "synthesis"
	}
	return "stage"
}

// StageResult records one stage's outcome within a run.
type StageResult struct {
	Stage  Stage
	Status models.StageStatus
	Detail string
}

// satisfied reports whether the stage produced or loaded its artifacts.
func (r StageResult) satisfied() bool {
	return r.Status == models.StageSuccess || r.Status == models.StageCached
}
