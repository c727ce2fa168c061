package models

import "time"

// SessionStatus is the lifecycle status of an analysis session.
type SessionStatus string

const (
	SessionRunning   SessionStatus = "running"
	SessionCompleted SessionStatus = "completed"
	SessionFailed    SessionStatus = "failed"
)

// PipelineResult classifies a finished pipeline run based on per-stage outcomes.
type PipelineResult string

const (
	ResultSuccess        PipelineResult = "success"
	ResultPartialSuccess PipelineResult = "partial_success"
	ResultFailure        PipelineResult = "failure"
)

// StageStatus is the outcome of a single pipeline stage.
type StageStatus string

const (
	StageSuccess StageStatus = "success"
	StageCached  StageStatus = "cached"
	StageMissing StageStatus = "missing"
	StageError   StageStatus = "error"
	StageTimeout StageStatus = "timeout"
)

// AnalysisSession is a single end-to-end pipeline run.
type AnalysisSession struct {
	ID              string         `json:"id"`
	Status          SessionStatus  `json:"status"`
	StartedAt       time.Time      `json:"started_at"`
	CompletedAt     *time.Time     `json:"completed_at,omitempty"`
	UseCachedData   bool           `json:"use_cached_data"`
	Result          PipelineResult `json:"result,omitempty"`
	SynthesisStatus StageStatus    `json:"synthesis_status,omitempty"`
	ErrorMessage    string         `json:"error,omitempty"`
}

// Clone returns a copy safe to hand to callers while the original keeps mutating.
func (s *AnalysisSession) Clone() *AnalysisSession {
	if s == nil {
		return nil
	}
	cp := *s
	if s.CompletedAt != nil {
		t := *s.CompletedAt
		cp.CompletedAt = &t
	}
	return &cp
}

// Terminal reports whether the session has reached a final status.
func (s SessionStatus) Terminal() bool {
	return s == SessionCompleted || s == SessionFailed
}

// SessionUpdate carries the fields written when a session reaches a new status.
// Zero-value fields are left untouched by stores.
type SessionUpdate struct {
	Result          PipelineResult
	SynthesisStatus StageStatus
	ErrorMessage    string
}
