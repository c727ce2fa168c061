package api

import "github.com/investlabs/researchd/pkg/models"

// AnalysisStartedResponse is returned by POST /api/analyze.
type AnalysisStartedResponse struct {
	AnalysisID string `json:"analysis_id"`
	Status     string `json:"status"`
	StreamURL  string `json:"stream_url"`
	Message    string `json:"message"`
}

// SessionListResponse is returned by GET /api/sessions.
type SessionListResponse struct {
	Sessions []*models.AnalysisSession `json:"sessions"`
	Total    int                       `json:"total"`
}

// DeleteResponse is returned by DELETE /api/sessions/{id}.
type DeleteResponse struct {
	Status    string `json:"status"`
	SessionID string `json:"session_id"`
}

// endFrame is the SSE stream terminator. Kept distinct from ProgressEvent so
// the wire frame carries exactly these two fields.
type endFrame struct {
	Type    string `json:"type"`
	Message string `json:"message"`
}
