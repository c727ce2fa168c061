// Package agent runs single research turns against a hosted LLM with file
// search and code interpreter tooling.
package agent

import (
	"context"
	"fmt"
	"time"
)

// Agent roles. Each role gets its own vector store of reference documents.
const (
	RoleStockAnalyst      = "stock_analyst"
	RoleFundamentals      = "fundamentals_analyst"
	RoleComplianceOfficer = "compliance_officer"
	RoleSynthesis         = "synthesis"
)

// FileRef identifies a file generated inside a code interpreter container.
type FileRef struct {
	ContainerID string
	FileID      string
	Filename    string
}

// TurnResult is the outcome of one agent turn. A failure reported by the
// remote run (Failed=true) is a normal value, not a Go error: the stage
// records it and the pipeline moves on.
type TurnResult struct {
	Text          string
	Images        []FileRef
	Failed        bool
	FailureDetail string
}

// Runner executes agent turns. Implementations must honor context
// cancellation and deadlines.
type Runner interface {
	// RunTurn sends the prompt to the role's agent and waits for the run
	// to finish. Deadline overruns surface as *TimeoutError, connectivity
	// and API problems as *TransportError.
	RunTurn(ctx context.Context, role, prompt string) (*TurnResult, error)

	// SaveFile downloads a generated file to dest.
	SaveFile(ctx context.Context, ref FileRef, dest string) error
}

// TimeoutError reports that a turn exceeded its execution budget.
type TimeoutError struct {
	Role string
	// Budget is the configured limit, when known to the caller.
	Budget time.Duration
}

func (e *TimeoutError) Error() string {
	if e.Budget > 0 {
		return fmt.Sprintf("agent %s: turn exceeded %s budget", e.Role, e.Budget)
	}
	return fmt.Sprintf("agent %s: turn exceeded execution budget", e.Role)
}

// TransportError reports a connectivity or API failure reaching the LLM
// backend, as opposed to a failure reported by a completed run.
type TransportError struct {
	Role string
	Err  error
}

func (e *TransportError) Error() string {
	return fmt.Sprintf("agent %s: transport: %v", e.Role, e.Err)
}

func (e *TransportError) Unwrap() error {
	return e.Err
}
