// Package report persists the audit trail of refresh runs: one record
// per run plus the classified result of every phase that executed.
package report

import (
	"time"

	"github.com/schemaflow/schemaflow/pkg/refresh"
)

// RunRecord is one persisted refresh run.
type RunRecord struct {
	// ID is the run identifier.
	ID string

	// State is the terminal run state.
	State refresh.RunState

	// AbortedPhase names the aborting phase, empty when the run succeeded.
	AbortedPhase refresh.Phase

	// Request summary fields, kept flat for querying.
	SourceHost   string
	SourceSchema string
	TargetHost   string
	TargetSchema string
	Mode         refresh.OperationMode
	Method       refresh.TransferMethod

	// TransferStrategy is the strategy that completed the move.
	TransferStrategy string

	// DryRun records whether the run was a dry run.
	DryRun bool

	StartedAt   time.Time
	CompletedAt time.Time

	// Phases are the classified phase results in execution order.
	Phases []PhaseRecord
}

// PhaseRecord is one persisted phase result.
type PhaseRecord struct {
	Seq         int
	Phase       refresh.Phase
	Status      refresh.PhaseStatus
	Diagnostics string
	ObjectCount int
	Duration    time.Duration
}
