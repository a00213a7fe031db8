package refresh

import (
	"fmt"
	"time"
)

// OperationMode restricts which phases of a refresh run execute.
type OperationMode string

const (
	// ModeFull runs the complete export/transfer/drop/import sequence.
	ModeFull OperationMode = "full"

	// ModeExportOnly runs preflight and export, then terminates without
	// touching the target schema.
	ModeExportOnly OperationMode = "export-only"

	// ModeImportOnly skips export and transfer; the dump artifact must
	// already be present at the target working directory.
	ModeImportOnly OperationMode = "import-only"
)

// Validate checks if the operation mode is valid.
func (m OperationMode) Validate() error {
	switch m {
	case ModeFull, ModeExportOnly, ModeImportOnly:
		return nil
	default:
		return fmt.Errorf("invalid operation mode: %s", m)
	}
}

// TransferMethod selects how the dump artifact moves between hosts.
type TransferMethod string

const (
	// TransferDirect copies the artifact host-to-host over SFTP.
	TransferDirect TransferMethod = "direct"

	// TransferObjectStore relays the artifact through an object-storage
	// bucket.
	TransferObjectStore TransferMethod = "objectstore"

	// TransferHybrid uploads to object storage for durability and also
	// performs the direct copy so a local copy exists on the target.
	TransferHybrid TransferMethod = "hybrid"
)

// Validate checks if the transfer method is valid.
func (t TransferMethod) Validate() error {
	switch t {
	case TransferDirect, TransferObjectStore, TransferHybrid:
		return nil
	default:
		return fmt.Errorf("invalid transfer method: %s", t)
	}
}

// Endpoint describes one database connection target.
type Endpoint struct {
	// Host is the database host name or IP address.
	Host string `json:"host" validate:"required"`

	// Port is the listener port.
	Port int `json:"port" validate:"required,min=1,max=65535"`

	// Instance is the database instance identifier.
	Instance string `json:"instance" validate:"required"`

	// Service is the service name used for connections.
	Service string `json:"service" validate:"required"`
}

// Address returns the host:port form of the endpoint.
func (e Endpoint) Address() string {
	return fmt.Sprintf("%s:%d", e.Host, e.Port)
}

// CredentialRef is an opaque handle into the secrets store. The resolved
// secret is never stored on the request and never logged.
type CredentialRef string

// String masks the handle so accidental formatting cannot leak it.
func (c CredentialRef) String() string { return "credential-ref(****)" }

// RefreshRequest is the immutable input to one refresh run.
type RefreshRequest struct {
	// Source is the database the schema is exported from.
	Source Endpoint `json:"source" validate:"required"`

	// Target is the database the schema is imported into.
	Target Endpoint `json:"target" validate:"required"`

	// SourceSchema is the schema name on the source database.
	SourceSchema string `json:"source_schema" validate:"required"`

	// TargetSchema is the schema name on the target database. It is
	// dropped and recreated by the import.
	TargetSchema string `json:"target_schema" validate:"required"`

	// Mode restricts which phases run.
	Mode OperationMode `json:"mode" validate:"required,oneof=full export-only import-only"`

	// Method selects the transfer strategy.
	Method TransferMethod `json:"method" validate:"required,oneof=direct objectstore hybrid"`

	// Parallelism is the worker degree handed to the export/import
	// engine. Bounded: the engines degrade badly beyond 8 workers.
	Parallelism int `json:"parallelism" validate:"required,min=1,max=8"`

	// WorkDir is the artifact working directory on each database host.
	WorkDir string `json:"work_dir" validate:"required"`

	// ArtifactName is the logical dump name. Defaults to a name derived
	// from the source schema when empty.
	ArtifactName string `json:"artifact_name,omitempty"`

	// SourceCredentials resolves the export credentials.
	SourceCredentials CredentialRef `json:"source_credentials" validate:"required"`

	// TargetCredentials resolves the import/drop credentials.
	TargetCredentials CredentialRef `json:"target_credentials" validate:"required"`

	// Validate runs the post-import validation query when true.
	Validate bool `json:"validate"`

	// DryRun walks the full phase plan without any external invocation.
	DryRun bool `json:"dry_run"`

	// CleanupArtifact removes the dump from the working directory after
	// a successful run.
	CleanupArtifact bool `json:"cleanup_artifact"`

	// CleanupObject also deletes the staged object after a successful
	// objectstore/hybrid run.
	CleanupObject bool `json:"cleanup_object"`

	// ObjectStoreSufficient treats a direct-copy failure in hybrid mode
	// as a warning when the object-store upload succeeded.
	ObjectStoreSufficient bool `json:"objectstore_sufficient"`

	// PhaseTimeout caps each external invocation. Zero means no cap.
	PhaseTimeout time.Duration `json:"phase_timeout,omitempty"`
}

// DumpName returns the effective artifact name for the run.
func (r *RefreshRequest) DumpName() string {
	if r.ArtifactName != "" {
		return r.ArtifactName
	}
	return fmt.Sprintf("%s_refresh.dmp", r.SourceSchema)
}

// HostsEqual reports whether source and target share one host, in which
// case the transfer phase is bypassed entirely.
func (r *RefreshRequest) HostsEqual() bool {
	return r.Source.Host == r.Target.Host
}

// LocationKind tells where the dump artifact currently lives.
type LocationKind string

const (
	// LocationOnHost means the artifact sits in a host's working directory.
	LocationOnHost LocationKind = "on-host"

	// LocationObjectStore means the artifact is staged in a bucket.
	LocationObjectStore LocationKind = "object-store"

	// LocationLocal means the artifact sits on the control node.
	LocationLocal LocationKind = "local"
)

// ArtifactLocation is the current location of the dump artifact.
type ArtifactLocation struct {
	Kind   LocationKind `json:"kind"`
	Host   string       `json:"host,omitempty"`
	Bucket string       `json:"bucket,omitempty"`
	Key    string       `json:"key,omitempty"`
	Path   string       `json:"path,omitempty"`
}

// OnHost returns a host-resident location.
func OnHost(host, path string) ArtifactLocation {
	return ArtifactLocation{Kind: LocationOnHost, Host: host, Path: path}
}

// InObjectStore returns a bucket-resident location.
func InObjectStore(bucket, key string) ArtifactLocation {
	return ArtifactLocation{Kind: LocationObjectStore, Bucket: bucket, Key: key}
}

// DumpArtifact describes the exported dump. Created by the export phase,
// relocated by the transfer phase, consumed read-only by the import phase.
type DumpArtifact struct {
	// Name is the logical dump file name.
	Name string `json:"name"`

	// SizeBytes is the dump size once known, zero before.
	SizeBytes int64 `json:"size_bytes"`

	// SourceHost is the host the dump was produced on.
	SourceHost string `json:"source_host"`

	// Location is where the dump currently lives.
	Location ArtifactLocation `json:"location"`

	// Checksum is a SHA-256 hex digest when the backing store supplied
	// one; empty otherwise.
	Checksum string `json:"checksum,omitempty"`
}

// Phase identifies one step of the refresh state machine.
type Phase string

const (
	PhasePreflight Phase = "preflight"
	PhaseExport    Phase = "export"
	PhaseTransfer  Phase = "transfer"
	PhaseDrop      Phase = "drop"
	PhaseImport    Phase = "import"
	PhaseValidate  Phase = "validate"
	PhaseKill      Phase = "kill"
)

// PhaseStatus is the classified outcome of one phase.
type PhaseStatus string

const (
	// StatusSuccess means the phase completed its work.
	StatusSuccess PhaseStatus = "success"

	// StatusBenignNoOp means the phase found its work already done
	// (artifact already exported, schema already absent). Advances the
	// state machine exactly like StatusSuccess.
	StatusBenignNoOp PhaseStatus = "benign-noop"

	// StatusFatal aborts the run.
	StatusFatal PhaseStatus = "fatal"
)

// Advances reports whether the status lets the state machine continue.
func (s PhaseStatus) Advances() bool {
	return s == StatusSuccess || s == StatusBenignNoOp
}

// PhaseResult is the classified outcome of one phase, produced by the
// outcome classifier and consumed by the orchestrator. Never persisted
// beyond the run except as a report record.
type PhaseResult struct {
	// Phase is the phase this result belongs to.
	Phase Phase `json:"phase"`

	// Status is the classified status.
	Status PhaseStatus `json:"status"`

	// Diagnostics is the captured tool output (stdout+stderr).
	Diagnostics string `json:"diagnostics,omitempty"`

	// ObjectCount is the validated object count; set by the validate
	// phase only.
	ObjectCount int `json:"object_count,omitempty"`

	// Duration is how long the phase took.
	Duration time.Duration `json:"duration"`
}

// RunState is the terminal state of a refresh run.
type RunState string

const (
	// RunSucceeded means the state machine reached its terminal success
	// state.
	RunSucceeded RunState = "succeeded"

	// RunAborted means a fatal phase result or cancellation stopped the
	// run.
	RunAborted RunState = "aborted"
)

// RunReport summarizes one refresh run for the report sink and the CLI.
type RunReport struct {
	// RunID is the unique run identifier.
	RunID string `json:"run_id"`

	// State is the terminal run state.
	State RunState `json:"state"`

	// AbortedPhase names the phase that aborted the run, if any.
	AbortedPhase Phase `json:"aborted_phase,omitempty"`

	// Phases lists the classified results of every phase that executed,
	// in execution order.
	Phases []PhaseResult `json:"phases"`

	// TransferStrategy records which strategy completed the move.
	TransferStrategy string `json:"transfer_strategy,omitempty"`

	// StartedAt is when the run started.
	StartedAt time.Time `json:"started_at"`

	// CompletedAt is when the run reached a terminal state.
	CompletedAt time.Time `json:"completed_at"`

	// DryRun records whether the run was a dry run.
	DryRun bool `json:"dry_run"`
}

// PhaseExecuted reports whether the named phase ran during the run.
func (r *RunReport) PhaseExecuted(phase Phase) bool {
	for i := range r.Phases {
		if r.Phases[i].Phase == phase {
			return true
		}
	}
	return false
}
