package refresh

import "context"

// RawResult is the uninterpreted outcome of one external tool invocation:
// the process exit status and the concatenated stdout+stderr. Every raw
// result passes through the Classifier before the orchestrator acts on it.
type RawResult struct {
	// ExitStatus is the process or API exit status.
	ExitStatus int

	// Output is the captured diagnostic text.
	Output string
}

// Exporter invokes the bulk schema export facility. The artifact descriptor
// is filled in place (size, checksum) as far as the tool reports it.
type Exporter interface {
	Export(ctx context.Context, req *RefreshRequest, artifact *DumpArtifact) (RawResult, error)
}

// Importer invokes the bulk schema import facility against the target,
// remapping the source schema onto the target schema.
type Importer interface {
	Import(ctx context.Context, req *RefreshRequest, artifact *DumpArtifact) (RawResult, error)
}

// SchemaDropper drops the target schema with elevated privileges.
type SchemaDropper interface {
	DropSchema(ctx context.Context, req *RefreshRequest) (RawResult, error)
}

// SessionKiller terminates active sessions owned by the target schema.
// Best-effort: the classifier never treats its failure as fatal.
type SessionKiller interface {
	KillSessions(ctx context.Context, req *RefreshRequest) (RawResult, error)
}

// SchemaVerifier counts the objects owned by the target schema after
// import. The count is only meaningful when the raw result classifies as
// success.
type SchemaVerifier interface {
	CountObjects(ctx context.Context, req *RefreshRequest) (RawResult, int, error)
}

// TransferOutcome is the result of a transfer strategy attempt.
type TransferOutcome struct {
	// Completed is true when the artifact reached the target.
	Completed bool

	// Strategy names the strategy that completed the move, which may be
	// the fallback rather than the configured primary.
	Strategy string

	// Warning carries a non-fatal strategy diagnostic (hybrid mode's
	// tolerated direct-copy failure).
	Warning string
}

// Transfer moves the dump artifact from the source host to the target
// host, mutating the artifact's location on success.
type Transfer interface {
	// Name identifies the strategy for audit records.
	Name() string

	// Send relocates the artifact from req.Source.Host to req.Target.Host.
	Send(ctx context.Context, req *RefreshRequest, artifact *DumpArtifact) (TransferOutcome, error)

	// Verify confirms the artifact exists at the given host with a
	// plausible size (and checksum when one is recorded).
	Verify(ctx context.Context, artifact *DumpArtifact, atHost string) (bool, error)

	// Cleanup removes whatever the strategy staged (spool files, bucket
	// objects) after a successful run. Best-effort.
	Cleanup(ctx context.Context, req *RefreshRequest, artifact *DumpArtifact) error
}

// HostProbe answers preflight questions about a database host.
type HostProbe interface {
	// Reachable verifies the endpoint accepts connections.
	Reachable(ctx context.Context, endpoint Endpoint) error

	// FreeSpace returns the available bytes at dir on host.
	FreeSpace(ctx context.Context, host, dir string) (int64, error)
}

// SafetyPolicy is consulted before any destructive phase. A refusal is
// returned as a policy-class error.
type SafetyPolicy interface {
	CheckDestructive(ctx context.Context, req *RefreshRequest) error
}

// ReportSink receives the structured record of a completed run.
type ReportSink interface {
	RecordRun(ctx context.Context, req *RefreshRequest, report *RunReport) error
}
