package refresh

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/schemaflow/schemaflow/pkg/telemetry"
)

// Deps carries the collaborators one Orchestrator run needs. The transfer
// strategy is expected to be pre-wrapped by the fallback coordinator when a
// secondary strategy is configured.
type Deps struct {
	Classifier *Classifier
	Preflight  *PreflightValidator
	Exporter   Exporter
	Importer   Importer
	Dropper    SchemaDropper
	Killer     SessionKiller
	Verifier   SchemaVerifier
	Transfer   Transfer
	Report     ReportSink
	Logger     *telemetry.Logger
	Metrics    *telemetry.Metrics
	Tracer     *telemetry.Tracer
}

// Orchestrator drives one refresh run through the phase state machine.
// It exclusively owns the RefreshRequest and the single DumpArtifact for
// the run's lifetime; phases execute strictly sequentially.
type Orchestrator struct {
	deps Deps
}

// NewOrchestrator creates an orchestrator. A nil Classifier is replaced
// with the default; Logger must be non-nil.
func NewOrchestrator(deps Deps) *Orchestrator {
	if deps.Classifier == nil {
		deps.Classifier = NewClassifier()
	}
	deps.Logger = deps.Logger.NewComponentLogger("orchestrator")
	return &Orchestrator{deps: deps}
}

// Run executes the refresh request to a terminal state. The returned
// report is always non-nil; the error is non-nil exactly when the run
// aborted and names the aborting phase.
func (o *Orchestrator) Run(ctx context.Context, req *RefreshRequest) (*RunReport, error) {
	report := &RunReport{
		RunID:     uuid.New().String(),
		StartedAt: time.Now(),
		DryRun:    req.DryRun,
	}
	logger := o.deps.Logger.WithRunID(report.RunID)
	logger.WithField("mode", string(req.Mode)).
		WithField("method", string(req.Method)).
		WithField("source_schema", req.SourceSchema).
		WithField("target_schema", req.TargetSchema).
		Info("refresh run started")
	o.deps.Metrics.RunStarted()

	err := o.execute(ctx, req, report, logger)

	report.CompletedAt = time.Now()
	if err != nil {
		report.State = RunAborted
	} else {
		report.State = RunSucceeded
	}
	o.deps.Metrics.RunCompleted(string(report.State), report.CompletedAt.Sub(report.StartedAt))

	if o.deps.Report != nil {
		// Persisting the report must not change the run outcome.
		if recErr := o.deps.Report.RecordRun(context.WithoutCancel(ctx), req, report); recErr != nil {
			logger.WithError(recErr).Warn("failed to persist run report")
		}
	}

	if err != nil {
		logger.WithField("aborted_phase", string(report.AbortedPhase)).WithError(err).Error("refresh run aborted")
		return report, err
	}
	logger.Info("refresh run succeeded")
	return report, nil
}

// execute walks the transition table. Mode gating:
//
//	Start -> Preflight                          always
//	Preflight -> Export                         unless mode=import-only (-> Drop)
//	Export -> Succeeded                         when mode=export-only
//	Export -> Transfer                          when hosts differ, else -> Drop
//	Transfer -> Drop
//	Drop -> Import -> Validate? -> Succeeded
//
// Any Fatal classification aborts; BenignNoOp advances like Success.
func (o *Orchestrator) execute(ctx context.Context, req *RefreshRequest, report *RunReport, logger *telemetry.Logger) error {
	pf, _ := o.deps.Preflight.Run(ctx, req)
	report.Phases = append(report.Phases, pf)
	if pf.Status == StatusFatal {
		report.AbortedPhase = PhasePreflight
		return NewConfigError("preflight checks failed", nil).
			WithPhase(PhasePreflight).WithDiagnostics(pf.Diagnostics)
	}

	artifact := &DumpArtifact{
		Name:       req.DumpName(),
		SourceHost: req.Source.Host,
		Location:   OnHost(req.Source.Host, req.WorkDir+"/"+req.DumpName()),
	}

	if req.Mode != ModeImportOnly {
		if err := o.checkCancelled(ctx, report, PhaseExport); err != nil {
			return err
		}
		result, err := o.runToolPhase(ctx, req, report, logger, PhaseExport, func(ctx context.Context) (RawResult, error) {
			return o.deps.Exporter.Export(ctx, req, artifact)
		})
		if err != nil {
			return err
		}
		if result.Status == StatusBenignNoOp {
			logger.Info("dump artifact already present from a prior run")
		}

		// Export-only terminates here without touching the target schema,
		// even when source and target share a host.
		if req.Mode == ModeExportOnly {
			return nil
		}
	}

	// Transfer is bypassed entirely on host equality: the artifact was
	// produced where it will be consumed, and a strategy invocation would
	// verify against a file that was never moved.
	if req.Mode != ModeImportOnly && !req.HostsEqual() {
		if err := o.checkCancelled(ctx, report, PhaseTransfer); err != nil {
			return err
		}
		if err := o.runTransfer(ctx, req, artifact, report, logger); err != nil {
			return err
		}
	}

	if err := o.checkCancelled(ctx, report, PhaseDrop); err != nil {
		return err
	}

	// Sessions holding the target schema block the drop. Termination is
	// best-effort: the classifier never fails the run over it.
	o.killSessions(ctx, req, report, logger)

	if _, err := o.runToolPhase(ctx, req, report, logger, PhaseDrop, func(ctx context.Context) (RawResult, error) {
		return o.deps.Dropper.DropSchema(ctx, req)
	}); err != nil {
		return err
	}

	if err := o.checkCancelled(ctx, report, PhaseImport); err != nil {
		return err
	}
	if _, err := o.runToolPhase(ctx, req, report, logger, PhaseImport, func(ctx context.Context) (RawResult, error) {
		return o.deps.Importer.Import(ctx, req, artifact)
	}); err != nil {
		return err
	}

	if req.Validate {
		if err := o.checkCancelled(ctx, report, PhaseValidate); err != nil {
			return err
		}
		if err := o.runValidate(ctx, req, report, logger); err != nil {
			return err
		}
	}

	o.cleanup(ctx, req, artifact, logger)
	return nil
}

// runToolPhase executes one external invocation, classifies it, records it,
// and converts a Fatal classification into an abort error. In dry-run mode
// the invocation is replaced with a logged no-op that still flows through
// the transition table.
func (o *Orchestrator) runToolPhase(
	ctx context.Context,
	req *RefreshRequest,
	report *RunReport,
	logger *telemetry.Logger,
	phase Phase,
	invoke func(ctx context.Context) (RawResult, error),
) (PhaseResult, error) {
	start := time.Now()
	ctx, span := o.deps.Tracer.StartPhase(ctx, string(phase))
	defer span.End()

	result := PhaseResult{Phase: phase}

	if req.DryRun {
		logger.WithField("phase", string(phase)).Info("dry-run: skipping external invocation")
		result.Status = StatusSuccess
		result.Diagnostics = "dry-run"
		result.Duration = time.Since(start)
		report.Phases = append(report.Phases, result)
		return result, nil
	}

	raw, err := o.invokeWithTimeout(ctx, req, invoke)
	result.Duration = time.Since(start)
	result.Diagnostics = raw.Output

	switch {
	case err != nil && errors.Is(err, context.DeadlineExceeded):
		result.Status = StatusFatal
		report.Phases = append(report.Phases, result)
		report.AbortedPhase = phase
		o.observePhase(phase, result)
		return result, NewTimeoutError(fmt.Sprintf("%s phase timed out after %s", phase, req.PhaseTimeout), err).
			WithPhase(phase)
	case err != nil:
		result.Status = StatusFatal
		if result.Diagnostics == "" {
			result.Diagnostics = err.Error()
		}
		report.Phases = append(report.Phases, result)
		report.AbortedPhase = phase
		o.observePhase(phase, result)
		return result, o.abortError(phase, err, result.Diagnostics)
	}

	result.Status = o.deps.Classifier.Classify(phase, raw.ExitStatus, raw.Output)
	report.Phases = append(report.Phases, result)
	o.observePhase(phase, result)

	if result.Status == StatusFatal {
		report.AbortedPhase = phase
		return result, o.abortError(phase, nil, result.Diagnostics)
	}
	logger.WithField("phase", string(phase)).
		WithField("status", string(result.Status)).
		Info("phase completed")
	return result, nil
}

// runTransfer invokes the (fallback-wrapped) transfer strategy and verifies
// placement. Transfer failures are always fatal at this level: retries and
// fallback hops already happened inside the strategy stack.
func (o *Orchestrator) runTransfer(ctx context.Context, req *RefreshRequest, artifact *DumpArtifact, report *RunReport, logger *telemetry.Logger) error {
	start := time.Now()
	ctx, span := o.deps.Tracer.StartPhase(ctx, string(PhaseTransfer))
	defer span.End()

	result := PhaseResult{Phase: PhaseTransfer}

	if req.DryRun {
		logger.WithField("phase", "transfer").
			WithField("method", string(req.Method)).
			Info("dry-run: skipping transfer")
		result.Status = StatusSuccess
		result.Diagnostics = "dry-run"
		result.Duration = time.Since(start)
		report.Phases = append(report.Phases, result)
		return nil
	}

	outcome, err := o.deps.Transfer.Send(ctx, req, artifact)
	result.Duration = time.Since(start)

	if err != nil || !outcome.Completed {
		result.Status = StatusFatal
		if err != nil {
			result.Diagnostics = err.Error()
		}
		report.Phases = append(report.Phases, result)
		report.AbortedPhase = PhaseTransfer
		o.observePhase(PhaseTransfer, result)
		return o.abortError(PhaseTransfer, err, result.Diagnostics)
	}

	if outcome.Warning != "" {
		logger.Warnf("transfer completed with warning: %s", outcome.Warning)
	}
	result.Status = StatusSuccess
	result.Diagnostics = outcome.Warning
	report.Phases = append(report.Phases, result)
	report.TransferStrategy = outcome.Strategy
	o.observePhase(PhaseTransfer, result)
	logger.WithField("strategy", outcome.Strategy).Info("artifact transferred")
	return nil
}

func (o *Orchestrator) runValidate(ctx context.Context, req *RefreshRequest, report *RunReport, logger *telemetry.Logger) error {
	start := time.Now()
	ctx, span := o.deps.Tracer.StartPhase(ctx, string(PhaseValidate))
	defer span.End()

	result := PhaseResult{Phase: PhaseValidate}

	if req.DryRun {
		logger.WithField("phase", "validate").Info("dry-run: skipping validation query")
		result.Status = StatusSuccess
		result.Diagnostics = "dry-run"
		result.Duration = time.Since(start)
		report.Phases = append(report.Phases, result)
		return nil
	}

	raw, count, err := o.invokeVerifier(ctx, req)
	result.Duration = time.Since(start)
	result.Diagnostics = raw.Output

	if err != nil {
		result.Status = StatusFatal
		report.Phases = append(report.Phases, result)
		report.AbortedPhase = PhaseValidate
		o.observePhase(PhaseValidate, result)
		return o.abortError(PhaseValidate, err, result.Diagnostics)
	}

	result.Status = o.deps.Classifier.Classify(PhaseValidate, raw.ExitStatus, raw.Output)
	result.ObjectCount = count
	report.Phases = append(report.Phases, result)
	o.observePhase(PhaseValidate, result)

	if result.Status == StatusFatal {
		report.AbortedPhase = PhaseValidate
		return o.abortError(PhaseValidate, nil, result.Diagnostics)
	}
	logger.WithField("object_count", count).Info("target schema validated")
	return nil
}

// killSessions records its own phase result but can never abort the run.
func (o *Orchestrator) killSessions(ctx context.Context, req *RefreshRequest, report *RunReport, logger *telemetry.Logger) {
	start := time.Now()
	result := PhaseResult{Phase: PhaseKill}

	if req.DryRun {
		result.Status = StatusSuccess
		result.Diagnostics = "dry-run"
		result.Duration = time.Since(start)
		report.Phases = append(report.Phases, result)
		return
	}

	raw, err := o.invokeWithTimeout(ctx, req, func(ctx context.Context) (RawResult, error) {
		return o.deps.Killer.KillSessions(ctx, req)
	})
	result.Duration = time.Since(start)
	result.Diagnostics = raw.Output
	if err != nil {
		result.Status = StatusBenignNoOp
		logger.WithError(err).Warn("session termination failed; continuing")
	} else {
		result.Status = o.deps.Classifier.Classify(PhaseKill, raw.ExitStatus, raw.Output)
	}
	report.Phases = append(report.Phases, result)
	o.observePhase(PhaseKill, result)
}

// cleanup removes the run's residue after success. Never fatal.
func (o *Orchestrator) cleanup(ctx context.Context, req *RefreshRequest, artifact *DumpArtifact, logger *telemetry.Logger) {
	if req.DryRun || !req.CleanupArtifact || o.deps.Transfer == nil {
		return
	}
	if err := o.deps.Transfer.Cleanup(ctx, req, artifact); err != nil {
		logger.WithError(err).Warn("artifact cleanup failed")
	}
}

func (o *Orchestrator) invokeWithTimeout(ctx context.Context, req *RefreshRequest, invoke func(ctx context.Context) (RawResult, error)) (RawResult, error) {
	if req.PhaseTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, req.PhaseTimeout)
		defer cancel()
	}
	return invoke(ctx)
}

func (o *Orchestrator) invokeVerifier(ctx context.Context, req *RefreshRequest) (RawResult, int, error) {
	if req.PhaseTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, req.PhaseTimeout)
		defer cancel()
	}
	return o.deps.Verifier.CountObjects(ctx, req)
}

// checkCancelled aborts cleanly between phases when the context is done.
func (o *Orchestrator) checkCancelled(ctx context.Context, report *RunReport, next Phase) error {
	if err := ctx.Err(); err != nil {
		report.AbortedPhase = next
		return NewCancelledError(fmt.Sprintf("run cancelled before %s phase", next), err)
	}
	return nil
}

func (o *Orchestrator) abortError(phase Phase, err error, diagnostics string) error {
	var base *Error
	switch phase {
	case PhaseDrop, PhaseImport:
		base = NewDestructiveError(fmt.Sprintf("%s phase failed", phase), err)
	case PhaseTransfer:
		base = NewConnectivityError("transfer failed", err)
	default:
		base = NewConnectivityError(fmt.Sprintf("%s phase failed", phase), err)
	}
	return base.WithPhase(phase).WithDiagnostics(diagnostics)
}

func (o *Orchestrator) observePhase(phase Phase, result PhaseResult) {
	o.deps.Metrics.ObservePhase(string(phase), string(result.Status), result.Duration)
}
