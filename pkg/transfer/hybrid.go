package transfer

import (
	"context"
	"fmt"

	"github.com/schemaflow/schemaflow/pkg/refresh"
	"github.com/schemaflow/schemaflow/pkg/telemetry"
)

// Hybrid uploads to the object store for durability and audit, then
// also performs the direct copy so a local copy exists on the target.
// The object-store copy is the guarantee this mode exists to provide:
// its failure is always fatal, even when the direct copy succeeded. A
// direct-copy failure is tolerated as a warning only when the request
// marks the object-store copy as sufficient, in which case the dump is
// placed on the target from the bucket instead.
type Hybrid struct {
	object  *ObjectStore
	direct  *Direct
	logger  *telemetry.Logger
	metrics *telemetry.Metrics
}

// NewHybrid creates the hybrid strategy from its two halves.
func NewHybrid(object *ObjectStore, direct *Direct, logger *telemetry.Logger, metrics *telemetry.Metrics) *Hybrid {
	return &Hybrid{
		object:  object,
		direct:  direct,
		logger:  logger.NewComponentLogger("transfer-hybrid"),
		metrics: metrics,
	}
}

// Name identifies the strategy for audit records.
func (h *Hybrid) Name() string { return "hybrid" }

// Send uploads the dump to the bucket, then copies it host-to-host.
func (h *Hybrid) Send(ctx context.Context, req *refresh.RefreshRequest, artifact *refresh.DumpArtifact) (refresh.TransferOutcome, error) {
	loc, err := h.object.Upload(ctx, req, artifact)
	if err != nil {
		h.metrics.TransferAttempt(h.Name(), "failure")
		return refresh.TransferOutcome{}, fmt.Errorf("object-store upload: %w", err)
	}

	_, directErr := h.direct.Send(ctx, req, artifact)
	if directErr == nil {
		h.metrics.TransferAttempt(h.Name(), "success")
		return refresh.TransferOutcome{Completed: true, Strategy: h.Name()}, nil
	}

	if !req.ObjectStoreSufficient {
		h.metrics.TransferAttempt(h.Name(), "failure")
		return refresh.TransferOutcome{}, fmt.Errorf("direct copy: %w", directErr)
	}

	// The durable copy exists; place the dump from the bucket and carry
	// the direct failure as a warning.
	h.logger.Warnf("direct copy failed, placing dump from object store: %v", directErr)
	if err := h.object.Download(ctx, req, artifact, loc); err != nil {
		h.metrics.TransferAttempt(h.Name(), "failure")
		return refresh.TransferOutcome{}, fmt.Errorf("object-store download after direct failure: %w", err)
	}

	h.metrics.TransferAttempt(h.Name(), "success")
	return refresh.TransferOutcome{
		Completed: true,
		Strategy:  h.Name(),
		Warning:   fmt.Sprintf("direct copy failed, object-store copy used: %v", directErr),
	}, nil
}

// Verify checks the host-side copy the import phase will consume.
func (h *Hybrid) Verify(ctx context.Context, artifact *refresh.DumpArtifact, atHost string) (bool, error) {
	return h.direct.Verify(ctx, artifact, atHost)
}

// Cleanup removes staging copies on both paths.
func (h *Hybrid) Cleanup(ctx context.Context, req *refresh.RefreshRequest, artifact *refresh.DumpArtifact) error {
	if err := h.object.Cleanup(ctx, req, artifact); err != nil {
		return err
	}
	// Source dump removal already ran in the object half; spool removal
	// is idempotent.
	if req.CleanupArtifact {
		trimmed := *req
		trimmed.CleanupArtifact = false
		return h.direct.Cleanup(ctx, &trimmed, artifact)
	}
	return h.direct.Cleanup(ctx, req, artifact)
}
