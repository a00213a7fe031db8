package transfer

import (
	"context"
	"fmt"

	"github.com/schemaflow/schemaflow/pkg/refresh"
	"github.com/schemaflow/schemaflow/pkg/telemetry"
)

// Coordinator wraps a primary transfer strategy with an optional
// secondary, attempted exactly once when the primary fails. One hop
// only: if the secondary also fails, both diagnostics surface together
// and the run aborts.
type Coordinator struct {
	primary   refresh.Transfer
	secondary refresh.Transfer
	logger    *telemetry.Logger

	// completed is the strategy that finished the most recent Send, used
	// to route Verify and Cleanup. A run is single-threaded at the
	// orchestration level, so no locking is needed.
	completed refresh.Transfer
}

// NewCoordinator wraps primary with an optional secondary fallback.
// secondary may be nil.
func NewCoordinator(primary, secondary refresh.Transfer, logger *telemetry.Logger) *Coordinator {
	return &Coordinator{
		primary:   primary,
		secondary: secondary,
		logger:    logger.NewComponentLogger("transfer"),
	}
}

// Name identifies the configured primary strategy.
func (c *Coordinator) Name() string { return c.primary.Name() }

// Send attempts the primary strategy, then the secondary once.
func (c *Coordinator) Send(ctx context.Context, req *refresh.RefreshRequest, artifact *refresh.DumpArtifact) (refresh.TransferOutcome, error) {
	outcome, primaryErr := c.primary.Send(ctx, req, artifact)
	if primaryErr == nil {
		c.completed = c.primary
		c.logger.Infof("transfer completed by %s strategy", outcome.Strategy)
		return outcome, nil
	}

	if c.secondary == nil {
		return refresh.TransferOutcome{}, primaryErr
	}
	if ctx.Err() != nil {
		return refresh.TransferOutcome{}, primaryErr
	}

	c.logger.Warnf("%s strategy failed, falling back to %s: %v",
		c.primary.Name(), c.secondary.Name(), primaryErr)

	outcome, secondaryErr := c.secondary.Send(ctx, req, artifact)
	if secondaryErr == nil {
		c.completed = c.secondary
		c.logger.Infof("transfer completed by fallback %s strategy", outcome.Strategy)
		return outcome, nil
	}

	return refresh.TransferOutcome{}, fmt.Errorf("%s: %v; fallback %s: %v",
		c.primary.Name(), primaryErr, c.secondary.Name(), secondaryErr)
}

// Verify delegates to the strategy that completed the move.
func (c *Coordinator) Verify(ctx context.Context, artifact *refresh.DumpArtifact, atHost string) (bool, error) {
	return c.active().Verify(ctx, artifact, atHost)
}

// Cleanup delegates to the strategy that completed the move.
func (c *Coordinator) Cleanup(ctx context.Context, req *refresh.RefreshRequest, artifact *refresh.DumpArtifact) error {
	return c.active().Cleanup(ctx, req, artifact)
}

func (c *Coordinator) active() refresh.Transfer {
	if c.completed != nil {
		return c.completed
	}
	return c.primary
}
