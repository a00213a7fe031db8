package transfer

import (
	"context"
	"fmt"
	"os"
	"path"
	"path/filepath"

	"github.com/schemaflow/schemaflow/pkg/refresh"
	"github.com/schemaflow/schemaflow/pkg/telemetry"
	"github.com/schemaflow/schemaflow/pkg/transports/ssh"
)

// Direct copies the dump host-to-host through the control node: the
// file is pulled off the source and pushed onto the target, so neither
// database host ever initiates a connection or needs credentials for
// its peer.
type Direct struct {
	files    HostFiles
	spoolDir string
	logger   *telemetry.Logger
	metrics  *telemetry.Metrics
}

// NewDirect creates the direct copy strategy. spoolDir is the control
// node directory the dump is staged through.
func NewDirect(files HostFiles, spoolDir string, logger *telemetry.Logger, metrics *telemetry.Metrics) *Direct {
	return &Direct{
		files:    files,
		spoolDir: spoolDir,
		logger:   logger.NewComponentLogger("transfer-direct"),
		metrics:  metrics,
	}
}

// Name identifies the strategy for audit records.
func (d *Direct) Name() string { return "direct" }

// sourcePath is where the export phase left the dump on the source host.
func sourcePath(req *refresh.RefreshRequest, artifact *refresh.DumpArtifact) string {
	return path.Join(req.WorkDir, artifact.Name)
}

// targetPath is where the import phase expects the dump on the target host.
func targetPath(req *refresh.RefreshRequest, artifact *refresh.DumpArtifact) string {
	return path.Join(req.WorkDir, artifact.Name)
}

// spoolPath is the control-node staging location for the dump.
func (d *Direct) spoolPath(artifact *refresh.DumpArtifact) string {
	return filepath.Join(d.spoolDir, artifact.Name)
}

// Send relocates the dump from the source host to the target host.
func (d *Direct) Send(ctx context.Context, req *refresh.RefreshRequest, artifact *refresh.DumpArtifact) (refresh.TransferOutcome, error) {
	src := sourcePath(req, artifact)
	dst := targetPath(req, artifact)
	spool := d.spoolPath(artifact)

	d.logger.Infof("copying %s from %s to %s", artifact.Name, req.Source.Host, req.Target.Host)

	pulled, err := d.files.Pull(ctx, req.Source.Host, src, spool)
	if err != nil {
		d.observe("failure")
		return refresh.TransferOutcome{}, fmt.Errorf("pull from %s: %w", req.Source.Host, err)
	}

	if artifact.Checksum == "" {
		sum, err := ssh.LocalChecksum(spool)
		if err != nil {
			d.logger.Warnf("checksum of staged dump failed: %v", err)
		} else {
			artifact.Checksum = sum
		}
	}

	pushed, err := d.files.Push(ctx, req.Target.Host, spool, dst)
	if err != nil {
		d.observe("failure")
		return refresh.TransferOutcome{}, fmt.Errorf("push to %s: %w", req.Target.Host, err)
	}
	if pushed != pulled {
		d.observe("failure")
		return refresh.TransferOutcome{}, fmt.Errorf("copy truncated: pulled %d bytes, pushed %d", pulled, pushed)
	}

	// A copy that completed but left nothing behind is fatal, never a
	// silent success.
	size, err := d.files.Stat(ctx, req.Target.Host, dst)
	if err != nil {
		d.observe("failure")
		return refresh.TransferOutcome{}, fmt.Errorf("verify at %s: %w", req.Target.Host, err)
	}
	if size <= 0 {
		d.observe("failure")
		return refresh.TransferOutcome{}, fmt.Errorf("dump absent at %s:%s after copy", req.Target.Host, dst)
	}

	artifact.SizeBytes = size
	artifact.Location = refresh.OnHost(req.Target.Host, dst)

	d.observe("success")
	d.metrics.AddTransferBytes(size)
	d.logger.Infof("copied %s (%d bytes) to %s", artifact.Name, size, req.Target.Host)

	return refresh.TransferOutcome{Completed: true, Strategy: d.Name()}, nil
}

// Verify confirms the dump exists at the given host with a plausible
// size, and a matching checksum when one is recorded.
func (d *Direct) Verify(ctx context.Context, artifact *refresh.DumpArtifact, atHost string) (bool, error) {
	remotePath := artifact.Location.Path
	if remotePath == "" {
		return false, fmt.Errorf("artifact has no host path to verify")
	}

	size, err := d.files.Stat(ctx, atHost, remotePath)
	if err != nil {
		return false, err
	}
	if size <= 0 {
		return false, nil
	}
	if artifact.SizeBytes > 0 && size != artifact.SizeBytes {
		return false, nil
	}

	if artifact.Checksum != "" {
		sum, err := d.files.Checksum(ctx, atHost, remotePath)
		if err != nil {
			return false, err
		}
		if sum != artifact.Checksum {
			return false, nil
		}
	}
	return true, nil
}

// Cleanup removes the control-node spool copy and, when requested, the
// source-side dump. Best-effort.
func (d *Direct) Cleanup(ctx context.Context, req *refresh.RefreshRequest, artifact *refresh.DumpArtifact) error {
	if err := os.Remove(d.spoolPath(artifact)); err != nil && !os.IsNotExist(err) {
		d.logger.Warnf("failed to remove spool copy: %v", err)
	}

	if req.CleanupArtifact {
		if err := d.files.Remove(ctx, req.Source.Host, sourcePath(req, artifact)); err != nil {
			return fmt.Errorf("remove source dump: %w", err)
		}
	}
	return nil
}

func (d *Direct) observe(outcome string) {
	d.metrics.TransferAttempt(d.Name(), outcome)
}
