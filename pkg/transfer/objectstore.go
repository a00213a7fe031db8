package transfer

import (
	"context"
	"fmt"
	"os"
	"path/filepath"

	"github.com/schemaflow/schemaflow/pkg/refresh"
	"github.com/schemaflow/schemaflow/pkg/telemetry"
	"github.com/schemaflow/schemaflow/pkg/transports/ssh"
)

// ObjectStore relays the dump through a bucket: upload from the source
// side, download on the target side. The two halves are separate
// operations because the dump may be produced and consumed at different
// points in the run. Transient transport errors are retried with capped
// exponential backoff; anything non-transient fails immediately.
type ObjectStore struct {
	files      HostFiles
	bucket     BucketClient
	bucketName string
	spoolDir   string
	retry      RetryPolicy
	logger     *telemetry.Logger
	metrics    *telemetry.Metrics
}

// NewObjectStore creates the object-store relay strategy.
func NewObjectStore(files HostFiles, bucket BucketClient, bucketName, spoolDir string, retry RetryPolicy, logger *telemetry.Logger, metrics *telemetry.Metrics) *ObjectStore {
	return &ObjectStore{
		files:      files,
		bucket:     bucket,
		bucketName: bucketName,
		spoolDir:   spoolDir,
		retry:      retry,
		logger:     logger.NewComponentLogger("transfer-objectstore"),
		metrics:    metrics,
	}
}

// Name identifies the strategy for audit records.
func (s *ObjectStore) Name() string { return "objectstore" }

// objectKey is the bucket key for the run's dump. Deterministic so a
// re-run overwrites its own staging object instead of accumulating.
func objectKey(req *refresh.RefreshRequest, artifact *refresh.DumpArtifact) string {
	return req.SourceSchema + "/" + artifact.Name
}

func (s *ObjectStore) spoolPath(artifact *refresh.DumpArtifact) string {
	return filepath.Join(s.spoolDir, artifact.Name)
}

// Upload stages the source-side dump into the bucket and returns the
// resulting bucket location.
func (s *ObjectStore) Upload(ctx context.Context, req *refresh.RefreshRequest, artifact *refresh.DumpArtifact) (refresh.ArtifactLocation, error) {
	spool := s.spoolPath(artifact)
	key := objectKey(req, artifact)

	err := retryTransient(ctx, s.retry, s.logger, "pull dump from source", func() error {
		_, err := s.files.Pull(ctx, req.Source.Host, sourcePath(req, artifact), spool)
		return err
	})
	if err != nil {
		return refresh.ArtifactLocation{}, fmt.Errorf("pull from %s: %w", req.Source.Host, err)
	}

	if artifact.Checksum == "" {
		if sum, err := ssh.LocalChecksum(spool); err == nil {
			artifact.Checksum = sum
		}
	}

	if err := s.bucket.EnsureBucket(ctx); err != nil {
		return refresh.ArtifactLocation{}, fmt.Errorf("ensure bucket: %w", err)
	}

	var uploaded int64
	err = retryTransient(ctx, s.retry, s.logger, "upload dump", func() error {
		var err error
		uploaded, err = s.bucket.Upload(ctx, key, spool)
		return err
	})
	if err != nil {
		return refresh.ArtifactLocation{}, fmt.Errorf("upload %s: %w", key, err)
	}

	s.metrics.AddTransferBytes(uploaded)
	s.logger.Infof("uploaded %s (%d bytes) as %s", artifact.Name, uploaded, key)

	if artifact.SizeBytes == 0 {
		artifact.SizeBytes = uploaded
	}
	return refresh.InObjectStore(s.bucketName, key), nil
}

// Download retrieves the staged object and places it in the target
// host's working directory.
func (s *ObjectStore) Download(ctx context.Context, req *refresh.RefreshRequest, artifact *refresh.DumpArtifact, loc refresh.ArtifactLocation) error {
	spool := s.spoolPath(artifact)
	dst := targetPath(req, artifact)

	err := retryTransient(ctx, s.retry, s.logger, "download dump", func() error {
		_, err := s.bucket.Download(ctx, loc.Key, spool)
		return err
	})
	if err != nil {
		return fmt.Errorf("download %s: %w", loc.Key, err)
	}

	if artifact.Checksum != "" {
		sum, err := ssh.LocalChecksum(spool)
		if err == nil && sum != artifact.Checksum {
			return fmt.Errorf("downloaded dump checksum mismatch for %s", loc.Key)
		}
	}

	err = retryTransient(ctx, s.retry, s.logger, "push dump to target", func() error {
		_, err := s.files.Push(ctx, req.Target.Host, spool, dst)
		return err
	})
	if err != nil {
		return fmt.Errorf("push to %s: %w", req.Target.Host, err)
	}

	size, err := s.files.Stat(ctx, req.Target.Host, dst)
	if err != nil {
		return fmt.Errorf("verify at %s: %w", req.Target.Host, err)
	}
	if size <= 0 {
		return fmt.Errorf("dump absent at %s:%s after download", req.Target.Host, dst)
	}

	artifact.SizeBytes = size
	artifact.Location = refresh.OnHost(req.Target.Host, dst)
	s.logger.Infof("placed %s (%d bytes) on %s", artifact.Name, size, req.Target.Host)
	return nil
}

// Send relays the dump source → bucket → target.
func (s *ObjectStore) Send(ctx context.Context, req *refresh.RefreshRequest, artifact *refresh.DumpArtifact) (refresh.TransferOutcome, error) {
	loc, err := s.Upload(ctx, req, artifact)
	if err != nil {
		s.observe("failure")
		return refresh.TransferOutcome{}, err
	}
	artifact.Location = loc

	if err := s.Download(ctx, req, artifact, loc); err != nil {
		s.observe("failure")
		return refresh.TransferOutcome{}, err
	}

	s.observe("success")
	return refresh.TransferOutcome{Completed: true, Strategy: s.Name()}, nil
}

// Verify checks the dump at its current location: object metadata when
// it sits in the bucket, a host stat once it has been placed.
func (s *ObjectStore) Verify(ctx context.Context, artifact *refresh.DumpArtifact, atHost string) (bool, error) {
	if artifact.Location.Kind == refresh.LocationObjectStore {
		info, err := s.bucket.Stat(ctx, artifact.Location.Key)
		if err != nil {
			return false, err
		}
		if artifact.SizeBytes > 0 && info.SizeBytes != artifact.SizeBytes {
			return false, nil
		}
		return info.SizeBytes > 0, nil
	}

	size, err := s.files.Stat(ctx, atHost, artifact.Location.Path)
	if err != nil {
		return false, err
	}
	return size > 0 && (artifact.SizeBytes == 0 || size == artifact.SizeBytes), nil
}

// Cleanup removes the spool copy and, when requested, the staged object
// and the source-side dump.
func (s *ObjectStore) Cleanup(ctx context.Context, req *refresh.RefreshRequest, artifact *refresh.DumpArtifact) error {
	if err := os.Remove(s.spoolPath(artifact)); err != nil && !os.IsNotExist(err) {
		s.logger.Warnf("failed to remove spool copy: %v", err)
	}

	if req.CleanupObject {
		if err := s.bucket.Remove(ctx, objectKey(req, artifact)); err != nil {
			return fmt.Errorf("remove staged object: %w", err)
		}
	}

	if req.CleanupArtifact {
		if err := s.files.Remove(ctx, req.Source.Host, sourcePath(req, artifact)); err != nil {
			return fmt.Errorf("remove source dump: %w", err)
		}
	}
	return nil
}

func (s *ObjectStore) observe(outcome string) {
	s.metrics.TransferAttempt(s.Name(), outcome)
}
