// Package transfer implements the strategies that move a dump artifact
// from the source host to the target host: a direct host-to-host copy,
// an object-storage relay, and a hybrid of both, plus the coordinator
// that falls back from a failed primary strategy to a secondary one.
package transfer

import (
	"context"
	"errors"
	"time"

	"github.com/schemaflow/schemaflow/pkg/objectstore"
	"github.com/schemaflow/schemaflow/pkg/telemetry"
	"github.com/schemaflow/schemaflow/pkg/transports/ssh"
)

// HostFiles stages single files between database hosts and the control
// node. Implemented over SFTP in production; faked in tests.
type HostFiles interface {
	// Pull copies host:remotePath to localPath. Returns bytes copied.
	Pull(ctx context.Context, host, remotePath, localPath string) (int64, error)

	// Push copies localPath to host:remotePath. Returns bytes copied.
	Push(ctx context.Context, host, localPath, remotePath string) (int64, error)

	// Stat returns the size of host:remotePath.
	Stat(ctx context.Context, host, remotePath string) (int64, error)

	// Checksum returns the SHA-256 hex digest of host:remotePath.
	Checksum(ctx context.Context, host, remotePath string) (string, error)

	// Remove deletes host:remotePath. Missing files are not an error.
	Remove(ctx context.Context, host, remotePath string) error
}

// BucketClient is the object-store surface the strategies use.
type BucketClient interface {
	EnsureBucket(ctx context.Context) error
	Upload(ctx context.Context, objectName, filePath string) (int64, error)
	Download(ctx context.Context, objectName, filePath string) (int64, error)
	Stat(ctx context.Context, objectName string) (objectstore.ObjectInfo, error)
	Exists(ctx context.Context, objectName string) (bool, error)
	Remove(ctx context.Context, objectName string) error
}

// RetryPolicy bounds the retry loop applied to transient transfer
// failures. Non-transient failures are never retried.
type RetryPolicy struct {
	// MaxAttempts is the total attempt ceiling, first try included.
	MaxAttempts int

	// BaseDelay is the delay before the first retry.
	BaseDelay time.Duration

	// MaxDelay caps the exponential growth.
	MaxDelay time.Duration
}

// DefaultRetryPolicy returns the retry policy used in production.
func DefaultRetryPolicy() RetryPolicy {
	return RetryPolicy{
		MaxAttempts: 4,
		BaseDelay:   2 * time.Second,
		MaxDelay:    30 * time.Second,
	}
}

// backoff returns the delay before the given retry (zero-based).
func (p RetryPolicy) backoff(attempt int) time.Duration {
	delay := p.BaseDelay * (1 << attempt)
	if delay > p.MaxDelay || delay <= 0 {
		return p.MaxDelay
	}
	return delay
}

// isTransient reports whether an error is a classified transient
// transport condition worth retrying.
func isTransient(err error) bool {
	if objectstore.IsRetryable(err) {
		return true
	}
	var te *ssh.TransportError
	return errors.As(err, &te) && te.Temporary()
}

// retryTransient runs fn up to the policy's attempt ceiling, sleeping
// with capped exponential backoff between attempts. Only transient
// errors are retried; anything else surfaces immediately.
func retryTransient(ctx context.Context, policy RetryPolicy, logger *telemetry.Logger, op string, fn func() error) error {
	attempts := policy.MaxAttempts
	if attempts < 1 {
		attempts = 1
	}

	var lastErr error
	for attempt := 0; attempt < attempts; attempt++ {
		if attempt > 0 {
			delay := policy.backoff(attempt - 1)
			logger.Warnf("%s failed transiently, retrying in %s (attempt %d/%d): %v",
				op, delay, attempt+1, attempts, lastErr)
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(delay):
			}
		}

		lastErr = fn()
		if lastErr == nil {
			return nil
		}
		if !isTransient(lastErr) {
			return lastErr
		}
	}
	return lastErr
}
