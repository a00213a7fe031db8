package transfer

import (
	"context"
	"fmt"
	"path"
	"testing"
	"time"

	"github.com/schemaflow/schemaflow/pkg/objectstore"
	"github.com/schemaflow/schemaflow/pkg/refresh"
	"github.com/schemaflow/schemaflow/pkg/telemetry"
)

func fastRetry() RetryPolicy {
	return RetryPolicy{MaxAttempts: 3, BaseDelay: time.Millisecond, MaxDelay: 2 * time.Millisecond}
}

func transientErr(op string) error {
	return &objectstore.Error{Op: op, Code: "SlowDown", Retryable: true, Err: fmt.Errorf("throttled")}
}

func permanentErr(op string) error {
	return &objectstore.Error{Op: op, Code: "AccessDenied", Err: fmt.Errorf("denied")}
}

func newObjectStoreUnderTest(files *fakeFiles, bucket *fakeBucket, spool string) *ObjectStore {
	return NewObjectStore(files, bucket, "refresh-dumps", spool, fastRetry(), telemetry.NewNopLogger(), nil)
}

func TestObjectStoreSend(t *testing.T) {
	files := newFakeFiles()
	bucket := newFakeBucket()
	req := testRequest("/u01/dumps")
	req.Method = refresh.TransferObjectStore
	content := []byte("dump payload")
	files.put(req.Source.Host, path.Join(req.WorkDir, req.DumpName()), content)

	strategy := newObjectStoreUnderTest(files, bucket, t.TempDir())
	artifact := &refresh.DumpArtifact{Name: req.DumpName(), SourceHost: req.Source.Host}

	outcome, err := strategy.Send(context.Background(), req, artifact)
	if err != nil {
		t.Fatalf("Send: %v", err)
	}
	if !outcome.Completed || outcome.Strategy != "objectstore" {
		t.Errorf("outcome = %+v, want completed objectstore", outcome)
	}

	if !files.has(req.Target.Host, path.Join(req.WorkDir, req.DumpName())) {
		t.Error("dump must land in target working directory")
	}
	if artifact.Location.Kind != refresh.LocationOnHost {
		t.Errorf("final location = %+v, want on-host", artifact.Location)
	}

	key := req.SourceSchema + "/" + req.DumpName()
	if exists, _ := bucket.Exists(context.Background(), key); !exists {
		t.Errorf("staged object %s must remain in bucket", key)
	}
}

func TestObjectStoreRetriesTransientUpload(t *testing.T) {
	files := newFakeFiles()
	bucket := newFakeBucket()
	bucket.uploadErrs = []error{transientErr("upload"), transientErr("upload")}

	req := testRequest("/u01/dumps")
	files.put(req.Source.Host, path.Join(req.WorkDir, req.DumpName()), []byte("dump"))

	strategy := newObjectStoreUnderTest(files, bucket, t.TempDir())
	artifact := &refresh.DumpArtifact{Name: req.DumpName(), SourceHost: req.Source.Host}

	if _, err := strategy.Upload(context.Background(), req, artifact); err != nil {
		t.Fatalf("Upload after transient failures: %v", err)
	}
	if bucket.uploadCalls != 3 {
		t.Errorf("upload attempts = %d, want 3 (two transient failures then success)", bucket.uploadCalls)
	}
}

func TestObjectStoreDoesNotRetryPermanentUpload(t *testing.T) {
	files := newFakeFiles()
	bucket := newFakeBucket()
	bucket.uploadErrs = []error{permanentErr("upload")}

	req := testRequest("/u01/dumps")
	files.put(req.Source.Host, path.Join(req.WorkDir, req.DumpName()), []byte("dump"))

	strategy := newObjectStoreUnderTest(files, bucket, t.TempDir())
	artifact := &refresh.DumpArtifact{Name: req.DumpName(), SourceHost: req.Source.Host}

	if _, err := strategy.Upload(context.Background(), req, artifact); err == nil {
		t.Fatal("expected permanent error to surface")
	}
	if bucket.uploadCalls != 1 {
		t.Errorf("upload attempts = %d, want exactly 1 for a non-transient error", bucket.uploadCalls)
	}
}

func TestObjectStoreRetryExhaustion(t *testing.T) {
	files := newFakeFiles()
	bucket := newFakeBucket()
	bucket.uploadErrs = []error{transientErr("upload"), transientErr("upload"), transientErr("upload")}

	req := testRequest("/u01/dumps")
	files.put(req.Source.Host, path.Join(req.WorkDir, req.DumpName()), []byte("dump"))

	strategy := newObjectStoreUnderTest(files, bucket, t.TempDir())
	artifact := &refresh.DumpArtifact{Name: req.DumpName(), SourceHost: req.Source.Host}

	if _, err := strategy.Upload(context.Background(), req, artifact); err == nil {
		t.Fatal("expected error after attempt ceiling")
	}
	if bucket.uploadCalls != 3 {
		t.Errorf("upload attempts = %d, want attempt ceiling 3", bucket.uploadCalls)
	}
}

func TestObjectStoreCleanupRemovesObject(t *testing.T) {
	files := newFakeFiles()
	bucket := newFakeBucket()
	req := testRequest("/u01/dumps")
	req.CleanupObject = true
	files.put(req.Source.Host, path.Join(req.WorkDir, req.DumpName()), []byte("dump"))

	strategy := newObjectStoreUnderTest(files, bucket, t.TempDir())
	artifact := &refresh.DumpArtifact{Name: req.DumpName(), SourceHost: req.Source.Host}

	if _, err := strategy.Send(context.Background(), req, artifact); err != nil {
		t.Fatalf("Send: %v", err)
	}
	if err := strategy.Cleanup(context.Background(), req, artifact); err != nil {
		t.Fatalf("Cleanup: %v", err)
	}

	key := req.SourceSchema + "/" + req.DumpName()
	if exists, _ := bucket.Exists(context.Background(), key); exists {
		t.Error("staged object must be removed when cleanup is requested")
	}
}

func TestRetryPolicyBackoffCapped(t *testing.T) {
	policy := RetryPolicy{MaxAttempts: 10, BaseDelay: time.Second, MaxDelay: 5 * time.Second}

	if got := policy.backoff(0); got != time.Second {
		t.Errorf("backoff(0) = %s, want 1s", got)
	}
	if got := policy.backoff(1); got != 2*time.Second {
		t.Errorf("backoff(1) = %s, want 2s", got)
	}
	if got := policy.backoff(5); got != 5*time.Second {
		t.Errorf("backoff(5) = %s, want capped 5s", got)
	}
	// Shift overflow must still land on the cap.
	if got := policy.backoff(70); got != 5*time.Second {
		t.Errorf("backoff(70) = %s, want capped 5s", got)
	}
}
