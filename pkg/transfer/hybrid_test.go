package transfer

import (
	"context"
	"path"
	"testing"

	"github.com/schemaflow/schemaflow/pkg/refresh"
	"github.com/schemaflow/schemaflow/pkg/telemetry"
)

func newHybridUnderTest(files *fakeFiles, bucket *fakeBucket, spool string) *Hybrid {
	object := newObjectStoreUnderTest(files, bucket, spool)
	direct := NewDirect(files, spool, telemetry.NewNopLogger(), nil)
	return NewHybrid(object, direct, telemetry.NewNopLogger(), nil)
}

func TestHybridSendBothPathsSucceed(t *testing.T) {
	files := newFakeFiles()
	bucket := newFakeBucket()
	req := testRequest("/u01/dumps")
	req.Method = refresh.TransferHybrid
	files.put(req.Source.Host, path.Join(req.WorkDir, req.DumpName()), []byte("dump payload"))

	hybrid := newHybridUnderTest(files, bucket, t.TempDir())
	artifact := &refresh.DumpArtifact{Name: req.DumpName(), SourceHost: req.Source.Host}

	outcome, err := hybrid.Send(context.Background(), req, artifact)
	if err != nil {
		t.Fatalf("Send: %v", err)
	}
	if !outcome.Completed || outcome.Strategy != "hybrid" {
		t.Errorf("outcome = %+v, want completed hybrid", outcome)
	}
	if outcome.Warning != "" {
		t.Errorf("warning = %q, want none", outcome.Warning)
	}

	// Durable copy in the bucket and a local copy on the target.
	key := req.SourceSchema + "/" + req.DumpName()
	if exists, _ := bucket.Exists(context.Background(), key); !exists {
		t.Error("object-store copy must exist")
	}
	if !files.has(req.Target.Host, path.Join(req.WorkDir, req.DumpName())) {
		t.Error("target host copy must exist")
	}
}

func TestHybridUploadFailureIsFatal(t *testing.T) {
	files := newFakeFiles()
	bucket := newFakeBucket()
	bucket.uploadErrs = []error{permanentErr("upload")}

	req := testRequest("/u01/dumps")
	req.ObjectStoreSufficient = true // irrelevant: upload failure is always fatal
	files.put(req.Source.Host, path.Join(req.WorkDir, req.DumpName()), []byte("dump"))

	hybrid := newHybridUnderTest(files, bucket, t.TempDir())
	artifact := &refresh.DumpArtifact{Name: req.DumpName(), SourceHost: req.Source.Host}

	if _, err := hybrid.Send(context.Background(), req, artifact); err == nil {
		t.Fatal("object-store upload failure must be fatal")
	}
}

func TestHybridDirectFailureToleratedWhenSufficient(t *testing.T) {
	files := newFakeFiles()
	bucket := newFakeBucket()
	req := testRequest("/u01/dumps")
	req.ObjectStoreSufficient = true
	files.put(req.Source.Host, path.Join(req.WorkDir, req.DumpName()), []byte("dump payload"))

	hybrid := newHybridUnderTest(files, bucket, t.TempDir())

	// The direct half performs the first push of the run; fail exactly
	// that one so the download half's push still succeeds.
	files.pushErrs = []error{permanentErr("push")}

	artifact := &refresh.DumpArtifact{Name: req.DumpName(), SourceHost: req.Source.Host}
	outcome, err := hybrid.Send(context.Background(), req, artifact)
	if err != nil {
		t.Fatalf("Send: %v", err)
	}
	if !outcome.Completed {
		t.Error("outcome must be completed")
	}
	if outcome.Warning == "" {
		t.Error("tolerated direct failure must surface as a warning")
	}
	if !files.has(req.Target.Host, path.Join(req.WorkDir, req.DumpName())) {
		t.Error("dump must be placed on target from the object store")
	}
}

func TestHybridDirectFailureFatalWhenNotSufficient(t *testing.T) {
	files := newFakeFiles()
	bucket := newFakeBucket()
	req := testRequest("/u01/dumps")
	req.ObjectStoreSufficient = false
	files.put(req.Source.Host, path.Join(req.WorkDir, req.DumpName()), []byte("dump payload"))

	hybrid := newHybridUnderTest(files, bucket, t.TempDir())
	files.fail["push"] = permanentErr("push")

	artifact := &refresh.DumpArtifact{Name: req.DumpName(), SourceHost: req.Source.Host}
	if _, err := hybrid.Send(context.Background(), req, artifact); err == nil {
		t.Fatal("direct failure must be fatal without the sufficiency flag")
	}
}
