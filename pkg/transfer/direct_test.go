package transfer

import (
	"context"
	"path"
	"testing"

	"github.com/schemaflow/schemaflow/pkg/refresh"
	"github.com/schemaflow/schemaflow/pkg/telemetry"
)

func TestDirectSend(t *testing.T) {
	files := newFakeFiles()
	req := testRequest("/u01/dumps")
	content := []byte("dump file contents")
	files.put(req.Source.Host, path.Join(req.WorkDir, req.DumpName()), content)

	direct := NewDirect(files, t.TempDir(), telemetry.NewNopLogger(), nil)
	artifact := &refresh.DumpArtifact{
		Name:       req.DumpName(),
		SourceHost: req.Source.Host,
		Location:   refresh.OnHost(req.Source.Host, path.Join(req.WorkDir, req.DumpName())),
	}

	outcome, err := direct.Send(context.Background(), req, artifact)
	if err != nil {
		t.Fatalf("Send: %v", err)
	}
	if !outcome.Completed || outcome.Strategy != "direct" {
		t.Errorf("outcome = %+v, want completed direct", outcome)
	}

	wantPath := path.Join(req.WorkDir, req.DumpName())
	if !files.has(req.Target.Host, wantPath) {
		t.Fatalf("dump not present at %s:%s", req.Target.Host, wantPath)
	}
	if artifact.Location.Kind != refresh.LocationOnHost || artifact.Location.Host != req.Target.Host {
		t.Errorf("location = %+v, want on-host at target", artifact.Location)
	}
	if artifact.SizeBytes != int64(len(content)) {
		t.Errorf("size = %d, want %d", artifact.SizeBytes, len(content))
	}
	if artifact.Checksum == "" {
		t.Error("checksum must be recorded during staging")
	}
}

func TestDirectSendSourceMissing(t *testing.T) {
	files := newFakeFiles()
	req := testRequest("/u01/dumps")

	direct := NewDirect(files, t.TempDir(), telemetry.NewNopLogger(), nil)
	artifact := &refresh.DumpArtifact{Name: req.DumpName(), SourceHost: req.Source.Host}

	if _, err := direct.Send(context.Background(), req, artifact); err == nil {
		t.Fatal("expected error when source dump is missing")
	}
}

func TestDirectVerify(t *testing.T) {
	files := newFakeFiles()
	req := testRequest("/u01/dumps")
	content := []byte("dump file contents")
	remotePath := path.Join(req.WorkDir, req.DumpName())
	files.put(req.Target.Host, remotePath, content)

	direct := NewDirect(files, t.TempDir(), telemetry.NewNopLogger(), nil)

	artifact := &refresh.DumpArtifact{
		Name:      req.DumpName(),
		SizeBytes: int64(len(content)),
		Location:  refresh.OnHost(req.Target.Host, remotePath),
	}

	ok, err := direct.Verify(context.Background(), artifact, req.Target.Host)
	if err != nil {
		t.Fatalf("Verify: %v", err)
	}
	if !ok {
		t.Error("verify must pass for matching size")
	}

	artifact.SizeBytes = int64(len(content)) + 1
	ok, err = direct.Verify(context.Background(), artifact, req.Target.Host)
	if err != nil {
		t.Fatalf("Verify: %v", err)
	}
	if ok {
		t.Error("verify must fail on size mismatch")
	}
}

func TestDirectCleanup(t *testing.T) {
	files := newFakeFiles()
	req := testRequest("/u01/dumps")
	req.CleanupArtifact = true
	srcPath := path.Join(req.WorkDir, req.DumpName())
	files.put(req.Source.Host, srcPath, []byte("dump"))

	direct := NewDirect(files, t.TempDir(), telemetry.NewNopLogger(), nil)
	artifact := &refresh.DumpArtifact{Name: req.DumpName(), SourceHost: req.Source.Host}

	if err := direct.Cleanup(context.Background(), req, artifact); err != nil {
		t.Fatalf("Cleanup: %v", err)
	}
	if files.has(req.Source.Host, srcPath) {
		t.Error("source dump must be removed when cleanup is requested")
	}
}
