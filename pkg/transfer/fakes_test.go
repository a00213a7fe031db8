package transfer

import (
	"context"
	"fmt"
	"os"
	"sync"

	"github.com/schemaflow/schemaflow/pkg/objectstore"
	"github.com/schemaflow/schemaflow/pkg/refresh"
	"github.com/schemaflow/schemaflow/pkg/transports/ssh"
)

// fakeFiles is an in-memory HostFiles keyed by "host:path".
type fakeFiles struct {
	mu    sync.Mutex
	data  map[string][]byte
	fail  map[string]error // op keys: "pull", "push", "stat", "remove"
	calls map[string]int

	// pushErrs are consumed one per push attempt before the persistent
	// fail map is consulted; nil entries mean success.
	pushErrs []error
}

func newFakeFiles() *fakeFiles {
	return &fakeFiles{
		data:  make(map[string][]byte),
		fail:  make(map[string]error),
		calls: make(map[string]int),
	}
}

func (f *fakeFiles) put(host, path string, content []byte) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.data[host+":"+path] = content
}

func (f *fakeFiles) has(host, path string) bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	_, ok := f.data[host+":"+path]
	return ok
}

func (f *fakeFiles) count(op string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls[op]
}

func (f *fakeFiles) Pull(ctx context.Context, host, remotePath, localPath string) (int64, error) {
	f.mu.Lock()
	f.calls["pull"]++
	err := f.fail["pull"]
	content, ok := f.data[host+":"+remotePath]
	f.mu.Unlock()

	if err != nil {
		return 0, err
	}
	if !ok {
		return 0, fmt.Errorf("no such file %s:%s", host, remotePath)
	}
	if werr := os.WriteFile(localPath, content, 0644); werr != nil {
		return 0, werr
	}
	return int64(len(content)), nil
}

func (f *fakeFiles) Push(ctx context.Context, host, localPath, remotePath string) (int64, error) {
	f.mu.Lock()
	attempt := f.calls["push"]
	f.calls["push"]++
	err := f.fail["push"]
	if err == nil && attempt < len(f.pushErrs) {
		err = f.pushErrs[attempt]
	}
	f.mu.Unlock()

	if err != nil {
		return 0, err
	}
	content, rerr := os.ReadFile(localPath)
	if rerr != nil {
		return 0, rerr
	}
	f.mu.Lock()
	f.data[host+":"+remotePath] = content
	f.mu.Unlock()
	return int64(len(content)), nil
}

func (f *fakeFiles) Stat(ctx context.Context, host, remotePath string) (int64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls["stat"]++
	if err := f.fail["stat"]; err != nil {
		return 0, err
	}
	content, ok := f.data[host+":"+remotePath]
	if !ok {
		return 0, fmt.Errorf("no such file %s:%s", host, remotePath)
	}
	return int64(len(content)), nil
}

func (f *fakeFiles) Checksum(ctx context.Context, host, remotePath string) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls["checksum"]++
	content, ok := f.data[host+":"+remotePath]
	if !ok {
		return "", fmt.Errorf("no such file %s:%s", host, remotePath)
	}
	tmp, err := os.CreateTemp("", "sum")
	if err != nil {
		return "", err
	}
	defer os.Remove(tmp.Name())
	if _, err := tmp.Write(content); err != nil {
		return "", err
	}
	tmp.Close()
	return ssh.LocalChecksum(tmp.Name())
}

func (f *fakeFiles) Remove(ctx context.Context, host, remotePath string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls["remove"]++
	if err := f.fail["remove"]; err != nil {
		return err
	}
	delete(f.data, host+":"+remotePath)
	return nil
}

// fakeBucket is an in-memory BucketClient.
type fakeBucket struct {
	mu          sync.Mutex
	objects     map[string][]byte
	uploadCalls int
	// uploadErrs are consumed one per upload attempt; nil means success.
	uploadErrs []error
}

func newFakeBucket() *fakeBucket {
	return &fakeBucket{objects: make(map[string][]byte)}
}

func (b *fakeBucket) EnsureBucket(ctx context.Context) error { return nil }

func (b *fakeBucket) Upload(ctx context.Context, objectName, filePath string) (int64, error) {
	b.mu.Lock()
	attempt := b.uploadCalls
	b.uploadCalls++
	var err error
	if attempt < len(b.uploadErrs) {
		err = b.uploadErrs[attempt]
	}
	b.mu.Unlock()

	if err != nil {
		return 0, err
	}
	content, rerr := os.ReadFile(filePath)
	if rerr != nil {
		return 0, rerr
	}
	b.mu.Lock()
	b.objects[objectName] = content
	b.mu.Unlock()
	return int64(len(content)), nil
}

func (b *fakeBucket) Download(ctx context.Context, objectName, filePath string) (int64, error) {
	b.mu.Lock()
	content, ok := b.objects[objectName]
	b.mu.Unlock()
	if !ok {
		return 0, &objectstore.Error{Op: "download", Code: "NoSuchKey", Err: fmt.Errorf("no such object %s", objectName)}
	}
	if err := os.WriteFile(filePath, content, 0644); err != nil {
		return 0, err
	}
	return int64(len(content)), nil
}

func (b *fakeBucket) Stat(ctx context.Context, objectName string) (objectstore.ObjectInfo, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	content, ok := b.objects[objectName]
	if !ok {
		return objectstore.ObjectInfo{}, &objectstore.Error{Op: "stat", Code: "NoSuchKey", Err: fmt.Errorf("no such object %s", objectName)}
	}
	return objectstore.ObjectInfo{Key: objectName, SizeBytes: int64(len(content))}, nil
}

func (b *fakeBucket) Exists(ctx context.Context, objectName string) (bool, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	_, ok := b.objects[objectName]
	return ok, nil
}

func (b *fakeBucket) Remove(ctx context.Context, objectName string) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	delete(b.objects, objectName)
	return nil
}

// fakeTransfer is a scripted refresh.Transfer for coordinator tests.
type fakeTransfer struct {
	mu        sync.Mutex
	name      string
	sendErr   error
	sendCalls int
}

func (t *fakeTransfer) Name() string { return t.name }

func (t *fakeTransfer) Send(ctx context.Context, req *refresh.RefreshRequest, artifact *refresh.DumpArtifact) (refresh.TransferOutcome, error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.sendCalls++
	if t.sendErr != nil {
		return refresh.TransferOutcome{}, t.sendErr
	}
	return refresh.TransferOutcome{Completed: true, Strategy: t.name}, nil
}

func (t *fakeTransfer) Verify(ctx context.Context, artifact *refresh.DumpArtifact, atHost string) (bool, error) {
	return true, nil
}

func (t *fakeTransfer) Cleanup(ctx context.Context, req *refresh.RefreshRequest, artifact *refresh.DumpArtifact) error {
	return nil
}

func (t *fakeTransfer) calls() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.sendCalls
}

// testRequest builds a full-mode request between two hosts.
func testRequest(workDir string) *refresh.RefreshRequest {
	return &refresh.RefreshRequest{
		Source:            refresh.Endpoint{Host: "src.example.com", Port: 1521, Instance: "SRC1", Service: "src.svc"},
		Target:            refresh.Endpoint{Host: "dst.example.com", Port: 1521, Instance: "DST1", Service: "dst.svc"},
		SourceSchema:      "APPDATA",
		TargetSchema:      "APPDATA_TEST",
		Mode:              refresh.ModeFull,
		Method:            refresh.TransferDirect,
		Parallelism:       2,
		WorkDir:           workDir,
		SourceCredentials: "vault://src",
		TargetCredentials: "vault://dst",
	}
}
