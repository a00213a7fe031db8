package dbtools

import (
	"context"
	"strings"
	"sync"
	"testing"

	"github.com/schemaflow/schemaflow/pkg/refresh"
	"github.com/schemaflow/schemaflow/pkg/telemetry"
)

// fakeRunner records commands and plays back scripted results.
type fakeRunner struct {
	mu     sync.Mutex
	hosts  []string
	cmds   []string
	result refresh.RawResult
	err    error
}

func (r *fakeRunner) RunOnHost(ctx context.Context, host, cmd string) (refresh.RawResult, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.hosts = append(r.hosts, host)
	r.cmds = append(r.cmds, cmd)
	return r.result, r.err
}

func (r *fakeRunner) lastCmd() string {
	r.mu.Lock()
	defer r.mu.Unlock()
	if len(r.cmds) == 0 {
		return ""
	}
	return r.cmds[len(r.cmds)-1]
}

func (r *fakeRunner) lastHost() string {
	r.mu.Lock()
	defer r.mu.Unlock()
	if len(r.hosts) == 0 {
		return ""
	}
	return r.hosts[len(r.hosts)-1]
}

// fakeResolver returns a fixed login for any reference.
type fakeResolver struct{}

func (fakeResolver) Resolve(ctx context.Context, ref refresh.CredentialRef) (Credential, error) {
	return Credential{Username: "system", Password: "secret"}, nil
}

func testRequest() *refresh.RefreshRequest {
	return &refresh.RefreshRequest{
		Source:            refresh.Endpoint{Host: "src.example.com", Port: 1521, Instance: "SRC1", Service: "src.svc"},
		Target:            refresh.Endpoint{Host: "dst.example.com", Port: 1521, Instance: "DST1", Service: "dst.svc"},
		SourceSchema:      "APPDATA",
		TargetSchema:      "APPDATA_TEST",
		Mode:              refresh.ModeFull,
		Method:            refresh.TransferDirect,
		Parallelism:       4,
		WorkDir:           "/u01/dumps",
		SourceCredentials: "env://SRC",
		TargetCredentials: "env://DST",
	}
}

func TestDataPumpExportCommand(t *testing.T) {
	runner := &fakeRunner{result: refresh.RawResult{ExitStatus: 0, Output: "Export completed"}}
	pump := NewDataPump(runner, fakeResolver{}, Config{}, telemetry.NewNopLogger())

	req := testRequest()
	artifact := &refresh.DumpArtifact{Name: req.DumpName()}

	result, err := pump.Export(context.Background(), req, artifact)
	if err != nil {
		t.Fatalf("Export: %v", err)
	}
	if result.ExitStatus != 0 {
		t.Errorf("exit status = %d, want 0", result.ExitStatus)
	}
	if runner.lastHost() != req.Source.Host {
		t.Errorf("ran on %s, want source host", runner.lastHost())
	}

	cmd := runner.lastCmd()
	for _, want := range []string{
		"expdp",
		"system/secret@//src.example.com:1521/src.svc",
		"schemas=APPDATA",
		"dumpfile=APPDATA_refresh.dmp",
		"parallel=4",
		"compression=all",
	} {
		if !strings.Contains(cmd, want) {
			t.Errorf("export command missing %q: %s", want, cmd)
		}
	}
}

func TestDataPumpImportCommand(t *testing.T) {
	runner := &fakeRunner{result: refresh.RawResult{ExitStatus: 0, Output: "Import completed"}}
	pump := NewDataPump(runner, fakeResolver{}, Config{}, telemetry.NewNopLogger())

	req := testRequest()
	artifact := &refresh.DumpArtifact{Name: req.DumpName()}

	if _, err := pump.Import(context.Background(), req, artifact); err != nil {
		t.Fatalf("Import: %v", err)
	}
	if runner.lastHost() != req.Target.Host {
		t.Errorf("ran on %s, want target host", runner.lastHost())
	}

	cmd := runner.lastCmd()
	for _, want := range []string{
		"impdp",
		"remap_schema=APPDATA:APPDATA_TEST",
		"table_exists_action=replace",
		"parallel=4",
	} {
		if !strings.Contains(cmd, want) {
			t.Errorf("import command missing %q: %s", want, cmd)
		}
	}
}

func TestSQLRunnerDropSchema(t *testing.T) {
	runner := &fakeRunner{result: refresh.RawResult{ExitStatus: 0, Output: "User dropped."}}
	sqlr := NewSQLRunner(runner, fakeResolver{}, Config{}, telemetry.NewNopLogger())

	req := testRequest()
	if _, err := sqlr.DropSchema(context.Background(), req); err != nil {
		t.Fatalf("DropSchema: %v", err)
	}
	if runner.lastHost() != req.Target.Host {
		t.Errorf("ran on %s, want target host", runner.lastHost())
	}

	cmd := runner.lastCmd()
	if !strings.Contains(cmd, "drop user APPDATA_TEST cascade;") {
		t.Errorf("drop command missing cascade drop: %s", cmd)
	}
	if !strings.Contains(cmd, "whenever sqlerror exit") {
		t.Errorf("drop command must map SQL errors onto the exit status: %s", cmd)
	}
}

func TestSQLRunnerKillSessions(t *testing.T) {
	runner := &fakeRunner{result: refresh.RawResult{ExitStatus: 0}}
	sqlr := NewSQLRunner(runner, fakeResolver{}, Config{}, telemetry.NewNopLogger())

	if _, err := sqlr.KillSessions(context.Background(), testRequest()); err != nil {
		t.Fatalf("KillSessions: %v", err)
	}
	if !strings.Contains(runner.lastCmd(), "kill session") {
		t.Errorf("kill command missing session termination: %s", runner.lastCmd())
	}
}

func TestSQLRunnerCountObjects(t *testing.T) {
	runner := &fakeRunner{result: refresh.RawResult{
		ExitStatus: 0,
		Output:     "\n  COUNT(*)\n----------\n        42\n",
	}}
	sqlr := NewSQLRunner(runner, fakeResolver{}, Config{}, telemetry.NewNopLogger())

	result, count, err := sqlr.CountObjects(context.Background(), testRequest())
	if err != nil {
		t.Fatalf("CountObjects: %v", err)
	}
	if result.ExitStatus != 0 {
		t.Errorf("exit status = %d, want 0", result.ExitStatus)
	}
	if count != 42 {
		t.Errorf("count = %d, want 42", count)
	}
}

func TestSQLRunnerCountObjectsFailedQuery(t *testing.T) {
	runner := &fakeRunner{result: refresh.RawResult{ExitStatus: 1, Output: "ORA-01017: invalid username/password"}}
	sqlr := NewSQLRunner(runner, fakeResolver{}, Config{}, telemetry.NewNopLogger())

	result, count, err := sqlr.CountObjects(context.Background(), testRequest())
	if err != nil {
		t.Fatalf("CountObjects: %v", err)
	}
	if result.ExitStatus == 0 {
		t.Error("exit status must be preserved for the classifier")
	}
	if count != 0 {
		t.Errorf("count = %d, want 0 on failed query", count)
	}
}

func TestParseCount(t *testing.T) {
	tests := []struct {
		name    string
		output  string
		want    int
		wantErr bool
	}{
		{name: "plain number", output: "42", want: 42},
		{name: "padded number", output: "      131\n", want: 131},
		{name: "with banner lines", output: "  COUNT(*)\n----------\n         0\n", want: 0},
		{name: "no number", output: "ORA-00942: table or view does not exist", wantErr: true},
		{name: "empty", output: "", wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := parseCount(tt.output)
			if tt.wantErr {
				if err == nil {
					t.Fatalf("expected error, got %d", got)
				}
				return
			}
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if got != tt.want {
				t.Errorf("count = %d, want %d", got, tt.want)
			}
		})
	}
}

func TestEnvCredentialResolver(t *testing.T) {
	t.Setenv("SRC_USER", "system")
	t.Setenv("SRC_PASSWORD", "changeit")

	resolver := NewEnvCredentialResolver()

	cred, err := resolver.Resolve(context.Background(), "env://SRC")
	if err != nil {
		t.Fatalf("Resolve: %v", err)
	}
	if cred.Username != "system" || cred.Password != "changeit" {
		t.Errorf("resolved %s/*, want system/*", cred.Username)
	}

	if _, err := resolver.Resolve(context.Background(), "vault://SRC"); err == nil {
		t.Error("unknown scheme must fail")
	}

	if _, err := resolver.Resolve(context.Background(), "env://MISSING"); err == nil {
		t.Error("unset variables must fail")
	}
}

func TestCredentialRefNeverFormatsSecret(t *testing.T) {
	ref := refresh.CredentialRef("env://SRC")
	if s := ref.String(); strings.Contains(s, "SRC") {
		t.Errorf("formatted credential ref leaks the handle: %s", s)
	}
}
