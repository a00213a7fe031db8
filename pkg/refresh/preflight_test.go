package refresh

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"

	"github.com/schemaflow/schemaflow/pkg/telemetry"
)

// scriptedProbe fails reachability or free-space checks on demand and
// records which hosts were consulted.
type scriptedProbe struct {
	mu sync.Mutex

	unreachable map[string]error
	free        map[string]int64
	freeErr     error

	reached []string
	spaced  []string
}

func newScriptedProbe() *scriptedProbe {
	return &scriptedProbe{
		unreachable: map[string]error{},
		free:        map[string]int64{},
	}
}

func (p *scriptedProbe) Reachable(_ context.Context, endpoint Endpoint) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.reached = append(p.reached, endpoint.Host)
	return p.unreachable[endpoint.Host]
}

func (p *scriptedProbe) FreeSpace(_ context.Context, host, _ string) (int64, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.spaced = append(p.spaced, host)
	if p.freeErr != nil {
		return 0, p.freeErr
	}
	if free, ok := p.free[host]; ok {
		return free, nil
	}
	return 100 << 30, nil
}

// scriptedPolicy refuses every destructive request with a fixed error.
type scriptedPolicy struct {
	err   error
	calls int
}

func (p *scriptedPolicy) CheckDestructive(_ context.Context, _ *RefreshRequest) error {
	p.calls++
	return p.err
}

func newPreflight(probe HostProbe, policy SafetyPolicy) *PreflightValidator {
	return NewPreflightValidator(probe, policy, 0, telemetry.NewNopLogger())
}

func TestPreflightAllChecksPass(t *testing.T) {
	pf := newPreflight(newScriptedProbe(), &scriptedPolicy{})

	result, checks := pf.Run(context.Background(), newTestRequest())
	if result.Status != StatusSuccess {
		t.Fatalf("status = %s, diagnostics: %s", result.Status, result.Diagnostics)
	}
	for _, c := range checks {
		if !c.Passed {
			t.Errorf("check %s failed: %s", c.Name, c.Detail)
		}
	}
}

func TestPreflightRejectsInvalidRequest(t *testing.T) {
	req := newTestRequest()
	req.TargetSchema = ""

	pf := newPreflight(newScriptedProbe(), nil)
	result, _ := pf.Run(context.Background(), req)
	if result.Status != StatusFatal {
		t.Fatalf("status = %s, want fatal", result.Status)
	}
	if !strings.Contains(result.Diagnostics, "request-fields") {
		t.Errorf("diagnostics = %q, want request-fields failure", result.Diagnostics)
	}
}

func TestPreflightRejectsExcessiveParallelism(t *testing.T) {
	req := newTestRequest()
	req.Parallelism = 16

	pf := newPreflight(newScriptedProbe(), nil)
	result, _ := pf.Run(context.Background(), req)
	if result.Status != StatusFatal {
		t.Fatalf("status = %s, want fatal", result.Status)
	}
}

func TestPreflightUnreachableSource(t *testing.T) {
	probe := newScriptedProbe()
	probe.unreachable["src.example.com"] = errors.New("connection refused")

	pf := newPreflight(probe, nil)
	result, _ := pf.Run(context.Background(), newTestRequest())
	if result.Status != StatusFatal {
		t.Fatalf("status = %s, want fatal", result.Status)
	}
	if !strings.Contains(result.Diagnostics, "source-reachable") {
		t.Errorf("diagnostics = %q, want source-reachable failure", result.Diagnostics)
	}
}

func TestPreflightCollectsAllFailures(t *testing.T) {
	probe := newScriptedProbe()
	probe.unreachable["src.example.com"] = errors.New("connection refused")
	probe.unreachable["dst.example.com"] = errors.New("no route to host")

	pf := newPreflight(probe, nil)
	result, _ := pf.Run(context.Background(), newTestRequest())
	if result.Status != StatusFatal {
		t.Fatalf("status = %s, want fatal", result.Status)
	}
	// Independent checks all run; both failures surface together.
	if !strings.Contains(result.Diagnostics, "source-reachable") ||
		!strings.Contains(result.Diagnostics, "target-reachable") {
		t.Errorf("diagnostics = %q, want both reachability failures", result.Diagnostics)
	}
}

func TestPreflightInsufficientSpace(t *testing.T) {
	probe := newScriptedProbe()
	probe.free["dst.example.com"] = 10 << 20

	pf := newPreflight(probe, nil)
	result, _ := pf.Run(context.Background(), newTestRequest())
	if result.Status != StatusFatal {
		t.Fatalf("status = %s, want fatal", result.Status)
	}
	if !strings.Contains(result.Diagnostics, "working-dir-space") {
		t.Errorf("diagnostics = %q, want working-dir-space failure", result.Diagnostics)
	}
}

func TestPreflightPolicyRefusal(t *testing.T) {
	policy := &scriptedPolicy{err: NewPolicyError("policy: target schema APPDATA_TEST is protected", nil)}

	pf := newPreflight(newScriptedProbe(), policy)
	result, _ := pf.Run(context.Background(), newTestRequest())
	if result.Status != StatusFatal {
		t.Fatalf("status = %s, want fatal", result.Status)
	}
	if !strings.Contains(result.Diagnostics, "destructive-policy") {
		t.Errorf("diagnostics = %q, want destructive-policy failure", result.Diagnostics)
	}
}

func TestPreflightExportOnlySkipsTargetChecks(t *testing.T) {
	probe := newScriptedProbe()
	probe.unreachable["dst.example.com"] = errors.New("down for maintenance")
	policy := &scriptedPolicy{err: NewPolicyError("refused", nil)}

	req := newTestRequest()
	req.Mode = ModeExportOnly

	pf := newPreflight(probe, policy)
	result, _ := pf.Run(context.Background(), req)
	if result.Status != StatusSuccess {
		t.Fatalf("status = %s, diagnostics: %s", result.Status, result.Diagnostics)
	}
	if policy.calls != 0 {
		t.Errorf("policy consulted %d times for export-only", policy.calls)
	}
	for _, host := range probe.reached {
		if host == "dst.example.com" {
			t.Error("target probed for export-only")
		}
	}
	for _, host := range probe.spaced {
		if host == "dst.example.com" {
			t.Error("target free space checked for export-only")
		}
	}
}

func TestPreflightImportOnlySkipsSourceChecks(t *testing.T) {
	probe := newScriptedProbe()
	probe.unreachable["src.example.com"] = errors.New("decommissioned")

	req := newTestRequest()
	req.Mode = ModeImportOnly

	pf := newPreflight(probe, nil)
	result, _ := pf.Run(context.Background(), req)
	if result.Status != StatusSuccess {
		t.Fatalf("status = %s, diagnostics: %s", result.Status, result.Diagnostics)
	}
	for _, host := range probe.reached {
		if host == "src.example.com" {
			t.Error("source probed for import-only")
		}
	}
}

func TestPreflightFreeSpaceProbeError(t *testing.T) {
	probe := newScriptedProbe()
	probe.freeErr = errors.New("df: command not found")

	pf := newPreflight(probe, nil)
	result, _ := pf.Run(context.Background(), newTestRequest())
	if result.Status != StatusFatal {
		t.Fatalf("status = %s, want fatal", result.Status)
	}
}
