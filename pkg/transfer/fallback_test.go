package transfer

import (
	"context"
	"fmt"
	"strings"
	"testing"

	"github.com/schemaflow/schemaflow/pkg/refresh"
	"github.com/schemaflow/schemaflow/pkg/telemetry"
)

func TestCoordinatorPrimarySucceeds(t *testing.T) {
	primary := &fakeTransfer{name: "direct"}
	secondary := &fakeTransfer{name: "objectstore"}
	coord := NewCoordinator(primary, secondary, telemetry.NewNopLogger())

	req := testRequest(t.TempDir())
	artifact := &refresh.DumpArtifact{Name: req.DumpName(), SourceHost: req.Source.Host}

	outcome, err := coord.Send(context.Background(), req, artifact)
	if err != nil {
		t.Fatalf("Send: %v", err)
	}
	if !outcome.Completed {
		t.Error("outcome must be completed")
	}
	if outcome.Strategy != "direct" {
		t.Errorf("strategy = %s, want direct", outcome.Strategy)
	}
	if secondary.calls() != 0 {
		t.Errorf("secondary attempted %d times, want 0", secondary.calls())
	}
}

func TestCoordinatorFallsBackToSecondary(t *testing.T) {
	primary := &fakeTransfer{name: "direct", sendErr: fmt.Errorf("network unreachable")}
	secondary := &fakeTransfer{name: "objectstore"}
	coord := NewCoordinator(primary, secondary, telemetry.NewNopLogger())

	req := testRequest(t.TempDir())
	artifact := &refresh.DumpArtifact{Name: req.DumpName(), SourceHost: req.Source.Host}

	outcome, err := coord.Send(context.Background(), req, artifact)
	if err != nil {
		t.Fatalf("Send: %v", err)
	}
	if !outcome.Completed {
		t.Error("outcome must be completed")
	}
	if outcome.Strategy != "objectstore" {
		t.Errorf("completing strategy = %s, want objectstore", outcome.Strategy)
	}
	if primary.calls() != 1 || secondary.calls() != 1 {
		t.Errorf("calls = %d/%d, want 1/1", primary.calls(), secondary.calls())
	}
}

func TestCoordinatorNoSecondary(t *testing.T) {
	primary := &fakeTransfer{name: "direct", sendErr: fmt.Errorf("network unreachable")}
	coord := NewCoordinator(primary, nil, telemetry.NewNopLogger())

	req := testRequest(t.TempDir())
	artifact := &refresh.DumpArtifact{Name: req.DumpName()}

	_, err := coord.Send(context.Background(), req, artifact)
	if err == nil {
		t.Fatal("expected primary error to surface")
	}
}

func TestCoordinatorBothFailConcatenatesDiagnostics(t *testing.T) {
	primary := &fakeTransfer{name: "direct", sendErr: fmt.Errorf("host unreachable")}
	secondary := &fakeTransfer{name: "objectstore", sendErr: fmt.Errorf("bucket missing")}
	coord := NewCoordinator(primary, secondary, telemetry.NewNopLogger())

	req := testRequest(t.TempDir())
	artifact := &refresh.DumpArtifact{Name: req.DumpName()}

	_, err := coord.Send(context.Background(), req, artifact)
	if err == nil {
		t.Fatal("expected error when both strategies fail")
	}
	msg := err.Error()
	for _, want := range []string{"host unreachable", "bucket missing", "direct", "objectstore"} {
		if !strings.Contains(msg, want) {
			t.Errorf("error %q missing %q", msg, want)
		}
	}
}

func TestCoordinatorSingleHopOnly(t *testing.T) {
	primary := &fakeTransfer{name: "direct", sendErr: fmt.Errorf("down")}
	secondary := &fakeTransfer{name: "objectstore", sendErr: fmt.Errorf("also down")}
	coord := NewCoordinator(primary, secondary, telemetry.NewNopLogger())

	req := testRequest(t.TempDir())
	artifact := &refresh.DumpArtifact{Name: req.DumpName()}

	_, _ = coord.Send(context.Background(), req, artifact)

	if primary.calls() != 1 {
		t.Errorf("primary attempted %d times, want exactly 1", primary.calls())
	}
	if secondary.calls() != 1 {
		t.Errorf("secondary attempted %d times, want exactly 1", secondary.calls())
	}
}
