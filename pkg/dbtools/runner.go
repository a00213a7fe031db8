// Package dbtools invokes the external database tooling: the bulk
// export/import engine and the SQL facility used for session kills,
// schema drops, and validation queries. Every invocation returns a raw
// exit status plus captured text; interpretation belongs to the outcome
// classifier.
package dbtools

import (
	"context"
	"os/exec"
	"strings"

	"github.com/schemaflow/schemaflow/pkg/refresh"
	"github.com/schemaflow/schemaflow/pkg/transports/ssh"
)

// CommandRunner executes a shell command on a database host and captures
// its combined output. A non-zero exit status is a result, not an error;
// errors mean the command could not be run at all.
type CommandRunner interface {
	RunOnHost(ctx context.Context, host, cmd string) (refresh.RawResult, error)
}

// SSHRunner runs commands on database hosts over SSH.
type SSHRunner struct {
	dialer *ssh.Dialer
}

// NewSSHRunner creates a runner backed by the given SSH dialer.
func NewSSHRunner(dialer *ssh.Dialer) *SSHRunner {
	return &SSHRunner{dialer: dialer}
}

// RunOnHost executes cmd on host and captures combined output.
func (r *SSHRunner) RunOnHost(ctx context.Context, host, cmd string) (refresh.RawResult, error) {
	client, err := r.dialer.ClientFor(host)
	if err != nil {
		return refresh.RawResult{}, err
	}
	if err := client.Connect(ctx); err != nil {
		return refresh.RawResult{}, err
	}
	defer client.Close()

	result, err := client.Run(ctx, cmd)
	if err != nil {
		return refresh.RawResult{}, err
	}
	return refresh.RawResult{ExitStatus: result.ExitStatus, Output: result.Output}, nil
}

// LocalRunner runs commands on the control node itself, used when the
// tooling and its connect strings live locally.
type LocalRunner struct{}

// NewLocalRunner creates a local command runner.
func NewLocalRunner() *LocalRunner {
	return &LocalRunner{}
}

// RunOnHost executes cmd locally; the host argument is ignored.
func (r *LocalRunner) RunOnHost(ctx context.Context, host, cmd string) (refresh.RawResult, error) {
	out, err := exec.CommandContext(ctx, "sh", "-c", cmd).CombinedOutput()
	result := refresh.RawResult{Output: strings.TrimSpace(string(out))}

	if err != nil {
		if exitErr, ok := err.(*exec.ExitError); ok {
			result.ExitStatus = exitErr.ExitCode()
			return result, nil
		}
		return result, err
	}
	return result, nil
}
