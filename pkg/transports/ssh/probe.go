package ssh

import (
	"context"
	"fmt"
	"net"
	"strconv"
	"strings"
	"time"

	"github.com/schemaflow/schemaflow/pkg/refresh"
)

// Dialer creates per-host clients from one credential template. The
// template carries the user, authentication material, and timeouts; the
// host is filled in per call.
type Dialer struct {
	base Config
}

// NewDialer creates a dialer from a host-independent config template.
// Unset port and timeouts fall back to the package defaults.
func NewDialer(base Config) *Dialer {
	if base.Port == 0 {
		base.Port = 22
	}
	if base.ConnectionTimeout <= 0 {
		base.ConnectionTimeout = 30 * time.Second
	}
	if base.CommandTimeout <= 0 {
		base.CommandTimeout = 5 * time.Minute
	}
	return &Dialer{base: base}
}

// ClientFor returns an unconnected client for the given host.
func (d *Dialer) ClientFor(host string) (*Client, error) {
	cfg := d.base
	cfg.Host = host
	return NewClient(&cfg)
}

// Probe answers preflight questions about database hosts. Listener
// reachability is a plain TCP dial against the database endpoint; free
// space is measured over SSH with df.
type Probe struct {
	dialer      *Dialer
	dialTimeout time.Duration
}

// NewProbe creates a host probe backed by the given SSH dialer.
func NewProbe(dialer *Dialer) *Probe {
	return &Probe{
		dialer:      dialer,
		dialTimeout: 10 * time.Second,
	}
}

// Reachable verifies the database endpoint accepts TCP connections.
func (p *Probe) Reachable(ctx context.Context, endpoint refresh.Endpoint) error {
	dialer := net.Dialer{Timeout: p.dialTimeout}
	conn, err := dialer.DialContext(ctx, "tcp", endpoint.Address())
	if err != nil {
		return &TransportError{
			Op:          "probe",
			Err:         fmt.Errorf("endpoint %s not reachable: %w", endpoint.Address(), err),
			IsTemporary: true,
		}
	}
	return conn.Close()
}

// FreeSpace returns the available bytes at dir on host.
func (p *Probe) FreeSpace(ctx context.Context, host, dir string) (int64, error) {
	client, err := p.dialer.ClientFor(host)
	if err != nil {
		return 0, err
	}
	if err := client.Connect(ctx); err != nil {
		return 0, err
	}
	defer client.Close()

	result, err := client.Run(ctx, fmt.Sprintf("df -Pk %s", dir))
	if err != nil {
		return 0, err
	}
	if result.ExitStatus != 0 {
		return 0, &TransportError{
			Op:  "probe",
			Err: fmt.Errorf("df failed for %s: %s", dir, result.Output),
		}
	}
	return parseDfAvailable(result.Output)
}

// parseDfAvailable extracts the available byte count from POSIX df -Pk
// output (1024-byte blocks, fourth column of the data line).
func parseDfAvailable(output string) (int64, error) {
	lines := strings.Split(strings.TrimSpace(output), "\n")
	if len(lines) < 2 {
		return 0, fmt.Errorf("unexpected df output: %s", output)
	}

	fields := strings.Fields(lines[len(lines)-1])
	if len(fields) < 4 {
		return 0, fmt.Errorf("unexpected df output: %s", output)
	}

	blocks, err := strconv.ParseInt(fields[3], 10, 64)
	if err != nil {
		return 0, fmt.Errorf("unexpected df available column %q: %w", fields[3], err)
	}
	return blocks * 1024, nil
}
