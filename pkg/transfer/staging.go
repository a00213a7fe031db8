package transfer

import (
	"context"

	"github.com/schemaflow/schemaflow/pkg/transports/ssh"
)

// SSHFiles implements HostFiles over SFTP, dialing each host fresh per
// operation. Dump moves are rare and long-lived enough that connection
// reuse buys nothing over the staging cost.
type SSHFiles struct {
	dialer *ssh.Dialer
}

// NewSSHFiles creates SFTP-backed file staging from an SSH dialer.
func NewSSHFiles(dialer *ssh.Dialer) *SSHFiles {
	return &SSHFiles{dialer: dialer}
}

// withClient runs fn with a connected client for the host.
func (s *SSHFiles) withClient(ctx context.Context, host string, fn func(*ssh.Client) error) error {
	client, err := s.dialer.ClientFor(host)
	if err != nil {
		return err
	}
	if err := client.Connect(ctx); err != nil {
		return err
	}
	defer client.Close()
	return fn(client)
}

// Pull copies host:remotePath to localPath.
func (s *SSHFiles) Pull(ctx context.Context, host, remotePath, localPath string) (int64, error) {
	var n int64
	err := s.withClient(ctx, host, func(c *ssh.Client) error {
		var err error
		n, err = c.Pull(ctx, remotePath, localPath)
		return err
	})
	return n, err
}

// Push copies localPath to host:remotePath.
func (s *SSHFiles) Push(ctx context.Context, host, localPath, remotePath string) (int64, error) {
	var n int64
	err := s.withClient(ctx, host, func(c *ssh.Client) error {
		var err error
		n, err = c.Push(ctx, localPath, remotePath)
		return err
	})
	return n, err
}

// Stat returns the size of host:remotePath.
func (s *SSHFiles) Stat(ctx context.Context, host, remotePath string) (int64, error) {
	var size int64
	err := s.withClient(ctx, host, func(c *ssh.Client) error {
		info, err := c.Stat(ctx, remotePath)
		if err != nil {
			return err
		}
		size = info.SizeBytes
		return nil
	})
	return size, err
}

// Checksum returns the SHA-256 digest of host:remotePath.
func (s *SSHFiles) Checksum(ctx context.Context, host, remotePath string) (string, error) {
	var sum string
	err := s.withClient(ctx, host, func(c *ssh.Client) error {
		var err error
		sum, err = c.Checksum(ctx, remotePath)
		return err
	})
	return sum, err
}

// Remove deletes host:remotePath.
func (s *SSHFiles) Remove(ctx context.Context, host, remotePath string) error {
	return s.withClient(ctx, host, func(c *ssh.Client) error {
		return c.Remove(ctx, remotePath)
	})
}
