package ssh

import (
	"context"
	"crypto/sha256"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/pkg/sftp"
	"github.com/rs/zerolog/log"
)

// FileInfo describes a remote file.
type FileInfo struct {
	Path      string
	SizeBytes int64
}

// createSFTPClient opens an SFTP subsystem on the existing connection.
func (c *Client) createSFTPClient() (*sftp.Client, error) {
	sshClient, err := c.getClient()
	if err != nil {
		return nil, err
	}

	sftpClient, err := sftp.NewClient(sshClient)
	if err != nil {
		return nil, &TransportError{
			Op:          "sftp-init",
			Err:         fmt.Errorf("failed to create SFTP client: %w", err),
			IsTemporary: true,
		}
	}
	return sftpClient, nil
}

// Stat returns size information for a remote file.
func (c *Client) Stat(ctx context.Context, remotePath string) (FileInfo, error) {
	sftpClient, err := c.createSFTPClient()
	if err != nil {
		return FileInfo{}, err
	}
	defer sftpClient.Close()

	info, err := sftpClient.Stat(remotePath)
	if err != nil {
		return FileInfo{}, &TransportError{
			Op:  "stat",
			Err: fmt.Errorf("failed to stat %s: %w", remotePath, err),
		}
	}
	return FileInfo{Path: remotePath, SizeBytes: info.Size()}, nil
}

// Pull downloads a single remote file to a local path.
func (c *Client) Pull(ctx context.Context, remotePath string, localPath string) (int64, error) {
	startTime := time.Now()

	log.Debug().
		Str("host", c.config.Host).
		Str("remote", remotePath).
		Str("local", localPath).
		Msg("pulling file")

	sftpClient, err := c.createSFTPClient()
	if err != nil {
		return 0, err
	}
	defer sftpClient.Close()

	remoteFile, err := sftpClient.Open(remotePath)
	if err != nil {
		return 0, &TransportError{
			Op:          "pull",
			Err:         fmt.Errorf("failed to open remote file: %w", err),
			IsTemporary: true,
		}
	}
	defer remoteFile.Close()

	if err := os.MkdirAll(filepath.Dir(localPath), 0755); err != nil {
		return 0, &TransportError{
			Op:  "pull",
			Err: fmt.Errorf("failed to create local directory: %w", err),
		}
	}

	localFile, err := os.Create(localPath)
	if err != nil {
		return 0, &TransportError{
			Op:  "pull",
			Err: fmt.Errorf("failed to create local file: %w", err),
		}
	}
	defer localFile.Close()

	written, err := copyWithContext(ctx, localFile, remoteFile)
	if err != nil {
		return written, &TransportError{
			Op:          "pull",
			Err:         fmt.Errorf("failed to copy file: %w", err),
			IsTemporary: true,
		}
	}

	log.Debug().
		Str("remote", remotePath).
		Int64("bytes", written).
		Dur("duration", time.Since(startTime)).
		Msg("file pulled")

	return written, nil
}

// Push uploads a single local file to a remote path.
func (c *Client) Push(ctx context.Context, localPath string, remotePath string) (int64, error) {
	startTime := time.Now()

	log.Debug().
		Str("host", c.config.Host).
		Str("local", localPath).
		Str("remote", remotePath).
		Msg("pushing file")

	localFile, err := os.Open(localPath)
	if err != nil {
		return 0, &TransportError{
			Op:  "push",
			Err: fmt.Errorf("failed to open local file: %w", err),
		}
	}
	defer localFile.Close()

	sftpClient, err := c.createSFTPClient()
	if err != nil {
		return 0, err
	}
	defer sftpClient.Close()

	if err := sftpClient.MkdirAll(filepath.Dir(remotePath)); err != nil {
		return 0, &TransportError{
			Op:  "push",
			Err: fmt.Errorf("failed to create remote directory: %w", err),
		}
	}

	remoteFile, err := sftpClient.Create(remotePath)
	if err != nil {
		return 0, &TransportError{
			Op:          "push",
			Err:         fmt.Errorf("failed to create remote file: %w", err),
			IsTemporary: true,
		}
	}
	defer remoteFile.Close()

	written, err := copyWithContext(ctx, remoteFile, localFile)
	if err != nil {
		return written, &TransportError{
			Op:          "push",
			Err:         fmt.Errorf("failed to copy file: %w", err),
			IsTemporary: true,
		}
	}

	log.Debug().
		Str("remote", remotePath).
		Int64("bytes", written).
		Dur("duration", time.Since(startTime)).
		Msg("file pushed")

	return written, nil
}

// Remove deletes a remote file. Missing files are not an error.
func (c *Client) Remove(ctx context.Context, remotePath string) error {
	sftpClient, err := c.createSFTPClient()
	if err != nil {
		return err
	}
	defer sftpClient.Close()

	if err := sftpClient.Remove(remotePath); err != nil && !os.IsNotExist(err) {
		return &TransportError{
			Op:  "remove",
			Err: fmt.Errorf("failed to remove %s: %w", remotePath, err),
		}
	}
	return nil
}

// Checksum computes the SHA-256 checksum of a remote file.
func (c *Client) Checksum(ctx context.Context, remotePath string) (string, error) {
	result, err := c.Run(ctx, fmt.Sprintf("sha256sum %s", remotePath))
	if err != nil {
		return "", err
	}
	if result.ExitStatus != 0 {
		return "", &TransportError{
			Op:  "checksum",
			Err: fmt.Errorf("sha256sum failed: %s", result.Output),
		}
	}

	// Output format: "checksum  filename"
	fields := strings.Fields(result.Output)
	if len(fields) < 1 {
		return "", &TransportError{
			Op:  "checksum",
			Err: fmt.Errorf("invalid checksum output: %s", result.Output),
		}
	}
	return fields[0], nil
}

// LocalChecksum computes the SHA-256 checksum of a local file.
func LocalChecksum(path string) (string, error) {
	file, err := os.Open(path)
	if err != nil {
		return "", err
	}
	defer file.Close()

	hash := sha256.New()
	if _, err := io.Copy(hash, file); err != nil {
		return "", err
	}
	return fmt.Sprintf("%x", hash.Sum(nil)), nil
}

// copyWithContext copies data while respecting context cancellation.
func copyWithContext(ctx context.Context, dst io.Writer, src io.Reader) (int64, error) {
	buf := make([]byte, 32*1024)
	var written int64

	for {
		select {
		case <-ctx.Done():
			return written, ctx.Err()
		default:
		}

		nr, err := src.Read(buf)
		if nr > 0 {
			nw, werr := dst.Write(buf[0:nr])
			if nw > 0 {
				written += int64(nw)
			}
			if werr != nil {
				return written, werr
			}
			if nr != nw {
				return written, io.ErrShortWrite
			}
		}
		if err != nil {
			if err == io.EOF {
				break
			}
			return written, err
		}
	}
	return written, nil
}
