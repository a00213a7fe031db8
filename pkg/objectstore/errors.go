package objectstore

import (
	"errors"
	"strings"

	"github.com/minio/minio-go/v7"
)

// Error is a classified object store failure. Retryable distinguishes
// transient conditions (throttling, network resets) from permanent ones
// (missing objects, bad credentials), which the transfer retry loop
// relies on.
type Error struct {
	// Op is the operation that failed (upload, download, stat, remove).
	Op string

	// Code is the S3 error code when the store returned one.
	Code string

	// Retryable marks conditions worth retrying.
	Retryable bool

	// Err is the underlying error.
	Err error
}

func (e *Error) Error() string {
	if e.Code != "" {
		return e.Op + " (" + e.Code + "): " + e.Err.Error()
	}
	return e.Op + ": " + e.Err.Error()
}

func (e *Error) Unwrap() error {
	return e.Err
}

// IsRetryable reports whether the error is a classified transient failure.
func IsRetryable(err error) bool {
	var oe *Error
	return errors.As(err, &oe) && oe.Retryable
}

// IsNotFound reports whether the error means the object or bucket is absent.
func IsNotFound(err error) bool {
	var oe *Error
	if !errors.As(err, &oe) {
		return false
	}
	switch oe.Code {
	case "NoSuchKey", "NoSuchBucket", "NotFound":
		return true
	}
	return false
}

// retryableCodes are S3 error codes indicating transient conditions.
var retryableCodes = map[string]bool{
	"SlowDown":            true,
	"RequestTimeout":      true,
	"InternalError":       true,
	"ServiceUnavailable":  true,
	"ThrottlingException": true,
	"OperationAborted":    true,
}

// classifyError wraps a raw minio error with a retryability verdict.
// The S3 error code is authoritative when present; otherwise the message
// is matched against known transient network failure texts.
func classifyError(op string, err error) error {
	if err == nil {
		return nil
	}

	resp := minio.ToErrorResponse(err)
	if resp.Code != "" {
		return &Error{
			Op:        op,
			Code:      resp.Code,
			Retryable: retryableCodes[resp.Code],
			Err:       err,
		}
	}

	msg := strings.ToLower(err.Error())
	transientTexts := []string{
		"connection refused",
		"connection reset",
		"broken pipe",
		"timeout",
		"temporar",
		"unexpected eof",
		"tls handshake",
		"no route to host",
	}
	for _, text := range transientTexts {
		if strings.Contains(msg, text) {
			return &Error{Op: op, Retryable: true, Err: err}
		}
	}

	return &Error{Op: op, Err: err}
}
