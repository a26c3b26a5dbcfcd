// Package fsx implements the filesystem operations of the pipeline: atomic
// replacement of a document with retry, deletion with retry, and plain file
// copies. Retries cover the window where a PDF viewer or sync client holds
// the target open.
package fsx

import (
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	"github.com/avast/retry-go/v4"
)

// SidecarSuffix names the fallback file written next to the original when
// the original cannot be replaced in place.
const SidecarSuffix = ".pdfduo-merged.pdf"

const (
	replaceAttempts = 10
	replaceDelay    = 100 * time.Millisecond
	deleteAttempts  = 5
	deleteDelay     = 50 * time.Millisecond
)

// SidecarPath returns the sidecar destination for the document at path.
func SidecarPath(path string) string {
	stem := strings.TrimSuffix(path, filepath.Ext(path))
	return stem + SidecarSuffix
}

// retryable reports whether err looks like a transient sharing violation
// rather than a permanent failure.
func retryable(err error) bool {
	if os.IsPermission(err) {
		return true
	}
	for _, code := range []syscall.Errno{syscall.EACCES, syscall.EBUSY, syscall.ETXTBSY} {
		if errors.Is(err, code) {
			return true
		}
	}
	return false
}

// ReplaceWithRetry moves src over dst, retrying transient sharing
// violations with exponential backoff. On success src no longer exists.
func ReplaceWithRetry(src, dst string) error {
	err := retry.Do(
		func() error {
			return os.Rename(src, dst)
		},
		retry.Attempts(replaceAttempts),
		retry.Delay(replaceDelay),
		retry.DelayType(retry.BackOffDelay),
		retry.RetryIf(retryable),
		retry.LastErrorOnly(true),
	)
	if err != nil {
		return fmt.Errorf("replacing %s: %w", dst, err)
	}
	return nil
}

// DeleteWithRetry removes path, retrying transient sharing violations. A
// missing file counts as success.
func DeleteWithRetry(path string) error {
	err := retry.Do(
		func() error {
			err := os.Remove(path)
			if os.IsNotExist(err) {
				return nil
			}
			return err
		},
		retry.Attempts(deleteAttempts),
		retry.Delay(deleteDelay),
		retry.DelayType(retry.BackOffDelay),
		retry.RetryIf(retryable),
		retry.LastErrorOnly(true),
	)
	if err != nil {
		return fmt.Errorf("deleting %s: %w", path, err)
	}
	return nil
}

// CopyFile copies src to dst, truncating dst if it exists.
func CopyFile(src, dst string) error {
	in, err := os.Open(src)
	if err != nil {
		return fmt.Errorf("opening %s: %w", src, err)
	}
	defer in.Close()

	out, err := os.Create(dst)
	if err != nil {
		return fmt.Errorf("creating %s: %w", dst, err)
	}

	if _, err := io.Copy(out, in); err != nil {
		out.Close()
		return fmt.Errorf("copying to %s: %w", dst, err)
	}
	if err := out.Close(); err != nil {
		return fmt.Errorf("closing %s: %w", dst, err)
	}
	return nil
}
