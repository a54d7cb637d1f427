// SPDX-License-Identifier: MIT

//go:build !linux

package lock

import (
	"context"
	"fmt"
	"time"
)

// FileLock is a no-op stand-in on platforms without flock(2) support: the
// single-instance guard degrades to "not enforced" rather than failing to
// build.
type FileLock struct{ path string }

// NewFileLock returns a FileLock whose Acquire always succeeds.
func NewFileLock(path string) (*FileLock, error) {
	if path == "" {
		return nil, fmt.Errorf("lock path cannot be empty")
	}
	return &FileLock{path: path}, nil
}

// Acquire always succeeds; locking is unavailable on this platform.
func (fl *FileLock) Acquire(timeout time.Duration) error { return nil }

// AcquireContext always succeeds; locking is unavailable on this platform.
func (fl *FileLock) AcquireContext(ctx context.Context, timeout time.Duration) error { return nil }

// Release is a no-op.
func (fl *FileLock) Release() error { return nil }

// Close is a no-op.
func (fl *FileLock) Close() error { return nil }
