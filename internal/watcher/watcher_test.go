// SPDX-License-Identifier: MIT

package watcher

import (
	"context"
	"os"
	"path/filepath"
	"sync/atomic"
	"testing"
	"time"
)

func TestWatcher_DebouncesBurstOfWrites(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "script.lua")
	if err := os.WriteFile(path, []byte("-- v1"), 0o644); err != nil {
		t.Fatalf("WriteFile: %v", err)
	}

	w, err := New(path, Config{Debounce: 50 * time.Millisecond}, nil)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	defer w.Close()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	var fires atomic.Int32
	go w.Run(ctx, func() { fires.Add(1) })

	for i := 0; i < 5; i++ {
		if err := os.WriteFile(path, []byte("-- rev"), 0o644); err != nil {
			t.Fatalf("WriteFile burst: %v", err)
		}
		time.Sleep(5 * time.Millisecond)
	}

	time.Sleep(200 * time.Millisecond)

	if got := fires.Load(); got != 1 {
		t.Fatalf("expected exactly one debounced reload for a write burst, got %d", got)
	}
}

func TestWatcher_IgnoresUnrelatedSiblingFiles(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "script.lua")
	other := filepath.Join(dir, "notes.txt")
	if err := os.WriteFile(path, []byte("-- v1"), 0o644); err != nil {
		t.Fatalf("WriteFile: %v", err)
	}

	w, err := New(path, Config{Debounce: 20 * time.Millisecond}, nil)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	defer w.Close()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	var fires atomic.Int32
	go w.Run(ctx, func() { fires.Add(1) })

	if err := os.WriteFile(other, []byte("unrelated"), 0o644); err != nil {
		t.Fatalf("WriteFile other: %v", err)
	}
	time.Sleep(100 * time.Millisecond)

	if got := fires.Load(); got != 0 {
		t.Fatalf("expected no reload from an unwatched sibling file, got %d", got)
	}
}
