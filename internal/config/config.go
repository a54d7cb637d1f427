// SPDX-License-Identifier: MIT

package config

import (
	"fmt"
	"os"
	"path/filepath"

	"go.yaml.in/yaml/v3"
)

// atomicFile abstracts file operations used by atomicWriteYAML for testability.
type atomicFile interface {
	Write([]byte) (int, error)
	Sync() error
	Chmod(os.FileMode) error
	Close() error
	Name() string
}

// atomicCreateTemp is the injectable temp-file creator used by atomicWriteYAML.
// Tests can replace this with a function returning a mock atomicFile.
type atomicCreateTemp func(dir, pattern string) (atomicFile, error)

func defaultCreateTemp(dir, pattern string) (atomicFile, error) {
	return os.CreateTemp(dir, pattern) // #nosec G304
}

// atomicWriteYAML marshals v as YAML and writes it to path using a
// write-temp-file-then-rename sequence: the temp file is written in the
// same directory as path, synced to disk, then renamed into place.
// os.Rename is atomic on most filesystems, so a crash mid-write leaves
// either the old file or the new file, never a partially-written one.
func atomicWriteYAML(path string, v any, createTemp atomicCreateTemp) error {
	data, err := yaml.Marshal(v)
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}

	dir := filepath.Dir(path)

	tmpFile, err := createTemp(dir, ".config.*.yaml")
	if err != nil {
		return fmt.Errorf("failed to create temp config file: %w", err)
	}
	tmpPath := tmpFile.Name()

	success := false
	defer func() {
		if !success {
			_ = tmpFile.Close()
			_ = os.Remove(tmpPath)
		}
	}()

	if _, err := tmpFile.Write(data); err != nil {
		return fmt.Errorf("failed to write temp config file: %w", err)
	}

	if err := tmpFile.Sync(); err != nil {
		return fmt.Errorf("failed to sync temp config file: %w", err)
	}

	// Config files may contain sensitive settings and should not be
	// world-readable.
	// #nosec G302 - Config file restricted to owner+group for security
	if err := tmpFile.Chmod(0640); err != nil {
		return fmt.Errorf("failed to set config file permissions: %w", err)
	}

	if err := tmpFile.Close(); err != nil {
		return fmt.Errorf("failed to close temp config file: %w", err)
	}

	if err := os.Rename(tmpPath, path); err != nil { // #nosec G703 -- path is from CLI flag/config, not web request input
		return fmt.Errorf("failed to rename temp config file: %w", err)
	}

	success = true
	return nil
}
