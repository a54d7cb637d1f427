// SPDX-License-Identifier: MIT

// Package paths bootstraps the per-user filesystem layout under
// ~/.aud/{api,bin,log}, creating the directories with os.MkdirAll.
package paths

import (
	"fmt"
	"os"
	"path/filepath"
)

// Layout holds the resolved, created directories under ~/.aud.
type Layout struct {
	Root string
	API  string
	Bin  string
	Log  string
}

// Bootstrap resolves ~/.aud and creates its api/bin/log subdirectories if
// missing.
func Bootstrap() (Layout, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return Layout{}, fmt.Errorf("paths: resolving home directory: %w", err)
	}

	root := filepath.Join(home, ".aud")
	l := Layout{
		Root: root,
		API:  filepath.Join(root, "api"),
		Bin:  filepath.Join(root, "bin"),
		Log:  filepath.Join(root, "log"),
	}

	for _, dir := range []string{l.API, l.Bin, l.Log} {
		if err := os.MkdirAll(dir, 0o750); err != nil {
			return Layout{}, fmt.Errorf("paths: creating %s: %w", dir, err)
		}
	}
	return l, nil
}

// LogFile returns the default log file path, aud.log under the log
// directory.
func (l Layout) LogFile() string {
	return filepath.Join(l.Log, "aud.log")
}

// LockFile returns the single-instance lock file path for the given
// device/address identity, under the root directory.
func (l Layout) LockFile(name string) string {
	return filepath.Join(l.Root, name+".lock")
}
