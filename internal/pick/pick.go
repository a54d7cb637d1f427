// SPDX-License-Identifier: MIT

// Package pick resolves a --script directory argument into one concrete
// script file at startup, prompting interactively when more than one
// candidate exists, using a huh.NewSelect prompt to pick one item off
// the short list.
package pick

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"

	"github.com/charmbracelet/huh"
)

// ScriptFile resolves path to a single Lua script: path itself if it is
// already a file, the sole *.lua file if path is a directory containing
// exactly one, or an interactive huh.Select prompt if it contains more.
func ScriptFile(path string) (string, error) {
	info, err := os.Stat(path)
	if err != nil {
		return "", fmt.Errorf("pick: %w", err)
	}
	if !info.IsDir() {
		return path, nil
	}

	entries, err := os.ReadDir(path)
	if err != nil {
		return "", fmt.Errorf("pick: reading %s: %w", path, err)
	}

	var candidates []string
	for _, e := range entries {
		if e.IsDir() || filepath.Ext(e.Name()) != ".lua" {
			continue
		}
		candidates = append(candidates, e.Name())
	}
	sort.Strings(candidates)

	switch len(candidates) {
	case 0:
		return "", fmt.Errorf("pick: no .lua scripts found in %s", path)
	case 1:
		return filepath.Join(path, candidates[0]), nil
	}

	options := make([]huh.Option[string], len(candidates))
	for i, name := range candidates {
		options[i] = huh.NewOption(name, name)
	}

	var chosen string
	form := huh.NewForm(huh.NewGroup(
		huh.NewSelect[string]().
			Title("Select a script to load").
			Options(options...).
			Value(&chosen),
	))
	if err := form.Run(); err != nil {
		return "", fmt.Errorf("pick: %w", err)
	}
	return filepath.Join(path, chosen), nil
}
