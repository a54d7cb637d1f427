package config

import (
	"fmt"
	"os"

	"go.yaml.in/yaml/v3"
)

// legacyEngineFieldAliases maps deprecated engine config key names to their
// current counterparts, so a config file written against an earlier aud
// release still loads after an upgrade without the operator hand-editing it.
var legacyEngineFieldAliases = map[string]string{
	"buffer_capacity": "ring_capacity",
	"tick_rate":       "fps",
	"debounce_ms":     "watcher_debounce",
	"script_budget":   "script_per_event_budget",
}

// MigrateEngineConfig rewrites a YAML config file in place, renaming any
// deprecated keys found in legacyEngineFieldAliases to their current names,
// and returns the resulting EngineConfig. If the file uses no deprecated
// keys it is left untouched and simply loaded.
func MigrateEngineConfig(path string) (EngineConfig, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return EngineConfig{}, fmt.Errorf("config: reading %s: %w", path, err)
	}

	var doc map[string]any
	if err := yaml.Unmarshal(raw, &doc); err != nil {
		return EngineConfig{}, fmt.Errorf("config: parsing %s: %w", path, err)
	}

	renamed := false
	for old, current := range legacyEngineFieldAliases {
		v, ok := doc[old]
		if !ok {
			continue
		}
		if _, exists := doc[current]; !exists {
			doc[current] = v
		}
		delete(doc, old)
		renamed = true
	}

	if !renamed {
		return LoadEngineConfig(path)
	}

	if _, err := BackupConfig(path, GetBackupDir(path)); err != nil {
		return EngineConfig{}, fmt.Errorf("config: backing up %s before migration: %w", path, err)
	}

	out, err := yaml.Marshal(doc)
	if err != nil {
		return EngineConfig{}, fmt.Errorf("config: re-encoding %s: %w", path, err)
	}

	info, err := os.Stat(path)
	mode := os.FileMode(0o644)
	if err == nil {
		mode = info.Mode()
	}
	if err := os.WriteFile(path, out, mode); err != nil {
		return EngineConfig{}, fmt.Errorf("config: writing migrated %s: %w", path, err)
	}

	return LoadEngineConfig(path)
}
