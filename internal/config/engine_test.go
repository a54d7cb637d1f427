// SPDX-License-Identifier: MIT

package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestLoadEngineConfig_DefaultsWithNoFile(t *testing.T) {
	cfg, err := LoadEngineConfig("")
	if err != nil {
		t.Fatalf("LoadEngineConfig: %v", err)
	}
	want := DefaultEngineConfig()
	if cfg != want {
		t.Fatalf("expected defaults %+v, got %+v", want, cfg)
	}
}

func TestLoadEngineConfig_YAMLOverridesDefaults(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	yamlBody := `
ring_capacity: 500
fps: 60
script_per_event_budget: 10ms
`
	if err := os.WriteFile(path, []byte(yamlBody), 0644); err != nil {
		t.Fatalf("writing config file: %v", err)
	}

	cfg, err := LoadEngineConfig(path)
	if err != nil {
		t.Fatalf("LoadEngineConfig: %v", err)
	}
	if cfg.RingCapacity != 500 {
		t.Errorf("expected ring_capacity 500, got %d", cfg.RingCapacity)
	}
	if cfg.FPS != 60 {
		t.Errorf("expected fps 60, got %g", cfg.FPS)
	}
	if cfg.ScriptPerEventBudget != 10*time.Millisecond {
		t.Errorf("expected script_per_event_budget 10ms, got %s", cfg.ScriptPerEventBudget)
	}
	// Fields absent from the file keep their default.
	if cfg.HostChanCapacity != DefaultEngineConfig().HostChanCapacity {
		t.Errorf("expected untouched field to keep its default, got %d", cfg.HostChanCapacity)
	}
}

func TestLoadEngineConfig_EnvOverridesYAML(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	if err := os.WriteFile(path, []byte("fps: 45\n"), 0644); err != nil {
		t.Fatalf("writing config file: %v", err)
	}

	t.Setenv("AUD_FPS", "90")

	cfg, err := LoadEngineConfig(path)
	if err != nil {
		t.Fatalf("LoadEngineConfig: %v", err)
	}
	if cfg.FPS != 90 {
		t.Errorf("expected env to override YAML, got fps=%g", cfg.FPS)
	}
}

func TestLoadEngineConfig_RejectsInvalidFPS(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	if err := os.WriteFile(path, []byte("fps: 0.1\n"), 0644); err != nil {
		t.Fatalf("writing config file: %v", err)
	}

	if _, err := LoadEngineConfig(path); err == nil {
		t.Fatal("expected an error for fps below 1.0")
	}
}

func TestLoadEngineConfig_MissingFileErrors(t *testing.T) {
	if _, err := LoadEngineConfig("/nonexistent/path/config.yaml"); err == nil {
		t.Fatal("expected an error when the given file path does not exist")
	}
}

func TestEngineConfig_AppConfig(t *testing.T) {
	cfg := DefaultEngineConfig()
	appCfg := cfg.AppConfig()
	if appCfg.RingCapacity != cfg.RingCapacity {
		t.Errorf("expected RingCapacity to carry over, got %d", appCfg.RingCapacity)
	}
	if appCfg.ScriptPerEventBudget != cfg.ScriptPerEventBudget {
		t.Errorf("expected ScriptPerEventBudget to carry over, got %s", appCfg.ScriptPerEventBudget)
	}
}
