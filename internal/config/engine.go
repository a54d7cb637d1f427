// SPDX-License-Identifier: MIT

package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/env/v2"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/v2"
)

// EngineConfigFilePath is the default location for the engine configuration
// file, checked by callers that don't have a --config flag value of their
// own (it is never read automatically; see LoadEngineConfig).
const EngineConfigFilePath = "/etc/aud/config.yaml"

// EngineConfig tunes the capture/script engine: channel and ring
// capacities, the script CPU soft limit, the script-file debounce window,
// and the tick-rate floor. It is the koanf-backed counterpart to the
// hard-coded defaults in app.Config and script.Config.
type EngineConfig struct {
	RingCapacity         int           `yaml:"ring_capacity" koanf:"ring_capacity"`
	HostChanCapacity     int           `yaml:"host_chan_capacity" koanf:"host_chan_capacity"`
	ScriptChanCapacity   int           `yaml:"script_chan_capacity" koanf:"script_chan_capacity"`
	MessageRingCapacity  int           `yaml:"message_ring_capacity" koanf:"message_ring_capacity"`
	LoadScriptTimeout    time.Duration `yaml:"load_script_timeout" koanf:"load_script_timeout"`
	TerminateTimeout     time.Duration `yaml:"terminate_timeout" koanf:"terminate_timeout"`
	WatcherDebounce      time.Duration `yaml:"watcher_debounce" koanf:"watcher_debounce"`
	ScriptPerEventBudget time.Duration `yaml:"script_per_event_budget" koanf:"script_per_event_budget"`
	FPS                  float64       `yaml:"fps" koanf:"fps"`
}

// DefaultEngineConfig returns the same values app.DefaultConfig and
// script.DefaultConfig hard-code, so a caller that never loads a file or
// sets an env var gets identical behavior to before this existed.
func DefaultEngineConfig() EngineConfig {
	return EngineConfig{
		RingCapacity:         100,
		HostChanCapacity:     1000,
		ScriptChanCapacity:   1000,
		MessageRingCapacity:  256,
		LoadScriptTimeout:    2 * time.Second,
		TerminateTimeout:     250 * time.Millisecond,
		WatcherDebounce:      100 * time.Millisecond,
		ScriptPerEventBudget: 50 * time.Millisecond,
		FPS:                  30,
	}
}

// Validate rejects values that would make the engine unusable.
func (c EngineConfig) Validate() error {
	if c.RingCapacity <= 0 {
		return fmt.Errorf("ring_capacity must be positive, got %d", c.RingCapacity)
	}
	if c.HostChanCapacity <= 0 {
		return fmt.Errorf("host_chan_capacity must be positive, got %d", c.HostChanCapacity)
	}
	if c.ScriptChanCapacity <= 0 {
		return fmt.Errorf("script_chan_capacity must be positive, got %d", c.ScriptChanCapacity)
	}
	if c.FPS < 1.0 {
		return fmt.Errorf("fps must be >= 1.0, got %g", c.FPS)
	}
	if c.ScriptPerEventBudget <= 0 {
		return fmt.Errorf("script_per_event_budget must be positive, got %s", c.ScriptPerEventBudget)
	}
	return nil
}

// LoadEngineConfig loads engine tuning knobs from an optional YAML file
// plus AUD_* environment variables, both layered over
// DefaultEngineConfig(). yamlPath may be empty, in which case only
// defaults and environment variables apply. Fields absent from both the
// file and the environment keep their default value: koanf only
// overwrites keys it actually finds, it never zeroes the rest.
func LoadEngineConfig(yamlPath string) (EngineConfig, error) {
	cfg := DefaultEngineConfig()

	k := koanf.New(".")

	if yamlPath != "" {
		if err := k.Load(file.Provider(yamlPath), yaml.Parser()); err != nil {
			return cfg, fmt.Errorf("loading engine config file: %w", err)
		}
	}

	envProvider := env.Provider(".", env.Opt{
		Prefix: "AUD_",
		TransformFunc: func(k, v string) (string, any) {
			k = strings.TrimPrefix(k, "AUD_")
			return strings.ToLower(k), v
		},
	})
	if err := k.Load(envProvider, nil); err != nil {
		return cfg, fmt.Errorf("loading AUD_* environment variables: %w", err)
	}

	if err := k.Unmarshal("", &cfg); err != nil {
		return cfg, fmt.Errorf("unmarshaling engine config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return cfg, fmt.Errorf("invalid engine config: %w", err)
	}

	return cfg, nil
}

// Save writes c to path as YAML, using the same atomic
// write-temp-then-rename sequence as the rest of this package.
func (c EngineConfig) Save(path string) error {
	return atomicWriteYAML(path, c, defaultCreateTemp)
}
