// SPDX-License-Identifier: MIT

package config

import "github.com/tomtom215/aud/internal/app"

// AppConfig translates the loaded engine knobs into app.Config. The
// script engine's per-event CPU budget travels with it: app.New applies
// ScriptPerEventBudget to the engine it starts internally.
func (c EngineConfig) AppConfig() app.Config {
	return app.Config{
		RingCapacity:         c.RingCapacity,
		HostChanCapacity:     c.HostChanCapacity,
		ScriptChanCap:        c.ScriptChanCapacity,
		MessageRingCap:       c.MessageRingCapacity,
		LoadScriptTimeout:    c.LoadScriptTimeout,
		TerminateTimeout:     c.TerminateTimeout,
		WatcherDebounce:      c.WatcherDebounce,
		ScriptPerEventBudget: c.ScriptPerEventBudget,
	}
}
