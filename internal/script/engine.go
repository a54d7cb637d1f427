// SPDX-License-Identifier: MIT

// Package script embeds a Lua runtime that reacts to capture events on its
// own goroutine, independent from both the realtime capture callback and
// the Application Core's tick loop: a host thread sends HostEvents in, the
// engine thread runs user Lua callbacks and sends ScriptEvents back out.
// gopher-lua is the only embeddable scripting engine available for this
// purpose, so it is introduced here as the one addition this component
// needs beyond what capture and transfer already bring in.
package script

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	lua "github.com/yuin/gopher-lua"

	"github.com/tomtom215/aud/internal/apperr"
	"github.com/tomtom215/aud/internal/xfer"
)

// State is the engine's lifecycle state.
type State int

const (
	StateStarting State = iota
	StateIdle
	StateRunning
	StateTerminated
	StatePanicked
)

func (s State) String() string {
	switch s {
	case StateStarting:
		return "starting"
	case StateIdle:
		return "idle"
	case StateRunning:
		return "running"
	case StateTerminated:
		return "terminated"
	case StatePanicked:
		return "panicked"
	default:
		return fmt.Sprintf("unknown(%d)", s)
	}
}

// Config tunes the engine's resource limits.
type Config struct {
	// PerEventBudget bounds how long a single Lua callback invocation may
	// run before the engine aborts it and reports a script error. A script
	// that keeps blowing its budget never blocks the host/script channels
	// because each invocation owns only this goroutine.
	PerEventBudget time.Duration
}

// DefaultConfig returns sane defaults for interactive use.
func DefaultConfig() Config {
	return Config{PerEventBudget: 50 * time.Millisecond}
}

// Engine runs user Lua scripts against a stream of HostEvents, on its own
// goroutine, emitting ScriptEvents and a terminal EngineEvent when it
// stops. It owns no device state; it only reacts to what the Application
// Core forwards to it.
type Engine struct {
	host   *xfer.HostChannel
	script *xfer.ScriptChannel
	cfg    Config
	logger *slog.Logger

	state State

	L          *lua.LState
	loadedName string
	callbacks  callbackTable
	doneCh     chan xfer.EngineEvent
}

type callbackTable struct {
	onLoad  *lua.LFunction
	onMidi  *lua.LFunction
	onAudio *lua.LFunction
}

// New constructs an Engine wired to the given host/script channels. The
// engine does not start running Lua until Run is called on its own
// goroutine.
func New(host *xfer.HostChannel, scriptCh *xfer.ScriptChannel, cfg Config, logger *slog.Logger) *Engine {
	if logger == nil {
		logger = slog.Default()
	}
	return &Engine{
		host:   host,
		script: scriptCh,
		cfg:    cfg,
		logger: logger,
		state:  StateStarting,
		doneCh: make(chan xfer.EngineEvent, 1),
	}
}

// Done returns a channel that receives exactly one EngineEvent when the
// engine thread exits, whether by HostTerminate or by an unrecoverable
// Lua panic.
func (e *Engine) Done() <-chan xfer.EngineEvent { return e.doneCh }

// Run is the engine thread body: blocking receive loop over host, dispatch
// to the current script's callbacks, non-blocking send of resulting
// ScriptEvents. Intended to run on its own goroutine for the lifetime of
// the process.
func (e *Engine) Run(ctx context.Context) {
	e.state = StateIdle
	defer e.shutdown()

	for {
		ev, ok := e.host.Recv()
		if !ok {
			e.emitTerminated()
			return
		}

		switch ev.Kind {
		case xfer.HostTerminate:
			e.emitTerminated()
			return

		case xfer.HostLoadScript:
			e.handleLoadScript(ctx, ev.ScriptName, ev.ScriptSource)

		case xfer.HostDiscover:
			e.invokeWithBudget(ctx, func(l *lua.LState) {
				e.callDiscover(l, ev.DeviceNames)
			})

		case xfer.HostConnect:
			e.invokeWithBudget(ctx, func(l *lua.LState) {
				e.callConnect(l, ev.DeviceName)
			})

		case xfer.HostDisconnect, xfer.HostStop:
			e.state = StateIdle

		case xfer.HostAudio:
			if e.callbacks.onAudio == nil {
				continue
			}
			e.invokeWithBudget(ctx, func(l *lua.LState) {
				e.callOnAudio(l, ev.Frame)
			})

		case xfer.HostMidi:
			if e.callbacks.onMidi == nil {
				continue
			}
			e.invokeWithBudget(ctx, func(l *lua.LState) {
				e.callOnMidi(l, ev.Frame)
			})
		}

		if e.state == StatePanicked {
			return
		}
	}
}

func (e *Engine) handleLoadScript(ctx context.Context, name, source string) {
	newState := lua.NewState()
	registerHostAPI(newState, e)

	if err := newState.DoString(source); err != nil {
		e.logger.Error("script failed to load", "script", name, "err", err)
		e.trySend(xfer.ScriptEvent{Kind: xfer.ScriptAlert, Text: fmt.Sprintf("load error in %s: %v", name, err)})
		newState.Close()
		return
	}

	if e.L != nil {
		e.L.Close()
	}
	e.L = newState
	e.loadedName = name
	e.callbacks = callbackTable{
		onLoad:  getGlobalFunc(newState, "on_load"),
		onMidi:  getGlobalFunc(newState, "on_midi"),
		onAudio: getGlobalFunc(newState, "on_audio"),
	}
	e.state = StateRunning

	if e.callbacks.onLoad != nil {
		e.invokeWithBudget(ctx, func(l *lua.LState) {
			if err := l.CallByParam(lua.P{Fn: e.callbacks.onLoad, NRet: 0, Protect: true}); err != nil {
				e.logger.Warn("on_load raised an error", "script", name, "err", err)
			}
		})
	}

	// Loaded must reach the Application Core even if the channel is
	// momentarily full, since LoadScriptSync blocks waiting for it.
	if err := e.script.RetrySend(xfer.ScriptEvent{Kind: xfer.ScriptLoaded, Text: name}, 1000); err != nil {
		e.logger.Error("failed to deliver script-loaded event", "err", err)
	}
}

func getGlobalFunc(l *lua.LState, name string) *lua.LFunction {
	v := l.GetGlobal(name)
	fn, ok := v.(*lua.LFunction)
	if !ok {
		return nil
	}
	return fn
}

// invokeWithBudget runs fn against the live LState with PerEventBudget
// enforced via the state's context: gopher-lua checks ctx.Done() between
// VM instructions, so a runaway script is abandoned rather than blocking
// this goroutine forever. On expiry the engine logs a warning and emits an
// Alert, keeping the loaded script and its state, rather than tearing down
// the whole process; a Go-level panic recovered
// from CallByParam is treated as a harder failure and terminates the
// engine (EnginePanicked).
func (e *Engine) invokeWithBudget(parent context.Context, fn func(l *lua.LState)) {
	if e.L == nil {
		return
	}

	budget := e.cfg.PerEventBudget
	if budget <= 0 {
		budget = DefaultConfig().PerEventBudget
	}
	ctx, cancel := context.WithTimeout(parent, budget)
	defer cancel()
	e.L.SetContext(ctx)

	defer func() {
		if r := recover(); r != nil {
			e.logger.Error("script engine recovered from a Lua panic", "script", e.loadedName, "panic", r)
			e.state = StatePanicked
			e.trySend(xfer.ScriptEvent{Kind: xfer.ScriptAlert, Text: fmt.Sprintf("script panicked: %v", r)})
		}
	}()

	fn(e.L)

	if ctx.Err() != nil {
		e.logger.Warn("script event handler exceeded its time budget", "script", e.loadedName, "budget", budget)
		e.trySend(xfer.ScriptEvent{Kind: xfer.ScriptAlert, Text: fmt.Sprintf("%s: handler exceeded its time budget", e.loadedName)})
	}
}

func (e *Engine) trySend(ev xfer.ScriptEvent) {
	if err := e.script.TrySend(ev); err != nil {
		e.logger.Warn("dropping script event, channel full", "kind", ev.Kind)
	}
}

func (e *Engine) emitTerminated() {
	e.state = StateTerminated
	select {
	case e.doneCh <- xfer.EngineEvent{Kind: xfer.EngineTerminated}:
	default:
	}
}

func (e *Engine) shutdown() {
	if e.state == StatePanicked {
		select {
		case e.doneCh <- xfer.EngineEvent{Kind: xfer.EnginePanicked}:
		default:
		}
	}
	if e.L != nil {
		e.L.Close()
		e.L = nil
	}
}

// LoadError classifies a script source error for apperr propagation
// outside this package (e.g. when the Application Core surfaces a
// watcher-triggered reload failure).
func LoadError(name string, err error) error {
	return apperr.New(apperr.KindScript, "load_script", fmt.Errorf("%s: %w", name, err))
}
