// SPDX-License-Identifier: MIT

// Package app implements the Application Core: the single-threaded
// orchestrator that owns device connection state, drains the capture
// ring and script-event channel once per Tick, and exposes a read-only
// ViewModel for an external renderer.
package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/tomtom215/aud/internal/apperr"
	"github.com/tomtom215/aud/internal/capture"
	"github.com/tomtom215/aud/internal/script"
	"github.com/tomtom215/aud/internal/watcher"
	"github.com/tomtom215/aud/internal/xfer"
)

// StreamState is a small enum with a String method, in the style used
// throughout this codebase for lifecycle states.
type StreamState int

const (
	StreamIdle StreamState = iota
	StreamActive
)

func (s StreamState) String() string {
	switch s {
	case StreamIdle:
		return "idle"
	case StreamActive:
		return "active"
	default:
		return fmt.Sprintf("unknown(%d)", s)
	}
}

// Config tunes ring/channel capacities and tick-independent timeouts.
type Config struct {
	RingCapacity         int
	HostChanCapacity     int
	ScriptChanCap        int
	MessageRingCap       int
	LoadScriptTimeout    time.Duration
	TerminateTimeout     time.Duration
	WatcherDebounce      time.Duration
	ScriptPerEventBudget time.Duration
}

// DefaultConfig returns sane, documented defaults rather than requiring
// every caller to specify every knob.
func DefaultConfig() Config {
	return Config{
		RingCapacity:         100,
		HostChanCapacity:     1000,
		ScriptChanCap:        1000,
		MessageRingCap:       256,
		LoadScriptTimeout:    2 * time.Second,
		TerminateTimeout:     250 * time.Millisecond,
		WatcherDebounce:      100 * time.Millisecond,
		ScriptPerEventBudget: 50 * time.Millisecond,
	}
}

// Core is the Application Core: owned entirely by one goroutine (the
// caller's tick loop). None of its methods are safe to call concurrently
// with each other.
type Core struct {
	cfg    Config
	logger *slog.Logger

	source capture.Source
	ring   *xfer.CaptureRing
	host   *xfer.HostChannel
	script *xfer.ScriptChannel

	devices []xfer.DeviceHandle
	cursor  int

	state     StreamState
	connected xfer.DeviceHandle
	handle    capture.StreamHandle
	streamCfg capture.StreamConfig

	alert    *xfer.AlertSlot
	messages *xfer.MessageRing

	loadedScriptName  string
	lastLoadConfirmed bool
	scriptWatcher     *watcher.Watcher
	watcherCancel     context.CancelFunc

	engineDone     <-chan xfer.EngineEvent
	enginePanicked bool
}

// New wires a Core around source, starting the script engine on its own
// goroutine immediately (idle until the first LoadScript).
func New(ctx context.Context, source capture.Source, cfg Config, logger *slog.Logger) *Core {
	if logger == nil {
		logger = slog.Default()
	}
	if cfg.RingCapacity <= 0 {
		cfg = DefaultConfig()
	}

	scriptCfg := script.DefaultConfig()
	if cfg.ScriptPerEventBudget > 0 {
		scriptCfg.PerEventBudget = cfg.ScriptPerEventBudget
	}

	host := xfer.NewHostChannel(cfg.HostChanCapacity)
	scriptCh := xfer.NewScriptChannel(cfg.ScriptChanCap)
	engine := script.New(host, scriptCh, scriptCfg, logger.With("component", "script"))

	c := &Core{
		cfg:      cfg,
		logger:   logger,
		source:   source,
		ring:     xfer.NewCaptureRing(cfg.RingCapacity),
		host:     host,
		script:   scriptCh,
		alert:    &xfer.AlertSlot{},
		messages: xfer.NewMessageRing(cfg.MessageRingCap),
		state:    StreamIdle,
	}
	c.engineDone = engine.Done()

	go engine.Run(ctx)

	return c
}

// Devices returns the most recent device enumeration snapshot.
func (c *Core) Devices() []xfer.DeviceHandle { return c.devices }

// Cursor returns the current selection cursor into Devices().
func (c *Core) Cursor() int { return c.cursor }

// SelectCursor moves the selection cursor without connecting to
// anything. Cursor movement and connection are deliberately separate
// operations: only ConnectByIndex/ConnectByName change StreamState.
func (c *Core) SelectCursor(i int) {
	if i < 0 || i >= len(c.devices) {
		return
	}
	c.cursor = i
}

// sendHost forwards ev to the script engine's host channel, unless the
// engine has already panicked: once EnginePanicked() is true nothing reads
// that channel again, so every further HostEvent is dropped at the Core
// boundary instead of piling up as TrySend failures.
func (c *Core) sendHost(ev xfer.HostEvent) error {
	if c.enginePanicked {
		return nil
	}
	return c.host.TrySend(ev)
}

// Rescan re-enumerates devices from the source.
func (c *Core) Rescan(ctx context.Context) error {
	devices, err := c.source.Enumerate(ctx)
	if err != nil {
		wrapped := apperr.New(apperr.KindDevice, "rescan", fmt.Errorf("%w: %v", apperr.ErrEnumerate, err))
		c.alert.Set(wrapped.Error())
		return wrapped
	}
	c.devices = devices
	if c.cursor >= len(devices) {
		c.cursor = 0
	}
	names := make([]string, len(devices))
	for i, d := range devices {
		names[i] = d.Name
	}
	if err := c.sendHost(xfer.HostEvent{Kind: xfer.HostDiscover, DeviceNames: names}); err != nil {
		c.logger.Warn("failed to forward device discovery to script engine", "err", err)
	}
	return nil
}

// ConnectByIndex connects to devices()[i], closing any previously open
// stream first. This is the only path by which a stream becomes Active;
// pressing Enter on a device row always calls this; there is no
// disabled/no-op path.
func (c *Core) ConnectByIndex(ctx context.Context, i int) error {
	if i < 0 || i >= len(c.devices) {
		return nil
	}
	return c.connect(ctx, c.devices[i])
}

// ConnectByName resolves name against the current device list and
// connects by index.
func (c *Core) ConnectByName(ctx context.Context, name string) error {
	for i, d := range c.devices {
		if d.Name == name {
			return c.ConnectByIndex(ctx, i)
		}
	}
	return nil
}

func (c *Core) connect(ctx context.Context, h xfer.DeviceHandle) error {
	if c.handle != nil {
		_ = c.handle.Close()
		c.handle = nil
	}

	handle, err := c.source.Open(ctx, h, c.streamCfg, c.ring)
	if err != nil {
		wrapped := apperr.New(apperr.KindDevice, "connect", err)
		c.alert.Set(wrapped.Error())
		c.state = StreamIdle
		return wrapped
	}

	c.handle = handle
	c.connected = h
	c.state = StreamActive
	c.messages.Clear()

	if err := c.sendHost(xfer.HostEvent{Kind: xfer.HostConnect, DeviceName: h.Name}); err != nil {
		c.logger.Warn("failed to forward connect event to script engine", "err", err)
	}
	return nil
}

// LoadScript sends the named script to the engine without blocking. The
// previous stream is stopped first (HostStop) and discovery/connect
// state replayed so the freshly loaded script sees the current device
// list and active connection.
func (c *Core) LoadScript(path string) error {
	source, err := os.ReadFile(path)
	if err != nil {
		return apperr.New(apperr.KindScript, "load_script", err)
	}
	name := filepath.Base(path)

	if err := c.sendHost(xfer.HostEvent{Kind: xfer.HostStop}); err != nil {
		c.logger.Warn("failed to send stop before load", "err", err)
	}

	if err := c.sendHost(xfer.HostEvent{Kind: xfer.HostLoadScript, ScriptName: name, ScriptSource: string(source)}); err != nil {
		return apperr.New(apperr.KindScript, "load_script", err)
	}
	c.loadedScriptName = name

	names := make([]string, len(c.devices))
	for i, d := range c.devices {
		names[i] = d.Name
	}
	if err := c.sendHost(xfer.HostEvent{Kind: xfer.HostDiscover, DeviceNames: names}); err != nil {
		c.logger.Warn("failed to replay discovery after load", "err", err)
	}

	if c.state == StreamActive {
		if err := c.sendHost(xfer.HostEvent{Kind: xfer.HostConnect, DeviceName: c.connected.Name}); err != nil {
			c.logger.Warn("failed to replay connect after load", "err", err)
		}
	}

	c.rewatch(path)
	return nil
}

func (c *Core) rewatch(path string) {
	if c.watcherCancel != nil {
		c.watcherCancel()
		c.watcherCancel = nil
	}
	if c.scriptWatcher != nil {
		_ = c.scriptWatcher.Close()
		c.scriptWatcher = nil
	}

	w, err := watcher.New(path, watcher.Config{Debounce: c.cfg.WatcherDebounce}, c.logger.With("component", "watcher"))
	if err != nil {
		c.logger.Warn("failed to start script file watcher", "path", path, "err", err)
		return
	}
	ctx, cancel := context.WithCancel(context.Background())
	c.scriptWatcher = w
	c.watcherCancel = cancel
	go w.Run(ctx, func() {
		if err := c.LoadScript(path); err != nil {
			c.logger.Warn("hot reload failed", "path", path, "err", err)
		}
	})
}

// LoadScriptSync calls LoadScript then blocks, draining script events,
// until the engine confirms the load (ScriptLoaded) or timeout elapses.
func (c *Core) LoadScriptSync(path string, timeout time.Duration) error {
	if err := c.LoadScript(path); err != nil {
		return err
	}
	deadline := time.Now().Add(timeout)
	for {
		c.drainScriptEvents()
		if c.loadedScriptName == filepath.Base(path) && c.lastLoadConfirmed {
			c.lastLoadConfirmed = false
			return nil
		}
		if time.Now().After(deadline) {
			return apperr.New(apperr.KindScript, "load_script_sync", fmt.Errorf("timed out waiting for script to load"))
		}
		time.Sleep(time.Millisecond)
	}
}

// WaitForAlert blocks, ticking script-event drains, until an alert is
// available or timeout elapses, returning whatever alert (if any) is
// pending when it returns.
func (c *Core) WaitForAlert(timeout time.Duration) (string, bool) {
	deadline := time.Now().Add(timeout)
	for {
		c.drainScriptEvents()
		if text, ok := c.alert.Take(); ok {
			return text, true
		}
		if time.Now().After(deadline) {
			return "", false
		}
		time.Sleep(time.Millisecond)
	}
}

// TakeMessages returns and clears the buffered capture frames surfaced
// to the view since the last call.
func (c *Core) TakeMessages() []xfer.CaptureFrame {
	return c.messages.Take()
}

// Tick drains the capture ring before draining script events, a
// hard-coded order: events a script just emitted in reaction to frame N
// must never be visible before frame N's own forwarding completes.
func (c *Core) Tick(ctx context.Context) {
	c.drainCapture()
	c.drainScriptEvents()
	c.drainDeviceErrors()
	c.drainEngineEvents()
}

func (c *Core) drainCapture() {
	frames := c.ring.DrainInto(nil)
	for _, f := range frames {
		c.messages.Push(f)

		ev := xfer.HostEvent{Frame: f}
		if f.Audio != nil {
			ev.Kind = xfer.HostAudio
		} else if f.Midi != nil {
			ev.Kind = xfer.HostMidi
		} else {
			continue
		}
		if err := c.sendHost(ev); err != nil {
			c.logger.Warn("dropping capture frame, host channel full", "err", err)
		}
	}
}

func (c *Core) drainScriptEvents() {
	for {
		ev, ok := c.script.TryRecv()
		if !ok {
			return
		}
		switch ev.Kind {
		case xfer.ScriptLoaded:
			c.loadedScriptName = ev.Text
			c.lastLoadConfirmed = true
		case xfer.ScriptLog:
			c.logger.Info("script log", "script", c.loadedScriptName, "msg", ev.Text)
		case xfer.ScriptAlert:
			c.alert.Set(ev.Text)
		case xfer.ScriptConnect:
			if err := c.ConnectByName(context.Background(), ev.DeviceName); err != nil {
				c.logger.Warn("script-requested connect failed", "device", ev.DeviceName, "err", err)
			}
		case xfer.ScriptControl:
			c.applyControl(ev.Control)
		case xfer.ScriptMidiOut:
			// Surfaced to the view only; this module has no outbound MIDI
			// transport of its own (observation engine, not a MIDI router).
			c.messages.Push(xfer.CaptureFrame{Midi: &xfer.MidiFrame{Bytes: ev.Bytes}})
		}
	}
}

func (c *Core) applyControl(ctrl xfer.ControlFlow) {
	if c.handle == nil {
		return
	}
	switch ctrl {
	case xfer.ControlPause:
		_ = c.handle.Pause()
	case xfer.ControlResume:
		_ = c.handle.Resume()
	case xfer.ControlStop:
		_ = c.handle.Close()
		c.handle = nil
		c.state = StreamIdle
	}
}

func (c *Core) drainDeviceErrors() {
	for {
		select {
		case err, ok := <-c.source.Errors():
			if !ok {
				return
			}
			c.alert.Set(err.Error())
			if errors.Is(err, apperr.ErrDeviceLost) {
				c.state = StreamIdle
				if c.handle != nil {
					_ = c.handle.Close()
					c.handle = nil
				}
			}
		default:
			return
		}
	}
}

func (c *Core) drainEngineEvents() {
	select {
	case ev, ok := <-c.engineDone:
		if !ok {
			return
		}
		if ev.Kind == xfer.EnginePanicked {
			c.enginePanicked = true
			c.alert.Set("script engine panicked and is no longer accepting events")
		}
	default:
	}
}

// EnginePanicked reports whether the script engine thread has died. Once
// true, no further HostEvents will ever be processed.
func (c *Core) EnginePanicked() bool { return c.enginePanicked }

// StreamState reports the current capture connection state.
func (c *Core) StreamState() StreamState { return c.state }

// Connected reports the device currently connected (or last connected),
// valid once StreamState is past StreamIdle.
func (c *Core) Connected() xfer.DeviceHandle { return c.connected }

// Shutdown stops the active stream, tells the script engine to
// terminate (retrying briefly if the channel is momentarily full), and
// stops the script watcher. The host channel is closed to new sends
// after the Terminate attempt, whether or not it was accepted; a failed
// attempt is returned as the error.
func (c *Core) Shutdown() error {
	if c.watcherCancel != nil {
		c.watcherCancel()
	}
	if c.scriptWatcher != nil {
		_ = c.scriptWatcher.Close()
	}
	if c.handle != nil {
		_ = c.handle.Close()
		c.handle = nil
	}
	err := xfer.SendTerminate(c.host, c.cfg.TerminateTimeout)
	c.host.Close()
	return err
}
