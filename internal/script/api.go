// SPDX-License-Identifier: MIT

package script

import (
	lua "github.com/yuin/gopher-lua"

	"github.com/tomtom215/aud/internal/xfer"
)

// registerHostAPI installs the host-call surface a script sees: log,
// alert, connect, pause, resume, stop and send_midi. Each is a thin,
// allocation-tolerant wrapper around a ScriptEvent send; none of these
// run on the realtime capture thread, so blocking semantics here are
// about the script/engine boundary only, not audio latency.
func registerHostAPI(l *lua.LState, e *Engine) {
	l.SetGlobal("log", l.NewFunction(func(l *lua.LState) int {
		text := l.CheckString(1)
		e.trySend(xfer.ScriptEvent{Kind: xfer.ScriptLog, Text: text})
		return 0
	}))

	l.SetGlobal("alert", l.NewFunction(func(l *lua.LState) int {
		text := l.CheckString(1)
		e.trySend(xfer.ScriptEvent{Kind: xfer.ScriptAlert, Text: text})
		return 0
	}))

	l.SetGlobal("connect", l.NewFunction(func(l *lua.LState) int {
		name := l.CheckString(1)
		e.trySend(xfer.ScriptEvent{Kind: xfer.ScriptConnect, DeviceName: name})
		return 0
	}))

	l.SetGlobal("pause", l.NewFunction(func(l *lua.LState) int {
		e.trySend(xfer.ScriptEvent{Kind: xfer.ScriptControl, Control: xfer.ControlPause})
		return 0
	}))

	l.SetGlobal("resume", l.NewFunction(func(l *lua.LState) int {
		e.trySend(xfer.ScriptEvent{Kind: xfer.ScriptControl, Control: xfer.ControlResume})
		return 0
	}))

	l.SetGlobal("stop", l.NewFunction(func(l *lua.LState) int {
		e.trySend(xfer.ScriptEvent{Kind: xfer.ScriptControl, Control: xfer.ControlStop})
		return 0
	}))

	l.SetGlobal("send_midi", l.NewFunction(func(l *lua.LState) int {
		tbl := l.CheckTable(1)
		bytes := make([]byte, 0, tbl.Len())
		tbl.ForEach(func(_, v lua.LValue) {
			if n, ok := v.(lua.LNumber); ok {
				bytes = append(bytes, byte(int(n)&0xff))
			}
		})
		e.trySend(xfer.ScriptEvent{Kind: xfer.ScriptMidiOut, Bytes: bytes})
		return 0
	}))
}

// callDiscover invokes on_discover(names) if the script defines it,
// handing over the list of currently known device names.
func (e *Engine) callDiscover(l *lua.LState, names []string) {
	fn := getGlobalFunc(l, "on_discover")
	if fn == nil {
		return
	}
	tbl := l.NewTable()
	for _, n := range names {
		tbl.Append(lua.LString(n))
	}
	_ = l.CallByParam(lua.P{Fn: fn, NRet: 0, Protect: true}, tbl)
}

// callConnect invokes on_connect(name) if the script defines it.
func (e *Engine) callConnect(l *lua.LState, name string) {
	fn := getGlobalFunc(l, "on_connect")
	if fn == nil {
		return
	}
	_ = l.CallByParam(lua.P{Fn: fn, NRet: 0, Protect: true}, lua.LString(name))
}

// callOnMidi invokes on_midi(bytes, timestamp_ns) with the frame's raw
// MIDI message as a Lua table of byte values.
func (e *Engine) callOnMidi(l *lua.LState, frame xfer.CaptureFrame) {
	if e.callbacks.onMidi == nil || frame.Midi == nil {
		return
	}
	tbl := l.NewTable()
	for _, b := range frame.Midi.Bytes {
		tbl.Append(lua.LNumber(b))
	}
	_ = l.CallByParam(lua.P{Fn: e.callbacks.onMidi, NRet: 0, Protect: true},
		tbl, lua.LNumber(frame.Midi.TimestampNS))
}

// callOnAudio invokes on_audio(channels) with each channel's samples as a
// Lua table of numbers. Scripts that only care about MIDI simply never
// define on_audio, in which case Run never calls this (see the nil check
// around HostAudio dispatch in engine.go).
func (e *Engine) callOnAudio(l *lua.LState, frame xfer.CaptureFrame) {
	if e.callbacks.onAudio == nil || frame.Audio == nil {
		return
	}
	outer := l.NewTable()
	for _, ch := range frame.Audio.Channels {
		inner := l.NewTable()
		for _, sample := range ch {
			inner.Append(lua.LNumber(sample))
		}
		outer.Append(inner)
	}
	_ = l.CallByParam(lua.P{Fn: e.callbacks.onAudio, NRet: 0, Protect: true}, outer)
}
