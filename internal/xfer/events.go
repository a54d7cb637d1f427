// SPDX-License-Identifier: MIT

// Package xfer implements the three transfer surfaces that cross the
// device/application/script thread boundaries: a lock-free capture ring and
// two bounded host<->script event channels. Nothing in this package
// allocates beyond setup, and the capture ring never blocks or locks on the
// producer side.
package xfer

import "fmt"

// AudioFrame is one block of interleaved-by-channel float samples.
type AudioFrame struct {
	Channels [][]float32 // Channels[c][i] is sample i of channel c, each in [-1, 1]
}

// MidiFrame is one short MIDI message.
type MidiFrame struct {
	Bytes       []byte
	TimestampNS int64 // monotonic nanoseconds
}

// CaptureFrame is a single unit pulled from the device queue: exactly one of
// Audio or Midi is set. It is immutable once produced.
type CaptureFrame struct {
	Audio *AudioFrame
	Midi  *MidiFrame
}

// DeviceHandle identifies an input device within one enumeration snapshot.
type DeviceHandle struct {
	ID   string // stable identifier, see internal/devid
	Name string // human-readable, unique within a snapshot
}

// StreamState is the sum-typed current capture status of the Application Core.
type StreamState struct {
	Active bool
	Device DeviceHandle
}

func (s StreamState) String() string {
	if !s.Active {
		return "idle"
	}
	return fmt.Sprintf("active(%s)", s.Device.Name)
}

// HostEventKind enumerates the host->script event variants.
type HostEventKind int

const (
	HostConnect HostEventKind = iota
	HostDisconnect
	HostDiscover
	HostLoadScript
	HostStop
	HostTerminate
	HostAudio
	HostMidi
)

func (k HostEventKind) String() string {
	switch k {
	case HostConnect:
		return "Connect"
	case HostDisconnect:
		return "Disconnect"
	case HostDiscover:
		return "Discover"
	case HostLoadScript:
		return "LoadScript"
	case HostStop:
		return "Stop"
	case HostTerminate:
		return "Terminate"
	case HostAudio:
		return "Audio"
	case HostMidi:
		return "Midi"
	default:
		return fmt.Sprintf("unknown(%d)", k)
	}
}

// HostEvent is a host->script message. Only the fields relevant to Kind are set.
type HostEvent struct {
	Kind HostEventKind

	DeviceName   string       // Connect
	DeviceNames  []string     // Discover
	ScriptName   string       // LoadScript
	ScriptSource string       // LoadScript
	Frame        CaptureFrame // Audio, Midi
}

// ScriptEventKind enumerates the script->host event variants.
type ScriptEventKind int

const (
	ScriptLoaded ScriptEventKind = iota
	ScriptLog
	ScriptAlert
	ScriptMidiOut
	ScriptConnect
	ScriptControl
)

func (k ScriptEventKind) String() string {
	switch k {
	case ScriptLoaded:
		return "Loaded"
	case ScriptLog:
		return "Log"
	case ScriptAlert:
		return "Alert"
	case ScriptMidiOut:
		return "MidiOut"
	case ScriptConnect:
		return "Connect"
	case ScriptControl:
		return "Control"
	default:
		return fmt.Sprintf("unknown(%d)", k)
	}
}

// ControlFlow is the payload of a ScriptControl event.
type ControlFlow int

const (
	ControlPause ControlFlow = iota
	ControlResume
	ControlStop
)

// ScriptEvent is a script->host message. Only the fields relevant to Kind are set.
type ScriptEvent struct {
	Kind ScriptEventKind

	Text       string      // Log, Alert
	Bytes      []byte      // MidiOut
	DeviceName string      // Connect
	Control    ControlFlow // Control
}

// EngineEventKind enumerates engine lifecycle events observed by the Application Core.
type EngineEventKind int

const (
	EnginePanicked EngineEventKind = iota
	EngineTerminated
)

func (k EngineEventKind) String() string {
	if k == EnginePanicked {
		return "Panicked"
	}
	return "Terminated"
}

// EngineEvent reports script engine lifecycle transitions.
type EngineEvent struct {
	Kind EngineEventKind
}
