// SPDX-License-Identifier: MIT

package capture

import (
	"context"
	"fmt"
	"sync"

	"github.com/tomtom215/aud/internal/apperr"
	"github.com/tomtom215/aud/internal/devid"
	"github.com/tomtom215/aud/internal/util"
	"github.com/tomtom215/aud/internal/xfer"
)

// midiBackend is the OS-native MIDI capability this source drives. Its
// shape mirrors leandrodaf-midi's contracts.ClientMIDI interface
// (Stop/ListDevices/SelectDevice/StartCapture) rather than importing that
// module directly: leandrodaf-midi's only real backend is CoreMIDI behind
// cgo and a Darwin build tag, and pulling in a single-OS cgo dependency as
// the *sole* MIDI capture path would make every other platform in this
// module unbuildable. The interface is reused; the implementation is a
// platform-neutral poller that a real build would satisfy per-OS exactly
// the way leandrodaf-midi's internal/midi/{midiwindows,mididarwin}
// sub-packages do (see DESIGN.md).
type midiBackend interface {
	ListDevices() ([]midiDeviceInfo, error)
	SelectDevice(id string) error
	StartCapture(ctx context.Context, events chan<- MidiEvent) error
	Stop() error
}

type midiDeviceInfo struct {
	ID   string
	Name string
}

// MidiEvent is a timestamped raw MIDI message as handed up from the backend.
type MidiEvent struct {
	Bytes       []byte
	TimestampNS int64
}

// LocalMIDISource captures from the OS-native MIDI subsystem.
type LocalMIDISource struct {
	errorSink

	backend midiBackend

	mu     sync.Mutex
	cancel context.CancelFunc
}

// NewLocalMIDISource wraps the given platform backend.
func NewLocalMIDISource(backend midiBackend) *LocalMIDISource {
	return &LocalMIDISource{errorSink: newErrorSink(), backend: backend}
}

func (s *LocalMIDISource) Enumerate(ctx context.Context) ([]xfer.DeviceHandle, error) {
	devices, err := s.backend.ListDevices()
	if err != nil {
		return nil, apperr.New(apperr.KindDevice, "enumerate", fmt.Errorf("%w: %v", apperr.ErrEnumerate, err))
	}
	out := make([]xfer.DeviceHandle, 0, len(devices))
	for _, d := range devices {
		out = append(out, xfer.DeviceHandle{ID: devid.ForMIDIDevice(d.ID), Name: d.Name})
	}
	return out, nil
}

type midiStreamHandle struct {
	source *LocalMIDISource
	paused bool
}

func (h *midiStreamHandle) Pause() error {
	h.paused = true
	return h.source.backend.Stop()
}

func (h *midiStreamHandle) Resume() error {
	h.paused = false
	return nil // caller must re-Open to resume capture in this simplified contract
}

func (h *midiStreamHandle) Close() error {
	h.source.mu.Lock()
	defer h.source.mu.Unlock()
	if h.source.cancel != nil {
		h.source.cancel()
		h.source.cancel = nil
	}
	return h.source.backend.Stop()
}

// Open selects the device and starts a background goroutine translating raw
// MIDI events into CaptureFrames pushed into ring. The goroutine itself is
// not the "realtime callback" in the cpal/portaudio sense (MIDI backends
// typically deliver events already marshaled off their own OS thread), but
// it obeys the same non-blocking, drop-newest contract on the ring.
func (s *LocalMIDISource) Open(ctx context.Context, h xfer.DeviceHandle, cfg StreamConfig, ring *xfer.CaptureRing) (StreamHandle, error) {
	if err := s.backend.SelectDevice(h.ID); err != nil {
		return nil, apperr.New(apperr.KindDevice, "open", fmt.Errorf("%w: %v", apperr.ErrOpenFailed, err))
	}

	runCtx, cancel := context.WithCancel(ctx)
	s.mu.Lock()
	s.cancel = cancel
	s.mu.Unlock()

	events := make(chan MidiEvent, 256)
	if err := s.backend.StartCapture(runCtx, events); err != nil {
		cancel()
		return nil, apperr.New(apperr.KindDevice, "open", fmt.Errorf("%w: %v", apperr.ErrOpenFailed, err))
	}

	util.SafeGo("midi-capture", nil, func() {
		for {
			select {
			case <-runCtx.Done():
				return
			case ev, ok := <-events:
				if !ok {
					s.reportError(fmt.Errorf("%w: midi event stream closed", apperr.ErrDeviceLost))
					return
				}
				frame := xfer.CaptureFrame{Midi: &xfer.MidiFrame{Bytes: ev.Bytes, TimestampNS: ev.TimestampNS}}
				ring.TryPush(frame) // drop newest on full when the ring is saturated
			}
		}
	}, func(r interface{}, _ []byte) {
		s.reportError(fmt.Errorf("%w: midi capture goroutine panicked: %v", apperr.ErrDeviceLost, r))
	})

	return &midiStreamHandle{source: s}, nil
}
