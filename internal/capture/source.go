// SPDX-License-Identifier: MIT

// Package capture implements the device capture source abstraction: a
// narrow capability interface (enumerate/open/pause/resume/close) with
// local (OS audio/MIDI subsystem) and remote (network transport) variants
// dispatched dynamically behind a single Source interface.
package capture

import (
	"context"
	"time"

	"github.com/tomtom215/aud/internal/xfer"
)

// StreamConfig carries the negotiated parameters of an open capture stream.
type StreamConfig struct {
	SampleRate int // audio only
	Channels   int // audio only
}

// Source is the capability contract every capture backend implements. The
// interface is intentionally narrow: the Application Core is agnostic to
// which concrete Source it holds.
type Source interface {
	// Enumerate lists currently available devices.
	Enumerate(ctx context.Context) ([]xfer.DeviceHandle, error)

	// Open starts capturing from the given device into ring, returning a
	// handle the caller uses to pause/resume/close the stream. Open must
	// install whatever OS callback is required and return promptly; all
	// capture happens asynchronously via ring.
	Open(ctx context.Context, h xfer.DeviceHandle, cfg StreamConfig, ring *xfer.CaptureRing) (StreamHandle, error)

	// Errors returns the out-of-band device-error channel, drained once per
	// Tick by the Application Core.
	Errors() <-chan error
}

// StreamHandle controls one open capture stream.
type StreamHandle interface {
	Pause() error
	Resume() error
	Close() error
}

// errorSink is embedded by Source implementations to provide a bounded
// out-of-band device-error queue, drained by the Application Core.
type errorSink struct {
	ch chan error
}

func newErrorSink() errorSink {
	return errorSink{ch: make(chan error, 64)}
}

func (s *errorSink) Errors() <-chan error { return s.ch }

func (s *errorSink) reportError(err error) {
	select {
	case s.ch <- err:
	default:
		// Out-of-band queue is generously sized; if it's ever full the
		// newest report is dropped (queued older errors are kept) rather
		// than blocking the reporting goroutine.
	}
}

// deviceLostTimeout bounds the websocket handshake when a remote Source
// dials a candidate port.
const deviceLostTimeout = 5 * time.Second
