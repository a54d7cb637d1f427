// SPDX-License-Identifier: MIT

package capture

import (
	"context"
	"fmt"
	"sync"

	"github.com/gordonklaus/portaudio"

	"github.com/tomtom215/aud/internal/apperr"
	"github.com/tomtom215/aud/internal/devid"
	"github.com/tomtom215/aud/internal/xfer"
)

// LocalAudioSource captures from the OS-native audio subsystem via
// PortAudio. Grounded on playok-audio-modem's pc/internal/audio/portaudio.go
// use of portaudio.OpenDefaultStream with a callback buffer.
type LocalAudioSource struct {
	errorSink

	mu   sync.Mutex
	host *portaudio.HostApiInfo
}

// NewLocalAudioSource initializes PortAudio. Callers must call Close when
// the source is no longer needed.
func NewLocalAudioSource() (*LocalAudioSource, error) {
	if err := portaudio.Initialize(); err != nil {
		return nil, apperr.New(apperr.KindDevice, "initialize", err)
	}
	host, err := portaudio.DefaultHostApi()
	if err != nil {
		_ = portaudio.Terminate()
		return nil, apperr.New(apperr.KindDevice, "host-api", err)
	}
	return &LocalAudioSource{errorSink: newErrorSink(), host: host}, nil
}

// Close terminates the underlying PortAudio session.
func (s *LocalAudioSource) Close() error {
	return portaudio.Terminate()
}

// Enumerate lists input-capable devices as stable DeviceHandles.
func (s *LocalAudioSource) Enumerate(ctx context.Context) ([]xfer.DeviceHandle, error) {
	devices, err := portaudio.Devices()
	if err != nil {
		return nil, apperr.New(apperr.KindDevice, "enumerate", fmt.Errorf("%w: %v", apperr.ErrEnumerate, err))
	}

	var out []xfer.DeviceHandle
	for _, d := range devices {
		if d.MaxInputChannels < 1 {
			continue
		}
		out = append(out, xfer.DeviceHandle{
			ID:   devid.ForAudioDevice(d.Name, d.HostApi.Name),
			Name: d.Name,
		})
	}
	return out, nil
}

// audioStreamHandle adapts a *portaudio.Stream to capture.StreamHandle.
type audioStreamHandle struct {
	stream *portaudio.Stream
}

func (h *audioStreamHandle) Pause() error  { return h.stream.Stop() }
func (h *audioStreamHandle) Resume() error { return h.stream.Start() }
func (h *audioStreamHandle) Close() error  { return h.stream.Close() }

// Open starts a realtime capture stream on the named device. The installed
// callback performs only two actions: copy samples into a pooled scratch
// buffer, then attempt one non-blocking push to ring. It never allocates
// once the stream is running.
func (s *LocalAudioSource) Open(ctx context.Context, h xfer.DeviceHandle, cfg StreamConfig, ring *xfer.CaptureRing) (StreamHandle, error) {
	devices, err := portaudio.Devices()
	if err != nil {
		return nil, apperr.New(apperr.KindDevice, "open", fmt.Errorf("%w: %v", apperr.ErrEnumerate, err))
	}

	var dev *portaudio.DeviceInfo
	for _, d := range devices {
		if d.MaxInputChannels > 0 && devid.ForAudioDevice(d.Name, d.HostApi.Name) == h.ID {
			dev = d
			break
		}
	}
	if dev == nil {
		return nil, apperr.New(apperr.KindDevice, "open", apperr.ErrOpenFailed)
	}

	channels := cfg.Channels
	if channels < 1 || channels > dev.MaxInputChannels {
		channels = dev.MaxInputChannels
	}
	sampleRate := float64(cfg.SampleRate)
	if sampleRate <= 0 {
		sampleRate = dev.DefaultSampleRate
	}

	params := portaudio.StreamParameters{
		Input: portaudio.StreamDeviceParameters{
			Device:   dev,
			Channels: channels,
			Latency:  dev.DefaultLowInputLatency,
		},
		SampleRate:      sampleRate,
		FramesPerBuffer: portaudio.FramesPerBufferUnspecified,
	}

	// Pool of preallocated per-channel sample buffers so the realtime
	// callback below never allocates: PortAudio reuses its own `in` buffer
	// across invocations, so samples are copied into one of these pooled
	// buffers (rotated by index, no lock) before the non-blocking push.
	const poolSize = 8
	pool := make([][][]float32, poolSize)
	for i := range pool {
		pool[i] = make([][]float32, channels)
		for c := range pool[i] {
			pool[i][c] = make([]float32, 0, 4096)
		}
	}
	frames := make([]xfer.AudioFrame, poolSize)
	var next uint32

	callback := func(in [][]float32) {
		// Realtime path: no allocation, no locks, best-effort non-blocking push.
		idx := next % poolSize
		next++
		dst := pool[idx]
		for c := range in {
			if c >= len(dst) {
				break
			}
			dst[c] = append(dst[c][:0], in[c]...)
		}
		frames[idx].Channels = dst[:min(len(in), len(dst))]
		frame := xfer.CaptureFrame{Audio: &frames[idx]}
		ring.TryPush(frame) // drop newest on full when the ring is saturated
	}

	stream, err := portaudio.OpenStream(params, callback)
	if err != nil {
		return nil, apperr.New(apperr.KindDevice, "open", fmt.Errorf("%w: %v", apperr.ErrOpenFailed, err))
	}
	if err := stream.Start(); err != nil {
		_ = stream.Close()
		return nil, apperr.New(apperr.KindDevice, "open", fmt.Errorf("%w: %v", apperr.ErrOpenFailed, err))
	}

	return &audioStreamHandle{stream: stream}, nil
}
