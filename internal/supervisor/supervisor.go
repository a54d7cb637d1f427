// SPDX-License-Identifier: MIT

// Package supervisor runs long-lived goroutines (the CLI tick loop, and
// anything else worth restarting rather than losing on a panic) under a
// real suture.Supervisor tree. A Go panic escaping a supervised Serve
// call is caught by suture, logged through the EventHook, and the
// service is restarted with backoff instead of taking the process down.
package supervisor

import (
	"context"
	"log/slog"
	"time"

	"github.com/thejerf/suture/v4"
)

// Service is anything the supervisor can run and restart on failure. It
// matches suture.Service directly: Serve must block until ctx is
// cancelled or the service dies.
type Service interface {
	Serve(ctx context.Context) error
}

// Config tunes the underlying suture tree.
type Config struct {
	Logger           *slog.Logger
	FailureThreshold float64
	FailureBackoff   time.Duration
}

// DefaultConfig returns sane restart-backoff defaults.
func DefaultConfig() Config {
	return Config{
		FailureThreshold: 5,
		FailureBackoff:   time.Second,
	}
}

// Supervisor wraps a suture.Supervisor, translating its Event stream into
// structured log lines rather than suture's default stderr writer.
type Supervisor struct {
	sup *suture.Supervisor
}

// New creates a supervisor tree named name.
func New(name string, cfg Config) *Supervisor {
	logger := cfg.Logger
	threshold := cfg.FailureThreshold
	if threshold <= 0 {
		threshold = DefaultConfig().FailureThreshold
	}
	backoff := cfg.FailureBackoff
	if backoff <= 0 {
		backoff = DefaultConfig().FailureBackoff
	}

	spec := suture.Spec{
		FailureThreshold: threshold,
		FailureBackoff:   backoff,
		EventHook: func(ev suture.Event) {
			if logger == nil {
				return
			}
			switch ev.Type() {
			case suture.EventTypeServicePanic:
				logger.Error("supervised service panicked", "event", ev.String())
			case suture.EventTypeServiceTerminate:
				logger.Warn("supervised service terminated", "event", ev.String())
			case suture.EventTypeBackoff:
				logger.Warn("supervisor entering backoff", "event", ev.String())
			default:
				logger.Info("supervisor event", "event", ev.String())
			}
		},
	}
	return &Supervisor{sup: suture.New(name, spec)}
}

// Add registers svc, returning a token Remove can use to unregister it.
func (s *Supervisor) Add(svc Service) suture.ServiceToken {
	return s.sup.Add(svc)
}

// Remove unregisters a previously added service.
func (s *Supervisor) Remove(token suture.ServiceToken) error {
	return s.sup.Remove(token)
}

// Serve blocks, running every registered service until ctx is cancelled,
// restarting any that return early or panic.
func (s *Supervisor) Serve(ctx context.Context) error {
	return s.sup.Serve(ctx)
}

// ServeBackground starts Serve on its own goroutine and returns a channel
// that receives the terminal error, for callers that need to keep doing
// other work on the calling goroutine.
func (s *Supervisor) ServeBackground(ctx context.Context) <-chan error {
	return s.sup.ServeBackground(ctx)
}
