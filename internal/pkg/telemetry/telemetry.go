// Package telemetry carries best-effort success/failure signals out of the
// guestlist operations (the scanner's haptic feedback, dashboards).
package telemetry

import (
	"context"
	"log/slog"
	"sync"
)

type Outcome string

const (
	Success Outcome = "success"
	Warning Outcome = "warning"
	Failure Outcome = "failure"
)

// Sink receives signals. Implementations must return immediately.
type Sink interface {
	Signal(ctx context.Context, op string, outcome Outcome)
}

// Nop discards every signal.
type Nop struct{}

func (Nop) Signal(context.Context, string, Outcome) {}

type signal struct {
	op      string
	outcome Outcome
}

// LogSink writes signals to slog from a background goroutine. When the
// buffer is full signals are dropped instead of blocking the caller.
type LogSink struct {
	log  *slog.Logger
	ch   chan signal
	done chan struct{}
	once sync.Once
}

func NewLogSink(log *slog.Logger, buffer int) *LogSink {
	if log == nil {
		log = slog.Default()
	}
	s := &LogSink{log: log, ch: make(chan signal, buffer), done: make(chan struct{})}
	go s.run()
	return s
}

func (s *LogSink) Signal(_ context.Context, op string, outcome Outcome) {
	select {
	case <-s.done:
	case s.ch <- signal{op: op, outcome: outcome}:
	default:
	}
}

// Close stops the background writer. Signals sent afterwards are dropped.
func (s *LogSink) Close() {
	s.once.Do(func() { close(s.done) })
}

func (s *LogSink) run() {
	for {
		select {
		case <-s.done:
			return
		case sig := <-s.ch:
			level := slog.LevelInfo
			if sig.outcome == Failure {
				level = slog.LevelWarn
			}
			s.log.Log(context.Background(), level, "feedback", "op", sig.op, "outcome", sig.outcome)
		}
	}
}
