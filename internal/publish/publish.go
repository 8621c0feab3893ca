// Package publish delivers engine events to the outside world.
package publish

import (
	"context"
	"errors"
	"log/slog"

	"github.com/jwtly10/tradegate/internal/types"
)

// Sink receives the events of one tick, in order.
type Sink interface {
	Publish(ctx context.Context, events []types.Event) error
	Close() error
}

// LogSink writes each event as a structured log line.
type LogSink struct {
	log *slog.Logger
}

func NewLogSink(l *slog.Logger) *LogSink {
	if l == nil {
		l = slog.Default()
	}
	return &LogSink{log: l}
}

func (s *LogSink) Publish(ctx context.Context, events []types.Event) error {
	for _, ev := range events {
		s.log.InfoContext(ctx, "Event", "type", ev.Type, "symbol", ev.Symbol, "ts", ev.Timestamp, "data", ev.Data)
	}
	return nil
}

func (s *LogSink) Close() error { return nil }

// Discard drops everything.
type Discard struct{}

func (Discard) Publish(context.Context, []types.Event) error { return nil }
func (Discard) Close() error                                 { return nil }

// Multi fans out to every sink and joins their errors.
type Multi []Sink

func (m Multi) Publish(ctx context.Context, events []types.Event) error {
	var errs []error
	for _, s := range m {
		if err := s.Publish(ctx, events); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

func (m Multi) Close() error {
	var errs []error
	for _, s := range m {
		if err := s.Close(); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
