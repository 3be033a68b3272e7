package sinks

import (
	"context"
	"time"

	"github.com/nerrad567/upswatch/internal/upsd"
)

const recordTimeout = 2 * time.Second

// Recorder is the part of history.Repository the sink needs.
type Recorder interface {
	Record(ctx context.Context, ev upsd.Event) (string, error)
}

// HistorySink stores every event in the history database.
type HistorySink struct {
	rec    Recorder
	logger Logger
}

// NewHistorySink creates a sink recording through rec.
func NewHistorySink(rec Recorder, logger Logger) *HistorySink {
	return &HistorySink{rec: rec, logger: orNoop(logger)}
}

// HandleEvent implements upsd.Sink.
func (s *HistorySink) HandleEvent(ev upsd.Event) {
	ctx, cancel := context.WithTimeout(context.Background(), recordTimeout)
	defer cancel()

	if _, err := s.rec.Record(ctx, ev); err != nil {
		s.logger.Warn("recording event failed", "kind", ev.Kind, "device", ev.Device, "error", err)
	}
}
