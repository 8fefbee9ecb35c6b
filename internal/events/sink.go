package events

import (
	"context"
	"sync"

	"github.com/tributarydb/tributary/internal/logging"
)

// Sink receives flushed event batches. The batch slice is reused between
// flushes; implementations that retain events past the call must copy them.
type Sink interface {
	Write(ctx context.Context, batch []Event) error
}

// LogSink writes every event to the structured log. It is the default sink.
type LogSink struct {
	logger *logging.Logger
}

// NewLogSink creates a LogSink.
func NewLogSink() *LogSink {
	return &LogSink{logger: logging.GetLogger("events")}
}

// Write logs each event in the batch.
func (s *LogSink) Write(_ context.Context, batch []Event) error {
	for _, event := range batch {
		fields := []logging.LogField{
			logging.Field("event_id", event.ID),
			logging.Field("kind", string(event.Kind)),
			logging.Field("branch", event.Branch),
			logging.Field("at", event.At.String()),
		}
		if event.NodeID != "" {
			fields = append(fields,
				logging.Field("node_id", event.NodeID),
				logging.Field("node_kind", event.NodeKind),
			)
		}
		s.logger.InfoWithFields("event", fields...)
	}
	return nil
}

// CaptureSink collects events in memory for tests.
type CaptureSink struct {
	mu     sync.Mutex
	events []Event
}

// NewCaptureSink creates an empty CaptureSink.
func NewCaptureSink() *CaptureSink {
	return &CaptureSink{}
}

// Write copies the batch into the capture buffer.
func (s *CaptureSink) Write(_ context.Context, batch []Event) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.events = append(s.events, batch...)
	return nil
}

// Events returns a snapshot of everything captured so far.
func (s *CaptureSink) Events() []Event {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]Event, len(s.events))
	copy(out, s.events)
	return out
}
