package audit

import (
	"context"
	"encoding/json"
	"io"
	"sync"
	"time"
)

// Event is the canonical audit event model used by internal dispatching and root APIs.
type Event struct {
	Timestamp     time.Time         `json:"timestamp"`
	EventType     string            `json:"event_type"`
	AnchorID      string            `json:"anchor_id,omitempty"`
	SessionID     string            `json:"session_id,omitempty"`
	ParticipantID string            `json:"participant_id,omitempty"`
	Success       bool              `json:"success"`
	Error         string            `json:"error,omitempty"`
	Metadata      map[string]string `json:"metadata,omitempty"`
}

// Sink receives emitted audit events.
type Sink interface {
	Emit(ctx context.Context, event Event)
}

// NoOpSink drops audit events.
type NoOpSink struct{}

func (NoOpSink) Emit(context.Context, Event) {}

// ChannelSink buffers events in a channel for an in-process consumer.
type ChannelSink struct {
	events chan Event
}

func NewChannelSink(buffer int) *ChannelSink {
	if buffer <= 0 {
		buffer = 1
	}
	return &ChannelSink{events: make(chan Event, buffer)}
}

// Emit blocks until the event is buffered or ctx is done.
func (s *ChannelSink) Emit(ctx context.Context, event Event) {
	select {
	case s.events <- event:
	case <-ctx.Done():
	}
}

func (s *ChannelSink) Events() <-chan Event {
	return s.events
}

// Drain returns the events buffered right now without waiting for more.
func (s *ChannelSink) Drain() []Event {
	var out []Event
	for {
		select {
		case event := <-s.events:
			out = append(out, event)
		default:
			return out
		}
	}
}

// JSONWriterSink writes one JSON object per line. Each line reaches the
// writer in a single Write so a shared log file never interleaves events.
type JSONWriterSink struct {
	mu     sync.Mutex
	writer io.Writer
	line   []byte
}

func NewJSONWriterSink(w io.Writer) *JSONWriterSink {
	return &JSONWriterSink{writer: w}
}

// Emit drops events that fail to encode.
func (s *JSONWriterSink) Emit(_ context.Context, event Event) {
	if s == nil || s.writer == nil {
		return
	}
	data, err := json.Marshal(event)
	if err != nil {
		return
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	s.line = append(append(s.line[:0], data...), '\n')
	_, _ = s.writer.Write(s.line)
}

// FilterSink forwards only the listed event types, for example to send
// verdict outcomes to a separate review log.
type FilterSink struct {
	next  Sink
	types map[string]struct{}
}

// NewFilterSink wraps next. With no types every event passes.
func NewFilterSink(next Sink, types ...string) *FilterSink {
	f := &FilterSink{next: next, types: make(map[string]struct{}, len(types))}
	for _, t := range types {
		f.types[t] = struct{}{}
	}
	return f
}

func (f *FilterSink) Emit(ctx context.Context, event Event) {
	if f == nil || f.next == nil {
		return
	}
	if len(f.types) > 0 {
		if _, ok := f.types[event.EventType]; !ok {
			return
		}
	}
	f.next.Emit(ctx, event)
}
