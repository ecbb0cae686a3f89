package audit

import (
	"bytes"
	"context"
	"encoding/json"
	"strings"
	"sync/atomic"
	"testing"
	"time"
)

type countingSink struct {
	count atomic.Int64
}

func (s *countingSink) Emit(context.Context, Event) {
	s.count.Add(1)
}

type sinkFunc func(context.Context, Event)

func (f sinkFunc) Emit(ctx context.Context, ev Event) { f(ctx, ev) }

type gateSink struct {
	gate chan struct{}
}

func (s *gateSink) Emit(context.Context, Event) {
	<-s.gate
}

// waitPickedUp waits until the dispatcher goroutine has taken the buffered
// event, leaving the buffer empty.
func waitPickedUp(t *testing.T, d *Dispatcher) {
	t.Helper()
	deadline := time.Now().Add(time.Second)
	for len(d.ch) != 0 {
		if time.Now().After(deadline) {
			t.Fatal("dispatcher did not pick up the event")
		}
		time.Sleep(time.Millisecond)
	}
}

func TestDisabledDispatcherIsNil(t *testing.T) {
	d := NewDispatcher(Config{Enabled: false}, &countingSink{})
	if d != nil {
		t.Fatalf("expected nil dispatcher when disabled")
	}
	// Nil dispatchers are usable.
	d.Emit(context.Background(), Event{EventType: "x"})
	d.Close()
	if d.Dropped() != 0 || len(d.DroppedByType()) != 0 {
		t.Fatalf("expected zero drops on nil dispatcher")
	}
}

func TestCloseDrainsBufferedEvents(t *testing.T) {
	sink := &countingSink{}
	d := NewDispatcher(Config{Enabled: true, BufferSize: 64}, sink)
	for i := 0; i < 20; i++ {
		d.Emit(context.Background(), Event{EventType: "evidence_submitted"})
	}
	d.Close()

	if got := sink.count.Load(); got != 20 {
		t.Fatalf("expected 20 delivered events after close, got %d", got)
	}
	// Emits after close are ignored.
	d.Emit(context.Background(), Event{EventType: "late"})
	if got := sink.count.Load(); got != 20 {
		t.Fatalf("expected no delivery after close, got %d", got)
	}
}

func TestDropIfFullCountsDrops(t *testing.T) {
	sink := &gateSink{gate: make(chan struct{})}
	d := NewDispatcher(Config{Enabled: true, BufferSize: 1, DropIfFull: true}, sink)

	// One event is held by the blocked sink, one fills the buffer.
	for i := 0; i < 10; i++ {
		d.Emit(context.Background(), Event{EventType: "finalize"})
	}

	deadline := time.Now().Add(time.Second)
	for d.Dropped() == 0 && time.Now().Before(deadline) {
		time.Sleep(5 * time.Millisecond)
	}
	if d.Dropped() == 0 {
		t.Fatalf("expected dropped events under backpressure")
	}
	close(sink.gate)
	d.Close()
}

func TestBlockingEmitRespectsContext(t *testing.T) {
	sink := &gateSink{gate: make(chan struct{})}
	d := NewDispatcher(Config{Enabled: true, BufferSize: 1}, sink)
	defer func() {
		close(sink.gate)
		d.Close()
	}()

	d.Emit(context.Background(), Event{EventType: "a"})
	d.Emit(context.Background(), Event{EventType: "b"})

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	start := time.Now()
	d.Emit(ctx, Event{EventType: "c"})
	if time.Since(start) > time.Second {
		t.Fatalf("emit did not honour context cancellation")
	}
	if got := d.DroppedByType()["c"]; got != 1 {
		t.Fatalf("expected the cancelled event to be counted, got %d", got)
	}
}

func TestDropsAreCountedPerEventType(t *testing.T) {
	sink := &gateSink{gate: make(chan struct{})}
	d := NewDispatcher(Config{Enabled: true, BufferSize: 1, DropIfFull: true}, sink)

	// Park the first event in the sink so the buffer stays full.
	d.Emit(context.Background(), Event{EventType: "evidence_rejected"})
	waitPickedUp(t, d)
	d.Emit(context.Background(), Event{EventType: "evidence_rejected"})

	for i := 0; i < 3; i++ {
		d.Emit(context.Background(), Event{EventType: "evidence_rejected"})
	}
	d.Emit(context.Background(), Event{EventType: "liveness_proof"})

	got := d.DroppedByType()
	if got["evidence_rejected"] != 3 || got["liveness_proof"] != 1 {
		t.Fatalf("unexpected drops %v", got)
	}
	if d.Dropped() != 4 {
		t.Fatalf("expected 4 total drops, got %d", d.Dropped())
	}

	// The returned map is a copy.
	got["evidence_rejected"] = 100
	if d.DroppedByType()["evidence_rejected"] != 3 {
		t.Fatal("DroppedByType must return a copy")
	}
	close(sink.gate)
	d.Close()
}

func TestRetainedEventsWaitInsteadOfDropping(t *testing.T) {
	sink := &gateSink{gate: make(chan struct{})}
	counting := &countingSink{}
	d := NewDispatcher(Config{
		Enabled:    true,
		BufferSize: 1,
		DropIfFull: true,
		Retained:   []string{"session_finalized"},
	}, sinkFunc(func(ctx context.Context, ev Event) {
		sink.Emit(ctx, ev)
		counting.Emit(ctx, ev)
	}))

	d.Emit(context.Background(), Event{EventType: "liveness_triggered"})
	waitPickedUp(t, d)
	d.Emit(context.Background(), Event{EventType: "liveness_triggered"})

	emitted := make(chan struct{})
	go func() {
		d.Emit(context.Background(), Event{EventType: "session_finalized"})
		close(emitted)
	}()

	select {
	case <-emitted:
		t.Fatal("retained event must wait for buffer space")
	case <-time.After(20 * time.Millisecond):
	}
	close(sink.gate)
	<-emitted
	d.Close()

	if d.DroppedByType()["session_finalized"] != 0 {
		t.Fatalf("retained event was dropped: %v", d.DroppedByType())
	}
	if got := counting.count.Load(); got != 3 {
		t.Fatalf("expected the retained event to be delivered, got %d deliveries", got)
	}
}

func TestPanickingSinkLosesOnlyThatEvent(t *testing.T) {
	counting := &countingSink{}
	d := NewDispatcher(Config{Enabled: true, BufferSize: 8}, sinkFunc(func(ctx context.Context, ev Event) {
		if ev.EventType == "bad" {
			panic("sink failure")
		}
		counting.Emit(ctx, ev)
	}))

	d.Emit(context.Background(), Event{EventType: "bad"})
	d.Emit(context.Background(), Event{EventType: "session_opened"})
	d.Close()

	if got := counting.count.Load(); got != 1 {
		t.Fatalf("expected the dispatcher to survive the panic, got %d deliveries", got)
	}
	if got := d.DroppedByType()["bad"]; got != 1 {
		t.Fatalf("expected the panicking event to be counted, got %d", got)
	}
}

func TestJSONWriterSinkWritesOneLinePerEvent(t *testing.T) {
	var buf bytes.Buffer
	sink := NewJSONWriterSink(&buf)
	sink.Emit(context.Background(), Event{EventType: "session_opened", AnchorID: "room-1", Success: true})
	sink.Emit(context.Background(), Event{EventType: "session_closed", AnchorID: "room-1", Success: true})

	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	if len(lines) != 2 {
		t.Fatalf("expected 2 lines, got %d", len(lines))
	}
	var ev Event
	if err := json.Unmarshal([]byte(lines[0]), &ev); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if ev.EventType != "session_opened" || ev.AnchorID != "room-1" {
		t.Fatalf("unexpected event %+v", ev)
	}
}

func TestChannelSinkDrain(t *testing.T) {
	sink := NewChannelSink(4)
	if got := sink.Drain(); len(got) != 0 {
		t.Fatalf("expected empty drain, got %v", got)
	}
	sink.Emit(context.Background(), Event{EventType: "session_opened"})
	sink.Emit(context.Background(), Event{EventType: "session_closed"})

	got := sink.Drain()
	if len(got) != 2 || got[0].EventType != "session_opened" || got[1].EventType != "session_closed" {
		t.Fatalf("unexpected drained events %+v", got)
	}
	if len(sink.Events()) != 0 {
		t.Fatal("drain must empty the channel")
	}
}

func TestFilterSinkForwardsListedTypes(t *testing.T) {
	inner := NewChannelSink(8)
	f := NewFilterSink(inner, "session_finalized", "verdict_overridden")
	for _, eventType := range []string{"session_opened", "session_finalized", "evidence_rejected", "verdict_overridden"} {
		f.Emit(context.Background(), Event{EventType: eventType})
	}

	got := inner.Drain()
	if len(got) != 2 || got[0].EventType != "session_finalized" || got[1].EventType != "verdict_overridden" {
		t.Fatalf("unexpected forwarded events %+v", got)
	}

	all := NewFilterSink(inner)
	all.Emit(context.Background(), Event{EventType: "session_opened"})
	if len(inner.Drain()) != 1 {
		t.Fatal("a filter without types must forward everything")
	}
}

type recordingWriter struct {
	writes [][]byte
}

func (w *recordingWriter) Write(p []byte) (int, error) {
	w.writes = append(w.writes, append([]byte(nil), p...))
	return len(p), nil
}

func TestJSONWriterSinkWritesWholeLines(t *testing.T) {
	w := &recordingWriter{}
	sink := NewJSONWriterSink(w)
	sink.Emit(context.Background(), Event{EventType: "session_finalized", AnchorID: "room-1", Metadata: map[string]string{"present": "3"}})
	sink.Emit(context.Background(), Event{EventType: "session_closed", AnchorID: "room-1"})

	if len(w.writes) != 2 {
		t.Fatalf("expected one write per event, got %d", len(w.writes))
	}
	for _, line := range w.writes {
		if !bytes.HasSuffix(line, []byte("\n")) || bytes.Count(line, []byte("\n")) != 1 {
			t.Fatalf("write is not a single line: %q", line)
		}
	}
}

func TestChannelSinkDeliversEvents(t *testing.T) {
	sink := NewChannelSink(0)
	sink.Emit(context.Background(), Event{EventType: "liveness_triggered"})
	select {
	case ev := <-sink.Events():
		if ev.EventType != "liveness_triggered" {
			t.Fatalf("unexpected event %+v", ev)
		}
	default:
		t.Fatalf("expected buffered event")
	}
}
