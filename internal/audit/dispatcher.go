package audit

import (
	"context"
	"sync"
	"sync/atomic"
)

// Config controls dispatcher buffering.
type Config struct {
	Enabled    bool
	BufferSize int
	// DropIfFull drops events when the buffer is full. Event types listed in
	// Retained are exempt and wait for room instead.
	DropIfFull bool
	Retained   []string
}

// Dispatcher forwards audit events to a sink from one goroutine and keeps a
// per event type count of everything it lost.
type Dispatcher struct {
	sink       Sink
	ch         chan Event
	done       chan struct{}
	stopped    chan struct{}
	dropIfFull bool
	retained   map[string]struct{}

	mu      sync.Mutex
	dropped map[string]uint64
	total   atomic.Uint64

	closed    atomic.Bool
	closeOnce sync.Once
}

// NewDispatcher starts a dispatcher goroutine. It returns nil when cfg is disabled;
// a nil *Dispatcher is safe to use and drops everything.
func NewDispatcher(cfg Config, sink Sink) *Dispatcher {
	if !cfg.Enabled {
		return nil
	}
	if cfg.BufferSize <= 0 {
		cfg.BufferSize = 1
	}
	if sink == nil {
		sink = NoOpSink{}
	}

	d := &Dispatcher{
		sink:       sink,
		ch:         make(chan Event, cfg.BufferSize),
		done:       make(chan struct{}),
		stopped:    make(chan struct{}),
		dropIfFull: cfg.DropIfFull,
		retained:   make(map[string]struct{}, len(cfg.Retained)),
		dropped:    make(map[string]uint64),
	}
	for _, eventType := range cfg.Retained {
		d.retained[eventType] = struct{}{}
	}

	go d.run()
	return d
}

func (d *Dispatcher) run() {
	defer close(d.stopped)

	for {
		select {
		case event := <-d.ch:
			d.deliver(event)
		case <-d.done:
			for {
				select {
				case event := <-d.ch:
					d.deliver(event)
				default:
					return
				}
			}
		}
	}
}

// deliver hands event to the sink. A panicking sink loses that event only.
func (d *Dispatcher) deliver(event Event) {
	defer func() {
		if recover() != nil {
			d.drop(event.EventType)
		}
	}()
	d.sink.Emit(context.Background(), event)
}

// Emit queues event. Without room, a droppable event is counted and discarded
// at once; any other event waits until ctx is done and is then counted.
func (d *Dispatcher) Emit(ctx context.Context, event Event) {
	if d == nil || d.closed.Load() {
		return
	}
	if ctx == nil {
		ctx = context.Background()
	}

	if _, keep := d.retained[event.EventType]; d.dropIfFull && !keep {
		select {
		case d.ch <- event:
		case <-d.done:
		default:
			d.drop(event.EventType)
		}
		return
	}

	select {
	case d.ch <- event:
	case <-ctx.Done():
		d.drop(event.EventType)
	case <-d.done:
	}
}

func (d *Dispatcher) drop(eventType string) {
	d.mu.Lock()
	d.dropped[eventType]++
	d.mu.Unlock()
	d.total.Add(1)
}

// Close delivers buffered events and stops the goroutine.
func (d *Dispatcher) Close() {
	if d == nil {
		return
	}
	d.closeOnce.Do(func() {
		d.closed.Store(true)
		close(d.done)
		<-d.stopped
	})
}

// Dropped returns the number of events lost across all types.
func (d *Dispatcher) Dropped() uint64 {
	if d == nil {
		return 0
	}
	return d.total.Load()
}

// DroppedByType returns a copy of the loss counts keyed by event type.
func (d *Dispatcher) DroppedByType() map[string]uint64 {
	if d == nil {
		return map[string]uint64{}
	}
	d.mu.Lock()
	defer d.mu.Unlock()

	out := make(map[string]uint64, len(d.dropped))
	for eventType, n := range d.dropped {
		out[eventType] = n
	}
	return out
}
