package upsd

import (
	"fmt"
	"sync"
	"sync/atomic"
	"time"
)

// EventKind identifies what happened to a device.
type EventKind string

// Event kinds emitted by the daemon.
const (
	EventVariableSet        EventKind = "variable_set"
	EventVariableDeleted    EventKind = "variable_deleted"
	EventCommandAdded       EventKind = "command_added"
	EventCommandDeleted     EventKind = "command_deleted"
	EventDeviceAdded        EventKind = "device_added"
	EventDeviceRemoved      EventKind = "device_removed"
	EventDeviceConnected    EventKind = "device_connected"
	EventDeviceDisconnected EventKind = "device_disconnected"
	EventDeviceStale        EventKind = "device_stale"
	EventDeviceOK           EventKind = "device_ok"
	EventForcedShutdown     EventKind = "forced_shutdown"
)

// Event describes one change observed by the daemon.
//
// Name and Value are set for variable and command events. Logins is set on
// EventDeviceRemoved so subscribers know clients are being kicked.
type Event struct {
	Kind   EventKind `json:"kind"`
	Device string    `json:"device"`
	Name   string    `json:"name,omitempty"`
	Value  string    `json:"value,omitempty"`
	Logins int       `json:"logins,omitempty"`
	Time   time.Time `json:"time"`
}

// Sink consumes daemon events. HandleEvent runs on the dispatcher's worker
// goroutine and must not call back into the Daemon synchronously.
type Sink interface {
	HandleEvent(Event)
}

// SinkFunc adapts a function to Sink.
type SinkFunc func(Event)

// HandleEvent calls f(ev).
func (f SinkFunc) HandleEvent(ev Event) { f(ev) }

// defaultEventQueueSize bounds events waiting for sinks.
const defaultEventQueueSize = 1024

// Dispatcher fans events out to sinks on a single worker goroutine, so each
// sink sees events in the order the daemon produced them. When the queue is
// full new events are dropped and counted rather than stalling the daemon.
type Dispatcher struct {
	queue   chan Event
	sinks   []Sink
	dropped atomic.Uint64
	logger  Logger

	mu      sync.Mutex
	started bool
	closed  bool
	wg      sync.WaitGroup
}

// NewDispatcher creates a dispatcher. size <= 0 selects a default.
func NewDispatcher(size int, sinks ...Sink) *Dispatcher {
	if size <= 0 {
		size = defaultEventQueueSize
	}
	return &Dispatcher{
		queue:  make(chan Event, size),
		sinks:  sinks,
		logger: noopLogger{},
	}
}

// SetLogger sets the logger. Call before Start.
func (d *Dispatcher) SetLogger(logger Logger) {
	if logger == nil {
		logger = noopLogger{}
	}
	d.logger = logger
}

// AddSink registers another sink. Call before Start.
func (d *Dispatcher) AddSink(s Sink) {
	d.sinks = append(d.sinks, s)
}

// Start launches the worker goroutine.
func (d *Dispatcher) Start() {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.started || d.closed {
		return
	}
	d.started = true

	d.wg.Add(1)
	go d.worker()
}

// Notify queues ev without blocking.
func (d *Dispatcher) Notify(ev Event) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.closed {
		return
	}

	select {
	case d.queue <- ev:
	default:
		d.dropped.Add(1)
		metricEventsDropped.Inc()
	}
}

// Dropped returns the number of events discarded because the queue was full.
func (d *Dispatcher) Dropped() uint64 {
	return d.dropped.Load()
}

// Close stops accepting events, delivers what is queued and waits for the
// worker to finish.
func (d *Dispatcher) Close() {
	d.mu.Lock()
	if d.closed {
		d.mu.Unlock()
		return
	}
	d.closed = true
	close(d.queue)
	started := d.started
	d.mu.Unlock()

	if started {
		d.wg.Wait()
	}
}

func (d *Dispatcher) worker() {
	defer d.wg.Done()
	for ev := range d.queue {
		for _, s := range d.sinks {
			d.deliver(s, ev)
		}
	}
}

// deliver calls one sink, containing any panic so the remaining sinks and
// later events are still served.
func (d *Dispatcher) deliver(s Sink, ev Event) {
	defer func() {
		if r := recover(); r != nil {
			d.logger.Error("event sink panicked", "kind", ev.Kind, "device", ev.Device, "panic", fmt.Sprint(r))
		}
	}()
	s.HandleEvent(ev)
}
