package formauth

import (
	"context"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"
)

// auditDispatcher hands events to the sink on a single worker goroutine so
// request paths never wait on sink latency. Events that cannot be delivered
// are counted per event type: a full buffer with DropIfFull, a panicking
// sink, or a backlog still queued when Close gives up after FlushTimeout.
type auditDispatcher struct {
	cfg    AuditConfig
	sink   AuditSink
	logger *slog.Logger
	queue  chan AuditEvent

	// stopping is closed by Close. The worker then drains the queue until
	// it is empty or abandon fires.
	stopping chan struct{}
	abandon  context.CancelFunc
	sinkCtx  context.Context
	finished chan struct{}
	stopOnce sync.Once
	stopped  atomic.Bool

	mu      sync.Mutex
	lost    map[string]uint64
	lostSum atomic.Uint64
}

func newAuditDispatcher(cfg AuditConfig, sink AuditSink, logger *slog.Logger) *auditDispatcher {
	if !cfg.Enabled {
		return nil
	}
	if cfg.BufferSize <= 0 {
		cfg.BufferSize = 1
	}
	if sink == nil {
		sink = NoOpSink{}
	}
	if logger == nil {
		logger = slog.Default()
	}

	sinkCtx, abandon := context.WithCancel(context.Background())
	d := &auditDispatcher{
		cfg:      cfg,
		sink:     sink,
		logger:   logger,
		queue:    make(chan AuditEvent, cfg.BufferSize),
		stopping: make(chan struct{}),
		abandon:  abandon,
		sinkCtx:  sinkCtx,
		finished: make(chan struct{}),
		lost:     make(map[string]uint64),
	}
	go d.run()
	return d
}

func (d *auditDispatcher) run() {
	defer close(d.finished)

	for {
		select {
		case event := <-d.queue:
			d.deliver(event)
		case <-d.stopping:
			d.drain()
			return
		}
	}
}

// drain flushes what is queued. Once the flush is abandoned, deliver counts
// the rest of the backlog as lost instead of calling the sink.
func (d *auditDispatcher) drain() {
	for {
		select {
		case event := <-d.queue:
			d.deliver(event)
		default:
			return
		}
	}
}

func (d *auditDispatcher) deliver(event AuditEvent) {
	if d.sinkCtx.Err() != nil {
		d.drop(event.EventType)
		return
	}
	defer func() {
		if r := recover(); r != nil {
			d.drop(event.EventType)
			d.logger.Error("audit sink panicked", "event", event.EventType, "panic", r)
		}
	}()
	d.sink.Emit(d.sinkCtx, event)
}

func (d *auditDispatcher) drop(eventType string) {
	d.lostSum.Add(1)
	d.mu.Lock()
	d.lost[eventType]++
	d.mu.Unlock()
}

// Emit queues event. With DropIfFull a full buffer drops the event and
// counts it; otherwise Emit blocks until there is room or ctx ends.
func (d *auditDispatcher) Emit(ctx context.Context, event AuditEvent) {
	if d == nil || d.stopped.Load() {
		return
	}
	if ctx == nil {
		ctx = context.Background()
	}

	if d.cfg.DropIfFull {
		select {
		case d.queue <- event:
		case <-d.stopping:
		default:
			d.drop(event.EventType)
		}
		return
	}

	select {
	case d.queue <- event:
	case <-ctx.Done():
		d.drop(event.EventType)
	case <-d.stopping:
	}
}

// Close stops accepting events and flushes the queue. With a positive
// FlushTimeout it returns once the timeout passes even if the sink is
// still busy; the sink context is cancelled and the leftover backlog is
// counted as lost.
func (d *auditDispatcher) Close() {
	if d == nil {
		return
	}
	d.stopOnce.Do(func() {
		d.stopped.Store(true)
		close(d.stopping)

		if d.cfg.FlushTimeout <= 0 {
			<-d.finished
			d.abandon()
			return
		}

		timer := time.NewTimer(d.cfg.FlushTimeout)
		defer timer.Stop()
		select {
		case <-d.finished:
			d.abandon()
		case <-timer.C:
			d.abandon()
			d.logger.Warn("audit flush timed out", "timeout", d.cfg.FlushTimeout, "queued", len(d.queue))
		}
	})
}

// Dropped returns the number of events that never reached the sink.
func (d *auditDispatcher) Dropped() uint64 {
	if d == nil {
		return 0
	}
	return d.lostSum.Load()
}

// DroppedByEvent breaks Dropped down by event type.
func (d *auditDispatcher) DroppedByEvent() map[string]uint64 {
	if d == nil {
		return map[string]uint64{}
	}
	d.mu.Lock()
	defer d.mu.Unlock()

	out := make(map[string]uint64, len(d.lost))
	for k, v := range d.lost {
		out[k] = v
	}
	return out
}
