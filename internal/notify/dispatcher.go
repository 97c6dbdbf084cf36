package notify

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/JineeshTS/GanakysPortal-sub004/internal/metrics"
)

// ErrDispatcherClosed is returned when a notification is enqueued after Close.
var ErrDispatcherClosed = errors.New("notification dispatcher is closed")

// ErrQueueFull is returned when the dispatcher queue has no free slot.
var ErrQueueFull = errors.New("notification queue is full")

// DispatcherStats tracks dispatcher operational counters.
type DispatcherStats struct {
	Delivered int64 `json:"delivered"`
	Failed    int64 `json:"failed"`
	Dropped   int64 `json:"dropped"`
	Panics    int64 `json:"panics"`
}

// DispatcherConfig configures a Dispatcher.
type DispatcherConfig struct {
	Workers        int
	QueueSize      int
	PublishTimeout time.Duration
	Logger         *slog.Logger
}

// Dispatcher delivers notifications to a Sink from a bounded queue drained by
// a fixed set of workers. Enqueue never blocks.
type Dispatcher struct {
	sink    Sink
	queue   chan Notification
	timeout time.Duration
	logger  *slog.Logger

	wg     sync.WaitGroup
	mu     sync.Mutex
	closed bool
	stats  DispatcherStats
}

// NewDispatcher starts cfg.Workers goroutines delivering to sink.
func NewDispatcher(sink Sink, cfg DispatcherConfig) *Dispatcher {
	if cfg.Workers <= 0 {
		cfg.Workers = 1
	}
	if cfg.QueueSize <= 0 {
		cfg.QueueSize = 256
	}
	if cfg.PublishTimeout <= 0 {
		cfg.PublishTimeout = 5 * time.Second
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}

	d := &Dispatcher{
		sink:    sink,
		queue:   make(chan Notification, cfg.QueueSize),
		timeout: cfg.PublishTimeout,
		logger:  cfg.Logger,
	}
	d.wg.Add(cfg.Workers)
	for i := 0; i < cfg.Workers; i++ {
		go d.work()
	}
	return d
}

// Enqueue queues n for delivery. It returns ErrQueueFull or
// ErrDispatcherClosed instead of blocking.
func (d *Dispatcher) Enqueue(n Notification) error {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.closed {
		atomic.AddInt64(&d.stats.Dropped, 1)
		metrics.RecordNotificationDropped("closed")
		return ErrDispatcherClosed
	}
	select {
	case d.queue <- n:
		return nil
	default:
		atomic.AddInt64(&d.stats.Dropped, 1)
		metrics.RecordNotificationDropped("queue_full")
		return ErrQueueFull
	}
}

// Publish implements Sink by enqueueing. Queue errors are logged, not returned,
// so callers treat delivery as fire-and-forget.
func (d *Dispatcher) Publish(_ context.Context, n Notification) error {
	if err := d.Enqueue(n); err != nil {
		d.logger.Warn("notification dropped",
			slog.String("type", n.Type),
			slog.String("instance_id", n.InstanceID),
			slog.Any("error", err))
	}
	return nil
}

func (d *Dispatcher) work() {
	defer d.wg.Done()
	for n := range d.queue {
		d.deliver(n)
	}
}

func (d *Dispatcher) deliver(n Notification) {
	defer func() {
		if r := recover(); r != nil {
			atomic.AddInt64(&d.stats.Panics, 1)
			atomic.AddInt64(&d.stats.Failed, 1)
			metrics.RecordNotificationDropped("sink_error")
			d.logger.Error("notification sink panicked", slog.String("type", n.Type), slog.Any("panic", r))
		}
	}()

	ctx, cancel := context.WithTimeout(context.Background(), d.timeout)
	defer cancel()

	if err := d.sink.Publish(ctx, n); err != nil {
		atomic.AddInt64(&d.stats.Failed, 1)
		metrics.RecordNotificationDropped("sink_error")
		d.logger.Warn("notification delivery failed",
			slog.String("type", n.Type),
			slog.String("instance_id", n.InstanceID),
			slog.Any("error", err))
		return
	}
	atomic.AddInt64(&d.stats.Delivered, 1)
}

// Close stops accepting notifications, drains the queue and waits for the
// workers. It is safe to call more than once.
func (d *Dispatcher) Close() {
	d.mu.Lock()
	if d.closed {
		d.mu.Unlock()
		return
	}
	d.closed = true
	close(d.queue)
	d.mu.Unlock()

	d.wg.Wait()
}

// Stats returns a snapshot of the dispatcher counters.
func (d *Dispatcher) Stats() DispatcherStats {
	return DispatcherStats{
		Delivered: atomic.LoadInt64(&d.stats.Delivered),
		Failed:    atomic.LoadInt64(&d.stats.Failed),
		Dropped:   atomic.LoadInt64(&d.stats.Dropped),
		Panics:    atomic.LoadInt64(&d.stats.Panics),
	}
}
