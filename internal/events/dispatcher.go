package events

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/aryan0dhankhar/queueline/internal/domain"
	"github.com/aryan0dhankhar/queueline/internal/observability/metrics"
)

const (
	DefaultBufferSize = 1024
	deliverTimeout    = 5 * time.Second
	drainTimeout      = 5 * time.Second
)

// Sink receives events from the dispatcher one at a time, in publish order.
type Sink interface {
	Name() string
	Deliver(ctx context.Context, ev domain.Event) error
}

// Dispatcher implements domain.Publisher over a bounded buffer drained by one goroutine.
// A single consumer keeps global FIFO order, so each queue's events reach every sink in order.
type Dispatcher struct {
	ch     chan domain.Event
	sinks  []Sink
	logger *slog.Logger

	wg       sync.WaitGroup
	stopOnce sync.Once
	stop     chan struct{}
}

// NewDispatcher creates a dispatcher; call Start to begin delivery
func NewDispatcher(bufferSize int, logger *slog.Logger, sinks ...Sink) *Dispatcher {
	if bufferSize <= 0 {
		bufferSize = DefaultBufferSize
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Dispatcher{
		ch:     make(chan domain.Event, bufferSize),
		sinks:  sinks,
		logger: logger.With(slog.String("component", "dispatcher")),
		stop:   make(chan struct{}),
	}
}

// Publish enqueues ev without blocking. When the buffer is full the event is dropped.
func (d *Dispatcher) Publish(ev domain.Event) {
	select {
	case d.ch <- ev:
	default:
		metrics.IncrementDropped()
		d.logger.Warn("event buffer full, dropping event",
			slog.String("type", string(ev.Type)),
			slog.String("queue_id", ev.QueueID),
			slog.Int64("seq", ev.Seq),
		)
	}
}

// Start launches the delivery loop. It runs until ctx is cancelled or Stop is called,
// then drains what is already buffered.
func (d *Dispatcher) Start(ctx context.Context) {
	d.wg.Add(1)
	go func() {
		defer d.wg.Done()
		d.logger.Info("dispatcher started", slog.Int("sinks", len(d.sinks)))
		for {
			select {
			case ev := <-d.ch:
				d.deliver(ev)
			case <-ctx.Done():
				d.drain()
				return
			case <-d.stop:
				d.drain()
				return
			}
		}
	}()
}

// Stop ends the delivery loop and waits for buffered events to be flushed.
func (d *Dispatcher) Stop() {
	d.stopOnce.Do(func() { close(d.stop) })
	d.wg.Wait()
	d.logger.Info("dispatcher stopped")
}

func (d *Dispatcher) drain() {
	deadline := time.After(drainTimeout)
	for {
		select {
		case ev := <-d.ch:
			d.deliver(ev)
		case <-deadline:
			d.logger.Warn("drain deadline reached", slog.Int("remaining", len(d.ch)))
			return
		default:
			return
		}
	}
}

func (d *Dispatcher) deliver(ev domain.Event) {
	for _, s := range d.sinks {
		ctx, cancel := context.WithTimeout(context.Background(), deliverTimeout)
		err := s.Deliver(ctx, ev)
		cancel()
		if err != nil {
			metrics.ObserveEvent(s.Name(), "error")
			d.logger.Warn("event delivery failed",
				slog.String("sink", s.Name()),
				slog.String("type", string(ev.Type)),
				slog.String("queue_id", ev.QueueID),
				slog.String("error", err.Error()),
			)
			continue
		}
		metrics.ObserveEvent(s.Name(), "ok")
	}
}
