package events

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/noah-isme/lingo-tutor-api/pkg/jobs"
)

// Publisher forwards events to an external broker.
type Publisher interface {
	Publish(ctx context.Context, event LessonEvent) error
	Close() error
}

// Handler consumes an event inside the process, e.g. the statistics updater.
type Handler interface {
	Handle(ctx context.Context, event LessonEvent) error
}

// HandlerFunc adapts a function to Handler.
type HandlerFunc func(ctx context.Context, event LessonEvent) error

// Handle implements Handler.
func (f HandlerFunc) Handle(ctx context.Context, event LessonEvent) error {
	return f(ctx, event)
}

// Recorder receives dispatch outcomes for metrics.
type Recorder interface {
	RecordEvent(eventType string, err error)
}

// Dispatcher hands committed lesson events to a background queue which fans
// them out to local handlers and the broker publisher.
type Dispatcher struct {
	queue     *jobs.Queue
	publisher Publisher
	handlers  map[Type][]Handler
	recorder  Recorder
	logger    *zap.Logger
}

// DispatcherOption configures the dispatcher.
type DispatcherOption func(*Dispatcher)

// WithHandler subscribes h to the given event types.
func WithHandler(h Handler, types ...Type) DispatcherOption {
	return func(d *Dispatcher) {
		for _, t := range types {
			d.handlers[t] = append(d.handlers[t], h)
		}
	}
}

// WithRecorder sets the metrics recorder.
func WithRecorder(r Recorder) DispatcherOption {
	return func(d *Dispatcher) {
		d.recorder = r
	}
}

// NewDispatcher builds a dispatcher. publisher may be nil when no broker is configured.
func NewDispatcher(publisher Publisher, cfg jobs.QueueConfig, opts ...DispatcherOption) *Dispatcher {
	if cfg.Logger == nil {
		cfg.Logger = zap.NewNop()
	}
	d := &Dispatcher{
		publisher: publisher,
		handlers:  make(map[Type][]Handler),
		logger:    cfg.Logger,
	}
	for _, opt := range opts {
		opt(d)
	}
	d.queue = jobs.NewQueue("lesson-events", d.handle, cfg)
	return d
}

// Start launches the worker pool.
func (d *Dispatcher) Start(ctx context.Context) {
	d.queue.Start(ctx)
}

// Stop drains workers and closes the publisher.
func (d *Dispatcher) Stop() {
	d.queue.Stop()
	if d.publisher != nil {
		if err := d.publisher.Close(); err != nil {
			d.logger.Warn("close event publisher", zap.Error(err))
		}
	}
}

// Emit queues an event without blocking. Failures are logged and dropped.
func (d *Dispatcher) Emit(_ context.Context, event LessonEvent) {
	if err := d.queue.Offer(jobs.Job{ID: event.ID, Type: string(event.Type), Payload: event}); err != nil {
		d.record(event.Type, err)
		d.logger.Warn("drop lesson event", zap.String("event_id", event.ID), zap.String("type", string(event.Type)), zap.Error(err))
	}
}

func (d *Dispatcher) handle(ctx context.Context, job jobs.Job) error {
	event, ok := job.Payload.(LessonEvent)
	if !ok {
		return fmt.Errorf("unexpected payload %T", job.Payload)
	}

	// Local handlers run only on the first attempt; retries only re-publish.
	if job.Attempt == 0 {
		for _, h := range d.handlers[event.Type] {
			if err := h.Handle(ctx, event); err != nil {
				d.logger.Error("lesson event handler failed", zap.String("event_id", event.ID), zap.String("type", string(event.Type)), zap.Error(err))
			}
		}
	}

	if d.publisher == nil {
		d.record(event.Type, nil)
		return nil
	}
	err := d.publisher.Publish(ctx, event)
	d.record(event.Type, err)
	if err != nil {
		return fmt.Errorf("publish %s: %w", event.Type, err)
	}
	d.logger.Debug("lesson event published", zap.String("event_id", event.ID), zap.String("type", string(event.Type)))
	return nil
}

func (d *Dispatcher) record(t Type, err error) {
	if d.recorder != nil {
		d.recorder.RecordEvent(string(t), err)
	}
}
