package notification

import (
	"context"
	"encoding/json"
	"fmt"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	appErrors "github.com/farhanpavel/cognit-api/pkg/errors"
	"github.com/farhanpavel/cognit-api/pkg/jobs"
)

// Publisher delivers a payload to a named channel. Delivery is at-least-once.
type Publisher interface {
	Publish(ctx context.Context, channel string, payload []byte) error
}

// Dispatch outcomes reported to metrics.
const (
	OutcomeDelivered = "delivered"
	OutcomeRetried   = "retried"
	OutcomeFailed    = "failed"
	OutcomeDropped   = "dropped"
)

type dispatchMetrics interface {
	ObserveDispatch(kind, outcome string)
}

// DispatcherConfig tunes the dispatch task.
type DispatcherConfig struct {
	Channels       Channels
	BufferSize     int
	Workers        int
	MaxRetries     int
	RetryDelay     time.Duration
	PublishTimeout time.Duration
}

type outbound struct {
	kind    EventKind
	channel string
	payload []byte
}

// Dispatcher decouples committed transitions from delivery: Emit queues an
// event without blocking and Run publishes queued events, retrying failures
// with backoff.
type Dispatcher struct {
	channels       Channels
	publisher      Publisher
	metrics        dispatchMetrics
	logger         *zap.Logger
	publishTimeout time.Duration

	events  chan Event
	queue   *jobs.Queue
	dropped atomic.Int64
}

// NewDispatcher constructs a dispatcher. metrics may be nil.
func NewDispatcher(publisher Publisher, metrics dispatchMetrics, logger *zap.Logger, cfg DispatcherConfig) *Dispatcher {
	if logger == nil {
		logger = zap.NewNop()
	}
	if cfg.BufferSize <= 0 {
		cfg.BufferSize = 256
	}
	if cfg.Workers <= 0 {
		cfg.Workers = 2
	}
	if cfg.MaxRetries < 0 {
		cfg.MaxRetries = 0
	}
	if cfg.RetryDelay <= 0 {
		cfg.RetryDelay = 500 * time.Millisecond
	}
	if cfg.PublishTimeout <= 0 {
		cfg.PublishTimeout = 5 * time.Second
	}

	d := &Dispatcher{
		channels:       cfg.Channels.withDefaults(),
		publisher:      publisher,
		metrics:        metrics,
		logger:         logger,
		publishTimeout: cfg.PublishTimeout,
		events:         make(chan Event, cfg.BufferSize),
	}
	d.queue = jobs.NewQueue("notification-dispatch", d.deliver, jobs.QueueConfig{
		Workers:    cfg.Workers,
		BufferSize: cfg.BufferSize,
		MaxRetries: cfg.MaxRetries,
		RetryDelay: cfg.RetryDelay,
		OnGiveUp:   d.giveUp,
		Logger:     logger,
	})
	return d
}

// Channels returns the resolved channel names.
func (d *Dispatcher) Channels() Channels {
	return d.channels
}

// Emit queues evt for delivery. It never blocks; when the buffer is full the
// event is dropped, counted and false is returned.
func (d *Dispatcher) Emit(evt Event) bool {
	if evt.OccurredAt.IsZero() {
		evt.OccurredAt = time.Now().UTC()
	}
	select {
	case d.events <- evt:
		return true
	default:
		d.dropped.Add(1)
		d.observe(evt.Kind, OutcomeDropped)
		d.logger.Warn("notification buffer full, event dropped",
			zap.String("kind", string(evt.Kind)),
			zap.String("request_id", evt.Request.ID),
		)
		return false
	}
}

// Dropped returns how many events Emit has discarded.
func (d *Dispatcher) Dropped() int64 {
	return d.dropped.Load()
}

// Run consumes emitted events until ctx is cancelled.
func (d *Dispatcher) Run(ctx context.Context) error {
	d.queue.Start(ctx)
	defer d.queue.Stop()

	d.logger.Info("notification dispatcher started", zap.String("broadcast_channel", d.channels.Broadcast))
	for {
		select {
		case <-ctx.Done():
			if pending := len(d.events); pending > 0 {
				d.logger.Warn("notification dispatcher stopped with pending events", zap.Int("pending", pending))
			}
			return nil
		case evt := <-d.events:
			if err := d.submit(evt); err != nil {
				d.logger.Error("notification submit failed",
					zap.String("kind", string(evt.Kind)),
					zap.String("request_id", evt.Request.ID),
					zap.Error(err),
				)
			}
		}
	}
}

func (d *Dispatcher) submit(evt Event) error {
	msg := d.channels.Render(uuid.NewString(), evt)
	payload, err := json.Marshal(msg)
	if err != nil {
		return fmt.Errorf("marshal %s message: %w", evt.Kind, err)
	}
	return d.queue.Enqueue(jobs.Job{
		ID:   msg.ID,
		Type: string(evt.Kind),
		Payload: outbound{
			kind:    evt.Kind,
			channel: d.channels.For(evt),
			payload: payload,
		},
	})
}

func (d *Dispatcher) deliver(ctx context.Context, job jobs.Job) error {
	out, ok := job.Payload.(outbound)
	if !ok {
		return fmt.Errorf("unexpected dispatch payload %T", job.Payload)
	}
	pubCtx, cancel := context.WithTimeout(ctx, d.publishTimeout)
	defer cancel()
	if err := d.publisher.Publish(pubCtx, out.channel, out.payload); err != nil {
		d.observe(out.kind, OutcomeRetried)
		return fmt.Errorf("publish to %s: %w", out.channel, err)
	}
	d.observe(out.kind, OutcomeDelivered)
	return nil
}

func (d *Dispatcher) giveUp(job jobs.Job, err error) {
	out, _ := job.Payload.(outbound)
	d.observe(out.kind, OutcomeFailed)
	failure := appErrors.Wrap(err, appErrors.ErrDispatch.Code, appErrors.ErrDispatch.Status, appErrors.ErrDispatch.Message)
	d.logger.Error("notification delivery abandoned",
		zap.String("code", failure.Code),
		zap.String("channel", out.channel),
		zap.String("message_id", job.ID),
		zap.Int("attempts", job.Attempt),
		zap.Error(failure),
	)
}

func (d *Dispatcher) observe(kind EventKind, outcome string) {
	if d.metrics != nil {
		d.metrics.ObserveDispatch(string(kind), outcome)
	}
}
