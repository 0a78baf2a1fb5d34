package bus

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/ThreeDotsLabs/watermill/message"
	v1 "github.com/pulseops-lab/pulseops/internal/api/v1"
	apperrors "github.com/pulseops-lab/pulseops/internal/core/errors"
	"github.com/sony/gobreaker"
)

// Publisher hands events to the bus. The gateway depends on this, not on watermill.
type Publisher interface {
	// Publish sends events in order. It returns once the transport has
	// accepted every message, or with an error wrapping ErrTransient.
	// Some messages of a failed batch may already have been published.
	Publish(ctx context.Context, traceID string, events []*v1.Event) error

	// Healthy reports false while the circuit breaker is open.
	Healthy() bool

	Close() error
}

// PublishObserver is told how many messages a publish call carried and whether it failed.
type PublishObserver func(count int, err error)

// PublisherConfig tunes EventPublisher.
type PublisherConfig struct {
	Timeout         time.Duration
	BreakerFailures int
	BreakerCooldown time.Duration
}

// EventPublisher publishes events through a watermill publisher, bounded by a
// timeout and guarded by a circuit breaker.
type EventPublisher struct {
	pub      message.Publisher
	topology Topology
	timeout  time.Duration
	breaker  *gobreaker.CircuitBreaker
	observer PublishObserver
}

var _ Publisher = (*EventPublisher)(nil)

func NewEventPublisher(pub message.Publisher, topology Topology, cfg PublisherConfig) *EventPublisher {
	failures := uint32(cfg.BreakerFailures)
	if failures == 0 {
		failures = 5
	}

	breaker := gobreaker.NewCircuitBreaker(gobreaker.Settings{
		Name:        "bus-publish",
		MaxRequests: 1,
		Timeout:     cfg.BreakerCooldown,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= failures
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			if to == gobreaker.StateOpen {
				slog.Error("[Bus] Circuit breaker opened, failing publishes fast", "breaker", name, "from", from.String())
				return
			}
			slog.Info("[Bus] Circuit breaker state changed", "breaker", name, "from", from.String(), "to", to.String())
		},
	})

	return &EventPublisher{
		pub:      pub,
		topology: topology,
		timeout:  cfg.Timeout,
		breaker:  breaker,
	}
}

// SetObserver installs a publish hook. Call before serving traffic.
func (p *EventPublisher) SetObserver(obs PublishObserver) {
	p.observer = obs
}

type topicBatch struct {
	topic string
	msgs  []*message.Message
}

func (p *EventPublisher) Publish(ctx context.Context, traceID string, events []*v1.Event) error {
	if len(events) == 0 {
		return nil
	}

	batches, err := p.encode(traceID, events)
	if err != nil {
		return err
	}

	if p.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, p.timeout)
		defer cancel()
	}

	done := make(chan error, 1)
	go func() {
		done <- p.send(batches)
	}()

	select {
	case err = <-done:
	case <-ctx.Done():
		err = fmt.Errorf("%w: publish of %d events abandoned: %v", apperrors.ErrTransient, len(events), ctx.Err())
	}

	if p.observer != nil {
		p.observer(len(events), err)
	}
	return err
}

// encode groups messages per topic, preserving the order of each tenant's events.
func (p *EventPublisher) encode(traceID string, events []*v1.Event) ([]topicBatch, error) {
	var batches []topicBatch
	index := make(map[string]int)

	for _, evt := range events {
		msg, err := Encode(evt, traceID)
		if err != nil {
			return nil, err
		}
		topic := p.topology.TopicFor(evt.OrgID)
		i, ok := index[topic]
		if !ok {
			i = len(batches)
			index[topic] = i
			batches = append(batches, topicBatch{topic: topic})
		}
		batches[i].msgs = append(batches[i].msgs, msg)
	}
	return batches, nil
}

func (p *EventPublisher) send(batches []topicBatch) error {
	for _, b := range batches {
		_, err := p.breaker.Execute(func() (interface{}, error) {
			return nil, p.pub.Publish(b.topic, b.msgs...)
		})
		if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
			return fmt.Errorf("%w: bus unavailable: %v", apperrors.ErrTransient, err)
		}
		if err != nil {
			return fmt.Errorf("%w: failed to publish to %s: %v", apperrors.ErrTransient, b.topic, err)
		}
	}
	return nil
}

func (p *EventPublisher) Healthy() bool {
	return p.breaker.State() != gobreaker.StateOpen
}

func (p *EventPublisher) Close() error {
	if err := p.pub.Close(); err != nil {
		return fmt.Errorf("failed to close bus publisher: %w", err)
	}
	slog.Info("[Bus] Publisher closed")
	return nil
}
