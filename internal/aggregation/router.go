package aggregation

import (
	"errors"
	"fmt"
	"time"

	"github.com/ThreeDotsLabs/watermill"
	"github.com/ThreeDotsLabs/watermill/message"
	"github.com/ThreeDotsLabs/watermill/message/router/middleware"
	"github.com/google/uuid"
	"github.com/pulseops-lab/pulseops/internal/bus"
	apperrors "github.com/pulseops-lab/pulseops/internal/core/errors"
	"github.com/pulseops-lab/pulseops/internal/core/trace"
)

// RouterConfig wires the worker onto the bus.
type RouterConfig struct {
	Topology       bus.Topology
	PoisonTopic    string
	MessageTimeout time.Duration
	CloseTimeout   time.Duration

	// NackDelay holds a failed message before it is nacked, for buses
	// that redeliver without pausing. Zero nacks at once.
	NackDelay time.Duration
}

func (c RouterConfig) withDefaults() RouterConfig {
	if c.MessageTimeout <= 0 {
		c.MessageTimeout = 30 * time.Second
	}
	if c.CloseTimeout <= 0 {
		c.CloseTimeout = 30 * time.Second
	}
	return c
}

// NewRouter registers one sequential handler per topic in the topology.
// Poison messages are published to cfg.PoisonTopic through poisonPub and
// acked. Every other failure is nacked and the bus redelivers the message;
// the worker makes one attempt per delivery. Router.Close waits for
// in-flight handlers up to CloseTimeout.
func NewRouter(
	cfg RouterConfig,
	w *Worker,
	sub message.Subscriber,
	poisonPub message.Publisher,
	logger watermill.LoggerAdapter,
) (*message.Router, error) {
	cfg = cfg.withDefaults()
	if cfg.PoisonTopic == "" {
		return nil, fmt.Errorf("poison topic is required")
	}

	router, err := message.NewRouter(message.RouterConfig{CloseTimeout: cfg.CloseTimeout}, logger)
	if err != nil {
		return nil, fmt.Errorf("failed to create router: %w", err)
	}

	poison, err := middleware.PoisonQueueWithFilter(poisonPub, cfg.PoisonTopic, isPoison)
	if err != nil {
		return nil, fmt.Errorf("failed to set up poison queue: %w", err)
	}

	router.AddMiddleware(middleware.Recoverer)

	for _, topic := range cfg.Topology.Topics() {
		router.AddNoPublisherHandler("aggregate."+topic, topic, sub, w.Handle).AddMiddleware(
			traceMiddleware,
			delayNack(cfg.NackDelay),
			middleware.Timeout(cfg.MessageTimeout),
			poison,
		)
	}

	return router, nil
}

func isPoison(err error) bool {
	return errors.Is(err, apperrors.ErrPoisonMessage)
}

// traceMiddleware moves the gateway's request id from metadata onto the
// message context.
func traceMiddleware(h message.HandlerFunc) message.HandlerFunc {
	return func(msg *message.Message) ([]*message.Message, error) {
		id := msg.Metadata.Get(bus.MetadataTraceID)
		if id == "" {
			id = uuid.NewString()
			msg.Metadata.Set(bus.MetadataTraceID, id)
		}
		msg.SetContext(trace.WithID(msg.Context(), id))
		return h(msg)
	}
}

// delayNack pauses before a failure is returned to the subscriber. The
// pause ends early when the router shuts down.
func delayNack(d time.Duration) message.HandlerMiddleware {
	return func(h message.HandlerFunc) message.HandlerFunc {
		if d <= 0 {
			return h
		}
		return func(msg *message.Message) ([]*message.Message, error) {
			// Inner middleware replaces the message context.
			ctx := msg.Context()
			out, err := h(msg)
			if err == nil {
				return out, nil
			}
			t := time.NewTimer(d)
			defer t.Stop()
			select {
			case <-t.C:
			case <-ctx.Done():
			}
			return out, err
		}
	}
}
