// Package eventbus delivers outbox events to the subscribers of their topic.
package eventbus

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"

	"github.com/jnst/convention-outbox/internal/model"
)

var (
	ErrSubscriptionIDRequired = errors.New("subscription id is required")
	ErrCallbackRequired       = errors.New("subscription callback is required")
)

// Callback handles one event for a subscription.
type Callback func(ctx context.Context, event *model.DomainEvent) error

type subscription struct {
	id       model.SubscriptionID
	callback Callback
}

// Registry maps each topic to its subscriptions. Subscriptions keep their
// registration order; registering an id again replaces its callback in place.
type Registry struct {
	mu            sync.RWMutex
	logger        *slog.Logger
	subscriptions map[model.Topic][]subscription
}

// NewRegistry creates an empty registry.
func NewRegistry(logger *slog.Logger) *Registry {
	if logger == nil {
		logger = slog.Default()
	}

	return &Registry{
		logger:        logger,
		subscriptions: make(map[model.Topic][]subscription),
	}
}

// Subscribe registers handler on the topic of def. The event payload is decoded
// into P before handler runs; a payload that does not decode fails the delivery.
func Subscribe[P any](
	registry *Registry,
	def model.TopicDef[P],
	id model.SubscriptionID,
	handler func(ctx context.Context, payload P, event *model.DomainEvent) error,
) error {
	if handler == nil {
		return ErrCallbackRequired
	}

	return registry.SubscribeRaw(def.Topic(), id, func(ctx context.Context, event *model.DomainEvent) error {
		var payload P
		if err := json.Unmarshal(event.Payload, &payload); err != nil {
			return fmt.Errorf("failed to decode %s payload: %w", event.Topic, err)
		}

		return handler(ctx, payload, event)
	})
}

// SubscribeRaw registers callback on topic without decoding the payload.
func (r *Registry) SubscribeRaw(topic model.Topic, id model.SubscriptionID, callback Callback) error {
	if !topic.IsValid() {
		return fmt.Errorf("%w: %q", model.ErrInvalidTopic, topic)
	}

	if strings.TrimSpace(string(id)) == "" {
		return ErrSubscriptionIDRequired
	}

	if callback == nil {
		return ErrCallbackRequired
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	subscriptions := r.subscriptions[topic]
	for i := range subscriptions {
		if subscriptions[i].id == id {
			r.logger.Warn("Subscription already registered, replacing callback",
				slog.String("topic", string(topic)),
				slog.String("subscription_id", string(id)))

			subscriptions[i].callback = callback

			return nil
		}
	}

	r.subscriptions[topic] = append(subscriptions, subscription{id: id, callback: callback})

	return nil
}

// SubscriptionIDs lists the subscriptions of topic in registration order.
func (r *Registry) SubscriptionIDs(topic model.Topic) []model.SubscriptionID {
	r.mu.RLock()
	defer r.mu.RUnlock()

	ids := make([]model.SubscriptionID, 0, len(r.subscriptions[topic]))
	for _, sub := range r.subscriptions[topic] {
		ids = append(ids, sub.id)
	}

	return ids
}

// Unwired lists the known topics that have no subscription.
func (r *Registry) Unwired() []model.Topic {
	r.mu.RLock()
	defer r.mu.RUnlock()

	var unwired []model.Topic

	for _, topic := range model.Topics {
		if len(r.subscriptions[topic]) == 0 {
			unwired = append(unwired, topic)
		}
	}

	return unwired
}

func (r *Registry) snapshot(topic model.Topic) []subscription {
	r.mu.RLock()
	defer r.mu.RUnlock()

	return append([]subscription(nil), r.subscriptions[topic]...)
}
