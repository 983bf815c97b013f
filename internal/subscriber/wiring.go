package subscriber

import (
	"fmt"

	"github.com/jnst/convention-outbox/internal/eventbus"
	"github.com/jnst/convention-outbox/internal/model"
)

// Subscribers groups the optional side effects to register. Nil fields are skipped.
type Subscribers struct {
	Audit *AuditLogger
	Redis *RedisStreamBroadcaster
	Kafka *KafkaBroadcaster
}

// Register subscribes every configured side effect to every convention topic.
func Register(registry *eventbus.Registry, subscribers Subscribers) error {
	for _, def := range model.ConventionTopics {
		if subscribers.Audit != nil {
			if err := eventbus.Subscribe(registry, def, AuditLoggerID, subscribers.Audit.Handle); err != nil {
				return fmt.Errorf("failed to subscribe %s to %s: %w", AuditLoggerID, def.Topic(), err)
			}
		}

		if subscribers.Redis != nil {
			if err := registry.SubscribeRaw(def.Topic(), RedisStreamBroadcasterID, subscribers.Redis.Handle); err != nil {
				return fmt.Errorf("failed to subscribe %s to %s: %w", RedisStreamBroadcasterID, def.Topic(), err)
			}
		}

		if subscribers.Kafka != nil {
			if err := eventbus.Subscribe(registry, def, KafkaBroadcasterID, subscribers.Kafka.Handle); err != nil {
				return fmt.Errorf("failed to subscribe %s to %s: %w", KafkaBroadcasterID, def.Topic(), err)
			}
		}
	}

	return nil
}
