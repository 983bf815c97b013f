package eventbus

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/redis/rueidis"

	"github.com/jnst/convention-outbox/internal/model"
)

// QuarantineNotification describes an event that stopped being retried.
// Event carries no payload.
type QuarantineNotification struct {
	Event           *model.DomainEvent     `json:"event"`
	LastPublication model.EventPublication `json:"lastPublication"`
}

func newQuarantineNotification(event *model.DomainEvent) QuarantineNotification {
	last, _ := event.LastPublication()

	return QuarantineNotification{
		Event:           event.WithoutPayload(),
		LastPublication: last,
	}
}

// Notifier alerts operators about quarantined events.
type Notifier interface {
	NotifyQuarantined(ctx context.Context, notification QuarantineNotification) error
}

// LogNotifier reports quarantined events through the logger.
type LogNotifier struct {
	logger *slog.Logger
}

// NewLogNotifier creates a Notifier that only logs.
func NewLogNotifier(logger *slog.Logger) *LogNotifier {
	if logger == nil {
		logger = slog.Default()
	}

	return &LogNotifier{logger: logger}
}

// NotifyQuarantined logs the notification at error level.
func (n *LogNotifier) NotifyQuarantined(ctx context.Context, notification QuarantineNotification) error {
	attrs := []slog.Attr{
		slog.String("event_id", notification.Event.ID),
		slog.String("topic", string(notification.Event.Topic)),
		slog.Int("publications", len(notification.Event.Publications)),
	}

	for _, failure := range notification.LastPublication.Failures {
		attrs = append(attrs, slog.String(string(failure.SubscriptionID), failure.ErrorMessage))
	}

	n.logger.LogAttrs(ctx, slog.LevelError, "Event quarantined after too many failed publications", attrs...)

	return nil
}

// RedisStreamNotifier appends notifications to a Redis stream read by operators.
type RedisStreamNotifier struct {
	redisClient rueidis.Client
	streamKey   string
}

// NewRedisStreamNotifier creates a Notifier writing to streamKey.
func NewRedisStreamNotifier(redisClient rueidis.Client, streamKey string) *RedisStreamNotifier {
	return &RedisStreamNotifier{
		redisClient: redisClient,
		streamKey:   streamKey,
	}
}

// NotifyQuarantined adds one stream entry per quarantined event.
func (n *RedisStreamNotifier) NotifyQuarantined(ctx context.Context, notification QuarantineNotification) error {
	body, err := json.Marshal(notification)
	if err != nil {
		return fmt.Errorf("failed to marshal notification for event %s: %w", notification.Event.ID, err)
	}

	cmd := n.redisClient.B().Xadd().Key(n.streamKey).Id("*").
		FieldValue().FieldValue("kind", "event_quarantined").
		FieldValue("event_id", notification.Event.ID).
		FieldValue("topic", string(notification.Event.Topic)).
		FieldValue("occurred_at", notification.Event.OccurredAt.Format(time.RFC3339Nano)).
		FieldValue("notification", string(body)).
		Build()

	if err := n.redisClient.Do(ctx, cmd).Error(); err != nil {
		return fmt.Errorf("failed to add notification for event %s to stream %s: %w",
			notification.Event.ID, n.streamKey, err)
	}

	return nil
}
