package main

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/redis/rueidis"
	"github.com/stretchr/testify/require"

	"github.com/jnst/convention-outbox/internal/eventbus"
	"github.com/jnst/convention-outbox/internal/model"
)

func newTestHandler() *MessageHandler {
	return NewMessageHandler(nil, "convention:events", "ops:notifications")
}

func TestProcessMessage_ConventionEvent(t *testing.T) {
	t.Parallel()

	payload, err := json.Marshal(model.ConventionPayload{
		Convention: model.Convention{ID: "conv-1", Status: model.ConventionStatusReadyToSign},
	})
	require.NoError(t, err)

	err = newTestHandler().processMessage(context.Background(), "convention:events", rueidis.XRangeEntry{
		ID: "1-0",
		FieldValues: map[string]string{
			"event_id": "evt-1",
			"topic":    string(model.TopicConventionReadyToSign),
			"payload":  string(payload),
		},
	})
	require.NoError(t, err)
}

func TestProcessMessage_ConventionEventErrors(t *testing.T) {
	t.Parallel()

	handler := newTestHandler()
	ctx := context.Background()

	err := handler.processMessage(ctx, "convention:events", rueidis.XRangeEntry{
		ID:          "1-0",
		FieldValues: map[string]string{"payload": "{}"},
	})
	require.ErrorContains(t, err, "missing topic")

	err = handler.processMessage(ctx, "convention:events", rueidis.XRangeEntry{
		ID:          "2-0",
		FieldValues: map[string]string{"topic": "ConventionValidated", "payload": "not json"},
	})
	require.ErrorContains(t, err, "failed to parse ConventionValidated payload")

	err = handler.processMessage(ctx, "convention:events", rueidis.XRangeEntry{
		ID:          "3-0",
		FieldValues: map[string]string{"topic": "UserCreated", "payload": "{}"},
	})
	require.NoError(t, err, "unknown topics are acknowledged and skipped")
}

func TestProcessMessage_QuarantineNotification(t *testing.T) {
	t.Parallel()

	body, err := json.Marshal(eventbus.QuarantineNotification{
		Event: &model.DomainEvent{ID: "evt-1", Topic: model.TopicConventionFullySigned},
		LastPublication: model.EventPublication{
			PublishedAt: time.Date(2024, 5, 2, 9, 0, 0, 0, time.UTC),
			Failures:    []model.EventFailure{{SubscriptionID: "mailer", ErrorMessage: "smtp down"}},
		},
	})
	require.NoError(t, err)

	handler := newTestHandler()

	err = handler.processMessage(context.Background(), "ops:notifications", rueidis.XRangeEntry{
		ID:          "1-0",
		FieldValues: map[string]string{"notification": string(body)},
	})
	require.NoError(t, err)

	err = handler.processMessage(context.Background(), "ops:notifications", rueidis.XRangeEntry{
		ID:          "2-0",
		FieldValues: map[string]string{"notification": `{}`},
	})
	require.ErrorContains(t, err, "notification has no event")
}
