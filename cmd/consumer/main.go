// Package main provides the consumer of the convention broadcast and operator notification streams.
package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/redis/rueidis"

	"github.com/jnst/convention-outbox/internal/config"
	"github.com/jnst/convention-outbox/internal/eventbus"
	"github.com/jnst/convention-outbox/internal/logger"
	"github.com/jnst/convention-outbox/internal/model"
)

const (
	redisBlockTimeout = 1000 // milliseconds
	readCount         = 10
	errorRetryDelay   = 1 * time.Second
	signalBufferSize  = 1
	exitCode          = 1
	groupName         = "convention-mailer"
)

// MessageHandler processes messages from Redis Streams.
type MessageHandler struct {
	redisClient        rueidis.Client
	broadcastStream    string
	notificationStream string
}

// NewMessageHandler creates a new message handler instance.
func NewMessageHandler(redisClient rueidis.Client, broadcastStream, notificationStream string) *MessageHandler {
	return &MessageHandler{
		redisClient:        redisClient,
		broadcastStream:    broadcastStream,
		notificationStream: notificationStream,
	}
}

// HandleConventionEvent reacts to a broadcast convention event.
func (*MessageHandler) HandleConventionEvent(
	ctx context.Context, topic model.Topic, payload *model.ConventionPayload,
) error {
	convention := payload.Convention

	switch topic {
	case model.TopicConventionReadyToSign:
		for _, signatory := range convention.Signatories.Present() {
			slog.InfoContext(ctx, "sending signature request",
				slog.String("convention_id", convention.ID),
				slog.String("role", string(signatory.Role)),
				slog.String("email", signatory.Email),
			)
		}
	case model.TopicConventionFullySigned:
		slog.InfoContext(ctx, "notifying agency of fully signed convention",
			slog.String("convention_id", convention.ID),
			slog.String("agency_id", convention.AgencyID),
		)
	default:
		slog.InfoContext(ctx, "convention event received",
			slog.String("topic", string(topic)),
			slog.String("convention_id", convention.ID),
			slog.String("status", string(convention.Status)),
		)
	}

	return nil
}

// HandleQuarantineNotification surfaces an event that stopped being retried.
func (*MessageHandler) HandleQuarantineNotification(
	ctx context.Context, notification *eventbus.QuarantineNotification,
) error {
	if notification.Event == nil {
		return errors.New("notification has no event")
	}

	attrs := []slog.Attr{
		slog.String("event_id", notification.Event.ID),
		slog.String("topic", string(notification.Event.Topic)),
		slog.Time("last_published_at", notification.LastPublication.PublishedAt),
	}

	for _, failure := range notification.LastPublication.Failures {
		attrs = append(attrs, slog.String(string(failure.SubscriptionID), failure.ErrorMessage))
	}

	slog.LogAttrs(ctx, slog.LevelError, "event quarantined, operator action required", attrs...)

	return nil
}

func setupRedisClient(cfg *config.Config) (rueidis.Client, error) {
	redisClient, err := rueidis.NewClient(rueidis.ClientOption{
		InitAddress: []string{cfg.RedisAddr},
	})
	if err != nil {
		return nil, err
	}

	return redisClient, nil
}

func setupSignalHandling() (context.Context, context.CancelFunc) {
	ctx, cancel := context.WithCancel(context.Background())

	sigChan := make(chan os.Signal, signalBufferSize)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)

	go func() {
		<-sigChan
		slog.Info("shutdown signal received, stopping consumer")
		cancel()
	}()

	return ctx, cancel
}

func createConsumerGroup(ctx context.Context, redisClient rueidis.Client, streamKey, groupName string) {
	createGroupCmd := redisClient.B().XgroupCreate().Key(streamKey).Group(groupName).Id("0").Mkstream().Build()
	if err := redisClient.Do(ctx, createGroupCmd).Error(); err != nil {
		slog.Info("consumer group creation result (may already exist)",
			slog.String("stream", streamKey),
			slog.String("error", err.Error()))
	}
}

func runConsumerLoop(ctx context.Context, handler *MessageHandler, consumerName string) {
	for {
		select {
		case <-ctx.Done():
			slog.Info("consumer stopped")
			return
		default:
			if err := handler.consumeMessages(ctx, consumerName); err != nil {
				slog.Error("error consuming messages", slog.String("error", err.Error()))
				time.Sleep(errorRetryDelay)
			}
		}
	}
}

func main() {
	cfg, err := config.LoadConfig()
	if err != nil {
		slog.Error("failed to load config", slog.String("error", err.Error()))
		os.Exit(exitCode)
	}

	loggerInstance := logger.Setup(cfg.LogLevel, cfg.LogFormat)
	slog.SetDefault(loggerInstance)

	redisClient, err := setupRedisClient(cfg)
	if err != nil {
		slog.Error("failed to connect to Redis", slog.String("error", err.Error()))
		os.Exit(exitCode)
	}
	defer redisClient.Close()

	handler := NewMessageHandler(redisClient, cfg.BroadcastStream, cfg.NotificationStream)
	ctx, cancel := setupSignalHandling()
	defer cancel()

	consumerName := cfg.ConsumerName

	createConsumerGroup(ctx, redisClient, cfg.BroadcastStream, groupName)
	createConsumerGroup(ctx, redisClient, cfg.NotificationStream, groupName)

	slog.Info("starting message consumer",
		slog.String("service", "consumer"),
		slog.String("broadcast_stream", cfg.BroadcastStream),
		slog.String("notification_stream", cfg.NotificationStream),
		slog.String("group", groupName),
		slog.String("consumer", consumerName),
	)

	runConsumerLoop(ctx, handler, consumerName)
}

func (h *MessageHandler) readMessages(ctx context.Context, consumerName string) (map[string][]rueidis.XRangeEntry, error) {
	readCmd := h.redisClient.B().Xreadgroup().Group(groupName, consumerName).
		Count(readCount).
		Block(redisBlockTimeout).
		Streams().
		Key(h.broadcastStream, h.notificationStream).
		Id(">", ">").
		Build()

	result := h.redisClient.Do(ctx, readCmd)
	if err := result.Error(); err != nil {
		if rueidis.IsRedisNil(err) {
			return nil, nil
		}

		return nil, err
	}

	return result.AsXRead()
}

func (h *MessageHandler) acknowledgeMessage(ctx context.Context, streamKey, messageID string) {
	ackCmd := h.redisClient.B().Xack().Key(streamKey).Group(groupName).Id(messageID).Build()
	if err := h.redisClient.Do(ctx, ackCmd).Error(); err != nil {
		slog.Error("failed to ACK message",
			slog.String("stream", streamKey),
			slog.String("message_id", messageID),
			slog.String("error", err.Error()),
		)
	} else {
		slog.Debug("ACKed message", slog.String("message_id", messageID))
	}
}

func (h *MessageHandler) consumeMessages(ctx context.Context, consumerName string) error {
	streams, err := h.readMessages(ctx, consumerName)
	if err != nil {
		return err
	}

	for streamKey, messages := range streams {
		slog.Debug("processing stream",
			slog.String("stream", streamKey),
			slog.Int("message_count", len(messages)),
		)

		for _, message := range messages {
			if err := h.processMessage(ctx, streamKey, message); err != nil {
				slog.Error("failed to process message",
					slog.String("stream", streamKey),
					slog.String("message_id", message.ID),
					slog.String("error", err.Error()),
				)

				continue
			}

			h.acknowledgeMessage(ctx, streamKey, message.ID)
		}
	}

	return nil
}

func (h *MessageHandler) processMessage(ctx context.Context, streamKey string, message rueidis.XRangeEntry) error {
	slog.Debug("received message",
		slog.String("message_id", message.ID),
		slog.Any("fields", message.FieldValues),
	)

	switch streamKey {
	case h.broadcastStream:
		return h.processConventionMessage(ctx, message)
	case h.notificationStream:
		return h.processNotificationMessage(ctx, message)
	default:
		slog.Warn("message from unexpected stream", slog.String("stream", streamKey))
		return nil
	}
}

func (h *MessageHandler) processConventionMessage(ctx context.Context, message rueidis.XRangeEntry) error {
	rawTopic, ok := message.FieldValues["topic"]
	if !ok {
		return errors.New("missing topic in message")
	}

	topic, err := model.ParseTopic(rawTopic)
	if err != nil {
		slog.Warn("unknown topic", slog.String("topic", rawTopic))
		return nil
	}

	payloadStr, ok := message.FieldValues["payload"]
	if !ok {
		return errors.New("missing payload in message")
	}

	var payload model.ConventionPayload
	if err := json.Unmarshal([]byte(payloadStr), &payload); err != nil {
		return fmt.Errorf("failed to parse %s payload: %w", topic, err)
	}

	return h.HandleConventionEvent(ctx, topic, &payload)
}

func (h *MessageHandler) processNotificationMessage(ctx context.Context, message rueidis.XRangeEntry) error {
	body, ok := message.FieldValues["notification"]
	if !ok {
		return errors.New("missing notification in message")
	}

	var notification eventbus.QuarantineNotification
	if err := json.Unmarshal([]byte(body), &notification); err != nil {
		return fmt.Errorf("failed to parse notification: %w", err)
	}

	return h.HandleQuarantineNotification(ctx, &notification)
}
