package subscriber

import (
	"context"
	"log/slog"

	"github.com/jnst/convention-outbox/internal/model"
)

// AuditLoggerID is the subscription id of AuditLogger.
const AuditLoggerID model.SubscriptionID = "audit-convention-status"

// AuditLogger writes one structured log line per convention event.
type AuditLogger struct {
	logger *slog.Logger
}

// NewAuditLogger creates an AuditLogger.
func NewAuditLogger(logger *slog.Logger) *AuditLogger {
	if logger == nil {
		logger = slog.Default()
	}

	return &AuditLogger{logger: logger}
}

// Handle logs the convention status carried by the event.
func (a *AuditLogger) Handle(ctx context.Context, payload model.ConventionPayload, event *model.DomainEvent) error {
	role := ""
	if payload.TriggeredBy != nil {
		role = string(payload.TriggeredBy.Role)
	}

	a.logger.InfoContext(ctx, "Convention event",
		slog.String("event_id", event.ID),
		slog.String("topic", string(event.Topic)),
		slog.String("convention_id", payload.Convention.ID),
		slog.String("status", string(payload.Convention.Status)),
		slog.String("triggered_by", role),
	)

	return nil
}
