package webhook

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/leecorbin/support-alert-system/internal/http/dto"
	"github.com/leecorbin/support-alert-system/internal/service"
)

// HelpdeskWebhookHandler receives assignment and status change notifications
// from the helpdesk. The webhook is acknowledged before processing: the
// helpdesk retries slow responders, and the durable event log already owns
// delivery guarantees.
type HelpdeskWebhookHandler struct {
	ingest service.EventIngest
	logger *slog.Logger
}

func NewHelpdeskWebhookHandler(ingest service.EventIngest, logger *slog.Logger) *HelpdeskWebhookHandler {
	if logger == nil {
		logger = slog.Default()
	}
	return &HelpdeskWebhookHandler{ingest: ingest, logger: logger}
}

func (h *HelpdeskWebhookHandler) HandleEvents(c *gin.Context) {
	ctx := c.Request.Context()

	body, err := io.ReadAll(c.Request.Body)
	if err != nil {
		c.JSON(http.StatusBadRequest, dto.NewAPIResponse(false, "failed to read request body"))
		return
	}

	events, err := dto.ParseWebhookBody(body)
	if err != nil {
		h.logger.WarnContext(ctx, "malformed webhook payload", "error", err)
		c.JSON(http.StatusBadRequest, dto.NewAPIResponse(false, "invalid payload"))
		return
	}

	inbound := make([]service.InboundEvent, 0, len(events))
	for _, event := range events {
		if event.ObjectID == "" {
			h.logger.WarnContext(ctx, "webhook event missing object id", "subscription_type", event.SubscriptionType)
			continue
		}

		payload, marshalErr := json.Marshal(event)
		if marshalErr != nil {
			payload = body
		}

		inbound = append(inbound, service.InboundEvent{
			ConversationID:   event.ObjectID.String(),
			SubscriptionType: event.SubscriptionType,
			PropertyName:     event.PropertyName,
			PropertyValue:    event.PropertyValue,
			EventID:          event.EventID.String(),
			OccurredAt:       occurredAt(event.OccurredAt),
			Payload:          payload,
		})
	}

	// Acknowledge now; the events are handled off the request path.
	c.JSON(http.StatusOK, dto.NewAPIResponse(true, "events accepted"))

	if len(inbound) == 0 {
		return
	}

	bgCtx := context.WithoutCancel(ctx)
	go func() {
		result, ingestErr := h.ingest.Ingest(bgCtx, inbound)
		if ingestErr != nil {
			h.logger.ErrorContext(bgCtx, "webhook ingest failed", "error", ingestErr)
			return
		}
		h.logger.InfoContext(bgCtx, "webhook batch ingested",
			"accepted", result.Accepted,
			"duplicates", result.Duplicates,
			"skipped", result.Skipped)
	}()
}

func occurredAt(millis int64) time.Time {
	if millis <= 0 {
		return time.Time{}
	}
	return time.UnixMilli(millis).UTC()
}
