package handler

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/leecorbin/support-alert-system/internal/http/dto"
	"github.com/leecorbin/support-alert-system/internal/store"
)

type MetricsHandler struct {
	metrics store.MetricsStore
}

func NewMetricsHandler(metrics store.MetricsStore) *MetricsHandler {
	return &MetricsHandler{metrics: metrics}
}

func (h *MetricsHandler) GetMetrics(c *gin.Context) {
	ctx := c.Request.Context()

	snapshot, err := h.metrics.Get(ctx)
	if err != nil {
		slog.ErrorContext(ctx, "failed to load metrics snapshot", "error", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to load metrics"})
		return
	}

	c.JSON(http.StatusOK, dto.MetricsResponse{
		Success: true,
		Data: dto.MetricsData{
			Tickets: dto.TicketCounts{
				Open:  snapshot.Tickets.Open,
				Chat:  snapshot.Tickets.Chat,
				Email: snapshot.Tickets.Email,
				Other: snapshot.Tickets.Other,
			},
			Sessions: dto.SessionCounts{
				Active:    snapshot.ActiveSessions,
				Escalated: snapshot.EscalatedSessions,
			},
			LastUpdated: snapshot.LastUpdated.UTC().Format(time.RFC3339),
			Source:      snapshot.Source,
		},
	})
}
