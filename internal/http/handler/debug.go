package handler

import (
	"errors"
	"log/slog"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/leecorbin/support-alert-system/internal/http/dto"
	"github.com/leecorbin/support-alert-system/internal/service"
	"github.com/leecorbin/support-alert-system/internal/store"
)

// DebugHandler exposes operator tooling: inspect a conversation, recount or
// reset the escalation counter, and replay a conversation's history. All
// routes sit behind the admin API key.
type DebugHandler struct {
	admin       service.Admin
	adminAPIKey string
}

func NewDebugHandler(admin service.Admin, adminAPIKey string) *DebugHandler {
	return &DebugHandler{admin: admin, adminAPIKey: adminAPIKey}
}

// RequireAdminAPIKey middleware checks for valid admin API key
func (h *DebugHandler) RequireAdminAPIKey() gin.HandlerFunc {
	return func(c *gin.Context) {
		if h.adminAPIKey == "" {
			c.JSON(http.StatusServiceUnavailable, gin.H{"error": "admin API not configured"})
			c.Abort()
			return
		}

		apiKey := c.GetHeader("X-Admin-API-Key")
		if apiKey == "" {
			apiKey = c.GetHeader("Authorization")
			if len(apiKey) > 7 && apiKey[:7] == "Bearer " {
				apiKey = apiKey[7:]
			}
		}

		if apiKey != h.adminAPIKey {
			c.JSON(http.StatusUnauthorized, gin.H{"error": "invalid or missing API key"})
			c.Abort()
			return
		}

		c.Next()
	}
}

func (h *DebugHandler) GetConversation(c *gin.Context) {
	ctx := c.Request.Context()
	conversationID := c.Param("id")

	debug, err := h.admin.GetConversation(ctx, conversationID)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"error": "conversation not found"})
			return
		}
		slog.ErrorContext(ctx, "failed to load conversation debug", "error", err, "conversation_id", conversationID)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to load conversation"})
		return
	}

	c.JSON(http.StatusOK, debug)
}

func (h *DebugHandler) Recalculate(c *gin.Context) {
	ctx := c.Request.Context()

	count, err := h.admin.Recalculate(ctx)
	if err != nil {
		slog.ErrorContext(ctx, "recalculation failed", "error", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "recalculation failed"})
		return
	}

	c.JSON(http.StatusOK, dto.RecalculateResponse{
		APIResponse:       dto.NewAPIResponse(true, "escalated sessions recalculated"),
		EscalatedSessions: count,
	})
}

func (h *DebugHandler) ResetEscalations(c *gin.Context) {
	ctx := c.Request.Context()

	if err := h.admin.ResetEscalations(ctx); err != nil {
		slog.ErrorContext(ctx, "escalation reset failed", "error", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "reset failed"})
		return
	}

	c.JSON(http.StatusOK, dto.NewAPIResponse(true, "escalation counter reset"))
}

func (h *DebugHandler) PurgeConversations(c *gin.Context) {
	ctx := c.Request.Context()

	if err := h.admin.PurgeConversations(ctx); err != nil {
		slog.ErrorContext(ctx, "conversation purge failed", "error", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "purge failed"})
		return
	}

	c.JSON(http.StatusOK, dto.NewAPIResponse(true, "conversation state purged"))
}

func (h *DebugHandler) ReplayConversation(c *gin.Context) {
	ctx := c.Request.Context()
	conversationID := c.Param("id")

	replayed, err := h.admin.ReplayConversation(ctx, conversationID)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"error": "no events for conversation"})
			return
		}
		slog.ErrorContext(ctx, "conversation replay failed", "error", err, "conversation_id", conversationID)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "replay failed"})
		return
	}

	c.JSON(http.StatusOK, dto.ReplayResponse{
		APIResponse:    dto.NewAPIResponse(true, "conversation replayed"),
		ConversationID: conversationID,
		EventsReplayed: replayed,
	})
}
