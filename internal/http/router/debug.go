package router

import (
	"github.com/gin-gonic/gin"

	"github.com/leecorbin/support-alert-system/internal/http/handler"
)

func DebugRouter(router *gin.RouterGroup, h *handler.DebugHandler) {
	router.Use(h.RequireAdminAPIKey())

	router.GET("/conversations/:id", h.GetConversation)
	router.POST("/recalculate", h.Recalculate)
	router.POST("/reset-escalations", h.ResetEscalations)
	router.POST("/purge", h.PurgeConversations)
	router.POST("/replay/:id", h.ReplayConversation)
}
