package router

import (
	"github.com/gin-gonic/gin"

	"github.com/leecorbin/support-alert-system/internal/http/handler/webhook"
)

func WebhookRouter(router *gin.RouterGroup, handler *webhook.HelpdeskWebhookHandler) {
	router.POST("/helpdesk", handler.HandleEvents)
}
