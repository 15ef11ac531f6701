package router

import (
	"github.com/gin-gonic/gin"

	"github.com/leecorbin/support-alert-system/internal/http/handler"
	"github.com/leecorbin/support-alert-system/internal/http/handler/webhook"
	"github.com/leecorbin/support-alert-system/internal/service"
)

type RouterConfig struct {
	AdminAPIKey string
}

func SetupRoutes(router *gin.Engine, services *service.Services, cfg RouterConfig) {
	router.GET("/health", func(c *gin.Context) {
		c.JSON(200, gin.H{"status": "ok"})
	})

	v1 := router.Group("/api/v1")
	{
		webhookHandler := webhook.NewHelpdeskWebhookHandler(services.Ingest, nil)
		WebhookRouter(v1.Group("/webhooks"), webhookHandler)

		metricsHandler := handler.NewMetricsHandler(services.Stores.Metrics())
		MetricsRouter(v1.Group("/metrics"), metricsHandler)

		debugHandler := handler.NewDebugHandler(services.Admin, cfg.AdminAPIKey)
		DebugRouter(v1.Group("/debug"), debugHandler)
	}
}
