package router

import (
	"github.com/gin-gonic/gin"

	"github.com/leecorbin/support-alert-system/internal/http/handler"
)

func MetricsRouter(router *gin.RouterGroup, handler *handler.MetricsHandler) {
	router.GET("", handler.GetMetrics)
}
