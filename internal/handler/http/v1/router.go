package v1

import (
	"github.com/gin-gonic/gin"
)

// RegisterRoutes регистрирует все маршруты API v1
func (h *Handler) RegisterRoutes(api *gin.RouterGroup) {
	// Чтение отчетов доступно без ключа
	reports := api.Group("/reports")
	{
		reports.GET("", h.listReports)
		reports.GET("/overview", h.getOverview)
		reports.GET("/:id", h.getReport)
	}

	// Шаги мастера и удаление требуют API-ключ
	protected := api.Group("/reports", APIKeyAuthMiddleware(h.cfg, h.logger))
	{
		protected.POST("", h.startReport)
		protected.PUT("/:id/location", h.saveLocation)
		protected.PUT("/:id/duration", h.saveDuration)
		protected.PUT("/:id/damages", h.saveDamages)
		protected.DELETE("/:id", h.deleteReport)
	}

	api.GET("/recommendations", h.getRecommendations)
	api.GET("/address/:zip", h.lookupAddress)

	// Маршрут Health-check
	api.GET("/system/health", h.healthCheck)
}
