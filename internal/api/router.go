package api

import (
	"github.com/gin-gonic/gin"

	"safepulse/internal/config"
	"safepulse/internal/logging"
)

func NewRouter(logger *logging.Logger, cfg config.Config, h *Handler) *gin.Engine {
	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(RequestLoggingMiddleware(logger))

	api := r.Group(cfg.API.BasePath)
	{
		// Triggers
		api.POST("/triggers", h.CreateTrigger)

		// Location feed
		api.POST("/locations", h.PushLocation)
		api.GET("/locations/user/:user_id", h.GetLocationsByUserID)

		// Alerts
		api.POST("/alerts/:id/resolve", h.ResolveAlert)
		api.GET("/alerts/:id", h.GetAlert)
		api.GET("/alerts/:id/transitions", h.GetAlertTransitions)
		api.GET("/alerts/user/:user_id", h.GetAlertsByUserID)

		// Contacts (read-only; mutation lives in account management)
		api.GET("/contacts/user/:user_id", h.GetContactsByUserID)
	}

	// Live location sharing
	r.GET("/live/:user_id", h.WatchLive)

	return r
}
