package router

import (
	"github.com/gin-gonic/gin"

	"github.com/ppiankov/claimdesk/internal/http/handler"
	"github.com/ppiankov/claimdesk/internal/logging"
	"github.com/ppiankov/claimdesk/internal/worker"
)

type RouterConfig struct {
	Limiter *worker.Limiter // optional per-client limit on the API
	Logger  *logging.Logger
}

func SetupRoutes(router *gin.Engine, h *handler.SessionHandler, cfg RouterConfig) {
	if cfg.Logger != nil {
		router.Use(handler.RequestLogger(cfg.Logger))
	}

	router.GET("/health", h.Health)

	api := router.Group("/api")
	if cfg.Limiter != nil {
		api.Use(handler.RateLimit(cfg.Limiter))
	}
	SessionRouter(api.Group("/sessions"), h)
}

// SessionRouter mounts the wizard session routes
func SessionRouter(rg *gin.RouterGroup, h *handler.SessionHandler) {
	rg.POST("", h.Create)

	s := rg.Group("/:id")
	s.Use(h.LoadSession())
	{
		s.GET("", h.Get)
		s.DELETE("", h.Delete)
		s.GET("/events", h.Events)
		s.GET("/export", h.Export)

		s.POST("/files", h.UploadFile)
		s.POST("/next", h.Next)
		s.POST("/previous", h.Previous)
		s.POST("/steps/:step", h.GoTo)
		s.POST("/reextract", h.Reextract)

		s.POST("/conflicts/:index/accept", h.AcceptConflict)
		s.POST("/acknowledge", h.Acknowledge)
		s.POST("/signals", h.AnalyzeSignals)
		s.POST("/evidence", h.CheckEvidence)

		s.POST("/timeline/save", h.SaveTimeline)
		s.PUT("/timeline/events/:index", h.EditTimelineEvent)
		s.POST("/timeline/events/:index/move", h.MoveTimelineEvent)

		s.POST("/recommendation", h.GenerateRecommendation)
		s.PUT("/recommendation", h.AdjustRecommendation)

		s.POST("/rationale", h.GenerateRationale)
		s.PUT("/rationale", h.EditRationale)

		s.POST("/escalation", h.GenerateEscalation)
		s.POST("/escalation/send", h.SendEscalation)
	}
}
