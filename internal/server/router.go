package server

import (
	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"

	"github.com/yungbote/decision-timeline-backend/internal/handlers"
)

type RouterConfig struct {
	DecisionHandler *handlers.DecisionHandler
	TraceHandler    *handlers.TraceHandler
	CORSOrigins     []string
}

func NewRouter(cfg RouterConfig) *gin.Engine {
	router := gin.Default()

	origins := cfg.CORSOrigins
	if len(origins) == 0 {
		origins = []string{
			"http://localhost:3000",
			"http://localhost:5173",
		}
	}
	router.Use(cors.New(cors.Config{
		AllowOrigins:     origins,
		AllowMethods:     []string{"GET", "POST", "PUT", "DELETE", "PATCH", "OPTIONS"},
		AllowHeaders:     []string{"Authorization", "Content-Type", "X-Requested-With"},
		AllowCredentials: true,
	}))

	router.GET("/", handlers.Root)
	router.GET("/healthcheck", handlers.HealthCheck)

	api := router.Group("/api")
	{
		// Decisions. Export routes go first so gin never reads "export"
		// as a decision id.
		api.GET("/decisions/export/csv", cfg.DecisionHandler.ExportCSV)
		api.GET("/decisions/export/json", cfg.DecisionHandler.ExportJSON)
		api.POST("/decisions", cfg.DecisionHandler.Create)
		api.GET("/decisions", cfg.DecisionHandler.List)
		api.GET("/decisions/:decision_id", cfg.DecisionHandler.Get)
		api.GET("/decisions/:decision_id/replay", cfg.DecisionHandler.Replay)
		api.PATCH("/decisions/:decision_id/outcome", cfg.DecisionHandler.UpdateOutcome)
		api.PUT("/decisions/:decision_id/tags", cfg.DecisionHandler.UpdateTags)
		api.DELETE("/decisions/:decision_id", cfg.DecisionHandler.Delete)

		// Traces
		api.GET("/traces/stats", cfg.TraceHandler.Stats)
		api.GET("/traces/timeline", cfg.TraceHandler.Timeline)
		api.GET("/traces/search", cfg.TraceHandler.Search)
		api.GET("/traces/tags", cfg.TraceHandler.Tags)

		// Stats
		api.GET("/stats/overview", cfg.TraceHandler.Overview)
	}

	return router
}
