package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"
)

func HealthCheck(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "healthy", "service": "decision-timeline-backend"})
}

func Root(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"message": "Decision Timeline API",
		"version": "1.0.0",
		"endpoints": gin.H{
			"decisions": "/api/decisions",
			"traces":    "/api/traces",
			"stats":     "/api/stats/overview",
		},
	})
}
