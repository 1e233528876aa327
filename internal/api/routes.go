package api

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

// SetupRoutes sets up the API routes. metrics may be nil.
func SetupRoutes(handler *Handler, metrics http.Handler, logger *zap.Logger) *gin.Engine {
	router := gin.New()

	// Middleware
	router.Use(Recovery())
	router.Use(CORS())
	router.Use(Logger(logger))

	// Health check
	router.GET("/health", handler.HealthCheck)
	if metrics != nil {
		router.GET("/metrics", gin.WrapH(metrics))
	}

	// Cache proxy
	c := router.Group("/cache")
	{
		c.GET("/stats", handler.GetCacheStats)
		c.GET("/:org/:repo", handler.GetCacheEntry)
		c.PUT("/:org/:repo", handler.PutCacheEntry)
	}

	// API v1
	v1 := router.Group("/api/v1")
	{
		v1.GET("/runs", handler.GetRuns)
	}

	return router
}
