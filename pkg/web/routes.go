package web

import (
	"net/http"
	"time"

	"github.com/PancyStudios/DirectorioGo/pkg/config"
	"github.com/PancyStudios/DirectorioGo/pkg/database"
	"github.com/PancyStudios/DirectorioGo/pkg/mqtt"
	"github.com/gin-gonic/gin"
)

var startedAt = time.Now()

// SetupAPIRoutes sets up the service routes
func SetupAPIRoutes(s *Server) {
	api := s.Group("/api")
	{
		api.GET("/status", statusHandler)
		api.GET("/health", healthHandler)
	}
}

// statusHandler returns the database and broker status
func statusHandler(c *gin.Context) {
	cfg := config.Get()

	db := database.Get()
	dbStatus, dbOnline := db.GetStatus()
	dbSection := gin.H{
		"driver":   cfg.StoreDriver,
		"status":   dbStatus,
		"isOnline": dbOnline,
	}
	if cfg.UsesMemoryStore() {
		dbSection["status"], dbSection["isOnline"] = "🟡 | Memoria", true
	} else if dbOnline {
		if latency, err := db.Ping(); err == nil {
			dbSection["ping"] = latency.Milliseconds()
		}
	}

	c.JSON(http.StatusOK, gin.H{
		"status":  "ok",
		"version": config.Version,
		"build":   config.BuildTime,
		"uptime":  time.Since(startedAt).Round(time.Second).String(),
		"database": dbSection,
		"mqtt": gin.H{
			"isOnline": mqtt.Get().IsConnected(),
		},
	})
}

// healthHandler returns a simple health check response
func healthHandler(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"status":  "healthy",
		"message": "Directorio Go is running",
	})
}
