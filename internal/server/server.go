// Package server exposes the tracker's HTTP read API: status, per-match
// events, gamelog uploads, and parsing metrics.
package server

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog/log"

	"github.com/Code-6dof/DXX-Dashboard/internal/event_manager"
	"github.com/Code-6dof/DXX-Dashboard/internal/events"
	"github.com/Code-6dof/DXX-Dashboard/internal/gamelog"
	"github.com/Code-6dof/DXX-Dashboard/internal/registry"
)

type Server struct {
	Dependencies *Dependencies
}

type Dependencies struct {
	Registry     *registry.Registry
	Stores       *events.Stores
	Clients      *gamelog.ClientManager
	EventManager *event_manager.EventManager
	StartTime    time.Time
}

func NewRouter(serverDependencies *Dependencies) *gin.Engine {
	router := gin.New()
	server := &Server{
		Dependencies: serverDependencies,
	}

	// Recovery middleware
	router.Use(gin.CustomRecovery(server.customRecovery))

	// The dashboard may be served from anywhere; CORS is wide open.
	router.Use(func(c *gin.Context) {
		c.Writer.Header().Set("Access-Control-Allow-Origin", "*")
		c.Writer.Header().Set("Access-Control-Allow-Headers", "Content-Type, Content-Length, Accept-Encoding, Cache-Control, X-Requested-With")
		c.Writer.Header().Set("Access-Control-Allow-Methods", "POST, OPTIONS, GET")

		if c.Request.Method == "OPTIONS" {
			c.AbortWithStatus(204)
			return
		}

		c.Next()
	})

	router.GET("/api/status", server.Status)
	router.GET("/api/stats", server.Stats)
	router.GET("/api/events/:key", server.MatchEvents)
	router.POST("/api/gamelog", server.GamelogReplace)
	router.POST("/api/gamelog/append", server.GamelogAppend)

	router.NoRoute(func(c *gin.Context) {
		c.JSON(http.StatusNotFound, gin.H{"error": "not found"})
	})

	return router
}

func (s *Server) customRecovery(c *gin.Context, recovered interface{}) {
	log.Error().Interface("panic", recovered).Str("path", c.Request.URL.Path).Msg("Recovered from panic in handler")
	c.JSON(http.StatusInternalServerError, gin.H{"error": "internal server error"})
}
