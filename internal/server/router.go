// Package server exposes the HTTP API: message generation, its streaming
// variant, and the feedback endpoint for confirmed sends.
package server

import (
	"net/http"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
)

// NewRouter wires the gin engine: CORS, healthcheck, and the /api surface.
func NewRouter(magic *MagicHandler) *gin.Engine {
	router := gin.Default()

	router.Use(cors.New(cors.Config{
		AllowOrigins:     []string{"http://localhost:3000", "http://localhost:5173"},
		AllowMethods:     []string{"GET", "POST", "OPTIONS"},
		AllowHeaders:     []string{"Authorization", "Content-Type", "X-Requested-With"},
		AllowCredentials: true,
	}))

	router.GET("/healthcheck", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})

	api := router.Group("/api")
	{
		api.POST("/magic/generate", magic.Generate)
		api.POST("/magic/generate/stream", magic.GenerateStream)
		api.POST("/guardian/learn", magic.Learn)
	}

	return router
}
