package http

import (
	"github.com/gin-gonic/gin"
	"github.com/layer-3/sigauth/log"
	"github.com/layer-3/sigauth/metrics"
	"github.com/layer-3/sigauth/ports"
	"github.com/layer-3/sigauth/service"
)

// SetupRouter sets up the Gin router
func SetupRouter(authService *service.AuthService, attestor ports.Attestor, m *metrics.Metrics, logger log.Logger) *gin.Engine {
	router := gin.New()
	router.Use(gin.Recovery(), RequestLogger(logger))

	// Create handlers
	handlers := NewAuthHandlers(authService, logger)

	// Caller routes
	auth := router.Group("/auth")
	{
		auth.GET("/status/:address", handlers.Status)
		auth.GET("/events/:address", handlers.Events)
	}

	attested := auth.Group("")
	attested.Use(AuthMiddleware(attestor))
	{
		attested.POST("/verify", handlers.Verify)
		attested.POST("/revoke", handlers.Revoke)
	}

	router.GET("/ledger", handlers.Ledger)
	router.GET("/health", handlers.Health)
	if m != nil {
		router.GET("/metrics", gin.WrapH(m.Handler()))
	}

	return router
}
