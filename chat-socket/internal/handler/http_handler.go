package handler

import (
	"context"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"

	"github.com/weiawesome/wes-chat-socket/chat-socket/internal/metrics"
	"github.com/weiawesome/wes-chat-socket/pkg/log"
	"github.com/weiawesome/wes-chat-socket/pkg/response"
)

// HealthCheck reports whether a dependency is usable.
type HealthCheck func(ctx context.Context) error

const healthTimeout = 2 * time.Second

// NewRouter builds the gin engine with the socket, health and metrics
// routes. health may be nil.
func NewRouter(ws *WSHandler, socketPath string, origins *OriginPolicy, logger zerolog.Logger, health HealthCheck) *gin.Engine {
	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(log.GinMiddleware(logger))
	r.Use(metrics.GinMiddleware())
	r.Use(corsMiddleware(origins))

	r.GET(socketPath, ws.HandleSocket)

	r.GET("/health", func(c *gin.Context) {
		if health != nil {
			ctx, cancel := context.WithTimeout(c.Request.Context(), healthTimeout)
			defer cancel()
			if err := health(ctx); err != nil {
				l := log.Ctx(c.Request.Context())
				l.Warn().Err(err).Msg("health check failed")
				response.ServiceUnavailable(c, "database unavailable")
				return
			}
		}
		c.String(http.StatusOK, "OK")
	})
	r.GET("/metrics", gin.WrapH(promhttp.Handler()))

	return r
}

func corsMiddleware(origins *OriginPolicy) gin.HandlerFunc {
	return func(c *gin.Context) {
		origin := c.GetHeader("Origin")
		switch {
		case origins.AllowAll():
			c.Header("Access-Control-Allow-Origin", "*")
		case origin != "" && origins.Check(c.Request):
			c.Header("Access-Control-Allow-Origin", origin)
			c.Header("Vary", "Origin")
		}
		c.Header("Access-Control-Allow-Methods", "GET, POST, OPTIONS")
		c.Header("Access-Control-Allow-Headers", "Content-Type")

		if c.Request.Method == http.MethodOptions {
			c.AbortWithStatus(http.StatusNoContent)
			return
		}
		c.Next()
	}
}
