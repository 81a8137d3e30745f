package server

import (
	"context"
	"net/http"
	"strings"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"

	"github.com/gaugeworks/gaugetrack-backend/internal/observability"
	"github.com/gaugeworks/gaugetrack-backend/internal/pkg/env"
	"github.com/gaugeworks/gaugetrack-backend/internal/pkg/logger"
)

// RouterConfig wires the operational endpoints. Readiness is the
// storage ping; Metrics may be nil when the exporter is disabled.
type RouterConfig struct {
	Log       *logger.Logger
	Readiness func(ctx context.Context) error
	Metrics   *observability.Metrics
}

func NewRouter(cfg RouterConfig) *gin.Engine {
	r := gin.Default()
	r.Use(corsMiddleware(cfg.Log))

	r.GET("/healthcheck", func(c *gin.Context) {
		c.String(http.StatusOK, "ok")
	})

	r.GET("/readyz", func(c *gin.Context) {
		if cfg.Readiness == nil {
			c.String(http.StatusOK, "ready")
			return
		}
		ctx, cancel := context.WithTimeout(c.Request.Context(), 2*time.Second)
		defer cancel()
		if err := cfg.Readiness(ctx); err != nil {
			if cfg.Log != nil {
				cfg.Log.Warn("readiness probe failed", "error", err)
			}
			c.String(http.StatusServiceUnavailable, "not ready")
			return
		}
		c.String(http.StatusOK, "ready")
	})

	if cfg.Metrics != nil {
		r.GET("/metrics", gin.WrapH(cfg.Metrics.Handler()))
	}

	return r
}

func corsMiddleware(log *logger.Logger) gin.HandlerFunc {
	origins := strings.Split(env.Get("CORS_ALLOW_ORIGINS",
		"http://localhost:80,http://localhost:3000,http://localhost:5173", log), ",")
	for i := range origins {
		origins[i] = strings.TrimSpace(origins[i])
	}
	return cors.New(cors.Config{
		AllowOrigins:     origins,
		AllowMethods:     []string{"GET", "POST", "PUT", "DELETE", "PATCH", "OPTIONS"},
		AllowHeaders:     []string{"Authorization", "Content-Type", "X-Requested-With"},
		AllowCredentials: true,
	})
}
