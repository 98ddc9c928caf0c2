package api

import (
	"context"
	"crypto/rsa"
	"net/http"
	"strings"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	internalapi "github.com/kirkhezir/church-app-sub002/internal/api/internal"
	"github.com/kirkhezir/church-app-sub002/internal/api/middleware"
	v1 "github.com/kirkhezir/church-app-sub002/internal/api/v1"
	"github.com/kirkhezir/church-app-sub002/internal/sse"
	loggerpkg "github.com/kirkhezir/church-app-sub002/pkg/logger"
)

const defaultAllowOrigin = "http://localhost:5173"

type Pinger interface {
	Ping(ctx context.Context) error
}

type RouterConfig struct {
	Logger         *zap.Logger
	AllowOrigins   []string
	JWTPublicKey   *rsa.PublicKey
	InternalToken  string
	WriteRateLimit int
	ReadyTimeout   time.Duration

	DB            Pinger
	LogStore      *loggerpkg.RecentLogStore
	Announcements v1.AnnouncementService
	Stream        *sse.SSEHub
}

func NewRouter(cfg RouterConfig) *gin.Engine {
	if cfg.Logger == nil {
		cfg.Logger = zap.NewNop()
	}
	if cfg.ReadyTimeout <= 0 {
		cfg.ReadyTimeout = 3 * time.Second
	}

	router := gin.New()
	router.Use(gin.Recovery())
	router.Use(buildCORSMiddleware(cfg.AllowOrigins))
	router.Use(middleware.RequestLogger(cfg.Logger))

	healthHandler := func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	}
	readyHandler := func(c *gin.Context) {
		if cfg.DB == nil {
			c.JSON(http.StatusOK, gin.H{"status": "ready"})
			return
		}

		ctx, cancel := context.WithTimeout(c.Request.Context(), cfg.ReadyTimeout)
		defer cancel()

		if err := cfg.DB.Ping(ctx); err != nil {
			c.JSON(http.StatusServiceUnavailable, gin.H{
				"status": "not_ready",
				"error":  "database unavailable",
			})
			return
		}

		c.JSON(http.StatusOK, gin.H{"status": "ready"})
	}

	router.GET("/health", healthHandler)
	router.GET("/health/ready", readyHandler)

	internal := router.Group("/internal")
	internal.Use(middleware.InternalTokenAuth(cfg.InternalToken))
	internal.GET("/metrics", gin.WrapH(promhttp.Handler()))
	internalapi.RegisterLogRoutes(internal, cfg.LogStore)

	auth := middleware.JWTAuth(cfg.JWTPublicKey)
	apiV1 := router.Group("/api/v1")
	v1.RegisterAnnouncementStreamRoutes(apiV1, cfg.Stream, auth)
	v1.RegisterAnnouncementRoutes(apiV1, cfg.Announcements, v1.RouteOptions{
		Auth:           auth,
		WriteRateLimit: cfg.WriteRateLimit,
		WriteWindow:    time.Minute,
	})

	return router
}

func buildCORSMiddleware(allowOrigins []string) gin.HandlerFunc {
	origins := make([]string, 0, len(allowOrigins))
	for _, origin := range allowOrigins {
		trimmed := strings.TrimSpace(origin)
		if trimmed == "" {
			continue
		}
		origins = append(origins, trimmed)
	}
	if len(origins) == 0 {
		origins = []string{defaultAllowOrigin}
	}

	return cors.New(cors.Config{
		AllowOrigins:     origins,
		AllowMethods:     []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowHeaders:     []string{"Content-Type", "Authorization", "X-Request-ID"},
		ExposeHeaders:    []string{"Content-Type", "X-Request-ID"},
		AllowCredentials: true,
		MaxAge:           12 * time.Hour,
	})
}
