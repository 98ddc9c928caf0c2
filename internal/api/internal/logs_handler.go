package internalapi

import (
	"net/http"
	"strconv"
	"strings"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap/zapcore"

	"github.com/kirkhezir/church-app-sub002/internal/api/response"
	loggerpkg "github.com/kirkhezir/church-app-sub002/pkg/logger"
)

// RegisterLogRoutes exposes the in-memory log ring, mainly so operators can
// read the outcome of urgent announcement fan-outs.
func RegisterLogRoutes(router gin.IRoutes, store *loggerpkg.RecentLogStore) {
	if store == nil {
		return
	}

	router.GET("/logs", func(c *gin.Context) {
		level := zapcore.InfoLevel
		if raw := strings.TrimSpace(c.Query("level")); raw != "" {
			parsed, err := zapcore.ParseLevel(raw)
			if err != nil {
				response.Fail(c, http.StatusBadRequest, response.ErrInvalidRequest, "invalid level")
				return
			}
			level = parsed
		}

		limit := 0
		if raw := strings.TrimSpace(c.Query("limit")); raw != "" {
			parsed, err := strconv.Atoi(raw)
			if err != nil || parsed < 0 {
				response.Fail(c, http.StatusBadRequest, response.ErrInvalidRequest, "invalid limit")
				return
			}
			limit = parsed
		}

		response.Success(c, store.Query(loggerpkg.RecentLogQuery{
			MinLevel:       level,
			AnnouncementID: c.Query("announcement_id"),
			Limit:          limit,
		}))
	})
}
