package middleware

import (
	"net/http"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"golang.org/x/time/rate"

	"github.com/kirkhezir/church-app-sub002/internal/api/response"
)

type userLimiters struct {
	mu       sync.Mutex
	limiters map[string]*rate.Limiter
	every    rate.Limit
	burst    int
}

func (l *userLimiters) get(key string) *rate.Limiter {
	l.mu.Lock()
	defer l.mu.Unlock()

	limiter, ok := l.limiters[key]
	if !ok {
		limiter = rate.NewLimiter(l.every, l.burst)
		l.limiters[key] = limiter
	}
	return limiter
}

// RateLimitPerUser allows limit requests per window for each authenticated
// user, falling back to the client IP. Mount it after JWTAuth. A limit <= 0
// disables it.
func RateLimitPerUser(limit int, window time.Duration) gin.HandlerFunc {
	if limit <= 0 {
		return func(c *gin.Context) { c.Next() }
	}
	if window <= 0 {
		window = time.Minute
	}

	limiters := &userLimiters{
		limiters: make(map[string]*rate.Limiter),
		every:    rate.Every(window / time.Duration(limit)),
		burst:    limit,
	}

	return func(c *gin.Context) {
		key := "ip:" + c.ClientIP()
		if claims, ok := GetClaims(c); ok && claims.UserID != "" {
			key = "user:" + claims.UserID
		}

		if !limiters.get(key).Allow() {
			response.Fail(c, http.StatusTooManyRequests, response.ErrRateLimited, "too many requests")
			c.Abort()
			return
		}

		c.Next()
	}
}
