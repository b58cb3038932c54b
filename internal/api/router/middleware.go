package router

import (
	"crypto/sha256"
	"crypto/subtle"
	"encoding/hex"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/cuongbtq/agent-jobs/internal/api/dto"
	"github.com/cuongbtq/agent-jobs/internal/api/handler"
	"github.com/gin-gonic/gin"
	"github.com/redis/go-redis/v9"
)

const (
	// APIKeyHeader is the header clients send their key in.
	APIKeyHeader = "X-API-Key"

	apiKeyContextKey = "api_key"
)

// LoggerMiddleware logs HTTP requests with slog
func LoggerMiddleware(logger *slog.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		path := c.Request.URL.Path

		// Process request
		c.Next()

		latency := time.Since(start)

		// Query strings are left out since presigned urls carry signatures
		logger.Info("HTTP Request",
			slog.Int("status", c.Writer.Status()),
			slog.String("method", c.Request.Method),
			slog.String("path", path),
			slog.String("ip", c.ClientIP()),
			slog.String("user_agent", c.Request.UserAgent()),
			slog.Duration("latency", latency),
			slog.Int("body_size", c.Writer.Size()),
		)

		if len(c.Errors) > 0 {
			for _, e := range c.Errors {
				logger.Error("Request error",
					slog.String("error", e.Error()),
					slog.Uint64("type", uint64(e.Type)),
				)
			}
		}
	}
}

// CORSMiddleware handles Cross-Origin Resource Sharing
func CORSMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Writer.Header().Set("Access-Control-Allow-Origin", "*")
		c.Writer.Header().Set("Access-Control-Allow-Credentials", "true")
		c.Writer.Header().Set("Access-Control-Allow-Headers", "Content-Type, Content-Length, Accept-Encoding, X-CSRF-Token, Authorization, accept, origin, Cache-Control, X-Requested-With, X-API-Key")
		c.Writer.Header().Set("Access-Control-Allow-Methods", "POST, OPTIONS, GET")

		if c.Request.Method == "OPTIONS" {
			c.AbortWithStatus(204)
			return
		}

		c.Next()
	}
}

// APIKeyAuth accepts a request when its X-API-Key header, or a Bearer
// token, matches one of keys.
func APIKeyAuth(logger *slog.Logger, keys []string) gin.HandlerFunc {
	return func(c *gin.Context) {
		key := c.GetHeader(APIKeyHeader)
		if key == "" {
			if auth := c.GetHeader("Authorization"); strings.HasPrefix(auth, "Bearer ") {
				key = strings.TrimSpace(strings.TrimPrefix(auth, "Bearer "))
			}
		}

		if key == "" || !matchKey(keys, key) {
			logger.Info("Rejected unauthenticated request",
				slog.String("path", c.Request.URL.Path),
				slog.String("ip", c.ClientIP()),
			)
			c.AbortWithStatusJSON(http.StatusUnauthorized, dto.ErrorResponse{
				Error:   handler.CodeUnauthorized,
				Message: "missing or invalid API key",
			})
			return
		}

		c.Set(apiKeyContextKey, key)
		c.Next()
	}
}

func matchKey(keys []string, candidate string) bool {
	matched := 0
	for _, k := range keys {
		matched |= subtle.ConstantTimeCompare([]byte(k), []byte(candidate))
	}
	return matched == 1
}

// RateLimitMiddleware enforces a fixed-window request limit per API key
// using Redis. It is a no-op without a client or a positive limit, and it
// lets requests through when Redis is unreachable.
func RateLimitMiddleware(logger *slog.Logger, rdb *redis.Client, limit int, window time.Duration) gin.HandlerFunc {
	return func(c *gin.Context) {
		if rdb == nil || limit <= 0 || window <= 0 {
			c.Next()
			return
		}

		key := rateLimitKey(c.GetString(apiKeyContextKey), window, time.Now())
		ctx := c.Request.Context()

		count, err := rdb.Incr(ctx, key).Result()
		if err != nil {
			logger.Warn("Rate limit check failed, allowing request",
				slog.String("path", c.Request.URL.Path),
				slog.Any("error", err),
			)
			c.Next()
			return
		}
		if count == 1 {
			rdb.Expire(ctx, key, window)
		}

		if count > int64(limit) {
			c.Header("Retry-After", fmt.Sprintf("%d", int(window.Seconds())))
			c.AbortWithStatusJSON(http.StatusTooManyRequests, dto.ErrorResponse{
				Error:   handler.CodeRateLimited,
				Message: "rate limit exceeded, try again later",
			})
			return
		}

		c.Next()
	}
}

// rateLimitKey hashes the API key so raw keys never land in Redis.
func rateLimitKey(apiKey string, window time.Duration, now time.Time) string {
	sum := sha256.Sum256([]byte(apiKey))
	bucket := now.UTC().UnixNano() / int64(window)
	return fmt.Sprintf("agent-jobs:rl:%s:%d", hex.EncodeToString(sum[:8]), bucket)
}
