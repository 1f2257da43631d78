package handlers

import (
	"context"
	"log/slog"
	"net/http"
	"runtime/debug"
	"strings"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"program-events/auth"
	"program-events/ctxlog"
	"program-events/models"
)

const (
	callerKey       = "caller"
	requestIDHeader = "X-Request-ID"
)

// LoggingMiddleware tags the request with an id, carries a request-scoped
// logger in its context and logs the request once it completes.
func LoggingMiddleware(base *slog.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()

		requestID := c.GetHeader(requestIDHeader)
		if requestID == "" {
			requestID = uuid.NewString()
		}
		c.Header(requestIDHeader, requestID)

		logger := base.With("request_id", requestID)
		c.Request = c.Request.WithContext(ctxlog.WithLogger(c.Request.Context(), logger))

		c.Next()

		logger.Info("http request",
			"method", c.Request.Method,
			"path", c.Request.URL.Path,
			"status", c.Writer.Status(),
			"duration", time.Since(start),
		)
	}
}

// RecoveryMiddleware turns panics into a 500 response.
func RecoveryMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		defer func() {
			if err := recover(); err != nil {
				ctxlog.FromContext(c.Request.Context()).Error("panic recovered",
					"error", err,
					"trace", string(debug.Stack()),
				)
				c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{"error": "Internal Server Error"})
			}
		}()
		c.Next()
	}
}

// RateLimitMiddleware allows limit requests per client IP in each fixed window.
// State is per process.
func RateLimitMiddleware(limit int, window time.Duration) gin.HandlerFunc {
	var (
		mu        sync.Mutex
		visitors  = make(map[string]int)
		lastReset = time.Now()
	)

	return func(c *gin.Context) {
		mu.Lock()
		if time.Since(lastReset) > window {
			visitors = make(map[string]int)
			lastReset = time.Now()
		}

		ip := c.ClientIP()
		if visitors[ip] >= limit {
			mu.Unlock()
			c.AbortWithStatusJSON(http.StatusTooManyRequests, gin.H{"error": "Too Many Requests"})
			return
		}
		visitors[ip]++
		mu.Unlock()

		c.Next()
	}
}

// TimeoutMiddleware bounds the request context, and with it every store call.
func TimeoutMiddleware(d time.Duration) gin.HandlerFunc {
	return func(c *gin.Context) {
		ctx, cancel := context.WithTimeout(c.Request.Context(), d)
		defer cancel()
		c.Request = c.Request.WithContext(ctx)
		c.Next()
	}
}

// AuthMiddleware resolves the bearer token into a caller.
func AuthMiddleware(signer *auth.Signer) gin.HandlerFunc {
	return func(c *gin.Context) {
		h := c.GetHeader("Authorization")
		scheme, tok, ok := strings.Cut(h, " ")
		if h == "" {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "Unauthorized: missing Authorization header"})
			return
		}
		if !ok || !strings.EqualFold(scheme, "bearer") || tok == "" {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "Unauthorized: invalid Authorization format"})
			return
		}

		caller, err := signer.Authenticate(strings.TrimSpace(tok))
		if err != nil {
			ctxlog.FromContext(c.Request.Context()).Debug("token rejected", "error", err)
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "Unauthorized: invalid token"})
			return
		}

		c.Set(callerKey, caller)
		logger := ctxlog.FromContext(c.Request.Context()).With("caller", caller.Email, "role", string(caller.Role))
		c.Request = c.Request.WithContext(ctxlog.WithLogger(c.Request.Context(), logger))
		c.Next()
	}
}

// RequireManager rejects non-manager callers before the handler runs.
func RequireManager() gin.HandlerFunc {
	return func(c *gin.Context) {
		if !CallerFrom(c).IsManager() {
			c.AbortWithStatusJSON(http.StatusForbidden, gin.H{"error": "Forbidden: Insufficient privileges"})
			return
		}
		c.Next()
	}
}

// CallerFrom returns the caller set by AuthMiddleware, or the zero caller.
func CallerFrom(c *gin.Context) models.Caller {
	v, _ := c.Get(callerKey)
	caller, _ := v.(models.Caller)
	return caller
}
