package api

import (
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/Skryldev/storefront/apperrors"
	"github.com/Skryldev/storefront/cache"
)

const (
	requestIDHeader = "X-Request-ID"
	requestIDKey    = "request_id"
	userIDKey       = "user_id"
)

var errBearerFormat = errors.New("authorization header must be 'Bearer <token>'")

// requestID propagates the caller's X-Request-ID or generates one.
func requestID() gin.HandlerFunc {
	return func(c *gin.Context) {
		id := c.GetHeader(requestIDHeader)
		if id == "" {
			id = uuid.NewString()
		}
		c.Set(requestIDKey, id)
		c.Header(requestIDHeader, id)
		c.Next()
	}
}

// requestLogger writes one record per request once it has been served.
// Bodies and headers are never logged.
func requestLogger(logger *slog.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()

		status := c.Writer.Status()
		level := slog.LevelInfo
		switch {
		case status >= 500:
			level = slog.LevelError
		case status >= 400:
			level = slog.LevelWarn
		}
		logger.Log(c.Request.Context(), level, "api: request",
			slog.String("method", c.Request.Method),
			slog.String("route", c.FullPath()),
			slog.String("path", c.Request.URL.Path),
			slog.Int("status", status),
			slog.Duration("duration", time.Since(start)),
			slog.String("request_id", c.GetString(requestIDKey)),
			slog.String("client_ip", c.ClientIP()),
		)
	}
}

// recovery turns a handler panic into an Internal response.
func (h *handler) recovery() gin.HandlerFunc {
	return gin.CustomRecoveryWithWriter(nil, func(c *gin.Context, recovered any) {
		h.fail(c, apperrors.Internal(fmt.Errorf("panic: %v", recovered)))
	})
}

// rateLimit answers 429 once a client IP exceeds the limiter's budget.
// Limiter failures let the request through.
func rateLimit(l cache.Limiter, logger *slog.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		ok, err := l.Allow(c.Request.Context(), c.ClientIP())
		if err != nil {
			logger.WarnContext(c.Request.Context(), "api: rate limiter unavailable", slog.Any("error", err))
			c.Next()
			return
		}
		if !ok {
			c.AbortWithStatusJSON(http.StatusTooManyRequests, gin.H{"message": "too many requests"})
			return
		}
		c.Next()
	}
}

// caller is the identity gate. It verifies the bearer token and returns
// the user id it was issued to. On failure the response has been written
// and the handler must return without touching storage.
func (h *handler) caller(c *gin.Context) (int64, bool) {
	header := c.GetHeader("Authorization")
	if header == "" {
		h.fail(c, apperrors.Authentication(nil))
		return 0, false
	}
	token, found := strings.CutPrefix(header, "Bearer ")
	token = strings.TrimSpace(token)
	if !found || token == "" {
		h.fail(c, apperrors.Authentication(errBearerFormat))
		return 0, false
	}

	claims, err := h.Identity.Verify(token)
	if err != nil {
		h.fail(c, err)
		return 0, false
	}
	userID, err := claims.UserID()
	if err != nil {
		h.fail(c, apperrors.Authentication(err))
		return 0, false
	}
	c.Set(userIDKey, userID)
	return userID, true
}

// fail writes err as the response. Anything that is not an
// *apperrors.Error is reported as Internal without details.
func (h *handler) fail(c *gin.Context, err error) {
	var e *apperrors.Error
	if !errors.As(err, &e) {
		e = apperrors.Internal(err)
	}
	status := apperrors.HTTPStatus(e.Kind)

	switch e.Kind {
	case apperrors.KindValidation:
		c.AbortWithStatusJSON(status, gin.H{"message": e.Message, "errors": e.Fields})
	case apperrors.KindInternal:
		h.Logger.ErrorContext(c.Request.Context(), "api: internal error",
			slog.String("route", c.FullPath()),
			slog.String("request_id", c.GetString(requestIDKey)),
			slog.Any("error", err),
		)
		c.AbortWithStatusJSON(status, gin.H{"message": e.Message, "code": string(apperrors.KindInternal)})
	default:
		c.AbortWithStatusJSON(status, gin.H{"message": e.Message})
	}
}
