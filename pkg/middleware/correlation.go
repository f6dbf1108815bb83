package middleware

import (
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/wms-platform/pickpack-service/pkg/logging"
)

// Context keys set by the middleware chain
const (
	ContextKeyRequestID     = "requestId"
	ContextKeyCorrelationID = "correlationId"

	HeaderRequestID     = "X-Request-ID"
	HeaderCorrelationID = "X-Correlation-ID"
)

// RequestID assigns a request id to every request, honoring an inbound
// X-Request-ID header.
func RequestID() gin.HandlerFunc {
	return func(c *gin.Context) {
		requestID := c.GetHeader(HeaderRequestID)
		if requestID == "" {
			requestID = uuid.New().String()
		}

		c.Set(ContextKeyRequestID, requestID)
		c.Header(HeaderRequestID, requestID)
		c.Next()
	}
}

// CorrelationID propagates the caller's correlation id, minting one when the
// request starts a new chain.
func CorrelationID() gin.HandlerFunc {
	return func(c *gin.Context) {
		correlationID := c.GetHeader(HeaderCorrelationID)
		if correlationID == "" {
			correlationID = uuid.New().String()
		}

		c.Set(ContextKeyCorrelationID, correlationID)
		c.Header(HeaderCorrelationID, correlationID)
		c.Next()
	}
}

// GetRequestID returns the request id from the gin context
func GetRequestID(c *gin.Context) string {
	if v, ok := c.Get(ContextKeyRequestID); ok {
		if id, ok := v.(string); ok {
			return id
		}
	}
	return ""
}

// GetCorrelationID returns the correlation id from the gin context
func GetCorrelationID(c *gin.Context) string {
	if v, ok := c.Get(ContextKeyCorrelationID); ok {
		if id, ok := v.(string); ok {
			return id
		}
	}
	return ""
}

// Logger logs every request with its outcome and latency
func Logger(logger *logging.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()

		c.Next()

		path := c.FullPath()
		if path == "" {
			path = c.Request.URL.Path
		}

		logger.LogHTTPRequest(
			c.Request.Method,
			path,
			c.Writer.Status(),
			time.Since(start),
			"requestId", GetRequestID(c),
			"correlationId", GetCorrelationID(c),
			"clientIp", c.ClientIP(),
		)
	}
}

// Recovery recovers from handler panics and responds with a 500
func Recovery(logger *logging.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		defer func() {
			if r := recover(); r != nil {
				logger.Error("panic recovered",
					"panic", r,
					"path", c.Request.URL.Path,
					"requestId", GetRequestID(c),
				)
				c.AbortWithStatusJSON(500, gin.H{
					"code":    "INTERNAL_ERROR",
					"message": "internal server error",
				})
			}
		}()
		c.Next()
	}
}
