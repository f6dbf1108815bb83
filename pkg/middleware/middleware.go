package middleware

import (
	"context"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/wms-platform/pickpack-service/pkg/logging"
	"github.com/wms-platform/pickpack-service/pkg/metrics"
)

// Config holds the middleware chain configuration
type Config struct {
	ServiceName string
	Logger      *logging.Logger
	Metrics     *metrics.Metrics
}

// Setup installs the standard middleware chain on the router:
// recovery, request id, correlation id, request logging, metrics, input
// sanitization, CORS, content-type guard and the error handler backstop.
func Setup(router *gin.Engine, config Config) {
	InitValidator()

	router.Use(Recovery(config.Logger))
	router.Use(RequestID())
	router.Use(CorrelationID())
	router.Use(Logger(config.Logger))
	if config.Metrics != nil {
		router.Use(MetricsMiddleware(config.Metrics))
	}
	router.Use(InputSanitizer())
	router.Use(CORS())
	router.Use(ContentType())
	router.Use(ErrorHandler(config.Logger))

	router.NoRoute(NoRoute())
	router.NoMethod(NoMethod())
}

// CORS sets permissive CORS headers; the platform gateway enforces origin
// policy in front of the service.
func CORS() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Header("Access-Control-Allow-Origin", "*")
		c.Header("Access-Control-Allow-Methods", "GET, POST, PUT, PATCH, DELETE, OPTIONS")
		c.Header("Access-Control-Allow-Headers", "Content-Type, Authorization, X-Request-ID, X-Correlation-ID")

		if c.Request.Method == http.MethodOptions {
			c.AbortWithStatus(http.StatusNoContent)
			return
		}

		c.Next()
	}
}

// HealthChecker reports whether a dependency is reachable
type HealthChecker interface {
	HealthCheck(ctx context.Context) error
}

// HealthCheck returns a liveness handler
func HealthCheck(serviceName string) gin.HandlerFunc {
	return func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{
			"status":  "healthy",
			"service": serviceName,
			"time":    time.Now().UTC().Format(time.RFC3339),
		})
	}
}

// ReadinessCheck returns a readiness handler that probes the given
// dependencies.
func ReadinessCheck(serviceName string, checkers map[string]HealthChecker) gin.HandlerFunc {
	return func(c *gin.Context) {
		ctx, cancel := context.WithTimeout(c.Request.Context(), 5*time.Second)
		defer cancel()

		status := http.StatusOK
		deps := make(map[string]string, len(checkers))
		for name, checker := range checkers {
			if err := checker.HealthCheck(ctx); err != nil {
				deps[name] = "unavailable: " + err.Error()
				status = http.StatusServiceUnavailable
			} else {
				deps[name] = "ok"
			}
		}

		c.JSON(status, gin.H{
			"service":      serviceName,
			"dependencies": deps,
		})
	}
}

// NoRoute returns the 404 handler
func NoRoute() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.JSON(http.StatusNotFound, APIErrorResponse{
			Code:      "NOT_FOUND",
			Message:   "route not found",
			RequestID: GetRequestID(c),
		})
	}
}

// NoMethod returns the 405 handler
func NoMethod() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.JSON(http.StatusMethodNotAllowed, APIErrorResponse{
			Code:      "METHOD_NOT_ALLOWED",
			Message:   "method not allowed",
			RequestID: GetRequestID(c),
		})
	}
}
