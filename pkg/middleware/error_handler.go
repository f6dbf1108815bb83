package middleware

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/wms-platform/pickpack-service/pkg/errors"
	"github.com/wms-platform/pickpack-service/pkg/logging"
)

// APIErrorResponse is the error body returned to clients
type APIErrorResponse struct {
	Code      string            `json:"code"`
	Message   string            `json:"message"`
	Fields    map[string]string `json:"fields,omitempty"`
	RequestID string            `json:"requestId,omitempty"`
}

// AbortWithAppError writes the AppError response and aborts the chain
func AbortWithAppError(c *gin.Context, appErr *errors.AppError) {
	c.AbortWithStatusJSON(appErr.HTTPStatus, APIErrorResponse{
		Code:      appErr.Code,
		Message:   appErr.Message,
		Fields:    appErr.Fields,
		RequestID: GetRequestID(c),
	})
}

// ErrorHandler converts errors attached to the gin context into responses.
// Handlers that call ErrorResponder directly bypass this; it is the backstop
// for c.Error usage.
func ErrorHandler(logger *logging.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Next()

		if len(c.Errors) == 0 {
			return
		}

		err := c.Errors.Last().Err
		appErr, ok := errors.IsAppError(err)
		if !ok {
			appErr = errors.MapDomainError(err)
		}

		if appErr.HTTPStatus >= 500 {
			logger.WithError(err).Error("request failed",
				"requestId", GetRequestID(c),
				"path", c.Request.URL.Path,
			)
		}

		if !c.Writer.Written() {
			AbortWithAppError(c, appErr)
		}
	}
}

// ErrorResponder maps application errors to HTTP responses inside handlers
type ErrorResponder struct {
	logger *logging.Logger
}

// NewErrorResponder creates an ErrorResponder
func NewErrorResponder(logger *logging.Logger) *ErrorResponder {
	return &ErrorResponder{logger: logger}
}

// Respond writes the appropriate error response for err
func (r *ErrorResponder) Respond(c *gin.Context, err error) {
	appErr, ok := errors.IsAppError(err)
	if !ok {
		appErr = errors.MapDomainError(err)
	}

	if appErr.HTTPStatus >= 500 {
		r.logger.WithError(err).Error("request failed",
			"requestId", GetRequestID(c),
			"path", c.Request.URL.Path,
		)
	}

	AbortWithAppError(c, appErr)
}

// RespondOK writes a 200 response with the given body
func (r *ErrorResponder) RespondOK(c *gin.Context, body interface{}) {
	c.JSON(http.StatusOK, body)
}

// RespondCreated writes a 201 response with the given body
func (r *ErrorResponder) RespondCreated(c *gin.Context, body interface{}) {
	c.JSON(http.StatusCreated, body)
}
