package middleware

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"edusocial/internal/transport/httpdto"
	social_errors "edusocial/pkg/errors"
	"edusocial/pkg/logger"
)

// ErrorHandler renders the last error attached with c.Error, unless the
// handler already wrote a response.
func ErrorHandler(l *logger.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Next()

		if len(c.Errors) == 0 {
			return
		}

		err := c.Errors.Last().Err
		status, code := Classify(err)
		if l != nil {
			l.WithContext(c.Request.Context()).Warn("request error",
				zap.String("path", c.Request.URL.Path),
				zap.String("code", code),
				zap.Error(err),
			)
		}
		if c.Writer.Written() {
			return
		}
		requestID, _ := c.Request.Context().Value(logger.RequestIdKey).(string)
		c.JSON(status, httpdto.NewErrorResponse(err.Error(), code).WithRequestID(requestID))
	}
}

// Classify maps an error to an HTTP status and a response code.
func Classify(err error) (int, string) {
	switch {
	case errors.Is(err, social_errors.ErrInvalidInput):
		return http.StatusBadRequest, httpdto.CodeInvalidRequest
	case errors.Is(err, social_errors.ErrNoActiveConversation):
		return http.StatusConflict, httpdto.CodeNoActiveConversation
	case errors.Is(err, social_errors.ErrUnauthorized):
		return http.StatusUnauthorized, httpdto.CodeUnauthorized
	case errors.Is(err, social_errors.ErrNotFound):
		return http.StatusNotFound, httpdto.CodeNotFound
	case errors.Is(err, social_errors.ErrServiceUnavailable), errors.Is(err, social_errors.ErrNotConnected):
		return http.StatusServiceUnavailable, httpdto.CodeUnavailable
	default:
		return http.StatusBadGateway, httpdto.CodeRequestFailed
	}
}
