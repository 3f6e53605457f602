package middleware

import (
	"context"

	"github.com/gin-gonic/gin"

	"edusocial/internal/identity"
	"edusocial/pkg/logger"
)

// IdentityMiddleware tags the request context with the acting user so log
// lines carry user_id. Requests without an identity pass through untagged.
func IdentityMiddleware(resolver identity.Resolver) gin.HandlerFunc {
	return func(c *gin.Context) {
		if resolver != nil {
			if userID, ok := resolver.UserID(); ok {
				ctx := context.WithValue(c.Request.Context(), logger.UserIdKey, userID)
				c.Request = c.Request.WithContext(ctx)
			}
		}
		c.Next()
	}
}
