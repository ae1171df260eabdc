package middleware

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/taskrelay/server/internal/auth"
	"github.com/taskrelay/server/internal/modules/serializer"
)

// Auth returns a middleware that authenticates requests using session bearer tokens.
// With authentication disabled every request passes through without an identity.
// It also sets the user_id attribute on the current span for telemetry filtering.
func Auth(svc auth.Service) gin.HandlerFunc {
	return func(c *gin.Context) {
		if !svc.IsAuthEnabled() {
			c.Next()
			return
		}

		raw, err := svc.ExtractTokenFromHeader(c.GetHeader("Authorization"))
		if err != nil {
			c.AbortWithStatusJSON(http.StatusUnauthorized, serializer.AuthErr(err.Error()))
			return
		}

		ac, err := svc.ValidateToken(c.Request.Context(), raw)
		if err != nil {
			switch {
			case errors.Is(err, auth.ErrTokenExpired),
				errors.Is(err, auth.ErrInvalidToken),
				errors.Is(err, auth.ErrSessionNotFound),
				errors.Is(err, auth.ErrUserNotFound):
				c.AbortWithStatusJSON(http.StatusUnauthorized, serializer.AuthErr(err.Error()))
			default:
				c.AbortWithStatusJSON(http.StatusInternalServerError, serializer.DBErr("", err))
			}
			return
		}

		span := trace.SpanFromContext(c.Request.Context())
		if span.SpanContext().IsValid() {
			span.SetAttributes(attribute.String("user_id", ac.User.ID.String()))
		}

		auth.SetContext(c, ac)
		c.Next()
	}
}
