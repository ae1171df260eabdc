package middleware

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"

	"github.com/taskrelay/server/internal/modules/serializer"
)

var errNoUpgrade = errors.New("websocket upgrade required")

// RequireUpgrade rejects plain HTTP requests before any auth work is done.
func RequireUpgrade() gin.HandlerFunc {
	return func(c *gin.Context) {
		if !websocket.IsWebSocketUpgrade(c.Request) {
			c.AbortWithStatusJSON(http.StatusBadRequest, serializer.ParamErr("", errNoUpgrade))
			return
		}
		c.Next()
	}
}
