package handler

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"github.com/taskrelay/server/internal/auth"
	"github.com/taskrelay/server/internal/modules/serializer"
	"github.com/taskrelay/server/internal/modules/service"
	"github.com/taskrelay/server/internal/realtime"
)

// ExecutorStats reports the executor queue.
type ExecutorStats interface {
	Stats() service.ExecutorStats
}

type WSHandler struct {
	hub      *realtime.Hub
	gw       *realtime.Gateway
	auth     auth.Service
	exec     ExecutorStats
	upgrader websocket.Upgrader
	log      *zap.Logger
}

func NewWSHandler(hub *realtime.Hub, gw *realtime.Gateway, authSvc auth.Service, exec ExecutorStats, allowedOrigins []string, log *zap.Logger) *WSHandler {
	return &WSHandler{
		hub:  hub,
		gw:   gw,
		auth: authSvc,
		exec: exec,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  4096,
			WriteBufferSize: 4096,
			CheckOrigin:     originChecker(allowedOrigins),
		},
		log: log,
	}
}

func originChecker(allowed []string) func(r *http.Request) bool {
	set := make(map[string]bool, len(allowed))
	for _, o := range allowed {
		set[strings.TrimRight(strings.TrimSpace(o), "/")] = true
	}
	return func(r *http.Request) bool {
		origin := r.Header.Get("Origin")
		if origin == "" || set["*"] {
			return true
		}
		return set[strings.TrimRight(origin, "/")]
	}
}

// Connect godoc
//
//	@Summary		Realtime events
//	@Description	Upgrade to a websocket carrying task events. Send join_task / leave_task with a task id to follow a task. The token may be passed as the token query parameter when headers cannot be set.
//	@Tags			realtime
//	@Param			token	query	string	false	"Bearer token"
//	@Success		101
//	@Failure		401	{object}	serializer.Response
//	@Router			/ws [get]
func (h *WSHandler) Connect(c *gin.Context) {
	if h.auth != nil && h.auth.IsAuthEnabled() {
		token, err := wsToken(h.auth, c)
		if err != nil {
			c.JSON(http.StatusUnauthorized, serializer.AuthErr(err.Error()))
			return
		}
		if _, err := h.auth.ValidateToken(c.Request.Context(), token); err != nil {
			c.JSON(http.StatusUnauthorized, serializer.AuthErr("invalid token"))
			return
		}
	}

	conn, err := h.upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		// the upgrader already replied
		h.log.Sugar().Debugw("websocket upgrade", "remote", c.ClientIP(), "err", err)
		return
	}
	h.hub.Serve(conn, h.gw)
}

func wsToken(svc auth.Service, c *gin.Context) (string, error) {
	if header := c.GetHeader("Authorization"); header != "" {
		return svc.ExtractTokenFromHeader(header)
	}
	if token := c.Query("token"); token != "" {
		return token, nil
	}
	return "", auth.ErrMissingAuthHeader
}

type WSStats struct {
	Connections int                    `json:"connections"`
	Registry    realtime.Stats         `json:"registry"`
	Executor    *service.ExecutorStats `json:"executor,omitempty"`
}

// Stats godoc
//
//	@Summary	Realtime statistics
//	@Tags		realtime
//	@Produce	json
//	@Security	BearerAuth
//	@Success	200	{object}	serializer.Response{data=handler.WSStats}
//	@Router		/ws/stats [get]
func (h *WSHandler) Stats(c *gin.Context) {
	out := WSStats{
		Connections: h.hub.Len(),
		Registry:    h.gw.Stats(),
	}
	if h.exec != nil {
		s := h.exec.Stats()
		out.Executor = &s
	}
	c.JSON(http.StatusOK, serializer.Response{Data: out})
}
