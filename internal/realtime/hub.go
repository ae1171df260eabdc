package realtime

import (
	"errors"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"
)

var (
	ErrClientGone     = errors.New("client not connected")
	ErrSendBufferFull = errors.New("client send buffer full")
)

type HubOptions struct {
	SendBuffer     int
	WriteTimeout   time.Duration
	PingInterval   time.Duration
	MaxMessageSize int64
}

func (o HubOptions) withDefaults() HubOptions {
	if o.SendBuffer <= 0 {
		o.SendBuffer = 64
	}
	if o.WriteTimeout <= 0 {
		o.WriteTimeout = 10 * time.Second
	}
	if o.PingInterval <= 0 {
		o.PingInterval = 30 * time.Second
	}
	if o.MaxMessageSize <= 0 {
		o.MaxMessageSize = 64 << 10
	}
	return o
}

// Hub owns the websocket connections and implements Transport for the gateway.
type Hub struct {
	mu      sync.RWMutex
	clients map[string]*client
	opts    HubOptions
	log     *zap.Logger
}

func NewHub(opts HubOptions, log *zap.Logger) *Hub {
	if log == nil {
		log = zap.NewNop()
	}
	return &Hub{
		clients: make(map[string]*client),
		opts:    opts.withDefaults(),
		log:     log,
	}
}

type client struct {
	id        string
	conn      *websocket.Conn
	send      chan []byte
	done      chan struct{}
	closeOnce sync.Once
}

func (c *client) close() {
	c.closeOnce.Do(func() { close(c.done) })
}

// Send queues a frame without blocking.
func (h *Hub) Send(connID string, frame []byte) error {
	h.mu.RLock()
	c, ok := h.clients[connID]
	h.mu.RUnlock()
	if !ok {
		return ErrClientGone
	}

	select {
	case <-c.done:
		return ErrClientGone
	default:
	}
	select {
	case c.send <- frame:
		return nil
	default:
		return ErrSendBufferFull
	}
}

func (h *Hub) Len() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}

// Serve runs a websocket session until the peer goes away. It registers the
// connection with the gateway for its whole lifetime.
func (h *Hub) Serve(conn *websocket.Conn, g *Gateway) {
	c := &client{
		id:   uuid.NewString(),
		conn: conn,
		send: make(chan []byte, h.opts.SendBuffer),
		done: make(chan struct{}),
	}

	h.mu.Lock()
	h.clients[c.id] = c
	h.mu.Unlock()
	g.Connect(c.id)

	defer func() {
		c.close()
		g.Disconnect(c.id)
		h.mu.Lock()
		delete(h.clients, c.id)
		h.mu.Unlock()
		_ = conn.Close()
	}()

	go h.writePump(c)
	h.readPump(c, g)
}

func (h *Hub) readPump(c *client, g *Gateway) {
	pongWait := h.opts.PingInterval * 2
	c.conn.SetReadLimit(h.opts.MaxMessageSize)
	_ = c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		return c.conn.SetReadDeadline(time.Now().Add(pongWait))
	})

	for {
		_, raw, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				h.log.Debug("websocket read failed", zap.String("conn_id", c.id), zap.Error(err))
			}
			return
		}
		g.HandleMessage(c.id, raw)
	}
}

func (h *Hub) writePump(c *client) {
	ticker := time.NewTicker(h.opts.PingInterval)
	defer ticker.Stop()

	for {
		select {
		case <-c.done:
			_ = c.conn.WriteControl(websocket.CloseMessage,
				websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
				time.Now().Add(h.opts.WriteTimeout))
			return
		case frame := <-c.send:
			_ = c.conn.SetWriteDeadline(time.Now().Add(h.opts.WriteTimeout))
			if err := c.conn.WriteMessage(websocket.TextMessage, frame); err != nil {
				h.log.Debug("websocket write failed", zap.String("conn_id", c.id), zap.Error(err))
				c.close()
				_ = c.conn.Close()
				return
			}
		case <-ticker.C:
			if err := c.conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(h.opts.WriteTimeout)); err != nil {
				c.close()
				_ = c.conn.Close()
				return
			}
		}
	}
}
