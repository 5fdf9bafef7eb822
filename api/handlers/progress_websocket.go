package handlers

import (
	"net/http"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"github.com/yourusername/mediagrab-go/internal/domain"
)

// broadcastWriteTimeout bounds how long one stalled subscriber can hold up
// the job goroutine delivering an event; slower peers are dropped.
const broadcastWriteTimeout = 2 * time.Second

// ProgressHub fans normalized progress events out to websocket subscribers.
// It is the sink handed to running jobs; a subscriber that falls behind or
// disconnects is dropped without affecting the job.
type ProgressHub struct {
	logger   *zap.Logger
	upgrader websocket.Upgrader

	mu      sync.Mutex
	clients map[*websocket.Conn]bool
}

// NewProgressHub creates a progress hub
func NewProgressHub(logger *zap.Logger) *ProgressHub {
	return &ProgressHub{
		logger: logger,
		upgrader: websocket.Upgrader{
			CheckOrigin: func(r *http.Request) bool { return true },
		},
		clients: make(map[*websocket.Conn]bool),
	}
}

// Handle upgrades GET /ws/progress connections and keeps them registered
// until the peer closes.
func (h *ProgressHub) Handle(c *gin.Context) {
	conn, err := h.upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		h.logger.Warn("Websocket upgrade failed", zap.Error(err))
		return
	}

	h.mu.Lock()
	h.clients[conn] = true
	count := len(h.clients)
	h.mu.Unlock()
	h.logger.Debug("Progress subscriber connected", zap.Int("subscribers", count))

	// Reads only serve to detect the peer going away
	go func() {
		defer h.drop(conn)
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()
}

// Broadcast sends one progress event to every subscriber. Safe to call from
// the job goroutine; implements domain.ProgressSink.
func (h *ProgressHub) Broadcast(event domain.ProgressEvent) {
	h.mu.Lock()
	defer h.mu.Unlock()

	for conn := range h.clients {
		conn.SetWriteDeadline(time.Now().Add(broadcastWriteTimeout))
		if err := conn.WriteJSON(event); err != nil {
			conn.Close()
			delete(h.clients, conn)
		}
	}
}

func (h *ProgressHub) drop(conn *websocket.Conn) {
	h.mu.Lock()
	defer h.mu.Unlock()
	conn.Close()
	delete(h.clients, conn)
}

// Close disconnects all subscribers
func (h *ProgressHub) Close() {
	h.mu.Lock()
	defer h.mu.Unlock()
	for conn := range h.clients {
		conn.Close()
		delete(h.clients, conn)
	}
}
