package handlers

import (
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/yourusername/mediagrab-go/internal/domain"
)

func (h *ProgressHub) subscriberCount() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.clients)
}

func setupHub(t *testing.T) (*ProgressHub, string) {
	t.Helper()
	gin.SetMode(gin.ReleaseMode)

	hub := NewProgressHub(zap.NewNop())
	t.Cleanup(hub.Close)

	router := gin.New()
	router.GET("/ws/progress", hub.Handle)

	server := httptest.NewServer(router)
	t.Cleanup(server.Close)

	return hub, strings.Replace(server.URL, "http", "ws", 1) + "/ws/progress"
}

func TestProgressHub_BroadcastReachesSubscriber(t *testing.T) {
	hub, wsURL := setupHub(t)

	conn, _, err := websocket.DefaultDialer.Dial(wsURL, nil)
	require.NoError(t, err)
	defer conn.Close()

	require.Eventually(t, func() bool {
		return hub.subscriberCount() == 1
	}, time.Second, 10*time.Millisecond)

	hub.Broadcast(domain.ProgressEvent{Message: "Downloading: 42.0%", Fraction: 0.42})

	conn.SetReadDeadline(time.Now().Add(time.Second))
	var event domain.ProgressEvent
	require.NoError(t, conn.ReadJSON(&event))
	assert.Equal(t, "Downloading: 42.0%", event.Message)
	assert.InDelta(t, 0.42, event.Fraction, 0.001)
}

func TestProgressHub_DropsGoneSubscriber(t *testing.T) {
	hub, wsURL := setupHub(t)

	conn, _, err := websocket.DefaultDialer.Dial(wsURL, nil)
	require.NoError(t, err)

	require.Eventually(t, func() bool {
		return hub.subscriberCount() == 1
	}, time.Second, 10*time.Millisecond)

	conn.Close()

	// The read pump notices the close; broadcasting meanwhile must neither
	// block the caller nor keep the dead connection registered
	hub.Broadcast(domain.ProgressEvent{Message: "still going", Fraction: 0.5})

	require.Eventually(t, func() bool {
		hub.Broadcast(domain.ProgressEvent{Message: "still going", Fraction: 0.6})
		return hub.subscriberCount() == 0
	}, time.Second, 10*time.Millisecond)
}

func TestProgressHub_BroadcastWithNoSubscribers(t *testing.T) {
	hub := NewProgressHub(zap.NewNop())
	hub.Broadcast(domain.ProgressEvent{Message: "nobody listening", Fraction: 0.1})
	assert.Equal(t, 0, hub.subscriberCount())
}
