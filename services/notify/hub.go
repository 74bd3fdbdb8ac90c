package notify

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"nhooyr.io/websocket"

	"Gamarr/models"
	"Gamarr/shared/logger"
)

const (
	clientBufferSize = 16
	writeTimeout     = 10 * time.Second
	pingInterval     = 30 * time.Second
)

type client struct {
	userID int64
	send   chan []byte
}

// Hub tracks websocket connections per user and pushes notifications to them.
// A slow client loses messages instead of blocking the sender.
type Hub struct {
	mu      sync.RWMutex
	clients map[int64]map[*client]struct{}
	logger  *slog.Logger
}

func NewHub(log *slog.Logger) *Hub {
	return &Hub{
		clients: make(map[int64]map[*client]struct{}),
		logger:  logger.Component(log, "notify-hub"),
	}
}

func (h *Hub) register(userID int64) *client {
	c := &client{userID: userID, send: make(chan []byte, clientBufferSize)}
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.clients[userID] == nil {
		h.clients[userID] = make(map[*client]struct{})
	}
	h.clients[userID][c] = struct{}{}
	return c
}

func (h *Hub) unregister(c *client) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if set, ok := h.clients[c.userID]; ok {
		delete(set, c)
		if len(set) == 0 {
			delete(h.clients, c.userID)
		}
	}
}

// Connected returns the number of open connections for a user.
func (h *Hub) Connected(userID int64) int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients[userID])
}

// Publish pushes n to every connection of n.UserID. It returns how many
// connections accepted the message.
func (h *Hub) Publish(n models.Notification) int {
	payload, err := json.Marshal(n)
	if err != nil {
		h.logger.Error("failed to encode notification", "id", n.ID, "error", err)
		return 0
	}

	h.mu.RLock()
	defer h.mu.RUnlock()
	delivered := 0
	for c := range h.clients[n.UserID] {
		select {
		case c.send <- payload:
			delivered++
		default:
			h.logger.Warn("dropping notification for slow client", "user_id", n.UserID, "id", n.ID)
		}
	}
	return delivered
}

// ServeWS upgrades the request and streams notifications for userID until the
// peer disconnects or the request context ends.
func (h *Hub) ServeWS(w http.ResponseWriter, r *http.Request, userID int64) {
	conn, err := websocket.Accept(w, r, nil)
	if err != nil {
		h.logger.Warn("websocket accept failed", "user_id", userID, "error", err)
		return
	}
	defer conn.Close(websocket.StatusInternalError, "unexpected close")

	c := h.register(userID)
	defer h.unregister(c)
	h.logger.Debug("websocket connected", "user_id", userID)

	// Clients never send anything; CloseRead cancels ctx when they go away.
	ctx := conn.CloseRead(r.Context())
	ticker := time.NewTicker(pingInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			conn.Close(websocket.StatusNormalClosure, "")
			return
		case msg := <-c.send:
			if err := write(ctx, conn, msg); err != nil {
				h.logger.Debug("websocket write failed", "user_id", userID, "error", err)
				return
			}
		case <-ticker.C:
			pingCtx, cancel := context.WithTimeout(ctx, writeTimeout)
			err := conn.Ping(pingCtx)
			cancel()
			if err != nil {
				return
			}
		}
	}
}

func write(ctx context.Context, conn *websocket.Conn, msg []byte) error {
	ctx, cancel := context.WithTimeout(ctx, writeTimeout)
	defer cancel()
	return conn.Write(ctx, websocket.MessageText, msg)
}
