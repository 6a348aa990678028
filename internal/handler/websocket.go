package handler

import (
	"context"
	"errors"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/mux"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"github.com/shoplist-api/shoplist/internal/model"
	"github.com/shoplist-api/shoplist/internal/store"
)

// WebSocket configuration constants.
const (
	writeWait      = 10 * time.Second
	pongWait       = 60 * time.Second
	pingPeriod     = (pongWait * 9) / 10
	maxMessageSize = 512
	sendBufferSize = 16
)

// client is one subscribed WebSocket connection. Outbound events go
// through the buffered send channel; a client that cannot keep up has
// events dropped rather than blocking the broadcaster.
type client struct {
	conn   *websocket.Conn
	send   chan model.EventMessage
	cancel context.CancelFunc
}

// Hub manages per-list WebSocket channels. Clients subscribe to a
// single list and receive every event broadcast on it.
type Hub struct {
	store    store.Store
	upgrader websocket.Upgrader
	logger   *zap.Logger

	mu    sync.RWMutex
	lists map[string]map[*client]struct{}
}

// NewHub creates a new Hub instance.
func NewHub(st store.Store, logger *zap.Logger) *Hub {
	return &Hub{
		store: st,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin: func(_ *http.Request) bool {
				return true // Allow all origins for development
			},
		},
		logger: logger,
		lists:  make(map[string]map[*client]struct{}),
	}
}

// RegisterRoutes registers the WebSocket routes with the router.
func (h *Hub) RegisterRoutes(router *mux.Router) {
	router.HandleFunc("/ws/lists/{listID}", h.HandleList).Methods(http.MethodGet)
}

// HandleList subscribes the connection to the channel of one list.
// Unknown lists answer 204 before the upgrade so their existence is
// not leaked.
//
//nolint:contextcheck // intentional: WebSocket connections outlive the HTTP request context
func (h *Hub) HandleList(w http.ResponseWriter, r *http.Request) {
	listID := mux.Vars(r)["listID"]

	if _, err := h.store.GetList(r.Context(), listID); err != nil {
		if errors.Is(err, store.ErrNotFound) || errors.Is(err, store.ErrInvalidID) {
			w.WriteHeader(http.StatusNoContent)
			return
		}
		h.logger.Error("failed to load list", zap.String("list_id", listID), zap.Error(err))
		http.Error(w, "Internal Server Error", http.StatusInternalServerError)
		return
	}

	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.logger.Error("failed to upgrade connection", zap.Error(err))
		return
	}

	// Use background context instead of request context because the HTTP request
	// context gets canceled when the handler returns, but WebSocket connections
	// need to persist beyond the initial HTTP upgrade.
	ctx, cancel := context.WithCancel(context.Background())

	c := &client{
		conn:   conn,
		send:   make(chan model.EventMessage, sendBufferSize),
		cancel: cancel,
	}

	h.mu.Lock()
	if h.lists[listID] == nil {
		h.lists[listID] = make(map[*client]struct{})
	}
	h.lists[listID][c] = struct{}{}
	h.mu.Unlock()

	h.logger.Info("websocket client connected",
		zap.String("list_id", listID),
		zap.String("remote_addr", conn.RemoteAddr().String()),
	)

	go h.writePump(ctx, c)
	go h.readPump(ctx, listID, c)
}

// Broadcast publishes an event to every subscriber of the list.
func (h *Hub) Broadcast(listID, eventType string, data any) {
	msg := model.EventMessage{
		EventType: eventType,
		Data:      data,
		Timestamp: time.Now().UTC(),
	}

	h.mu.RLock()
	defer h.mu.RUnlock()

	for c := range h.lists[listID] {
		select {
		case c.send <- msg:
		default:
			h.logger.Warn("dropping event for slow websocket client",
				zap.String("list_id", listID),
				zap.String("event_type", eventType),
			)
		}
	}
}

// readPump handles incoming messages from the WebSocket connection.
// Clients only listen on list channels; inbound payloads are read to
// keep pong handling alive and otherwise discarded.
func (h *Hub) readPump(ctx context.Context, listID string, c *client) {
	defer func() {
		c.cancel()
		h.removeClient(listID, c)
		if err := c.conn.Close(); err != nil {
			h.logger.Debug("error closing connection", zap.Error(err))
		}
	}()

	c.conn.SetReadLimit(maxMessageSize)
	if err := c.conn.SetReadDeadline(time.Now().Add(pongWait)); err != nil {
		h.logger.Error("failed to set read deadline", zap.Error(err))
		return
	}

	c.conn.SetPongHandler(func(string) error {
		return c.conn.SetReadDeadline(time.Now().Add(pongWait))
	})

	for {
		select {
		case <-ctx.Done():
			return
		default:
			if _, _, err := c.conn.ReadMessage(); err != nil {
				if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
					h.logger.Warn("websocket read error", zap.Error(err))
				}
				return
			}
		}
	}
}

// writePump forwards broadcast events to the connection and keeps the
// connection alive with periodic pings.
func (h *Hub) writePump(ctx context.Context, c *client) {
	pingTicker := time.NewTicker(pingPeriod)
	defer pingTicker.Stop()

	for {
		select {
		case <-ctx.Done():
			h.sendCloseMessage(c.conn)
			return
		case msg := <-c.send:
			if err := h.sendEvent(c.conn, msg); err != nil {
				h.logger.Debug("failed to send event", zap.Error(err))
				return
			}
		case <-pingTicker.C:
			if err := h.sendPing(c.conn); err != nil {
				h.logger.Debug("failed to send ping", zap.Error(err))
				return
			}
		}
	}
}

// sendEvent writes one event message to the connection.
func (h *Hub) sendEvent(conn *websocket.Conn, msg model.EventMessage) error {
	if err := conn.SetWriteDeadline(time.Now().Add(writeWait)); err != nil {
		return err
	}
	return conn.WriteJSON(msg)
}

// sendPing sends a ping message to the connection.
func (h *Hub) sendPing(conn *websocket.Conn) error {
	if err := conn.SetWriteDeadline(time.Now().Add(writeWait)); err != nil {
		return err
	}
	return conn.WriteMessage(websocket.PingMessage, nil)
}

// sendCloseMessage sends a close message to the connection.
func (h *Hub) sendCloseMessage(conn *websocket.Conn) {
	if err := conn.SetWriteDeadline(time.Now().Add(writeWait)); err != nil {
		h.logger.Debug("failed to set write deadline for close", zap.Error(err))
		return
	}

	closeMsg := websocket.FormatCloseMessage(websocket.CloseNormalClosure, "server shutting down")
	if err := conn.WriteMessage(websocket.CloseMessage, closeMsg); err != nil {
		h.logger.Debug("failed to send close message", zap.Error(err))
	}
}

// removeClient removes a client from its list channel.
func (h *Hub) removeClient(listID string, c *client) {
	h.mu.Lock()
	defer h.mu.Unlock()

	if subscribers, exists := h.lists[listID]; exists {
		if _, subscribed := subscribers[c]; subscribed {
			delete(subscribers, c)
			if len(subscribers) == 0 {
				delete(h.lists, listID)
			}
			h.logger.Info("websocket client disconnected",
				zap.String("list_id", listID),
				zap.String("remote_addr", c.conn.RemoteAddr().String()),
			)
		}
	}
}

// CloseAllConnections closes every active WebSocket connection across
// all list channels.
func (h *Hub) CloseAllConnections() {
	h.mu.Lock()
	clients := make([]*client, 0)
	for _, subscribers := range h.lists {
		for c := range subscribers {
			clients = append(clients, c)
		}
	}
	h.mu.Unlock()

	// Cancel all contexts first - this triggers writePump to send close messages
	for _, c := range clients {
		c.cancel()
	}

	// Give writePump goroutines time to send close messages
	time.Sleep(100 * time.Millisecond)

	h.mu.Lock()
	for listID, subscribers := range h.lists {
		for c := range subscribers {
			if err := c.conn.Close(); err != nil {
				h.logger.Debug("error closing connection", zap.Error(err))
			}
		}
		delete(h.lists, listID)
	}
	h.mu.Unlock()

	h.logger.Info("all websocket connections closed")
}
