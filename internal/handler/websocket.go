package handler

import (
	"context"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/mux"
	"github.com/gorilla/websocket"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"go.uber.org/zap"

	"github.com/vyrodovalexey/todo-sync/internal/middleware"
	"github.com/vyrodovalexey/todo-sync/internal/model"
	"github.com/vyrodovalexey/todo-sync/internal/store"
)

// WebSocket configuration constants.
const (
	writeWait      = 10 * time.Second
	pongWait       = 60 * time.Second
	pingPeriod     = (pongWait * 9) / 10
	maxMessageSize = 512
)

var feedConnections = promauto.NewGauge(
	prometheus.GaugeOpts{
		Name: "item_feed_connections",
		Help: "Number of open item feed WebSocket connections",
	},
)

// Subscriber is the part of store.Feed the WebSocket handler needs.
type Subscriber interface {
	Subscribe(ctx context.Context, fn store.SnapshotFunc) (func(), error)
}

// WebSocketHandler streams item collection snapshots to WebSocket clients.
type WebSocketHandler struct {
	upgrader websocket.Upgrader
	feed     Subscriber
	logger   *zap.Logger
	mu       sync.RWMutex
	clients  map[*websocket.Conn]context.CancelFunc
}

// NewWebSocketHandler creates a new WebSocketHandler instance.
func NewWebSocketHandler(feed Subscriber, logger *zap.Logger) *WebSocketHandler {
	return &WebSocketHandler{
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 4096,
			CheckOrigin: func(_ *http.Request) bool {
				return true
			},
		},
		feed:    feed,
		logger:  logger,
		clients: make(map[*websocket.Conn]context.CancelFunc),
	}
}

// RegisterRoutes registers the WebSocket routes with the router.
func (h *WebSocketHandler) RegisterRoutes(router *mux.Router) {
	router.HandleFunc("/ws/items", h.HandleWebSocket).Methods(http.MethodGet)
}

// snapshotSlot holds the newest undelivered collection. A slow connection
// skips intermediate snapshots instead of queueing them.
type snapshotSlot struct {
	mu     sync.Mutex
	items  []model.Item
	ready  chan struct{}
	filled bool
}

func newSnapshotSlot() *snapshotSlot {
	return &snapshotSlot{ready: make(chan struct{}, 1)}
}

func (s *snapshotSlot) put(items []model.Item) {
	s.mu.Lock()
	s.items = items
	s.filled = true
	s.mu.Unlock()

	select {
	case s.ready <- struct{}{}:
	default:
	}
}

func (s *snapshotSlot) take() ([]model.Item, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.filled {
		return nil, false
	}
	items := s.items
	s.items = nil
	s.filled = false
	return items, true
}

// HandleWebSocket handles WebSocket connection requests.
//
//nolint:contextcheck // intentional: WebSocket connections outlive the HTTP request context
func (h *WebSocketHandler) HandleWebSocket(w http.ResponseWriter, r *http.Request) {
	logger := middleware.Logger(r.Context(), h.logger)

	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		logger.Error("failed to upgrade connection", zap.Error(err))
		return
	}

	// Use background context instead of request context because the HTTP request
	// context gets canceled when the handler returns, but WebSocket connections
	// need to persist beyond the initial HTTP upgrade.
	ctx, cancel := context.WithCancel(context.Background())

	slot := newSnapshotSlot()
	unsubscribe, err := h.feed.Subscribe(ctx, slot.put)
	if err != nil {
		logger.Error("failed to subscribe to item feed", zap.Error(err))
		h.sendFeedError(conn, "subscription failed")
		cancel()
		_ = conn.Close()
		return
	}

	h.mu.Lock()
	h.clients[conn] = cancel
	h.mu.Unlock()
	feedConnections.Inc()

	logger.Info("websocket client connected", zap.String("remote_addr", conn.RemoteAddr().String()))

	go h.writePump(ctx, conn, slot)
	go h.readPump(ctx, conn, cancel, unsubscribe)
}

// readPump drains incoming frames so control messages are processed.
func (h *WebSocketHandler) readPump(
	ctx context.Context,
	conn *websocket.Conn,
	cancel context.CancelFunc,
	unsubscribe func(),
) {
	defer func() {
		unsubscribe()
		cancel()
		h.removeClient(conn)
		if err := conn.Close(); err != nil {
			h.logger.Debug("error closing connection", zap.Error(err))
		}
	}()

	conn.SetReadLimit(maxMessageSize)
	if err := conn.SetReadDeadline(time.Now().Add(pongWait)); err != nil {
		h.logger.Error("failed to set read deadline", zap.Error(err))
		return
	}

	conn.SetPongHandler(func(string) error {
		return conn.SetReadDeadline(time.Now().Add(pongWait))
	})

	for {
		select {
		case <-ctx.Done():
			return
		default:
			_, message, err := conn.ReadMessage()
			if err != nil {
				if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
					h.logger.Warn("websocket read error", zap.Error(err))
				}
				return
			}
			h.logger.Debug("ignoring client message", zap.ByteString("message", message))
		}
	}
}

// writePump sends snapshots as they arrive and keeps the connection alive.
func (h *WebSocketHandler) writePump(ctx context.Context, conn *websocket.Conn, slot *snapshotSlot) {
	pingTicker := time.NewTicker(pingPeriod)
	defer pingTicker.Stop()

	for {
		select {
		case <-ctx.Done():
			h.sendCloseMessage(conn)
			return
		case <-slot.ready:
			items, ok := slot.take()
			if !ok {
				continue
			}
			if err := h.sendSnapshot(conn, items); err != nil {
				h.logger.Debug("failed to send snapshot", zap.Error(err))
				h.abort(conn)
				return
			}
		case <-pingTicker.C:
			if err := h.sendPing(conn); err != nil {
				h.logger.Debug("failed to send ping", zap.Error(err))
				h.abort(conn)
				return
			}
		}
	}
}

// abort closes a connection that can no longer be written to. readPump then
// fails its read and releases the subscription.
func (h *WebSocketHandler) abort(conn *websocket.Conn) {
	if err := conn.Close(); err != nil {
		h.logger.Debug("error closing connection", zap.Error(err))
	}
}

// sendSnapshot writes one snapshot message.
func (h *WebSocketHandler) sendSnapshot(conn *websocket.Conn, items []model.Item) error {
	if err := conn.SetWriteDeadline(time.Now().Add(writeWait)); err != nil {
		return err
	}
	return conn.WriteJSON(model.NewSnapshotMessage(items))
}

// sendFeedError writes an error message before the connection is dropped.
func (h *WebSocketHandler) sendFeedError(conn *websocket.Conn, msg string) {
	if err := conn.SetWriteDeadline(time.Now().Add(writeWait)); err != nil {
		return
	}
	if err := conn.WriteJSON(model.NewFeedErrorMessage(msg)); err != nil {
		h.logger.Debug("failed to send feed error", zap.Error(err))
	}
}

// sendPing sends a ping message to the connection.
func (h *WebSocketHandler) sendPing(conn *websocket.Conn) error {
	if err := conn.SetWriteDeadline(time.Now().Add(writeWait)); err != nil {
		return err
	}
	return conn.WriteMessage(websocket.PingMessage, nil)
}

// sendCloseMessage sends a close message to the connection.
func (h *WebSocketHandler) sendCloseMessage(conn *websocket.Conn) {
	if err := conn.SetWriteDeadline(time.Now().Add(writeWait)); err != nil {
		h.logger.Debug("failed to set write deadline for close", zap.Error(err))
		return
	}

	closeMsg := websocket.FormatCloseMessage(websocket.CloseNormalClosure, "server shutting down")
	if err := conn.WriteMessage(websocket.CloseMessage, closeMsg); err != nil {
		h.logger.Debug("failed to send close message", zap.Error(err))
	}
}

// removeClient removes a client from the clients map.
func (h *WebSocketHandler) removeClient(conn *websocket.Conn) {
	h.mu.Lock()
	defer h.mu.Unlock()

	if cancel, exists := h.clients[conn]; exists {
		cancel()
		delete(h.clients, conn)
		feedConnections.Dec()
		h.logger.Info("websocket client disconnected", zap.String("remote_addr", conn.RemoteAddr().String()))
	}
}

// ClientCount returns the number of connected WebSocket clients.
func (h *WebSocketHandler) ClientCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}

// CloseAllConnections closes all active WebSocket connections.
func (h *WebSocketHandler) CloseAllConnections() {
	h.mu.Lock()
	cancels := make([]context.CancelFunc, 0, len(h.clients))
	for _, cancel := range h.clients {
		cancels = append(cancels, cancel)
	}
	h.mu.Unlock()

	// Cancel all contexts first - this will trigger writePump to send close messages
	for _, cancel := range cancels {
		cancel()
	}

	// Give writePump goroutines time to send close messages
	time.Sleep(100 * time.Millisecond)

	h.mu.Lock()
	for conn := range h.clients {
		if err := conn.Close(); err != nil {
			h.logger.Debug("error closing connection", zap.Error(err))
		}
		delete(h.clients, conn)
		feedConnections.Dec()
	}
	h.mu.Unlock()

	h.logger.Info("all websocket connections closed")
}
