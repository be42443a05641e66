package handlers

import (
	"context"
	"net/http"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/ternarybob/arbor"
	"golang.org/x/time/rate"

	"github.com/cirahq/cira/internal/interfaces"
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin: func(r *http.Request) bool {
		return true // Allow all origins for local development
	},
}

// wsMessage is the frame broadcast to connected clients.
type wsMessage struct {
	Type      string      `json:"type"`
	Payload   interface{} `json:"payload"`
	Timestamp time.Time   `json:"timestamp"`
}

// WebSocketHandler pushes pipeline events to connected UI clients. Crawl
// progress events are throttled; lifecycle events always go through.
type WebSocketHandler struct {
	logger arbor.ILogger

	mu          sync.RWMutex
	clients     map[*websocket.Conn]bool
	clientMutex map[*websocket.Conn]*sync.Mutex

	progressThrottle *rate.Limiter

	// serverInstanceID changes on restart so clients can detect it and
	// resync their state.
	serverInstanceID string
}

func NewWebSocketHandler(logger arbor.ILogger) *WebSocketHandler {
	return &WebSocketHandler{
		logger:           logger,
		clients:          make(map[*websocket.Conn]bool),
		clientMutex:      make(map[*websocket.Conn]*sync.Mutex),
		progressThrottle: rate.NewLimiter(rate.Every(2*time.Second), 1),
		serverInstanceID: uuid.New().String(),
	}
}

// RegisterEventHandlers subscribes the broadcast bridge to the event bus.
func (h *WebSocketHandler) RegisterEventHandlers(events interfaces.EventService) {
	types := []interfaces.EventType{
		interfaces.EventJobStarted,
		interfaces.EventPhaseChanged,
		interfaces.EventCrawlProgress,
		interfaces.EventJobPaused,
		interfaces.EventJobResumed,
		interfaces.EventJobCompleted,
		interfaces.EventJobFailed,
		interfaces.EventJobTimeout,
		interfaces.EventBatchProgress,
		interfaces.EventAnalysisSection,
	}
	for _, eventType := range types {
		events.Subscribe(eventType, h.handleEvent)
	}
}

func (h *WebSocketHandler) handleEvent(ctx context.Context, event interfaces.Event) error {
	if event.Type == interfaces.EventCrawlProgress && !h.progressThrottle.Allow() {
		return nil
	}
	h.Broadcast(wsMessage{
		Type:      string(event.Type),
		Payload:   event.Payload,
		Timestamp: time.Now(),
	})
	return nil
}

// HandleWebSocket upgrades the connection and keeps it registered until
// the client disconnects. Inbound messages are discarded.
func (h *WebSocketHandler) HandleWebSocket(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.logger.Error().Err(err).Msg("WebSocket upgrade failed")
		return
	}

	h.mu.Lock()
	h.clients[conn] = true
	h.clientMutex[conn] = &sync.Mutex{}
	count := len(h.clients)
	h.mu.Unlock()

	h.logger.Debug().Int("clients", count).Msg("WebSocket client connected")

	h.send(conn, wsMessage{
		Type:      "connected",
		Payload:   map[string]string{"server_instance_id": h.serverInstanceID},
		Timestamp: time.Now(),
	})

	go h.readLoop(conn)
}

func (h *WebSocketHandler) readLoop(conn *websocket.Conn) {
	defer h.drop(conn)
	for {
		if _, _, err := conn.ReadMessage(); err != nil {
			return
		}
	}
}

// Broadcast sends a message to every connected client. Failed writes drop
// the client.
func (h *WebSocketHandler) Broadcast(msg wsMessage) {
	h.mu.RLock()
	conns := make([]*websocket.Conn, 0, len(h.clients))
	for conn := range h.clients {
		conns = append(conns, conn)
	}
	h.mu.RUnlock()

	for _, conn := range conns {
		if err := h.send(conn, msg); err != nil {
			h.logger.Debug().Err(err).Msg("WebSocket write failed, dropping client")
			h.drop(conn)
		}
	}
}

func (h *WebSocketHandler) send(conn *websocket.Conn, msg wsMessage) error {
	h.mu.RLock()
	writeMu, ok := h.clientMutex[conn]
	h.mu.RUnlock()
	if !ok {
		return nil
	}

	writeMu.Lock()
	defer writeMu.Unlock()
	conn.SetWriteDeadline(time.Now().Add(10 * time.Second))
	return conn.WriteJSON(msg)
}

func (h *WebSocketHandler) drop(conn *websocket.Conn) {
	h.mu.Lock()
	if _, ok := h.clients[conn]; ok {
		delete(h.clients, conn)
		delete(h.clientMutex, conn)
		conn.Close()
	}
	h.mu.Unlock()
}

// Close disconnects all clients.
func (h *WebSocketHandler) Close() {
	h.mu.Lock()
	for conn := range h.clients {
		conn.Close()
	}
	h.clients = make(map[*websocket.Conn]bool)
	h.clientMutex = make(map[*websocket.Conn]*sync.Mutex)
	h.mu.Unlock()
}
