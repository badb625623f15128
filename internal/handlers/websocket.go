package handlers

import (
	"net/http"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"onnoon-care/eye-monitor/internal/models"
	"onnoon-care/eye-monitor/internal/services"
)

const (
	writeWait  = 10 * time.Second
	pongWait   = 60 * time.Second
	pingPeriod = (pongWait * 9) / 10
)

type wsClient struct {
	id     string
	userID int64
	conn   *websocket.Conn
	send   chan models.WebSocketMessage
	once   sync.Once
}

// newWSClient returns a client whose buffer already holds the WELCOME
// message, so nothing sends on it before the hub can close it.
func newWSClient(conn *websocket.Conn, userID int64, version string) *wsClient {
	c := &wsClient{
		id:     uuid.NewString(),
		userID: userID,
		conn:   conn,
		send:   make(chan models.WebSocketMessage, 64),
	}
	c.send <- models.WebSocketMessage{
		Type:      "WELCOME",
		Timestamp: time.Now().Unix(),
		Data: map[string]interface{}{
			"client_id": c.id,
			"version":   version,
		},
	}
	return c
}

func (c *wsClient) close() {
	c.once.Do(func() { close(c.send) })
}

// Hub tracks live websocket clients and pushes new records to the clients
// of the record's owner.
type Hub struct {
	mu      sync.RWMutex
	clients map[string]*wsClient
	metrics *services.Metrics
	logger  *zap.SugaredLogger
}

func NewHub(metrics *services.Metrics, logger *zap.SugaredLogger) *Hub {
	if logger == nil {
		logger = zap.NewNop().Sugar()
	}
	if metrics == nil {
		metrics = services.NewMetrics()
	}
	return &Hub{
		clients: make(map[string]*wsClient),
		metrics: metrics,
		logger:  logger,
	}
}

func (hub *Hub) Count() int {
	hub.mu.RLock()
	defer hub.mu.RUnlock()
	return len(hub.clients)
}

func (hub *Hub) add(c *wsClient) {
	hub.mu.Lock()
	hub.clients[c.id] = c
	hub.mu.Unlock()
	hub.metrics.IncrementWebSocketConnections()
}

func (hub *Hub) remove(c *wsClient) {
	hub.mu.Lock()
	_, ok := hub.clients[c.id]
	delete(hub.clients, c.id)
	hub.mu.Unlock()
	if ok {
		c.close()
		hub.metrics.DecrementWebSocketConnections()
	}
}

// SendToUser queues msg for every client of userID. Slow clients whose
// buffer is full miss the message.
func (hub *Hub) SendToUser(userID int64, msg models.WebSocketMessage) int {
	hub.mu.RLock()
	defer hub.mu.RUnlock()

	sent := 0
	for _, c := range hub.clients {
		if c.userID != userID {
			continue
		}
		select {
		case c.send <- msg:
			sent++
		default:
			hub.metrics.IncrementWebSocketErrors()
			hub.logger.Warnf("WebSocket client %s is too slow, message dropped", c.id)
		}
	}
	return sent
}

// CloseAll disconnects every client.
func (hub *Hub) CloseAll() {
	hub.mu.Lock()
	defer hub.mu.Unlock()

	for id, c := range hub.clients {
		c.close()
		c.conn.Close()
		hub.metrics.DecrementWebSocketConnections()
		hub.logger.Debugf("Closed connection for client: %s", id)
	}
	hub.clients = make(map[string]*wsClient)
}

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin: func(r *http.Request) bool {
		return true
	},
}

// ServeWebSocket upgrades an authenticated request. Browsers cannot set
// headers on websocket requests, so the token may come as ?token=.
func (h *Handler) ServeWebSocket(w http.ResponseWriter, r *http.Request) {
	token := r.URL.Query().Get("token")
	if token == "" {
		token = bearerToken(r)
	}
	userID, err := h.tokens.Parse(token)
	if err != nil {
		writeError(w, http.StatusUnauthorized, "Could not validate credentials", "invalid_token")
		return
	}

	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.logger.Warnf("websocket upgrade failed: %v", err)
		return
	}

	client := newWSClient(conn, userID, h.version)
	h.hub.add(client)
	h.logger.Infof("WebSocket client connected: %s (user %d)", client.id, userID)

	go h.hub.writePump(client)
	go h.hub.readPump(client)
}

func (hub *Hub) readPump(c *wsClient) {
	defer func() {
		hub.remove(c)
		c.conn.Close()
		hub.logger.Infof("WebSocket client disconnected: %s", c.id)
	}()

	c.conn.SetReadLimit(4096)
	c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		c.conn.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})

	for {
		var msg models.WebSocketMessage
		if err := c.conn.ReadJSON(&msg); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				hub.metrics.IncrementWebSocketErrors()
				hub.logger.Warnf("WebSocket error for %s: %v", c.id, err)
			}
			return
		}
		hub.metrics.IncrementWebSocketMessages()

		switch msg.Type {
		case "PING":
			hub.mu.RLock()
			_, alive := hub.clients[c.id]
			if alive {
				select {
				case c.send <- models.WebSocketMessage{Type: "PONG", Timestamp: time.Now().Unix()}:
				default:
				}
			}
			hub.mu.RUnlock()
		default:
			hub.logger.Debugf("Unknown message type from %s: %s", c.id, msg.Type)
		}
	}
}

func (hub *Hub) writePump(c *wsClient) {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		c.conn.Close()
	}()

	for {
		select {
		case msg, ok := <-c.send:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				c.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := c.conn.WriteJSON(msg); err != nil {
				hub.metrics.IncrementWebSocketErrors()
				return
			}

		case <-ticker.C:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}
