package monitoring

import (
	"context"
	"encoding/json"
	"net/http"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"
)

// MessageType 消息类型
type MessageType string

const (
	ResultsChanged MessageType = "results_changed"
	Heartbeat      MessageType = "heartbeat"
)

// Message is pushed to every connected dashboard page.
type Message struct {
	Type      MessageType     `json:"type"`
	Timestamp time.Time       `json:"timestamp"`
	Data      json.RawMessage `json:"data,omitempty"`
	ID        string          `json:"id"`
}

// ResultsChangedData is the payload of a results_changed message.
type ResultsChangedData struct {
	Dir string `json:"dir"`
}

const (
	writeWait      = 10 * time.Second
	pingPeriod     = 30 * time.Second
	pongWait       = 2 * pingPeriod
	sendBufferSize = 16

	// DefaultHeartbeat is how often pages receive a heartbeat message.
	DefaultHeartbeat = 30 * time.Second
)

// client is one websocket connection.
type client struct {
	conn     *websocket.Conn
	send     chan []byte
	clientID string
}

// Hub fans messages out to all connected clients.
type Hub struct {
	clients    map[*client]bool
	broadcast  chan []byte
	register   chan *client
	unregister chan *client
	mu         sync.RWMutex
	upgrader   websocket.Upgrader
	heartbeat  time.Duration
	metrics    *Metrics
	logger     *zap.Logger
	ctx        context.Context
	cancel     context.CancelFunc
}

// NewHub creates a hub. metrics may be nil.
func NewHub(metrics *Metrics, logger *zap.Logger) *Hub {
	if logger == nil {
		logger = zap.NewNop()
	}
	ctx, cancel := context.WithCancel(context.Background())

	return &Hub{
		clients:    make(map[*client]bool),
		broadcast:  make(chan []byte, 64),
		register:   make(chan *client),
		unregister: make(chan *client),
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
		},
		heartbeat: DefaultHeartbeat,
		metrics:   metrics,
		logger:    logger,
		ctx:       ctx,
		cancel:    cancel,
	}
}

// Run 启动WebSocket中心，调用 Stop 后返回
func (h *Hub) Run() {
	defer h.logger.Debug("websocket hub stopped")

	heartbeat := time.NewTicker(h.heartbeat)
	defer heartbeat.Stop()

	for {
		select {
		case <-heartbeat.C:
			h.Publish(Heartbeat, nil)

		case c := <-h.register:
			h.mu.Lock()
			h.clients[c] = true
			n := len(h.clients)
			h.mu.Unlock()
			h.metrics.setClients(n)
			h.logger.Debug("websocket client connected", zap.String("client", c.clientID), zap.Int("total", n))

		case c := <-h.unregister:
			h.mu.Lock()
			if _, ok := h.clients[c]; ok {
				delete(h.clients, c)
				close(c.send)
			}
			n := len(h.clients)
			h.mu.Unlock()
			h.metrics.setClients(n)
			h.logger.Debug("websocket client disconnected", zap.String("client", c.clientID), zap.Int("total", n))

		case message := <-h.broadcast:
			h.mu.Lock()
			for c := range h.clients {
				select {
				case c.send <- message:
				default:
					// Slow consumer; drop it rather than block the hub.
					close(c.send)
					delete(h.clients, c)
				}
			}
			h.mu.Unlock()

		case <-h.ctx.Done():
			h.mu.Lock()
			for c := range h.clients {
				close(c.send)
				delete(h.clients, c)
			}
			h.mu.Unlock()
			h.metrics.setClients(0)
			return
		}
	}
}

// Stop 停止WebSocket中心
func (h *Hub) Stop() {
	h.cancel()
}

// Clients returns the number of connected clients.
func (h *Hub) Clients() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}

// ServeHTTP upgrades the request and registers the connection.
func (h *Hub) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.logger.Warn("websocket upgrade failed", zap.Error(err))
		return
	}

	c := &client{
		conn:     conn,
		send:     make(chan []byte, sendBufferSize),
		clientID: uuid.NewString(),
	}

	select {
	case h.register <- c:
	case <-h.ctx.Done():
		conn.Close()
		return
	}

	go c.writePump()
	go c.readPump(h)
}

// NotifyResultsChanged tells every page that the records of dir changed.
func (h *Hub) NotifyResultsChanged(dir string) {
	h.Publish(ResultsChanged, ResultsChangedData{Dir: dir})
}

// Publish 广播消息，队列已满时直接丢弃，不阻塞调用方
func (h *Hub) Publish(msgType MessageType, data interface{}) {
	msg := Message{
		Type:      msgType,
		Timestamp: time.Now(),
		ID:        uuid.NewString(),
	}
	if data != nil {
		raw, err := json.Marshal(data)
		if err != nil {
			h.logger.Warn("cannot encode websocket payload", zap.Error(err))
			return
		}
		msg.Data = raw
	}

	payload, err := json.Marshal(msg)
	if err != nil {
		h.logger.Warn("cannot encode websocket message", zap.Error(err))
		return
	}

	select {
	case h.broadcast <- payload:
		h.metrics.messageSent(msgType)
	default:
		h.logger.Warn("websocket broadcast queue is full, dropping message", zap.String("type", string(msgType)))
	}
}

// writePump WebSocket写入泵
func (c *client) writePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		c.conn.Close()
	}()

	for {
		select {
		case message, ok := <-c.send:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				c.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := c.conn.WriteMessage(websocket.TextMessage, message); err != nil {
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

// readPump WebSocket读取泵，页面不发送数据，这里只检测连接是否存活
func (c *client) readPump(h *Hub) {
	defer func() {
		select {
		case h.unregister <- c:
		case <-h.ctx.Done():
		}
		c.conn.Close()
	}()

	c.conn.SetReadLimit(512)
	c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		return c.conn.SetReadDeadline(time.Now().Add(pongWait))
	})

	for {
		if _, _, err := c.conn.ReadMessage(); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				h.logger.Debug("websocket read error", zap.String("client", c.clientID), zap.Error(err))
			}
			return
		}
	}
}
