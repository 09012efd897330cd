package websocket

import (
	"net/http"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/wricardo/sessionrelay/game/config"
	"github.com/wricardo/sessionrelay/game/metrics"
	"github.com/wricardo/sessionrelay/game/service"
)

// State is the lifecycle phase of a client connection
type State int32

const (
	StateConnecting State = iota
	StateOpen
	StateClosed
)

func (s State) String() string {
	switch s {
	case StateConnecting:
		return "connecting"
	case StateOpen:
		return "open"
	case StateClosed:
		return "closed"
	default:
		return "unknown"
	}
}

// Client is one WebSocket connection. The relay only sees it through
// Send and Close.
type Client struct {
	hub     *Hub
	conn    *websocket.Conn
	id      string
	limiter *rate.Limiter

	mu    sync.Mutex
	send  chan []byte
	state atomic.Int32
}

// Send queues data for the write pump. It never blocks and returns false
// when the queue is full or the client is closed.
func (c *Client) Send(data []byte) bool {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.State() == StateClosed {
		return false
	}
	select {
	case c.send <- data:
		return true
	default:
		return false
	}
}

// Close stops accepting frames. The write pump then sends a close frame
// and drops the connection. Safe to call more than once.
func (c *Client) Close() {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.State() == StateClosed {
		return
	}
	c.state.Store(int32(StateClosed))
	close(c.send)
}

// State returns the client's lifecycle phase
func (c *Client) State() State {
	return State(c.state.Load())
}

// Hub upgrades HTTP requests and pumps frames between sockets and the relay
type Hub struct {
	relay   service.RelayService
	metrics *metrics.RelayMetrics
	cfg     config.Config
	log     *zap.Logger

	upgrader websocket.Upgrader

	mu      sync.Mutex
	clients map[*Client]struct{}
}

// NewHub creates a hub feeding relay. m may be nil.
func NewHub(relay service.RelayService, m *metrics.RelayMetrics, cfg config.Config, log *zap.Logger) *Hub {
	if log == nil {
		log = zap.NewNop()
	}
	if m == nil {
		m = metrics.New()
	}
	return &Hub{
		relay:   relay,
		metrics: m,
		cfg:     cfg,
		log:     log,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin: func(r *http.Request) bool {
				return true
			},
		},
		clients: make(map[*Client]struct{}),
	}
}

// ServeWS handles WebSocket requests from clients
func (h *Hub) ServeWS(w http.ResponseWriter, r *http.Request) {
	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.log.Warn("websocket upgrade failed", zap.Error(err))
		return
	}

	client := &Client{
		hub:  h,
		conn: conn,
		send: make(chan []byte, h.cfg.SendBuffer),
	}
	if h.cfg.MessagesPerSecond > 0 {
		client.limiter = rate.NewLimiter(rate.Limit(h.cfg.MessagesPerSecond), h.cfg.MessageBurst)
	}

	go client.writePump()

	id, err := h.relay.Connect(client)
	if err != nil {
		h.log.Error("failed to admit connection", zap.Error(err))
		client.Close()
		return
	}
	// id is set before readPump starts and never written again
	client.id = id
	if !client.state.CompareAndSwap(int32(StateConnecting), int32(StateOpen)) {
		h.log.Debug("connection closed during admission", zap.String("player_id", id))
	}
	h.track(client)

	go client.readPump()
}

// Count returns the number of sockets the hub is serving
func (h *Hub) Count() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.clients)
}

// Shutdown closes every open client. Each read pump then disconnects its
// client from the relay.
func (h *Hub) Shutdown() {
	h.mu.Lock()
	clients := make([]*Client, 0, len(h.clients))
	for c := range h.clients {
		clients = append(clients, c)
	}
	h.mu.Unlock()

	for _, c := range clients {
		c.Close()
	}
	h.log.Info("websocket hub shut down", zap.Int("clients", len(clients)))
}

func (h *Hub) track(c *Client) {
	h.mu.Lock()
	h.clients[c] = struct{}{}
	h.mu.Unlock()
}

func (h *Hub) untrack(c *Client) {
	h.mu.Lock()
	delete(h.clients, c)
	h.mu.Unlock()
}

// readPump pumps frames from the WebSocket connection to the relay
func (c *Client) readPump() {
	h := c.hub
	defer func() {
		h.relay.Disconnect(c.id)
		c.Close()
		h.untrack(c)
		c.conn.Close()
	}()

	pongWait := h.cfg.PongWait
	c.conn.SetReadLimit(h.cfg.MaxMessageBytes)
	c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		c.conn.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})

	for {
		_, frame, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure, websocket.CloseAbnormalClosure) {
				h.log.Warn("websocket error", zap.String("player_id", c.id), zap.Error(err))
			}
			return
		}

		if c.limiter != nil && !c.limiter.Allow() {
			h.metrics.FramesRateLimited.Add(1)
			h.log.Debug("frame over rate limit", zap.String("player_id", c.id))
			continue
		}
		h.relay.HandleFrame(c.id, frame)
	}
}

// writePump pumps queued frames to the WebSocket connection, one message
// per frame.
func (c *Client) writePump() {
	writeWait := c.hub.cfg.WriteWait
	ticker := time.NewTicker(c.hub.cfg.PingPeriod())
	defer func() {
		ticker.Stop()
		c.conn.Close()
	}()

	for {
		select {
		case message, ok := <-c.send:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				c.conn.WriteMessage(websocket.CloseMessage,
					websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
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
