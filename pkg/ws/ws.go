package ws

import (
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/sirupsen/logrus"
)

const (
	writeWait      = 10 * time.Second
	pongWait       = 60 * time.Second
	pingPeriod     = (pongWait * 9) / 10
	maxMessageSize = 4096
	sendBufferSize = 64
)

// Connectioner is the write side of a websocket connection.
type Connectioner interface {
	SendMessage(message []byte) error
	Close() error
}

// Huber manages websocket connections grouped into named channels.
type Huber interface {
	http.Handler
	JoinChannel(channel string, conn *Connection)
	LeaveChannel(channel string, conn *Connection)
	ConnectionsInChannel(channel string) []*Connection
	BroadcastToChannel(channel string, message []byte)
	ConnectionsAll() []*Connection
}

type HubOptions struct {
	Logger       *logrus.Logger
	CheckOrigin  func(r *http.Request) bool
	OnConnect    func(r *http.Request, hub *Hub, conn *Connection) error
	OnDisconnect func(conn *Connection)
}

type Hub struct {
	logger       *logrus.Logger
	upgrader     websocket.Upgrader
	onConnect    func(r *http.Request, hub *Hub, conn *Connection) error
	onDisconnect func(conn *Connection)

	mu          sync.RWMutex
	connections map[*Connection]struct{}
	channels    map[string]map[*Connection]struct{}
}

func NewHub(opts *HubOptions) *Hub {
	checkOrigin := opts.CheckOrigin
	if checkOrigin == nil {
		checkOrigin = func(*http.Request) bool { return true }
	}
	return &Hub{
		logger: opts.Logger,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin:     checkOrigin,
		},
		onConnect:    opts.OnConnect,
		onDisconnect: opts.OnDisconnect,
		connections:  make(map[*Connection]struct{}),
		channels:     make(map[string]map[*Connection]struct{}),
	}
}

func (h *Hub) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	ws, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		if h.logger != nil {
			h.logger.WithError(err).Error("ws: failed to upgrade connection")
		}
		return
	}

	conn := newConnection(ws)
	h.mu.Lock()
	h.connections[conn] = struct{}{}
	h.mu.Unlock()

	if h.onConnect != nil {
		if err := h.onConnect(r, h, conn); err != nil {
			if h.logger != nil {
				h.logger.WithError(err).Error("ws: connect hook rejected connection")
			}
			h.remove(conn)
			_ = conn.Close()
			return
		}
	}

	go conn.writePump()
	go func() {
		conn.readPump()
		h.remove(conn)
		if h.onDisconnect != nil {
			h.onDisconnect(conn)
		}
	}()
}

func (h *Hub) remove(conn *Connection) {
	h.mu.Lock()
	defer h.mu.Unlock()
	delete(h.connections, conn)
	for name, members := range h.channels {
		delete(members, conn)
		if len(members) == 0 {
			delete(h.channels, name)
		}
	}
}

func (h *Hub) JoinChannel(channel string, conn *Connection) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if _, ok := h.connections[conn]; !ok {
		return
	}
	members, ok := h.channels[channel]
	if !ok {
		members = make(map[*Connection]struct{})
		h.channels[channel] = members
	}
	members[conn] = struct{}{}
}

func (h *Hub) LeaveChannel(channel string, conn *Connection) {
	h.mu.Lock()
	defer h.mu.Unlock()
	members, ok := h.channels[channel]
	if !ok {
		return
	}
	delete(members, conn)
	if len(members) == 0 {
		delete(h.channels, channel)
	}
}

func (h *Hub) ConnectionsInChannel(channel string) []*Connection {
	h.mu.RLock()
	defer h.mu.RUnlock()
	members := h.channels[channel]
	out := make([]*Connection, 0, len(members))
	for conn := range members {
		out = append(out, conn)
	}
	return out
}

func (h *Hub) ConnectionsAll() []*Connection {
	h.mu.RLock()
	defer h.mu.RUnlock()
	out := make([]*Connection, 0, len(h.connections))
	for conn := range h.connections {
		out = append(out, conn)
	}
	return out
}

// BroadcastToChannel delivers at most once per subscriber; slow consumers
// with full buffers are skipped.
func (h *Hub) BroadcastToChannel(channel string, message []byte) {
	for _, conn := range h.ConnectionsInChannel(channel) {
		if err := conn.SendMessage(message); err != nil && h.logger != nil {
			h.logger.WithError(err).WithField("channel", channel).Warn("ws: dropped broadcast message")
		}
	}
}

// Connection wraps a websocket with a buffered outbound queue so that
// broadcasts never block on a slow peer.
type Connection struct {
	ws   *websocket.Conn
	send chan []byte

	closeOnce sync.Once
	closed    chan struct{}
}

func newConnection(ws *websocket.Conn) *Connection {
	return &Connection{
		ws:     ws,
		send:   make(chan []byte, sendBufferSize),
		closed: make(chan struct{}),
	}
}

var errSendBufferFull = &websocket.CloseError{Code: websocket.ClosePolicyViolation, Text: "send buffer full"}

func (c *Connection) SendMessage(message []byte) error {
	select {
	case <-c.closed:
		return websocket.ErrCloseSent
	case c.send <- message:
		return nil
	default:
		return errSendBufferFull
	}
}

func (c *Connection) Close() error {
	var err error
	c.closeOnce.Do(func() {
		close(c.closed)
		err = c.ws.Close()
	})
	return err
}

func (c *Connection) readPump() {
	defer func() { _ = c.Close() }()
	c.ws.SetReadLimit(maxMessageSize)
	_ = c.ws.SetReadDeadline(time.Now().Add(pongWait))
	c.ws.SetPongHandler(func(string) error {
		return c.ws.SetReadDeadline(time.Now().Add(pongWait))
	})
	for {
		if _, _, err := c.ws.ReadMessage(); err != nil {
			return
		}
	}
}

func (c *Connection) writePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		_ = c.Close()
	}()
	for {
		select {
		case <-c.closed:
			return
		case message := <-c.send:
			_ = c.ws.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.ws.WriteMessage(websocket.TextMessage, message); err != nil {
				return
			}
		case <-ticker.C:
			_ = c.ws.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.ws.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}
