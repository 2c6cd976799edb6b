package liveview

import (
	"context"
	"sync"
	"time"

	"github.com/otherjamesbrown/vexa-cli/pkg/logging"
	"github.com/otherjamesbrown/vexa-cli/pkg/poller"
)

const (
	writeWait       = 5 * time.Second
	maxClientFrame  = 4096
	broadcastBuffer = 64
	clientBuffer    = 16
)

// wsConn is the part of *websocket.Conn the hub uses.
type wsConn interface {
	SetWriteDeadline(t time.Time) error
	WriteJSON(v interface{}) error
	SetReadLimit(limit int64)
	ReadMessage() (messageType int, p []byte, err error)
	Close() error
}

// hubClient owns one connection. Only its writer goroutine writes to conn;
// only the Run goroutine closes send.
type hubClient struct {
	conn wsConn
	send chan poller.View
}

// Hub fans poller views out to connected websocket clients. Each client has
// its own queue, so a peer that stops reading is disconnected once its queue
// fills instead of holding up the others.
type Hub struct {
	clients    map[*hubClient]bool
	broadcast  chan poller.View
	register   chan *hubClient
	unregister chan *hubClient
	logger     logging.Logger
	done       chan struct{}

	mu    sync.RWMutex
	last  *poller.View
	count int
}

// NewHub returns a hub. Call Run before registering clients.
func NewHub(logger logging.Logger) *Hub {
	if logger == nil {
		logger = logging.NewNopLogger()
	}
	return &Hub{
		clients:    make(map[*hubClient]bool),
		broadcast:  make(chan poller.View, broadcastBuffer),
		register:   make(chan *hubClient),
		unregister: make(chan *hubClient),
		logger:     logger,
		done:       make(chan struct{}),
	}
}

// Observe queues v for delivery without blocking. It is safe to use as a
// scheduler observer.
func (h *Hub) Observe(v poller.View) {
	select {
	case h.broadcast <- v:
	default:
		h.logger.Warn("Live view backlog full, dropping view",
			logging.F("generation", v.Generation),
			logging.F("state", v.State.String()),
		)
	}
}

// Clients returns the number of connected clients.
func (h *Hub) Clients() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return h.count
}

// Run serves registrations and broadcasts until ctx is done, then closes
// every connection. Run must be called at most once.
func (h *Hub) Run(ctx context.Context) {
	defer func() {
		close(h.done)
		for c := range h.clients {
			h.drop(c)
		}
		h.setCount()
	}()

	for {
		select {
		case <-ctx.Done():
			return

		case c := <-h.register:
			h.clients[c] = true
			h.setCount()
			h.logger.Debug("Live view client connected", logging.F("clients", len(h.clients)))
			h.mu.RLock()
			last := h.last
			h.mu.RUnlock()
			if last != nil {
				c.send <- *last
			}

		case c := <-h.unregister:
			if _, ok := h.clients[c]; ok {
				h.drop(c)
				h.setCount()
				h.logger.Debug("Live view client disconnected", logging.F("clients", len(h.clients)))
			}

		case v := <-h.broadcast:
			h.mu.Lock()
			h.last = &v
			h.mu.Unlock()
			for c := range h.clients {
				select {
				case c.send <- v:
				default:
					h.drop(c)
					h.setCount()
					h.logger.Warn("Live view client too slow, disconnecting",
						logging.F("clients", len(h.clients)),
					)
				}
			}
		}
	}
}

// drop forgets c and closes its queue and connection. Closing the
// connection unblocks a writer stuck on a stalled peer.
func (h *Hub) drop(c *hubClient) {
	delete(h.clients, c)
	close(c.send)
	_ = c.conn.Close()
}

func (h *Hub) setCount() {
	h.mu.Lock()
	h.count = len(h.clients)
	h.mu.Unlock()
}

// attach registers conn, starts its writer and reads from it until the peer
// goes away. Client frames are discarded; reading is what notices a closed
// socket.
func (h *Hub) attach(conn wsConn) {
	c := &hubClient{conn: conn, send: make(chan poller.View, clientBuffer)}
	select {
	case h.register <- c:
	case <-h.done:
		_ = conn.Close()
		return
	}

	go h.writeLoop(c)
	go func() {
		defer func() {
			select {
			case h.unregister <- c:
			case <-h.done:
			}
		}()
		conn.SetReadLimit(maxClientFrame)
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()
}

func (h *Hub) writeLoop(c *hubClient) {
	for v := range c.send {
		_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
		if err := c.conn.WriteJSON(v); err != nil {
			h.logger.Debug("Live view write failed", logging.Err(err))
			// The reader sees the close and unregisters c.
			_ = c.conn.Close()
			return
		}
	}
}
