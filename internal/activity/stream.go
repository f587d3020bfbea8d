package activity

import (
	"net/http"
	"sync"

	"github.com/gorilla/websocket"
	"github.com/sirupsen/logrus"
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	// The API already sits behind CORS; the websocket handshake follows it.
	CheckOrigin: func(r *http.Request) bool { return true },
}

// Hub fans newly logged entries out to websocket subscribers. Entries are
// delivered in log order per connection; slow consumers are dropped.
type Hub struct {
	mu    sync.Mutex
	conns map[*websocket.Conn]chan Entry
}

// NewHub creates an empty hub.
func NewHub() *Hub {
	return &Hub{conns: make(map[*websocket.Conn]chan Entry)}
}

// Broadcast queues the entry for every connected subscriber.
func (h *Hub) Broadcast(entry Entry) {
	h.mu.Lock()
	defer h.mu.Unlock()
	for conn, ch := range h.conns {
		select {
		case ch <- entry:
		default:
			// Consumer too slow; disconnect rather than block the log path.
			close(ch)
			delete(h.conns, conn)
			conn.Close()
		}
	}
}

// ServeHTTP upgrades the request to a websocket and streams entries until
// the client disconnects.
func (h *Hub) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		logrus.WithError(err).Warn("activity feed upgrade failed")
		return
	}

	ch := make(chan Entry, 16)
	h.mu.Lock()
	h.conns[conn] = ch
	h.mu.Unlock()

	defer func() {
		h.mu.Lock()
		if _, ok := h.conns[conn]; ok {
			close(ch)
			delete(h.conns, conn)
		}
		h.mu.Unlock()
		conn.Close()
	}()

	// Reader goroutine: we never expect client messages, but reading is
	// required to notice disconnects.
	done := make(chan struct{})
	go func() {
		defer close(done)
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()

	for {
		select {
		case entry, ok := <-ch:
			if !ok {
				return
			}
			if err := conn.WriteJSON(entry); err != nil {
				return
			}
		case <-done:
			return
		}
	}
}
