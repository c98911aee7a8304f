package status

import (
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"github.com/voltpower/volt/internal/metrics"
	"github.com/voltpower/volt/internal/protocol"
)

const (
	pingInterval  = 20 * time.Second
	writeTimeout  = 10 * time.Second
	writeChanSize = 64
)

// feedClient is one websocket subscriber. All writes to conn happen on its
// writeLoop goroutine.
type feedClient struct {
	conn *websocket.Conn
	send chan protocol.Frame
	done chan struct{}
	once sync.Once
}

func (c *feedClient) close() {
	c.once.Do(func() { close(c.done) })
}

// hub fans monitor events out to feed clients. A client whose buffer is full
// is dropped rather than blocking the monitor goroutine.
type hub struct {
	log *zap.Logger

	mu      sync.Mutex
	clients map[*feedClient]struct{}
	closed  bool
}

func newHub(log *zap.Logger) *hub {
	return &hub{log: log, clients: make(map[*feedClient]struct{})}
}

func (h *hub) add(c *feedClient) bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.closed {
		return false
	}
	h.clients[c] = struct{}{}
	metrics.FeedClients.Set(float64(len(h.clients)))
	return true
}

func (h *hub) remove(c *feedClient) {
	h.mu.Lock()
	if _, ok := h.clients[c]; ok {
		delete(h.clients, c)
		metrics.FeedClients.Set(float64(len(h.clients)))
	}
	h.mu.Unlock()
	c.close()
}

func (h *hub) broadcast(f protocol.Frame) {
	h.mu.Lock()
	defer h.mu.Unlock()
	for c := range h.clients {
		select {
		case c.send <- f:
		default:
			h.log.Warn("dropping slow feed client")
			delete(h.clients, c)
			c.close()
		}
	}
	metrics.FeedClients.Set(float64(len(h.clients)))
}

// closeAll disconnects every client and refuses new ones.
func (h *hub) closeAll() {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.closed = true
	for c := range h.clients {
		delete(h.clients, c)
		c.close()
	}
	metrics.FeedClients.Set(0)
}

func (h *hub) count() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.clients)
}

// writeLoop is the single goroutine that writes to the WebSocket. It closes
// the connection on exit, which also ends the read loop.
func (c *feedClient) writeLoop(log *zap.Logger) {
	ticker := time.NewTicker(pingInterval)
	defer func() {
		ticker.Stop()
		_ = c.conn.SetWriteDeadline(time.Now().Add(time.Second))
		_ = c.conn.WriteMessage(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
		c.conn.Close()
	}()

	write := func(f protocol.Frame) bool {
		_ = c.conn.SetWriteDeadline(time.Now().Add(writeTimeout))
		if err := c.conn.WriteJSON(f); err != nil {
			log.Debug("feed write error", zap.Error(err))
			return false
		}
		return true
	}

	for {
		select {
		case <-c.done:
			return
		case f := <-c.send:
			if !write(f) {
				return
			}
		case <-ticker.C:
			if !write(protocol.Frame{Type: protocol.TypePing}) {
				return
			}
		}
	}
}
