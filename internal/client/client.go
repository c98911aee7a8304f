package client

import (
	"encoding/json"
	"fmt"
	"net/url"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"github.com/voltpower/volt/internal/protocol"
)

const (
	pingInterval  = 20 * time.Second
	writeTimeout  = 10 * time.Second
	writeChanSize = 16
)

// Handler receives hello and event frames from the status feed.
type Handler func(protocol.Frame)

// Client follows a volt status feed and reconnects when it drops.
type Client struct {
	url    string
	handle Handler
	log    *zap.Logger

	// OnDisconnect, if set, is called with the error that ended a session.
	OnDisconnect func(error)
	// OnReconnect, if set, is called before each reconnect wait.
	OnReconnect func()

	mu          sync.Mutex
	writeCh     chan protocol.Frame
	reconnector *Reconnector

	stopCh chan struct{}
	once   sync.Once
}

// New creates a Client for the feed served at addr (host:port).
func New(addr string, handle Handler, log *zap.Logger) *Client {
	if log == nil {
		log = zap.NewNop()
	}
	u := url.URL{Scheme: "ws", Host: addr, Path: "/ws"}
	return &Client{
		url:         u.String(),
		handle:      handle,
		log:         log,
		reconnector: NewReconnector(),
		stopCh:      make(chan struct{}),
	}
}

// Stop signals the client to shut down gracefully.
func (c *Client) Stop() {
	c.once.Do(func() {
		close(c.stopCh)
	})
}

// send enqueues a frame for the write goroutine. Non-blocking: the frame is
// dropped if the buffer is full or no connection is active.
func (c *Client) send(f protocol.Frame) {
	c.mu.Lock()
	ch := c.writeCh
	c.mu.Unlock()
	if ch == nil {
		return
	}
	select {
	case ch <- f:
	default:
	}
}

// writeLoop is the single goroutine that writes to the WebSocket.
func (c *Client) writeLoop(conn *websocket.Conn, ch <-chan protocol.Frame, done <-chan struct{}) {
	for {
		select {
		case <-done:
			return
		case f := <-ch:
			_ = conn.SetWriteDeadline(time.Now().Add(writeTimeout))
			if err := conn.WriteJSON(f); err != nil {
				c.log.Debug("write error", zap.Error(err))
				return
			}
		}
	}
}

// Run connects to the feed and enters the message loop with automatic
// reconnection. It returns nil once Stop is called.
func (c *Client) Run() error {
	for {
		select {
		case <-c.stopCh:
			return nil
		default:
		}

		err := c.connectAndServe()
		if err != nil && c.OnDisconnect != nil {
			c.OnDisconnect(err)
		}

		select {
		case <-c.stopCh:
			return nil
		default:
		}

		if c.OnReconnect != nil {
			c.OnReconnect()
		}
		c.log.Debug("redialing feed", zap.Int("attempt", c.reconnector.Attempts()+1))
		if !c.reconnector.Wait(c.stopCh) {
			return nil
		}
	}
}

func (c *Client) connectAndServe() error {
	conn, _, err := websocket.DefaultDialer.Dial(c.url, nil)
	if err != nil {
		return fmt.Errorf("dial failed: %w", err)
	}

	// Per-connection write channel + writer goroutine
	writeCh := make(chan protocol.Frame, writeChanSize)
	writeDone := make(chan struct{})

	c.mu.Lock()
	c.writeCh = writeCh
	c.mu.Unlock()

	go c.writeLoop(conn, writeCh, writeDone)

	// Stop unblocks the reader by closing the connection.
	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		select {
		case <-c.stopCh:
			conn.Close()
		case <-writeDone:
		}
	}()

	defer func() {
		close(writeDone)
		wg.Wait()
		conn.Close()
		c.mu.Lock()
		c.writeCh = nil
		c.mu.Unlock()
	}()

	// The first frame must be the hello snapshot.
	var hello protocol.Frame
	if err := conn.ReadJSON(&hello); err != nil {
		return fmt.Errorf("failed to read hello: %w", err)
	}
	if hello.Type != protocol.TypeHello {
		return fmt.Errorf("unexpected first message type: %s", hello.Type)
	}
	c.handle(hello)

	// Successful handshake: reset backoff for the next disconnect
	c.reconnector.Reset()

	pingDone := make(chan struct{})
	defer close(pingDone)
	go c.heartbeatLoop(pingDone)

	// Message loop (single reader)
	for {
		_, raw, err := conn.ReadMessage()
		if err != nil {
			select {
			case <-c.stopCh:
				return nil
			default:
			}
			return fmt.Errorf("read error: %w", err)
		}

		var f protocol.Frame
		if err := json.Unmarshal(raw, &f); err != nil {
			c.log.Warn("invalid message", zap.Error(err))
			continue
		}

		switch f.Type {
		case protocol.TypePing:
			c.send(protocol.Frame{Type: protocol.TypePong})
		case protocol.TypePong:
			// Heartbeat ack
		default:
			c.handle(f)
		}
	}
}

func (c *Client) heartbeatLoop(done <-chan struct{}) {
	ticker := time.NewTicker(pingInterval)
	defer ticker.Stop()

	for {
		select {
		case <-done:
			return
		case <-c.stopCh:
			return
		case <-ticker.C:
			c.send(protocol.Frame{Type: protocol.TypePing})
		}
	}
}
