package reconcile

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"
)

// Channel is the bidirectional message channel the reconciler speaks over.
// It exists so relay and reconciliation logic are testable without a real
// network stack.
type Channel interface {
	Connect(ctx context.Context) error
	Send(msg any) error
	// Messages delivers inbound payloads. The channel is closed when the
	// connection is gone for good (explicit Close or retries exhausted).
	Messages() <-chan []byte
	Close() error
}

var ErrChannelClosed = errors.New("channel closed")

const (
	defaultMaxRetries  = 5
	defaultBackoffBase = 500 * time.Millisecond
	sendWait           = 10 * time.Second
)

// WSChannel is the gorilla/websocket Channel. Reconnection is automatic with
// bounded attempts and exponential backoff. Sends are attempted at most once;
// anything lost during an outage is recovered by snapshot sync, not
// retransmission.
type WSChannel struct {
	url    string
	header http.Header

	mu     sync.Mutex
	conn   *websocket.Conn
	closed bool

	messages chan []byte

	MaxRetries  int
	BackoffBase time.Duration

	// OnReconnect fires after a successful automatic reconnect, so the
	// owner can rejoin its room and trigger a snapshot sync.
	OnReconnect func()
}

// NewWSChannel prepares a channel to the given ws:// URL. The token is passed
// the same way the HTTP API accepts it.
func NewWSChannel(url, token string) *WSChannel {
	header := http.Header{}
	if token != "" {
		header.Set("Authorization", "Bearer "+token)
	}
	return &WSChannel{
		url:         url,
		header:      header,
		messages:    make(chan []byte, 64),
		MaxRetries:  defaultMaxRetries,
		BackoffBase: defaultBackoffBase,
	}
}

func (c *WSChannel) Connect(ctx context.Context) error {
	conn, _, err := websocket.DefaultDialer.DialContext(ctx, c.url, c.header)
	if err != nil {
		return fmt.Errorf("dial %s: %w", c.url, err)
	}
	c.mu.Lock()
	c.conn = conn
	c.mu.Unlock()

	go c.readLoop()
	return nil
}

func (c *WSChannel) Messages() <-chan []byte {
	return c.messages
}

// Send makes a single attempt; delivery is not guaranteed.
func (c *WSChannel) Send(msg any) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed || c.conn == nil {
		return ErrChannelClosed
	}
	c.conn.SetWriteDeadline(time.Now().Add(sendWait))
	return c.conn.WriteJSON(msg)
}

func (c *WSChannel) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return nil
	}
	c.closed = true
	if c.conn != nil {
		c.conn.WriteMessage(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
		c.conn.Close()
	}
	return nil
}

func (c *WSChannel) readLoop() {
	for {
		c.mu.Lock()
		conn := c.conn
		closed := c.closed
		c.mu.Unlock()
		if closed || conn == nil {
			close(c.messages)
			return
		}

		_, data, err := conn.ReadMessage()
		if err == nil {
			c.messages <- data
			continue
		}

		c.mu.Lock()
		closed = c.closed
		c.mu.Unlock()
		if closed {
			close(c.messages)
			return
		}

		if !c.reconnect() {
			close(c.messages)
			return
		}
		if c.OnReconnect != nil {
			c.OnReconnect()
		}
	}
}

// reconnect retries with exponential backoff until it succeeds or the
// attempt budget runs out.
func (c *WSChannel) reconnect() bool {
	backoff := c.BackoffBase
	for attempt := 1; attempt <= c.MaxRetries; attempt++ {
		time.Sleep(backoff)
		backoff *= 2

		c.mu.Lock()
		if c.closed {
			c.mu.Unlock()
			return false
		}
		c.mu.Unlock()

		conn, _, err := websocket.DefaultDialer.Dial(c.url, c.header)
		if err != nil {
			log.Printf("reconcile: reconnect attempt %d/%d failed: %v", attempt, c.MaxRetries, err)
			continue
		}

		c.mu.Lock()
		c.conn = conn
		c.mu.Unlock()
		return true
	}
	return false
}

// compile-time check
var _ Channel = (*WSChannel)(nil)
