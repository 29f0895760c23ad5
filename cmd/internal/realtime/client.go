package realtime

import (
	"encoding/json"
	"sync"

	"github.com/coder/websocket"

	v1 "goban/shared/contracts/realtime/v1"
)

// frame is one queued outbound item. Either data is a complete text frame
// (marshaled envelope or raw text such as "pong"), or close is set and the
// writer must finish the connection with the given status.
type frame struct {
	data   []byte
	close  bool
	code   websocket.StatusCode
	reason string
}

// Client represents one connected websocket session.
//
// The outbound queue is unbounded so enqueuing never blocks a broadcaster:
// the hub appends under a short mutex and the connection's writer goroutine
// drains in order. A close directive travels through the same queue, so a
// kicked client still receives every envelope enqueued before the kick.
//
// Design notes:
// - wake is buffered (capacity 1) so pushes coalesce instead of blocking.
// - done signals goroutines to stop; Close is idempotent.
type Client struct {
	ConnID   string
	Username string

	mu     sync.Mutex
	queue  []frame
	closed bool

	wake      chan struct{}
	done      chan struct{}
	closeOnce sync.Once
}

// NewClient constructs a Client with an empty outbound queue.
func NewClient(username, connID string) *Client {
	return &Client{
		ConnID:   connID,
		Username: username,
		wake:     make(chan struct{}, 1),
		done:     make(chan struct{}),
	}
}

// SendEnvelope enqueues an outbound envelope for the writer goroutine.
// It never blocks and is safe to call from any goroutine.
func (c *Client) SendEnvelope(env v1.Outbound) {
	b, err := json.Marshal(env)
	if err != nil {
		return
	}
	c.push(frame{data: b})
}

// SendText enqueues a raw text frame, bypassing the envelope codec.
// Used for the "pong" reply to a client's text ping.
func (c *Client) SendText(s string) {
	c.push(frame{data: []byte(s)})
}

// SendClose enqueues a close directive. Envelopes enqueued earlier are
// written first; anything pushed afterwards is discarded.
func (c *Client) SendClose(code websocket.StatusCode, reason string) {
	c.push(frame{close: true, code: code, reason: reason})
}

func (c *Client) push(f frame) {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return
	}
	if f.close {
		c.closed = true
	}
	c.queue = append(c.queue, f)
	c.mu.Unlock()

	select {
	case c.wake <- struct{}{}:
	default:
	}
}

// Drain takes the queued frames, leaving the queue empty. The writer calls
// it after a wake-up; a push racing with the drain re-arms wake, so nothing
// is lost.
func (c *Client) Drain() []frame {
	c.mu.Lock()
	batch := c.queue
	c.queue = nil
	c.mu.Unlock()
	return batch
}

// Wake returns the channel signaled when the queue becomes non-empty.
func (c *Client) Wake() <-chan struct{} {
	return c.wake
}

// Done returns a channel that is closed when the client is shutting down.
func (c *Client) Done() <-chan struct{} {
	if c == nil {
		ch := make(chan struct{})
		close(ch)
		return ch
	}
	return c.done
}

// Close signals the client goroutines to stop (idempotent).
func (c *Client) Close() {
	if c == nil {
		return
	}
	c.closeOnce.Do(func() {
		close(c.done)
	})
}
