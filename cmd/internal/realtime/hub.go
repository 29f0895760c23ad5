package realtime

import (
	"log/slog"
	"sync"

	"github.com/coder/websocket"

	v1 "goban/shared/contracts/realtime/v1"
)

// Hub is the per-username registry of live socket clients. It is the only
// component holding send handles; room state lives in the rooms service and
// never references a socket.
//
// Invariant: at most one client is registered per username. A second
// registration for the same name displaces the first.
type Hub struct {
	log *slog.Logger

	mu      sync.RWMutex
	clients map[string]*Client
}

// NewHub constructs an empty Hub.
func NewHub(log *slog.Logger) *Hub {
	if log == nil {
		log = slog.New(slog.DiscardHandler)
	}
	return &Hub{
		log:     log,
		clients: make(map[string]*Client),
	}
}

// Register binds username to c, displacing any previous client. The old
// client receives auth.kicked followed by a close directive; both ride its
// outbound queue, so envelopes already enqueued are delivered first.
func (h *Hub) Register(username string, c *Client) {
	h.mu.Lock()
	old := h.clients[username]
	h.clients[username] = c
	h.mu.Unlock()

	if old != nil && old != c {
		h.log.Info("hub.displace", "username", username, "old_conn", old.ConnID, "new_conn", c.ConnID)
		kickClient(old)
	}
}

// Unregister removes username's entry only when it still points at c. A
// stale unregister from a displaced connection must not evict the socket
// that replaced it.
func (h *Hub) Unregister(username string, c *Client) {
	h.mu.Lock()
	if h.clients[username] == c {
		delete(h.clients, username)
	}
	h.mu.Unlock()
}

// Send enqueues an envelope for username's live client. Absent usernames
// are silently dropped; the enqueue never blocks on network I/O.
func (h *Hub) Send(username string, env v1.Outbound) {
	h.mu.RLock()
	c := h.clients[username]
	h.mu.RUnlock()
	if c != nil {
		c.SendEnvelope(env)
	}
}

// Broadcast enqueues an envelope for every named user that has a live
// client. Offline members of the audience are skipped.
func (h *Hub) Broadcast(usernames []string, env v1.Outbound) {
	h.mu.RLock()
	targets := make([]*Client, 0, len(usernames))
	for _, u := range usernames {
		if c := h.clients[u]; c != nil {
			targets = append(targets, c)
		}
	}
	h.mu.RUnlock()

	for _, c := range targets {
		c.SendEnvelope(env)
	}
}

// Kick evicts username's live client, if any. Invoked by the login handler
// so a fresh login displaces the previous session's socket.
func (h *Hub) Kick(username string) {
	h.mu.Lock()
	c := h.clients[username]
	if c != nil {
		delete(h.clients, username)
	}
	h.mu.Unlock()

	if c != nil {
		h.log.Info("hub.kick", "username", username, "conn_id", c.ConnID)
		kickClient(c)
	}
}

// Connected reports whether username has a registered client.
func (h *Hub) Connected(username string) bool {
	h.mu.RLock()
	defer h.mu.RUnlock()
	_, ok := h.clients[username]
	return ok
}

// CloseAll enqueues a close directive for every registered client. Run at
// server shutdown; each client still drains whatever was queued before the
// directive.
func (h *Hub) CloseAll(code websocket.StatusCode, reason string) {
	h.mu.RLock()
	targets := make([]*Client, 0, len(h.clients))
	for _, c := range h.clients {
		targets = append(targets, c)
	}
	h.mu.RUnlock()

	for _, c := range targets {
		c.SendClose(code, reason)
	}
}

// kickClient tells c it was displaced, then schedules the close. Both are
// queue entries, so the pair lands after anything already enqueued.
func kickClient(c *Client) {
	c.SendEnvelope(v1.Event(v1.TypeAuthKicked, v1.KickedPayload{Reason: v1.ReasonSingleSession}))
	c.SendClose(v1.CloseSingleSession, v1.ReasonSingleSession)
}
