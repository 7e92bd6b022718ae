// Package uiproto is the dashboard's optional detached-UI transport: a
// websocket broadcaster that republishes each StateSnapshot the
// supervisor produces to any connected terminal-UI client, using
// latest-value semantics (a newer snapshot replaces the stored latest
// one; a client too slow to keep up is disconnected rather than allowed
// to stall the supervisor). The broadcaster/client/flush-throttle shape is adapted
// from the teacher's internal/ws Broadcaster, generalized from per-session
// deltas to whole-snapshot publication since the dashboard's in-process
// default run mode makes per-session deltas unnecessary complexity.
package uiproto

import (
	"encoding/json"
	"errors"
	"log"
	"sync"
	"sync/atomic"

	"github.com/gorilla/websocket"

	"github.com/agent-dashboard/dashboard/internal/session"
)

// ErrTooManyConnections is returned by AddClient once MaxConnections is reached.
var ErrTooManyConnections = errors.New("uiproto: too many connections")

// MessageType discriminates the small set of messages sent to UI clients.
type MessageType string

const (
	MsgSnapshot MessageType = "snapshot"
	MsgStatus   MessageType = "status"
	MsgPreview  MessageType = "preview"
)

// PreviewUpdate carries one session's resolved pane preview (§6 Preview
// channel to the UI): either a rendered conversation or a raw pane
// capture. Unlike the snapshot, this is a queue of discrete per-session
// updates, not a single latest-value payload -- a dropped preview is
// simply missing until the next planner pass picks that session again.
type PreviewUpdate struct {
	MultiplexName string `json:"multiplexName"`
	Data          string `json:"data"`
	HasScrollback bool   `json:"hasScrollback"`
}

// Message is the wire envelope sent to every connected UI client.
type Message struct {
	Type    MessageType            `json:"type"`
	Seq     uint64                 `json:"seq"`
	Payload *session.StateSnapshot `json:"payload,omitempty"`
	Preview *PreviewUpdate         `json:"preview,omitempty"`
	Status  string                 `json:"status,omitempty"`
}

type client struct {
	conn *websocket.Conn
	send chan []byte
}

func newClient(conn *websocket.Conn) *client {
	c := &client{conn: conn, send: make(chan []byte, 8)}
	go c.writePump()
	return c
}

func (c *client) writePump() {
	defer c.conn.Close()
	for msg := range c.send {
		if err := c.conn.WriteMessage(websocket.TextMessage, msg); err != nil {
			return
		}
	}
}

func (c *client) close() { close(c.send) }

// Broadcaster republishes the supervisor's latest StateSnapshot to every
// connected client. Unlike the teacher's delta-based broadcaster, there
// is no pending-update queue: Publish always carries the complete
// current state. Each client has an 8-message send buffer; a client too
// slow to drain it is disconnected, and on reconnecting AddClient sends it
// the latest snapshot.
type Broadcaster struct {
	mu       sync.RWMutex
	clients  map[*client]bool
	maxConns int
	latest   *session.StateSnapshot
	seq      atomic.Uint64
}

// NewBroadcaster returns a Broadcaster accepting at most maxConns clients.
func NewBroadcaster(maxConns int) *Broadcaster {
	return &Broadcaster{clients: make(map[*client]bool), maxConns: maxConns}
}

// AddClient registers a new websocket connection and immediately sends
// it the latest known snapshot, if any.
func (b *Broadcaster) AddClient(conn *websocket.Conn) (*client, error) {
	b.mu.Lock()
	if b.maxConns > 0 && len(b.clients) >= b.maxConns {
		b.mu.Unlock()
		conn.WriteMessage(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseTryAgainLater, "too many connections"))
		conn.Close()
		return nil, ErrTooManyConnections
	}
	c := newClient(conn)
	b.clients[c] = true
	latest := b.latest
	b.mu.Unlock()

	if latest != nil {
		b.sendTo(c, Message{Type: MsgSnapshot, Payload: latest})
	}
	return c, nil
}

// RemoveClient disconnects and forgets a client.
func (b *Broadcaster) RemoveClient(c *client) {
	b.mu.Lock()
	if _, ok := b.clients[c]; ok {
		delete(b.clients, c)
		c.close()
	}
	b.mu.Unlock()
}

// Publish stores snap as the latest snapshot and broadcasts it to every
// connected client. It is queued behind any snapshots still buffered for
// a client, which are delivered first; a client whose buffer is full is
// disconnected instead.
func (b *Broadcaster) Publish(snap *session.StateSnapshot) {
	b.mu.Lock()
	b.latest = snap
	clients := make([]*client, 0, len(b.clients))
	for c := range b.clients {
		clients = append(clients, c)
	}
	b.mu.Unlock()

	msg := Message{Type: MsgSnapshot, Payload: snap}
	data, err := b.encode(msg)
	if err != nil {
		log.Printf("uiproto: marshal snapshot: %v", err)
		return
	}
	for _, c := range clients {
		b.deliver(c, data)
	}
}

// PublishPreview fans a single resolved pane preview out to every
// connected client. Unlike Publish, nothing is retained as "latest" --
// a preview not yet delivered to a newly connecting client is simply
// absent until the planner schedules that session again (§4.3 preview
// scheduling runs independently of snapshot publication).
func (b *Broadcaster) PublishPreview(pu PreviewUpdate) {
	b.mu.RLock()
	clients := make([]*client, 0, len(b.clients))
	for c := range b.clients {
		clients = append(clients, c)
	}
	b.mu.RUnlock()

	data, err := b.encode(Message{Type: MsgPreview, Preview: &pu})
	if err != nil {
		log.Printf("uiproto: marshal preview: %v", err)
		return
	}
	for _, c := range clients {
		b.deliver(c, data)
	}
}

func (b *Broadcaster) sendTo(c *client, msg Message) {
	data, err := b.encode(msg)
	if err != nil {
		log.Printf("uiproto: marshal message: %v", err)
		return
	}
	b.deliver(c, data)
}

func (b *Broadcaster) deliver(c *client, data []byte) {
	select {
	case c.send <- data:
	default:
		log.Printf("uiproto: client too slow, disconnecting")
		b.RemoveClient(c)
	}
}

func (b *Broadcaster) encode(msg Message) ([]byte, error) {
	msg.Seq = b.seq.Add(1)
	return json.Marshal(msg)
}

// ClientCount returns the number of currently connected UI clients.
func (b *Broadcaster) ClientCount() int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.clients)
}

// HasSnapshot reports whether any snapshot has been published yet.
func (b *Broadcaster) HasSnapshot() bool {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.latest != nil
}
