package broadcast

import (
	"encoding/json"
	"errors"
	"log"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gorilla/websocket"
)

// ErrTooManyConnections is returned by AddClient once the configured
// connection cap is reached.
var ErrTooManyConnections = errors.New("too many WebSocket connections")

// Heartbeat tuning (spec.md §4.5/§6): ping every 20s, drop a client that
// hasn't answered with a pong within 10s of a ping.
const (
	pingInterval = 20 * time.Second
	pongWait     = 10 * time.Second
)

// UserActionFunc is invoked with the raw action string (e.g. "Ya",
// "Dismiss") whenever a client sends an inbound user_action frame.
type UserActionFunc func(action string)

// Client is a single connected subscriber.
type Client struct {
	conn *websocket.Conn
	send chan []byte
}

func newClient(conn *websocket.Conn) *Client {
	c := &Client{conn: conn, send: make(chan []byte, 64)}
	return c
}

func (c *Client) writePump() {
	ticker := time.NewTicker(pingInterval)
	defer func() {
		ticker.Stop()
		c.conn.Close()
	}()

	for {
		select {
		case msg, ok := <-c.send:
			if !ok {
				c.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := c.conn.WriteMessage(websocket.TextMessage, msg); err != nil {
				return
			}
		case <-ticker.C:
			c.conn.SetWriteDeadline(time.Now().Add(pongWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

func (c *Client) close() {
	close(c.send)
}

// Broadcaster fans out Update/Snapshot messages to every connected client.
// Single-writer semantics per client via a buffered send channel; a client
// that can't keep up is dropped rather than blocking the broadcast.
type Broadcaster struct {
	mu       sync.RWMutex
	clients  map[*Client]bool
	maxConns int
	seq      atomic.Uint64

	onUserAction UserActionFunc
}

// New returns a Broadcaster accepting up to maxConns concurrent clients (0
// means unlimited).
func New(maxConns int) *Broadcaster {
	return &Broadcaster{
		clients:  make(map[*Client]bool),
		maxConns: maxConns,
	}
}

// SetUserActionHandler registers the callback invoked for inbound
// user_action frames. Must be called before clients connect to avoid
// missing early actions.
func (b *Broadcaster) SetUserActionHandler(fn UserActionFunc) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.onUserAction = fn
}

// AddClient registers conn as a new subscriber and starts its write pump
// and read loop (read loop only drains pong/close frames plus inbound
// frames, dispatched to the user-action handler).
func (b *Broadcaster) AddClient(conn *websocket.Conn) (*Client, error) {
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
	b.mu.Unlock()

	go c.writePump()
	go b.readPump(c)

	return c, nil
}

func (b *Broadcaster) readPump(c *Client) {
	defer b.RemoveClient(c)
	c.conn.SetReadDeadline(time.Now().Add(pingInterval + pongWait))
	c.conn.SetPongHandler(func(string) error {
		return c.conn.SetReadDeadline(time.Now().Add(pingInterval + pongWait))
	})
	for {
		_, data, err := c.conn.ReadMessage()
		if err != nil {
			return
		}

		var frame InboundFrame
		if err := json.Unmarshal(data, &frame); err != nil {
			continue
		}

		switch frame.Type {
		case InboundUserAction:
			b.mu.RLock()
			handler := b.onUserAction
			b.mu.RUnlock()
			if handler != nil {
				handler(frame.Data)
			}
		case InboundPing:
			// Pure liveness frame; no action needed beyond having read it.
		}
	}
}

// RemoveClient disconnects and forgets c. Safe to call more than once.
func (b *Broadcaster) RemoveClient(c *Client) {
	b.mu.Lock()
	if _, ok := b.clients[c]; ok {
		delete(b.clients, c)
		c.close()
	}
	b.mu.Unlock()
}

// BroadcastUpdate fans an FSM Update out to every connected client.
func (b *Broadcaster) BroadcastUpdate(u UpdatePayload) {
	b.broadcast(Message{Type: MsgUpdate, Payload: u})
}

// BroadcastSnapshot fans a Context Snapshot out to every connected client
// (debug surface only, never itself an approval input).
func (b *Broadcaster) BroadcastSnapshot(s SnapshotPayload) {
	b.broadcast(Message{Type: MsgSnapshot, Payload: s})
}

// BroadcastError reports a server-side error to every connected client.
func (b *Broadcaster) BroadcastError(message string) {
	b.broadcast(Message{Type: MsgError, Payload: ErrorPayload{Message: message}})
}

func (b *Broadcaster) broadcast(msg Message) {
	msg.Seq = b.seq.Add(1)
	data, err := json.Marshal(msg)
	if err != nil {
		log.Printf("broadcast marshal error: %v", err)
		return
	}

	b.mu.RLock()
	clients := make([]*Client, 0, len(b.clients))
	for c := range b.clients {
		clients = append(clients, c)
	}
	b.mu.RUnlock()

	for _, c := range clients {
		select {
		case c.send <- data:
		default:
			log.Printf("broadcast: client too slow, disconnecting")
			b.RemoveClient(c)
		}
	}
}

// ClientCount returns the number of currently connected clients.
func (b *Broadcaster) ClientCount() int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.clients)
}

// Stop disconnects every client. The broadcaster itself holds no other
// background resources once stopped.
func (b *Broadcaster) Stop() {
	b.mu.Lock()
	clients := make([]*Client, 0, len(b.clients))
	for c := range b.clients {
		clients = append(clients, c)
	}
	b.clients = make(map[*Client]bool)
	b.mu.Unlock()

	for _, c := range clients {
		c.close()
	}
}
