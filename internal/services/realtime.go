package services

import (
	"encoding/json"
	"log/slog"
	"sync"

	"github.com/AnshRaj112/tasklist-backend/internal/models"
	"github.com/google/uuid"
)

// DefaultClientQueue is the number of frames buffered per connection.
const DefaultClientQueue = 32

// Client is one open push-channel connection. It starts unbound and only
// receives snapshots after it is bound to an owner key.
type Client struct {
	ID uuid.UUID

	mu       sync.RWMutex
	ownerKey string

	send      chan []byte
	done      chan struct{}
	closeOnce sync.Once
}

// OwnerKey returns the bound owner key, or "" when unbound.
func (c *Client) OwnerKey() string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.ownerKey
}

// Send is drained by the connection's single writer goroutine.
func (c *Client) Send() <-chan []byte {
	return c.send
}

// Done is closed when the connection should shut down.
func (c *Client) Done() <-chan struct{} {
	return c.done
}

// Enqueue queues a frame without blocking. It returns false if the
// connection is closed or its queue is full.
func (c *Client) Enqueue(frame []byte) bool {
	select {
	case <-c.done:
		return false
	default:
	}
	select {
	case c.send <- frame:
		return true
	default:
		return false
	}
}

// Close signals the writer to stop. Safe to call more than once.
func (c *Client) Close() {
	c.closeOnce.Do(func() { close(c.done) })
}

// Hub tracks open connections and fans snapshots out to the connections
// bound to one owner key.
type Hub struct {
	mu        sync.RWMutex
	clients   map[uuid.UUID]*Client
	queueSize int
	log       *slog.Logger
}

func NewHub(log *slog.Logger, queueSize int) *Hub {
	if queueSize <= 0 {
		queueSize = DefaultClientQueue
	}
	return &Hub{
		clients:   make(map[uuid.UUID]*Client),
		queueSize: queueSize,
		log:       log.With("component", "hub"),
	}
}

// Register adds a new unbound connection.
func (h *Hub) Register() *Client {
	c := &Client{
		ID:   uuid.New(),
		send: make(chan []byte, h.queueSize),
		done: make(chan struct{}),
	}
	h.mu.Lock()
	h.clients[c.ID] = c
	h.mu.Unlock()
	return c
}

// Unregister removes and closes a connection.
func (h *Hub) Unregister(c *Client) {
	h.mu.Lock()
	delete(h.clients, c.ID)
	h.mu.Unlock()
	c.Close()
}

// Bind attaches ownerKey to the connection, replacing any earlier binding.
func (h *Hub) Bind(c *Client, ownerKey string) {
	c.mu.Lock()
	c.ownerKey = ownerKey
	c.mu.Unlock()
}

// Unbind clears the connection's owner key.
func (h *Hub) Unbind(c *Client) {
	h.Bind(c, "")
}

// Broadcast sends the task list to every connection bound to ownerKey.
// An empty owner key is rejected; it would otherwise reach unbound
// connections or everyone. A connection whose queue is full is closed and
// has to re-fetch over HTTP.
func (h *Hub) Broadcast(ownerKey string, tasks []models.Task) {
	if ownerKey == "" {
		h.log.Error("broadcast without owner key rejected")
		return
	}
	if tasks == nil {
		tasks = []models.Task{}
	}
	frame, err := json.Marshal(tasks)
	if err != nil {
		h.log.Error("marshal snapshot", "error", err)
		return
	}

	h.mu.RLock()
	defer h.mu.RUnlock()

	for _, c := range h.clients {
		if c.OwnerKey() != ownerKey {
			continue
		}
		if !c.Enqueue(frame) {
			h.log.Warn("dropping slow connection", "client", c.ID)
			c.Close()
		}
	}
}

// Count returns the number of connections bound to ownerKey.
func (h *Hub) Count(ownerKey string) int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	n := 0
	for _, c := range h.clients {
		if c.OwnerKey() == ownerKey {
			n++
		}
	}
	return n
}

// CloseAll closes every connection. Used on shutdown.
func (h *Hub) CloseAll() {
	h.mu.Lock()
	defer h.mu.Unlock()
	for id, c := range h.clients {
		c.Close()
		delete(h.clients, id)
	}
}
