// Package server coordinates client registration, event fan-out, and
// connection cleanup for the SyncBoard WebSocket session via the Hub type.
package server

import (
	"context"
	"log/slog"
	"sync"
	"time"
)

// registration asks the hub to add a client and queue its first payload.
type registration struct {
	client  *Client
	initial []byte
}

// delivery is one payload for a single client, or for every client when
// client is nil.
type delivery struct {
	client  *Client
	payload []byte
}

// Hub is the connection registry. It tracks every live client and fans
// events out to them.
//
// All membership changes and deliveries are processed in order by the Run
// goroutine, so a payload queued by Register always reaches the client before
// any payload broadcast after Register returned.
type Hub struct {
	clients    map[*Client]bool
	register   chan registration
	unregister chan *Client
	broadcast  chan delivery
	mutex      sync.RWMutex
	wg         sync.WaitGroup
	ctx        context.Context
	cancel     context.CancelFunc
	done       chan struct{}
	log        *slog.Logger
	metrics    *Metrics
}

// NewHub creates a Hub. A nil logger uses slog.Default and nil metrics are
// replaced with an unregistered set.
func NewHub(logger *slog.Logger, metrics *Metrics) *Hub {
	if logger == nil {
		logger = slog.Default()
	}
	if metrics == nil {
		metrics = NewMetrics(nil)
	}
	ctx, cancel := context.WithCancel(context.Background())
	return &Hub{
		clients:    make(map[*Client]bool),
		register:   make(chan registration),
		unregister: make(chan *Client),
		broadcast:  make(chan delivery),
		ctx:        ctx,
		cancel:     cancel,
		done:       make(chan struct{}),
		log:        logger.With("component", "hub"),
		metrics:    metrics,
	}
}

// Register adds client to the registry. When initial is non-nil it is queued
// to client before anything broadcast afterwards. It returns false when the
// hub is shutting down and the client was not registered.
func (h *Hub) Register(client *Client, initial []byte) bool {
	select {
	case h.register <- registration{client: client, initial: initial}:
		return true
	case <-h.ctx.Done():
		return false
	}
}

// Unregister removes client. Removing an unknown client is a no-op.
func (h *Hub) Unregister(client *Client) {
	select {
	case h.unregister <- client:
	case <-h.ctx.Done():
	}
}

// Broadcast queues payload to every registered client. Clients that cannot
// accept it are closed and removed; the caller never sees an error.
func (h *Hub) Broadcast(payload []byte) {
	select {
	case h.broadcast <- delivery{payload: payload}:
	case <-h.ctx.Done():
	}
}

// SendTo queues payload to a single client with the same failure handling as
// Broadcast.
func (h *Hub) SendTo(client *Client, payload []byte) {
	if client == nil {
		return
	}
	select {
	case h.broadcast <- delivery{client: client, payload: payload}:
	case <-h.ctx.Done():
	}
}

// ClientCount returns the number of registered clients.
func (h *Hub) ClientCount() int {
	h.mutex.RLock()
	defer h.mutex.RUnlock()
	return len(h.clients)
}

func (h *Hub) safeSend(client *Client, message []byte) bool {
	defer func() {
		if r := recover(); r != nil {
			h.log.Error("recovered from panic in safeSend", "panic", r)
		}
	}()

	h.mutex.RLock()
	defer h.mutex.RUnlock()

	if _, exists := h.clients[client]; !exists || client.closed {
		return false
	}

	// A full buffer means the peer is not keeping up; treat it as failed.
	select {
	case client.send <- message:
		return true
	default:
		return false
	}
}

// Run starts the hub's main event loop. It should be called in a separate
// goroutine and returns after Shutdown.
func (h *Hub) Run() {
	defer close(h.done)

	for {
		select {
		case <-h.ctx.Done():
			h.shutdownClients()
			return

		case reg := <-h.register:
			h.handleRegister(reg)

		case client := <-h.unregister:
			h.removeClients([]*Client{client}, "disconnected")

		case d := <-h.broadcast:
			if d.client != nil {
				h.deliver([]*Client{d.client}, d.payload)
				continue
			}
			h.deliver(h.getClientSnapshot(), d.payload)
		}
	}
}

func (h *Hub) handleRegister(reg registration) {
	client := reg.client
	if client == nil {
		h.log.Warn("received nil client registration; skipping")
		return
	}

	h.mutex.Lock()
	client.closed = false
	h.clients[client] = true
	clientCount := len(h.clients)
	h.mutex.Unlock()
	h.metrics.ConnectionsActive.Set(float64(clientCount))
	h.log.Info("client registered", "addr", client.Addr(), "clients", clientCount)

	if reg.initial != nil {
		h.deliver([]*Client{client}, reg.initial)
	}

	if client.conn == nil {
		return
	}
	h.wg.Add(2)
	go func() {
		defer h.wg.Done()
		client.writePump()
	}()
	go func() {
		defer h.wg.Done()
		client.readPump()
	}()
}

// getClientSnapshot returns a thread-safe snapshot of all current clients
func (h *Hub) getClientSnapshot() []*Client {
	h.mutex.RLock()
	defer h.mutex.RUnlock()

	clients := make([]*Client, 0, len(h.clients))
	for client := range h.clients {
		clients = append(clients, client)
	}
	return clients
}

// deliver sends payload to each client and removes the ones that failed.
func (h *Hub) deliver(clients []*Client, payload []byte) {
	var failed []*Client
	for _, client := range clients {
		if !h.safeSend(client, payload) {
			failed = append(failed, client)
		}
	}
	if len(failed) > 0 {
		h.metrics.PeersDropped.Add(float64(len(failed)))
		h.removeClients(failed, "send failed")
	}
}

// removeClients unregisters clients and closes their send channels, which
// makes their write pumps close the connection.
func (h *Hub) removeClients(clients []*Client, reason string) {
	h.mutex.Lock()
	var channelsToClose []chan []byte
	var removed []*Client
	for _, client := range clients {
		if _, exists := h.clients[client]; exists {
			delete(h.clients, client)
			client.closed = true
			channelsToClose = append(channelsToClose, client.send)
			removed = append(removed, client)
		}
	}
	clientCount := len(h.clients)
	h.mutex.Unlock()

	for _, ch := range channelsToClose {
		close(ch)
	}
	if len(removed) == 0 {
		return
	}
	h.metrics.ConnectionsActive.Set(float64(clientCount))
	for _, client := range removed {
		h.log.Info("client unregistered", "addr", client.Addr(), "reason", reason, "clients", clientCount)
	}
}

// shutdownClients closes every connection and send channel.
func (h *Hub) shutdownClients() {
	h.log.Info("shutting down all client connections")

	clients := h.getClientSnapshot()
	for _, client := range clients {
		if client.conn == nil {
			continue
		}
		if err := client.conn.Close(); err != nil && !isExpectedCloseError(err) {
			h.log.Warn("error closing client connection", "addr", client.Addr(), "error", err)
		}
	}
	h.removeClients(clients, "shutdown")

	h.log.Info("closed client connections", "count", len(clients))
}

// Shutdown stops the hub and waits for every client goroutine to finish, or
// until the timeout is reached.
func (h *Hub) Shutdown(timeout time.Duration) error {
	h.log.Info("initiating hub shutdown")
	h.cancel()

	select {
	case <-h.done:
	case <-time.After(timeout):
		return context.DeadlineExceeded
	}

	done := make(chan struct{})
	go func() {
		h.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		h.log.Info("hub shutdown completed")
		return nil
	case <-time.After(timeout):
		h.log.Warn("hub shutdown timeout reached, some goroutines may still be running")
		return context.DeadlineExceeded
	}
}
