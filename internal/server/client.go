// Package server manages individual WebSocket clients, handling read/write
// pumps, rate limiting, and lifecycle control for each connection.
package server

import (
	"errors"
	"io"
	"log/slog"
	"time"

	"github.com/gorilla/websocket"
)

// Client is one live WebSocket connection to the board.
type Client struct {
	conn         *websocket.Conn
	send         chan []byte
	engine       *Engine
	addr         string
	closed       bool
	rateLimiter  *rateLimiter
	writeWait    time.Duration
	pongWait     time.Duration
	pingInterval time.Duration
	log          *slog.Logger
}

// NewClient creates a Client for conn that dispatches inbound frames to
// engine. The send channel is buffered to send_buffer_size frames.
func NewClient(conn *websocket.Conn, engine *Engine, addr string) *Client {
	cfg := engine.cfg
	if conn != nil {
		conn.SetReadLimit(cfg.MaxMessageSize)
	}

	var limiter *rateLimiter
	if cfg.RateLimit.Burst > 0 {
		limiter = newRateLimiter(cfg.RateLimit.Burst, cfg.RateLimit.RefillInterval)
	}

	return &Client{
		conn:         conn,
		send:         make(chan []byte, cfg.SendBufferSize),
		engine:       engine,
		addr:         addr,
		rateLimiter:  limiter,
		writeWait:    cfg.WriteWait,
		pongWait:     cfg.PongWait,
		pingInterval: cfg.PingInterval,
		log:          engine.logger.With("addr", addr),
	}
}

// Addr returns the remote address the client connected from.
func (c *Client) Addr() string {
	return c.addr
}

// setupReadConnection arms the read deadline and pong handler when keepalive
// pings are enabled. Without pings the connection is only dropped on a failed
// read or write.
func (c *Client) setupReadConnection() {
	if c.pingInterval <= 0 {
		return
	}
	if err := c.conn.SetReadDeadline(time.Now().Add(c.pongWait)); err != nil {
		c.log.Warn("error setting initial read deadline", "error", err)
	}
	c.conn.SetPongHandler(func(string) error {
		if err := c.conn.SetReadDeadline(time.Now().Add(c.pongWait)); err != nil {
			c.log.Warn("error setting read deadline in pong handler", "error", err)
		}
		return nil
	})
}

// logReadError logs why the read loop stopped.
func (c *Client) logReadError(err error) {
	switch {
	case errors.Is(err, websocket.ErrReadLimit):
		c.log.Info("message exceeded maximum size", "limit", c.engine.cfg.MaxMessageSize)
	case websocket.IsCloseError(err,
		websocket.CloseNormalClosure,
		websocket.CloseGoingAway,
		websocket.CloseNoStatusReceived):
		c.log.Info("client disconnected")
	case errors.Is(err, io.EOF) || isExpectedCloseError(err):
		c.log.Info("client connection closed", "error", err)
	case websocket.IsUnexpectedCloseError(err, websocket.CloseAbnormalClosure):
		c.log.Warn("unexpected websocket close", "error", err)
	default:
		c.log.Info("websocket read error", "error", err)
	}
}

// checkRateLimit reports whether the next frame may be processed.
func (c *Client) checkRateLimit() bool {
	if c.rateLimiter != nil && !c.rateLimiter.allow() {
		c.log.Debug("rate limit exceeded; discarding frame")
		c.engine.metrics.InboundDropped.WithLabelValues(dropRateLimited).Inc()
		return false
	}
	return true
}

func (c *Client) readPump() {
	defer func() {
		c.engine.Leave(c)
		if err := c.conn.Close(); err != nil && !isExpectedCloseError(err) {
			c.log.Warn("error closing connection in readPump", "error", err)
		}
	}()

	c.setupReadConnection()

	for {
		_, raw, err := c.conn.ReadMessage()
		if err != nil {
			c.logReadError(err)
			return
		}

		if !c.checkRateLimit() {
			continue
		}

		c.engine.Handle(c, raw)
	}
}

func (c *Client) writePump() {
	var ping <-chan time.Time
	if c.pingInterval > 0 {
		ticker := time.NewTicker(c.pingInterval)
		defer ticker.Stop()
		ping = ticker.C
	}
	defer c.closeConnection()

	for c.processWriteEvent(ping) {
	}
}

// processWriteEvent waits for the next write event and returns false when the
// pump should stop processing.
func (c *Client) processWriteEvent(ping <-chan time.Time) bool {
	select {
	case message, ok := <-c.send:
		return c.handleMessage(message, ok)
	case <-ping:
		return c.handlePing()
	}
}

// closeConnection safely closes the WebSocket connection with proper error handling
func (c *Client) closeConnection() {
	if err := c.conn.Close(); err != nil && !isExpectedCloseError(err) {
		c.log.Warn("error closing connection in writePump", "error", err)
	}
}

// handleMessage writes one outgoing event and returns false if the
// connection should be closed. Each event is its own frame because browser
// clients parse every frame as a single JSON document.
func (c *Client) handleMessage(message []byte, ok bool) bool {
	if err := c.conn.SetWriteDeadline(time.Now().Add(c.writeWait)); err != nil {
		c.log.Warn("error setting write deadline", "error", err)
		return false
	}

	if !ok {
		return c.writeCloseMessage()
	}

	if err := c.conn.WriteMessage(websocket.TextMessage, message); err != nil {
		if !isExpectedCloseError(err) {
			c.log.Info("error writing message", "error", err)
		}
		return false
	}
	return true
}

// writeCloseMessage sends a close message to the client
func (c *Client) writeCloseMessage() bool {
	if err := c.conn.WriteMessage(websocket.CloseMessage, []byte{}); err != nil {
		if !isExpectedCloseError(err) {
			c.log.Warn("error writing close message", "error", err)
		}
	}
	return false
}

// handlePing sends a ping message to keep the connection alive
func (c *Client) handlePing() bool {
	if err := c.conn.SetWriteDeadline(time.Now().Add(c.writeWait)); err != nil {
		c.log.Warn("error setting write deadline for ping", "error", err)
		return false
	}
	if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
		c.log.Info("error writing ping message", "error", err)
		return false
	}
	return true
}
