package server

import (
	"encoding/json"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/Tyrowin/syncboard/internal/config"
	"github.com/Tyrowin/syncboard/internal/logging"
)

const testTimeout = 2 * time.Second

type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func newFakeClock() *fakeClock {
	return &fakeClock{now: time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)}
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

func newRunningHub(t *testing.T) *Hub {
	t.Helper()
	hub := NewHub(logging.Discard(), nil)
	go hub.Run()
	t.Cleanup(func() { _ = hub.Shutdown(testTimeout) })
	return hub
}

func newTestEngine(t *testing.T, clock *fakeClock) *Engine {
	t.Helper()
	opts := EngineOptions{Logger: logging.Discard()}
	if clock != nil {
		opts.Clock = clock.Now
	}
	return NewEngine(config.Default(), newRunningHub(t), opts)
}

// newTestClient returns a client without a connection. The hub delivers to
// its send buffer and never starts pumps for it.
func newTestClient(buffer int) *Client {
	return &Client{
		send: make(chan []byte, buffer),
		addr: "test-client",
		log:  logging.Discard(),
	}
}

func recvPayload(t *testing.T, c *Client) []byte {
	t.Helper()
	select {
	case payload, ok := <-c.send:
		require.True(t, ok, "send channel closed")
		return payload
	case <-time.After(testTimeout):
		t.Fatal("timed out waiting for payload")
		return nil
	}
}

func recvEvent(t *testing.T, c *Client) map[string]any {
	t.Helper()
	var event map[string]any
	require.NoError(t, json.Unmarshal(recvPayload(t, c), &event))
	return event
}

func expectNoPayload(t *testing.T, c *Client) {
	t.Helper()
	select {
	case payload := <-c.send:
		t.Fatalf("unexpected payload: %s", payload)
	case <-time.After(50 * time.Millisecond):
	}
}

func expectClosed(t *testing.T, c *Client) {
	t.Helper()
	require.Eventually(t, func() bool {
		select {
		case _, ok := <-c.send:
			return !ok
		default:
			return false
		}
	}, testTimeout, 5*time.Millisecond, "send channel should be closed")
}
