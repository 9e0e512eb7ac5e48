// Package testhelpers provides common utilities for testing the SyncBoard
// server: running a full board behind httptest, dialing WebSocket clients and
// reading board events.
package testhelpers

import (
	"bytes"
	"encoding/json"
	"io"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/require"

	"github.com/Tyrowin/syncboard/internal/config"
	"github.com/Tyrowin/syncboard/internal/logging"
	"github.com/Tyrowin/syncboard/internal/server"
)

// DefaultTimeout bounds every blocking read in the helpers.
const DefaultTimeout = 2 * time.Second

// Board is a running board session behind an httptest server.
type Board struct {
	Server  *httptest.Server
	Hub     *server.Hub
	Engine  *server.Engine
	Metrics *server.Metrics
	Config  *config.Config
}

// StartBoard starts a board with default configuration adjusted by
// customize. The server and hub are stopped on test cleanup.
func StartBoard(t *testing.T, customize func(cfg *config.Config)) *Board {
	t.Helper()

	cfg := config.Default()
	if customize != nil {
		customize(cfg)
	}
	cfg.Sanitize()

	logger := logging.Discard()
	metrics := server.NewMetrics(nil)
	hub := server.NewHub(logger, metrics)
	go hub.Run()

	engine := server.NewEngine(cfg, hub, server.EngineOptions{Logger: logger, Metrics: metrics})
	handlers := server.NewHandlers(engine)
	ts := httptest.NewServer(server.SetupRoutes(handlers))

	t.Cleanup(func() {
		ts.Close()
		_ = hub.Shutdown(DefaultTimeout)
	})

	return &Board{Server: ts, Hub: hub, Engine: engine, Metrics: metrics, Config: cfg}
}

// WebSocketURL returns the ws:// address of the board socket.
func (b *Board) WebSocketURL() string {
	return "ws" + strings.TrimPrefix(b.Server.URL, "http") + "/ws"
}

// WaitForClients blocks until the hub has n registered clients.
func (b *Board) WaitForClients(t *testing.T, n int) {
	t.Helper()
	require.Eventually(t, func() bool {
		return b.Hub.ClientCount() == n
	}, DefaultTimeout, 5*time.Millisecond, "expected %d clients", n)
}

// ConnectWebSocket creates a WebSocket connection to url with the given
// Origin header. An empty origin sends none.
func ConnectWebSocket(url, origin string) (*websocket.Conn, *http.Response, error) {
	dialer := websocket.Dialer{
		HandshakeTimeout: 5 * time.Second,
	}

	headers := http.Header{}
	if origin != "" {
		headers.Set("Origin", origin)
	}

	conn, resp, err := dialer.Dial(url, headers)
	if resp != nil && resp.Body != nil {
		_ = resp.Body.Close()
	}
	return conn, resp, err
}

// Join dials the board, reads the history event and returns the connection
// together with the history items.
func (b *Board) Join(t *testing.T) (*websocket.Conn, []map[string]any) {
	t.Helper()

	conn, _, err := ConnectWebSocket(b.WebSocketURL(), "")
	require.NoError(t, err)
	t.Cleanup(func() { _ = conn.Close() })

	event := ReadEvent(t, conn)
	require.Equal(t, "history", event["type"])

	rawItems, ok := event["items"].([]any)
	require.True(t, ok, "history items must be an array")
	items := make([]map[string]any, 0, len(rawItems))
	for _, raw := range rawItems {
		item, ok := raw.(map[string]any)
		require.True(t, ok)
		items = append(items, item)
	}
	return conn, items
}

// ReadEvent reads one JSON event from conn.
func ReadEvent(t *testing.T, conn *websocket.Conn) map[string]any {
	t.Helper()

	require.NoError(t, conn.SetReadDeadline(time.Now().Add(DefaultTimeout)))
	_, data, err := conn.ReadMessage()
	require.NoError(t, err)

	var event map[string]any
	require.NoError(t, json.Unmarshal(data, &event), "frame must be a single JSON document: %s", data)
	return event
}

// ExpectNoEvent fails if anything arrives on conn within timeout.
func ExpectNoEvent(t *testing.T, conn *websocket.Conn, timeout time.Duration) {
	t.Helper()

	require.NoError(t, conn.SetReadDeadline(time.Now().Add(timeout)))
	_, data, err := conn.ReadMessage()
	require.Error(t, err, "unexpected event: %s", data)
}

// SendJSON writes v as one text frame.
func SendJSON(t *testing.T, conn *websocket.Conn, v any) {
	t.Helper()
	require.NoError(t, conn.WriteJSON(v))
}

// SendText posts a text message.
func SendText(t *testing.T, conn *websocket.Conn, sender, content string) {
	t.Helper()
	SendJSON(t, conn, map[string]any{
		"type":     "message",
		"msg_type": "text",
		"sender":   sender,
		"content":  content,
	})
}

// Upload posts data as the multipart "file" field and returns the response.
func Upload(t *testing.T, baseURL, filename string, data []byte) *http.Response {
	t.Helper()

	var body bytes.Buffer
	form := multipart.NewWriter(&body)
	part, err := form.CreateFormFile("file", filename)
	require.NoError(t, err)
	_, err = part.Write(data)
	require.NoError(t, err)
	require.NoError(t, form.Close())

	resp, err := http.Post(baseURL+"/upload", form.FormDataContentType(), &body)
	require.NoError(t, err)
	t.Cleanup(func() { _ = resp.Body.Close() })
	return resp
}

// MakeRequest executes an HTTP request and returns the response. The body is
// closed on test cleanup.
func MakeRequest(t *testing.T, method, url string, body io.Reader) *http.Response {
	t.Helper()

	client := &http.Client{
		Timeout: 5 * time.Second,
	}

	if body == nil {
		body = http.NoBody
	}
	req, err := http.NewRequest(method, url, body)
	require.NoError(t, err)

	resp, err := client.Do(req)
	require.NoError(t, err)
	t.Cleanup(func() { _ = resp.Body.Close() })
	return resp
}

// ReadBody reads the whole response body.
func ReadBody(t *testing.T, resp *http.Response) []byte {
	t.Helper()
	data, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	return data
}
