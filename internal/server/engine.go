// Package server implements the sync engine that applies client operations
// to the shared board state and fans the results out through the hub.
package server

import (
	"encoding/json"
	"log/slog"
	"sync"
	"time"

	"github.com/Tyrowin/syncboard/internal/board"
	"github.com/Tyrowin/syncboard/internal/config"
)

// EngineOptions carries the optional collaborators of an Engine.
type EngineOptions struct {
	Logger  *slog.Logger
	Metrics *Metrics
	// Clock stamps messages and drives file expiry. Defaults to time.Now.
	Clock func() time.Time
}

// Engine owns the message log and file store of the session.
//
// Every mutation (append, delete, clear, upload and the sweep it triggers)
// runs under one mutex, and the resulting event is handed to the hub before
// the mutex is released. Clients therefore observe events in mutation order.
type Engine struct {
	mu       sync.Mutex
	messages *board.Log
	files    *board.FileStore
	hub      *Hub
	cfg      *config.Config
	logger   *slog.Logger
	metrics  *Metrics
}

// NewEngine creates an Engine that broadcasts through hub. A nil cfg uses
// config.Default.
func NewEngine(cfg *config.Config, hub *Hub, opts EngineOptions) *Engine {
	if cfg == nil {
		cfg = config.Default()
	}
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	if opts.Metrics == nil {
		opts.Metrics = hub.metrics
	}
	if opts.Clock == nil {
		opts.Clock = time.Now
	}

	e := &Engine{
		hub:     hub,
		cfg:     cfg,
		logger:  opts.Logger.With("component", "engine"),
		metrics: opts.Metrics,
	}
	e.messages = board.NewLog(board.WithLogClock(opts.Clock))
	e.files = board.NewFileStore(
		board.WithClock(opts.Clock),
		board.WithEvictHook(e.onEvict),
	)
	return e
}

// Join moves a freshly upgraded client to the active state: it registers the
// client with a history event as its first payload. The snapshot is read
// under the engine lock so no mutation can slip between history and the
// live events that follow it. It returns false when the hub no longer
// accepts clients.
func (e *Engine) Join(c *Client) bool {
	e.mu.Lock()
	defer e.mu.Unlock()

	payload, err := json.Marshal(HistoryEvent{Type: EventHistory, Items: e.messages.Snapshot()})
	if err != nil {
		e.logger.Error("encode history", "error", err)
		payload = nil
	}
	return e.hub.Register(c, payload)
}

// Leave unregisters a client whose connection closed.
func (e *Engine) Leave(c *Client) {
	e.hub.Unregister(c)
}

// Handle applies one inbound frame from c. Frames that cannot be decoded or
// do not satisfy the operation's preconditions are dropped without a reply;
// the connection stays open.
func (e *Engine) Handle(c *Client, raw []byte) {
	var in Inbound
	if err := json.Unmarshal(raw, &in); err != nil {
		e.drop(c, dropInvalidJSON, err)
		return
	}

	switch in.Type {
	case EventMessage:
		draft, err := in.draft()
		if err != nil {
			e.drop(c, dropInvalidMessage, err)
			return
		}
		if _, err := e.Post(draft); err != nil {
			e.drop(c, dropRejected, err)
		}
	case EventDelete:
		if in.ID == nil {
			e.drop(c, dropMissingID, nil)
			return
		}
		e.Delete(*in.ID)
	case EventClear:
		e.Clear()
	default:
		e.drop(c, dropUnknownType, nil)
	}
}

// Post appends a message and broadcasts it. For file messages the size
// recorded by the store wins over the client-reported one while the blob is
// still present.
func (e *Engine) Post(d board.Draft) (board.Message, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	if d.Kind == board.KindFile {
		if blob, err := e.files.Get(d.FileID); err == nil {
			d.Size = blob.Size
		}
	}

	msg, err := e.messages.Append(d)
	if err != nil {
		return board.Message{}, err
	}
	e.metrics.MessagesAppended.WithLabelValues(string(msg.Kind)).Inc()
	e.metrics.MessagesLive.Set(float64(e.messages.Len()))

	e.broadcast(EventMessage, MessageEvent{Type: EventMessage, Item: msg})
	return msg, nil
}

// Delete removes a message and broadcasts the deletion, whether or not the
// id was still present. It reports whether a message was removed.
func (e *Engine) Delete(id int64) bool {
	e.mu.Lock()
	defer e.mu.Unlock()

	removed := e.messages.Delete(id)
	e.metrics.MessagesLive.Set(float64(e.messages.Len()))

	e.broadcast(EventDelete, DeleteEvent{Type: EventDelete, ID: id})
	return removed
}

// Clear empties the log, broadcasts a clear event and returns how many
// messages were removed.
func (e *Engine) Clear() int {
	e.mu.Lock()
	defer e.mu.Unlock()

	n := e.messages.Clear()
	e.metrics.MessagesLive.Set(0)
	e.logger.Info("board cleared", "removed", n)

	e.broadcast(EventClear, ClearEvent{Type: EventClear})
	return n
}

// Upload stores a file and returns its record. It shares the engine lock
// with the message path.
func (e *Engine) Upload(data []byte, filename string) board.FileBlob {
	e.mu.Lock()
	defer e.mu.Unlock()

	blob := e.files.Put(data, filename)
	e.metrics.Uploads.Inc()
	e.metrics.BlobsStored.Set(float64(e.files.Len()))
	e.metrics.BlobBytes.Set(float64(e.files.Bytes()))
	e.logger.Info("file uploaded", "file_id", blob.ID, "filename", blob.Filename, "size", blob.Size)
	return blob
}

// File returns an uploaded blob. board.ErrNotFound means it never existed or
// has expired.
func (e *Engine) File(id string) (board.FileBlob, error) {
	return e.files.Get(id)
}

// History returns the current log contents in append order.
func (e *Engine) History() []board.Message {
	return e.messages.Snapshot()
}

// broadcast encodes v and hands it to the hub. Callers hold e.mu.
func (e *Engine) broadcast(eventType string, v any) {
	payload, err := json.Marshal(v)
	if err != nil {
		e.logger.Error("encode event", "type", eventType, "error", err)
		return
	}
	e.hub.Broadcast(payload)
	e.metrics.EventsBroadcast.WithLabelValues(eventType).Inc()
}

func (e *Engine) drop(c *Client, reason string, err error) {
	e.metrics.InboundDropped.WithLabelValues(reason).Inc()

	attrs := []any{"reason", reason}
	if c != nil {
		attrs = append(attrs, "addr", c.Addr())
	}
	if err != nil {
		attrs = append(attrs, "error", err)
	}
	e.logger.Debug("dropped inbound frame", attrs...)
}

// onEvict runs inside FileStore sweeps, which only happen under e.mu.
func (e *Engine) onEvict(blob board.FileBlob) {
	e.metrics.BlobsEvicted.Inc()
	e.metrics.BlobsStored.Set(float64(e.files.Len()))
	e.metrics.BlobBytes.Set(float64(e.files.Bytes()))
	e.logger.Debug("file expired", "file_id", blob.ID, "filename", blob.Filename)
}
