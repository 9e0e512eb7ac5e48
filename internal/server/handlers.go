// Package server exposes HTTP handlers, including WebSocket upgrades, file
// upload and download, health checks, the board page and its QR code.
package server

import (
	"bytes"
	_ "embed"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"mime"
	"net/http"
	"strconv"
	"time"

	"github.com/gorilla/websocket"
	"github.com/skip2/go-qrcode"

	"github.com/Tyrowin/syncboard/internal/board"
)

//go:embed web/index.html
var indexPage []byte

// Multipart parts above this size are spooled to temporary files.
const uploadMemoryLimit = 8 << 20

const qrImageSize = 256

// UploadResponse is returned by the upload endpoint.
type UploadResponse struct {
	FileID   string `json:"file_id"`
	Filename string `json:"filename"`
	Size     int64  `json:"size"`
}

// Handlers serves the HTTP surface of one board session.
type Handlers struct {
	engine   *Engine
	upgrader websocket.Upgrader
	// BoardURL is encoded into the QR image. Empty uses the request host.
	BoardURL string
	metrics  http.Handler
	log      *slog.Logger
}

// NewHandlers creates the handlers for engine.
func NewHandlers(engine *Engine) *Handlers {
	logger := engine.logger.With("component", "http")
	policy := newOriginPolicy(engine.cfg.AllowedOrigins, logger)

	return &Handlers{
		engine: engine,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin:     policy.check,
		},
		metrics: engine.metrics.Handler(),
		log:     logger,
	}
}

// WebSocket upgrades the request and joins the new client to the board. The
// client receives the history before any live event.
func (h *Handlers) WebSocket(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed. WebSocket endpoint only accepts GET requests.", http.StatusMethodNotAllowed)
		return
	}

	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.log.Info("websocket upgrade failed", "addr", r.RemoteAddr, "error", err)
		return
	}

	// The hub launches the pump goroutines once the client is registered.
	if !h.engine.Join(NewClient(conn, h.engine, r.RemoteAddr)) {
		h.log.Info("rejecting websocket client during shutdown", "addr", r.RemoteAddr)
		_ = conn.WriteControl(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseGoingAway, "server shutting down"),
			time.Now().Add(time.Second))
		_ = conn.Close()
	}
}

// Health returns a plain text liveness message.
func (h *Handlers) Health(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	_, _ = fmt.Fprint(w, "SyncBoard server is running!")
}

// Index serves the board page.
func (h *Handlers) Index(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	if _, err := w.Write(indexPage); err != nil {
		h.log.Warn("error writing board page", "error", err)
	}
}

// Upload stores the multipart "file" field and returns its id.
func (h *Handlers) Upload(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, h.engine.cfg.MaxUploadSize)

	if err := r.ParseMultipartForm(uploadMemoryLimit); err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			http.Error(w, "File too large", http.StatusRequestEntityTooLarge)
			return
		}
		http.Error(w, "Invalid upload", http.StatusBadRequest)
		return
	}
	defer func() {
		if err := r.MultipartForm.RemoveAll(); err != nil {
			h.log.Warn("error removing multipart temp files", "error", err)
		}
	}()

	file, header, err := r.FormFile("file")
	if err != nil {
		http.Error(w, "No file provided", http.StatusBadRequest)
		return
	}
	defer file.Close()

	if header.Filename == "" {
		http.Error(w, "No file selected", http.StatusBadRequest)
		return
	}

	data, err := io.ReadAll(file)
	if err != nil {
		h.log.Warn("error reading uploaded file", "filename", header.Filename, "error", err)
		http.Error(w, "Invalid upload", http.StatusBadRequest)
		return
	}

	blob := h.engine.Upload(data, header.Filename)
	h.writeJSON(w, http.StatusOK, UploadResponse{
		FileID:   blob.ID,
		Filename: blob.Filename,
		Size:     blob.Size,
	})
}

// File downloads a stored blob as an attachment.
func (h *Handlers) File(w http.ResponseWriter, r *http.Request) {
	blob, err := h.engine.File(r.PathValue("id"))
	if errors.Is(err, board.ErrNotFound) {
		http.Error(w, "File not found or expired", http.StatusNotFound)
		return
	}
	if err != nil {
		http.Error(w, "Internal server error", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "application/octet-stream")
	w.Header().Set("Content-Length", strconv.FormatInt(blob.Size, 10))
	if disposition := mime.FormatMediaType("attachment", map[string]string{"filename": blob.Filename}); disposition != "" {
		w.Header().Set("Content-Disposition", disposition)
	} else {
		w.Header().Set("Content-Disposition", "attachment")
	}
	if _, err := io.Copy(w, bytes.NewReader(blob.Data)); err != nil {
		h.log.Info("error writing file", "file_id", blob.ID, "error", err)
	}
}

// QR renders the board URL as a PNG QR code.
func (h *Handlers) QR(w http.ResponseWriter, r *http.Request) {
	target := h.BoardURL
	if target == "" {
		target = "http://" + r.Host + "/"
	}

	png, err := qrcode.Encode(target, qrcode.Medium, qrImageSize)
	if err != nil {
		h.log.Error("error encoding qr code", "url", target, "error", err)
		http.Error(w, "Internal server error", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "image/png")
	w.Header().Set("Cache-Control", "no-store")
	_, _ = w.Write(png)
}

// Metrics serves the Prometheus registry.
func (h *Handlers) Metrics(w http.ResponseWriter, r *http.Request) {
	h.metrics.ServeHTTP(w, r)
}

func (h *Handlers) writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		h.log.Warn("error encoding response", "error", err)
	}
}
