// Package server wires HTTP handlers into a ServeMux for the SyncBoard
// application via routing helpers.
package server

import "net/http"

// SetupRoutes configures and returns an HTTP ServeMux with all board routes.
func SetupRoutes(h *Handlers) *http.ServeMux {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /{$}", h.Index)
	mux.HandleFunc("GET /healthz", h.Health)
	// Registered without a method so non-GET requests get the explicit 405 body.
	mux.HandleFunc("/ws", h.WebSocket)
	mux.HandleFunc("POST /upload", h.Upload)
	mux.HandleFunc("GET /files/{id}", h.File)
	mux.HandleFunc("GET /qr", h.QR)
	mux.HandleFunc("GET /metrics", h.Metrics)
	return mux
}
