// Package server implements the HTTP and WebSocket surface of SyncBoard.
//
// The Hub is the connection registry, the Engine applies board operations to
// the message log and file store and broadcasts the results, and Handlers
// expose both over HTTP. Each concern lives in its own file.
package server
