// Package board holds the shared state of a SyncBoard session: the ordered
// message log and the ephemeral file store.
//
// Both types are safe for concurrent use on their own. Callers that need
// several mutations to be mutually exclusive with each other (the sync
// engine in package server) serialize them with their own lock.
package board
