package board

import "errors"

var (
	// ErrEmptyText is returned when a text message has no content after trimming.
	ErrEmptyText = errors.New("board: empty text message")

	// ErrMissingFile is returned when a file message lacks a file id or filename.
	ErrMissingFile = errors.New("board: file message requires file id and filename")

	// ErrUnknownKind is returned for a draft whose kind is neither text nor file.
	ErrUnknownKind = errors.New("board: unknown message kind")

	// ErrNotFound is returned when a blob is missing or has been evicted.
	ErrNotFound = errors.New("board: not found")
)
