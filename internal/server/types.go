// Package server defines the wire events exchanged with board clients and
// utility helpers reused across client and hub logic.
package server

import (
	"errors"
	"math"
	"strings"

	"github.com/Tyrowin/syncboard/internal/board"
)

// Event type tags used on the wire in both directions.
const (
	EventHistory = "history"
	EventMessage = "message"
	EventDelete  = "delete"
	EventClear   = "clear"
)

// HistoryEvent replays the whole log to a newly connected client.
type HistoryEvent struct {
	Type  string          `json:"type"`
	Items []board.Message `json:"items"`
}

// MessageEvent announces a newly appended message.
type MessageEvent struct {
	Type string        `json:"type"`
	Item board.Message `json:"item"`
}

// DeleteEvent announces the removal of a message id.
type DeleteEvent struct {
	Type string `json:"type"`
	ID   int64  `json:"id"`
}

// ClearEvent announces that the log was emptied.
type ClearEvent struct {
	Type string `json:"type"`
}

// Inbound is a frame sent by a client. Which fields matter depends on Type
// and, for messages, on MsgType.
type Inbound struct {
	Type     string   `json:"type"`
	Sender   string   `json:"sender"`
	Content  string   `json:"content"`
	MsgType  string   `json:"msg_type"`
	FileID   string   `json:"file_id"`
	Filename string   `json:"filename"`
	Size     *float64 `json:"size"`
	ID       *int64   `json:"id"`
}

var errUnknownMsgType = errors.New("unknown msg_type")

// draft converts a message frame into a log draft. msg_type defaults to text.
func (in Inbound) draft() (board.Draft, error) {
	d := board.Draft{Sender: in.Sender}

	switch in.MsgType {
	case "", string(board.KindText):
		d.Kind = board.KindText
		d.Content = in.Content
	case string(board.KindFile):
		d.Kind = board.KindFile
		d.FileID = in.FileID
		d.Filename = in.Filename
		d.Size = clampSize(in.Size)
	default:
		return board.Draft{}, errUnknownMsgType
	}
	return d, nil
}

// maxReportedSize is the largest float64 below 2^63. Values up to it convert
// to int64 without overflow.
var maxReportedSize = math.Nextafter(float64(math.MaxInt64), 0)

// clampSize converts a client-reported size. Missing, negative, NaN and
// out-of-range values become 0.
func clampSize(size *float64) int64 {
	if size == nil || !(*size > 0) || *size > maxReportedSize {
		return 0
	}
	return int64(*size)
}

// isExpectedCloseError checks if an error is expected during connection closure.
func isExpectedCloseError(err error) bool {
	if err == nil {
		return true
	}
	errStr := err.Error()
	return strings.Contains(errStr, "use of closed network connection") ||
		strings.Contains(errStr, "websocket: close sent") ||
		strings.Contains(errStr, "broken pipe")
}
