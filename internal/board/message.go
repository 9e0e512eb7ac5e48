package board

import (
	"encoding/json"
	"math"
	"strings"
	"time"
	"unicode"
)

// Kind tags the payload variant of a message.
type Kind string

const (
	KindText Kind = "text"
	KindFile Kind = "file"
)

// DefaultSender is shown for messages posted without a display name.
const DefaultSender = "Anon"

// Draft is a message as submitted by a client, before the log assigns an id
// and timestamp.
type Draft struct {
	Sender   string
	Kind     Kind
	Content  string
	FileID   string
	Filename string
	Size     int64
}

// Message is a finalized record in the log. Records are never mutated after
// Append returns them.
//
// For file messages Size is the byte count recorded at upload time. It stays
// valid for display after the blob itself has been evicted.
type Message struct {
	ID        int64
	Sender    string
	Timestamp time.Time
	Kind      Kind
	Content   string
	FileID    string
	Filename  string
	Size      int64
}

// normalize validates d and returns the form that gets stored.
func (d Draft) normalize() (Draft, error) {
	d.Sender = strings.TrimSpace(d.Sender)
	if d.Sender == "" {
		d.Sender = DefaultSender
	}
	if d.Kind == "" {
		d.Kind = KindText
	}

	switch d.Kind {
	case KindText:
		// Leading whitespace is kept so pasted code keeps its indentation.
		d.Content = strings.TrimRightFunc(d.Content, unicode.IsSpace)
		if strings.TrimSpace(d.Content) == "" {
			return Draft{}, ErrEmptyText
		}
		d.FileID, d.Filename, d.Size = "", "", 0
	case KindFile:
		if strings.TrimSpace(d.FileID) == "" || strings.TrimSpace(d.Filename) == "" {
			return Draft{}, ErrMissingFile
		}
		if d.Size < 0 {
			d.Size = 0
		}
		d.Content = ""
	default:
		return Draft{}, ErrUnknownKind
	}
	return d, nil
}

type wireMessage struct {
	ID       int64   `json:"id"`
	Sender   string  `json:"sender"`
	TS       float64 `json:"ts"`
	Type     Kind    `json:"type"`
	Content  *string `json:"content,omitempty"`
	FileID   *string `json:"file_id,omitempty"`
	Filename *string `json:"filename,omitempty"`
	Size     *int64  `json:"size,omitempty"`
}

// MarshalJSON encodes the message in the wire shape shared with browser
// clients: ts is float seconds since the epoch and only the fields of the
// message's kind are present.
func (m Message) MarshalJSON() ([]byte, error) {
	w := wireMessage{
		ID:     m.ID,
		Sender: m.Sender,
		TS:     epochSeconds(m.Timestamp),
		Type:   m.Kind,
	}
	if m.Kind == KindFile {
		w.FileID = &m.FileID
		w.Filename = &m.Filename
		w.Size = &m.Size
	} else {
		w.Content = &m.Content
	}
	return json.Marshal(w)
}

// UnmarshalJSON decodes the wire shape produced by MarshalJSON.
func (m *Message) UnmarshalJSON(data []byte) error {
	var w wireMessage
	if err := json.Unmarshal(data, &w); err != nil {
		return err
	}
	*m = Message{
		ID:        w.ID,
		Sender:    w.Sender,
		Timestamp: fromEpochSeconds(w.TS),
		Kind:      w.Type,
	}
	if w.Content != nil {
		m.Content = *w.Content
	}
	if w.FileID != nil {
		m.FileID = *w.FileID
	}
	if w.Filename != nil {
		m.Filename = *w.Filename
	}
	if w.Size != nil {
		m.Size = *w.Size
	}
	return nil
}

func epochSeconds(t time.Time) float64 {
	return float64(t.UnixNano()) / float64(time.Second)
}

func fromEpochSeconds(ts float64) time.Time {
	sec, frac := math.Modf(ts)
	return time.Unix(int64(sec), int64(frac*float64(time.Second)))
}
