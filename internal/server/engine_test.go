package server

import (
	"fmt"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Tyrowin/syncboard/internal/board"
)

func joinClient(t *testing.T, e *Engine) (*Client, []any) {
	t.Helper()
	c := newTestClient(64)
	require.True(t, e.Join(c))

	history := recvEvent(t, c)
	require.Equal(t, EventHistory, history["type"])
	items, ok := history["items"].([]any)
	require.True(t, ok, "items must be an array, got %T", history["items"])
	return c, items
}

func TestEngine_JoinOnEmptyBoardSendsEmptyHistory(t *testing.T) {
	e := newTestEngine(t, nil)

	_, items := joinClient(t, e)
	assert.Empty(t, items)
}

func TestEngine_HistoryReflectsPriorMutations(t *testing.T) {
	e := newTestEngine(t, nil)
	for i := range 3 {
		_, err := e.Post(board.Draft{Sender: "alice", Content: fmt.Sprintf("note %d", i)})
		require.NoError(t, err)
	}
	require.True(t, e.Delete(2))

	_, items := joinClient(t, e)
	require.Len(t, items, 2)
	assert.EqualValues(t, 1, items[0].(map[string]any)["id"])
	assert.EqualValues(t, 3, items[1].(map[string]any)["id"])
}

func TestEngine_PostBroadcastsToAllClients(t *testing.T) {
	e := newTestEngine(t, nil)
	alice, _ := joinClient(t, e)
	bob, _ := joinClient(t, e)

	msg, err := e.Post(board.Draft{Sender: "Alice", Content: "hi"})
	require.NoError(t, err)
	assert.Equal(t, int64(1), msg.ID)

	for _, c := range []*Client{alice, bob} {
		event := recvEvent(t, c)
		assert.Equal(t, EventMessage, event["type"])
		item := event["item"].(map[string]any)
		assert.EqualValues(t, 1, item["id"])
		assert.Equal(t, "Alice", item["sender"])
		assert.Equal(t, "text", item["type"])
		assert.Equal(t, "hi", item["content"])
	}
}

func TestEngine_EventsArriveInMutationOrder(t *testing.T) {
	e := newTestEngine(t, nil)
	c, _ := joinClient(t, e)

	const n = 20
	for i := range n {
		_, err := e.Post(board.Draft{Content: fmt.Sprintf("m%d", i)})
		require.NoError(t, err)
	}

	for i := range n {
		event := recvEvent(t, c)
		item := event["item"].(map[string]any)
		assert.EqualValues(t, i+1, item["id"])
	}
}

func TestEngine_DeleteUnknownIDStillBroadcasts(t *testing.T) {
	e := newTestEngine(t, nil)
	c, _ := joinClient(t, e)

	assert.False(t, e.Delete(99))

	event := recvEvent(t, c)
	assert.Equal(t, EventDelete, event["type"])
	assert.EqualValues(t, 99, event["id"])
}

func TestEngine_ClearKeepsIDCounter(t *testing.T) {
	e := newTestEngine(t, nil)
	_, err := e.Post(board.Draft{Content: "one"})
	require.NoError(t, err)
	_, err = e.Post(board.Draft{Content: "two"})
	require.NoError(t, err)

	c, _ := joinClient(t, e)
	assert.Equal(t, 2, e.Clear())
	assert.Equal(t, map[string]any{"type": EventClear}, recvEvent(t, c))
	assert.Empty(t, e.History())

	msg, err := e.Post(board.Draft{Content: "three"})
	require.NoError(t, err)
	assert.Equal(t, int64(3), msg.ID)
}

func TestEngine_HandleFrames(t *testing.T) {
	tests := []struct {
		name   string
		frame  string
		event  string
		reason string
	}{
		{name: "text message", frame: `{"type":"message","sender":"bob","content":"hello"}`, event: EventMessage},
		{name: "explicit text kind", frame: `{"type":"message","msg_type":"text","content":"x"}`, event: EventMessage},
		{name: "file message", frame: `{"type":"message","msg_type":"file","file_id":"abc","filename":"a.txt","size":3}`, event: EventMessage},
		{name: "delete", frame: `{"type":"delete","id":5}`, event: EventDelete},
		{name: "clear", frame: `{"type":"clear"}`, event: EventClear},
		{name: "malformed json", frame: `{"type":`, reason: dropInvalidJSON},
		{name: "unknown type", frame: `{"type":"shout"}`, reason: dropUnknownType},
		{name: "delete without id", frame: `{"type":"delete"}`, reason: dropMissingID},
		{name: "unknown msg_type", frame: `{"type":"message","msg_type":"video"}`, reason: dropInvalidMessage},
		{name: "blank text", frame: `{"type":"message","content":"  \n\t"}`, reason: dropRejected},
		{name: "file without id", frame: `{"type":"message","msg_type":"file","filename":"a.txt"}`, reason: dropRejected},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			e := newTestEngine(t, nil)
			c, _ := joinClient(t, e)

			e.Handle(c, []byte(tt.frame))

			if tt.event != "" {
				assert.Equal(t, tt.event, recvEvent(t, c)["type"])
				return
			}
			expectNoPayload(t, c)
			assert.Equal(t, float64(1), testutil.ToFloat64(e.metrics.InboundDropped.WithLabelValues(tt.reason)))
			assert.Empty(t, e.History())
		})
	}
}

func TestEngine_HandleNormalizesSenderAndContent(t *testing.T) {
	e := newTestEngine(t, nil)
	c, _ := joinClient(t, e)

	e.Handle(c, []byte(`{"type":"message","sender":"   ","content":"  indented\n\n"}`))

	item := recvEvent(t, c)["item"].(map[string]any)
	assert.Equal(t, board.DefaultSender, item["sender"])
	assert.Equal(t, "  indented", item["content"])
}

func TestEngine_FileMessageUsesStoredSize(t *testing.T) {
	e := newTestEngine(t, nil)
	blob := e.Upload([]byte("0123456789"), "notes.txt")

	msg, err := e.Post(board.Draft{Kind: board.KindFile, FileID: blob.ID, Filename: "notes.txt", Size: 999})
	require.NoError(t, err)
	assert.Equal(t, int64(10), msg.Size)

	msg, err = e.Post(board.Draft{Kind: board.KindFile, FileID: "gone", Filename: "old.bin", Size: 42})
	require.NoError(t, err)
	assert.Equal(t, int64(42), msg.Size)
}

func TestEngine_UploadSweepsExpiredFiles(t *testing.T) {
	clock := newFakeClock()
	e := newTestEngine(t, clock)

	old := e.Upload([]byte("0123456789"), "old.txt")
	msg, err := e.Post(board.Draft{Kind: board.KindFile, FileID: old.ID, Filename: old.Filename})
	require.NoError(t, err)

	clock.Advance(board.FileTTL + time.Second)
	fresh := e.Upload([]byte("new"), "new.txt")

	_, err = e.File(old.ID)
	assert.ErrorIs(t, err, board.ErrNotFound)
	got, err := e.File(fresh.ID)
	require.NoError(t, err)
	assert.Equal(t, []byte("new"), got.Data)

	history := e.History()
	require.Len(t, history, 1)
	assert.Equal(t, msg.ID, history[0].ID)
	assert.Equal(t, int64(10), history[0].Size)

	assert.Equal(t, float64(1), testutil.ToFloat64(e.metrics.BlobsEvicted))
	assert.Equal(t, float64(1), testutil.ToFloat64(e.metrics.BlobsStored))
	assert.Equal(t, float64(3), testutil.ToFloat64(e.metrics.BlobBytes))
	assert.Equal(t, float64(2), testutil.ToFloat64(e.metrics.Uploads))
}

func TestEngine_MessagesLiveGauge(t *testing.T) {
	e := newTestEngine(t, nil)
	for range 3 {
		_, err := e.Post(board.Draft{Content: "x"})
		require.NoError(t, err)
	}
	e.Delete(1)
	assert.Equal(t, float64(2), testutil.ToFloat64(e.metrics.MessagesLive))
	assert.Equal(t, float64(3), testutil.ToFloat64(e.metrics.MessagesAppended.WithLabelValues("text")))

	e.Clear()
	assert.Equal(t, float64(0), testutil.ToFloat64(e.metrics.MessagesLive))
}

func TestEngine_JoinAfterHubShutdownIsRejected(t *testing.T) {
	e := newTestEngine(t, nil)
	require.NoError(t, e.hub.Shutdown(testTimeout))

	c := newTestClient(1)
	assert.False(t, e.Join(c))
	assert.Zero(t, e.hub.ClientCount())
	expectNoPayload(t, c)
}
