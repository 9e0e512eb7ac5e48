package board

import (
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeClock is a settable time source shared by the store under test.
type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func newFakeClock() *fakeClock {
	return &fakeClock{now: time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)}
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

func TestFileStore_PutGetRoundTrip(t *testing.T) {
	s := NewFileStore()
	data := []byte{0, 1, 2, 0xff, 'a'}

	blob := s.Put(data, "raw.bin")
	assert.Len(t, blob.ID, 36)
	assert.Equal(t, int64(len(data)), blob.Size)

	// The store keeps its own copy.
	data[0] = 42

	got, err := s.Get(blob.ID)
	require.NoError(t, err)
	assert.Equal(t, []byte{0, 1, 2, 0xff, 'a'}, got.Data)
	assert.Equal(t, "raw.bin", got.Filename)
	assert.Equal(t, 1, s.Len())
	assert.Equal(t, int64(5), s.Bytes())
}

func TestFileStore_UniqueIDs(t *testing.T) {
	s := NewFileStore()
	seen := make(map[string]bool)
	for i := 0; i < 100; i++ {
		blob := s.Put([]byte("x"), "x")
		assert.False(t, seen[blob.ID])
		seen[blob.ID] = true
	}
}

func TestFileStore_GetMissing(t *testing.T) {
	s := NewFileStore()
	_, err := s.Get("nope")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestFileStore_SweepExpired(t *testing.T) {
	clock := newFakeClock()
	var evicted []string
	s := NewFileStore(WithClock(clock.Now), WithEvictHook(func(b FileBlob) {
		evicted = append(evicted, b.ID)
	}))

	old := s.Put([]byte("0123456789"), "old.txt")
	clock.Advance(30 * time.Minute)
	young := s.Put([]byte("abc"), "young.txt")

	// Exactly at the TTL the old blob is still kept.
	clock.Advance(30 * time.Minute)
	assert.Empty(t, s.SweepExpired(clock.Now()))

	clock.Advance(time.Second)
	assert.Equal(t, []string{old.ID}, s.SweepExpired(clock.Now()))
	assert.Equal(t, []string{old.ID}, evicted)

	_, err := s.Get(old.ID)
	assert.ErrorIs(t, err, ErrNotFound)
	_, err = s.Get(young.ID)
	assert.NoError(t, err)
	assert.Equal(t, int64(3), s.Bytes())
}

func TestFileStore_PutSweeps(t *testing.T) {
	clock := newFakeClock()
	s := NewFileStore(WithClock(clock.Now))

	old := s.Put([]byte("x"), "old")
	clock.Advance(FileTTL + time.Minute)

	// No sweep has run yet: the expired blob is still served.
	_, err := s.Get(old.ID)
	require.NoError(t, err)

	s.Put([]byte("y"), "new")
	_, err = s.Get(old.ID)
	assert.ErrorIs(t, err, ErrNotFound)
	assert.Equal(t, 1, s.Len())
}

func TestFileStore_DanglingReferenceScenario(t *testing.T) {
	clock := newFakeClock()
	s := NewFileStore(WithClock(clock.Now))
	l := NewLog(WithLogClock(clock.Now))

	blob := s.Put(make([]byte, 10), "ten.bin")
	assert.Equal(t, int64(10), blob.Size)

	msg, err := l.Append(Draft{Sender: "a", Kind: KindFile, FileID: blob.ID, Filename: blob.Filename, Size: blob.Size})
	require.NoError(t, err)

	clock.Advance(FileTTL + time.Second)
	s.SweepExpired(clock.Now())

	_, err = s.Get(blob.ID)
	assert.ErrorIs(t, err, ErrNotFound)

	snap := l.Snapshot()
	require.Len(t, snap, 1)
	assert.Equal(t, msg.ID, snap[0].ID)
	assert.Equal(t, int64(10), snap[0].Size)
}

func TestFileStore_WithTTL(t *testing.T) {
	clock := newFakeClock()
	s := NewFileStore(WithClock(clock.Now), WithTTL(time.Minute))

	blob := s.Put([]byte("x"), "x")
	clock.Advance(2 * time.Minute)
	assert.Equal(t, []string{blob.ID}, s.SweepExpired(clock.Now()))
}
