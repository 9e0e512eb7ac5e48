package board

import (
	"sync"
	"time"

	"github.com/google/uuid"
)

// FileTTL is how long an uploaded blob stays eligible for download.
const FileTTL = time.Hour

// FileBlob is one uploaded file held in memory.
type FileBlob struct {
	ID        string
	Data      []byte
	Filename  string
	Size      int64
	CreatedAt time.Time
}

// FileStore keeps uploaded blobs in memory and drops them once they are older
// than the TTL.
//
// Expired blobs are reclaimed by SweepExpired, which Put runs after every
// upload. There is no background timer: when uploads stop, expired blobs stay
// in memory (and downloadable) until the next Put.
type FileStore struct {
	mu    sync.RWMutex
	blobs map[string]FileBlob
	bytes int64
	ttl   time.Duration
	now   func() time.Time
	newID func() string

	onEvict func(FileBlob)
}

// FileStoreOption configures a FileStore.
type FileStoreOption func(*FileStore)

// WithClock overrides the time source used for CreatedAt and sweeps.
func WithClock(now func() time.Time) FileStoreOption {
	return func(s *FileStore) {
		s.now = now
	}
}

// WithTTL overrides FileTTL.
func WithTTL(ttl time.Duration) FileStoreOption {
	return func(s *FileStore) {
		if ttl > 0 {
			s.ttl = ttl
		}
	}
}

// WithEvictHook registers fn to be called for every blob removed by a sweep.
func WithEvictHook(fn func(FileBlob)) FileStoreOption {
	return func(s *FileStore) {
		s.onEvict = fn
	}
}

// NewFileStore creates an empty store.
func NewFileStore(opts ...FileStoreOption) *FileStore {
	s := &FileStore{
		blobs: make(map[string]FileBlob),
		ttl:   FileTTL,
		now:   time.Now,
		newID: func() string { return uuid.NewString() },
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Put stores a copy of data under a fresh random id and then sweeps expired
// blobs. The returned blob shares its Data with the store and must not be
// modified.
func (s *FileStore) Put(data []byte, filename string) FileBlob {
	blob := FileBlob{
		ID:        s.newID(),
		Data:      append([]byte(nil), data...),
		Filename:  filename,
		Size:      int64(len(data)),
		CreatedAt: s.now(),
	}

	s.mu.Lock()
	s.blobs[blob.ID] = blob
	s.bytes += blob.Size
	s.mu.Unlock()

	s.SweepExpired(s.now())
	return blob
}

// Get returns the blob with the given id, or ErrNotFound when it never
// existed or has been swept.
func (s *FileStore) Get(id string) (FileBlob, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	blob, ok := s.blobs[id]
	if !ok {
		return FileBlob{}, ErrNotFound
	}
	return blob, nil
}

// SweepExpired removes every blob created more than the TTL before now and
// returns the evicted ids.
func (s *FileStore) SweepExpired(now time.Time) []string {
	s.mu.Lock()
	var evicted []FileBlob
	for id, blob := range s.blobs {
		if now.Sub(blob.CreatedAt) > s.ttl {
			delete(s.blobs, id)
			s.bytes -= blob.Size
			evicted = append(evicted, blob)
		}
	}
	s.mu.Unlock()

	ids := make([]string, 0, len(evicted))
	for _, blob := range evicted {
		ids = append(ids, blob.ID)
		if s.onEvict != nil {
			s.onEvict(blob)
		}
	}
	return ids
}

// Len returns the number of stored blobs.
func (s *FileStore) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.blobs)
}

// Bytes returns the total size of the stored blobs.
func (s *FileStore) Bytes() int64 {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.bytes
}
