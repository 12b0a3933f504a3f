// Package cache memoizes image hashes keyed by path, size, modification time
// and hash version.
package cache

import (
	"errors"
	"fmt"
	"os"
	"sync"
	"sync/atomic"
	"time"

	"github.com/cespare/xxhash/v2"
	"go.uber.org/zap"

	"photodedup/internal/models"
	"photodedup/internal/storage"
)

const shardCount = 64

// Backend stores hash sets. Implementations must be safe for concurrent use.
type Backend interface {
	GetHash(path string, size int64, modTime time.Time, version string) (*models.HashSet, bool, error)
	PutHash(path string, size int64, modTime time.Time, hs *models.HashSet) error
	Close() error
}

// Stats reports cache effectiveness for one process lifetime.
type Stats struct {
	Hits   int64
	Misses int64
	Errors int64
}

// Cache is a shared hash cache. Reads run concurrently; computing and writing
// an entry is serialized per path through a fixed set of sharded locks, so two
// workers never hash the same file at once.
type Cache struct {
	backend Backend
	logger  *zap.Logger
	shards  [shardCount]sync.Mutex

	hits   atomic.Int64
	misses atomic.Int64
	errs   atomic.Int64
}

// New wraps backend. A nil logger disables logging.
func New(backend Backend, logger *zap.Logger) *Cache {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Cache{backend: backend, logger: logger}
}

// NewMemory returns a cache that lives only as long as the process.
func NewMemory(logger *zap.Logger) *Cache {
	return New(NewMemoryBackend(), logger)
}

// Open returns a cache persisted in the sqlite database at dbPath. A database
// that cannot be opened is moved aside to "<dbPath>.corrupt" and recreated;
// if that fails too, the cache falls back to memory. The returned bool is
// false when running on the memory fallback.
func Open(dbPath string, logger *zap.Logger) (*Cache, *storage.Storage, bool) {
	if logger == nil {
		logger = zap.NewNop()
	}

	store, err := storage.NewStorage(dbPath)
	if err == nil {
		return New(store, logger), store, true
	}
	logger.Warn("hash cache unusable, recreating", zap.String("db", dbPath), zap.Error(err))

	if _, statErr := os.Stat(dbPath); statErr == nil {
		if err := os.Rename(dbPath, dbPath+".corrupt"); err != nil {
			logger.Warn("failed to move corrupt cache aside", zap.Error(err))
		}
		// WAL side files belong to the old database
		os.Remove(dbPath + "-wal")
		os.Remove(dbPath + "-shm")
	}

	store, err = storage.NewStorage(dbPath)
	if err == nil {
		return New(store, logger), store, true
	}
	logger.Warn("hash cache degraded to memory", zap.String("db", dbPath), zap.Error(err))
	return NewMemory(logger), nil, false
}

func (c *Cache) shard(path string) *sync.Mutex {
	return &c.shards[xxhash.Sum64String(path)%shardCount]
}

// Get returns the cached hash set when every key field matches.
// Backend failures are logged and reported as a miss.
func (c *Cache) Get(path string, size int64, modTime time.Time, version string) (*models.HashSet, bool) {
	hs, ok, err := c.backend.GetHash(path, size, modTime, version)
	if err != nil {
		c.errs.Add(1)
		c.logger.Warn("hash cache read failed", zap.String("path", path),
			zap.Error(&models.CacheError{Op: "get", Err: err}))
		return nil, false
	}
	return hs, ok
}

// Put stores hs for the key. Backend failures are logged and the write dropped.
func (c *Cache) Put(path string, size int64, modTime time.Time, hs *models.HashSet) {
	mu := c.shard(path)
	mu.Lock()
	defer mu.Unlock()
	c.put(path, size, modTime, hs)
}

func (c *Cache) put(path string, size int64, modTime time.Time, hs *models.HashSet) {
	if err := c.backend.PutHash(path, size, modTime, hs); err != nil {
		c.errs.Add(1)
		c.logger.Warn("hash cache write failed", zap.String("path", path),
			zap.Error(&models.CacheError{Op: "put", Err: err}))
	}
}

// GetOrCompute returns the cached hash set for the key, computing and storing
// it on a miss. The bool reports whether the result came from the cache.
func (c *Cache) GetOrCompute(path string, size int64, modTime time.Time, version string,
	compute func() (*models.HashSet, error)) (*models.HashSet, bool, error) {
	if hs, ok := c.Get(path, size, modTime, version); ok {
		c.hits.Add(1)
		return hs, true, nil
	}

	mu := c.shard(path)
	mu.Lock()
	defer mu.Unlock()

	// Another worker may have filled it while we waited
	if hs, ok := c.Get(path, size, modTime, version); ok {
		c.hits.Add(1)
		return hs, true, nil
	}

	c.misses.Add(1)
	hs, err := compute()
	if err != nil {
		return nil, false, err
	}
	if hs.Version != version {
		return nil, false, fmt.Errorf("computed hash version %q does not match %q", hs.Version, version)
	}
	c.put(path, size, modTime, hs)
	return hs, false, nil
}

// Stats returns hit, miss and error counters.
func (c *Cache) Stats() Stats {
	return Stats{Hits: c.hits.Load(), Misses: c.misses.Load(), Errors: c.errs.Load()}
}

// Close closes the backend.
func (c *Cache) Close() error {
	if c == nil || c.backend == nil {
		return nil
	}
	return c.backend.Close()
}

type memEntry struct {
	size    int64
	modTime int64
	hs      models.HashSet
}

// MemoryBackend keeps entries in a map.
type MemoryBackend struct {
	mu      sync.RWMutex
	entries map[string]memEntry
	closed  bool
}

// ErrClosed is returned by a MemoryBackend after Close.
var ErrClosed = errors.New("cache closed")

// NewMemoryBackend creates an empty in-memory backend.
func NewMemoryBackend() *MemoryBackend {
	return &MemoryBackend{entries: make(map[string]memEntry)}
}

func (m *MemoryBackend) GetHash(path string, size int64, modTime time.Time, version string) (*models.HashSet, bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if m.closed {
		return nil, false, ErrClosed
	}
	e, ok := m.entries[path]
	if !ok || e.size != size || e.modTime != modTime.UnixNano() || e.hs.Version != version {
		return nil, false, nil
	}
	hs := e.hs
	return &hs, true, nil
}

func (m *MemoryBackend) PutHash(path string, size int64, modTime time.Time, hs *models.HashSet) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed {
		return ErrClosed
	}
	m.entries[path] = memEntry{size: size, modTime: modTime.UnixNano(), hs: *hs}
	return nil
}

func (m *MemoryBackend) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.closed = true
	return nil
}
