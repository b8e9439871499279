package storage

import (
	"context"
	"fmt"
	"path/filepath"
	"strings"
	"sync"

	"github.com/phuslu/log"

	"github.com/dshills/pagecontext-mcp/pkg/types"
)

// Storage backends
const (
	BackendSQLite = "sqlite"
	BackendBadger = "badger"
)

// conn is one lazily opened database shared by every handle on the same
// backend and path
type conn struct {
	key     string
	backend string
	path    string
	refs    int           // guarded by registry.mu
	closing chan struct{} // guarded by registry.mu; closed once the database is shut

	// ops is held shared by running operations and exclusively by shutdown
	ops sync.RWMutex

	mu    sync.Mutex
	cache Cache
}

var registry = struct {
	mu    sync.Mutex
	conns map[string]*conn
}{conns: make(map[string]*conn)}

// Shared is a process-wide handle on a cache database. Handles for the same
// backend and path share one connection, which is opened on first use and
// closed when the last handle closes. Shared implements Cache.
type Shared struct {
	conn *conn

	mu     sync.Mutex
	closed bool
}

var _ Cache = (*Shared)(nil)

// Open returns a handle on the cache at path. Nothing is opened until the
// first operation, so Open only fails on an unknown backend. While the last
// handle on the same path is still closing, Open waits for it to finish.
func Open(backend, path string) (*Shared, error) {
	backend = strings.ToLower(backend)
	if backend == "" {
		backend = BackendSQLite
	}
	if backend != BackendSQLite && backend != BackendBadger {
		return nil, fmt.Errorf("%w: unknown cache backend %q", types.ErrConfiguration, backend)
	}
	if path != "" && path != ":memory:" && !strings.HasPrefix(path, "file:") {
		if abs, err := filepath.Abs(path); err == nil {
			path = abs
		}
	}

	key := backend + "|" + path

	registry.mu.Lock()
	defer registry.mu.Unlock()

	for {
		c, ok := registry.conns[key]
		if !ok {
			c = &conn{key: key, backend: backend, path: path}
			registry.conns[key] = c
		}
		if c.closing == nil {
			c.refs++
			return &Shared{conn: c}, nil
		}

		done := c.closing
		registry.mu.Unlock()
		<-done
		registry.mu.Lock()
	}
}

// Backend returns the backend name
func (s *Shared) Backend() string {
	return s.conn.backend
}

// Path returns the database location
func (s *Shared) Path() string {
	return s.conn.path
}

// Opened reports whether the underlying database is currently open
func (s *Shared) Opened() bool {
	s.conn.mu.Lock()
	defer s.conn.mu.Unlock()
	return s.conn.cache != nil
}

// acquire returns the open database and a release func. The database stays
// open until release is called.
func (s *Shared) acquire(ctx context.Context) (Cache, func(), error) {
	s.conn.ops.RLock()
	cache, err := s.get(ctx)
	if err != nil {
		s.conn.ops.RUnlock()
		return nil, nil, err
	}
	return cache, s.conn.ops.RUnlock, nil
}

// get returns the open database, opening it on first use. A failed open
// is retried by the next call. Callers hold conn.ops.
func (s *Shared) get(ctx context.Context) (Cache, error) {
	s.mu.Lock()
	closed := s.closed
	s.mu.Unlock()
	if closed {
		return nil, storageError("use", fmt.Errorf("handle on %s is closed", s.conn.path))
	}

	c := s.conn
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.cache != nil {
		return c.cache, nil
	}

	var (
		cache Cache
		err   error
	)
	switch c.backend {
	case BackendBadger:
		cache, err = NewBadgerCache(c.path)
	default:
		cache, err = NewSQLiteCache(ctx, c.path)
	}
	if err != nil {
		log.Warn().Err(err).Str("backend", c.backend).Str("path", c.path).Msg("Failed to open cache database")
		return nil, err
	}

	log.Debug().Str("backend", c.backend).Str("path", c.path).Msg("Opened cache database")
	c.cache = cache
	return cache, nil
}

// Load implements Cache
func (s *Shared) Load(ctx context.Context, pageKey string) (*Entry, bool, error) {
	cache, release, err := s.acquire(ctx)
	if err != nil {
		return nil, false, err
	}
	defer release()
	return cache.Load(ctx, pageKey)
}

// Save implements Cache
func (s *Shared) Save(ctx context.Context, entry *Entry) error {
	cache, release, err := s.acquire(ctx)
	if err != nil {
		return err
	}
	defer release()
	return cache.Save(ctx, entry)
}

// Delete implements Cache
func (s *Shared) Delete(ctx context.Context, pageKey string) (bool, error) {
	cache, release, err := s.acquire(ctx)
	if err != nil {
		return false, err
	}
	defer release()
	return cache.Delete(ctx, pageKey)
}

// Clear implements Cache
func (s *Shared) Clear(ctx context.Context) (int, error) {
	cache, release, err := s.acquire(ctx)
	if err != nil {
		return 0, err
	}
	defer release()
	return cache.Clear(ctx)
}

// List implements Cache
func (s *Shared) List(ctx context.Context) ([]EntryInfo, error) {
	cache, release, err := s.acquire(ctx)
	if err != nil {
		return nil, err
	}
	defer release()
	return cache.List(ctx)
}

// Close releases this handle. The database closes with the last handle,
// after the operations still running on it return; closing a handle twice
// is a no-op.
func (s *Shared) Close() error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return nil
	}
	s.closed = true
	s.mu.Unlock()

	c := s.conn

	registry.mu.Lock()
	c.refs--
	last := c.refs == 0
	if last {
		c.closing = make(chan struct{})
	}
	registry.mu.Unlock()

	if !last {
		return nil
	}

	err := c.shutdown()

	registry.mu.Lock()
	delete(registry.conns, c.key)
	close(c.closing)
	registry.mu.Unlock()

	return err
}

// shutdown closes the database once no operation holds it
func (c *conn) shutdown() error {
	c.ops.Lock()
	defer c.ops.Unlock()

	c.mu.Lock()
	defer c.mu.Unlock()
	if c.cache == nil {
		return nil
	}
	err := c.cache.Close()
	c.cache = nil
	if err != nil {
		log.Warn().Err(err).Str("backend", c.backend).Str("path", c.path).Msg("Failed to close cache database")
	}
	return err
}
