// Package storage persists per-page vector stores so that revisiting a page
// does not recompute its embeddings.
//
// Two backends implement the Cache interface:
//   - SQLite (default): tables pages and page_records, WAL mode, a single
//     writer connection and semver-ordered migrations
//   - Badger: an embedded key-value store accessed through badgerhold
//
// # Shared Handle
//
// Open returns a lazily opened handle. Every handle on the same backend and
// path shares one connection; the database is opened by the first
// operation and closed with the last handle:
//
//	cache, err := storage.Open(storage.BackendSQLite, "~/.pagecontext/cache.db")
//	if err != nil {
//	    return err
//	}
//	defer cache.Close()
//
//	entry, ok, err := cache.Load(ctx, "https://example.com/article")
//
// # Guarantees
//
// Save replaces a page's entry atomically: readers see the old entry or the
// new one, never a mix. Load of an unknown page returns (nil, false, nil).
// Every failure wraps types.ErrStorage.
//
// # Vector Encoding
//
// Vectors are stored as little-endian float32 blobs (SQLite) or gob
// encoded slices (Badger).
package storage
