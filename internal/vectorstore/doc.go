// Package vectorstore holds a page's chunk vectors and answers exact
// nearest-neighbour queries over them.
//
// A Store is built once and never modified; re-indexing a page builds a new
// store that replaces the old one. Queries score every record by cosine
// similarity:
//
//	store, err := vectorstore.Build(pageKey, records)
//	results, err := store.Query(questionVector, 4)
//
// Load and Save move stores in and out of a storage.Cache. Load rejects
// entries written with a different embedding model or dimension so that
// vectors from two models are never compared.
package vectorstore
