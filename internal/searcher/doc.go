// Package searcher retrieves the chunks of an indexed page that are most
// similar to a question.
//
// # Basic Usage
//
//	s, err := searcher.NewSearcher(idx)
//
//	resp, err := s.Search(ctx, searcher.SearchRequest{
//	    PageKey: "https://example.com/post",
//	    Query:   "how are the panels mounted?",
//	    Limit:   4,
//	})
//
//	for _, r := range resp.Results {
//	    fmt.Printf("[%d] %.3f %s\n", r.Rank, r.Score, r.Chunk.Text)
//	}
//
// # Retrieval
//
// The query is embedded through the indexer's gateway, whose provider keeps
// recent query vectors in an LRU keyed by model and text. The page's store is
// taken from memory or, for pages indexed by an earlier process, from the
// persistent cache. Pages found in neither return an error wrapping
// types.ErrNotIndexed.
//
// Scoring is an exact cosine scan over every chunk. Results are ordered by
// descending score with ties broken by chunk position, and MinScore trims
// the tail.
//
// # Response Cache
//
// With UseCache set, whole responses are kept for five minutes. Keys include
// the store's creation time so a reindexed page never serves stale results.
package searcher
