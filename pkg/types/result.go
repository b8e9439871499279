package types

// SearchResult is a chunk retrieved for a query together with its similarity
type SearchResult struct {
	Chunk Chunk

	// Rank is the position in the result set (1-based)
	Rank int

	// Score is the cosine similarity between the query and the chunk vector
	Score float64
}

// Validate checks if the search result is valid
func (sr *SearchResult) Validate() error {
	if sr.Rank < 1 {
		return ErrInvalidRank
	}

	if sr.Score < -1 || sr.Score > 1 {
		return ErrInvalidRelevanceScore
	}

	if sr.Chunk.Text == "" {
		return ErrEmptyContent
	}

	return nil
}

// Texts returns the chunk texts of results in order
func Texts(results []SearchResult) []string {
	texts := make([]string, len(results))
	for i := range results {
		texts[i] = results[i].Chunk.Text
	}
	return texts
}
