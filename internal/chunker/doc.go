// Package chunker divides extracted page text into overlapping chunks for
// embedding and retrieval.
//
// # Basic Usage
//
//	c, err := chunker.New(chunker.Options{ChunkSize: 1000, ChunkOverlap: 200})
//	if err != nil {
//	    log.Fatal(err)
//	}
//
//	for _, chunk := range c.Chunk(pageText) {
//	    fmt.Printf("Chunk %d: bytes %d-%d\n",
//	        chunk.SequenceIndex, chunk.SourceOffsetStart, chunk.SourceOffsetEnd)
//	}
//
// # Normalization
//
// Text is normalized before splitting: every line is trimmed and runs of
// blank lines collapse into a single blank line. Normalization is
// deterministic, which keeps chunk boundaries stable across visits to the
// same page. Chunk offsets refer to the normalized text.
//
// # Chunking Strategy
//
// Splitting is greedy. Each chunk takes up to ChunkSize bytes and is cut at
// the best boundary inside that window:
//   - Paragraphs: a blank line
//   - Lines: a line break
//   - Sentences: '.', '!' or '?' followed by whitespace
//   - Words: any whitespace
//   - Forced: exactly ChunkSize bytes when no boundary exists
//
// The next chunk starts ChunkOverlap bytes before the cut, moved forward to
// a word start when possible, so neighbouring chunks share up to
// ChunkOverlap bytes of context.
package chunker
