package chunker

import (
	"fmt"
	"regexp"
	"strings"
	"unicode/utf8"

	"github.com/dshills/pagecontext-mcp/pkg/types"
)

const (
	// DefaultChunkSize is the maximum chunk length in bytes
	DefaultChunkSize = 1000

	// DefaultChunkOverlap is the number of bytes shared by consecutive chunks
	DefaultChunkOverlap = 200
)

// Options controls chunk sizing
type Options struct {
	ChunkSize    int // Maximum chunk length in bytes, > 0
	ChunkOverlap int // Bytes shared by consecutive chunks, 0 <= overlap < size
}

// DefaultOptions returns the default chunk size and overlap
func DefaultOptions() Options {
	return Options{
		ChunkSize:    DefaultChunkSize,
		ChunkOverlap: DefaultChunkOverlap,
	}
}

// Validate checks the option bounds
func (o Options) Validate() error {
	if o.ChunkSize <= 0 {
		return fmt.Errorf("%w: chunk size must be positive, got %d", types.ErrInvalidInput, o.ChunkSize)
	}
	if o.ChunkOverlap < 0 {
		return fmt.Errorf("%w: chunk overlap must not be negative, got %d", types.ErrInvalidInput, o.ChunkOverlap)
	}
	if o.ChunkOverlap >= o.ChunkSize {
		return fmt.Errorf("%w: chunk overlap %d must be smaller than chunk size %d",
			types.ErrInvalidInput, o.ChunkOverlap, o.ChunkSize)
	}
	return nil
}

// Chunker splits page text into overlapping chunks
type Chunker struct {
	opts Options
}

// New creates a new Chunker instance
func New(opts Options) (*Chunker, error) {
	if err := opts.Validate(); err != nil {
		return nil, err
	}
	return &Chunker{opts: opts}, nil
}

// Options returns the chunker's options
func (c *Chunker) Options() Options {
	return c.opts
}

// Chunk normalizes text and splits it into chunks. Offsets refer to the
// normalized text.
func Chunk(text string, opts Options) ([]types.Chunk, error) {
	c, err := New(opts)
	if err != nil {
		return nil, err
	}
	return c.Chunk(text), nil
}

// Chunk normalizes text and splits it into chunks
func (c *Chunker) Chunk(text string) []types.Chunk {
	return c.Split(Normalize(text))
}

// Split splits already normalized text. Empty text yields no chunks.
func (c *Chunker) Split(text string) []types.Chunk {
	chunks := make([]types.Chunk, 0)
	n := len(text)
	start := 0

	for start < n {
		end := n
		if n-start > c.opts.ChunkSize {
			end = c.findCut(text, start)
		}

		chunks = appendChunk(chunks, text, start, end)
		if end >= n {
			break
		}

		start = c.nextStart(text, start, end)
	}

	return chunks
}

// findCut returns the end of the chunk starting at start. Boundaries are
// preferred in order: paragraph, line, sentence, word, then a forced cut.
// A boundary inside the overlap region is rejected so the next chunk
// always starts after start.
func (c *Chunker) findCut(text string, start int) int {
	limit := start + c.opts.ChunkSize
	// one extra byte lets a separator sitting exactly at the limit count
	window := text[start:min(len(text), limit+1)]
	minCut := c.opts.ChunkOverlap + 1

	if idx := strings.LastIndex(window, "\n\n"); idx >= minCut {
		return start + idx
	}

	if idx := strings.LastIndexByte(window, '\n'); idx >= minCut {
		return start + idx
	}

	if idx := lastSentenceEnd(window, minCut); idx > 0 {
		return start + idx
	}

	if idx := lastSpace(window); idx >= minCut {
		return start + idx
	}

	// No boundary: force cut, never inside a UTF-8 sequence
	cut := limit
	for cut > start+1 && !utf8.RuneStart(text[cut]) {
		cut--
	}
	return cut
}

// nextStart returns the start of the chunk following [start, end)
func (c *Chunker) nextStart(text string, start, end int) int {
	if c.opts.ChunkOverlap == 0 {
		return skipSpace(text, end)
	}

	next := end - c.opts.ChunkOverlap
	if next <= start {
		next = start + 1
	}
	for next < end && !utf8.RuneStart(text[next]) {
		next++
	}

	// Avoid starting mid-word when a word start exists in the overlap
	if next > 0 && !isSpace(text[next-1]) && !isSpace(text[next]) {
		if idx := firstSpace(text[next:end]); idx >= 0 {
			next += idx
		}
	}

	return skipSpace(text, next)
}

// appendChunk trims surrounding whitespace and appends a non-empty chunk
func appendChunk(chunks []types.Chunk, text string, start, end int) []types.Chunk {
	for start < end && isSpace(text[start]) {
		start++
	}
	for end > start && isSpace(text[end-1]) {
		end--
	}
	if start >= end {
		return chunks
	}

	return append(chunks, types.Chunk{
		SequenceIndex:     len(chunks),
		Text:              text[start:end],
		SourceOffsetStart: start,
		SourceOffsetEnd:   end,
	})
}

// lastSentenceEnd returns the index just past the last sentence terminator
// that is followed by whitespace, or -1
func lastSentenceEnd(window string, minCut int) int {
	for i := len(window) - 2; i+1 >= minCut; i-- {
		switch window[i] {
		case '.', '!', '?':
			if isSpace(window[i+1]) {
				return i + 1
			}
		}
	}
	return -1
}

// lastSpace returns the index of the last whitespace byte, or -1
func lastSpace(s string) int {
	for i := len(s) - 1; i >= 0; i-- {
		if isSpace(s[i]) {
			return i
		}
	}
	return -1
}

// firstSpace returns the index of the first whitespace byte, or -1
func firstSpace(s string) int {
	for i := 0; i < len(s); i++ {
		if isSpace(s[i]) {
			return i
		}
	}
	return -1
}

func skipSpace(text string, i int) int {
	for i < len(text) && isSpace(text[i]) {
		i++
	}
	return i
}

func isSpace(b byte) bool {
	switch b {
	case ' ', '\n', '\t', '\r', '\v', '\f':
		return true
	}
	return false
}

// blankRuns matches two or more consecutive blank lines once lines are trimmed
var blankRuns = regexp.MustCompile(`\n{3,}`)

// Normalize trims every line, collapses runs of blank lines to a single
// blank line and trims the result. The output is deterministic for a given
// input so re-chunking the same page yields identical chunks.
func Normalize(text string) string {
	text = strings.ReplaceAll(text, "\r\n", "\n")
	text = strings.ReplaceAll(text, "\r", "\n")

	lines := strings.Split(text, "\n")
	for i, line := range lines {
		lines[i] = strings.TrimSpace(line)
	}

	joined := strings.Join(lines, "\n")
	joined = blankRuns.ReplaceAllString(joined, "\n\n")
	return strings.TrimSpace(joined)
}
