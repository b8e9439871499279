package chunker

import (
	"strings"
	"testing"
)

func benchmarkPage(paragraphs int) string {
	var sb strings.Builder
	for i := 0; i < paragraphs; i++ {
		sb.WriteString(strings.Repeat(sentence, 6))
		sb.WriteString("\n\n")
	}
	return sb.String()
}

func BenchmarkChunk_Default(b *testing.B) {
	text := benchmarkPage(200)
	c, err := New(DefaultOptions())
	if err != nil {
		b.Fatal(err)
	}

	b.SetBytes(int64(len(text)))
	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		if chunks := c.Chunk(text); len(chunks) == 0 {
			b.Fatal("no chunks")
		}
	}
}

func BenchmarkChunk_NoBoundaries(b *testing.B) {
	text := strings.Repeat("x", 100_000)
	c, err := New(Options{ChunkSize: 1000, ChunkOverlap: 100})
	if err != nil {
		b.Fatal(err)
	}

	b.SetBytes(int64(len(text)))
	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		if chunks := c.Chunk(text); len(chunks) == 0 {
			b.Fatal("no chunks")
		}
	}
}

func BenchmarkNormalize(b *testing.B) {
	text := strings.ReplaceAll(benchmarkPage(200), "\n\n", "\r\n  \r\n\r\n")

	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		_ = Normalize(text)
	}
}
