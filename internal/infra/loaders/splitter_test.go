package loaders

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSplitShortTextReturnsSingleChunk(t *testing.T) {
	splitter := NewSplitter(WithChunkSize(100), WithChunkOverlap(0))

	chunks := splitter.Split("short text")
	require.Len(t, chunks, 1)
	assert.Equal(t, "short text", chunks[0])
}

func TestSplitEmptyTextReturnsNothing(t *testing.T) {
	splitter := NewSplitter()

	assert.Empty(t, splitter.Split(""))
	assert.Empty(t, splitter.Split("   \n  "))
}

func TestSplitRespectsChunkSize(t *testing.T) {
	splitter := NewSplitter(WithChunkSize(50), WithChunkOverlap(10))

	paragraphs := make([]string, 10)
	for i := range paragraphs {
		paragraphs[i] = strings.Repeat("word ", 8)
	}
	text := strings.Join(paragraphs, "\n\n")

	chunks := splitter.Split(text)
	require.NotEmpty(t, chunks)
	for _, chunk := range chunks {
		assert.LessOrEqual(t, len([]rune(chunk)), 50)
		assert.NotEmpty(t, chunk)
	}
}

func TestSplitPrefersParagraphBoundaries(t *testing.T) {
	splitter := NewSplitter(WithChunkSize(30), WithChunkOverlap(0))

	chunks := splitter.Split("first paragraph here\n\nsecond paragraph here")
	require.Len(t, chunks, 2)
	assert.Equal(t, "first paragraph here", chunks[0])
	assert.Equal(t, "second paragraph here", chunks[1])
}

func TestSplitHardCutsUnbreakableText(t *testing.T) {
	splitter := NewSplitter(WithChunkSize(10), WithChunkOverlap(2))

	chunks := splitter.Split(strings.Repeat("a", 25))
	require.NotEmpty(t, chunks)
	for _, chunk := range chunks {
		assert.LessOrEqual(t, len(chunk), 10)
	}

	// 隣接チャンクはオーバーラップ分を共有する
	assert.Equal(t, chunks[0][8:], chunks[1][:2])

	joined := chunks[0]
	for _, chunk := range chunks[1:] {
		joined += chunk[2:]
	}
	assert.Equal(t, strings.Repeat("a", 25), joined)
}

func TestSplitCustomLengthFunc(t *testing.T) {
	// 語数を長さとして扱う
	splitter := NewSplitter(
		WithChunkSize(3),
		WithChunkOverlap(0),
		WithLengthFunc(func(text string) int {
			return len(strings.Fields(text))
		}),
	)

	chunks := splitter.Split("one two three four five six")
	require.NotEmpty(t, chunks)
	for _, chunk := range chunks {
		assert.LessOrEqual(t, len(strings.Fields(chunk)), 3)
	}
}
