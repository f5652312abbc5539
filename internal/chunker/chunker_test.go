package chunker

import (
	"errors"
	"fmt"
	"strings"
	"testing"

	"github.com/cloo-solutions/obsidian/internal/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func words(n int) string {
	parts := make([]string, n)
	for i := range parts {
		parts[i] = fmt.Sprintf("w%d", i)
	}
	return strings.Join(parts, " ")
}

func TestNew_InvalidConfig(t *testing.T) {
	tests := []struct {
		name string
		cfg  Config
	}{
		{"overlap equals window", Config{WindowTokens: 10, OverlapTokens: 10}},
		{"overlap exceeds window", Config{WindowTokens: 10, OverlapTokens: 20}},
		{"zero window", Config{WindowTokens: 0, OverlapTokens: 0}},
		{"negative overlap", Config{WindowTokens: 10, OverlapTokens: -1}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c, err := New(tt.cfg)
			require.Error(t, err)
			assert.Nil(t, c)
			assert.True(t, errors.Is(err, domain.ErrConfig))
		})
	}
}

func TestChunks_EmptyText(t *testing.T) {
	c, err := New(DefaultConfig())
	require.NoError(t, err)

	assert.Empty(t, c.Split("doc", ""))
	assert.Empty(t, c.Split("doc", "   \n\t "))
}

func TestChunks_ShorterThanWindow(t *testing.T) {
	c, err := New(Config{WindowTokens: 10, OverlapTokens: 3})
	require.NoError(t, err)

	chunks := c.Split("doc", words(9))
	require.Len(t, chunks, 1)
	assert.Equal(t, words(9), chunks[0].Text)
	assert.Equal(t, 9, chunks[0].TokenCount)
	assert.Equal(t, 0, chunks[0].SequenceIndex)
	assert.Equal(t, domain.ChunkID("doc", 0), chunks[0].ID)
}

func TestChunks_WindowOffsets(t *testing.T) {
	c, err := New(Config{WindowTokens: 4, OverlapTokens: 1})
	require.NoError(t, err)

	chunks := c.Split("doc", words(10))
	require.Len(t, chunks, 4)
	assert.Equal(t, "w0 w1 w2 w3", chunks[0].Text)
	assert.Equal(t, "w3 w4 w5 w6", chunks[1].Text)
	assert.Equal(t, "w6 w7 w8 w9", chunks[2].Text)
	assert.Equal(t, "w9", chunks[3].Text)
	for i, chunk := range chunks {
		assert.Equal(t, i, chunk.SequenceIndex)
		assert.Equal(t, "doc", chunk.DocumentID)
	}
}

func TestChunks_TrailingPartialWindow(t *testing.T) {
	c, err := New(Config{WindowTokens: 4, OverlapTokens: 1})
	require.NoError(t, err)

	chunks := c.Split("doc", words(8))
	require.Len(t, chunks, 3)
	assert.Equal(t, "w6 w7", chunks[2].Text)
	assert.Equal(t, 2, chunks[2].TokenCount)
}

func TestChunks_TrailingWindowInsidePrevious(t *testing.T) {
	c, err := New(Config{WindowTokens: 4, OverlapTokens: 1})
	require.NoError(t, err)

	// Window two already ends at the last token; window three still starts
	// before it and is emitted.
	chunks := c.Split("doc", words(7))
	require.Len(t, chunks, 3)
	assert.Equal(t, "w0 w1 w2 w3", chunks[0].Text)
	assert.Equal(t, "w3 w4 w5 w6", chunks[1].Text)
	assert.Equal(t, "w6", chunks[2].Text)
}

func TestChunks_ExactlyOneWindow(t *testing.T) {
	c, err := New(DefaultConfig())
	require.NoError(t, err)

	chunks := c.Split("doc", words(600))
	require.Len(t, chunks, 2)
	assert.Equal(t, 600, chunks[0].TokenCount)
	assert.Equal(t, 100, chunks[1].TokenCount)
	assert.True(t, strings.HasPrefix(chunks[1].Text, "w500 "))
}

func TestChunks_Idempotent(t *testing.T) {
	c, err := New(Config{WindowTokens: 7, OverlapTokens: 2})
	require.NoError(t, err)

	text := words(53)
	first := c.Split("doc-7", text)
	second := c.Split("doc-7", text)
	assert.Equal(t, first, second)

	seq := c.Chunks("doc-7", text)
	var a, b []domain.Chunk
	for chunk := range seq {
		a = append(a, chunk)
	}
	for chunk := range seq {
		b = append(b, chunk)
	}
	assert.Equal(t, a, b)
}

func TestChunks_CoverageAndBound(t *testing.T) {
	for window := 2; window <= 12; window++ {
		for overlap := 1; overlap < window; overlap++ {
			for _, n := range []int{1, window - 1, window, window + 1, 3*window + 2, 97} {
				if n <= 0 {
					continue
				}
				c, err := New(Config{WindowTokens: window, OverlapTokens: overlap})
				require.NoError(t, err)

				covered := make(map[string]bool)
				for _, chunk := range c.Split("doc", words(n)) {
					assert.LessOrEqual(t, chunk.TokenCount, window)
					assert.Equal(t, chunk.TokenCount, len(strings.Fields(chunk.Text)))
					for _, tok := range strings.Fields(chunk.Text) {
						covered[tok] = true
					}
				}
				assert.Len(t, covered, n, "window=%d overlap=%d n=%d", window, overlap, n)
			}
		}
	}
}

func TestChunks_EarlyStop(t *testing.T) {
	c, err := New(Config{WindowTokens: 2, OverlapTokens: 0})
	require.NoError(t, err)

	count := 0
	for range c.Chunks("doc", words(20)) {
		count++
		if count == 3 {
			break
		}
	}
	assert.Equal(t, 3, count)
}

func TestChunkSections_Provenance(t *testing.T) {
	c, err := New(Config{WindowTokens: 3, OverlapTokens: 1})
	require.NoError(t, err)

	sections := []Section{
		{Text: "alpha beta gamma delta", PageNumber: 1},
		{Text: "", PageNumber: 2},
		{Text: "epsilon zeta", PageNumber: 3},
	}

	var chunks []domain.Chunk
	for chunk := range c.ChunkSections("doc", sections) {
		chunks = append(chunks, chunk)
	}

	require.Len(t, chunks, 3)
	assert.Equal(t, "alpha beta gamma", chunks[0].Text)
	assert.Equal(t, 1, chunks[0].PageNumber)
	assert.Equal(t, "gamma delta", chunks[1].Text)
	assert.Equal(t, 1, chunks[1].PageNumber)
	assert.Equal(t, "epsilon zeta", chunks[2].Text)
	assert.Equal(t, 3, chunks[2].PageNumber)
	assert.Equal(t, 2, chunks[2].SequenceIndex)
	assert.Equal(t, domain.ChunkID("doc", 2), chunks[2].ID)
}

func TestChunkSections_Timestamp(t *testing.T) {
	c, err := New(DefaultConfig())
	require.NoError(t, err)

	var chunks []domain.Chunk
	for chunk := range c.ChunkSections("audio-1", []Section{{Text: "spoken words here", Timestamp: "00:01:30"}}) {
		chunks = append(chunks, chunk)
	}
	require.Len(t, chunks, 1)
	assert.Equal(t, "00:01:30", chunks[0].Timestamp)
	assert.False(t, chunks[0].HasPage())
}
