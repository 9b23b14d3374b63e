package parser

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"syllabus-rag/internal/models"
)

func TestNormalizeWhitespace(t *testing.T) {
	got := NormalizeWhitespace("a\n\n\n\nb    c\n\nd")
	assert.Equal(t, "a\n\nb c\n\nd", got)
}

func TestSplitRepeatedSentences(t *testing.T) {
	text := strings.Repeat("A. B. ", 200)
	require.Len(t, text, 1200)

	segments, err := Split(text, 500, 100)
	require.NoError(t, err)
	require.Len(t, segments, 3)

	for i, s := range segments {
		assert.Greater(t, len(s.Text), models.MinChunkLength, "chunk %d", i)
		assert.True(t, strings.HasSuffix(s.Text, "."), "chunk %d should end on a period: %q", i, s.Text[len(s.Text)-10:])
	}

	// consecutive windows re-read the trailing 100 characters
	for i := 1; i < len(segments); i++ {
		prevEnd := segments[i-1].Start + len(segments[i-1].Text)
		assert.Equal(t, 100, prevEnd-segments[i].Start, "overlap before chunk %d", i)
	}

	last := segments[len(segments)-1]
	assert.Equal(t, len(strings.TrimSpace(text)), last.Start+len(last.Text), "last chunk reaches the end of the input")
}

func TestSplitShortText(t *testing.T) {
	long := "This course introduces data structures, algorithms and their analysis."
	segments, err := Split(long, 500, 100)
	require.NoError(t, err)
	require.Len(t, segments, 1)
	assert.Equal(t, long, segments[0].Text)

	segments, err = Split("Week 1: intro.", 500, 100)
	require.NoError(t, err)
	assert.Empty(t, segments)
}

func TestSplitTextWithinOneWindowIsNotCut(t *testing.T) {
	text := strings.Repeat("x", 260) + ". " + strings.Repeat("y", 100)
	segments, err := Split(text, 500, 100)
	require.NoError(t, err)
	require.Len(t, segments, 1)
	assert.Equal(t, text, segments[0].Text)
	assert.Zero(t, segments[0].Start)

	exact := strings.Repeat("Exams are worth forty percent. ", 17)[:500]
	segments, err = Split(exact, 500, 100)
	require.NoError(t, err)
	require.Len(t, segments, 1)
	assert.Equal(t, strings.TrimSpace(exact), segments[0].Text)
}

func TestSplitEmptyText(t *testing.T) {
	segments, err := Split("", 500, 100)
	require.NoError(t, err)
	assert.NotNil(t, segments)
	assert.Empty(t, segments)

	segments, err = Split(" \n\n\t ", 500, 100)
	require.NoError(t, err)
	assert.Empty(t, segments)
}

func TestSplitInvalidConfig(t *testing.T) {
	cases := []struct{ size, overlap int }{
		{100, 100},
		{100, 150},
		{0, 0},
		{100, -1},
	}
	for _, c := range cases {
		_, err := Split("some text", c.size, c.overlap)
		require.ErrorIs(t, err, models.ErrInvalidConfig, "size=%d overlap=%d", c.size, c.overlap)
	}
}

func TestSplitTerminatesOnShortTail(t *testing.T) {
	// 1000 characters with no sentence boundary; the last window is shorter
	// than a full chunk and must end the walk.
	text := strings.Repeat("abcdefghi ", 100)
	segments, err := Split(text, 500, 100)
	require.NoError(t, err)
	require.Len(t, segments, 3)
	assert.Equal(t, 0, segments[0].Start)
	assert.Equal(t, 400, segments[1].Start)
	assert.Equal(t, 800, segments[2].Start)
}

func TestSplitStartOffsetsAdvance(t *testing.T) {
	text := strings.Repeat("Assignments are due every Friday at noon. Late work loses ten percent per day. ", 40)
	for _, tc := range []struct{ size, overlap int }{{500, 100}, {200, 20}, {120, 90}, {300, 299}} {
		segments, err := Split(text, tc.size, tc.overlap)
		require.NoError(t, err)
		require.NotEmpty(t, segments)
		for i := 1; i < len(segments); i++ {
			assert.Greater(t, segments[i].Start, segments[i-1].Start, "size=%d overlap=%d chunk %d", tc.size, tc.overlap, i)
		}
		for _, s := range segments {
			assert.LessOrEqual(t, len([]rune(s.Text)), tc.size)
		}
	}
}

func TestSplitDeterministic(t *testing.T) {
	text := strings.Repeat("Unit 1 covers sorting. Unit 2 covers graphs and shortest paths.\n\n\n", 30)
	a, err := ChunkText(text, 500, 100)
	require.NoError(t, err)
	b, err := ChunkText(text, 500, 100)
	require.NoError(t, err)
	assert.Equal(t, a, b)
}

func TestSplitKeepsMidSentenceCutWhenBoundaryTooEarly(t *testing.T) {
	// the only ". " sits in the first half of the window, so the window is
	// kept whole rather than producing a short chunk
	text := "Intro. " + strings.Repeat("w", 600)
	segments, err := Split(text, 500, 100)
	require.NoError(t, err)
	require.NotEmpty(t, segments)
	assert.Len(t, []rune(segments[0].Text), 500)
}

func TestSplitCountsRunes(t *testing.T) {
	text := strings.Repeat("é", 450) + ". " + strings.Repeat("ü", 100)
	segments, err := Split(text, 500, 100)
	require.NoError(t, err)
	require.NotEmpty(t, segments)
	assert.Len(t, []rune(segments[0].Text), 451)
}
