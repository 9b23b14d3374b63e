package parser

import (
	"fmt"
	"regexp"
	"strings"
	"unicode"

	"syllabus-rag/internal/models"
)

var (
	blankLinesRe = regexp.MustCompile(`\n{3,}`)
	spacesRe     = regexp.MustCompile(` {2,}`)
)

// Segment is a trimmed chunk of normalized text and the rune offset of the
// window it was cut from.
type Segment struct {
	Text  string
	Start int
}

// NormalizeWhitespace collapses runs of 3+ newlines to a blank line and runs
// of spaces to a single space.
func NormalizeWhitespace(text string) string {
	text = blankLinesRe.ReplaceAllString(text, "\n\n")
	return spacesRe.ReplaceAllString(text, " ")
}

// ChunkText splits text into overlapping, sentence-aligned chunks.
func ChunkText(text string, chunkSize, overlap int) ([]string, error) {
	segments, err := Split(text, chunkSize, overlap)
	if err != nil {
		return nil, err
	}
	chunks := make([]string, len(segments))
	for i, s := range segments {
		chunks[i] = s.Text
	}
	return chunks, nil
}

// Split walks the normalized text in windows of chunkSize characters. A
// window that does not reach the end of the text is cut back to its last
// ". " when that boundary lies past the middle of the window (and past the
// overlap). The next window starts overlap characters before the end of the
// previous one. Chunks of MinChunkLength characters or fewer are dropped.
func Split(text string, chunkSize, overlap int) ([]Segment, error) {
	if chunkSize <= 0 || overlap < 0 || chunkSize-overlap <= 0 {
		return nil, fmt.Errorf("%w: chunk size %d with overlap %d cannot advance",
			models.ErrInvalidConfig, chunkSize, overlap)
	}

	runes := []rune(NormalizeWhitespace(text))
	last := lastNonSpace(runes)
	if last < 0 {
		return []Segment{}, nil
	}

	minCut := max(chunkSize/2, overlap)
	segments := []Segment{}
	for start := 0; start < len(runes); {
		end := min(start+chunkSize, len(runes))
		window := runes[start:end]
		if end < len(runes) {
			if cut := lastSentenceEnd(window); cut > minCut {
				window = window[:cut+1]
			}
		}

		chunk := strings.TrimSpace(string(window))
		if len([]rune(chunk)) > models.MinChunkLength {
			segments = append(segments, Segment{Text: chunk, Start: start})
		}

		next := start + len(window)
		if next > last {
			break
		}
		start = next - overlap
	}
	return segments, nil
}

// lastSentenceEnd returns the index of the period of the last ". " fully
// inside window, or -1.
func lastSentenceEnd(window []rune) int {
	for i := len(window) - 2; i >= 0; i-- {
		if window[i] == '.' && window[i+1] == ' ' {
			return i
		}
	}
	return -1
}

func lastNonSpace(runes []rune) int {
	for i := len(runes) - 1; i >= 0; i-- {
		if !unicode.IsSpace(runes[i]) {
			return i
		}
	}
	return -1
}
