package embedding

import (
	"context"
	"fmt"
	"sync"

	"github.com/tmc/langchaingo/embeddings"

	"syllabus-rag/internal/models"
)

// Lazy is an embeddings.Embedder that builds its model client on first use.
// Initialization runs under a mutex, so concurrent first calls create the
// client once; a failed initialization is retried by the next call.
// Every vector it returns has exactly Dimension() components.
type Lazy struct {
	mu        sync.Mutex
	init      func() (embeddings.Embedder, error)
	embedder  embeddings.Embedder
	dimension int
}

var _ embeddings.Embedder = (*Lazy)(nil)

func NewLazy(dimension int, init func() (embeddings.Embedder, error)) *Lazy {
	return &Lazy{init: init, dimension: dimension}
}

func (l *Lazy) Dimension() int { return l.dimension }

func (l *Lazy) get() (embeddings.Embedder, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.embedder != nil {
		return l.embedder, nil
	}
	e, err := l.init()
	if err != nil {
		return nil, fmt.Errorf("failed to initialize embedder: %w", err)
	}
	l.embedder = e
	return e, nil
}

// EmbedDocuments returns one vector per text, in input order.
func (l *Lazy) EmbedDocuments(ctx context.Context, texts []string) ([][]float32, error) {
	if len(texts) == 0 {
		return [][]float32{}, nil
	}
	e, err := l.get()
	if err != nil {
		return nil, err
	}
	vectors, err := e.EmbedDocuments(ctx, texts)
	if err != nil {
		return nil, fmt.Errorf("failed to embed %d documents: %w", len(texts), err)
	}
	if len(vectors) != len(texts) {
		return nil, fmt.Errorf("embedder returned %d vectors for %d inputs", len(vectors), len(texts))
	}
	for i, v := range vectors {
		if err := l.check(v); err != nil {
			return nil, fmt.Errorf("document %d: %w", i, err)
		}
	}
	return vectors, nil
}

func (l *Lazy) EmbedQuery(ctx context.Context, text string) ([]float32, error) {
	e, err := l.get()
	if err != nil {
		return nil, err
	}
	v, err := e.EmbedQuery(ctx, text)
	if err != nil {
		return nil, fmt.Errorf("failed to embed query: %w", err)
	}
	if err := l.check(v); err != nil {
		return nil, err
	}
	return v, nil
}

func (l *Lazy) check(v []float32) error {
	if len(v) != l.dimension {
		return fmt.Errorf("%w: got %d, want %d", models.ErrDimensionMismatch, len(v), l.dimension)
	}
	return nil
}
