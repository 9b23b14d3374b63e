package rag

import (
	"context"
	"fmt"
	"regexp"
	"strings"

	"github.com/rs/zerolog/log"
	"github.com/tmc/langchaingo/embeddings"

	"syllabus-rag/internal/config"
	"syllabus-rag/internal/helper"
	"syllabus-rag/internal/llmservice"
	"syllabus-rag/internal/models"
	"syllabus-rag/internal/parser"
)

var thinkRe = regexp.MustCompile(models.ThinkTag)

// VectorIndex stores embedded chunks and answers nearest-neighbour queries
// by cosine similarity.
type VectorIndex interface {
	Upsert(ctx context.Context, chunks []models.Chunk) error
	Query(ctx context.Context, vector []float32, topK int) ([]models.Match, error)
	Count(ctx context.Context) (int, error)
	Reset(ctx context.Context) error
}

type RAG struct {
	index     VectorIndex
	embedder  embeddings.Embedder
	completer llmservice.Completer
	cfg       *config.Config
}

func NewRAG(index VectorIndex, embedder embeddings.Embedder, completer llmservice.Completer, cfg *config.Config) *RAG {
	return &RAG{index: index, embedder: embedder, completer: completer, cfg: cfg}
}

// BuildChunks splits text into chunks numbered in document order, each tagged
// with the syllabus heading it falls under.
func BuildChunks(text string, chunkSize, overlap int) ([]models.Chunk, error) {
	segments, err := parser.Split(text, chunkSize, overlap)
	if err != nil {
		return nil, err
	}
	headings := parser.Headings(parser.NormalizeWhitespace(text))

	chunks := make([]models.Chunk, len(segments))
	for i, s := range segments {
		chunks[i] = models.Chunk{
			ID:       helper.ChunkID(s.Text, i),
			Text:     s.Text,
			Position: i,
			Section:  parser.SectionAt(headings, s.Start),
		}
	}
	return chunks, nil
}

// IndexChunks embeds and upserts chunks batchSize at a time. It stops at the
// first failing batch and returns how many chunks were written before it.
func IndexChunks(ctx context.Context, index VectorIndex, embedder embeddings.Embedder, chunks []models.Chunk, batchSize int) (int, error) {
	if batchSize <= 0 {
		batchSize = models.DefaultBatchSize
	}
	written := 0
	for start := 0; start < len(chunks); start += batchSize {
		batch := chunks[start:min(start+batchSize, len(chunks))]

		texts := make([]string, len(batch))
		for i, c := range batch {
			texts[i] = c.Text
		}
		vectors, err := embedder.EmbedDocuments(ctx, texts)
		if err != nil {
			return written, fmt.Errorf("failed to embed batch at chunk %d: %w", start, err)
		}
		if len(vectors) != len(batch) {
			return written, fmt.Errorf("embedder returned %d vectors for %d chunks", len(vectors), len(batch))
		}
		for i := range batch {
			batch[i].Vector = vectors[i]
		}

		if err := index.Upsert(ctx, batch); err != nil {
			return written, fmt.Errorf("%w: %d/%d chunks written: %w",
				models.ErrPartialUpsert, written, len(chunks), err)
		}
		written += len(batch)
		log.Debug().Int("written", written).Int("total", len(chunks)).Msg("Upserted batch")
	}
	return written, nil
}

// IndexDocument extracts, chunks, embeds and stores one uploaded file.
func (r *RAG) IndexDocument(ctx context.Context, data []byte, filename string) (int, error) {
	text, err := parser.ExtractText(data, filename)
	if err != nil {
		return 0, err
	}
	return r.IndexText(ctx, text, filename)
}

func (r *RAG) IndexText(ctx context.Context, text, name string) (int, error) {
	chunks, err := BuildChunks(text, r.cfg.RAG.ChunkSize, r.cfg.RAG.ChunkOverlap)
	if err != nil {
		return 0, err
	}
	if len(chunks) == 0 {
		log.Warn().Str("document", name).Msg("No chunks extracted")
		return 0, nil
	}

	written, err := IndexChunks(ctx, r.index, r.embedder, chunks, r.cfg.RAG.BatchSize)
	if err != nil {
		return written, err
	}
	log.Info().Str("document", name).Int("chunks", written).Msg("Indexed document")
	return written, nil
}

// Retrieve returns the chunks most similar to question, best first.
func (r *RAG) Retrieve(ctx context.Context, question string) ([]models.Match, error) {
	vector, err := r.embedder.EmbedQuery(ctx, question)
	if err != nil {
		return nil, err
	}
	matches, err := r.index.Query(ctx, vector, r.cfg.RAG.TopK)
	if err != nil {
		return nil, err
	}
	return matches, nil
}

// Query answers question from the indexed chunks. An empty index is not an
// error; the model is still asked, with an empty context.
func (r *RAG) Query(ctx context.Context, question string) (*models.PromptResponse, error) {
	matches, err := r.Retrieve(ctx, question)
	if err != nil {
		return nil, err
	}
	log.Debug().Str("query", question).Int("matches", len(matches)).Msg("Retrieved context")

	answer, err := r.completer.Complete(ctx, BuildPrompt(question, matches), llmservice.Params{
		MaxTokens:   r.cfg.InferenceLLM.MaxTokens,
		Temperature: r.cfg.InferenceLLM.Temperature,
	})
	if err != nil {
		return nil, err
	}

	return &models.PromptResponse{
		Query:   question,
		Source:  SourceLabel(matches),
		Content: CleanAnswer(answer),
		Matches: matches,
	}, nil
}

// Reset empties the index.
func (r *RAG) Reset(ctx context.Context) error {
	return r.index.Reset(ctx)
}

func (r *RAG) Count(ctx context.Context) (int, error) {
	return r.index.Count(ctx)
}

// BuildPrompt joins the matched texts in rank order into the user prompt
// under the fixed system prompt.
func BuildPrompt(question string, matches []models.Match) []llmservice.Message {
	texts := make([]string, len(matches))
	for i, m := range matches {
		texts[i] = m.Chunk.Text
	}
	joined := strings.Join(texts, models.ContextSeparator)

	return []llmservice.Message{
		{Role: llmservice.RoleSystem, Content: models.SystemPrompt},
		{Role: llmservice.RoleUser, Content: fmt.Sprintf(models.UserPromptTemplate, joined, question)},
	}
}

// SourceLabel renders "Chunk <rank>: <preview>..." per match.
func SourceLabel(matches []models.Match) string {
	labels := make([]string, len(matches))
	for i, m := range matches {
		preview := []rune(m.Chunk.Text)
		if len(preview) > models.SourcePreviewLength {
			preview = preview[:models.SourcePreviewLength]
		}
		labels[i] = fmt.Sprintf("Chunk %d: %s...", i+1, string(preview))
	}
	return strings.Join(labels, models.SourceSeparator)
}

// CleanAnswer drops <think> blocks from reasoning models.
func CleanAnswer(answer string) string {
	return strings.TrimSpace(thinkRe.ReplaceAllString(answer, ""))
}
