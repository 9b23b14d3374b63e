package chromemdb

import (
	"context"
	"errors"
	"fmt"
	"os"
	"runtime"
	"sort"
	"strconv"

	"github.com/philippgille/chromem-go"
	"github.com/rs/zerolog/log"

	"syllabus-rag/internal/config"
	"syllabus-rag/internal/models"
)

const (
	metaText     = "text"
	metaPosition = "position"
	metaSection  = "section"
)

var errPrecomputed = errors.New("chromem collection only accepts precomputed embeddings")

// VectorDBManager is a chromem-go collection used as a cosine vector index.
type VectorDBManager struct {
	db            *chromem.DB
	collection    *chromem.Collection
	name          string
	dimension     int
	compress      bool
	encryptionKey string
	snapshot      string
}

// NewVectorDBManager opens the chromem DB described by cfg: persistent when
// cfg.Path is set, in memory otherwise. An existing snapshot file is imported.
func NewVectorDBManager(cfg config.ChromemConfig) (*VectorDBManager, error) {
	var (
		db  *chromem.DB
		err error
	)
	if cfg.Path == "" {
		db = chromem.NewDB()
	} else {
		db, err = chromem.NewPersistentDB(cfg.Path, cfg.Compress)
		if err != nil {
			return nil, fmt.Errorf("failed to create database: %w", err)
		}
	}

	m := &VectorDBManager{
		db:            db,
		compress:      cfg.Compress,
		encryptionKey: cfg.EncryptionKey,
		snapshot:      cfg.Snapshot,
	}
	if m.snapshot != "" {
		if _, err := os.Stat(m.snapshot); err == nil {
			if err := m.Import(); err != nil {
				return nil, err
			}
		}
	}
	return m, nil
}

// NewWithDB wraps an already opened chromem DB.
func NewWithDB(db *chromem.DB) *VectorDBManager {
	return &VectorDBManager{db: db}
}

// GetOrCreateCollection opens the named collection, creating it with the
// given dimension and cosine metric when absent. A reused collection that
// holds vectors of another dimension is rejected.
func (m *VectorDBManager) GetOrCreateCollection(ctx context.Context, name string, dimension int) (*chromem.Collection, error) {
	metadata := map[string]string{
		"dimension": strconv.Itoa(dimension),
		"metric":    "cosine",
	}
	c, err := m.db.GetOrCreateCollection(name, metadata, refuseEmbedding)
	if err != nil {
		return nil, fmt.Errorf("failed to create/get collection: %w", err)
	}
	m.collection = c
	m.name = name
	m.dimension = dimension

	if err := m.checkDimension(ctx); err != nil {
		return nil, err
	}
	log.Debug().Str("collection", name).Int("documents", c.Count()).Msg("Opened collection")
	return c, nil
}

func refuseEmbedding(context.Context, string) ([]float32, error) {
	return nil, errPrecomputed
}

// checkDimension probes a non-empty collection with a unit vector of the
// configured dimension; chromem refuses vectors of a different length.
func (m *VectorDBManager) checkDimension(ctx context.Context) error {
	if m.collection.Count() == 0 {
		return nil
	}
	probe := make([]float32, m.dimension)
	probe[0] = 1
	res, err := m.collection.QueryEmbedding(ctx, probe, 1, nil, nil)
	if err != nil {
		return fmt.Errorf("%w: collection %q does not accept %d-d vectors: %v",
			models.ErrDimensionMismatch, m.name, m.dimension, err)
	}
	if len(res) > 0 && len(res[0].Embedding) != m.dimension {
		return fmt.Errorf("%w: collection %q holds %d-d vectors, want %d",
			models.ErrDimensionMismatch, m.name, len(res[0].Embedding), m.dimension)
	}
	return nil
}

// Upsert writes chunks, replacing entries with the same id.
func (m *VectorDBManager) Upsert(ctx context.Context, chunks []models.Chunk) error {
	if m.collection == nil {
		return errors.New("collection is required")
	}
	if len(chunks) == 0 {
		return nil
	}
	docs := make([]chromem.Document, len(chunks))
	for i, c := range chunks {
		if len(c.Vector) != m.dimension {
			return fmt.Errorf("%w: chunk %s has %d-d vector, want %d",
				models.ErrDimensionMismatch, c.ID, len(c.Vector), m.dimension)
		}
		docs[i] = chromem.Document{
			ID:        c.ID,
			Content:   c.Text,
			Metadata:  metadataOf(c),
			Embedding: c.Vector,
		}
	}
	if err := m.collection.AddDocuments(ctx, docs, runtime.NumCPU()); err != nil {
		return fmt.Errorf("failed to add documents: %w", err)
	}
	return nil
}

// Query returns up to topK chunks by descending cosine similarity, ties
// ordered by document position.
func (m *VectorDBManager) Query(ctx context.Context, vector []float32, topK int) ([]models.Match, error) {
	if m.collection == nil {
		return nil, errors.New("collection is required")
	}
	if topK <= 0 {
		topK = models.DefaultTopK
	}
	count := m.collection.Count()
	if count == 0 {
		return []models.Match{}, nil
	}

	// chromem picks among equal scores arbitrarily, so rank the whole
	// collection and cut after ordering ties by position.
	results, err := m.collection.QueryWithOptions(ctx, chromem.QueryOptions{
		QueryEmbedding: vector,
		NResults:       count,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to query by similarity: %w", err)
	}

	matches := make([]models.Match, 0, len(results))
	for _, r := range results {
		matches = append(matches, models.Match{
			Chunk:      chunkOf(r),
			Similarity: float64(r.Similarity),
		})
	}
	sort.SliceStable(matches, func(i, j int) bool {
		if matches[i].Similarity != matches[j].Similarity {
			return matches[i].Similarity > matches[j].Similarity
		}
		return matches[i].Chunk.Position < matches[j].Chunk.Position
	})
	return matches[:min(topK, len(matches))], nil
}

func (m *VectorDBManager) Count(ctx context.Context) (int, error) {
	if m.collection == nil {
		return 0, errors.New("collection is required")
	}
	return m.collection.Count(), nil
}

// Reset drops the collection and recreates it empty.
func (m *VectorDBManager) Reset(ctx context.Context) error {
	if m.collection == nil {
		return errors.New("collection is required")
	}
	if err := m.db.DeleteCollection(m.name); err != nil {
		return fmt.Errorf("failed to drop collection: %w", err)
	}
	_, err := m.GetOrCreateCollection(ctx, m.name, m.dimension)
	return err
}

// Export writes the collection to the snapshot file, if one is configured.
func (m *VectorDBManager) Export() error {
	if m.snapshot == "" {
		return nil
	}
	if m.collection == nil {
		return errors.New("collection is required")
	}
	log.Debug().Str("collection", m.name).Str("file", m.snapshot).Bool("compress", m.compress).Msg("Exporting collection")
	if err := m.db.ExportToFile(m.snapshot, m.compress, m.encryptionKey, m.name); err != nil {
		return fmt.Errorf("failed to export database: %w", err)
	}
	return nil
}

// Import loads every collection stored in the snapshot file.
func (m *VectorDBManager) Import() error {
	log.Debug().Str("file", m.snapshot).Msg("Importing snapshot")
	if err := m.db.ImportFromFile(m.snapshot, m.encryptionKey); err != nil {
		return fmt.Errorf("failed to import database: %w", err)
	}
	return nil
}

func metadataOf(c models.Chunk) map[string]string {
	md := map[string]string{
		metaText:     c.Text,
		metaPosition: strconv.Itoa(c.Position),
	}
	if c.Section != "" {
		md[metaSection] = c.Section
	}
	return md
}

func chunkOf(r chromem.Result) models.Chunk {
	pos, _ := strconv.Atoi(r.Metadata[metaPosition])
	text := r.Metadata[metaText]
	if text == "" {
		text = r.Content
	}
	return models.Chunk{
		ID:       r.ID,
		Text:     text,
		Position: pos,
		Section:  r.Metadata[metaSection],
		Vector:   r.Embedding,
	}
}
