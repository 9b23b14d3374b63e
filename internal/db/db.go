package db

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"regexp"
	"strings"

	_ "github.com/lib/pq"
	"github.com/pgvector/pgvector-go"
	"github.com/rs/zerolog/log"
	"github.com/uptrace/bun"
	"github.com/uptrace/bun/dialect/pgdialect"
	"github.com/uptrace/bun/driver/pgdriver"
	"github.com/uptrace/bun/extra/bundebug"

	"syllabus-rag/internal/config"
	"syllabus-rag/internal/models"
)

var nonIdentRe = regexp.MustCompile(`[^a-z0-9_]+`)

// Document is one chunk row of an index table.
type Document struct {
	bun.BaseModel `bun:"alias:d"`
	ID            string          `bun:"id,pk"`
	Content       string          `bun:"content,notnull"`
	Position      int             `bun:"position,notnull"`
	Section       string          `bun:"section,nullzero"`
	Embedding     pgvector.Vector `bun:"embedding,notnull"`
}

type scoredDocument struct {
	Document
	Similarity float64 `bun:"similarity,scanonly"`
}

// Store is a pgvector-backed index, one table per index name.
type Store struct {
	db        *bun.DB
	table     string
	dimension int
}

func NewDB(sqldb *sql.DB, debug bool) *bun.DB {
	db := bun.NewDB(sqldb, pgdialect.New())
	if debug {
		db.AddQueryHook(bundebug.NewQueryHook(bundebug.WithVerbose(true)))
	}
	return db
}

// ConnectDB opens Postgres through bun's pgdriver, or lib/pq when
// cfg.Driver is "pq".
func ConnectDB(cfg *config.DatabaseConfig) (*sql.DB, error) {
	if cfg.Driver == "pq" {
		return sql.Open("postgres", cfg.DSN)
	}
	opts := []pgdriver.Option{pgdriver.WithDSN(cfg.DSN)}
	if cfg.Password != "" {
		opts = append(opts, pgdriver.WithPassword(cfg.Password))
	}
	return sql.OpenDB(pgdriver.NewConnector(opts...)), nil
}

// TableName maps an index name such as "syllabus-rag" to a safe identifier.
func TableName(indexName string) string {
	name := nonIdentRe.ReplaceAllString(strings.ToLower(indexName), "_")
	name = strings.Trim(name, "_")
	if name == "" {
		name = "documents"
	}
	return "idx_" + name
}

// Open creates the vector extension and the index table when missing. An
// existing table whose embedding column has another dimension is rejected.
func Open(ctx context.Context, db *bun.DB, indexName string, dimension int) (*Store, error) {
	s := &Store{db: db, table: TableName(indexName), dimension: dimension}

	if _, err := db.ExecContext(ctx, "CREATE EXTENSION IF NOT EXISTS vector"); err != nil {
		return nil, fmt.Errorf("failed to create vector extension: %w", err)
	}

	existing, err := s.columnType(ctx)
	switch {
	case errors.Is(err, sql.ErrNoRows):
		if err := s.createTable(ctx); err != nil {
			return nil, err
		}
		log.Info().Str("table", s.table).Int("dimension", dimension).Msg("Created index table")
	case err != nil:
		return nil, fmt.Errorf("failed to inspect table %s: %w", s.table, err)
	case existing != vectorType(dimension):
		return nil, fmt.Errorf("%w: table %s has %s, want %s",
			models.ErrDimensionMismatch, s.table, existing, vectorType(dimension))
	}
	return s, nil
}

func vectorType(dimension int) string {
	return fmt.Sprintf("vector(%d)", dimension)
}

func (s *Store) columnType(ctx context.Context) (string, error) {
	var typ string
	err := s.db.NewRaw(
		`SELECT format_type(atttypid, atttypmod) FROM pg_attribute
		 WHERE attrelid = to_regclass(?) AND attname = 'embedding' AND NOT attisdropped`,
		s.table,
	).Scan(ctx, &typ)
	return typ, err
}

func (s *Store) createTable(ctx context.Context) error {
	_, err := s.db.ExecContext(ctx, `CREATE TABLE IF NOT EXISTS ? (
		id text PRIMARY KEY,
		content text NOT NULL,
		position integer NOT NULL,
		section text,
		embedding vector(?) NOT NULL
	)`, bun.Ident(s.table), s.dimension)
	if err != nil {
		return fmt.Errorf("failed to create table %s: %w", s.table, err)
	}
	return nil
}

// Upsert inserts chunks, overwriting rows with the same id.
func (s *Store) Upsert(ctx context.Context, chunks []models.Chunk) error {
	if len(chunks) == 0 {
		return nil
	}
	docs := make([]Document, len(chunks))
	for i, c := range chunks {
		if len(c.Vector) != s.dimension {
			return fmt.Errorf("%w: chunk %s has %d-d vector, want %d",
				models.ErrDimensionMismatch, c.ID, len(c.Vector), s.dimension)
		}
		docs[i] = Document{
			ID:        c.ID,
			Content:   c.Text,
			Position:  c.Position,
			Section:   c.Section,
			Embedding: pgvector.NewVector(c.Vector),
		}
	}
	_, err := s.db.NewInsert().
		Model(&docs).
		ModelTableExpr("? AS d", bun.Ident(s.table)).
		On("CONFLICT (id) DO UPDATE").
		Set("content = EXCLUDED.content").
		Set("position = EXCLUDED.position").
		Set("section = EXCLUDED.section").
		Set("embedding = EXCLUDED.embedding").
		Exec(ctx)
	if err != nil {
		return fmt.Errorf("failed to upsert %d documents: %w", len(docs), err)
	}
	return nil
}

// Query orders rows by cosine distance, ties by position.
func (s *Store) Query(ctx context.Context, vector []float32, topK int) ([]models.Match, error) {
	if topK <= 0 {
		topK = models.DefaultTopK
	}
	q := pgvector.NewVector(vector)
	var rows []scoredDocument
	err := s.db.NewSelect().
		Model(&rows).
		ModelTableExpr("? AS d", bun.Ident(s.table)).
		Column("d.id", "d.content", "d.position", "d.section", "d.embedding").
		ColumnExpr("1 - (d.embedding <=> ?) AS similarity", q).
		OrderExpr("d.embedding <=> ?", q).
		OrderExpr("d.position ASC").
		Limit(topK).
		Scan(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to search documents: %w", err)
	}

	matches := make([]models.Match, 0, len(rows))
	for _, r := range rows {
		matches = append(matches, models.Match{
			Chunk: models.Chunk{
				ID:       r.ID,
				Text:     r.Content,
				Position: r.Position,
				Section:  r.Section,
				Vector:   r.Embedding.Slice(),
			},
			Similarity: r.Similarity,
		})
	}
	return matches, nil
}

func (s *Store) Count(ctx context.Context) (int, error) {
	n, err := s.db.NewSelect().
		Model((*Document)(nil)).
		ModelTableExpr("? AS d", bun.Ident(s.table)).
		Count(ctx)
	if err != nil {
		return 0, fmt.Errorf("failed to count documents: %w", err)
	}
	return n, nil
}

// Reset drops the index table and creates it again empty.
func (s *Store) Reset(ctx context.Context) error {
	if _, err := s.db.ExecContext(ctx, "DROP TABLE IF EXISTS ?", bun.Ident(s.table)); err != nil {
		return fmt.Errorf("failed to drop table %s: %w", s.table, err)
	}
	return s.createTable(ctx)
}

func (s *Store) Close() error {
	return s.db.Close()
}
