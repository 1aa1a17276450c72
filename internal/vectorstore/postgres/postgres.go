package postgres

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/pgvector/pgvector-go"

	"github.com/unihelp/cli/internal/vectorstore"
)

// Store keeps entries in Postgres with the pgvector extension. The seq
// column records insertion order; upserts leave it untouched, so ties keep
// ranking the entry that was indexed first.
type Store struct {
	pool      *pgxpool.Pool
	dimension int
}

var _ vectorstore.Store = (*Store)(nil)

// New creates a connection pool and verifies the database is reachable.
func New(connString string) (*Store, error) {
	config, err := pgxpool.ParseConfig(connString)
	if err != nil {
		return nil, fmt.Errorf("failed to parse connection string: %w", err)
	}

	config.MaxConns = 10
	config.MaxConnLifetime = time.Hour
	config.MaxConnIdleTime = time.Minute * 30

	pool, err := pgxpool.NewWithConfig(context.Background(), config)
	if err != nil {
		return nil, fmt.Errorf("failed to create connection pool: %w", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("%w: failed to ping database: %v", vectorstore.ErrIndexUnavailable, err)
	}

	return &Store{pool: pool}, nil
}

// Close closes the connection pool.
func (s *Store) Close() {
	s.pool.Close()
}

// Init creates the schema if needed and verifies the vector size of
// existing entries.
func (s *Store) Init(ctx context.Context, dimension int) error {
	if dimension <= 0 {
		return errors.New("invalid dimension")
	}
	s.dimension = dimension

	ddl := []string{
		`CREATE EXTENSION IF NOT EXISTS vector`,
		fmt.Sprintf(`CREATE TABLE IF NOT EXISTS entries (
			id UUID PRIMARY KEY,
			document TEXT NOT NULL,
			ordinal INTEGER NOT NULL,
			content TEXT NOT NULL,
			doc_hash TEXT NOT NULL,
			title TEXT NOT NULL DEFAULT '',
			embedding vector(%d) NOT NULL,
			seq BIGSERIAL,
			created_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
		)`, dimension),
		`CREATE INDEX IF NOT EXISTS entries_document_idx ON entries (document)`,
	}
	for _, stmt := range ddl {
		if _, err := s.pool.Exec(ctx, stmt); err != nil {
			return fmt.Errorf("%w: failed to run migration: %v", vectorstore.ErrIndexUnavailable, err)
		}
	}

	// An existing table may have been created for a different model.
	var existing int
	err := s.pool.QueryRow(ctx, `SELECT vector_dims(embedding) FROM entries LIMIT 1`).Scan(&existing)
	if err == pgx.ErrNoRows {
		return nil
	}
	if err != nil {
		return fmt.Errorf("%w: failed to inspect entries: %v", vectorstore.ErrIndexUnavailable, err)
	}
	if existing != dimension {
		return fmt.Errorf("%w: table holds %d-dimensional vectors, embedder produces %d",
			vectorstore.ErrDimensionMismatch, existing, dimension)
	}
	return nil
}

// Upsert writes entries in one batch, overwriting rows with the same ID.
func (s *Store) Upsert(ctx context.Context, entries []vectorstore.Entry) error {
	if len(entries) == 0 {
		return nil
	}

	batch := &pgx.Batch{}
	for _, e := range entries {
		if s.dimension != 0 && len(e.Vector) != s.dimension {
			return fmt.Errorf("%w: entry %s has %d dimensions, table expects %d",
				vectorstore.ErrDimensionMismatch, e.ID, len(e.Vector), s.dimension)
		}
		batch.Queue(
			`INSERT INTO entries (id, document, ordinal, content, doc_hash, title, embedding)
			 VALUES ($1, $2, $3, $4, $5, $6, $7)
			 ON CONFLICT (id) DO UPDATE SET
				document = EXCLUDED.document,
				ordinal = EXCLUDED.ordinal,
				content = EXCLUDED.content,
				doc_hash = EXCLUDED.doc_hash,
				title = EXCLUDED.title,
				embedding = EXCLUDED.embedding`,
			e.ID, e.Document, e.Ordinal, e.Content, e.DocHash, e.Title, pgvector.NewVector(e.Vector),
		)
	}
	br := s.pool.SendBatch(ctx, batch)
	defer br.Close()

	for i := 0; i < len(entries); i++ {
		if _, err := br.Exec(); err != nil {
			return fmt.Errorf("%w: failed to upsert entry %d: %v", vectorstore.ErrIndexUnavailable, i, err)
		}
	}
	return nil
}

// Search ranks entries by cosine similarity, breaking ties by insertion
// order via the seq column.
func (s *Store) Search(ctx context.Context, vector []float32, k int) ([]vectorstore.Hit, error) {
	if s.dimension != 0 && len(vector) != s.dimension {
		return nil, fmt.Errorf("%w: query has %d dimensions, table expects %d",
			vectorstore.ErrDimensionMismatch, len(vector), s.dimension)
	}
	if k <= 0 {
		return nil, nil
	}

	rows, err := s.pool.Query(ctx,
		`SELECT id, document, ordinal, content, doc_hash, title, 1 - (embedding <=> $1) AS score
		 FROM entries
		 ORDER BY embedding <=> $1, seq
		 LIMIT $2`,
		pgvector.NewVector(vector), k,
	)
	if err != nil {
		return nil, fmt.Errorf("%w: failed to search entries: %v", vectorstore.ErrIndexUnavailable, err)
	}
	defer rows.Close()

	var hits []vectorstore.Hit
	for rows.Next() {
		var h vectorstore.Hit
		if err := rows.Scan(&h.ID, &h.Document, &h.Ordinal, &h.Content, &h.DocHash, &h.Title, &h.Score); err != nil {
			return nil, fmt.Errorf("failed to scan entry: %w", err)
		}
		hits = append(hits, h)
	}
	return hits, rows.Err()
}

// DeleteDocument removes every entry of one document.
func (s *Store) DeleteDocument(ctx context.Context, document string) error {
	if _, err := s.pool.Exec(ctx, `DELETE FROM entries WHERE document = $1`, document); err != nil {
		return fmt.Errorf("%w: failed to delete document: %v", vectorstore.ErrIndexUnavailable, err)
	}
	return nil
}

// Prune removes entries of a document whose ordinal is >= keep.
func (s *Store) Prune(ctx context.Context, document string, keep int) error {
	if _, err := s.pool.Exec(ctx, `DELETE FROM entries WHERE document = $1 AND ordinal >= $2`, document, keep); err != nil {
		return fmt.Errorf("%w: failed to prune document: %v", vectorstore.ErrIndexUnavailable, err)
	}
	return nil
}

// Sources lists the distinct documents currently indexed.
func (s *Store) Sources(ctx context.Context) ([]string, error) {
	rows, err := s.pool.Query(ctx, `SELECT DISTINCT document FROM entries ORDER BY document`)
	if err != nil {
		return nil, fmt.Errorf("%w: failed to list sources: %v", vectorstore.ErrIndexUnavailable, err)
	}
	defer rows.Close()

	var sources []string
	for rows.Next() {
		var doc string
		if err := rows.Scan(&doc); err != nil {
			return nil, fmt.Errorf("failed to scan source: %w", err)
		}
		sources = append(sources, doc)
	}
	return sources, rows.Err()
}

// DocumentHash returns the hash recorded for a document, or "" when the
// document is not indexed.
func (s *Store) DocumentHash(ctx context.Context, document string) (string, error) {
	var hash string
	err := s.pool.QueryRow(ctx, `SELECT doc_hash FROM entries WHERE document = $1 LIMIT 1`, document).Scan(&hash)
	if err == pgx.ErrNoRows {
		return "", nil
	}
	if err != nil {
		return "", fmt.Errorf("%w: failed to get document hash: %v", vectorstore.ErrIndexUnavailable, err)
	}
	return hash, nil
}

// Count returns the total number of entries.
func (s *Store) Count(ctx context.Context) (int, error) {
	var count int
	if err := s.pool.QueryRow(ctx, `SELECT COUNT(*) FROM entries`).Scan(&count); err != nil {
		return 0, fmt.Errorf("%w: failed to count entries: %v", vectorstore.ErrIndexUnavailable, err)
	}
	return count, nil
}

// Clear removes all entries and resets insertion order.
func (s *Store) Clear(ctx context.Context) error {
	if _, err := s.pool.Exec(ctx, `TRUNCATE entries RESTART IDENTITY`); err != nil {
		return fmt.Errorf("%w: failed to clear entries: %v", vectorstore.ErrIndexUnavailable, err)
	}
	return nil
}
