// Package index implements the vector document index on PostgreSQL +
// pgvector.
//
// Each index is one table (named by configuration) holding content-addressed
// documents and their embeddings. The package owns index schema lifecycle:
// creation, dimension verification against the live catalog, and the
// destructive drop-and-recreate path when the stored dimension no longer
// matches the configured one.
//
// A missing or empty index is a normal "no knowledge yet" condition: Search
// returns an empty result set, never an error, so callers can always degrade
// to answering without context.
package index

import (
	"context"
	"errors"
	"fmt"
	"regexp"
	"time"

	"github.com/jackc/pgerrcode"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/pgvector/pgvector-go"

	"github.com/orgpedia/orgpedia/internal/log"
)

// ErrInvalidName indicates the index name is not a safe SQL identifier.
var ErrInvalidName = errors.New("invalid index name")

// namePattern mirrors config validation; the index name becomes a table name.
var namePattern = regexp.MustCompile(`^[a-z][a-z0-9_]{0,62}$`)

// DimensionError reports a vector whose length does not match the index
// schema. Mismatched vectors are rejected before reaching the database.
type DimensionError struct {
	Got  int
	Want int
}

func (e *DimensionError) Error() string {
	return fmt.Sprintf("embedding dimension mismatch: got %d, index expects %d", e.Got, e.Want)
}

// WriteError wraps a backend failure during document upsert so callers can
// distinguish write failures (retryable via schema recreation) from
// validation errors (not retryable).
type WriteError struct {
	Err error
}

func (e *WriteError) Error() string { return fmt.Sprintf("index write failed: %v", e.Err) }
func (e *WriteError) Unwrap() error { return e.Err }

// Document is an indexed document. Documents are immutable: re-ingesting
// identical content produces the same ID and overwrites in place.
type Document struct {
	ID        string
	Content   string
	Embedding []float32
	CreatedAt time.Time
}

// SearchResult is a single similarity hit. Score is true cosine similarity
// in [-1, 1]; pgvector's distance encoding never leaks past this package.
type SearchResult struct {
	ID      string
	Content string
	Score   float64
}

// DB is the subset of pgxpool.Pool the store needs.
type DB interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

// Store manages one vector index. Safe for concurrent use; the underlying
// pool serializes nothing, so the documented ensure/recreate race between
// concurrent ingestions is accepted (both racers converge on the same
// schema).
type Store struct {
	db     DB
	name   string
	dims   int
	logger log.Logger
}

// New creates a Store for the named index with the given vector dimension.
func New(db DB, name string, dims int, logger log.Logger) (*Store, error) {
	if !namePattern.MatchString(name) {
		return nil, fmt.Errorf("%w: %q", ErrInvalidName, name)
	}
	if dims < 1 {
		return nil, fmt.Errorf("index dimension must be positive, got %d", dims)
	}
	return &Store{db: db, name: name, dims: dims, logger: logger}, nil
}

// Name returns the index name.
func (s *Store) Name() string { return s.name }

// Dims returns the configured vector dimension.
func (s *Store) Dims() int { return s.dims }

// table returns the quoted table identifier.
func (s *Store) table() string {
	return pgx.Identifier{s.name}.Sanitize()
}

// EnsureSchema makes sure the index table exists with the configured vector
// dimension. If the table exists with a different dimension it is dropped
// and recreated; all previously indexed documents are lost, which is the
// documented recovery for a schema change of the embedding model.
//
// EnsureSchema is idempotent and tolerates concurrent creation: a
// "relation already exists" race is treated as success.
func (s *Store) EnsureSchema(ctx context.Context) error {
	current, exists, err := s.currentDims(ctx)
	if err != nil {
		return fmt.Errorf("inspecting index %q: %w", s.name, err)
	}

	if exists && current == s.dims {
		return nil
	}

	if exists {
		s.logger.Warn("index exists with wrong dimension, recreating",
			"index", s.name, "current_dims", current, "want_dims", s.dims)
		if err := s.Drop(ctx); err != nil {
			return fmt.Errorf("dropping index %q: %w", s.name, err)
		}
	}

	return s.create(ctx)
}

// currentDims reads the embedding column dimension from the catalog.
// pgvector stores the declared dimension in atttypmod.
func (s *Store) currentDims(ctx context.Context) (dims int, exists bool, err error) {
	const q = `
		SELECT a.atttypmod
		FROM pg_attribute a
		JOIN pg_class c ON a.attrelid = c.oid
		JOIN pg_namespace n ON c.relnamespace = n.oid
		WHERE n.nspname = current_schema()
		  AND c.relname = $1
		  AND a.attname = 'embedding'`

	var typmod int32
	if err := s.db.QueryRow(ctx, q, s.name).Scan(&typmod); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return 0, false, nil
		}
		return 0, false, err
	}
	return int(typmod), true, nil
}

func (s *Store) create(ctx context.Context) error {
	stmt := fmt.Sprintf(`
		CREATE TABLE IF NOT EXISTS %s (
			id         text PRIMARY KEY,
			content    text NOT NULL,
			embedding  vector(%d) NOT NULL,
			created_at timestamptz NOT NULL DEFAULT now()
		)`, s.table(), s.dims)

	if _, err := s.db.Exec(ctx, stmt); err != nil {
		if isAlreadyExists(err) {
			s.logger.Debug("index created concurrently", "index", s.name)
			return nil
		}
		return fmt.Errorf("creating index %q: %w", s.name, err)
	}

	s.logger.Info("index schema ready", "index", s.name, "dims", s.dims)
	return nil
}

// isAlreadyExists reports whether err is a lost create race. Concurrent
// CREATE TABLE IF NOT EXISTS can still surface duplicate_table or a unique
// violation on the catalog; both mean another caller won the race.
func isAlreadyExists(err error) bool {
	var pgErr *pgconn.PgError
	if !errors.As(err, &pgErr) {
		return false
	}
	return pgErr.Code == pgerrcode.DuplicateTable || pgErr.Code == pgerrcode.UniqueViolation
}

// isUndefinedTable reports whether err means the index table does not exist.
func isUndefinedTable(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == pgerrcode.UndefinedTable
}

// Upsert writes a document, overwriting any existing document with the same
// ID. The write is immediately visible to the next Search (no separate
// refresh step in PostgreSQL).
func (s *Store) Upsert(ctx context.Context, doc Document) error {
	if len(doc.Embedding) != s.dims {
		return &DimensionError{Got: len(doc.Embedding), Want: s.dims}
	}
	if doc.CreatedAt.IsZero() {
		doc.CreatedAt = time.Now().UTC()
	}

	stmt := fmt.Sprintf(`
		INSERT INTO %s (id, content, embedding, created_at)
		VALUES ($1, $2, $3, $4)
		ON CONFLICT (id) DO UPDATE
		SET content = EXCLUDED.content,
		    embedding = EXCLUDED.embedding,
		    created_at = EXCLUDED.created_at`, s.table())

	vec := pgvector.NewVector(doc.Embedding)
	if _, err := s.db.Exec(ctx, stmt, doc.ID, doc.Content, vec, doc.CreatedAt); err != nil {
		return &WriteError{Err: err}
	}

	s.logger.Debug("indexed document", "index", s.name, "id", doc.ID, "content_len", len(doc.Content))
	return nil
}

// Search returns up to size documents with cosine similarity >= minScore to
// the query vector, most similar first. Ties break by document ID ascending
// so results are deterministic.
//
// A missing index table returns an empty result set: nothing has been
// ingested yet and the caller should proceed without context.
func (s *Store) Search(ctx context.Context, query []float32, size int, minScore float64) ([]SearchResult, error) {
	if len(query) != s.dims {
		return nil, &DimensionError{Got: len(query), Want: s.dims}
	}
	if size < 1 {
		size = 1
	}

	stmt := fmt.Sprintf(`
		SELECT id, content, 1 - (embedding <=> $1) AS score
		FROM %s
		WHERE 1 - (embedding <=> $1) >= $2
		ORDER BY embedding <=> $1 ASC, id ASC
		LIMIT $3`, s.table())

	vec := pgvector.NewVector(query)
	rows, err := s.db.Query(ctx, stmt, vec, minScore, size)
	if err != nil {
		if isUndefinedTable(err) {
			s.logger.Debug("index does not exist yet, returning no results", "index", s.name)
			return nil, nil
		}
		return nil, fmt.Errorf("searching index %q: %w", s.name, err)
	}
	defer rows.Close()

	var results []SearchResult
	for rows.Next() {
		var r SearchResult
		if err := rows.Scan(&r.ID, &r.Content, &r.Score); err != nil {
			return nil, fmt.Errorf("scanning search result: %w", err)
		}
		results = append(results, r)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("reading search results: %w", err)
	}

	s.logger.Debug("index search",
		"index", s.name, "hits", len(results), "min_score", minScore, "size", size)
	return results, nil
}

// Count returns the number of indexed documents, or zero when the index
// does not exist.
func (s *Store) Count(ctx context.Context) (int64, error) {
	var n int64
	err := s.db.QueryRow(ctx, fmt.Sprintf(`SELECT count(*) FROM %s`, s.table())).Scan(&n)
	if err != nil {
		if isUndefinedTable(err) {
			return 0, nil
		}
		return 0, fmt.Errorf("counting documents in %q: %w", s.name, err)
	}
	return n, nil
}

// Drop removes the index table entirely.
func (s *Store) Drop(ctx context.Context) error {
	if _, err := s.db.Exec(ctx, fmt.Sprintf(`DROP TABLE IF EXISTS %s`, s.table())); err != nil {
		return fmt.Errorf("dropping index %q: %w", s.name, err)
	}
	s.logger.Info("index dropped", "index", s.name)
	return nil
}
