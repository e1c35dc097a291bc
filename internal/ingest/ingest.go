// Package ingest turns uploaded files into indexed documents: extract text,
// clean it, embed it and upsert it into the vector index.
package ingest

import (
	"bytes"
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"strings"
	"unicode/utf8"

	"github.com/ledongthuc/pdf"
	"golang.org/x/text/encoding/charmap"

	"github.com/orgpedia/orgpedia/internal/index"
	"github.com/orgpedia/orgpedia/internal/log"
)

// ErrUnsupportedMedia indicates a MIME type the pipeline cannot extract
// text from. Only text/* and application/pdf are supported.
var ErrUnsupportedMedia = errors.New("unsupported media type")

// ErrEmptyContent indicates the file contained no text after cleaning.
var ErrEmptyContent = errors.New("no content after cleaning")

// EmbedError wraps an embedding backend failure during ingestion.
type EmbedError struct {
	Err error
}

func (e *EmbedError) Error() string { return fmt.Sprintf("embedding content failed: %v", e.Err) }
func (e *EmbedError) Unwrap() error { return e.Err }

// Embedder produces the document vector.
type Embedder interface {
	Embed(ctx context.Context, text string) ([]float32, error)
}

// Index is the slice of the document index the pipeline drives.
type Index interface {
	EnsureSchema(ctx context.Context) error
	Upsert(ctx context.Context, doc index.Document) error
	Drop(ctx context.Context) error
	Count(ctx context.Context) (int64, error)
}

// Receipt reports a completed ingestion.
type Receipt struct {
	DocumentID    string
	DocumentCount int64 // total documents in the index afterwards
}

// Pipeline ingests documents.
type Pipeline struct {
	embedder Embedder
	index    Index
	logger   log.Logger
}

// NewPipeline creates a Pipeline.
func NewPipeline(embedder Embedder, idx Index, logger log.Logger) *Pipeline {
	return &Pipeline{embedder: embedder, index: idx, logger: logger}
}

// Ingest extracts, cleans, embeds and indexes one uploaded file. Identical
// cleaned content always maps to the same document ID, so re-uploading a
// file overwrites instead of duplicating.
//
// A failed upsert is retried exactly once after dropping and recreating the
// index schema; a second failure surfaces.
func (p *Pipeline) Ingest(ctx context.Context, data []byte, mimeType string) (*Receipt, error) {
	text, err := extract(data, mimeType)
	if err != nil {
		return nil, err
	}

	cleaned := Clean(text)
	if cleaned == "" {
		return nil, ErrEmptyContent
	}

	vec, err := p.embedder.Embed(ctx, cleaned)
	if err != nil {
		return nil, &EmbedError{Err: err}
	}

	if err := p.index.EnsureSchema(ctx); err != nil {
		return nil, fmt.Errorf("preparing index: %w", err)
	}

	doc := index.Document{
		ID:        DocumentID(cleaned),
		Content:   cleaned,
		Embedding: vec,
	}

	if err := p.index.Upsert(ctx, doc); err != nil {
		var writeErr *index.WriteError
		if !errors.As(err, &writeErr) {
			return nil, err
		}

		// One shot at self-healing: a write failure usually means the
		// schema drifted under us, so rebuild it and try again.
		p.logger.Warn("index write failed, recreating schema and retrying",
			"doc_id", doc.ID, "error", err)
		if err := p.index.Drop(ctx); err != nil {
			return nil, fmt.Errorf("recreating index: %w", err)
		}
		if err := p.index.EnsureSchema(ctx); err != nil {
			return nil, fmt.Errorf("recreating index: %w", err)
		}
		if err := p.index.Upsert(ctx, doc); err != nil {
			return nil, err
		}
	}

	count, err := p.index.Count(ctx)
	if err != nil {
		return nil, fmt.Errorf("counting documents: %w", err)
	}

	p.logger.Info("document ingested",
		"doc_id", doc.ID, "mime_type", mimeType, "content_len", len(cleaned), "index_count", count)
	return &Receipt{DocumentID: doc.ID, DocumentCount: count}, nil
}

// DocumentID derives the deterministic document ID from cleaned content.
func DocumentID(cleaned string) string {
	sum := sha256.Sum256([]byte(cleaned))
	return hex.EncodeToString(sum[:])
}

// Clean normalizes extracted text: whitespace runs collapse to single
// spaces, blank lines disappear, and the result is trimmed.
func Clean(s string) string {
	return strings.Join(strings.Fields(s), " ")
}

// extract pulls plain text out of the uploaded bytes based on the declared
// MIME type.
func extract(data []byte, mimeType string) (string, error) {
	mt := strings.ToLower(strings.TrimSpace(mimeType))
	if i := strings.Index(mt, ";"); i >= 0 {
		mt = strings.TrimSpace(mt[:i])
	}

	switch {
	case strings.HasPrefix(mt, "text/"):
		return decodeText(data), nil
	case mt == "application/pdf":
		return extractPDF(data)
	default:
		return "", fmt.Errorf("%w: %q", ErrUnsupportedMedia, mimeType)
	}
}

// decodeText decodes as UTF-8, falling back to Latin-1 when the bytes are
// not valid UTF-8. Latin-1 decoding cannot fail.
func decodeText(data []byte) string {
	if utf8.Valid(data) {
		return string(data)
	}
	decoded, _ := charmap.ISO8859_1.NewDecoder().Bytes(data)
	return string(decoded)
}

// extractPDF extracts per-page plain text and joins the pages with newlines.
func extractPDF(data []byte) (string, error) {
	r, err := pdf.NewReader(bytes.NewReader(data), int64(len(data)))
	if err != nil {
		return "", fmt.Errorf("opening pdf: %w", err)
	}

	var pages []string
	for i := 1; i <= r.NumPage(); i++ {
		page := r.Page(i)
		if page.V.IsNull() {
			continue
		}
		text, err := page.GetPlainText(nil)
		if err != nil {
			return "", fmt.Errorf("extracting text from pdf page %d: %w", i, err)
		}
		pages = append(pages, text)
	}
	return strings.Join(pages, "\n"), nil
}
