// Package db provides PostgreSQL access for media, projects, portfolios and
// analysis jobs. Embeddings are stored in pgvector columns.
package db

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/pgvector/pgvector-go"

	"github.com/jonathan/portfolio-analyzer/internal/types"
)

// DB wraps a PostgreSQL connection pool
type DB struct {
	pool *pgxpool.Pool
}

// Connect establishes a connection pool to the database
func Connect(ctx context.Context, databaseURL string) (*DB, error) {
	pool, err := pgxpool.New(ctx, databaseURL)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	// Verify connection
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	return &DB{pool: pool}, nil
}

// Close closes the connection pool
func (db *DB) Close() {
	if db.pool != nil {
		db.pool.Close()
	}
}

// Ping checks that the database is reachable
func (db *DB) Ping(ctx context.Context) error {
	return db.pool.Ping(ctx)
}

// analysisTables maps each analyzable entity kind to its table.
var analysisTables = map[types.EntityKind]string{
	types.EntityMedia:     "media",
	types.EntityProject:   "projects",
	types.EntityPortfolio: "portfolios",
}

func tableFor(kind types.EntityKind) (string, error) {
	table, ok := analysisTables[kind]
	if !ok {
		return "", fmt.Errorf("unknown entity kind %q", kind)
	}
	return table, nil
}

// analysisColumns selects the shared analysis fields. The embedding is read
// as text and parsed so no custom pgx type registration is needed.
const analysisColumns = `analysis_status, summary, embedding::text, analysis_error`

// analysisScan collects the raw analysis columns before conversion.
type analysisScan struct {
	status    string
	summary   *string
	embedding *string
	errMsg    *string
}

func (a *analysisScan) dest() []any {
	return []any{&a.status, &a.summary, &a.embedding, &a.errMsg}
}

func (a *analysisScan) analysis() (types.Analysis, error) {
	embedding, err := decodeEmbedding(a.embedding)
	if err != nil {
		return types.Analysis{}, err
	}
	return types.Analysis{
		Status:    types.AnalysisStatus(a.status),
		Summary:   a.summary,
		Embedding: embedding,
		Error:     a.errMsg,
	}, nil
}

// encodeEmbedding converts a slice to a query argument; empty becomes NULL.
func encodeEmbedding(embedding []float32) any {
	if len(embedding) == 0 {
		return nil
	}
	return pgvector.NewVector(embedding)
}

// decodeEmbedding parses the text form of a vector column.
func decodeEmbedding(text *string) ([]float32, error) {
	if text == nil {
		return nil, nil
	}
	var v pgvector.Vector
	if err := v.Scan(*text); err != nil {
		return nil, fmt.Errorf("failed to parse embedding: %w", err)
	}
	return v.Slice(), nil
}

// notFound converts pgx.ErrNoRows into types.ErrNotFound.
func notFound(err error, what string) error {
	if errors.Is(err, pgx.ErrNoRows) {
		return fmt.Errorf("%s: %w", what, types.ErrNotFound)
	}
	return fmt.Errorf("failed to get %s: %w", what, err)
}
