// Package pgvector provides a PostgreSQL chunk store using the pgvector
// extension.
package pgvector

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	pgv "github.com/pgvector/pgvector-go"
	pgxvector "github.com/pgvector/pgvector-go/pgx"

	"github.com/papercomputeco/folio/pkg/vector"
)

// DefaultTable is the default table holding page chunks.
const DefaultTable = "folio_chunks"

// Config holds configuration for the pgvector driver.
type Config struct {
	// DSN is the PostgreSQL connection string.
	DSN string

	// Table is the chunk table name. Defaults to DefaultTable.
	Table string

	// Dimensions sizes the embedding column when the table is created.
	Dimensions uint

	MaxConns int32
}

// Driver implements vector.Driver on top of a pgx connection pool.
type Driver struct {
	pool   *pgxpool.Pool
	table  string
	logger *slog.Logger
}

// NewDriver opens the pool, registers the pgvector types on every
// connection and ensures the chunk table exists.
func NewDriver(ctx context.Context, c Config, logger *slog.Logger) (*Driver, error) {
	if c.DSN == "" {
		return nil, errors.New("postgres DSN is required")
	}
	if c.Dimensions == 0 {
		return nil, errors.New("pgvector embedding dimensions cannot be 0, must be configured")
	}
	if c.Table == "" {
		c.Table = DefaultTable
	}

	config, err := pgxpool.ParseConfig(c.DSN)
	if err != nil {
		return nil, fmt.Errorf("parsing postgres DSN: %w", err)
	}
	if c.MaxConns > 0 {
		config.MaxConns = c.MaxConns
	}
	config.MaxConnIdleTime = 30 * time.Minute

	// The extension must exist before types can be registered.
	bootstrap, err := pgx.Connect(ctx, c.DSN)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", vector.ErrConnection, err)
	}
	_, err = bootstrap.Exec(ctx, `CREATE EXTENSION IF NOT EXISTS vector`)
	bootstrap.Close(ctx)
	if err != nil {
		return nil, fmt.Errorf("creating vector extension: %w", err)
	}

	config.AfterConnect = func(ctx context.Context, conn *pgx.Conn) error {
		return pgxvector.RegisterTypes(ctx, conn)
	}

	pool, err := pgxpool.NewWithConfig(ctx, config)
	if err != nil {
		return nil, fmt.Errorf("%w: creating pool: %w", vector.ErrConnection, err)
	}

	d := &Driver{
		pool:   pool,
		table:  pgx.Identifier{c.Table}.Sanitize(),
		logger: logger,
	}

	_, err = pool.Exec(ctx, fmt.Sprintf(`
		CREATE TABLE IF NOT EXISTS %s (
			chunk_id TEXT PRIMARY KEY,
			document_name TEXT NOT NULL DEFAULT '',
			page_number INTEGER NOT NULL DEFAULT 0,
			content TEXT NOT NULL DEFAULT '',
			image_url TEXT NOT NULL DEFAULT '',
			metadata JSONB NOT NULL DEFAULT '{}'::jsonb,
			embedding vector(%d) NOT NULL
		)`, d.table, c.Dimensions))
	if err != nil {
		pool.Close()
		return nil, fmt.Errorf("creating chunk table: %w", err)
	}

	logger.Info("pgvector chunk store initialized", "table", c.Table, "dimensions", c.Dimensions)

	return d, nil
}

// Add upserts chunks in a single batch.
func (d *Driver) Add(ctx context.Context, docs []vector.Document) error {
	if len(docs) == 0 {
		return nil
	}

	query := fmt.Sprintf(`
		INSERT INTO %s (chunk_id, document_name, page_number, content, image_url, metadata, embedding)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		ON CONFLICT (chunk_id) DO UPDATE SET
			document_name = EXCLUDED.document_name,
			page_number = EXCLUDED.page_number,
			content = EXCLUDED.content,
			image_url = EXCLUDED.image_url,
			metadata = EXCLUDED.metadata,
			embedding = EXCLUDED.embedding`, d.table)

	batch := &pgx.Batch{}
	for _, doc := range docs {
		meta := doc.Metadata
		if meta == nil {
			meta = map[string]string{}
		}
		batch.Queue(query, doc.ID, doc.DocumentName, doc.PageNumber, doc.Content, doc.ImageURL, meta, pgv.NewVector(doc.Embedding))
	}

	if err := d.pool.SendBatch(ctx, batch).Close(); err != nil {
		return classify("upsert", err)
	}

	d.logger.Debug("added chunks to pgvector", "count", len(docs))

	return nil
}

// Query orders by cosine distance; the score is 1 - distance.
func (d *Driver) Query(ctx context.Context, embedding []float32, topK int) ([]vector.QueryResult, error) {
	if topK <= 0 {
		return nil, fmt.Errorf("%w: topK must be positive, got %d", vector.ErrInvalidRequest, topK)
	}

	rows, err := d.pool.Query(ctx, fmt.Sprintf(`
		SELECT chunk_id, document_name, page_number, content, image_url, metadata,
			1 - (embedding <=> $1) AS similarity
		FROM %s
		ORDER BY embedding <=> $1
		LIMIT $2`, d.table), pgv.NewVector(embedding), topK)
	if err != nil {
		return nil, classify("query", err)
	}
	defer rows.Close()

	var results []vector.QueryResult
	for rows.Next() {
		var (
			doc        vector.Document
			similarity float64
		)
		if err := rows.Scan(&doc.ID, &doc.DocumentName, &doc.PageNumber, &doc.Content, &doc.ImageURL, &doc.Metadata, &similarity); err != nil {
			return nil, fmt.Errorf("scanning query result: %w", err)
		}
		results = append(results, vector.QueryResult{Document: doc, Score: float32(similarity)})
	}
	if err := rows.Err(); err != nil {
		return nil, classify("query", err)
	}

	d.logger.Debug("queried pgvector", "results", len(results))

	return results, nil
}

// Get retrieves chunks by id, including embeddings.
func (d *Driver) Get(ctx context.Context, ids []string) ([]vector.Document, error) {
	if len(ids) == 0 {
		return nil, nil
	}

	rows, err := d.pool.Query(ctx, fmt.Sprintf(`
		SELECT chunk_id, document_name, page_number, content, image_url, metadata, embedding
		FROM %s
		WHERE chunk_id = ANY($1)`, d.table), ids)
	if err != nil {
		return nil, classify("get", err)
	}
	defer rows.Close()

	var docs []vector.Document
	for rows.Next() {
		var (
			doc vector.Document
			emb pgv.Vector
		)
		if err := rows.Scan(&doc.ID, &doc.DocumentName, &doc.PageNumber, &doc.Content, &doc.ImageURL, &doc.Metadata, &emb); err != nil {
			return nil, fmt.Errorf("scanning chunk: %w", err)
		}
		doc.Embedding = emb.Slice()
		docs = append(docs, doc)
	}
	return docs, rows.Err()
}

// Delete removes chunks by id.
func (d *Driver) Delete(ctx context.Context, ids []string) error {
	if len(ids) == 0 {
		return nil
	}

	if _, err := d.pool.Exec(ctx, fmt.Sprintf(`DELETE FROM %s WHERE chunk_id = ANY($1)`, d.table), ids); err != nil {
		return classify("delete", err)
	}

	d.logger.Debug("deleted chunks from pgvector", "count", len(ids))

	return nil
}

// Ping checks that a pooled connection is usable.
func (d *Driver) Ping(ctx context.Context) error {
	if err := d.pool.Ping(ctx); err != nil {
		return fmt.Errorf("%w: %w", vector.ErrConnection, err)
	}
	return nil
}

// Close closes the pool.
func (d *Driver) Close() error {
	d.pool.Close()
	return nil
}

// classify treats data exceptions (class 22) and syntax or access rule
// violations (class 42) as invalid requests. Everything else is a
// connection problem worth retrying.
func classify(op string, err error) error {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) && (strings.HasPrefix(pgErr.Code, "22") || strings.HasPrefix(pgErr.Code, "42")) {
		return fmt.Errorf("%w: pgvector %s: %w", vector.ErrInvalidRequest, op, err)
	}
	return fmt.Errorf("%w: pgvector %s: %w", vector.ErrConnection, op, err)
}
