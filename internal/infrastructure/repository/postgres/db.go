// Package postgres stores documents, sections, chunks and pgvector embeddings.
package postgres

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	_ "github.com/jackc/pgx/v5/stdlib"
)

const schemaLockKey = int64(2026101601)

func OpenDB(dsn string) (*sql.DB, error) {
	db, err := sql.Open("pgx", dsn)
	if err != nil {
		return nil, fmt.Errorf("sql open: %w", err)
	}
	db.SetMaxOpenConns(10)
	db.SetMaxIdleConns(10)
	db.SetConnMaxLifetime(30 * time.Minute)

	if err := db.Ping(); err != nil {
		return nil, fmt.Errorf("db ping: %w", err)
	}
	return db, nil
}

// EnsureSchema creates the tables once. The vector column is sized to dim; changing the embedding
// model to another dimension needs a migration.
func EnsureSchema(ctx context.Context, db *sql.DB, dim int) error {
	if dim <= 0 {
		return fmt.Errorf("embedding dimension must be positive, got %d", dim)
	}
	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin schema tx: %w", err)
	}
	defer func() {
		_ = tx.Rollback()
	}()

	// Serialize bootstrap DDL across api/worker startups.
	if _, err := tx.ExecContext(ctx, `SELECT pg_advisory_xact_lock($1)`, schemaLockKey); err != nil {
		return fmt.Errorf("acquire schema lock: %w", err)
	}

	query := fmt.Sprintf(`
CREATE EXTENSION IF NOT EXISTS vector;

CREATE TABLE IF NOT EXISTS documents (
	id TEXT PRIMARY KEY,
	title TEXT NOT NULL DEFAULT '',
	filename TEXT NOT NULL,
	mime_type TEXT NOT NULL,
	storage_path TEXT NOT NULL,
	insurer_id TEXT NOT NULL DEFAULT '',
	insurer_name TEXT NOT NULL DEFAULT '',
	product_name TEXT NOT NULL DEFAULT '',
	line_of_business TEXT NOT NULL DEFAULT '',
	document_type TEXT NOT NULL DEFAULT '',
	status TEXT NOT NULL,
	page_count INTEGER NOT NULL DEFAULT 0,
	extraction_method TEXT NOT NULL DEFAULT '',
	low_confidence BOOLEAN NOT NULL DEFAULT FALSE,
	error_message TEXT NOT NULL DEFAULT '',
	claim_token TEXT NOT NULL DEFAULT '',
	created_at TIMESTAMPTZ NOT NULL,
	updated_at TIMESTAMPTZ NOT NULL
);

ALTER TABLE documents ADD COLUMN IF NOT EXISTS claim_token TEXT NOT NULL DEFAULT '';

CREATE INDEX IF NOT EXISTS idx_documents_status ON documents(status);
CREATE INDEX IF NOT EXISTS idx_documents_insurer ON documents(insurer_id);
CREATE INDEX IF NOT EXISTS idx_documents_lob ON documents(line_of_business);

CREATE TABLE IF NOT EXISTS sections (
	id TEXT PRIMARY KEY,
	document_id TEXT NOT NULL REFERENCES documents(id) ON DELETE CASCADE,
	run_id TEXT NOT NULL,
	path TEXT NOT NULL DEFAULT '',
	title TEXT NOT NULL DEFAULT '',
	depth INTEGER NOT NULL,
	start_page INTEGER NOT NULL,
	end_page INTEGER NOT NULL,
	ord INTEGER NOT NULL,
	content TEXT NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_sections_document ON sections(document_id);

CREATE TABLE IF NOT EXISTS chunks (
	id TEXT PRIMARY KEY,
	document_id TEXT NOT NULL REFERENCES documents(id) ON DELETE CASCADE,
	run_id TEXT NOT NULL,
	section_id TEXT REFERENCES sections(id) ON DELETE SET NULL,
	page INTEGER NOT NULL,
	chunk_index INTEGER NOT NULL,
	position INTEGER NOT NULL,
	text TEXT NOT NULL,
	token_count INTEGER NOT NULL,
	citation_label TEXT NOT NULL,
	metadata JSONB NOT NULL DEFAULT '{}'::jsonb
);

CREATE INDEX IF NOT EXISTS idx_chunks_document ON chunks(document_id, position);

CREATE TABLE IF NOT EXISTS chunk_embeddings (
	chunk_id TEXT PRIMARY KEY REFERENCES chunks(id) ON DELETE CASCADE,
	model TEXT NOT NULL DEFAULT '',
	embedding vector(%d) NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_chunk_embeddings_hnsw ON chunk_embeddings USING hnsw (embedding vector_cosine_ops);
`, dim)
	if _, err := tx.ExecContext(ctx, query); err != nil {
		return fmt.Errorf("execute schema ddl: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit schema tx: %w", err)
	}
	return nil
}
