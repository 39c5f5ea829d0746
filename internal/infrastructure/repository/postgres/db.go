package postgres

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	_ "github.com/jackc/pgx/v5/stdlib"
)

// schemaLockID serializes bootstrap DDL across api/worker startups.
const schemaLockID int64 = 2026101801

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

// EnsureSchema creates the videos and semantic_chunks tables. Chunk rows cascade with their video.
func EnsureSchema(ctx context.Context, db *sql.DB) error {
	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin schema tx: %w", err)
	}
	defer func() {
		_ = tx.Rollback()
	}()

	if _, err := tx.ExecContext(ctx, `SELECT pg_advisory_xact_lock($1)`, schemaLockID); err != nil {
		return fmt.Errorf("acquire schema lock: %w", err)
	}

	const query = `
CREATE TABLE IF NOT EXISTS videos (
	id TEXT PRIMARY KEY,
	creator_id TEXT NOT NULL,
	title TEXT NOT NULL DEFAULT '',
	canonical_url TEXT NOT NULL DEFAULT '',
	transcript_key TEXT NOT NULL DEFAULT '',
	status TEXT NOT NULL,
	chunk_count INTEGER NOT NULL DEFAULT 0,
	error_message TEXT NOT NULL DEFAULT '',
	created_at TIMESTAMPTZ NOT NULL,
	updated_at TIMESTAMPTZ NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_videos_creator_id ON videos(creator_id);

CREATE TABLE IF NOT EXISTS semantic_chunks (
	chunk_id TEXT PRIMARY KEY,
	video_id TEXT NOT NULL REFERENCES videos(id) ON DELETE CASCADE,
	ordinal INTEGER NOT NULL,
	start_time DOUBLE PRECISION NOT NULL,
	end_time DOUBLE PRECISION NOT NULL,
	content TEXT NOT NULL,
	sentence_count INTEGER NOT NULL,
	word_count INTEGER NOT NULL,
	confidence_score DOUBLE PRECISION NOT NULL,
	first_segment INTEGER NOT NULL,
	last_segment INTEGER NOT NULL,
	CHECK (end_time > start_time)
);

CREATE INDEX IF NOT EXISTS idx_semantic_chunks_video_ordinal ON semantic_chunks(video_id, ordinal);
`
	if _, err := tx.ExecContext(ctx, query); err != nil {
		return fmt.Errorf("execute schema ddl: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit schema tx: %w", err)
	}
	return nil
}
