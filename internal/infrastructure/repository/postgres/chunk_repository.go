package postgres

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/danieledinun/aitreon-sub004/internal/core/domain"
	"github.com/danieledinun/aitreon-sub004/internal/core/ports"
)

var _ ports.ChunkRepository = (*ChunkRepository)(nil)

type ChunkRepository struct {
	db *sql.DB
}

func NewChunkRepository(db *sql.DB) *ChunkRepository {
	return &ChunkRepository{db: db}
}

// ReplaceChunks swaps a video's chunk set inside one transaction.
func (r *ChunkRepository) ReplaceChunks(ctx context.Context, videoID string, chunks []domain.SemanticChunk) error {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin replace chunks tx: %w", err)
	}
	defer func() {
		_ = tx.Rollback()
	}()

	if _, err := tx.ExecContext(ctx, `DELETE FROM semantic_chunks WHERE video_id = $1`, videoID); err != nil {
		return fmt.Errorf("delete chunks: %w", err)
	}

	if len(chunks) > 0 {
		stmt, err := tx.PrepareContext(ctx, `
INSERT INTO semantic_chunks (
	chunk_id, video_id, ordinal, start_time, end_time, content, sentence_count, word_count, confidence_score, first_segment, last_segment
) VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11)
`)
		if err != nil {
			return fmt.Errorf("prepare chunk insert: %w", err)
		}
		defer stmt.Close()

		for i, chunk := range chunks {
			if _, err := stmt.ExecContext(ctx,
				chunk.ChunkID, videoID, i, chunk.StartTime, chunk.EndTime, chunk.Content,
				chunk.SentenceCount, chunk.WordCount, chunk.ConfidenceScore, chunk.FirstSegment, chunk.LastSegment,
			); err != nil {
				return fmt.Errorf("insert chunk %s: %w", chunk.ChunkID, err)
			}
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit replace chunks tx: %w", err)
	}
	return nil
}

func (r *ChunkRepository) ListChunks(ctx context.Context, videoID string, limit int) ([]domain.SemanticChunk, error) {
	rows, err := r.db.QueryContext(ctx, `
SELECT chunk_id, video_id, start_time, end_time, content, sentence_count, word_count, confidence_score, first_segment, last_segment
FROM semantic_chunks
WHERE video_id = $1
ORDER BY ordinal
LIMIT $2
`, videoID, limit)
	if err != nil {
		return nil, fmt.Errorf("list chunks: %w", err)
	}
	defer rows.Close()

	out := make([]domain.SemanticChunk, 0)
	for rows.Next() {
		var chunk domain.SemanticChunk
		if err := rows.Scan(
			&chunk.ChunkID, &chunk.VideoID, &chunk.StartTime, &chunk.EndTime, &chunk.Content,
			&chunk.SentenceCount, &chunk.WordCount, &chunk.ConfidenceScore, &chunk.FirstSegment, &chunk.LastSegment,
		); err != nil {
			return nil, fmt.Errorf("scan chunk: %w", err)
		}
		out = append(out, chunk)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate chunks: %w", err)
	}
	return out, nil
}
