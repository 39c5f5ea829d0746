package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/danieledinun/aitreon-sub004/internal/core/domain"
	"github.com/danieledinun/aitreon-sub004/internal/core/ports"
)

var _ ports.VideoCatalog = (*VideoRepository)(nil)

type VideoRepository struct {
	db *sql.DB
}

func NewVideoRepository(db *sql.DB) *VideoRepository {
	return &VideoRepository{db: db}
}

const videoColumns = `id, creator_id, title, canonical_url, transcript_key, status, chunk_count, error_message, created_at, updated_at`

func (r *VideoRepository) UpsertVideo(ctx context.Context, video *domain.Video) error {
	_, err := r.db.ExecContext(ctx, `
INSERT INTO videos (`+videoColumns+`)
VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10)
ON CONFLICT (id) DO UPDATE SET
	creator_id = EXCLUDED.creator_id,
	title = EXCLUDED.title,
	canonical_url = EXCLUDED.canonical_url,
	updated_at = EXCLUDED.updated_at
`,
		video.ID, video.CreatorID, video.Title, video.CanonicalURL, video.TranscriptKey,
		string(video.Status), video.ChunkCount, video.Error, video.CreatedAt, video.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("upsert video: %w", err)
	}
	return nil
}

func (r *VideoRepository) GetVideo(ctx context.Context, videoID string) (*domain.Video, error) {
	row := r.db.QueryRowContext(ctx, `
SELECT `+videoColumns+`
FROM videos
WHERE id = $1
`, videoID)

	video, err := scanVideo(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, domain.WrapError(domain.ErrVideoNotFound, "get video", fmt.Errorf("id=%s", videoID))
		}
		return nil, fmt.Errorf("scan video: %w", err)
	}
	return &video, nil
}

// GetVideos returns metadata for the known ids; unknown ids are absent from the map.
func (r *VideoRepository) GetVideos(ctx context.Context, videoIDs []string) (map[string]domain.Video, error) {
	out := make(map[string]domain.Video, len(videoIDs))
	if len(videoIDs) == 0 {
		return out, nil
	}

	placeholders := make([]string, 0, len(videoIDs))
	args := make([]any, 0, len(videoIDs))
	for i, id := range videoIDs {
		placeholders = append(placeholders, fmt.Sprintf("$%d", i+1))
		args = append(args, id)
	}
	rows, err := r.db.QueryContext(ctx, `
SELECT `+videoColumns+`
FROM videos
WHERE id IN (`+strings.Join(placeholders, ",")+`)
`, args...)
	if err != nil {
		return nil, fmt.Errorf("query videos: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		video, err := scanVideo(rows)
		if err != nil {
			return nil, fmt.Errorf("scan video: %w", err)
		}
		out[video.ID] = video
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate videos: %w", err)
	}
	return out, nil
}

func (r *VideoRepository) UpdateStatus(ctx context.Context, videoID string, status domain.VideoStatus, chunkCount int, errMessage string) error {
	res, err := r.db.ExecContext(ctx, `
UPDATE videos
SET status = $2, chunk_count = $3, error_message = $4, updated_at = $5
WHERE id = $1
`, videoID, string(status), chunkCount, errMessage, time.Now().UTC())
	if err != nil {
		return fmt.Errorf("update video status: %w", err)
	}
	return requireAffected(res, "update video status", videoID)
}

func (r *VideoRepository) SetTranscriptKey(ctx context.Context, videoID, key string) error {
	res, err := r.db.ExecContext(ctx, `
UPDATE videos
SET transcript_key = $2, updated_at = $3
WHERE id = $1
`, videoID, key, time.Now().UTC())
	if err != nil {
		return fmt.Errorf("set transcript key: %w", err)
	}
	return requireAffected(res, "set transcript key", videoID)
}

func (r *VideoRepository) DeleteVideo(ctx context.Context, videoID string) error {
	res, err := r.db.ExecContext(ctx, `DELETE FROM videos WHERE id = $1`, videoID)
	if err != nil {
		return fmt.Errorf("delete video: %w", err)
	}
	return requireAffected(res, "delete video", videoID)
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanVideo(row rowScanner) (domain.Video, error) {
	var video domain.Video
	var status string
	err := row.Scan(
		&video.ID, &video.CreatorID, &video.Title, &video.CanonicalURL, &video.TranscriptKey,
		&status, &video.ChunkCount, &video.Error, &video.CreatedAt, &video.UpdatedAt,
	)
	if err != nil {
		return domain.Video{}, err
	}
	video.Status = domain.VideoStatus(status)
	return video, nil
}

func requireAffected(res sql.Result, operation, videoID string) error {
	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("%s rows affected: %w", operation, err)
	}
	if affected == 0 {
		return domain.WrapError(domain.ErrVideoNotFound, operation, fmt.Errorf("id=%s", videoID))
	}
	return nil
}
