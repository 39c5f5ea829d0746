package usecase

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/danieledinun/aitreon-sub004/internal/core/domain"
	"github.com/danieledinun/aitreon-sub004/internal/core/ports"
)

const (
	defaultChunkListLimit = 50
	maxChunkListLimit     = 500
)

// VideoUseCase registers creator videos, accepts transcript uploads and removes videos with their passages.
type VideoUseCase struct {
	catalog ports.VideoCatalog
	chunks  ports.ChunkRepository
	archive ports.TranscriptArchive
	queue   ports.MessageQueue
	store   ports.PassageStore
	graph   ports.GraphIndexer
}

// NewVideoUseCase accepts a nil graph indexer.
func NewVideoUseCase(
	catalog ports.VideoCatalog,
	chunks ports.ChunkRepository,
	archive ports.TranscriptArchive,
	queue ports.MessageQueue,
	store ports.PassageStore,
	graph ports.GraphIndexer,
) *VideoUseCase {
	return &VideoUseCase{
		catalog: catalog,
		chunks:  chunks,
		archive: archive,
		queue:   queue,
		store:   store,
		graph:   graph,
	}
}

func (uc *VideoUseCase) RegisterVideo(ctx context.Context, video domain.Video) (*domain.Video, error) {
	video.ID = strings.TrimSpace(video.ID)
	video.CreatorID = strings.TrimSpace(video.CreatorID)
	video.Title = strings.TrimSpace(video.Title)
	if video.ID == "" || video.CreatorID == "" {
		return nil, domain.WrapError(domain.ErrInvalidInput, "register video", errors.New("video id and creator id are required"))
	}

	now := time.Now().UTC()
	existing, err := uc.catalog.GetVideo(ctx, video.ID)
	switch {
	case err == nil:
		if existing.CreatorID != video.CreatorID {
			return nil, domain.WrapError(domain.ErrInvalidInput, "register video", fmt.Errorf("video %s belongs to another creator", video.ID))
		}
		video.Status = existing.Status
		video.ChunkCount = existing.ChunkCount
		video.TranscriptKey = existing.TranscriptKey
		video.Error = existing.Error
		video.CreatedAt = existing.CreatedAt
	case domain.IsKind(err, domain.ErrVideoNotFound):
		video.Status = domain.VideoStatusRegistered
		video.ChunkCount = 0
		video.TranscriptKey = ""
		video.Error = ""
		video.CreatedAt = now
	default:
		return nil, fmt.Errorf("fetch video by id: %w", err)
	}
	if strings.TrimSpace(video.CanonicalURL) == "" {
		video.CanonicalURL = youtubeWatchURL(video.ID)
	}
	video.UpdatedAt = now

	if err := uc.catalog.UpsertVideo(ctx, &video); err != nil {
		return nil, fmt.Errorf("upsert video metadata: %w", err)
	}
	return &video, nil
}

func (uc *VideoUseCase) GetVideo(ctx context.Context, videoID string) (*domain.Video, error) {
	video, err := uc.catalog.GetVideo(ctx, strings.TrimSpace(videoID))
	if err != nil {
		return nil, fmt.Errorf("fetch video by id: %w", err)
	}
	return video, nil
}

func (uc *VideoUseCase) ListChunks(ctx context.Context, videoID string, limit int) ([]domain.SemanticChunk, error) {
	if _, err := uc.GetVideo(ctx, videoID); err != nil {
		return nil, err
	}
	if limit <= 0 {
		limit = defaultChunkListLimit
	}
	if limit > maxChunkListLimit {
		limit = maxChunkListLimit
	}
	chunks, err := uc.chunks.ListChunks(ctx, strings.TrimSpace(videoID), limit)
	if err != nil {
		return nil, fmt.Errorf("list chunks: %w", err)
	}
	return chunks, nil
}

// SubmitTranscript archives the raw transcript and queues the video for ingestion.
func (uc *VideoUseCase) SubmitTranscript(ctx context.Context, videoID, filename string, body io.Reader) (*domain.Video, error) {
	video, err := uc.GetVideo(ctx, videoID)
	if err != nil {
		return nil, err
	}

	previousKey := video.TranscriptKey
	key := fmt.Sprintf("%s_%s_%s", sanitizeFilename(video.ID), uuid.NewString(), sanitizeFilename(filename))
	if err := uc.archive.Save(ctx, key, body); err != nil {
		return nil, fmt.Errorf("save transcript to archive: %w", err)
	}
	if err := uc.catalog.SetTranscriptKey(ctx, video.ID, key); err != nil {
		return nil, fmt.Errorf("set transcript key: %w", err)
	}
	if err := uc.catalog.UpdateStatus(ctx, video.ID, domain.VideoStatusQueued, video.ChunkCount, ""); err != nil {
		return nil, fmt.Errorf("set status=queued: %w", err)
	}
	if err := uc.queue.PublishVideoIngest(ctx, video.ID); err != nil {
		return nil, fmt.Errorf("publish ingestion event: %w", err)
	}

	if previousKey != "" && previousKey != key {
		if err := uc.archive.Delete(ctx, previousKey); err != nil {
			slog.Warn("transcript_archive_cleanup_failed", "video_id", video.ID, "key", previousKey, "error", err.Error())
		}
	}

	video.TranscriptKey = key
	video.Status = domain.VideoStatusQueued
	video.Error = ""
	video.UpdatedAt = time.Now().UTC()
	return video, nil
}

// RemoveVideo deletes the video's passages everywhere, then the video itself.
func (uc *VideoUseCase) RemoveVideo(ctx context.Context, videoID string) error {
	video, err := uc.GetVideo(ctx, videoID)
	if err != nil {
		return err
	}

	if err := uc.store.DeleteChunks(ctx, video.ID); err != nil {
		return fmt.Errorf("delete passages: %w", err)
	}
	if uc.graph != nil {
		if err := uc.graph.DeleteVideo(ctx, video.ID); err != nil {
			slog.Warn("graph_delete_failed", "video_id", video.ID, "error", err.Error())
		}
	}
	if err := uc.catalog.DeleteVideo(ctx, video.ID); err != nil {
		return fmt.Errorf("delete video metadata: %w", err)
	}
	if video.TranscriptKey != "" {
		if err := uc.archive.Delete(ctx, video.TranscriptKey); err != nil {
			slog.Warn("transcript_archive_cleanup_failed", "video_id", video.ID, "key", video.TranscriptKey, "error", err.Error())
		}
	}
	return nil
}

func sanitizeFilename(name string) string {
	base := filepath.Base(name)
	base = strings.ReplaceAll(base, " ", "_")
	base = strings.Map(func(r rune) rune {
		switch {
		case r >= 'a' && r <= 'z':
			return r
		case r >= 'A' && r <= 'Z':
			return r
		case r >= '0' && r <= '9':
			return r
		case r == '.', r == '-', r == '_':
			return r
		default:
			return '_'
		}
	}, base)
	if base == "" || base == "." || base == ".." {
		return "transcript.txt"
	}
	return base
}
