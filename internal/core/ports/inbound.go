package ports

import (
	"context"
	"io"

	"github.com/danieledinun/aitreon-sub004/internal/core/domain"
)

// VideoIngestor is the inbound contract for turning a video transcript into passages.
type VideoIngestor interface {
	IngestVideo(ctx context.Context, videoID string, segments []domain.TranscriptSegment) (*domain.IngestResult, error)
}

// TranscriptSubmitter archives a raw transcript and schedules asynchronous ingestion.
type TranscriptSubmitter interface {
	SubmitTranscript(ctx context.Context, videoID, filename string, body io.Reader) (*domain.Video, error)
}

// VideoProcessor is the inbound contract for asynchronous ingestion workers.
type VideoProcessor interface {
	ProcessVideo(ctx context.Context, videoID string) (*domain.IngestResult, error)
}

// VideoAdmin registers, reads and removes creator videos.
type VideoAdmin interface {
	RegisterVideo(ctx context.Context, video domain.Video) (*domain.Video, error)
	GetVideo(ctx context.Context, videoID string) (*domain.Video, error)
	ListChunks(ctx context.Context, videoID string, limit int) ([]domain.SemanticChunk, error)
	RemoveVideo(ctx context.Context, videoID string) error
}

// CitationRetriever is the inbound contract used by answer consumers (chat, voice, streaming).
type CitationRetriever interface {
	Retrieve(ctx context.Context, creatorID, query string, k int) (*domain.RetrievalResult, error)
}
