package ports

import (
	"context"
	"io"
	"time"

	"github.com/danieledinun/aitreon-sub004/internal/core/domain"
)

// Embedder builds vectors for chunks and query text. Implementations must return an
// error rather than a zero vector when the provider fails.
type Embedder interface {
	Embed(ctx context.Context, texts []string) ([][]float32, error)
	EmbedQuery(ctx context.Context, text string) ([]float32, error)
}

// Chunker splits transcript segments into semantic passages and gates them for persistence.
type Chunker interface {
	Chunk(segments []domain.TranscriptSegment, videoID string, opts domain.ChunkOptions) []domain.SemanticChunk
	ValidateChunk(chunk domain.SemanticChunk) bool
}

// PassageStore persists chunk vectors and answers creator-scoped similarity queries.
type PassageStore interface {
	UpsertChunks(ctx context.Context, videoID string, chunks []domain.IndexedChunk) error
	DeleteChunks(ctx context.Context, videoID string) error
	NearestNeighbors(ctx context.Context, creatorID string, vector []float32, k int) ([]domain.RetrievalCandidate, error)
}

// GraphBackend serves graph-augmented retrieval.
type GraphBackend interface {
	IsAvailable(ctx context.Context) bool
	Query(ctx context.Context, creatorID, text string, k int) ([]domain.RetrievalCandidate, error)
}

// GraphIndexer projects a video's chunks into the graph backend.
type GraphIndexer interface {
	IndexVideo(ctx context.Context, video domain.Video, chunks []domain.SemanticChunk) error
	DeleteVideo(ctx context.Context, videoID string) error
}

// Reranker refines candidate scores using the full query/passage pair.
type Reranker interface {
	Rerank(ctx context.Context, query string, candidates []domain.RetrievalCandidate) []domain.RetrievalCandidate
}

// VideoCatalog persists video metadata and ingestion state.
type VideoCatalog interface {
	UpsertVideo(ctx context.Context, video *domain.Video) error
	GetVideo(ctx context.Context, videoID string) (*domain.Video, error)
	GetVideos(ctx context.Context, videoIDs []string) (map[string]domain.Video, error)
	UpdateStatus(ctx context.Context, videoID string, status domain.VideoStatus, chunkCount int, errMessage string) error
	SetTranscriptKey(ctx context.Context, videoID, key string) error
	DeleteVideo(ctx context.Context, videoID string) error
}

// ChunkRepository keeps the canonical chunk records of each video.
type ChunkRepository interface {
	ReplaceChunks(ctx context.Context, videoID string, chunks []domain.SemanticChunk) error
	ListChunks(ctx context.Context, videoID string, limit int) ([]domain.SemanticChunk, error)
}

// TranscriptArchive stores raw transcript uploads.
type TranscriptArchive interface {
	Save(ctx context.Context, key string, data io.Reader) error
	Open(ctx context.Context, key string) (io.ReadCloser, error)
	Delete(ctx context.Context, key string) error
}

// TranscriptSource resolves the ordered segments of an archived transcript.
type TranscriptSource interface {
	Segments(ctx context.Context, video *domain.Video) ([]domain.TranscriptSegment, error)
}

// MessageQueue publishes/consumes video ingestion events.
type MessageQueue interface {
	PublishVideoIngest(ctx context.Context, videoID string) error
	SubscribeVideoIngest(ctx context.Context, handler func(context.Context, string) error) error
}

// IngestLock serializes ingestion of a single video across workers.
type IngestLock interface {
	Acquire(ctx context.Context, videoID string, ttl time.Duration) (bool, error)
	Release(ctx context.Context, videoID string) error
}
