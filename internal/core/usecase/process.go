package usecase

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"golang.org/x/time/rate"

	"github.com/danieledinun/aitreon-sub004/internal/core/domain"
	"github.com/danieledinun/aitreon-sub004/internal/core/ports"
)

type IngestOptions struct {
	Chunk              domain.ChunkOptions
	EmbedBatchSize     int
	EmbedRatePerSecond float64
	EmbedBurst         int
	LockTTL            time.Duration
}

func DefaultIngestOptions() IngestOptions {
	return IngestOptions{
		Chunk:              domain.DefaultChunkOptions(),
		EmbedBatchSize:     16,
		EmbedRatePerSecond: 5,
		EmbedBurst:         1,
		LockTTL:            10 * time.Minute,
	}
}

type IngestOption func(*IngestVideoUseCase)

// WithGraphIndexer projects ingested chunks into the graph backend.
func WithGraphIndexer(graph ports.GraphIndexer) IngestOption {
	return func(uc *IngestVideoUseCase) { uc.graph = graph }
}

// WithIngestLock serializes ingestion of a video across workers.
func WithIngestLock(lock ports.IngestLock) IngestOption {
	return func(uc *IngestVideoUseCase) { uc.lock = lock }
}

// IngestVideoUseCase chunks, embeds and indexes a video transcript, replacing any previous chunk set.
type IngestVideoUseCase struct {
	catalog  ports.VideoCatalog
	chunks   ports.ChunkRepository
	chunker  ports.Chunker
	embedder ports.Embedder
	store    ports.PassageStore
	source   ports.TranscriptSource
	graph    ports.GraphIndexer
	lock     ports.IngestLock
	limiter  *rate.Limiter
	opts     IngestOptions
}

func NewIngestVideoUseCase(
	catalog ports.VideoCatalog,
	chunks ports.ChunkRepository,
	chunker ports.Chunker,
	embedder ports.Embedder,
	store ports.PassageStore,
	source ports.TranscriptSource,
	opts IngestOptions,
	options ...IngestOption,
) *IngestVideoUseCase {
	def := DefaultIngestOptions()
	if opts.EmbedBatchSize <= 0 {
		opts.EmbedBatchSize = def.EmbedBatchSize
	}
	if opts.EmbedBurst <= 0 {
		opts.EmbedBurst = def.EmbedBurst
	}
	if opts.LockTTL <= 0 {
		opts.LockTTL = def.LockTTL
	}
	opts.Chunk = opts.Chunk.Normalize()

	limit := rate.Inf
	if opts.EmbedRatePerSecond > 0 {
		limit = rate.Limit(opts.EmbedRatePerSecond)
	}

	uc := &IngestVideoUseCase{
		catalog:  catalog,
		chunks:   chunks,
		chunker:  chunker,
		embedder: embedder,
		store:    store,
		source:   source,
		limiter:  rate.NewLimiter(limit, opts.EmbedBurst),
		opts:     opts,
	}
	for _, option := range options {
		option(uc)
	}
	return uc
}

// ProcessVideo loads the archived transcript of a queued video and ingests it.
func (uc *IngestVideoUseCase) ProcessVideo(ctx context.Context, videoID string) (*domain.IngestResult, error) {
	video, err := uc.loadVideo(ctx, videoID)
	if err != nil {
		return nil, err
	}
	if uc.source == nil {
		return nil, fmt.Errorf("transcript source not configured")
	}

	segments, err := uc.source.Segments(ctx, video)
	if err != nil {
		err = fmt.Errorf("load transcript segments: %w", err)
		if failErr := uc.markFailed(ctx, video, err); failErr != nil {
			return nil, fmt.Errorf("%w; mark failed status: %v", err, failErr)
		}
		return nil, err
	}
	return uc.IngestVideo(ctx, video.ID, segments)
}

func (uc *IngestVideoUseCase) IngestVideo(ctx context.Context, videoID string, segments []domain.TranscriptSegment) (*domain.IngestResult, error) {
	videoID = strings.TrimSpace(videoID)
	if videoID == "" {
		return nil, domain.WrapError(domain.ErrInvalidInput, "ingest video", errors.New("video id is required"))
	}

	if uc.lock != nil {
		acquired, err := uc.lock.Acquire(ctx, videoID, uc.opts.LockTTL)
		if err != nil {
			return nil, fmt.Errorf("acquire ingest lock: %w", err)
		}
		if !acquired {
			return nil, domain.WrapError(domain.ErrIngestInProgress, "ingest video", fmt.Errorf("video %s", videoID))
		}
		defer func() {
			if err := uc.lock.Release(context.WithoutCancel(ctx), videoID); err != nil {
				slog.Warn("ingest_lock_release_failed", "video_id", videoID, "error", err.Error())
			}
		}()
	}

	video, err := uc.loadVideo(ctx, videoID)
	if err != nil {
		return nil, err
	}

	chunks := uc.chunker.Chunk(segments, videoID, uc.opts.Chunk)
	valid := make([]domain.SemanticChunk, 0, len(chunks))
	for _, chunk := range chunks {
		if uc.chunker.ValidateChunk(chunk) {
			valid = append(valid, chunk)
		}
	}
	result := &domain.IngestResult{
		VideoID:         videoID,
		ChunksAttempted: len(valid),
		ChunksDiscarded: len(chunks) - len(valid),
	}

	if len(valid) == 0 {
		slog.Info("video_ingest_empty",
			"video_id", videoID,
			"segments", len(segments),
			"chunks_discarded", result.ChunksDiscarded,
		)
	}

	if err := uc.catalog.UpdateStatus(ctx, videoID, domain.VideoStatusProcessing, video.ChunkCount, ""); err != nil {
		return nil, fmt.Errorf("set status=processing: %w", err)
	}

	created, err := uc.indexChunks(ctx, video, valid)
	if err != nil {
		if failErr := uc.markFailed(ctx, video, err); failErr != nil {
			return nil, fmt.Errorf("%w; mark failed status: %v", err, failErr)
		}
		return nil, err
	}
	result.ChunksCreated = created
	result.ChunksDiscarded += len(valid) - created

	if err := uc.catalog.UpdateStatus(ctx, videoID, domain.VideoStatusReady, created, ""); err != nil {
		return nil, fmt.Errorf("set status=ready: %w", err)
	}

	slog.Info("video_ingested",
		"video_id", videoID,
		"creator_id", video.CreatorID,
		"chunks_created", result.ChunksCreated,
		"chunks_attempted", result.ChunksAttempted,
		"chunks_discarded", result.ChunksDiscarded,
	)
	return result, nil
}

func (uc *IngestVideoUseCase) indexChunks(ctx context.Context, video *domain.Video, chunks []domain.SemanticChunk) (int, error) {
	indexed, err := uc.embedChunks(ctx, video, chunks)
	if err != nil {
		return 0, err
	}
	if len(indexed) == 0 && len(chunks) > 0 {
		slog.Warn("ingest_embeddings_failed",
			"video_id", video.ID,
			"chunks_attempted", len(chunks),
		)
	}

	var persisted []domain.SemanticChunk
	for _, item := range indexed {
		persisted = append(persisted, item.Chunk)
	}

	// An empty set still replaces: stale chunks from an earlier ingest must not
	// outlive the transcript that produced them.
	if err := uc.chunks.ReplaceChunks(ctx, video.ID, persisted); err != nil {
		return 0, fmt.Errorf("replace chunk records: %w", err)
	}
	if err := uc.store.DeleteChunks(ctx, video.ID); err != nil {
		return 0, fmt.Errorf("delete previous passages: %w", err)
	}
	if len(indexed) > 0 {
		if err := uc.store.UpsertChunks(ctx, video.ID, indexed); err != nil {
			return 0, fmt.Errorf("upsert passages: %w", err)
		}
	}

	if uc.graph != nil {
		uc.projectGraph(ctx, video, persisted)
	}
	return len(indexed), nil
}

// projectGraph is best effort; the passage store stays authoritative.
func (uc *IngestVideoUseCase) projectGraph(ctx context.Context, video *domain.Video, chunks []domain.SemanticChunk) {
	if len(chunks) == 0 {
		if err := uc.graph.DeleteVideo(ctx, video.ID); err != nil {
			slog.Warn("graph_delete_failed", "video_id", video.ID, "error", err.Error())
		}
		return
	}
	if err := uc.graph.IndexVideo(ctx, *video, chunks); err != nil {
		slog.Warn("graph_index_failed", "video_id", video.ID, "error", err.Error())
	}
}

// embedChunks embeds in throttled batches. A failed batch is retried chunk by
// chunk and chunks that still fail are skipped.
func (uc *IngestVideoUseCase) embedChunks(ctx context.Context, video *domain.Video, chunks []domain.SemanticChunk) ([]domain.IndexedChunk, error) {
	out := make([]domain.IndexedChunk, 0, len(chunks))
	for start := 0; start < len(chunks); start += uc.opts.EmbedBatchSize {
		end := min(start+uc.opts.EmbedBatchSize, len(chunks))
		batch := chunks[start:end]

		if err := uc.limiter.Wait(ctx); err != nil {
			return nil, fmt.Errorf("wait embed rate limit: %w", err)
		}
		texts := make([]string, 0, len(batch))
		for _, chunk := range batch {
			texts = append(texts, chunk.Content)
		}

		vectors, err := uc.embedder.Embed(ctx, texts)
		if err != nil || len(vectors) != len(batch) {
			slog.Warn("embed_batch_fallback",
				"video_id", video.ID,
				"batch_size", len(batch),
				"error", errorString(err, len(vectors), len(batch)),
			)
			vectors, err = uc.embedEach(ctx, video.ID, texts)
			if err != nil {
				return nil, err
			}
		}

		for i, chunk := range batch {
			if !usableVector(vectors[i]) {
				continue
			}
			out = append(out, domain.IndexedChunk{
				Chunk:     chunk,
				CreatorID: video.CreatorID,
				Vector:    vectors[i],
			})
		}
	}
	return out, nil
}

func (uc *IngestVideoUseCase) embedEach(ctx context.Context, videoID string, texts []string) ([][]float32, error) {
	vectors := make([][]float32, len(texts))
	for i, text := range texts {
		if err := uc.limiter.Wait(ctx); err != nil {
			return nil, fmt.Errorf("wait embed rate limit: %w", err)
		}
		embedded, err := uc.embedder.Embed(ctx, []string{text})
		if err != nil || len(embedded) != 1 {
			slog.Warn("embed_chunk_skipped",
				"video_id", videoID,
				"index", i,
				"error", errorString(err, len(embedded), 1),
			)
			continue
		}
		vectors[i] = embedded[0]
	}
	return vectors, nil
}

func (uc *IngestVideoUseCase) loadVideo(ctx context.Context, videoID string) (*domain.Video, error) {
	video, err := uc.catalog.GetVideo(ctx, videoID)
	if err != nil {
		return nil, fmt.Errorf("fetch video by id: %w", err)
	}
	return video, nil
}

func (uc *IngestVideoUseCase) markFailed(ctx context.Context, video *domain.Video, processErr error) error {
	if processErr == nil {
		return nil
	}
	return uc.catalog.UpdateStatus(ctx, video.ID, domain.VideoStatusFailed, video.ChunkCount, processErr.Error())
}

func errorString(err error, got, want int) string {
	if err != nil {
		return err.Error()
	}
	return fmt.Sprintf("vectors/chunks mismatch: %d/%d", got, want)
}
