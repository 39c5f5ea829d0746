package usecase

import (
	"context"
	"errors"
	"io"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/danieledinun/aitreon-sub004/internal/core/domain"
)

type statusCall struct {
	status     domain.VideoStatus
	chunkCount int
	errMsg     string
}

type catalogFake struct {
	mu           sync.Mutex
	videos       map[string]*domain.Video
	statusCalls  []statusCall
	getVideosErr error
	upsertErr    error
	statusErr    error
	deleted      []string
}

func newCatalogFake(videos ...domain.Video) *catalogFake {
	f := &catalogFake{videos: map[string]*domain.Video{}}
	for _, v := range videos {
		copyVideo := v
		f.videos[v.ID] = &copyVideo
	}
	return f
}

func (f *catalogFake) UpsertVideo(_ context.Context, video *domain.Video) error {
	if f.upsertErr != nil {
		return f.upsertErr
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	copyVideo := *video
	f.videos[video.ID] = &copyVideo
	return nil
}

func (f *catalogFake) GetVideo(_ context.Context, videoID string) (*domain.Video, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	video, ok := f.videos[videoID]
	if !ok {
		return nil, domain.WrapError(domain.ErrVideoNotFound, "get video", errors.New(videoID))
	}
	copyVideo := *video
	return &copyVideo, nil
}

func (f *catalogFake) GetVideos(_ context.Context, ids []string) (map[string]domain.Video, error) {
	if f.getVideosErr != nil {
		return nil, f.getVideosErr
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make(map[string]domain.Video, len(ids))
	for _, id := range ids {
		if video, ok := f.videos[id]; ok {
			out[id] = *video
		}
	}
	return out, nil
}

func (f *catalogFake) UpdateStatus(_ context.Context, videoID string, status domain.VideoStatus, chunkCount int, errMessage string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.statusCalls = append(f.statusCalls, statusCall{status: status, chunkCount: chunkCount, errMsg: errMessage})
	if f.statusErr != nil {
		return f.statusErr
	}
	if video, ok := f.videos[videoID]; ok {
		video.Status = status
		video.ChunkCount = chunkCount
		video.Error = errMessage
	}
	return nil
}

func (f *catalogFake) SetTranscriptKey(_ context.Context, videoID, key string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if video, ok := f.videos[videoID]; ok {
		video.TranscriptKey = key
	}
	return nil
}

func (f *catalogFake) DeleteVideo(_ context.Context, videoID string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	delete(f.videos, videoID)
	f.deleted = append(f.deleted, videoID)
	return nil
}

func (f *catalogFake) lastStatus() domain.VideoStatus {
	f.mu.Lock()
	defer f.mu.Unlock()
	if len(f.statusCalls) == 0 {
		return ""
	}
	return f.statusCalls[len(f.statusCalls)-1].status
}

type chunkRepoFake struct {
	stored       map[string][]domain.SemanticChunk
	replaceCalls int
	err          error
}

func newChunkRepoFake() *chunkRepoFake {
	return &chunkRepoFake{stored: map[string][]domain.SemanticChunk{}}
}

func (f *chunkRepoFake) ReplaceChunks(_ context.Context, videoID string, chunks []domain.SemanticChunk) error {
	f.replaceCalls++
	if f.err != nil {
		return f.err
	}
	f.stored[videoID] = append([]domain.SemanticChunk(nil), chunks...)
	return nil
}

func (f *chunkRepoFake) ListChunks(_ context.Context, videoID string, limit int) ([]domain.SemanticChunk, error) {
	chunks := f.stored[videoID]
	if limit > 0 && len(chunks) > limit {
		chunks = chunks[:limit]
	}
	return chunks, nil
}

type chunkerFake struct {
	chunks  []domain.SemanticChunk
	invalid map[string]bool
}

func (f *chunkerFake) Chunk([]domain.TranscriptSegment, string, domain.ChunkOptions) []domain.SemanticChunk {
	return append([]domain.SemanticChunk(nil), f.chunks...)
}

func (f *chunkerFake) ValidateChunk(chunk domain.SemanticChunk) bool {
	return !f.invalid[chunk.ChunkID]
}

type embedderFake struct {
	mu          sync.Mutex
	batchErr    error
	failTexts   map[string]bool
	zeroTexts   map[string]bool
	queryVector []float32
	queryErr    error
	calls       int
}

func (f *embedderFake) Embed(_ context.Context, texts []string) ([][]float32, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++
	if len(texts) > 1 && f.batchErr != nil {
		return nil, f.batchErr
	}
	out := make([][]float32, 0, len(texts))
	for _, text := range texts {
		if f.failTexts[text] {
			return nil, errors.New("embedding provider rejected input")
		}
		if f.zeroTexts[text] {
			out = append(out, []float32{0, 0, 0})
			continue
		}
		out = append(out, []float32{float32(len(text)), 1, 0.5})
	}
	return out, nil
}

func (f *embedderFake) EmbedQuery(context.Context, string) ([]float32, error) {
	if f.queryErr != nil {
		return nil, f.queryErr
	}
	if f.queryVector != nil {
		return f.queryVector, nil
	}
	return []float32{1, 0, 0}, nil
}

type passageStoreFake struct {
	mu          sync.Mutex
	stored      map[string][]domain.IndexedChunk
	neighbors   []domain.RetrievalCandidate
	searchErr   error
	upsertErr   error
	upsertCalls int
	deleteCalls int
}

func newPassageStoreFake() *passageStoreFake {
	return &passageStoreFake{stored: map[string][]domain.IndexedChunk{}}
}

func (f *passageStoreFake) UpsertChunks(_ context.Context, videoID string, chunks []domain.IndexedChunk) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.upsertCalls++
	if f.upsertErr != nil {
		return f.upsertErr
	}
	f.stored[videoID] = append(f.stored[videoID], chunks...)
	return nil
}

func (f *passageStoreFake) DeleteChunks(_ context.Context, videoID string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.deleteCalls++
	delete(f.stored, videoID)
	return nil
}

func (f *passageStoreFake) NearestNeighbors(_ context.Context, creatorID string, _ []float32, k int) ([]domain.RetrievalCandidate, error) {
	if f.searchErr != nil {
		return nil, f.searchErr
	}
	out := make([]domain.RetrievalCandidate, 0, len(f.neighbors))
	for _, candidate := range f.neighbors {
		if candidate.CreatorID == creatorID {
			out = append(out, candidate)
		}
	}
	if k > 0 && len(out) > k {
		out = out[:k]
	}
	return out, nil
}

func (f *passageStoreFake) count(videoID string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.stored[videoID])
}

type graphFake struct {
	mu         sync.Mutex
	available  bool
	candidates []domain.RetrievalCandidate
	err        error
	queried    bool
	indexed    map[string]int
	indexErr   error
	deleted    []string
}

func (f *graphFake) IsAvailable(context.Context) bool { return f.available }

func (f *graphFake) Query(_ context.Context, creatorID, _ string, k int) ([]domain.RetrievalCandidate, error) {
	f.mu.Lock()
	f.queried = true
	f.mu.Unlock()
	if f.err != nil {
		return nil, f.err
	}
	out := make([]domain.RetrievalCandidate, 0, len(f.candidates))
	for _, candidate := range f.candidates {
		if candidate.CreatorID == creatorID {
			out = append(out, candidate)
		}
	}
	if k > 0 && len(out) > k {
		out = out[:k]
	}
	return out, nil
}

func (f *graphFake) IndexVideo(_ context.Context, video domain.Video, chunks []domain.SemanticChunk) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.indexErr != nil {
		return f.indexErr
	}
	if f.indexed == nil {
		f.indexed = map[string]int{}
	}
	f.indexed[video.ID] = len(chunks)
	return nil
}

func (f *graphFake) DeleteVideo(_ context.Context, videoID string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.deleted = append(f.deleted, videoID)
	return nil
}

type archiveFake struct {
	saved   map[string]string
	deleted []string
	err     error
}

func newArchiveFake() *archiveFake {
	return &archiveFake{saved: map[string]string{}}
}

func (f *archiveFake) Save(_ context.Context, key string, data io.Reader) error {
	if f.err != nil {
		return f.err
	}
	raw, err := io.ReadAll(data)
	if err != nil {
		return err
	}
	f.saved[key] = string(raw)
	return nil
}

func (f *archiveFake) Open(_ context.Context, key string) (io.ReadCloser, error) {
	raw, ok := f.saved[key]
	if !ok {
		return nil, errors.New("not found")
	}
	return io.NopCloser(strings.NewReader(raw)), nil
}

func (f *archiveFake) Delete(_ context.Context, key string) error {
	delete(f.saved, key)
	f.deleted = append(f.deleted, key)
	return nil
}

func (f *archiveFake) keys() []string {
	out := make([]string, 0, len(f.saved))
	for key := range f.saved {
		out = append(out, key)
	}
	sort.Strings(out)
	return out
}

type queueFake struct {
	published []string
	err       error
}

func (f *queueFake) PublishVideoIngest(_ context.Context, videoID string) error {
	if f.err != nil {
		return f.err
	}
	f.published = append(f.published, videoID)
	return nil
}

func (f *queueFake) SubscribeVideoIngest(context.Context, func(context.Context, string) error) error {
	return nil
}

type lockFake struct {
	held     map[string]bool
	released []string
	err      error
}

func (f *lockFake) Acquire(_ context.Context, videoID string, _ time.Duration) (bool, error) {
	if f.err != nil {
		return false, f.err
	}
	if f.held == nil {
		f.held = map[string]bool{}
	}
	if f.held[videoID] {
		return false, nil
	}
	f.held[videoID] = true
	return true, nil
}

func (f *lockFake) Release(_ context.Context, videoID string) error {
	delete(f.held, videoID)
	f.released = append(f.released, videoID)
	return nil
}

type sourceFake struct {
	segments []domain.TranscriptSegment
	err      error
}

func (f *sourceFake) Segments(context.Context, *domain.Video) ([]domain.TranscriptSegment, error) {
	if f.err != nil {
		return nil, f.err
	}
	return f.segments, nil
}
