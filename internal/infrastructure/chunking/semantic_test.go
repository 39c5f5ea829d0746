package chunking

import (
	"math"
	"math/rand"
	"reflect"
	"strings"
	"testing"

	"github.com/danieledinun/aitreon-sub004/internal/core/domain"
)

func newTestChunker() *SemanticChunker {
	return NewSemanticChunker(domain.DefaultChunkingHeuristics())
}

func TestChunkMergesShortSegmentsIntoOneChunk(t *testing.T) {
	segments := []domain.TranscriptSegment{
		{Start: 0, End: 5, Text: "Hello. "},
		{Start: 5, End: 10, Text: "Today we fry chicken."},
		{Start: 10, End: 16, Text: "It gets crispy."},
	}
	opts := domain.ChunkOptions{MinChunkDuration: 10, MaxChunkDuration: 20, OverlapDuration: 2, MinWordsPerChunk: 5}

	chunks := newTestChunker().Chunk(segments, "vid-1", opts)
	if len(chunks) != 1 {
		t.Fatalf("expected 1 chunk, got %d", len(chunks))
	}
	got := chunks[0]
	if got.StartTime != 0 || got.EndTime != 16 {
		t.Fatalf("unexpected bounds: %.1f-%.1f", got.StartTime, got.EndTime)
	}
	if got.Content != "Hello. Today we fry chicken. It gets crispy." {
		t.Fatalf("unexpected content: %q", got.Content)
	}
	if got.WordCount != 8 || got.SentenceCount != 3 {
		t.Fatalf("unexpected counts: words=%d sentences=%d", got.WordCount, got.SentenceCount)
	}
	if got.ConfidenceScore < 0.6 {
		t.Fatalf("expected confidence >= 0.6, got %.3f", got.ConfidenceScore)
	}
	if got.ConfidenceScore != 0.9 {
		t.Fatalf("expected confidence 0.9, got %.3f", got.ConfidenceScore)
	}
	if got.VideoID != "vid-1" || got.ChunkID == "" {
		t.Fatalf("expected video id and chunk id to be set: %+v", got)
	}
}

func TestChunkEmptyInputReturnsEmptySlice(t *testing.T) {
	chunks := newTestChunker().Chunk(nil, "vid-1", domain.DefaultChunkOptions())
	if chunks == nil || len(chunks) != 0 {
		t.Fatalf("expected empty non-nil slice, got %#v", chunks)
	}
}

func TestChunkDropsMalformedSegmentsAndSortsByStart(t *testing.T) {
	segments := []domain.TranscriptSegment{
		{Start: 10, End: 15, Text: "second part here."},
		{Start: 0, End: 5, Text: "  first   part here. "},
		{Start: math.NaN(), End: 3, Text: "not a number"},
		{Start: 7, End: 6, Text: "inverted"},
		{Start: 20, End: 25, Text: "   "},
	}
	opts := domain.ChunkOptions{MinChunkDuration: 1, MaxChunkDuration: 100, OverlapDuration: 0, MinWordsPerChunk: 1}

	chunks := newTestChunker().Chunk(segments, "vid-1", opts)
	if len(chunks) != 1 {
		t.Fatalf("expected 1 chunk, got %d", len(chunks))
	}
	if chunks[0].Content != "first part here. second part here." {
		t.Fatalf("unexpected content: %q", chunks[0].Content)
	}
	if chunks[0].FirstSegment != 0 || chunks[0].LastSegment != 1 {
		t.Fatalf("unexpected segment span: %d-%d", chunks[0].FirstSegment, chunks[0].LastSegment)
	}
}

func TestChunkSealsAtTransitionCue(t *testing.T) {
	segments := cookingSegments("however the sauce needs care", 15)
	opts := domain.ChunkOptions{MinChunkDuration: 10, MaxChunkDuration: 60, OverlapDuration: 0, MinWordsPerChunk: 3}

	chunks := newTestChunker().Chunk(segments, "vid-1", opts)
	if len(chunks) != 2 {
		t.Fatalf("expected 2 chunks, got %d", len(chunks))
	}
	if chunks[0].LastSegment != 4 || chunks[1].FirstSegment != 5 {
		t.Fatalf("expected seal before cue segment, got %d/%d", chunks[0].LastSegment, chunks[1].FirstSegment)
	}
}

func TestChunkSealsAtPause(t *testing.T) {
	segments := cookingSegments("the sauce needs care", 17.5)
	opts := domain.ChunkOptions{MinChunkDuration: 10, MaxChunkDuration: 60, OverlapDuration: 0, MinWordsPerChunk: 3}

	chunks := newTestChunker().Chunk(segments, "vid-1", opts)
	if len(chunks) != 2 {
		t.Fatalf("expected 2 chunks, got %d", len(chunks))
	}
	if !strings.HasPrefix(chunks[1].Content, "the sauce needs care") {
		t.Fatalf("expected second chunk to start after pause, got %q", chunks[1].Content)
	}
}

func TestChunkKeepsGoingWithoutBreakpoint(t *testing.T) {
	segments := cookingSegments("the sauce needs care", 15)
	opts := domain.ChunkOptions{MinChunkDuration: 10, MaxChunkDuration: 60, OverlapDuration: 0, MinWordsPerChunk: 3}

	chunks := newTestChunker().Chunk(segments, "vid-1", opts)
	if len(chunks) != 1 {
		t.Fatalf("expected a single chunk, got %d", len(chunks))
	}
}

func TestChunkNeverExceedsMaxDuration(t *testing.T) {
	segments := make([]domain.TranscriptSegment, 0, 10)
	for i := 0; i < 10; i++ {
		start := float64(i * 10)
		segments = append(segments, domain.TranscriptSegment{Start: start, End: start + 10, Text: "words without any ending"})
	}
	opts := domain.ChunkOptions{MinChunkDuration: 20, MaxChunkDuration: 30, OverlapDuration: 0, MinWordsPerChunk: 1}

	chunks := newTestChunker().Chunk(segments, "vid-1", opts)
	if len(chunks) != 4 {
		t.Fatalf("expected 4 chunks, got %d", len(chunks))
	}
	for i, chunk := range chunks {
		if chunk.Duration() > opts.MaxChunkDuration {
			t.Fatalf("chunk %d exceeds max duration: %.1f", i, chunk.Duration())
		}
		if i < len(chunks)-1 && chunk.Duration() < opts.MinChunkDuration {
			t.Fatalf("chunk %d below min duration: %.1f", i, chunk.Duration())
		}
	}
}

func TestChunkCarriesOverlapIntoNextChunk(t *testing.T) {
	segments := make([]domain.TranscriptSegment, 0, 8)
	for i := 0; i < 8; i++ {
		start := float64(i * 3)
		segments = append(segments, domain.TranscriptSegment{Start: start, End: start + 3, Text: "one short sentence."})
	}
	opts := domain.ChunkOptions{MinChunkDuration: 10, MaxChunkDuration: 15, OverlapDuration: 4, MinWordsPerChunk: 1}

	chunks := newTestChunker().Chunk(segments, "vid-1", opts)
	if len(chunks) < 2 {
		t.Fatalf("expected at least 2 chunks, got %d", len(chunks))
	}
	if chunks[0].LastSegment != 4 {
		t.Fatalf("expected first chunk to end at segment 4, got %d", chunks[0].LastSegment)
	}
	if chunks[1].FirstSegment != 4 {
		t.Fatalf("expected second chunk to start with overlap segment 4, got %d", chunks[1].FirstSegment)
	}
}

func TestChunkOverlapNeverStretchesPastMaxDuration(t *testing.T) {
	segments := []domain.TranscriptSegment{
		{Start: 0, End: 10, Text: "we start the dough"},
		{Start: 10, End: 20, Text: "knead it for a while"},
		{Start: 20, End: 25, Text: "then let it rest."},
		{Start: 25, End: 52, Text: "meanwhile the oven heats up slowly"},
	}
	opts := domain.ChunkOptions{MinChunkDuration: 20, MaxChunkDuration: 30, OverlapDuration: 5, MinWordsPerChunk: 1}

	chunks := newTestChunker().Chunk(segments, "vid-1", opts)
	if len(chunks) != 2 {
		t.Fatalf("expected 2 chunks, got %d", len(chunks))
	}
	for i, chunk := range chunks {
		if chunk.Duration() > opts.MaxChunkDuration {
			t.Fatalf("chunk %d exceeds max duration: %.1f-%.1f", i, chunk.StartTime, chunk.EndTime)
		}
	}
	if chunks[1].StartTime != 25 || chunks[1].FirstSegment != 3 {
		t.Fatalf("expected overlap segment to be dropped, got start %.1f segment %d", chunks[1].StartTime, chunks[1].FirstSegment)
	}
}

func TestChunkOverlapKeepsSeedThatFits(t *testing.T) {
	segments := []domain.TranscriptSegment{
		{Start: 0, End: 10, Text: "we start the dough"},
		{Start: 10, End: 20, Text: "knead it for a while"},
		{Start: 20, End: 25, Text: "then let it rest."},
		{Start: 25, End: 45, Text: "meanwhile the oven heats up slowly"},
	}
	opts := domain.ChunkOptions{MinChunkDuration: 20, MaxChunkDuration: 30, OverlapDuration: 5, MinWordsPerChunk: 1}

	chunks := newTestChunker().Chunk(segments, "vid-1", opts)
	if len(chunks) != 2 {
		t.Fatalf("expected 2 chunks, got %d", len(chunks))
	}
	if chunks[1].FirstSegment != 2 || chunks[1].Duration() != 25 {
		t.Fatalf("expected seed segment to be carried over, got segment %d duration %.1f", chunks[1].FirstSegment, chunks[1].Duration())
	}
}

func TestChunkGeneratedTranscriptInvariants(t *testing.T) {
	segments := generatedTranscript(42, 240)
	opts := domain.DefaultChunkOptions()
	heuristics := domain.DefaultChunkingHeuristics()

	chunks := newTestChunker().Chunk(segments, "vid-gen", opts)
	if len(chunks) < 3 {
		t.Fatalf("expected several chunks, got %d", len(chunks))
	}

	overlapPairs := 0
	for i, chunk := range chunks {
		if chunk.FirstSegment > chunk.LastSegment {
			t.Fatalf("chunk %d has inverted span %d-%d", i, chunk.FirstSegment, chunk.LastSegment)
		}
		texts := make([]string, 0, chunk.LastSegment-chunk.FirstSegment+1)
		for idx := chunk.FirstSegment; idx <= chunk.LastSegment; idx++ {
			texts = append(texts, segments[idx].Text)
		}
		if chunk.Content != strings.Join(texts, " ") {
			t.Fatalf("chunk %d content is not the concatenation of its segments", i)
		}
		if chunk.StartTime != segments[chunk.FirstSegment].Start || chunk.EndTime != segments[chunk.LastSegment].End {
			t.Fatalf("chunk %d bounds do not match its segments", i)
		}
		if chunk.Duration() > opts.MaxChunkDuration {
			t.Fatalf("chunk %d exceeds max duration: %.2f", i, chunk.Duration())
		}
		if i < len(chunks)-1 && chunk.Duration() < opts.MinChunkDuration {
			t.Fatalf("chunk %d below min duration: %.2f", i, chunk.Duration())
		}
		if chunk.WordCount < opts.MinWordsPerChunk || chunk.WordCount > heuristics.MaxWordsPerChunk {
			t.Fatalf("chunk %d word count out of bounds: %d", i, chunk.WordCount)
		}
		if chunk.ConfidenceScore < 0 || chunk.ConfidenceScore > 1 {
			t.Fatalf("chunk %d confidence out of range: %.3f", i, chunk.ConfidenceScore)
		}

		if i == 0 {
			continue
		}
		prev := chunks[i-1]
		if chunk.FirstSegment <= chunks[i-1].FirstSegment || chunk.LastSegment <= prev.LastSegment {
			t.Fatalf("chunk %d is out of order", i)
		}
		next := prev.LastSegment + 1
		tail := segments[prev.LastSegment]
		if tail.Start >= segments[next].Start-opts.OverlapDuration && segments[next].End-tail.Start <= opts.MaxChunkDuration {
			overlapPairs++
			if chunk.FirstSegment > prev.LastSegment {
				t.Fatalf("chunk %d should share trailing segments with chunk %d", i, i-1)
			}
		}
	}
	if overlapPairs == 0 {
		t.Fatalf("expected generated transcript to exercise overlap")
	}
}

func TestChunkIsDeterministic(t *testing.T) {
	segments := generatedTranscript(7, 120)
	chunker := newTestChunker()

	first := chunker.Chunk(segments, "vid-1", domain.DefaultChunkOptions())
	second := chunker.Chunk(segments, "vid-1", domain.DefaultChunkOptions())
	if !reflect.DeepEqual(first, second) {
		t.Fatalf("expected identical chunks for identical input")
	}

	seen := make(map[string]struct{}, len(first))
	for _, chunk := range first {
		if _, ok := seen[chunk.ChunkID]; ok {
			t.Fatalf("duplicate chunk id %s", chunk.ChunkID)
		}
		seen[chunk.ChunkID] = struct{}{}
	}

	other := chunker.Chunk(segments, "vid-2", domain.DefaultChunkOptions())
	if len(other) == 0 || other[0].ChunkID == first[0].ChunkID {
		t.Fatalf("expected chunk ids to be scoped by video")
	}
}

func TestValidateChunk(t *testing.T) {
	chunker := newTestChunker()
	valid := domain.SemanticChunk{
		ChunkID:         "c1",
		VideoID:         "vid-1",
		StartTime:       0,
		EndTime:         30,
		Content:         strings.Repeat("word ", 20),
		WordCount:       20,
		ConfidenceScore: 0.8,
	}
	if !chunker.ValidateChunk(valid) {
		t.Fatalf("expected chunk to be valid")
	}

	cases := map[string]func(c *domain.SemanticChunk){
		"too few words":  func(c *domain.SemanticChunk) { c.WordCount = 10 },
		"too many words": func(c *domain.SemanticChunk) { c.WordCount = 201 },
		"low confidence": func(c *domain.SemanticChunk) { c.ConfidenceScore = 0.5 },
		"too short":      func(c *domain.SemanticChunk) { c.EndTime = 5 },
		"empty content":  func(c *domain.SemanticChunk) { c.Content = "  " },
	}
	for name, mutate := range cases {
		chunk := valid
		mutate(&chunk)
		if chunker.ValidateChunk(chunk) {
			t.Fatalf("%s: expected chunk to be rejected", name)
		}
	}
}

// cookingSegments builds eight 3s segments without terminal punctuation.
// The sixth segment carries sixth and starts at sixthStart.
func cookingSegments(sixth string, sixthStart float64) []domain.TranscriptSegment {
	texts := []string{
		"we start with the dough",
		"knead it for a while",
		"keep going with the dough",
		"add some flour as needed",
		"fold it over again",
		sixth,
		"simmer the tomatoes slowly",
		"season with salt and basil",
	}
	out := make([]domain.TranscriptSegment, 0, len(texts))
	start := 0.0
	for i, text := range texts {
		if i == 5 {
			start = sixthStart
		}
		out = append(out, domain.TranscriptSegment{Start: start, End: start + 3, Text: text})
		start += 3
	}
	return out
}

func generatedTranscript(seed int64, n int) []domain.TranscriptSegment {
	vocab := []string{
		"garlic", "butter", "pan", "heat", "stir", "crispy", "oven", "pepper",
		"onion", "simmer", "taste", "bowl", "flour", "dough", "fold", "slice",
	}
	rng := rand.New(rand.NewSource(seed))
	out := make([]domain.TranscriptSegment, 0, n)
	at := 0.0
	for i := 0; i < n; i++ {
		dur := 2 + rng.Float64()*3
		count := 4 + rng.Intn(5)
		words := make([]string, 0, count)
		for w := 0; w < count; w++ {
			words = append(words, vocab[rng.Intn(len(vocab))])
		}
		text := strings.Join(words, " ")
		if rng.Intn(4) == 0 {
			text += "."
		}
		out = append(out, domain.TranscriptSegment{Start: at, End: at + dur, Text: text})
		at += dur
		if rng.Intn(15) == 0 {
			at += 2.5
		}
	}
	return out
}
