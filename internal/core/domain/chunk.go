package domain

// SemanticChunk is a bounded, contiguous span of transcript text retrievable as one unit.
// FirstSegment and LastSegment index the sanitized segment list the chunk was built from.
type SemanticChunk struct {
	ChunkID         string  `json:"chunk_id"`
	VideoID         string  `json:"video_id"`
	StartTime       float64 `json:"start_time"`
	EndTime         float64 `json:"end_time"`
	Content         string  `json:"content"`
	SentenceCount   int     `json:"sentence_count"`
	WordCount       int     `json:"word_count"`
	ConfidenceScore float64 `json:"confidence_score"`
	FirstSegment    int     `json:"first_segment"`
	LastSegment     int     `json:"last_segment"`
}

func (c SemanticChunk) Duration() float64 {
	return c.EndTime - c.StartTime
}

// IndexedChunk is a chunk paired with its embedding, scoped to the owning creator.
type IndexedChunk struct {
	Chunk     SemanticChunk `json:"chunk"`
	CreatorID string        `json:"creator_id"`
	Vector    []float32     `json:"-"`
}

// ChunkOptions bounds chunk duration, overlap and minimum size.
// Durations are in seconds.
type ChunkOptions struct {
	MinChunkDuration float64 `json:"min_chunk_duration" yaml:"min_chunk_duration"`
	MaxChunkDuration float64 `json:"max_chunk_duration" yaml:"max_chunk_duration"`
	OverlapDuration  float64 `json:"overlap_duration" yaml:"overlap_duration"`
	MinWordsPerChunk int     `json:"min_words_per_chunk" yaml:"min_words_per_chunk"`
}

func DefaultChunkOptions() ChunkOptions {
	return ChunkOptions{
		MinChunkDuration: 60,
		MaxChunkDuration: 90,
		OverlapDuration:  5,
		MinWordsPerChunk: 20,
	}
}

// FineGrainedChunkOptions produces short passages for dense, conversational content.
func FineGrainedChunkOptions() ChunkOptions {
	return ChunkOptions{
		MinChunkDuration: 15,
		MaxChunkDuration: 45,
		OverlapDuration:  4,
		MinWordsPerChunk: 20,
	}
}

// Normalize fills zero or inconsistent fields from the defaults.
func (o ChunkOptions) Normalize() ChunkOptions {
	def := DefaultChunkOptions()
	out := o
	if out.MinChunkDuration <= 0 {
		out.MinChunkDuration = def.MinChunkDuration
	}
	if out.MaxChunkDuration <= 0 {
		out.MaxChunkDuration = def.MaxChunkDuration
	}
	if out.MaxChunkDuration < out.MinChunkDuration {
		out.MaxChunkDuration = out.MinChunkDuration
	}
	if out.OverlapDuration < 0 {
		out.OverlapDuration = 0
	}
	if out.MinWordsPerChunk <= 0 {
		out.MinWordsPerChunk = def.MinWordsPerChunk
	}
	return out
}
