package domain

type CandidateSource string

const (
	SourceVector CandidateSource = "vector"
	SourceGraph  CandidateSource = "graph"
)

type RetrievalStrategy string

const (
	StrategyVector RetrievalStrategy = "vector"
	StrategyGraph  RetrievalStrategy = "graph"
)

// RetrievalCandidate is a per-query match. Unscored marks backends that ranked the
// candidate without a usable similarity; a zero or negative SimilarityScore is a real score.
type RetrievalCandidate struct {
	Chunk           SemanticChunk   `json:"chunk"`
	CreatorID       string          `json:"creator_id"`
	SimilarityScore float64         `json:"similarity_score"`
	Unscored        bool            `json:"-"`
	Source          CandidateSource `json:"source"`
}

type RouteDecision struct {
	Graph   bool   `json:"graph"`
	Complex bool   `json:"complex"`
	Reason  string `json:"reason"`
}

func (d RouteDecision) Strategy() RetrievalStrategy {
	if d.Graph {
		return StrategyGraph
	}
	return StrategyVector
}

type Citation struct {
	ChunkID        string          `json:"chunk_id"`
	VideoID        string          `json:"video_id"`
	VideoTitle     string          `json:"video_title"`
	VideoURL       string          `json:"video_url"`
	TimestampURL   string          `json:"timestamp_url"`
	Content        string          `json:"content"`
	StartTime      float64         `json:"start_time"`
	EndTime        float64         `json:"end_time"`
	RelevanceScore float64         `json:"relevance_score"`
	Source         CandidateSource `json:"source"`
}

type RetrievalResult struct {
	Query         string            `json:"query"`
	Strategy      RetrievalStrategy `json:"strategy"`
	GraphFallback bool              `json:"graph_fallback"`
	Citations     []Citation        `json:"citations"`
	Confidence    float64           `json:"confidence"`
}

// EmptyRetrieval is the well-formed result for creators or queries with nothing to cite.
func EmptyRetrieval(query string) *RetrievalResult {
	return &RetrievalResult{
		Query:     query,
		Strategy:  StrategyVector,
		Citations: []Citation{},
	}
}
