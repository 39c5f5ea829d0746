package domain

// ChunkingHeuristics holds the empirically tuned breakpoint, scoring and validation
// thresholds of the semantic chunker.
type ChunkingHeuristics struct {
	TerminalPunctuation string   `yaml:"terminal_punctuation"`
	TransitionCues      []string `yaml:"transition_cues"`
	PauseGap            float64  `yaml:"pause_gap"`
	BreakpointMargin    float64  `yaml:"breakpoint_margin"`
	MaxWordsPerChunk    int      `yaml:"max_words_per_chunk"`

	ConfidenceBase          float64 `yaml:"confidence_base"`
	ConfidenceOneSentence   float64 `yaml:"confidence_one_sentence"`
	ConfidenceManySentences float64 `yaml:"confidence_many_sentences"`
	ConfidenceWellFormed    float64 `yaml:"confidence_well_formed"`
	ConfidenceTerminalEnd   float64 `yaml:"confidence_terminal_end"`
	WellFormedMinWords      int     `yaml:"well_formed_min_words"`
	WellFormedMaxWords      int     `yaml:"well_formed_max_words"`

	ValidMinWords      int     `yaml:"valid_min_words"`
	ValidMaxWords      int     `yaml:"valid_max_words"`
	ValidMinConfidence float64 `yaml:"valid_min_confidence"`
	ValidMinDuration   float64 `yaml:"valid_min_duration"`
}

func DefaultChunkingHeuristics() ChunkingHeuristics {
	return ChunkingHeuristics{
		TerminalPunctuation: ".!?",
		TransitionCues: []string{
			"now", "however", "therefore", "so", "next", "anyway", "alright",
			"okay", "moving", "finally", "meanwhile", "first", "second", "third",
		},
		PauseGap:         2,
		BreakpointMargin: 5,
		MaxWordsPerChunk: 200,

		ConfidenceBase:          0.5,
		ConfidenceOneSentence:   0.2,
		ConfidenceManySentences: 0.1,
		ConfidenceWellFormed:    0.2,
		ConfidenceTerminalEnd:   0.1,
		WellFormedMinWords:      20,
		WellFormedMaxWords:      100,

		ValidMinWords:      15,
		ValidMaxWords:      200,
		ValidMinConfidence: 0.6,
		ValidMinDuration:   10,
	}
}

// RoutingHeuristics decides when a question is complex enough for graph-augmented retrieval.
type RoutingHeuristics struct {
	TokenThreshold int      `yaml:"token_threshold"`
	RelationalCues []string `yaml:"relational_cues"`
}

func DefaultRoutingHeuristics() RoutingHeuristics {
	return RoutingHeuristics{
		TokenThreshold: 10,
		RelationalCues: []string{
			"relationship", "related", "connected", "connection", "together",
			"compared to", "versus", "vs", "difference between", "between", "link",
		},
	}
}
