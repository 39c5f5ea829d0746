package config

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/danieledinun/aitreon-sub004/internal/core/domain"
)

// Heuristics groups the tunable chunking and routing thresholds. Fields absent from the
// YAML file keep their defaults.
type Heuristics struct {
	ChunkOptions     domain.ChunkOptions       `yaml:"chunk_options"`
	FineChunkOptions domain.ChunkOptions       `yaml:"fine_chunk_options"`
	Chunking         domain.ChunkingHeuristics `yaml:"chunking"`
	Routing          domain.RoutingHeuristics  `yaml:"routing"`
}

func DefaultHeuristics() Heuristics {
	return Heuristics{
		ChunkOptions:     domain.DefaultChunkOptions(),
		FineChunkOptions: domain.FineGrainedChunkOptions(),
		Chunking:         domain.DefaultChunkingHeuristics(),
		Routing:          domain.DefaultRoutingHeuristics(),
	}
}

// LoadHeuristics reads path, or returns the defaults when path is empty.
func LoadHeuristics(path string) (Heuristics, error) {
	if strings.TrimSpace(path) == "" {
		return DefaultHeuristics(), nil
	}
	raw, err := os.ReadFile(path)
	if err != nil {
		return Heuristics{}, fmt.Errorf("read heuristics file: %w", err)
	}
	return ParseHeuristics(raw)
}

func ParseHeuristics(raw []byte) (Heuristics, error) {
	out := DefaultHeuristics()
	decoder := yaml.NewDecoder(bytes.NewReader(raw))
	decoder.KnownFields(true)
	if err := decoder.Decode(&out); err != nil && !errors.Is(err, io.EOF) {
		return Heuristics{}, fmt.Errorf("decode heuristics yaml: %w", err)
	}
	if err := out.validate(); err != nil {
		return Heuristics{}, err
	}
	return out, nil
}

// ChunkOptionsFor resolves a chunk mode name ("fine", "fine-grained" or default).
func (h Heuristics) ChunkOptionsFor(mode string) domain.ChunkOptions {
	switch strings.ToLower(strings.TrimSpace(mode)) {
	case "fine", "fine-grained", "fine_grained":
		return h.FineChunkOptions.Normalize()
	default:
		return h.ChunkOptions.Normalize()
	}
}

func (h Heuristics) validate() error {
	c := h.Chunking
	switch {
	case strings.TrimSpace(c.TerminalPunctuation) == "":
		return fmt.Errorf("heuristics: chunking.terminal_punctuation must not be empty")
	case c.PauseGap < 0 || c.BreakpointMargin < 0:
		return fmt.Errorf("heuristics: chunking pause_gap and breakpoint_margin must be non-negative")
	case c.MaxWordsPerChunk <= 0:
		return fmt.Errorf("heuristics: chunking.max_words_per_chunk must be positive")
	case c.ValidMinWords > c.ValidMaxWords:
		return fmt.Errorf("heuristics: chunking.valid_min_words exceeds valid_max_words")
	case c.ValidMinConfidence < 0 || c.ValidMinConfidence > 1:
		return fmt.Errorf("heuristics: chunking.valid_min_confidence must be within [0,1]")
	case h.Routing.TokenThreshold <= 0:
		return fmt.Errorf("heuristics: routing.token_threshold must be positive")
	}
	return nil
}
