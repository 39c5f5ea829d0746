package config

import (
	"os"
	"path/filepath"
	"testing"
)

func TestLoadIncludesRetrievalDefaults(t *testing.T) {
	t.Setenv("RETRIEVE_DEFAULT_K", "")
	t.Setenv("RETRIEVE_OVER_FETCH", "")
	t.Setenv("GRAPH_PROBE_TIMEOUT_MS", "")
	t.Setenv("EMBEDDING_PROVIDER", "")
	t.Setenv("NATS_SUBJECT", "")

	cfg := Load()
	if cfg.RetrieveDefaultK != 5 {
		t.Fatalf("expected default k 5, got %d", cfg.RetrieveDefaultK)
	}
	if cfg.RetrieveOverFetch != 3 {
		t.Fatalf("expected over-fetch 3, got %d", cfg.RetrieveOverFetch)
	}
	if cfg.GraphProbeTimeoutMs != 500 {
		t.Fatalf("expected graph probe timeout 500ms, got %d", cfg.GraphProbeTimeoutMs)
	}
	if cfg.EmbeddingProvider != "ollama" {
		t.Fatalf("expected ollama provider, got %q", cfg.EmbeddingProvider)
	}
	if cfg.NATSSubject != "videos.ingest" {
		t.Fatalf("expected videos.ingest subject, got %q", cfg.NATSSubject)
	}
}

func TestLoadParsesOverrides(t *testing.T) {
	t.Setenv("RETRIEVE_DEFAULT_K", "8")
	t.Setenv("INGEST_EMBED_RATE_PER_SECOND", "2.5")
	t.Setenv("RESILIENCE_BREAKER_ENABLED", "false")
	t.Setenv("EMBEDDING_PROVIDER", "OpenAI")
	t.Setenv("WORKER_CONCURRENCY", "not-a-number")

	cfg := Load()
	if cfg.RetrieveDefaultK != 8 {
		t.Fatalf("expected k override 8, got %d", cfg.RetrieveDefaultK)
	}
	if cfg.IngestEmbedRatePerSec != 2.5 {
		t.Fatalf("expected rate 2.5, got %f", cfg.IngestEmbedRatePerSec)
	}
	if cfg.ResilienceBreakerEnabled {
		t.Fatalf("expected breaker disabled")
	}
	if cfg.EmbeddingProvider != "openai" {
		t.Fatalf("expected lower-cased provider, got %q", cfg.EmbeddingProvider)
	}
	if cfg.WorkerConcurrency != 2 {
		t.Fatalf("expected invalid int to fall back to 2, got %d", cfg.WorkerConcurrency)
	}
}

func TestLoadHeuristicsDefaultsWithoutFile(t *testing.T) {
	h, err := LoadHeuristics("")
	if err != nil {
		t.Fatalf("LoadHeuristics() error = %v", err)
	}
	if h.Chunking.PauseGap != 2 || h.Routing.TokenThreshold != 10 {
		t.Fatalf("unexpected defaults: %+v", h)
	}
	if h.ChunkOptions.MaxChunkDuration != 90 {
		t.Fatalf("expected default max duration 90, got %f", h.ChunkOptions.MaxChunkDuration)
	}
}

func TestLoadHeuristicsOverridesOnlyGivenFields(t *testing.T) {
	path := filepath.Join(t.TempDir(), "heuristics.yaml")
	raw := []byte(`
chunk_options:
  max_chunk_duration: 120
chunking:
  pause_gap: 1.5
  transition_cues: [now, next]
routing:
  token_threshold: 7
`)
	if err := os.WriteFile(path, raw, 0o600); err != nil {
		t.Fatalf("write heuristics: %v", err)
	}

	h, err := LoadHeuristics(path)
	if err != nil {
		t.Fatalf("LoadHeuristics() error = %v", err)
	}
	if h.ChunkOptions.MaxChunkDuration != 120 || h.ChunkOptions.MinChunkDuration != 60 {
		t.Fatalf("unexpected chunk options: %+v", h.ChunkOptions)
	}
	if h.Chunking.PauseGap != 1.5 || len(h.Chunking.TransitionCues) != 2 {
		t.Fatalf("unexpected chunking heuristics: %+v", h.Chunking)
	}
	if h.Chunking.MaxWordsPerChunk != 200 {
		t.Fatalf("expected untouched word ceiling, got %d", h.Chunking.MaxWordsPerChunk)
	}
	if h.Routing.TokenThreshold != 7 || len(h.Routing.RelationalCues) == 0 {
		t.Fatalf("unexpected routing heuristics: %+v", h.Routing)
	}
}

func TestParseHeuristicsRejectsUnknownAndInvalid(t *testing.T) {
	if _, err := ParseHeuristics([]byte("chunking:\n  pause_gapp: 3\n")); err == nil {
		t.Fatalf("expected unknown field error")
	}
	if _, err := ParseHeuristics([]byte("routing:\n  token_threshold: 0\n")); err == nil {
		t.Fatalf("expected validation error")
	}
}

func TestChunkOptionsForMode(t *testing.T) {
	h := DefaultHeuristics()
	if got := h.ChunkOptionsFor("fine"); got.MaxChunkDuration != 45 {
		t.Fatalf("expected fine max 45, got %f", got.MaxChunkDuration)
	}
	if got := h.ChunkOptionsFor(""); got.MaxChunkDuration != 90 {
		t.Fatalf("expected default max 90, got %f", got.MaxChunkDuration)
	}
}
