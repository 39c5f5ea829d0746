package chunking

import (
	"fmt"
	"math"
	"sort"
	"strings"
	"unicode"

	"github.com/google/uuid"

	"github.com/danieledinun/aitreon-sub004/internal/core/domain"
)

var chunkNamespace = uuid.NewSHA1(uuid.NameSpaceURL, []byte("aitreon/semantic-chunk"))

// SemanticChunker merges transcript segments into coherent passages bounded by
// duration and word count, sealing at natural breakpoints.
type SemanticChunker struct {
	heuristics domain.ChunkingHeuristics
	terminal   map[rune]struct{}
	cues       []string
}

func NewSemanticChunker(heuristics domain.ChunkingHeuristics) *SemanticChunker {
	def := domain.DefaultChunkingHeuristics()
	if heuristics.TerminalPunctuation == "" {
		heuristics.TerminalPunctuation = def.TerminalPunctuation
	}
	if heuristics.MaxWordsPerChunk <= 0 {
		heuristics.MaxWordsPerChunk = def.MaxWordsPerChunk
	}
	if heuristics.PauseGap <= 0 {
		heuristics.PauseGap = def.PauseGap
	}
	if heuristics.BreakpointMargin < 0 {
		heuristics.BreakpointMargin = 0
	}

	terminal := make(map[rune]struct{}, len(heuristics.TerminalPunctuation))
	for _, r := range heuristics.TerminalPunctuation {
		terminal[r] = struct{}{}
	}
	cues := make([]string, 0, len(heuristics.TransitionCues))
	for _, cue := range heuristics.TransitionCues {
		normalized := strings.Join(lowerWords(cue), " ")
		if normalized != "" {
			cues = append(cues, normalized)
		}
	}

	return &SemanticChunker{
		heuristics: heuristics,
		terminal:   terminal,
		cues:       cues,
	}
}

// Chunk never fails: malformed segments are dropped and an empty slice means
// there is nothing to ingest.
func (c *SemanticChunker) Chunk(segments []domain.TranscriptSegment, videoID string, opts domain.ChunkOptions) []domain.SemanticChunk {
	opts = opts.Normalize()
	segs := sanitizeSegments(segments)
	out := make([]domain.SemanticChunk, 0, len(segs)/8+1)
	if len(segs) == 0 {
		return out
	}

	words := make([]int, len(segs))
	for i, seg := range segs {
		words[i] = len(strings.Fields(seg.Text))
	}

	window := make([]int, 0, 32)
	for i := range segs {
		if len(window) == 0 {
			window = append(window, i)
			continue
		}
		if c.shouldContinue(segs, words, window, i, opts) {
			window = append(window, i)
			continue
		}

		if chunk, ok := c.seal(segs, window, videoID, len(out), opts, false); ok {
			out = append(out, chunk)
		}
		window = overlapSeed(segs, window, segs[i], opts)
		window = append(window, i)
	}
	if chunk, ok := c.seal(segs, window, videoID, len(out), opts, true); ok {
		out = append(out, chunk)
	}
	return out
}

// ValidateChunk gates chunks before persistence; rejected chunks are never cited.
func (c *SemanticChunker) ValidateChunk(chunk domain.SemanticChunk) bool {
	h := c.heuristics
	if strings.TrimSpace(chunk.Content) == "" || chunk.EndTime <= chunk.StartTime {
		return false
	}
	if chunk.WordCount < h.ValidMinWords || chunk.WordCount > h.ValidMaxWords {
		return false
	}
	if chunk.ConfidenceScore < h.ValidMinConfidence {
		return false
	}
	return chunk.Duration() >= h.ValidMinDuration
}

func (c *SemanticChunker) shouldContinue(
	segs []domain.TranscriptSegment,
	words []int,
	window []int,
	next int,
	opts domain.ChunkOptions,
) bool {
	first := segs[window[0]]
	last := segs[window[len(window)-1]]
	candidate := segs[next]

	if candidate.End-first.Start > opts.MaxChunkDuration {
		return false
	}
	total := words[next]
	for _, idx := range window {
		total += words[idx]
	}
	if total > c.heuristics.MaxWordsPerChunk {
		return false
	}
	if last.End-first.Start < opts.MinChunkDuration+c.heuristics.BreakpointMargin {
		return true
	}
	return !c.isNaturalBreakpoint(last, candidate)
}

func (c *SemanticChunker) isNaturalBreakpoint(current, next domain.TranscriptSegment) bool {
	if c.endsWithTerminal(current.Text) {
		return true
	}
	if c.startsWithCue(next.Text) {
		return true
	}
	return next.Start-current.End > c.heuristics.PauseGap
}

func (c *SemanticChunker) seal(
	segs []domain.TranscriptSegment,
	window []int,
	videoID string,
	ordinal int,
	opts domain.ChunkOptions,
	final bool,
) (domain.SemanticChunk, bool) {
	if len(window) == 0 {
		return domain.SemanticChunk{}, false
	}
	first := segs[window[0]]
	last := segs[window[len(window)-1]]
	duration := last.End - first.Start
	if duration <= 0 {
		return domain.SemanticChunk{}, false
	}
	if !final && duration < opts.MinChunkDuration {
		return domain.SemanticChunk{}, false
	}

	texts := make([]string, 0, len(window))
	for _, idx := range window {
		texts = append(texts, segs[idx].Text)
	}
	content := strings.Join(texts, " ")
	wordCount := len(strings.Fields(content))
	if wordCount < opts.MinWordsPerChunk {
		return domain.SemanticChunk{}, false
	}

	complete, fragment := c.countSentences(content)
	sentenceCount := complete
	if fragment {
		sentenceCount++
	}

	return domain.SemanticChunk{
		ChunkID:         chunkID(videoID, ordinal, first.Start, last.End),
		VideoID:         videoID,
		StartTime:       first.Start,
		EndTime:         last.End,
		Content:         content,
		SentenceCount:   sentenceCount,
		WordCount:       wordCount,
		ConfidenceScore: c.confidence(content, wordCount, complete),
		FirstSegment:    window[0],
		LastSegment:     window[len(window)-1],
	}, true
}

func (c *SemanticChunker) confidence(content string, wordCount, completeSentences int) float64 {
	h := c.heuristics
	score := h.ConfidenceBase
	if completeSentences >= 1 {
		score += h.ConfidenceOneSentence
	}
	if completeSentences >= 2 {
		score += h.ConfidenceManySentences
	}
	if wordCount >= h.WellFormedMinWords && wordCount <= h.WellFormedMaxWords {
		score += h.ConfidenceWellFormed
	}
	if c.endsWithTerminal(content) {
		score += h.ConfidenceTerminalEnd
	}
	score = math.Round(score*1000) / 1000
	return math.Max(0, math.Min(1, score))
}

// countSentences returns the number of terminated sentences and whether an
// unterminated fragment trails them.
func (c *SemanticChunker) countSentences(text string) (int, bool) {
	runes := []rune(strings.TrimSpace(text))
	complete := 0
	fragment := false
	for i, r := range runes {
		if c.isTerminal(r) {
			if i == len(runes)-1 || unicode.IsSpace(runes[i+1]) {
				complete++
				fragment = false
			}
			continue
		}
		if !unicode.IsSpace(r) && !isClosingMark(r) {
			fragment = true
		}
	}
	return complete, fragment
}

func (c *SemanticChunker) endsWithTerminal(text string) bool {
	trimmed := strings.TrimRightFunc(text, func(r rune) bool {
		return unicode.IsSpace(r) || isClosingMark(r)
	})
	if trimmed == "" {
		return false
	}
	runes := []rune(trimmed)
	return c.isTerminal(runes[len(runes)-1])
}

func (c *SemanticChunker) startsWithCue(text string) bool {
	normalized := strings.Join(lowerWords(text), " ")
	if normalized == "" {
		return false
	}
	for _, cue := range c.cues {
		if normalized == cue || strings.HasPrefix(normalized, cue+" ") {
			return true
		}
	}
	return false
}

func (c *SemanticChunker) isTerminal(r rune) bool {
	_, ok := c.terminal[r]
	return ok
}

// overlapSeed keeps the trailing window segments that start within overlap seconds of nextStart.
// overlapSeed carries the tail of a sealed window into the next one. Seed
// segments are dropped from the front when keeping them would stretch the new
// window past MaxChunkDuration once next is appended.
func overlapSeed(segs []domain.TranscriptSegment, window []int, next domain.TranscriptSegment, opts domain.ChunkOptions) []int {
	if opts.OverlapDuration <= 0 {
		return window[:0]
	}
	cut := len(window)
	for cut > 0 && segs[window[cut-1]].Start >= next.Start-opts.OverlapDuration {
		cut--
	}
	for cut < len(window) && next.End-segs[window[cut]].Start > opts.MaxChunkDuration {
		cut++
	}
	seed := make([]int, 0, len(window)-cut+1)
	seed = append(seed, window[cut:]...)
	return seed
}

func sanitizeSegments(segments []domain.TranscriptSegment) []domain.TranscriptSegment {
	out := make([]domain.TranscriptSegment, 0, len(segments))
	for _, seg := range segments {
		if !isFinite(seg.Start) || !isFinite(seg.End) || seg.End <= seg.Start || seg.Start < 0 {
			continue
		}
		text := strings.Join(strings.Fields(seg.Text), " ")
		if text == "" {
			continue
		}
		out = append(out, domain.TranscriptSegment{Start: seg.Start, End: seg.End, Text: text})
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].Start < out[j].Start })
	return out
}

func chunkID(videoID string, ordinal int, start, end float64) string {
	name := fmt.Sprintf("%s:%d:%.3f:%.3f", videoID, ordinal, start, end)
	return uuid.NewSHA1(chunkNamespace, []byte(name)).String()
}

func lowerWords(s string) []string {
	fields := strings.Fields(strings.ToLower(s))
	out := make([]string, 0, len(fields))
	for _, f := range fields {
		f = strings.TrimFunc(f, func(r rune) bool {
			return !unicode.IsLetter(r) && !unicode.IsDigit(r)
		})
		if f != "" {
			out = append(out, f)
		}
	}
	return out
}

func isClosingMark(r rune) bool {
	switch r {
	case '"', '\'', ')', ']', '»', '”', '’':
		return true
	default:
		return false
	}
}

func isFinite(v float64) bool {
	return !math.IsNaN(v) && !math.IsInf(v, 0)
}
