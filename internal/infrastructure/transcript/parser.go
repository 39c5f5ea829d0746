// Package transcript decodes archived transcript uploads into ordered segments.
package transcript

import (
	"bufio"
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"path/filepath"
	"regexp"
	"strconv"
	"strings"

	"github.com/danieledinun/aitreon-sub004/internal/core/domain"
)

type Format string

const (
	FormatJSON   Format = "json"
	FormatSRT    Format = "srt"
	FormatWebVTT Format = "vtt"
)

var (
	cueTimingPattern = regexp.MustCompile(`^\s*((?:\d+:)?\d{1,2}:\d{2}[.,]\d{1,3})\s*-->\s*((?:\d+:)?\d{1,2}:\d{2}[.,]\d{1,3})`)
	markupPattern    = regexp.MustCompile(`<[^>]*>`)
)

// DetectFormat prefers the file extension and falls back to sniffing the content.
func DetectFormat(filename string, data []byte) (Format, error) {
	switch strings.ToLower(filepath.Ext(filename)) {
	case ".json":
		return FormatJSON, nil
	case ".srt":
		return FormatSRT, nil
	case ".vtt":
		return FormatWebVTT, nil
	}

	trimmed := bytes.TrimSpace(bytes.TrimPrefix(data, []byte("\ufeff")))
	switch {
	case len(trimmed) == 0:
		return "", domain.WrapError(domain.ErrInvalidInput, "detect transcript format", errors.New("empty transcript"))
	case trimmed[0] == '[' || trimmed[0] == '{':
		return FormatJSON, nil
	case bytes.HasPrefix(trimmed, []byte("WEBVTT")):
		return FormatWebVTT, nil
	case cueTimingPattern.Match(firstTimingLine(trimmed)):
		return FormatSRT, nil
	}
	return "", domain.WrapError(domain.ErrInvalidInput, "detect transcript format", fmt.Errorf("unsupported transcript %q", filename))
}

// Parse decodes a transcript. Malformed entries are skipped; only an unreadable document is an error.
func Parse(filename string, data []byte) ([]domain.TranscriptSegment, error) {
	format, err := DetectFormat(filename, data)
	if err != nil {
		return nil, err
	}
	data = bytes.TrimPrefix(data, []byte("\ufeff"))
	switch format {
	case FormatJSON:
		return parseJSON(data)
	default:
		return parseCues(data), nil
	}
}

type jsonSegment struct {
	Start    *float64 `json:"start"`
	End      *float64 `json:"end"`
	Duration *float64 `json:"duration"`
	Text     string   `json:"text"`
}

func parseJSON(data []byte) ([]domain.TranscriptSegment, error) {
	var raw []jsonSegment
	trimmed := bytes.TrimSpace(data)
	if len(trimmed) > 0 && trimmed[0] == '{' {
		var envelope struct {
			Segments   []jsonSegment `json:"segments"`
			Transcript []jsonSegment `json:"transcript"`
		}
		if err := json.Unmarshal(trimmed, &envelope); err != nil {
			return nil, domain.WrapError(domain.ErrInvalidInput, "decode transcript json", err)
		}
		raw = envelope.Segments
		if len(raw) == 0 {
			raw = envelope.Transcript
		}
	} else if err := json.Unmarshal(trimmed, &raw); err != nil {
		return nil, domain.WrapError(domain.ErrInvalidInput, "decode transcript json", err)
	}

	out := make([]domain.TranscriptSegment, 0, len(raw))
	for _, item := range raw {
		if item.Start == nil {
			continue
		}
		end := math.NaN()
		switch {
		case item.End != nil:
			end = *item.End
		case item.Duration != nil:
			end = *item.Start + *item.Duration
		}
		if segment, ok := newSegment(*item.Start, end, item.Text); ok {
			out = append(out, segment)
		}
	}
	return out, nil
}

// parseCues reads SRT and WebVTT blocks: an optional identifier, a timing line and text lines.
func parseCues(data []byte) []domain.TranscriptSegment {
	out := make([]domain.TranscriptSegment, 0)
	scanner := bufio.NewScanner(bytes.NewReader(data))
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)

	var (
		inCue      bool
		start, end float64
		lines      []string
	)
	flush := func() {
		if inCue {
			if segment, ok := newSegment(start, end, strings.Join(lines, " ")); ok {
				out = append(out, segment)
			}
		}
		inCue = false
		lines = lines[:0]
	}

	for scanner.Scan() {
		line := strings.TrimRight(scanner.Text(), "\r")
		if strings.TrimSpace(line) == "" {
			flush()
			continue
		}
		if match := cueTimingPattern.FindStringSubmatch(line); match != nil {
			flush()
			s, errStart := parseTimestamp(match[1])
			e, errEnd := parseTimestamp(match[2])
			if errStart != nil || errEnd != nil {
				continue
			}
			start, end, inCue = s, e, true
			continue
		}
		if inCue {
			lines = append(lines, markupPattern.ReplaceAllString(line, ""))
		}
	}
	flush()
	return out
}

// parseTimestamp accepts HH:MM:SS,mmm, HH:MM:SS.mmm and MM:SS.mmm.
func parseTimestamp(value string) (float64, error) {
	value = strings.ReplaceAll(strings.TrimSpace(value), ",", ".")
	parts := strings.Split(value, ":")
	if len(parts) < 2 || len(parts) > 3 {
		return 0, fmt.Errorf("invalid timestamp %q", value)
	}
	seconds, err := strconv.ParseFloat(parts[len(parts)-1], 64)
	if err != nil {
		return 0, fmt.Errorf("invalid seconds in %q: %w", value, err)
	}
	multiplier := 60.0
	for i := len(parts) - 2; i >= 0; i-- {
		n, err := strconv.Atoi(parts[i])
		if err != nil {
			return 0, fmt.Errorf("invalid timestamp %q: %w", value, err)
		}
		seconds += float64(n) * multiplier
		multiplier *= 60
	}
	return seconds, nil
}

func newSegment(start, end float64, text string) (domain.TranscriptSegment, bool) {
	text = strings.Join(strings.Fields(text), " ")
	if text == "" || math.IsNaN(start) || math.IsNaN(end) || math.IsInf(start, 0) || math.IsInf(end, 0) {
		return domain.TranscriptSegment{}, false
	}
	if start < 0 || end <= start {
		return domain.TranscriptSegment{}, false
	}
	return domain.TranscriptSegment{Start: start, End: end, Text: text}, true
}

func firstTimingLine(data []byte) []byte {
	lines := bytes.SplitN(data, []byte("\n"), 3)
	for _, line := range lines {
		if bytes.Contains(line, []byte("-->")) {
			return line
		}
	}
	return nil
}
