package transcript

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/danieledinun/aitreon-sub004/internal/core/domain"
	"github.com/danieledinun/aitreon-sub004/internal/core/ports"
)

var _ ports.TranscriptSource = (*ArchiveSource)(nil)

// maxTranscriptBytes caps a single upload; multi-hour transcripts stay far below it.
const maxTranscriptBytes = 32 << 20

// ArchiveSource reads the video's archived transcript and parses it by key extension or content.
type ArchiveSource struct {
	archive ports.TranscriptArchive
}

func NewArchiveSource(archive ports.TranscriptArchive) *ArchiveSource {
	return &ArchiveSource{archive: archive}
}

func (s *ArchiveSource) Segments(ctx context.Context, video *domain.Video) ([]domain.TranscriptSegment, error) {
	if video == nil || strings.TrimSpace(video.TranscriptKey) == "" {
		return nil, domain.WrapError(domain.ErrInvalidInput, "load transcript", errors.New("video has no archived transcript"))
	}
	reader, err := s.archive.Open(ctx, video.TranscriptKey)
	if err != nil {
		return nil, fmt.Errorf("open archived transcript: %w", err)
	}
	defer reader.Close()

	raw, err := io.ReadAll(io.LimitReader(reader, maxTranscriptBytes+1))
	if err != nil {
		return nil, fmt.Errorf("read archived transcript: %w", err)
	}
	if len(raw) > maxTranscriptBytes {
		return nil, domain.WrapError(domain.ErrInvalidInput, "load transcript", fmt.Errorf("transcript exceeds %d bytes", maxTranscriptBytes))
	}
	return Parse(video.TranscriptKey, raw)
}
