package domain

// TranscriptSegment is the smallest raw transcript unit emitted by the transcription source.
// Times are seconds from the start of the video.
type TranscriptSegment struct {
	Start float64 `json:"start"`
	End   float64 `json:"end"`
	Text  string  `json:"text"`
}

func (s TranscriptSegment) Duration() float64 {
	return s.End - s.Start
}
