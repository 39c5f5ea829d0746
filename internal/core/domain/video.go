package domain

import "time"

type VideoStatus string

const (
	VideoStatusRegistered VideoStatus = "registered"
	VideoStatusQueued     VideoStatus = "queued"
	VideoStatusProcessing VideoStatus = "processing"
	VideoStatusReady      VideoStatus = "ready"
	VideoStatusFailed     VideoStatus = "failed"
)

// Video is owned by a creator and exclusively owns its chunks.
type Video struct {
	ID            string      `json:"id"`
	CreatorID     string      `json:"creator_id"`
	Title         string      `json:"title"`
	CanonicalURL  string      `json:"canonical_url"`
	TranscriptKey string      `json:"transcript_key,omitempty"`
	Status        VideoStatus `json:"status"`
	ChunkCount    int         `json:"chunk_count"`
	Error         string      `json:"error,omitempty"`
	CreatedAt     time.Time   `json:"created_at"`
	UpdatedAt     time.Time   `json:"updated_at"`
}

type IngestResult struct {
	VideoID         string `json:"video_id"`
	ChunksCreated   int    `json:"chunks_created"`
	ChunksAttempted int    `json:"chunks_attempted"`
	ChunksDiscarded int    `json:"chunks_discarded"`
}
