package httpadapter

import (
	"bytes"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"path/filepath"
	"strings"
	"time"

	"github.com/oapi-codegen/runtime"

	"github.com/danieledinun/aitreon-sub004/internal/config"
	"github.com/danieledinun/aitreon-sub004/internal/core/domain"
	"github.com/danieledinun/aitreon-sub004/internal/core/ports"
	"github.com/danieledinun/aitreon-sub004/internal/observability/metrics"
)

const serviceName = "api"

// VideoService is the video-facing surface the API exposes.
type VideoService interface {
	ports.VideoAdmin
	ports.TranscriptSubmitter
}

type Router struct {
	cfg       config.Config
	videos    VideoService
	retriever ports.CitationRetriever
	metrics   *metrics.HTTPServerMetrics
	validator *requestValidator
}

type RouterOption func(*Router)

func WithMetrics(m *metrics.HTTPServerMetrics) RouterOption {
	return func(rt *Router) {
		rt.metrics = m
	}
}

func NewRouter(
	cfg config.Config,
	videos VideoService,
	retriever ports.CitationRetriever,
	opts ...RouterOption,
) (*Router, error) {
	validator, err := newRequestValidator()
	if err != nil {
		return nil, err
	}
	rt := &Router{
		cfg:       cfg,
		videos:    videos,
		retriever: retriever,
		validator: validator,
	}
	for _, opt := range opts {
		opt(rt)
	}
	return rt, nil
}

func (rt *Router) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /healthz", rt.healthz)
	if rt.metrics != nil {
		mux.Handle("GET /metrics", rt.metrics.Handler())
	}
	mux.HandleFunc("POST /v1/videos", rt.registerVideo)
	mux.HandleFunc("GET /v1/videos/{videoID}", rt.getVideo)
	mux.HandleFunc("DELETE /v1/videos/{videoID}", rt.deleteVideo)
	mux.HandleFunc("POST /v1/videos/{videoID}/transcript", rt.submitTranscript)
	mux.HandleFunc("GET /v1/videos/{videoID}/chunks", rt.listChunks)
	mux.HandleFunc("POST /v1/creators/{creatorID}/retrieve", rt.retrieve)

	var handler http.Handler = rt.validator.middleware(mux)
	handler = backpressureMiddleware(
		handler,
		rt.cfg.APIBackpressureMaxInFlight,
		time.Duration(rt.cfg.APIBackpressureWaitMs)*time.Millisecond,
		rt.observeRejection,
	)
	handler = rateLimitMiddleware(handler, rt.cfg.APIRateLimitRPS, rt.cfg.APIRateLimitBurst, rt.observeRejection)
	handler = accessLogMiddleware(handler)
	handler = requestIDMiddleware(handler)
	if rt.metrics != nil {
		handler = rt.metrics.Middleware(serviceName, handler)
	}
	return handler
}

func (rt *Router) observeRejection(reason string) {
	if rt.metrics != nil {
		rt.metrics.RecordRejected(serviceName, reason)
	}
}

func (rt *Router) healthz(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

type registerVideoRequest struct {
	ID           string `json:"id"`
	CreatorID    string `json:"creator_id"`
	Title        string `json:"title"`
	CanonicalURL string `json:"canonical_url"`
}

func (rt *Router) registerVideo(w http.ResponseWriter, r *http.Request) {
	var req registerVideoRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid json")
		return
	}

	video, err := rt.videos.RegisterVideo(r.Context(), domain.Video{
		ID:           req.ID,
		CreatorID:    req.CreatorID,
		Title:        req.Title,
		CanonicalURL: req.CanonicalURL,
	})
	if err != nil {
		rt.writeDomainError(w, r, "register_video", err)
		return
	}
	writeJSON(w, http.StatusCreated, video)
}

func (rt *Router) getVideo(w http.ResponseWriter, r *http.Request) {
	videoID, ok := bindPathParam(w, r, "videoID")
	if !ok {
		return
	}
	video, err := rt.videos.GetVideo(r.Context(), videoID)
	if err != nil {
		rt.writeDomainError(w, r, "get_video", err)
		return
	}
	writeJSON(w, http.StatusOK, video)
}

func (rt *Router) deleteVideo(w http.ResponseWriter, r *http.Request) {
	videoID, ok := bindPathParam(w, r, "videoID")
	if !ok {
		return
	}
	if err := rt.videos.RemoveVideo(r.Context(), videoID); err != nil {
		rt.writeDomainError(w, r, "delete_video", err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

type segmentsRequest struct {
	Filename string          `json:"filename"`
	Segments json.RawMessage `json:"segments"`
}

// submitTranscript accepts either a multipart "file" (JSON, SRT or VTT) or inline JSON segments.
func (rt *Router) submitTranscript(w http.ResponseWriter, r *http.Request) {
	videoID, ok := bindPathParam(w, r, "videoID")
	if !ok {
		return
	}
	r.Body = http.MaxBytesReader(w, r.Body, rt.maxUploadBytes())

	var (
		video *domain.Video
		err   error
	)
	if isMultipart(r) {
		file, header, formErr := r.FormFile("file")
		if formErr != nil {
			writeError(w, http.StatusBadRequest, "multipart field 'file' is required")
			return
		}
		defer file.Close()
		video, err = rt.videos.SubmitTranscript(r.Context(), videoID, header.Filename, file)
	} else {
		var req segmentsRequest
		if decodeErr := json.NewDecoder(r.Body).Decode(&req); decodeErr != nil {
			var maxErr *http.MaxBytesError
			if errors.As(decodeErr, &maxErr) {
				writeError(w, http.StatusRequestEntityTooLarge, "transcript exceeds upload limit")
				return
			}
			writeError(w, http.StatusBadRequest, "invalid json")
			return
		}
		if len(req.Segments) == 0 {
			writeError(w, http.StatusBadRequest, "segments are required")
			return
		}
		video, err = rt.videos.SubmitTranscript(r.Context(), videoID, inlineTranscriptName(req.Filename), bytes.NewReader(req.Segments))
	}
	if err != nil {
		rt.writeDomainError(w, r, "submit_transcript", err)
		return
	}
	writeJSON(w, http.StatusAccepted, video)
}

func (rt *Router) listChunks(w http.ResponseWriter, r *http.Request) {
	videoID, ok := bindPathParam(w, r, "videoID")
	if !ok {
		return
	}
	var limit int
	if err := runtime.BindQueryParameter("form", true, false, "limit", r.URL.Query(), &limit); err != nil {
		writeError(w, http.StatusBadRequest, "invalid parameter \"limit\"")
		return
	}

	chunks, err := rt.videos.ListChunks(r.Context(), videoID, limit)
	if err != nil {
		rt.writeDomainError(w, r, "list_chunks", err)
		return
	}
	if chunks == nil {
		chunks = []domain.SemanticChunk{}
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"video_id": videoID,
		"chunks":   chunks,
	})
}

type retrieveRequest struct {
	Query string `json:"query"`
	K     int    `json:"k"`
}

func (rt *Router) retrieve(w http.ResponseWriter, r *http.Request) {
	creatorID, ok := bindPathParam(w, r, "creatorID")
	if !ok {
		return
	}
	var req retrieveRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid json")
		return
	}

	start := time.Now()
	result, err := rt.retriever.Retrieve(r.Context(), creatorID, req.Query, req.K)
	if err != nil {
		rt.writeDomainError(w, r, "retrieve", err)
		return
	}
	if rt.metrics != nil {
		rt.metrics.RecordRetrieval(
			serviceName,
			string(result.Strategy),
			result.GraphFallback,
			len(result.Citations),
			result.Confidence,
			time.Since(start),
		)
	}
	writeJSON(w, http.StatusOK, result)
}

func (rt *Router) maxUploadBytes() int64 {
	mib := rt.cfg.TranscriptMaxUploadMiB
	if mib <= 0 {
		mib = 16
	}
	return int64(mib) << 20
}

func (rt *Router) writeDomainError(w http.ResponseWriter, r *http.Request, op string, err error) {
	status := mapErrorToHTTPStatus(err)
	if status >= http.StatusInternalServerError {
		slog.Error("http_handler_failed",
			"request_id", requestIDFromContext(r.Context()),
			"op", op,
			"status", status,
			"error", err,
		)
	}
	if status == http.StatusInternalServerError {
		writeError(w, status, "internal error")
		return
	}
	writeError(w, status, err.Error())
}

func bindPathParam(w http.ResponseWriter, r *http.Request, name string) (string, bool) {
	var value string
	err := runtime.BindStyledParameterWithLocation("simple", false, name, runtime.ParamLocationPath, r.PathValue(name), &value)
	if err != nil || strings.TrimSpace(value) == "" {
		writeError(w, http.StatusBadRequest, "invalid parameter \""+name+"\"")
		return "", false
	}
	return value, true
}

func inlineTranscriptName(filename string) string {
	base := filepath.Base(strings.TrimSpace(filename))
	if base == "." || base == "/" || base == "" {
		return "segments.json"
	}
	if !strings.EqualFold(filepath.Ext(base), ".json") {
		base += ".json"
	}
	return base
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}

func writeError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, map[string]string{"error": message})
}
