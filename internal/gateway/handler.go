// Package gateway exposes the assistant pipeline over HTTP.
package gateway

import (
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net"
	"net/http"
	"strings"
	"time"

	"github.com/af-corp/dentassist/internal/action"
	"github.com/af-corp/dentassist/internal/config"
	"github.com/af-corp/dentassist/internal/httputil"
	"github.com/af-corp/dentassist/internal/pipeline"
	"github.com/af-corp/dentassist/internal/ratelimit"
	"github.com/af-corp/dentassist/internal/upstream"
)

const (
	defaultFileAction = "pdf_analysis"
	// multipartOverhead is allowed on top of the file size limit for the other form fields.
	multipartOverhead = 1 << 20
	maxJSONBody       = 1 << 20
)

// UpstreamStatus feeds the health endpoint.
type UpstreamStatus struct {
	URLConfigured bool
	KeyConfigured bool
	// Breaker may be nil when no circuit breaker guards the upstream.
	Breaker *upstream.CircuitBreaker
}

// Options holds the collaborators of a Handler. Only Pipeline is required.
type Options struct {
	Pipeline *pipeline.Pipeline
	Uploads  config.UploadsConfig
	Upstream UpstreamStatus
	// ActionStats reports the registry state on GET /actions.
	ActionStats func() action.Stats
	// ActiveClients reports how many clients hold a rate limit window.
	ActiveClients func() int
	Logger        *slog.Logger
	Version       string
	Now           func() time.Time
}

// Handler holds dependencies for the HTTP handlers.
type Handler struct {
	pipeline      *pipeline.Pipeline
	uploads       uploadPolicy
	upstream      UpstreamStatus
	actionStats   func() action.Stats
	activeClients func() int
	logger        *slog.Logger
	version       string
	now           func() time.Time
}

func NewHandler(opts Options) *Handler {
	h := &Handler{
		pipeline:      opts.Pipeline,
		uploads:       newUploadPolicy(opts.Uploads.MaxBytes, opts.Uploads.AllowedExtensions),
		upstream:      opts.Upstream,
		actionStats:   opts.ActionStats,
		activeClients: opts.ActiveClients,
		logger:        opts.Logger,
		version:       opts.Version,
		now:           opts.Now,
	}
	if h.logger == nil {
		h.logger = slog.Default()
	}
	if h.now == nil {
		h.now = time.Now
	}
	return h
}

type askRequest struct {
	Prompt   string `json:"prompt"`
	Action   string `json:"action"`
	Context  string `json:"context"`
	Priority string `json:"priority"`
}

type askResponse struct {
	Success        bool      `json:"success"`
	Action         string    `json:"action"`
	Answer         string    `json:"answer"`
	ProcessingTime float64   `json:"processing_time"`
	Cached         bool      `json:"cached"`
	Warnings       []string  `json:"warnings,omitempty"`
	FileInfo       *FileInfo `json:"file_info,omitempty"`
}

// Ask handles POST /ask
func (h *Handler) Ask(w http.ResponseWriter, r *http.Request) {
	reqID := RequestIDFromContext(r.Context())

	var body askRequest
	dec := json.NewDecoder(io.LimitReader(r.Body, maxJSONBody))
	if err := dec.Decode(&body); err != nil {
		httputil.WriteBadRequestError(w, reqID, "Invalid JSON: "+err.Error())
		return
	}
	defer r.Body.Close()

	// Unknown priorities are rejected by the pipeline with the other input checks.
	priority, _ := pipeline.ParsePriority(body.Priority)

	res, err := h.pipeline.Handle(r.Context(), pipeline.Request{
		Prompt:    body.Prompt,
		Action:    body.Action,
		Context:   body.Context,
		Priority:  priority,
		ClientKey: clientKey(r),
		Endpoint:  "ask",
	})
	if err != nil {
		h.writePipelineError(w, r, reqID, err)
		return
	}
	h.writeResult(w, res, nil)
}

// AskWithFile handles POST /ask-with-file (multipart: file, prompt, action).
func (h *Handler) AskWithFile(w http.ResponseWriter, r *http.Request) {
	reqID := RequestIDFromContext(r.Context())

	r.Body = http.MaxBytesReader(w, r.Body, h.uploads.maxBytes+multipartOverhead)
	if err := r.ParseMultipartForm(32 << 20); err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			httputil.WritePayloadTooLargeError(w, reqID, "Fichier trop volumineux")
			return
		}
		httputil.WriteBadRequestError(w, reqID, "Invalid multipart form: "+err.Error())
		return
	}
	defer r.MultipartForm.RemoveAll()

	file, header, err := r.FormFile("file")
	if err != nil {
		httputil.WriteBadRequestError(w, reqID, "file is required")
		return
	}
	defer file.Close()

	info, err := h.uploads.inspect(header.Filename, header.Size)
	if err != nil {
		h.writeUploadError(w, reqID, err)
		return
	}

	data, err := io.ReadAll(io.LimitReader(file, h.uploads.maxBytes+1))
	if err != nil {
		httputil.WriteBadRequestError(w, reqID, "Failed to read uploaded file")
		return
	}
	if int64(len(data)) > h.uploads.maxBytes {
		httputil.WritePayloadTooLargeError(w, reqID, "Fichier trop volumineux")
		return
	}
	info.SizeBytes = int64(len(data))

	actionID := r.FormValue("action")
	if strings.TrimSpace(actionID) == "" {
		actionID = defaultFileAction
	}

	h.logger.Info("file received", "request_id", reqID, "file", info.Name, "size_bytes", info.SizeBytes, "action", actionID)

	res, err := h.pipeline.Handle(r.Context(), pipeline.Request{
		Prompt:     r.FormValue("prompt"),
		Action:     actionID,
		FileName:   info.Name,
		FileText:   describeFile(info, data),
		FileDigest: fileDigest(data),
		ClientKey:  clientKey(r),
		Endpoint:   "ask_with_file",
	})
	if err != nil {
		h.writePipelineError(w, r, reqID, err)
		return
	}
	h.writeResult(w, res, &info)
}

func (h *Handler) writeResult(w http.ResponseWriter, res *pipeline.Result, info *FileInfo) {
	if res.RateLimit.Limit > 0 {
		ratelimit.WriteHeaders(w, res.RateLimit)
	}
	httputil.WriteJSON(w, http.StatusOK, askResponse{
		Success:        res.Success,
		Action:         res.Action,
		Answer:         res.Answer,
		ProcessingTime: res.ProcessingTime.Seconds(),
		Cached:         res.Cached,
		Warnings:       res.Warnings,
		FileInfo:       info,
	})
}

func (h *Handler) writeUploadError(w http.ResponseWriter, reqID string, err error) {
	var unsupported *unsupportedFileError
	switch {
	case errors.As(err, &unsupported):
		httputil.WriteUnsupportedFileError(w, reqID, unsupported.message())
	case errors.Is(err, errTooLarge):
		httputil.WritePayloadTooLargeError(w, reqID, "Fichier trop volumineux")
	default:
		httputil.WriteBadRequestError(w, reqID, err.Error())
	}
}

// writePipelineError maps pipeline failures onto the error envelope. Upstream details stay in logs.
func (h *Handler) writePipelineError(w http.ResponseWriter, r *http.Request, reqID string, err error) {
	var (
		limited *pipeline.RateLimitedError
		upErr   *upstream.Error
	)
	switch {
	case errors.Is(err, pipeline.ErrInvalidRequest):
		httputil.WriteBadRequestError(w, reqID, err.Error())
	case errors.Is(err, action.ErrUnknownAction):
		httputil.WriteUnknownActionError(w, reqID, err.Error())
	case errors.As(err, &limited):
		ratelimit.WriteHeaders(w, limited.Limit)
		httputil.WriteRateLimitError(w, reqID, "Rate limit exceeded. Try again later.")
	case errors.As(err, &upErr):
		h.logger.Warn("upstream failure", "request_id", reqID, "path", r.URL.Path, "error", err)
		if upErr.Timeout {
			httputil.WriteUpstreamTimeoutError(w, reqID, upErr.SafeMessage())
			return
		}
		httputil.WriteUpstreamError(w, reqID, upErr.SafeMessage())
	default:
		h.logger.Error("request failed", "request_id", reqID, "path", r.URL.Path, "error", err)
		httputil.WriteInternalError(w, reqID, "Internal error")
	}
}

type actionInfo struct {
	Description  string         `json:"description"`
	Metadata     actionMetadata `json:"metadata"`
	PromptLength int            `json:"prompt_length"`
}

type actionMetadata struct {
	Name      string        `json:"name"`
	Format    action.Format `json:"format"`
	MaxLength string        `json:"max_length,omitempty"`
	Category  string        `json:"category"`
}

// ListActions handles GET /actions
func (h *Handler) ListActions(w http.ResponseWriter, r *http.Request) {
	actions := h.pipeline.ListActions()
	infos := make(map[string]actionInfo, len(actions))
	for _, a := range actions {
		infos[a.ID] = actionInfo{
			Description: action.DescriptionOf(a),
			Metadata: actionMetadata{
				Name:      a.Name,
				Format:    a.Format,
				MaxLength: a.MaxLength,
				Category:  action.CategoryOf(a),
			},
			PromptLength: len([]rune(a.Instruction)),
		}
	}

	resp := map[string]any{
		"actions":    infos,
		"categories": h.pipeline.ListCategories(),
	}
	if h.actionStats != nil {
		resp["stats"] = h.actionStats()
	}
	httputil.WriteJSON(w, http.StatusOK, resp)
}

// ListCategories handles GET /actions/categories
func (h *Handler) ListCategories(w http.ResponseWriter, r *http.Request) {
	httputil.WriteJSON(w, http.StatusOK, h.pipeline.ListCategories())
}

// SupportedFiles handles GET /supported-files
func (h *Handler) SupportedFiles(w http.ResponseWriter, r *http.Request) {
	types := make(map[string]fileType, len(h.uploads.allowed))
	for ext, ft := range h.uploads.allowed {
		types[strings.TrimPrefix(ext, ".")] = ft
	}
	httputil.WriteJSON(w, http.StatusOK, map[string]any{
		"supported_extensions": types,
		"max_file_size_mb":     h.uploads.maxMB(),
		"total_supported":      len(types),
	})
}

// Health handles GET /health. The service is degraded when the upstream is not configured or
// its circuit is open.
func (h *Handler) Health(w http.ResponseWriter, r *http.Request) {
	cacheEntries := 0
	if stats, err := h.pipeline.CacheStats(r.Context()); err == nil {
		cacheEntries = stats.Entries
	} else {
		h.logger.Warn("cache stats unavailable", "error", err)
	}
	activeClients := 0
	if h.activeClients != nil {
		activeClients = h.activeClients()
	}

	connectivity := true
	circuit := "disabled"
	if b := h.upstream.Breaker; b != nil {
		state := b.State()
		circuit = state.String()
		connectivity = state != upstream.StateOpen
	}

	status := "healthy"
	if !h.upstream.URLConfigured || !h.upstream.KeyConfigured || !connectivity {
		status = "degraded"
	}

	httputil.WriteJSON(w, http.StatusOK, map[string]any{
		"status":    status,
		"version":   h.version,
		"timestamp": h.now().Format(time.RFC3339),
		"configuration": map[string]any{
			"api_url_configured":    h.upstream.URLConfigured,
			"api_key_configured":    h.upstream.KeyConfigured,
			"max_file_size_mb":      h.uploads.maxMB(),
			"supported_extensions":  len(h.uploads.allowed),
			"cache_entries":         cacheEntries,
			"rate_limit_active_ips": activeClients,
		},
		"api_connectivity": connectivity,
		"circuit_state":    circuit,
	})
}

// CacheStats handles GET /cache/stats
func (h *Handler) CacheStats(w http.ResponseWriter, r *http.Request) {
	reqID := RequestIDFromContext(r.Context())
	stats, err := h.pipeline.CacheStats(r.Context())
	if err != nil {
		h.logger.Error("cache stats failed", "request_id", reqID, "error", err)
		httputil.WriteServiceUnavailableError(w, reqID, "Cache statistics unavailable")
		return
	}

	hitRate := 0.0
	if total := stats.Hits + stats.Misses; total > 0 {
		hitRate = float64(stats.Hits) / float64(total)
	}
	httputil.WriteJSON(w, http.StatusOK, map[string]any{
		"entry_count":            stats.Entries,
		"hit_count":              stats.Hits,
		"miss_count":             stats.Misses,
		"eviction_count":         stats.Evictions,
		"hit_rate":               hitRate,
		"cache_duration_minutes": stats.TTL.Minutes(),
	})
}

// ClearCache handles DELETE /cache/clear
func (h *Handler) ClearCache(w http.ResponseWriter, r *http.Request) {
	reqID := RequestIDFromContext(r.Context())
	if err := h.pipeline.ClearCache(r.Context()); err != nil {
		h.logger.Error("cache clear failed", "request_id", reqID, "error", err)
		httputil.WriteServiceUnavailableError(w, reqID, "Cache could not be cleared")
		return
	}
	h.logger.Info("cache cleared", "request_id", reqID)
	httputil.WriteJSON(w, http.StatusOK, map[string]string{
		"message":   "Cache vidé",
		"timestamp": h.now().Format(time.RFC3339),
	})
}

// clientKey identifies the caller for rate limiting. RealIP has already replaced RemoteAddr with
// the forwarded address when present.
func clientKey(r *http.Request) string {
	if host, _, err := net.SplitHostPort(r.RemoteAddr); err == nil {
		return host
	}
	return r.RemoteAddr
}
