package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/easytranscription/easy-transcription/internal/config"
	"github.com/easytranscription/easy-transcription/internal/metrics"
	"github.com/easytranscription/easy-transcription/internal/session"
	"github.com/easytranscription/easy-transcription/internal/storage"
	"github.com/easytranscription/easy-transcription/internal/transcript"
	"github.com/easytranscription/easy-transcription/internal/transcription"
	"github.com/easytranscription/easy-transcription/internal/workflow"
)

const confirmHeader = "X-Confirm-Start-Over"

// multipart overhead allowed on top of the upload limit
const formOverhead = 1 << 20

// TranscriptionStats reports provider client statistics
type TranscriptionStats interface {
	GetStats() transcription.ClientStats
	Model() string
}

// HTTPServer serves the transcription workflow API and the monitoring endpoints
type HTTPServer struct {
	server     *http.Server
	logger     *slog.Logger
	config     *config.Config
	sessionMgr *session.Manager
	store      *storage.Store
	stats      TranscriptionStats
	metrics    *metrics.Metrics
	gatherer   prometheus.Gatherer

	startTime time.Time
}

// NewHTTPServer creates a new HTTP API server; stats may be nil
func NewHTTPServer(cfg config.HTTPConfig, logger *slog.Logger, appConfig *config.Config,
	sessionMgr *session.Manager, store *storage.Store, stats TranscriptionStats,
	m *metrics.Metrics, gatherer prometheus.Gatherer) *HTTPServer {

	h := &HTTPServer{
		logger:     logger,
		config:     appConfig,
		sessionMgr: sessionMgr,
		store:      store,
		stats:      stats,
		metrics:    m,
		gatherer:   gatherer,
		startTime:  time.Now(),
	}

	mux := http.NewServeMux()
	h.setupRoutes(mux)

	h.server = &http.Server{
		Addr:         fmt.Sprintf("%s:%d", cfg.Address, cfg.Port),
		Handler:      mux,
		ReadTimeout:  cfg.GetReadTimeoutDuration(),
		WriteTimeout: cfg.GetWriteTimeoutDuration(),
		IdleTimeout:  60 * time.Second,
	}

	return h
}

// Handler returns the routed handler
func (h *HTTPServer) Handler() http.Handler {
	return h.server.Handler
}

// setupRoutes configures HTTP API routes
func (h *HTTPServer) setupRoutes(mux *http.ServeMux) {
	route := func(pattern string, handler http.HandlerFunc) {
		mux.HandleFunc(pattern, h.withMetrics(pattern, handler))
	}

	// Workflow API
	route("POST /api/sessions", h.handleCreateSession)
	route("GET /api/sessions/{id}", h.handleGetSession)
	route("DELETE /api/sessions/{id}", h.handleDeleteSession)
	route("POST /api/sessions/{id}/upload", h.handleUpload)
	route("POST /api/sessions/{id}/transcribe", h.handleTranscribe)
	route("PUT /api/sessions/{id}/speakers/{index}", h.handleUpdateSpeaker)
	route("GET /api/sessions/{id}/transcript", h.handleTranscript)

	// Monitoring
	route("GET /health", h.handleHealth)
	route("GET /config", h.handleConfig)
	route("GET /stats", h.handleStats)
	mux.Handle("GET /metrics", promhttp.HandlerFor(h.gatherer, promhttp.HandlerOpts{}))

	route("GET /{$}", h.handleRoot)
}

// withMetrics wraps an HTTP handler with metrics collection
func (h *HTTPServer) withMetrics(endpoint string, handler http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		startTime := time.Now()

		ww := &responseWriter{ResponseWriter: w, statusCode: http.StatusOK}
		handler(ww, r)

		duration := time.Since(startTime).Seconds()
		statusCode := strconv.Itoa(ww.statusCode)

		h.metrics.RecordHTTPRequest(r.Method, endpoint, statusCode, duration)

		if ww.statusCode >= 400 {
			errorType := "client_error"
			if ww.statusCode >= 500 {
				errorType = "server_error"
			}
			h.metrics.RecordHTTPError(r.Method, endpoint, errorType)
		}
	}
}

// responseWriter wraps http.ResponseWriter to capture status code
type responseWriter struct {
	http.ResponseWriter
	statusCode int
}

func (rw *responseWriter) WriteHeader(code int) {
	rw.statusCode = code
	rw.ResponseWriter.WriteHeader(code)
}

// ListenAndServe serves until Stop is called
func (h *HTTPServer) ListenAndServe() error {
	h.logger.Info("Starting HTTP API server",
		slog.String("address", h.server.Addr),
	)

	if err := h.server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return fmt.Errorf("http server: %w", err)
	}
	return nil
}

// Stop gracefully stops the HTTP server
func (h *HTTPServer) Stop(ctx context.Context) error {
	h.logger.Info("Stopping HTTP API server...")

	return h.server.Shutdown(ctx)
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, map[string]interface{}{"error": message})
}

// writeSessionError maps manager errors to responses
func (h *HTTPServer) writeSessionError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, session.ErrSessionNotFound):
		writeError(w, http.StatusNotFound, "Session not found")
	case errors.Is(err, workflow.ErrInvalidTransition):
		writeError(w, http.StatusConflict, err.Error())
	case errors.Is(err, session.ErrSpeakerOutOfRange):
		writeError(w, http.StatusBadRequest, err.Error())
	default:
		h.logger.Error("Request failed", slog.String("error", err.Error()))
		writeError(w, http.StatusInternalServerError, "Internal server error")
	}
}

// handleCreateSession implements POST /api/sessions
func (h *HTTPServer) handleCreateSession(w http.ResponseWriter, r *http.Request) {
	s := h.sessionMgr.CreateSession()
	info, err := h.sessionMgr.Info(s.ID)
	if err != nil {
		h.writeSessionError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, info)
}

// handleGetSession implements GET /api/sessions/{id}
func (h *HTTPServer) handleGetSession(w http.ResponseWriter, r *http.Request) {
	info, err := h.sessionMgr.Info(r.PathValue("id"))
	if err != nil {
		h.writeSessionError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, info)
}

// handleDeleteSession implements DELETE /api/sessions/{id}
func (h *HTTPServer) handleDeleteSession(w http.ResponseWriter, r *http.Request) {
	if !h.sessionMgr.RemoveSession(r.PathValue("id")) {
		writeError(w, http.StatusNotFound, "Session not found")
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// startOverAnswer reads the client's answer to the start-over prompt.
// A missing answer yields a nil Confirmer, which aborts when a file exists.
func startOverAnswer(r *http.Request) (workflow.Confirmer, error) {
	raw := r.FormValue("confirm")
	if raw == "" {
		raw = r.Header.Get(confirmHeader)
	}
	if raw == "" {
		return nil, nil
	}

	answer, err := strconv.ParseBool(raw)
	if err != nil {
		return nil, fmt.Errorf("invalid confirm value %q", raw)
	}
	return workflow.ConfirmFunc(func(ctx context.Context, prompt workflow.Prompt) (bool, error) {
		return answer, nil
	}), nil
}

// handleUpload implements POST /api/sessions/{id}/upload
func (h *HTTPServer) handleUpload(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	if _, ok := h.sessionMgr.GetSession(id); !ok {
		writeError(w, http.StatusNotFound, "Session not found")
		return
	}

	r.Body = http.MaxBytesReader(w, r.Body, h.store.MaxSize()+formOverhead)
	if err := r.ParseMultipartForm(32 << 20); err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			writeError(w, http.StatusRequestEntityTooLarge, "File too large")
			return
		}
		writeError(w, http.StatusBadRequest, "File not provided")
		return
	}
	defer r.MultipartForm.RemoveAll()

	file, header, err := r.FormFile("file")
	if err != nil {
		writeError(w, http.StatusBadRequest, "File not provided")
		return
	}
	defer file.Close()

	confirm, err := startOverAnswer(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	snap, err := h.sessionMgr.Upload(r.Context(), id, header.Filename, file, confirm)
	switch {
	case err == nil:
	case errors.Is(err, session.ErrUploadAborted):
		writeJSON(w, http.StatusConflict, map[string]interface{}{
			"error":  "Start over not confirmed",
			"prompt": workflow.StartOverPrompt,
		})
		return
	case errors.Is(err, storage.ErrEmptyFile):
		writeError(w, http.StatusBadRequest, "Error uploading the file.")
		return
	case errors.Is(err, storage.ErrFileTooLarge):
		writeError(w, http.StatusRequestEntityTooLarge, "File too large")
		return
	case errors.Is(err, workflow.ErrUploadFailed):
		h.logger.Error("Upload failed", slog.String("session_id", id), slog.String("error", err.Error()))
		writeError(w, http.StatusInternalServerError, "Error uploading the file.")
		return
	default:
		h.writeSessionError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, map[string]interface{}{
		"fileName": snap.UploadedFileRef,
		"message":  "File uploaded successfully",
	})
}

// handleTranscribe implements POST /api/sessions/{id}/transcribe.
// With ?wait=true the response is delayed until the transcription resolves.
func (h *HTTPServer) handleTranscribe(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	snap, err := h.sessionMgr.Snapshot(id)
	if err != nil {
		h.writeSessionError(w, err)
		return
	}

	if snap.UploadState != workflow.UploadUploaded {
		writeError(w, http.StatusConflict, "No file uploaded")
		return
	}
	if _, err := h.store.Path(snap.UploadedFileRef); err != nil {
		writeError(w, http.StatusBadRequest, "File not found")
		return
	}

	gen, err := h.sessionMgr.StartTranscription(id)
	if err != nil {
		h.writeSessionError(w, err)
		return
	}

	if wait, _ := strconv.ParseBool(r.URL.Query().Get("wait")); !wait {
		writeJSON(w, http.StatusAccepted, map[string]interface{}{"generation": gen})
		return
	}

	if _, err := h.sessionMgr.WaitTranscription(r.Context(), id); err != nil {
		h.writeSessionError(w, err)
		return
	}
	info, err := h.sessionMgr.Info(id)
	if err != nil {
		h.writeSessionError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, info)
}

// handleUpdateSpeaker implements PUT /api/sessions/{id}/speakers/{index}
func (h *HTTPServer) handleUpdateSpeaker(w http.ResponseWriter, r *http.Request) {
	index, err := strconv.Atoi(r.PathValue("index"))
	if err != nil {
		writeError(w, http.StatusBadRequest, "Invalid speaker index")
		return
	}

	var profile transcript.SpeakerProfile
	if err := json.NewDecoder(r.Body).Decode(&profile); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid speaker profile")
		return
	}

	id := r.PathValue("id")
	if _, err := h.sessionMgr.UpdateSpeaker(id, index, profile); err != nil {
		h.writeSessionError(w, err)
		return
	}

	info, err := h.sessionMgr.Info(id)
	if err != nil {
		h.writeSessionError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, info)
}

// handleTranscript implements GET /api/sessions/{id}/transcript
func (h *HTTPServer) handleTranscript(w http.ResponseWriter, r *http.Request) {
	snap, blocks, err := h.sessionMgr.Transcript(r.PathValue("id"))
	if err != nil {
		h.writeSessionError(w, err)
		return
	}

	format := r.URL.Query().Get("format")
	switch format {
	case "", "json":
		h.metrics.RecordExport("json")
		writeJSON(w, http.StatusOK, map[string]interface{}{
			"transcriptionState": snap.TranscriptionState,
			"blocks":             blocks,
		})

	case "text":
		w.Header().Set("Content-Type", "text/plain; charset=utf-8")
		if err := transcript.WriteExport(w, blocks); err != nil {
			h.logger.Warn("Transcript export failed", slog.String("error", err.Error()))
			return
		}
		h.metrics.RecordExport("text")

	case "markdown":
		meta := transcript.Metadata{
			Source:    storage.OriginalName(snap.UploadedFileRef),
			Generated: time.Now(),
		}
		if h.stats != nil {
			meta.Model = h.stats.Model()
		}
		w.Header().Set("Content-Type", "text/markdown; charset=utf-8")
		w.Write([]byte(transcript.RenderMarkdown(meta, blocks)))
		h.metrics.RecordExport("markdown")

	default:
		writeError(w, http.StatusBadRequest, "format must be one of json, text, markdown")
	}
}

// handleHealth implements the /health endpoint
func (h *HTTPServer) handleHealth(w http.ResponseWriter, r *http.Request) {
	components := map[string]interface{}{
		"session_manager": map[string]interface{}{
			"status":          "running",
			"active_sessions": h.sessionMgr.GetActiveSessionCount(),
		},
		"storage": map[string]interface{}{
			"status":     "running",
			"upload_dir": h.store.Dir(),
		},
	}
	if h.stats != nil {
		stats := h.stats.GetStats()
		components["transcription"] = map[string]interface{}{
			"status":          "running",
			"total_requests":  stats.TotalRequests,
			"success_rate":    stats.SuccessRate,
			"active_requests": stats.ActiveRequests,
		}
	}

	writeJSON(w, http.StatusOK, map[string]interface{}{
		"status":    "healthy",
		"timestamp": time.Now().UTC(),
		"uptime":    time.Since(h.startTime).String(),
		"service": map[string]interface{}{
			"name":    "easy-transcription",
			"version": "1.0.0",
		},
		"components": components,
	})
}

// handleConfig implements the /config endpoint
func (h *HTTPServer) handleConfig(w http.ResponseWriter, r *http.Request) {
	// api_key is never exposed
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"http": map[string]interface{}{
			"address":       h.config.HTTP.Address,
			"port":          h.config.HTTP.Port,
			"read_timeout":  h.config.HTTP.ReadTimeout,
			"write_timeout": h.config.HTTP.WriteTimeout,
		},
		"storage": map[string]interface{}{
			"upload_dir":    h.config.Storage.UploadDir,
			"max_upload_mb": h.config.Storage.MaxUploadMB,
		},
		"session": map[string]interface{}{
			"timeout":          h.config.Session.Timeout,
			"cleanup_interval": h.config.Session.CleanupInterval,
		},
		"transcription": map[string]interface{}{
			"endpoint":            h.config.Transcription.Endpoint,
			"model":               h.config.Transcription.Model,
			"smart_format":        h.config.Transcription.SmartFormat,
			"diarize":             h.config.Transcription.Diarize,
			"timeout":             h.config.Transcription.Timeout,
			"max_retries":         h.config.Transcription.MaxRetries,
			"max_concurrent":      h.config.Transcription.MaxConcurrent,
			"requests_per_minute": h.config.Transcription.RequestsPerMinute,
		},
		"logging": map[string]interface{}{
			"level":  h.config.Logging.Level,
			"format": h.config.Logging.Format,
			"output": h.config.Logging.Output,
		},
	})
}

// handleStats implements the /stats endpoint
func (h *HTTPServer) handleStats(w http.ResponseWriter, r *http.Request) {
	stats := map[string]interface{}{
		"uptime":    time.Since(h.startTime).String(),
		"timestamp": time.Now().UTC(),
		"sessions": map[string]interface{}{
			"active_count": h.sessionMgr.GetActiveSessionCount(),
		},
	}
	if h.stats != nil {
		stats["transcription"] = h.stats.GetStats()
	}

	writeJSON(w, http.StatusOK, stats)
}

// handleRoot implements the / endpoint with API documentation
func (h *HTTPServer) handleRoot(w http.ResponseWriter, r *http.Request) {
	endpoints := map[string]interface{}{
		"GET /":                                   "API documentation",
		"POST /api/sessions":                      "Create a transcription session",
		"GET /api/sessions/{id}":                  "Get session state",
		"DELETE /api/sessions/{id}":               "Discard a session and its file",
		"POST /api/sessions/{id}/upload":          "Upload an audio file (multipart field 'file', optional 'confirm')",
		"POST /api/sessions/{id}/transcribe":      "Start transcription (?wait=true blocks until done)",
		"PUT /api/sessions/{id}/speakers/{index}": "Rename a speaker",
		"GET /api/sessions/{id}/transcript":       "Get the transcript (?format=json|text|markdown)",
		"GET /health":                             "Service health check",
		"GET /config":                             "Get service configuration",
		"GET /stats":                              "Get service statistics",
		"GET /metrics":                            "Prometheus metrics",
	}

	writeJSON(w, http.StatusOK, map[string]interface{}{
		"service":   "Easy Transcription",
		"version":   "1.0.0",
		"endpoints": endpoints,
		"notes": []string{
			"Uploading over an existing file requires confirm=true (or the " + confirmHeader + " header).",
			strings.Join(workflow.StartOverPrompt.Lines, " "),
		},
		"timestamp": time.Now().UTC(),
	})
}
