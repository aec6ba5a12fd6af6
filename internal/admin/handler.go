package admin

import (
	"context"
	"encoding/json"
	"io"
	"log"
	"net/http"
	"strings"
	"time"

	"svckit/config"
	"svckit/internal/models"
	"svckit/logger"
	"svckit/tracectx"
)

const maxBodyBytes = 1 << 20

// Pipeline is the part of logger.Manager the admin surface drives
type Pipeline interface {
	Submit(rec *models.LogRecord)
	Reconfigure(ctx context.Context, sinkCfg config.SinkConfig) error
	Stats() logger.Stats
}

// Handler serves health, log ingestion and sink reconfiguration endpoints
type Handler struct {
	pipeline Pipeline
	service  string
	logger   *log.Logger
}

// NewHandler creates a new Handler
func NewHandler(p Pipeline, service string, l *log.Logger) *Handler {
	return &Handler{pipeline: p, service: service, logger: l}
}

// Register mounts the handler's routes on mux. Log submissions get trace id
// propagation through the X-Trace-Id header.
func (h *Handler) Register(mux *http.ServeMux) {
	mux.HandleFunc("/health", h.HealthCheck)
	mux.Handle("/v1/logs", tracectx.Middleware(http.HandlerFunc(h.SubmitLog)))
	mux.HandleFunc("/admin/sink", h.ReconfigureSink)
}

// submitRequest is one log record posted by a client that cannot link the SDK
type submitRequest struct {
	Level     string         `json:"level"`
	Logger    string         `json:"logger"`
	Message   string         `json:"message"`
	Exception string         `json:"exception,omitempty"`
	Timestamp string         `json:"timestamp,omitempty"` // RFC3339, defaults to receipt time
	Fields    map[string]any `json:"fields,omitempty"`
}

// SubmitLog handles POST /v1/logs requests
func (h *Handler) SubmitLog(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		h.respondError(w, "Method Not Allowed", http.StatusMethodNotAllowed)
		return
	}
	if !strings.HasPrefix(r.Header.Get("Content-Type"), "application/json") {
		h.respondError(w, "Content-Type must be application/json", http.StatusBadRequest)
		return
	}
	if r.ContentLength > maxBodyBytes {
		h.respondError(w, "Request body too large", http.StatusRequestEntityTooLarge)
		return
	}
	defer r.Body.Close()

	var req submitRequest
	if err := json.NewDecoder(io.LimitReader(r.Body, maxBodyBytes)).Decode(&req); err != nil {
		h.logger.Printf("Admin handler: failed to parse log submission: %v", err)
		h.respondError(w, "Bad Request: Invalid JSON format", http.StatusBadRequest)
		return
	}
	if req.Message == "" {
		h.respondError(w, "message is required", http.StatusBadRequest)
		return
	}
	level, err := models.ParseLevel(req.Level)
	if err != nil {
		h.respondError(w, err.Error(), http.StatusBadRequest)
		return
	}
	if req.Logger == "" {
		req.Logger = "http"
	}

	var opts []models.RecordOption
	if req.Exception != "" {
		opts = append(opts, models.WithException(req.Exception))
	}
	if req.Timestamp != "" {
		if ts, err := time.Parse(time.RFC3339Nano, req.Timestamp); err == nil {
			opts = append(opts, models.WithTime(ts))
		} else {
			// Invalid timestamp is not fatal
			h.logger.Printf("Admin handler: invalid timestamp %q: %v", req.Timestamp, err)
		}
	}

	traceID := tracectx.TraceID(r.Context())
	rec := models.NewLogRecord(level, req.Logger, req.Message, traceID, sortedFields(req.Fields), opts...)
	h.pipeline.Submit(rec)

	h.respondJSON(w, map[string]interface{}{
		"status":   "ACCEPTED",
		"trace_id": traceID,
	}, http.StatusAccepted)
}

// ReconfigureSink handles POST /admin/sink. The body is a sink document in
// either the VOLCENGINE_* or the snake_case key style.
func (h *Handler) ReconfigureSink(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		h.respondError(w, "Method Not Allowed", http.StatusMethodNotAllowed)
		return
	}
	defer r.Body.Close()
	body, err := io.ReadAll(io.LimitReader(r.Body, maxBodyBytes))
	if err != nil {
		h.respondError(w, "failed to read request body", http.StatusBadRequest)
		return
	}
	sinkCfg, err := config.ParseSinkConfigJSON(string(body))
	if err != nil {
		h.respondError(w, err.Error(), http.StatusBadRequest)
		return
	}
	// topic_id and service_name are accepted in either style
	var extra struct {
		TopicID     string `json:"topic_id"`
		ServiceName string `json:"service_name"`
	}
	_ = json.Unmarshal(body, &extra)
	if sinkCfg.TopicID == "" {
		sinkCfg.TopicID = extra.TopicID
	}
	sinkCfg.ServiceName = extra.ServiceName

	if err := h.pipeline.Reconfigure(r.Context(), sinkCfg); err != nil {
		h.logger.Printf("Admin handler: sink reconfiguration failed: %v", err)
		h.respondError(w, err.Error(), http.StatusBadRequest)
		return
	}
	stats := h.pipeline.Stats()
	h.respondJSON(w, map[string]interface{}{
		"status":   "RECONFIGURED",
		"shipping": stats.Shipping,
		"sink":     sinkCfg.String(),
	}, http.StatusOK)
}

// HealthCheck handles GET /health requests
func (h *Handler) HealthCheck(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		h.respondError(w, "Method Not Allowed", http.StatusMethodNotAllowed)
		return
	}
	resp := map[string]interface{}{
		"status":    "healthy",
		"timestamp": time.Now().Format(time.RFC3339Nano),
		"service":   h.service,
		"queue":     h.pipeline.Stats(),
	}
	h.respondJSON(w, resp, http.StatusOK)
}

// respondJSON sends JSON response
func (h *Handler) respondJSON(w http.ResponseWriter, data interface{}, statusCode int) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		h.logger.Printf("Admin handler: failed to encode JSON response: %v", err)
	}
}

// respondError sends error response
func (h *Handler) respondError(w http.ResponseWriter, message string, statusCode int) {
	h.respondJSON(w, map[string]interface{}{
		"error":   message,
		"status":  statusCode,
		"message": http.StatusText(statusCode),
	}, statusCode)
}
