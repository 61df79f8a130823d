// Package server exposes the worker's HTTP surface: transcript chunk
// intake, session end, the per-session WebSocket stream, health, and
// metrics.
package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/gorilla/websocket"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/otherjamesbrown/penf-live/pkg/buildinfo"
	"github.com/otherjamesbrown/penf-live/pkg/db"
	"github.com/otherjamesbrown/penf-live/pkg/delivery"
	"github.com/otherjamesbrown/penf-live/pkg/logging"
	"github.com/otherjamesbrown/penf-live/pkg/meeting"
	"github.com/otherjamesbrown/penf-live/pkg/observability"
	"github.com/otherjamesbrown/penf-live/pkg/pipeline"
	"github.com/otherjamesbrown/penf-live/pkg/session"
)

// ServiceName labels build info and health output.
const ServiceName = "penf-live"

// Config holds the listener settings.
type Config struct {
	ListenAddress   string
	ShutdownTimeout time.Duration
}

// Server is the HTTP/WebSocket front of the live insight worker.
type Server struct {
	cfg      Config
	pipeline *pipeline.Pipeline
	registry *delivery.Registry
	metrics  *observability.PipelineMetrics
	pool     *pgxpool.Pool
	logger   logging.Logger
	upgrader websocket.Upgrader
}

// New creates a server. pool may be nil when the worker runs without
// persistence.
func New(cfg Config, pipe *pipeline.Pipeline, registry *delivery.Registry, metrics *observability.PipelineMetrics, pool *pgxpool.Pool, logger logging.Logger) *Server {
	return &Server{
		cfg:      cfg,
		pipeline: pipe,
		registry: registry,
		metrics:  metrics,
		pool:     pool,
		logger:   logger.With(logging.F("component", "server")),
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 4096,
			// Origin enforcement belongs to the gateway in front of the
			// worker.
			CheckOrigin: func(*http.Request) bool { return true },
		},
	}
}

// Handler builds the route table.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("POST /v1/sessions/{session_id}/chunks", s.handleChunk)
	mux.HandleFunc("POST /v1/sessions/{session_id}/end", s.handleEnd)
	mux.HandleFunc("GET /v1/sessions/{session_id}/stream", s.handleStream)
	mux.HandleFunc("GET /healthz", s.handleHealth)
	mux.HandleFunc("GET /version", buildinfo.Handler(ServiceName))
	mux.Handle("GET /metrics", promhttp.Handler())
	return mux
}

// Run serves until ctx is cancelled, then shuts down gracefully.
func (s *Server) Run(ctx context.Context) error {
	srv := &http.Server{
		Addr:              s.cfg.ListenAddress,
		Handler:           s.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		s.logger.Info("listening", logging.F("address", s.cfg.ListenAddress))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	timeout := s.cfg.ShutdownTimeout
	if timeout <= 0 {
		timeout = 15 * time.Second
	}
	shutdownCtx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()
	return srv.Shutdown(shutdownCtx)
}

// chunkRequest is the intake payload. Scope fields only matter on the
// session's first chunk; later values are ignored.
type chunkRequest struct {
	Text            string   `json:"text"`
	Speaker         string   `json:"speaker,omitempty"`
	DurationSeconds float64  `json:"duration_seconds,omitempty"`
	OrganizationID  string   `json:"organization_id,omitempty"`
	ProjectID       string   `json:"project_id,omitempty"`
	UserID          string   `json:"user_id,omitempty"`
	EnabledTypes    []string `json:"enabled_types,omitempty"`
}

type chunkResponse struct {
	ChunkID string `json:"chunk_id"`
	Index   int64  `json:"index"`
	Dropped int    `json:"dropped,omitempty"`
}

func (s *Server) handleChunk(w http.ResponseWriter, r *http.Request) {
	sessionID := r.PathValue("session_id")

	var req chunkRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, fmt.Sprintf("invalid request body: %v", err))
		return
	}
	if req.Text == "" {
		writeError(w, http.StatusBadRequest, "text is required")
		return
	}

	enabled := make([]meeting.InsightType, 0, len(req.EnabledTypes))
	for _, raw := range req.EnabledTypes {
		t := meeting.InsightType(raw)
		if !t.Valid() {
			writeError(w, http.StatusBadRequest, fmt.Sprintf("unknown insight type %q", raw))
			return
		}
		enabled = append(enabled, t)
	}

	chunk, dropped, err := s.pipeline.SubmitChunk(sessionID, req.Text, req.Speaker, req.DurationSeconds, session.Options{
		OrganizationID: req.OrganizationID,
		ProjectID:      req.ProjectID,
		UserID:         req.UserID,
		EnabledTypes:   enabled,
	})
	if err != nil {
		if errors.Is(err, session.ErrSessionEnded) {
			writeError(w, http.StatusConflict, "session has ended")
			return
		}
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}

	writeJSON(w, http.StatusAccepted, chunkResponse{
		ChunkID: chunk.ID,
		Index:   chunk.Index,
		Dropped: dropped,
	})
}

func (s *Server) handleEnd(w http.ResponseWriter, r *http.Request) {
	sessionID := r.PathValue("session_id")

	if !s.pipeline.EndSession(r.Context(), sessionID) {
		writeError(w, http.StatusNotFound, "session not found")
		return
	}
	writeJSON(w, http.StatusOK, map[string]bool{"ended": true})
}

func (s *Server) handleStream(w http.ResponseWriter, r *http.Request) {
	sessionID := r.PathValue("session_id")
	userID := r.URL.Query().Get("user_id")

	ws, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		// Upgrade already wrote the HTTP error.
		s.logger.Warn("websocket upgrade failed",
			logging.F("session_id", sessionID), logging.Err(err))
		return
	}

	conn := s.registry.Connect(sessionID, ws, userID)
	s.metrics.ConnectedClients.WithLabelValues(sessionID).Set(float64(s.registry.LocalConnections(sessionID)))

	// Clients only listen on this stream; the read loop exists to notice
	// the close.
	for {
		if _, _, err := ws.ReadMessage(); err != nil {
			break
		}
	}
	s.registry.Disconnect(conn)
	s.metrics.ConnectedClients.WithLabelValues(sessionID).Set(float64(s.registry.LocalConnections(sessionID)))
}

type healthResponse struct {
	Status   string           `json:"status"`
	Version  string           `json:"version"`
	Database *db.HealthStatus `json:"database,omitempty"`
}

// handleHealth reports liveness. A down database degrades the status but
// the worker stays up: persistence is best-effort.
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	resp := healthResponse{
		Status:  "ok",
		Version: buildinfo.String(),
	}
	if s.pool != nil {
		ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
		defer cancel()
		resp.Database = db.Check(ctx, s.pool)
		if !resp.Database.Healthy {
			resp.Status = "degraded"
		}
	}
	writeJSON(w, http.StatusOK, resp)
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}
