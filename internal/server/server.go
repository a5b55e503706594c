package server

import (
	"encoding/json"
	"errors"
	"net/http"
	"strings"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"

	"github.com/meetstream/meeting-gateway/internal/config"
	"github.com/meetstream/meeting-gateway/internal/observability"
	"github.com/meetstream/meeting-gateway/internal/session"
	"github.com/meetstream/meeting-gateway/internal/transcript"
)

const serviceVersion = "1.0.0"

// Server is the HTTP/WebSocket front-end for the session registry.
type Server struct {
	registry *session.Registry
	cfg      *config.Config
	logger   zerolog.Logger
}

// New creates the front-end.
func New(registry *session.Registry, cfg *config.Config) *Server {
	return &Server{
		registry: registry,
		cfg:      cfg,
		logger:   observability.GetLogger().With().Str("component", "server").Logger(),
	}
}

// Routes builds the service mux.
func (s *Server) Routes() *http.ServeMux {
	mux := http.NewServeMux()

	mux.HandleFunc("/api/session/start", s.handleStart)
	mux.HandleFunc("/api/session/stop", s.handleStop)
	mux.HandleFunc("/api/session/", s.handleSessionStatus)
	mux.HandleFunc("/api/command", s.handleCommand)
	mux.HandleFunc("/api/suggestions", s.handleSuggestions)
	mux.HandleFunc("/webhooks/transcript-ready", s.handleTranscriptReady)
	mux.HandleFunc("/ws/", s.handleWebSocket)

	mux.HandleFunc("/health", observability.HealthCheckHandler("meeting-gateway", serviceVersion))
	mux.HandleFunc("/ready", observability.ReadinessHandler("meeting-gateway", serviceVersion))

	if s.cfg.MetricsEnabled {
		mux.Handle("/metrics", promhttp.Handler())
	}

	return mux
}

type startRequest struct {
	Source       string `json:"source"`
	SessionName  string `json:"session_name"`
	TranscriptID string `json:"transcript_id"`
}

type startResponse struct {
	SessionID string `json:"session_id"`
	Status    string `json:"status"`
}

func (s *Server) handleStart(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		writeError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}

	var req startRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	kind := transcript.SourceKind(req.Source)
	if !kind.Valid() {
		writeError(w, http.StatusBadRequest, "unknown source: "+req.Source)
		return
	}

	id, err := s.registry.Create(session.StartRequest{
		Source:       kind,
		Name:         req.SessionName,
		TranscriptID: req.TranscriptID,
	})
	if err != nil {
		if errors.Is(err, transcript.ErrMissingCredentials) {
			writeError(w, http.StatusBadRequest, err.Error())
			return
		}
		s.logger.Error().Err(err).Str("source", req.Source).Msg("Failed to create session")
		writeError(w, http.StatusInternalServerError, "failed to create session")
		return
	}

	writeJSON(w, http.StatusOK, startResponse{SessionID: id, Status: "started"})
}

type stopRequest struct {
	SessionID string `json:"session_id"`
}

func (s *Server) handleStop(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		writeError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}

	var req stopRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.SessionID == "" {
		writeError(w, http.StatusBadRequest, "session_id is required")
		return
	}

	if err := s.registry.Stop(req.SessionID); err != nil {
		if errors.Is(err, transcript.ErrNotFound) {
			writeError(w, http.StatusNotFound, "session not found")
			return
		}
		s.logger.Error().Err(err).Str("session_id", req.SessionID).Msg("Failed to stop session")
		writeError(w, http.StatusInternalServerError, "failed to stop session")
		return
	}

	writeJSON(w, http.StatusOK, map[string]string{"session_id": req.SessionID, "status": "stopped"})
}

// handleSessionStatus serves GET /api/session/{id}/status.
func (s *Server) handleSessionStatus(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		writeError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}

	rest := strings.TrimPrefix(r.URL.Path, "/api/session/")
	id, ok := strings.CutSuffix(rest, "/status")
	if !ok || id == "" || strings.Contains(id, "/") {
		writeError(w, http.StatusNotFound, "not found")
		return
	}

	status, found := s.registry.Status(id)
	if !found {
		writeError(w, http.StatusNotFound, "session not found")
		return
	}

	writeJSON(w, http.StatusOK, status)
}

type commandRequest struct {
	SessionID string `json:"session_id"`
	Command   string `json:"command"`
}

func (s *Server) handleCommand(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		writeError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}

	var req commandRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.SessionID == "" || req.Command == "" {
		writeError(w, http.StatusBadRequest, "session_id and command are required")
		return
	}

	resp, err := s.registry.ForwardCommand(r.Context(), req.SessionID, req.Command)
	if err != nil {
		if errors.Is(err, transcript.ErrNotFound) {
			writeError(w, http.StatusNotFound, "session not found")
			return
		}
		s.logger.Error().Err(err).Str("session_id", req.SessionID).Msg("Command forwarding failed")
		writeError(w, http.StatusInternalServerError, "command forwarding failed")
		return
	}

	writeJSON(w, http.StatusOK, resp)
}

type suggestionsRequest struct {
	SessionID   string   `json:"session_id"`
	Suggestions []string `json:"suggestions"`
}

// handleSuggestions receives asynchronously produced suggestions from the
// automation workflow and relays them to the session's subscribers.
func (s *Server) handleSuggestions(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		writeError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}

	var req suggestionsRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.SessionID == "" {
		writeError(w, http.StatusBadRequest, "session_id is required")
		return
	}

	if err := s.registry.BroadcastSuggestions(req.SessionID, req.Suggestions); err != nil {
		if errors.Is(err, transcript.ErrNotFound) {
			writeError(w, http.StatusNotFound, "session not found")
			return
		}
		writeError(w, http.StatusInternalServerError, "failed to broadcast suggestions")
		return
	}

	writeJSON(w, http.StatusOK, map[string]string{"status": "delivered"})
}

func writeJSON(w http.ResponseWriter, code int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	json.NewEncoder(w).Encode(payload)
}

func writeError(w http.ResponseWriter, code int, message string) {
	writeJSON(w, code, map[string]string{"error": message})
}
