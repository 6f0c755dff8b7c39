// Package api exposes the consumer-facing HTTP interface.
//
// The handlers only marshal JSON in and out; every decision belongs to the
// orchestrator.
package api

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-logr/logr"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/imamik/clusterd/internal/orchestrator"
	"github.com/imamik/clusterd/internal/provider"
	"github.com/imamik/clusterd/internal/registry"
)

// createRequest is the POST /v1/clusters payload.
type createRequest struct {
	Name string `json:"name"`
	Tier string `json:"tier"`
}

// createResponse acknowledges an accepted provisioning request.
type createResponse struct {
	RequestID string `json:"requestId"`
}

// statusResponse is the GET /v1/clusters/{requestID} payload.
type statusResponse struct {
	State         registry.State       `json:"state"`
	Progress      int                  `json:"progressPercent"`
	StatusMessage string               `json:"statusMessage,omitempty"`
	CanonicalName string               `json:"canonicalName,omitempty"`
	Connection    *provider.Connection `json:"connection,omitempty"`
	Feature       *featureStatus       `json:"feature,omitempty"`
}

type featureStatus struct {
	Enabled bool   `json:"enabled"`
	Failed  bool   `json:"failed"`
	Message string `json:"message,omitempty"`
}

// cancelRequest is the POST /v1/clusters/{requestID}/cancel payload.
type cancelRequest struct {
	Comment string `json:"comment,omitempty"`
}

type cancelResponse struct {
	Accepted bool `json:"accepted"`
}

type errorResponse struct {
	Error string `json:"error"`
}

// Server wires the orchestrator into HTTP handlers.
type Server struct {
	ctrl *orchestrator.Controller
	log  logr.Logger
}

// NewServer creates the HTTP surface for the given controller.
func NewServer(ctrl *orchestrator.Controller, log logr.Logger) *Server {
	return &Server{ctrl: ctrl, log: log}
}

// Router builds the HTTP route tree.
func (s *Server) Router() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.Recoverer)

	r.Get("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})
	r.Method(http.MethodGet, "/metrics", promhttp.Handler())

	r.Route("/v1/clusters", func(r chi.Router) {
		r.Post("/", s.handleCreate)
		r.Get("/{requestID}", s.handleStatus)
		r.Post("/{requestID}/cancel", s.handleCancel)
	})

	return r
}

func (s *Server) handleCreate(w http.ResponseWriter, r *http.Request) {
	var req createRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON payload")
		return
	}

	id, err := s.ctrl.Create(r.Context(), req.Name, req.Tier)
	switch {
	case err == nil:
		writeJSON(w, http.StatusCreated, createResponse{RequestID: id})
	case orchestrator.IsValidation(err):
		writeError(w, http.StatusBadRequest, err.Error())
	case orchestrator.IsConflict(err):
		writeError(w, http.StatusConflict, err.Error())
	default:
		s.log.Error(err, "create failed", "name", req.Name)
		writeError(w, http.StatusInternalServerError, "internal error")
	}
}

func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	rec, err := s.ctrl.Status(chi.URLParam(r, "requestID"))
	if err != nil {
		if errors.Is(err, orchestrator.ErrUnknownRequest) {
			writeError(w, http.StatusNotFound, "unknown request")
			return
		}
		writeError(w, http.StatusInternalServerError, "internal error")
		return
	}

	resp := statusResponse{
		State:         rec.State,
		Progress:      rec.Progress,
		StatusMessage: rec.StatusMessage,
		CanonicalName: rec.CanonicalName,
		Connection:    rec.Connection,
	}
	if rec.FeatureEnabled || rec.FeatureFailed {
		resp.Feature = &featureStatus{
			Enabled: rec.FeatureEnabled,
			Failed:  rec.FeatureFailed,
			Message: rec.FeatureMessage,
		}
	}
	writeJSON(w, http.StatusOK, resp)
}

func (s *Server) handleCancel(w http.ResponseWriter, r *http.Request) {
	var req cancelRequest
	// The body is optional.
	_ = json.NewDecoder(r.Body).Decode(&req)

	err := s.ctrl.Cancel(r.Context(), chi.URLParam(r, "requestID"), req.Comment)
	switch {
	case err == nil:
		writeJSON(w, http.StatusAccepted, cancelResponse{Accepted: true})
	case errors.Is(err, orchestrator.ErrUnknownRequest):
		writeError(w, http.StatusNotFound, "unknown request")
	default:
		s.log.Error(err, "cancel failed")
		writeError(w, http.StatusInternalServerError, "internal error")
	}
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, errorResponse{Error: msg})
}
