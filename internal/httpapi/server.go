// Package httpapi exposes the generation pipeline and session store over
// HTTP. Progress streams as chunked text lines; everything else is JSON.
// Caller identity comes from the X-Owner-ID header, set by the auth layer in
// front of this service.
package httpapi

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"path/filepath"
	"time"

	"github.com/tailord/tailord/internal/core"
	"github.com/tailord/tailord/internal/faults"
	"github.com/tailord/tailord/internal/progress"
	"github.com/tailord/tailord/internal/render"
	"github.com/tailord/tailord/internal/store"
)

// GenerationRunner executes one generation attempt, streaming into the sink
// and closing it when the attempt is terminal.
type GenerationRunner interface {
	Run(ctx context.Context, owner core.OwnerID, req core.GenerationRequest, sink progress.Sink)
}

// SessionStore is the slice of the session store the API serves.
type SessionStore interface {
	Get(id core.SessionID, owner core.OwnerID) (core.Session, error)
	List(owner core.OwnerID) ([]core.Session, error)
	Delete(id core.SessionID, owner core.OwnerID) error
	DeleteGeneration(id core.SessionID, owner core.OwnerID, kind core.ArtifactKind, generationID core.GenerationID) error
	UpsertVersion(id core.SessionID, owner core.OwnerID, kind core.ArtifactKind, version core.GenerationVersion) error
	Apply(id core.SessionID, owner core.OwnerID, update store.Update) (core.Session, error)
}

// QuotaService reports and adjusts owner budgets.
type QuotaService interface {
	Remaining(owner core.OwnerID) (int, error)
	Grant(owner core.OwnerID, delta int) (int, error)
}

// Fixer runs the auto-fix loop on a failing document.
type Fixer interface {
	AutoFix(ctx context.Context, document, errorSummary, logExcerpt string) render.Outcome
}

type Server struct {
	Runner   GenerationRunner
	Sessions SessionStore
	Quota    QuotaService
	Fixer    Fixer

	// DataDir holds the artifacts/ tree served at /artifacts/.
	DataDir string

	// GenerationTimeout bounds one request-scoped run; the pipeline observes
	// it at stage boundaries.
	GenerationTimeout time.Duration

	startedAt time.Time
}

// Routes builds the request mux.
func (s *Server) Routes() *http.ServeMux {
	s.startedAt = time.Now()

	mux := http.NewServeMux()

	mux.HandleFunc("POST /api/generate", s.handleGenerate)
	mux.HandleFunc("GET /api/sessions", s.handleListSessions)
	mux.HandleFunc("GET /api/sessions/{id}", s.handleGetSession)
	mux.HandleFunc("DELETE /api/sessions/{id}", s.handleDeleteSession)
	mux.HandleFunc("DELETE /api/sessions/{id}/generations/{gid}", s.handleDeleteGeneration)
	mux.HandleFunc("POST /api/sessions/{id}/autofix", s.handleAutoFix)
	mux.HandleFunc("POST /api/sessions/{id}/approve", s.handleApprove)
	mux.HandleFunc("GET /api/quota", s.handleQuota)
	mux.HandleFunc("POST /api/quota/grant", s.handleQuotaGrant)
	mux.HandleFunc("GET /api/status", s.handleStatus)

	artifactsDir := filepath.Join(s.DataDir, "artifacts")
	mux.Handle("GET /artifacts/", http.StripPrefix("/artifacts/", http.FileServer(http.Dir(artifactsDir))))

	return mux
}

func ownerFrom(r *http.Request) (core.OwnerID, bool) {
	owner := r.Header.Get("X-Owner-ID")
	return core.OwnerID(owner), owner != ""
}

type errorPayload struct {
	Error string `json:"error"`
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(payload); err != nil {
		slog.Warn("response encode failed", "error", err)
	}
}

func writeError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, errorPayload{Error: message})
}

// writeStoreError maps store failures onto status codes. Ownership mismatches
// read as not-found so session ids do not leak across owners.
func writeStoreError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, faults.ErrSessionNotFound), errors.Is(err, faults.ErrOwnershipMismatch):
		writeError(w, http.StatusNotFound, "session not found")
	default:
		slog.Error("session store error", "error", err)
		writeError(w, http.StatusInternalServerError, "internal error")
	}
}
