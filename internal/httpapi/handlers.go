package httpapi

import (
	"context"
	"encoding/json"
	"net/http"
	"os"
	"time"

	"github.com/tailord/tailord/internal/core"
	"github.com/tailord/tailord/internal/progress"
	"github.com/tailord/tailord/internal/store"
)

type generatePayload struct {
	SessionID      string       `json:"session_id,omitempty"`
	Company        string       `json:"company"`
	Role           string       `json:"role"`
	JobDescription string       `json:"job_description,omitempty"`
	CVSource       string       `json:"cv_source"`
	Strategy       string       `json:"strategy,omitempty"`
	Contact        core.Contact `json:"contact,omitempty"`
	Mode           core.Mode    `json:"mode,omitempty"`
}

func (s *Server) handleGenerate(w http.ResponseWriter, r *http.Request) {
	owner, ok := ownerFrom(r)
	if !ok {
		writeError(w, http.StatusBadRequest, "X-Owner-ID header is required")
		return
	}

	var payload generatePayload
	if err := json.NewDecoder(r.Body).Decode(&payload); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body: "+err.Error())
		return
	}

	if payload.Company == "" || payload.Role == "" || payload.CVSource == "" {
		writeError(w, http.StatusBadRequest, "company, role, and cv_source are required")
		return
	}

	mode := payload.Mode
	if mode == "" {
		mode = core.ModeStandard
	}
	if mode != core.ModeStandard && mode != core.ModeColdOutreach {
		writeError(w, http.StatusBadRequest, "unknown mode: "+string(mode))
		return
	}

	sessionID := core.SessionID(payload.SessionID)
	if sessionID == "" {
		sessionID = core.NewSessionID()
	}

	req := core.GenerationRequest{
		SessionID:      sessionID,
		GenerationID:   core.NewGenerationID(),
		Company:        payload.Company,
		Role:           payload.Role,
		JobDescription: payload.JobDescription,
		CVSource:       payload.CVSource,
		Strategy:       payload.Strategy,
		Contact:        payload.Contact,
		Mode:           mode,
	}

	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	w.Header().Set("X-Session-ID", string(sessionID))
	w.Header().Set("X-Generation-ID", string(req.GenerationID))
	w.WriteHeader(http.StatusOK)

	timeout := s.GenerationTimeout
	if timeout <= 0 {
		timeout = 45 * time.Minute
	}
	ctx, cancel := context.WithTimeout(r.Context(), timeout)
	defer cancel()

	s.Runner.Run(ctx, owner, req, progress.NewWriterSink(w))
}

func (s *Server) handleListSessions(w http.ResponseWriter, r *http.Request) {
	owner, ok := ownerFrom(r)
	if !ok {
		writeError(w, http.StatusBadRequest, "X-Owner-ID header is required")
		return
	}

	sessions, err := s.Sessions.List(owner)
	if err != nil {
		writeStoreError(w, err)
		return
	}
	if sessions == nil {
		sessions = []core.Session{}
	}

	writeJSON(w, http.StatusOK, map[string]any{"sessions": sessions})
}

func (s *Server) handleGetSession(w http.ResponseWriter, r *http.Request) {
	owner, ok := ownerFrom(r)
	if !ok {
		writeError(w, http.StatusBadRequest, "X-Owner-ID header is required")
		return
	}

	session, err := s.Sessions.Get(core.SessionID(r.PathValue("id")), owner)
	if err != nil {
		writeStoreError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, session)
}

func (s *Server) handleDeleteSession(w http.ResponseWriter, r *http.Request) {
	owner, ok := ownerFrom(r)
	if !ok {
		writeError(w, http.StatusBadRequest, "X-Owner-ID header is required")
		return
	}

	if err := s.Sessions.Delete(core.SessionID(r.PathValue("id")), owner); err != nil {
		writeStoreError(w, err)
		return
	}

	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleDeleteGeneration(w http.ResponseWriter, r *http.Request) {
	owner, ok := ownerFrom(r)
	if !ok {
		writeError(w, http.StatusBadRequest, "X-Owner-ID header is required")
		return
	}

	kind := core.ArtifactKind(r.URL.Query().Get("kind"))
	if kind == "" {
		kind = core.ArtifactCV
	}

	err := s.Sessions.DeleteGeneration(
		core.SessionID(r.PathValue("id")), owner, kind, core.GenerationID(r.PathValue("gid")))
	if err != nil {
		writeStoreError(w, err)
		return
	}

	w.WriteHeader(http.StatusNoContent)
}

// handleAutoFix runs the fix loop on the newest failed CV version. Repair of
// an already-held generation is free: no new hold is placed.
func (s *Server) handleAutoFix(w http.ResponseWriter, r *http.Request) {
	owner, ok := ownerFrom(r)
	if !ok {
		writeError(w, http.StatusBadRequest, "X-Owner-ID header is required")
		return
	}

	sessionID := core.SessionID(r.PathValue("id"))

	session, err := s.Sessions.Get(sessionID, owner)
	if err != nil {
		writeStoreError(w, err)
		return
	}

	failed, found := newestFailedVersion(session.Versions[core.ArtifactCV])
	if !found {
		writeError(w, http.StatusConflict, "no failed cv version to fix")
		return
	}

	outcome := s.Fixer.AutoFix(r.Context(), failed.Content, failed.ErrorMessage, failed.LogExcerpt)

	version := core.GenerationVersion{
		GenerationID: core.NewGenerationID(),
		Content:      outcome.Content,
		Status:       core.VersionSuccess,
		PageCount:    outcome.PageCount,
		CreatedAt:    time.Now().UTC(),
	}
	if !outcome.OK {
		version.Status = core.VersionFailed
		version.ErrorMessage = outcome.ErrorMessage
		version.LogExcerpt = outcome.LogExcerpt
		version.ErrorLines = outcome.ErrorLines
		version.Errors = outcome.Errors
	}

	if err := s.Sessions.UpsertVersion(sessionID, owner, core.ArtifactCV, version); err != nil {
		writeStoreError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"version":  version,
		"attempts": outcome.Attempts,
		"fixed":    outcome.OK,
	})
}

func (s *Server) handleApprove(w http.ResponseWriter, r *http.Request) {
	owner, ok := ownerFrom(r)
	if !ok {
		writeError(w, http.StatusBadRequest, "X-Owner-ID header is required")
		return
	}

	status := core.StatusApproved
	session, err := s.Sessions.Apply(core.SessionID(r.PathValue("id")), owner, store.Update{Status: &status})
	if err != nil {
		writeStoreError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, session)
}

func (s *Server) handleQuota(w http.ResponseWriter, r *http.Request) {
	owner, ok := ownerFrom(r)
	if !ok {
		writeError(w, http.StatusBadRequest, "X-Owner-ID header is required")
		return
	}

	remaining, err := s.Quota.Remaining(owner)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "internal error")
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{"owner": owner, "remaining": remaining})
}

type grantPayload struct {
	Owner string `json:"owner"`
	Delta int    `json:"delta"`
}

func (s *Server) handleQuotaGrant(w http.ResponseWriter, r *http.Request) {
	var payload grantPayload
	if err := json.NewDecoder(r.Body).Decode(&payload); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body: "+err.Error())
		return
	}
	if payload.Owner == "" {
		writeError(w, http.StatusBadRequest, "owner is required")
		return
	}

	remaining, err := s.Quota.Grant(core.OwnerID(payload.Owner), payload.Delta)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "internal error")
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"owner":     payload.Owner,
		"remaining": remaining,
	})
}

func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"uptime":     time.Since(s.startedAt).Round(time.Second).String(),
		"started_at": s.startedAt.Format(time.RFC3339),
		"pid":        os.Getpid(),
	})
}

func newestFailedVersion(versions []core.GenerationVersion) (core.GenerationVersion, bool) {
	for i := len(versions) - 1; i >= 0; i-- {
		if versions[i].Status == core.VersionFailed {
			return versions[i], true
		}
	}
	return core.GenerationVersion{}, false
}
