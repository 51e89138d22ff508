package httpapi

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/tailord/tailord/internal/core"
	"github.com/tailord/tailord/internal/faults"
	"github.com/tailord/tailord/internal/progress"
	"github.com/tailord/tailord/internal/render"
	"github.com/tailord/tailord/internal/store"
)

type stubRunner struct {
	lines   []string
	lastReq core.GenerationRequest
}

func (r *stubRunner) Run(_ context.Context, _ core.OwnerID, req core.GenerationRequest, sink progress.Sink) {
	r.lastReq = req
	defer sink.Close()
	for _, line := range r.lines {
		sink.Emit(line)
	}
}

type stubSessions struct {
	sessions map[core.SessionID]core.Session
	deleted  []core.SessionID
	upserted []core.GenerationVersion
}

func (s *stubSessions) Get(id core.SessionID, owner core.OwnerID) (core.Session, error) {
	session, ok := s.sessions[id]
	if !ok {
		return core.Session{}, fmt.Errorf("session %s: %w", id, faults.ErrSessionNotFound)
	}
	if session.OwnerID != owner {
		return core.Session{}, faults.ErrOwnershipMismatch
	}
	return session, nil
}

func (s *stubSessions) List(owner core.OwnerID) ([]core.Session, error) {
	var out []core.Session
	for _, session := range s.sessions {
		if session.OwnerID == owner {
			out = append(out, session)
		}
	}
	return out, nil
}

func (s *stubSessions) Delete(id core.SessionID, owner core.OwnerID) error {
	if _, err := s.Get(id, owner); err != nil {
		return err
	}
	delete(s.sessions, id)
	s.deleted = append(s.deleted, id)
	return nil
}

func (s *stubSessions) DeleteGeneration(id core.SessionID, owner core.OwnerID, _ core.ArtifactKind, _ core.GenerationID) error {
	_, err := s.Get(id, owner)
	return err
}

func (s *stubSessions) UpsertVersion(id core.SessionID, owner core.OwnerID, _ core.ArtifactKind, version core.GenerationVersion) error {
	if _, err := s.Get(id, owner); err != nil {
		return err
	}
	s.upserted = append(s.upserted, version)
	return nil
}

func (s *stubSessions) Apply(id core.SessionID, owner core.OwnerID, update store.Update) (core.Session, error) {
	session, err := s.Get(id, owner)
	if err != nil {
		return core.Session{}, err
	}
	if update.Status != nil {
		session.Status = *update.Status
	}
	s.sessions[id] = session
	return session, nil
}

type stubQuota struct{ remaining int }

func (q *stubQuota) Remaining(core.OwnerID) (int, error) { return q.remaining, nil }

func (q *stubQuota) Grant(_ core.OwnerID, delta int) (int, error) {
	q.remaining += delta
	return q.remaining, nil
}

type stubFixer struct{ outcome render.Outcome }

func (f *stubFixer) AutoFix(context.Context, string, string, string) render.Outcome {
	return f.outcome
}

func newTestServer(t *testing.T, runner *stubRunner, sessions *stubSessions, fixer Fixer) *httptest.Server {
	t.Helper()

	if fixer == nil {
		fixer = &stubFixer{}
	}

	srv := &Server{
		Runner:            runner,
		Sessions:          sessions,
		Quota:             &stubQuota{remaining: 42},
		Fixer:             fixer,
		DataDir:           t.TempDir(),
		GenerationTimeout: time.Minute,
	}

	ts := httptest.NewServer(srv.Routes())
	t.Cleanup(ts.Close)
	return ts
}

func do(t *testing.T, ts *httptest.Server, method, path, owner, body string) *http.Response {
	t.Helper()

	req, err := http.NewRequest(method, ts.URL+path, strings.NewReader(body))
	require.NoError(t, err)
	if owner != "" {
		req.Header.Set("X-Owner-ID", owner)
	}

	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	t.Cleanup(func() { resp.Body.Close() })
	return resp
}

func readBody(t *testing.T, resp *http.Response) string {
	t.Helper()
	var sb strings.Builder
	buf := make([]byte, 4096)
	for {
		n, err := resp.Body.Read(buf)
		sb.Write(buf[:n])
		if err != nil {
			break
		}
	}
	return sb.String()
}

func TestGenerateStreamsLines(t *testing.T) {
	runner := &stubRunner{lines: []string{"Preparing application", `{"session_id":"sess_x"}`}}
	ts := newTestServer(t, runner, &stubSessions{sessions: map[core.SessionID]core.Session{}}, nil)

	body := `{"company":"Acme","role":"Engineer","cv_source":"\\documentclass{article}"}`
	resp := do(t, ts, http.MethodPost, "/api/generate", "alice", body)

	require.Equal(t, http.StatusOK, resp.StatusCode)
	require.NotEmpty(t, resp.Header.Get("X-Session-ID"))
	require.Equal(t, "Preparing application\n{\"session_id\":\"sess_x\"}\n", readBody(t, resp))
	require.Equal(t, core.ModeStandard, runner.lastReq.Mode, "mode defaults to standard")
	require.NotEmpty(t, runner.lastReq.GenerationID)
}

func TestGenerateRequiresOwner(t *testing.T) {
	ts := newTestServer(t, &stubRunner{}, &stubSessions{sessions: map[core.SessionID]core.Session{}}, nil)

	resp := do(t, ts, http.MethodPost, "/api/generate", "", `{"company":"A","role":"B","cv_source":"C"}`)
	require.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func TestGenerateRejectsUnknownMode(t *testing.T) {
	ts := newTestServer(t, &stubRunner{}, &stubSessions{sessions: map[core.SessionID]core.Session{}}, nil)

	resp := do(t, ts, http.MethodPost, "/api/generate", "alice",
		`{"company":"A","role":"B","cv_source":"C","mode":"aggressive"}`)
	require.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func TestGetSessionHidesForeignSessions(t *testing.T) {
	sessions := &stubSessions{sessions: map[core.SessionID]core.Session{
		"sess_1": {ID: "sess_1", OwnerID: "bob", Status: core.StatusCompleted},
	}}
	ts := newTestServer(t, &stubRunner{}, sessions, nil)

	resp := do(t, ts, http.MethodGet, "/api/sessions/sess_1", "alice", "")
	require.Equal(t, http.StatusNotFound, resp.StatusCode, "ownership mismatch reads as not found")

	resp = do(t, ts, http.MethodGet, "/api/sessions/sess_1", "bob", "")
	require.Equal(t, http.StatusOK, resp.StatusCode)
}

func TestDeleteSession(t *testing.T) {
	sessions := &stubSessions{sessions: map[core.SessionID]core.Session{
		"sess_1": {ID: "sess_1", OwnerID: "alice"},
	}}
	ts := newTestServer(t, &stubRunner{}, sessions, nil)

	resp := do(t, ts, http.MethodDelete, "/api/sessions/sess_1", "alice", "")
	require.Equal(t, http.StatusNoContent, resp.StatusCode)
	require.Equal(t, []core.SessionID{"sess_1"}, sessions.deleted)
}

func TestAutoFixRequiresFailedVersion(t *testing.T) {
	sessions := &stubSessions{sessions: map[core.SessionID]core.Session{
		"sess_1": {
			ID: "sess_1", OwnerID: "alice",
			Versions: map[core.ArtifactKind][]core.GenerationVersion{
				core.ArtifactCV: {{GenerationID: "gen_1", Status: core.VersionSuccess}},
			},
		},
	}}
	ts := newTestServer(t, &stubRunner{}, sessions, nil)

	resp := do(t, ts, http.MethodPost, "/api/sessions/sess_1/autofix", "alice", "")
	require.Equal(t, http.StatusConflict, resp.StatusCode)
}

func TestAutoFixRecordsNewVersion(t *testing.T) {
	sessions := &stubSessions{sessions: map[core.SessionID]core.Session{
		"sess_1": {
			ID: "sess_1", OwnerID: "alice",
			Versions: map[core.ArtifactKind][]core.GenerationVersion{
				core.ArtifactCV: {{GenerationID: "gen_1", Status: core.VersionFailed, Content: "broken", ErrorMessage: "boom"}},
			},
		},
	}}
	pages := 2
	fixed := render.Outcome{Content: "repaired", PageCount: &pages, OK: true, Attempts: 2}
	ts := newTestServer(t, &stubRunner{}, sessions, &stubFixer{outcome: fixed})

	resp := do(t, ts, http.MethodPost, "/api/sessions/sess_1/autofix", "alice", "")
	require.Equal(t, http.StatusOK, resp.StatusCode)
	require.Len(t, sessions.upserted, 1)
	require.Equal(t, core.VersionSuccess, sessions.upserted[0].Status)
	require.Equal(t, "repaired", sessions.upserted[0].Content)
	require.NotEqual(t, core.GenerationID("gen_1"), sessions.upserted[0].GenerationID, "repair gets its own generation id")
}

func TestQuotaEndpoint(t *testing.T) {
	ts := newTestServer(t, &stubRunner{}, &stubSessions{sessions: map[core.SessionID]core.Session{}}, nil)

	resp := do(t, ts, http.MethodGet, "/api/quota", "alice", "")
	require.Equal(t, http.StatusOK, resp.StatusCode)
	require.Contains(t, readBody(t, resp), `"remaining":42`)
}
