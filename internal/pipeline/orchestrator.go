// Package pipeline sequences a generation run: admission control, session
// bookkeeping, the staged AI calls, and terminal cleanup. The hold placed for
// an attempt is committed exactly once on success or released with refund on
// any failure, and the progress sink is closed exactly once on every path.
package pipeline

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/tailord/tailord/internal/artifacts"
	"github.com/tailord/tailord/internal/core"
	"github.com/tailord/tailord/internal/faults"
	"github.com/tailord/tailord/internal/gateway"
	"github.com/tailord/tailord/internal/progress"
	"github.com/tailord/tailord/internal/quota"
	"github.com/tailord/tailord/internal/render"
	"github.com/tailord/tailord/internal/store"
)

// SessionStore is the slice of the session store the orchestrator uses.
type SessionStore interface {
	Create(id core.SessionID, owner core.OwnerID, company, role string) (core.Session, error)
	Get(id core.SessionID, owner core.OwnerID) (core.Session, error)
	Apply(id core.SessionID, owner core.OwnerID, update store.Update) (core.Session, error)
	AppendChatLog(id core.SessionID, owner core.OwnerID, entry core.ChatLogEntry) error
	UpsertVersion(id core.SessionID, owner core.OwnerID, kind core.ArtifactKind, version core.GenerationVersion) error
}

// Researcher synthesizes a company/role research brief. External
// collaborator; failures degrade to an empty brief.
type Researcher interface {
	Brief(ctx context.Context, company, role, jobDescription string) (string, error)
}

// ContactEnricher fills in missing contact fields. External collaborator;
// failures leave the contact as provided.
type ContactEnricher interface {
	Enrich(ctx context.Context, company string, contact core.Contact) (core.Contact, error)
}

type Orchestrator struct {
	Gateway   *gateway.Gateway
	Fitter    *render.Fitter
	Quota     quota.Ledger
	Sessions  SessionStore
	Research  Researcher
	Enricher  ContactEnricher
	Artifacts artifacts.Store

	ProcessingTimeout time.Duration

	now func() time.Time
}

func (o *Orchestrator) clock() time.Time {
	if o.now != nil {
		return o.now()
	}
	return time.Now()
}

// Run executes one generation attempt end to end, streaming progress lines
// into sink. It blocks until the attempt is terminal; callers that want
// fire-and-forget run it in a goroutine.
func (o *Orchestrator) Run(ctx context.Context, owner core.OwnerID, req core.GenerationRequest, sink progress.Sink) {
	var closeOnce sync.Once
	closeSink := func() { closeOnce.Do(sink.Close) }
	defer closeSink()

	requestID := core.NewRequestID()
	holdKey := core.HoldKey(req.SessionID, requestID)

	// Local flags keep the success and failure cleanup paths from racing
	// into redundant ledger calls. A hold key is only ever operated on by
	// the one orchestrator that placed it.
	holdPlaced := false
	holdSettled := false

	if err := o.Quota.PlaceHold(owner, holdKey, 1); err != nil {
		if errors.Is(err, faults.ErrQuotaExceeded) {
			sink.Emit(faults.UserMessage(faults.KindQuotaExceeded))
			return
		}

		slog.Error("hold placement failed", "session_id", req.SessionID, "error", err)
		sink.Emit(faults.UserMessage(faults.KindUnknown))
		return
	}
	holdPlaced = true

	releaseHold := func() {
		if !holdPlaced || holdSettled {
			return
		}
		holdSettled = true
		if err := o.Quota.ReleaseHold(owner, holdKey, true); err != nil {
			slog.Error("hold release failed", "hold_key", holdKey, "error", err)
		}
	}

	if err := o.beginProcessing(owner, req, holdKey); err != nil {
		releaseHold()
		slog.Error("could not mark session processing", "session_id", req.SessionID, "error", err)
		sink.Emit(faults.UserMessage(faults.KindUnknown))
		return
	}

	payload, runErr := o.runStages(ctx, owner, req, sink)

	if runErr != nil {
		kind := faults.ClassifyError(runErr)
		if kind == faults.KindAborted {
			slog.Info("generation aborted", "session_id", req.SessionID)
		} else {
			slog.Error("generation failed", "session_id", req.SessionID, "kind", kind.String(), "error", runErr)
		}

		releaseHold()
		o.finishSession(owner, req, core.StatusFailed, nil, runErr)
		sink.Emit(faults.UserMessage(kind))
		return
	}

	holdSettled = true
	if err := o.Quota.CommitHold(owner, holdKey); err != nil {
		// Consumption already happened at placement; log and move on.
		slog.Error("hold commit failed", "hold_key", holdKey, "error", err)
	}

	o.finishSession(owner, req, core.StatusCompleted, payload.artifactRefs(), nil)

	serialized, err := json.Marshal(payload)
	if err != nil {
		slog.Error("payload serialization failed", "session_id", req.SessionID, "error", err)
		sink.Emit(faults.UserMessage(faults.KindUnknown))
		return
	}

	sink.Emit(string(serialized))
}

// beginProcessing flips the session to processing with a deadline and
// records the hold key where stale recovery can find it.
func (o *Orchestrator) beginProcessing(owner core.OwnerID, req core.GenerationRequest, holdKey string) error {
	if _, err := o.Sessions.Get(req.SessionID, owner); err != nil {
		if !errors.Is(err, faults.ErrSessionNotFound) {
			return err
		}
		if _, err := o.Sessions.Create(req.SessionID, owner, req.Company, req.Role); err != nil {
			return err
		}
	}

	started := o.clock().UTC()
	deadline := started.Add(o.ProcessingTimeout)
	status := core.StatusProcessing

	_, err := o.Sessions.Apply(req.SessionID, owner, store.Update{
		Status:              &status,
		ProcessingStartedAt: &started,
		ProcessingDeadline:  &deadline,
		Metadata: map[string]string{
			core.MetaActiveHoldKey: holdKey,
			core.MetaHoldPlacedAt:  started.Format(time.RFC3339),
		},
	})
	return err
}

// finishSession persists the terminal status and clears the processing
// fields and hold metadata. Failures here are logged only: stale recovery is
// the backstop.
func (o *Orchestrator) finishSession(owner core.OwnerID, req core.GenerationRequest, status core.SessionStatus, refs map[string]string, runErr error) {
	update := store.Update{
		Status:          &status,
		ClearProcessing: true,
		Metadata: map[string]string{
			core.MetaActiveHoldKey: core.MetadataClear,
			core.MetaHoldPlacedAt:  core.MetadataClear,
		},
		Artifacts: refs,
	}

	if runErr != nil {
		update.Metadata["lastError"] = faults.ClassifyError(runErr).String()
	}

	if _, err := o.Sessions.Apply(req.SessionID, owner, update); err != nil {
		slog.Error("could not persist terminal session state",
			"session_id", req.SessionID, "status", status, "error", err)
	}
}

// checkCancelled is called at every stage boundary. In-flight external calls
// are never preempted; cancellation is only observed between stages.
func checkCancelled(ctx context.Context, stage string) error {
	if ctx.Err() != nil {
		return fmt.Errorf("%s: %w", stage, faults.ErrAborted)
	}
	return nil
}
