package store

import (
	"fmt"
	"log/slog"

	"github.com/dgraph-io/badger/v4"

	"github.com/tailord/tailord/internal/core"
)

// recoverIfStale resolves a session stuck in processing past its deadline
// plus a grace period: the backstop for orchestrator processes that died
// before running their own cleanup. The dangling hold referenced by the
// session metadata is released with refund.
func (s *Store) recoverIfStale(session core.Session) (core.Session, error) {
	if session.Status != core.StatusProcessing {
		return session, nil
	}

	deadline := session.ProcessingDeadline
	if deadline == nil && session.ProcessingStartedAt != nil {
		expires := session.ProcessingStartedAt.Add(s.processingTimeout)
		deadline = &expires
	}
	if deadline == nil {
		return session, nil
	}

	if s.now().Before(deadline.Add(s.staleGrace)) {
		return session, nil
	}

	resolved := core.StatusFailed
	if hasAnyArtifact(session) {
		resolved = core.StatusCompleted
	}

	danglingHoldKey := session.Metadata[core.MetaActiveHoldKey]

	var recovered core.Session
	err := s.db.Update(func(txn *badger.Txn) error {
		current, err := getSession(txn, session.ID)
		if err != nil {
			return err
		}

		// Another reader may have recovered it already.
		if current.Status != core.StatusProcessing {
			recovered = current
			return nil
		}

		current.Status = resolved
		current.ProcessingStartedAt = nil
		current.ProcessingDeadline = nil
		delete(current.Metadata, core.MetaActiveHoldKey)
		delete(current.Metadata, core.MetaHoldPlacedAt)
		current.Version++
		current.UpdatedAt = s.now().UTC()

		recovered = current
		return putSession(txn, current)
	})
	if err != nil {
		return core.Session{}, fmt.Errorf("stale recovery for %s: %w", session.ID, err)
	}

	if danglingHoldKey != "" && s.holds != nil {
		if err := s.holds.ReleaseHold(session.OwnerID, danglingHoldKey, true); err != nil {
			slog.Warn("stale recovery could not release hold",
				"session_id", session.ID, "hold_key", danglingHoldKey, "error", err)
		}
	}

	slog.Info("recovered stale processing session",
		"session_id", session.ID, "status", recovered.Status)

	return recovered, nil
}

func hasAnyArtifact(session core.Session) bool {
	if len(session.Artifacts) > 0 {
		return true
	}

	for _, versions := range session.Versions {
		for _, version := range versions {
			if version.Status == core.VersionSuccess {
				return true
			}
		}
	}

	return false
}
