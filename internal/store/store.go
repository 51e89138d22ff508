// Package store persists session records in badger. All mutations run as
// transactional read-modify-write with an ownership check and an incrementing
// version counter; reads apply stale-processing recovery so a session left in
// processing by a crashed generation resolves to a terminal state.
package store

import (
	"encoding/json"
	"fmt"
	"sort"
	"time"

	"github.com/dgraph-io/badger/v4"

	"github.com/tailord/tailord/internal/core"
	"github.com/tailord/tailord/internal/faults"
)

const sessionPrefix = "session/"

// HoldReleaser is the slice of the quota ledger stale recovery needs.
type HoldReleaser interface {
	ReleaseHold(owner core.OwnerID, holdKey string, refund bool) error
}

// Update describes one transactional session mutation. Maps merge shallowly
// into the stored record; a metadata value of core.MetadataClear removes the
// key, and absent keys preserve stored values.
type Update struct {
	Status              *core.SessionStatus
	Artifacts           map[string]string
	Metadata            map[string]string
	ProcessingStartedAt *time.Time
	ProcessingDeadline  *time.Time
	ClearProcessing     bool
}

type Store struct {
	db                *badger.DB
	holds             HoldReleaser
	processingTimeout time.Duration
	staleGrace        time.Duration
	now               func() time.Time
}

func New(db *badger.DB, holds HoldReleaser, processingTimeout, staleGrace time.Duration) *Store {
	return &Store{
		db:                db,
		holds:             holds,
		processingTimeout: processingTimeout,
		staleGrace:        staleGrace,
		now:               time.Now,
	}
}

func sessionKey(id core.SessionID) []byte {
	return []byte(sessionPrefix + string(id))
}

// Create initializes a session record with version 1 for the owner. The
// record starts in processing because sessions only come into existence at
// generation-request time.
func (s *Store) Create(id core.SessionID, owner core.OwnerID, company, role string) (core.Session, error) {
	now := s.now().UTC()
	session := core.Session{
		ID:        id,
		OwnerID:   owner,
		Status:    core.StatusProcessing,
		Company:   company,
		Role:      role,
		Artifacts: map[string]string{},
		Versions:  map[core.ArtifactKind][]core.GenerationVersion{},
		Metadata:  map[string]string{},
		Version:   1,
		CreatedAt: now,
		UpdatedAt: now,
	}

	err := s.db.Update(func(txn *badger.Txn) error {
		return putSession(txn, session)
	})
	if err != nil {
		return core.Session{}, fmt.Errorf("create session: %w", err)
	}

	return session, nil
}

// Get returns the owner's session, applying stale-processing recovery first.
func (s *Store) Get(id core.SessionID, owner core.OwnerID) (core.Session, error) {
	var session core.Session

	err := s.db.View(func(txn *badger.Txn) error {
		loaded, err := getSession(txn, id)
		if err != nil {
			return err
		}
		session = loaded
		return nil
	})
	if err != nil {
		return core.Session{}, err
	}

	if session.OwnerID != owner {
		return core.Session{}, fmt.Errorf("get session %s: %w", id, faults.ErrOwnershipMismatch)
	}

	return s.recoverIfStale(session)
}

// List returns all of the owner's sessions, newest first, each run through
// stale recovery.
func (s *Store) List(owner core.OwnerID) ([]core.Session, error) {
	var sessions []core.Session

	err := s.db.View(func(txn *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.Prefix = []byte(sessionPrefix)

		it := txn.NewIterator(opts)
		defer it.Close()

		for it.Rewind(); it.Valid(); it.Next() {
			raw, err := it.Item().ValueCopy(nil)
			if err != nil {
				return err
			}

			var session core.Session
			if err := json.Unmarshal(raw, &session); err != nil {
				return fmt.Errorf("parse session record: %w", err)
			}

			if session.OwnerID == owner {
				sessions = append(sessions, session)
			}
		}

		return nil
	})
	if err != nil {
		return nil, err
	}

	for i, session := range sessions {
		recovered, err := s.recoverIfStale(session)
		if err != nil {
			return nil, err
		}
		sessions[i] = recovered
	}

	sortSessionsNewestFirst(sessions)
	return sessions, nil
}

// Apply runs one ownership-checked merge update and bumps the version
// counter.
func (s *Store) Apply(id core.SessionID, owner core.OwnerID, update Update) (core.Session, error) {
	var updated core.Session

	err := s.db.Update(func(txn *badger.Txn) error {
		session, err := getOwnedSession(txn, id, owner)
		if err != nil {
			return err
		}

		mergeUpdate(&session, update)
		session.Version++
		session.UpdatedAt = s.now().UTC()

		updated = session
		return putSession(txn, session)
	})
	if err != nil {
		return core.Session{}, err
	}

	return updated, nil
}

// AppendChatLog appends one progress-history entry under the same ownership
// check as any other mutation. Entries without an id get one; empty payload
// objects are dropped rather than stored.
func (s *Store) AppendChatLog(id core.SessionID, owner core.OwnerID, entry core.ChatLogEntry) error {
	if entry.ID == "" {
		entry.ID = string(core.NewRequestID())
	}
	if entry.Timestamp.IsZero() {
		entry.Timestamp = s.now().UTC()
	}
	if len(entry.Payload) == 0 {
		entry.Payload = nil
	}

	return s.db.Update(func(txn *badger.Txn) error {
		session, err := getOwnedSession(txn, id, owner)
		if err != nil {
			return err
		}

		session.ChatLog = append(session.ChatLog, entry)
		session.Version++
		session.UpdatedAt = s.now().UTC()

		return putSession(txn, session)
	})
}

// UpsertVersion records one generation attempt for an artifact kind,
// replacing in place when the generation id already exists and truncating the
// history to the most recent entries.
func (s *Store) UpsertVersion(id core.SessionID, owner core.OwnerID, kind core.ArtifactKind, version core.GenerationVersion) error {
	return s.db.Update(func(txn *badger.Txn) error {
		session, err := getOwnedSession(txn, id, owner)
		if err != nil {
			return err
		}

		if session.Versions == nil {
			session.Versions = map[core.ArtifactKind][]core.GenerationVersion{}
		}
		session.Versions[kind] = UpsertVersionList(session.Versions[kind], version)
		session.Version++
		session.UpdatedAt = s.now().UTC()

		return putSession(txn, session)
	})
}

// Delete removes the owner's session record.
func (s *Store) Delete(id core.SessionID, owner core.OwnerID) error {
	return s.db.Update(func(txn *badger.Txn) error {
		if _, err := getOwnedSession(txn, id, owner); err != nil {
			return err
		}
		return txn.Delete(sessionKey(id))
	})
}

// DeleteGeneration removes one version entry from an artifact kind's history.
func (s *Store) DeleteGeneration(id core.SessionID, owner core.OwnerID, kind core.ArtifactKind, generationID core.GenerationID) error {
	return s.db.Update(func(txn *badger.Txn) error {
		session, err := getOwnedSession(txn, id, owner)
		if err != nil {
			return err
		}

		versions := session.Versions[kind]
		filtered := versions[:0]
		for _, v := range versions {
			if v.GenerationID != generationID {
				filtered = append(filtered, v)
			}
		}

		if len(filtered) == len(versions) {
			return nil
		}

		session.Versions[kind] = filtered
		session.Version++
		session.UpdatedAt = s.now().UTC()

		return putSession(txn, session)
	})
}

// UpsertVersionList replaces the entry with the same generation id in place,
// otherwise appends, then keeps only the newest MaxVersionsPerKind entries.
func UpsertVersionList(versions []core.GenerationVersion, version core.GenerationVersion) []core.GenerationVersion {
	for i, existing := range versions {
		if existing.GenerationID == version.GenerationID {
			versions[i] = version
			return versions
		}
	}

	versions = append(versions, version)
	if len(versions) > core.MaxVersionsPerKind {
		versions = versions[len(versions)-core.MaxVersionsPerKind:]
	}

	return versions
}

func mergeUpdate(session *core.Session, update Update) {
	if update.Status != nil {
		session.Status = *update.Status
	}

	if len(update.Artifacts) > 0 {
		if session.Artifacts == nil {
			session.Artifacts = map[string]string{}
		}
		for name, ref := range update.Artifacts {
			session.Artifacts[name] = ref
		}
	}

	if len(update.Metadata) > 0 {
		if session.Metadata == nil {
			session.Metadata = map[string]string{}
		}
		for key, value := range update.Metadata {
			if value == core.MetadataClear {
				delete(session.Metadata, key)
				continue
			}
			session.Metadata[key] = value
		}
	}

	if update.ProcessingStartedAt != nil {
		session.ProcessingStartedAt = update.ProcessingStartedAt
	}
	if update.ProcessingDeadline != nil {
		session.ProcessingDeadline = update.ProcessingDeadline
	}
	if update.ClearProcessing {
		session.ProcessingStartedAt = nil
		session.ProcessingDeadline = nil
	}
}

func getSession(txn *badger.Txn, id core.SessionID) (core.Session, error) {
	item, err := txn.Get(sessionKey(id))
	if err == badger.ErrKeyNotFound {
		return core.Session{}, fmt.Errorf("session %s: %w", id, faults.ErrSessionNotFound)
	}
	if err != nil {
		return core.Session{}, fmt.Errorf("load session %s: %w", id, err)
	}

	raw, err := item.ValueCopy(nil)
	if err != nil {
		return core.Session{}, fmt.Errorf("load session %s: %w", id, err)
	}

	var session core.Session
	if err := json.Unmarshal(raw, &session); err != nil {
		return core.Session{}, fmt.Errorf("parse session record: %w", err)
	}

	return session, nil
}

func getOwnedSession(txn *badger.Txn, id core.SessionID, owner core.OwnerID) (core.Session, error) {
	session, err := getSession(txn, id)
	if err != nil {
		return core.Session{}, err
	}

	if session.OwnerID != owner {
		return core.Session{}, fmt.Errorf("session %s: %w", id, faults.ErrOwnershipMismatch)
	}

	return session, nil
}

func putSession(txn *badger.Txn, session core.Session) error {
	raw, err := json.Marshal(session)
	if err != nil {
		return fmt.Errorf("marshal session record: %w", err)
	}

	return txn.Set(sessionKey(session.ID), raw)
}

func sortSessionsNewestFirst(sessions []core.Session) {
	sort.Slice(sessions, func(i, j int) bool {
		return sessions[i].CreatedAt.After(sessions[j].CreatedAt)
	})
}
