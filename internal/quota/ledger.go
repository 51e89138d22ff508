// Package quota implements admission control for generation attempts: a
// hold/commit/release ledger over the owner's remaining budget, persisted in
// badger so reservations survive restarts.
package quota

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/dgraph-io/badger/v4"

	"github.com/tailord/tailord/internal/cache"
	"github.com/tailord/tailord/internal/core"
	"github.com/tailord/tailord/internal/faults"
)

type HoldState string

const (
	HoldOpen      HoldState = "open"
	HoldCommitted HoldState = "committed"
	HoldReleased  HoldState = "released"
)

type holdRecord struct {
	Owner    core.OwnerID `json:"owner"`
	Key      string       `json:"key"`
	Amount   int          `json:"amount"`
	State    HoldState    `json:"state"`
	PlacedAt time.Time    `json:"placed_at"`
}

type budgetRecord struct {
	Owner     core.OwnerID `json:"owner"`
	Remaining int          `json:"remaining"`
	UpdatedAt time.Time    `json:"updated_at"`
}

// Ledger is the admission-control contract the orchestrator and the session
// store's stale recovery depend on.
type Ledger interface {
	PlaceHold(owner core.OwnerID, holdKey string, amount int) error
	CommitHold(owner core.OwnerID, holdKey string) error
	ReleaseHold(owner core.OwnerID, holdKey string, refund bool) error
	Remaining(owner core.OwnerID) (int, error)
}

// BadgerLedger stores budgets and holds in badger transactions. A
// reservation is visible to the next quota check for the same owner as soon
// as PlaceHold returns.
type BadgerLedger struct {
	db            *badger.DB
	defaultBudget int
	remaining     *cache.Cache[core.OwnerID, int]
}

func NewBadgerLedger(db *badger.DB, defaultBudget int, remaining *cache.Cache[core.OwnerID, int]) *BadgerLedger {
	return &BadgerLedger{
		db:            db,
		defaultBudget: defaultBudget,
		remaining:     remaining,
	}
}

func budgetKey(owner core.OwnerID) []byte {
	return []byte("quota/budget/" + string(owner))
}

func holdKey(owner core.OwnerID, key string) []byte {
	return []byte("quota/hold/" + string(owner) + "/" + key)
}

// PlaceHold atomically reserves amount units of the owner's budget, failing
// with faults.ErrQuotaExceeded when the remaining budget is short.
func (l *BadgerLedger) PlaceHold(owner core.OwnerID, key string, amount int) error {
	if amount <= 0 {
		return fmt.Errorf("place hold: amount must be positive, got %d", amount)
	}

	err := l.db.Update(func(txn *badger.Txn) error {
		budget, err := l.loadBudget(txn, owner)
		if err != nil {
			return err
		}

		if amount > budget.Remaining {
			return fmt.Errorf("place hold for %s: %w", owner, faults.ErrQuotaExceeded)
		}

		budget.Remaining -= amount
		budget.UpdatedAt = time.Now().UTC()

		if err := putJSON(txn, budgetKey(owner), budget); err != nil {
			return err
		}

		hold := holdRecord{
			Owner:    owner,
			Key:      key,
			Amount:   amount,
			State:    HoldOpen,
			PlacedAt: time.Now().UTC(),
		}

		return putJSON(txn, holdKey(owner, key), hold)
	})
	if err != nil {
		return err
	}

	l.remaining.Delete(owner)
	return nil
}

// CommitHold converts an open reservation into permanent consumption. Already
// committed or released holds, and unknown keys, are a no-op.
func (l *BadgerLedger) CommitHold(owner core.OwnerID, key string) error {
	return l.db.Update(func(txn *badger.Txn) error {
		hold, found, err := l.loadHold(txn, owner, key)
		if err != nil {
			return err
		}
		if !found || hold.State != HoldOpen {
			return nil
		}

		hold.State = HoldCommitted
		return putJSON(txn, holdKey(owner, key), hold)
	})
}

// ReleaseHold cancels an open reservation, returning the amount to the
// owner's budget when refund is true. Not-open and unknown holds are a no-op.
func (l *BadgerLedger) ReleaseHold(owner core.OwnerID, key string, refund bool) error {
	err := l.db.Update(func(txn *badger.Txn) error {
		hold, found, err := l.loadHold(txn, owner, key)
		if err != nil {
			return err
		}
		if !found || hold.State != HoldOpen {
			return nil
		}

		hold.State = HoldReleased
		if err := putJSON(txn, holdKey(owner, key), hold); err != nil {
			return err
		}

		if !refund {
			return nil
		}

		budget, err := l.loadBudget(txn, owner)
		if err != nil {
			return err
		}

		budget.Remaining += hold.Amount
		budget.UpdatedAt = time.Now().UTC()

		return putJSON(txn, budgetKey(owner), budget)
	})
	if err != nil {
		return err
	}

	l.remaining.Delete(owner)
	return nil
}

// Remaining reports the owner's current budget, seeding the default on first
// contact. Reads go through the TTL cache; any hold mutation invalidates it.
func (l *BadgerLedger) Remaining(owner core.OwnerID) (int, error) {
	if cached, ok := l.remaining.Get(owner); ok {
		return cached, nil
	}

	var remaining int
	err := l.db.Update(func(txn *badger.Txn) error {
		budget, err := l.loadBudget(txn, owner)
		if err != nil {
			return err
		}

		remaining = budget.Remaining
		return putJSON(txn, budgetKey(owner), budget)
	})
	if err != nil {
		return 0, err
	}

	l.remaining.Set(owner, remaining)
	return remaining, nil
}

// Grant adds delta units to the owner's budget. Used by the operator CLI.
func (l *BadgerLedger) Grant(owner core.OwnerID, delta int) (int, error) {
	var remaining int
	err := l.db.Update(func(txn *badger.Txn) error {
		budget, err := l.loadBudget(txn, owner)
		if err != nil {
			return err
		}

		budget.Remaining += delta
		if budget.Remaining < 0 {
			budget.Remaining = 0
		}
		budget.UpdatedAt = time.Now().UTC()
		remaining = budget.Remaining

		return putJSON(txn, budgetKey(owner), budget)
	})
	if err != nil {
		return 0, err
	}

	l.remaining.Delete(owner)
	return remaining, nil
}

func (l *BadgerLedger) loadBudget(txn *badger.Txn, owner core.OwnerID) (budgetRecord, error) {
	budget := budgetRecord{
		Owner:     owner,
		Remaining: l.defaultBudget,
		UpdatedAt: time.Now().UTC(),
	}

	item, err := txn.Get(budgetKey(owner))
	if err == badger.ErrKeyNotFound {
		return budget, nil
	}
	if err != nil {
		return budget, fmt.Errorf("load budget: %w", err)
	}

	raw, err := item.ValueCopy(nil)
	if err != nil {
		return budget, fmt.Errorf("load budget: %w", err)
	}

	if err := json.Unmarshal(raw, &budget); err != nil {
		return budget, fmt.Errorf("parse budget record: %w", err)
	}

	return budget, nil
}

func (l *BadgerLedger) loadHold(txn *badger.Txn, owner core.OwnerID, key string) (holdRecord, bool, error) {
	var hold holdRecord

	item, err := txn.Get(holdKey(owner, key))
	if err == badger.ErrKeyNotFound {
		return hold, false, nil
	}
	if err != nil {
		return hold, false, fmt.Errorf("load hold: %w", err)
	}

	raw, err := item.ValueCopy(nil)
	if err != nil {
		return hold, false, fmt.Errorf("load hold: %w", err)
	}

	if err := json.Unmarshal(raw, &hold); err != nil {
		return hold, false, fmt.Errorf("parse hold record: %w", err)
	}

	return hold, true, nil
}

func putJSON(txn *badger.Txn, key []byte, value any) error {
	raw, err := json.Marshal(value)
	if err != nil {
		return fmt.Errorf("marshal record: %w", err)
	}

	return txn.Set(key, raw)
}

var _ Ledger = (*BadgerLedger)(nil)
