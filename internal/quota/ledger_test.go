package quota

import (
	"testing"
	"time"

	"github.com/dgraph-io/badger/v4"
	"github.com/stretchr/testify/require"

	"github.com/tailord/tailord/internal/cache"
	"github.com/tailord/tailord/internal/core"
	"github.com/tailord/tailord/internal/faults"
)

func openTestLedger(t *testing.T, defaultBudget int) *BadgerLedger {
	t.Helper()

	opts := badger.DefaultOptions(t.TempDir()).WithLogger(nil)
	db, err := badger.Open(opts)
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })

	return NewBadgerLedger(db, defaultBudget, cache.New[core.OwnerID, int](16, time.Minute))
}

func TestPlaceHoldReservesImmediately(t *testing.T) {
	ledger := openTestLedger(t, 3)

	require.NoError(t, ledger.PlaceHold("alice", "s1:r1", 1))

	remaining, err := ledger.Remaining("alice")
	require.NoError(t, err)
	require.Equal(t, 2, remaining)
}

func TestPlaceHoldQuotaExceeded(t *testing.T) {
	ledger := openTestLedger(t, 0)

	err := ledger.PlaceHold("alice", "s1:r1", 1)
	require.ErrorIs(t, err, faults.ErrQuotaExceeded)

	remaining, err := ledger.Remaining("alice")
	require.NoError(t, err)
	require.Equal(t, 0, remaining)
}

func TestCommitIsPermanent(t *testing.T) {
	ledger := openTestLedger(t, 2)

	require.NoError(t, ledger.PlaceHold("alice", "s1:r1", 1))
	require.NoError(t, ledger.CommitHold("alice", "s1:r1"))

	// Releasing a committed hold must not refund anything.
	require.NoError(t, ledger.ReleaseHold("alice", "s1:r1", true))

	remaining, err := ledger.Remaining("alice")
	require.NoError(t, err)
	require.Equal(t, 1, remaining)
}

func TestReleaseWithRefund(t *testing.T) {
	ledger := openTestLedger(t, 2)

	require.NoError(t, ledger.PlaceHold("alice", "s1:r1", 1))
	require.NoError(t, ledger.ReleaseHold("alice", "s1:r1", true))

	remaining, err := ledger.Remaining("alice")
	require.NoError(t, err)
	require.Equal(t, 2, remaining)

	// Double release is a no-op, not a second refund.
	require.NoError(t, ledger.ReleaseHold("alice", "s1:r1", true))

	remaining, err = ledger.Remaining("alice")
	require.NoError(t, err)
	require.Equal(t, 2, remaining)
}

func TestReleaseWithoutRefund(t *testing.T) {
	ledger := openTestLedger(t, 2)

	require.NoError(t, ledger.PlaceHold("alice", "s1:r1", 1))
	require.NoError(t, ledger.ReleaseHold("alice", "s1:r1", false))

	remaining, err := ledger.Remaining("alice")
	require.NoError(t, err)
	require.Equal(t, 1, remaining)
}

func TestReleaseUnknownHoldIsNoop(t *testing.T) {
	ledger := openTestLedger(t, 2)
	require.NoError(t, ledger.ReleaseHold("alice", "missing", true))
	require.NoError(t, ledger.CommitHold("alice", "missing"))
}

func TestConcurrentAttemptKeysDoNotCollide(t *testing.T) {
	ledger := openTestLedger(t, 2)

	require.NoError(t, ledger.PlaceHold("alice", "s1:r1", 1))
	require.NoError(t, ledger.PlaceHold("alice", "s1:r2", 1))

	require.NoError(t, ledger.ReleaseHold("alice", "s1:r1", true))
	require.NoError(t, ledger.CommitHold("alice", "s1:r2"))

	remaining, err := ledger.Remaining("alice")
	require.NoError(t, err)
	require.Equal(t, 1, remaining)
}

func TestGrant(t *testing.T) {
	ledger := openTestLedger(t, 1)

	remaining, err := ledger.Grant("alice", 5)
	require.NoError(t, err)
	require.Equal(t, 6, remaining)

	remaining, err = ledger.Remaining("alice")
	require.NoError(t, err)
	require.Equal(t, 6, remaining)
}

func TestRemainingCacheInvalidatedByMutation(t *testing.T) {
	ledger := openTestLedger(t, 4)

	remaining, err := ledger.Remaining("alice")
	require.NoError(t, err)
	require.Equal(t, 4, remaining)

	require.NoError(t, ledger.PlaceHold("alice", "s1:r1", 1))

	remaining, err = ledger.Remaining("alice")
	require.NoError(t, err)
	require.Equal(t, 3, remaining)
}
