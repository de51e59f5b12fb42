package jetton

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"jetton-ledger/internal/domain"
	"jetton-ledger/internal/storage"
	"jetton-ledger/internal/storage/memory"
	"jetton-ledger/internal/vm"
)

var errDiskGone = errors.New("disk gone")

// brokenStore fails every commit of the account at target while armed.
type brokenStore struct {
	*memory.AccountStore
	armed  atomic.Bool
	target atomic.Pointer[domain.Address]
}

func (s *brokenStore) Commit(ctx context.Context, a *domain.Account, consumed string, outs []domain.Message) error {
	if t := s.target.Load(); s.armed.Load() && a != nil && t != nil && a.Address == *t {
		return errDiskGone
	}
	return s.AccountStore.Commit(ctx, a, consumed, outs)
}

func TestRecovery_InFlightTransferReplayedAfterRestart(t *testing.T) {
	var broken *brokenStore
	e := newEnvWithStore(t, func(a *memory.AccountStore) storage.AccountStore {
		broken = &brokenStore{AccountStore: a}
		return broken
	})
	ctx := context.Background()

	e.mint(e.deployer, "100")
	target := e.wallet(e.notDeployer)
	broken.target.Store(&target)
	broken.armed.Store(true)

	e.transfer(e.deployer, e.notDeployer, "30", "0", "0")

	pending, err := e.accounts.Outbox(ctx)
	require.NoError(t, err)
	require.Len(t, pending, 1)
	assert.Equal(t, target, pending[0].To)
	assert.Equal(t, nano("70"), e.jettons(e.deployer).String())
	assert.True(t, e.jettons(e.notDeployer).IsZero())

	report, err := CheckSupply(ctx, e.accounts, nil, e.master)
	require.Error(t, err)
	assert.False(t, report.Consistent)

	// Restart over the surviving store.
	broken.armed.Store(false)
	restarted, err := vm.New(ctx, e.accounts, vm.WithTraceSink(e.rec))
	require.NoError(t, err)
	Install(restarted, DefaultConfig())
	t.Cleanup(func() {
		ctx, cancel := context.WithTimeout(context.Background(), time.Second)
		defer cancel()
		_ = restarted.Close(ctx)
	})

	n, err := restarted.Resume(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, n)
	drainCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	require.NoError(t, restarted.Drain(drainCtx))

	client := NewClient(restarted, nil)
	got, err := client.GetBalance(ctx, e.notDeployer, e.master)
	require.NoError(t, err)
	assert.Equal(t, nano("30"), got.String())

	credit := e.exit(pending[0].TraceID, target, domain.OpInternalTransfer)
	assert.False(t, credit.Aborted)
	assert.Greater(t, credit.LT, pending[0].CreatedLT)

	pending, err = e.accounts.Outbox(ctx)
	require.NoError(t, err)
	assert.Empty(t, pending)
	e.requireConsistent()
}
