package jetton

import (
	"context"
	"fmt"
	"math/rand"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"jetton-ledger/internal/codec"
	"jetton-ledger/internal/domain"
	"jetton-ledger/internal/idhash"
	"jetton-ledger/internal/vm"
)

func TestCheckSupply_RandomFlows(t *testing.T) {
	e := newEnv(t)
	rng := rand.New(rand.NewSource(7))

	owners := []domain.Address{e.deployer, e.notDeployer}
	for i := 0; i < 3; i++ {
		owners = append(owners, e.holder(fmt.Sprintf("user-%d", i)))
	}
	pick := func() domain.Address { return owners[rng.Intn(len(owners))] }
	units := func() string { return fmt.Sprintf("%d", 1+rng.Intn(400)) }

	for _, o := range owners {
		e.mint(o, "500")
	}

	for i := 0; i < 60; i++ {
		switch rng.Intn(5) {
		case 0:
			e.mint(pick(), units())
		case 1, 2:
			forward := "0"
			if rng.Intn(2) == 0 {
				forward = "0.01"
			}
			e.transfer(pick(), pick(), units(), forward, "0")
		case 3:
			owner := pick()
			e.submit(BurnRequest(owner, e.master, codec.Burn{Amount: domain.Nano(units()), ResponseDestination: owner}, domain.ZeroCoins))
		case 4:
			e.submit(BurnJettonsRequest(e.deployer, e.master, codec.Mint{
				To:          pick(),
				Amount:      domain.Nano(units()),
				TotalAmount: domain.Nano("0.1"),
			}))
		}
	}

	report, err := CheckSupply(context.Background(), e.accounts, nil, e.master)
	require.NoError(t, err)
	assert.True(t, report.Consistent, "violations: %v", report.Violations)
	assert.Equal(t, len(owners), report.Wallets)

	sum := domain.ZeroCoins
	for _, o := range owners {
		sum, err = sum.Add(e.jettons(o))
		require.NoError(t, err)
	}
	assert.Equal(t, e.supply().String(), sum.String())
}

func TestCheckSupply_DetectsMismatch(t *testing.T) {
	e := newEnv(t)
	e.mint(e.notDeployer, "100")

	wallet, err := e.accounts.Get(context.Background(), e.wallet(e.notDeployer))
	require.NoError(t, err)
	var st WalletState
	require.NoError(t, vm.DecodeState(wallet.State, &st))
	st.Balance = domain.Nano("99")
	wallet.State = vm.MustEncodeState(st)
	require.NoError(t, e.accounts.Put(context.Background(), wallet))

	report, err := CheckSupply(context.Background(), e.accounts, nil, e.master)
	require.Error(t, err)
	require.NotNil(t, report)
	assert.False(t, report.Consistent)
	assert.Len(t, report.Violations, 1)
	assert.Equal(t, nano("99"), report.WalletSum.String())
}

func TestCheckSupply_UnknownMaster(t *testing.T) {
	e := newEnv(t)

	_, err := CheckSupply(context.Background(), e.accounts, nil, e.deployer)
	assert.ErrorIs(t, err, ErrNotInstantiated)
}

func TestCheckSupply_ConcurrentSubmissions(t *testing.T) {
	e := newEnv(t)

	owners := []domain.Address{e.deployer, e.notDeployer}
	for i := 0; i < 4; i++ {
		owners = append(owners, e.holder(fmt.Sprintf("racer-%d", i)))
	}
	for _, o := range owners {
		e.mint(o, "1000")
	}

	const perWorker = 15
	var wg sync.WaitGroup
	errs := make(chan error, len(owners)*perWorker)
	for w, owner := range owners {
		wg.Add(1)
		go func(w int, owner domain.Address) {
			defer wg.Done()
			rng := rand.New(rand.NewSource(int64(w)))
			for i := 0; i < perWorker; i++ {
				var req vm.ExternalRequest
				switch rng.Intn(3) {
				case 0:
					req = TransferRequest(owner, e.master, codec.Transfer{
						Amount:              domain.Nano(fmt.Sprintf("%d", 1+rng.Intn(50))),
						Destination:         owners[rng.Intn(len(owners))],
						ResponseDestination: owner,
					}, domain.ZeroCoins)
				case 1:
					req = BurnRequest(owner, e.master, codec.Burn{
						Amount:              domain.Nano(fmt.Sprintf("%d", 1+rng.Intn(20))),
						ResponseDestination: owner,
					}, domain.ZeroCoins)
				default:
					req = MintRequest(e.deployer, e.master, codec.Mint{
						To:            owner,
						Amount:        domain.Nano(fmt.Sprintf("%d", 1+rng.Intn(30))),
						ForwardAmount: domain.Nano("0.01"),
						TotalAmount:   domain.Nano("0.1"),
					})
				}
				if _, err := e.machine.Submit(context.Background(), req); err != nil {
					errs <- err
					return
				}
			}
		}(w, owner)
	}
	wg.Wait()
	close(errs)
	for err := range errs {
		require.NoError(t, err)
	}
	e.drain()

	report, err := CheckSupply(context.Background(), e.accounts, nil, e.master)
	require.NoError(t, err)
	assert.True(t, report.Consistent, "violations: %v", report.Violations)

	sum := domain.ZeroCoins
	for _, o := range owners {
		sum, err = sum.Add(e.jettons(o))
		require.NoError(t, err)
	}
	assert.Equal(t, e.supply().String(), sum.String())

	pending, err := e.accounts.Outbox(context.Background())
	require.NoError(t, err)
	assert.Empty(t, pending)
}

func TestGetWalletAddress_StableAcrossInstantiation(t *testing.T) {
	e := newEnv(t)
	deriver, err := idhash.NewDeriver(8)
	require.NoError(t, err)
	cached := NewClient(e.machine, deriver)

	before := e.client.GetWalletAddress(e.notDeployer, e.master)
	assert.Equal(t, before, cached.GetWalletAddress(e.notDeployer, e.master))
	assert.Equal(t, before, WalletAddress(nil, e.notDeployer, e.master))
	_, err = e.client.GetWalletData(context.Background(), before)
	require.ErrorIs(t, err, ErrNotInstantiated)

	e.mint(e.notDeployer, "10")

	after := e.client.GetWalletAddress(e.notDeployer, e.master)
	assert.Equal(t, before, after)
	assert.Equal(t, before, cached.GetWalletAddress(e.notDeployer, e.master))
	assert.Equal(t, before, WalletAddress(deriver, e.notDeployer, e.master))
	assert.Equal(t, 1, deriver.Len())

	data, err := cached.GetWalletData(context.Background(), after)
	require.NoError(t, err)
	assert.Equal(t, e.notDeployer, data.Owner)
	assert.Equal(t, nano("10"), data.Balance.String())

	// Owners on another workchain still map to a basechain wallet.
	other := domain.NewAddress(domain.MasterchainID, e.notDeployer.Hash)
	assert.Equal(t, domain.BasechainID, cached.GetWalletAddress(other, e.master).Workchain)
	assert.NotEqual(t, before, cached.GetWalletAddress(other, e.master))
}
