package jetton

import (
	"context"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"jetton-ledger/internal/codec"
	"jetton-ledger/internal/domain"
	"jetton-ledger/internal/vm"
)

func (e *env) transfer(owner, to domain.Address, amount, forward string, value string) string {
	e.t.Helper()
	req := TransferRequest(owner, e.master, codec.Transfer{
		Amount:              domain.Nano(amount),
		Destination:         to,
		ResponseDestination: owner,
		ForwardAmount:       domain.Nano(forward),
	}, domain.Nano(value))
	return e.submit(req)
}

func TestWallet_OwnerTransfers(t *testing.T) {
	e := newEnv(t)
	e.mint(e.deployer, "1000")

	trace := e.transfer(e.deployer, e.notDeployer, "100", "0.05", "0")

	assert.Equal(t, nano("900"), e.jettons(e.deployer).String())
	assert.Equal(t, nano("100"), e.jettons(e.notDeployer).String())

	credit := e.exit(trace, e.wallet(e.notDeployer), domain.OpInternalTransfer)
	assert.True(t, credit.Deployed)
	assert.Equal(t, e.wallet(e.deployer), credit.Sender)

	notification := e.exit(trace, e.notDeployer, domain.OpTransferNotification)
	assert.Equal(t, nano("0.05"), notification.Value.String())
	assert.True(t, e.has(trace, e.deployer, domain.OpExcesses))
	e.requireConsistent()
}

func TestWallet_NoForwardAmountNoNotification(t *testing.T) {
	e := newEnv(t)
	e.mint(e.deployer, "1000")

	trace := e.transfer(e.deployer, e.notDeployer, "100", "0", "0")

	assert.Equal(t, nano("100"), e.jettons(e.notDeployer).String())
	assert.False(t, e.has(trace, e.notDeployer, domain.OpTransferNotification))
	assert.True(t, e.has(trace, e.deployer, domain.OpExcesses))
}

func TestWallet_TransferRejections(t *testing.T) {
	tests := []struct {
		name string
		send func(e *env) string
		code domain.ExitCode
	}{
		{
			name: "not owner",
			send: func(e *env) string {
				return e.submit(vm.ExternalRequest{
					From:   e.notDeployer,
					To:     e.wallet(e.deployer),
					Value:  domain.Nano("0.2"),
					Bounce: true,
					Body: codec.Transfer{
						Amount:              domain.Nano("1"),
						Destination:         e.notDeployer,
						ResponseDestination: e.notDeployer,
					}.Encode(),
				})
			},
			code: domain.ExitUnauthorizedTransfer,
		},
		{
			name: "more than balance",
			send: func(e *env) string { return e.transfer(e.deployer, e.notDeployer, "1001", "0", "0") },
			code: domain.ExitNotEnoughJettons,
		},
		{
			name: "masterchain destination",
			send: func(e *env) string {
				to := domain.NewAddress(domain.MasterchainID, e.notDeployer.Hash)
				return e.transfer(e.deployer, to, "1", "0", "0")
			},
			code: domain.ExitWrongWorkchain,
		},
		{
			name: "no destination",
			send: func(e *env) string { return e.transfer(e.deployer, domain.NoneAddress, "1", "0", "0") },
			code: domain.ExitWrongWorkchain,
		},
		{
			name: "malformed forward payload",
			send: func(e *env) string {
				body := codec.NewWriter(domain.OpTransfer, 0).
					Coins(domain.Nano("1")).
					Address(e.notDeployer).
					Address(e.deployer).
					MaybeRef(nil).
					Coins(domain.ZeroCoins).
					Bytes()
				return e.raw(e.deployer, e.wallet(e.deployer), "0.2", body)
			},
			code: domain.ExitMalformedForwardPayload,
		},
		{
			name: "value does not cover the forward amount",
			send: func(e *env) string { return e.transfer(e.deployer, e.notDeployer, "1", "0.3", "0.3") },
			code: domain.ExitNotEnoughTons,
		},
		{
			name: "value just below the cost",
			// 0.3 + 2*0.001 + 2*0.005 + 0.01
			send: func(e *env) string { return e.transfer(e.deployer, e.notDeployer, "1", "0.3", "0.322") },
			code: domain.ExitNotEnoughTons,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			e := newEnv(t)
			e.mint(e.deployer, "1000")

			trace := tt.send(e)

			tx := e.exit(trace, e.wallet(e.deployer), domain.OpTransfer)
			assert.True(t, tx.Aborted)
			assert.Equal(t, tt.code, tx.ExitCode)
			assert.Equal(t, nano("1000"), e.jettons(e.deployer).String())
			assert.True(t, e.jettons(e.notDeployer).IsZero())
			// The request bounced back to its sender.
			assert.True(t, e.has(trace, tx.Sender, domain.OpBounced))
		})
	}
}

func TestWallet_TransferAtExactCostSucceeds(t *testing.T) {
	e := newEnv(t)
	e.mint(e.deployer, "1000")

	trace := e.transfer(e.deployer, e.notDeployer, "1", "0.3", "0.322000001")

	assert.False(t, e.exit(trace, e.wallet(e.deployer), domain.OpTransfer).Aborted)
	assert.Equal(t, nano("1"), e.jettons(e.notDeployer).String())
	e.requireConsistent()
}

func TestWallet_InternalTransferOnlyFromWalletsOrMaster(t *testing.T) {
	e := newEnv(t)
	e.mint(e.deployer, "1000")

	body := codec.InternalTransfer{
		Amount:          domain.Nano("500"),
		From:            e.notDeployer,
		ResponseAddress: e.notDeployer,
	}.Encode()
	trace := e.raw(e.notDeployer, e.wallet(e.deployer), "0.1", body)

	assert.Equal(t, domain.ExitUnauthorizedIncomingTransfer, e.exit(trace, e.wallet(e.deployer), domain.OpInternalTransfer).ExitCode)
	assert.Equal(t, nano("1000"), e.jettons(e.deployer).String())
}

func TestWallet_ForwardPayloadReachesOwner(t *testing.T) {
	e := newEnv(t)

	const spyCode domain.CodeID = "test/spy"
	var (
		mu     sync.Mutex
		bodies [][]byte
	)
	e.machine.Register(spyCode, vm.ContractFunc(func(_ *vm.Context, msg domain.Message) error {
		mu.Lock()
		defer mu.Unlock()
		if op, ok := codec.PeekOpcode(msg.Body); ok && op == domain.OpTransferNotification {
			bodies = append(bodies, msg.Body)
		}
		return nil
	}))
	init := domain.StateInit{Code: spyCode, Data: []byte("spy")}
	spy := e.machine.AddressOf(domain.BasechainID, init)
	e.submit(vm.ExternalRequest{From: e.deployer, To: spy, Value: domain.Nano("0.5"), Init: &init})

	e.mint(e.deployer, "1000")
	payload := []byte("hello from deployer")
	trace := e.submit(TransferRequest(e.deployer, e.master, codec.Transfer{
		QueryID:             42,
		Amount:              domain.Nano("250"),
		Destination:         spy,
		ResponseDestination: e.deployer,
		ForwardAmount:       domain.Nano("0.05"),
		ForwardPayload:      payload,
	}, domain.ZeroCoins))

	mu.Lock()
	defer mu.Unlock()
	require.Len(t, bodies, 1)
	want := codec.TransferNotification{
		QueryID:        42,
		Amount:         domain.Nano("250"),
		Sender:         e.deployer,
		ForwardPayload: payload,
	}.Encode()
	assert.Equal(t, want, bodies[0])
	assert.Equal(t, uint64(42), e.exit(trace, spy, domain.OpTransferNotification).QueryID)
	assert.True(t, e.has(trace, e.deployer, domain.OpExcesses))
}

func TestWallet_OwnerBurns(t *testing.T) {
	e := newEnv(t)
	e.mint(e.deployer, "1000")

	trace := e.submit(BurnRequest(e.deployer, e.master, codec.Burn{Amount: domain.Nano("300"), ResponseDestination: e.deployer}, domain.ZeroCoins))

	assert.False(t, e.exit(trace, e.wallet(e.deployer), domain.OpBurn).Aborted)
	assert.Equal(t, nano("700"), e.jettons(e.deployer).String())
	assert.Equal(t, nano("700"), e.supply().String())
	assert.True(t, e.has(trace, e.deployer, domain.OpExcesses))
	e.requireConsistent()
}

func TestWallet_BurnRejections(t *testing.T) {
	e := newEnv(t)
	e.mint(e.deployer, "1000")

	notOwner := vm.ExternalRequest{
		From:   e.notDeployer,
		To:     e.wallet(e.deployer),
		Value:  WalletRequestAmount,
		Bounce: true,
		Body:   codec.Burn{Amount: domain.Nano("1"), ResponseDestination: e.notDeployer}.Encode(),
	}
	trace := e.submit(notOwner)
	assert.Equal(t, domain.ExitUnauthorizedTransfer, e.exit(trace, e.wallet(e.deployer), domain.OpBurn).ExitCode)

	trace = e.submit(BurnRequest(e.deployer, e.master, codec.Burn{Amount: domain.Nano("1001")}, domain.ZeroCoins))
	assert.Equal(t, domain.ExitNotEnoughJettons, e.exit(trace, e.wallet(e.deployer), domain.OpBurn).ExitCode)

	// 2*0.005 + 0.001 is not strictly covered.
	trace = e.submit(BurnRequest(e.deployer, e.master, codec.Burn{Amount: domain.Nano("1")}, domain.Nano("0.011")))
	assert.Equal(t, domain.ExitNotEnoughTons, e.exit(trace, e.wallet(e.deployer), domain.OpBurn).ExitCode)

	assert.Equal(t, nano("1000"), e.jettons(e.deployer).String())
	assert.Equal(t, nano("1000"), e.supply().String())
}

func TestWallet_Withdraw(t *testing.T) {
	e := newEnv(t)
	e.mint(e.deployer, "1000")
	wallet := e.wallet(e.deployer)
	require.Equal(t, nano("0.01"), e.funds(wallet).String())

	_, err := e.machine.Fund(context.Background(), wallet, domain.Nano("1"))
	require.NoError(t, err)
	e.drain()
	require.Equal(t, nano("1.005"), e.funds(wallet).String())

	before := e.funds(e.deployer)
	trace := e.submit(WithdrawRequest(e.deployer, e.master, 3))

	assert.Equal(t, nano("0.01"), e.funds(wallet).String(), "wallet keeps exactly the reserve")
	excess := e.exit(trace, e.deployer, domain.OpExcesses)
	assert.Equal(t, nano("1.009"), excess.Value.String())
	assert.Equal(t, uint64(3), excess.QueryID)
	assert.True(t, e.funds(e.deployer).GreaterThan(before))
}

func TestWallet_NonOwnerCannotWithdraw(t *testing.T) {
	e := newEnv(t)
	e.mint(e.deployer, "1000")
	wallet := e.wallet(e.deployer)
	_, err := e.machine.Fund(context.Background(), wallet, domain.Nano("1"))
	require.NoError(t, err)
	e.drain()

	trace := e.submit(vm.ExternalRequest{
		From:   e.notDeployer,
		To:     wallet,
		Value:  GasAmount,
		Bounce: true,
		Body:   codec.EncodeQuery(domain.OpWithdrawTons, 0),
	})

	assert.Equal(t, domain.ExitUnauthorizedTransfer, e.exit(trace, wallet, domain.OpWithdrawTons).ExitCode)
	assert.True(t, e.funds(wallet).GreaterThan(domain.Nano("1")))
}

func TestWallet_FailedCreditRefundsSender(t *testing.T) {
	e := newEnv(t)
	e.mint(e.deployer, "1000")

	blocked := e.holder("blocked")
	blockedWallet := e.wallet(blocked)
	e.machine.Register(WalletCode, faulty{
		Contract: &Wallet{cfg: DefaultConfig()},
		reject: func(c *vm.Context, msg domain.Message) bool {
			op, _ := codec.PeekOpcode(msg.Body)
			return c.Self() == blockedWallet && op == domain.OpInternalTransfer
		},
	})

	trace := e.transfer(e.deployer, blocked, "100", "0.05", "0")

	credit := e.exit(trace, blockedWallet, domain.OpInternalTransfer)
	assert.True(t, credit.Aborted)
	assert.False(t, e.exit(trace, e.wallet(e.deployer), domain.OpBounced).Aborted)

	assert.Equal(t, nano("1000"), e.jettons(e.deployer).String())
	assert.True(t, e.jettons(blocked).IsZero())
	e.requireConsistent()
}

func TestWallet_FailedBurnNotificationRefundsWallet(t *testing.T) {
	e := newEnv(t)
	e.mint(e.deployer, "1000")

	master := e.master
	e.machine.Register(MasterCode, faulty{
		Contract: &Master{cfg: DefaultConfig()},
		reject: func(c *vm.Context, msg domain.Message) bool {
			op, _ := codec.PeekOpcode(msg.Body)
			return c.Self() == master && op == domain.OpBurnNotification
		},
	})

	trace := e.submit(BurnRequest(e.deployer, e.master, codec.Burn{Amount: domain.Nano("100"), ResponseDestination: e.deployer}, domain.ZeroCoins))

	assert.True(t, e.exit(trace, e.master, domain.OpBurnNotification).Aborted)
	assert.False(t, e.exit(trace, e.wallet(e.deployer), domain.OpBounced).Aborted)
	assert.Equal(t, nano("1000"), e.jettons(e.deployer).String())
	assert.Equal(t, nano("1000"), e.supply().String())
	e.requireConsistent()
}
