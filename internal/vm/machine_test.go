package vm

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"jetton-ledger/internal/codec"
	"jetton-ledger/internal/domain"
	"jetton-ledger/internal/idhash"
	"jetton-ledger/internal/storage/memory"
)

const testCode domain.CodeID = "test/v1"

const (
	opInc domain.Opcode = iota + 1
	opFail
	opOverspend
	opOverspendIgnore
	opEcho
	opPanic
	opDecode
)

type testState struct {
	N uint64 `cbor:"1,keyasint"`
}

func testContract(c *Context, msg domain.Message) error {
	if len(msg.Body) == 0 {
		return nil
	}
	op, _ := codec.PeekOpcode(msg.Body)

	st, err := Load[testState](c)
	if err != nil {
		return err
	}
	st.N++
	if err := c.Store(st); err != nil {
		return err
	}

	switch op {
	case opFail:
		return domain.Abort(99, "requested")
	case opOverspend:
		c.Send(OutMsg{To: msg.From, Value: domain.Nano("100"), Mode: PayFeesSeparately})
	case opOverspendIgnore:
		c.Send(OutMsg{To: msg.From, Value: domain.Nano("100"), Mode: PayFeesSeparately | IgnoreErrors})
	case opEcho:
		c.Send(OutMsg{To: msg.From, Mode: CarryInbound})
	case opPanic:
		panic("boom")
	case opDecode:
		_, err := codec.DecodeTransfer(msg.Body)
		return err
	}
	return nil
}

type recorder struct {
	mu  sync.Mutex
	txs []*domain.Transaction
}

func (r *recorder) Record(_ context.Context, tx *domain.Transaction) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.txs = append(r.txs, tx)
	return nil
}

// last returns the latest transaction processed by account.
func (r *recorder) last(account domain.Address) *domain.Transaction {
	r.mu.Lock()
	defer r.mu.Unlock()
	for i := len(r.txs) - 1; i >= 0; i-- {
		if r.txs[i].Account == account {
			return r.txs[i]
		}
	}
	return nil
}

type harness struct {
	t        *testing.T
	machine  *Machine
	accounts *memory.AccountStore
	rec      *recorder
	init     domain.StateInit
	contract domain.Address
}

func newHarness(t *testing.T) *harness {
	t.Helper()
	h := &harness{t: t, accounts: memory.NewAccountStore(), rec: &recorder{}}

	m, err := New(context.Background(), h.accounts, WithTraceSink(h.rec))
	require.NoError(t, err)
	m.Register(testCode, ContractFunc(testContract))
	t.Cleanup(func() {
		ctx, cancel := context.WithTimeout(context.Background(), time.Second)
		defer cancel()
		_ = m.Close(ctx)
	})

	h.machine = m
	h.init = domain.StateInit{Code: testCode, Data: MustEncodeState(testState{})}
	h.contract = m.AddressOf(domain.BasechainID, h.init)
	return h
}

func (h *harness) drain() {
	h.t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	require.NoError(h.t, h.machine.Drain(ctx))
}

func (h *harness) holder(seed, amount string) domain.Address {
	h.t.Helper()
	addr, _, err := h.machine.CreateHolder(context.Background(), seed, domain.Nano(amount))
	require.NoError(h.t, err)
	h.drain()
	return addr
}

func (h *harness) submit(from, to domain.Address, value string, bounce bool, op domain.Opcode, init *domain.StateInit) {
	h.t.Helper()
	_, err := h.machine.Submit(context.Background(), ExternalRequest{
		From:   from,
		To:     to,
		Value:  domain.Nano(value),
		Bounce: bounce,
		Init:   init,
		Body:   codec.EncodeQuery(op, 7),
	})
	require.NoError(h.t, err)
	h.drain()
}

func (h *harness) balance(addr domain.Address) domain.Coins {
	h.t.Helper()
	acct, err := h.accounts.Get(context.Background(), addr)
	require.NoError(h.t, err)
	return acct.Balance
}

func (h *harness) counter() uint64 {
	h.t.Helper()
	acct, err := h.accounts.Get(context.Background(), h.contract)
	require.NoError(h.t, err)
	var st testState
	require.NoError(h.t, DecodeState(acct.State, &st))
	return st.N
}

func assertCoins(t *testing.T, want string, got domain.Coins) {
	t.Helper()
	assert.Equal(t, domain.Nano(want).String(), got.String())
}

func TestMachine_DeployAndCommit(t *testing.T) {
	h := newHarness(t)
	a := h.holder("alice", "10")
	assertCoins(t, "9.995", h.balance(a))

	h.submit(a, h.contract, "1", true, opInc, &h.init)

	acct, err := h.accounts.Get(context.Background(), h.contract)
	require.NoError(t, err)
	assert.True(t, acct.Active)
	assert.Equal(t, testCode, acct.Code)
	assert.Equal(t, uint64(1), h.counter())
	assertCoins(t, "0.995", h.balance(h.contract))
	assertCoins(t, "8.989", h.balance(a))

	tx := h.rec.last(h.contract)
	require.NotNil(t, tx)
	assert.True(t, tx.Deployed)
	assert.False(t, tx.Aborted)
	assert.Equal(t, uint32(opInc), tx.Opcode)
	assert.Equal(t, uint64(7), tx.QueryID)
}

func TestMachine_AbortBouncesUnspentValue(t *testing.T) {
	h := newHarness(t)
	a := h.holder("alice", "10")
	h.submit(a, h.contract, "1", true, opInc, &h.init)

	h.submit(a, h.contract, "1", true, opFail, nil)

	assert.Equal(t, uint64(1), h.counter(), "state change must be discarded")
	assertCoins(t, "0.995", h.balance(h.contract))
	assertCoins(t, "8.972", h.balance(a))

	tx := h.rec.last(h.contract)
	require.NotNil(t, tx)
	assert.True(t, tx.Aborted)
	assert.Equal(t, domain.ExitCode(99), tx.ExitCode)
	assert.Equal(t, 1, tx.OutMessages)

	back := h.rec.last(a)
	require.NotNil(t, back)
	assert.True(t, back.Bounced)
	assert.Equal(t, uint32(domain.OpBounced), back.Opcode)
	assert.Equal(t, uint64(7), back.QueryID)
	assert.Equal(t, tx.TraceID, back.TraceID)
}

func TestMachine_AbortNonBounceableKeepsValue(t *testing.T) {
	h := newHarness(t)
	a := h.holder("alice", "10")
	h.submit(a, h.contract, "1", true, opInc, &h.init)

	h.submit(a, h.contract, "1", false, opFail, nil)

	assert.Equal(t, uint64(1), h.counter())
	assertCoins(t, "1.99", h.balance(h.contract))
}

func TestMachine_DeployRolledBackOnAbort(t *testing.T) {
	h := newHarness(t)
	a := h.holder("alice", "10")

	h.submit(a, h.contract, "1", true, opFail, &h.init)

	_, err := h.accounts.Get(context.Background(), h.contract)
	assert.Error(t, err, "aborted deployment must not materialize the account")
	assertCoins(t, "9.978", h.balance(a))
}

func TestMachine_NoContract(t *testing.T) {
	h := newHarness(t)
	a := h.holder("alice", "10")
	nowhere := idhash.HolderAddress(domain.BasechainID, "nowhere")

	// Bounceable: value returns less the forward fee.
	h.submit(a, nowhere, "1", true, opInc, nil)
	tx := h.rec.last(nowhere)
	require.NotNil(t, tx)
	assert.Equal(t, domain.ExitNoContract, tx.ExitCode)
	assertCoins(t, "9.983", h.balance(a))
	_, err := h.accounts.Get(context.Background(), nowhere)
	assert.Error(t, err)

	// Non-bounceable: value stays on the uninitialized account.
	h.submit(a, nowhere, "1", false, opInc, nil)
	acct, err := h.accounts.Get(context.Background(), nowhere)
	require.NoError(t, err)
	assert.False(t, acct.Active)
	assertCoins(t, "1", acct.Balance)
}

func TestMachine_InitAtWrongAddressIsIgnored(t *testing.T) {
	h := newHarness(t)
	a := h.holder("alice", "10")
	other := idhash.HolderAddress(domain.BasechainID, "other")

	h.submit(a, other, "1", true, opInc, &h.init)

	tx := h.rec.last(other)
	require.NotNil(t, tx)
	assert.Equal(t, domain.ExitNoContract, tx.ExitCode)
	assert.False(t, tx.Deployed)
}

func TestMachine_ActionPhase(t *testing.T) {
	tests := []struct {
		name        string
		op          domain.Opcode
		wantAborted bool
		wantExit    domain.ExitCode
		wantCounter uint64
		wantBalance string
	}{
		{name: "unfunded send aborts", op: opOverspend, wantAborted: true, wantExit: domain.ExitActionFunds, wantCounter: 1, wantBalance: "0.995"},
		{name: "unfunded send ignored", op: opOverspendIgnore, wantCounter: 2, wantBalance: "1.99"},
		{name: "carry inbound", op: opEcho, wantCounter: 2, wantBalance: "0.995"},
		{name: "panic", op: opPanic, wantAborted: true, wantExit: domain.ExitFatal, wantCounter: 1, wantBalance: "0.995"},
		{name: "decode failure", op: opDecode, wantAborted: true, wantExit: domain.ExitCellUnderflow, wantCounter: 1, wantBalance: "0.995"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h := newHarness(t)
			a := h.holder("alice", "10")
			h.submit(a, h.contract, "1", true, opInc, &h.init)

			h.submit(a, h.contract, "1", true, tt.op, nil)

			tx := h.rec.last(h.contract)
			require.NotNil(t, tx)
			assert.Equal(t, tt.wantAborted, tx.Aborted)
			assert.Equal(t, tt.wantExit, tx.ExitCode)
			assert.Equal(t, tt.wantCounter, h.counter())
			assertCoins(t, tt.wantBalance, h.balance(h.contract))
		})
	}
}

func TestMachine_CarryInboundAmount(t *testing.T) {
	h := newHarness(t)
	a := h.holder("alice", "10")
	h.submit(a, h.contract, "1", true, opInc, &h.init)
	before := h.balance(a)

	h.submit(a, h.contract, "1", true, opEcho, nil)

	// -0.005 external compute, -1.001 sent, +0.994 echoed, -0.005 compute.
	want, err := before.Sub(domain.Nano("0.017"))
	require.NoError(t, err)
	assert.Equal(t, want.String(), h.balance(a).String())
}

func TestMachine_ExternalWithoutFunds(t *testing.T) {
	h := newHarness(t)
	a := h.holder("poor", "0.006")
	assertCoins(t, "0.001", h.balance(a))

	h.submit(a, h.contract, "1", true, opInc, &h.init)

	tx := h.rec.last(a)
	require.NotNil(t, tx)
	assert.True(t, tx.External)
	assert.Equal(t, domain.ExitOutOfGas, tx.ExitCode)
	assertCoins(t, "0.001", h.balance(a))
}

func TestMachine_HolderSeqno(t *testing.T) {
	h := newHarness(t)
	a := h.holder("alice", "10")
	h.submit(a, h.contract, "1", true, opInc, &h.init)
	h.submit(a, h.contract, "1", true, opInc, nil)

	acct, err := h.accounts.Get(context.Background(), a)
	require.NoError(t, err)
	var st HolderState
	require.NoError(t, DecodeState(acct.State, &st))
	assert.Equal(t, uint64(2), st.Seqno)
}

func TestMachine_ResumesLogicalTime(t *testing.T) {
	accounts := memory.NewAccountStore()
	require.NoError(t, accounts.Put(context.Background(), &domain.Account{
		Address: idhash.HolderAddress(domain.BasechainID, "old"),
		LastLT:  41,
	}))
	rec := &recorder{}

	m, err := New(context.Background(), accounts, WithTraceSink(rec))
	require.NoError(t, err)
	defer m.Close(context.Background())

	addr, _, err := m.CreateHolder(context.Background(), "new", domain.Nano("1"))
	require.NoError(t, err)
	require.NoError(t, m.Drain(context.Background()))

	tx := rec.last(addr)
	require.NotNil(t, tx)
	assert.Equal(t, uint64(42), tx.LT)
}

func TestMachine_ExternalRecordsForwardedOpcode(t *testing.T) {
	h := newHarness(t)
	a := h.holder("alice", "10")

	h.submit(a, h.contract, "1", true, opInc, &h.init)

	tx := h.rec.last(a)
	require.NotNil(t, tx)
	assert.True(t, tx.External)
	assert.Equal(t, uint32(opInc), tx.Opcode)
	assert.Equal(t, uint64(7), tx.QueryID)
}

func TestMachine_ResumeDeliversOutbox(t *testing.T) {
	ctx := context.Background()
	accounts := memory.NewAccountStore()
	addr := idhash.HolderAddress(domain.BasechainID, "late")
	init := HolderInit()
	require.NoError(t, accounts.Commit(ctx, nil, "", []domain.Message{{
		ID:        "left-over",
		TraceID:   "previous-run",
		From:      FaucetAddress,
		To:        addr,
		Value:     domain.Nano("1"),
		Init:      &init,
		CreatedLT: 9,
	}}))
	rec := &recorder{}

	m, err := New(ctx, accounts, WithTraceSink(rec))
	require.NoError(t, err)
	defer m.Close(ctx)

	n, err := m.Resume(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, n)
	require.NoError(t, m.Drain(ctx))

	tx := rec.last(addr)
	require.NotNil(t, tx)
	assert.Equal(t, uint64(10), tx.LT)
	assert.Equal(t, "previous-run", tx.TraceID)

	acct, err := accounts.Get(ctx, addr)
	require.NoError(t, err)
	assertCoins(t, "0.995", acct.Balance)

	queued, err := accounts.Outbox(ctx)
	require.NoError(t, err)
	assert.Empty(t, queued)

	_, err = m.Resume(ctx)
	assert.Error(t, err)
}

func TestMachine_OutboxEmptyAtQuiescence(t *testing.T) {
	h := newHarness(t)
	a := h.holder("alice", "10")
	h.submit(a, h.contract, "1", true, opInc, &h.init)
	h.submit(a, h.contract, "1", true, opFail, nil)
	h.submit(a, h.contract, "1", true, opEcho, nil)

	queued, err := h.accounts.Outbox(context.Background())
	require.NoError(t, err)
	assert.Empty(t, queued)
}

func TestMachine_SubmitValidation(t *testing.T) {
	h := newHarness(t)
	_, err := h.machine.Submit(context.Background(), ExternalRequest{To: h.contract})
	assert.ErrorIs(t, err, ErrInvalidRequest)

	_, _, err = h.machine.CreateHolder(context.Background(), "", domain.Nano("1"))
	assert.ErrorIs(t, err, ErrInvalidRequest)
}

func TestFees_Validate(t *testing.T) {
	assert.NoError(t, DefaultFees().Validate())
	assert.Error(t, Fees{Forward: domain.Nano("0.001")}.Validate())
	assert.Error(t, Fees{Compute: domain.Nano("0.001")}.Validate())
}
