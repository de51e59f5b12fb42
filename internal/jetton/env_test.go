package jetton

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"jetton-ledger/internal/codec"
	"jetton-ledger/internal/domain"
	"jetton-ledger/internal/metadata"
	"jetton-ledger/internal/storage"
	"jetton-ledger/internal/storage/memory"
	"jetton-ledger/internal/vm"
)

var demoMetadata = metadata.Metadata{
	metadata.KeyName:     "Demo Token",
	metadata.KeySymbol:   "DEMO",
	metadata.KeyDecimals: "3",
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

// find returns the transactions of trace matching pred, in processing order.
func (r *recorder) find(trace string, pred func(*domain.Transaction) bool) []*domain.Transaction {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []*domain.Transaction
	for _, tx := range r.txs {
		if tx.TraceID == trace && pred(tx) {
			out = append(out, tx)
		}
	}
	return out
}

// faulty aborts the messages matched by reject and delegates the rest.
type faulty struct {
	vm.Contract
	reject func(c *vm.Context, msg domain.Message) bool
}

func (f faulty) Receive(c *vm.Context, msg domain.Message) error {
	if f.reject(c, msg) {
		return domain.Abort(domain.ExitFatal, "injected failure")
	}
	return f.Contract.Receive(c, msg)
}

type env struct {
	t        *testing.T
	machine  *vm.Machine
	accounts *memory.AccountStore
	rec      *recorder
	client   *Client

	deployer    domain.Address
	notDeployer domain.Address
	master      domain.Address
	content     []byte
}

func newEnv(t *testing.T) *env {
	t.Helper()
	return newEnvWithStore(t, nil)
}

// newEnvWithStore runs the machine over wrap(accounts) while the helpers
// keep reading the underlying memory store.
func newEnvWithStore(t *testing.T, wrap func(*memory.AccountStore) storage.AccountStore) *env {
	t.Helper()
	e := &env{t: t, accounts: memory.NewAccountStore(), rec: &recorder{}}

	var store storage.AccountStore = e.accounts
	if wrap != nil {
		store = wrap(e.accounts)
	}
	m, err := vm.New(context.Background(), store, vm.WithTraceSink(e.rec))
	require.NoError(t, err)
	Install(m, DefaultConfig())
	t.Cleanup(func() {
		ctx, cancel := context.WithTimeout(context.Background(), time.Second)
		defer cancel()
		_ = m.Close(ctx)
	})
	e.machine = m
	e.client = NewClient(m, nil)

	e.deployer = e.holder("deployer")
	e.notDeployer = e.holder("notDeployer")

	e.content = metadata.MustEncode(demoMetadata)
	req, master := DeployRequest(e.deployer, e.content)
	e.master = master
	e.submit(req)
	return e
}

func (e *env) holder(seed string) domain.Address {
	e.t.Helper()
	addr, _, err := e.machine.CreateHolder(context.Background(), seed, domain.Nano("100"))
	require.NoError(e.t, err)
	e.drain()
	return addr
}

func (e *env) drain() {
	e.t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	require.NoError(e.t, e.machine.Drain(ctx))
}

func (e *env) submit(req vm.ExternalRequest) string {
	e.t.Helper()
	trace, err := e.machine.Submit(context.Background(), req)
	require.NoError(e.t, err)
	e.drain()
	return trace
}

// raw sends body from holder to any address, bounceable.
func (e *env) raw(from, to domain.Address, value string, body []byte) string {
	e.t.Helper()
	return e.submit(vm.ExternalRequest{From: from, To: to, Value: domain.Nano(value), Bounce: true, Body: body})
}

func (e *env) mint(to domain.Address, amount string) string {
	e.t.Helper()
	return e.submit(MintRequest(e.deployer, e.master, codec.Mint{
		To:            to,
		Amount:        domain.Nano(amount),
		ForwardAmount: domain.Nano("0.05"),
		TotalAmount:   domain.Nano("0.1"),
	}))
}

func (e *env) wallet(owner domain.Address) domain.Address {
	return e.client.GetWalletAddress(owner, e.master)
}

func (e *env) jettons(owner domain.Address) domain.Coins {
	e.t.Helper()
	b, err := e.client.GetBalance(context.Background(), owner, e.master)
	require.NoError(e.t, err)
	return b
}

func (e *env) supply() domain.Coins {
	e.t.Helper()
	data, err := e.client.GetTokenData(context.Background(), e.master)
	require.NoError(e.t, err)
	return data.TotalSupply
}

func (e *env) funds(addr domain.Address) domain.Coins {
	e.t.Helper()
	acct, err := e.accounts.Get(context.Background(), addr)
	require.NoError(e.t, err)
	return acct.Balance
}

// exit returns the transaction of trace processed by account with op.
func (e *env) exit(trace string, account domain.Address, op domain.Opcode) *domain.Transaction {
	e.t.Helper()
	txs := e.rec.find(trace, func(tx *domain.Transaction) bool {
		return tx.Account == account && tx.Opcode == uint32(op)
	})
	require.Len(e.t, txs, 1, "transactions at %s with op %s", account, op)
	return txs[0]
}

func (e *env) has(trace string, account domain.Address, op domain.Opcode) bool {
	return len(e.rec.find(trace, func(tx *domain.Transaction) bool {
		return tx.Account == account && tx.Opcode == uint32(op)
	})) > 0
}

func (e *env) requireConsistent() {
	e.t.Helper()
	report, err := CheckSupply(context.Background(), e.accounts, nil, e.master)
	require.NoError(e.t, err)
	require.True(e.t, report.Consistent)
}

func nano(s string) string {
	return domain.Nano(s).String()
}
