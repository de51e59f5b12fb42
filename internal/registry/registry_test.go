package registry

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"jetton-ledger/internal/domain"
	"jetton-ledger/internal/idhash"
	"jetton-ledger/internal/storage/memory"
	"jetton-ledger/internal/vm"
)

type recorder struct {
	mu  sync.Mutex
	txs map[string][]*domain.Transaction
}

func (r *recorder) Record(_ context.Context, tx *domain.Transaction) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.txs[tx.TraceID] = append(r.txs[tx.TraceID], tx)
	return nil
}

type env struct {
	t       *testing.T
	machine *vm.Machine
	rec     *recorder
	client  *Client
	req     Requests
}

func newEnv(t *testing.T, ops Opcodes) *env {
	t.Helper()
	rec := &recorder{txs: make(map[string][]*domain.Transaction)}
	m, err := vm.New(context.Background(), memory.NewAccountStore(), vm.WithTraceSink(rec))
	require.NoError(t, err)
	Install(m, ops)
	t.Cleanup(func() {
		ctx, cancel := context.WithTimeout(context.Background(), time.Second)
		defer cancel()
		_ = m.Close(ctx)
	})
	return &env{t: t, machine: m, rec: rec, client: NewClient(m), req: Requests{Ops: ops}}
}

func (e *env) holder(seed string) domain.Address {
	e.t.Helper()
	addr, _, err := e.machine.CreateHolder(context.Background(), seed, domain.Nano("10"))
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

// send submits req and returns the registry's transaction for it.
func (e *env) send(req vm.ExternalRequest) *domain.Transaction {
	e.t.Helper()
	trace, err := e.machine.Submit(context.Background(), req)
	require.NoError(e.t, err)
	e.drain()

	e.rec.mu.Lock()
	defer e.rec.mu.Unlock()
	for _, tx := range e.rec.txs[trace] {
		if tx.Account == req.To {
			return tx
		}
	}
	e.t.Fatalf("no transaction at %s in trace %s", req.To, trace)
	return nil
}

// org returns a fresh organization account address.
func org(seed string) domain.Address {
	return idhash.HolderAddress(domain.BasechainID, "org-"+seed)
}
