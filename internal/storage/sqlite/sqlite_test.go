package sqlite

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"testing"

	"jetton-ledger/internal/domain"
	"jetton-ledger/internal/storage"
)

func openTempDB(t *testing.T) *DB {
	t.Helper()

	db, err := Open(context.Background(), filepath.Join(t.TempDir(), "ledger.db"))
	if err != nil {
		t.Fatalf("open sqlite db: %v", err)
	}
	t.Cleanup(func() { _ = db.Close() })
	return db
}

func testAddress(b byte) domain.Address {
	var h [32]byte
	h[0] = b
	return domain.NewAddress(domain.BasechainID, h)
}

func TestOpenRequiresPath(t *testing.T) {
	t.Parallel()

	if _, err := Open(context.Background(), " "); err == nil {
		t.Fatal("expected empty path error")
	}
}

func TestOpenTwiceKeepsData(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), "ledger.db")
	db, err := Open(context.Background(), path)
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	acct := &domain.Account{Address: testAddress(1), Code: "c", Active: true, LastLT: 4}
	if err := NewAccountStore(db).Put(context.Background(), acct); err != nil {
		t.Fatalf("put: %v", err)
	}
	_ = db.Close()

	// Reopening must not re-run applied migrations.
	db, err = Open(context.Background(), path)
	if err != nil {
		t.Fatalf("reopen: %v", err)
	}
	defer db.Close()

	lt, err := NewAccountStore(db).LastLT(context.Background())
	if err != nil {
		t.Fatalf("last lt: %v", err)
	}
	if lt != 4 {
		t.Fatalf("last lt = %d, want 4", lt)
	}
}

func TestAccountStore_RoundTrip(t *testing.T) {
	t.Parallel()

	store := NewAccountStore(openTempDB(t))
	ctx := context.Background()

	acct := &domain.Account{
		Address:   testAddress(1),
		Code:      "jetton/wallet/v1",
		Balance:   domain.MustParseCoins("1329227995784915872903807060280344575"),
		State:     []byte{0xa1, 0x01, 0x02},
		Active:    true,
		LastLT:    7,
		UpdatedAt: 1_700_000_000_000,
	}
	if err := store.Put(ctx, acct); err != nil {
		t.Fatalf("put: %v", err)
	}

	got, err := store.Get(ctx, acct.Address)
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if got.Balance.Cmp(acct.Balance) != 0 {
		t.Fatalf("balance = %s, want %s", got.Balance, acct.Balance)
	}
	if got.Code != acct.Code || !got.Active || got.LastLT != 7 || got.UpdatedAt != acct.UpdatedAt {
		t.Fatalf("account = %+v, want %+v", got, acct)
	}
	if string(got.State) != string(acct.State) {
		t.Fatalf("state = %x, want %x", got.State, acct.State)
	}

	acct.Balance = domain.ZeroCoins
	acct.Active = false
	if err := store.Put(ctx, acct); err != nil {
		t.Fatalf("replace: %v", err)
	}
	got, err = store.Get(ctx, acct.Address)
	if err != nil {
		t.Fatalf("get after replace: %v", err)
	}
	if !got.Balance.IsZero() || got.Active {
		t.Fatalf("replace not applied: %+v", got)
	}
}

func TestAccountStore_Errors(t *testing.T) {
	t.Parallel()

	store := NewAccountStore(openTempDB(t))

	if _, err := store.Get(context.Background(), testAddress(9)); !errors.Is(err, storage.ErrNotFound) {
		t.Fatalf("get missing: %v, want ErrNotFound", err)
	}
	if err := store.Put(context.Background(), &domain.Account{}); !errors.Is(err, storage.ErrInvalidInput) {
		t.Fatalf("put none: %v, want ErrInvalidInput", err)
	}
}

func TestAccountStore_ListByCode(t *testing.T) {
	t.Parallel()

	store := NewAccountStore(openTempDB(t))
	ctx := context.Background()

	master := domain.NewAddress(domain.MasterchainID, testAddress(5).Hash)
	for _, a := range []*domain.Account{
		{Address: testAddress(3), Code: "a", Active: true},
		{Address: testAddress(1), Code: "a", Active: true},
		{Address: master, Code: "a", Active: true},
		{Address: testAddress(2), Code: "b", Active: true},
		{Address: testAddress(4), Code: "a"},
	} {
		if err := store.Put(ctx, a); err != nil {
			t.Fatalf("put: %v", err)
		}
	}

	got, err := store.ListByCode(ctx, "a")
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	want := []domain.Address{master, testAddress(1), testAddress(3)}
	if len(got) != len(want) {
		t.Fatalf("len = %d, want %d", len(got), len(want))
	}
	for i := range want {
		if got[i].Address != want[i] {
			t.Errorf("got[%d] = %s, want %s", i, got[i].Address, want[i])
		}
	}
}

func TestTransactionStore(t *testing.T) {
	t.Parallel()

	store := NewTransactionStore(openTempDB(t))
	ctx := context.Background()

	for i, lt := range []uint64{30, 10, 20} {
		tx := &domain.Transaction{
			MessageID:   fmt.Sprintf("m%d", i),
			TraceID:     "t1",
			LT:          lt,
			Account:     testAddress(byte(1 + i%2)),
			Sender:      testAddress(9),
			Opcode:      uint32(domain.OpBounced),
			QueryID:     ^uint64(0),
			Value:       domain.Nano("0.5"),
			Bounced:     true,
			Aborted:     true,
			ExitCode:    domain.ExitUnauthorizedIncomingTransfer,
			OutMessages: 1,
			ComputeFee:  domain.Nano("0.005"),
			ForwardFees: domain.Nano("0.001"),
		}
		if err := store.Insert(ctx, tx); err != nil {
			t.Fatalf("insert: %v", err)
		}
	}

	if err := store.Insert(ctx, &domain.Transaction{MessageID: "m0", TraceID: "t1"}); !errors.Is(err, storage.ErrDuplicateKey) {
		t.Fatalf("duplicate insert: %v, want ErrDuplicateKey", err)
	}

	trace, err := store.GetByTrace(ctx, "t1")
	if err != nil {
		t.Fatalf("get by trace: %v", err)
	}
	if len(trace) != 3 || trace[0].LT != 10 || trace[2].LT != 30 {
		t.Fatalf("trace order wrong: %+v", trace)
	}
	first := trace[0]
	if first.QueryID != ^uint64(0) || first.Opcode != uint32(domain.OpBounced) {
		t.Fatalf("query id/opcode = %d/%x", first.QueryID, first.Opcode)
	}
	if first.ExitCode != domain.ExitUnauthorizedIncomingTransfer || !first.Bounced || !first.Aborted {
		t.Fatalf("flags lost: %+v", first)
	}
	if first.Sender != testAddress(9) || first.Value.Cmp(domain.Nano("0.5")) != 0 {
		t.Fatalf("sender/value lost: %+v", first)
	}

	// m0 (lt 30) and m2 (lt 20) belong to testAddress(1).
	byAccount, err := store.GetByAccount(ctx, testAddress(1), 0)
	if err != nil {
		t.Fatalf("get by account: %v", err)
	}
	if len(byAccount) != 2 || byAccount[0].LT != 30 || byAccount[1].LT != 20 {
		t.Fatalf("account order wrong: %+v", byAccount)
	}
	limited, err := store.GetByAccount(ctx, testAddress(1), 1)
	if err != nil {
		t.Fatalf("get by account limited: %v", err)
	}
	if len(limited) != 1 || limited[0].MessageID != "m0" {
		t.Fatalf("limited = %+v", limited)
	}
}

func TestAccountStore_OutboxSurvivesReopen(t *testing.T) {
	t.Parallel()
	ctx := context.Background()

	path := filepath.Join(t.TempDir(), "ledger.db")
	db, err := Open(ctx, path)
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	store := NewAccountStore(db)

	sender := &domain.Account{Address: testAddress(1), Code: "c", Balance: domain.Nano("1"), Active: true, LastLT: 10}
	credit := domain.Message{
		ID:        "credit",
		TraceID:   "t",
		From:      sender.Address,
		To:        testAddress(2),
		Value:     domain.Nano("0.5"),
		Bounce:    true,
		Init:      &domain.StateInit{Code: "c", Data: []byte{1}},
		Body:      []byte{1, 2, 3, 4},
		CreatedLT: 10,
	}
	if err := store.Commit(ctx, sender, "", []domain.Message{credit}); err != nil {
		t.Fatalf("commit: %v", err)
	}
	if err := store.Commit(ctx, nil, "", []domain.Message{credit}); !errors.Is(err, storage.ErrDuplicateKey) {
		t.Fatalf("requeue: %v, want ErrDuplicateKey", err)
	}
	_ = db.Close()

	db, err = Open(ctx, path)
	if err != nil {
		t.Fatalf("reopen: %v", err)
	}
	defer db.Close()
	store = NewAccountStore(db)

	queued, err := store.Outbox(ctx)
	if err != nil {
		t.Fatalf("outbox: %v", err)
	}
	if len(queued) != 1 || queued[0].ID != "credit" || queued[0].Value.Cmp(credit.Value) != 0 || queued[0].Init == nil {
		t.Fatalf("outbox = %+v", queued)
	}

	receiver := &domain.Account{Address: testAddress(2), Code: "c", Balance: domain.Nano("0.5"), Active: true, LastLT: 11}
	if err := store.Commit(ctx, receiver, "credit", nil); err != nil {
		t.Fatalf("consume: %v", err)
	}
	if queued, _ := store.Outbox(ctx); len(queued) != 0 {
		t.Fatalf("outbox after consume = %+v", queued)
	}
	if lt, _ := store.LastLT(ctx); lt != 11 {
		t.Fatalf("last lt = %d, want 11", lt)
	}
}
