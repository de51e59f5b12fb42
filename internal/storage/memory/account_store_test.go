package memory

import (
	"context"
	"errors"
	"testing"

	"jetton-ledger/internal/domain"
	"jetton-ledger/internal/storage"
)

func testAddress(b byte) domain.Address {
	var h [32]byte
	h[0] = b
	return domain.NewAddress(domain.BasechainID, h)
}

func TestAccountStore_PutAndGet(t *testing.T) {
	store := NewAccountStore()
	ctx := context.Background()

	acct := &domain.Account{
		Address: testAddress(1),
		Code:    "jetton/wallet/v1",
		Balance: domain.Nano("0.01"),
		State:   []byte{0xa1, 0x01, 0x02},
		Active:  true,
		LastLT:  7,
	}

	if err := store.Put(ctx, acct); err != nil {
		t.Fatalf("Put failed: %v", err)
	}

	got, err := store.Get(ctx, acct.Address)
	if err != nil {
		t.Fatalf("Get failed: %v", err)
	}
	if got.Balance.Cmp(acct.Balance) != 0 {
		t.Errorf("Balance mismatch: got %s, want %s", got.Balance, acct.Balance)
	}
	if got.Code != acct.Code {
		t.Errorf("Code mismatch: got %s, want %s", got.Code, acct.Code)
	}

	// Mutating the returned copy must not leak into the store.
	got.State[0] = 0xff
	again, _ := store.Get(ctx, acct.Address)
	if again.State[0] != 0xa1 {
		t.Errorf("store returned shared state slice")
	}
}

func TestAccountStore_GetNotFound(t *testing.T) {
	store := NewAccountStore()

	_, err := store.Get(context.Background(), testAddress(9))
	if !errors.Is(err, storage.ErrNotFound) {
		t.Errorf("Expected ErrNotFound, got %v", err)
	}
}

func TestAccountStore_PutInvalid(t *testing.T) {
	store := NewAccountStore()

	if err := store.Put(context.Background(), &domain.Account{}); !errors.Is(err, storage.ErrInvalidInput) {
		t.Errorf("Expected ErrInvalidInput, got %v", err)
	}
}

func TestAccountStore_ListByCodeAndLastLT(t *testing.T) {
	store := NewAccountStore()
	ctx := context.Background()

	accounts := []*domain.Account{
		{Address: testAddress(3), Code: "a", Active: true, LastLT: 5},
		{Address: testAddress(1), Code: "a", Active: true, LastLT: 9},
		{Address: testAddress(2), Code: "b", Active: true, LastLT: 2},
		{Address: testAddress(4), Code: "a", Active: false, LastLT: 1},
	}
	for _, a := range accounts {
		if err := store.Put(ctx, a); err != nil {
			t.Fatalf("Put failed: %v", err)
		}
	}

	got, err := store.ListByCode(ctx, "a")
	if err != nil {
		t.Fatalf("ListByCode failed: %v", err)
	}
	if len(got) != 2 {
		t.Fatalf("Expected 2 accounts, got %d", len(got))
	}
	if got[0].Address != testAddress(1) || got[1].Address != testAddress(3) {
		t.Errorf("Accounts not ordered by address")
	}

	lt, err := store.LastLT(ctx)
	if err != nil {
		t.Fatalf("LastLT failed: %v", err)
	}
	if lt != 9 {
		t.Errorf("LastLT mismatch: got %d, want 9", lt)
	}
}

func TestAccountStore_CommitOutbox(t *testing.T) {
	store := NewAccountStore()
	ctx := context.Background()

	first := domain.Message{ID: "b", To: testAddress(2), Value: domain.Nano("1"), CreatedLT: 3}
	second := domain.Message{ID: "a", To: testAddress(3), Value: domain.Nano("2"), CreatedLT: 5}
	if err := store.Commit(ctx, nil, "", []domain.Message{second, first}); err != nil {
		t.Fatalf("queue: %v", err)
	}

	queued, err := store.Outbox(ctx)
	if err != nil {
		t.Fatalf("outbox: %v", err)
	}
	if len(queued) != 2 || queued[0].ID != "b" || queued[1].ID != "a" {
		t.Fatalf("outbox order = %+v", queued)
	}

	acct := &domain.Account{Address: testAddress(2), Balance: domain.Nano("1"), LastLT: 9}
	reply := domain.Message{ID: "c", To: testAddress(1), CreatedLT: 9}
	if err := store.Commit(ctx, acct, "b", []domain.Message{reply}); err != nil {
		t.Fatalf("commit: %v", err)
	}

	queued, _ = store.Outbox(ctx)
	if len(queued) != 2 || queued[0].ID != "a" || queued[1].ID != "c" {
		t.Fatalf("outbox after commit = %+v", queued)
	}
	if got, err := store.Get(ctx, testAddress(2)); err != nil || got.LastLT != 9 {
		t.Fatalf("account after commit = %+v, %v", got, err)
	}
	if lt, _ := store.LastLT(ctx); lt != 9 {
		t.Fatalf("last lt = %d, want 9", lt)
	}

	if err := store.Commit(ctx, nil, "", []domain.Message{{To: testAddress(4)}}); !errors.Is(err, storage.ErrInvalidInput) {
		t.Fatalf("message without id: %v", err)
	}
}
