package memory

import (
	"context"
	"errors"
	"testing"

	"jetton-ledger/internal/domain"
	"jetton-ledger/internal/storage"
)

func TestTransactionStore_InsertDuplicate(t *testing.T) {
	store := NewTransactionStore()
	ctx := context.Background()

	tx := &domain.Transaction{MessageID: "m1", TraceID: "t1", LT: 1, Account: testAddress(1)}
	if err := store.Insert(ctx, tx); err != nil {
		t.Fatalf("Insert failed: %v", err)
	}

	if err := store.Insert(ctx, tx); !errors.Is(err, storage.ErrDuplicateKey) {
		t.Errorf("Expected ErrDuplicateKey, got %v", err)
	}
}

func TestTransactionStore_GetByTrace(t *testing.T) {
	store := NewTransactionStore()
	ctx := context.Background()

	for _, tx := range []*domain.Transaction{
		{MessageID: "m3", TraceID: "t1", LT: 30, Account: testAddress(1)},
		{MessageID: "m1", TraceID: "t1", LT: 10, Account: testAddress(2)},
		{MessageID: "m2", TraceID: "t2", LT: 20, Account: testAddress(1)},
	} {
		if err := store.Insert(ctx, tx); err != nil {
			t.Fatalf("Insert failed: %v", err)
		}
	}

	got, err := store.GetByTrace(ctx, "t1")
	if err != nil {
		t.Fatalf("GetByTrace failed: %v", err)
	}
	if len(got) != 2 {
		t.Fatalf("Expected 2 transactions, got %d", len(got))
	}
	if got[0].LT != 10 || got[1].LT != 30 {
		t.Errorf("Transactions not ordered by lt ASC: %d, %d", got[0].LT, got[1].LT)
	}

	empty, err := store.GetByTrace(ctx, "missing")
	if err != nil {
		t.Fatalf("GetByTrace failed: %v", err)
	}
	if len(empty) != 0 {
		t.Errorf("Expected no transactions, got %d", len(empty))
	}
}

func TestTransactionStore_GetByAccountLimit(t *testing.T) {
	store := NewTransactionStore()
	ctx := context.Background()

	for i := uint64(1); i <= 5; i++ {
		tx := &domain.Transaction{MessageID: string(rune('a' + i)), TraceID: "t", LT: i, Account: testAddress(1)}
		if err := store.Insert(ctx, tx); err != nil {
			t.Fatalf("Insert failed: %v", err)
		}
	}

	got, err := store.GetByAccount(ctx, testAddress(1), 2)
	if err != nil {
		t.Fatalf("GetByAccount failed: %v", err)
	}
	if len(got) != 2 {
		t.Fatalf("Expected 2 transactions, got %d", len(got))
	}
	if got[0].LT != 5 || got[1].LT != 4 {
		t.Errorf("Expected latest first, got %d, %d", got[0].LT, got[1].LT)
	}
}
