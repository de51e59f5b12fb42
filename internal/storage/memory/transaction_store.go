package memory

import (
	"context"
	"sort"
	"sync"

	"jetton-ledger/internal/domain"
	"jetton-ledger/internal/storage"
)

// TransactionStore is an in-memory implementation of storage.TransactionStore.
type TransactionStore struct {
	mu        sync.RWMutex
	byMessage map[string]*domain.Transaction
	byTrace   map[string][]*domain.Transaction
	byAccount map[domain.Address][]*domain.Transaction
}

// NewTransactionStore creates a new in-memory transaction store.
func NewTransactionStore() *TransactionStore {
	return &TransactionStore{
		byMessage: make(map[string]*domain.Transaction),
		byTrace:   make(map[string][]*domain.Transaction),
		byAccount: make(map[domain.Address][]*domain.Transaction),
	}
}

// Insert adds a new transaction. Returns ErrDuplicateKey if message_id exists.
func (s *TransactionStore) Insert(_ context.Context, tx *domain.Transaction) error {
	if tx == nil || tx.MessageID == "" {
		return storage.ErrInvalidInput
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.byMessage[tx.MessageID]; exists {
		return storage.ErrDuplicateKey
	}

	txCopy := *tx
	s.byMessage[tx.MessageID] = &txCopy
	s.byTrace[tx.TraceID] = append(s.byTrace[tx.TraceID], &txCopy)
	s.byAccount[tx.Account] = append(s.byAccount[tx.Account], &txCopy)
	return nil
}

// GetByTrace retrieves all transactions of a trace, ordered by lt ASC.
func (s *TransactionStore) GetByTrace(_ context.Context, traceID string) ([]*domain.Transaction, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	result := copyTransactions(s.byTrace[traceID])
	sort.Slice(result, func(i, j int) bool {
		return result[i].LT < result[j].LT
	})
	return result, nil
}

// GetByAccount retrieves the latest transactions of an account, ordered by lt DESC.
func (s *TransactionStore) GetByAccount(_ context.Context, addr domain.Address, limit int) ([]*domain.Transaction, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	result := copyTransactions(s.byAccount[addr])
	sort.Slice(result, func(i, j int) bool {
		return result[i].LT > result[j].LT
	})
	if limit > 0 && len(result) > limit {
		result = result[:limit]
	}
	return result, nil
}

func copyTransactions(src []*domain.Transaction) []*domain.Transaction {
	result := make([]*domain.Transaction, 0, len(src))
	for _, tx := range src {
		txCopy := *tx
		result = append(result, &txCopy)
	}
	return result
}

var _ storage.TransactionStore = (*TransactionStore)(nil)
