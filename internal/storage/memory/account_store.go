package memory

import (
	"context"
	"sort"
	"sync"

	"jetton-ledger/internal/domain"
	"jetton-ledger/internal/storage"
)

// AccountStore is an in-memory implementation of storage.AccountStore.
type AccountStore struct {
	mu       sync.RWMutex
	accounts map[domain.Address]*domain.Account
	outbox   map[string]domain.Message
}

// NewAccountStore creates a new in-memory account store.
func NewAccountStore() *AccountStore {
	return &AccountStore{
		accounts: make(map[domain.Address]*domain.Account),
		outbox:   make(map[string]domain.Message),
	}
}

// Get retrieves an account by address. Returns ErrNotFound if not exists.
func (s *AccountStore) Get(_ context.Context, addr domain.Address) (*domain.Account, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	a, exists := s.accounts[addr]
	if !exists {
		return nil, storage.ErrNotFound
	}
	return a.Clone(), nil
}

// Put inserts or replaces an account.
func (s *AccountStore) Put(_ context.Context, a *domain.Account) error {
	if a == nil || a.Address.IsNone() {
		return storage.ErrInvalidInput
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	s.accounts[a.Address] = a.Clone()
	return nil
}

// Commit stores a, consumes one outbox message and queues outs under one lock.
func (s *AccountStore) Commit(_ context.Context, a *domain.Account, consumed string, outs []domain.Message) error {
	if a != nil && a.Address.IsNone() {
		return storage.ErrInvalidInput
	}
	for _, m := range outs {
		if m.ID == "" {
			return storage.ErrInvalidInput
		}
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if a != nil {
		s.accounts[a.Address] = a.Clone()
	}
	if consumed != "" {
		delete(s.outbox, consumed)
	}
	for _, m := range outs {
		s.outbox[m.ID] = cloneMessage(m)
	}
	return nil
}

// Outbox returns the queued messages ordered by created lt, then id.
func (s *AccountStore) Outbox(_ context.Context) ([]domain.Message, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	result := make([]domain.Message, 0, len(s.outbox))
	for _, m := range s.outbox {
		result = append(result, cloneMessage(m))
	}
	sort.Slice(result, func(i, j int) bool {
		if result[i].CreatedLT != result[j].CreatedLT {
			return result[i].CreatedLT < result[j].CreatedLT
		}
		return result[i].ID < result[j].ID
	})
	return result, nil
}

func cloneMessage(m domain.Message) domain.Message {
	m.Body = append([]byte(nil), m.Body...)
	if m.Init != nil {
		init := *m.Init
		init.Data = append([]byte(nil), init.Data...)
		m.Init = &init
	}
	return m
}

// ListByCode retrieves all active accounts running code, ordered by address ASC.
func (s *AccountStore) ListByCode(_ context.Context, code domain.CodeID) ([]*domain.Account, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var result []*domain.Account
	for _, a := range s.accounts {
		if a.Active && a.Code == code {
			result = append(result, a.Clone())
		}
	}

	sort.Slice(result, func(i, j int) bool {
		return result[i].Address.Compare(result[j].Address) < 0
	})
	return result, nil
}

// LastLT returns the highest logical time of any stored account or queued message.
func (s *AccountStore) LastLT(_ context.Context) (uint64, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var lt uint64
	for _, a := range s.accounts {
		lt = max(lt, a.LastLT)
	}
	for _, m := range s.outbox {
		lt = max(lt, m.CreatedLT)
	}
	return lt, nil
}

var _ storage.AccountStore = (*AccountStore)(nil)
