package idhash

import (
	"fmt"

	lru "github.com/hashicorp/golang-lru"

	"jetton-ledger/internal/domain"
)

// DefaultCacheSize is the number of derived addresses a Deriver keeps.
const DefaultCacheSize = 4096

// Deriver memoizes ContractAddress. Derivation walks bump seeds and decodes
// curve points, and wallet addresses are recomputed on every transfer.
type Deriver struct {
	cache *lru.Cache
}

// NewDeriver creates a Deriver caching up to size addresses.
func NewDeriver(size int) (*Deriver, error) {
	if size <= 0 {
		size = DefaultCacheSize
	}
	cache, err := lru.New(size)
	if err != nil {
		return nil, fmt.Errorf("create address cache: %w", err)
	}
	return &Deriver{cache: cache}, nil
}

// ContractAddress returns the cached derivation, computing it on a miss.
// A nil Deriver computes without caching.
func (d *Deriver) ContractAddress(workchain int8, init domain.StateInit) domain.Address {
	if d == nil {
		return ContractAddress(workchain, init)
	}

	key := fmt.Sprintf("%d|%s|%x", workchain, init.Code, init.Data)
	if v, ok := d.cache.Get(key); ok {
		return v.(domain.Address)
	}

	addr := ContractAddress(workchain, init)
	d.cache.Add(key, addr)
	return addr
}

// Len returns the number of cached addresses.
func (d *Deriver) Len() int {
	if d == nil {
		return 0
	}
	return d.cache.Len()
}
