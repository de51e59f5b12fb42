package jetton

import (
	"context"
	"errors"
	"fmt"

	"jetton-ledger/internal/domain"
	"jetton-ledger/internal/idhash"
	"jetton-ledger/internal/metadata"
	"jetton-ledger/internal/storage"
	"jetton-ledger/internal/vm"
)

// ErrNotInstantiated is returned when no contract of the expected code runs
// at an address.
var ErrNotInstantiated = errors.New("not instantiated")

// AccountReader reads committed account state.
type AccountReader interface {
	Account(ctx context.Context, addr domain.Address) (*domain.Account, error)
}

// TokenData is the read-only view of a master.
type TokenData struct {
	TotalSupply domain.Coins      `json:"total_supply"`
	Mintable    bool              `json:"mintable"`
	Admin       domain.Address    `json:"admin"`
	Content     []byte            `json:"content"`
	Metadata    metadata.Metadata `json:"metadata,omitempty"`
	WalletCode  domain.CodeID     `json:"wallet_code"`
}

// WalletData is the read-only view of a wallet.
type WalletData struct {
	Balance    domain.Coins   `json:"balance"`
	Owner      domain.Address `json:"owner"`
	Master     domain.Address `json:"master"`
	WalletCode domain.CodeID  `json:"wallet_code"`
}

// Client answers the token getters from committed state.
type Client struct {
	accounts AccountReader
	deriver  *idhash.Deriver
}

// NewClient creates a client. A nil deriver derives without caching.
func NewClient(accounts AccountReader, deriver *idhash.Deriver) *Client {
	return &Client{accounts: accounts, deriver: deriver}
}

// GetTokenData returns the token record of master.
func (c *Client) GetTokenData(ctx context.Context, master domain.Address) (*TokenData, error) {
	var st MasterState
	if err := c.load(ctx, master, MasterCode, &st); err != nil {
		return nil, err
	}

	data := &TokenData{
		TotalSupply: st.TotalSupply,
		Mintable:    true,
		Admin:       st.Admin,
		Content:     st.Content,
		WalletCode:  st.WalletCode,
	}
	// Content is validated on change; a blob that still fails to parse is
	// reported raw.
	if md, err := metadata.Decode(st.Content); err == nil {
		data.Metadata = md
	}
	return data, nil
}

// GetWalletData returns the state of the wallet at addr.
func (c *Client) GetWalletData(ctx context.Context, wallet domain.Address) (*WalletData, error) {
	var st WalletState
	if err := c.load(ctx, wallet, WalletCode, &st); err != nil {
		return nil, err
	}
	return &WalletData{
		Balance:    st.Balance,
		Owner:      st.Owner,
		Master:     st.Master,
		WalletCode: st.WalletCode,
	}, nil
}

// GetWalletAddress returns the address of owner's wallet for master.
// The wallet need not exist.
func (c *Client) GetWalletAddress(owner, master domain.Address) domain.Address {
	return WalletAddress(c.deriver, owner, master)
}

// GetBalance returns owner's balance of master's token, zero if the wallet
// was never materialized.
func (c *Client) GetBalance(ctx context.Context, owner, master domain.Address) (domain.Coins, error) {
	data, err := c.GetWalletData(ctx, c.GetWalletAddress(owner, master))
	if errors.Is(err, ErrNotInstantiated) {
		return domain.ZeroCoins, nil
	}
	if err != nil {
		return domain.ZeroCoins, err
	}
	return data.Balance, nil
}

func (c *Client) load(ctx context.Context, addr domain.Address, code domain.CodeID, v any) error {
	acct, err := c.accounts.Account(ctx, addr)
	if errors.Is(err, storage.ErrNotFound) {
		return fmt.Errorf("%s: %w", addr, ErrNotInstantiated)
	}
	if err != nil {
		return fmt.Errorf("load account %s: %w", addr, err)
	}
	if !acct.Active || acct.Code != code {
		return fmt.Errorf("%s: %w", addr, ErrNotInstantiated)
	}
	return vm.DecodeState(acct.State, v)
}
