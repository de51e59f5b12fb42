package registry

import (
	"context"
	"errors"
	"fmt"

	"jetton-ledger/internal/dict"
	"jetton-ledger/internal/domain"
	"jetton-ledger/internal/storage"
	"jetton-ledger/internal/vm"
)

// Client errors.
var (
	ErrNotInstantiated = errors.New("registry not instantiated")
	ErrNoOrganization  = errors.New("organization not registered")
)

// AccountReader reads committed account state.
type AccountReader interface {
	Account(ctx context.Context, addr domain.Address) (*domain.Account, error)
}

// Client answers registry getters from committed state.
type Client struct {
	accounts AccountReader
}

// NewClient creates a client.
func NewClient(accounts AccountReader) *Client {
	return &Client{accounts: accounts}
}

// Total returns the number of organizations in registry.
func (c *Client) Total(ctx context.Context, registry domain.Address) (int, error) {
	st, err := c.organizations(ctx, registry)
	if err != nil {
		return 0, err
	}
	return st.Orgs.Len(), nil
}

// Organization returns the record of account in registry.
func (c *Client) Organization(ctx context.Context, registry, account domain.Address) (*Organization, error) {
	st, err := c.organizations(ctx, registry)
	if err != nil {
		return nil, err
	}
	org, ok := st.Orgs.Get(keyOf(account))
	if !ok {
		return nil, fmt.Errorf("%s: %w", account, ErrNoOrganization)
	}
	return &org, nil
}

// Organizations lists every organization in registry in key order.
func (c *Client) Organizations(ctx context.Context, registry domain.Address) ([]Organization, error) {
	st, err := c.organizations(ctx, registry)
	if err != nil {
		return nil, err
	}
	out := make([]Organization, 0, st.Orgs.Len())
	st.Orgs.Ascend(func(_ dict.Key, org Organization) bool {
		out = append(out, org)
		return true
	})
	return out, nil
}

// Admin returns the admin of a membership registry.
func (c *Client) Admin(ctx context.Context, registry domain.Address) (domain.Address, error) {
	st, err := c.membership(ctx, registry)
	if err != nil {
		return domain.NoneAddress, err
	}
	return st.Admin, nil
}

// OrganizationsOf returns the organizations holder belongs to, sorted.
func (c *Client) OrganizationsOf(ctx context.Context, registry, holder domain.Address) ([]domain.Address, error) {
	st, err := c.membership(ctx, registry)
	if err != nil {
		return nil, err
	}
	member, ok := st.Members.Get(keyOf(holder))
	if !ok {
		return []domain.Address{}, nil
	}
	return member.Organizations, nil
}

// Members returns the holders belonging to org, in key order.
func (c *Client) Members(ctx context.Context, registry, org domain.Address) ([]domain.Address, error) {
	st, err := c.membership(ctx, registry)
	if err != nil {
		return nil, err
	}
	var out []domain.Address
	st.Members.Ascend(func(_ dict.Key, m Member) bool {
		for _, o := range m.Organizations {
			if o == org {
				out = append(out, m.Holder)
				break
			}
		}
		return true
	})
	return out, nil
}

func (c *Client) organizations(ctx context.Context, registry domain.Address) (*OrganizationsState, error) {
	var st OrganizationsState
	if err := c.load(ctx, registry, OrganizationsCode, &st); err != nil {
		return nil, err
	}
	if st.Orgs == nil {
		st.Orgs = dict.New[Organization]()
	}
	return &st, nil
}

func (c *Client) membership(ctx context.Context, registry domain.Address) (*MembershipState, error) {
	var st MembershipState
	if err := c.load(ctx, registry, MembershipCode, &st); err != nil {
		return nil, err
	}
	if st.Members == nil {
		st.Members = dict.New[Member]()
	}
	return &st, nil
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
