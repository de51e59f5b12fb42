package registry

import (
	"fmt"

	"jetton-ledger/internal/codec"
	"jetton-ledger/internal/domain"
)

// CreateOrganization registers Account with the sender as owner.
type CreateOrganization struct {
	QueryID uint64
	Account domain.Address
	Site    string
}

// RemoveOrganization deletes Account.
type RemoveOrganization struct {
	QueryID uint64
	Account domain.Address
}

// ChangeOwner hands Account to NewOwner.
type ChangeOwner struct {
	QueryID  uint64
	Account  domain.Address
	NewOwner domain.Address
}

// ChangeSite replaces the site of Account.
type ChangeSite struct {
	QueryID uint64
	Account domain.Address
	Site    string
}

// MembershipChange adds Holder to or removes it from Organization.
type MembershipChange struct {
	QueryID      uint64
	Organization domain.Address
	Holder       domain.Address
}

// ChangeAdmin hands the membership registry to NewAdmin.
type ChangeAdmin struct {
	QueryID  uint64
	NewAdmin domain.Address
}

// Encode returns the wire body under op.
func (b CreateOrganization) Encode(op domain.Opcode) []byte {
	return codec.NewWriter(op, b.QueryID).Address(b.Account).Text(b.Site).Bytes()
}

// Encode returns the wire body under op.
func (b RemoveOrganization) Encode(op domain.Opcode) []byte {
	return codec.NewWriter(op, b.QueryID).Address(b.Account).Bytes()
}

// Encode returns the wire body under op.
func (b ChangeOwner) Encode(op domain.Opcode) []byte {
	return codec.NewWriter(op, b.QueryID).Address(b.Account).Address(b.NewOwner).Bytes()
}

// Encode returns the wire body under op.
func (b ChangeSite) Encode(op domain.Opcode) []byte {
	return codec.NewWriter(op, b.QueryID).Address(b.Account).Text(b.Site).Bytes()
}

// Encode returns the wire body under op.
func (b MembershipChange) Encode(op domain.Opcode) []byte {
	return codec.NewWriter(op, b.QueryID).Address(b.Organization).Address(b.Holder).Bytes()
}

// Encode returns the wire body under op.
func (b ChangeAdmin) Encode(op domain.Opcode) []byte {
	return codec.NewWriter(op, b.QueryID).Address(b.NewAdmin).Bytes()
}

// header opens a reader past the opcode and query id.
func header(body []byte) (*codec.Reader, uint64, error) {
	r := codec.NewReader(body)
	r.Uint32()
	queryID := r.Uint64()
	if err := r.Err(); err != nil {
		return nil, 0, err
	}
	return r, queryID, nil
}

func decodeCreate(body []byte) (CreateOrganization, error) {
	r, queryID, err := header(body)
	if err != nil {
		return CreateOrganization{}, err
	}
	b := CreateOrganization{QueryID: queryID, Account: r.Address(), Site: r.Text()}
	return b, r.Err()
}

func decodeRemove(body []byte) (RemoveOrganization, error) {
	r, queryID, err := header(body)
	if err != nil {
		return RemoveOrganization{}, err
	}
	b := RemoveOrganization{QueryID: queryID, Account: r.Address()}
	return b, r.Err()
}

func decodeChangeOwner(body []byte) (ChangeOwner, error) {
	r, queryID, err := header(body)
	if err != nil {
		return ChangeOwner{}, err
	}
	b := ChangeOwner{QueryID: queryID, Account: r.Address(), NewOwner: r.Address()}
	return b, r.Err()
}

func decodeChangeSite(body []byte) (ChangeSite, error) {
	r, queryID, err := header(body)
	if err != nil {
		return ChangeSite{}, err
	}
	b := ChangeSite{QueryID: queryID, Account: r.Address(), Site: r.Text()}
	return b, r.Err()
}

func decodeMembershipChange(body []byte) (MembershipChange, error) {
	r, queryID, err := header(body)
	if err != nil {
		return MembershipChange{}, err
	}
	b := MembershipChange{QueryID: queryID, Organization: r.Address(), Holder: r.Address()}
	if err := r.Err(); err != nil {
		return b, err
	}
	if b.Organization.IsNone() || b.Holder.IsNone() {
		return b, fmt.Errorf("%w: organization and holder are required", codec.ErrInvalidField)
	}
	return b, nil
}

func decodeChangeAdmin(body []byte) (ChangeAdmin, error) {
	r, queryID, err := header(body)
	if err != nil {
		return ChangeAdmin{}, err
	}
	b := ChangeAdmin{QueryID: queryID, NewAdmin: r.Address()}
	return b, r.Err()
}
