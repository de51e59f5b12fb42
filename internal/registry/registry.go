// Package registry implements the organization and membership registries.
//
// Both are plain keyed records owned by a single contract each: an
// organization can be changed only by its owner, and membership only by the
// registry admin. Neither exchanges messages with the jetton contracts.
package registry

import (
	"jetton-ledger/internal/dict"
	"jetton-ledger/internal/domain"
	"jetton-ledger/internal/vm"
)

// Codes of the registry contracts.
const (
	OrganizationsCode domain.CodeID = "registry/organizations/v1"
	MembershipCode    domain.CodeID = "registry/membership/v1"
)

// Registrar is the part of the machine contracts are installed into.
type Registrar interface {
	Register(code domain.CodeID, c vm.Contract)
}

// Install registers both registry contracts with ops.
func Install(r Registrar, ops Opcodes) {
	r.Register(OrganizationsCode, &Organizations{ops: ops})
	r.Register(MembershipCode, &Membership{ops: ops})
}

// keyOf returns the dictionary key of an account.
func keyOf(a domain.Address) dict.Key {
	b := make([]byte, 0, 1+len(a.Hash))
	b = append(b, byte(a.Workchain))
	return dict.KeyOfBytes(append(b, a.Hash[:]...))
}
