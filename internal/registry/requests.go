package registry

import (
	"jetton-ledger/internal/domain"
	"jetton-ledger/internal/idhash"
	"jetton-ledger/internal/vm"
)

// GasAmount is attached to every registry request.
var GasAmount = domain.Nano("0.1")

// Requests builds external requests against registries using one opcode set.
type Requests struct {
	Ops Opcodes
}

// OrganizationsAddress returns the address of the registry labelled label.
func OrganizationsAddress(d *idhash.Deriver, label string) domain.Address {
	return d.ContractAddress(domain.BasechainID, OrganizationsInit(label))
}

// MembershipAddress returns the address of the registry first run by admin.
func MembershipAddress(d *idhash.Deriver, admin domain.Address) domain.Address {
	return d.ContractAddress(domain.BasechainID, MembershipInit(admin))
}

// DeployOrganizations deploys the registry labelled label.
func (Requests) DeployOrganizations(from domain.Address, label string) (vm.ExternalRequest, domain.Address) {
	init := OrganizationsInit(label)
	addr := OrganizationsAddress(nil, label)
	return vm.ExternalRequest{From: from, To: addr, Value: GasAmount, Init: &init}, addr
}

// DeployMembership deploys a membership registry run by admin.
func (Requests) DeployMembership(admin domain.Address) (vm.ExternalRequest, domain.Address) {
	init := MembershipInit(admin)
	addr := MembershipAddress(nil, admin)
	return vm.ExternalRequest{From: admin, To: addr, Value: GasAmount, Init: &init}, addr
}

// Create registers b.Account with from as owner.
func (r Requests) Create(from, registry domain.Address, b CreateOrganization) vm.ExternalRequest {
	return r.request(from, registry, b.Encode(r.Ops.Create))
}

// Remove deletes b.Account.
func (r Requests) Remove(from, registry domain.Address, b RemoveOrganization) vm.ExternalRequest {
	return r.request(from, registry, b.Encode(r.Ops.Remove))
}

// ChangeOwner hands b.Account to b.NewOwner.
func (r Requests) ChangeOwner(from, registry domain.Address, b ChangeOwner) vm.ExternalRequest {
	return r.request(from, registry, b.Encode(r.Ops.ChangeOwner))
}

// ChangeSite replaces the site of b.Account.
func (r Requests) ChangeSite(from, registry domain.Address, b ChangeSite) vm.ExternalRequest {
	return r.request(from, registry, b.Encode(r.Ops.ChangeSite))
}

// Invite adds b.Holder to b.Organization.
func (r Requests) Invite(admin, registry domain.Address, b MembershipChange) vm.ExternalRequest {
	return r.request(admin, registry, b.Encode(r.Ops.Invite))
}

// Exclude removes b.Holder from b.Organization.
func (r Requests) Exclude(admin, registry domain.Address, b MembershipChange) vm.ExternalRequest {
	return r.request(admin, registry, b.Encode(r.Ops.Exclude))
}

// ChangeAdmin hands the membership registry to b.NewAdmin.
func (r Requests) ChangeAdmin(admin, registry domain.Address, b ChangeAdmin) vm.ExternalRequest {
	return r.request(admin, registry, b.Encode(r.Ops.ChangeAdmin))
}

func (Requests) request(from, to domain.Address, body []byte) vm.ExternalRequest {
	return vm.ExternalRequest{From: from, To: to, Value: GasAmount, Bounce: true, Body: body}
}
