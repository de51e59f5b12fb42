package registry

import (
	"slices"

	"go.uber.org/zap"

	"jetton-ledger/internal/codec"
	"jetton-ledger/internal/dict"
	"jetton-ledger/internal/domain"
	"jetton-ledger/internal/vm"
)

// Member is the set of organizations one holder belongs to.
type Member struct {
	Holder        domain.Address   `cbor:"1,keyasint" json:"holder"`
	Organizations []domain.Address `cbor:"2,keyasint" json:"organizations"` // sorted
}

// MembershipState is the state of a membership registry.
type MembershipState struct {
	Admin   domain.Address    `cbor:"1,keyasint"`
	Members *dict.Map[Member] `cbor:"2,keyasint"`
}

// MembershipInit returns the state init of an empty registry run by admin.
func MembershipInit(admin domain.Address) domain.StateInit {
	return domain.StateInit{
		Code: MembershipCode,
		Data: vm.MustEncodeState(MembershipState{Admin: admin, Members: dict.New[Member]()}),
	}
}

// Membership is the membership registry contract.
type Membership struct {
	ops Opcodes
}

// Receive dispatches one message.
func (m *Membership) Receive(c *vm.Context, msg domain.Message) error {
	if msg.Bounced || len(msg.Body) == 0 {
		return nil
	}
	st, err := vm.Load[MembershipState](c)
	if err != nil {
		return err
	}
	if st.Members == nil {
		st.Members = dict.New[Member]()
	}

	op, ok := codec.PeekOpcode(msg.Body)
	if !ok {
		return domain.Abort(domain.ExitUnknownAction, "body too short")
	}
	if op != m.ops.Invite && op != m.ops.Exclude && op != m.ops.ChangeAdmin {
		return domain.Abort(domain.ExitUnknownAction, "unknown op %s", op)
	}
	if msg.From != st.Admin {
		return domain.Abort(domain.ExitNotOwner, "sender %s is not admin", msg.From)
	}

	switch op {
	case m.ops.Invite:
		err = invite(c, st, msg)
	case m.ops.Exclude:
		err = exclude(c, st, msg)
	default:
		var req ChangeAdmin
		if req, err = decodeChangeAdmin(msg.Body); err == nil {
			st.Admin = req.NewAdmin
		}
	}
	if err != nil {
		return err
	}
	return c.Store(st)
}

func invite(c *vm.Context, st *MembershipState, msg domain.Message) error {
	req, err := decodeMembershipChange(msg.Body)
	if err != nil {
		return err
	}
	if req.Holder == req.Organization {
		return domain.Abort(domain.ExitSelfMembership, "%s cannot join itself", req.Holder)
	}

	k := keyOf(req.Holder)
	member, ok := st.Members.Get(k)
	if !ok {
		member = Member{Holder: req.Holder}
	}
	i, found := slices.BinarySearchFunc(member.Organizations, req.Organization, domain.Address.Compare)
	if found {
		return nil
	}
	member.Organizations = slices.Insert(slices.Clone(member.Organizations), i, req.Organization)
	st.Members.Set(k, member)
	c.Logger().Debug("member added", zap.Stringer("holder", req.Holder), zap.Stringer("organization", req.Organization))
	return nil
}

func exclude(c *vm.Context, st *MembershipState, msg domain.Message) error {
	req, err := decodeMembershipChange(msg.Body)
	if err != nil {
		return err
	}

	k := keyOf(req.Holder)
	member, ok := st.Members.Get(k)
	if !ok {
		return domain.Abort(domain.ExitNotFound, "holder %s has no memberships", req.Holder)
	}
	i, found := slices.BinarySearchFunc(member.Organizations, req.Organization, domain.Address.Compare)
	if !found {
		return domain.Abort(domain.ExitNotMember, "holder %s is not a member of %s", req.Holder, req.Organization)
	}

	member.Organizations = slices.Delete(slices.Clone(member.Organizations), i, i+1)
	if len(member.Organizations) == 0 {
		st.Members.Delete(k)
	} else {
		st.Members.Set(k, member)
	}
	c.Logger().Debug("member removed", zap.Stringer("holder", req.Holder), zap.Stringer("organization", req.Organization))
	return nil
}
