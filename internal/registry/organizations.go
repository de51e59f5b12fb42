package registry

import (
	"go.uber.org/zap"

	"jetton-ledger/internal/codec"
	"jetton-ledger/internal/dict"
	"jetton-ledger/internal/domain"
	"jetton-ledger/internal/vm"
)

// Organization is one registered organization.
type Organization struct {
	Account domain.Address `cbor:"1,keyasint" json:"account"`
	Owner   domain.Address `cbor:"2,keyasint" json:"owner"`
	Site    string         `cbor:"3,keyasint" json:"site"`
}

// OrganizationsState is the state of an organizations registry.
type OrganizationsState struct {
	Label string                  `cbor:"1,keyasint"` // distinguishes registries
	Orgs  *dict.Map[Organization] `cbor:"2,keyasint"`
}

// OrganizationsInit returns the state init of an empty registry.
func OrganizationsInit(label string) domain.StateInit {
	return domain.StateInit{
		Code: OrganizationsCode,
		Data: vm.MustEncodeState(OrganizationsState{Label: label, Orgs: dict.New[Organization]()}),
	}
}

// Organizations is the organizations registry contract.
type Organizations struct {
	ops Opcodes
}

// Receive dispatches one message.
func (o *Organizations) Receive(c *vm.Context, msg domain.Message) error {
	if msg.Bounced || len(msg.Body) == 0 {
		return nil
	}
	st, err := vm.Load[OrganizationsState](c)
	if err != nil {
		return err
	}
	if st.Orgs == nil {
		st.Orgs = dict.New[Organization]()
	}

	op, ok := codec.PeekOpcode(msg.Body)
	if !ok {
		return domain.Abort(domain.ExitUnknownAction, "body too short")
	}
	switch op {
	case o.ops.Create:
		err = createOrganization(c, st, msg)
	case o.ops.Remove:
		err = removeOrganization(c, st, msg)
	case o.ops.ChangeOwner:
		err = changeOwner(st, msg)
	case o.ops.ChangeSite:
		err = changeSite(st, msg)
	default:
		return domain.Abort(domain.ExitUnknownAction, "unknown op %s", op)
	}
	if err != nil {
		return err
	}
	return c.Store(st)
}

func createOrganization(c *vm.Context, st *OrganizationsState, msg domain.Message) error {
	req, err := decodeCreate(msg.Body)
	if err != nil {
		return err
	}
	k := keyOf(req.Account)
	if st.Orgs.Has(k) {
		return domain.Abort(domain.ExitAlreadyExists, "organization %s exists", req.Account)
	}
	st.Orgs.Set(k, Organization{Account: req.Account, Owner: msg.From, Site: req.Site})
	c.Logger().Info("organization created", zap.Stringer("account", req.Account), zap.Stringer("owner", msg.From))
	return nil
}

func removeOrganization(c *vm.Context, st *OrganizationsState, msg domain.Message) error {
	req, err := decodeRemove(msg.Body)
	if err != nil {
		return err
	}
	k, _, err := owned(st, req.Account, msg.From)
	if err != nil {
		return err
	}
	st.Orgs.Delete(k)
	c.Logger().Info("organization removed", zap.Stringer("account", req.Account))
	return nil
}

func changeOwner(st *OrganizationsState, msg domain.Message) error {
	req, err := decodeChangeOwner(msg.Body)
	if err != nil {
		return err
	}
	k, org, err := owned(st, req.Account, msg.From)
	if err != nil {
		return err
	}
	org.Owner = req.NewOwner
	st.Orgs.Set(k, org)
	return nil
}

func changeSite(st *OrganizationsState, msg domain.Message) error {
	req, err := decodeChangeSite(msg.Body)
	if err != nil {
		return err
	}
	k, org, err := owned(st, req.Account, msg.From)
	if err != nil {
		return err
	}
	org.Site = req.Site
	st.Orgs.Set(k, org)
	return nil
}

// owned looks account up and checks sender owns it.
func owned(st *OrganizationsState, account, sender domain.Address) (dict.Key, Organization, error) {
	k := keyOf(account)
	org, ok := st.Orgs.Get(k)
	if !ok {
		return k, org, domain.Abort(domain.ExitNotFound, "organization %s", account)
	}
	if org.Owner != sender {
		return k, org, domain.Abort(domain.ExitNotOwner, "sender %s does not own %s", sender, account)
	}
	return k, org, nil
}
