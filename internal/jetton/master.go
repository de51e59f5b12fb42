package jetton

import (
	"go.uber.org/zap"

	"jetton-ledger/internal/codec"
	"jetton-ledger/internal/domain"
	"jetton-ledger/internal/metadata"
	"jetton-ledger/internal/vm"
)

// Master is the token contract. It tracks total supply, the admin and the
// metadata, and is the only actor that mints.
type Master struct {
	cfg Config
}

// Receive dispatches one message.
func (ms *Master) Receive(c *vm.Context, msg domain.Message) error {
	st, err := vm.Load[MasterState](c)
	if err != nil {
		return err
	}

	if msg.Bounced {
		return masterBounced(c, st, msg)
	}
	if len(msg.Body) == 0 {
		// Deployment and top-ups.
		return nil
	}

	op, ok := codec.PeekOpcode(msg.Body)
	if !ok {
		return domain.Abort(domain.ExitUnknownAction, "body too short")
	}
	switch op {
	case domain.OpMint:
		err = ms.mint(c, st, msg)
	case domain.OpBurnNotification:
		err = burnNotification(c, st, msg)
	case domain.OpBurnJettons:
		err = requestBurn(c, st, msg)
	case domain.OpChangeAdmin:
		err = changeAdmin(c, st, msg)
	case domain.OpChangeMetadata:
		err = changeMetadata(c, st, msg)
	case domain.OpExcesses:
		return nil
	default:
		return domain.Abort(domain.ExitUnknownAction, "unknown op %s", op)
	}
	if err != nil {
		return err
	}
	return c.Store(st)
}

// mint requires TotalAmount to exceed the wallet leg's transferCost, so the
// leg either settles at the wallet or bounces back and reverts the supply.
func (ms *Master) mint(c *vm.Context, st *MasterState, msg domain.Message) error {
	req, err := codec.DecodeMint(msg.Body)
	if err != nil {
		return err
	}
	if msg.From != st.Admin {
		return domain.Abort(domain.ExitUnauthorizedMintRequest, "sender %s is not admin", msg.From)
	}
	if req.To.IsNone() || req.To.Workchain != domain.BasechainID {
		return domain.Abort(domain.ExitWrongWorkchain, "recipient %s", req.To)
	}
	if required, ok := transferCost(c.Fees(), ms.cfg.MinReserve, req.ForwardAmount); !ok || !req.TotalAmount.GreaterThan(required) {
		return domain.Abort(domain.ExitNotEnoughTons, "total amount %s does not cover the wallet leg", req.TotalAmount)
	}

	supply, err := st.TotalSupply.Add(req.Amount)
	if err != nil {
		return domain.Abort(domain.ExitFatal, "total supply: %v", err)
	}
	st.TotalSupply = supply

	init := WalletInit(req.To, c.Self())
	c.Send(vm.OutMsg{
		To:     c.AddressOf(init),
		Value:  req.TotalAmount,
		Mode:   vm.PayFeesSeparately,
		Bounce: true,
		Init:   &init,
		Body: codec.InternalTransfer{
			QueryID:         req.QueryID,
			Amount:          req.Amount,
			From:            c.Self(),
			ResponseAddress: c.Self(),
			ForwardAmount:   req.ForwardAmount,
		}.Encode(),
	})
	c.Logger().Debug("mint", zap.Stringer("to", req.To), zap.Stringer("amount", req.Amount))
	return nil
}

func burnNotification(c *vm.Context, st *MasterState, msg domain.Message) error {
	req, err := codec.DecodeBurnNotification(msg.Body)
	if err != nil {
		return err
	}
	if want := c.AddressOf(WalletInit(req.Sender, c.Self())); msg.From != want {
		return domain.Abort(domain.ExitUnauthorizedBurnRequest, "sender %s is not the wallet of %s", msg.From, req.Sender)
	}

	supply, err := st.TotalSupply.Sub(req.Amount)
	if err != nil {
		return domain.Abort(domain.ExitFatal, "total supply: %v", err)
	}
	st.TotalSupply = supply

	if !req.ResponseDestination.IsNone() {
		c.Send(vm.OutMsg{
			To:   req.ResponseDestination,
			Mode: vm.CarryInbound | vm.IgnoreErrors,
			Body: codec.EncodeQuery(domain.OpExcesses, req.QueryID),
		})
	}
	return nil
}

func requestBurn(c *vm.Context, st *MasterState, msg domain.Message) error {
	req, err := codec.DecodeBurnRequest(msg.Body)
	if err != nil {
		return err
	}
	if msg.From != st.Admin {
		return domain.Abort(domain.ExitUnauthorizedBurnRequest, "sender %s is not admin", msg.From)
	}
	if req.To.IsNone() || req.To.Workchain != domain.BasechainID {
		return domain.Abort(domain.ExitWrongWorkchain, "holder %s", req.To)
	}

	c.Send(vm.OutMsg{
		To:     c.AddressOf(WalletInit(req.To, c.Self())),
		Value:  req.TotalAmount,
		Mode:   vm.PayFeesSeparately,
		Bounce: true,
		Body: codec.Burn{
			QueryID:             req.QueryID,
			Amount:              req.Amount,
			ResponseDestination: st.Admin,
		}.Encode(),
	})
	return nil
}

func changeAdmin(c *vm.Context, st *MasterState, msg domain.Message) error {
	req, err := codec.DecodeChangeAdmin(msg.Body)
	if err != nil {
		return err
	}
	if msg.From != st.Admin {
		return domain.Abort(domain.ExitUnauthorizedChangeAdminRequest, "sender %s is not admin", msg.From)
	}
	c.Logger().Info("admin changed", zap.Stringer("from", st.Admin), zap.Stringer("to", req.NewAdmin))
	st.Admin = req.NewAdmin
	return nil
}

func changeMetadata(_ *vm.Context, st *MasterState, msg domain.Message) error {
	req, err := codec.DecodeChangeMetadata(msg.Body)
	if err != nil {
		return err
	}
	if msg.From != st.Admin {
		return domain.Abort(domain.ExitUnauthorizedChangeContentRequest, "sender %s is not admin", msg.From)
	}
	if _, err := metadata.Decode(req.Content); err != nil {
		return domain.Abort(domain.ExitCellUnderflow, "content: %v", err)
	}
	st.Content = req.Content
	return nil
}

// masterBounced reverts the supply increase of a mint whose wallet leg failed.
// A bounced admin burn request needs no revert; supply only drops on the
// wallet's burn notification.
func masterBounced(c *vm.Context, st *MasterState, msg domain.Message) error {
	body, _ := codec.Unbounce(msg.Body)
	op, _ := codec.PeekOpcode(body)

	switch op {
	case domain.OpInternalTransfer:
		req, err := codec.DecodeInternalTransfer(body)
		if err != nil {
			return err
		}
		st.TotalSupply = st.TotalSupply.SubFloor(req.Amount)
		c.Logger().Info("mint bounced, supply reverted", zap.Stringer("amount", req.Amount))
		return c.Store(st)
	case domain.OpBurn:
		return nil
	default:
		return domain.Abort(domain.ExitUnknownActionBounced, "bounced op %s", op)
	}
}
