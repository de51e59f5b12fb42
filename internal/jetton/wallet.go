package jetton

import (
	"errors"

	"go.uber.org/zap"

	"jetton-ledger/internal/codec"
	"jetton-ledger/internal/domain"
	"jetton-ledger/internal/vm"
)

// Wallet holds one owner's balance of one token.
type Wallet struct {
	cfg Config
}

// Receive dispatches one message.
func (w *Wallet) Receive(c *vm.Context, msg domain.Message) error {
	st, err := vm.Load[WalletState](c)
	if err != nil {
		return err
	}

	if msg.Bounced {
		return walletBounced(c, st, msg)
	}
	if len(msg.Body) == 0 {
		return nil
	}

	op, ok := codec.PeekOpcode(msg.Body)
	if !ok {
		return domain.Abort(domain.ExitUnknownAction, "body too short")
	}
	switch op {
	case domain.OpTransfer:
		err = w.transfer(c, st, msg)
	case domain.OpInternalTransfer:
		err = w.receiveTransfer(c, st, msg)
	case domain.OpBurn:
		err = w.burn(c, st, msg)
	case domain.OpWithdrawTons:
		err = w.withdraw(c, st, msg)
	default:
		return domain.Abort(domain.ExitUnknownAction, "unknown op %s", op)
	}
	if err != nil {
		return err
	}
	return c.Store(st)
}

func (w *Wallet) transfer(c *vm.Context, st *WalletState, msg domain.Message) error {
	req, err := codec.DecodeTransfer(msg.Body)
	malformed := errors.Is(err, codec.ErrMalformedPayload)
	if err != nil && !malformed {
		return err
	}

	if req.Destination.IsNone() || req.Destination.Workchain != domain.BasechainID {
		return domain.Abort(domain.ExitWrongWorkchain, "destination %s", req.Destination)
	}
	if msg.From != st.Owner {
		return domain.Abort(domain.ExitUnauthorizedTransfer, "sender %s is not owner", msg.From)
	}
	if st.Balance.LessThan(req.Amount) {
		return domain.Abort(domain.ExitNotEnoughJettons, "balance %s, requested %s", st.Balance, req.Amount)
	}
	if malformed {
		return domain.Abort(domain.ExitMalformedForwardPayload, "%v", err)
	}

	if required, ok := transferCost(c.Fees(), w.cfg.MinReserve, req.ForwardAmount); !ok || !msg.Value.GreaterThan(required) {
		return domain.Abort(domain.ExitNotEnoughTons, "value %s does not cover forwarding", msg.Value)
	}

	st.Balance = st.Balance.SubFloor(req.Amount)

	init := WalletInit(req.Destination, st.Master)
	c.Send(vm.OutMsg{
		To:     c.AddressOf(init),
		Mode:   vm.CarryInbound,
		Bounce: true,
		Init:   &init,
		Body: codec.InternalTransfer{
			QueryID:         req.QueryID,
			Amount:          req.Amount,
			From:            st.Owner,
			ResponseAddress: req.ResponseDestination,
			ForwardAmount:   req.ForwardAmount,
			ForwardPayload:  req.ForwardPayload,
		}.Encode(),
	})
	c.Logger().Debug("transfer", zap.Stringer("to", req.Destination), zap.Stringer("amount", req.Amount))
	return nil
}

// transferCost is what an InternalTransfer leg must carry to settle:
// forward + fwdCount*forwardFee + 2*computeFee + minReserve, covering both
// wallets' compute, the recipient's reserve and the forwarded messages.
// fwdCount is 2 when a transfer notification follows, else 1.
func transferCost(fees vm.Fees, minReserve, forward domain.Coins) (domain.Coins, bool) {
	fwdCount := uint64(1)
	if !forward.IsZero() {
		fwdCount = 2
	}
	fwdFees, err := fees.Forward.MulUint64(fwdCount)
	if err != nil {
		return domain.ZeroCoins, false
	}
	compute, err := fees.Compute.MulUint64(2)
	if err != nil {
		return domain.ZeroCoins, false
	}
	total := forward
	for _, c := range []domain.Coins{fwdFees, compute, minReserve} {
		if total, err = total.Add(c); err != nil {
			return domain.ZeroCoins, false
		}
	}
	return total, true
}

func (w *Wallet) receiveTransfer(c *vm.Context, st *WalletState, msg domain.Message) error {
	req, err := codec.DecodeInternalTransfer(msg.Body)
	if err != nil {
		return err
	}
	if msg.From != st.Master && msg.From != c.AddressOf(WalletInit(req.From, st.Master)) {
		return domain.Abort(domain.ExitUnauthorizedIncomingTransfer, "sender %s", msg.From)
	}

	balance, err := st.Balance.Add(req.Amount)
	if err != nil {
		return domain.Abort(domain.ExitFatal, "balance: %v", err)
	}
	st.Balance = balance

	// Keep the reserve topped up; whatever is left goes back as excesses.
	fees := c.Fees()
	toLeave := w.cfg.MinReserve.SubFloor(c.BalanceBefore())
	remaining := msg.Value.SubFloor(toLeave).SubFloor(fees.Compute)

	if !req.ForwardAmount.IsZero() {
		remaining = remaining.SubFloor(req.ForwardAmount).SubFloor(fees.Forward)
		c.Send(vm.OutMsg{
			To:    st.Owner,
			Value: req.ForwardAmount,
			Mode:  vm.PayFeesSeparately,
			Body: codec.TransferNotification{
				QueryID:        req.QueryID,
				Amount:         req.Amount,
				Sender:         req.From,
				ForwardPayload: req.ForwardPayload,
			}.Encode(),
		})
	}

	if !req.ResponseAddress.IsNone() && !remaining.IsZero() {
		c.Send(vm.OutMsg{
			To:    req.ResponseAddress,
			Value: remaining,
			Mode:  vm.IgnoreErrors,
			Body:  codec.EncodeQuery(domain.OpExcesses, req.QueryID),
		})
	}
	return nil
}

func (w *Wallet) burn(c *vm.Context, st *WalletState, msg domain.Message) error {
	req, err := codec.DecodeBurn(msg.Body)
	if err != nil {
		return err
	}
	if msg.From != st.Owner && msg.From != st.Master {
		return domain.Abort(domain.ExitUnauthorizedTransfer, "sender %s is neither owner nor master", msg.From)
	}
	if st.Balance.LessThan(req.Amount) {
		return domain.Abort(domain.ExitNotEnoughJettons, "balance %s, requested %s", st.Balance, req.Amount)
	}

	fees := c.Fees()
	compute, _ := fees.Compute.MulUint64(2)
	required, err := compute.Add(fees.Forward)
	if err != nil || !msg.Value.GreaterThan(required) {
		return domain.Abort(domain.ExitNotEnoughTons, "value %s does not cover the notification", msg.Value)
	}

	st.Balance = st.Balance.SubFloor(req.Amount)
	c.Send(vm.OutMsg{
		To:     st.Master,
		Mode:   vm.CarryInbound,
		Bounce: true,
		Body: codec.BurnNotification{
			QueryID:             req.QueryID,
			Amount:              req.Amount,
			Sender:              st.Owner,
			ResponseDestination: req.ResponseDestination,
		}.Encode(),
	})
	c.Logger().Debug("burn", zap.Stringer("amount", req.Amount))
	return nil
}

// withdraw sends the owner everything above the reserve.
func (w *Wallet) withdraw(c *vm.Context, st *WalletState, msg domain.Message) error {
	if msg.From != st.Owner {
		return domain.Abort(domain.ExitUnauthorizedTransfer, "sender %s is not owner", msg.From)
	}

	keep, err := w.cfg.MinReserve.Add(c.Fees().Forward)
	if err != nil {
		return domain.Abort(domain.ExitFatal, "reserve: %v", err)
	}
	amount, err := c.Balance().Sub(keep)
	if err != nil {
		return domain.Abort(domain.ExitNotEnoughTons, "balance %s is below the reserve", c.Balance())
	}

	c.Send(vm.OutMsg{
		To:    st.Owner,
		Value: amount,
		Mode:  vm.PayFeesSeparately,
		Body:  codec.EncodeQuery(domain.OpExcesses, codec.PeekQueryID(msg.Body)),
	})
	return nil
}

// walletBounced re-credits the amount of an outgoing leg that failed.
func walletBounced(c *vm.Context, st *WalletState, msg domain.Message) error {
	body, _ := codec.Unbounce(msg.Body)
	op, _ := codec.PeekOpcode(body)

	var amount domain.Coins
	switch op {
	case domain.OpInternalTransfer:
		req, err := codec.DecodeInternalTransfer(body)
		if err != nil {
			return err
		}
		amount = req.Amount
	case domain.OpBurnNotification:
		req, err := codec.DecodeBurnNotification(body)
		if err != nil {
			return err
		}
		amount = req.Amount
	default:
		return domain.Abort(domain.ExitUnknownActionBounced, "bounced op %s", op)
	}

	balance, err := st.Balance.Add(amount)
	if err != nil {
		return domain.Abort(domain.ExitFatal, "balance: %v", err)
	}
	st.Balance = balance
	c.Logger().Info("refunded bounced amount", zap.Stringer("op", op), zap.Stringer("amount", amount))
	return c.Store(st)
}
