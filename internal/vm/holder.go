package vm

import (
	"jetton-ledger/internal/domain"
)

// HolderCode is the built-in code of externally controlled accounts.
// A holder forwards each external request it receives as an internal
// message, paying the forward fee from its own balance.
const HolderCode domain.CodeID = "holder/v1"

// ExternalRequest is a message a holder is asked to send.
type ExternalRequest struct {
	From   domain.Address    `cbor:"-" json:"from"` // holder account
	To     domain.Address    `cbor:"1,keyasint" json:"to"`
	Value  domain.Coins      `cbor:"2,keyasint" json:"value"`
	Bounce bool              `cbor:"3,keyasint" json:"bounce"`
	Init   *domain.StateInit `cbor:"4,keyasint,omitempty" json:"init,omitempty"`
	Body   []byte            `cbor:"5,keyasint" json:"body"`
}

// HolderState is the persisted state of a holder.
type HolderState struct {
	Seqno uint64 `cbor:"1,keyasint"` // processed external requests
}

// HolderInit returns the state init of a fresh holder.
func HolderInit() domain.StateInit {
	return domain.StateInit{Code: HolderCode, Data: MustEncodeState(HolderState{})}
}

type holder struct{}

func (holder) Receive(c *Context, msg domain.Message) error {
	if !msg.IsExternalIn() {
		// Funding, notifications, excesses and bounces are all just credited.
		return nil
	}

	var req ExternalRequest
	if err := DecodeState(msg.Body, &req); err != nil {
		return domain.Abort(domain.ExitCellUnderflow, "holder request: %v", err)
	}

	st, err := Load[HolderState](c)
	if err != nil {
		return err
	}
	st.Seqno++
	if err := c.Store(st); err != nil {
		return err
	}

	c.Send(OutMsg{
		To:     req.To,
		Value:  req.Value,
		Mode:   PayFeesSeparately,
		Bounce: req.Bounce,
		Init:   req.Init,
		Body:   req.Body,
	})
	return nil
}
