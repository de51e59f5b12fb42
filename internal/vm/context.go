package vm

import (
	"context"
	"time"

	"go.uber.org/zap"

	"jetton-ledger/internal/domain"
)

// Context is the view a contract gets of the message being processed.
// Writes through it are buffered and only take effect if Receive returns nil
// and the queued messages can be funded.
type Context struct {
	ctx     context.Context
	machine *Machine
	msg     domain.Message
	logger  *zap.Logger

	balanceBefore domain.Coins
	balance       domain.Coins
	state         []byte
	outs          []OutMsg
	now           time.Time
}

// Context returns the request context.
func (c *Context) Context() context.Context { return c.ctx }

// Self returns the address of the running account.
func (c *Context) Self() domain.Address { return c.msg.To }

// Sender returns the message source. NoneAddress for external messages.
func (c *Context) Sender() domain.Address { return c.msg.From }

// Value returns the inbound value.
func (c *Context) Value() domain.Coins { return c.msg.Value }

// Balance returns the account balance after the inbound value was credited
// and the compute fee charged.
func (c *Context) Balance() domain.Coins { return c.balance }

// BalanceBefore returns the balance before the inbound value was credited.
func (c *Context) BalanceBefore() domain.Coins { return c.balanceBefore }

// Fees returns the fee schedule.
func (c *Context) Fees() Fees { return c.machine.fees }

// Now returns the processing time.
func (c *Context) Now() time.Time { return c.now }

// Logger returns a logger annotated with the message.
func (c *Context) Logger() *zap.Logger { return c.logger }

// State returns the current contract state.
func (c *Context) State() []byte { return c.state }

// SetState replaces the contract state.
func (c *Context) SetState(state []byte) { c.state = state }

// Send queues an outbound message.
func (c *Context) Send(out OutMsg) { c.outs = append(c.outs, out) }

// AddressOf returns the address an account materialized from init gets in
// the running account's workchain.
func (c *Context) AddressOf(init domain.StateInit) domain.Address {
	return c.machine.deriver.ContractAddress(c.msg.To.Workchain, init)
}
