// Package vm is the execution substrate: accounts running registered
// contracts that talk only through asynchronous messages.
//
// Each message is processed as one transaction. The inbound value is
// credited, the compute fee charged and the contract run against a buffered
// Context. State, balance and outbound messages are committed together only
// if the contract succeeds and every outbound message can be funded.
// Otherwise the buffer is discarded and a bounceable message is returned to
// its sender with the unspent value.
//
// Outbound messages are committed to the account store's outbox together
// with the account that sent them, and leave it together with the account
// that consumed them. A message survives a crash between the two, and
// Resume delivers it after the next start.
package vm

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"

	"jetton-ledger/internal/channel"
	"jetton-ledger/internal/codec"
	"jetton-ledger/internal/domain"
	"jetton-ledger/internal/idhash"
	"jetton-ledger/internal/storage"
)

// Contract is the code an account runs.
type Contract interface {
	// Receive handles one message. A non-nil error aborts the transaction;
	// use domain.Abort to pick the exit code.
	Receive(c *Context, msg domain.Message) error
}

// ContractFunc adapts a function to Contract.
type ContractFunc func(c *Context, msg domain.Message) error

// Receive calls f.
func (f ContractFunc) Receive(c *Context, msg domain.Message) error {
	return f(c, msg)
}

// FaucetAddress is the source of Fund and CreateHolder messages.
var FaucetAddress = idhash.HolderAddress(domain.MasterchainID, "faucet")

// ErrInvalidRequest is returned for requests missing a required field.
var ErrInvalidRequest = errors.New("invalid request")

// Option configures a Machine.
type Option func(*Machine)

// WithFees sets the fee schedule.
func WithFees(f Fees) Option {
	return func(m *Machine) { m.fees = f }
}

// WithLogger sets the logger. Defaults to a no-op logger.
func WithLogger(logger *zap.Logger) Option {
	return func(m *Machine) {
		if logger != nil {
			m.logger = logger
		}
	}
}

// WithTraceSink adds a sink receiving every transaction.
func WithTraceSink(s TraceSink) Option {
	return func(m *Machine) { m.sinks = append(m.sinks, s) }
}

// WithObserver sets the processing observer.
func WithObserver(o Observer) Option {
	return func(m *Machine) {
		if o != nil {
			m.observer = o
		}
	}
}

// WithChannelObserver sets the observer of the underlying message channel.
func WithChannelObserver(o channel.Observer) Option {
	return func(m *Machine) { m.channelObserver = o }
}

// WithTracer sets the tracer used for per-message spans.
// Defaults to the global otel tracer provider.
func WithTracer(t trace.Tracer) Option {
	return func(m *Machine) {
		if t != nil {
			m.tracer = t
		}
	}
}

// WithDeriver sets the address deriver. Defaults to an uncached deriver.
func WithDeriver(d *idhash.Deriver) Option {
	return func(m *Machine) { m.deriver = d }
}

// WithClock sets the time source.
func WithClock(now func() time.Time) Option {
	return func(m *Machine) { m.clock = now }
}

// Machine runs contracts on accounts.
type Machine struct {
	accounts storage.AccountStore
	fees     Fees
	deriver  *idhash.Deriver
	sinks    fanout
	observer Observer
	logger   *zap.Logger
	tracer   trace.Tracer
	clock    func() time.Time

	channel         *channel.Channel
	channelObserver channel.Observer

	codesMu sync.RWMutex
	codes   map[domain.CodeID]Contract

	lt atomic.Uint64

	// backlog is the outbox left by a previous run, delivered by Resume.
	backlog []domain.Message
	resumed atomic.Bool
}

// New creates a machine over accounts. Logical time resumes after the
// highest value already stored.
func New(ctx context.Context, accounts storage.AccountStore, opts ...Option) (*Machine, error) {
	m := &Machine{
		accounts: accounts,
		fees:     DefaultFees(),
		observer: nopObserver{},
		logger:   zap.NewNop(),
		tracer:   otel.Tracer("jetton-ledger/vm"),
		clock:    time.Now,
		codes:    make(map[domain.CodeID]Contract),
	}
	for _, opt := range opts {
		opt(m)
	}
	if err := m.fees.Validate(); err != nil {
		return nil, fmt.Errorf("fees: %w", err)
	}

	lt, err := accounts.LastLT(ctx)
	if err != nil {
		return nil, fmt.Errorf("load logical time: %w", err)
	}
	m.lt.Store(lt)

	if m.backlog, err = accounts.Outbox(ctx); err != nil {
		return nil, fmt.Errorf("load outbox: %w", err)
	}

	chOpts := []channel.Option{channel.WithLogger(m.logger.Named("channel"))}
	if m.channelObserver != nil {
		chOpts = append(chOpts, channel.WithObserver(m.channelObserver))
	}
	m.channel = channel.New(m.deliver, chOpts...)

	m.Register(HolderCode, holder{})
	return m, nil
}

// Register binds code to a contract implementation.
func (m *Machine) Register(code domain.CodeID, c Contract) {
	m.codesMu.Lock()
	defer m.codesMu.Unlock()
	m.codes[code] = c
}

func (m *Machine) contract(code domain.CodeID) (Contract, bool) {
	m.codesMu.RLock()
	defer m.codesMu.RUnlock()
	c, ok := m.codes[code]
	return c, ok
}

// Fees returns the fee schedule.
func (m *Machine) Fees() Fees { return m.fees }

// Deriver returns the address deriver.
func (m *Machine) Deriver() *idhash.Deriver { return m.deriver }

// AddressOf returns the address of the account materialized from init.
func (m *Machine) AddressOf(workchain int8, init domain.StateInit) domain.Address {
	return m.deriver.ContractAddress(workchain, init)
}

// Resume delivers the messages a previous run committed but never consumed.
// Call it once, after every contract is registered. It returns the number of
// messages handed to the channel.
func (m *Machine) Resume(_ context.Context) (int, error) {
	if !m.resumed.CompareAndSwap(false, true) {
		return 0, errors.New("vm: outbox already resumed")
	}
	backlog := m.backlog
	m.backlog = nil
	for i, msg := range backlog {
		if err := m.channel.Send(msg); err != nil {
			return i, fmt.Errorf("resume %s: %w", msg.ID, err)
		}
	}
	if len(backlog) > 0 {
		m.logger.Info("outbox resumed", zap.Int("messages", len(backlog)))
	}
	return len(backlog), nil
}

// Submit asks the holder req.From to send a message. It returns the trace id
// shared by every message the request causes.
func (m *Machine) Submit(ctx context.Context, req ExternalRequest) (string, error) {
	if req.From.IsNone() || req.To.IsNone() {
		return "", fmt.Errorf("%w: from and to are required", ErrInvalidRequest)
	}
	body, err := EncodeState(req)
	if err != nil {
		return "", err
	}

	traceID := idhash.NewTraceID()
	msg := domain.Message{
		ID:       idhash.ComputeMessageID(traceID, 0, 0),
		TraceID:  traceID,
		To:       req.From,
		External: true,
		Body:     body,
	}
	if err := m.enqueue(ctx, msg); err != nil {
		return "", fmt.Errorf("submit: %w", err)
	}
	return traceID, nil
}

// CreateHolder funds the holder derived from seed, materializing it on first use.
func (m *Machine) CreateHolder(ctx context.Context, seed string, amount domain.Coins) (domain.Address, string, error) {
	if seed == "" {
		return domain.NoneAddress, "", fmt.Errorf("%w: empty seed", ErrInvalidRequest)
	}
	addr := idhash.HolderAddress(domain.BasechainID, seed)
	init := HolderInit()
	traceID, err := m.fund(ctx, addr, amount, &init)
	return addr, traceID, err
}

// Fund credits amount to addr with a non-bounceable message.
func (m *Machine) Fund(ctx context.Context, addr domain.Address, amount domain.Coins) (string, error) {
	if addr.IsNone() {
		return "", fmt.Errorf("%w: empty address", ErrInvalidRequest)
	}
	return m.fund(ctx, addr, amount, nil)
}

func (m *Machine) fund(ctx context.Context, addr domain.Address, amount domain.Coins, init *domain.StateInit) (string, error) {
	traceID := idhash.NewTraceID()
	msg := domain.Message{
		ID:      idhash.ComputeMessageID(traceID, 0, 0),
		TraceID: traceID,
		From:    FaucetAddress,
		To:      addr,
		Value:   amount,
		Init:    init,
	}
	if err := m.enqueue(ctx, msg); err != nil {
		return "", fmt.Errorf("fund: %w", err)
	}
	return traceID, nil
}

// enqueue persists an inbound message before handing it to the channel.
// A message the channel refuses is withdrawn from the outbox again.
func (m *Machine) enqueue(ctx context.Context, msg domain.Message) error {
	if err := m.accounts.Commit(ctx, nil, "", []domain.Message{msg}); err != nil {
		return err
	}
	if err := m.channel.Send(msg); err != nil {
		if rerr := m.accounts.Commit(ctx, nil, msg.ID, nil); rerr != nil {
			m.logger.Warn("withdraw refused message", zap.String("message_id", msg.ID), zap.Error(rerr))
		}
		return err
	}
	return nil
}

// Account returns the stored account at addr. Returns storage.ErrNotFound
// if no message ever reached it.
func (m *Machine) Account(ctx context.Context, addr domain.Address) (*domain.Account, error) {
	return m.accounts.Get(ctx, addr)
}

// Drain waits until no message is queued or being processed.
func (m *Machine) Drain(ctx context.Context) error {
	return m.channel.Drain(ctx)
}

// Pending returns the number of queued and running deliveries.
func (m *Machine) Pending() int {
	return m.channel.Pending()
}

// Close stops accepting new requests and waits for in-flight traces. When
// ctx expires first, the undelivered messages stay in the outbox.
func (m *Machine) Close(ctx context.Context) error {
	return m.channel.Shutdown(ctx)
}

func (m *Machine) deliver(ctx context.Context, msg domain.Message) {
	start := m.clock()
	ctx, span := m.tracer.Start(ctx, "vm.deliver", trace.WithAttributes(
		attribute.String("message.id", msg.ID),
		attribute.String("message.trace_id", msg.TraceID),
		attribute.String("message.to", msg.To.String()),
		attribute.Bool("message.bounced", msg.Bounced),
	))
	defer span.End()

	tx, err := m.process(ctx, msg)
	if err != nil {
		m.logger.Error("process message",
			zap.String("message_id", msg.ID),
			zap.Stringer("to", msg.To),
			zap.Error(err))
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return
	}

	span.SetAttributes(
		attribute.Int("tx.exit_code", int(tx.ExitCode)),
		attribute.Bool("tx.aborted", tx.Aborted),
		attribute.Int64("tx.lt", int64(tx.LT)),
	)
	if tx.Aborted {
		span.SetStatus(codes.Error, fmt.Sprintf("exit code %d", tx.ExitCode))
	}

	if err := m.sinks.Record(ctx, tx); err != nil {
		m.logger.Error("record transaction", zap.String("message_id", msg.ID), zap.Error(err))
	}
	m.observer.TransactionProcessed(tx, m.clock().Sub(start))
}

// process runs one transaction and returns its record. An error means the
// account could not be loaded or committed; the message then stays in the
// outbox until the next Resume.
func (m *Machine) process(ctx context.Context, msg domain.Message) (*domain.Transaction, error) {
	acct, err := m.accounts.Get(ctx, msg.To)
	switch {
	case errors.Is(err, storage.ErrNotFound):
		acct = &domain.Account{Address: msg.To}
	case err != nil:
		return nil, fmt.Errorf("load account: %w", err)
	}
	orig := acct.Clone()

	lt := m.lt.Add(1)
	now := m.clock()
	tx := newTransaction(msg, lt, now)
	log := m.logger.With(
		zap.String("trace_id", msg.TraceID),
		zap.Uint64("lt", lt),
		zap.Stringer("account", msg.To),
		zap.Stringer("op", domain.Opcode(tx.Opcode)),
	)

	var contract Contract
	if acct.Active {
		contract, _ = m.contract(acct.Code)
	} else if m.canDeploy(msg) {
		contract, _ = m.contract(msg.Init.Code)
		acct.Code = msg.Init.Code
		acct.State = append([]byte(nil), msg.Init.Data...)
		acct.Active = true
		tx.Deployed = true
	}
	if contract == nil {
		return tx, m.noContract(ctx, orig, msg, tx, log)
	}

	// Compute phase.
	balance, err := acct.Balance.Add(msg.Value)
	if err != nil {
		return tx, m.abort(ctx, orig, msg, tx, domain.ExitFatal, domain.ZeroCoins, log)
	}
	if balance.LessThan(m.fees.Compute) {
		return tx, m.abort(ctx, orig, msg, tx, domain.ExitOutOfGas, domain.ZeroCoins, log)
	}
	balance = balance.SubFloor(m.fees.Compute)
	tx.ComputeFee = m.fees.Compute

	// Failed external requests are not charged.
	charged := m.fees.Compute
	if msg.IsExternalIn() {
		charged = domain.ZeroCoins
	}

	c := &Context{
		ctx:           ctx,
		machine:       m,
		msg:           msg,
		logger:        log,
		balanceBefore: orig.Balance,
		balance:       balance,
		state:         acct.State,
		now:           now,
	}
	if err := m.run(contract, c, msg); err != nil {
		code := exitCode(err)
		log.Debug("contract aborted", zap.Int32("exit_code", int32(code)), zap.Error(err))
		return tx, m.abort(ctx, orig, msg, tx, code, charged, log)
	}

	// Action phase.
	outs, balance, fwd, err := m.resolve(c, balance)
	if err != nil {
		log.Debug("action phase failed", zap.Error(err))
		return tx, m.abort(ctx, orig, msg, tx, domain.ExitActionFunds, charged, log)
	}

	acct.Balance = balance
	acct.State = c.state
	acct.LastLT = lt
	acct.UpdatedAt = now.UnixMilli()
	if err := m.commit(ctx, acct, msg, stamp(tx.TraceID, lt, outs), log); err != nil {
		return nil, err
	}

	tx.ForwardFees = fwd
	tx.OutMessages = len(outs)
	return tx, nil
}

func (m *Machine) canDeploy(msg domain.Message) bool {
	if msg.Init == nil {
		return false
	}
	if _, ok := m.contract(msg.Init.Code); !ok {
		return false
	}
	if msg.Init.Code == HolderCode {
		return msg.From == FaucetAddress
	}
	return m.deriver.ContractAddress(msg.To.Workchain, *msg.Init) == msg.To
}

func (m *Machine) run(contract Contract, c *Context, msg domain.Message) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = domain.Abort(domain.ExitFatal, "contract panicked: %v", r)
		}
	}()
	return contract.Receive(c, msg)
}

// exitCode maps a contract error to the exit code recorded for it.
func exitCode(err error) domain.ExitCode {
	if code, ok := domain.ExitCodeOf(err); ok && code != domain.ExitOK {
		return code
	}
	switch {
	case errors.Is(err, codec.ErrUnderflow),
		errors.Is(err, codec.ErrInvalidField),
		errors.Is(err, codec.ErrUnexpectedOpcode):
		return domain.ExitCellUnderflow
	default:
		return domain.ExitFatal
	}
}

// resolve turns queued messages into deliveries, charging their value and
// forward fee to balance in order.
func (m *Machine) resolve(c *Context, balance domain.Coins) ([]domain.Message, domain.Coins, domain.Coins, error) {
	fee := m.fees.Forward
	carried := c.msg.Value.SubFloor(m.fees.Compute)
	fwdTotal := domain.ZeroCoins

	var outs []domain.Message
	for i, out := range c.outs {
		value := out.Value
		if out.Mode.Has(CarryInbound) {
			var err error
			if value, err = value.Add(carried); err != nil {
				return nil, balance, fwdTotal, fmt.Errorf("message %d: %w", i, err)
			}
		}

		var debit, sent domain.Coins
		funded := true
		switch {
		case out.Mode.Has(CarryBalance):
			debit = balance
			sent, funded = subtract(balance, fee)
		case out.Mode.Has(PayFeesSeparately):
			sum, err := value.Add(fee)
			debit, sent = sum, value
			funded = err == nil
		default:
			debit = value
			sent, funded = subtract(value, fee)
		}
		if funded && debit.GreaterThan(balance) {
			funded = false
		}
		if !funded {
			if out.Mode.Has(IgnoreErrors) {
				continue
			}
			return nil, balance, fwdTotal, fmt.Errorf("message %d to %s: cannot fund %s from balance %s", i, out.To, debit, balance)
		}

		balance = balance.SubFloor(debit)
		fwdTotal, _ = fwdTotal.Add(fee)
		outs = append(outs, domain.Message{
			From:   c.msg.To,
			To:     out.To,
			Value:  sent,
			Bounce: out.Bounce,
			Init:   out.Init,
			Body:   out.Body,
		})
	}
	return outs, balance, fwdTotal, nil
}

func subtract(a, b domain.Coins) (domain.Coins, bool) {
	d, err := a.Sub(b)
	return d, err == nil
}

// abort discards the transaction's effects on orig, keeps the compute fee
// and refunds the rest of the inbound value by bounce when possible.
func (m *Machine) abort(ctx context.Context, orig *domain.Account, msg domain.Message, tx *domain.Transaction,
	code domain.ExitCode, charged domain.Coins, log *zap.Logger) error {
	tx.Aborted = true
	tx.ExitCode = code
	tx.ComputeFee = charged
	tx.Deployed = false

	remaining, err := msg.Value.Sub(charged)
	if err != nil {
		// The inbound value does not cover the compute fee; the account pays the rest.
		orig.Balance = orig.Balance.SubFloor(charged.SubFloor(msg.Value))
		remaining = domain.ZeroCoins
	}

	var outs []domain.Message
	if m.bounceable(msg) && remaining.GreaterThan(m.fees.Forward) {
		outs = m.bounce(msg, tx, remaining)
	} else if !remaining.IsZero() {
		if orig.Balance, err = orig.Balance.Add(remaining); err != nil {
			return fmt.Errorf("credit account: %w", err)
		}
	}

	log.Info("transaction aborted", zap.Int32("exit_code", int32(code)), zap.Bool("bounced_back", len(outs) > 0))
	return m.storeAborted(ctx, orig, msg, tx, outs, log)
}

// noContract handles a message to an account without code: bounceable
// messages return to the sender, anything else is credited.
func (m *Machine) noContract(ctx context.Context, orig *domain.Account, msg domain.Message, tx *domain.Transaction, log *zap.Logger) error {
	if m.bounceable(msg) || msg.IsExternalIn() {
		tx.Aborted = true
		tx.ExitCode = domain.ExitNoContract
		var outs []domain.Message
		if m.bounceable(msg) && msg.Value.GreaterThan(m.fees.Forward) {
			outs = m.bounce(msg, tx, msg.Value)
		}
		log.Debug("no contract at destination", zap.Bool("bounced_back", len(outs) > 0))
		return m.storeAborted(ctx, orig, msg, tx, outs, log)
	}

	balance, err := orig.Balance.Add(msg.Value)
	if err != nil {
		return fmt.Errorf("credit account: %w", err)
	}
	orig.Balance = balance
	orig.LastLT = tx.LT
	orig.UpdatedAt = tx.CreatedAt
	return m.commit(ctx, orig, msg, nil, log)
}

// storeAborted commits orig only if the account exists or holds funds; the
// message is consumed either way.
func (m *Machine) storeAborted(ctx context.Context, orig *domain.Account, msg domain.Message, tx *domain.Transaction,
	outs []domain.Message, log *zap.Logger) error {
	var acct *domain.Account
	if orig.Active || !orig.Balance.IsZero() || orig.LastLT != 0 {
		orig.LastLT = tx.LT
		orig.UpdatedAt = tx.CreatedAt
		acct = orig
	}
	return m.commit(ctx, acct, msg, outs, log)
}

// commit stores acct, consumes msg and queues outs in one store call, then
// hands outs to the channel.
func (m *Machine) commit(ctx context.Context, acct *domain.Account, msg domain.Message, outs []domain.Message, log *zap.Logger) error {
	if err := m.accounts.Commit(ctx, acct, msg.ID, outs); err != nil {
		return fmt.Errorf("commit transaction: %w", err)
	}
	for _, out := range outs {
		if err := m.channel.Send(out); err != nil {
			log.Warn("message left in outbox", zap.String("message_id", out.ID), zap.Stringer("to", out.To), zap.Error(err))
		}
	}
	return nil
}

func (m *Machine) bounceable(msg domain.Message) bool {
	return msg.Bounce && !msg.Bounced && !msg.From.IsNone()
}

// bounce builds the message returning value, less the forward fee, to the
// sender of msg.
func (m *Machine) bounce(msg domain.Message, tx *domain.Transaction, value domain.Coins) []domain.Message {
	b := domain.Message{
		From:    msg.To,
		To:      msg.From,
		Value:   value.SubFloor(m.fees.Forward),
		Bounced: true,
		Body:    codec.Bounce(msg.Body),
	}
	tx.OutMessages = 1
	tx.ForwardFees = m.fees.Forward
	return stamp(tx.TraceID, tx.LT, []domain.Message{b})
}

// stamp gives outs the trace, logical time and ids of the transaction that
// produced them.
func stamp(traceID string, lt uint64, outs []domain.Message) []domain.Message {
	for i := range outs {
		outs[i].TraceID = traceID
		outs[i].CreatedLT = lt
		outs[i].ID = idhash.ComputeMessageID(traceID, lt, i)
	}
	return outs
}

func newTransaction(msg domain.Message, lt uint64, now time.Time) *domain.Transaction {
	tx := &domain.Transaction{
		MessageID:   msg.ID,
		TraceID:     msg.TraceID,
		LT:          lt,
		Account:     msg.To,
		Sender:      msg.From,
		Value:       msg.Value,
		Bounce:      msg.Bounce,
		Bounced:     msg.Bounced,
		External:    msg.External,
		ComputeFee:  domain.ZeroCoins,
		ForwardFees: domain.ZeroCoins,
		CreatedAt:   now.UnixMilli(),
	}
	body := msg.Body
	if msg.IsExternalIn() {
		// Holder requests are CBOR; record the body the holder forwards.
		var req ExternalRequest
		if DecodeState(body, &req) == nil {
			body = req.Body
		} else {
			body = nil
		}
	}
	if op, ok := codec.PeekOpcode(body); ok {
		tx.Opcode = uint32(op)
		if inner, ok := codec.Unbounce(body); ok {
			body = inner
		}
	}
	tx.QueryID = codec.PeekQueryID(body)
	return tx
}
