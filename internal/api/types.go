package api

import (
	"time"

	"jetton-ledger/internal/domain"
	"jetton-ledger/internal/jetton"
	"jetton-ledger/internal/reporting"
)

// Amounts are base-unit integers in decimal form. Addresses use the raw
// "workchain:hex" form.

// HolderRequest creates or tops up the holder derived from Seed.
type HolderRequest struct {
	Seed   string       `json:"seed"`
	Amount domain.Coins `json:"amount"`
}

// FundRequest credits Amount to Address.
type FundRequest struct {
	Address domain.Address `json:"address"`
	Amount  domain.Coins   `json:"amount"`
}

// DeployRequest deploys a token master run by Admin.
type DeployRequest struct {
	Admin    domain.Address    `json:"admin"`
	Metadata map[string]string `json:"metadata,omitempty"`
	Content  []byte            `json:"content,omitempty"` // pre-encoded, wins over Metadata
}

// MintRequest is used for mint and admin burn.
type MintRequest struct {
	Admin         domain.Address `json:"admin"`
	QueryID       uint64         `json:"query_id,omitempty"`
	To            domain.Address `json:"to"`
	Amount        domain.Coins   `json:"amount"`
	ForwardAmount domain.Coins   `json:"forward_amount"`
	TotalAmount   domain.Coins   `json:"total_amount"`
}

// ChangeAdminRequest hands the master to NewAdmin.
type ChangeAdminRequest struct {
	Admin    domain.Address `json:"admin"`
	QueryID  uint64         `json:"query_id,omitempty"`
	NewAdmin domain.Address `json:"new_admin"`
}

// ChangeMetadataRequest replaces the token metadata.
type ChangeMetadataRequest struct {
	Admin    domain.Address    `json:"admin"`
	QueryID  uint64            `json:"query_id,omitempty"`
	Metadata map[string]string `json:"metadata,omitempty"`
	Content  []byte            `json:"content,omitempty"`
}

// TransferRequest moves jettons out of a wallet.
type TransferRequest struct {
	QueryID             uint64         `json:"query_id,omitempty"`
	Amount              domain.Coins   `json:"amount"`
	Destination         domain.Address `json:"destination"`
	ResponseDestination domain.Address `json:"response_destination,omitempty"`
	ForwardAmount       domain.Coins   `json:"forward_amount"`
	ForwardPayload      []byte         `json:"forward_payload,omitempty"`
	Value               domain.Coins   `json:"value,omitempty"` // defaults to the wallet request amount
}

// BurnRequest destroys jettons held by a wallet.
type BurnRequest struct {
	QueryID             uint64         `json:"query_id,omitempty"`
	Amount              domain.Coins   `json:"amount"`
	ResponseDestination domain.Address `json:"response_destination,omitempty"`
	Value               domain.Coins   `json:"value,omitempty"`
}

// WithdrawRequest returns a wallet's spare funds to its owner.
type WithdrawRequest struct {
	QueryID uint64 `json:"query_id,omitempty"`
}

// OrganizationRequest drives an organizations registry.
type OrganizationRequest struct {
	From     domain.Address `json:"from"`
	QueryID  uint64         `json:"query_id,omitempty"`
	Account  domain.Address `json:"account"`
	NewOwner domain.Address `json:"new_owner,omitempty"`
	Site     string         `json:"site,omitempty"`
}

// MembershipRequest drives a membership registry.
type MembershipRequest struct {
	Admin        domain.Address `json:"admin"`
	QueryID      uint64         `json:"query_id,omitempty"`
	Organization domain.Address `json:"organization,omitempty"`
	Holder       domain.Address `json:"holder,omitempty"`
	NewAdmin     domain.Address `json:"new_admin,omitempty"`
}

// Accepted is returned for every mutating request.
type Accepted struct {
	TraceID string         `json:"trace_id"`
	Address domain.Address `json:"address,omitempty"` // deployed or derived account
	Settled bool           `json:"settled"`           // the ledger drained before responding
}

// AccountView is the API form of a stored account.
type AccountView struct {
	Address   domain.Address `json:"address"`
	Friendly  string         `json:"friendly"`
	Code      domain.CodeID  `json:"code,omitempty"`
	Balance   domain.Coins   `json:"balance"`
	Active    bool           `json:"active"`
	LastLT    uint64         `json:"last_lt"`
	UpdatedAt int64          `json:"updated_at"`
}

// TransactionView is the API form of a transaction.
type TransactionView struct {
	MessageID   string          `json:"message_id"`
	TraceID     string          `json:"trace_id"`
	LT          uint64          `json:"lt"`
	Account     domain.Address  `json:"account"`
	Sender      domain.Address  `json:"sender"`
	Opcode      uint32          `json:"opcode"`
	Op          string          `json:"op"`
	QueryID     uint64          `json:"query_id"`
	Value       domain.Coins    `json:"value"`
	Bounce      bool            `json:"bounce"`
	Bounced     bool            `json:"bounced"`
	External    bool            `json:"external"`
	Deployed    bool            `json:"deployed"`
	Aborted     bool            `json:"aborted"`
	ExitCode    domain.ExitCode `json:"exit_code"`
	OutMessages int             `json:"out_messages"`
	ComputeFee  domain.Coins    `json:"compute_fee"`
	ForwardFees domain.Coins    `json:"forward_fees"`
	CreatedAt   int64           `json:"created_at"`
}

// WalletAddressView answers a wallet address lookup.
type WalletAddressView struct {
	Owner  domain.Address `json:"owner"`
	Master domain.Address `json:"master"`
	Wallet domain.Address `json:"wallet"`
}

// ExitCodeCount is one row of the exit code statistics.
type ExitCodeCount struct {
	ExitCode domain.ExitCode `json:"exit_code"`
	Messages uint64          `json:"messages"`
}

// HolderView is one row of a holder report.
type HolderView struct {
	Owner   domain.Address `json:"owner"`
	Wallet  domain.Address `json:"wallet"`
	Balance domain.Coins   `json:"balance"`
	Share   string         `json:"share_pct"`
}

// ReportView is the JSON form of a holder report.
type ReportView struct {
	GeneratedAt time.Time            `json:"generated_at"`
	Master      domain.Address       `json:"master"`
	Name        string               `json:"name,omitempty"`
	Symbol      string               `json:"symbol,omitempty"`
	Decimals    uint8                `json:"decimals"`
	Token       *jetton.TokenData    `json:"token"`
	Holders     []HolderView         `json:"holders"`
	Supply      *jetton.SupplyReport `json:"supply"`
}

// ErrorResponse is the body of every failed request.
type ErrorResponse struct {
	Error string `json:"error"`
}

func accountView(a *domain.Account) AccountView {
	return AccountView{
		Address:   a.Address,
		Friendly:  a.Address.Friendly(),
		Code:      a.Code,
		Balance:   a.Balance,
		Active:    a.Active,
		LastLT:    a.LastLT,
		UpdatedAt: a.UpdatedAt,
	}
}

func transactionView(tx *domain.Transaction) TransactionView {
	return TransactionView{
		MessageID:   tx.MessageID,
		TraceID:     tx.TraceID,
		LT:          tx.LT,
		Account:     tx.Account,
		Sender:      tx.Sender,
		Opcode:      tx.Opcode,
		Op:          opName(tx.Opcode),
		QueryID:     tx.QueryID,
		Value:       tx.Value,
		Bounce:      tx.Bounce,
		Bounced:     tx.Bounced,
		External:    tx.External,
		Deployed:    tx.Deployed,
		Aborted:     tx.Aborted,
		ExitCode:    tx.ExitCode,
		OutMessages: tx.OutMessages,
		ComputeFee:  tx.ComputeFee,
		ForwardFees: tx.ForwardFees,
		CreatedAt:   tx.CreatedAt,
	}
}

func reportView(r *reporting.Report) ReportView {
	holders := make([]HolderView, 0, len(r.Holders))
	for _, h := range r.Holders {
		holders = append(holders, HolderView{Owner: h.Owner, Wallet: h.Wallet, Balance: h.Balance, Share: h.Share})
	}
	return ReportView{
		GeneratedAt: r.GeneratedAt,
		Master:      r.Master,
		Name:        r.Name,
		Symbol:      r.Symbol,
		Decimals:    r.Decimals,
		Token:       r.Token,
		Holders:     holders,
		Supply:      r.Supply,
	}
}

func transactionViews(txs []*domain.Transaction) []TransactionView {
	out := make([]TransactionView, 0, len(txs))
	for _, tx := range txs {
		out = append(out, transactionView(tx))
	}
	return out
}

func opName(op uint32) string {
	if op == 0 {
		return ""
	}
	return domain.Opcode(op).String()
}
