package domain

// Transaction records the processing of one message by one account.
// Corresponds to the transactions table.
type Transaction struct {
	MessageID string  // processed message
	TraceID   string  // external request this message descends from
	LT        uint64  // logical time, unique and increasing
	Account   Address // processing account
	Sender    Address // message source
	Opcode    uint32  // 0 when the body is empty
	QueryID   uint64  // 0 when absent
	Value     Coins   // inbound value

	Bounce   bool // inbound was bounceable
	Bounced  bool // inbound was a bounce
	External bool // inbound came from outside the substrate
	Deployed bool // account was materialized by this message

	Aborted  bool     // state changes were discarded
	ExitCode ExitCode // 0 on success

	OutMessages int   // committed outbound messages (including a bounce)
	ComputeFee  Coins // fee charged for processing
	ForwardFees Coins // fees charged for outbound messages

	CreatedAt int64 // unix ms
}
