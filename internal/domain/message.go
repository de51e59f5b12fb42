package domain

// Message is one asynchronous, one-way message between accounts.
type Message struct {
	ID       string     // unique per message
	TraceID  string     // shared by every message caused by one external request
	From     Address    // sender; NoneAddress for external messages
	To       Address    // destination
	Value    Coins      // attached operating funds
	Bounce   bool       // bounce back to From if processing fails
	Bounced  bool       // this message is itself a bounce
	External bool       // submitted from outside the substrate
	Init     *StateInit // optional state init materializing the destination
	Body     []byte     // opcode, query id and payload
	// CreatedLT is the logical time of the transaction that produced the message.
	CreatedLT uint64
}

// IsExternalIn reports whether msg was submitted from outside the substrate
// and is paid for by its destination.
func (m Message) IsExternalIn() bool {
	return m.External && m.From.IsNone()
}
