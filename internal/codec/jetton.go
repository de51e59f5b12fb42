package codec

import "jetton-ledger/internal/domain"

// Transfer asks a wallet to move jettons to another owner.
type Transfer struct {
	QueryID             uint64
	Amount              domain.Coins
	Destination         domain.Address // recipient owner, not wallet
	ResponseDestination domain.Address // receives the excess funds
	CustomPayload       []byte         // optional
	ForwardAmount       domain.Coins   // attached to the recipient notification
	ForwardPayload      []byte
}

// Encode returns the wire body.
func (b Transfer) Encode() []byte {
	return NewWriter(domain.OpTransfer, b.QueryID).
		Coins(b.Amount).
		Address(b.Destination).
		Address(b.ResponseDestination).
		MaybeRef(b.CustomPayload).
		Coins(b.ForwardAmount).
		Either(b.ForwardPayload).
		Bytes()
}

// DecodeTransfer parses a transfer body.
func DecodeTransfer(body []byte) (Transfer, error) {
	r, queryID, err := readHeader(body, domain.OpTransfer)
	if err != nil {
		return Transfer{}, err
	}
	b := Transfer{
		QueryID:             queryID,
		Amount:              r.Coins(),
		Destination:         r.Address(),
		ResponseDestination: r.Address(),
		CustomPayload:       r.MaybeRef(),
		ForwardAmount:       r.Coins(),
	}
	b.ForwardPayload = r.Either()
	return b, r.Err()
}

// InternalTransfer credits jettons to the receiving wallet.
type InternalTransfer struct {
	QueryID         uint64
	Amount          domain.Coins
	From            domain.Address // owner the jettons came from
	ResponseAddress domain.Address
	ForwardAmount   domain.Coins
	ForwardPayload  []byte
}

// Encode returns the wire body.
func (b InternalTransfer) Encode() []byte {
	return NewWriter(domain.OpInternalTransfer, b.QueryID).
		Coins(b.Amount).
		Address(b.From).
		Address(b.ResponseAddress).
		Coins(b.ForwardAmount).
		Either(b.ForwardPayload).
		Bytes()
}

// DecodeInternalTransfer parses an internal transfer body.
func DecodeInternalTransfer(body []byte) (InternalTransfer, error) {
	r, queryID, err := readHeader(body, domain.OpInternalTransfer)
	if err != nil {
		return InternalTransfer{}, err
	}
	b := InternalTransfer{
		QueryID:         queryID,
		Amount:          r.Coins(),
		From:            r.Address(),
		ResponseAddress: r.Address(),
		ForwardAmount:   r.Coins(),
	}
	b.ForwardPayload = r.Either()
	return b, r.Err()
}

// TransferNotification tells an owner that jettons arrived.
type TransferNotification struct {
	QueryID        uint64
	Amount         domain.Coins
	Sender         domain.Address
	ForwardPayload []byte
}

// Encode returns the wire body.
func (b TransferNotification) Encode() []byte {
	return NewWriter(domain.OpTransferNotification, b.QueryID).
		Coins(b.Amount).
		Address(b.Sender).
		Either(b.ForwardPayload).
		Bytes()
}

// DecodeTransferNotification parses a transfer notification body.
func DecodeTransferNotification(body []byte) (TransferNotification, error) {
	r, queryID, err := readHeader(body, domain.OpTransferNotification)
	if err != nil {
		return TransferNotification{}, err
	}
	b := TransferNotification{
		QueryID: queryID,
		Amount:  r.Coins(),
		Sender:  r.Address(),
	}
	b.ForwardPayload = r.Either()
	return b, r.Err()
}

// Burn asks a wallet to destroy jettons.
type Burn struct {
	QueryID             uint64
	Amount              domain.Coins
	ResponseDestination domain.Address
	CustomPayload       []byte
}

// Encode returns the wire body.
func (b Burn) Encode() []byte {
	return NewWriter(domain.OpBurn, b.QueryID).
		Coins(b.Amount).
		Address(b.ResponseDestination).
		MaybeRef(b.CustomPayload).
		Bytes()
}

// DecodeBurn parses a burn body.
func DecodeBurn(body []byte) (Burn, error) {
	r, queryID, err := readHeader(body, domain.OpBurn)
	if err != nil {
		return Burn{}, err
	}
	b := Burn{
		QueryID:             queryID,
		Amount:              r.Coins(),
		ResponseDestination: r.Address(),
		CustomPayload:       r.MaybeRef(),
	}
	return b, r.Err()
}

// BurnNotification reports a completed burn to the master.
type BurnNotification struct {
	QueryID             uint64
	Amount              domain.Coins
	Sender              domain.Address // owner of the burning wallet
	ResponseDestination domain.Address
}

// Encode returns the wire body.
func (b BurnNotification) Encode() []byte {
	return NewWriter(domain.OpBurnNotification, b.QueryID).
		Coins(b.Amount).
		Address(b.Sender).
		Address(b.ResponseDestination).
		Bytes()
}

// DecodeBurnNotification parses a burn notification body.
func DecodeBurnNotification(body []byte) (BurnNotification, error) {
	r, queryID, err := readHeader(body, domain.OpBurnNotification)
	if err != nil {
		return BurnNotification{}, err
	}
	b := BurnNotification{
		QueryID:             queryID,
		Amount:              r.Coins(),
		Sender:              r.Address(),
		ResponseDestination: r.Address(),
	}
	return b, r.Err()
}

// Mint issues new jettons to an owner. The same layout carries admin burn
// requests (OpBurnJettons).
type Mint struct {
	QueryID       uint64
	To            domain.Address
	Amount        domain.Coins
	ForwardAmount domain.Coins
	TotalAmount   domain.Coins // operating funds attached to the wallet message
}

// Encode returns the wire body of a mint.
func (b Mint) Encode() []byte {
	return b.encode(domain.OpMint)
}

// EncodeBurnRequest returns the wire body of an admin burn request.
func (b Mint) EncodeBurnRequest() []byte {
	return b.encode(domain.OpBurnJettons)
}

func (b Mint) encode(op domain.Opcode) []byte {
	return NewWriter(op, b.QueryID).
		Address(b.To).
		Coins(b.Amount).
		Coins(b.ForwardAmount).
		Coins(b.TotalAmount).
		Bytes()
}

// DecodeMint parses a mint body.
func DecodeMint(body []byte) (Mint, error) {
	return decodeMintLike(body, domain.OpMint)
}

// DecodeBurnRequest parses an admin burn request body.
func DecodeBurnRequest(body []byte) (Mint, error) {
	return decodeMintLike(body, domain.OpBurnJettons)
}

func decodeMintLike(body []byte, op domain.Opcode) (Mint, error) {
	r, queryID, err := readHeader(body, op)
	if err != nil {
		return Mint{}, err
	}
	b := Mint{
		QueryID:       queryID,
		To:            r.Address(),
		Amount:        r.Coins(),
		ForwardAmount: r.Coins(),
		TotalAmount:   r.Coins(),
	}
	return b, r.Err()
}

// ChangeAdmin hands the admin role to a new identity.
type ChangeAdmin struct {
	QueryID  uint64
	NewAdmin domain.Address
}

// Encode returns the wire body.
func (b ChangeAdmin) Encode() []byte {
	return NewWriter(domain.OpChangeAdmin, b.QueryID).Address(b.NewAdmin).Bytes()
}

// DecodeChangeAdmin parses a change admin body.
func DecodeChangeAdmin(body []byte) (ChangeAdmin, error) {
	r, queryID, err := readHeader(body, domain.OpChangeAdmin)
	if err != nil {
		return ChangeAdmin{}, err
	}
	b := ChangeAdmin{QueryID: queryID, NewAdmin: r.Address()}
	return b, r.Err()
}

// ChangeMetadata replaces the token metadata blob.
type ChangeMetadata struct {
	QueryID uint64
	Content []byte
}

// Encode returns the wire body.
func (b ChangeMetadata) Encode() []byte {
	return NewWriter(domain.OpChangeMetadata, b.QueryID).Ref(b.Content).Bytes()
}

// DecodeChangeMetadata parses a change metadata body.
func DecodeChangeMetadata(body []byte) (ChangeMetadata, error) {
	r, queryID, err := readHeader(body, domain.OpChangeMetadata)
	if err != nil {
		return ChangeMetadata{}, err
	}
	b := ChangeMetadata{QueryID: queryID, Content: r.Ref()}
	return b, r.Err()
}

// EncodeQuery returns a body carrying only an opcode and query id
// (excesses, withdraw).
func EncodeQuery(op domain.Opcode, queryID uint64) []byte {
	return NewWriter(op, queryID).Bytes()
}
