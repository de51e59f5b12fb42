package storage

import (
	"fmt"

	"github.com/fxamacker/cbor/v2"

	"jetton-ledger/internal/domain"
)

// outboxRecord is the stored form of a queued message.
type outboxRecord struct {
	ID        string            `cbor:"1,keyasint"`
	TraceID   string            `cbor:"2,keyasint"`
	From      domain.Address    `cbor:"3,keyasint"`
	To        domain.Address    `cbor:"4,keyasint"`
	Value     domain.Coins      `cbor:"5,keyasint"`
	Bounce    bool              `cbor:"6,keyasint,omitempty"`
	Bounced   bool              `cbor:"7,keyasint,omitempty"`
	External  bool              `cbor:"8,keyasint,omitempty"`
	Init      *domain.StateInit `cbor:"9,keyasint,omitempty"`
	Body      []byte            `cbor:"10,keyasint,omitempty"`
	CreatedLT uint64            `cbor:"11,keyasint"`
}

var outboxEnc = func() cbor.EncMode {
	em, err := cbor.CoreDetEncOptions().EncMode()
	if err != nil {
		panic(err)
	}
	return em
}()

// EncodeMessage serializes a queued message for the outbox.
func EncodeMessage(m domain.Message) ([]byte, error) {
	if m.ID == "" {
		return nil, fmt.Errorf("%w: message without id", ErrInvalidInput)
	}
	b, err := outboxEnc.Marshal(outboxRecord(m))
	if err != nil {
		return nil, fmt.Errorf("encode message %s: %w", m.ID, err)
	}
	return b, nil
}

// DecodeMessage reverses EncodeMessage.
func DecodeMessage(data []byte) (domain.Message, error) {
	var r outboxRecord
	if err := cbor.Unmarshal(data, &r); err != nil {
		return domain.Message{}, fmt.Errorf("decode message: %w", err)
	}
	return domain.Message(r), nil
}
