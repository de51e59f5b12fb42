// Package codec implements the binary wire format of message bodies.
//
// A body starts with a 32-bit opcode and a 64-bit query id, big-endian,
// followed by opcode-specific fields. Amounts are VarUInteger 16 (a length
// byte then big-endian bytes), addresses are a tag byte optionally followed by
// a workchain byte and a 32-byte hash, and nested payloads are uvarint
// length-prefixed byte strings ("refs").
package codec

import (
	"encoding/binary"
	"errors"
	"fmt"

	"github.com/multiformats/go-varint"

	"jetton-ledger/internal/domain"
)

// Decoding errors.
var (
	// ErrUnderflow is returned when a body ends before a required field.
	ErrUnderflow = errors.New("body underflow")

	// ErrMalformedPayload is returned when an either-encoded payload has no marker.
	ErrMalformedPayload = errors.New("malformed forward payload")

	// ErrUnexpectedOpcode is returned when decoding a body with a different opcode.
	ErrUnexpectedOpcode = errors.New("unexpected opcode")

	// ErrInvalidField is returned for out-of-range tags and lengths.
	ErrInvalidField = errors.New("invalid field")
)

const (
	addrTagNone = 0x00
	addrTagStd  = 0x01

	maxCoinsLen = domain.CoinsBits / 8
)

// HeaderSize is the size of the opcode plus query id prefix.
const HeaderSize = 12

// Writer appends fields to a body.
type Writer struct {
	buf []byte
}

// NewWriter starts a body with opcode and query id.
func NewWriter(op domain.Opcode, queryID uint64) *Writer {
	w := &Writer{buf: make([]byte, 0, 64)}
	w.Uint32(uint32(op))
	w.Uint64(queryID)
	return w
}

// Uint8 appends one byte.
func (w *Writer) Uint8(v uint8) *Writer {
	w.buf = append(w.buf, v)
	return w
}

// Uint32 appends a big-endian uint32.
func (w *Writer) Uint32(v uint32) *Writer {
	w.buf = binary.BigEndian.AppendUint32(w.buf, v)
	return w
}

// Uint64 appends a big-endian uint64.
func (w *Writer) Uint64(v uint64) *Writer {
	w.buf = binary.BigEndian.AppendUint64(w.buf, v)
	return w
}

// Coins appends an amount.
func (w *Writer) Coins(c domain.Coins) *Writer {
	b := c.Bytes()
	w.buf = append(w.buf, byte(len(b)))
	w.buf = append(w.buf, b...)
	return w
}

// Address appends an address; NoneAddress is written as a single tag byte.
func (w *Writer) Address(a domain.Address) *Writer {
	if a.IsNone() {
		w.buf = append(w.buf, addrTagNone)
		return w
	}
	w.buf = append(w.buf, addrTagStd, byte(a.Workchain))
	w.buf = append(w.buf, a.Hash[:]...)
	return w
}

// Ref appends a length-prefixed byte string.
func (w *Writer) Ref(b []byte) *Writer {
	w.buf = append(w.buf, varint.ToUvarint(uint64(len(b)))...)
	w.buf = append(w.buf, b...)
	return w
}

// MaybeRef appends a presence bit and, when b is non-nil, the ref.
func (w *Writer) MaybeRef(b []byte) *Writer {
	if b == nil {
		return w.Uint8(0)
	}
	return w.Uint8(1).Ref(b)
}

// Either appends a payload as inline-empty (marker 0) or as a ref (marker 1).
func (w *Writer) Either(b []byte) *Writer {
	if len(b) == 0 {
		return w.Uint8(0)
	}
	return w.Uint8(1).Ref(b)
}

// Text appends a UTF-8 string as a ref.
func (w *Writer) Text(s string) *Writer {
	return w.Ref([]byte(s))
}

// Raw appends bytes without framing.
func (w *Writer) Raw(b []byte) *Writer {
	w.buf = append(w.buf, b...)
	return w
}

// Bytes returns the encoded body.
func (w *Writer) Bytes() []byte {
	return w.buf
}

// Reader consumes fields from a body. The first error is sticky: later reads
// return zero values and Err reports it.
type Reader struct {
	buf []byte
	off int
	err error
}

// NewReader returns a reader positioned at the start of b.
func NewReader(b []byte) *Reader {
	return &Reader{buf: b}
}

// Err returns the first decoding error.
func (r *Reader) Err() error {
	return r.err
}

// Remaining returns the number of unread bytes.
func (r *Reader) Remaining() int {
	return len(r.buf) - r.off
}

func (r *Reader) fail(err error) {
	if r.err == nil {
		r.err = err
	}
}

func (r *Reader) take(n int, field string) []byte {
	if r.err != nil {
		return nil
	}
	if n < 0 || r.Remaining() < n {
		r.fail(fmt.Errorf("%w: %s needs %d bytes, have %d", ErrUnderflow, field, n, r.Remaining()))
		return nil
	}
	b := r.buf[r.off : r.off+n]
	r.off += n
	return b
}

// Uint8 reads one byte.
func (r *Reader) Uint8() uint8 {
	b := r.take(1, "uint8")
	if b == nil {
		return 0
	}
	return b[0]
}

// Uint32 reads a big-endian uint32.
func (r *Reader) Uint32() uint32 {
	b := r.take(4, "uint32")
	if b == nil {
		return 0
	}
	return binary.BigEndian.Uint32(b)
}

// Uint64 reads a big-endian uint64.
func (r *Reader) Uint64() uint64 {
	b := r.take(8, "uint64")
	if b == nil {
		return 0
	}
	return binary.BigEndian.Uint64(b)
}

// Coins reads an amount.
func (r *Reader) Coins() domain.Coins {
	n := int(r.Uint8())
	if r.err != nil {
		return domain.ZeroCoins
	}
	if n > maxCoinsLen {
		r.fail(fmt.Errorf("%w: coins length %d", ErrInvalidField, n))
		return domain.ZeroCoins
	}
	b := r.take(n, "coins")
	if r.err != nil {
		return domain.ZeroCoins
	}
	c, err := domain.CoinsFromBytes(b)
	if err != nil {
		r.fail(fmt.Errorf("%w: %v", ErrInvalidField, err))
		return domain.ZeroCoins
	}
	return c
}

// Address reads an address.
func (r *Reader) Address() domain.Address {
	tag := r.Uint8()
	if r.err != nil {
		return domain.NoneAddress
	}
	switch tag {
	case addrTagNone:
		return domain.NoneAddress
	case addrTagStd:
		wc := r.Uint8()
		h := r.take(32, "address hash")
		if r.err != nil {
			return domain.NoneAddress
		}
		var a domain.Address
		a.Workchain = int8(wc)
		copy(a.Hash[:], h)
		return a
	default:
		r.fail(fmt.Errorf("%w: address tag 0x%02x", ErrInvalidField, tag))
		return domain.NoneAddress
	}
}

// Ref reads a length-prefixed byte string.
func (r *Reader) Ref() []byte {
	if r.err != nil {
		return nil
	}
	n, size, err := varint.FromUvarint(r.buf[r.off:])
	if err != nil {
		r.fail(fmt.Errorf("%w: ref length: %v", ErrUnderflow, err))
		return nil
	}
	r.off += size
	if n > uint64(r.Remaining()) {
		r.fail(fmt.Errorf("%w: ref needs %d bytes, have %d", ErrUnderflow, n, r.Remaining()))
		return nil
	}
	b := r.take(int(n), "ref")
	if b == nil {
		return nil
	}
	return append([]byte{}, b...)
}

// MaybeRef reads a presence bit and, when set, a ref. Absent refs are nil.
func (r *Reader) MaybeRef() []byte {
	switch flag := r.Uint8(); {
	case r.err != nil:
		return nil
	case flag == 0:
		return nil
	case flag == 1:
		return r.Ref()
	default:
		r.fail(fmt.Errorf("%w: maybe flag 0x%02x", ErrInvalidField, flag))
		return nil
	}
}

// Either reads an either-encoded payload: marker 0 takes the rest of the body
// inline, marker 1 reads a ref. A missing marker is ErrMalformedPayload.
func (r *Reader) Either() []byte {
	if r.err != nil {
		return nil
	}
	if r.Remaining() < 1 {
		r.fail(ErrMalformedPayload)
		return nil
	}
	switch marker := r.Uint8(); marker {
	case 0:
		return r.Rest()
	case 1:
		return r.Ref()
	default:
		r.fail(fmt.Errorf("%w: marker 0x%02x", ErrMalformedPayload, marker))
		return nil
	}
}

// Text reads a UTF-8 string stored as a ref.
func (r *Reader) Text() string {
	return string(r.Ref())
}

// Rest consumes and returns all unread bytes.
func (r *Reader) Rest() []byte {
	if r.err != nil {
		return nil
	}
	b := append([]byte{}, r.buf[r.off:]...)
	r.off = len(r.buf)
	return b
}

// PeekOpcode returns the opcode of body, or false when the body is shorter than 4 bytes.
func PeekOpcode(body []byte) (domain.Opcode, bool) {
	if len(body) < 4 {
		return 0, false
	}
	return domain.Opcode(binary.BigEndian.Uint32(body)), true
}

// PeekQueryID returns the query id of body, or 0 when absent.
func PeekQueryID(body []byte) uint64 {
	if len(body) < HeaderSize {
		return 0
	}
	return binary.BigEndian.Uint64(body[4:HeaderSize])
}

// readHeader opens a reader on body and checks its opcode.
func readHeader(body []byte, want domain.Opcode) (*Reader, uint64, error) {
	r := NewReader(body)
	op := domain.Opcode(r.Uint32())
	queryID := r.Uint64()
	if r.err != nil {
		return nil, 0, r.err
	}
	if op != want {
		return nil, 0, fmt.Errorf("%w: got %s, want %s", ErrUnexpectedOpcode, op, want)
	}
	return r, queryID, nil
}

// Bounce wraps the body of a failed message for the bounce sent back to its sender.
func Bounce(body []byte) []byte {
	out := make([]byte, 0, 4+len(body))
	out = binary.BigEndian.AppendUint32(out, uint32(domain.OpBounced))
	return append(out, body...)
}

// Unbounce strips the bounce prefix, returning the original body.
func Unbounce(body []byte) ([]byte, bool) {
	op, ok := PeekOpcode(body)
	if !ok || op != domain.OpBounced {
		return nil, false
	}
	return body[4:], true
}
