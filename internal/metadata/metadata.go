// Package metadata encodes and decodes token metadata blobs.
//
// A blob is a layout byte (0x00 for on-chain) followed by a dictionary keyed
// by sha256(key name). Entries are written in key order as the 32-byte key,
// a uvarint length and the value, where each value is 0x00 followed by the
// key's bytes.
package metadata

import (
	"errors"
	"fmt"
	"sort"
	"unicode/utf8"

	"github.com/multiformats/go-varint"

	"jetton-ledger/internal/dict"
)

// Key names a supported metadata attribute.
type Key string

// Supported keys.
const (
	KeyName        Key = "name"
	KeyDescription Key = "description"
	KeyImage       Key = "image"
	KeyDecimals    Key = "decimals"
	KeySymbol      Key = "symbol"
)

// Encoding is the text encoding a key's value must satisfy.
type Encoding string

// Value encodings.
const (
	EncodingUTF8  Encoding = "utf8"
	EncodingASCII Encoding = "ascii"
)

// Keys maps every supported key to its value encoding.
var Keys = map[Key]Encoding{
	KeyName:        EncodingUTF8,
	KeyDescription: EncodingUTF8,
	KeyImage:       EncodingASCII,
	KeyDecimals:    EncodingUTF8,
	KeySymbol:      EncodingUTF8,
}

const (
	layoutOnChain = 0x00
	valuePrefix   = 0x00
)

// Metadata errors.
var (
	ErrUnsupportedKey = errors.New("unsupported metadata key")
	ErrInvalidValue   = errors.New("invalid metadata value")
	ErrMalformedBlob  = errors.New("malformed metadata blob")
)

// Metadata is a decoded set of attributes.
type Metadata map[Key]string

var hashes = func() map[dict.Key]Key {
	m := make(map[dict.Key]Key, len(Keys))
	for k := range Keys {
		m[dict.KeyOf(string(k))] = k
	}
	return m
}()

// Encode builds a blob from m. Empty values are omitted.
// A key outside Keys or a value violating its encoding is an error.
func Encode(m Metadata) ([]byte, error) {
	entries := dict.New[[]byte]()
	for k, v := range m {
		enc, ok := Keys[k]
		if !ok {
			return nil, fmt.Errorf("%w: %q", ErrUnsupportedKey, k)
		}
		if v == "" {
			continue
		}
		if err := validate(enc, v); err != nil {
			return nil, fmt.Errorf("%s: %w", k, err)
		}
		value := make([]byte, 0, len(v)+1)
		value = append(value, valuePrefix)
		value = append(value, v...)
		entries.Set(dict.KeyOf(string(k)), value)
	}

	blob := []byte{layoutOnChain}
	entries.Ascend(func(k dict.Key, v []byte) bool {
		blob = append(blob, k[:]...)
		blob = append(blob, varint.ToUvarint(uint64(len(v)))...)
		blob = append(blob, v...)
		return true
	})
	return blob, nil
}

// MustEncode is like Encode but panics on error.
func MustEncode(m Metadata) []byte {
	blob, err := Encode(m)
	if err != nil {
		panic(err)
	}
	return blob
}

// Decode parses a blob produced by Encode. Entries under hashes that match
// no supported key are skipped.
func Decode(blob []byte) (Metadata, error) {
	if len(blob) == 0 {
		return nil, fmt.Errorf("%w: empty", ErrMalformedBlob)
	}
	if blob[0] != layoutOnChain {
		return nil, fmt.Errorf("%w: layout 0x%02x", ErrMalformedBlob, blob[0])
	}

	m := make(Metadata)
	rest := blob[1:]
	var prev *dict.Key
	for len(rest) > 0 {
		if len(rest) < dict.KeySize {
			return nil, fmt.Errorf("%w: truncated key", ErrMalformedBlob)
		}
		var k dict.Key
		copy(k[:], rest[:dict.KeySize])
		rest = rest[dict.KeySize:]
		if prev != nil && string(prev[:]) >= string(k[:]) {
			return nil, fmt.Errorf("%w: keys out of order", ErrMalformedBlob)
		}
		prev = &k

		n, size, err := varint.FromUvarint(rest)
		if err != nil {
			return nil, fmt.Errorf("%w: value length: %v", ErrMalformedBlob, err)
		}
		rest = rest[size:]
		if n == 0 || n > uint64(len(rest)) {
			return nil, fmt.Errorf("%w: value length %d", ErrMalformedBlob, n)
		}
		value := rest[:n]
		rest = rest[n:]

		if value[0] != valuePrefix {
			return nil, fmt.Errorf("%w: value prefix 0x%02x", ErrMalformedBlob, value[0])
		}
		name, ok := hashes[k]
		if !ok {
			continue
		}
		m[name] = string(value[1:])
	}
	return m, nil
}

// SortedKeys returns the keys present in m in name order.
func (m Metadata) SortedKeys() []Key {
	keys := make([]Key, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Slice(keys, func(i, j int) bool { return keys[i] < keys[j] })
	return keys
}

func validate(enc Encoding, v string) error {
	switch enc {
	case EncodingASCII:
		for i := 0; i < len(v); i++ {
			if v[i] >= utf8.RuneSelf {
				return fmt.Errorf("%w: non-ascii byte at %d", ErrInvalidValue, i)
			}
		}
	case EncodingUTF8:
		if !utf8.ValidString(v) {
			return fmt.Errorf("%w: not valid utf8", ErrInvalidValue)
		}
	}
	return nil
}
