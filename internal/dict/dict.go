// Package dict provides a persistent ordered map keyed by a fixed-width hash.
//
// Clone is O(1) and copy-on-write, so a handler can mutate a clone and
// discard it on abort while the committed map stays untouched.
package dict

import (
	"bytes"
	"crypto/sha256"
	"encoding/hex"
	"fmt"

	"github.com/fxamacker/cbor/v2"
	"github.com/google/btree"
)

// KeySize is the width of a key in bytes.
const KeySize = 32

// encMode sorts map keys canonically so equal maps encode to equal bytes.
var encMode = func() cbor.EncMode {
	em, err := cbor.CoreDetEncOptions().EncMode()
	if err != nil {
		panic(err)
	}
	return em
}()

// Key is a 256-bit dictionary key.
type Key [KeySize]byte

// KeyOf hashes a string into a key.
func KeyOf(s string) Key {
	return sha256.Sum256([]byte(s))
}

// KeyOfBytes hashes raw bytes into a key.
func KeyOfBytes(b []byte) Key {
	return sha256.Sum256(b)
}

// String returns the hex form of the key.
func (k Key) String() string {
	return hex.EncodeToString(k[:])
}

const degree = 16

type item[V any] struct {
	key   Key
	value V
}

func less[V any](a, b item[V]) bool {
	return bytes.Compare(a.key[:], b.key[:]) < 0
}

// Map is an ordered map from Key to V. The zero value is not usable; use New.
type Map[V any] struct {
	tree *btree.BTreeG[item[V]]
}

// New returns an empty map.
func New[V any]() *Map[V] {
	return &Map[V]{tree: btree.NewG[item[V]](degree, less[V])}
}

// Get returns the value stored under k.
func (m *Map[V]) Get(k Key) (V, bool) {
	it, ok := m.tree.Get(item[V]{key: k})
	return it.value, ok
}

// Has reports whether k is present.
func (m *Map[V]) Has(k Key) bool {
	return m.tree.Has(item[V]{key: k})
}

// Set stores v under k and reports whether an existing value was replaced.
func (m *Map[V]) Set(k Key, v V) bool {
	_, replaced := m.tree.ReplaceOrInsert(item[V]{key: k, value: v})
	return replaced
}

// Delete removes k and reports whether it was present.
func (m *Map[V]) Delete(k Key) bool {
	_, ok := m.tree.Delete(item[V]{key: k})
	return ok
}

// Len returns the number of entries.
func (m *Map[V]) Len() int {
	return m.tree.Len()
}

// Clone returns a copy sharing structure with m until either side is written.
func (m *Map[V]) Clone() *Map[V] {
	return &Map[V]{tree: m.tree.Clone()}
}

// Ascend calls fn for each entry in key order until fn returns false.
func (m *Map[V]) Ascend(fn func(k Key, v V) bool) {
	m.tree.Ascend(func(it item[V]) bool {
		return fn(it.key, it.value)
	})
}

// Keys returns all keys in order.
func (m *Map[V]) Keys() []Key {
	keys := make([]Key, 0, m.Len())
	m.Ascend(func(k Key, _ V) bool {
		keys = append(keys, k)
		return true
	})
	return keys
}

type entry[V any] struct {
	_     struct{} `cbor:",toarray"`
	Key   []byte
	Value V
}

// MarshalCBOR encodes the map as an ordered array of [key, value] pairs.
func (m *Map[V]) MarshalCBOR() ([]byte, error) {
	entries := make([]entry[V], 0, m.Len())
	m.Ascend(func(k Key, v V) bool {
		key := k
		entries = append(entries, entry[V]{Key: key[:], Value: v})
		return true
	})
	return encMode.Marshal(entries)
}

// UnmarshalCBOR decodes a map written by MarshalCBOR.
func (m *Map[V]) UnmarshalCBOR(data []byte) error {
	var entries []entry[V]
	if err := cbor.Unmarshal(data, &entries); err != nil {
		return err
	}
	m.tree = btree.NewG[item[V]](degree, less[V])
	for _, e := range entries {
		if len(e.Key) != KeySize {
			return fmt.Errorf("dict key length %d, want %d", len(e.Key), KeySize)
		}
		var k Key
		copy(k[:], e.Key)
		m.Set(k, e.Value)
	}
	return nil
}
