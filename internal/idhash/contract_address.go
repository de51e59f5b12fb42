package idhash

import (
	"crypto/sha256"

	"filippo.io/edwards25519"

	"jetton-ledger/internal/domain"
)

// contractMarker domain-separates contract addresses from holder addresses.
const contractMarker = "ContractDerivedAddress"

// ContractAddress derives the address an account materialized from init lives at.
// Formula: first SHA256(len(code)|code|data|bump|marker) with bump from 255 down
// that is not a valid ed25519 point, so no key holder can ever control it.
// Pure and deterministic: the same (code, data) always yields the same address.
func ContractAddress(workchain int8, init domain.StateInit) domain.Address {
	seed := make([]byte, 0, 2+len(init.Code)+len(init.Data))
	seed = append(seed, byte(len(init.Code)>>8), byte(len(init.Code)))
	seed = append(seed, string(init.Code)...)
	seed = append(seed, init.Data...)

	var hash [32]byte
	for bump := byte(255); bump > 0; bump-- {
		data := make([]byte, 0, len(seed)+1+len(contractMarker))
		data = append(data, seed...)
		data = append(data, bump)
		data = append(data, contractMarker...)

		hash = sha256.Sum256(data)

		if !isOnCurve(hash[:]) {
			break
		}
	}

	return domain.NewAddress(workchain, hash)
}

// HolderAddress derives a key-like holder identity from a seed, the way
// a named test treasury gets a stable address.
// Formula: SHA256("holder|" + seed)
func HolderAddress(workchain int8, seed string) domain.Address {
	return domain.NewAddress(workchain, sha256.Sum256([]byte("holder|"+seed)))
}

func isOnCurve(point []byte) bool {
	if len(point) != 32 {
		return false
	}
	_, err := new(edwards25519.Point).SetBytes(point)
	return err == nil
}
