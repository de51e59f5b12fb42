package jetton

import (
	"jetton-ledger/internal/domain"
)

// Codes of the jetton contracts.
const (
	MasterCode domain.CodeID = "jetton/master/v1"
	WalletCode domain.CodeID = "jetton/wallet/v1"
)

// MasterState is the token record kept by the master.
type MasterState struct {
	TotalSupply domain.Coins   `cbor:"1,keyasint"`
	Admin       domain.Address `cbor:"2,keyasint"`
	Content     []byte         `cbor:"3,keyasint"` // metadata blob
	WalletCode  domain.CodeID  `cbor:"4,keyasint"`
}

// WalletState is the state of one holder's wallet.
type WalletState struct {
	Balance    domain.Coins   `cbor:"1,keyasint"`
	Owner      domain.Address `cbor:"2,keyasint"`
	Master     domain.Address `cbor:"3,keyasint"`
	WalletCode domain.CodeID  `cbor:"4,keyasint"`
}
