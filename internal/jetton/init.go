package jetton

import (
	"jetton-ledger/internal/domain"
	"jetton-ledger/internal/idhash"
	"jetton-ledger/internal/vm"
)

// MasterInit returns the state init of a token with zero supply.
func MasterInit(admin domain.Address, content []byte) domain.StateInit {
	return domain.StateInit{
		Code: MasterCode,
		Data: vm.MustEncodeState(MasterState{
			TotalSupply: domain.ZeroCoins,
			Admin:       admin,
			Content:     content,
			WalletCode:  WalletCode,
		}),
	}
}

// WalletInit returns the state init of owner's wallet for master.
// The wallet address is derived from it, so it must not depend on anything
// but the owner, the master and the wallet code.
func WalletInit(owner, master domain.Address) domain.StateInit {
	return domain.StateInit{
		Code: WalletCode,
		Data: vm.MustEncodeState(WalletState{
			Balance:    domain.ZeroCoins,
			Owner:      owner,
			Master:     master,
			WalletCode: WalletCode,
		}),
	}
}

// MasterAddress returns the address of the token deployed by admin with content.
func MasterAddress(d *idhash.Deriver, admin domain.Address, content []byte) domain.Address {
	return d.ContractAddress(domain.BasechainID, MasterInit(admin, content))
}

// WalletAddress returns the address of owner's wallet for master.
func WalletAddress(d *idhash.Deriver, owner, master domain.Address) domain.Address {
	return d.ContractAddress(domain.BasechainID, WalletInit(owner, master))
}
