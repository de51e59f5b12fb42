package jetton

import (
	"jetton-ledger/internal/codec"
	"jetton-ledger/internal/domain"
	"jetton-ledger/internal/vm"
)

// Operating funds attached to requests on top of any value they forward.
var (
	// GasAmount covers the master's own processing.
	GasAmount = domain.Nano("0.02")
	// WalletRequestAmount is attached to transfers and burns sent to a wallet.
	WalletRequestAmount = domain.Nano("0.1")
)

// DeployRequest deploys the token of admin with content.
func DeployRequest(admin domain.Address, content []byte) (vm.ExternalRequest, domain.Address) {
	init := MasterInit(admin, content)
	master := MasterAddress(nil, admin, content)
	return vm.ExternalRequest{
		From:   admin,
		To:     master,
		Value:  GasAmount,
		Bounce: false,
		Init:   &init,
	}, master
}

// MintRequest asks master to mint to the wallet of m.To.
func MintRequest(admin, master domain.Address, m codec.Mint) vm.ExternalRequest {
	return vm.ExternalRequest{
		From:   admin,
		To:     master,
		Value:  plus(m.TotalAmount, GasAmount),
		Bounce: true,
		Body:   m.Encode(),
	}
}

// BurnJettonsRequest asks master to burn from the wallet of m.To.
func BurnJettonsRequest(admin, master domain.Address, m codec.Mint) vm.ExternalRequest {
	return vm.ExternalRequest{
		From:   admin,
		To:     master,
		Value:  plus(m.TotalAmount, GasAmount),
		Bounce: true,
		Body:   m.EncodeBurnRequest(),
	}
}

// ChangeAdminRequest hands the admin role of master to newAdmin.
func ChangeAdminRequest(admin, master, newAdmin domain.Address, queryID uint64) vm.ExternalRequest {
	return vm.ExternalRequest{
		From:   admin,
		To:     master,
		Value:  GasAmount,
		Bounce: true,
		Body:   codec.ChangeAdmin{QueryID: queryID, NewAdmin: newAdmin}.Encode(),
	}
}

// ChangeMetadataRequest replaces master's metadata blob.
func ChangeMetadataRequest(admin, master domain.Address, content []byte, queryID uint64) vm.ExternalRequest {
	return vm.ExternalRequest{
		From:   admin,
		To:     master,
		Value:  GasAmount,
		Bounce: true,
		Body:   codec.ChangeMetadata{QueryID: queryID, Content: content}.Encode(),
	}
}

// TransferRequest asks owner's wallet for master to transfer t.Amount.
// value zero attaches WalletRequestAmount plus the forward amount.
func TransferRequest(owner, master domain.Address, t codec.Transfer, value domain.Coins) vm.ExternalRequest {
	if value.IsZero() {
		value = plus(WalletRequestAmount, t.ForwardAmount)
	}
	return vm.ExternalRequest{
		From:   owner,
		To:     WalletAddress(nil, owner, master),
		Value:  value,
		Bounce: true,
		Body:   t.Encode(),
	}
}

// BurnRequest asks owner's wallet for master to burn b.Amount.
func BurnRequest(owner, master domain.Address, b codec.Burn, value domain.Coins) vm.ExternalRequest {
	if value.IsZero() {
		value = WalletRequestAmount
	}
	return vm.ExternalRequest{
		From:   owner,
		To:     WalletAddress(nil, owner, master),
		Value:  value,
		Bounce: true,
		Body:   b.Encode(),
	}
}

// WithdrawRequest asks owner's wallet for master to return its spare funds.
func WithdrawRequest(owner, master domain.Address, queryID uint64) vm.ExternalRequest {
	return vm.ExternalRequest{
		From:   owner,
		To:     WalletAddress(nil, owner, master),
		Value:  GasAmount,
		Bounce: true,
		Body:   codec.EncodeQuery(domain.OpWithdrawTons, queryID),
	}
}

func plus(a, b domain.Coins) domain.Coins {
	sum, err := a.Add(b)
	if err != nil {
		return a
	}
	return sum
}
