package domain

import "fmt"

// Opcode is the 32-bit operation tag at the start of every message body.
type Opcode uint32

// Jetton protocol opcodes.
const (
	OpTransfer             Opcode = 0x0f8a7ea5
	OpTransferNotification Opcode = 0x7362d09c
	OpInternalTransfer     Opcode = 0x178d4519
	OpExcesses             Opcode = 0xd53276db
	OpBurn                 Opcode = 0x595f07bc
	OpBurnNotification     Opcode = 0x7bdd97de
	OpWithdrawTons         Opcode = 0x6d8e5e3c
	OpBurnJettons          Opcode = 0x25938561
	OpMint                 Opcode = 0x1674b0a0
	OpChangeAdmin          Opcode = 0xd4deb03b
	OpChangeMetadata       Opcode = 0x0ec29200

	// OpBounced prefixes the body of a bounced message.
	OpBounced Opcode = 0xffffffff
)

var opcodeNames = map[Opcode]string{
	OpTransfer:             "transfer",
	OpTransferNotification: "transfer_notification",
	OpInternalTransfer:     "internal_transfer",
	OpExcesses:             "excesses",
	OpBurn:                 "burn",
	OpBurnNotification:     "burn_notification",
	OpWithdrawTons:         "withdraw_tons",
	OpBurnJettons:          "burn_jettons",
	OpMint:                 "mint",
	OpChangeAdmin:          "change_admin",
	OpChangeMetadata:       "change_metadata",
	OpBounced:              "bounced",
}

// String returns a readable name, or the hex value for unknown opcodes.
func (o Opcode) String() string {
	if name, ok := opcodeNames[o]; ok {
		return name
	}
	return fmt.Sprintf("0x%08x", uint32(o))
}
