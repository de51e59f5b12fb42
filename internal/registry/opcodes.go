package registry

import (
	"fmt"

	"jetton-ledger/internal/domain"
)

// Opcodes assigns wire opcodes to registry operations. The values are
// deployment configuration: registries built against different client
// releases disagree on them.
type Opcodes struct {
	Create      domain.Opcode `toml:"create"`
	Remove      domain.Opcode `toml:"remove"`
	ChangeOwner domain.Opcode `toml:"change_owner"`
	ChangeSite  domain.Opcode `toml:"change_site"`
	Invite      domain.Opcode `toml:"invite"`
	Exclude     domain.Opcode `toml:"exclude"`
	ChangeAdmin domain.Opcode `toml:"change_admin"`
}

// DefaultOpcodes returns the crc32-derived opcodes of the current clients.
func DefaultOpcodes() Opcodes {
	return Opcodes{
		Create:      0x15cf00af,
		Remove:      0xf299fd64,
		ChangeOwner: 0xda4e1e74,
		ChangeSite:  0x4384b41a,
		Invite:      0x5dfbf083,
		Exclude:     0x0e1e6b74,
		ChangeAdmin: 0xd4deb03b,
	}
}

// Validate rejects zero and duplicate opcodes within one contract.
func (o Opcodes) Validate() error {
	if err := distinct("organizations", map[string]domain.Opcode{
		"create":       o.Create,
		"remove":       o.Remove,
		"change_owner": o.ChangeOwner,
		"change_site":  o.ChangeSite,
	}); err != nil {
		return err
	}
	return distinct("membership", map[string]domain.Opcode{
		"invite":       o.Invite,
		"exclude":      o.Exclude,
		"change_admin": o.ChangeAdmin,
	})
}

func distinct(contract string, ops map[string]domain.Opcode) error {
	seen := make(map[domain.Opcode]string, len(ops))
	for name, op := range ops {
		if op == 0 || op == domain.OpBounced {
			return fmt.Errorf("%s: opcode %s is reserved", contract, name)
		}
		if other, ok := seen[op]; ok {
			return fmt.Errorf("%s: %s and %s share opcode %s", contract, name, other, op)
		}
		seen[op] = name
	}
	return nil
}
