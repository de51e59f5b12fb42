package domain

// CodeID names a registered contract implementation (the "code" of an account).
type CodeID string

// StateInit is the code plus initial data an account is materialized from.
// The account address is a pure function of it.
type StateInit struct {
	Code CodeID `cbor:"1,keyasint" json:"code"`
	Data []byte `cbor:"2,keyasint" json:"data"`
}

// Account is the persisted state of one actor.
// Corresponds to the accounts table.
type Account struct {
	Address   Address // account address
	Code      CodeID  // empty while uninitialized
	Balance   Coins   // operating funds (nano)
	State     []byte  // contract state, CBOR encoded
	Active    bool    // true once materialized from a state init
	LastLT    uint64  // logical time of the last processed message
	UpdatedAt int64   // unix ms of the last commit
}

// Clone returns a deep copy.
func (a *Account) Clone() *Account {
	c := *a
	if a.State != nil {
		c.State = append([]byte(nil), a.State...)
	}
	return &c
}
