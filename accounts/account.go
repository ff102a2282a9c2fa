// Package accounts holds the account ledger the runtime executes against:
// account records, rent-exempt minimums and the transactional stores that
// persist them.
package accounts

import (
	"fmt"

	bin "github.com/gagliardetto/binary"
	solana "github.com/gagliardetto/solana-go"
)

// Account is the on-ledger state stored under a public key.
type Account struct {
	Owner      solana.PublicKey
	Lamports   uint64
	Executable bool
	Data       []byte
}

// NewEmpty returns the state of an address nothing has been written to:
// owned by the system program, no lamports and no data.
func NewEmpty() *Account {
	return &Account{Owner: solana.SystemProgramID}
}

// IsEmpty reports whether the account could still be created at its address.
func (a *Account) IsEmpty() bool {
	return a.Lamports == 0 && len(a.Data) == 0 && a.Owner.Equals(solana.SystemProgramID)
}

// Clone returns a deep copy.
func (a *Account) Clone() *Account {
	c := *a
	c.Data = append([]byte(nil), a.Data...)
	return &c
}

// record is the borsh layout of an account in persistent stores.
type record struct {
	Owner      solana.PublicKey
	Lamports   uint64
	Executable bool
	Data       []byte
}

// Encode serializes the account for storage.
func (a *Account) Encode() ([]byte, error) {
	out, err := bin.MarshalBorsh(&record{
		Owner:      a.Owner,
		Lamports:   a.Lamports,
		Executable: a.Executable,
		Data:       a.Data,
	})
	if err != nil {
		return nil, fmt.Errorf("encode account: %w", err)
	}
	return out, nil
}

// DecodeAccount parses bytes produced by Encode.
func DecodeAccount(data []byte) (*Account, error) {
	var r record
	if err := bin.UnmarshalBorsh(&r, data); err != nil {
		return nil, fmt.Errorf("decode account: %w", err)
	}
	return &Account{
		Owner:      r.Owner,
		Lamports:   r.Lamports,
		Executable: r.Executable,
		Data:       r.Data,
	}, nil
}
