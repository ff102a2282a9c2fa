package accounts

import (
	"context"
	"errors"

	solana "github.com/gagliardetto/solana-go"
)

var (
	// ErrAccountNotFound is returned by Get for addresses with no stored state.
	ErrAccountNotFound = errors.New("account not found")
	// ErrConflict is returned by Update when concurrent transactions kept
	// committing writes to keys this transaction read, past the retry limit.
	ErrConflict = errors.New("account transaction conflict")
)

// Reader reads account state.
type Reader interface {
	// Get returns a copy of the account stored at key or ErrAccountNotFound.
	Get(key solana.PublicKey) (*Account, error)
}

// Txn is a read-write view whose writes become visible only if the enclosing
// Update returns nil. Update may run its function again on a fresh Txn after
// a conflict.
type Txn interface {
	Reader
	Set(key solana.PublicKey, account *Account) error
}

// Store persists accounts. Implementations must be safe for concurrent use
// and must apply an Update's writes atomically.
type Store interface {
	View(ctx context.Context, fn func(Reader) error) error
	Update(ctx context.Context, fn func(Txn) error) error
	Close() error
}

// Load returns the account at key, or an empty account if nothing is stored.
func Load(r Reader, key solana.PublicKey) (*Account, error) {
	acct, err := r.Get(key)
	if errors.Is(err, ErrAccountNotFound) {
		return NewEmpty(), nil
	}
	return acct, err
}

var accountPrefix = []byte("acct/")

func accountKey(key solana.PublicKey) []byte {
	out := make([]byte, 0, len(accountPrefix)+solana.PublicKeyLength)
	out = append(out, accountPrefix...)
	return append(out, key[:]...)
}
