package accounts

import (
	"context"
	"sync"

	solana "github.com/gagliardetto/solana-go"
)

// MemoryStore keeps accounts in a map. Updates are serialized, so a
// create-if-absent inside one Update is never interleaved with another.
type MemoryStore struct {
	mu       sync.RWMutex
	accounts map[solana.PublicKey]*Account
}

// NewMemoryStore creates an empty in-memory store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{accounts: make(map[solana.PublicKey]*Account)}
}

// View runs fn against a consistent snapshot.
func (s *MemoryStore) View(ctx context.Context, fn func(Reader) error) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	return fn(memoryReader{s.accounts})
}

// Update runs fn and commits its writes only if fn returns nil.
func (s *MemoryStore) Update(ctx context.Context, fn func(Txn) error) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	txn := &memoryTxn{
		memoryReader: memoryReader{s.accounts},
		writes:       make(map[solana.PublicKey]*Account),
	}
	if err := fn(txn); err != nil {
		return err
	}
	for key, acct := range txn.writes {
		s.accounts[key] = acct
	}
	return nil
}

// Close is a no-op.
func (s *MemoryStore) Close() error {
	return nil
}

type memoryReader struct {
	accounts map[solana.PublicKey]*Account
}

func (r memoryReader) Get(key solana.PublicKey) (*Account, error) {
	acct, ok := r.accounts[key]
	if !ok {
		return nil, ErrAccountNotFound
	}
	return acct.Clone(), nil
}

type memoryTxn struct {
	memoryReader
	writes map[solana.PublicKey]*Account
}

func (t *memoryTxn) Get(key solana.PublicKey) (*Account, error) {
	if acct, ok := t.writes[key]; ok {
		return acct.Clone(), nil
	}
	return t.memoryReader.Get(key)
}

func (t *memoryTxn) Set(key solana.PublicKey, account *Account) error {
	t.writes[key] = account.Clone()
	return nil
}

// Ensure MemoryStore implements Store
var _ Store = (*MemoryStore)(nil)
