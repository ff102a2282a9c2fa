package accounts

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"

	"github.com/dgraph-io/badger/v4"
	solana "github.com/gagliardetto/solana-go"

	"github.com/cpswap/hookcpi/internal/log"
)

// BadgerStore persists accounts in a Badger database. Badger's optimistic
// transactions detect two updates racing on the same key; the loser gets
// ErrConflict.
type BadgerStore struct {
	db        *badger.DB
	closeOnce sync.Once
	closeErr  error
}

// NewBadgerStore opens a store at path. An empty path opens an in-memory
// database.
func NewBadgerStore(path string) (*BadgerStore, error) {
	opts := badger.DefaultOptions(path)
	if path == "" {
		opts = opts.WithInMemory(true)
	}
	opts.Logger = nil

	db, err := badger.Open(opts)
	if err != nil {
		if strings.Contains(err.Error(), "Cannot acquire directory lock") {
			return nil, fmt.Errorf("ledger at %s is locked by another process: %w", path, err)
		}
		return nil, fmt.Errorf("open ledger at %s: %w", path, err)
	}
	return &BadgerStore{db: db}, nil
}

// View runs fn in a read-only transaction.
func (s *BadgerStore) View(ctx context.Context, fn func(Reader) error) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	return s.db.View(func(txn *badger.Txn) error {
		return fn(&badgerTxn{txn: txn})
	})
}

// MaxConflictRetries bounds how often Update reruns a transaction that lost
// an optimistic conflict.
const MaxConflictRetries = 64

// Update runs fn in a read-write transaction committed when fn returns nil.
// A transaction that loses a commit race is rerun from scratch on a fresh
// snapshot, so fn observes whatever the winner wrote.
func (s *BadgerStore) Update(ctx context.Context, fn func(Txn) error) error {
	var err error
	for attempt := 0; attempt <= MaxConflictRetries; attempt++ {
		if err := ctx.Err(); err != nil {
			return err
		}
		err = s.db.Update(func(txn *badger.Txn) error {
			return fn(&badgerTxn{txn: txn})
		})
		if !errors.Is(err, badger.ErrConflict) {
			return err
		}
		log.Storage.Debug().Int("attempt", attempt+1).Msg("Ledger transaction conflicted, retrying")
	}
	return fmt.Errorf("%w after %d retries: %v", ErrConflict, MaxConflictRetries, err)
}

// Close closes the database. Later calls return the first result.
func (s *BadgerStore) Close() error {
	s.closeOnce.Do(func() {
		s.closeErr = s.db.Close()
	})
	return s.closeErr
}

type badgerTxn struct {
	txn *badger.Txn
}

func (t *badgerTxn) Get(key solana.PublicKey) (*Account, error) {
	item, err := t.txn.Get(accountKey(key))
	if errors.Is(err, badger.ErrKeyNotFound) {
		return nil, ErrAccountNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("badger get %s: %w", key, err)
	}
	val, err := item.ValueCopy(nil)
	if err != nil {
		return nil, fmt.Errorf("badger read %s: %w", key, err)
	}
	return DecodeAccount(val)
}

func (t *badgerTxn) Set(key solana.PublicKey, account *Account) error {
	val, err := account.Encode()
	if err != nil {
		return err
	}
	if err := t.txn.Set(accountKey(key), val); err != nil {
		return fmt.Errorf("badger set %s: %w", key, err)
	}
	return nil
}

var _ Store = (*BadgerStore)(nil)
