package accounts

import (
	"context"
	"errors"
	"testing"

	solana "github.com/gagliardetto/solana-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRentMinimumBalance(t *testing.T) {
	rent := DefaultRent()

	tests := []struct {
		size     int
		expected uint64
	}{
		{0, 890_880},
		{16, 1_002_240},
		{51, 1_245_840},
		{165, 2_039_280},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.expected, rent.MinimumBalance(tt.size), "size %d", tt.size)
	}

	assert.True(t, rent.IsExempt(890_880, 0))
	assert.False(t, rent.IsExempt(890_879, 0))
}

func TestAccountEncodeRoundTrip(t *testing.T) {
	acct := &Account{
		Owner:      solana.TokenProgramID,
		Lamports:   42,
		Executable: true,
		Data:       []byte{1, 2, 3},
	}
	encoded, err := acct.Encode()
	require.NoError(t, err)

	decoded, err := DecodeAccount(encoded)
	require.NoError(t, err)
	assert.Equal(t, acct, decoded)
}

func TestEmptyAccount(t *testing.T) {
	acct := NewEmpty()
	assert.True(t, acct.IsEmpty())

	acct.Lamports = 1
	assert.False(t, acct.IsEmpty())
}

func storesUnderTest(t *testing.T) map[string]Store {
	t.Helper()
	badgerStore, err := NewBadgerStore("")
	require.NoError(t, err)
	t.Cleanup(func() { _ = badgerStore.Close() })

	return map[string]Store{
		"memory": NewMemoryStore(),
		"badger": badgerStore,
	}
}

func TestStoreCommitAndRollback(t *testing.T) {
	key := solana.NewWallet().PublicKey()
	errAbort := errors.New("abort")

	for name, store := range storesUnderTest(t) {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()

			err := store.Update(ctx, func(txn Txn) error {
				if err := txn.Set(key, &Account{Owner: solana.SystemProgramID, Lamports: 10}); err != nil {
					return err
				}
				// writes are visible inside the transaction
				acct, err := txn.Get(key)
				require.NoError(t, err)
				assert.Equal(t, uint64(10), acct.Lamports)
				return errAbort
			})
			require.ErrorIs(t, err, errAbort)

			err = store.View(ctx, func(r Reader) error {
				_, err := r.Get(key)
				return err
			})
			require.ErrorIs(t, err, ErrAccountNotFound)

			require.NoError(t, store.Update(ctx, func(txn Txn) error {
				return txn.Set(key, &Account{Owner: solana.SystemProgramID, Lamports: 7, Data: []byte{9}})
			}))

			require.NoError(t, store.View(ctx, func(r Reader) error {
				acct, err := Load(r, key)
				require.NoError(t, err)
				assert.Equal(t, uint64(7), acct.Lamports)
				assert.Equal(t, []byte{9}, acct.Data)
				return nil
			}))
		})
	}
}

func TestStoreReturnsCopies(t *testing.T) {
	key := solana.NewWallet().PublicKey()

	for name, store := range storesUnderTest(t) {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()
			require.NoError(t, store.Update(ctx, func(txn Txn) error {
				return txn.Set(key, &Account{Owner: solana.SystemProgramID, Data: []byte{1}})
			}))

			require.NoError(t, store.View(ctx, func(r Reader) error {
				acct, err := r.Get(key)
				require.NoError(t, err)
				acct.Data[0] = 0xff
				return nil
			}))

			require.NoError(t, store.View(ctx, func(r Reader) error {
				acct, err := r.Get(key)
				require.NoError(t, err)
				assert.Equal(t, []byte{1}, acct.Data)
				return nil
			}))
		})
	}
}

func TestLoadMissingIsEmpty(t *testing.T) {
	store := NewMemoryStore()
	require.NoError(t, store.View(context.Background(), func(r Reader) error {
		acct, err := Load(r, solana.NewWallet().PublicKey())
		require.NoError(t, err)
		assert.True(t, acct.IsEmpty())
		return nil
	}))
}

func TestStoreHonorsCancelledContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	for name, store := range storesUnderTest(t) {
		t.Run(name, func(t *testing.T) {
			called := false
			err := store.Update(ctx, func(Txn) error {
				called = true
				return nil
			})
			assert.ErrorIs(t, err, context.Canceled)
			assert.False(t, called)
		})
	}
}

func TestBadgerUpdateRerunsAfterConflict(t *testing.T) {
	store, err := NewBadgerStore("")
	require.NoError(t, err)
	t.Cleanup(func() { _ = store.Close() })

	ctx := context.Background()
	shared := solana.NewWallet().PublicKey()
	require.NoError(t, store.Update(ctx, func(txn Txn) error {
		return txn.Set(shared, &Account{Owner: solana.SystemProgramID, Lamports: 100})
	}))

	attempts := 0
	err = store.Update(ctx, func(txn Txn) error {
		attempts++
		acct, err := Load(txn, shared)
		if err != nil {
			return err
		}
		if attempts == 1 {
			// another transaction commits a write to the key read above
			require.NoError(t, store.Update(ctx, func(other Txn) error {
				return other.Set(shared, &Account{Owner: solana.SystemProgramID, Lamports: acct.Lamports - 10})
			}))
		}
		acct.Lamports -= 1
		return txn.Set(shared, acct)
	})
	require.NoError(t, err)
	assert.Equal(t, 2, attempts)

	require.NoError(t, store.View(ctx, func(r Reader) error {
		acct, err := Load(r, shared)
		require.NoError(t, err)
		assert.Equal(t, uint64(89), acct.Lamports)
		return nil
	}))
}
