package validator

import (
	"context"
	"testing"

	solana "github.com/gagliardetto/solana-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cpswap/hookcpi/accounts"
	"github.com/cpswap/hookcpi/cpi"
	"github.com/cpswap/hookcpi/pda"
	"github.com/cpswap/hookcpi/registry"
	"github.com/cpswap/hookcpi/runtime"
)

var hookProgramID = solana.MustPublicKeyFromBase58("4zMMC9srt5Ri5X14GAgXhaHii3GnPAEERYPJgZJDncDU")

type env struct {
	store accounts.Store
	rt    *runtime.Runtime
	payer solana.PublicKey
	mint  solana.PublicKey
	list  pda.DerivedAddress
}

func newEnv(t *testing.T, v *Validator) *env {
	t.Helper()
	store := accounts.NewMemoryStore()
	t.Cleanup(func() { _ = store.Close() })

	e := &env{
		store: store,
		rt:    runtime.New(store, runtime.WithProgram(hookProgramID, v)),
		payer: solana.NewWallet().PublicKey(),
		mint:  solana.NewWallet().PublicKey(),
	}
	list, err := pda.FindExtraAccountMetas(e.mint, hookProgramID)
	require.NoError(t, err)
	e.list = list
	require.NoError(t, e.rt.Airdrop(context.Background(), e.payer, 100_000_000))
	return e
}

func (e *env) initializeAccounts() cpi.InitializeAccounts {
	return cpi.InitializeAccounts{
		Payer:                  e.payer,
		ExtraAccountMetaList:   e.list.Address,
		Mint:                   e.mint,
		TokenProgram:           solana.Token2022ProgramID,
		AssociatedTokenProgram: solana.SPLAssociatedTokenAccountProgramID,
		SystemProgram:          solana.SystemProgramID,
	}
}

// plant writes a registry at the mint's derived address directly into the
// ledger, owned by owner, as a fixture for state no transaction here could
// produce.
func (e *env) plant(t *testing.T, owner solana.PublicKey, metas []registry.ExtraAccountMeta) {
	t.Helper()
	data := make([]byte, registry.SizeOf(len(metas)))
	require.NoError(t, registry.Init(data, metas))
	err := e.store.Update(context.Background(), func(txn accounts.Txn) error {
		return txn.Set(e.list.Address, &accounts.Account{
			Owner:    owner,
			Lamports: e.rt.Rent().MinimumBalance(len(data)),
			Data:     data,
		})
	})
	require.NoError(t, err)
}

func (e *env) initialize(t *testing.T) error {
	t.Helper()
	return e.invoke(t, cpi.BuildInitialize(hookProgramID, e.initializeAccounts(), cpi.InitializeDiscriminator))
}

func (e *env) invoke(t *testing.T, frame *cpi.Frame) error {
	t.Helper()
	return e.rt.Transact(context.Background(), []solana.PublicKey{e.payer}, func(c *runtime.Context) error {
		infos := make([]*runtime.AccountInfo, 0, len(frame.Metas)+1)
		for _, m := range frame.Metas {
			info, err := c.AccountInfo(m.PublicKey, m.IsWritable)
			require.NoError(t, err)
			infos = append(infos, info)
		}
		program, err := c.AccountInfo(frame.Program, false)
		require.NoError(t, err)
		return c.Invoke(frame, append(infos, program))
	})
}

func TestInitializeCreatesRegistry(t *testing.T) {
	ctx := context.Background()
	metas := []registry.ExtraAccountMeta{registry.NewFixed(solana.SysVarRentPubkey, false, false)}
	e := newEnv(t, New(WithExtraAccountMetas(metas)))

	require.NoError(t, e.initialize(t))

	slot, err := e.rt.Account(ctx, e.list.Address)
	require.NoError(t, err)
	assert.Equal(t, hookProgramID, slot.Owner)
	rent := e.rt.Rent().MinimumBalance(registry.SizeOf(len(metas)))
	assert.Equal(t, rent, slot.Lamports)
	got, err := registry.Unpack(slot.Data)
	require.NoError(t, err)
	assert.Equal(t, metas, got)

	payer, err := e.rt.Account(ctx, e.payer)
	require.NoError(t, err)
	assert.Equal(t, uint64(100_000_000)-rent, payer.Lamports)
}

func TestInitializeTwiceFails(t *testing.T) {
	ctx := context.Background()
	e := newEnv(t, New())
	require.NoError(t, e.initialize(t))
	before, err := e.rt.Account(ctx, e.list.Address)
	require.NoError(t, err)

	err = e.initialize(t)
	assert.ErrorIs(t, err, runtime.ErrAccountAlreadyInUse)

	after, err := e.rt.Account(ctx, e.list.Address)
	require.NoError(t, err)
	assert.Equal(t, before, after)
}

func TestInitializeUnfundedPayer(t *testing.T) {
	ctx := context.Background()
	e := newEnv(t, New())
	e.payer = solana.NewWallet().PublicKey()
	require.NoError(t, e.rt.Airdrop(ctx, e.payer, 1_000))

	err := e.initialize(t)
	assert.ErrorIs(t, err, runtime.ErrInsufficientFunds)

	slot, err := e.rt.Account(ctx, e.list.Address)
	require.NoError(t, err)
	assert.True(t, slot.IsEmpty())
}

func TestInitializeRejectsForeignRegistry(t *testing.T) {
	metas := []registry.ExtraAccountMeta{registry.NewFixed(solana.SysVarRentPubkey, false, false)}
	e := newEnv(t, New(WithExtraAccountMetas(metas)))
	e.plant(t, solana.NewWallet().PublicKey(), metas)

	err := e.initialize(t)
	assert.ErrorIs(t, err, runtime.ErrAccountAlreadyInUse)
}

func TestInitializeFailsClosed(t *testing.T) {
	e := newEnv(t, New())

	t.Run("reordered accounts", func(t *testing.T) {
		accts := e.initializeAccounts()
		accts.Mint, accts.TokenProgram = accts.TokenProgram, accts.Mint
		err := e.invoke(t, cpi.BuildInitialize(hookProgramID, accts, cpi.InitializeDiscriminator))
		assert.ErrorIs(t, err, ErrInvalidProgramID)
	})

	t.Run("payer and registry swapped", func(t *testing.T) {
		frame := cpi.BuildInitialize(hookProgramID, e.initializeAccounts(), cpi.InitializeDiscriminator)
		frame.Metas[0], frame.Metas[1] = frame.Metas[1], frame.Metas[0]
		err := e.invoke(t, frame)
		assert.ErrorIs(t, err, ErrConstraintSigner)
	})

	t.Run("read-only registry", func(t *testing.T) {
		frame := cpi.BuildInitialize(hookProgramID, e.initializeAccounts(), cpi.InitializeDiscriminator)
		frame.Metas[1].IsWritable = false
		err := e.invoke(t, frame)
		assert.ErrorIs(t, err, ErrConstraintMut)
	})

	t.Run("too few accounts", func(t *testing.T) {
		frame := cpi.BuildInitialize(hookProgramID, e.initializeAccounts(), cpi.InitializeDiscriminator)
		frame.Metas = frame.Metas[:5]
		err := e.invoke(t, frame)
		assert.ErrorIs(t, err, ErrNotEnoughAccountKeys)
	})

	t.Run("registry of another mint", func(t *testing.T) {
		accts := e.initializeAccounts()
		accts.Mint = solana.NewWallet().PublicKey()
		err := e.invoke(t, cpi.BuildInitialize(hookProgramID, accts, cpi.InitializeDiscriminator))
		assert.ErrorIs(t, err, ErrConstraintSeeds)
	})

	t.Run("unknown discriminator", func(t *testing.T) {
		err := e.invoke(t, cpi.BuildInitialize(hookProgramID, e.initializeAccounts(), cpi.Discriminator{1, 2, 3, 4, 5, 6, 7, 8}))
		assert.ErrorIs(t, err, ErrUnknownInstruction)
	})
}

func TestInitializeCustomDiscriminator(t *testing.T) {
	disc := cpi.Discriminator{8, 7, 6, 5, 4, 3, 2, 1}
	e := newEnv(t, New(WithInitializeDiscriminator(disc)))

	err := e.invoke(t, cpi.BuildInitialize(hookProgramID, e.initializeAccounts(), cpi.InitializeDiscriminator))
	assert.ErrorIs(t, err, ErrUnknownInstruction)
	assert.NoError(t, e.invoke(t, cpi.BuildInitialize(hookProgramID, e.initializeAccounts(), disc)))
}

func TestExecuteChecksResolvedExtras(t *testing.T) {
	counter, err := registry.NewPDA([]registry.Seed{
		registry.LiteralSeed([]byte("counter")),
		registry.AccountKeySeed(3),
	}, false, true)
	require.NoError(t, err)
	metas := []registry.ExtraAccountMeta{counter}

	e := newEnv(t, New(WithExtraAccountMetas(metas)))
	require.NoError(t, e.initialize(t))

	accts := cpi.ExecuteAccounts{
		Source:               solana.NewWallet().PublicKey(),
		Mint:                 e.mint,
		Destination:          solana.NewWallet().PublicKey(),
		Authority:            solana.NewWallet().PublicKey(),
		ExtraAccountMetaList: e.list.Address,
	}
	resolved, err := registry.Resolve(metas, registry.ResolveInput{
		ProgramID:       hookProgramID,
		Accounts:        accts.Keys(),
		InstructionData: cpi.ExecuteData(42),
	})
	require.NoError(t, err)

	assert.NoError(t, e.invoke(t, cpi.BuildExecute(hookProgramID, accts, 42, resolved)))

	wrong := []*solana.AccountMeta{solana.NewAccountMeta(solana.NewWallet().PublicKey(), true, false)}
	err = e.invoke(t, cpi.BuildExecute(hookProgramID, accts, 42, wrong))
	assert.ErrorIs(t, err, ErrExtraAccountsMismatch)

	err = e.invoke(t, cpi.BuildExecute(hookProgramID, accts, 42, nil))
	assert.ErrorIs(t, err, ErrExtraAccountsMismatch)
}

func TestExecuteRejectsRegistryOwnedByAnotherProgram(t *testing.T) {
	metas := []registry.ExtraAccountMeta{registry.NewFixed(solana.SysVarRentPubkey, false, false)}
	e := newEnv(t, New(WithExtraAccountMetas(metas)))
	e.plant(t, solana.NewWallet().PublicKey(), metas)

	accts := cpi.ExecuteAccounts{
		Source:               solana.NewWallet().PublicKey(),
		Mint:                 e.mint,
		Destination:          solana.NewWallet().PublicKey(),
		Authority:            solana.NewWallet().PublicKey(),
		ExtraAccountMetaList: e.list.Address,
	}
	extras := []*solana.AccountMeta{solana.NewAccountMeta(solana.SysVarRentPubkey, false, false)}
	err := e.invoke(t, cpi.BuildExecute(hookProgramID, accts, 7, extras))
	assert.ErrorIs(t, err, ErrConstraintOwner)
}
