package pda

import (
	"bytes"
	"errors"
	"testing"

	solana "github.com/gagliardetto/solana-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var (
	testMint      = solana.MustPublicKeyFromBase58("EPjFWdd5AufqSSqeM2qN1xzybapC8G4wEGGkZwyTDt1v")
	testValidator = solana.MustPublicKeyFromBase58("4zMMC9srt5Ri5X14GAgXhaHii3GnPAEERYPJgZJDncDU")
)

func TestFindExtraAccountMetasIsDeterministic(t *testing.T) {
	first, err := FindExtraAccountMetas(testMint, testValidator)
	require.NoError(t, err)
	second, err := FindExtraAccountMetas(testMint, testValidator)
	require.NoError(t, err)

	assert.Equal(t, first.Address, second.Address)
	assert.Equal(t, first.Bump, second.Bump)
	assert.Equal(t, testValidator, first.ProgramID)
	require.Len(t, first.Seeds, 2)
	assert.Equal(t, []byte(ExtraAccountMetasSeed), first.Seeds[0])
	assert.Equal(t, testMint.Bytes(), first.Seeds[1])
}

func TestFindMatchesSolanaDerivation(t *testing.T) {
	derived, err := FindExtraAccountMetas(testMint, testValidator)
	require.NoError(t, err)

	address, bump, err := solana.FindProgramAddress(
		[][]byte{[]byte("extra-account-metas"), testMint.Bytes()},
		testValidator,
	)
	require.NoError(t, err)
	assert.Equal(t, address, derived.Address)
	assert.Equal(t, bump, derived.Bump)
}

func TestDerivationDependsOnInputs(t *testing.T) {
	base, err := FindExtraAccountMetas(testMint, testValidator)
	require.NoError(t, err)

	otherMint, err := FindExtraAccountMetas(solana.SystemProgramID, testValidator)
	require.NoError(t, err)
	assert.NotEqual(t, base.Address, otherMint.Address)

	otherProgram, err := FindExtraAccountMetas(testMint, solana.TokenProgramID)
	require.NoError(t, err)
	assert.NotEqual(t, base.Address, otherProgram.Address)
}

func TestVerify(t *testing.T) {
	derived, err := FindExtraAccountMetas(testMint, testValidator)
	require.NoError(t, err)
	require.NoError(t, derived.Verify())
	assert.False(t, IsOnCurve(derived.Address))

	t.Run("wrong address", func(t *testing.T) {
		tampered := derived
		tampered.Address = testMint
		err := tampered.Verify()
		assert.True(t, errors.Is(err, ErrAddressMismatch), "got %v", err)
	})

	t.Run("wrong bump", func(t *testing.T) {
		tampered := derived
		tampered.Bump = derived.Bump - 1
		err := tampered.Verify()
		assert.True(t, errors.Is(err, ErrAddressMismatch), "got %v", err)
	})

	t.Run("wrong program", func(t *testing.T) {
		tampered := derived
		tampered.ProgramID = solana.TokenProgramID
		err := tampered.Verify()
		assert.True(t, errors.Is(err, ErrAddressMismatch), "got %v", err)
	})
}

func TestSignerSeedsAppendBump(t *testing.T) {
	derived, err := FindExtraAccountMetas(testMint, testValidator)
	require.NoError(t, err)

	seeds := derived.SignerSeeds()
	require.Len(t, seeds, 3)
	assert.Equal(t, []byte{derived.Bump}, seeds[2])

	// mutating the result must not leak into the derived address
	seeds[0][0] ^= 0xff
	assert.True(t, bytes.Equal([]byte(ExtraAccountMetasSeed), derived.Seeds[0]))

	address, err := solana.CreateProgramAddress(derived.SignerSeeds(), testValidator)
	require.NoError(t, err)
	assert.Equal(t, derived.Address, address)
}

func TestInvalidSeeds(t *testing.T) {
	_, err := Find(testValidator, bytes.Repeat([]byte{1}, solana.MaxSeedLength+1))
	assert.True(t, errors.Is(err, ErrInvalidSeeds))

	tooMany := make([][]byte, solana.MaxSeeds)
	for i := range tooMany {
		tooMany[i] = []byte{byte(i)}
	}
	_, err = Find(testValidator, tooMany...)
	assert.True(t, errors.Is(err, ErrInvalidSeeds))
}

func TestIsOnCurve(t *testing.T) {
	wallet := solana.NewWallet()
	assert.True(t, IsOnCurve(wallet.PublicKey()))
}
