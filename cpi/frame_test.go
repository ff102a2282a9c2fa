package cpi

import (
	"bytes"
	"encoding/binary"
	"testing"

	solana "github.com/gagliardetto/solana-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testInitializeAccounts() InitializeAccounts {
	return InitializeAccounts{
		Payer:                  solana.MustPublicKeyFromBase58("9WzDXwBbmkg8ZTbNMqUxvQRAyrZzDsGYdLVL9zYtAWWM"),
		ExtraAccountMetaList:   solana.MustPublicKeyFromBase58("2wmVCSfPxGPjrnMMn7rchp4uaeoTqN39mXFC2zhPdri9"),
		Mint:                   solana.MustPublicKeyFromBase58("EPjFWdd5AufqSSqeM2qN1xzybapC8G4wEGGkZwyTDt1v"),
		TokenProgram:           solana.Token2022ProgramID,
		AssociatedTokenProgram: solana.SPLAssociatedTokenAccountProgramID,
		SystemProgram:          solana.SystemProgramID,
	}
}

var testValidator = solana.MustPublicKeyFromBase58("4zMMC9srt5Ri5X14GAgXhaHii3GnPAEERYPJgZJDncDU")

func TestInitializeDiscriminatorConstant(t *testing.T) {
	assert.Equal(t, Discriminator{92, 197, 174, 197, 41, 124, 19, 3}, InitializeDiscriminator)
	assert.Equal(t, Discriminator{105, 37, 101, 197, 75, 251, 102, 26}, ExecuteDiscriminator)
}

func TestBuildInitializeAccountOrder(t *testing.T) {
	accounts := testInitializeAccounts()
	frame := BuildInitialize(testValidator, accounts, InitializeDiscriminator)

	assert.Equal(t, testValidator, frame.ProgramID())
	data, err := frame.Data()
	require.NoError(t, err)
	assert.Equal(t, InitializeDiscriminator[:], data)

	expected := []struct {
		key      solana.PublicKey
		writable bool
		signer   bool
	}{
		{accounts.Payer, true, true},
		{accounts.ExtraAccountMetaList, true, false},
		{accounts.Mint, false, false},
		{accounts.TokenProgram, false, false},
		{accounts.AssociatedTokenProgram, false, false},
		{accounts.SystemProgram, false, false},
	}
	metas := frame.Accounts()
	require.Len(t, metas, len(expected))
	for i, want := range expected {
		assert.Equal(t, want.key, metas[i].PublicKey, "account %d", i)
		assert.Equal(t, want.writable, metas[i].IsWritable, "account %d writable", i)
		assert.Equal(t, want.signer, metas[i].IsSigner, "account %d signer", i)
	}
}

func TestBuildInitializeIsByteIdentical(t *testing.T) {
	accounts := testInitializeAccounts()

	first, err := BuildInitialize(testValidator, accounts, InitializeDiscriminator).MarshalBinary()
	require.NoError(t, err)
	for i := 0; i < 10; i++ {
		again, err := BuildInitialize(testValidator, accounts, InitializeDiscriminator).MarshalBinary()
		require.NoError(t, err)
		if !bytes.Equal(first, again) {
			t.Fatalf("build %d differs from first build", i)
		}
	}

	// 32 program + 1 count + 6*(32+1) metas + 4 length + 8 data
	assert.Len(t, first, 32+1+6*33+4+8)
	assert.Equal(t, testValidator.Bytes(), first[:32])
	assert.Equal(t, byte(6), first[32])
	// payer flags: signer|writable
	assert.Equal(t, byte(3), first[33+32])
	// registry flags: writable
	assert.Equal(t, byte(2), first[33+33+32])
	assert.Equal(t, InitializeDiscriminator[:], first[len(first)-8:])
}

func TestBuildInitializeCopiesDiscriminator(t *testing.T) {
	disc := InitializeDiscriminator
	frame := BuildInitialize(testValidator, testInitializeAccounts(), disc)
	disc[0] = 0
	assert.Equal(t, InitializeDiscriminator[:], frame.Payload)
}

func TestDecodeFrameRoundTrip(t *testing.T) {
	frame := BuildInitialize(testValidator, testInitializeAccounts(), InitializeDiscriminator)
	encoded, err := frame.MarshalBinary()
	require.NoError(t, err)

	decoded, err := DecodeFrame(encoded)
	require.NoError(t, err)
	assert.Equal(t, frame, decoded)
}

func TestDecodeFrameErrors(t *testing.T) {
	encoded, err := BuildInitialize(testValidator, testInitializeAccounts(), InitializeDiscriminator).MarshalBinary()
	require.NoError(t, err)

	tests := []struct {
		name string
		data []byte
	}{
		{"empty", nil},
		{"truncated accounts", encoded[:40]},
		{"trailing bytes", append(append([]byte(nil), encoded...), 0)},
		{"unknown flags", func() []byte {
			b := append([]byte(nil), encoded...)
			b[33+32] = 0x80
			return b
		}()},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := DecodeFrame(tt.data)
			assert.ErrorIs(t, err, ErrMalformedFrame)
		})
	}
}

func TestBuildExecute(t *testing.T) {
	accounts := ExecuteAccounts{
		Source:               solana.NewWallet().PublicKey(),
		Mint:                 testInitializeAccounts().Mint,
		Destination:          solana.NewWallet().PublicKey(),
		Authority:            solana.NewWallet().PublicKey(),
		ExtraAccountMetaList: testInitializeAccounts().ExtraAccountMetaList,
	}
	extra := solana.NewAccountMeta(solana.NewWallet().PublicKey(), true, false)

	frame := BuildExecute(testValidator, accounts, 1_500, []*solana.AccountMeta{extra})
	require.Len(t, frame.Metas, 6)
	for i, key := range accounts.Keys() {
		assert.Equal(t, key, frame.Metas[i].PublicKey)
		assert.False(t, frame.Metas[i].IsWritable)
	}
	assert.Equal(t, extra.PublicKey, frame.Metas[5].PublicKey)
	assert.True(t, frame.Metas[5].IsWritable)

	assert.True(t, ExecuteDiscriminator.Matches(frame.Payload))
	assert.Equal(t, uint64(1_500), binary.LittleEndian.Uint64(frame.Payload[8:]))
}

func TestParseDiscriminator(t *testing.T) {
	d, err := ParseDiscriminator(InitializeDiscriminator[:])
	require.NoError(t, err)
	assert.Equal(t, InitializeDiscriminator, d)

	_, err = ParseDiscriminator([]byte{1, 2, 3})
	assert.Error(t, err)
}
