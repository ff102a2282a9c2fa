// Package cpi frames cross-program calls into a transfer-hook validator.
package cpi

import (
	"bytes"
	"encoding/binary"
	"errors"
	"fmt"

	bin "github.com/gagliardetto/binary"
	solana "github.com/gagliardetto/solana-go"

	"github.com/cpswap/hookcpi/registry"
)

// DiscriminatorSize is the length of an instruction discriminator.
const DiscriminatorSize = 8

// Discriminator identifies an instruction in the callee's interface.
type Discriminator [DiscriminatorSize]byte

// InterfaceVersion names the published validator interface the default
// initialize discriminator was taken from. A validator that renumbers its
// instructions needs a matching override, there is no negotiation.
const InterfaceVersion = "anchor-idl/initialize_extra_account_meta_list@1"

var (
	// InitializeDiscriminator is the validator's "initialize extra account
	// meta list" instruction as published in its IDL.
	InitializeDiscriminator = Discriminator{92, 197, 174, 197, 41, 124, 19, 3}
	// ExecuteDiscriminator is the transfer-hook interface execute instruction.
	ExecuteDiscriminator = Discriminator(registry.ExecuteDiscriminator)
)

// ErrMalformedFrame is returned by DecodeFrame.
var ErrMalformedFrame = errors.New("malformed call frame")

// Frame is one framed instruction: target program, ordered account metas and
// opaque data. It satisfies solana.Instruction.
type Frame struct {
	Program solana.PublicKey
	Metas   []*solana.AccountMeta
	Payload []byte
}

var _ solana.Instruction = (*Frame)(nil)

// ProgramID implements solana.Instruction.
func (f *Frame) ProgramID() solana.PublicKey {
	return f.Program
}

// Accounts implements solana.Instruction.
func (f *Frame) Accounts() []*solana.AccountMeta {
	return f.Metas
}

// Data implements solana.Instruction.
func (f *Frame) Data() ([]byte, error) {
	return f.Payload, nil
}

// InitializeAccounts are the six accounts of the validator's initialize
// instruction. Their order and privileges are fixed by the validator.
type InitializeAccounts struct {
	Payer                  solana.PublicKey
	ExtraAccountMetaList   solana.PublicKey
	Mint                   solana.PublicKey
	TokenProgram           solana.PublicKey
	AssociatedTokenProgram solana.PublicKey
	SystemProgram          solana.PublicKey
}

// Metas returns the accounts in wire order.
func (a InitializeAccounts) Metas() []*solana.AccountMeta {
	return []*solana.AccountMeta{
		solana.NewAccountMeta(a.Payer, true, true),
		solana.NewAccountMeta(a.ExtraAccountMetaList, true, false),
		solana.NewAccountMeta(a.Mint, false, false),
		solana.NewAccountMeta(a.TokenProgram, false, false),
		solana.NewAccountMeta(a.AssociatedTokenProgram, false, false),
		solana.NewAccountMeta(a.SystemProgram, false, false),
	}
}

// BuildInitialize frames the validator's initialize instruction. The payload
// is the discriminator alone.
func BuildInitialize(validator solana.PublicKey, accounts InitializeAccounts, disc Discriminator) *Frame {
	return &Frame{
		Program: validator,
		Metas:   accounts.Metas(),
		Payload: append([]byte(nil), disc[:]...),
	}
}

// ExecuteAccounts are the fixed accounts of a transfer-hook execute call.
type ExecuteAccounts struct {
	Source               solana.PublicKey
	Mint                 solana.PublicKey
	Destination          solana.PublicKey
	Authority            solana.PublicKey
	ExtraAccountMetaList solana.PublicKey
}

// Keys returns the accounts in wire order.
func (a ExecuteAccounts) Keys() []solana.PublicKey {
	return []solana.PublicKey{a.Source, a.Mint, a.Destination, a.Authority, a.ExtraAccountMetaList}
}

// ExecuteData returns the execute payload for amount.
func ExecuteData(amount uint64) []byte {
	out := make([]byte, DiscriminatorSize+8)
	copy(out, ExecuteDiscriminator[:])
	binary.LittleEndian.PutUint64(out[DiscriminatorSize:], amount)
	return out
}

// BuildExecute frames a transfer-hook execute call with resolved extras
// appended after the fixed accounts.
func BuildExecute(validator solana.PublicKey, accounts ExecuteAccounts, amount uint64, extras []*solana.AccountMeta) *Frame {
	metas := []*solana.AccountMeta{
		solana.NewAccountMeta(accounts.Source, false, false),
		solana.NewAccountMeta(accounts.Mint, false, false),
		solana.NewAccountMeta(accounts.Destination, false, false),
		solana.NewAccountMeta(accounts.Authority, false, false),
		solana.NewAccountMeta(accounts.ExtraAccountMetaList, false, false),
	}
	for _, e := range extras {
		metas = append(metas, solana.NewAccountMeta(e.PublicKey, e.IsWritable, e.IsSigner))
	}
	return &Frame{
		Program: validator,
		Metas:   metas,
		Payload: ExecuteData(amount),
	}
}

const (
	flagSigner   = 1 << 0
	flagWritable = 1 << 1
)

// MarshalBinary returns the canonical encoding:
//
//	[0..31]   program id
//	[32]      account count U8
//	per account: key (32) + flags U8 (bit0 signer, bit1 writable)
//	data length U32 LE, data
func (f *Frame) MarshalBinary() ([]byte, error) {
	if len(f.Metas) > 255 {
		return nil, fmt.Errorf("%w: %d accounts", ErrMalformedFrame, len(f.Metas))
	}
	var out bytes.Buffer
	enc := bin.NewBinEncoder(&out)

	if err := enc.WriteBytes(f.Program[:], false); err != nil {
		return nil, err
	}
	if err := enc.WriteUint8(uint8(len(f.Metas))); err != nil {
		return nil, err
	}
	for _, m := range f.Metas {
		var flags uint8
		if m.IsSigner {
			flags |= flagSigner
		}
		if m.IsWritable {
			flags |= flagWritable
		}
		if err := enc.WriteBytes(m.PublicKey[:], false); err != nil {
			return nil, err
		}
		if err := enc.WriteUint8(flags); err != nil {
			return nil, err
		}
	}
	if err := enc.WriteUint32(uint32(len(f.Payload)), binary.LittleEndian); err != nil {
		return nil, err
	}
	if err := enc.WriteBytes(f.Payload, false); err != nil {
		return nil, err
	}
	return out.Bytes(), nil
}

// DecodeFrame parses bytes produced by MarshalBinary.
func DecodeFrame(data []byte) (*Frame, error) {
	dec := bin.NewBinDecoder(data)

	program, err := dec.ReadNBytes(solana.PublicKeyLength)
	if err != nil {
		return nil, fmt.Errorf("%w: program id: %v", ErrMalformedFrame, err)
	}
	count, err := dec.ReadUint8()
	if err != nil {
		return nil, fmt.Errorf("%w: account count: %v", ErrMalformedFrame, err)
	}

	f := &Frame{
		Program: solana.PublicKeyFromBytes(program),
		Metas:   make([]*solana.AccountMeta, 0, count),
	}
	for i := 0; i < int(count); i++ {
		key, err := dec.ReadNBytes(solana.PublicKeyLength)
		if err != nil {
			return nil, fmt.Errorf("%w: account %d: %v", ErrMalformedFrame, i, err)
		}
		flags, err := dec.ReadUint8()
		if err != nil {
			return nil, fmt.Errorf("%w: account %d flags: %v", ErrMalformedFrame, i, err)
		}
		if flags&^(flagSigner|flagWritable) != 0 {
			return nil, fmt.Errorf("%w: account %d has unknown flags %#x", ErrMalformedFrame, i, flags)
		}
		f.Metas = append(f.Metas, solana.NewAccountMeta(
			solana.PublicKeyFromBytes(key),
			flags&flagWritable != 0,
			flags&flagSigner != 0,
		))
	}

	length, err := dec.ReadUint32(binary.LittleEndian)
	if err != nil {
		return nil, fmt.Errorf("%w: data length: %v", ErrMalformedFrame, err)
	}
	if int(length) != dec.Remaining() {
		return nil, fmt.Errorf("%w: data length %d, %d bytes remain", ErrMalformedFrame, length, dec.Remaining())
	}
	payload, err := dec.ReadNBytes(int(length))
	if err != nil {
		return nil, fmt.Errorf("%w: data: %v", ErrMalformedFrame, err)
	}
	f.Payload = payload
	return f, nil
}

// ParseDiscriminator decodes a discriminator from a byte slice.
func ParseDiscriminator(b []byte) (Discriminator, error) {
	var d Discriminator
	if len(b) != DiscriminatorSize {
		return d, fmt.Errorf("discriminator must be %d bytes, got %d", DiscriminatorSize, len(b))
	}
	copy(d[:], b)
	return d, nil
}

// Matches reports whether data starts with the discriminator.
func (d Discriminator) Matches(data []byte) bool {
	return len(data) >= DiscriminatorSize && bytes.Equal(data[:DiscriminatorSize], d[:])
}
