// Package validator is a reference transfer-hook validator program. It
// implements the callee side of the initialize call framed by package cpi and
// the transfer-time execute call, checking both against the extra account
// meta list stored for the mint.
package validator

import (
	"encoding/binary"
	"errors"
	"fmt"

	solana "github.com/gagliardetto/solana-go"
	"github.com/rs/zerolog"

	"github.com/cpswap/hookcpi/allocator"
	"github.com/cpswap/hookcpi/cpi"
	"github.com/cpswap/hookcpi/internal/log"
	"github.com/cpswap/hookcpi/pda"
	"github.com/cpswap/hookcpi/registry"
	"github.com/cpswap/hookcpi/runtime"
)

var (
	ErrUnknownInstruction    = errors.New("unknown instruction")
	ErrNotEnoughAccountKeys  = errors.New("not enough account keys given to the instruction")
	ErrConstraintMut         = errors.New("a mut constraint was violated")
	ErrConstraintSigner      = errors.New("a signer constraint was violated")
	ErrInvalidProgramID      = errors.New("program id was not as expected")
	ErrConstraintSeeds       = errors.New("a seeds constraint was violated")
	ErrConstraintOwner       = errors.New("an owner constraint was violated")
	ErrInvalidRegistry       = errors.New("extra account meta list is malformed")
	ErrExtraAccountsMismatch = errors.New("supplied extra accounts do not match the extra account meta list")
)

// Validator is a runtime.Program.
type Validator struct {
	initialize cpi.Discriminator
	metas      []registry.ExtraAccountMeta
	logger     zerolog.Logger
}

// Option configures a Validator.
type Option func(*Validator)

// WithInitializeDiscriminator sets the discriminator the initialize
// instruction answers to.
func WithInitializeDiscriminator(d cpi.Discriminator) Option {
	return func(v *Validator) {
		v.initialize = d
	}
}

// WithExtraAccountMetas sets the metas initialize writes into the registry.
func WithExtraAccountMetas(metas []registry.ExtraAccountMeta) Option {
	return func(v *Validator) {
		v.metas = metas
	}
}

// WithLogger sets the logger.
func WithLogger(logger zerolog.Logger) Option {
	return func(v *Validator) {
		v.logger = logger
	}
}

// New creates a validator answering to cpi.InitializeDiscriminator.
func New(opts ...Option) *Validator {
	v := &Validator{
		initialize: cpi.InitializeDiscriminator,
		logger:     log.WithComponent("validator"),
	}
	for _, opt := range opts {
		opt(v)
	}
	return v
}

var _ runtime.Program = (*Validator)(nil)

// Process implements runtime.Program.
func (v *Validator) Process(c *runtime.Context, programID solana.PublicKey, accounts []*runtime.AccountInfo, data []byte) error {
	switch {
	case v.initialize.Matches(data):
		return v.processInitialize(c, programID, accounts)
	case cpi.ExecuteDiscriminator.Matches(data):
		return v.processExecute(c, programID, accounts, data)
	default:
		return ErrUnknownInstruction
	}
}

// processInitialize checks the six initialize accounts in wire order, then
// creates the registry at the mint's canonical derived address under this
// program, signing with that address's seeds, and writes the configured
// metas into it. An occupied slot fails in the system program.
func (v *Validator) processInitialize(c *runtime.Context, programID solana.PublicKey, accounts []*runtime.AccountInfo) error {
	if len(accounts) < 6 {
		return ErrNotEnoughAccountKeys
	}
	payer, list, mint := accounts[0], accounts[1], accounts[2]
	tokenProgram, ataProgram, systemProgram := accounts[3], accounts[4], accounts[5]

	if !payer.IsSigner {
		return fmt.Errorf("%w: payer", ErrConstraintSigner)
	}
	if !payer.IsWritable {
		return fmt.Errorf("%w: payer", ErrConstraintMut)
	}
	if !list.IsWritable {
		return fmt.Errorf("%w: extra_account_meta_list", ErrConstraintMut)
	}
	if !tokenProgram.Key.Equals(solana.TokenProgramID) && !tokenProgram.Key.Equals(solana.Token2022ProgramID) {
		return fmt.Errorf("%w: token_program %s", ErrInvalidProgramID, tokenProgram.Key)
	}
	if !ataProgram.Key.Equals(solana.SPLAssociatedTokenAccountProgramID) {
		return fmt.Errorf("%w: associated_token_program %s", ErrInvalidProgramID, ataProgram.Key)
	}
	if !systemProgram.Key.Equals(solana.SystemProgramID) {
		return fmt.Errorf("%w: system_program %s", ErrInvalidProgramID, systemProgram.Key)
	}

	derived, err := pda.FindExtraAccountMetas(mint.Key, programID)
	if err != nil {
		return err
	}
	if !derived.Matches(list.Key) {
		return fmt.Errorf("%w: extra_account_meta_list %s, expected %s", ErrConstraintSeeds, list.Key, derived.Address)
	}

	alloc, err := allocator.Allocate(c, allocator.Params{
		Payer:         payer,
		Target:        list,
		SystemProgram: systemProgram,
		Seeds:         derived,
		Size:          registry.SizeOf(len(v.metas)),
		Owner:         programID,
	})
	if err != nil {
		return err
	}
	if err := registry.Init(list.Account.Data, v.metas); err != nil {
		return err
	}

	v.logger.Debug().
		Str("mint", mint.Key.String()).
		Str("registry", list.Key.String()).
		Int("metas", len(v.metas)).
		Uint64("lamports", alloc.Lamports).
		Msg("Created extra account meta list")
	c.Log(fmt.Sprintf("initialized %d extra account metas for %s", len(v.metas), mint.Key))
	return nil
}

// processExecute checks that the registry belongs to this program and that
// the accounts after the fixed five are exactly what it resolves to.
func (v *Validator) processExecute(c *runtime.Context, programID solana.PublicKey, accounts []*runtime.AccountInfo, data []byte) error {
	if len(accounts) < 5 {
		return ErrNotEnoughAccountKeys
	}
	if len(data) < cpi.DiscriminatorSize+8 {
		return fmt.Errorf("%w: execute data is %d bytes", ErrUnknownInstruction, len(data))
	}
	mint, list := accounts[1], accounts[4]

	derived, err := pda.FindExtraAccountMetas(mint.Key, programID)
	if err != nil {
		return err
	}
	if !derived.Matches(list.Key) {
		return fmt.Errorf("%w: extra_account_meta_list %s, expected %s", ErrConstraintSeeds, list.Key, derived.Address)
	}
	if !list.Account.Owner.Equals(programID) {
		return fmt.Errorf("%w: extra_account_meta_list is owned by %s", ErrConstraintOwner, list.Account.Owner)
	}
	metas, err := registry.Unpack(list.Account.Data)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidRegistry, err)
	}

	keys := make([]solana.PublicKey, 5)
	for i := range keys {
		keys[i] = accounts[i].Key
	}
	resolved, err := registry.Resolve(metas, registry.ResolveInput{
		ProgramID:       programID,
		Accounts:        keys,
		InstructionData: data,
		AccountData: func(key solana.PublicKey) ([]byte, error) {
			for _, a := range accounts {
				if a.Key.Equals(key) {
					return a.Account.Data, nil
				}
			}
			return nil, fmt.Errorf("account %s not supplied", key)
		},
	})
	if err != nil {
		return err
	}

	extras := accounts[5:]
	if len(extras) != len(resolved) {
		return fmt.Errorf("%w: got %d, want %d", ErrExtraAccountsMismatch, len(extras), len(resolved))
	}
	for i, want := range resolved {
		got := extras[i]
		if !got.Key.Equals(want.PublicKey) || got.IsWritable != want.IsWritable || got.IsSigner != want.IsSigner {
			return fmt.Errorf("%w: extra account %d is %s, want %s", ErrExtraAccountsMismatch, i, got.Key, want.PublicKey)
		}
	}

	amount := binary.LittleEndian.Uint64(data[cpi.DiscriminatorSize:])
	c.Log(fmt.Sprintf("transfer of %d approved", amount))
	return nil
}
