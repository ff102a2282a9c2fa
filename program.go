package hookcpi

import (
	"context"
	"errors"
	"fmt"

	solana "github.com/gagliardetto/solana-go"
	"github.com/rs/zerolog"

	"github.com/cpswap/hookcpi/allocator"
	"github.com/cpswap/hookcpi/cpi"
	"github.com/cpswap/hookcpi/pda"
	"github.com/cpswap/hookcpi/registry"
	"github.com/cpswap/hookcpi/runtime"
)

// SetupDiscriminator identifies the setup program's "initialize hook for
// mint" instruction.
var SetupDiscriminator = cpi.Discriminator{89, 233, 136, 243, 82, 151, 60, 248}

var (
	errUnknownSetupInstruction = errors.New("unknown setup instruction")
	errNotEnoughAccountKeys    = errors.New("not enough account keys given to the instruction")

	// ErrInvalidRegistryOwner is returned when initialize leaves the registry
	// owned by anything other than the validator.
	ErrInvalidRegistryOwner = errors.New("extra account meta list is not owned by the validator")
)

// BuildSetup frames the setup instruction: the six initialize accounts in
// wire order followed by the validator, which is read only and used for
// address derivation.
func BuildSetup(setupProgram solana.PublicKey, req SetupRequest) *cpi.Frame {
	metas := initializeAccounts(req).Metas()
	metas = append(metas, solana.NewAccountMeta(req.Validator, false, false))
	return &cpi.Frame{
		Program: setupProgram,
		Metas:   metas,
		Payload: append([]byte(nil), SetupDiscriminator[:]...),
	}
}

func initializeAccounts(req SetupRequest) cpi.InitializeAccounts {
	return cpi.InitializeAccounts{
		Payer:                  req.Payer,
		ExtraAccountMetaList:   req.Registry,
		Mint:                   req.Mint,
		TokenProgram:           req.TokenProgram,
		AssociatedTokenProgram: req.AssociatedTokenProgram,
		SystemProgram:          req.SystemProgram,
	}
}

// progress records how far one setup got. It travels in the request context
// because a program only returns an error.
type progress struct {
	state      State
	derived    pda.DerivedAddress
	allocation *allocator.Allocation
}

type progressKey struct{}

func withProgress(ctx context.Context, p *progress) context.Context {
	return context.WithValue(ctx, progressKey{}, p)
}

func progressFrom(ctx context.Context) *progress {
	if p, ok := ctx.Value(progressKey{}).(*progress); ok {
		return p
	}
	return &progress{state: StateUnregistered}
}

// setupProgram derives the registry address, checks that the slot is free
// and the payer can fund it, then calls the validator's initialize, which
// creates and fills the slot under its own program id. All of it runs inside
// one instruction so the runtime applies all of it or none of it.
type setupProgram struct {
	initialize cpi.Discriminator
	metas      []registry.ExtraAccountMeta
	logger     zerolog.Logger
}

var _ runtime.Program = (*setupProgram)(nil)

func (p *setupProgram) Process(c *runtime.Context, _ solana.PublicKey, accounts []*runtime.AccountInfo, data []byte) error {
	if !SetupDiscriminator.Matches(data) {
		return errUnknownSetupInstruction
	}
	if len(accounts) < 7 {
		return errNotEnoughAccountKeys
	}
	payer, list, mint := accounts[0], accounts[1], accounts[2]
	tokenProgram, ataProgram, systemProgram, hookProgram := accounts[3], accounts[4], accounts[5], accounts[6]

	// the runtime may run the instruction again after a storage conflict
	pr := progressFrom(c.Context())
	*pr = progress{state: StateUnregistered}

	derived, err := pda.FindExtraAccountMetas(mint.Key, hookProgram.Key)
	if err != nil {
		return err
	}
	pr.derived = derived
	if !derived.Matches(list.Key) {
		return fmt.Errorf("%w: extra account meta list is %s, derived %s", pda.ErrAddressMismatch, list.Key, derived.Address)
	}

	if !list.Account.IsEmpty() {
		return fmt.Errorf("%w: extra account meta list %s is owned by %s", runtime.ErrAccountAlreadyInUse, list.Key, list.Account.Owner)
	}
	if !payer.Account.Owner.Equals(solana.SystemProgramID) || len(payer.Account.Data) > 0 {
		return fmt.Errorf("%w: payer %s is owned by %s", runtime.ErrInvalidFundingAccount, payer.Key, payer.Account.Owner)
	}
	size := registry.SizeOf(len(p.metas))
	if need := c.Rent().MinimumBalance(size); payer.Account.Lamports < need {
		return fmt.Errorf("%w: payer has %d lamports, registry needs %d", runtime.ErrInsufficientFunds, payer.Account.Lamports, need)
	}

	frame := cpi.BuildInitialize(hookProgram.Key, cpi.InitializeAccounts{
		Payer:                  payer.Key,
		ExtraAccountMetaList:   list.Key,
		Mint:                   mint.Key,
		TokenProgram:           tokenProgram.Key,
		AssociatedTokenProgram: ataProgram.Key,
		SystemProgram:          systemProgram.Key,
	}, p.initialize)
	infos := []*runtime.AccountInfo{payer, list, mint, tokenProgram, ataProgram, systemProgram, hookProgram}
	if err := c.Invoke(frame, infos); err != nil {
		return err
	}

	slot := list.Account
	if !slot.IsEmpty() {
		pr.allocation = &allocator.Allocation{
			Address:  list.Key,
			Lamports: slot.Lamports,
			Size:     len(slot.Data),
			Owner:    slot.Owner,
		}
		pr.state = StateAllocated
	}
	if !slot.Owner.Equals(hookProgram.Key) {
		return fmt.Errorf("%w: extra account meta list %s is owned by %s after initialize", ErrInvalidRegistryOwner, list.Key, slot.Owner)
	}
	if len(slot.Data) != size {
		return fmt.Errorf("%w: validator allocated %d bytes, expected %d", registry.ErrLayoutSizeMismatch, len(slot.Data), size)
	}
	if _, err := registry.Unpack(slot.Data); err != nil {
		return err
	}
	pr.state = StateInitialized

	c.Log("Successfully initialized extra account meta list via CPI")
	p.logger.Debug().
		Str("mint", mint.Key.String()).
		Str("registry", list.Key.String()).
		Str("validator", hookProgram.Key.String()).
		Int("size", size).
		Msg("Initialized extra account meta list via CPI")
	return nil
}
