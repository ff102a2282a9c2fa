// Package allocator creates storage slots at derived addresses: funded to the
// rent-exempt minimum, owned as instructed and authorized by the address's
// seeds instead of a private key.
package allocator

import (
	"fmt"

	solana "github.com/gagliardetto/solana-go"
	"github.com/gagliardetto/solana-go/programs/system"

	"github.com/cpswap/hookcpi/internal/log"
	"github.com/cpswap/hookcpi/pda"
	"github.com/cpswap/hookcpi/runtime"
)

// Params describes one allocation. The account infos are the ones the caller
// was handed, so their privileges carry through to the system program.
type Params struct {
	Payer         *runtime.AccountInfo
	Target        *runtime.AccountInfo
	SystemProgram *runtime.AccountInfo

	// Seeds proves the caller may sign for Target.
	Seeds pda.DerivedAddress
	Size  int
	Owner solana.PublicKey
}

// Allocation is a created slot.
type Allocation struct {
	Address  solana.PublicKey
	Lamports uint64
	Size     int
	Owner    solana.PublicKey
}

// Allocate creates the slot described by p. A seed set that does not
// reproduce the target fails with pda.ErrAddressMismatch before anything is
// invoked. An occupied target fails with runtime.ErrAccountAlreadyInUse and
// an underfunded payer with runtime.ErrInsufficientFunds.
func Allocate(c *runtime.Context, p Params) (*Allocation, error) {
	if p.Payer == nil || p.Target == nil || p.SystemProgram == nil {
		return nil, fmt.Errorf("allocate: payer, target and system program are required")
	}
	if !p.SystemProgram.Key.Equals(solana.SystemProgramID) {
		return nil, fmt.Errorf("allocate: %s is not the system program", p.SystemProgram.Key)
	}
	if p.Size < 0 || p.Size > runtime.MaxPermittedDataLength {
		return nil, fmt.Errorf("%w: %d", runtime.ErrInvalidAccountDataLength, p.Size)
	}
	if !p.Seeds.Matches(p.Target.Key) {
		return nil, fmt.Errorf("%w: seeds derive %s, target is %s", pda.ErrAddressMismatch, p.Seeds.Address, p.Target.Key)
	}
	if err := p.Seeds.Verify(); err != nil {
		return nil, err
	}

	lamports := c.Rent().MinimumBalance(p.Size)
	ix := system.NewCreateAccountInstruction(
		lamports,
		uint64(p.Size),
		p.Owner,
		p.Payer.Key,
		p.Target.Key,
	).Build()

	log.Storage.Debug().
		Str("address", p.Target.Key.String()).
		Str("owner", p.Owner.String()).
		Int("size", p.Size).
		Uint64("lamports", lamports).
		Uint8("bump", p.Seeds.Bump).
		Msg("Allocating storage slot")

	if err := c.InvokeSigned(ix, []*runtime.AccountInfo{p.Payer, p.Target, p.SystemProgram}, p.Seeds); err != nil {
		return nil, err
	}

	return &Allocation{
		Address:  p.Target.Key,
		Lamports: lamports,
		Size:     p.Size,
		Owner:    p.Owner,
	}, nil
}
