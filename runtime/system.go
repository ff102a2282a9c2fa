package runtime

import (
	"errors"
	"fmt"

	solana "github.com/gagliardetto/solana-go"
	"github.com/gagliardetto/solana-go/programs/system"
)

// MaxPermittedDataLength caps the data size of a created account.
const MaxPermittedDataLength = 10 * 1024 * 1024

var (
	ErrAccountAlreadyInUse      = errors.New("account already in use")
	ErrInsufficientFunds        = errors.New("insufficient funds")
	ErrInsufficientFundsForRent = errors.New("insufficient funds for rent")
	ErrInvalidAccountDataLength = errors.New("invalid account data length")
	ErrInvalidInstructionData   = errors.New("invalid instruction data")
	ErrUnsupportedInstruction   = errors.New("unsupported system instruction")
	ErrInvalidFundingAccount    = errors.New("funding account must be a system account without data")
)

// SystemProgram implements the subset of the system program used to fund and
// allocate accounts: CreateAccount and Transfer.
type SystemProgram struct{}

var _ Program = SystemProgram{}

// Process implements Program.
func (SystemProgram) Process(ctx *Context, _ solana.PublicKey, accounts []*AccountInfo, data []byte) error {
	metas := make([]*solana.AccountMeta, len(accounts))
	for i, a := range accounts {
		metas[i] = solana.NewAccountMeta(a.Key, a.IsWritable, a.IsSigner)
	}
	inst, err := system.DecodeInstruction(metas, data)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidInstructionData, err)
	}

	switch impl := inst.Impl.(type) {
	case *system.CreateAccount:
		if len(accounts) < 2 || impl.Lamports == nil || impl.Space == nil || impl.Owner == nil {
			return ErrInvalidInstructionData
		}
		return createAccount(ctx, accounts[0], accounts[1], *impl.Lamports, *impl.Space, *impl.Owner)
	case *system.Transfer:
		if len(accounts) < 2 || impl.Lamports == nil {
			return ErrInvalidInstructionData
		}
		return transfer(ctx, accounts[0], accounts[1], *impl.Lamports)
	default:
		return fmt.Errorf("%w: %T", ErrUnsupportedInstruction, inst.Impl)
	}
}

func createAccount(ctx *Context, from, to *AccountInfo, lamports, space uint64, owner solana.PublicKey) error {
	if !to.IsSigner {
		return fmt.Errorf("%w: new account %s", ErrMissingRequiredSignature, to.Key)
	}
	if !to.Account.IsEmpty() {
		ctx.Log(fmt.Sprintf("Create Account: account %s already in use", to.Key))
		return ErrAccountAlreadyInUse
	}
	if space > MaxPermittedDataLength {
		return fmt.Errorf("%w: %d", ErrInvalidAccountDataLength, space)
	}
	if lamports < ctx.Rent().MinimumBalance(int(space)) {
		return fmt.Errorf("%w: %d lamports for %d bytes", ErrInsufficientFundsForRent, lamports, space)
	}
	if err := transfer(ctx, from, to, lamports); err != nil {
		return err
	}

	to.Account.Data = make([]byte, space)
	to.Account.Owner = owner
	return nil
}

func transfer(ctx *Context, from, to *AccountInfo, lamports uint64) error {
	if !from.IsSigner {
		return fmt.Errorf("%w: funding account %s", ErrMissingRequiredSignature, from.Key)
	}
	if !from.Account.Owner.Equals(solana.SystemProgramID) {
		return fmt.Errorf("%w: funding account %s is owned by %s", ErrInvalidFundingAccount, from.Key, from.Account.Owner)
	}
	if len(from.Account.Data) > 0 {
		return fmt.Errorf("%w: funding account %s carries data", ErrInvalidFundingAccount, from.Key)
	}
	if from.Account.Lamports < lamports {
		ctx.Log(fmt.Sprintf("Transfer: insufficient lamports %d, need %d", from.Account.Lamports, lamports))
		return fmt.Errorf("%w: have %d, need %d", ErrInsufficientFunds, from.Account.Lamports, lamports)
	}
	from.Account.Lamports -= lamports
	to.Account.Lamports += lamports
	return nil
}
