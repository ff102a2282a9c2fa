package runtime

import (
	"bytes"
	"errors"
	"fmt"

	solana "github.com/gagliardetto/solana-go"

	"github.com/cpswap/hookcpi/accounts"
	"github.com/cpswap/hookcpi/pda"
)

var (
	ErrProgramNotFound          = errors.New("program not found")
	ErrMissingAccount           = errors.New("instruction references an account that was not supplied")
	ErrPrivilegeEscalation      = errors.New("writable privilege escalated")
	ErrMissingRequiredSignature = errors.New("missing required signature")
	ErrCallDepth                = errors.New("cross-program invocation depth exceeded")
	ErrReadonlyModified         = errors.New("instruction modified a read-only account")
	ErrExternalDataModified     = errors.New("instruction modified data of an account it does not own")
	ErrExternalLamportSpend     = errors.New("instruction spent lamports of an account it does not own")
	ErrModifiedOwner            = errors.New("instruction changed the owner of an account it does not own")
	ErrUnbalancedInstruction    = errors.New("sum of account balances changed")
	ErrDerivedSignerNotOwned    = errors.New("derived signer is not an address of the calling program")
)

// CallError carries a callee failure out of Invoke. Its message is the
// callee's message, unchanged.
type CallError struct {
	Program solana.PublicKey
	Err     error
}

func (e *CallError) Error() string {
	return e.Err.Error()
}

func (e *CallError) Unwrap() error {
	return e.Err
}

// Invoke calls the instruction's program with the caller's privileges.
// infos must contain every account the instruction references plus the
// program account.
func (c *Context) Invoke(ix solana.Instruction, infos []*AccountInfo) error {
	return c.InvokeSigned(ix, infos)
}

// InvokeSigned is Invoke with additional signatures from derived addresses.
// Each derived address must reproduce itself from its seeds and bump, and
// must be derived under the program that is executing. Outside of any
// program no derived signer is accepted.
func (c *Context) InvokeSigned(ix solana.Instruction, infos []*AccountInfo, signers ...pda.DerivedAddress) error {
	if err := c.ctx.Err(); err != nil {
		return err
	}
	if c.depth >= MaxInvokeDepth {
		return fmt.Errorf("%w: %d", ErrCallDepth, MaxInvokeDepth)
	}
	if err := c.checkpoint(); err != nil {
		return err
	}

	programID := ix.ProgramID()
	program, ok := c.rt.program(programID)
	if !ok {
		return fmt.Errorf("%w: %s", ErrProgramNotFound, programID)
	}
	if findInfo(infos, programID) == nil {
		return fmt.Errorf("%w: program account %s", ErrMissingAccount, programID)
	}
	data, err := ix.Data()
	if err != nil {
		return fmt.Errorf("instruction data: %w", err)
	}

	derived := make(map[solana.PublicKey]bool, len(signers))
	for _, s := range signers {
		if c.program.IsZero() || !s.ProgramID.Equals(c.program) {
			return fmt.Errorf("%w: %s is derived under %s", ErrDerivedSignerNotOwned, s.Address, s.ProgramID)
		}
		if err := s.Verify(); err != nil {
			return err
		}
		derived[s.Address] = true
	}

	metas := ix.Accounts()
	callee := make([]*AccountInfo, 0, len(metas))
	for _, meta := range metas {
		info := findInfo(infos, meta.PublicKey)
		if info == nil {
			return fmt.Errorf("%w: %s", ErrMissingAccount, meta.PublicKey)
		}
		if meta.IsWritable && !info.IsWritable {
			return fmt.Errorf("%w: %s", ErrPrivilegeEscalation, meta.PublicKey)
		}
		if meta.IsSigner && !info.IsSigner && !derived[meta.PublicKey] {
			return fmt.Errorf("%w: %s", ErrMissingRequiredSignature, meta.PublicKey)
		}
		callee = append(callee, &AccountInfo{
			Key:        meta.PublicKey,
			IsSigner:   meta.IsSigner,
			IsWritable: meta.IsWritable,
			Account:    info.Account,
		})
	}

	before := snapshot(callee)
	child := *c
	child.depth = c.depth + 1
	child.program = programID
	child.frame = callee
	child.pre = snapshot(callee)

	child.Log(fmt.Sprintf("Program %s invoke [%d]", programID, child.depth))
	if err := program.Process(&child, programID, callee, data); err != nil {
		child.Log(fmt.Sprintf("Program %s failed: %v", programID, err))
		restore(callee, before)
		return &CallError{Program: programID, Err: err}
	}
	if err := verifyChanges(programID, callee, child.pre); err != nil {
		restore(callee, before)
		return err
	}
	child.Log(fmt.Sprintf("Program %s success", programID))

	for _, info := range callee {
		if info.IsWritable {
			c.loaded[info.Key] = info.Account
			c.dirty[info.Key] = true
		}
		if _, ok := c.pre[info.Key]; ok {
			c.pre[info.Key] = info.Account.Clone()
		}
	}
	return nil
}

// checkpoint verifies what the executing program changed so far and accepts
// it as the new baseline.
func (c *Context) checkpoint() error {
	if c.pre == nil {
		return nil
	}
	if err := verifyChanges(c.program, c.frame, c.pre); err != nil {
		return err
	}
	for key := range c.pre {
		c.pre[key] = findInfo(c.frame, key).Account.Clone()
	}
	return nil
}

func findInfo(infos []*AccountInfo, key solana.PublicKey) *AccountInfo {
	for _, info := range infos {
		if info.Key.Equals(key) {
			return info
		}
	}
	return nil
}

func snapshot(infos []*AccountInfo) map[solana.PublicKey]*accounts.Account {
	out := make(map[solana.PublicKey]*accounts.Account, len(infos))
	for _, info := range infos {
		if _, ok := out[info.Key]; !ok {
			out[info.Key] = info.Account.Clone()
		}
	}
	return out
}

// restore rolls the callee's accounts back after a failed call.
func restore(infos []*AccountInfo, before map[solana.PublicKey]*accounts.Account) {
	for _, info := range infos {
		*info.Account = *before[info.Key].Clone()
	}
}

// verifyChanges enforces the ownership rules on what a program did to the
// accounts it was given.
func verifyChanges(programID solana.PublicKey, infos []*AccountInfo, before map[solana.PublicKey]*accounts.Account) error {
	writable := make(map[solana.PublicKey]bool, len(infos))
	for _, info := range infos {
		writable[info.Key] = writable[info.Key] || info.IsWritable
	}

	var sumBefore, sumAfter uint64
	for key, old := range before {
		acct := findInfo(infos, key).Account
		sumBefore += old.Lamports
		sumAfter += acct.Lamports

		changed := old.Lamports != acct.Lamports || !old.Owner.Equals(acct.Owner) ||
			!bytes.Equal(old.Data, acct.Data) || old.Executable != acct.Executable
		if !changed {
			continue
		}
		if !writable[key] {
			return fmt.Errorf("%w: %s", ErrReadonlyModified, key)
		}
		owned := old.Owner.Equals(programID)
		if !owned && !bytes.Equal(old.Data, acct.Data) {
			return fmt.Errorf("%w: %s", ErrExternalDataModified, key)
		}
		if !owned && !old.Owner.Equals(acct.Owner) {
			return fmt.Errorf("%w: %s", ErrModifiedOwner, key)
		}
		if !owned && acct.Lamports < old.Lamports {
			return fmt.Errorf("%w: %s", ErrExternalLamportSpend, key)
		}
	}
	if sumBefore != sumAfter {
		return fmt.Errorf("%w: %d before, %d after", ErrUnbalancedInstruction, sumBefore, sumAfter)
	}
	return nil
}
