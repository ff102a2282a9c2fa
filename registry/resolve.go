package registry

import (
	"errors"
	"fmt"

	solana "github.com/gagliardetto/solana-go"
)

var (
	// ErrIndexOutOfRange is returned when a descriptor references an account
	// or byte range that does not exist at resolution time.
	ErrIndexOutOfRange = errors.New("descriptor index out of range")
	// ErrAccountDataUnavailable is returned when a descriptor needs account
	// data and no source was supplied.
	ErrAccountDataUnavailable = errors.New("account data unavailable")
)

// AccountDataFunc returns the data of an account during resolution.
type AccountDataFunc func(key solana.PublicKey) ([]byte, error)

// ResolveInput is everything known about an execute instruction before its
// extra accounts are resolved.
type ResolveInput struct {
	// ProgramID is the executing validator program.
	ProgramID solana.PublicKey
	// Accounts are the instruction's fixed accounts, in order.
	Accounts []solana.PublicKey
	// InstructionData is the execute instruction's data.
	InstructionData []byte
	// AccountData is optional; only account-data seeds need it.
	AccountData AccountDataFunc
}

// Resolve turns descriptors into account metas in descriptor order. Each
// resolved account is appended to the known accounts, so a descriptor may
// reference any account resolved before it.
func Resolve(metas []ExtraAccountMeta, in ResolveInput) ([]*solana.AccountMeta, error) {
	known := append([]solana.PublicKey(nil), in.Accounts...)
	out := make([]*solana.AccountMeta, 0, len(metas))

	for i, m := range metas {
		key, err := resolveKey(m, in, known)
		if err != nil {
			return nil, fmt.Errorf("resolve descriptor %d (%s): %w", i, m.KindName(), err)
		}
		known = append(known, key)
		out = append(out, solana.NewAccountMeta(key, m.IsWritable, m.IsSigner))
	}
	return out, nil
}

func resolveKey(m ExtraAccountMeta, in ResolveInput, known []solana.PublicKey) (solana.PublicKey, error) {
	if programIndex, ok := m.IsExternalPDA(); ok {
		if int(programIndex) >= len(known) {
			return solana.PublicKey{}, fmt.Errorf("%w: program index %d of %d accounts", ErrIndexOutOfRange, programIndex, len(known))
		}
		return derive(m, known[programIndex], in, known)
	}

	switch m.Discriminator {
	case KindFixed:
		return solana.PublicKeyFromBytes(m.AddressConfig[:]), nil
	case KindPDA:
		return derive(m, in.ProgramID, in, known)
	case KindPubkeyData:
		return pubkeyFromData(m.AddressConfig, in, known)
	default:
		return solana.PublicKey{}, fmt.Errorf("%w: discriminator %d", ErrInvalidAccountMeta, m.Discriminator)
	}
}

func derive(m ExtraAccountMeta, programID solana.PublicKey, in ResolveInput, known []solana.PublicKey) (solana.PublicKey, error) {
	seeds, err := UnpackSeeds(m.AddressConfig)
	if err != nil {
		return solana.PublicKey{}, err
	}
	raw := make([][]byte, 0, len(seeds))
	for _, s := range seeds {
		b, err := seedBytes(s, in, known)
		if err != nil {
			return solana.PublicKey{}, err
		}
		raw = append(raw, b)
	}
	key, _, err := solana.FindProgramAddress(raw, programID)
	if err != nil {
		return solana.PublicKey{}, fmt.Errorf("derive under %s: %w", programID, err)
	}
	return key, nil
}

func seedBytes(s Seed, in ResolveInput, known []solana.PublicKey) ([]byte, error) {
	switch s.Kind {
	case SeedLiteral:
		return s.Bytes, nil
	case SeedInstructionData:
		return slice(in.InstructionData, int(s.Index), int(s.Length), "instruction data")
	case SeedAccountKey:
		if int(s.Index) >= len(known) {
			return nil, fmt.Errorf("%w: account key %d of %d accounts", ErrIndexOutOfRange, s.Index, len(known))
		}
		return known[s.Index].Bytes(), nil
	case SeedAccountData:
		data, err := accountData(in, known, s.Index)
		if err != nil {
			return nil, err
		}
		return slice(data, int(s.DataIndex), int(s.Length), "account data")
	default:
		return nil, fmt.Errorf("%w: seed kind %d", ErrInvalidSeedConfig, s.Kind)
	}
}

func pubkeyFromData(config [32]byte, in ResolveInput, known []solana.PublicKey) (solana.PublicKey, error) {
	switch config[0] {
	case PubkeyFromInstructionData:
		b, err := slice(in.InstructionData, int(config[1]), solana.PublicKeyLength, "instruction data")
		if err != nil {
			return solana.PublicKey{}, err
		}
		return solana.PublicKeyFromBytes(b), nil
	case PubkeyFromAccountData:
		data, err := accountData(in, known, config[1])
		if err != nil {
			return solana.PublicKey{}, err
		}
		b, err := slice(data, int(config[2]), solana.PublicKeyLength, "account data")
		if err != nil {
			return solana.PublicKey{}, err
		}
		return solana.PublicKeyFromBytes(b), nil
	default:
		return solana.PublicKey{}, fmt.Errorf("%w: pubkey data source %d", ErrInvalidAccountMeta, config[0])
	}
}

func accountData(in ResolveInput, known []solana.PublicKey, index uint8) ([]byte, error) {
	if int(index) >= len(known) {
		return nil, fmt.Errorf("%w: account %d of %d accounts", ErrIndexOutOfRange, index, len(known))
	}
	if in.AccountData == nil {
		return nil, ErrAccountDataUnavailable
	}
	data, err := in.AccountData(known[index])
	if err != nil {
		return nil, fmt.Errorf("%w: %s: %v", ErrAccountDataUnavailable, known[index], err)
	}
	return data, nil
}

func slice(data []byte, start, length int, what string) ([]byte, error) {
	if start+length > len(data) {
		return nil, fmt.Errorf("%w: %s[%d:%d] of %d bytes", ErrIndexOutOfRange, what, start, start+length, len(data))
	}
	return data[start : start+length], nil
}
