// Package pda derives program addresses: off-curve keys that only the owning
// program can sign for by presenting the seeds and the canonical bump.
package pda

import (
	"errors"
	"fmt"

	"filippo.io/edwards25519"
	solana "github.com/gagliardetto/solana-go"
)

// ExtraAccountMetasSeed is the namespace tag of the extra account meta list PDA.
const ExtraAccountMetasSeed = "extra-account-metas"

var (
	// ErrDerivationExhausted is returned when no bump in [0, 255] yields an
	// off-curve address.
	ErrDerivationExhausted = errors.New("program address derivation exhausted")
	// ErrAddressMismatch is returned when seeds and bump do not reproduce the
	// claimed address.
	ErrAddressMismatch = errors.New("derived address mismatch")
	// ErrInvalidSeeds is returned for seed sets the runtime would reject.
	ErrInvalidSeeds = errors.New("invalid seeds")
)

// DerivedAddress is a program address together with the proof of its
// derivation. The bump travels with the address so every signer uses the
// same canonical nonce instead of searching again.
type DerivedAddress struct {
	Address   solana.PublicKey
	Bump      uint8
	ProgramID solana.PublicKey
	Seeds     [][]byte
}

// Find derives the canonical address for seeds under programID.
func Find(programID solana.PublicKey, seeds ...[]byte) (DerivedAddress, error) {
	if err := checkSeeds(seeds); err != nil {
		return DerivedAddress{}, err
	}
	address, bump, err := solana.FindProgramAddress(seeds, programID)
	if err != nil {
		return DerivedAddress{}, fmt.Errorf("%w: %v", ErrDerivationExhausted, err)
	}
	return DerivedAddress{
		Address:   address,
		Bump:      bump,
		ProgramID: programID,
		Seeds:     copySeeds(seeds),
	}, nil
}

// FindExtraAccountMetas derives the extra account meta list address of mint
// under the transfer-hook validator program.
func FindExtraAccountMetas(mint, validator solana.PublicKey) (DerivedAddress, error) {
	return Find(validator, []byte(ExtraAccountMetasSeed), mint.Bytes())
}

// Create computes the address for seeds and an explicit bump.
func Create(programID solana.PublicKey, bump uint8, seeds ...[]byte) (solana.PublicKey, error) {
	if err := checkSeeds(seeds); err != nil {
		return solana.PublicKey{}, err
	}
	full := append(copySeeds(seeds), []byte{bump})
	address, err := solana.CreateProgramAddress(full, programID)
	if err != nil {
		return solana.PublicKey{}, fmt.Errorf("%w: %v", ErrAddressMismatch, err)
	}
	return address, nil
}

// SignerSeeds returns seeds followed by the bump, in the order the runtime
// hashes them.
func (d DerivedAddress) SignerSeeds() [][]byte {
	return append(copySeeds(d.Seeds), []byte{d.Bump})
}

// Verify re-derives the address from seeds and bump.
func (d DerivedAddress) Verify() error {
	address, err := Create(d.ProgramID, d.Bump, d.Seeds...)
	if err != nil {
		return err
	}
	if !address.Equals(d.Address) {
		return fmt.Errorf("%w: seeds produce %s, claimed %s", ErrAddressMismatch, address, d.Address)
	}
	if IsOnCurve(d.Address) {
		return fmt.Errorf("%w: %s is on the ed25519 curve", ErrAddressMismatch, d.Address)
	}
	return nil
}

// Matches reports whether address is the derived address.
func (d DerivedAddress) Matches(address solana.PublicKey) bool {
	return d.Address.Equals(address)
}

// IsOnCurve reports whether key decodes to an ed25519 point, i.e. whether a
// private key could exist for it.
func IsOnCurve(key solana.PublicKey) bool {
	_, err := new(edwards25519.Point).SetBytes(key[:])
	return err == nil
}

func checkSeeds(seeds [][]byte) error {
	// one slot is reserved for the bump
	if len(seeds) >= solana.MaxSeeds {
		return fmt.Errorf("%w: %d seeds, max %d", ErrInvalidSeeds, len(seeds), solana.MaxSeeds-1)
	}
	for i, s := range seeds {
		if len(s) > solana.MaxSeedLength {
			return fmt.Errorf("%w: seed %d is %d bytes, max %d", ErrInvalidSeeds, i, len(s), solana.MaxSeedLength)
		}
	}
	return nil
}

func copySeeds(seeds [][]byte) [][]byte {
	out := make([][]byte, len(seeds))
	for i, s := range seeds {
		out[i] = append([]byte(nil), s...)
	}
	return out
}
