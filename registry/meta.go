package registry

import (
	"fmt"

	solana "github.com/gagliardetto/solana-go"
)

// MetaSize is the packed size of one ExtraAccountMeta.
const MetaSize = 1 + 32 + 1 + 1

// Descriptor discriminators.
const (
	KindFixed       uint8 = 0
	KindPDA         uint8 = 1
	KindPubkeyData  uint8 = 2
	kindExternalPDA uint8 = 1 << 7
)

// PubkeyData sources, stored in the first byte of the address config.
const (
	PubkeyFromInstructionData uint8 = 1
	PubkeyFromAccountData     uint8 = 2
)

// ExtraAccountMeta describes one account a transfer-hook validator needs
// appended to its execute instruction.
type ExtraAccountMeta struct {
	Discriminator uint8
	AddressConfig [32]byte
	IsSigner      bool
	IsWritable    bool
}

// NewFixed describes a literal address.
func NewFixed(key solana.PublicKey, isSigner, isWritable bool) ExtraAccountMeta {
	return ExtraAccountMeta{
		Discriminator: KindFixed,
		AddressConfig: key,
		IsSigner:      isSigner,
		IsWritable:    isWritable,
	}
}

// NewPDA describes an address derived from seeds under the executing
// validator program.
func NewPDA(seeds []Seed, isSigner, isWritable bool) (ExtraAccountMeta, error) {
	config, err := PackSeeds(seeds)
	if err != nil {
		return ExtraAccountMeta{}, err
	}
	return ExtraAccountMeta{
		Discriminator: KindPDA,
		AddressConfig: config,
		IsSigner:      isSigner,
		IsWritable:    isWritable,
	}, nil
}

// NewExternalPDA describes an address derived from seeds under the program
// found at resolved account index programIndex.
func NewExternalPDA(programIndex uint8, seeds []Seed, isSigner, isWritable bool) (ExtraAccountMeta, error) {
	if programIndex >= kindExternalPDA {
		return ExtraAccountMeta{}, fmt.Errorf("%w: program index %d exceeds %d", ErrInvalidAccountMeta, programIndex, kindExternalPDA-1)
	}
	config, err := PackSeeds(seeds)
	if err != nil {
		return ExtraAccountMeta{}, err
	}
	return ExtraAccountMeta{
		Discriminator: kindExternalPDA + programIndex,
		AddressConfig: config,
		IsSigner:      isSigner,
		IsWritable:    isWritable,
	}, nil
}

// NewPubkeyFromInstructionData describes an address read from 32 bytes of
// the execute instruction data starting at index.
func NewPubkeyFromInstructionData(index uint8, isSigner, isWritable bool) ExtraAccountMeta {
	var config [32]byte
	config[0] = PubkeyFromInstructionData
	config[1] = index
	return ExtraAccountMeta{
		Discriminator: KindPubkeyData,
		AddressConfig: config,
		IsSigner:      isSigner,
		IsWritable:    isWritable,
	}
}

// NewPubkeyFromAccountData describes an address read from 32 bytes at
// dataIndex of the resolved account at accountIndex.
func NewPubkeyFromAccountData(accountIndex, dataIndex uint8, isSigner, isWritable bool) ExtraAccountMeta {
	var config [32]byte
	config[0] = PubkeyFromAccountData
	config[1] = accountIndex
	config[2] = dataIndex
	return ExtraAccountMeta{
		Discriminator: KindPubkeyData,
		AddressConfig: config,
		IsSigner:      isSigner,
		IsWritable:    isWritable,
	}
}

// IsExternalPDA reports whether the descriptor derives under another program
// and returns that program's account index.
func (m ExtraAccountMeta) IsExternalPDA() (uint8, bool) {
	if m.Discriminator >= kindExternalPDA {
		return m.Discriminator - kindExternalPDA, true
	}
	return 0, false
}

// KindName is a short label for logs and JSON.
func (m ExtraAccountMeta) KindName() string {
	if _, ok := m.IsExternalPDA(); ok {
		return "external_pda"
	}
	switch m.Discriminator {
	case KindFixed:
		return "fixed"
	case KindPDA:
		return "pda"
	case KindPubkeyData:
		return "pubkey_data"
	default:
		return "unknown"
	}
}

// Validate checks that the descriptor can be resolved.
func (m ExtraAccountMeta) Validate() error {
	switch {
	case m.Discriminator == KindFixed:
		return nil
	case m.Discriminator == KindPDA:
		_, err := UnpackSeeds(m.AddressConfig)
		return err
	case m.Discriminator >= kindExternalPDA:
		_, err := UnpackSeeds(m.AddressConfig)
		return err
	case m.Discriminator == KindPubkeyData:
		switch m.AddressConfig[0] {
		case PubkeyFromInstructionData, PubkeyFromAccountData:
			return nil
		}
		return fmt.Errorf("%w: unknown pubkey data source %d", ErrInvalidAccountMeta, m.AddressConfig[0])
	default:
		return fmt.Errorf("%w: unknown discriminator %d", ErrInvalidAccountMeta, m.Discriminator)
	}
}
