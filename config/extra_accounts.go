package config

import (
	"encoding/hex"
	"fmt"

	solana "github.com/gagliardetto/solana-go"

	"github.com/cpswap/hookcpi/registry"
)

// ExtraAccountConfig describes one extra account meta.
//
//	kind: fixed             address
//	kind: pda               seeds
//	kind: external_pda      program_index, seeds
//	kind: instruction_data  data_index
//	kind: account_data      account_index, data_index
type ExtraAccountConfig struct {
	Kind         string       `yaml:"kind"`
	Address      string       `yaml:"address,omitempty"`
	ProgramIndex uint8        `yaml:"program_index,omitempty"`
	AccountIndex uint8        `yaml:"account_index,omitempty"`
	DataIndex    uint8        `yaml:"data_index,omitempty"`
	Seeds        []SeedConfig `yaml:"seeds,omitempty"`
	Signer       bool         `yaml:"signer,omitempty"`
	Writable     bool         `yaml:"writable,omitempty"`
}

// SeedConfig describes one seed of a derived extra account.
//
//	kind: literal           value (utf-8) or hex
//	kind: instruction_data  index, length
//	kind: account_key       index
//	kind: account_data      account_index, index, length
type SeedConfig struct {
	Kind         string `yaml:"kind"`
	Value        string `yaml:"value,omitempty"`
	Hex          string `yaml:"hex,omitempty"`
	Index        uint8  `yaml:"index,omitempty"`
	AccountIndex uint8  `yaml:"account_index,omitempty"`
	Length       uint8  `yaml:"length,omitempty"`
}

// ExtraAccountMetas converts the configured descriptors. No descriptors
// yields an empty list.
func (h HookConfig) ExtraAccountMetas() ([]registry.ExtraAccountMeta, error) {
	metas := make([]registry.ExtraAccountMeta, 0, len(h.ExtraAccounts))
	for i, ea := range h.ExtraAccounts {
		m, err := ea.meta()
		if err != nil {
			return nil, fmt.Errorf("%w: extra_accounts[%d]: %v", ErrInvalidConfig, i, err)
		}
		metas = append(metas, m)
	}
	return metas, nil
}

func (ea ExtraAccountConfig) meta() (registry.ExtraAccountMeta, error) {
	switch ea.Kind {
	case "fixed":
		key, err := solana.PublicKeyFromBase58(ea.Address)
		if err != nil {
			return registry.ExtraAccountMeta{}, fmt.Errorf("address: %v", err)
		}
		return registry.NewFixed(key, ea.Signer, ea.Writable), nil
	case "pda":
		seeds, err := ea.seeds()
		if err != nil {
			return registry.ExtraAccountMeta{}, err
		}
		return registry.NewPDA(seeds, ea.Signer, ea.Writable)
	case "external_pda":
		seeds, err := ea.seeds()
		if err != nil {
			return registry.ExtraAccountMeta{}, err
		}
		return registry.NewExternalPDA(ea.ProgramIndex, seeds, ea.Signer, ea.Writable)
	case "instruction_data":
		return registry.NewPubkeyFromInstructionData(ea.DataIndex, ea.Signer, ea.Writable), nil
	case "account_data":
		return registry.NewPubkeyFromAccountData(ea.AccountIndex, ea.DataIndex, ea.Signer, ea.Writable), nil
	default:
		return registry.ExtraAccountMeta{}, fmt.Errorf("unknown kind %q", ea.Kind)
	}
}

func (ea ExtraAccountConfig) seeds() ([]registry.Seed, error) {
	if len(ea.Seeds) == 0 {
		return nil, fmt.Errorf("%s needs at least one seed", ea.Kind)
	}
	out := make([]registry.Seed, 0, len(ea.Seeds))
	for i, s := range ea.Seeds {
		switch s.Kind {
		case "literal":
			b := []byte(s.Value)
			if s.Hex != "" {
				var err error
				if b, err = hex.DecodeString(s.Hex); err != nil {
					return nil, fmt.Errorf("seeds[%d].hex: %v", i, err)
				}
			}
			out = append(out, registry.LiteralSeed(b))
		case "instruction_data":
			out = append(out, registry.InstructionDataSeed(s.Index, s.Length))
		case "account_key":
			out = append(out, registry.AccountKeySeed(s.Index))
		case "account_data":
			out = append(out, registry.AccountDataSeed(s.AccountIndex, s.Index, s.Length))
		default:
			return nil, fmt.Errorf("seeds[%d]: unknown kind %q", i, s.Kind)
		}
	}
	return out, nil
}
