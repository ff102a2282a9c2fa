package registry

import (
	"fmt"
)

// SeedKind tags how a PDA seed is obtained at resolution time.
type SeedKind uint8

const (
	seedUninitialized   SeedKind = 0
	SeedLiteral         SeedKind = 1
	SeedInstructionData SeedKind = 2
	SeedAccountKey      SeedKind = 3
	SeedAccountData     SeedKind = 4
)

func (k SeedKind) String() string {
	switch k {
	case SeedLiteral:
		return "literal"
	case SeedInstructionData:
		return "instruction_data"
	case SeedAccountKey:
		return "account_key"
	case SeedAccountData:
		return "account_data"
	default:
		return fmt.Sprintf("seed(%d)", uint8(k))
	}
}

// Seed is one component of a PDA descriptor.
//
// Packed layout (all fit the 32-byte address config, zero terminated):
//
//	Literal:         [1][len][bytes...]
//	InstructionData: [2][index][length]
//	AccountKey:      [3][index]
//	AccountData:     [4][account_index][data_index][length]
type Seed struct {
	Kind      SeedKind
	Bytes     []byte
	Index     uint8
	DataIndex uint8
	Length    uint8
}

// LiteralSeed is a fixed byte string.
func LiteralSeed(b []byte) Seed {
	return Seed{Kind: SeedLiteral, Bytes: append([]byte(nil), b...)}
}

// InstructionDataSeed takes length bytes of the instruction data at index.
func InstructionDataSeed(index, length uint8) Seed {
	return Seed{Kind: SeedInstructionData, Index: index, Length: length}
}

// AccountKeySeed takes the key of the resolved account at index.
func AccountKeySeed(index uint8) Seed {
	return Seed{Kind: SeedAccountKey, Index: index}
}

// AccountDataSeed takes length bytes at dataIndex of the data of the resolved
// account at accountIndex.
func AccountDataSeed(accountIndex, dataIndex, length uint8) Seed {
	return Seed{Kind: SeedAccountData, Index: accountIndex, DataIndex: dataIndex, Length: length}
}

func (s Seed) packedLen() int {
	switch s.Kind {
	case SeedLiteral:
		return 2 + len(s.Bytes)
	case SeedInstructionData:
		return 3
	case SeedAccountKey:
		return 2
	case SeedAccountData:
		return 4
	default:
		return 0
	}
}

// PackSeeds writes seeds into an address config.
func PackSeeds(seeds []Seed) ([32]byte, error) {
	var out [32]byte
	offset := 0
	for i, s := range seeds {
		n := s.packedLen()
		if n == 0 {
			return out, fmt.Errorf("%w: seed %d has unknown kind %d", ErrInvalidSeedConfig, i, s.Kind)
		}
		if s.Kind == SeedLiteral && len(s.Bytes) > 255 {
			return out, fmt.Errorf("%w: literal seed %d too long", ErrInvalidSeedConfig, i)
		}
		if offset+n > len(out) {
			return out, fmt.Errorf("%w: seeds need more than %d bytes", ErrInvalidSeedConfig, len(out))
		}
		out[offset] = byte(s.Kind)
		switch s.Kind {
		case SeedLiteral:
			out[offset+1] = byte(len(s.Bytes))
			copy(out[offset+2:], s.Bytes)
		case SeedInstructionData:
			out[offset+1] = s.Index
			out[offset+2] = s.Length
		case SeedAccountKey:
			out[offset+1] = s.Index
		case SeedAccountData:
			out[offset+1] = s.Index
			out[offset+2] = s.DataIndex
			out[offset+3] = s.Length
		}
		offset += n
	}
	return out, nil
}

// UnpackSeeds parses an address config written by PackSeeds.
func UnpackSeeds(config [32]byte) ([]Seed, error) {
	var seeds []Seed
	offset := 0
	for offset < len(config) {
		kind := SeedKind(config[offset])
		if kind == seedUninitialized {
			break
		}
		need := Seed{Kind: kind}.packedLen()
		if need == 0 {
			return nil, fmt.Errorf("%w: unknown seed kind %d at offset %d", ErrInvalidSeedConfig, kind, offset)
		}
		if offset+need > len(config) {
			return nil, fmt.Errorf("%w: truncated %s seed at offset %d", ErrInvalidSeedConfig, kind, offset)
		}
		switch kind {
		case SeedLiteral:
			n := int(config[offset+1])
			if offset+2+n > len(config) {
				return nil, fmt.Errorf("%w: literal seed overruns config", ErrInvalidSeedConfig)
			}
			seeds = append(seeds, LiteralSeed(config[offset+2:offset+2+n]))
			offset += 2 + n
		case SeedInstructionData:
			seeds = append(seeds, InstructionDataSeed(config[offset+1], config[offset+2]))
			offset += need
		case SeedAccountKey:
			seeds = append(seeds, AccountKeySeed(config[offset+1]))
			offset += need
		case SeedAccountData:
			seeds = append(seeds, AccountDataSeed(config[offset+1], config[offset+2], config[offset+3]))
			offset += need
		}
	}
	return seeds, nil
}
