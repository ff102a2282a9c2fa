// Package registry implements the extra account meta list: the TLV record a
// transfer-hook validator reads to learn which additional accounts its
// execute instruction needs, and the rules for resolving them.
package registry

import (
	"bytes"
	"crypto/sha256"
	"encoding/binary"
	"errors"
	"fmt"

	bin "github.com/gagliardetto/binary"
)

// headerSize covers the TLV type, TLV length and slice count.
const headerSize = 8 + 4 + 4

var (
	// ErrLayoutSizeMismatch is returned when a buffer is not exactly SizeOf
	// the descriptor count.
	ErrLayoutSizeMismatch = errors.New("extra account meta list size mismatch")
	// ErrAlreadyInitialized is returned when Init targets a buffer that
	// already carries a list.
	ErrAlreadyInitialized = errors.New("extra account meta list already initialized")
	// ErrInvalidDiscriminator is returned when the TLV type is not the
	// execute instruction discriminator.
	ErrInvalidDiscriminator = errors.New("invalid extra account meta list discriminator")
	// ErrInvalidLength is returned when TLV length and count disagree.
	ErrInvalidLength = errors.New("invalid extra account meta list length")
	// ErrInvalidAccountMeta is returned for descriptors that cannot be resolved.
	ErrInvalidAccountMeta = errors.New("invalid extra account meta")
	// ErrInvalidSeedConfig is returned for malformed packed seeds.
	ErrInvalidSeedConfig = errors.New("invalid seed config")
)

// ExecuteDiscriminator tags the list with the instruction it serves: the
// transfer-hook interface execute instruction.
var ExecuteDiscriminator = interfaceDiscriminator("spl-transfer-hook-interface:execute")

func interfaceDiscriminator(s string) [8]byte {
	h := sha256.Sum256([]byte(s))
	var disc [8]byte
	copy(disc[:], h[:8])
	return disc
}

// SizeOf returns the exact byte size of a list holding count descriptors.
func SizeOf(count int) int {
	return headerSize + count*MetaSize
}

// IsInitialized reports whether data starts with a list header.
func IsInitialized(data []byte) bool {
	return len(data) >= 8 && !bytes.Equal(data[:8], make([]byte, 8))
}

// Init serializes metas into buf, which must be zeroed and exactly
// SizeOf(len(metas)) bytes long.
func Init(buf []byte, metas []ExtraAccountMeta) error {
	if want := SizeOf(len(metas)); len(buf) != want {
		return fmt.Errorf("%w: buffer is %d bytes, %d descriptors need %d", ErrLayoutSizeMismatch, len(buf), len(metas), want)
	}
	if IsInitialized(buf) {
		return ErrAlreadyInitialized
	}
	for i, m := range metas {
		if err := m.Validate(); err != nil {
			return fmt.Errorf("descriptor %d: %w", i, err)
		}
	}

	encoded, err := Encode(metas)
	if err != nil {
		return err
	}
	copy(buf, encoded)
	return nil
}

// Encode returns the serialized list.
func Encode(metas []ExtraAccountMeta) ([]byte, error) {
	var out bytes.Buffer
	out.Grow(SizeOf(len(metas)))
	enc := bin.NewBorshEncoder(&out)

	if err := enc.WriteBytes(ExecuteDiscriminator[:], false); err != nil {
		return nil, err
	}
	if err := enc.WriteUint32(uint32(4+len(metas)*MetaSize), binary.LittleEndian); err != nil {
		return nil, err
	}
	if err := enc.WriteUint32(uint32(len(metas)), binary.LittleEndian); err != nil {
		return nil, err
	}
	for _, m := range metas {
		if err := enc.WriteUint8(m.Discriminator); err != nil {
			return nil, err
		}
		if err := enc.WriteBytes(m.AddressConfig[:], false); err != nil {
			return nil, err
		}
		if err := enc.WriteBool(m.IsSigner); err != nil {
			return nil, err
		}
		if err := enc.WriteBool(m.IsWritable); err != nil {
			return nil, err
		}
	}
	return out.Bytes(), nil
}

// Unpack parses a list written by Init.
func Unpack(data []byte) ([]ExtraAccountMeta, error) {
	if len(data) < headerSize {
		return nil, fmt.Errorf("%w: %d bytes, header needs %d", ErrInvalidLength, len(data), headerSize)
	}
	dec := bin.NewBorshDecoder(data)

	tlvType, err := dec.ReadNBytes(8)
	if err != nil {
		return nil, err
	}
	if !bytes.Equal(tlvType, ExecuteDiscriminator[:]) {
		return nil, fmt.Errorf("%w: got %x, want %x", ErrInvalidDiscriminator, tlvType, ExecuteDiscriminator)
	}
	length, err := dec.ReadUint32(binary.LittleEndian)
	if err != nil {
		return nil, err
	}
	if int(length) > len(data)-12 {
		return nil, fmt.Errorf("%w: value length %d overruns %d bytes", ErrInvalidLength, length, len(data))
	}
	count, err := dec.ReadUint32(binary.LittleEndian)
	if err != nil {
		return nil, err
	}
	if uint64(length) != 4+uint64(count)*MetaSize {
		return nil, fmt.Errorf("%w: length %d does not hold %d descriptors", ErrInvalidLength, length, count)
	}

	metas := make([]ExtraAccountMeta, 0, count)
	for i := uint32(0); i < count; i++ {
		var m ExtraAccountMeta
		if m.Discriminator, err = dec.ReadUint8(); err != nil {
			return nil, err
		}
		config, err := dec.ReadNBytes(32)
		if err != nil {
			return nil, err
		}
		copy(m.AddressConfig[:], config)
		if m.IsSigner, err = readFlag(dec); err != nil {
			return nil, fmt.Errorf("descriptor %d signer flag: %w", i, err)
		}
		if m.IsWritable, err = readFlag(dec); err != nil {
			return nil, fmt.Errorf("descriptor %d writable flag: %w", i, err)
		}
		metas = append(metas, m)
	}
	return metas, nil
}

func readFlag(dec *bin.Decoder) (bool, error) {
	b, err := dec.ReadUint8()
	if err != nil {
		return false, err
	}
	switch b {
	case 0:
		return false, nil
	case 1:
		return true, nil
	default:
		return false, fmt.Errorf("%w: flag byte %d", ErrInvalidAccountMeta, b)
	}
}
