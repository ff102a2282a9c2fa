package accounts

// AccountStorageOverhead is the per-account byte overhead charged on top of
// the data length.
const AccountStorageOverhead = 128

// Rent parameters, Solana cluster defaults.
const (
	DefaultLamportsPerByteYear uint64  = 3480
	DefaultExemptionThreshold  float64 = 2.0
)

// Rent computes the balance an account needs to be exempt from rent collection.
type Rent struct {
	LamportsPerByteYear uint64  `yaml:"lamports_per_byte_year"`
	ExemptionThreshold  float64 `yaml:"exemption_threshold"`
}

// DefaultRent returns the cluster default rent parameters.
func DefaultRent() Rent {
	return Rent{
		LamportsPerByteYear: DefaultLamportsPerByteYear,
		ExemptionThreshold:  DefaultExemptionThreshold,
	}
}

// MinimumBalance returns the rent-exempt minimum for size bytes of data.
func (r Rent) MinimumBalance(size int) uint64 {
	bytes := uint64(AccountStorageOverhead) + uint64(size)
	return uint64(float64(bytes*r.LamportsPerByteYear) * r.ExemptionThreshold)
}

// IsExempt reports whether lamports cover the minimum for size bytes.
func (r Rent) IsExempt(lamports uint64, size int) bool {
	return lamports >= r.MinimumBalance(size)
}
