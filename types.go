package hookcpi

import (
	"fmt"

	solana "github.com/gagliardetto/solana-go"

	"github.com/cpswap/hookcpi/registry"
)

// State is a registry's position in the setup flow. There is no transition
// back.
type State string

const (
	StateUnregistered State = "unregistered"
	StateAllocated    State = "allocated"
	StateInitialized  State = "initialized"
)

// SetupRequest names the accounts of one setup. Registry is the caller's
// claimed registry address; when zero the derived address is used.
type SetupRequest struct {
	Payer                  solana.PublicKey `json:"payer"`
	Registry               solana.PublicKey `json:"registry"`
	Mint                   solana.PublicKey `json:"mint"`
	TokenProgram           solana.PublicKey `json:"tokenProgram"`
	AssociatedTokenProgram solana.PublicKey `json:"associatedTokenProgram"`
	SystemProgram          solana.PublicKey `json:"systemProgram"`
	Validator              solana.PublicKey `json:"validator"`
}

// WithDefaults fills zero program ids with the canonical programs.
func (r SetupRequest) WithDefaults() SetupRequest {
	if r.TokenProgram.IsZero() {
		r.TokenProgram = solana.Token2022ProgramID
	}
	if r.AssociatedTokenProgram.IsZero() {
		r.AssociatedTokenProgram = solana.SPLAssociatedTokenAccountProgramID
	}
	if r.SystemProgram.IsZero() {
		r.SystemProgram = solana.SystemProgramID
	}
	return r
}

// Validate checks that every required key is set. The system program's id
// is the all-zero key, so SystemProgram is never treated as unset.
func (r SetupRequest) Validate() error {
	required := []struct {
		name string
		key  solana.PublicKey
	}{
		{"payer", r.Payer},
		{"mint", r.Mint},
		{"tokenProgram", r.TokenProgram},
		{"associatedTokenProgram", r.AssociatedTokenProgram},
		{"validator", r.Validator},
	}
	for _, f := range required {
		if f.key.IsZero() {
			return fmt.Errorf("%w: %s is required", ErrInvalidRequest, f.name)
		}
	}
	if !r.SystemProgram.Equals(solana.SystemProgramID) {
		return fmt.Errorf("%w: systemProgram %s is not the system program", ErrInvalidRequest, r.SystemProgram)
	}
	if r.Payer.Equals(r.Validator) || r.Payer.Equals(r.Mint) {
		return fmt.Errorf("%w: payer must be distinct from mint and validator", ErrInvalidRequest)
	}
	return nil
}

// SetupResult describes a completed setup.
type SetupResult struct {
	RequestID string           `json:"requestId"`
	Registry  solana.PublicKey `json:"registry"`
	Bump      uint8            `json:"bump"`
	Owner     solana.PublicKey `json:"owner"`
	Lamports  uint64           `json:"lamports"`
	Size      int              `json:"size"`
	State     State            `json:"state"`
	Logs      []string         `json:"logs,omitempty"`
}

// RegistryInfo is the stored state of a mint's registry.
type RegistryInfo struct {
	Address  solana.PublicKey            `json:"address"`
	Bump     uint8                       `json:"bump"`
	Owner    solana.PublicKey            `json:"owner"`
	Lamports uint64                      `json:"lamports"`
	Size     int                         `json:"size"`
	State    State                       `json:"state"`
	Metas    []registry.ExtraAccountMeta `json:"metas,omitempty"`
}
