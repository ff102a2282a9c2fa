package hookcpi

import (
	"testing"

	solana "github.com/gagliardetto/solana-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSetupRequestValidate(t *testing.T) {
	base := SetupRequest{
		Payer:     solana.NewWallet().PublicKey(),
		Mint:      solana.NewWallet().PublicKey(),
		Validator: hookProgramID,
	}.WithDefaults()
	require.True(t, base.SystemProgram.IsZero(), "the system program id is the zero key")
	require.NoError(t, base.Validate())

	tests := []struct {
		name   string
		mutate func(*SetupRequest)
	}{
		{"missing payer", func(r *SetupRequest) { r.Payer = solana.PublicKey{} }},
		{"missing mint", func(r *SetupRequest) { r.Mint = solana.PublicKey{} }},
		{"missing validator", func(r *SetupRequest) { r.Validator = solana.PublicKey{} }},
		{"missing token program", func(r *SetupRequest) { r.TokenProgram = solana.PublicKey{} }},
		{"wrong system program", func(r *SetupRequest) { r.SystemProgram = solana.NewWallet().PublicKey() }},
		{"payer is the validator", func(r *SetupRequest) { r.Payer = r.Validator }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := base
			tt.mutate(&req)
			assert.ErrorIs(t, req.Validate(), ErrInvalidRequest)
		})
	}
}
