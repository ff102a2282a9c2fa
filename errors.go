package hookcpi

import (
	"context"
	"errors"
	"fmt"

	solana "github.com/gagliardetto/solana-go"

	"github.com/cpswap/hookcpi/pda"
	"github.com/cpswap/hookcpi/registry"
	"github.com/cpswap/hookcpi/runtime"
)

// SetupError represents a failed setup attempt
type SetupError struct {
	Code    string                 `json:"code"`
	Message string                 `json:"message"`
	Details map[string]interface{} `json:"details,omitempty"`
	Err     error                  `json:"-"`
}

func (e *SetupError) Error() string {
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

func (e *SetupError) Unwrap() error {
	return e.Err
}

// Setup error codes
const (
	ErrCodeDerivationExhausted = "derivation_exhausted"
	ErrCodeAddressMismatch     = "address_mismatch"
	ErrCodeAllocationConflict  = "allocation_conflict"
	ErrCodeInsufficientFunding = "insufficient_funding"
	ErrCodeLayoutSizeMismatch  = "layout_size_mismatch"
	ErrCodeRemoteCallFailure   = "remote_call_failure"
	ErrCodeInvalidRequest      = "invalid_request"
	ErrCodeAborted             = "aborted"
	ErrCodeInternal            = "internal_error"
)

// ErrInvalidRequest is wrapped by request validation failures.
var ErrInvalidRequest = errors.New("invalid setup request")

// NewSetupError creates a new setup error
func NewSetupError(code, message string, details map[string]interface{}) *SetupError {
	return &SetupError{
		Code:    code,
		Message: message,
		Details: details,
	}
}

// ErrorCode returns the setup error code carried by err, or "" if err is not
// a *SetupError.
func ErrorCode(err error) string {
	var se *SetupError
	if errors.As(err, &se) {
		return se.Code
	}
	return ""
}

// classify maps an error out of the setup transaction onto the error
// taxonomy. Failures raised by the validator are passed through with the
// validator's own message, whatever sentinel they wrap.
func classify(err error, validator solana.PublicKey) *SetupError {
	var se *SetupError
	if errors.As(err, &se) {
		return se
	}
	if callErr, ok := validatorFailure(err, validator); ok {
		return &SetupError{
			Code:    ErrCodeRemoteCallFailure,
			Message: callErr.Error(),
			Details: map[string]interface{}{"program": validator.String()},
			Err:     err,
		}
	}

	code := ErrCodeInternal
	switch {
	case errors.Is(err, pda.ErrDerivationExhausted):
		code = ErrCodeDerivationExhausted
	case errors.Is(err, pda.ErrAddressMismatch):
		code = ErrCodeAddressMismatch
	case errors.Is(err, runtime.ErrAccountAlreadyInUse):
		code = ErrCodeAllocationConflict
	case errors.Is(err, runtime.ErrInsufficientFunds), errors.Is(err, runtime.ErrInsufficientFundsForRent):
		code = ErrCodeInsufficientFunding
	case errors.Is(err, registry.ErrLayoutSizeMismatch):
		code = ErrCodeLayoutSizeMismatch
	case errors.Is(err, ErrInvalidRegistryOwner):
		code = ErrCodeRemoteCallFailure
	case errors.Is(err, ErrInvalidRequest), errors.Is(err, pda.ErrInvalidSeeds), errors.Is(err, runtime.ErrInvalidFundingAccount):
		code = ErrCodeInvalidRequest
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		code = ErrCodeAborted
	}
	return &SetupError{Code: code, Message: err.Error(), Err: err}
}

// validatorFailure finds the call error raised by the validator itself, as
// opposed to one raised by a program the setup called on its own.
func validatorFailure(err error, validator solana.PublicKey) (*runtime.CallError, bool) {
	for err != nil {
		var callErr *runtime.CallError
		if !errors.As(err, &callErr) {
			return nil, false
		}
		if callErr.Program.Equals(validator) {
			return callErr, true
		}
		err = callErr.Err
	}
	return nil, false
}
