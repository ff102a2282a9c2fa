package hookcpi

import (
	"context"
	"time"
)

// ============================================================================
// Setup Hook Context Types
// ============================================================================

// SetupContext contains information passed to setup hooks
type SetupContext struct {
	Ctx       context.Context
	RequestID string
	Request   SetupRequest
	Timestamp time.Time
}

// SetupResultContext contains the setup result and context
type SetupResultContext struct {
	SetupContext
	Result   SetupResult
	Duration time.Duration
}

// SetupFailureContext contains the setup failure and context
type SetupFailureContext struct {
	SetupContext
	Error    *SetupError
	Duration time.Duration
}

// ============================================================================
// Setup Hook Result Types
// ============================================================================

// BeforeHookResult represents the result of a "before" hook
// If Abort is true, the setup is aborted with the given Reason
type BeforeHookResult struct {
	Abort  bool
	Reason string
}

// SetupFailureHookResult represents the result of a setup failure hook
// If Recovered is true, Result is returned instead of the error
type SetupFailureHookResult struct {
	Recovered bool
	Result    *SetupResult
}

// ============================================================================
// Setup Hook Function Types
// ============================================================================

// BeforeSetupHook is called before the setup transaction starts
type BeforeSetupHook func(SetupContext) (*BeforeHookResult, error)

// AfterSetupHook is called after a successful setup
// Any error returned is logged but does not affect the result
type AfterSetupHook func(SetupResultContext) error

// OnSetupFailureHook is called when a setup fails
// The transaction has already been rolled back when it runs
type OnSetupFailureHook func(SetupFailureContext) (*SetupFailureHookResult, error)

// ============================================================================
// Setup Hook Registration Options
// ============================================================================

// WithBeforeSetupHook registers a hook to execute before setup
func WithBeforeSetupHook(hook BeforeSetupHook) HookSetupServiceOption {
	return func(s *HookSetupService) {
		s.beforeSetupHooks = append(s.beforeSetupHooks, hook)
	}
}

// WithAfterSetupHook registers a hook to execute after a successful setup
func WithAfterSetupHook(hook AfterSetupHook) HookSetupServiceOption {
	return func(s *HookSetupService) {
		s.afterSetupHooks = append(s.afterSetupHooks, hook)
	}
}

// WithOnSetupFailureHook registers a hook to execute when setup fails
func WithOnSetupFailureHook(hook OnSetupFailureHook) HookSetupServiceOption {
	return func(s *HookSetupService) {
		s.onSetupFailureHooks = append(s.onSetupFailureHooks, hook)
	}
}
