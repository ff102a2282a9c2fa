// Package hookcpi registers transfer-hook extra account meta lists. A setup
// derives the registry address for a mint under the hook validator, checks
// the slot and the payer, and calls the validator's initialize instruction,
// which creates and fills the registry, all in one ledger transaction.
package hookcpi

import (
	"context"
	"fmt"
	"time"

	solana "github.com/gagliardetto/solana-go"
	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/cpswap/hookcpi/config"
	"github.com/cpswap/hookcpi/cpi"
	"github.com/cpswap/hookcpi/internal/log"
	"github.com/cpswap/hookcpi/pda"
	"github.com/cpswap/hookcpi/registry"
	"github.com/cpswap/hookcpi/runtime"
)

// HookSetupService sets up and inspects extra account meta lists on a
// runtime ledger.
type HookSetupService struct {
	rt           *runtime.Runtime
	setupProgram solana.PublicKey
	program      *setupProgram
	logger       zerolog.Logger

	config *config.Config
	metas  []registry.ExtraAccountMeta

	beforeSetupHooks    []BeforeSetupHook
	afterSetupHooks     []AfterSetupHook
	onSetupFailureHooks []OnSetupFailureHook
}

// HookSetupServiceOption configures the service
type HookSetupServiceOption func(*HookSetupService)

// WithConfig sets the configuration. Options after it override its values.
func WithConfig(cfg *config.Config) HookSetupServiceOption {
	return func(s *HookSetupService) {
		s.config = cfg
		s.metas = nil
	}
}

// WithExtraAccountMetas sets the metas the validator is expected to write
// into new registries. They size the funding check and the layout check.
func WithExtraAccountMetas(metas []registry.ExtraAccountMeta) HookSetupServiceOption {
	return func(s *HookSetupService) {
		s.metas = append([]registry.ExtraAccountMeta{}, metas...)
	}
}

// WithLogger sets the logger
func WithLogger(logger zerolog.Logger) HookSetupServiceOption {
	return func(s *HookSetupService) {
		s.logger = logger
	}
}

// NewHookSetupService creates the service and registers the setup program
// with rt.
func NewHookSetupService(rt *runtime.Runtime, opts ...HookSetupServiceOption) (*HookSetupService, error) {
	s := &HookSetupService{
		rt:     rt,
		config: config.Default(),
		logger: log.Setup,
	}
	for _, opt := range opts {
		opt(s)
	}

	if err := s.config.Validate(); err != nil {
		return nil, err
	}
	programID, err := s.config.Hook.SetupProgram()
	if err != nil {
		return nil, err
	}
	disc, err := s.config.Hook.Discriminator()
	if err != nil {
		return nil, err
	}
	if s.metas == nil {
		if s.metas, err = s.config.Hook.ExtraAccountMetas(); err != nil {
			return nil, err
		}
	}
	for i, m := range s.metas {
		if err := m.Validate(); err != nil {
			return nil, fmt.Errorf("extra account meta %d: %w", i, err)
		}
	}

	s.setupProgram = programID
	s.program = &setupProgram{
		initialize: disc,
		metas:      s.metas,
		logger:     s.logger,
	}
	rt.Register(programID, s.program)

	s.logger.Debug().
		Str("setup_program", programID.String()).
		Str("interface_version", s.config.Hook.InterfaceVersion).
		Int("extra_accounts", len(s.metas)).
		Msg("Hook setup service ready")
	return s, nil
}

// SetupProgramID returns the id of the program that drives a setup.
func (s *HookSetupService) SetupProgramID() solana.PublicKey {
	return s.setupProgram
}

// ExtraAccountMetas returns the metas new registries are expected to hold.
func (s *HookSetupService) ExtraAccountMetas() []registry.ExtraAccountMeta {
	return append([]registry.ExtraAccountMeta{}, s.metas...)
}

// DeriveRegistryAddress derives the registry address of mint under validator.
func (s *HookSetupService) DeriveRegistryAddress(mint, validator solana.PublicKey) (pda.DerivedAddress, error) {
	derived, err := pda.FindExtraAccountMetas(mint, validator)
	if err != nil {
		return pda.DerivedAddress{}, classify(err, validator)
	}
	return derived, nil
}

// Setup registers the extra account meta list of req.Mint. Either the
// validator creates and initializes the slot, or nothing is written.
// Failures are *SetupError.
func (s *HookSetupService) Setup(ctx context.Context, req SetupRequest) (*SetupResult, error) {
	start := time.Now()
	req = req.WithDefaults()
	hookCtx := SetupContext{
		Ctx:       ctx,
		RequestID: uuid.NewString(),
		Request:   req,
		Timestamp: start,
	}
	logger := s.logger.With().
		Str("request_id", hookCtx.RequestID).
		Str("mint", req.Mint.String()).
		Str("validator", req.Validator.String()).
		Logger()

	fail := func(err error, pr *progress) (*SetupResult, error) {
		setupErr := classify(err, req.Validator)
		if pr != nil {
			if setupErr.Details == nil {
				setupErr.Details = map[string]interface{}{}
			}
			// the transaction rolled back, so nothing reached the ledger
			setupErr.Details["state"] = StateUnregistered
			setupErr.Details["reached_state"] = pr.state
		}
		failureCtx := SetupFailureContext{SetupContext: hookCtx, Error: setupErr, Duration: time.Since(start)}
		for _, hook := range s.onSetupFailureHooks {
			result, _ := hook(failureCtx)
			if result != nil && result.Recovered {
				return result.Result, nil
			}
		}
		logger.Warn().Str("code", setupErr.Code).Str("error", setupErr.Message).Msg("Setup failed")
		return nil, setupErr
	}

	if err := req.Validate(); err != nil {
		return fail(err, nil)
	}
	for _, hook := range s.beforeSetupHooks {
		result, err := hook(hookCtx)
		if err != nil {
			return fail(err, nil)
		}
		if result != nil && result.Abort {
			return fail(NewSetupError(ErrCodeAborted, result.Reason, nil), nil)
		}
	}

	derived, err := pda.FindExtraAccountMetas(req.Mint, req.Validator)
	if err != nil {
		return fail(err, nil)
	}
	if req.Registry.IsZero() {
		req.Registry = derived.Address
	}

	logger.Info().Str("registry", req.Registry.String()).Msg("Setting up extra account meta list")

	pr := &progress{state: StateUnregistered}
	var logs []string
	err = s.rt.Transact(withProgress(ctx, pr), []solana.PublicKey{req.Payer}, func(c *runtime.Context) error {
		infos, err := s.setupInfos(c, req)
		if err != nil {
			return err
		}
		err = c.Invoke(BuildSetup(s.setupProgram, req), infos)
		logs = c.Logs()
		return err
	})
	for _, line := range logs {
		logger.Debug().Msg(line)
	}
	if err != nil {
		return fail(err, pr)
	}

	result := &SetupResult{
		RequestID: hookCtx.RequestID,
		Registry:  pr.derived.Address,
		Bump:      pr.derived.Bump,
		Owner:     pr.allocation.Owner,
		Lamports:  pr.allocation.Lamports,
		Size:      pr.allocation.Size,
		State:     pr.state,
		Logs:      logs,
	}

	resultCtx := SetupResultContext{SetupContext: hookCtx, Result: *result, Duration: time.Since(start)}
	for _, hook := range s.afterSetupHooks {
		if err := hook(resultCtx); err != nil {
			logger.Warn().Err(err).Msg("After setup hook failed")
		}
	}

	logger.Info().
		Str("registry", result.Registry.String()).
		Uint8("bump", result.Bump).
		Uint64("lamports", result.Lamports).
		Int("size", result.Size).
		Dur("duration", time.Since(start)).
		Msg("Extra account meta list initialized")
	return result, nil
}

// setupInfos loads the setup instruction's accounts with the privileges the
// transaction grants: payer and registry writable, the payer signing.
func (s *HookSetupService) setupInfos(c *runtime.Context, req SetupRequest) ([]*runtime.AccountInfo, error) {
	keys := []struct {
		key      solana.PublicKey
		writable bool
	}{
		{req.Payer, true},
		{req.Registry, true},
		{req.Mint, false},
		{req.TokenProgram, false},
		{req.AssociatedTokenProgram, false},
		{req.SystemProgram, false},
		{req.Validator, false},
		{s.setupProgram, false},
	}
	infos := make([]*runtime.AccountInfo, 0, len(keys))
	for _, k := range keys {
		info, err := c.AccountInfo(k.key, k.writable)
		if err != nil {
			return nil, err
		}
		infos = append(infos, info)
	}
	return infos, nil
}

// Inspect reads the registry of mint under validator from the ledger. Only a
// list owned by the validator counts as initialized.
func (s *HookSetupService) Inspect(ctx context.Context, mint, validator solana.PublicKey) (*RegistryInfo, error) {
	derived, err := s.DeriveRegistryAddress(mint, validator)
	if err != nil {
		return nil, err
	}
	acct, err := s.rt.Account(ctx, derived.Address)
	if err != nil {
		return nil, classify(err, validator)
	}

	info := &RegistryInfo{
		Address:  derived.Address,
		Bump:     derived.Bump,
		Owner:    acct.Owner,
		Lamports: acct.Lamports,
		Size:     len(acct.Data),
		State:    StateUnregistered,
	}
	if acct.IsEmpty() {
		return info, nil
	}
	info.State = StateAllocated
	if !acct.Owner.Equals(validator) {
		return info, nil
	}
	if metas, err := registry.Unpack(acct.Data); err == nil {
		info.State = StateInitialized
		info.Metas = metas
	}
	return info, nil
}

// ResolveExtraAccounts resolves the extra accounts a transfer of mint needs,
// reading the stored list and any account data seeds from the ledger.
func (s *HookSetupService) ResolveExtraAccounts(ctx context.Context, validator solana.PublicKey, accounts cpi.ExecuteAccounts, amount uint64) ([]*solana.AccountMeta, error) {
	info, err := s.Inspect(ctx, accounts.Mint, validator)
	if err != nil {
		return nil, err
	}
	if info.State != StateInitialized {
		return nil, NewSetupError(ErrCodeInvalidRequest, fmt.Sprintf("registry %s is %s", info.Address, info.State), nil)
	}
	resolved, err := registry.Resolve(info.Metas, registry.ResolveInput{
		ProgramID:       validator,
		Accounts:        accounts.Keys(),
		InstructionData: cpi.ExecuteData(amount),
		AccountData: func(key solana.PublicKey) ([]byte, error) {
			acct, err := s.rt.Account(ctx, key)
			if err != nil {
				return nil, err
			}
			return acct.Data, nil
		},
	})
	if err != nil {
		return nil, classify(err, validator)
	}
	return resolved, nil
}

// Execute runs the validator's execute instruction for a transfer of amount
// with the resolved extra accounts, the way the token program would.
func (s *HookSetupService) Execute(ctx context.Context, validator solana.PublicKey, accounts cpi.ExecuteAccounts, amount uint64) error {
	if accounts.ExtraAccountMetaList.IsZero() {
		derived, err := s.DeriveRegistryAddress(accounts.Mint, validator)
		if err != nil {
			return err
		}
		accounts.ExtraAccountMetaList = derived.Address
	}
	extras, err := s.ResolveExtraAccounts(ctx, validator, accounts, amount)
	if err != nil {
		return err
	}
	frame := cpi.BuildExecute(validator, accounts, amount, extras)

	err = s.rt.Transact(ctx, nil, func(c *runtime.Context) error {
		infos := make([]*runtime.AccountInfo, 0, len(frame.Metas)+1)
		for _, m := range append(frame.Metas, solana.NewAccountMeta(validator, false, false)) {
			info, err := c.AccountInfo(m.PublicKey, m.IsWritable)
			if err != nil {
				return err
			}
			infos = append(infos, info)
		}
		return c.Invoke(frame, infos)
	})
	if err != nil {
		return classify(err, validator)
	}
	return nil
}
