// Package runtime executes programs against the account ledger. Every
// Transact call is one atomic transaction: either all account writes made by
// the programs it invokes are committed, or none are.
package runtime

import (
	"context"
	"fmt"
	"sync"

	solana "github.com/gagliardetto/solana-go"
	"github.com/rs/zerolog"

	"github.com/cpswap/hookcpi/accounts"
	"github.com/cpswap/hookcpi/internal/log"
)

// MaxInvokeDepth bounds nested cross-program calls.
const MaxInvokeDepth = 4

// NativeLoaderID owns executable program accounts.
var NativeLoaderID = solana.MustPublicKeyFromBase58("NativeLoader1111111111111111111111111111111")

// Program is an executable registered with the runtime.
type Program interface {
	Process(ctx *Context, programID solana.PublicKey, accounts []*AccountInfo, data []byte) error
}

// ProgramFunc adapts a function to Program.
type ProgramFunc func(ctx *Context, programID solana.PublicKey, accounts []*AccountInfo, data []byte) error

// Process implements Program.
func (f ProgramFunc) Process(ctx *Context, programID solana.PublicKey, accounts []*AccountInfo, data []byte) error {
	return f(ctx, programID, accounts, data)
}

// AccountInfo is an account handed to a program together with the
// privileges it was passed with. Infos for the same key share one Account.
type AccountInfo struct {
	Key        solana.PublicKey
	IsSigner   bool
	IsWritable bool
	Account    *accounts.Account
}

// Runtime owns the ledger store and the program registry.
type Runtime struct {
	mu       sync.RWMutex
	store    accounts.Store
	rent     accounts.Rent
	programs map[solana.PublicKey]Program
	logger   zerolog.Logger
}

// Option configures a Runtime.
type Option func(*Runtime)

// WithRent overrides the rent parameters.
func WithRent(rent accounts.Rent) Option {
	return func(r *Runtime) {
		r.rent = rent
	}
}

// WithLogger sets the logger program logs are written to.
func WithLogger(logger zerolog.Logger) Option {
	return func(r *Runtime) {
		r.logger = logger
	}
}

// WithProgram registers a program.
func WithProgram(id solana.PublicKey, program Program) Option {
	return func(r *Runtime) {
		r.programs[id] = program
	}
}

// New creates a runtime over store with the system program registered.
func New(store accounts.Store, opts ...Option) *Runtime {
	r := &Runtime{
		store:    store,
		rent:     accounts.DefaultRent(),
		programs: map[solana.PublicKey]Program{solana.SystemProgramID: SystemProgram{}},
		logger:   log.Runtime,
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Register adds or replaces a program.
func (r *Runtime) Register(id solana.PublicKey, program Program) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.programs[id] = program
}

func (r *Runtime) program(id solana.PublicKey) (Program, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	p, ok := r.programs[id]
	return p, ok
}

// Rent returns the rent parameters.
func (r *Runtime) Rent() accounts.Rent {
	return r.rent
}

// Account returns the committed state at key; unknown keys are empty.
func (r *Runtime) Account(ctx context.Context, key solana.PublicKey) (*accounts.Account, error) {
	var out *accounts.Account
	err := r.store.View(ctx, func(rd accounts.Reader) error {
		acct, err := accounts.Load(rd, key)
		out = acct
		return err
	})
	return out, err
}

// Airdrop credits lamports to a system-owned key outside of any program.
func (r *Runtime) Airdrop(ctx context.Context, key solana.PublicKey, lamports uint64) error {
	return r.store.Update(ctx, func(txn accounts.Txn) error {
		acct, err := accounts.Load(txn, key)
		if err != nil {
			return err
		}
		if acct.Lamports+lamports < acct.Lamports {
			return fmt.Errorf("airdrop to %s overflows", key)
		}
		acct.Lamports += lamports
		return txn.Set(key, acct)
	})
}

// Transact runs fn as one transaction signed by signers. Writes made by
// programs invoked from fn are committed only if fn returns nil. The store may
// run fn more than once when a concurrent transaction commits first, so fn
// must not keep state across attempts.
func (r *Runtime) Transact(ctx context.Context, signers []solana.PublicKey, fn func(*Context) error) error {
	err := r.store.Update(ctx, func(txn accounts.Txn) error {
		c := &Context{
			ctx:     ctx,
			rt:      r,
			txn:     txn,
			loaded:  make(map[solana.PublicKey]*accounts.Account),
			dirty:   make(map[solana.PublicKey]bool),
			signers: make(map[solana.PublicKey]bool, len(signers)),
			logs:    new([]string),
		}
		for _, s := range signers {
			c.signers[s] = true
		}
		if err := fn(c); err != nil {
			return err
		}
		for key := range c.dirty {
			if err := txn.Set(key, c.loaded[key]); err != nil {
				return err
			}
		}
		return nil
	})
	return err
}

// Context is the execution state of one transaction.
type Context struct {
	ctx     context.Context
	rt      *Runtime
	txn     accounts.Txn
	loaded  map[solana.PublicKey]*accounts.Account
	dirty   map[solana.PublicKey]bool
	signers map[solana.PublicKey]bool
	depth   int
	logs    *[]string

	// program, frame and pre describe the executing program: its id, the
	// accounts it was given and their state when it was entered, advanced
	// past each nested call it makes.
	program solana.PublicKey
	frame   []*AccountInfo
	pre     map[solana.PublicKey]*accounts.Account
}

// Context returns the request context.
func (c *Context) Context() context.Context {
	return c.ctx
}

// Rent returns the runtime's rent parameters.
func (c *Context) Rent() accounts.Rent {
	return c.rt.rent
}

// Depth returns the current call depth; 0 outside any program.
func (c *Context) Depth() int {
	return c.depth
}

// AccountInfo loads key for use as an invocation input. The signer flag is
// set when key signed the transaction.
func (c *Context) AccountInfo(key solana.PublicKey, writable bool) (*AccountInfo, error) {
	acct, err := c.load(key)
	if err != nil {
		return nil, err
	}
	return &AccountInfo{
		Key:        key,
		IsSigner:   c.signers[key],
		IsWritable: writable,
		Account:    acct,
	}, nil
}

func (c *Context) load(key solana.PublicKey) (*accounts.Account, error) {
	if acct, ok := c.loaded[key]; ok {
		return acct, nil
	}
	if _, ok := c.rt.program(key); ok {
		acct := &accounts.Account{Owner: NativeLoaderID, Executable: true}
		c.loaded[key] = acct
		return acct, nil
	}
	acct, err := accounts.Load(c.txn, key)
	if err != nil {
		return nil, fmt.Errorf("load account %s: %w", key, err)
	}
	c.loaded[key] = acct
	return acct, nil
}

// Log records a program log line.
func (c *Context) Log(msg string) {
	*c.logs = append(*c.logs, msg)
	c.rt.logger.Debug().Int("depth", c.depth).Msg(msg)
}

// Logs returns the log lines recorded so far in this transaction.
func (c *Context) Logs() []string {
	return append([]string(nil), (*c.logs)...)
}
