package main

import (
	"encoding/json"
	"fmt"
	"os"

	solana "github.com/gagliardetto/solana-go"
	"github.com/spf13/cobra"

	"github.com/cpswap/hookcpi"
	"github.com/cpswap/hookcpi/accounts"
	"github.com/cpswap/hookcpi/config"
	"github.com/cpswap/hookcpi/internal/log"
	"github.com/cpswap/hookcpi/runtime"
	"github.com/cpswap/hookcpi/validator"
)

type globalFlags struct {
	ConfigPath string
	LedgerPath string
	LogLevel   string
	Validator  string
}

var (
	flags globalFlags
	cfg   *config.Config
)

var rootCmd = &cobra.Command{
	Use:           "hookctl",
	Short:         "Set up transfer-hook extra account meta lists",
	SilenceUsage:  true,
	SilenceErrors: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		var err error
		if cfg, err = config.Load(flags.ConfigPath); err != nil {
			return err
		}
		if cmd.Flags().Changed("ledger") {
			cfg.Ledger.Path = flags.LedgerPath
		}
		if cmd.Flags().Changed("log-level") {
			cfg.Log.Level = flags.LogLevel
		}
		log.Init(cfg.Log.Level, cfg.Log.JSON)
		return nil
	},
}

// Execute runs the root command.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&flags.ConfigPath, "config", "c", "", "YAML config file")
	rootCmd.PersistentFlags().StringVar(&flags.LedgerPath, "ledger", "", "badger ledger directory (overrides ledger.path)")
	rootCmd.PersistentFlags().StringVar(&flags.LogLevel, "log-level", "info", "debug|info|warn|error|disabled")
	rootCmd.PersistentFlags().StringVar(&flags.Validator, "validator", "", "hook validator program id")

	rootCmd.AddCommand(deriveCmd)
	rootCmd.AddCommand(frameCmd)
	rootCmd.AddCommand(fundCmd)
	rootCmd.AddCommand(setupCmd)
	rootCmd.AddCommand(inspectCmd)
	rootCmd.AddCommand(serveCmd)
}

func validatorKey() (solana.PublicKey, error) {
	if flags.Validator == "" {
		return solana.PublicKey{}, fmt.Errorf("--validator is required")
	}
	key, err := solana.PublicKeyFromBase58(flags.Validator)
	if err != nil {
		return solana.PublicKey{}, fmt.Errorf("invalid validator %q: %w", flags.Validator, err)
	}
	return key, nil
}

func parseKey(name, value string) (solana.PublicKey, error) {
	key, err := solana.PublicKeyFromBase58(value)
	if err != nil {
		return solana.PublicKey{}, fmt.Errorf("invalid %s %q: %w", name, value, err)
	}
	return key, nil
}

// ledger is an opened account store with the setup service and the local
// hook validator registered.
type ledger struct {
	store   accounts.Store
	rt      *runtime.Runtime
	service *hookcpi.HookSetupService
}

func openLedger() (*ledger, error) {
	hook, err := validatorKey()
	if err != nil {
		return nil, err
	}
	disc, err := cfg.Hook.Discriminator()
	if err != nil {
		return nil, err
	}
	metas, err := cfg.Hook.ExtraAccountMetas()
	if err != nil {
		return nil, err
	}

	var store accounts.Store = accounts.NewMemoryStore()
	if cfg.Ledger.Path != "" {
		if store, err = accounts.NewBadgerStore(cfg.Ledger.Path); err != nil {
			return nil, err
		}
	}

	rt := runtime.New(store,
		runtime.WithRent(cfg.Rent),
		runtime.WithLogger(log.Runtime),
		runtime.WithProgram(hook, validator.New(
			validator.WithInitializeDiscriminator(disc),
			validator.WithExtraAccountMetas(metas),
			validator.WithLogger(log.WithComponent("validator")),
		)),
	)
	service, err := hookcpi.NewHookSetupService(rt, hookcpi.WithConfig(cfg), hookcpi.WithLogger(log.Setup))
	if err != nil {
		_ = store.Close()
		return nil, err
	}
	return &ledger{store: store, rt: rt, service: service}, nil
}

func (l *ledger) Close() error {
	return l.store.Close()
}

func printJSON(cmd *cobra.Command, v interface{}) error {
	enc := json.NewEncoder(cmd.OutOrStdout())
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
