package main

import (
	"context"
	"fmt"
	"time"

	solana "github.com/gagliardetto/solana-go"
	"github.com/gagliardetto/solana-go/rpc"
	"github.com/spf13/cobra"

	"github.com/cpswap/hookcpi"
	"github.com/cpswap/hookcpi/pda"
	"github.com/cpswap/hookcpi/registry"
)

var fundCmd = &cobra.Command{
	Use:   "fund <account> <lamports>",
	Short: "Credit lamports to an account on the local ledger",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		key, err := parseKey("account", args[0])
		if err != nil {
			return err
		}
		var lamports uint64
		if _, err := fmt.Sscan(args[1], &lamports); err != nil {
			return fmt.Errorf("invalid lamports %q: %w", args[1], err)
		}
		l, err := openLedger()
		if err != nil {
			return err
		}
		defer l.Close()

		if err := l.rt.Airdrop(cmd.Context(), key, lamports); err != nil {
			return err
		}
		acct, err := l.rt.Account(cmd.Context(), key)
		if err != nil {
			return err
		}
		return printJSON(cmd, map[string]interface{}{"account": key, "lamports": acct.Lamports})
	},
}

var setupFlags struct {
	payer        string
	registry     string
	tokenProgram string
	timeout      time.Duration
}

var setupCmd = &cobra.Command{
	Use:   "setup <mint>",
	Short: "Create and initialize the extra account meta list of a mint",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		hook, err := validatorKey()
		if err != nil {
			return err
		}
		req := hookcpi.SetupRequest{Validator: hook}
		if req.Mint, err = parseKey("mint", args[0]); err != nil {
			return err
		}
		if req.Payer, err = parseKey("payer", setupFlags.payer); err != nil {
			return err
		}
		if setupFlags.registry != "" {
			if req.Registry, err = parseKey("registry", setupFlags.registry); err != nil {
				return err
			}
		}
		if setupFlags.tokenProgram != "" {
			if req.TokenProgram, err = parseKey("token program", setupFlags.tokenProgram); err != nil {
				return err
			}
		}

		l, err := openLedger()
		if err != nil {
			return err
		}
		defer l.Close()

		ctx := cmd.Context()
		if setupFlags.timeout > 0 {
			var cancel context.CancelFunc
			ctx, cancel = context.WithTimeout(ctx, setupFlags.timeout)
			defer cancel()
		}
		result, err := l.service.Setup(ctx, req)
		if err != nil {
			return err
		}
		return printJSON(cmd, result)
	},
}

var inspectFlags struct {
	rpcURL string
}

var inspectCmd = &cobra.Command{
	Use:   "inspect <mint>",
	Short: "Show the extra account meta list of a mint",
	Long: `Show the extra account meta list of a mint from the local ledger, or
from a cluster when --rpc is given.`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		hook, err := validatorKey()
		if err != nil {
			return err
		}
		mint, err := parseKey("mint", args[0])
		if err != nil {
			return err
		}

		if inspectFlags.rpcURL != "" {
			derived, err := pda.FindExtraAccountMetas(mint, hook)
			if err != nil {
				return err
			}
			client := rpc.New(inspectFlags.rpcURL)
			metas, err := registry.Fetch(cmd.Context(), client, derived.Address, solana.PublicKey{})
			if err != nil {
				return err
			}
			return printJSON(cmd, map[string]interface{}{
				"address": derived.Address,
				"bump":    derived.Bump,
				"metas":   metas,
			})
		}

		l, err := openLedger()
		if err != nil {
			return err
		}
		defer l.Close()

		info, err := l.service.Inspect(cmd.Context(), mint, hook)
		if err != nil {
			return err
		}
		return printJSON(cmd, info)
	},
}

func init() {
	setupCmd.Flags().StringVar(&setupFlags.payer, "payer", "", "funded payer account")
	setupCmd.Flags().StringVar(&setupFlags.registry, "registry", "", "registry address to claim (defaults to the derived address)")
	setupCmd.Flags().StringVar(&setupFlags.tokenProgram, "token-program", "", "token program (defaults to Token-2022)")
	setupCmd.Flags().DurationVar(&setupFlags.timeout, "timeout", 30*time.Second, "setup deadline")
	_ = setupCmd.MarkFlagRequired("payer")

	inspectCmd.Flags().StringVar(&inspectFlags.rpcURL, "rpc", "", "cluster RPC endpoint to read from instead of the local ledger")
}
