package main

import (
	"github.com/spf13/cobra"

	"github.com/cpswap/hookcpi/pda"
)

var deriveCmd = &cobra.Command{
	Use:   "derive <mint>",
	Short: "Derive the extra account meta list address of a mint",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		hook, err := validatorKey()
		if err != nil {
			return err
		}
		mint, err := parseKey("mint", args[0])
		if err != nil {
			return err
		}
		derived, err := pda.FindExtraAccountMetas(mint, hook)
		if err != nil {
			return err
		}
		return printJSON(cmd, map[string]interface{}{
			"address":   derived.Address,
			"bump":      derived.Bump,
			"mint":      mint,
			"validator": hook,
		})
	},
}
