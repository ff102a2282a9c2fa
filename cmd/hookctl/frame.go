package main

import (
	"fmt"

	solana "github.com/gagliardetto/solana-go"
	"github.com/mr-tron/base58"
	"github.com/spf13/cobra"

	"github.com/cpswap/hookcpi"
	"github.com/cpswap/hookcpi/pda"
	"github.com/cpswap/hookcpi/signers/svm"
)

var frameFlags struct {
	payer     string
	keypair   string
	blockhash string
}

var frameCmd = &cobra.Command{
	Use:   "frame <mint>",
	Short: "Print the setup instruction, or a signed transaction carrying it",
	Long: `Print the setup instruction frame in base58. With --keypair and
--blockhash the frame is wrapped in a transaction signed by the payer and
printed in base64, ready to submit.`,
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
		setupProgram, err := cfg.Hook.SetupProgram()
		if err != nil {
			return err
		}

		var payer *svm.PayerSigner
		payerKey := solana.PublicKey{}
		if frameFlags.keypair != "" {
			if payer, err = svm.NewPayerSignerFromKeygenFile(frameFlags.keypair); err != nil {
				return err
			}
			payerKey = payer.Address()
		} else if payerKey, err = parseKey("payer", frameFlags.payer); err != nil {
			return err
		}

		req := hookcpi.SetupRequest{Payer: payerKey, Mint: mint, Validator: hook}.WithDefaults()
		if err := req.Validate(); err != nil {
			return err
		}
		derived, err := pda.FindExtraAccountMetas(mint, hook)
		if err != nil {
			return err
		}
		req.Registry = derived.Address
		frame := hookcpi.BuildSetup(setupProgram, req)

		if payer == nil || frameFlags.blockhash == "" {
			raw, err := frame.MarshalBinary()
			if err != nil {
				return err
			}
			_, err = fmt.Fprintln(cmd.OutOrStdout(), base58.Encode(raw))
			return err
		}

		blockhash, err := solana.HashFromBase58(frameFlags.blockhash)
		if err != nil {
			return fmt.Errorf("invalid blockhash: %w", err)
		}
		tx, err := svm.NewSetupTransaction(cmd.Context(), payer, blockhash, frame)
		if err != nil {
			return err
		}
		encoded, err := tx.ToBase64()
		if err != nil {
			return err
		}
		_, err = fmt.Fprintln(cmd.OutOrStdout(), encoded)
		return err
	},
}

func init() {
	frameCmd.Flags().StringVar(&frameFlags.payer, "payer", "", "payer public key")
	frameCmd.Flags().StringVar(&frameFlags.keypair, "keypair", "", "payer keypair file (solana-keygen JSON)")
	frameCmd.Flags().StringVar(&frameFlags.blockhash, "blockhash", "", "recent blockhash for a signed transaction")
}
