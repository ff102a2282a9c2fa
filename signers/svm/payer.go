// Package svm provides the payer signers a setup is funded and signed by.
package svm

import (
	"context"
	"fmt"

	solana "github.com/gagliardetto/solana-go"
)

// SignTransactionFunc defines the callback used to sign Solana transactions.
type SignTransactionFunc func(ctx context.Context, tx *solana.Transaction) error

// Payer funds registry slots and signs the setup transaction.
type Payer interface {
	Address() solana.PublicKey
	SignTransaction(ctx context.Context, tx *solana.Transaction) error
}

// PayerSigner implements Payer using a signing callback.
type PayerSigner struct {
	publicKey       solana.PublicKey
	signTransaction SignTransactionFunc
}

// NewPayerSigner creates a payer from a public key and signing callback.
func NewPayerSigner(publicKey solana.PublicKey, signFunc SignTransactionFunc) (*PayerSigner, error) {
	if publicKey.IsZero() {
		return nil, fmt.Errorf("public key is required")
	}
	if signFunc == nil {
		return nil, fmt.Errorf("sign callback is required")
	}

	return &PayerSigner{
		publicKey:       publicKey,
		signTransaction: signFunc,
	}, nil
}

// NewPayerSignerFromPrivateKey creates a payer from a base58-encoded private key.
func NewPayerSignerFromPrivateKey(privateKeyBase58 string) (*PayerSigner, error) {
	privateKey, err := solana.PrivateKeyFromBase58(privateKeyBase58)
	if err != nil {
		return nil, fmt.Errorf("invalid private key: %w", err)
	}
	return newPayerSignerFromKey(privateKey)
}

// NewPayerSignerFromKeygenFile creates a payer from a solana-keygen JSON file.
func NewPayerSignerFromKeygenFile(path string) (*PayerSigner, error) {
	privateKey, err := solana.PrivateKeyFromSolanaKeygenFile(path)
	if err != nil {
		return nil, fmt.Errorf("read keypair %s: %w", path, err)
	}
	return newPayerSignerFromKey(privateKey)
}

func newPayerSignerFromKey(privateKey solana.PrivateKey) (*PayerSigner, error) {
	signFunc := func(ctx context.Context, tx *solana.Transaction) error {
		return signTransactionWithPrivateKey(ctx, privateKey, tx)
	}
	return NewPayerSigner(privateKey.PublicKey(), signFunc)
}

// Address returns the payer's public key.
func (s *PayerSigner) Address() solana.PublicKey {
	return s.publicKey
}

// SignTransaction adds the payer's signature to tx.
func (s *PayerSigner) SignTransaction(ctx context.Context, tx *solana.Transaction) error {
	return s.signTransaction(ctx, tx)
}

// NewSetupTransaction wraps instructions in a transaction paid for by payer
// and signs it.
func NewSetupTransaction(ctx context.Context, payer Payer, recentBlockhash solana.Hash, instructions ...solana.Instruction) (*solana.Transaction, error) {
	tx, err := solana.NewTransaction(instructions, recentBlockhash, solana.TransactionPayer(payer.Address()))
	if err != nil {
		return nil, fmt.Errorf("build transaction: %w", err)
	}
	if err := payer.SignTransaction(ctx, tx); err != nil {
		return nil, err
	}
	return tx, nil
}

// signTransactionWithPrivateKey places the key's signature at its signer
// slot. Slots of other signers are left as they are.
func signTransactionWithPrivateKey(_ context.Context, privateKey solana.PrivateKey, tx *solana.Transaction) error {
	signer := privateKey.PublicKey()
	required := int(tx.Message.Header.NumRequiredSignatures)
	slot := -1
	for i := 0; i < required && i < len(tx.Message.AccountKeys); i++ {
		if tx.Message.AccountKeys[i].Equals(signer) {
			slot = i
			break
		}
	}
	if slot < 0 {
		return fmt.Errorf("%s is not a required signer", signer)
	}

	message, err := tx.Message.MarshalBinary()
	if err != nil {
		return fmt.Errorf("encode message: %w", err)
	}
	sig, err := privateKey.Sign(message)
	if err != nil {
		return fmt.Errorf("sign message: %w", err)
	}

	if len(tx.Signatures) < required {
		grown := make([]solana.Signature, required)
		copy(grown, tx.Signatures)
		tx.Signatures = grown
	}
	tx.Signatures[slot] = sig
	return nil
}
