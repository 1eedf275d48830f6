package application

import (
	"errors"
	"fmt"

	"github.com/btcsuite/btcd/btcec/v2"
	"github.com/btcsuite/btcd/btcec/v2/ecdsa"
	"github.com/btcsuite/btcd/txscript"
	"github.com/btcsuite/btcd/wire"
	"github.com/tdex-network/tdex-wallet/internal/core/domain"
	"github.com/tdex-network/tdex-wallet/pkg/wallet"
)

// TxSigner signs the inputs of the transactions built by the TxBuilder with
// the keys held by the KeyVault.
type TxSigner struct {
	vault *domain.KeyVault
}

// NewTxSigner ...
func NewTxSigner(vault *domain.KeyVault) *TxSigner {
	return &TxSigner{vault}
}

// Sign produces a witness for every input of the given transaction. Every
// signature is verified against the input public key and the complete
// transaction is run through the script engine before being returned.
func (s *TxSigner) Sign(unsigned *domain.UnsignedTx) (*domain.SignedTx, error) {
	if err := unsigned.Validate(); err != nil {
		return nil, err
	}
	if s.vault.IsLocked() {
		return nil, domain.ErrVaultLocked
	}

	tx := unsigned.Tx.Copy()
	prevOuts := make(map[wire.OutPoint]*wire.TxOut, len(unsigned.Inputs))
	for i, in := range unsigned.Inputs {
		prevOuts[tx.TxIn[i].PreviousOutPoint] = wire.NewTxOut(
			int64(in.Amount), in.Script,
		)
	}
	fetcher := txscript.NewMultiPrevOutFetcher(prevOuts)
	sigHashes := txscript.NewTxSigHashes(tx, fetcher)

	witnesses := make([]wire.TxWitness, 0, len(unsigned.Inputs))
	for i, in := range unsigned.Inputs {
		path, err := wallet.ParseDerivationPath(in.DerivationPath)
		if err != nil {
			return nil, fmt.Errorf("%w: input %d: %s", domain.ErrInvalidPath, i, err)
		}

		witness, err := wallet.SignP2WPKHInput(wallet.SignP2WPKHInputOpts{
			Tx:        tx,
			InIndex:   i,
			SigHashes: sigHashes,
			PrevOut:   prevOuts[tx.TxIn[i].PreviousOutPoint],
			Signer: func(digest []byte) (*ecdsa.Signature, *btcec.PublicKey, error) {
				return s.vault.Sign(path, digest)
			},
		})
		if err != nil {
			if errors.Is(err, wallet.ErrSignatureVerification) {
				return nil, fmt.Errorf("%w: %s", domain.ErrSigningMismatch, err)
			}
			return nil, fmt.Errorf("input %d: %w", i, err)
		}
		tx.TxIn[i].Witness = witness
		witnesses = append(witnesses, witness)
	}

	for i := range tx.TxIn {
		prevOut := prevOuts[tx.TxIn[i].PreviousOutPoint]
		if err := wallet.VerifyInput(tx, i, prevOut, sigHashes, fetcher); err != nil {
			return nil, fmt.Errorf("%w: %s", domain.ErrSigningMismatch, err)
		}
	}

	return domain.NewSignedTx(unsigned, witnesses)
}
