package wallet

import (
	"fmt"

	"github.com/btcsuite/btcd/btcec/v2"
	"github.com/btcsuite/btcd/btcec/v2/ecdsa"
	"github.com/btcsuite/btcd/txscript"
	"github.com/btcsuite/btcd/wire"
)

// SignerFn produces a signature of the given 32-byte digest together with
// the public key that must verify it.
type SignerFn func(digest []byte) (*ecdsa.Signature, *btcec.PublicKey, error)

// SignP2WPKHInputOpts is the struct given to SignP2WPKHInput method
type SignP2WPKHInputOpts struct {
	Tx        *wire.MsgTx
	InIndex   int
	SigHashes *txscript.TxSigHashes
	PrevOut   *wire.TxOut
	Signer    SignerFn
}

func (o SignP2WPKHInputOpts) validate() error {
	if o.Tx == nil || o.InIndex < 0 || o.InIndex >= len(o.Tx.TxIn) {
		return ErrInvalidInputIndex
	}
	if o.PrevOut == nil || o.SigHashes == nil {
		return ErrNullPrevOutput
	}
	if o.Signer == nil {
		return fmt.Errorf("missing signer")
	}
	return nil
}

// SignP2WPKHInput computes the BIP143 digest of the input, asks the signer for
// a signature, verifies it locally with the returned public key and returns
// the input witness [sig|sighashall, pubkey].
func SignP2WPKHInput(opts SignP2WPKHInputOpts) (wire.TxWitness, error) {
	if err := opts.validate(); err != nil {
		return nil, err
	}

	digest, err := txscript.CalcWitnessSigHash(
		opts.PrevOut.PkScript, opts.SigHashes, txscript.SigHashAll,
		opts.Tx, opts.InIndex, opts.PrevOut.Value,
	)
	if err != nil {
		return nil, err
	}

	signature, pubkey, err := opts.Signer(digest)
	if err != nil {
		return nil, err
	}

	if !signature.Verify(digest, pubkey) {
		return nil, fmt.Errorf(
			"%w for input %d", ErrSignatureVerification, opts.InIndex,
		)
	}
	script, err := P2WPKHScript(pubkey)
	if err != nil {
		return nil, err
	}
	if string(script) != string(opts.PrevOut.PkScript) {
		return nil, fmt.Errorf(
			"%w for input %d: pubkey does not match prevout script",
			ErrSignatureVerification, opts.InIndex,
		)
	}

	sigWithSigHashType := append(signature.Serialize(), byte(txscript.SigHashAll))
	return wire.TxWitness{sigWithSigHashType, pubkey.SerializeCompressed()}, nil
}

// VerifyInput runs the script engine against the given input of a signed
// transaction.
func VerifyInput(
	tx *wire.MsgTx, inIndex int, prevOut *wire.TxOut,
	sigHashes *txscript.TxSigHashes, fetcher txscript.PrevOutputFetcher,
) error {
	if prevOut == nil {
		return ErrNullPrevOutput
	}
	vm, err := txscript.NewEngine(
		prevOut.PkScript, tx, inIndex, txscript.StandardVerifyFlags, nil,
		sigHashes, prevOut.Value, fetcher,
	)
	if err != nil {
		return err
	}
	if err := vm.Execute(); err != nil {
		return fmt.Errorf("%w for input %d: %s", ErrSignatureVerification, inIndex, err)
	}
	return nil
}
