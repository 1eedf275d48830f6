// Package wallet contains the chain-level primitives of the wallet core:
// derivation paths, mnemonic and seed handling, seed encryption, P2WPKH
// scripts, size estimation and witness v0 signing.
package wallet

import (
	"errors"
)

var (
	// ErrNullNetwork ...
	ErrNullNetwork = errors.New("network params are null")
	// ErrNullSeed ...
	ErrNullSeed = errors.New("seed must not be null")
	// ErrNullMnemonic ...
	ErrNullMnemonic = errors.New("mnemonic must not be null")
	// ErrNullPassphrase ...
	ErrNullPassphrase = errors.New("passphrase must not be null")
	// ErrNullPlainText ...
	ErrNullPlainText = errors.New("text to encrypt must not be null")
	// ErrNullCypherText ...
	ErrNullCypherText = errors.New("cypher to decrypt must not be null")
	// ErrNullDerivationPath ...
	ErrNullDerivationPath = errors.New("derivation path must not be null")
	// ErrNullPubKey ...
	ErrNullPubKey = errors.New("public key must not be null")
	// ErrNullPrevOutput ...
	ErrNullPrevOutput = errors.New("previous output must not be null")

	// ErrInvalidMnemonic ...
	ErrInvalidMnemonic = errors.New("mnemonic is invalid")
	// ErrInvalidEntropySize ...
	ErrInvalidEntropySize = errors.New(
		"entropy size must be a multiple of 32 in the range [128,256]",
	)
	// ErrInvalidCypherText ...
	ErrInvalidCypherText = errors.New("cypher must be in base64 format")
	// ErrInvalidDerivationPath ...
	ErrInvalidDerivationPath = errors.New("invalid derivation path")
	// ErrInvalidDerivationPathLength ...
	ErrInvalidDerivationPathLength = errors.New(
		"derivation path must be in the form \"m/purpose'/coin'/account'/chain/index\"",
	)
	// ErrInvalidDerivationPathAccount ...
	ErrInvalidDerivationPathAccount = errors.New(
		"derivation path's purpose, coin and account must be hardened (suffix \"'\")",
	)
	// ErrInvalidDerivationPathChain ...
	ErrInvalidDerivationPathChain = errors.New(
		"derivation path's chain must be either 0 (external) or 1 (internal)",
	)
	// ErrHardenedAddressIndex ...
	ErrHardenedAddressIndex = errors.New(
		"derivation path's chain and index must not be hardened",
	)
	// ErrInvalidDigest ...
	ErrInvalidDigest = errors.New("digest must be a 32 byte array")
	// ErrInvalidKDFParams ...
	ErrInvalidKDFParams = errors.New("invalid key derivation params")
	// ErrInvalidInputIndex ...
	ErrInvalidInputIndex = errors.New("input index out of range")

	// ErrMalformedDerivationPath ...
	ErrMalformedDerivationPath = errors.New(
		"path must not start or end with a '/' and " +
			"can optionally start with 'm/' for absolute paths",
	)
	// ErrDecryptionFailed is returned when the ciphertext can't be opened with
	// the given passphrase.
	ErrDecryptionFailed = errors.New("unable to decrypt with given passphrase")
	// ErrSignatureVerification is returned when a produced signature does not
	// verify against the expected public key or script.
	ErrSignatureVerification = errors.New("signature verification failed")
)
