package wallet

import (
	"strings"

	"github.com/tyler-smith/go-bip39"
)

// DefaultEntropySize produces 24-word mnemonics.
const DefaultEntropySize = 256

// NewMnemonicOpts is the struct given to NewMnemonic method
type NewMnemonicOpts struct {
	EntropySize int
}

func (o NewMnemonicOpts) validate() error {
	if o.EntropySize > 0 {
		if o.EntropySize < 128 || o.EntropySize > 256 || o.EntropySize%32 != 0 {
			return ErrInvalidEntropySize
		}
	}
	if o.EntropySize < 0 {
		return ErrInvalidEntropySize
	}
	return nil
}

// NewMnemonic returns a new mnemonic as a list of words
func NewMnemonic(opts NewMnemonicOpts) ([]string, error) {
	if err := opts.validate(); err != nil {
		return nil, err
	}
	if opts.EntropySize == 0 {
		opts.EntropySize = DefaultEntropySize
	}

	entropy, err := bip39.NewEntropy(opts.EntropySize)
	if err != nil {
		return nil, err
	}
	defer zero(entropy)

	mnemonic, err := bip39.NewMnemonic(entropy)
	if err != nil {
		return nil, err
	}
	return strings.Fields(mnemonic), nil
}

// IsMnemonicValid returns whether the list of words is a valid BIP39
// mnemonic, checksum included.
func IsMnemonicValid(mnemonic []string) bool {
	if len(mnemonic) <= 0 {
		return false
	}
	return bip39.IsMnemonicValid(strings.Join(mnemonic, " "))
}

// NewSeedFromMnemonic returns the BIP39 seed of the given mnemonic, salted
// with the optional secret (BIP39 passphrase).
func NewSeedFromMnemonic(mnemonic []string, secret string) ([]byte, error) {
	if len(mnemonic) <= 0 {
		return nil, ErrNullMnemonic
	}
	seed, err := bip39.NewSeedWithErrorChecking(strings.Join(mnemonic, " "), secret)
	if err != nil {
		return nil, ErrInvalidMnemonic
	}
	return seed, nil
}
