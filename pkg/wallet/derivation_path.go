package wallet

import (
	"fmt"
	"math"
	"math/big"
	"strings"

	"github.com/btcsuite/btcd/btcutil/hdkeychain"
)

const (
	// PurposeBIP44 is the purpose field of legacy BIP44 paths.
	PurposeBIP44 = 44
	// PurposeBIP84 is the purpose field of native segwit BIP84 paths.
	PurposeBIP84 = 84

	// ExternalChain is the branch used for receiving addresses.
	ExternalChain uint32 = 0
	// InternalChain is the branch used for change addresses.
	InternalChain uint32 = 1

	// WalletPathDepth is the depth of a full purpose'/coin'/account'/chain/index
	// path.
	WalletPathDepth = 5
	// AccountPathDepth is the depth of a purpose'/coin'/account' path.
	AccountPathDepth = 3
)

// DerivationPath is the internal representation of a hierarchical
// deterministic derivation path. Components at or above
// hdkeychain.HardenedKeyStart are hardened.
type DerivationPath []uint32

// NewWalletPath returns the path m/purpose'/coin'/account'/chain/index.
func NewWalletPath(purpose, coinType, account, chain, index uint32) DerivationPath {
	return DerivationPath{
		hdkeychain.HardenedKeyStart + purpose,
		hdkeychain.HardenedKeyStart + coinType,
		hdkeychain.HardenedKeyStart + account,
		chain,
		index,
	}
}

// NewAccountPath returns the path m/purpose'/coin'/account'.
func NewAccountPath(purpose, coinType, account uint32) DerivationPath {
	return NewWalletPath(purpose, coinType, account, 0, 0)[:AccountPathDepth]
}

// ParseDerivationPath converts a derivation path string to the
// internal binary representation. Both ' and h mark hardened components.
func ParseDerivationPath(strPath string) (DerivationPath, error) {
	var path DerivationPath

	elems := strings.Split(strPath, "/")
	switch {
	case strings.TrimSpace(strPath) == "":
		return nil, ErrNullDerivationPath
	case containsEmptyString(elems):
		return nil, ErrMalformedDerivationPath
	case len(elems) < 2:
		return nil, ErrMalformedDerivationPath
	}
	if strings.TrimSpace(elems[0]) == "m" {
		elems = elems[1:]
	}

	for _, elem := range elems {
		elem = strings.TrimSpace(elem)
		var value uint32

		if strings.HasSuffix(elem, "'") || strings.HasSuffix(elem, "h") {
			value = hdkeychain.HardenedKeyStart
			elem = strings.TrimSpace(elem[:len(elem)-1])
		}

		bigval, ok := new(big.Int).SetString(elem, 0)
		if !ok {
			return nil, fmt.Errorf("%w: invalid elem '%s'", ErrInvalidDerivationPath, elem)
		}

		max := math.MaxUint32 - value
		if bigval.Sign() < 0 || bigval.Cmp(big.NewInt(int64(max))) > 0 {
			if value == 0 {
				return nil, fmt.Errorf(
					"%w: elem %v must be in range [0, %d]",
					ErrInvalidDerivationPath, bigval, max,
				)
			}
			return nil, fmt.Errorf(
				"%w: elem %v must be in hardened range [0, %d]",
				ErrInvalidDerivationPath, bigval, max,
			)
		}
		value += uint32(bigval.Uint64())

		path = append(path, value)
	}

	return path, nil
}

// String converts a binary derivation path to its canonical representation.
func (path DerivationPath) String() string {
	if len(path) <= 0 {
		return ""
	}

	var b strings.Builder
	b.WriteString("m")
	for _, component := range path {
		hardened := IsHardened(component)
		if hardened {
			component -= hdkeychain.HardenedKeyStart
		}
		fmt.Fprintf(&b, "/%d", component)
		if hardened {
			b.WriteString("'")
		}
	}
	return b.String()
}

// ValidateWalletPath checks that the path has the shape
// purpose'/coin'/account'/chain/index with a known chain.
func (path DerivationPath) ValidateWalletPath() error {
	if len(path) != WalletPathDepth {
		return ErrInvalidDerivationPathLength
	}
	for i := 0; i < AccountPathDepth; i++ {
		if !IsHardened(path[i]) {
			return ErrInvalidDerivationPathAccount
		}
	}
	if IsHardened(path[3]) || IsHardened(path[4]) {
		return ErrHardenedAddressIndex
	}
	if path[3] != ExternalChain && path[3] != InternalChain {
		return ErrInvalidDerivationPathChain
	}
	return nil
}

// Account returns the unhardened account index of a wallet path.
func (path DerivationPath) Account() uint32 {
	if len(path) < AccountPathDepth {
		return 0
	}
	return path[2] - hdkeychain.HardenedKeyStart
}

// Chain returns the chain (branch) component of a wallet path.
func (path DerivationPath) Chain() uint32 {
	if len(path) < 4 {
		return 0
	}
	return path[3]
}

// Index returns the address index component of a wallet path.
func (path DerivationPath) Index() uint32 {
	if len(path) < WalletPathDepth {
		return 0
	}
	return path[4]
}

// HasPrefix returns whether prefix is an ancestor of (or equal to) path.
func (path DerivationPath) HasPrefix(prefix DerivationPath) bool {
	if len(prefix) > len(path) {
		return false
	}
	for i := range prefix {
		if path[i] != prefix[i] {
			return false
		}
	}
	return true
}

// IsHardened returns whether the given path component is hardened.
func IsHardened(component uint32) bool {
	return component >= hdkeychain.HardenedKeyStart
}

func containsEmptyString(composedPath []string) bool {
	for _, s := range composedPath {
		if strings.TrimSpace(s) == "" {
			return true
		}
	}
	return false
}
