package domain

import (
	"encoding/hex"
	"sort"

	"github.com/btcsuite/btcd/btcec/v2"
	"github.com/tdex-network/tdex-wallet/pkg/wallet"
)

// Vault is the persisted representation of the wallet's key material. The
// seed is stored only encrypted, the account extended public keys in clear
// so that addresses can be derived and recognized while locked.
type Vault struct {
	EncryptedSeed  string
	KDFParams      wallet.KDFParams
	Network        string
	Purpose        uint32
	CoinType       uint32
	BirthdayHeight uint32
	Accounts       map[uint32]*Account
}

// Account defines the entity data struture for a derived account of the
// wallet's HD tree.
type Account struct {
	Index             uint32
	ExtendedPublicKey string
	// NextExternalIndex and NextInternalIndex are the indexes of the first
	// never returned address of each chain.
	NextExternalIndex uint32
	NextInternalIndex uint32
	// DerivedExternal and DerivedInternal are the number of scripts derived
	// so far, unused lookahead included.
	DerivedExternal        uint32
	DerivedInternal        uint32
	DerivationPathByScript map[string]string
}

// DerivedKey is the public side of a derived key. The private scalar never
// leaves the KeyVault.
type DerivedKey struct {
	Path    wallet.DerivationPath
	PubKey  *btcec.PublicKey
	Script  []byte
	Address string
}

func (a *Account) nextIndex(chain uint32) uint32 {
	if chain == InternalChain {
		return a.NextInternalIndex
	}
	return a.NextExternalIndex
}

func (a *Account) setNextIndex(chain, index uint32) {
	if chain == InternalChain {
		a.NextInternalIndex = index
		return
	}
	a.NextExternalIndex = index
}

func (a *Account) derived(chain uint32) uint32 {
	if chain == InternalChain {
		return a.DerivedInternal
	}
	return a.DerivedExternal
}

func (a *Account) setDerived(chain, count uint32) {
	if chain == InternalChain {
		a.DerivedInternal = count
		return
	}
	a.DerivedExternal = count
}

func (a *Account) copy() *Account {
	cp := *a
	cp.DerivationPathByScript = make(map[string]string, len(a.DerivationPathByScript))
	for k, v := range a.DerivationPathByScript {
		cp.DerivationPathByScript[k] = v
	}
	return &cp
}

// Copy returns a deep copy of the vault.
func (v *Vault) Copy() *Vault {
	cp := *v
	cp.Accounts = make(map[uint32]*Account, len(v.Accounts))
	for i, a := range v.Accounts {
		cp.Accounts[i] = a.copy()
	}
	return &cp
}

// IsInitialized returns whether the Vault holds an encrypted seed.
func (v *Vault) IsInitialized() bool {
	return len(v.EncryptedSeed) > 0
}

// Scripts returns all the derived scripts of the vault, sorted by their hex
// encoding.
func (v *Vault) Scripts() [][]byte {
	hexScripts := make([]string, 0)
	for _, account := range v.Accounts {
		for script := range account.DerivationPathByScript {
			hexScripts = append(hexScripts, script)
		}
	}
	sort.Strings(hexScripts)

	scripts := make([][]byte, 0, len(hexScripts))
	for _, s := range hexScripts {
		script, _ := hex.DecodeString(s)
		scripts = append(scripts, script)
	}
	return scripts
}

// PathForScript returns the derivation path of the given script if it's one
// of the derived ones.
func (v *Vault) PathForScript(script []byte) (wallet.DerivationPath, bool) {
	key := hex.EncodeToString(script)
	for _, account := range v.Accounts {
		if strPath, ok := account.DerivationPathByScript[key]; ok {
			path, err := wallet.ParseDerivationPath(strPath)
			if err != nil {
				return nil, false
			}
			return path, true
		}
	}
	return nil, false
}
