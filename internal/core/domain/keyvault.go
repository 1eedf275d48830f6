package domain

import (
	"encoding/hex"
	"errors"
	"fmt"
	"sync"

	"github.com/btcsuite/btcd/btcec/v2"
	"github.com/btcsuite/btcd/btcec/v2/ecdsa"
	"github.com/btcsuite/btcd/btcutil/hdkeychain"
	"github.com/btcsuite/btcd/chaincfg"
	log "github.com/sirupsen/logrus"
	"github.com/tdex-network/tdex-wallet/pkg/wallet"
)

// NewKeyVaultOpts is the struct given to NewKeyVault.
type NewKeyVaultOpts struct {
	Mnemonic []string
	// PaymentSecret is the optional BIP39 passphrase.
	PaymentSecret  string
	Passphrase     string
	Network        string
	Purpose        uint32
	Account        uint32
	GapLimit       uint32
	KDFParams      wallet.KDFParams
	BirthdayHeight uint32
}

func (o NewKeyVaultOpts) validate() error {
	if len(o.Mnemonic) <= 0 {
		return wallet.ErrNullMnemonic
	}
	if len(o.Passphrase) <= 0 {
		return ErrNullPassphrase
	}
	if _, err := wallet.NetworkByName(o.Network); err != nil {
		return err
	}
	if o.Purpose != 0 &&
		o.Purpose != wallet.PurposeBIP84 && o.Purpose != wallet.PurposeBIP44 {
		return fmt.Errorf("%w: unsupported purpose %d", ErrInvalidPath, o.Purpose)
	}
	if o.Account >= hdkeychain.HardenedKeyStart {
		return fmt.Errorf("%w: account index out of range", ErrInvalidPath)
	}
	return nil
}

// KeyVault derives and holds the wallet's key material. The decrypted seed
// lives in memory only while unlocked and never leaves the vault: callers
// get public keys and signatures.
type KeyVault struct {
	lock     *sync.RWMutex
	vault    *Vault
	params   *chaincfg.Params
	gapLimit uint32

	rootKey     *hdkeychain.ExtendedKey
	accountKeys map[uint32]*hdkeychain.ExtendedKey
	// cache holds the private keys derived so far. It's wiped when locking.
	cache map[string]*hdkeychain.ExtendedKey
}

// GenerateMnemonic returns a new random 24-words mnemonic.
func GenerateMnemonic() ([]string, error) {
	return wallet.NewMnemonic(wallet.NewMnemonicOpts{
		EntropySize: wallet.DefaultEntropySize,
	})
}

// NewKeyVault encrypts the seed of the provided mnemonic with the passphrase
// and returns a KeyVault with the given account already derived. The vault
// is locked by default.
func NewKeyVault(opts NewKeyVaultOpts) (*KeyVault, error) {
	if err := opts.validate(); err != nil {
		return nil, err
	}
	params, _ := wallet.NetworkByName(opts.Network)
	purpose := opts.Purpose
	if purpose == 0 {
		purpose = wallet.PurposeBIP84
	}

	seed, err := wallet.NewSeedFromMnemonic(opts.Mnemonic, opts.PaymentSecret)
	if err != nil {
		return nil, err
	}
	defer wallet.Zero(seed)

	encryptedSeed, err := wallet.Encrypt(wallet.EncryptOpts{
		PlainText:  seed,
		Passphrase: opts.Passphrase,
		Params:     opts.KDFParams,
	})
	if err != nil {
		return nil, err
	}
	kdfParams := opts.KDFParams
	if kdfParams == (wallet.KDFParams{}) {
		kdfParams = wallet.DefaultKDFParams
	}

	rootKey, err := wallet.NewMasterKey(seed, params)
	if err != nil {
		return nil, err
	}
	defer rootKey.Zero()

	vault := &Vault{
		EncryptedSeed:  encryptedSeed,
		KDFParams:      kdfParams,
		Network:        params.Name,
		Purpose:        purpose,
		CoinType:       params.HDCoinType,
		BirthdayHeight: opts.BirthdayHeight,
		Accounts:       map[uint32]*Account{},
	}

	kv := &KeyVault{
		lock:        &sync.RWMutex{},
		vault:       vault,
		params:      params,
		gapLimit:    gapLimitOrDefault(opts.GapLimit),
		accountKeys: map[uint32]*hdkeychain.ExtendedKey{},
		cache:       map[string]*hdkeychain.ExtendedKey{},
	}
	if err := kv.addAccount(rootKey, opts.Account); err != nil {
		return nil, err
	}
	return kv, nil
}

// LoadKeyVault returns a locked KeyVault for the given persisted vault.
func LoadKeyVault(vault *Vault, gapLimit uint32) (*KeyVault, error) {
	if vault == nil || !vault.IsInitialized() {
		return nil, ErrVaultNotInitialized
	}
	params, err := wallet.NetworkByName(vault.Network)
	if err != nil {
		return nil, err
	}

	accountKeys := make(map[uint32]*hdkeychain.ExtendedKey, len(vault.Accounts))
	for i, account := range vault.Accounts {
		xpub, err := hdkeychain.NewKeyFromString(account.ExtendedPublicKey)
		if err != nil {
			return nil, fmt.Errorf("account %d: %w", i, err)
		}
		if xpub.IsPrivate() {
			return nil, fmt.Errorf("account %d: extended key must be public", i)
		}
		accountKeys[i] = xpub
	}

	kv := &KeyVault{
		lock:        &sync.RWMutex{},
		vault:       vault.Copy(),
		params:      params,
		gapLimit:    gapLimitOrDefault(gapLimit),
		accountKeys: accountKeys,
		cache:       map[string]*hdkeychain.ExtendedKey{},
	}
	for _, account := range kv.vault.Accounts {
		for _, chain := range []uint32{ExternalChain, InternalChain} {
			if err := kv.extendLookahead(account, chain); err != nil {
				return nil, err
			}
		}
	}
	return kv, nil
}

// Network returns the chain params of the vault.
func (kv *KeyVault) Network() *chaincfg.Params {
	return kv.params
}

// IsLocked returns whether the decrypted seed is not in memory.
func (kv *KeyVault) IsLocked() bool {
	kv.lock.RLock()
	defer kv.lock.RUnlock()

	return kv.rootKey == nil
}

// Unlock decrypts the seed with the provided passphrase. On failure the
// vault is left as it was.
func (kv *KeyVault) Unlock(passphrase string) error {
	kv.lock.Lock()
	defer kv.lock.Unlock()

	seed, err := kv.decryptSeed(passphrase)
	if err != nil {
		return err
	}
	defer wallet.Zero(seed)

	if kv.rootKey != nil {
		return nil
	}

	rootKey, err := wallet.NewMasterKey(seed, kv.params)
	if err != nil {
		return err
	}
	kv.rootKey = rootKey
	return nil
}

// Lock wipes the decrypted seed and all private keys derived from it.
func (kv *KeyVault) Lock() {
	kv.lock.Lock()
	defer kv.lock.Unlock()

	if kv.rootKey != nil {
		kv.rootKey.Zero()
		kv.rootKey = nil
	}
	for path, key := range kv.cache {
		key.Zero()
		delete(kv.cache, path)
	}
}

// VerifyPassphrase returns ErrWrongPassphrase if the given passphrase can't
// decrypt the seed.
func (kv *KeyVault) VerifyPassphrase(passphrase string) error {
	kv.lock.RLock()
	defer kv.lock.RUnlock()

	seed, err := kv.decryptSeed(passphrase)
	if err != nil {
		return err
	}
	wallet.Zero(seed)
	return nil
}

// ChangePassphrase re-encrypts the seed with a new passphrase.
func (kv *KeyVault) ChangePassphrase(currentPassphrase, newPassphrase string) error {
	if len(newPassphrase) <= 0 {
		return ErrNullPassphrase
	}

	kv.lock.Lock()
	defer kv.lock.Unlock()

	seed, err := kv.decryptSeed(currentPassphrase)
	if err != nil {
		return err
	}
	defer wallet.Zero(seed)

	encryptedSeed, err := wallet.Encrypt(wallet.EncryptOpts{
		PlainText:  seed,
		Passphrase: newPassphrase,
		Params:     kv.vault.KDFParams,
	})
	if err != nil {
		return err
	}
	kv.vault.EncryptedSeed = encryptedSeed
	return nil
}

// Derive returns the public key for the given wallet path. Paths under a
// known account are derived from its extended public key and work while
// the vault is locked.
func (kv *KeyVault) Derive(path wallet.DerivationPath) (*DerivedKey, error) {
	if err := validatePath(path); err != nil {
		return nil, err
	}

	kv.lock.RLock()
	defer kv.lock.RUnlock()

	return kv.derive(path)
}

// Sign signs the 32-bytes digest with the private key at the given path.
func (kv *KeyVault) Sign(
	path wallet.DerivationPath, digest []byte,
) (*ecdsa.Signature, *btcec.PublicKey, error) {
	if err := validatePath(path); err != nil {
		return nil, nil, err
	}
	if len(digest) != 32 {
		return nil, nil, wallet.ErrInvalidDigest
	}

	kv.lock.Lock()
	defer kv.lock.Unlock()

	if kv.rootKey == nil {
		return nil, nil, ErrVaultLocked
	}

	key, ok := kv.cache[path.String()]
	if !ok {
		var err error
		key, err = wallet.DeriveExtendedKey(kv.rootKey, path)
		if err != nil {
			return nil, nil, fmt.Errorf("%w: %s", ErrInvalidPath, err)
		}
		kv.cache[path.String()] = key
	}

	prvkey, err := key.ECPrivKey()
	if err != nil {
		return nil, nil, err
	}
	defer prvkey.Zero()

	return ecdsa.Sign(prvkey, digest), prvkey.PubKey(), nil
}

// NextAddress returns a never returned before key for the given account and
// chain, and keeps GapLimit scripts derived ahead of it.
func (kv *KeyVault) NextAddress(accountIndex, chain uint32) (*DerivedKey, error) {
	if chain != ExternalChain && chain != InternalChain {
		return nil, fmt.Errorf("%w: unknown chain %d", ErrInvalidPath, chain)
	}

	kv.lock.Lock()
	defer kv.lock.Unlock()

	account, ok := kv.vault.Accounts[accountIndex]
	if !ok {
		return nil, ErrAccountNotFound
	}

	index := account.nextIndex(chain)
	key, err := kv.derive(kv.walletPath(accountIndex, chain, index))
	if err != nil {
		return nil, err
	}
	account.setNextIndex(chain, index+1)
	if err := kv.extendLookahead(account, chain); err != nil {
		return nil, err
	}

	log.WithFields(log.Fields{
		"account": accountIndex,
		"chain":   chain,
		"index":   index,
	}).Debug("derived new address")
	return key, nil
}

// CurrentAddress returns the key at the next index of the given chain,
// without advancing it.
func (kv *KeyVault) CurrentAddress(accountIndex, chain uint32) (*DerivedKey, error) {
	kv.lock.RLock()
	defer kv.lock.RUnlock()

	account, ok := kv.vault.Accounts[accountIndex]
	if !ok {
		return nil, ErrAccountNotFound
	}
	return kv.derive(kv.walletPath(accountIndex, chain, account.nextIndex(chain)))
}

// IsOwnScript returns the derivation path of the given script if it belongs
// to the wallet.
func (kv *KeyVault) IsOwnScript(script []byte) (wallet.DerivationPath, bool) {
	kv.lock.RLock()
	defer kv.lock.RUnlock()

	return kv.vault.PathForScript(script)
}

// MarkUsed records that the address at the given path received funds. The
// next index of its chain is moved past it and the lookahead extended. It
// returns whether the vault changed.
func (kv *KeyVault) MarkUsed(path wallet.DerivationPath) (bool, error) {
	if err := validatePath(path); err != nil {
		return false, err
	}

	kv.lock.Lock()
	defer kv.lock.Unlock()

	account, ok := kv.vault.Accounts[path.Account()]
	if !ok {
		return false, ErrAccountNotFound
	}
	chain, index := path.Chain(), path.Index()
	if index < account.nextIndex(chain) {
		return false, nil
	}
	account.setNextIndex(chain, index+1)
	if err := kv.extendLookahead(account, chain); err != nil {
		return false, err
	}
	return true, nil
}

// PreviewUsed returns a copy of the vault model as it would be after calling
// MarkUsed for every given script that belongs to the wallet, and whether it
// differs from the current one. Scripts that belong to the wallet only once
// the lookahead gets extended by the others are included. The KeyVault is
// left untouched.
func (kv *KeyVault) PreviewUsed(scripts [][]byte) (*Vault, bool, error) {
	kv.lock.RLock()
	defer kv.lock.RUnlock()

	preview := kv.vault.Copy()
	changed := false
	for marked := true; marked; {
		marked = false
		for _, script := range scripts {
			path, ok := preview.PathForScript(script)
			if !ok {
				continue
			}
			account, ok := preview.Accounts[path.Account()]
			if !ok {
				continue
			}
			chain, index := path.Chain(), path.Index()
			if index < account.nextIndex(chain) {
				continue
			}
			account.setNextIndex(chain, index+1)
			if err := kv.extendLookahead(account, chain); err != nil {
				return nil, false, err
			}
			marked, changed = true, true
		}
	}
	return preview, changed, nil
}

// Scripts returns the list of all derived scripts to watch on chain,
// lookahead included.
func (kv *KeyVault) Scripts() [][]byte {
	kv.lock.RLock()
	defer kv.lock.RUnlock()

	return kv.vault.Scripts()
}

// Addresses returns the addresses already returned to the user for the
// given account and chain.
func (kv *KeyVault) Addresses(accountIndex, chain uint32) ([]string, error) {
	kv.lock.RLock()
	defer kv.lock.RUnlock()

	account, ok := kv.vault.Accounts[accountIndex]
	if !ok {
		return nil, ErrAccountNotFound
	}

	addresses := make([]string, 0, account.nextIndex(chain))
	for i := uint32(0); i < account.nextIndex(chain); i++ {
		key, err := kv.derive(kv.walletPath(accountIndex, chain, i))
		if err != nil {
			return nil, err
		}
		addresses = append(addresses, key.Address)
	}
	return addresses, nil
}

// Vault returns a copy of the persisted model.
func (kv *KeyVault) Vault() *Vault {
	kv.lock.RLock()
	defer kv.lock.RUnlock()

	return kv.vault.Copy()
}

func (kv *KeyVault) addAccount(rootKey *hdkeychain.ExtendedKey, index uint32) error {
	accountKey, err := wallet.DeriveExtendedKey(
		rootKey, wallet.NewAccountPath(kv.vault.Purpose, kv.vault.CoinType, index),
	)
	if err != nil {
		return err
	}
	defer accountKey.Zero()

	neutered, err := accountKey.Neuter()
	if err != nil {
		return err
	}
	// The neutered key shares its public key and chain code with accountKey,
	// which gets zeroed.
	xpub, err := hdkeychain.NewKeyFromString(neutered.String())
	if err != nil {
		return err
	}

	account := &Account{
		Index:                  index,
		ExtendedPublicKey:      xpub.String(),
		DerivationPathByScript: map[string]string{},
	}
	kv.accountKeys[index] = xpub
	kv.vault.Accounts[index] = account

	for _, chain := range []uint32{ExternalChain, InternalChain} {
		if err := kv.extendLookahead(account, chain); err != nil {
			return err
		}
	}
	return nil
}

// extendLookahead derives the scripts of the account's chain up to gap limit
// indexes after the next one.
func (kv *KeyVault) extendLookahead(account *Account, chain uint32) error {
	target := account.nextIndex(chain) + kv.gapLimit
	for i := account.derived(chain); i < target; i++ {
		key, err := kv.derive(kv.walletPath(account.Index, chain, i))
		if err != nil {
			return err
		}
		account.DerivationPathByScript[hex.EncodeToString(key.Script)] =
			key.Path.String()
		account.setDerived(chain, i+1)
	}
	return nil
}

func (kv *KeyVault) derive(path wallet.DerivationPath) (*DerivedKey, error) {
	var (
		key *hdkeychain.ExtendedKey
		err error
	)

	accountPath := wallet.NewAccountPath(kv.vault.Purpose, kv.vault.CoinType, path.Account())
	xpub, ok := kv.accountKeys[path.Account()]
	switch {
	case ok && path.HasPrefix(accountPath):
		key, err = wallet.DeriveExtendedKey(xpub, path[wallet.AccountPathDepth:])
	case kv.rootKey != nil:
		key, err = wallet.DeriveExtendedKey(kv.rootKey, path)
		if err == nil {
			defer key.Zero()
		}
	default:
		return nil, ErrVaultLocked
	}
	if err != nil {
		return nil, fmt.Errorf("%w: %s", ErrInvalidPath, err)
	}

	// ECPubKey parses a new key, it stays valid once key is zeroed.
	pubkey, err := key.ECPubKey()
	if err != nil {
		return nil, err
	}
	script, err := wallet.P2WPKHScript(pubkey)
	if err != nil {
		return nil, err
	}
	addr, err := wallet.P2WPKHAddress(pubkey, kv.params)
	if err != nil {
		return nil, err
	}

	return &DerivedKey{
		Path:    append(wallet.DerivationPath{}, path...),
		PubKey:  pubkey,
		Script:  script,
		Address: addr.EncodeAddress(),
	}, nil
}

func (kv *KeyVault) walletPath(account, chain, index uint32) wallet.DerivationPath {
	return wallet.NewWalletPath(
		kv.vault.Purpose, kv.vault.CoinType, account, chain, index,
	)
}

func (kv *KeyVault) decryptSeed(passphrase string) ([]byte, error) {
	if len(passphrase) <= 0 {
		return nil, ErrWrongPassphrase
	}
	seed, err := wallet.Decrypt(wallet.DecryptOpts{
		CypherText: kv.vault.EncryptedSeed,
		Passphrase: passphrase,
		Params:     kv.vault.KDFParams,
	})
	if err != nil {
		if errors.Is(err, wallet.ErrDecryptionFailed) {
			return nil, ErrWrongPassphrase
		}
		return nil, err
	}
	return seed, nil
}

func validatePath(path wallet.DerivationPath) error {
	if err := path.ValidateWalletPath(); err != nil {
		return fmt.Errorf("%w: %s", ErrInvalidPath, err)
	}
	return nil
}

func gapLimitOrDefault(gapLimit uint32) uint32 {
	if gapLimit == 0 {
		return DefaultGapLimit
	}
	return gapLimit
}
