package application

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"sort"
	"sync"

	log "github.com/sirupsen/logrus"
	"github.com/tdex-network/tdex-wallet/internal/core/domain"
	"github.com/tdex-network/tdex-wallet/internal/core/ports"
	"github.com/tdex-network/tdex-wallet/pkg/wallet"
)

const walletsDir = "wallets"

var walletNameRegexp = regexp.MustCompile(`^[a-zA-Z0-9_-]{1,64}$`)

// RepoFactory opens the storage of a wallet in the given directory.
type RepoFactory func(dir string) (ports.RepoManager, error)

// CreateWalletOpts ...
type CreateWalletOpts struct {
	Passphrase string
	// PaymentSecret is the optional BIP39 passphrase.
	PaymentSecret string
	// BirthdayHeight is the height from which the wallet is synced. If zero,
	// new wallets use the current chain tip and restored ones the genesis.
	BirthdayHeight uint32
	Purpose        uint32
	KDFParams      wallet.KDFParams
}

// WalletManagerConfig ...
type WalletManagerConfig struct {
	Datadir     string
	Network     string
	Source      ports.DataSource
	RepoFactory RepoFactory
	Wallet      WalletConfig
}

// WalletManager handles the named wallets stored in the datadir, each one
// at <datadir>/wallets/<name>, and keeps track of the active one.
type WalletManager struct {
	cfg WalletManagerConfig

	lock    *sync.RWMutex
	wallets map[string]*WalletState
	active  string
}

// NewWalletManager ...
func NewWalletManager(cfg WalletManagerConfig) (*WalletManager, error) {
	if cfg.Source == nil {
		return nil, ErrMissingDataSource
	}
	if cfg.RepoFactory == nil {
		return nil, ErrMissingRepoManager
	}
	if _, err := wallet.NetworkByName(cfg.Network); err != nil {
		return nil, err
	}
	if err := os.MkdirAll(filepath.Join(cfg.Datadir, walletsDir), 0700); err != nil {
		return nil, err
	}
	return &WalletManager{
		cfg:     cfg,
		lock:    &sync.RWMutex{},
		wallets: make(map[string]*WalletState),
	}, nil
}

// Create makes a new wallet with a random mnemonic, opens it and returns
// the mnemonic to be backed up by the user.
func (m *WalletManager) Create(
	ctx context.Context, name string, opts CreateWalletOpts,
) (*WalletState, []string, error) {
	mnemonic, err := domain.GenerateMnemonic()
	if err != nil {
		return nil, nil, err
	}
	if opts.BirthdayHeight == 0 {
		tip, err := m.cfg.Source.GetTipHeight(ctx)
		if err != nil {
			log.WithError(err).Warn(
				"failed to get chain tip, new wallet will sync from genesis",
			)
		}
		opts.BirthdayHeight = tip
	}

	w, err := m.init(name, mnemonic, opts)
	if err != nil {
		return nil, nil, err
	}
	return w, mnemonic, nil
}

// Restore makes a new wallet from the given mnemonic and opens it.
func (m *WalletManager) Restore(
	_ context.Context, name string, mnemonic []string, opts CreateWalletOpts,
) (*WalletState, error) {
	if !wallet.IsMnemonicValid(mnemonic) {
		return nil, wallet.ErrInvalidMnemonic
	}
	return m.init(name, mnemonic, opts)
}

// Open loads the wallet with the given name, if not already open, and makes
// it the active one.
func (m *WalletManager) Open(name string) (*WalletState, error) {
	if err := validateWalletName(name); err != nil {
		return nil, err
	}

	m.lock.Lock()
	defer m.lock.Unlock()

	if w, ok := m.wallets[name]; ok {
		m.active = name
		return w, nil
	}
	if !m.exists(name) {
		return nil, ErrWalletNotFound
	}

	repo, err := m.cfg.RepoFactory(m.walletDir(name))
	if err != nil {
		return nil, err
	}
	v, err := repo.VaultRepository().GetVault(context.Background())
	if err != nil {
		repo.Close()
		return nil, err
	}
	if !sameNetwork(v.Network, m.cfg.Network) {
		repo.Close()
		return nil, fmt.Errorf(
			"%w: wallet %s is for %s", ErrNetworkMismatch, name, v.Network,
		)
	}

	w, err := NewWalletState(repo, m.cfg.Source, m.cfg.Wallet)
	if err != nil {
		repo.Close()
		return nil, err
	}
	m.wallets[name] = w
	m.active = name
	log.Debugf("opened wallet %s", name)
	return w, nil
}

// Close closes the wallet with the given name.
func (m *WalletManager) Close(name string) error {
	m.lock.Lock()
	defer m.lock.Unlock()

	w, ok := m.wallets[name]
	if !ok {
		return ErrWalletNotFound
	}
	w.Close()
	delete(m.wallets, name)
	if m.active == name {
		m.active = ""
	}
	return nil
}

// CloseAll closes every open wallet.
func (m *WalletManager) CloseAll() {
	m.lock.Lock()
	defer m.lock.Unlock()

	for name, w := range m.wallets {
		w.Close()
		delete(m.wallets, name)
	}
	m.active = ""
}

// List returns the names of the wallets in the datadir, sorted.
func (m *WalletManager) List() ([]string, error) {
	entries, err := os.ReadDir(filepath.Join(m.cfg.Datadir, walletsDir))
	if err != nil {
		return nil, err
	}
	names := make([]string, 0, len(entries))
	for _, entry := range entries {
		if entry.IsDir() && walletNameRegexp.MatchString(entry.Name()) {
			names = append(names, entry.Name())
		}
	}
	sort.Strings(names)
	return names, nil
}

// Active returns the active wallet.
func (m *WalletManager) Active() (*WalletState, string, error) {
	m.lock.RLock()
	defer m.lock.RUnlock()

	if m.active == "" {
		return nil, "", ErrNoActiveWallet
	}
	return m.wallets[m.active], m.active, nil
}

// Switch makes the wallet with the given name the active one, opening it if
// needed.
func (m *WalletManager) Switch(name string) (*WalletState, error) {
	return m.Open(name)
}

func (m *WalletManager) init(
	name string, mnemonic []string, opts CreateWalletOpts,
) (*WalletState, error) {
	if err := validateWalletName(name); err != nil {
		return nil, err
	}

	m.lock.Lock()
	defer m.lock.Unlock()

	if m.exists(name) {
		return nil, ErrWalletExists
	}

	newVault, err := domain.NewKeyVault(domain.NewKeyVaultOpts{
		Mnemonic:       mnemonic,
		PaymentSecret:  opts.PaymentSecret,
		Passphrase:     opts.Passphrase,
		Network:        m.cfg.Network,
		Purpose:        opts.Purpose,
		Account:        domain.DefaultAccount,
		GapLimit:       m.cfg.Wallet.GapLimit,
		KDFParams:      opts.KDFParams,
		BirthdayHeight: opts.BirthdayHeight,
	})
	if err != nil {
		return nil, err
	}
	// The wallet is opened from the model to persist, exactly like Open does.
	vault, err := domain.LoadKeyVault(newVault.Vault(), m.cfg.Wallet.GapLimit)
	if err != nil {
		return nil, err
	}

	dir := m.walletDir(name)
	if err := os.MkdirAll(dir, 0700); err != nil {
		return nil, err
	}
	cleanup := func() {
		if err := os.RemoveAll(dir); err != nil {
			log.WithError(err).Warnf("failed to remove dir of wallet %s", name)
		}
	}

	repo, err := m.cfg.RepoFactory(dir)
	if err != nil {
		cleanup()
		return nil, err
	}
	ctx := context.Background()
	state := domain.NewSyncState(opts.BirthdayHeight, m.cfg.Wallet.Sync.AncestryDepth)
	if _, err := repo.RunTransaction(
		ctx, !readOnlyTx, func(ctx context.Context) (interface{}, error) {
			if err := repo.VaultRepository().UpdateVault(ctx, vault.Vault()); err != nil {
				return nil, err
			}
			return nil, repo.SyncRepository().UpdateSyncState(ctx, state)
		},
	); err != nil {
		repo.Close()
		cleanup()
		return nil, err
	}

	w := newWalletState(
		repo, m.cfg.Source, vault,
		domain.NewOutputSet(m.cfg.Wallet.MinConfirmations), state, m.cfg.Wallet,
	)
	m.wallets[name] = w
	m.active = name

	log.WithFields(log.Fields{
		"name":     name,
		"network":  m.cfg.Network,
		"birthday": opts.BirthdayHeight,
	}).Info("wallet created")
	return w, nil
}

func (m *WalletManager) exists(name string) bool {
	info, err := os.Stat(m.walletDir(name))
	if err != nil {
		if !errors.Is(err, os.ErrNotExist) {
			log.WithError(err).Warnf("failed to stat dir of wallet %s", name)
		}
		return false
	}
	return info.IsDir()
}

func (m *WalletManager) walletDir(name string) string {
	return filepath.Join(m.cfg.Datadir, walletsDir, name)
}

func validateWalletName(name string) error {
	if !walletNameRegexp.MatchString(name) {
		return ErrInvalidWalletName
	}
	return nil
}

func sameNetwork(a, b string) bool {
	pa, err := wallet.NetworkByName(a)
	if err != nil {
		return false
	}
	pb, err := wallet.NetworkByName(b)
	if err != nil {
		return false
	}
	return pa.Name == pb.Name
}
