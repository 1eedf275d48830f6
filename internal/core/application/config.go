package application

import (
	"fmt"
	"path/filepath"
	"time"

	"github.com/btcsuite/btcd/btcutil"
	log "github.com/sirupsen/logrus"
	"github.com/tdex-network/tdex-wallet/internal/core/domain"
	"github.com/tdex-network/tdex-wallet/internal/core/ports"
	dbbadger "github.com/tdex-network/tdex-wallet/internal/infrastructure/storage/db/badger"
	"github.com/tdex-network/tdex-wallet/pkg/wallet"
)

const dbDir = "db"

// Config holds the settings of the application layer and builds its
// services lazily.
type Config struct {
	Datadir          string
	Network          string
	DataSource       ports.DataSource
	GapLimit         uint32
	MinConfirmations uint32
	DustRelayFee     btcutil.Amount
	MaxIterations    int
	SyncInterval     time.Duration
	PruneDepth       uint32
	AncestryDepth    int
	Retry            RetryConfig

	manager *WalletManager
}

func (c *Config) Validate() error {
	if c.Datadir == "" {
		return fmt.Errorf("missing datadir")
	}
	if _, err := wallet.NetworkByName(c.Network); err != nil {
		return err
	}
	if c.DataSource == nil {
		return ErrMissingDataSource
	}
	if c.DustRelayFee < 0 {
		return fmt.Errorf("dust relay fee must not be negative")
	}
	if c.AncestryDepth < 0 {
		return fmt.Errorf("ancestry depth must not be negative")
	}
	if c.Retry.MaxAttempts < 0 {
		return fmt.Errorf("retry max attempts must not be negative")
	}
	return nil
}

// WalletManager returns the service handling the wallets of the datadir.
func (c *Config) WalletManager() (*WalletManager, error) {
	if c.manager == nil {
		if err := c.Validate(); err != nil {
			return nil, err
		}
		manager, err := NewWalletManager(WalletManagerConfig{
			Datadir:     c.Datadir,
			Network:     c.Network,
			Source:      c.DataSource,
			RepoFactory: badgerRepoFactory,
			Wallet:      c.walletConfig(),
		})
		if err != nil {
			return nil, err
		}
		c.manager = manager
	}
	return c.manager, nil
}

func (c *Config) walletConfig() WalletConfig {
	minConf := c.MinConfirmations
	if minConf == 0 {
		minConf = domain.DefaultMinConfirmations
	}
	return WalletConfig{
		GapLimit:         c.GapLimit,
		MinConfirmations: minConf,
		DustRelayFee:     c.DustRelayFee,
		MaxIterations:    c.MaxIterations,
		Sync: ChainSyncConfig{
			Interval:      c.SyncInterval,
			PruneDepth:    c.PruneDepth,
			AncestryDepth: c.AncestryDepth,
			Retry:         c.Retry,
		},
	}
}

func badgerRepoFactory(dir string) (ports.RepoManager, error) {
	logger := log.New()
	logger.SetLevel(log.WarnLevel)
	return dbbadger.NewRepoManager(filepath.Join(dir, dbDir), logger)
}
