package config

import (
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"time"

	"github.com/btcsuite/btcd/btcutil"
	"github.com/spf13/viper"
	"github.com/tdex-network/tdex-wallet/internal/core/application"
	"github.com/tdex-network/tdex-wallet/internal/core/ports"
	"github.com/tdex-network/tdex-wallet/pkg/wallet"
)

const (
	// DatadirKey is the local data directory to store the wallets
	DatadirKey = "DATADIR"
	// NetworkKey is the bitcoin network, one of mainnet, testnet, signet and regtest
	NetworkKey = "NETWORK"
	// LogLevelKey are the different logging levels. For reference on the values https://godoc.org/github.com/sirupsen/logrus#Level
	LogLevelKey = "LOG_LEVEL"
	// EsploraURLKey is the base url of the esplora REST API used as data source
	EsploraURLKey = "ESPLORA_URL"
	// SyncIntervalKey is the time between two polls of the data source
	SyncIntervalKey = "SYNC_INTERVAL"
	// MinConfirmationsKey is the number of confirmations for an output to be spendable
	MinConfirmationsKey = "MIN_CONFIRMATIONS"
	// GapLimitKey is the number of unused addresses watched past the last used one
	GapLimitKey = "GAP_LIMIT"
	// FeeRateKey is the default fee rate in sats per vbyte used for sends
	FeeRateKey = "FEE_RATE"
	// DustRelayFeeKey is the relay fee in sats per kvbyte used for the dust
	// threshold, 0 means the network default
	DustRelayFeeKey = "DUST_RELAY_FEE"
	// RetryMaxAttemptsKey is the number of attempts for transient data source failures
	RetryMaxAttemptsKey = "RETRY_MAX_ATTEMPTS"
	// RetryBaseDelayKey is the backoff delay before the first retry
	RetryBaseDelayKey = "RETRY_BASE_DELAY"
	// RetryMaxDelayKey caps the backoff delay
	RetryMaxDelayKey = "RETRY_MAX_DELAY"
	// RequestTimeoutKey is the timeout of a single request to the data source
	RequestTimeoutKey = "REQUEST_TIMEOUT"
	// ExplorerRateLimitKey is the max number of requests per second to the
	// data source, 0 means unlimited
	ExplorerRateLimitKey = "EXPLORER_RATE_LIMIT"
	// PruneDepthKey is the depth after which spent outputs are pruned, 0 disables pruning
	PruneDepthKey = "PRUNE_DEPTH"
	// StatsAddressKey is the <host:port> where the daemon serves prometheus
	// metrics, empty disables them
	StatsAddressKey = "STATS_ADDRESS"
	// StatsIntervalKey defines interval for logging runtime statistics
	StatsIntervalKey = "STATS_INTERVAL"

	WalletsLocation = "wallets"
	StatsLocation   = "stats"

	defaultNetwork    = "mainnet"
	defaultEsploraURL = "https://blockstream.info/api"
)

var vip *viper.Viper
var defaultDatadir = btcutil.AppDataDir("tdex-wallet", false)

func InitConfig() error {
	vip = viper.New()
	vip.SetEnvPrefix("TDEX_WALLET")
	vip.AutomaticEnv()

	vip.SetDefault(DatadirKey, defaultDatadir)
	vip.SetDefault(NetworkKey, defaultNetwork)
	vip.SetDefault(LogLevelKey, 4)
	vip.SetDefault(EsploraURLKey, defaultEsploraURL)
	vip.SetDefault(SyncIntervalKey, 30*time.Second)
	vip.SetDefault(MinConfirmationsKey, 1)
	vip.SetDefault(GapLimitKey, 20)
	vip.SetDefault(FeeRateKey, 1)
	vip.SetDefault(DustRelayFeeKey, 0)
	vip.SetDefault(RetryMaxAttemptsKey, application.DefaultRetryMaxAttempts)
	vip.SetDefault(RetryBaseDelayKey, application.DefaultRetryBaseDelay)
	vip.SetDefault(RetryMaxDelayKey, application.DefaultRetryMaxDelay)
	vip.SetDefault(RequestTimeoutKey, 30*time.Second)
	vip.SetDefault(ExplorerRateLimitKey, 0)
	vip.SetDefault(PruneDepthKey, 0)
	vip.SetDefault(StatsIntervalKey, 600*time.Second)

	if err := validate(); err != nil {
		return fmt.Errorf("error while validating config: %s", err)
	}

	if err := initDatadir(); err != nil {
		return fmt.Errorf("error while creating datadir: %s", err)
	}

	return nil
}

func GetString(key string) string {
	return vip.GetString(key)
}

func GetInt(key string) int {
	return vip.GetInt(key)
}

func GetUint32(key string) uint32 {
	return vip.GetUint32(key)
}

func GetDuration(key string) time.Duration {
	return vip.GetDuration(key)
}

func GetDatadir() string {
	return GetString(DatadirKey)
}

func GetNetwork() string {
	return GetString(NetworkKey)
}

// GetRetryConfig ...
func GetRetryConfig() application.RetryConfig {
	return application.RetryConfig{
		MaxAttempts: GetInt(RetryMaxAttemptsKey),
		BaseDelay:   GetDuration(RetryBaseDelayKey),
		MaxDelay:    GetDuration(RetryMaxDelayKey),
	}
}

// GetFeeRate returns the default fee rate in sats per kvbyte.
func GetFeeRate() btcutil.Amount {
	return btcutil.Amount(GetInt(FeeRateKey)) * 1000
}

// GetAppConfig returns the config of the application layer using the given
// data source.
func GetAppConfig(source ports.DataSource) *application.Config {
	return &application.Config{
		Datadir:          GetDatadir(),
		Network:          GetNetwork(),
		DataSource:       source,
		GapLimit:         GetUint32(GapLimitKey),
		MinConfirmations: GetUint32(MinConfirmationsKey),
		DustRelayFee:     btcutil.Amount(GetInt(DustRelayFeeKey)),
		SyncInterval:     GetDuration(SyncIntervalKey),
		PruneDepth:       GetUint32(PruneDepthKey),
		Retry:            GetRetryConfig(),
	}
}

func validate() error {
	datadir := GetString(DatadirKey)
	if len(datadir) <= 0 {
		return fmt.Errorf("missing datadir")
	}

	if _, err := wallet.NetworkByName(GetNetwork()); err != nil {
		return err
	}

	esploraURL := GetString(EsploraURLKey)
	if u, err := url.Parse(esploraURL); err != nil || u.Scheme == "" || u.Host == "" {
		return fmt.Errorf("%s must be a valid url", EsploraURLKey)
	}

	if GetDuration(SyncIntervalKey) < time.Second {
		return fmt.Errorf("%s must be at least 1s", SyncIntervalKey)
	}
	if GetInt(MinConfirmationsKey) < 1 {
		return fmt.Errorf("%s must be at least 1", MinConfirmationsKey)
	}
	if GetInt(GapLimitKey) < 1 {
		return fmt.Errorf("%s must be at least 1", GapLimitKey)
	}
	if GetInt(FeeRateKey) < 1 {
		return fmt.Errorf("%s must be at least 1 sat/vbyte", FeeRateKey)
	}

	for _, key := range []string{
		DustRelayFeeKey, RetryMaxAttemptsKey, ExplorerRateLimitKey, PruneDepthKey,
	} {
		if GetInt(key) < 0 {
			return fmt.Errorf("%s must not be negative", key)
		}
	}
	for _, key := range []string{
		RetryBaseDelayKey, RetryMaxDelayKey, RequestTimeoutKey, StatsIntervalKey,
	} {
		if GetDuration(key) < 0 {
			return fmt.Errorf("%s must not be negative", key)
		}
	}

	return nil
}

func initDatadir() error {
	datadir := GetDatadir()
	if err := makeDirectoryIfNotExists(filepath.Join(datadir, WalletsLocation)); err != nil {
		return err
	}
	if GetString(StatsAddressKey) != "" {
		if err := makeDirectoryIfNotExists(filepath.Join(datadir, StatsLocation)); err != nil {
			return err
		}
	}
	return nil
}

func makeDirectoryIfNotExists(path string) error {
	if _, err := os.Stat(path); os.IsNotExist(err) {
		return os.MkdirAll(path, os.ModeDir|0755)
	}
	return nil
}
