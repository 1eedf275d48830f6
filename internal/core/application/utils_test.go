package application_test

import (
	"context"
	"strings"
	"testing"
	"time"

	"github.com/btcsuite/btcd/chaincfg"
	"github.com/stretchr/testify/require"
	"github.com/tdex-network/tdex-wallet/internal/core/application"
	"github.com/tdex-network/tdex-wallet/internal/core/domain"
	"github.com/tdex-network/tdex-wallet/internal/core/ports"
	dbbadger "github.com/tdex-network/tdex-wallet/internal/infrastructure/storage/db/badger"
	"github.com/tdex-network/tdex-wallet/pkg/wallet"
)

const (
	testPassphrase = "Sup3rS3cr3tP4ssw0rd!"
	testGapLimit   = 5
	testNetwork    = "regtest"
)

var (
	testMnemonic = strings.Fields(
		"abandon abandon abandon abandon abandon abandon " +
			"abandon abandon abandon abandon abandon about",
	)
	otherMnemonic = strings.Fields(
		"legal winner thank year wave sausage worth useful legal winner thank yellow",
	)

	// Script not belonging to any of the test wallets.
	foreignScript = []byte{
		0x00, 0x14, 0x01, 0x02, 0x03, 0x04, 0x05, 0x06, 0x07, 0x08, 0x09, 0x0a,
		0x0b, 0x0c, 0x0d, 0x0e, 0x0f, 0x10, 0x11, 0x12, 0x13, 0x14,
	}

	testRetry = application.RetryConfig{
		MaxAttempts: 3,
		BaseDelay:   time.Millisecond,
		MaxDelay:    2 * time.Millisecond,
	}
)

func testWalletConfig() application.WalletConfig {
	return application.WalletConfig{
		GapLimit:         testGapLimit,
		MinConfirmations: 1,
		Sync: application.ChainSyncConfig{
			Retry: testRetry,
		},
	}
}

func newTestKeyVault(
	t *testing.T, mnemonic []string, birthday uint32,
) *domain.KeyVault {
	kv, err := domain.NewKeyVault(domain.NewKeyVaultOpts{
		Mnemonic:       mnemonic,
		Passphrase:     testPassphrase,
		Network:        testNetwork,
		GapLimit:       testGapLimit,
		KDFParams:      wallet.LightKDFParams,
		BirthdayHeight: birthday,
	})
	require.NoError(t, err)
	return kv
}

// newTestWallet returns an unlocked wallet, stored in memory, syncing from
// the given birthday height.
func newTestWallet(
	t *testing.T, source ports.DataSource, birthday uint32,
	cfgs ...application.WalletConfig,
) *application.WalletState {
	return newTestWalletWithMnemonic(t, source, testMnemonic, birthday, cfgs...)
}

func newTestWalletWithMnemonic(
	t *testing.T, source ports.DataSource, mnemonic []string, birthday uint32,
	cfgs ...application.WalletConfig,
) *application.WalletState {
	cfg := testWalletConfig()
	if len(cfgs) > 0 {
		cfg = cfgs[0]
	}

	repo, err := dbbadger.NewDbManager("", nil)
	require.NoError(t, err)

	kv := newTestKeyVault(t, mnemonic, birthday)
	require.NoError(
		t, repo.VaultRepository().UpdateVault(context.Background(), kv.Vault()),
	)

	w, err := application.NewWalletState(repo, source, cfg)
	require.NoError(t, err)
	t.Cleanup(w.Close)

	require.NoError(t, w.Unlock(testPassphrase))
	return w
}

func receiveScript(t *testing.T, w *application.WalletState) []byte {
	addr, err := w.NewAddress(context.Background(), domain.ExternalChain)
	require.NoError(t, err)
	script, err := wallet.ScriptFromAddress(addr, &chaincfg.RegressionNetParams)
	require.NoError(t, err)
	return script
}

func foreignAddress(t *testing.T) string {
	addr := wallet.AddressFromScript(foreignScript, &chaincfg.RegressionNetParams)
	require.NotEmpty(t, addr)
	return addr
}

func findRecord(
	t *testing.T, w *application.WalletState, txid string,
) *domain.TxRecord {
	records, err := w.History(context.Background())
	require.NoError(t, err)
	for _, rec := range records {
		if rec.TxID == txid {
			return rec
		}
	}
	return nil
}

func syncWallet(t *testing.T, w *application.WalletState) *application.SyncResult {
	result, err := w.Sync(context.Background())
	require.NoError(t, err)
	require.NotNil(t, result)
	return result
}
