package application_test

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/lightningnetwork/lnd/clock"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"github.com/tdex-network/tdex-wallet/internal/core/application"
	"github.com/tdex-network/tdex-wallet/internal/core/domain"
)

var errRejected = fmt.Errorf("%w: bad-txns-inputs-missingorspent", domain.ErrTxRejected)

// newFundedWallet returns a wallet synced with the given chain, owning one
// confirmed output per amount.
func newFundedWallet(
	t *testing.T, chain *fakeChain, amounts ...uint64,
) *application.WalletState {
	tip, err := chain.GetTipHeight(context.Background())
	require.NoError(t, err)

	w := newTestWallet(t, chain, tip)
	total := uint64(0)
	for _, amount := range amounts {
		chain.pay(receiveScript(t, w), amount)
		total += amount
	}
	syncWallet(t, w)
	require.Equal(t, total, w.Balance().Spendable)
	return w
}

func TestSend(t *testing.T) {
	t.Parallel()

	chain := newFakeChain(10)
	w := newFundedWallet(t, chain, 100000)
	ctx := context.Background()
	events, unsubscribe := w.Subscribe()
	defer unsubscribe()

	result, err := w.Send(ctx, []domain.Recipient{{
		Address: foreignAddress(t),
		Amount:  30000,
	}}, 1000)
	require.NoError(t, err)
	require.NotNil(t, result)
	require.Equal(t, uint64(30000), result.Amount)
	require.Equal(t, uint64(141), result.Fee)
	require.NotNil(t, result.Change)
	require.Equal(t, uint64(69859), result.Change.Amount)

	txs := chain.txs()
	require.Len(t, txs, 1)
	require.Equal(t, result.TxID, txs[0].TxHash().String())
	require.Len(t, txs[0].TxIn[0].Witness, 2)

	// The input is spent, the change is not known until seen in mempool.
	require.Equal(t, domain.Balance{}, w.Balance())
	rec := findRecord(t, w, result.TxID)
	require.NotNil(t, rec)
	require.Equal(t, domain.TxDirectionSent, rec.Direction)
	require.Equal(t, uint64(30000), rec.Amount)
	require.Equal(t, uint64(141), rec.Fee)
	require.Equal(t, domain.TxStatusPending, rec.Status)
	require.Equal(t, application.EventTxBroadcasted, (<-events).Type)

	syncWallet(t, w)
	require.Equal(t, domain.Balance{Pending: 69859, Total: 69859}, w.Balance())

	height := chain.mineMempool()
	syncWallet(t, w)
	require.Equal(t, domain.Balance{Spendable: 69859, Total: 69859}, w.Balance())

	rec = findRecord(t, w, result.TxID)
	require.Equal(t, domain.TxStatusConfirmed, rec.Status)
	require.Equal(t, height, *rec.Height)
	require.Equal(t, uint64(30000), rec.Amount)

	addresses, err := w.Addresses()
	require.NoError(t, err)
	require.Len(t, addresses.Receive, 1)
	require.Equal(t, []string{result.Change.Address}, addresses.Change)
}

func TestSendLocked(t *testing.T) {
	t.Parallel()

	chain := newFakeChain(10)
	w := newFundedWallet(t, chain, 100000)
	w.Lock()
	require.True(t, w.IsLocked())

	result, err := w.Send(context.Background(), []domain.Recipient{{
		Address: foreignAddress(t),
		Amount:  30000,
	}}, 1000)
	require.ErrorIs(t, err, domain.ErrVaultLocked)
	require.Nil(t, result)
	require.Empty(t, chain.txs())
	require.Equal(t, domain.Balance{Spendable: 100000, Total: 100000}, w.Balance())
}

func TestConcurrentSends(t *testing.T) {
	t.Parallel()

	chain := newFakeChain(10)
	w := newFundedWallet(t, chain, 100000, 100000)

	wg := &sync.WaitGroup{}
	errs := make(chan error, 3)
	for i := 0; i < 3; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := w.Send(context.Background(), []domain.Recipient{{
				Script: foreignScript,
				Amount: 90000,
			}}, 1000)
			errs <- err
		}()
	}
	wg.Wait()
	close(errs)

	failures := 0
	for err := range errs {
		if err != nil {
			require.ErrorIs(t, err, domain.ErrInsufficientFunds)
			failures++
		}
	}
	require.Equal(t, 1, failures)

	// No output is spent twice.
	txs := chain.txs()
	require.Len(t, txs, 2)
	require.NotEqual(t, txs[0].TxIn[0].PreviousOutPoint, txs[1].TxIn[0].PreviousOutPoint)
	require.Equal(t, domain.Balance{}, w.Balance())
}

func TestSendRejected(t *testing.T) {
	t.Parallel()

	chain := newFakeChain(10)
	w := newFundedWallet(t, chain, 100000)
	chain.setBroadcastErr(errRejected)

	result, err := w.Send(context.Background(), []domain.Recipient{{
		Script: foreignScript,
		Amount: 30000,
	}}, 1000)
	require.ErrorIs(t, err, domain.ErrTxRejected)
	require.False(t, domain.IsOutcomeUnknown(err))
	require.Nil(t, result)

	require.Equal(t, domain.Balance{Spendable: 100000, Total: 100000}, w.Balance())
	history, err := w.History(context.Background())
	require.NoError(t, err)
	require.Len(t, history, 1)
	require.Equal(t, domain.TxDirectionReceived, history[0].Direction)
}

func TestSendBroadcastPending(t *testing.T) {
	t.Parallel()

	chain := newFakeChain(10)
	w := newFundedWallet(t, chain, 100000)
	chain.setBroadcastErr(errTransient)

	result, err := w.Send(context.Background(), []domain.Recipient{{
		Script: foreignScript,
		Amount: 30000,
	}}, 1000)
	require.ErrorIs(t, err, domain.ErrBroadcastPending)
	require.True(t, domain.IsOutcomeUnknown(err))
	require.NotNil(t, result)
	require.NotEmpty(t, result.TxID)

	// The transaction may have reached the network: inputs stay spent.
	require.Equal(t, domain.Balance{}, w.Balance())
	rec := findRecord(t, w, result.TxID)
	require.NotNil(t, rec)
	require.Equal(t, domain.TxStatusBroadcastPending, rec.Status)
	require.Equal(t, 1, rec.Attempts)

	// Still failing: the record waits for the next sync.
	syncResult := syncWallet(t, w)
	require.Zero(t, syncResult.Rebroadcasted)
	rec = findRecord(t, w, result.TxID)
	require.Equal(t, domain.TxStatusBroadcastPending, rec.Status)
	require.Equal(t, 2, rec.Attempts)

	chain.setBroadcastErr(nil)
	syncResult = syncWallet(t, w)
	require.Equal(t, 1, syncResult.Rebroadcasted)
	rec = findRecord(t, w, result.TxID)
	require.Equal(t, domain.TxStatusPending, rec.Status)
	require.Equal(t, 3, rec.Attempts)
	require.Len(t, chain.txs(), 1)

	chain.mineMempool()
	syncWallet(t, w)
	require.Equal(t, domain.Balance{Spendable: 69859, Total: 69859}, w.Balance())
	require.Equal(t, domain.TxStatusConfirmed, findRecord(t, w, result.TxID).Status)
}

func TestSendBroadcastPendingThenRejected(t *testing.T) {
	t.Parallel()

	chain := newFakeChain(10)
	w := newFundedWallet(t, chain, 100000)
	events, unsubscribe := w.Subscribe()
	defer unsubscribe()
	chain.setBroadcastErr(errTransient)

	result, err := w.Send(context.Background(), []domain.Recipient{{
		Script: foreignScript,
		Amount: 30000,
	}}, 1000)
	require.ErrorIs(t, err, domain.ErrBroadcastPending)
	require.Equal(t, application.EventTxBroadcastPending, (<-events).Type)

	chain.setBroadcastErr(errRejected)
	syncWallet(t, w)

	rec := findRecord(t, w, result.TxID)
	require.Equal(t, domain.TxStatusFailed, rec.Status)
	require.Equal(t, domain.Balance{Spendable: 100000, Total: 100000}, w.Balance())

	failed := false
	for len(events) > 0 {
		if event := <-events; event.Type == application.EventTxFailed {
			failed = true
			require.Equal(t, result.TxID, event.TxID)
		}
	}
	require.True(t, failed)
}

func TestSyncDiscoversSendsAfterRestore(t *testing.T) {
	t.Parallel()

	chain := newFakeChain(10)
	w := newFundedWallet(t, chain, 100000)
	result, err := w.Send(context.Background(), []domain.Recipient{{
		Script: foreignScript,
		Amount: 30000,
	}}, 1000)
	require.NoError(t, err)
	chain.mineMempool()

	// Same mnemonic, another device.
	restored := newTestWallet(t, chain, 10)
	syncWallet(t, restored)
	require.Equal(t, domain.Balance{Spendable: 69859, Total: 69859}, restored.Balance())

	history, err := restored.History(context.Background())
	require.NoError(t, err)
	require.Len(t, history, 2)

	rec := findRecord(t, restored, result.TxID)
	require.NotNil(t, rec)
	require.Equal(t, domain.TxDirectionSent, rec.Direction)
	require.Equal(t, domain.TxStatusConfirmed, rec.Status)
	// The fee can't be told apart from the sent amount.
	require.Equal(t, uint64(30141), rec.Amount)
}

func TestPassphrase(t *testing.T) {
	t.Parallel()

	chain := newFakeChain(10)
	w := newTestWallet(t, chain, 10)
	ctx := context.Background()
	newPassphrase := "An0th3rS3cr3tP4ssw0rd!"

	require.ErrorIs(t, w.VerifyPassphrase("wrong"), domain.ErrWrongPassphrase)
	require.NoError(t, w.VerifyPassphrase(testPassphrase))

	require.ErrorIs(
		t, w.ChangePassphrase(ctx, "wrong", newPassphrase), domain.ErrWrongPassphrase,
	)
	require.NoError(t, w.ChangePassphrase(ctx, testPassphrase, newPassphrase))

	w.Lock()
	require.ErrorIs(t, w.Unlock(testPassphrase), domain.ErrWrongPassphrase)
	require.True(t, w.IsLocked())
	require.NoError(t, w.Unlock(newPassphrase))
	require.False(t, w.IsLocked())
}

func TestNewAddress(t *testing.T) {
	t.Parallel()

	chain := newFakeChain(10)
	w := newTestWallet(t, chain, 10)
	ctx := context.Background()

	first, err := w.NewAddress(ctx, domain.ExternalChain)
	require.NoError(t, err)
	second, err := w.NewAddress(ctx, domain.ExternalChain)
	require.NoError(t, err)
	change, err := w.NewAddress(ctx, domain.InternalChain)
	require.NoError(t, err)
	require.NotEqual(t, first, second)

	addresses, err := w.Addresses()
	require.NoError(t, err)
	require.Equal(t, []string{first, second}, addresses.Receive)
	require.Equal(t, []string{change}, addresses.Change)

	_, err = w.NewAddress(ctx, 2)
	require.ErrorIs(t, err, domain.ErrInvalidPath)
}

func TestNodeStatus(t *testing.T) {
	t.Parallel()

	source := &mockDataSource{}
	testClock := clock.NewTestClock(time.Unix(1700000000, 0))
	cfg := testWalletConfig()
	cfg.NodeStatusTTL = time.Minute
	cfg.Sync.Clock = testClock
	w := newTestWallet(t, source, 0, cfg)
	ctx := context.Background()

	source.On("GetTipHeight", mock.Anything).Return(uint32(100), nil).Once()
	source.On("GetTipHeight", mock.Anything).Return(uint32(0), errTransient).Once()
	source.On("GetTipHeight", mock.Anything).
		Return(uint32(0), fmt.Errorf("unexpected")).Once()

	status, err := w.NodeStatus(ctx)
	require.NoError(t, err)
	require.True(t, status.Reachable)
	require.Equal(t, uint32(100), status.TipHeight)

	// Cached.
	testClock.SetTime(testClock.Now().Add(30 * time.Second))
	status, err = w.NodeStatus(ctx)
	require.NoError(t, err)
	require.Equal(t, uint32(100), status.TipHeight)
	source.AssertNumberOfCalls(t, "GetTipHeight", 1)

	testClock.SetTime(testClock.Now().Add(time.Minute))
	status, err = w.NodeStatus(ctx)
	require.NoError(t, err)
	require.False(t, status.Reachable)
	source.AssertNumberOfCalls(t, "GetTipHeight", 2)

	testClock.SetTime(testClock.Now().Add(time.Minute))
	_, err = w.NodeStatus(ctx)
	require.Error(t, err)
}

func TestClose(t *testing.T) {
	t.Parallel()

	chain := newFakeChain(10)
	w := newTestWallet(t, chain, 10)
	events, _ := w.Subscribe()

	w.Close()
	w.Close()

	require.True(t, w.IsLocked())
	_, ok := <-events
	require.False(t, ok)

	_, err := w.Sync(context.Background())
	require.ErrorIs(t, err, application.ErrWalletClosed)
	_, err = w.NewAddress(context.Background(), domain.ExternalChain)
	require.ErrorIs(t, err, application.ErrWalletClosed)
	require.ErrorIs(t, w.Unlock(testPassphrase), application.ErrWalletClosed)

	// Subscribing after close returns a closed channel.
	events, _ = w.Subscribe()
	_, ok = <-events
	require.False(t, ok)
}

func TestSlowSubscriberIsDropped(t *testing.T) {
	t.Parallel()

	chain := newFakeChain(10)
	w := newTestWallet(t, chain, 10)
	slow, _ := w.Subscribe()

	// Every applied block publishes one event.
	for i := 0; i < 70; i++ {
		chain.pay(foreignScript, 1000)
	}
	syncWallet(t, w)

	count := 0
	for range slow {
		count++
	}
	require.Equal(t, 64, count)

	// Other subscribers are not affected.
	events, unsubscribe := w.Subscribe()
	defer unsubscribe()
	chain.pay(receiveScript(t, w), 1000)
	syncWallet(t, w)
	require.Equal(t, application.EventOutputReceived, (<-events).Type)
	require.Equal(t, application.EventBlockApplied, (<-events).Type)
}
