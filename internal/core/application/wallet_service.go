package application

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/btcsuite/btcd/btcutil"
	"github.com/lightningnetwork/lnd/clock"
	log "github.com/sirupsen/logrus"
	"github.com/tdex-network/tdex-wallet/internal/core/domain"
	"github.com/tdex-network/tdex-wallet/internal/core/ports"
)

const (
	// DefaultNodeStatusTTL is how long the data source tip returned by
	// NodeStatus is cached.
	DefaultNodeStatusTTL = 10 * time.Second
)

// WalletConfig holds the settings shared by all the wallets.
type WalletConfig struct {
	GapLimit         uint32
	MinConfirmations uint32
	// DustRelayFee is the relay fee rate, in sats/kvB, used to tell dust
	// outputs.
	DustRelayFee  btcutil.Amount
	MaxIterations int
	Strategy      domain.SelectionStrategy
	NodeStatusTTL time.Duration
	Sync          ChainSyncConfig
}

// AddressInfo lists the addresses returned so far by the default account.
type AddressInfo struct {
	Receive []string
	Change  []string
}

// NodeStatus is the view of the data source.
type NodeStatus struct {
	TipHeight uint32
	Reachable bool
	CheckedAt time.Time
}

// SendResult ...
type SendResult struct {
	TxID   string
	Fee    uint64
	Amount uint64
	Change *domain.Change
}

// WalletState is the top level service of a single wallet, exposing the
// operations used by the UI.
type WalletState struct {
	store   *walletStore
	source  ports.DataSource
	sync    *ChainSync
	builder *TxBuilder
	signer  *TxSigner
	events  *listeners
	clock   clock.Clock
	retry   RetryConfig

	nodeStatusTTL time.Duration
	nodeLock      *sync.Mutex
	nodeStatus    *NodeStatus

	closeOnce *sync.Once
	closed    chan struct{}
}

// NewWalletState loads the wallet persisted in the given repositories. The
// returned wallet is locked.
func NewWalletState(
	repo ports.RepoManager, source ports.DataSource, cfg WalletConfig,
) (*WalletState, error) {
	if repo == nil {
		return nil, ErrMissingRepoManager
	}
	if source == nil {
		return nil, ErrMissingDataSource
	}
	ctx := context.Background()

	v, err := repo.VaultRepository().GetVault(ctx)
	if err != nil {
		return nil, err
	}
	vault, err := domain.LoadKeyVault(v, cfg.GapLimit)
	if err != nil {
		return nil, err
	}

	state, err := repo.SyncRepository().GetSyncState(ctx)
	if err != nil {
		return nil, err
	}
	if state == nil {
		state = domain.NewSyncState(v.BirthdayHeight, cfg.Sync.AncestryDepth)
	}
	if state.Status != domain.SyncStatusCorrupt {
		state.Status = domain.SyncStatusIdle
	}

	outputs := domain.NewOutputSet(cfg.MinConfirmations)
	persisted, err := repo.OutputRepository().GetAllOutputs(ctx)
	if err != nil {
		return nil, err
	}
	if err := outputs.Restore(persisted, state.Cursor.Height); err != nil {
		return nil, fmt.Errorf("%w: %s", domain.ErrDataCorrupt, err)
	}

	return newWalletState(repo, source, vault, outputs, state, cfg), nil
}

func newWalletState(
	repo ports.RepoManager, source ports.DataSource, vault *domain.KeyVault,
	outputs *domain.OutputSet, state *domain.SyncState, cfg WalletConfig,
) *WalletState {
	clk := cfg.Sync.Clock
	if clk == nil {
		clk = clock.NewDefaultClock()
		cfg.Sync.Clock = clk
	}
	ttl := cfg.NodeStatusTTL
	if ttl <= 0 {
		ttl = DefaultNodeStatusTTL
	}
	builderOpts := []TxBuilderOption{
		WithMaxIterations(cfg.MaxIterations),
		WithSelectionStrategy(cfg.Strategy),
	}
	if cfg.DustRelayFee > 0 {
		builderOpts = append(builderOpts, WithDustRelayFee(cfg.DustRelayFee))
	}

	store := newWalletStore(repo, vault, outputs)
	events := newListeners()
	return &WalletState{
		store:         store,
		source:        source,
		sync:          newChainSync(store, source, state, events, cfg.Sync),
		builder:       NewTxBuilder(outputs, vault, builderOpts...),
		signer:        NewTxSigner(vault),
		events:        events,
		clock:         clk,
		retry:         cfg.Sync.Retry.withDefaults(),
		nodeStatusTTL: ttl,
		nodeLock:      &sync.Mutex{},
		closeOnce:     &sync.Once{},
		closed:        make(chan struct{}),
	}
}

// Unlock decrypts the wallet seed with the given passphrase.
func (w *WalletState) Unlock(passphrase string) error {
	if err := w.checkOpen(); err != nil {
		return err
	}
	if err := w.store.vault.Unlock(passphrase); err != nil {
		return err
	}
	log.Debug("wallet unlocked")
	return nil
}

// Lock wipes the decrypted seed from memory.
func (w *WalletState) Lock() {
	w.store.vault.Lock()
	log.Debug("wallet locked")
}

// IsLocked ...
func (w *WalletState) IsLocked() bool {
	return w.store.vault.IsLocked()
}

// VerifyPassphrase ...
func (w *WalletState) VerifyPassphrase(passphrase string) error {
	return w.store.vault.VerifyPassphrase(passphrase)
}

// ChangePassphrase re-encrypts the seed with the new passphrase.
func (w *WalletState) ChangePassphrase(
	ctx context.Context, currentPassphrase, newPassphrase string,
) error {
	if err := w.checkOpen(); err != nil {
		return err
	}
	if err := w.store.vault.ChangePassphrase(
		currentPassphrase, newPassphrase,
	); err != nil {
		return err
	}
	return w.store.persistVault(ctx)
}

// NewAddress returns a never used address of the given chain of the default
// account.
func (w *WalletState) NewAddress(ctx context.Context, chain uint32) (string, error) {
	if err := w.checkOpen(); err != nil {
		return "", err
	}
	key, err := w.store.vault.NextAddress(domain.DefaultAccount, chain)
	if err != nil {
		return "", err
	}
	if err := w.store.persistVault(ctx); err != nil {
		return "", err
	}
	return key.Address, nil
}

// Addresses returns the receive and change addresses returned so far.
func (w *WalletState) Addresses() (*AddressInfo, error) {
	receive, err := w.store.vault.Addresses(domain.DefaultAccount, domain.ExternalChain)
	if err != nil {
		return nil, err
	}
	change, err := w.store.vault.Addresses(domain.DefaultAccount, domain.InternalChain)
	if err != nil {
		return nil, err
	}
	return &AddressInfo{Receive: receive, Change: change}, nil
}

// Balance ...
func (w *WalletState) Balance() domain.Balance {
	return w.store.outputs.Balance()
}

// ListOutputs returns the unspent outputs of the wallet.
func (w *WalletState) ListOutputs() []domain.Output {
	return w.store.outputs.Unspents()
}

// History returns the wallet transactions, newest first.
func (w *WalletState) History(ctx context.Context) ([]*domain.TxRecord, error) {
	return w.store.repo.TransactionRepository().GetAllTransactions(ctx)
}

// SyncStatus ...
func (w *WalletState) SyncStatus() SyncInfo {
	return w.sync.Status()
}

// ChainSync returns the sync service of the wallet.
func (w *WalletState) ChainSync() *ChainSync {
	return w.sync
}

// Sync runs a poll of the data source.
func (w *WalletState) Sync(ctx context.Context) (*SyncResult, error) {
	if err := w.checkOpen(); err != nil {
		return nil, err
	}
	return w.sync.Poll(ctx)
}

// Rescan syncs the wallet again from the given height.
func (w *WalletState) Rescan(ctx context.Context, height uint32) (*SyncResult, error) {
	if err := w.checkOpen(); err != nil {
		return nil, err
	}
	return w.sync.Rescan(ctx, height)
}

// Run keeps the wallet in sync until the context is canceled or the wallet
// closed.
func (w *WalletState) Run(ctx context.Context) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()
	go func() {
		select {
		case <-w.closed:
			cancel()
		case <-ctx.Done():
		}
	}()
	return w.sync.Run(ctx)
}

// Subscribe returns a channel receiving the wallet events and the func to
// stop receiving them. Slow subscribers are dropped and their channel
// closed.
func (w *WalletState) Subscribe() (<-chan Event, func()) {
	return w.events.add()
}

// NodeStatus returns the chain tip known to the data source. The result is
// cached for a short time.
func (w *WalletState) NodeStatus(ctx context.Context) (*NodeStatus, error) {
	w.nodeLock.Lock()
	defer w.nodeLock.Unlock()

	now := w.clock.Now()
	if w.nodeStatus != nil && now.Sub(w.nodeStatus.CheckedAt) < w.nodeStatusTTL {
		status := *w.nodeStatus
		return &status, nil
	}

	tip, err := w.source.GetTipHeight(ctx)
	if err != nil && !domain.IsRetryable(err) {
		return nil, err
	}
	w.nodeStatus = &NodeStatus{
		TipHeight: tip,
		Reachable: err == nil,
		CheckedAt: now,
	}
	status := *w.nodeStatus
	return &status, nil
}

// Send builds, signs and broadcasts a transaction paying the given
// recipients at the given fee rate, in sats/kvB.
// If the network definitely rejects the transaction, its inputs are made
// spendable again and the error is returned. If the broadcast keeps failing
// for transient reasons, the inputs stay spent, the transaction is stored to
// be broadcasted again at every sync, and its txid is returned along with
// domain.ErrBroadcastPending.
func (w *WalletState) Send(
	ctx context.Context, recipients []domain.Recipient, feeRate btcutil.Amount,
) (*SendResult, error) {
	if err := w.checkOpen(); err != nil {
		return nil, err
	}
	if w.store.vault.IsLocked() {
		return nil, domain.ErrVaultLocked
	}

	unsigned, err := w.builder.Build(recipients, feeRate)
	if err != nil {
		return nil, err
	}
	release := func() {
		if err := w.store.outputs.Release(unsigned.ReservationID); err != nil {
			log.WithError(err).Warn("failed to release reservation")
		}
	}

	if unsigned.Change != nil {
		if err := w.store.persistVault(ctx); err != nil {
			release()
			return nil, err
		}
	}

	signed, err := w.signer.Sign(unsigned)
	if err != nil {
		release()
		return nil, err
	}
	txid := signed.TxID()
	result := &SendResult{
		TxID:   txid,
		Fee:    unsigned.Fee,
		Amount: unsigned.SentAmount(),
		Change: unsigned.Change,
	}

	err = retry(ctx, w.clock, w.retry, "broadcast", func() error {
		broadcastedTxid, err := w.source.Broadcast(ctx, signed.Bytes())
		if err == nil && broadcastedTxid != txid {
			log.Warnf(
				"data source returned txid %s for transaction %s",
				broadcastedTxid, txid,
			)
		}
		return err
	})

	outcomeUnknown := err != nil &&
		(domain.IsRetryable(err) || errors.Is(err, context.Canceled) ||
			errors.Is(err, context.DeadlineExceeded))
	if err != nil && !outcomeUnknown {
		release()
		log.WithError(err).Warnf("transaction %s rejected", txid)
		return nil, err
	}

	if _, consumeErr := w.store.outputs.Consume(
		unsigned.ReservationID, txid,
	); consumeErr != nil {
		log.WithError(consumeErr).Warnf(
			"failed to consume inputs of transaction %s", txid,
		)
	}
	record := domain.NewSentTxRecord(signed)
	record.Attempts = 1
	if outcomeUnknown {
		record.MarkBroadcastPending()
	}

	// The context might be the reason of the failure.
	storeCtx := ctx
	if ctx.Err() != nil {
		storeCtx = context.Background()
	}
	if _, persistErr := w.store.repo.RunTransaction(
		storeCtx, !readOnlyTx, func(ctx context.Context) (interface{}, error) {
			if err := w.store.persistOutputs(ctx, keysOf(unsigned.Inputs)); err != nil {
				return nil, err
			}
			return nil, w.store.repo.TransactionRepository().
				AddOrUpdateTransactions(ctx, []*domain.TxRecord{record})
		},
	); persistErr != nil {
		log.WithError(persistErr).Errorf(
			"failed to store transaction %s, it will be recovered by sync", txid,
		)
	}

	event := Event{Type: EventTxBroadcasted, TxID: txid, Balance: w.Balance()}
	if outcomeUnknown {
		event.Type = EventTxBroadcastPending
		w.events.broadcast(event)
		log.WithError(err).Warnf("broadcast of transaction %s is pending", txid)
		return result, fmt.Errorf("%w: %s", domain.ErrBroadcastPending, err)
	}
	w.events.broadcast(event)

	log.WithFields(log.Fields{
		"txid":   txid,
		"amount": result.Amount,
		"fee":    result.Fee,
	}).Info("transaction broadcasted")
	return result, nil
}

// Close locks the wallet, stops the sync loop, closes the subscriptions and
// the storage.
func (w *WalletState) Close() {
	w.closeOnce.Do(func() {
		close(w.closed)
		w.store.vault.Lock()
		w.events.clear()
		w.store.repo.Close()
	})
}

func (w *WalletState) checkOpen() error {
	select {
	case <-w.closed:
		return ErrWalletClosed
	default:
		return nil
	}
}
