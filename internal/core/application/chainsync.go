package application

import (
	"context"
	"encoding/hex"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/lightningnetwork/lnd/clock"
	"github.com/lightningnetwork/lnd/ticker"
	log "github.com/sirupsen/logrus"
	"github.com/tdex-network/tdex-wallet/internal/core/domain"
	"github.com/tdex-network/tdex-wallet/internal/core/ports"
	"github.com/tdex-network/tdex-wallet/pkg/wallet"
	"golang.org/x/sync/singleflight"
)

const (
	DefaultSyncInterval = 30 * time.Second
	// DefaultPruneDepth is the number of blocks after which outputs spent on
	// chain are dropped.
	DefaultPruneDepth = 1000

	pollKey = "poll"
)

// errForkDetected is returned internally when the first received block does
// not link to the cursor.
var errForkDetected = errors.New("first block does not link to cursor")

// SyncResult summarizes the outcome of a poll.
type SyncResult struct {
	FromHeight    uint32
	ToHeight      uint32
	BlocksApplied int
	NewOutputs    int
	NewSpends     int
	// Rejected counts the outputs returned by the data source that don't pay
	// to any wallet script.
	Rejected      int
	ForkHeight    *uint32
	Rebroadcasted int
}

// SyncInfo is the current status of the chain sync.
type SyncInfo struct {
	Cursor       domain.SyncCursor
	TipHeight    uint32
	Status       domain.SyncStatus
	LastSyncedAt int64
	LastError    string
}

// ChainSyncConfig ...
type ChainSyncConfig struct {
	Interval      time.Duration
	PruneDepth    uint32
	AncestryDepth int
	Retry         RetryConfig
	Clock         clock.Clock
}

// ChainSync reconciles the wallet state with the blockchain data source. It
// applies the wallet related content of new blocks one at a time: a block is
// either fully applied and persisted, or not at all.
type ChainSync struct {
	store      *walletStore
	source     ports.DataSource
	events     *listeners
	clock      clock.Clock
	retry      RetryConfig
	interval   time.Duration
	pruneDepth uint32

	group    *singleflight.Group
	syncLock *sync.Mutex

	lock      *sync.RWMutex
	state     *domain.SyncState
	tipHeight uint32
	lastErr   error
}

func newChainSync(
	store *walletStore, source ports.DataSource, state *domain.SyncState,
	events *listeners, cfg ChainSyncConfig,
) *ChainSync {
	interval := cfg.Interval
	if interval <= 0 {
		interval = DefaultSyncInterval
	}
	clk := cfg.Clock
	if clk == nil {
		clk = clock.NewDefaultClock()
	}
	return &ChainSync{
		store:      store,
		source:     source,
		events:     events,
		clock:      clk,
		retry:      cfg.Retry.withDefaults(),
		interval:   interval,
		pruneDepth: cfg.PruneDepth,
		group:      &singleflight.Group{},
		syncLock:   &sync.Mutex{},
		lock:       &sync.RWMutex{},
		state:      state,
		tipHeight:  state.Cursor.Height,
	}
}

// Poll fetches and applies the blocks since the cursor, then the mempool
// activity of the wallet scripts. Concurrent calls share the same run.
// Transient failures are retried with backoff and eventually returned
// wrapped in domain.ErrSyncStalled. Blocks fully applied before any failure
// are kept.
func (s *ChainSync) Poll(ctx context.Context) (*SyncResult, error) {
	res, err, _ := s.group.Do(pollKey, func() (interface{}, error) {
		return s.poll(ctx)
	})
	result, _ := res.(*SyncResult)
	return result, err
}

// Rescan moves the cursor back to the given height, reverts everything
// observed above it and syncs again from there.
func (s *ChainSync) Rescan(ctx context.Context, height uint32) (*SyncResult, error) {
	if err := s.reset(ctx, height); err != nil {
		return nil, err
	}
	log.Infof("rescanning blockchain from height %d", height)
	return s.Poll(ctx)
}

// Run polls the data source at every tick until the context is canceled.
func (s *ChainSync) Run(ctx context.Context) error {
	t := ticker.New(s.interval)
	t.Resume()
	defer t.Stop()

	s.runOnce(ctx)
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-t.Ticks():
			s.runOnce(ctx)
		}
	}
}

// Status ...
func (s *ChainSync) Status() SyncInfo {
	s.lock.RLock()
	defer s.lock.RUnlock()

	info := SyncInfo{
		Cursor:       s.state.Cursor,
		TipHeight:    s.tipHeight,
		Status:       s.state.Status,
		LastSyncedAt: s.state.LastSyncedAt,
	}
	if s.lastErr != nil {
		info.LastError = s.lastErr.Error()
	}
	return info
}

func (s *ChainSync) runOnce(ctx context.Context) {
	result, err := s.Poll(ctx)
	if err != nil {
		if ctx.Err() != nil {
			return
		}
		if errors.Is(err, domain.ErrDataCorrupt) {
			log.WithError(err).Error("sync halted, rescan required")
			return
		}
		log.WithError(err).Warn("sync failed")
		return
	}
	if result.BlocksApplied > 0 || result.ForkHeight != nil {
		log.WithFields(log.Fields{
			"from":    result.FromHeight,
			"to":      result.ToHeight,
			"blocks":  result.BlocksApplied,
			"outputs": result.NewOutputs,
			"spends":  result.NewSpends,
		}).Info("wallet synced")
	}
}

func (s *ChainSync) poll(ctx context.Context) (*SyncResult, error) {
	s.syncLock.Lock()
	defer s.syncLock.Unlock()

	if s.Status().Status == domain.SyncStatusCorrupt {
		return nil, fmt.Errorf("%w: %s", domain.ErrDataCorrupt, s.Status().LastError)
	}

	result := &SyncResult{FromHeight: s.cursor().Height}
	s.setStatus(domain.SyncStatusSyncing, nil)

	err := retry(ctx, s.clock, s.retry, "sync", func() error {
		return s.syncOnce(ctx, result)
	})
	result.ToHeight = s.cursor().Height

	switch {
	case err == nil:
		s.setStatus(domain.SyncStatusIdle, nil)
	case domain.IsRetryable(err):
		err = fmt.Errorf("%w: %s", domain.ErrSyncStalled, err)
		s.setStatus(domain.SyncStatusStalled, err)
		s.publish(Event{Type: EventSyncStalled, Height: result.ToHeight})
	case errors.Is(err, domain.ErrDataCorrupt):
		s.setStatus(domain.SyncStatusCorrupt, err)
		s.persistState(ctx)
		s.publish(Event{Type: EventSyncCorrupt, Height: result.ToHeight})
	default:
		s.setStatus(domain.SyncStatusIdle, err)
	}
	return result, err
}

func (s *ChainSync) syncOnce(ctx context.Context, result *SyncResult) error {
	tip, err := s.source.GetTipHeight(ctx)
	if err != nil {
		return err
	}
	s.setTip(tip)

	cursor := s.cursor()
	if cursor.Hash != "" {
		forked := tip < cursor.Height
		if !forked {
			hash, err := s.source.GetBlockHash(ctx, cursor.Height)
			if err != nil {
				return err
			}
			forked = hash != cursor.Hash
		}
		if forked {
			if err := s.handleReorg(ctx, result); err != nil {
				return err
			}
		}
	}

	if err := s.applyBlocks(ctx, result); err != nil {
		return err
	}

	if h := s.cursor().Height; h > tip {
		tip = h
	}
	s.store.outputs.SetTip(tip)

	if err := s.applyMempool(ctx, result); err != nil {
		return err
	}
	s.rebroadcast(ctx, result)
	s.prune(ctx)
	return nil
}

// applyBlocks fetches and applies the blocks since the cursor. Before
// applying a block, it checks whether the block makes the wallet watch new
// scripts, because of the gap limit. In that case the blocks since the
// cursor are fetched again with the extended list of scripts, until the
// list doesn't change anymore.
func (s *ChainSync) applyBlocks(ctx context.Context, result *SyncResult) error {
	watch := s.store.vault.Scripts()
	deltas, err := s.fetchBlocks(ctx, result, watch)
	if err != nil {
		return err
	}

	for len(deltas) > 0 {
		if err := ctx.Err(); err != nil {
			return err
		}
		delta := deltas[0]

		preview, _, err := s.store.vault.PreviewUsed(scriptsOf(delta.Outputs))
		if err != nil {
			return fmt.Errorf("block %d: %w", delta.Height, err)
		}
		if scripts := preview.Scripts(); !containsAll(watch, scripts) {
			log.WithFields(log.Fields{
				"height":  delta.Height,
				"scripts": len(scripts),
			}).Debug("watch list extended, fetching blocks again")
			watch = scripts
			if deltas, err = s.fetchBlocks(ctx, result, watch); err != nil {
				return err
			}
			continue
		}

		if err := s.applyBlock(ctx, delta, result); err != nil {
			return err
		}
		deltas = deltas[1:]
	}
	return nil
}

func (s *ChainSync) fetchBlocks(
	ctx context.Context, result *SyncResult, watch [][]byte,
) ([]ports.BlockDelta, error) {
	cursor := s.cursor()
	deltas, err := s.source.GetBlocksSince(ctx, cursor, watch)
	if err != nil {
		return nil, err
	}

	err = validateDeltas(cursor, deltas)
	if err == nil || !errors.Is(err, errForkDetected) {
		return deltas, err
	}

	if err := s.handleReorg(ctx, result); err != nil {
		return nil, err
	}
	cursor = s.cursor()
	if deltas, err = s.source.GetBlocksSince(ctx, cursor, watch); err != nil {
		return nil, err
	}
	if err := validateDeltas(cursor, deltas); err != nil {
		if errors.Is(err, errForkDetected) {
			return nil, fmt.Errorf(
				"%w: blocks keep not linking after reorg", domain.ErrDataCorrupt,
			)
		}
		return nil, err
	}
	return deltas, nil
}

// handleReorg finds the highest remembered block still in the best chain of
// the data source and reverts everything observed above it.
func (s *ChainSync) handleReorg(ctx context.Context, result *SyncResult) error {
	state := s.stateCopy()
	tip := s.TipHeight()

	forkHeight, found := uint32(0), false
	for i := len(state.Ancestry) - 1; i >= 0; i-- {
		header := state.Ancestry[i]
		if header.Height > tip {
			continue
		}
		hash, err := s.source.GetBlockHash(ctx, header.Height)
		if err != nil {
			return err
		}
		if hash == header.Hash {
			forkHeight, found = header.Height, true
			break
		}
	}
	if !found {
		return fmt.Errorf(
			"%w: fork point is beyond the last %d known blocks",
			domain.ErrDataCorrupt, len(state.Ancestry),
		)
	}
	if err := state.RewindTo(forkHeight); err != nil {
		return err
	}

	if err := s.rollback(ctx, forkHeight, state); err != nil {
		return err
	}
	result.ForkHeight = &forkHeight

	log.WithFields(log.Fields{
		"fork_height": forkHeight,
		"tip":         tip,
	}).Warn("chain reorg detected, wallet state rolled back")
	s.publish(Event{Type: EventReorg, Height: forkHeight})
	return nil
}

// reset moves the cursor to the given height for a rescan.
func (s *ChainSync) reset(ctx context.Context, height uint32) error {
	s.syncLock.Lock()
	defer s.syncLock.Unlock()

	state := s.stateCopy()
	state.Reset(height)
	s.lock.Lock()
	s.lastErr = nil
	s.lock.Unlock()
	return s.rollback(ctx, height, state)
}

// rollback reverts outputs and history above the given height and persists
// them together with the new sync state.
func (s *ChainSync) rollback(
	ctx context.Context, height uint32, state *domain.SyncState,
) error {
	changed := s.store.outputs.RollbackAbove(height)

	txRepo := s.store.repo.TransactionRepository()
	if _, err := s.store.repo.RunTransaction(
		ctx, !readOnlyTx, func(ctx context.Context) (interface{}, error) {
			if err := s.store.persistOutputs(ctx, keysOf(changed)); err != nil {
				return nil, err
			}

			records, err := txRepo.GetAllTransactions(ctx)
			if err != nil {
				return nil, err
			}
			unconfirmed := make([]*domain.TxRecord, 0)
			for _, rec := range records {
				if rec.Height != nil && *rec.Height > height {
					rec.Unconfirm()
					unconfirmed = append(unconfirmed, rec)
				}
			}
			if len(unconfirmed) > 0 {
				if err := txRepo.AddOrUpdateTransactions(ctx, unconfirmed); err != nil {
					return nil, err
				}
			}

			return nil, s.store.repo.SyncRepository().UpdateSyncState(ctx, state)
		},
	); err != nil {
		s.store.reloadOutputs(ctx)
		return err
	}

	s.setState(state)
	return nil
}

func (s *ChainSync) applyBlock(
	ctx context.Context, delta ports.BlockDelta, result *SyncResult,
) error {
	state := s.stateCopy()
	if err := state.Advance(delta.Header()); err != nil {
		return err
	}

	height := delta.Height
	newOutputs, err := s.applyDelta(
		ctx, delta.Outputs, delta.Spends, &height, state, result,
	)
	if err != nil {
		return fmt.Errorf("block %d: %w", delta.Height, err)
	}

	s.setState(state)
	s.store.outputs.SetTip(height)
	result.BlocksApplied++

	log.WithFields(log.Fields{
		"height":  delta.Height,
		"hash":    delta.Hash,
		"outputs": len(delta.Outputs),
		"spends":  len(delta.Spends),
	}).Debug("applied block")

	balance := s.store.outputs.Balance()
	for i := range newOutputs {
		s.publish(Event{
			Type:    EventOutputReceived,
			Height:  height,
			TxID:    newOutputs[i].TxID,
			Output:  &newOutputs[i],
			Balance: balance,
		})
	}
	s.publish(Event{Type: EventBlockApplied, Height: height, Balance: balance})
	return nil
}

func (s *ChainSync) applyMempool(ctx context.Context, result *SyncResult) error {
	delta, err := s.source.GetUnconfirmed(ctx, s.store.vault.Scripts())
	if err != nil {
		return err
	}
	if delta == nil {
		return nil
	}
	if err := validateMempoolDelta(delta); err != nil {
		return err
	}

	newOutputs, err := s.applyDelta(ctx, delta.Outputs, delta.Spends, nil, nil, result)
	if err != nil {
		return fmt.Errorf("mempool: %w", err)
	}

	balance := s.store.outputs.Balance()
	for i := range newOutputs {
		s.publish(Event{
			Type:    EventOutputReceived,
			TxID:    newOutputs[i].TxID,
			Output:  &newOutputs[i],
			Balance: balance,
		})
	}
	return nil
}

// applyDelta applies the given outputs and spends to the wallet state and
// persists all changes in one db transaction. A nil height means that the
// delta comes from the mempool. Nothing changes in memory until every
// change is known to be valid, and if persistence fails the in-memory output
// set is reloaded from storage. It returns the new wallet outputs.
func (s *ChainSync) applyDelta(
	ctx context.Context, deltaOutputs []ports.DeltaOutput,
	deltaSpends []ports.DeltaSpend, height *uint32, state *domain.SyncState,
	result *SyncResult,
) ([]domain.Output, error) {
	outputs, vault := s.store.outputs, s.store.vault
	history := newHistoryBook(s.store.repo.TransactionRepository())

	// The vault is persisted below from a preview, no other update must be
	// persisted in the meantime.
	s.store.vaultLock.Lock()
	defer s.store.vaultLock.Unlock()

	preview, vaultChanged, err := vault.PreviewUsed(scriptsOf(deltaOutputs))
	if err != nil {
		return nil, err
	}

	owned := make([]domain.Output, 0, len(deltaOutputs))
	usedPaths := make([]wallet.DerivationPath, 0, len(deltaOutputs))
	candidates := make(map[domain.OutputKey]domain.Output)
	rejected := 0
	for _, o := range deltaOutputs {
		path, ok := preview.PathForScript(o.Script)
		if !ok {
			rejected++
			log.WithFields(log.Fields{
				"txid":   o.TxID,
				"vout":   o.VOut,
				"script": hex.EncodeToString(o.Script),
			}).Warn("rejected output paying to a non wallet script")
			continue
		}
		output := domain.Output{
			TxID:           o.TxID,
			VOut:           o.VOut,
			Script:         o.Script,
			Address:        wallet.AddressFromScript(o.Script, vault.Network()),
			DerivationPath: path.String(),
			Amount:         o.Amount,
		}
		owned = append(owned, output)
		usedPaths = append(usedPaths, path)
		candidates[output.Key()] = output
	}

	type spentOutput struct {
		spend     ports.DeltaSpend
		amount    uint64
		firstSeen bool
	}
	spent := make([]spentOutput, 0, len(deltaSpends))
	sends := make(map[string]bool)
	for _, spend := range deltaSpends {
		o, ok := outputs.Get(spend.Key())
		if !ok {
			if o, ok = candidates[spend.Key()]; !ok {
				log.WithField("output", spend.Key().String()).
					Debug("skipping spend of unknown output")
				continue
			}
		}
		sends[spend.SpentBy] = true
		spent = append(spent, spentOutput{spend, o.Amount, !o.IsSpent()})
	}

	newOutputs := make([]domain.Output, 0)
	for _, output := range owned {
		if _, known := outputs.Get(output.Key()); !known {
			newOutputs = append(newOutputs, output)
		}
		if err := history.received(
			ctx, output.Key(), output.Amount, height, sends[output.TxID],
		); err != nil {
			return nil, err
		}
	}

	spends := make([]domain.Spend, 0, len(spent))
	newSpends := 0
	for _, sp := range spent {
		if sp.firstSeen {
			newSpends++
		}
		if err := history.spent(
			ctx, sp.spend.SpentBy, sp.amount, height, sp.firstSeen,
		); err != nil {
			return nil, err
		}
		spends = append(spends, domain.Spend{
			Key: sp.spend.Key(), SpentBy: sp.spend.SpentBy,
		})
	}

	changed, err := outputs.ApplyBlock(owned, spends, height)
	if err != nil {
		return nil, fmt.Errorf("%w: %s", domain.ErrDataCorrupt, err)
	}

	if _, err := s.store.repo.RunTransaction(
		ctx, !readOnlyTx, func(ctx context.Context) (interface{}, error) {
			if err := s.store.persistOutputs(ctx, changed); err != nil {
				return nil, err
			}
			if vaultChanged {
				if err := s.store.repo.VaultRepository().UpdateVault(
					ctx, preview,
				); err != nil {
					return nil, err
				}
			}
			if err := history.persist(ctx); err != nil {
				return nil, err
			}
			if state != nil {
				return nil, s.store.repo.SyncRepository().UpdateSyncState(ctx, state)
			}
			return nil, nil
		},
	); err != nil {
		if len(changed) > 0 {
			s.store.reloadOutputs(ctx)
		}
		return nil, err
	}

	for _, path := range usedPaths {
		if _, err := vault.MarkUsed(path); err != nil {
			log.WithError(err).Warnf("failed to mark %s as used", path)
		}
	}

	result.Rejected += rejected
	result.NewOutputs += len(newOutputs)
	result.NewSpends += newSpends
	return newOutputs, nil
}

// rebroadcast publishes again the transactions whose broadcast had an
// unknown outcome. A definite rejection makes their inputs spendable again.
func (s *ChainSync) rebroadcast(ctx context.Context, result *SyncResult) {
	txRepo := s.store.repo.TransactionRepository()
	records, err := txRepo.GetTransactionsByStatus(
		ctx, domain.TxStatusBroadcastPending,
	)
	if err != nil {
		log.WithError(err).Warn("failed to get transactions to rebroadcast")
		return
	}

	for _, rec := range records {
		if ctx.Err() != nil {
			return
		}
		rec.Attempts++

		raw, err := hex.DecodeString(rec.RawHex)
		malformed := err != nil
		if !malformed {
			_, err = s.source.Broadcast(ctx, raw)
		}

		var reverted []domain.Output
		event := Event{TxID: rec.TxID}
		switch {
		case err == nil:
			rec.MarkBroadcasted()
			result.Rebroadcasted++
			event.Type = EventTxBroadcasted
			log.Infof("rebroadcasted transaction %s", rec.TxID)
		case malformed || errors.Is(err, domain.ErrTxRejected):
			rec.MarkFailed()
			reverted = s.store.outputs.RevertSpends(rec.TxID)
			event.Type = EventTxFailed
			log.WithError(err).Warnf("transaction %s rejected", rec.TxID)
		default:
			log.WithError(err).Debugf("failed to rebroadcast transaction %s", rec.TxID)
		}

		if _, err := s.store.repo.RunTransaction(
			ctx, !readOnlyTx, func(ctx context.Context) (interface{}, error) {
				if err := s.store.persistOutputs(ctx, keysOf(reverted)); err != nil {
					return nil, err
				}
				return nil, txRepo.AddOrUpdateTransactions(ctx, []*domain.TxRecord{rec})
			},
		); err != nil {
			log.WithError(err).Warnf("failed to update transaction %s", rec.TxID)
			if len(reverted) > 0 {
				s.store.reloadOutputs(ctx)
			}
			continue
		}
		if event.Type == EventTxBroadcasted || event.Type == EventTxFailed {
			event.Balance = s.store.outputs.Balance()
			s.publish(event)
		}
	}
}

// prune drops the outputs spent on chain more than pruneDepth blocks ago.
func (s *ChainSync) prune(ctx context.Context) {
	cursor := s.cursor()
	if s.pruneDepth <= 0 || cursor.Height <= s.pruneDepth {
		return
	}

	pruned := s.store.outputs.Prune(cursor.Height - s.pruneDepth)
	if len(pruned) <= 0 {
		return
	}
	if err := s.store.repo.OutputRepository().DeleteOutputs(ctx, pruned); err != nil {
		log.WithError(err).Warn("failed to delete pruned outputs")
		return
	}
	log.Debugf("pruned %d spent outputs", len(pruned))
}

func (s *ChainSync) persistState(ctx context.Context) {
	state := s.stateCopy()
	if err := s.store.repo.SyncRepository().UpdateSyncState(ctx, state); err != nil {
		log.WithError(err).Warn("failed to persist sync state")
	}
}

func (s *ChainSync) publish(event Event) {
	if s.events != nil {
		s.events.broadcast(event)
	}
}

// TipHeight returns the last chain tip height returned by the data source.
func (s *ChainSync) TipHeight() uint32 {
	s.lock.RLock()
	defer s.lock.RUnlock()
	return s.tipHeight
}

func (s *ChainSync) setTip(height uint32) {
	s.lock.Lock()
	defer s.lock.Unlock()
	s.tipHeight = height
}

func (s *ChainSync) cursor() domain.SyncCursor {
	s.lock.RLock()
	defer s.lock.RUnlock()
	return s.state.Cursor
}

func (s *ChainSync) stateCopy() *domain.SyncState {
	s.lock.RLock()
	defer s.lock.RUnlock()
	return s.state.Copy()
}

func (s *ChainSync) setState(state *domain.SyncState) {
	s.lock.Lock()
	defer s.lock.Unlock()
	s.state = state.Copy()
}

func (s *ChainSync) setStatus(status domain.SyncStatus, err error) {
	s.lock.Lock()
	defer s.lock.Unlock()
	s.state.Status = status
	s.lastErr = err
}

func validateDeltas(cursor domain.SyncCursor, deltas []ports.BlockDelta) error {
	prev := cursor
	for i, d := range deltas {
		if !isHash(d.Hash) || !isHash(d.PrevHash) {
			return fmt.Errorf(
				"%w: block %d has malformed hashes", domain.ErrDataCorrupt, d.Height,
			)
		}
		if d.Height <= prev.Height {
			return fmt.Errorf(
				"%w: block %d is not above %d", domain.ErrDataCorrupt, d.Height, prev.Height,
			)
		}
		if d.Height == prev.Height+1 && prev.Hash != "" && d.PrevHash != prev.Hash {
			if i == 0 {
				return errForkDetected
			}
			return fmt.Errorf(
				"%w: block %d does not link to block %d",
				domain.ErrDataCorrupt, d.Height, prev.Height,
			)
		}
		if err := validateActivity(d.Outputs, d.Spends); err != nil {
			return fmt.Errorf("block %d: %w", d.Height, err)
		}
		prev = d.Header()
	}
	return nil
}

func validateMempoolDelta(delta *ports.MempoolDelta) error {
	if err := validateActivity(delta.Outputs, delta.Spends); err != nil {
		return fmt.Errorf("mempool: %w", err)
	}
	return nil
}

func validateActivity(outputs []ports.DeltaOutput, spends []ports.DeltaSpend) error {
	for _, o := range outputs {
		if !isHash(o.TxID) || len(o.Script) <= 0 {
			return fmt.Errorf("%w: malformed output %s", domain.ErrDataCorrupt, o.Key())
		}
		if o.Amount > domain.MaxSatoshi {
			return fmt.Errorf(
				"%w: output %s amount %d exceeds max supply",
				domain.ErrDataCorrupt, o.Key(), o.Amount,
			)
		}
	}
	for _, spend := range spends {
		if !isHash(spend.TxID) || !isHash(spend.SpentBy) {
			return fmt.Errorf("%w: malformed spend of %s", domain.ErrDataCorrupt, spend.Key())
		}
	}
	return nil
}

func scriptsOf(outputs []ports.DeltaOutput) [][]byte {
	scripts := make([][]byte, 0, len(outputs))
	for _, o := range outputs {
		scripts = append(scripts, o.Script)
	}
	return scripts
}

// containsAll returns whether all scripts are in the watch list.
func containsAll(watch, scripts [][]byte) bool {
	watched := make(map[string]struct{}, len(watch))
	for _, script := range watch {
		watched[hex.EncodeToString(script)] = struct{}{}
	}
	for _, script := range scripts {
		if _, ok := watched[hex.EncodeToString(script)]; !ok {
			return false
		}
	}
	return true
}

func isHash(str string) bool {
	if len(str) != 64 {
		return false
	}
	_, err := hex.DecodeString(str)
	return err == nil
}
