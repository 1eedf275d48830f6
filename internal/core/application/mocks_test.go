package application_test

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/btcsuite/btcd/chaincfg/chainhash"
	"github.com/btcsuite/btcd/wire"
	"github.com/stretchr/testify/mock"
	"github.com/tdex-network/tdex-wallet/internal/core/domain"
	"github.com/tdex-network/tdex-wallet/internal/core/ports"
)

// **** Data source ****

type mockDataSource struct {
	mock.Mock
}

func (m *mockDataSource) GetBlocksSince(
	ctx context.Context, cursor domain.SyncCursor, watch [][]byte,
) ([]ports.BlockDelta, error) {
	args := m.Called(ctx, cursor, watch)

	var res []ports.BlockDelta
	if a := args.Get(0); a != nil {
		res = a.([]ports.BlockDelta)
	}
	return res, args.Error(1)
}

func (m *mockDataSource) GetUnconfirmed(
	ctx context.Context, watch [][]byte,
) (*ports.MempoolDelta, error) {
	args := m.Called(ctx, watch)

	var res *ports.MempoolDelta
	if a := args.Get(0); a != nil {
		res = a.(*ports.MempoolDelta)
	}
	return res, args.Error(1)
}

func (m *mockDataSource) GetBlockHash(
	ctx context.Context, height uint32,
) (string, error) {
	args := m.Called(ctx, height)
	return args.String(0), args.Error(1)
}

func (m *mockDataSource) GetTipHeight(ctx context.Context) (uint32, error) {
	args := m.Called(ctx)

	var res uint32
	if a := args.Get(0); a != nil {
		res = a.(uint32)
	}
	return res, args.Error(1)
}

func (m *mockDataSource) Broadcast(ctx context.Context, tx []byte) (string, error) {
	args := m.Called(ctx, tx)
	return args.String(0), args.Error(1)
}

// **** Chain ****

// fakeChain is an in-memory blockchain. Like a real untrusted data source,
// it returns all the outputs and spends of the blocks with activity,
// without filtering them by the watched scripts. If filterWatched is set, it
// behaves like an indexer instead and returns only the outputs paying to the
// watched scripts.
type fakeChain struct {
	lock          *sync.Mutex
	filterWatched bool
	fork          int
	blocks  []*fakeBlock
	mempool []*wire.MsgTx
	txCount int

	broadcastErr error
	broadcasted  []*wire.MsgTx
}

type fakeBlock struct {
	hash     string
	prevHash string
	outputs  []ports.DeltaOutput
	spends   []ports.DeltaSpend
}

func newFakeChain(height uint32) *fakeChain {
	c := &fakeChain{lock: &sync.Mutex{}}
	for h := uint32(0); h <= height; h++ {
		c.appendBlock(nil, nil)
	}
	return c
}

func newFilteringFakeChain(height uint32) *fakeChain {
	c := newFakeChain(height)
	c.filterWatched = true
	return c
}

func (c *fakeChain) appendBlock(
	outputs []ports.DeltaOutput, spends []ports.DeltaSpend,
) uint32 {
	height := uint32(len(c.blocks))
	prevHash := chainhash.Hash{}.String()
	if height > 0 {
		prevHash = c.blocks[height-1].hash
	}
	c.blocks = append(c.blocks, &fakeBlock{
		hash:     blockHash(c.fork, height),
		prevHash: prevHash,
		outputs:  outputs,
		spends:   spends,
	})
	return height
}

// mine appends empty blocks.
func (c *fakeChain) mine(n int) uint32 {
	c.lock.Lock()
	defer c.lock.Unlock()

	for i := 0; i < n; i++ {
		c.appendBlock(nil, nil)
	}
	return uint32(len(c.blocks) - 1)
}

// pay mines a block with a new output paying the given script.
func (c *fakeChain) pay(script []byte, amount uint64) (domain.OutputKey, uint32) {
	c.lock.Lock()
	defer c.lock.Unlock()

	c.txCount++
	key := domain.OutputKey{TxID: fakeTxID(c.txCount), VOut: 0}
	height := c.appendBlock([]ports.DeltaOutput{{
		TxID:   key.TxID,
		VOut:   key.VOut,
		Script: script,
		Amount: amount,
	}}, nil)
	return key, height
}

// mineOutputs mines a block with the given outputs.
func (c *fakeChain) mineOutputs(outputs ...ports.DeltaOutput) uint32 {
	c.lock.Lock()
	defer c.lock.Unlock()

	return c.appendBlock(outputs, nil)
}

// mineMempool mines a block with all the mempool transactions.
func (c *fakeChain) mineMempool() uint32 {
	c.lock.Lock()
	defer c.lock.Unlock()

	outputs, spends := activityOf(c.mempool)
	c.mempool = nil
	return c.appendBlock(outputs, spends)
}

// reorg replaces the blocks above forkHeight with n new empty blocks.
func (c *fakeChain) reorg(forkHeight uint32, n int) uint32 {
	c.lock.Lock()
	defer c.lock.Unlock()

	c.fork++
	c.blocks = c.blocks[:forkHeight+1]
	for i := 0; i < n; i++ {
		c.appendBlock(nil, nil)
	}
	return uint32(len(c.blocks) - 1)
}

func (c *fakeChain) txs() []*wire.MsgTx {
	c.lock.Lock()
	defer c.lock.Unlock()
	return append([]*wire.MsgTx{}, c.broadcasted...)
}

func (c *fakeChain) setBroadcastErr(err error) {
	c.lock.Lock()
	defer c.lock.Unlock()
	c.broadcastErr = err
}

func (c *fakeChain) GetBlocksSince(
	_ context.Context, cursor domain.SyncCursor, watch [][]byte,
) ([]ports.BlockDelta, error) {
	c.lock.Lock()
	defer c.lock.Unlock()

	tip := uint32(len(c.blocks) - 1)
	deltas := make([]ports.BlockDelta, 0)
	for h := cursor.Height + 1; h <= tip; h++ {
		b := c.blocks[h]
		outputs := c.watched(b.outputs, watch)
		if len(outputs)+len(b.spends) <= 0 && h != tip {
			continue
		}
		deltas = append(deltas, ports.BlockDelta{
			Height:   h,
			Hash:     b.hash,
			PrevHash: b.prevHash,
			Outputs:  outputs,
			Spends:   append([]ports.DeltaSpend{}, b.spends...),
		})
	}
	return deltas, nil
}

func (c *fakeChain) GetUnconfirmed(
	_ context.Context, watch [][]byte,
) (*ports.MempoolDelta, error) {
	c.lock.Lock()
	defer c.lock.Unlock()

	outputs, spends := activityOf(c.mempool)
	return &ports.MempoolDelta{
		Outputs: c.watched(outputs, watch),
		Spends:  spends,
	}, nil
}

// watched returns a copy of the outputs, only those paying to one of the
// watched scripts if filterWatched is set.
func (c *fakeChain) watched(
	outputs []ports.DeltaOutput, watch [][]byte,
) []ports.DeltaOutput {
	filtered := make([]ports.DeltaOutput, 0, len(outputs))
	for _, o := range outputs {
		if !c.filterWatched || containsScript(watch, o.Script) {
			filtered = append(filtered, o)
		}
	}
	return filtered
}

func (c *fakeChain) GetBlockHash(_ context.Context, height uint32) (string, error) {
	c.lock.Lock()
	defer c.lock.Unlock()

	if int(height) >= len(c.blocks) {
		return "", fmt.Errorf("block %d not found", height)
	}
	return c.blocks[height].hash, nil
}

func (c *fakeChain) GetTipHeight(_ context.Context) (uint32, error) {
	c.lock.Lock()
	defer c.lock.Unlock()

	return uint32(len(c.blocks) - 1), nil
}

func (c *fakeChain) Broadcast(_ context.Context, raw []byte) (string, error) {
	c.lock.Lock()
	defer c.lock.Unlock()

	if c.broadcastErr != nil {
		return "", c.broadcastErr
	}
	tx := wire.NewMsgTx(2)
	if err := tx.Deserialize(bytes.NewReader(raw)); err != nil {
		return "", fmt.Errorf("%w: %s", domain.ErrTxRejected, err)
	}
	c.mempool = append(c.mempool, tx)
	c.broadcasted = append(c.broadcasted, tx)
	return tx.TxHash().String(), nil
}

func activityOf(txs []*wire.MsgTx) ([]ports.DeltaOutput, []ports.DeltaSpend) {
	outputs := make([]ports.DeltaOutput, 0)
	spends := make([]ports.DeltaSpend, 0)
	for _, tx := range txs {
		txid := tx.TxHash().String()
		for i, out := range tx.TxOut {
			outputs = append(outputs, ports.DeltaOutput{
				TxID:   txid,
				VOut:   uint32(i),
				Script: out.PkScript,
				Amount: uint64(out.Value),
			})
		}
		for _, in := range tx.TxIn {
			spends = append(spends, ports.DeltaSpend{
				TxID:    in.PreviousOutPoint.Hash.String(),
				VOut:    in.PreviousOutPoint.Index,
				SpentBy: txid,
			})
		}
	}
	return outputs, spends
}

func containsScript(scripts [][]byte, script []byte) bool {
	for _, s := range scripts {
		if bytes.Equal(s, script) {
			return true
		}
	}
	return false
}

func blockHash(fork int, height uint32) string {
	return chainhash.DoubleHashH([]byte(fmt.Sprintf("%d:%d", fork, height))).String()
}

func fakeTxID(i int) string {
	return chainhash.DoubleHashH([]byte(fmt.Sprintf("tx:%d", i))).String()
}

// **** Storage ****

var errDiskFull = errors.New("disk full")

// flakyRepoManager makes the updates of the sync state fail while
// failSyncUpdates is set. In a db transaction, this happens after the
// outputs, the vault and the history are written.
type flakyRepoManager struct {
	ports.RepoManager

	lock            *sync.Mutex
	failSyncUpdates bool
}

func newFlakyRepoManager(repo ports.RepoManager) *flakyRepoManager {
	return &flakyRepoManager{RepoManager: repo, lock: &sync.Mutex{}}
}

func (r *flakyRepoManager) setFailing(failing bool) {
	r.lock.Lock()
	defer r.lock.Unlock()
	r.failSyncUpdates = failing
}

func (r *flakyRepoManager) isFailing() bool {
	r.lock.Lock()
	defer r.lock.Unlock()
	return r.failSyncUpdates
}

func (r *flakyRepoManager) SyncRepository() domain.SyncRepository {
	return &flakySyncRepository{r.RepoManager.SyncRepository(), r}
}

type flakySyncRepository struct {
	domain.SyncRepository
	repo *flakyRepoManager
}

func (r *flakySyncRepository) UpdateSyncState(
	ctx context.Context, state *domain.SyncState,
) error {
	if r.repo.isFailing() {
		return errDiskFull
	}
	return r.SyncRepository.UpdateSyncState(ctx, state)
}
