package ports

import (
	"context"

	"github.com/tdex-network/tdex-wallet/internal/core/domain"
)

// DeltaOutput is an output paying to one of the watched scripts.
type DeltaOutput struct {
	TxID   string
	VOut   uint32
	Script []byte
	Amount uint64
}

// Key ...
func (o DeltaOutput) Key() domain.OutputKey {
	return domain.OutputKey{TxID: o.TxID, VOut: o.VOut}
}

// DeltaSpend is an input spending an output of one of the watched scripts.
type DeltaSpend struct {
	TxID    string
	VOut    uint32
	SpentBy string
}

// Key returns the key of the spent output.
func (s DeltaSpend) Key() domain.OutputKey {
	return domain.OutputKey{TxID: s.TxID, VOut: s.VOut}
}

// BlockDelta is the wallet related content of a block.
type BlockDelta struct {
	Height   uint32
	Hash     string
	PrevHash string
	Outputs  []DeltaOutput
	Spends   []DeltaSpend
}

// Header ...
func (b BlockDelta) Header() domain.BlockHeader {
	return domain.BlockHeader{Height: b.Height, Hash: b.Hash}
}

// MempoolDelta is the wallet related content of the mempool.
type MempoolDelta struct {
	Outputs []DeltaOutput
	Spends  []DeltaSpend
}

// DataSource is the untrusted blockchain data source. Implementations wrap
// retryable failures with domain.ErrTransientNetwork and definite rejections
// of a broadcast with domain.ErrTxRejected.
type DataSource interface {
	// GetBlocksSince returns the blocks above the cursor, up to the chain tip,
	// with activity for the watched scripts, in ascending height order. The
	// tip block is always included even without activity.
	GetBlocksSince(
		ctx context.Context, cursor domain.SyncCursor, watch [][]byte,
	) ([]BlockDelta, error)
	// GetUnconfirmed returns the activity of the watched scripts not yet
	// included in a block.
	GetUnconfirmed(ctx context.Context, watch [][]byte) (*MempoolDelta, error)
	GetBlockHash(ctx context.Context, height uint32) (string, error)
	GetTipHeight(ctx context.Context) (uint32, error)
	// Broadcast publishes the serialized transaction and returns its txid.
	Broadcast(ctx context.Context, tx []byte) (string, error)
}
