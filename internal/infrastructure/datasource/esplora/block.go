package esplora

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"strconv"
	"strings"

	"github.com/tdex-network/tdex-wallet/internal/core/domain"
	"github.com/tdex-network/tdex-wallet/internal/core/ports"
	"github.com/tdex-network/tdex-wallet/pkg/wallet"
)

func (e *esplora) GetTipHeight(ctx context.Context) (uint32, error) {
	body, err := e.get(ctx, "/blocks/tip/height")
	if err != nil {
		return 0, err
	}
	height, err := strconv.ParseUint(strings.TrimSpace(string(body)), 10, 32)
	if err != nil {
		return 0, fmt.Errorf(
			"%w: failed to parse tip height: %s", domain.ErrDataCorrupt, err,
		)
	}
	return uint32(height), nil
}

func (e *esplora) GetBlockHash(ctx context.Context, height uint32) (string, error) {
	body, err := e.get(ctx, fmt.Sprintf("/block-height/%d", height))
	if err != nil {
		return "", err
	}
	return strings.TrimSpace(string(body)), nil
}

func (e *esplora) GetBlocksSince(
	ctx context.Context, cursor domain.SyncCursor, watch [][]byte,
) ([]ports.BlockDelta, error) {
	tip, err := e.GetTipHeight(ctx)
	if err != nil {
		return nil, err
	}
	if tip <= cursor.Height {
		return []ports.BlockDelta{}, nil
	}

	watched := watchSet(watch)
	deltas := make(map[uint32]*ports.BlockDelta)
	seen := make(map[string]struct{})

	for _, script := range watch {
		addr := wallet.AddressFromScript(script, e.network)
		if addr == "" {
			continue
		}
		txs, err := e.getConfirmedTxs(ctx, addr, cursor.Height)
		if err != nil {
			return nil, err
		}
		for _, t := range txs {
			if _, ok := seen[t.TxID]; ok {
				continue
			}
			seen[t.TxID] = struct{}{}

			height, err := t.height()
			if err != nil {
				return nil, err
			}
			// Txs mined after the tip was fetched are left to the next poll.
			if height <= cursor.Height || height > tip {
				continue
			}
			outputs, spends, err := t.activity(watched)
			if err != nil {
				return nil, err
			}

			delta, ok := deltas[height]
			if !ok {
				delta = &ports.BlockDelta{
					Height:  height,
					Hash:    t.Status.BlockHash,
					Outputs: make([]ports.DeltaOutput, 0),
					Spends:  make([]ports.DeltaSpend, 0),
				}
				deltas[height] = delta
			}
			if delta.Hash != t.Status.BlockHash {
				return nil, fmt.Errorf(
					"%w: txs of block %d reference different block hashes",
					domain.ErrDataCorrupt, height,
				)
			}
			delta.Outputs = append(delta.Outputs, outputs...)
			delta.Spends = append(delta.Spends, spends...)
		}
	}

	if _, ok := deltas[tip]; !ok {
		hash, err := e.GetBlockHash(ctx, tip)
		if err != nil {
			return nil, err
		}
		deltas[tip] = &ports.BlockDelta{
			Height:  tip,
			Hash:    hash,
			Outputs: make([]ports.DeltaOutput, 0),
			Spends:  make([]ports.DeltaSpend, 0),
		}
	}

	list := make([]ports.BlockDelta, 0, len(deltas))
	for _, delta := range deltas {
		block, err := e.getBlock(ctx, delta.Hash)
		if err != nil {
			return nil, err
		}
		delta.PrevHash = block.PreviousBlockHash
		list = append(list, *delta)
	}
	sort.Slice(list, func(i, j int) bool {
		return list[i].Height < list[j].Height
	})
	return list, nil
}

// getConfirmedTxs returns the confirmed txs of the address mined above the
// given height. Esplora returns the history newest first, in pages.
func (e *esplora) getConfirmedTxs(
	ctx context.Context, addr string, above uint32,
) ([]tx, error) {
	txs := make([]tx, 0)
	lastSeen := ""
	for {
		path := fmt.Sprintf("/address/%s/txs/chain", addr)
		if lastSeen != "" {
			path = fmt.Sprintf("%s/%s", path, lastSeen)
		}
		body, err := e.get(ctx, path)
		if err != nil {
			return nil, err
		}
		var page []tx
		if err := json.Unmarshal(body, &page); err != nil {
			return nil, fmt.Errorf(
				"%w: failed to decode txs of %s: %s", domain.ErrDataCorrupt, addr, err,
			)
		}
		if len(page) <= 0 {
			return txs, nil
		}

		txs = append(txs, page...)
		last := page[len(page)-1]
		if len(page) < pageSize || last.Status.BlockHeight <= int64(above) {
			return txs, nil
		}
		lastSeen = last.TxID
	}
}

func (e *esplora) getBlock(ctx context.Context, hash string) (*blockInfo, error) {
	body, err := e.get(ctx, "/block/"+hash)
	if err != nil {
		return nil, err
	}
	var block blockInfo
	if err := json.Unmarshal(body, &block); err != nil {
		return nil, fmt.Errorf(
			"%w: failed to decode block %s: %s", domain.ErrDataCorrupt, hash, err,
		)
	}
	if block.ID != hash {
		return nil, fmt.Errorf(
			"%w: requested block %s, got %s", domain.ErrDataCorrupt, hash, block.ID,
		)
	}
	if block.Height > 0 && block.PreviousBlockHash == "" {
		return nil, fmt.Errorf(
			"%w: block %s has no previous hash", domain.ErrDataCorrupt, hash,
		)
	}
	return &block, nil
}
