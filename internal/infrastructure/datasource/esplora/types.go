package esplora

import (
	"encoding/hex"
	"fmt"

	"github.com/ccoveille/go-safecast"
	"github.com/tdex-network/tdex-wallet/internal/core/ports"
)

type txStatus struct {
	Confirmed   bool   `json:"confirmed"`
	BlockHeight int64  `json:"block_height"`
	BlockHash   string `json:"block_hash"`
}

type txVin struct {
	TxID       string `json:"txid"`
	Vout       uint32 `json:"vout"`
	IsCoinbase bool   `json:"is_coinbase"`
}

type txVout struct {
	ScriptPubKey string `json:"scriptpubkey"`
	Value        int64  `json:"value"`
}

type tx struct {
	TxID   string   `json:"txid"`
	Vin    []txVin  `json:"vin"`
	Vout   []txVout `json:"vout"`
	Status txStatus `json:"status"`
}

type blockInfo struct {
	ID                string `json:"id"`
	Height            int64  `json:"height"`
	PreviousBlockHash string `json:"previousblockhash"`
}

func (t tx) height() (uint32, error) {
	height, err := safecast.ToUint32(t.Status.BlockHeight)
	if err != nil {
		return 0, fmt.Errorf("tx %s: invalid block height: %w", t.TxID, err)
	}
	return height, nil
}

// activity returns the outputs of the tx paying to one of the watched scripts
// and all the outputs spent by it.
func (t tx) activity(
	watched map[string]struct{},
) ([]ports.DeltaOutput, []ports.DeltaSpend, error) {
	outputs := make([]ports.DeltaOutput, 0)
	for i, out := range t.Vout {
		if _, ok := watched[out.ScriptPubKey]; !ok {
			continue
		}
		script, err := hex.DecodeString(out.ScriptPubKey)
		if err != nil {
			return nil, nil, fmt.Errorf("tx %s: invalid output script: %w", t.TxID, err)
		}
		amount, err := safecast.ToUint64(out.Value)
		if err != nil {
			return nil, nil, fmt.Errorf("tx %s: invalid output amount: %w", t.TxID, err)
		}
		vout, err := safecast.ToUint32(i)
		if err != nil {
			return nil, nil, err
		}
		outputs = append(outputs, ports.DeltaOutput{
			TxID:   t.TxID,
			VOut:   vout,
			Script: script,
			Amount: amount,
		})
	}

	spends := make([]ports.DeltaSpend, 0, len(t.Vin))
	for _, in := range t.Vin {
		if in.IsCoinbase {
			continue
		}
		spends = append(spends, ports.DeltaSpend{
			TxID:    in.TxID,
			VOut:    in.Vout,
			SpentBy: t.TxID,
		})
	}
	return outputs, spends, nil
}

func watchSet(watch [][]byte) map[string]struct{} {
	set := make(map[string]struct{}, len(watch))
	for _, script := range watch {
		set[hex.EncodeToString(script)] = struct{}{}
	}
	return set
}
