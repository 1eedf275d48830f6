package esplora

import (
	"bytes"
	"context"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"

	"github.com/btcsuite/btcd/wire"
	log "github.com/sirupsen/logrus"
	"github.com/tdex-network/tdex-wallet/internal/core/domain"
	"github.com/tdex-network/tdex-wallet/internal/core/ports"
	"github.com/tdex-network/tdex-wallet/pkg/wallet"
)

// alreadyKnownErrors are the node rejection reasons of a tx that is already
// in the mempool or in the chain.
var alreadyKnownErrors = []string{
	"txn-already-known",
	"txn-already-in-mempool",
	"transaction already in block chain",
	"outputs already in utxo set",
}

func (e *esplora) GetUnconfirmed(
	ctx context.Context, watch [][]byte,
) (*ports.MempoolDelta, error) {
	watched := watchSet(watch)
	delta := &ports.MempoolDelta{
		Outputs: make([]ports.DeltaOutput, 0),
		Spends:  make([]ports.DeltaSpend, 0),
	}
	seen := make(map[string]struct{})

	for _, script := range watch {
		addr := wallet.AddressFromScript(script, e.network)
		if addr == "" {
			continue
		}
		body, err := e.get(ctx, fmt.Sprintf("/address/%s/txs/mempool", addr))
		if err != nil {
			return nil, err
		}
		var txs []tx
		if err := json.Unmarshal(body, &txs); err != nil {
			return nil, fmt.Errorf(
				"%w: failed to decode mempool txs of %s: %s",
				domain.ErrDataCorrupt, addr, err,
			)
		}

		for _, t := range txs {
			if _, ok := seen[t.TxID]; ok || t.Status.Confirmed {
				continue
			}
			seen[t.TxID] = struct{}{}

			outputs, spends, err := t.activity(watched)
			if err != nil {
				return nil, err
			}
			delta.Outputs = append(delta.Outputs, outputs...)
			delta.Spends = append(delta.Spends, spends...)
		}
	}
	return delta, nil
}

func (e *esplora) Broadcast(ctx context.Context, rawTx []byte) (string, error) {
	msgTx := wire.NewMsgTx(wire.TxVersion)
	if err := msgTx.Deserialize(bytes.NewReader(rawTx)); err != nil {
		return "", fmt.Errorf("%w: %s", domain.ErrTxRejected, err)
	}
	txid := msgTx.TxHash().String()

	resp, err := e.request(ctx, http.MethodPost, "/tx", hex.EncodeToString(rawTx))
	if err != nil {
		return "", err
	}
	body := strings.TrimSpace(string(resp.body))

	if resp.status == http.StatusOK {
		if body != txid {
			log.WithFields(log.Fields{
				"txid":     txid,
				"returned": body,
			}).Warn("esplora returned an unexpected txid for broadcasted tx")
		}
		return txid, nil
	}
	if isAlreadyKnown(body) {
		log.WithField("txid", txid).Debug("broadcasted tx is already known")
		return txid, nil
	}
	return "", fmt.Errorf("%w: status %d: %s", domain.ErrTxRejected, resp.status, body)
}

func isAlreadyKnown(reason string) bool {
	reason = strings.ToLower(reason)
	for _, known := range alreadyKnownErrors {
		if strings.Contains(reason, known) {
			return true
		}
	}
	return false
}
