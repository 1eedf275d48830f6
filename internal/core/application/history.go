package application

import (
	"context"
	"errors"
	"sort"

	"github.com/tdex-network/tdex-wallet/internal/core/domain"
)

// historyBook collects the changes to the wallet history caused by a block,
// or by the mempool, before they're persisted together with the outputs.
type historyBook struct {
	repo    domain.TransactionRepository
	records map[string]*domain.TxRecord
	dirty   map[string]bool
	// discovered are the records of transactions spending wallet outputs
	// that were not sent by this wallet instance, for example after a
	// restore. Their amount is computed in finalize.
	discovered map[string]*discoveredTx
}

type discoveredTx struct {
	spent    uint64
	received uint64
}

func newHistoryBook(repo domain.TransactionRepository) *historyBook {
	return &historyBook{
		repo:       repo,
		records:    make(map[string]*domain.TxRecord),
		dirty:      make(map[string]bool),
		discovered: make(map[string]*discoveredTx),
	}
}

func (h *historyBook) get(ctx context.Context, txid string) (*domain.TxRecord, error) {
	if rec, ok := h.records[txid]; ok {
		return rec, nil
	}
	rec, err := h.repo.GetTransaction(ctx, txid)
	if err != nil {
		if errors.Is(err, domain.ErrTxNotFound) {
			return nil, nil
		}
		return nil, err
	}
	h.records[txid] = rec
	return rec, nil
}

// received records a wallet output created by the given transaction.
// isSend tells whether the same transaction also spends wallet outputs.
func (h *historyBook) received(
	ctx context.Context, key domain.OutputKey, amount uint64,
	height *uint32, isSend bool,
) error {
	rec, err := h.get(ctx, key.TxID)
	if err != nil {
		return err
	}
	if rec == nil {
		if isSend {
			rec = h.discover(key.TxID)
		} else {
			rec = domain.NewReceivedTxRecord(key.TxID)
		}
		h.records[key.TxID] = rec
		h.dirty[key.TxID] = true
	}

	if rec.AddReceived(key, amount) {
		h.dirty[key.TxID] = true
		if d, ok := h.discovered[key.TxID]; ok {
			d.received += amount
		}
	}
	h.observe(rec, height)
	return nil
}

// spent records a wallet output spent by the given transaction.
func (h *historyBook) spent(
	ctx context.Context, txid string, amount uint64, height *uint32,
	firstSeen bool,
) error {
	rec, err := h.get(ctx, txid)
	if err != nil {
		return err
	}
	if rec == nil {
		rec = h.discover(txid)
	}
	if d, ok := h.discovered[txid]; ok && firstSeen {
		d.spent += amount
		h.dirty[txid] = true
	}
	h.observe(rec, height)
	return nil
}

// observe updates the status of a record seen on chain or in the mempool.
func (h *historyBook) observe(rec *domain.TxRecord, height *uint32) {
	if height != nil {
		if rec.Confirm(*height) {
			h.dirty[rec.TxID] = true
		}
		return
	}
	if rec.Status == domain.TxStatusBroadcastPending ||
		rec.Status == domain.TxStatusFailed {
		rec.MarkBroadcasted()
		h.dirty[rec.TxID] = true
	}
}

func (h *historyBook) discover(txid string) *domain.TxRecord {
	rec := domain.NewReceivedTxRecord(txid)
	rec.Direction = domain.TxDirectionSent
	h.records[txid] = rec
	h.dirty[txid] = true
	h.discovered[txid] = &discoveredTx{}
	return rec
}

// finalize returns the changed records. The ones of discovered sends are
// returned separately since their amount is only an estimate and an
// existing record must not be overwritten with them.
func (h *historyBook) finalize() ([]*domain.TxRecord, []*domain.TxRecord) {
	updated := make([]*domain.TxRecord, 0, len(h.dirty))
	discovered := make([]*domain.TxRecord, 0, len(h.discovered))
	for txid := range h.dirty {
		rec := h.records[txid]
		d, ok := h.discovered[txid]
		if !ok {
			updated = append(updated, rec)
			continue
		}
		rec.Amount = 0
		if d.spent > d.received {
			rec.Amount = d.spent - d.received
		}
		discovered = append(discovered, rec)
	}
	sort.Slice(updated, func(i, j int) bool { return updated[i].TxID < updated[j].TxID })
	sort.Slice(discovered, func(i, j int) bool {
		return discovered[i].TxID < discovered[j].TxID
	})
	return updated, discovered
}

// persist writes the changed records within the transaction in ctx.
func (h *historyBook) persist(ctx context.Context) error {
	updated, discovered := h.finalize()
	for _, rec := range discovered {
		existing, err := h.repo.GetTransaction(ctx, rec.TxID)
		if err != nil && !errors.Is(err, domain.ErrTxNotFound) {
			return err
		}
		if existing != nil && existing.Direction == domain.TxDirectionSent {
			continue
		}
		updated = append(updated, rec)
	}
	if len(updated) <= 0 {
		return nil
	}
	return h.repo.AddOrUpdateTransactions(ctx, updated)
}
