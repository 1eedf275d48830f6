package dbbadger

import (
	"context"
	"errors"
	"sort"

	"github.com/dgraph-io/badger/v3"
	"github.com/tdex-network/tdex-wallet/internal/core/domain"
	"github.com/timshannon/badgerhold/v4"
)

type transactionRepositoryImpl struct {
	db *DbManager
}

func newTransactionRepositoryImpl(db *DbManager) domain.TransactionRepository {
	return transactionRepositoryImpl{db}
}

func (t transactionRepositoryImpl) AddOrUpdateTransactions(
	ctx context.Context, records []*domain.TxRecord,
) error {
	fn := func(tx *badger.Txn) error {
		for _, record := range records {
			if err := t.db.Store.TxUpsert(tx, record.TxID, *record); err != nil {
				return err
			}
		}
		return nil
	}
	if tx := txFromContext(ctx); tx != nil {
		return fn(tx)
	}
	return t.db.Store.Badger().Update(fn)
}

func (t transactionRepositoryImpl) GetTransaction(
	ctx context.Context, txid string,
) (*domain.TxRecord, error) {
	var (
		record domain.TxRecord
		err    error
	)
	if tx := txFromContext(ctx); tx != nil {
		err = t.db.Store.TxGet(tx, txid, &record)
	} else {
		err = t.db.Store.Get(txid, &record)
	}
	if err != nil {
		if errors.Is(err, badgerhold.ErrNotFound) {
			return nil, domain.ErrTxNotFound
		}
		return nil, err
	}
	return &record, nil
}

func (t transactionRepositoryImpl) GetAllTransactions(
	ctx context.Context,
) ([]*domain.TxRecord, error) {
	return t.findTransactions(ctx, nil)
}

func (t transactionRepositoryImpl) GetTransactionsByStatus(
	ctx context.Context, status domain.TxStatus,
) ([]*domain.TxRecord, error) {
	return t.findTransactions(ctx, badgerhold.Where("Status").Eq(status))
}

func (t transactionRepositoryImpl) findTransactions(
	ctx context.Context, query *badgerhold.Query,
) ([]*domain.TxRecord, error) {
	var (
		records []domain.TxRecord
		err     error
	)
	if tx := txFromContext(ctx); tx != nil {
		err = t.db.Store.TxFind(tx, &records, query)
	} else {
		err = t.db.Store.Find(&records, query)
	}
	if err != nil {
		return nil, err
	}

	// Newest first.
	sort.SliceStable(records, func(i, j int) bool {
		if records[i].CreatedAt != records[j].CreatedAt {
			return records[i].CreatedAt > records[j].CreatedAt
		}
		return records[i].TxID < records[j].TxID
	})

	res := make([]*domain.TxRecord, 0, len(records))
	for i := range records {
		res = append(res, &records[i])
	}
	return res, nil
}
