package dbbadger

import (
	"context"
	"errors"
	"sort"

	"github.com/dgraph-io/badger/v3"
	"github.com/tdex-network/tdex-wallet/internal/core/domain"
	"github.com/timshannon/badgerhold/v4"
)

type outputRepositoryImpl struct {
	db *DbManager
}

func newOutputRepositoryImpl(db *DbManager) domain.OutputRepository {
	return outputRepositoryImpl{db}
}

func (o outputRepositoryImpl) AddOrUpdateOutputs(
	ctx context.Context, outputs []domain.Output,
) error {
	return o.withTx(ctx, func(tx *badger.Txn) error {
		for _, output := range outputs {
			key := output.Key().String()
			if err := o.db.Store.TxUpsert(tx, key, output); err != nil {
				return err
			}
		}
		return nil
	})
}

func (o outputRepositoryImpl) DeleteOutputs(
	ctx context.Context, keys []domain.OutputKey,
) error {
	return o.withTx(ctx, func(tx *badger.Txn) error {
		for _, key := range keys {
			err := o.db.Store.TxDelete(tx, key.String(), domain.Output{})
			if err != nil && !errors.Is(err, badgerhold.ErrNotFound) {
				return err
			}
		}
		return nil
	})
}

func (o outputRepositoryImpl) GetAllOutputs(
	ctx context.Context,
) ([]domain.Output, error) {
	return o.findOutputs(ctx, nil)
}

func (o outputRepositoryImpl) GetUnspentOutputs(
	ctx context.Context,
) ([]domain.Output, error) {
	return o.findOutputs(ctx, badgerhold.Where("Spent").Eq(false))
}

func (o outputRepositoryImpl) GetOutputsForAddress(
	ctx context.Context, address string,
) ([]domain.Output, error) {
	return o.findOutputs(ctx, badgerhold.Where("Address").Eq(address))
}

func (o outputRepositoryImpl) findOutputs(
	ctx context.Context, query *badgerhold.Query,
) ([]domain.Output, error) {
	var (
		outputs []domain.Output
		err     error
	)
	if tx := txFromContext(ctx); tx != nil {
		err = o.db.Store.TxFind(tx, &outputs, query)
	} else {
		err = o.db.Store.Find(&outputs, query)
	}
	if err != nil {
		return nil, err
	}

	sort.Slice(outputs, func(i, j int) bool {
		if outputs[i].TxID != outputs[j].TxID {
			return outputs[i].TxID < outputs[j].TxID
		}
		return outputs[i].VOut < outputs[j].VOut
	})
	return outputs, nil
}

// withTx runs fn in the transaction of the context, if any, or in a new
// read-write one.
func (o outputRepositoryImpl) withTx(
	ctx context.Context, fn func(tx *badger.Txn) error,
) error {
	if tx := txFromContext(ctx); tx != nil {
		return fn(tx)
	}
	return o.db.Store.Badger().Update(fn)
}
