package dbbadger

import (
	"context"
	"errors"

	"github.com/tdex-network/tdex-wallet/internal/core/domain"
	"github.com/timshannon/badgerhold/v4"
)

const syncStateKey = "sync"

type syncRepositoryImpl struct {
	db *DbManager
}

func newSyncRepositoryImpl(db *DbManager) domain.SyncRepository {
	return syncRepositoryImpl{db}
}

func (s syncRepositoryImpl) GetSyncState(
	ctx context.Context,
) (*domain.SyncState, error) {
	var (
		state domain.SyncState
		err   error
	)
	if tx := txFromContext(ctx); tx != nil {
		err = s.db.Store.TxGet(tx, syncStateKey, &state)
	} else {
		err = s.db.Store.Get(syncStateKey, &state)
	}
	if err != nil {
		if errors.Is(err, badgerhold.ErrNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &state, nil
}

func (s syncRepositoryImpl) UpdateSyncState(
	ctx context.Context, state *domain.SyncState,
) error {
	if tx := txFromContext(ctx); tx != nil {
		return s.db.Store.TxUpsert(tx, syncStateKey, *state)
	}
	return s.db.Store.Upsert(syncStateKey, *state)
}
