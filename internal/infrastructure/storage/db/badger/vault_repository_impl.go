package dbbadger

import (
	"context"
	"errors"

	"github.com/tdex-network/tdex-wallet/internal/core/domain"
	"github.com/timshannon/badgerhold/v4"
)

const vaultKey = "vault"

type vaultRepositoryImpl struct {
	db *DbManager
}

func newVaultRepositoryImpl(db *DbManager) domain.VaultRepository {
	return vaultRepositoryImpl{db}
}

func (v vaultRepositoryImpl) GetVault(ctx context.Context) (*domain.Vault, error) {
	var (
		vault domain.Vault
		err   error
	)
	if tx := txFromContext(ctx); tx != nil {
		err = v.db.Store.TxGet(tx, vaultKey, &vault)
	} else {
		err = v.db.Store.Get(vaultKey, &vault)
	}
	if err != nil {
		if errors.Is(err, badgerhold.ErrNotFound) {
			return nil, domain.ErrVaultNotInitialized
		}
		return nil, err
	}
	if vault.Accounts == nil {
		vault.Accounts = map[uint32]*domain.Account{}
	}
	return &vault, nil
}

func (v vaultRepositoryImpl) UpdateVault(
	ctx context.Context, vault *domain.Vault,
) error {
	if vault == nil || !vault.IsInitialized() {
		return domain.ErrVaultNotInitialized
	}
	if tx := txFromContext(ctx); tx != nil {
		return v.db.Store.TxUpsert(tx, vaultKey, *vault)
	}
	return v.db.Store.Upsert(vaultKey, *vault)
}
