package ports

import (
	"context"

	"github.com/tdex-network/tdex-wallet/internal/core/domain"
)

// RepoManager gives access to the wallet repositories, all backed by the
// same store so that a handler run by RunTransaction is applied atomically.
type RepoManager interface {
	VaultRepository() domain.VaultRepository
	OutputRepository() domain.OutputRepository
	SyncRepository() domain.SyncRepository
	TransactionRepository() domain.TransactionRepository

	RunTransaction(
		ctx context.Context,
		readOnly bool,
		handler func(ctx context.Context) (interface{}, error),
	) (interface{}, error)

	Close()
}
