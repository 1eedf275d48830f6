package application

import (
	"context"
	"sync"

	log "github.com/sirupsen/logrus"
	"github.com/tdex-network/tdex-wallet/internal/core/domain"
	"github.com/tdex-network/tdex-wallet/internal/core/ports"
)

const readOnlyTx = true

// walletStore binds the in-memory aggregates of a wallet to their
// repositories.
type walletStore struct {
	repo    ports.RepoManager
	vault   *domain.KeyVault
	outputs *domain.OutputSet

	vaultLock *sync.Mutex
}

func newWalletStore(
	repo ports.RepoManager, vault *domain.KeyVault, outputs *domain.OutputSet,
) *walletStore {
	return &walletStore{
		repo:      repo,
		vault:     vault,
		outputs:   outputs,
		vaultLock: &sync.Mutex{},
	}
}

// persistVault writes the current state of the vault. Copies are taken and
// written under the same lock so that an older copy never overwrites a
// newer one.
func (s *walletStore) persistVault(ctx context.Context) error {
	s.vaultLock.Lock()
	defer s.vaultLock.Unlock()

	return s.repo.VaultRepository().UpdateVault(ctx, s.vault.Vault())
}

// persistOutputs writes the current state of the outputs with the given
// keys.
func (s *walletStore) persistOutputs(
	ctx context.Context, keys []domain.OutputKey,
) error {
	if len(keys) <= 0 {
		return nil
	}
	outputs := make([]domain.Output, 0, len(keys))
	for _, key := range keys {
		if o, ok := s.outputs.Get(key); ok {
			outputs = append(outputs, o)
		}
	}
	return s.repo.OutputRepository().AddOrUpdateOutputs(ctx, outputs)
}

// reloadOutputs replaces the in-memory output set with the persisted one.
// It's used to discard in-memory changes whose persistence failed.
func (s *walletStore) reloadOutputs(ctx context.Context) {
	outputs, err := s.repo.OutputRepository().GetAllOutputs(ctx)
	if err != nil {
		log.WithError(err).Error("failed to reload outputs from storage")
		return
	}
	if err := s.outputs.Restore(outputs, s.outputs.TipHeight()); err != nil {
		log.WithError(err).Error("failed to restore outputs from storage")
	}
}

func keysOf(outputs []domain.Output) []domain.OutputKey {
	keys := make([]domain.OutputKey, 0, len(outputs))
	for _, o := range outputs {
		keys = append(keys, o.Key())
	}
	return keys
}
