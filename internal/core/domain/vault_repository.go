package domain

import "context"

// VaultRepository persists the wallet's Vault.
type VaultRepository interface {
	// GetVault returns ErrVaultNotInitialized if no vault is stored.
	GetVault(ctx context.Context) (*Vault, error)
	UpdateVault(ctx context.Context, vault *Vault) error
}
