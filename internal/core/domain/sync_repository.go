package domain

import "context"

type SyncRepository interface {
	// GetSyncState returns nil if the wallet never synced.
	GetSyncState(ctx context.Context) (*SyncState, error)
	UpdateSyncState(ctx context.Context, state *SyncState) error
}
