package domain

import "context"

type OutputRepository interface {
	AddOrUpdateOutputs(ctx context.Context, outputs []Output) error
	DeleteOutputs(ctx context.Context, keys []OutputKey) error
	GetAllOutputs(ctx context.Context) ([]Output, error)
	GetUnspentOutputs(ctx context.Context) ([]Output, error)
	GetOutputsForAddress(ctx context.Context, address string) ([]Output, error)
}
