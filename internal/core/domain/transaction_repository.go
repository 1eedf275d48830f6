package domain

import "context"

type TransactionRepository interface {
	AddOrUpdateTransactions(ctx context.Context, records []*TxRecord) error
	// GetTransaction returns ErrTxNotFound if missing.
	GetTransaction(ctx context.Context, txid string) (*TxRecord, error)
	GetAllTransactions(ctx context.Context) ([]*TxRecord, error)
	GetTransactionsByStatus(ctx context.Context, status TxStatus) ([]*TxRecord, error)
}
