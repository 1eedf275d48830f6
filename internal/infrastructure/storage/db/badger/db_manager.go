package dbbadger

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/dgraph-io/badger/v3"
	"github.com/dgraph-io/badger/v3/options"
	"github.com/tdex-network/tdex-wallet/internal/core/domain"
	"github.com/tdex-network/tdex-wallet/internal/core/ports"
	"github.com/timshannon/badgerhold/v4"
)

const maxTxRetries = 5

type txCtxKey struct{}

// ErrTxConflict is returned when a read-write transaction keeps conflicting
// with concurrent ones.
var ErrTxConflict = errors.New("db transaction conflict, max retries reached")

// DbManager holds the badgerhold store shared by all the wallet
// repositories.
type DbManager struct {
	Store *badgerhold.Store

	vaultRepository  domain.VaultRepository
	outputRepository domain.OutputRepository
	syncRepository   domain.SyncRepository
	txRepository     domain.TransactionRepository
}

// NewDbManager opens (or creates if not exists) the badger store on disk. It
// expects a base data dir and an optional logger. An empty dir opens an
// in-memory store.
func NewDbManager(dbDir string, logger badger.Logger) (*DbManager, error) {
	store, err := createDb(dbDir, logger)
	if err != nil {
		return nil, fmt.Errorf("opening wallet db: %w", err)
	}

	db := &DbManager{Store: store}
	db.vaultRepository = newVaultRepositoryImpl(db)
	db.outputRepository = newOutputRepositoryImpl(db)
	db.syncRepository = newSyncRepositoryImpl(db)
	db.txRepository = newTransactionRepositoryImpl(db)
	return db, nil
}

// NewRepoManager returns the DbManager as a ports.RepoManager.
func NewRepoManager(dbDir string, logger badger.Logger) (ports.RepoManager, error) {
	return NewDbManager(dbDir, logger)
}

func (d *DbManager) VaultRepository() domain.VaultRepository {
	return d.vaultRepository
}

func (d *DbManager) OutputRepository() domain.OutputRepository {
	return d.outputRepository
}

func (d *DbManager) SyncRepository() domain.SyncRepository {
	return d.syncRepository
}

func (d *DbManager) TransactionRepository() domain.TransactionRepository {
	return d.txRepository
}

// RunTransaction runs the handler within a badger transaction carried by the
// context. Read-write transactions are committed if the handler succeeds and
// retried on conflicts.
func (d *DbManager) RunTransaction(
	ctx context.Context,
	readOnly bool,
	handler func(ctx context.Context) (interface{}, error),
) (interface{}, error) {
	for i := 0; i < maxTxRetries; i++ {
		tx := d.Store.Badger().NewTransaction(!readOnly)
		txCtx := context.WithValue(ctx, txCtxKey{}, tx)

		res, err := handler(txCtx)
		if err != nil {
			tx.Discard()
			return nil, err
		}
		if readOnly {
			tx.Discard()
			return res, nil
		}

		if err := tx.Commit(); err != nil {
			if errors.Is(err, badger.ErrConflict) {
				continue
			}
			return nil, err
		}
		return res, nil
	}
	return nil, ErrTxConflict
}

// Close closes the underlying store.
func (d *DbManager) Close() {
	d.Store.Close()
}

// JSONEncode is a custom JSON based encoder for badger
func JSONEncode(value interface{}) ([]byte, error) {
	var buff bytes.Buffer

	en := json.NewEncoder(&buff)

	err := en.Encode(value)
	if err != nil {
		return nil, err
	}

	return buff.Bytes(), nil
}

// JSONDecode is a custom JSON based decoder for badger
func JSONDecode(data []byte, value interface{}) error {
	return json.NewDecoder(bytes.NewReader(data)).Decode(value)
}

func createDb(dbDir string, logger badger.Logger) (*badgerhold.Store, error) {
	var opts badger.Options
	if len(dbDir) <= 0 {
		opts = badger.DefaultOptions("").WithInMemory(true)
	} else {
		opts = badger.DefaultOptions(dbDir)
		opts.Compression = options.ZSTD
	}
	opts.Logger = logger

	return badgerhold.Open(badgerhold.Options{
		Encoder:          JSONEncode,
		Decoder:          JSONDecode,
		SequenceBandwith: 100,
		Options:          opts,
	})
}

func txFromContext(ctx context.Context) *badger.Txn {
	if tx, ok := ctx.Value(txCtxKey{}).(*badger.Txn); ok {
		return tx
	}
	return nil
}
