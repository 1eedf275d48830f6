package application

import "errors"

var (
	// ErrWalletExists ...
	ErrWalletExists = errors.New("wallet already exists")
	// ErrWalletNotFound ...
	ErrWalletNotFound = errors.New("wallet not found")
	// ErrInvalidWalletName ...
	ErrInvalidWalletName = errors.New(
		"wallet name must be 1 to 64 chars among letters, digits, '_' and '-'",
	)
	// ErrNoActiveWallet is returned when no wallet has been opened yet.
	ErrNoActiveWallet = errors.New("no active wallet")
	// ErrNetworkMismatch is returned when opening a wallet created for a
	// different network than the configured one.
	ErrNetworkMismatch = errors.New("wallet network does not match the configured one")
	// ErrWalletClosed is returned by the operations of a closed wallet.
	ErrWalletClosed = errors.New("wallet is closed")
	// ErrMissingDataSource ...
	ErrMissingDataSource = errors.New("missing blockchain data source")
	// ErrMissingRepoManager ...
	ErrMissingRepoManager = errors.New("missing repository manager")
)
