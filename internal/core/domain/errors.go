package domain

import "errors"

// Security errors. Always fatal to the operation, never retried.
var (
	// ErrVaultLocked is returned when an operation needs the decrypted seed
	// but the vault is locked.
	ErrVaultLocked = errors.New("vault is locked")
	// ErrWrongPassphrase is returned when the seed can't be decrypted with the
	// given passphrase.
	ErrWrongPassphrase = errors.New("wrong passphrase")
	// ErrSigningMismatch is returned when a produced signature fails local
	// verification.
	ErrSigningMismatch = errors.New("signature does not verify against input public key")
)

// Data errors.
var (
	// ErrUnknownOutput is returned when referencing an output that is not in
	// the set or that is already spent.
	ErrUnknownOutput = errors.New("unknown or already spent output")
	// ErrDataCorrupt is returned when the data source reports inconsistent
	// data. Recovery requires an explicit rescan.
	ErrDataCorrupt = errors.New("data source returned corrupt data, rescan required")
	// ErrInvalidPath is returned for malformed derivation paths.
	ErrInvalidPath = errors.New("invalid derivation path")
)

// Resource errors. No side effects are left behind.
var (
	// ErrInsufficientFunds ...
	ErrInsufficientFunds = errors.New("insufficient funds")
	// ErrDustOutput is returned when an output amount is below the minimum
	// transferable value.
	ErrDustOutput = errors.New("output amount is dust")
	// ErrFeeEstimationDiverged is returned when coin selection and fee
	// estimation did not reach a stable point.
	ErrFeeEstimationDiverged = errors.New("fee estimation did not converge")
)

// Transient errors.
var (
	// ErrTransientNetwork marks retryable failures of the data source.
	ErrTransientNetwork = errors.New("transient network error")
	// ErrSyncStalled is returned when sync exhausted its retries. Wallet state
	// is left at the last fully applied block.
	ErrSyncStalled = errors.New("sync stalled")
	// ErrBroadcastPending is returned when the outcome of a broadcast is
	// unknown: the transaction may have reached the network.
	ErrBroadcastPending = errors.New("broadcast pending, check chain")
)

var (
	// ErrInvalidOutput ...
	ErrInvalidOutput = errors.New("output must have a txid and a non empty script")
	// ErrOutputAlreadyReserved ...
	ErrOutputAlreadyReserved = errors.New("output is already reserved")
	// ErrReservationNotFound ...
	ErrReservationNotFound = errors.New("reservation not found")
	// ErrInvalidAmount ...
	ErrInvalidAmount = errors.New("amount must be greater than zero")
	// ErrNullPassphrase ...
	ErrNullPassphrase = errors.New("passphrase must not be null")
	// ErrVaultNotInitialized ...
	ErrVaultNotInitialized = errors.New("vault is not initialized")
	// ErrAccountNotFound ...
	ErrAccountNotFound = errors.New("account not found")
	// ErrNoRecipients ...
	ErrNoRecipients = errors.New("at least one recipient is required")
	// ErrInvalidFeeRate ...
	ErrInvalidFeeRate = errors.New("fee rate must be greater than zero")
	// ErrInvalidTx is returned when a transaction breaks the
	// sum(inputs) = sum(outputs) + fee rule or is otherwise malformed.
	ErrInvalidTx = errors.New("invalid transaction")
	// ErrTxRejected is returned when the network definitely refused a
	// transaction.
	ErrTxRejected = errors.New("transaction rejected")
	// ErrTxNotFound ...
	ErrTxNotFound = errors.New("transaction not found")
)

// ErrorKind classifies errors so that callers can tell "definitely failed"
// from "unknown outcome".
type ErrorKind int

const (
	KindUnknown ErrorKind = iota
	KindSecurity
	KindData
	KindResource
	KindTransient
)

func (k ErrorKind) String() string {
	switch k {
	case KindSecurity:
		return "Security"
	case KindData:
		return "Data"
	case KindResource:
		return "Resource"
	case KindTransient:
		return "Transient"
	default:
		return "Unknown"
	}
}

var errorKinds = []struct {
	err  error
	kind ErrorKind
}{
	{ErrVaultLocked, KindSecurity},
	{ErrWrongPassphrase, KindSecurity},
	{ErrSigningMismatch, KindSecurity},
	{ErrUnknownOutput, KindData},
	{ErrDataCorrupt, KindData},
	{ErrInvalidPath, KindData},
	{ErrInsufficientFunds, KindResource},
	{ErrDustOutput, KindResource},
	{ErrFeeEstimationDiverged, KindResource},
	{ErrTransientNetwork, KindTransient},
	{ErrSyncStalled, KindTransient},
	{ErrBroadcastPending, KindTransient},
}

// KindOf returns the class of the given error.
func KindOf(err error) ErrorKind {
	if err == nil {
		return KindUnknown
	}
	for _, k := range errorKinds {
		if errors.Is(err, k.err) {
			return k.kind
		}
	}
	return KindUnknown
}

// IsOutcomeUnknown returns whether the error leaves the outcome of an
// operation undetermined (eg. a broadcast that may have reached the
// network).
func IsOutcomeUnknown(err error) bool {
	return errors.Is(err, ErrBroadcastPending) || errors.Is(err, ErrSyncStalled)
}

// IsRetryable returns whether the error is transient.
func IsRetryable(err error) bool {
	return errors.Is(err, ErrTransientNetwork)
}
