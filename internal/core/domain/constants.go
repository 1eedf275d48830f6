package domain

const (
	// DefaultAccount is the only account used by the wallet's UI surface.
	DefaultAccount = 0

	ExternalChain = 0
	InternalChain = 1

	// MaxSatoshi is the max amount of sats that can ever exist.
	MaxSatoshi = 21e14

	// DefaultGapLimit is the number of scripts derived ahead of the last used
	// address for each chain of an account.
	DefaultGapLimit = 20
	// DefaultAncestryDepth is the number of block headers remembered for
	// fork detection.
	DefaultAncestryDepth = 144
	// DefaultMinConfirmations is the number of confirmations required for an
	// output to be spendable.
	DefaultMinConfirmations = 1
)
