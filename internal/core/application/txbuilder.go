package application

import (
	"fmt"

	"github.com/btcsuite/btcd/btcutil"
	"github.com/btcsuite/btcd/chaincfg/chainhash"
	"github.com/btcsuite/btcd/wire"
	"github.com/btcsuite/btcwallet/wallet/txrules"
	log "github.com/sirupsen/logrus"
	"github.com/tdex-network/tdex-wallet/internal/core/domain"
	"github.com/tdex-network/tdex-wallet/pkg/wallet"
)

const (
	// DefaultMaxIterations is the max number of select-and-estimate rounds
	// made to fund a transaction.
	DefaultMaxIterations = 10

	txVersion = 2
)

// changeScriptSizeTemplate is a P2WPKH script used to estimate the size of
// the change output before deriving its address.
var changeScriptSizeTemplate = append([]byte{0x00, 0x14}, make([]byte, 20)...)

// TxBuilderOption ...
type TxBuilderOption func(*TxBuilder)

// WithMaxIterations sets the max number of select-and-estimate rounds.
func WithMaxIterations(n int) TxBuilderOption {
	return func(b *TxBuilder) {
		if n > 0 {
			b.maxIterations = n
		}
	}
}

// WithDustRelayFee sets the relay fee rate, in sats/kvB, used to tell dust
// outputs.
func WithDustRelayFee(fee btcutil.Amount) TxBuilderOption {
	return func(b *TxBuilder) {
		if fee >= 0 {
			b.dustRelayFee = fee
		}
	}
}

// WithSelectionStrategy ...
func WithSelectionStrategy(strategy domain.SelectionStrategy) TxBuilderOption {
	return func(b *TxBuilder) {
		b.strategy = strategy
	}
}

// WithAccount sets the account paying for the transactions and receiving
// their change.
func WithAccount(account uint32) TxBuilderOption {
	return func(b *TxBuilder) {
		b.account = account
	}
}

// TxBuilder turns a list of recipients into an unsigned transaction funded
// by reserved wallet outputs.
type TxBuilder struct {
	outputs       *domain.OutputSet
	vault         *domain.KeyVault
	strategy      domain.SelectionStrategy
	maxIterations int
	dustRelayFee  btcutil.Amount
	account       uint32
}

// NewTxBuilder ...
func NewTxBuilder(
	outputs *domain.OutputSet, vault *domain.KeyVault, opts ...TxBuilderOption,
) *TxBuilder {
	b := &TxBuilder{
		outputs:       outputs,
		vault:         vault,
		strategy:      domain.StrategyDefault,
		maxIterations: DefaultMaxIterations,
		dustRelayFee:  txrules.DefaultRelayFeePerKb,
		account:       domain.DefaultAccount,
	}
	for _, opt := range opts {
		opt(b)
	}
	return b
}

// Build selects and reserves the outputs to pay the recipients plus the fee
// at the given rate, in sats/kvB. Change goes to a new internal address
// unless it would be dust, in which case it's left to the fee.
// On success the returned transaction holds the reservation id, that the
// caller must either consume or release. On failure nothing stays reserved.
func (b *TxBuilder) Build(
	recipients []domain.Recipient, feeRate btcutil.Amount,
) (*domain.UnsignedTx, error) {
	if len(recipients) <= 0 {
		return nil, domain.ErrNoRecipients
	}
	if feeRate <= 0 {
		return nil, domain.ErrInvalidFeeRate
	}

	outputs, err := b.parseRecipients(recipients)
	if err != nil {
		return nil, err
	}
	target := uint64(0)
	outScripts := make([][]byte, 0, len(outputs)+1)
	for _, out := range outputs {
		target += out.Amount
		outScripts = append(outScripts, out.Script)
	}
	if target > domain.MaxSatoshi {
		return nil, fmt.Errorf("%w: total amount exceeds max supply", domain.ErrInvalidAmount)
	}
	outScripts = append(outScripts, changeScriptSizeTemplate)

	feeEstimate := feeFor(feeRate, 1, outScripts)
	for i := 0; i < b.maxIterations; i++ {
		reservation, err := b.outputs.Reserve(target+feeEstimate, b.strategy)
		if err != nil {
			return nil, err
		}

		fee := feeFor(feeRate, len(reservation.Outputs), outScripts)
		if reservation.Total >= target+fee {
			unsigned, err := b.buildTx(reservation, outputs, target, feeRate)
			if err != nil {
				b.release(reservation)
				return nil, err
			}

			log.WithFields(log.Fields{
				"inputs":     len(unsigned.Inputs),
				"outputs":    len(unsigned.Outputs),
				"fee":        unsigned.Fee,
				"iterations": i + 1,
			}).Debug("built transaction")
			return unsigned, nil
		}

		b.release(reservation)
		feeEstimate = fee
	}
	return nil, domain.ErrFeeEstimationDiverged
}

func (b *TxBuilder) buildTx(
	reservation *domain.Reservation, outputs []domain.TxOutput,
	target uint64, feeRate btcutil.Amount,
) (*domain.UnsignedTx, error) {
	outScripts := make([][]byte, 0, len(outputs)+1)
	for _, out := range outputs {
		outScripts = append(outScripts, out.Script)
	}
	outScripts = append(outScripts, changeScriptSizeTemplate)
	feeWithChange := feeFor(feeRate, len(reservation.Outputs), outScripts)

	unsigned := &domain.UnsignedTx{
		ReservationID: reservation.ID,
		Inputs:        reservation.Outputs,
		Outputs:       append([]domain.TxOutput{}, outputs...),
		Fee:           reservation.Total - target,
	}

	excess := reservation.Total - target - feeWithChange
	changeOut := wire.NewTxOut(int64(excess), changeScriptSizeTemplate)
	if excess > 0 && !txrules.IsDustOutput(changeOut, b.dustRelayFee) {
		key, err := b.vault.NextAddress(b.account, domain.InternalChain)
		if err != nil {
			return nil, err
		}
		unsigned.Outputs = append(unsigned.Outputs, domain.TxOutput{
			Script: key.Script,
			Amount: excess,
		})
		unsigned.Change = &domain.Change{
			Index:   len(unsigned.Outputs) - 1,
			Amount:  excess,
			Path:    key.Path.String(),
			Address: key.Address,
		}
		unsigned.Fee = feeWithChange
	}

	tx := wire.NewMsgTx(txVersion)
	for _, in := range unsigned.Inputs {
		hash, err := chainhash.NewHashFromStr(in.TxID)
		if err != nil {
			return nil, fmt.Errorf("%w: input %s", domain.ErrInvalidOutput, in.Key())
		}
		tx.AddTxIn(wire.NewTxIn(wire.NewOutPoint(hash, in.VOut), nil, nil))
	}
	for _, out := range unsigned.Outputs {
		tx.AddTxOut(wire.NewTxOut(int64(out.Amount), out.Script))
	}
	unsigned.Tx = tx

	if err := unsigned.Validate(); err != nil {
		return nil, err
	}
	return unsigned, nil
}

func (b *TxBuilder) parseRecipients(
	recipients []domain.Recipient,
) ([]domain.TxOutput, error) {
	outputs := make([]domain.TxOutput, 0, len(recipients))
	for i, r := range recipients {
		script := r.Script
		if len(script) <= 0 {
			var err error
			script, err = wallet.ScriptFromAddress(r.Address, b.vault.Network())
			if err != nil {
				return nil, fmt.Errorf("recipient %d: %w", i, err)
			}
		}
		if r.Amount == 0 || r.Amount > domain.MaxSatoshi {
			return nil, fmt.Errorf("%w: recipient %d", domain.ErrDustOutput, i)
		}
		if txrules.IsDustOutput(wire.NewTxOut(int64(r.Amount), script), b.dustRelayFee) {
			return nil, fmt.Errorf(
				"%w: recipient %d amount %d", domain.ErrDustOutput, i, r.Amount,
			)
		}
		outputs = append(outputs, domain.TxOutput{Script: script, Amount: r.Amount})
	}
	return outputs, nil
}

func (b *TxBuilder) release(reservation *domain.Reservation) {
	if err := b.outputs.Release(reservation.ID); err != nil {
		log.WithError(err).Warnf(
			"failed to release reservation %s", reservation.ID,
		)
	}
}

func feeFor(feeRate btcutil.Amount, nInputs int, outScripts [][]byte) uint64 {
	size := wallet.EstimateP2WPKHSpendSize(nInputs, outScripts)
	return uint64(txrules.FeeForSerializeSize(feeRate, size))
}
