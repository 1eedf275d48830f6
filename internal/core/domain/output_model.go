package domain

import (
	"fmt"

	"github.com/google/uuid"
)

// OutputKey represents the ID of an Output, composed by its txid and vout.
type OutputKey struct {
	TxID string
	VOut uint32
}

func (k OutputKey) String() string {
	return fmt.Sprintf("%s:%d", k.TxID, k.VOut)
}

// Output is the data structure representing a wallet UTXO with some other
// information like whether it is spent/unspent, confirmed/unconfirmed or
// reserved by some not yet broadcasted transaction.
type Output struct {
	TxID            string
	VOut            uint32
	Script          []byte
	Address         string
	DerivationPath  string
	Amount          uint64
	ConfirmedHeight *uint32
	Spent           bool
	SpentHeight     *uint32
	SpentBy         string
	ReservedBy      *uuid.UUID
}

// Key returns the OutputKey of the current output.
func (o *Output) Key() OutputKey {
	return OutputKey{
		TxID: o.TxID,
		VOut: o.VOut,
	}
}

// IsKeyEqual returns whether the provided OutputKey matches that of the
// current output.
func (o *Output) IsKeyEqual(key OutputKey) bool {
	return o.TxID == key.TxID && o.VOut == key.VOut
}

// IsConfirmed returns whether the output is included in a block.
func (o *Output) IsConfirmed() bool {
	return o.ConfirmedHeight != nil
}

// IsSpent returns whether the output is already spent, either by a
// transaction in mempool or in a block.
func (o *Output) IsSpent() bool {
	return o.Spent
}

// IsReserved returns whether the output is reserved by a transaction being
// built or not yet broadcasted.
func (o *Output) IsReserved() bool {
	return o.ReservedBy != nil
}

// Confirmations returns the number of confirmations given the current chain
// tip. Unconfirmed outputs have zero confirmations.
func (o *Output) Confirmations(tipHeight uint32) uint32 {
	if !o.IsConfirmed() || *o.ConfirmedHeight > tipHeight {
		return 0
	}
	return tipHeight - *o.ConfirmedHeight + 1
}

// IsSpendable returns whether the output can be selected as input of a new
// transaction.
func (o *Output) IsSpendable(tipHeight, minConfirmations uint32) bool {
	if o.IsSpent() || o.IsReserved() || !o.IsConfirmed() {
		return false
	}
	return o.Confirmations(tipHeight) >= minConfirmations
}

// Confirm sets the confirmation height of the output.
func (o *Output) Confirm(height uint32) {
	h := height
	o.ConfirmedHeight = &h
}

// Unconfirm moves the output back to the unconfirmed status.
func (o *Output) Unconfirm() {
	o.ConfirmedHeight = nil
}

// Spend marks the output as spent by the given transaction. A nil height
// means that the spending transaction is not yet in a block.
func (o *Output) Spend(txid string, height *uint32) {
	o.Spent = true
	o.SpentBy = txid
	o.SpentHeight = nil
	if height != nil {
		h := *height
		o.SpentHeight = &h
	}
	o.ReservedBy = nil
}

// Unspend reverts a spend.
func (o *Output) Unspend() {
	o.Spent = false
	o.SpentBy = ""
	o.SpentHeight = nil
}

// Reserve marks the output as reserved by the given reservation.
func (o *Output) Reserve(id uuid.UUID) error {
	if o.IsReserved() {
		if *o.ReservedBy != id {
			return ErrOutputAlreadyReserved
		}
		return nil
	}
	o.ReservedBy = &id
	return nil
}

// Release removes the reservation from the output.
func (o *Output) Release() {
	o.ReservedBy = nil
}

// Copy returns a deep copy of the output.
func (o *Output) Copy() Output {
	cp := *o
	cp.Script = append([]byte{}, o.Script...)
	if o.ConfirmedHeight != nil {
		h := *o.ConfirmedHeight
		cp.ConfirmedHeight = &h
	}
	if o.SpentHeight != nil {
		h := *o.SpentHeight
		cp.SpentHeight = &h
	}
	if o.ReservedBy != nil {
		id := *o.ReservedBy
		cp.ReservedBy = &id
	}
	return cp
}

func (o *Output) validate() error {
	if len(o.TxID) != 64 || len(o.Script) <= 0 {
		return ErrInvalidOutput
	}
	if o.Amount > MaxSatoshi {
		return fmt.Errorf("%w: amount %d exceeds max supply", ErrInvalidOutput, o.Amount)
	}
	return nil
}
