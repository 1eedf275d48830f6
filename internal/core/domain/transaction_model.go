package domain

import (
	"bytes"
	"encoding/hex"
	"fmt"
	"time"

	"github.com/btcsuite/btcd/wire"
	"github.com/google/uuid"
)

// Recipient is the receiver of a transaction output.
type Recipient struct {
	Address string
	Script  []byte
	Amount  uint64
}

// TxOutput ...
type TxOutput struct {
	Script []byte
	Amount uint64
}

// Change describes the output of a transaction paying back to the wallet.
type Change struct {
	Index   int
	Amount  uint64
	Path    string
	Address string
}

// UnsignedTx is a transaction built from reserved wallet outputs, waiting to
// be signed.
type UnsignedTx struct {
	ReservationID uuid.UUID
	Inputs        []Output
	Outputs       []TxOutput
	Fee           uint64
	Change        *Change
	Tx            *wire.MsgTx
}

// InputTotal returns the sum of the input amounts.
func (u *UnsignedTx) InputTotal() uint64 {
	var total uint64
	for _, in := range u.Inputs {
		total += in.Amount
	}
	return total
}

// OutputTotal returns the sum of the output amounts, change included.
func (u *UnsignedTx) OutputTotal() uint64 {
	var total uint64
	for _, out := range u.Outputs {
		total += out.Amount
	}
	return total
}

// Validate checks that inputs equal outputs plus fee exactly and that the
// wire transaction matches.
func (u *UnsignedTx) Validate() error {
	if len(u.Inputs) <= 0 || len(u.Outputs) <= 0 {
		return fmt.Errorf("%w: missing inputs or outputs", ErrInvalidTx)
	}
	if u.InputTotal() != u.OutputTotal()+u.Fee {
		return fmt.Errorf(
			"%w: inputs %d != outputs %d + fee %d",
			ErrInvalidTx, u.InputTotal(), u.OutputTotal(), u.Fee,
		)
	}
	if u.Tx == nil ||
		len(u.Tx.TxIn) != len(u.Inputs) || len(u.Tx.TxOut) != len(u.Outputs) {
		return fmt.Errorf("%w: wire transaction mismatch", ErrInvalidTx)
	}
	for i, in := range u.Inputs {
		prevout := u.Tx.TxIn[i].PreviousOutPoint
		if prevout.Hash.String() != in.TxID || prevout.Index != in.VOut {
			return fmt.Errorf("%w: input %d mismatch", ErrInvalidTx, i)
		}
	}
	for i, out := range u.Outputs {
		txOut := u.Tx.TxOut[i]
		if txOut.Value < 0 || uint64(txOut.Value) != out.Amount ||
			!bytes.Equal(txOut.PkScript, out.Script) {
			return fmt.Errorf("%w: output %d mismatch", ErrInvalidTx, i)
		}
	}
	if u.Change != nil &&
		(u.Change.Index >= len(u.Outputs) ||
			u.Outputs[u.Change.Index].Amount != u.Change.Amount) {
		return fmt.Errorf("%w: change mismatch", ErrInvalidTx)
	}
	return nil
}

// SentAmount returns the amount paid to recipients, change excluded.
func (u *UnsignedTx) SentAmount() uint64 {
	total := u.OutputTotal()
	if u.Change != nil {
		total -= u.Change.Amount
	}
	return total
}

// SignedTx is an UnsignedTx with one witness per input. It's immutable once
// created, accessors return copies.
type SignedTx struct {
	unsigned UnsignedTx
	tx       *wire.MsgTx
	raw      []byte
	txid     string
}

// NewSignedTx attaches the witnesses to a copy of the unsigned transaction.
func NewSignedTx(unsigned *UnsignedTx, witnesses []wire.TxWitness) (*SignedTx, error) {
	if err := unsigned.Validate(); err != nil {
		return nil, err
	}
	if len(witnesses) != len(unsigned.Inputs) {
		return nil, fmt.Errorf(
			"%w: got %d signatures for %d inputs",
			ErrInvalidTx, len(witnesses), len(unsigned.Inputs),
		)
	}

	tx := unsigned.Tx.Copy()
	for i, w := range witnesses {
		if len(w) <= 0 {
			return nil, fmt.Errorf("%w: missing signature for input %d", ErrInvalidTx, i)
		}
		tx.TxIn[i].Witness = copyWitness(w)
	}

	var buf bytes.Buffer
	if err := tx.Serialize(&buf); err != nil {
		return nil, err
	}

	cp := *unsigned
	cp.Inputs = append([]Output{}, unsigned.Inputs...)
	cp.Outputs = append([]TxOutput{}, unsigned.Outputs...)
	cp.Tx = unsigned.Tx.Copy()
	if unsigned.Change != nil {
		change := *unsigned.Change
		cp.Change = &change
	}

	return &SignedTx{
		unsigned: cp,
		tx:       tx,
		raw:      buf.Bytes(),
		txid:     tx.TxHash().String(),
	}, nil
}

// TxID ...
func (s *SignedTx) TxID() string {
	return s.txid
}

// Bytes returns the consensus serialization of the transaction.
func (s *SignedTx) Bytes() []byte {
	return append([]byte{}, s.raw...)
}

// Hex ...
func (s *SignedTx) Hex() string {
	return hex.EncodeToString(s.raw)
}

// MsgTx returns a copy of the signed wire transaction.
func (s *SignedTx) MsgTx() *wire.MsgTx {
	return s.tx.Copy()
}

// Unsigned returns a copy of the transaction the signatures were made for.
func (s *SignedTx) Unsigned() UnsignedTx {
	cp := s.unsigned
	cp.Inputs = append([]Output{}, s.unsigned.Inputs...)
	cp.Outputs = append([]TxOutput{}, s.unsigned.Outputs...)
	cp.Tx = s.unsigned.Tx.Copy()
	if s.unsigned.Change != nil {
		change := *s.unsigned.Change
		cp.Change = &change
	}
	return cp
}

// NumSignatures ...
func (s *SignedTx) NumSignatures() int {
	return len(s.tx.TxIn)
}

func copyWitness(w wire.TxWitness) wire.TxWitness {
	cp := make(wire.TxWitness, 0, len(w))
	for _, item := range w {
		cp = append(cp, append([]byte{}, item...))
	}
	return cp
}

// TxStatus ...
type TxStatus int

const (
	// TxStatusPending is a transaction broadcasted, not yet in a block.
	TxStatusPending TxStatus = iota
	// TxStatusBroadcastPending is a transaction whose broadcast had an
	// unknown outcome. It's broadcasted again at every sync.
	TxStatusBroadcastPending
	TxStatusConfirmed
	TxStatusFailed
)

func (s TxStatus) String() string {
	switch s {
	case TxStatusBroadcastPending:
		return "broadcast-pending"
	case TxStatusConfirmed:
		return "confirmed"
	case TxStatusFailed:
		return "failed"
	default:
		return "pending"
	}
}

// TxDirection ...
type TxDirection int

const (
	TxDirectionReceived TxDirection = iota
	TxDirectionSent
)

func (d TxDirection) String() string {
	if d == TxDirectionSent {
		return "sent"
	}
	return "received"
}

// TxRecord is an entry of the wallet history.
type TxRecord struct {
	TxID      string
	RawHex    string
	Direction TxDirection
	Amount    uint64
	Fee       uint64
	Height    *uint32
	Status    TxStatus
	Attempts  int
	CreatedAt int64
	UpdatedAt int64
	// Received holds the keys of the wallet outputs created by the
	// transaction, to count them only once.
	Received []OutputKey
}

// NewSentTxRecord returns the history record of a transaction being
// broadcasted.
func NewSentTxRecord(tx *SignedTx) *TxRecord {
	unsigned := tx.Unsigned()
	now := time.Now().Unix()
	return &TxRecord{
		TxID:      tx.TxID(),
		RawHex:    tx.Hex(),
		Direction: TxDirectionSent,
		Amount:    unsigned.SentAmount(),
		Fee:       unsigned.Fee,
		Status:    TxStatusPending,
		CreatedAt: now,
		UpdatedAt: now,
	}
}

// NewReceivedTxRecord ...
func NewReceivedTxRecord(txid string) *TxRecord {
	now := time.Now().Unix()
	return &TxRecord{
		TxID:      txid,
		Direction: TxDirectionReceived,
		Status:    TxStatusPending,
		CreatedAt: now,
		UpdatedAt: now,
		Received:  make([]OutputKey, 0),
	}
}

// AddReceived adds the amount of a received output to the record, once per
// output key. It returns whether the record changed.
func (r *TxRecord) AddReceived(key OutputKey, amount uint64) bool {
	for _, k := range r.Received {
		if k == key {
			return false
		}
	}
	r.Received = append(r.Received, key)
	if r.Direction == TxDirectionReceived {
		r.Amount += amount
	}
	r.UpdatedAt = time.Now().Unix()
	return true
}

// Confirm marks the record as included in the block at the given height.
func (r *TxRecord) Confirm(height uint32) bool {
	if r.Status == TxStatusConfirmed && r.Height != nil && *r.Height == height {
		return false
	}
	h := height
	r.Height = &h
	r.Status = TxStatusConfirmed
	r.UpdatedAt = time.Now().Unix()
	return true
}

// Unconfirm moves the record back to pending after a reorg.
func (r *TxRecord) Unconfirm() {
	r.Height = nil
	r.Status = TxStatusPending
	r.UpdatedAt = time.Now().Unix()
}

// MarkBroadcastPending ...
func (r *TxRecord) MarkBroadcastPending() {
	r.Status = TxStatusBroadcastPending
	r.UpdatedAt = time.Now().Unix()
}

// MarkBroadcasted ...
func (r *TxRecord) MarkBroadcasted() {
	if r.Status == TxStatusConfirmed {
		return
	}
	r.Status = TxStatusPending
	r.UpdatedAt = time.Now().Unix()
}

// MarkFailed ...
func (r *TxRecord) MarkFailed() {
	r.Status = TxStatusFailed
	r.UpdatedAt = time.Now().Unix()
}

// IsConfirmed ...
func (r *TxRecord) IsConfirmed() bool {
	return r.Status == TxStatusConfirmed
}
