package domain

import (
	"fmt"
	"sort"
	"sync"

	"github.com/google/uuid"
)

// SelectionStrategy defines how outputs are picked to fund a transaction.
type SelectionStrategy int

const (
	// StrategyDefault picks the largest outputs until the target is reached,
	// then replaces the last pick with the smallest output that is still
	// sufficient.
	StrategyDefault SelectionStrategy = iota
	// StrategyLargestFirst picks outputs by descending amount.
	StrategyLargestFirst
	// StrategySmallestFirst picks outputs by ascending amount.
	StrategySmallestFirst
)

func (s SelectionStrategy) String() string {
	switch s {
	case StrategyLargestFirst:
		return "largest-first"
	case StrategySmallestFirst:
		return "smallest-first"
	default:
		return "default"
	}
}

// Balance is the view of the wallet funds at a given chain tip.
type Balance struct {
	// Spendable are funds confirmed with enough confirmations and not
	// reserved.
	Spendable uint64
	// Pending are funds not yet included in a block, or without enough
	// confirmations.
	Pending uint64
	// Reserved are funds locked by transactions being built or broadcasted.
	Reserved uint64
	// Total is the sum of all unspent outputs.
	Total uint64
}

// Reservation groups the outputs atomically selected and locked for a
// transaction.
type Reservation struct {
	ID      uuid.UUID
	Outputs []Output
	Total   uint64
}

// OutputSet is the aggregate tracking the wallet's known outputs. All
// mutations are serialized, reads return copies.
type OutputSet struct {
	lock             *sync.RWMutex
	outputs          map[OutputKey]*Output
	reservations     map[uuid.UUID][]OutputKey
	tipHeight        uint32
	minConfirmations uint32
}

// NewOutputSet returns an empty set. Outputs are spendable only once they
// have at least minConfirmations confirmations.
func NewOutputSet(minConfirmations uint32) *OutputSet {
	if minConfirmations == 0 {
		minConfirmations = DefaultMinConfirmations
	}
	return &OutputSet{
		lock:             &sync.RWMutex{},
		outputs:          make(map[OutputKey]*Output),
		reservations:     make(map[uuid.UUID][]OutputKey),
		minConfirmations: minConfirmations,
	}
}

// Spend is a spend of a wallet output observed on chain or in the mempool.
type Spend struct {
	Key     OutputKey
	SpentBy string
}

// Apply inserts the given output or updates its confirmation height if
// already known. It's idempotent by output key. A confirmed output is never
// moved back to unconfirmed by Apply, and a spent output is never
// resurrected. The returned bool tells whether the set changed.
func (s *OutputSet) Apply(output Output, confirmedHeight *uint32) (bool, error) {
	changed, err := s.ApplyBlock([]Output{output}, nil, confirmedHeight)
	if err != nil {
		return false, err
	}
	return len(changed) > 0, nil
}

// ApplyBlock applies the outputs and spends observed in the block at the
// given height, or in the mempool if height is nil. All changes are made
// under the same lock, so readers never see a part of them, and on error
// the set is left untouched. The spends can refer to the given outputs.
// Outputs follow the same rules of Apply. In the mempool, a spend of an
// output already spent is ignored. It returns the sorted keys of the changed
// outputs.
func (s *OutputSet) ApplyBlock(
	outputs []Output, spends []Spend, height *uint32,
) ([]OutputKey, error) {
	for i := range outputs {
		if err := outputs[i].validate(); err != nil {
			return nil, err
		}
	}

	s.lock.Lock()
	defer s.lock.Unlock()

	staged := make(map[OutputKey]*Output)
	lookup := func(key OutputKey) (*Output, bool) {
		if o, ok := staged[key]; ok {
			return o, true
		}
		o, ok := s.outputs[key]
		if !ok {
			return nil, false
		}
		cp := o.Copy()
		staged[key] = &cp
		return &cp, true
	}
	changed := make(map[OutputKey]bool)

	for _, output := range outputs {
		key := output.Key()
		current, ok := lookup(key)
		if !ok {
			o := output.Copy()
			o.ConfirmedHeight = nil
			o.ReservedBy = nil
			if height != nil {
				o.Confirm(*height)
			}
			staged[key] = &o
			changed[key] = true
			continue
		}
		if height == nil ||
			(current.IsConfirmed() && *current.ConfirmedHeight == *height) {
			continue
		}
		current.Confirm(*height)
		changed[key] = true
	}

	for _, spend := range spends {
		o, ok := lookup(spend.Key)
		if !ok {
			return nil, fmt.Errorf("%w: %s", ErrUnknownOutput, spend.Key)
		}
		if height == nil {
			if o.IsSpent() {
				continue
			}
		} else if o.IsSpent() && o.SpentBy == spend.SpentBy &&
			o.SpentHeight != nil && *o.SpentHeight == *height {
			continue
		}
		o.Spend(spend.SpentBy, height)
		changed[spend.Key] = true
	}

	keys := make([]OutputKey, 0, len(changed))
	for key := range changed {
		o := staged[key]
		if current, ok := s.outputs[key]; ok && current.IsReserved() && o.IsSpent() {
			s.dropFromReservation(current)
			o.Release()
		}
		s.outputs[key] = o
		keys = append(keys, key)
	}
	sortKeys(keys)
	return keys, nil
}

// MarkSpent marks the output as spent by a transaction not yet included in a
// block.
func (s *OutputSet) MarkSpent(key OutputKey, spendingTxID string) error {
	s.lock.Lock()
	defer s.lock.Unlock()

	o, ok := s.outputs[key]
	if !ok || o.IsSpent() {
		return ErrUnknownOutput
	}
	s.dropFromReservation(o)
	o.Spend(spendingTxID, nil)
	return nil
}

// MarkSpentAt records a spend observed in the block at the given height.
// Unlike MarkSpent, it accepts an output already spent by a mempool
// transaction and sets its spent height.
func (s *OutputSet) MarkSpentAt(
	key OutputKey, spendingTxID string, height uint32,
) (bool, error) {
	changed, err := s.ApplyBlock(
		nil, []Spend{{Key: key, SpentBy: spendingTxID}}, &height,
	)
	if err != nil {
		return false, err
	}
	return len(changed) > 0, nil
}

// RollbackAbove reverts all outputs confirmed above the given height to
// unconfirmed and removes the spends observed above that height. It returns
// the changed outputs.
func (s *OutputSet) RollbackAbove(height uint32) []Output {
	s.lock.Lock()
	defer s.lock.Unlock()

	changed := make([]Output, 0)
	for _, o := range s.outputs {
		dirty := false
		if o.IsConfirmed() && *o.ConfirmedHeight > height {
			o.Unconfirm()
			dirty = true
		}
		if o.IsSpent() && o.SpentHeight != nil && *o.SpentHeight > height {
			o.Unspend()
			dirty = true
		}
		if dirty {
			changed = append(changed, o.Copy())
		}
	}
	if s.tipHeight > height {
		s.tipHeight = height
	}
	sortOutputsByKey(changed)
	return changed
}

// Select returns an ordered subset of the spendable outputs whose total is
// at least target. The result is deterministic for the same set and target.
func (s *OutputSet) Select(
	target uint64, strategy SelectionStrategy,
) ([]Output, error) {
	s.lock.RLock()
	defer s.lock.RUnlock()

	selected, _, err := s.selectOutputs(target, strategy)
	if err != nil {
		return nil, err
	}
	return copyOutputs(selected), nil
}

// Reserve atomically selects and reserves outputs for the given target.
// Reserved outputs are excluded from further selections until released or
// consumed.
func (s *OutputSet) Reserve(
	target uint64, strategy SelectionStrategy,
) (*Reservation, error) {
	s.lock.Lock()
	defer s.lock.Unlock()

	selected, total, err := s.selectOutputs(target, strategy)
	if err != nil {
		return nil, err
	}

	id := uuid.New()
	keys := make([]OutputKey, 0, len(selected))
	for _, o := range selected {
		if err := o.Reserve(id); err != nil {
			s.releaseKeys(keys)
			return nil, err
		}
		keys = append(keys, o.Key())
	}
	s.reservations[id] = keys

	return &Reservation{
		ID:      id,
		Outputs: copyOutputs(selected),
		Total:   total,
	}, nil
}

// Release frees the outputs of the given reservation, making them selectable
// again.
func (s *OutputSet) Release(id uuid.UUID) error {
	s.lock.Lock()
	defer s.lock.Unlock()

	keys, ok := s.reservations[id]
	if !ok {
		return ErrReservationNotFound
	}
	s.releaseKeys(keys)
	delete(s.reservations, id)
	return nil
}

// Consume marks the outputs of the given reservation as spent by the given
// transaction and returns them.
func (s *OutputSet) Consume(id uuid.UUID, spendingTxID string) ([]Output, error) {
	s.lock.Lock()
	defer s.lock.Unlock()

	keys, ok := s.reservations[id]
	if !ok {
		return nil, ErrReservationNotFound
	}

	consumed := make([]Output, 0, len(keys))
	for _, key := range keys {
		o, ok := s.outputs[key]
		if !ok {
			continue
		}
		o.Spend(spendingTxID, nil)
		consumed = append(consumed, o.Copy())
	}
	delete(s.reservations, id)
	return consumed, nil
}

// RevertSpends makes spendable again the outputs spent by the given
// transaction that was never observed in a block, for example because the
// network rejected it. It returns the changed outputs.
func (s *OutputSet) RevertSpends(spendingTxID string) []Output {
	s.lock.Lock()
	defer s.lock.Unlock()

	reverted := make([]Output, 0)
	for _, o := range s.outputs {
		if o.IsSpent() && o.SpentBy == spendingTxID && o.SpentHeight == nil {
			o.Unspend()
			reverted = append(reverted, o.Copy())
		}
	}
	sortOutputsByKey(reverted)
	return reverted
}

// Get returns a copy of the output with the given key.
func (s *OutputSet) Get(key OutputKey) (Output, bool) {
	s.lock.RLock()
	defer s.lock.RUnlock()

	o, ok := s.outputs[key]
	if !ok {
		return Output{}, false
	}
	return o.Copy(), true
}

// Snapshot returns a deep copy of all the outputs, sorted by key.
func (s *OutputSet) Snapshot() []Output {
	s.lock.RLock()
	defer s.lock.RUnlock()

	outputs := make([]Output, 0, len(s.outputs))
	for _, o := range s.outputs {
		outputs = append(outputs, o.Copy())
	}
	sortOutputsByKey(outputs)
	return outputs
}

// Unspents returns a copy of the unspent outputs, sorted by key.
func (s *OutputSet) Unspents() []Output {
	s.lock.RLock()
	defer s.lock.RUnlock()

	outputs := make([]Output, 0, len(s.outputs))
	for _, o := range s.outputs {
		if !o.IsSpent() {
			outputs = append(outputs, o.Copy())
		}
	}
	sortOutputsByKey(outputs)
	return outputs
}

// Balance returns the current view of the funds.
func (s *OutputSet) Balance() Balance {
	s.lock.RLock()
	defer s.lock.RUnlock()

	var b Balance
	for _, o := range s.outputs {
		if o.IsSpent() {
			continue
		}
		b.Total += o.Amount
		switch {
		case o.IsReserved():
			b.Reserved += o.Amount
		case o.IsSpendable(s.tipHeight, s.minConfirmations):
			b.Spendable += o.Amount
		default:
			b.Pending += o.Amount
		}
	}
	return b
}

// SetTip updates the chain tip used to count confirmations.
func (s *OutputSet) SetTip(height uint32) {
	s.lock.Lock()
	defer s.lock.Unlock()

	s.tipHeight = height
}

// TipHeight ...
func (s *OutputSet) TipHeight() uint32 {
	s.lock.RLock()
	defer s.lock.RUnlock()

	return s.tipHeight
}

// Prune drops the outputs spent in blocks at or below the given height and
// returns their keys.
func (s *OutputSet) Prune(height uint32) []OutputKey {
	s.lock.Lock()
	defer s.lock.Unlock()

	pruned := make([]OutputKey, 0)
	for key, o := range s.outputs {
		if o.IsSpent() && o.SpentHeight != nil && *o.SpentHeight <= height {
			pruned = append(pruned, key)
			delete(s.outputs, key)
		}
	}
	sortKeys(pruned)
	return pruned
}

// Restore replaces the content of the set with the given outputs, for
// example those loaded from storage. Reservations are kept for the outputs
// that are still present and unspent, the others are dropped from them.
func (s *OutputSet) Restore(outputs []Output, tipHeight uint32) error {
	restored := make(map[OutputKey]*Output, len(outputs))
	for _, output := range outputs {
		if err := output.validate(); err != nil {
			return err
		}
		o := output.Copy()
		o.ReservedBy = nil
		restored[o.Key()] = &o
	}

	s.lock.Lock()
	defer s.lock.Unlock()

	for id, keys := range s.reservations {
		kept := make([]OutputKey, 0, len(keys))
		for _, key := range keys {
			o, ok := restored[key]
			if !ok || o.IsSpent() {
				continue
			}
			reservedBy := id
			o.ReservedBy = &reservedBy
			kept = append(kept, key)
		}
		s.reservations[id] = kept
	}
	s.outputs = restored
	s.tipHeight = tipHeight
	return nil
}

func (s *OutputSet) selectOutputs(
	target uint64, strategy SelectionStrategy,
) ([]*Output, uint64, error) {
	if target == 0 {
		return nil, 0, ErrInvalidAmount
	}

	candidates := make([]*Output, 0, len(s.outputs))
	for _, o := range s.outputs {
		if o.IsSpendable(s.tipHeight, s.minConfirmations) {
			candidates = append(candidates, o)
		}
	}

	switch strategy {
	case StrategySmallestFirst:
		sort.Slice(candidates, func(i, j int) bool {
			a, b := candidates[i], candidates[j]
			if a.Amount != b.Amount {
				return a.Amount < b.Amount
			}
			return lessKey(a.Key(), b.Key())
		})
	default:
		sortDescending(candidates)
	}

	var total uint64
	count := 0
	for _, o := range candidates {
		total += o.Amount
		count++
		if total >= target {
			break
		}
	}
	if total < target {
		return nil, 0, ErrInsufficientFunds
	}

	selected := append([]*Output{}, candidates[:count]...)
	if strategy != StrategyDefault {
		return selected, total, nil
	}

	// Candidates are sorted by descending amount, hence the smallest output
	// able to replace the last pick is the rightmost sufficient one.
	last := count - 1
	partial := total - candidates[last].Amount
	need := target - partial
	for i := len(candidates) - 1; i >= last; i-- {
		if candidates[i].Amount >= need {
			selected[last] = candidates[i]
			total = partial + candidates[i].Amount
			break
		}
	}
	return selected, total, nil
}

func (s *OutputSet) releaseKeys(keys []OutputKey) {
	for _, key := range keys {
		if o, ok := s.outputs[key]; ok {
			o.Release()
		}
	}
}

// dropFromReservation detaches a reserved output that got spent from its
// reservation.
func (s *OutputSet) dropFromReservation(o *Output) {
	if !o.IsReserved() {
		return
	}
	id := *o.ReservedBy
	keys := s.reservations[id]
	for i, key := range keys {
		if o.IsKeyEqual(key) {
			s.reservations[id] = append(keys[:i], keys[i+1:]...)
			break
		}
	}
	o.Release()
}

func sortDescending(outputs []*Output) {
	sort.Slice(outputs, func(i, j int) bool {
		a, b := outputs[i], outputs[j]
		if a.Amount != b.Amount {
			return a.Amount > b.Amount
		}
		return lessKey(a.Key(), b.Key())
	})
}

func sortOutputsByKey(outputs []Output) {
	sort.Slice(outputs, func(i, j int) bool {
		return lessKey(outputs[i].Key(), outputs[j].Key())
	})
}

func sortKeys(keys []OutputKey) {
	sort.Slice(keys, func(i, j int) bool {
		return lessKey(keys[i], keys[j])
	})
}

func lessKey(a, b OutputKey) bool {
	if a.TxID != b.TxID {
		return a.TxID < b.TxID
	}
	return a.VOut < b.VOut
}

func copyOutputs(outputs []*Output) []Output {
	copied := make([]Output, 0, len(outputs))
	for _, o := range outputs {
		copied = append(copied, o.Copy())
	}
	return copied
}
