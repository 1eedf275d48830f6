package domain_test

import (
	"fmt"
	"sync"
	"testing"

	"github.com/stretchr/testify/require"
	"github.com/tdex-network/tdex-wallet/internal/core/domain"
	"pgregory.net/rapid"
)

var testScript = []byte{
	0x00, 0x14, 0x01, 0x02, 0x03, 0x04, 0x05, 0x06, 0x07, 0x08, 0x09, 0x0a,
	0x0b, 0x0c, 0x0d, 0x0e, 0x0f, 0x10, 0x11, 0x12, 0x13, 0x14,
}

func TestApply(t *testing.T) {
	t.Parallel()

	set := domain.NewOutputSet(1)
	o := newTestOutput(1, 0, 100)

	changed, err := set.Apply(o, nil)
	require.NoError(t, err)
	require.True(t, changed)

	changed, err = set.Apply(o, nil)
	require.NoError(t, err)
	require.False(t, changed)

	changed, err = set.Apply(o, uint32Ptr(10))
	require.NoError(t, err)
	require.True(t, changed)

	// A confirmed output is never moved back to unconfirmed by Apply.
	changed, err = set.Apply(o, nil)
	require.NoError(t, err)
	require.False(t, changed)

	got, ok := set.Get(o.Key())
	require.True(t, ok)
	require.True(t, got.IsConfirmed())
	require.Equal(t, uint32(10), *got.ConfirmedHeight)
	require.Len(t, set.Snapshot(), 1)

	_, err = set.Apply(domain.Output{TxID: "txid", Script: testScript}, nil)
	require.ErrorIs(t, err, domain.ErrInvalidOutput)

	tooBig := newTestOutput(2, 0, domain.MaxSatoshi+1)
	_, err = set.Apply(tooBig, nil)
	require.ErrorIs(t, err, domain.ErrInvalidOutput)
}

func TestMarkSpent(t *testing.T) {
	t.Parallel()

	set := domain.NewOutputSet(1)
	o := newTestOutput(1, 0, 100)
	_, err := set.Apply(o, uint32Ptr(1))
	require.NoError(t, err)

	err = set.MarkSpent(domain.OutputKey{TxID: o.TxID, VOut: 1}, randomTxID(9))
	require.ErrorIs(t, err, domain.ErrUnknownOutput)

	err = set.MarkSpent(o.Key(), randomTxID(9))
	require.NoError(t, err)

	err = set.MarkSpent(o.Key(), randomTxID(9))
	require.ErrorIs(t, err, domain.ErrUnknownOutput)

	// A mempool spend gets its height once observed in a block.
	changed, err := set.MarkSpentAt(o.Key(), randomTxID(9), 5)
	require.NoError(t, err)
	require.True(t, changed)
	changed, err = set.MarkSpentAt(o.Key(), randomTxID(9), 5)
	require.NoError(t, err)
	require.False(t, changed)

	// Spent outputs are never resurrected.
	_, err = set.Apply(o, uint32Ptr(1))
	require.NoError(t, err)
	got, _ := set.Get(o.Key())
	require.True(t, got.IsSpent())
	require.Zero(t, set.Balance().Total)
}

func TestRollbackAbove(t *testing.T) {
	t.Parallel()

	set := domain.NewOutputSet(1)
	old := newTestOutput(1, 0, 1000)
	recent := newTestOutput(2, 0, 500)
	spent := newTestOutput(3, 0, 200)

	applyConfirmed(t, set, old, 90)
	applyConfirmed(t, set, recent, 105)
	applyConfirmed(t, set, spent, 95)
	_, err := set.MarkSpentAt(spent.Key(), randomTxID(10), 103)
	require.NoError(t, err)
	set.SetTip(110)

	require.Equal(t, domain.Balance{Spendable: 1500, Total: 1500}, set.Balance())

	changed := set.RollbackAbove(100)
	require.Len(t, changed, 2)

	got, _ := set.Get(recent.Key())
	require.False(t, got.IsConfirmed())
	got, _ = set.Get(spent.Key())
	require.False(t, got.IsSpent())
	got, _ = set.Get(old.Key())
	require.True(t, got.IsConfirmed())

	// The output confirmed at 105 is excluded from the spendable balance
	// until reconfirmed.
	require.Equal(t, domain.Balance{
		Spendable: 1200, Pending: 500, Total: 1700,
	}, set.Balance())
	_, err = set.Select(1500, domain.StrategyDefault)
	require.ErrorIs(t, err, domain.ErrInsufficientFunds)

	applyConfirmed(t, set, recent, 102)
	set.SetTip(102)
	require.Equal(t, domain.Balance{Spendable: 1700, Total: 1700}, set.Balance())
}

func TestRollbackAndReapplyIsIdempotent(t *testing.T) {
	t.Parallel()

	type delta struct {
		height uint32
		output domain.Output
		spend  *domain.OutputKey
	}

	rapid.Check(t, func(rt *rapid.T) {
		numBlocks := rapid.IntRange(1, 20).Draw(rt, "numBlocks")
		deltas := make([]delta, 0, numBlocks)
		for i := 0; i < numBlocks; i++ {
			d := delta{
				height: uint32(i + 1),
				output: newTestOutput(
					i, 0, rapid.Uint64Range(1, 1e8).Draw(rt, "amount"),
				),
			}
			if i > 0 && rapid.Bool().Draw(rt, "spend") {
				prev := deltas[rapid.IntRange(0, i-1).Draw(rt, "prev")].output.Key()
				d.spend = &prev
			}
			deltas = append(deltas, d)
		}

		apply := func(set *domain.OutputSet, from uint32) {
			for _, d := range deltas {
				if d.height <= from {
					continue
				}
				_, err := set.Apply(d.output, uint32Ptr(d.height))
				require.NoError(rt, err)
				if d.spend != nil {
					_, err := set.MarkSpentAt(*d.spend, randomTxID(1000+int(d.height)), d.height)
					require.NoError(rt, err)
				}
			}
			set.SetTip(uint32(numBlocks))
		}

		expected := domain.NewOutputSet(1)
		apply(expected, 0)

		got := domain.NewOutputSet(1)
		apply(got, 0)
		forkHeight := rapid.Uint32Range(0, uint32(numBlocks)).Draw(rt, "fork")
		got.RollbackAbove(forkHeight)
		apply(got, forkHeight)

		require.Equal(rt, expected.Snapshot(), got.Snapshot())
		require.Equal(rt, expected.Balance(), got.Balance())
	})
}

func TestSelect(t *testing.T) {
	t.Parallel()

	set := domain.NewOutputSet(1)
	for i, amount := range []uint64{50, 10, 30, 20, 30} {
		applyConfirmed(t, set, newTestOutput(i, 0, amount), 1)
	}
	set.SetTip(1)

	tests := []struct {
		name            string
		target          uint64
		strategy        domain.SelectionStrategy
		expectedAmounts []uint64
	}{
		{"default single output", 25, domain.StrategyDefault, []uint64{30}},
		{"default exact match", 50, domain.StrategyDefault, []uint64{50}},
		{"default two outputs", 65, domain.StrategyDefault, []uint64{50, 20}},
		{"default all outputs", 140, domain.StrategyDefault, []uint64{50, 30, 30, 20, 10}},
		{"largest first", 65, domain.StrategyLargestFirst, []uint64{50, 30}},
		{"smallest first", 65, domain.StrategySmallestFirst, []uint64{10, 20, 30, 30}},
	}
	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			selected, err := set.Select(tt.target, tt.strategy)
			require.NoError(t, err)
			amounts := make([]uint64, 0, len(selected))
			for _, o := range selected {
				amounts = append(amounts, o.Amount)
			}
			require.Equal(t, tt.expectedAmounts, amounts)

			again, err := set.Select(tt.target, tt.strategy)
			require.NoError(t, err)
			require.Equal(t, selected, again)
		})
	}

	_, err := set.Select(141, domain.StrategyDefault)
	require.ErrorIs(t, err, domain.ErrInsufficientFunds)
	_, err = set.Select(0, domain.StrategyDefault)
	require.ErrorIs(t, err, domain.ErrInvalidAmount)
}

func TestSelectSkipsUnspendable(t *testing.T) {
	t.Parallel()

	set := domain.NewOutputSet(2)
	applyConfirmed(t, set, newTestOutput(1, 0, 100), 10)
	applyConfirmed(t, set, newTestOutput(2, 0, 100), 9)
	_, err := set.Apply(newTestOutput(3, 0, 100), nil)
	require.NoError(t, err)
	set.SetTip(10)

	selected, err := set.Select(100, domain.StrategyDefault)
	require.NoError(t, err)
	require.Len(t, selected, 1)
	require.Equal(t, randomTxID(2), selected[0].TxID)

	_, err = set.Select(101, domain.StrategyDefault)
	require.ErrorIs(t, err, domain.ErrInsufficientFunds)
	require.Equal(t, domain.Balance{
		Spendable: 100, Pending: 200, Total: 300,
	}, set.Balance())
}

func TestReserve(t *testing.T) {
	t.Parallel()

	set := domain.NewOutputSet(1)
	applyConfirmed(t, set, newTestOutput(1, 0, 100), 1)
	applyConfirmed(t, set, newTestOutput(2, 0, 60), 1)
	set.SetTip(1)

	reservation, err := set.Reserve(50, domain.StrategyDefault)
	require.NoError(t, err)
	require.Len(t, reservation.Outputs, 1)
	require.Equal(t, uint64(60), reservation.Total)
	require.Equal(t, domain.Balance{Spendable: 100, Reserved: 60, Total: 160}, set.Balance())

	_, err = set.Reserve(150, domain.StrategyDefault)
	require.ErrorIs(t, err, domain.ErrInsufficientFunds)

	require.NoError(t, set.Release(reservation.ID))
	require.ErrorIs(t, set.Release(reservation.ID), domain.ErrReservationNotFound)

	reservation, err = set.Reserve(150, domain.StrategyDefault)
	require.NoError(t, err)
	require.Len(t, reservation.Outputs, 2)

	txid := randomTxID(100)
	consumed, err := set.Consume(reservation.ID, txid)
	require.NoError(t, err)
	require.Len(t, consumed, 2)
	for _, o := range consumed {
		require.True(t, o.IsSpent())
		require.Equal(t, txid, o.SpentBy)
		require.False(t, o.IsReserved())
	}
	require.Zero(t, set.Balance().Total)

	_, err = set.Consume(reservation.ID, txid)
	require.ErrorIs(t, err, domain.ErrReservationNotFound)
}

func TestRevertSpends(t *testing.T) {
	t.Parallel()

	set := domain.NewOutputSet(1)
	a, b := newTestOutput(1, 0, 100), newTestOutput(2, 0, 60)
	applyConfirmed(t, set, a, 1)
	applyConfirmed(t, set, b, 1)
	set.SetTip(1)

	reservation, err := set.Reserve(160, domain.StrategyDefault)
	require.NoError(t, err)
	txid := randomTxID(100)
	_, err = set.Consume(reservation.ID, txid)
	require.NoError(t, err)
	_, err = set.MarkSpentAt(b.Key(), txid, 2)
	require.NoError(t, err)

	// Spends already observed in a block are kept.
	reverted := set.RevertSpends(txid)
	require.Len(t, reverted, 1)
	require.Equal(t, a.Key(), reverted[0].Key())
	require.Equal(t, domain.Balance{Spendable: 100, Total: 100}, set.Balance())
	require.Empty(t, set.RevertSpends(txid))
}

func TestConcurrentReservations(t *testing.T) {
	t.Parallel()

	rapid.Check(t, func(rt *rapid.T) {
		set := domain.NewOutputSet(1)
		numOutputs := rapid.IntRange(1, 10).Draw(rt, "numOutputs")
		for i := 0; i < numOutputs; i++ {
			amount := rapid.Uint64Range(1, 100).Draw(rt, "amount")
			_, err := set.Apply(newTestOutput(i, 0, amount), uint32Ptr(1))
			require.NoError(rt, err)
		}
		set.SetTip(1)

		numReservations := rapid.IntRange(2, 8).Draw(rt, "numReservations")
		targets := make([]uint64, 0, numReservations)
		for i := 0; i < numReservations; i++ {
			targets = append(targets, rapid.Uint64Range(1, 200).Draw(rt, "target"))
		}

		reservations := make([]*domain.Reservation, numReservations)
		wg := &sync.WaitGroup{}
		for i := range targets {
			wg.Add(1)
			go func(i int) {
				defer wg.Done()
				r, err := set.Reserve(targets[i], domain.StrategyDefault)
				if err == nil {
					reservations[i] = r
				}
			}(i)
		}
		wg.Wait()

		seen := map[domain.OutputKey]bool{}
		for _, r := range reservations {
			if r == nil {
				continue
			}
			for _, o := range r.Outputs {
				require.False(rt, seen[o.Key()], "output reserved twice")
				seen[o.Key()] = true
			}
		}

		for _, r := range reservations {
			if r != nil {
				require.NoError(rt, set.Release(r.ID))
			}
		}
		balance := set.Balance()
		require.Zero(rt, balance.Reserved)
		require.Equal(rt, balance.Total, balance.Spendable)
	})
}

func TestConcurrentReservationsOfSingleOutput(t *testing.T) {
	t.Parallel()

	set := domain.NewOutputSet(1)
	applyConfirmed(t, set, newTestOutput(1, 0, 100), 1)
	set.SetTip(1)

	errs := make(chan error, 2)
	wg := &sync.WaitGroup{}
	for i := 0; i < 2; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := set.Reserve(80, domain.StrategyDefault)
			errs <- err
		}()
	}
	wg.Wait()
	close(errs)

	succeeded, failed := 0, 0
	for err := range errs {
		if err == nil {
			succeeded++
			continue
		}
		require.ErrorIs(t, err, domain.ErrInsufficientFunds)
		failed++
	}
	require.Equal(t, 1, succeeded)
	require.Equal(t, 1, failed)
}

func TestBalanceMatchesUnspentSum(t *testing.T) {
	t.Parallel()

	rapid.Check(t, func(rt *rapid.T) {
		set := domain.NewOutputSet(1)
		numOutputs := rapid.IntRange(0, 30).Draw(rt, "numOutputs")
		for i := 0; i < numOutputs; i++ {
			o := newTestOutput(i, 0, rapid.Uint64Range(1, 1e8).Draw(rt, "amount"))
			var height *uint32
			if rapid.Bool().Draw(rt, "confirmed") {
				height = uint32Ptr(rapid.Uint32Range(1, 10).Draw(rt, "height"))
			}
			_, err := set.Apply(o, height)
			require.NoError(rt, err)
			if rapid.Bool().Draw(rt, "spent") {
				require.NoError(rt, set.MarkSpent(o.Key(), randomTxID(999)))
			}
		}
		set.SetTip(10)
		if rapid.Bool().Draw(rt, "reserve") {
			_, _ = set.Reserve(rapid.Uint64Range(1, 1e9).Draw(rt, "target"), domain.StrategyDefault)
		}

		var sum uint64
		for _, o := range set.Unspents() {
			sum += o.Amount
		}
		balance := set.Balance()
		require.Equal(rt, sum, balance.Total)
		require.Equal(rt, balance.Total, balance.Spendable+balance.Pending+balance.Reserved)
	})
}

func TestPrune(t *testing.T) {
	t.Parallel()

	set := domain.NewOutputSet(1)
	a, b, c := newTestOutput(1, 0, 10), newTestOutput(2, 0, 20), newTestOutput(3, 0, 30)
	applyConfirmed(t, set, a, 1)
	applyConfirmed(t, set, b, 1)
	applyConfirmed(t, set, c, 1)
	_, err := set.MarkSpentAt(a.Key(), randomTxID(50), 5)
	require.NoError(t, err)
	_, err = set.MarkSpentAt(b.Key(), randomTxID(51), 20)
	require.NoError(t, err)

	pruned := set.Prune(10)
	require.Equal(t, []domain.OutputKey{a.Key()}, pruned)
	require.Len(t, set.Snapshot(), 2)
}

func TestRestore(t *testing.T) {
	t.Parallel()

	set := domain.NewOutputSet(1)
	applyConfirmed(t, set, newTestOutput(1, 0, 10), 1)
	set.SetTip(1)
	_, err := set.Reserve(10, domain.StrategyDefault)
	require.NoError(t, err)

	restored := domain.NewOutputSet(1)
	require.NoError(t, restored.Restore(set.Snapshot(), set.TipHeight()))
	require.Equal(t, domain.Balance{Spendable: 10, Total: 10}, restored.Balance())
}

func newTestOutput(i, vout int, amount uint64) domain.Output {
	return domain.Output{
		TxID:   randomTxID(i),
		VOut:   uint32(vout),
		Script: testScript,
		Amount: amount,
	}
}

func applyConfirmed(t *testing.T, set *domain.OutputSet, o domain.Output, height uint32) {
	_, err := set.Apply(o, uint32Ptr(height))
	require.NoError(t, err)
}

func randomTxID(i int) string {
	return fmt.Sprintf("%064x", i)
}

func uint32Ptr(v uint32) *uint32 {
	return &v
}

func TestApplyBlock(t *testing.T) {
	t.Parallel()

	set := domain.NewOutputSet(1)
	funding := newTestOutput(1, 0, 100)
	applyConfirmed(t, set, funding, 1)
	set.SetTip(1)

	received := newTestOutput(2, 0, 40)
	change := newTestOutput(2, 1, 50)
	spends := []domain.Spend{
		{Key: funding.Key(), SpentBy: received.TxID},
		// Outputs created in the same block can be spent in it.
		{Key: change.Key(), SpentBy: randomTxID(3)},
	}

	changed, err := set.ApplyBlock(
		[]domain.Output{received, change}, spends, uint32Ptr(2),
	)
	require.NoError(t, err)
	require.Equal(
		t, []domain.OutputKey{funding.Key(), received.Key(), change.Key()}, changed,
	)
	set.SetTip(2)
	require.Equal(t, domain.Balance{Spendable: 40, Total: 40}, set.Balance())

	changed, err = set.ApplyBlock(
		[]domain.Output{received, change}, spends, uint32Ptr(2),
	)
	require.NoError(t, err)
	require.Empty(t, changed)

	// The mempool ignores spends of outputs already spent.
	changed, err = set.ApplyBlock(
		nil, []domain.Spend{{Key: funding.Key(), SpentBy: randomTxID(4)}}, nil,
	)
	require.NoError(t, err)
	require.Empty(t, changed)
	got, _ := set.Get(funding.Key())
	require.Equal(t, received.TxID, got.SpentBy)
}

func TestApplyBlockIsAtomic(t *testing.T) {
	t.Parallel()

	set := domain.NewOutputSet(1)
	funding := newTestOutput(1, 0, 100)
	applyConfirmed(t, set, funding, 1)
	set.SetTip(1)
	before := set.Snapshot()

	tests := []struct {
		name        string
		outputs     []domain.Output
		spends      []domain.Spend
		expectedErr error
	}{
		{
			name:        "invalid output",
			outputs:     []domain.Output{newTestOutput(2, 0, 10), newTestOutput(2, 1, domain.MaxSatoshi+1)},
			spends:      []domain.Spend{{Key: funding.Key(), SpentBy: randomTxID(2)}},
			expectedErr: domain.ErrInvalidOutput,
		},
		{
			name:    "spend of unknown output",
			outputs: []domain.Output{newTestOutput(2, 0, 10)},
			spends: []domain.Spend{
				{Key: funding.Key(), SpentBy: randomTxID(2)},
				{Key: domain.OutputKey{TxID: randomTxID(9)}, SpentBy: randomTxID(2)},
			},
			expectedErr: domain.ErrUnknownOutput,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := set.ApplyBlock(tt.outputs, tt.spends, uint32Ptr(2))
			require.ErrorIs(t, err, tt.expectedErr)
			require.Equal(t, before, set.Snapshot())
		})
	}
}

func TestApplyBlockDropsSpentReservedOutputs(t *testing.T) {
	t.Parallel()

	set := domain.NewOutputSet(1)
	a, b := newTestOutput(1, 0, 60), newTestOutput(2, 0, 50)
	applyConfirmed(t, set, a, 1)
	applyConfirmed(t, set, b, 1)
	set.SetTip(1)

	reservation, err := set.Reserve(100, domain.StrategyDefault)
	require.NoError(t, err)
	require.Len(t, reservation.Outputs, 2)

	_, err = set.ApplyBlock(
		nil, []domain.Spend{{Key: a.Key(), SpentBy: randomTxID(7)}}, uint32Ptr(2),
	)
	require.NoError(t, err)
	require.Equal(t, domain.Balance{Reserved: 50, Total: 50}, set.Balance())

	consumed, err := set.Consume(reservation.ID, randomTxID(8))
	require.NoError(t, err)
	require.Len(t, consumed, 1)
	require.Equal(t, b.Key(), consumed[0].Key())

	got, _ := set.Get(a.Key())
	require.Equal(t, randomTxID(7), got.SpentBy)
}

func TestRestoreKeepsReservations(t *testing.T) {
	t.Parallel()

	set := domain.NewOutputSet(1)
	a, b := newTestOutput(1, 0, 60), newTestOutput(2, 0, 50)
	applyConfirmed(t, set, a, 1)
	applyConfirmed(t, set, b, 1)
	set.SetTip(1)
	persisted := set.Snapshot()

	reservation, err := set.Reserve(100, domain.StrategyDefault)
	require.NoError(t, err)

	// b got spent in storage in the meantime.
	persisted[1].Spend(randomTxID(9), uint32Ptr(2))
	require.NoError(t, set.Restore(persisted, set.TipHeight()))
	require.Equal(t, domain.Balance{Reserved: 60, Total: 60}, set.Balance())

	_, err = set.Reserve(10, domain.StrategyDefault)
	require.ErrorIs(t, err, domain.ErrInsufficientFunds)

	consumed, err := set.Consume(reservation.ID, randomTxID(10))
	require.NoError(t, err)
	require.Len(t, consumed, 1)
	require.Equal(t, a.Key(), consumed[0].Key())
	require.Equal(t, domain.Balance{}, set.Balance())
}
