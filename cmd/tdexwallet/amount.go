package main

import (
	"fmt"

	"github.com/btcsuite/btcd/btcutil"
	"github.com/shopspring/decimal"
)

var satsPerBtc = decimal.NewFromInt(btcutil.SatoshiPerBitcoin)

// parseBtcAmount converts an amount in BTC, like 0.0015, to sats.
func parseBtcAmount(str string) (uint64, error) {
	amount, err := decimal.NewFromString(str)
	if err != nil {
		return 0, fmt.Errorf("invalid amount %q: %w", str, err)
	}
	sats := amount.Mul(satsPerBtc)
	if !sats.IsInteger() {
		return 0, fmt.Errorf("amount %s has more than 8 decimals", str)
	}
	if sats.Sign() <= 0 {
		return 0, fmt.Errorf("amount must be greater than zero")
	}
	if sats.GreaterThan(decimal.NewFromInt(btcutil.MaxSatoshi)) {
		return 0, fmt.Errorf("amount %s exceeds max supply", str)
	}
	return uint64(sats.IntPart()), nil
}

// formatBtcAmount returns the given sats as a BTC amount with 8 decimals.
func formatBtcAmount(sats uint64) string {
	return decimal.NewFromInt(int64(sats)).Div(satsPerBtc).StringFixed(8)
}
