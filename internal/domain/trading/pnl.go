package trading

import (
	"github.com/thxForu/perp-futures/internal/domain/ledger"
)

// CalculatePnL computes the signed profit or loss of a position at
// currentPrice, in collateral units.
//
// The magnitude is notional * |currentPrice - openPrice| / openPrice with
// integer truncation applied before the sign. Truncating the magnitude
// rounds profits down and losses toward zero from the trader's side in a
// fixed direction; the exact truncation point is part of the protocol.
func CalculatePnL(pos ledger.Position, currentPrice int64) int64 {
	open := pos.OpenPrice
	if currentPrice == open {
		return 0
	}

	var diff int64
	var priceUp bool
	if currentPrice > open {
		diff = currentPrice - open
		priceUp = true
	} else {
		diff = open - currentPrice
	}

	magnitude := pos.Notional() * diff / open

	// Rising price pays longs, falling price pays shorts.
	if priceUp == (pos.Direction == ledger.Long) {
		return magnitude
	}
	return -magnitude
}

// RequiredMargin computes the open fee and the collateral that must be
// reserved to carry a position of the given size and leverage. Both
// divisions truncate.
func RequiredMargin(size int64, leverage int, feeRateBps int64) (required, fee int64) {
	fee = size * feeRateBps / 10_000
	required = size/int64(leverage) + fee
	return required, fee
}
