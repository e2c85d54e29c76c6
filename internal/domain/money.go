package domain

import "github.com/shopspring/decimal"

// OddsScale is the fixed-point scale used to persist odds (micro-units).
const OddsScale = 6

// ToCents converts an amount to integer cents, dropping sub-cent digits.
func ToCents(d decimal.Decimal) int64 {
	return d.Shift(2).Truncate(0).IntPart()
}

// FromCents converts integer cents back to a decimal amount.
func FromCents(c int64) decimal.Decimal {
	return decimal.New(c, -2)
}

// ToMicros converts odds to integer micro-units.
func ToMicros(d decimal.Decimal) int64 {
	return d.Shift(OddsScale).Truncate(0).IntPart()
}

// FromMicros converts micro-units back to decimal odds.
func FromMicros(m int64) decimal.Decimal {
	return decimal.New(m, -OddsScale)
}

// TruncateCents drops anything below one cent. Payouts are always rounded
// towards the house so the pool can never be overdrawn by rounding.
func TruncateCents(d decimal.Decimal) decimal.Decimal {
	return d.Truncate(2)
}
