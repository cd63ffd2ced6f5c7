package models

import (
	"math/big"

	"github.com/shopspring/decimal"
)

// percentScale fixes percentage arithmetic at 4 decimal places, so a
// normalized set always sums to exactly 100.0000.
const percentScale = 4

// NormalizePercents rescales positive weights so they sum to exactly 100 at
// 4 decimal places. Truncation remainders are spread one unit at a time over
// the leading entries; only when the remainder exceeds the entry count does
// the whole leftover land on the last entry.
func NormalizePercents(percents []decimal.Decimal) ([]decimal.Decimal, error) {
	if len(percents) == 0 {
		return nil, NewError(CodeInvalidRequest, "no percentages given")
	}
	total := decimal.Zero
	for _, p := range percents {
		if !p.IsPositive() {
			return nil, NewError(CodeInvalidRequest, "percentages must be positive, got %s", p)
		}
		total = total.Add(p)
	}

	// Work in integer units of 10^-4 percent.
	target := decimal.NewFromInt(100).Shift(percentScale)
	out := make([]decimal.Decimal, len(percents))
	allocated := decimal.Zero
	for i, p := range percents {
		units := p.Mul(target).Div(total).Truncate(0)
		out[i] = units
		allocated = allocated.Add(units)
	}
	remainder := target.Sub(allocated).IntPart()
	switch {
	case remainder <= 0:
	case remainder <= int64(len(out)):
		one := decimal.NewFromInt(1)
		for i := int64(0); i < remainder; i++ {
			out[i] = out[i].Add(one)
		}
	default:
		out[len(out)-1] = out[len(out)-1].Add(decimal.NewFromInt(remainder))
	}

	for i := range out {
		out[i] = out[i].Shift(-percentScale)
	}
	return out, nil
}

// SplitAmount divides an amount by normalized percentages in integer math.
// The last share absorbs the rounding remainder so the parts always sum to
// the original amount.
func SplitAmount(a Amount, normalized []decimal.Decimal) []Amount {
	raw := a.Raw()
	unitsTotal := big.NewInt(1_000_000) // 100% in 10^-4 percent units
	parts := make([]Amount, len(normalized))
	assigned := new(big.Int)
	for i, p := range normalized {
		if i == len(normalized)-1 {
			parts[i] = NewAmount(new(big.Int).Sub(raw, assigned), a.decimals)
			break
		}
		units := p.Shift(percentScale).BigInt()
		v := new(big.Int).Mul(raw, units)
		v.Quo(v, unitsTotal)
		assigned.Add(assigned, v)
		parts[i] = NewAmount(v, a.decimals)
	}
	return parts
}
