package models

import (
	"encoding/json"
	"fmt"
	"math/big"

	"github.com/shopspring/decimal"
)

// Amount is an arbitrary-precision token amount. The value is always held in
// the integer domain (smallest units at the given decimal scale); readable
// decimal forms are one-way projections. Two amounts are only comparable or
// combinable at the same scale.
type Amount struct {
	value    *big.Int
	decimals uint8
	readable bool // constructed from a human-readable figure
}

// NewAmount builds an Amount from a raw smallest-unit value.
func NewAmount(raw *big.Int, decimals uint8) Amount {
	return Amount{value: new(big.Int).Set(raw), decimals: decimals}
}

// NewAmountFromReadable builds an Amount from a human-readable decimal,
// truncating anything below the smallest unit.
func NewAmountFromReadable(d decimal.Decimal, decimals uint8) Amount {
	shifted := d.Shift(int32(decimals)).Truncate(0)
	return Amount{value: shifted.BigInt(), decimals: decimals, readable: true}
}

// Raw returns a copy of the smallest-unit integer value.
func (a Amount) Raw() *big.Int {
	if a.value == nil {
		return new(big.Int)
	}
	return new(big.Int).Set(a.value)
}

// Decimals returns the decimal scale of the amount.
func (a Amount) Decimals() uint8 { return a.decimals }

// Readable projects the amount into a human-readable decimal.
func (a Amount) Readable() decimal.Decimal {
	return decimal.NewFromBigInt(a.Raw(), -int32(a.decimals))
}

// IsZero reports whether the amount is zero (or unset).
func (a Amount) IsZero() bool { return a.value == nil || a.value.Sign() == 0 }

// IsPositive reports whether the amount is strictly positive.
func (a Amount) IsPositive() bool { return a.value != nil && a.value.Sign() > 0 }

// Cmp compares two amounts. It is an error to compare amounts at different
// scales; rescale first.
func (a Amount) Cmp(other Amount) (int, error) {
	if a.decimals != other.decimals {
		return 0, fmt.Errorf("cannot compare amounts at scales %d and %d", a.decimals, other.decimals)
	}
	return a.Raw().Cmp(other.Raw()), nil
}

// Add sums two amounts of the same scale.
func (a Amount) Add(other Amount) (Amount, error) {
	if a.decimals != other.decimals {
		return Amount{}, fmt.Errorf("cannot add amounts at scales %d and %d", a.decimals, other.decimals)
	}
	return NewAmount(new(big.Int).Add(a.Raw(), other.Raw()), a.decimals), nil
}

// Rescale converts the amount to a different decimal scale, truncating when
// the target scale is coarser.
func (a Amount) Rescale(decimals uint8) Amount {
	if decimals == a.decimals {
		return NewAmount(a.Raw(), a.decimals)
	}
	v := a.Raw()
	if decimals > a.decimals {
		exp := new(big.Int).Exp(big.NewInt(10), big.NewInt(int64(decimals-a.decimals)), nil)
		v.Mul(v, exp)
	} else {
		exp := new(big.Int).Exp(big.NewInt(10), big.NewInt(int64(a.decimals-decimals)), nil)
		v.Quo(v, exp)
	}
	return NewAmount(v, decimals)
}

// ApplyBps scales the amount by (10000 + bps) / 10000 in integer math.
// Negative bps shrink the amount; used for slippage bounds and the bridge
// send compensation.
func (a Amount) ApplyBps(bps int64) Amount {
	v := a.Raw()
	v.Mul(v, big.NewInt(10000+bps))
	v.Quo(v, big.NewInt(10000))
	return NewAmount(v, a.decimals)
}

type amountJSON struct {
	Value    string `json:"value"`
	Decimals uint8  `json:"decimals"`
}

// MarshalJSON keeps the raw integer exact by encoding it as a string.
func (a Amount) MarshalJSON() ([]byte, error) {
	return json.Marshal(amountJSON{Value: a.Raw().String(), Decimals: a.decimals})
}

func (a *Amount) UnmarshalJSON(data []byte) error {
	var aj amountJSON
	if err := json.Unmarshal(data, &aj); err != nil {
		return err
	}
	v, ok := new(big.Int).SetString(aj.Value, 10)
	if !ok {
		return fmt.Errorf("bad amount value %q", aj.Value)
	}
	*a = Amount{value: v, decimals: aj.Decimals}
	return nil
}

func (a Amount) String() string {
	return fmt.Sprintf("%s (10^-%d)", a.Raw().String(), a.decimals)
}
