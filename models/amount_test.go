package models

import (
	"encoding/json"
	"math/big"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/zeebo/assert"
)

func TestReadableRoundTripTruncates(t *testing.T) {
	a := NewAmountFromReadable(decimal.RequireFromString("1.5"), 6)
	assert.Equal(t, "1500000", a.Raw().String())
	assert.Equal(t, "1.5", a.Readable().String())

	// Below the smallest unit is dropped, never rounded up.
	b := NewAmountFromReadable(decimal.RequireFromString("0.0000019"), 6)
	assert.Equal(t, "1", b.Raw().String())
}

func TestRescale(t *testing.T) {
	a := NewAmount(big.NewInt(1_500_000), 6)
	up := a.Rescale(18)
	assert.Equal(t, "1500000000000000000", up.Raw().String())
	assert.Equal(t, uint8(18), up.Decimals())

	down := up.Rescale(6)
	assert.Equal(t, "1500000", down.Raw().String())

	// Truncation on the way down.
	c := NewAmount(big.NewInt(1_999_999_999), 9).Rescale(6)
	assert.Equal(t, "1999999", c.Raw().String())
}

func TestApplyBps(t *testing.T) {
	a := NewAmount(big.NewInt(10_000), 18)
	assert.Equal(t, "9950", a.ApplyBps(-50).Raw().String())
	assert.Equal(t, "10003", a.ApplyBps(3).Raw().String())
	assert.Equal(t, "10000", a.ApplyBps(0).Raw().String())
}

func TestScaleMismatchIsError(t *testing.T) {
	a := NewAmount(big.NewInt(1), 6)
	b := NewAmount(big.NewInt(1), 18)
	_, err := a.Add(b)
	assert.Error(t, err)
	_, err = a.Cmp(b)
	assert.Error(t, err)
}

func TestAmountJSONRoundTrip(t *testing.T) {
	a := NewAmount(big.NewInt(1_500_000), 6)
	data, err := json.Marshal(a)
	assert.NoError(t, err)
	assert.Equal(t, `{"value":"1500000","decimals":6}`, string(data))

	var b Amount
	assert.NoError(t, json.Unmarshal(data, &b))
	assert.Equal(t, "1500000", b.Raw().String())
	assert.Equal(t, uint8(6), b.Decimals())
}

func TestZeroValueAmountIsSafe(t *testing.T) {
	var a Amount
	assert.True(t, a.IsZero())
	assert.False(t, a.IsPositive())
	assert.Equal(t, "0", a.Raw().String())
}
