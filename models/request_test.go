package models

import (
	"math/big"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/zeebo/assert"
)

func amt(v int64) Amount { return NewAmount(big.NewInt(v), 18) }

func TestNormalizeFoldsSingularForms(t *testing.T) {
	in := NewToken("0x00000000000000000000000000000000000000a1", 18, "bnb")
	out := NewToken("0x00000000000000000000000000000000000000a2", 18, "bnb")
	amountIn := amt(1000)

	req := &SwapRequest{TokenIn: in, TokenOut: &out, AmountIn: &amountIn}
	assert.NoError(t, req.Normalize())
	assert.Nil(t, req.TokenOut)
	assert.Equal(t, 1, len(req.TokensOut))
	assert.True(t, req.TokensOut[0].Equal(out))

	// Idempotent.
	assert.NoError(t, req.Normalize())
	assert.Equal(t, 1, len(req.TokensOut))
}

func TestNormalizeRejectsConflictingShapes(t *testing.T) {
	in := NewToken("0x00000000000000000000000000000000000000a1", 18, "bnb")
	out := NewToken("0x00000000000000000000000000000000000000a2", 18, "bnb")
	amountIn := amt(1000)

	req := &SwapRequest{TokenIn: in, TokenOut: &out, TokensOut: []Token{out}, AmountIn: &amountIn}
	err := req.Normalize()
	assert.Error(t, err)
	assert.True(t, IsCode(err, CodeInvalidRequest))
}

func TestNormalizeDirectionRules(t *testing.T) {
	in := NewToken("0x00000000000000000000000000000000000000a1", 18, "bnb")
	out := NewToken("0x00000000000000000000000000000000000000a2", 18, "bnb")
	amountIn := amt(1000)
	amountOut := amt(500)

	// Exact-in needs a positive amountIn.
	req := &SwapRequest{TokenIn: in, TokensOut: []Token{out}}
	assert.True(t, IsCode(req.Normalize(), CodeInvalidRequest))

	// Exact-out must not carry amountIn.
	req = &SwapRequest{TokenIn: in, TokensOut: []Token{out}, AmountsOut: []Amount{amountOut}, AmountIn: &amountIn, ExactOutput: true}
	assert.True(t, IsCode(req.Normalize(), CodeInvalidRequest))

	// Exact-out split is unsupported.
	out2 := NewToken("0x00000000000000000000000000000000000000a3", 18, "bnb")
	req = &SwapRequest{
		TokenIn:     in,
		TokensOut:   []Token{out, out2},
		AmountsOut:  []Amount{amountOut, amountOut},
		ExactOutput: true,
	}
	assert.True(t, IsCode(req.Normalize(), CodeInvalidRequest))
}

func TestNormalizeMultiOutputNeedsPercentages(t *testing.T) {
	in := NewToken("0x00000000000000000000000000000000000000a1", 18, "bnb")
	out := NewToken("0x00000000000000000000000000000000000000a2", 18, "bnb")
	out2 := NewToken("0x00000000000000000000000000000000000000a3", 18, "bnb")
	amountIn := amt(1000)

	req := &SwapRequest{TokenIn: in, TokensOut: []Token{out, out2}, AmountIn: &amountIn}
	assert.True(t, IsCode(req.Normalize(), CodeInvalidRequest))

	req.AmountOutReadablePercentages = []decimal.Decimal{
		decimal.RequireFromString("60"),
		decimal.RequireFromString("40"),
	}
	assert.NoError(t, req.Normalize())
	assert.True(t, req.MultiOutput())
}

func TestNormalizeSlippageBounds(t *testing.T) {
	in := NewToken("0x00000000000000000000000000000000000000a1", 18, "bnb")
	out := NewToken("0x00000000000000000000000000000000000000a2", 18, "bnb")
	amountIn := amt(1000)

	req := &SwapRequest{TokenIn: in, TokensOut: []Token{out}, AmountIn: &amountIn,
		SlippageReadablePercent: decimal.RequireFromString("100")}
	assert.True(t, IsCode(req.Normalize(), CodeInvalidRequest))

	req.SlippageReadablePercent = decimal.RequireFromString("0.5")
	assert.NoError(t, req.Normalize())
}
