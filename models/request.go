package models

import (
	"github.com/ethereum/go-ethereum/common"
	"github.com/shopspring/decimal"
)

// SwapRequest is the inbound request for both single-chain and cross-chain
// quoting. The single-output convenience fields (TokenOut, AmountOut) and the
// plural forms are both accepted; Normalize folds everything into the plural
// representation before any component sees the request.
type SwapRequest struct {
	TokenIn   Token   `json:"tokenIn"`
	TokenOut  *Token  `json:"tokenOut,omitempty"`
	TokensOut []Token `json:"tokensOut,omitempty"`

	AmountIn   *Amount  `json:"-"`
	AmountOut  *Amount  `json:"-"`
	AmountsOut []Amount `json:"-"`

	// AmountOutReadablePercentages is required iff the request has more than
	// one output token; the compiler renormalizes it to exactly 100%.
	AmountOutReadablePercentages []decimal.Decimal `json:"amountOutReadablePercentages,omitempty"`

	SlippageReadablePercent decimal.Decimal `json:"slippageReadablePercent"`

	// ExactOutput selects the reverse direction: AmountsOut are fixed and the
	// engine computes the required input.
	ExactOutput bool `json:"exactOutput"`

	DestinationAddress *common.Address `json:"destinationAddress,omitempty"`
	ArrivalGasAmount   *Amount         `json:"-"`

	// BannedExchangeIDs excludes exchanges from route discovery.
	BannedExchangeIDs []int `json:"bannedExchangeIds,omitempty"`
}

// Normalize folds the single-output convenience shape into the plural form
// and validates the amount-direction discrimination. It is idempotent.
func (r *SwapRequest) Normalize() error {
	if r.TokenOut != nil {
		if len(r.TokensOut) > 0 {
			return NewError(CodeInvalidRequest, "tokenOut and tokensOut cannot be used together")
		}
		r.TokensOut = []Token{*r.TokenOut}
		r.TokenOut = nil
	}
	if r.AmountOut != nil {
		if len(r.AmountsOut) > 0 {
			return NewError(CodeInvalidRequest, "amountOut and amountsOut cannot be used together")
		}
		r.AmountsOut = []Amount{*r.AmountOut}
		r.AmountOut = nil
	}
	if len(r.TokensOut) == 0 {
		return NewError(CodeInvalidRequest, "at least one output token is required")
	}

	if r.ExactOutput {
		if len(r.AmountsOut) != len(r.TokensOut) {
			return NewError(CodeInvalidRequest, "exact-output request needs one amount per output token")
		}
		if r.AmountIn != nil {
			return NewError(CodeInvalidRequest, "amountIn must be empty in exact-output mode")
		}
		if len(r.TokensOut) > 1 {
			// Split swaps only work forward: the reverse computation cannot
			// apportion a shared input across outputs.
			return NewError(CodeInvalidRequest, "split swap is not supported in exact-output mode")
		}
	} else {
		if r.AmountIn == nil || !r.AmountIn.IsPositive() {
			return NewError(CodeInvalidRequest, "exact-input request needs a positive amountIn")
		}
		if len(r.AmountsOut) > 0 {
			return NewError(CodeInvalidRequest, "amountsOut must be empty in exact-input mode")
		}
	}

	if len(r.TokensOut) > 1 && len(r.AmountOutReadablePercentages) != len(r.TokensOut) {
		return NewError(CodeInvalidRequest, "multi-output request needs one percentage per output token")
	}
	if r.SlippageReadablePercent.IsNegative() || r.SlippageReadablePercent.GreaterThanOrEqual(decimal.NewFromInt(100)) {
		return NewError(CodeInvalidRequest, "slippage percent must be in [0, 100)")
	}
	return nil
}

// MultiOutput reports whether the request targets more than one output token.
func (r *SwapRequest) MultiOutput() bool { return len(r.TokensOut) > 1 }
