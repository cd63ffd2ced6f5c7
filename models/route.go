package models

import (
	"fmt"

	"github.com/ethereum/go-ethereum/common"
	"github.com/shopspring/decimal"
)

// AMMVersion tags the protocol family of a pool. The numeric value is the
// version byte used in packed path descriptors and the key into the gas
// cost tables.
type AMMVersion uint8

const (
	AMMv2      AMMVersion = 2
	AMMv3      AMMVersion = 3
	AMMStable  AMMVersion = 4
	AMMWrapper AMMVersion = 1 // synthetic wrap/unwrap or same-token hop
)

// RouteStep is one hop of an exchange path.
type RouteStep struct {
	Pool       common.Address `json:"pool"`
	ExchangeID int            `json:"exchangeId"`
	Fee        uint32         `json:"fee"` // basis or fee tier, protocol units
	Version    AMMVersion     `json:"version"`
	Token0     common.Address `json:"token0"`
	Token1     common.Address `json:"token1"`
}

// Route is an ordered, non-empty hop sequence connecting tokenIn to tokenOut
// on a single network.
type Route []RouteStep

// Validate checks that the route is non-empty and its hop tokens chain from
// tokenIn to tokenOut. Each hop must share exactly one token with the running
// position.
func (r Route) Validate(tokenIn, tokenOut common.Address) error {
	if len(r) == 0 {
		return fmt.Errorf("route is empty")
	}
	current := tokenIn
	for i, step := range r {
		switch current {
		case step.Token0:
			current = step.Token1
		case step.Token1:
			current = step.Token0
		default:
			return fmt.Errorf("hop %d does not connect to %s", i, current.Hex())
		}
	}
	if current != tokenOut {
		return fmt.Errorf("route ends at %s, expected %s", current.Hex(), tokenOut.Hex())
	}
	return nil
}

// RouteSet holds one Route per requested output token, in request order.
type RouteSet []Route

// SimulatedRoute is a route (or route set) annotated with on-chain verified
// amounts. It is produced once by the simulator or the cross-chain
// orchestrator and never mutated afterwards.
type SimulatedRoute struct {
	Routes    RouteSet
	TokenIn   Token
	TokensOut []Token

	AmountIn   Amount
	AmountsOut []Amount

	// Percents are the achieved per-output shares, fixed to 4 decimal places.
	Percents []decimal.Decimal

	// PriceImpact is signed percent deviation of each output's anchor value
	// from the input's anchor value.
	PriceImpact []decimal.Decimal

	SlippagePercent decimal.Decimal
	ExactOutput     bool

	// Touched is every token the route passes through, for downstream
	// filtering and auditing.
	Touched []Token

	// SmartRoutePayload, when non-nil, is a pre-built swap payload from an
	// alternate routing backend; the compiler uses it verbatim.
	SmartRoutePayload []byte
}
