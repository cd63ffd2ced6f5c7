// Package bridge quotes token transfers between networks. External
// aggregators are asked concurrently and the engine falls back to the
// deployed bridge contract when every one of them fails.
package bridge

import (
	"context"
	"math/big"
	"os"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"

	"github.com/prism-fi/prism-router/models"
)

var log zerolog.Logger

func init() {
	out := zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.RFC3339}
	log = zerolog.New(out).With().Timestamp().Str("component", "bridge").Logger()
}

// Request describes one transfer to quote: a source token and amount, the
// desired token on the destination network, and who receives it there.
type Request struct {
	TokenIn   models.Token
	TokenOut  models.Token
	AmountIn  models.Amount
	Recipient common.Address
}

// Quote is an executable bridging offer: the transaction to send on the
// source network and the amount expected on the destination.
type Quote struct {
	Provider  string
	To        common.Address
	CallData  hexutil.Bytes
	Value     *big.Int
	AmountOut models.Amount

	// PriceImpact is the signed percent of anchor value lost in transit,
	// filled in by the aggregator.
	PriceImpact decimal.Decimal
}

// Provider produces bridging quotes. Implementations must be safe for
// concurrent use.
type Provider interface {
	Name() string
	Quote(ctx context.Context, req Request) (Quote, error)
}
