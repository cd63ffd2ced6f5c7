package models

import (
	"math/big"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/shopspring/decimal"
)

// ExecutorCall is one ready-to-submit transaction. Entries of a Quota must be
// executed strictly in order, each on its own network.
type ExecutorCall struct {
	CallData           hexutil.Bytes  `json:"callData"`
	Network            string         `json:"network"`
	To                 common.Address `json:"to"`
	Value              *big.Int       `json:"value,omitempty"`
	GasLimitMultiplier float64        `json:"gasLimitMultiplier,omitempty"`
}

// Quota is the terminal artifact of the engine: the ordered executable call
// list plus the realized amounts and predicted costs. The engine keeps no
// reference to a returned Quota.
type Quota struct {
	ExecutorCallData []ExecutorCall    `json:"executorCallData"`
	AmountIn         Amount            `json:"amountIn"`
	AmountsOut       []Amount          `json:"amountsOut"`
	TokenIn          Token             `json:"tokenIn"`
	TokensOut        []Token           `json:"tokensOut"`
	SlippageReadable decimal.Decimal   `json:"slippageReadable"`
	PriceImpact      []decimal.Decimal `json:"priceImpact"`
	GasEstimate      uint64            `json:"gasEstimate"`
}
