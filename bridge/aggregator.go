package bridge

import (
	"context"
	"errors"
	"math/big"
	"sync"

	"github.com/shopspring/decimal"

	"github.com/prism-fi/prism-router/models"
)

// Valuer prices an amount of a token in the network's anchor asset.
type Valuer interface {
	Value(tok models.Token, amount *big.Int) *big.Int
}

// Aggregator fans a request out to every provider at once and returns the
// quote that loses the least anchor value. When every provider fails it
// falls back to quoting the deployed bridge contract directly; only a
// failing fallback surfaces an error.
type Aggregator struct {
	providers []Provider
	fallback  Provider
	prices    Valuer
}

// NewAggregator builds an aggregator. fallback may be nil when no bridge
// contract is deployed.
func NewAggregator(providers []Provider, fallback Provider, prices Valuer) *Aggregator {
	return &Aggregator{providers: providers, fallback: fallback, prices: prices}
}

// Quote returns the best available bridging offer for the request.
func (a *Aggregator) Quote(ctx context.Context, req Request) (Quote, error) {
	type outcome struct {
		quote Quote
		err   error
	}
	outcomes := make(chan outcome, len(a.providers))

	var wg sync.WaitGroup
	for _, p := range a.providers {
		wg.Add(1)
		go func(p Provider) {
			defer wg.Done()
			quote, err := p.Quote(ctx, req)
			if err != nil {
				log.Warn().Err(err).Str("provider", p.Name()).Msg("Bridge provider quote failed")
			}
			outcomes <- outcome{quote: quote, err: err}
		}(p)
	}
	wg.Wait()
	close(outcomes)

	var best *Quote
	var failures []error
	for o := range outcomes {
		if o.err != nil {
			failures = append(failures, o.err)
			continue
		}
		quote := o.quote
		quote.PriceImpact = a.priceImpact(req, quote)
		if best == nil || quote.PriceImpact.LessThan(best.PriceImpact) {
			q := quote
			best = &q
		}
	}
	if best != nil {
		return *best, nil
	}

	if a.fallback == nil {
		return Quote{}, models.WrapError(models.CodeSimulationFailed, errors.Join(failures...),
			"no bridge provider could quote %s to %s", req.TokenIn.Key(), req.TokenOut.Key())
	}

	log.Warn().Int("failures", len(failures)).Msg("All bridge providers failed, quoting bridge contract directly")
	quote, err := a.fallback.Quote(ctx, req)
	if err != nil {
		return Quote{}, models.WrapError(models.CodeSimulationFailed, errors.Join(append(failures, err)...),
			"bridge quote failed for %s to %s", req.TokenIn.Key(), req.TokenOut.Key())
	}
	quote.PriceImpact = a.priceImpact(req, quote)
	return quote, nil
}

// priceImpact compares the anchor value entering and leaving the bridge.
// Unpriced tokens yield zero impact rather than blocking the quote.
func (a *Aggregator) priceImpact(req Request, quote Quote) decimal.Decimal {
	valueIn := a.prices.Value(req.TokenIn, req.AmountIn.Raw())
	valueOut := a.prices.Value(req.TokenOut, quote.AmountOut.Raw())
	if valueIn.Sign() == 0 || valueOut.Sign() == 0 {
		return decimal.Zero
	}
	in := decimal.NewFromBigInt(valueIn, 0)
	out := decimal.NewFromBigInt(valueOut, 0)
	return in.Sub(out).Div(in).Mul(decimal.NewFromInt(100))
}
