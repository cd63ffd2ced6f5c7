package routing

import (
	"context"
	"math/big"

	"github.com/ethereum/go-ethereum/common"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/shopspring/decimal"

	"github.com/prism-fi/prism-router/config"
	"github.com/prism-fi/prism-router/models"
	"github.com/prism-fi/prism-router/multicall"
	"github.com/prism-fi/prism-router/task"
)

var simulations = promauto.NewCounterVec(prometheus.CounterOpts{
	Name: "prism_route_simulations_total",
	Help: "Route simulations by outcome: ok or the failure code.",
}, []string{"outcome"})

// Valuer prices an amount of a token in the network's anchor asset.
type Valuer interface {
	Value(tok models.Token, amount *big.Int) *big.Int
}

// Simulator verifies discovered routes against the on-chain quoter contract
// and picks the best candidate per output token. Candidates whose quoted
// value diverges too far from the stored price are treated as broken pools
// and discarded.
type Simulator struct {
	cfg       *config.Config
	discovery *Discovery
	prices    Valuer
	caller    multicall.Caller
}

// NewSimulator wires the simulator over its collaborators.
func NewSimulator(cfg *config.Config, discovery *Discovery, prices Valuer, caller multicall.Caller) *Simulator {
	return &Simulator{cfg: cfg, discovery: discovery, prices: prices, caller: caller}
}

// legResult is one output token's winning candidate.
type legResult struct {
	route    models.Route
	amountIn models.Amount // exact-output mode only
	amount   models.Amount // quoted output (exact-in) or echoed target (exact-out)
	impact   decimal.Decimal
}

// Simulate quotes a normalized single-network request and returns the
// verified route set. The task token is checked after every on-chain round;
// a superseded request aborts with CodeAborted rather than finishing work
// nobody will read.
func (s *Simulator) Simulate(ctx context.Context, req *models.SwapRequest, tok task.Token) (*models.SimulatedRoute, error) {
	sim, err := s.simulate(ctx, req, tok)
	if err != nil {
		simulations.WithLabelValues(string(models.CodeOf(err))).Inc()
		return nil, err
	}
	simulations.WithLabelValues("ok").Inc()
	return sim, nil
}

func (s *Simulator) simulate(ctx context.Context, req *models.SwapRequest, tok task.Token) (*models.SimulatedRoute, error) {
	for _, out := range req.TokensOut {
		if out.Network != req.TokenIn.Network {
			return nil, models.NewError(models.CodeInvalidRequest, "output token %s is not on network %s", out.Key(), req.TokenIn.Network)
		}
	}

	if len(req.TokensOut) == 1 {
		if sim, ok := s.identity(req); ok {
			return sim, nil
		}
	}

	percents, legsIn, err := s.splitInput(req)
	if err != nil {
		return nil, err
	}

	result := &models.SimulatedRoute{
		TokenIn:         req.TokenIn,
		TokensOut:       req.TokensOut,
		Percents:        percents,
		SlippagePercent: req.SlippageReadablePercent,
		ExactOutput:     req.ExactOutput,
	}

	for i, tokenOut := range req.TokensOut {
		var target models.Amount
		if req.ExactOutput {
			target = req.AmountsOut[i]
		} else {
			target = legsIn[i]
		}
		leg, err := s.simulateLeg(ctx, req, tokenOut, target, tok)
		if err != nil {
			return nil, err
		}

		result.Routes = append(result.Routes, leg.route)
		if req.ExactOutput {
			result.AmountIn = leg.amountIn
			result.AmountsOut = append(result.AmountsOut, leg.amount)
		} else {
			result.AmountsOut = append(result.AmountsOut, leg.amount)
		}
		result.PriceImpact = append(result.PriceImpact, leg.impact)
	}
	if !req.ExactOutput {
		result.AmountIn = *req.AmountIn
	}
	result.Touched = touchedTokens(req.TokenIn, result.Routes)
	return result, nil
}

// identity handles the degenerate pairs no pool is needed for: the same
// token on both sides, and native against its wrapped form. Both convert
// one-to-one with zero price impact.
func (s *Simulator) identity(req *models.SwapRequest) (*models.SimulatedRoute, bool) {
	in, out := req.TokenIn, req.TokensOut[0]
	if !in.Equal(out) && !s.isWrapPair(in, out) {
		return nil, false
	}

	var amount models.Amount
	if req.ExactOutput {
		amount = req.AmountsOut[0].Rescale(in.Decimals)
	} else {
		amount = req.AmountIn.Rescale(out.Decimals)
	}

	step := models.RouteStep{Version: models.AMMWrapper, Token0: in.Address, Token1: out.Address}
	sim := &models.SimulatedRoute{
		Routes:          models.RouteSet{models.Route{step}},
		TokenIn:         in,
		TokensOut:       []models.Token{out},
		Percents:        []decimal.Decimal{decimal.NewFromInt(100)},
		PriceImpact:     []decimal.Decimal{decimal.Zero},
		SlippagePercent: req.SlippageReadablePercent,
		ExactOutput:     req.ExactOutput,
		Touched:         []models.Token{in, out},
	}
	if req.ExactOutput {
		sim.AmountIn = amount
		sim.AmountsOut = req.AmountsOut
	} else {
		sim.AmountIn = *req.AmountIn
		sim.AmountsOut = []models.Amount{amount}
	}
	return sim, true
}

func (s *Simulator) isWrapPair(a, b models.Token) bool {
	wrapped, ok := s.cfg.WrappedNativeToken(a.Network)
	if !ok {
		return false
	}
	return (a.IsNative() && b.Equal(wrapped)) || (b.IsNative() && a.Equal(wrapped))
}

// splitInput divides the input across output tokens in exact-input mode.
func (s *Simulator) splitInput(req *models.SwapRequest) ([]decimal.Decimal, []models.Amount, error) {
	if req.ExactOutput {
		return []decimal.Decimal{decimal.NewFromInt(100)}, nil, nil
	}
	if !req.MultiOutput() {
		return []decimal.Decimal{decimal.NewFromInt(100)}, []models.Amount{*req.AmountIn}, nil
	}
	percents, err := models.NormalizePercents(req.AmountOutReadablePercentages)
	if err != nil {
		return nil, nil, err
	}
	return percents, models.SplitAmount(*req.AmountIn, percents), nil
}

// simulateLeg quotes every candidate route for one output token and returns
// the best one that survives the divergence filter.
func (s *Simulator) simulateLeg(
	ctx context.Context,
	req *models.SwapRequest,
	tokenOut models.Token,
	target models.Amount,
	tok task.Token,
) (legResult, error) {
	from, err := s.effective(req.TokenIn)
	if err != nil {
		return legResult{}, err
	}
	to, err := s.effective(tokenOut)
	if err != nil {
		return legResult{}, err
	}

	discovered := s.discovery.Routes(ctx, from, to, req.BannedExchangeIDs, target.Raw().String())
	if len(discovered.Candidates) == 0 {
		return legResult{}, models.NewError(models.CodeRoutesNotFound, "no routes from %s to %s", from.Key(), to.Key())
	}

	quoter := common.HexToAddress(s.cfg.Networks[req.TokenIn.Network].QuoterContract)
	calls := make([]multicall.Call, 0, len(discovered.Candidates))
	for i, route := range discovered.Candidates {
		data, err := EncodeQuoteCall(route, target.Raw(), req.ExactOutput)
		if err != nil {
			return legResult{}, models.WrapError(models.CodeInternalError, err, "failed to encode quote for candidate %d", i)
		}
		calls = append(calls, multicall.Call{To: quoter, Data: data})
	}

	results, err := s.caller.Call(ctx, req.TokenIn.Network, calls)
	if err != nil {
		return legResult{}, models.WrapError(models.CodeSimulationFailed, err, "quoter multicall failed on %s", req.TokenIn.Network)
	}
	if !tok.Live() {
		return legResult{}, models.NewError(models.CodeAborted, "request superseded during simulation")
	}

	best, found := s.pickBest(req, tokenOut, target, discovered.Candidates, results)
	if !found {
		return legResult{}, models.NewError(models.CodeRoutesNotFound, "no viable route from %s to %s", from.Key(), to.Key())
	}
	return best, nil
}

// pickBest ranks quoted candidates: highest output for exact-input, lowest
// required input for exact-output. Candidates whose anchor-valued quote
// diverges beyond the configured threshold are skipped.
func (s *Simulator) pickBest(
	req *models.SwapRequest,
	tokenOut models.Token,
	target models.Amount,
	candidates []models.Route,
	results []multicall.Result,
) (legResult, bool) {
	var best legResult
	var bestQuote *big.Int

	for i, res := range results {
		if !res.Success || len(res.Data) == 0 {
			continue
		}
		quoted, err := DecodeQuoteResult(res.Data)
		if err != nil || quoted.Sign() <= 0 {
			continue
		}

		var amountIn, amountOut *big.Int
		if req.ExactOutput {
			amountIn, amountOut = quoted, target.Raw()
		} else {
			amountIn, amountOut = target.Raw(), quoted
		}
		impact, ok := s.priceImpact(req.TokenIn, tokenOut, amountIn, amountOut)
		if !ok {
			continue
		}

		better := bestQuote == nil ||
			(!req.ExactOutput && quoted.Cmp(bestQuote) > 0) ||
			(req.ExactOutput && quoted.Cmp(bestQuote) < 0)
		if !better {
			continue
		}
		bestQuote = quoted
		best = legResult{route: candidates[i], impact: impact}
		if req.ExactOutput {
			best.amountIn = models.NewAmount(quoted, req.TokenIn.Decimals)
			best.amount = target
		} else {
			best.amount = models.NewAmount(quoted, tokenOut.Decimals)
		}
	}
	return best, bestQuote != nil
}

// priceImpact returns the signed percent loss of anchor value across the
// swap, and whether the candidate passes the divergence filter. Unpriced
// tokens cannot be filtered and pass with zero impact.
func (s *Simulator) priceImpact(tokenIn, tokenOut models.Token, amountIn, amountOut *big.Int) (decimal.Decimal, bool) {
	valueIn := s.prices.Value(tokenIn, amountIn)
	valueOut := s.prices.Value(tokenOut, amountOut)
	if valueIn.Sign() == 0 || valueOut.Sign() == 0 {
		return decimal.Zero, true
	}

	in := decimal.NewFromBigInt(valueIn, 0)
	out := decimal.NewFromBigInt(valueOut, 0)
	impact := in.Sub(out).Div(in).Mul(decimal.NewFromInt(100))

	if impact.Abs().GreaterThan(s.cfg.Routing.MaxPriceDivergencePercent) {
		log.Warn().
			Str("tokenIn", tokenIn.Key()).
			Str("tokenOut", tokenOut.Key()).
			Str("impact", impact.StringFixed(4)).
			Msg("Discarding route beyond price divergence threshold")
		return impact, false
	}
	return impact, true
}

// effective substitutes the wrapped-native token for the native pseudo-token;
// pools and quoters only ever see the wrapped form.
func (s *Simulator) effective(tok models.Token) (models.Token, error) {
	if !tok.IsNative() {
		return tok, nil
	}
	wrapped, ok := s.cfg.WrappedNativeToken(tok.Network)
	if !ok {
		return models.Token{}, models.NewError(models.CodeInternalError, "no wrapped native configured for %s", tok.Network)
	}
	return wrapped, nil
}

func touchedTokens(tokenIn models.Token, routes models.RouteSet) []models.Token {
	seen := map[common.Address]bool{}
	touched := []models.Token{}
	add := func(addr common.Address) {
		if seen[addr] {
			return
		}
		seen[addr] = true
		touched = append(touched, models.Token{Address: addr, Network: tokenIn.Network})
	}
	add(tokenIn.Address)
	for _, route := range routes {
		for _, step := range route {
			add(step.Token0)
			add(step.Token1)
		}
	}
	return touched
}
