package routing

import (
	"context"
	"math/big"
	"testing"

	"github.com/ethereum/go-ethereum/common"
	"github.com/shopspring/decimal"
	"github.com/zeebo/assert"

	"github.com/prism-fi/prism-router/config"
	"github.com/prism-fi/prism-router/graphquery"
	"github.com/prism-fi/prism-router/models"
	"github.com/prism-fi/prism-router/multicall"
	"github.com/prism-fi/prism-router/task"
)

const (
	wbnbAddr = "0xbb4CdB9CBd36B01bD1cBaEBF2De08d9173bc095c"
	usdtAddr = "0x55d398326f99059fF775485246999027B3197955"
	daiAddr  = "0x1AF3F329e8BE154074D8769D1FFa4eE058B1DBc3"

	directPool = "0x0000000000000000000000000000000000000A01"
	hopPoolA   = "0x0000000000000000000000000000000000000A02"
	hopPoolB   = "0x0000000000000000000000000000000000000A03"
)

var (
	usdt = models.NewToken(usdtAddr, 18, "bnb")
	dai  = models.NewToken(daiAddr, 18, "bnb")
	wbnb = models.NewToken(wbnbAddr, 18, "bnb")
	bnb  = models.Token{Address: models.NativeAddress, Decimals: 18, Network: "bnb"}
)

func testConfig() *config.Config {
	return &config.Config{
		Networks: map[string]config.NetworkConfig{
			"bnb": {
				Name:           "BNB Chain",
				WrappedNative:  config.TokenConfig{Symbol: "WBNB", Address: wbnbAddr, Decimals: 18},
				Anchor:         config.TokenConfig{Symbol: "USDT", Address: usdtAddr, Decimals: 18},
				OracleContract: "0x0000000000000000000000000000000000000101",
				QuoterContract: "0x0000000000000000000000000000000000000102",
				RouterContract: "0x0000000000000000000000000000000000000103",
			},
		},
		Routing: config.RoutingConfig{
			GraphURL:                  "http://graph.invalid",
			MaxRoutes:                 5,
			CacheSize:                 16,
			CacheTTLSeconds:           30,
			MaxPriceDivergencePercent: decimal.NewFromInt(10),
		},
	}
}

// usdtToDaiResponse offers a direct pool and a two-hop path through WBNB.
func usdtToDaiResponse() graphquery.RoutesResponse {
	return graphquery.RoutesResponse{
		Items: graphquery.RouteItems{
			Swap: [][]graphquery.PoolItem{
				{{Pool: directPool, ExchangeID: 1, Fee: 30, Version: 2, Token0: usdtAddr, Token1: daiAddr}},
				{
					{Pool: hopPoolA, ExchangeID: 2, Fee: 500, Version: 3, Token0: usdtAddr, Token1: wbnbAddr},
					{Pool: hopPoolB, ExchangeID: 2, Fee: 500, Version: 3, Token0: wbnbAddr, Token1: daiAddr},
				},
			},
		},
	}
}

type fakeGraph struct {
	resp  graphquery.RoutesResponse
	err   error
	calls int
}

func (f *fakeGraph) GetRoutes(ctx context.Context, network, from, to string, limit int, banned []int, hint string) (graphquery.RoutesResponse, error) {
	f.calls++
	return f.resp, f.err
}

// fakeQuoter answers quoter calls in request order from a scripted list.
type fakeQuoter struct {
	quotes []*big.Int
	revert map[int]bool
	err    error
	calls  int
}

func (f *fakeQuoter) Call(ctx context.Context, network string, calls []multicall.Call) ([]multicall.Result, error) {
	f.calls++
	if f.err != nil {
		return nil, f.err
	}
	results := make([]multicall.Result, len(calls))
	for i := range calls {
		if f.revert[i] {
			results[i] = multicall.Result{Success: false}
			continue
		}
		results[i] = multicall.Result{Success: true, Data: common.LeftPadBytes(f.quotes[i].Bytes(), 32)}
	}
	return results, nil
}

// fakeValuer prices whole tokens at a fixed anchor rate.
type fakeValuer struct {
	prices map[common.Address]*big.Int // anchor smallest units per whole token
}

func (f *fakeValuer) Value(tok models.Token, amount *big.Int) *big.Int {
	price, ok := f.prices[tok.Address]
	if !ok {
		return new(big.Int)
	}
	v := new(big.Int).Mul(amount, price)
	return v.Quo(v, exp10(int(tok.Decimals)))
}

func exp10(n int) *big.Int {
	return new(big.Int).Exp(big.NewInt(10), big.NewInt(int64(n)), nil)
}

func whole(n int64) *big.Int {
	return new(big.Int).Mul(big.NewInt(n), exp10(18))
}

func stableValuer() *fakeValuer {
	return &fakeValuer{prices: map[common.Address]*big.Int{
		common.HexToAddress(usdtAddr): exp10(18),
		common.HexToAddress(daiAddr):  exp10(18),
	}}
}

func newSimulator(graph GraphClient, quoter multicall.Caller, valuer Valuer) *Simulator {
	cfg := testConfig()
	return NewSimulator(cfg, NewDiscovery(graph, cfg), valuer, quoter)
}

func exactInRequest(amountIn *big.Int) *models.SwapRequest {
	in := models.NewAmount(amountIn, 18)
	req := &models.SwapRequest{
		TokenIn:                 usdt,
		TokensOut:               []models.Token{dai},
		AmountIn:                &in,
		SlippageReadablePercent: decimal.RequireFromString("0.5"),
	}
	return req
}

func TestExactInputPicksHighestOutput(t *testing.T) {
	graph := &fakeGraph{resp: usdtToDaiResponse()}
	// 100 USDT in: the direct pool pays 99.6 DAI, the two-hop path 99.1.
	quoter := &fakeQuoter{quotes: []*big.Int{
		new(big.Int).Add(whole(99), new(big.Int).Mul(big.NewInt(6), exp10(17))),
		new(big.Int).Add(whole(99), exp10(17)),
	}}

	sim := newSimulator(graph, quoter, stableValuer())
	req := exactInRequest(whole(100))
	assert.NoError(t, req.Normalize())

	reg := &task.Registry{}
	result, err := sim.Simulate(context.Background(), req, reg.Begin())
	assert.NoError(t, err)

	assert.Equal(t, 1, len(result.Routes))
	assert.Equal(t, common.HexToAddress(directPool), result.Routes[0][0].Pool)
	assert.True(t, result.AmountsOut[0].IsPositive())
	assert.Equal(t, 0, result.AmountsOut[0].Raw().Cmp(quoter.quotes[0]))

	// 0.4% of anchor value lost crossing the pool.
	assert.True(t, result.PriceImpact[0].Equal(decimal.RequireFromString("0.4")))
	assert.True(t, result.PriceImpact[0].Abs().LessThan(decimal.NewFromInt(100)))
}

func TestDivergedCandidateSkipped(t *testing.T) {
	graph := &fakeGraph{resp: usdtToDaiResponse()}
	// The direct pool quotes an absurd 150 DAI for 100 USDT; a pool that far
	// off the stored price is broken and must not win.
	quoter := &fakeQuoter{quotes: []*big.Int{whole(150), whole(99)}}

	sim := newSimulator(graph, quoter, stableValuer())
	req := exactInRequest(whole(100))
	assert.NoError(t, req.Normalize())

	reg := &task.Registry{}
	result, err := sim.Simulate(context.Background(), req, reg.Begin())
	assert.NoError(t, err)
	assert.Equal(t, common.HexToAddress(hopPoolA), result.Routes[0][0].Pool)
	assert.Equal(t, 0, result.AmountsOut[0].Raw().Cmp(whole(99)))
}

func TestAllCandidatesDivergedIsRoutesNotFound(t *testing.T) {
	graph := &fakeGraph{resp: usdtToDaiResponse()}
	quoter := &fakeQuoter{quotes: []*big.Int{whole(150), whole(200)}}

	sim := newSimulator(graph, quoter, stableValuer())
	req := exactInRequest(whole(100))
	assert.NoError(t, req.Normalize())

	reg := &task.Registry{}
	_, err := sim.Simulate(context.Background(), req, reg.Begin())
	assert.Error(t, err)
	assert.True(t, models.IsCode(err, models.CodeRoutesNotFound))
}

func TestExactOutputPicksLowestInput(t *testing.T) {
	graph := &fakeGraph{resp: usdtToDaiResponse()}
	// Required inputs for 100 DAI out: 101 via direct, 100.5 via the hops.
	cheaper := new(big.Int).Add(whole(100), new(big.Int).Mul(big.NewInt(5), exp10(17)))
	quoter := &fakeQuoter{quotes: []*big.Int{whole(101), cheaper}}

	sim := newSimulator(graph, quoter, stableValuer())
	out := models.NewAmount(whole(100), 18)
	req := &models.SwapRequest{
		TokenIn:                 usdt,
		TokensOut:               []models.Token{dai},
		AmountsOut:              []models.Amount{out},
		ExactOutput:             true,
		SlippageReadablePercent: decimal.RequireFromString("0.5"),
	}
	assert.NoError(t, req.Normalize())

	reg := &task.Registry{}
	result, err := sim.Simulate(context.Background(), req, reg.Begin())
	assert.NoError(t, err)
	assert.Equal(t, common.HexToAddress(hopPoolA), result.Routes[0][0].Pool)
	assert.Equal(t, 0, result.AmountIn.Raw().Cmp(cheaper))
	assert.Equal(t, 0, result.AmountsOut[0].Raw().Cmp(whole(100)))
}

func TestIdentitySameToken(t *testing.T) {
	graph := &fakeGraph{}
	sim := newSimulator(graph, &fakeQuoter{}, stableValuer())

	in := models.NewAmount(whole(5), 18)
	req := &models.SwapRequest{TokenIn: usdt, TokensOut: []models.Token{usdt}, AmountIn: &in}
	assert.NoError(t, req.Normalize())

	reg := &task.Registry{}
	result, err := sim.Simulate(context.Background(), req, reg.Begin())
	assert.NoError(t, err)
	assert.Equal(t, 0, result.AmountsOut[0].Raw().Cmp(whole(5)))
	assert.True(t, result.PriceImpact[0].IsZero())
	assert.Equal(t, 0, graph.calls)
}

func TestIdentityWrapPair(t *testing.T) {
	graph := &fakeGraph{}
	sim := newSimulator(graph, &fakeQuoter{}, stableValuer())

	in := models.NewAmount(whole(5), 18)
	req := &models.SwapRequest{TokenIn: bnb, TokensOut: []models.Token{wbnb}, AmountIn: &in}
	assert.NoError(t, req.Normalize())

	reg := &task.Registry{}
	result, err := sim.Simulate(context.Background(), req, reg.Begin())
	assert.NoError(t, err)
	assert.Equal(t, 0, result.AmountsOut[0].Raw().Cmp(whole(5)))
	assert.True(t, result.PriceImpact[0].IsZero())
	assert.Equal(t, models.AMMWrapper, result.Routes[0][0].Version)
	assert.Equal(t, 0, graph.calls)
}

func TestGraphFailureIsRoutesNotFound(t *testing.T) {
	graph := &fakeGraph{err: context.DeadlineExceeded}
	sim := newSimulator(graph, &fakeQuoter{}, stableValuer())

	req := exactInRequest(whole(100))
	assert.NoError(t, req.Normalize())

	reg := &task.Registry{}
	_, err := sim.Simulate(context.Background(), req, reg.Begin())
	assert.Error(t, err)
	assert.True(t, models.IsCode(err, models.CodeRoutesNotFound))
}

func TestSupersededRequestAborts(t *testing.T) {
	graph := &fakeGraph{resp: usdtToDaiResponse()}
	quoter := &fakeQuoter{quotes: []*big.Int{whole(99), whole(98)}}
	sim := newSimulator(graph, quoter, stableValuer())

	req := exactInRequest(whole(100))
	assert.NoError(t, req.Normalize())

	reg := &task.Registry{}
	tok := reg.Begin()
	reg.Begin() // a newer request supersedes the first

	_, err := sim.Simulate(context.Background(), req, tok)
	assert.Error(t, err)
	assert.True(t, models.IsCode(err, models.CodeAborted))
}

func TestRevertedQuoteSkipped(t *testing.T) {
	graph := &fakeGraph{resp: usdtToDaiResponse()}
	quoter := &fakeQuoter{
		quotes: []*big.Int{whole(99), whole(98)},
		revert: map[int]bool{0: true},
	}
	sim := newSimulator(graph, quoter, stableValuer())

	req := exactInRequest(whole(100))
	assert.NoError(t, req.Normalize())

	reg := &task.Registry{}
	result, err := sim.Simulate(context.Background(), req, reg.Begin())
	assert.NoError(t, err)
	assert.Equal(t, common.HexToAddress(hopPoolA), result.Routes[0][0].Pool)
}

func TestQuoterTransportFailureIsSimulationFailed(t *testing.T) {
	graph := &fakeGraph{resp: usdtToDaiResponse()}
	quoter := &fakeQuoter{err: context.DeadlineExceeded}
	sim := newSimulator(graph, quoter, stableValuer())

	req := exactInRequest(whole(100))
	assert.NoError(t, req.Normalize())

	reg := &task.Registry{}
	_, err := sim.Simulate(context.Background(), req, reg.Begin())
	assert.Error(t, err)
	assert.True(t, models.IsCode(err, models.CodeSimulationFailed))
}
