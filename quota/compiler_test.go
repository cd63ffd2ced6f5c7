package quota

import (
	"bytes"
	"context"
	"math/big"
	"testing"

	"github.com/ethereum/go-ethereum/common"
	"github.com/shopspring/decimal"
	"github.com/zeebo/assert"

	"github.com/prism-fi/prism-router/config"
	"github.com/prism-fi/prism-router/models"
	"github.com/prism-fi/prism-router/task"
)

const (
	wbnbAddr   = "0xbb4CdB9CBd36B01bD1cBaEBF2De08d9173bc095c"
	usdtAddr   = "0x55d398326f99059fF775485246999027B3197955"
	daiAddr    = "0x1AF3F329e8BE154074D8769D1FFa4eE058B1DBc3"
	routerAddr = "0x0000000000000000000000000000000000000103"
	ownerAddr  = "0x00000000000000000000000000000000000000AA"
)

var (
	usdt  = models.NewToken(usdtAddr, 18, "bnb")
	dai   = models.NewToken(daiAddr, 18, "bnb")
	wbnb  = models.NewToken(wbnbAddr, 18, "bnb")
	bnb   = models.Token{Address: models.NativeAddress, Decimals: 18, Network: "bnb"}
	owner = common.HexToAddress(ownerAddr)
)

func exp10(n int) *big.Int {
	return new(big.Int).Exp(big.NewInt(10), big.NewInt(int64(n)), nil)
}

func whole(n int64) *big.Int {
	return new(big.Int).Mul(big.NewInt(n), exp10(18))
}

func compilerConfig() *config.Config {
	return &config.Config{
		Networks: map[string]config.NetworkConfig{
			"bnb": {
				ChainID:        56,
				WrappedNative:  config.TokenConfig{Symbol: "WBNB", Address: wbnbAddr, Decimals: 18},
				Anchor:         config.TokenConfig{Symbol: "USDT", Address: usdtAddr, Decimals: 18},
				Tracked:        []config.TokenConfig{{Symbol: "USDT", Address: usdtAddr, Decimals: 18, RequiresZeroReset: true}},
				RouterContract: routerAddr,
			},
		},
		Gas: config.GasConfig{
			PerHop:        map[string]uint64{"v2": 120000, "v3": 160000, "stable": 180000, "wrapper": 50000},
			NativeReceive: 40000,
		},
	}
}

type fakeAllowances struct {
	allowance *big.Int
	err       error
}

func (f *fakeAllowances) Allowance(ctx context.Context, tok models.Token, owner, spender common.Address) (*big.Int, error) {
	if f.err != nil {
		return nil, f.err
	}
	return new(big.Int).Set(f.allowance), nil
}

func newCompiler(allowance *big.Int) *Compiler {
	cfg := compilerConfig()
	return NewCompiler(cfg, &fakeAllowances{allowance: allowance}, NewEstimator(cfg))
}

func poolRoute() models.Route {
	return models.Route{{
		Pool:       common.HexToAddress("0x0000000000000000000000000000000000000A01"),
		ExchangeID: 1,
		Fee:        30,
		Version:    models.AMMv2,
		Token0:     common.HexToAddress(usdtAddr),
		Token1:     common.HexToAddress(daiAddr),
	}}
}

func exactInSim() *models.SimulatedRoute {
	out := new(big.Int).Add(whole(99), new(big.Int).Mul(big.NewInt(6), exp10(17)))
	return &models.SimulatedRoute{
		Routes:          models.RouteSet{poolRoute()},
		TokenIn:         usdt,
		TokensOut:       []models.Token{dai},
		AmountIn:        models.NewAmount(whole(100), 18),
		AmountsOut:      []models.Amount{models.NewAmount(out, 18)},
		Percents:        []decimal.Decimal{decimal.NewFromInt(100)},
		PriceImpact:     []decimal.Decimal{decimal.RequireFromString("0.4")},
		SlippagePercent: decimal.RequireFromString("0.5"),
	}
}

func liveToken() task.Token {
	reg := &task.Registry{}
	return reg.Begin()
}

func TestCompileAddsApprovalThenSwap(t *testing.T) {
	c := newCompiler(new(big.Int))
	quota, err := c.Compile(context.Background(), exactInSim(), Params{Owner: owner}, liveToken())
	assert.NoError(t, err)

	assert.Equal(t, 2, len(quota.ExecutorCallData))
	approve, swap := quota.ExecutorCallData[0], quota.ExecutorCallData[1]

	assert.Equal(t, common.HexToAddress(usdtAddr), approve.To)
	assert.True(t, bytes.Equal(approveSelector, approve.CallData[:4]))
	assert.Equal(t, common.HexToAddress(routerAddr), swap.To)
	assert.True(t, bytes.Equal(swapExactInputSelector, swap.CallData[:4]))
	assert.Equal(t, swapGasMultiplier, swap.GasLimitMultiplier)
}

func TestCompileZeroResetTokenApprovesZeroFirst(t *testing.T) {
	c := newCompiler(whole(50)) // stale non-zero allowance, below required
	quota, err := c.Compile(context.Background(), exactInSim(), Params{Owner: owner}, liveToken())
	assert.NoError(t, err)

	assert.Equal(t, 3, len(quota.ExecutorCallData))
	zeroReset := quota.ExecutorCallData[0]
	assert.True(t, bytes.Equal(approveSelector, zeroReset.CallData[:4]))

	spender, amount := decodeApprove(t, zeroReset.CallData)
	assert.Equal(t, common.HexToAddress(routerAddr), spender)
	assert.Equal(t, 0, amount.Sign())

	_, amount = decodeApprove(t, quota.ExecutorCallData[1].CallData)
	assert.Equal(t, 0, amount.Cmp(whole(100)))
}

func TestCompileSkipsApprovalWhenCovered(t *testing.T) {
	c := newCompiler(whole(1000))
	quota, err := c.Compile(context.Background(), exactInSim(), Params{Owner: owner}, liveToken())
	assert.NoError(t, err)
	assert.Equal(t, 1, len(quota.ExecutorCallData))
	assert.True(t, bytes.Equal(swapExactInputSelector, quota.ExecutorCallData[0].CallData[:4]))
}

func TestCompileRoundTripsSwapParameters(t *testing.T) {
	sim := exactInSim()
	c := newCompiler(whole(1000))
	quota, err := c.Compile(context.Background(), sim, Params{Owner: owner}, liveToken())
	assert.NoError(t, err)

	values, err := swapExactInputArgs.Unpack(quota.ExecutorCallData[0].CallData[4:])
	assert.NoError(t, err)

	amountIn := values[1].(*big.Int)
	minOut := values[2].(*big.Int)
	recipient := values[3].(common.Address)

	assert.Equal(t, 0, amountIn.Cmp(sim.AmountIn.Raw()))
	assert.Equal(t, owner, recipient)

	// 0.5% slippage on the quoted output, in integer bps math.
	want := sim.AmountsOut[0].ApplyBps(-50).Raw()
	assert.Equal(t, 0, minOut.Cmp(want))
	assert.True(t, minOut.Cmp(sim.AmountsOut[0].Raw()) < 0)
}

func TestCompileExactOutputBoundsInput(t *testing.T) {
	sim := exactInSim()
	sim.ExactOutput = true
	sim.AmountsOut = []models.Amount{models.NewAmount(whole(99), 18)}

	c := newCompiler(new(big.Int))
	quota, err := c.Compile(context.Background(), sim, Params{Owner: owner}, liveToken())
	assert.NoError(t, err)

	// The approval covers the slippage-padded maximum input.
	_, approved := decodeApprove(t, quota.ExecutorCallData[0].CallData)
	maxIn := sim.AmountIn.ApplyBps(50).Raw()
	assert.Equal(t, 0, approved.Cmp(maxIn))

	swap := quota.ExecutorCallData[1]
	assert.True(t, bytes.Equal(swapExactOutputSelector, swap.CallData[:4]))
	values, err := swapExactOutputArgs.Unpack(swap.CallData[4:])
	assert.NoError(t, err)
	assert.Equal(t, 0, values[2].(*big.Int).Cmp(maxIn))
}

func TestCompileNativeInputUsesValueNotApproval(t *testing.T) {
	sim := exactInSim()
	sim.TokenIn = bnb
	sim.Routes = models.RouteSet{{{
		Pool:    common.HexToAddress("0x0000000000000000000000000000000000000A02"),
		Version: models.AMMv3,
		Fee:     500,
		Token0:  common.HexToAddress(wbnbAddr),
		Token1:  common.HexToAddress(daiAddr),
	}}}

	c := newCompiler(new(big.Int))
	quota, err := c.Compile(context.Background(), sim, Params{Owner: owner}, liveToken())
	assert.NoError(t, err)

	assert.Equal(t, 1, len(quota.ExecutorCallData))
	assert.Equal(t, 0, quota.ExecutorCallData[0].Value.Cmp(sim.AmountIn.Raw()))
}

func TestCompileSplitSwapShares(t *testing.T) {
	sim := exactInSim()
	second := models.Route{{
		Pool:    common.HexToAddress("0x0000000000000000000000000000000000000A03"),
		Version: models.AMMv3,
		Fee:     500,
		Token0:  common.HexToAddress(usdtAddr),
		Token1:  common.HexToAddress(wbnbAddr),
	}}
	sim.Routes = append(sim.Routes, second)
	sim.TokensOut = []models.Token{dai, wbnb}
	sim.AmountsOut = append(sim.AmountsOut, models.NewAmount(whole(1), 18))
	sim.Percents = []decimal.Decimal{decimal.RequireFromString("60"), decimal.RequireFromString("40")}
	sim.PriceImpact = append(sim.PriceImpact, decimal.Zero)

	c := newCompiler(whole(1000))
	quota, err := c.Compile(context.Background(), sim, Params{Owner: owner}, liveToken())
	assert.NoError(t, err)

	swap := quota.ExecutorCallData[0]
	assert.True(t, bytes.Equal(swapSplitSelector, swap.CallData[:4]))
	values, err := swapSplitArgs.Unpack(swap.CallData[4:])
	assert.NoError(t, err)

	shares := values[2].([]*big.Int)
	total := new(big.Int).Add(shares[0], shares[1])
	assert.Equal(t, 0, total.Cmp(big.NewInt(1_000_000)))
}

func TestCompileWrapAndUnwrap(t *testing.T) {
	sim := exactInSim()
	sim.TokenIn = bnb
	sim.TokensOut = []models.Token{wbnb}
	sim.Routes = models.RouteSet{{{Version: models.AMMWrapper, Token0: models.NativeAddress, Token1: common.HexToAddress(wbnbAddr)}}}
	sim.AmountsOut = []models.Amount{sim.AmountIn}

	c := newCompiler(new(big.Int))
	quota, err := c.Compile(context.Background(), sim, Params{Owner: owner}, liveToken())
	assert.NoError(t, err)
	deposit := quota.ExecutorCallData[0]
	assert.Equal(t, common.HexToAddress(wbnbAddr), deposit.To)
	assert.True(t, bytes.Equal(depositSelector, deposit.CallData))
	assert.Equal(t, 0, deposit.Value.Cmp(sim.AmountIn.Raw()))

	sim.TokenIn = wbnb
	sim.TokensOut = []models.Token{bnb}
	quota, err = c.Compile(context.Background(), sim, Params{Owner: owner}, liveToken())
	assert.NoError(t, err)
	withdraw := quota.ExecutorCallData[0]
	assert.Equal(t, common.HexToAddress(wbnbAddr), withdraw.To)
	assert.True(t, bytes.Equal(withdrawSelector, withdraw.CallData[:4]))
}

func nativeOutSim() *models.SimulatedRoute {
	sim := exactInSim()
	sim.TokensOut = []models.Token{bnb}
	sim.Routes = models.RouteSet{{{
		Pool:    common.HexToAddress("0x0000000000000000000000000000000000000A02"),
		Version: models.AMMv3,
		Fee:     500,
		Token0:  common.HexToAddress(usdtAddr),
		Token1:  common.HexToAddress(wbnbAddr),
	}}}
	return sim
}

func TestCompileNativeOutputUnwrapsAndSends(t *testing.T) {
	sim := nativeOutSim()
	recipient := common.HexToAddress("0x00000000000000000000000000000000000000CC")

	c := newCompiler(whole(1000))
	quota, err := c.Compile(context.Background(), sim, Params{Owner: owner, Recipient: recipient}, liveToken())
	assert.NoError(t, err)

	// Swap to the executor, unwrap, then send the native amount on.
	assert.Equal(t, 3, len(quota.ExecutorCallData))
	swap, withdraw, send := quota.ExecutorCallData[0], quota.ExecutorCallData[1], quota.ExecutorCallData[2]

	values, err := swapExactInputArgs.Unpack(swap.CallData[4:])
	assert.NoError(t, err)
	assert.Equal(t, owner, values[3].(common.Address))

	floor := sim.AmountsOut[0].ApplyBps(-50).Raw()
	assert.Equal(t, common.HexToAddress(wbnbAddr), withdraw.To)
	assert.True(t, bytes.Equal(withdrawSelector, withdraw.CallData[:4]))
	assert.Equal(t, recipient, send.To)
	assert.Equal(t, 0, send.Value.Cmp(floor))
	assert.Equal(t, 0, len(send.CallData))
}

func TestCompileNativeOutputToOwnerUnwrapsOnly(t *testing.T) {
	c := newCompiler(whole(1000))
	quota, err := c.Compile(context.Background(), nativeOutSim(), Params{Owner: owner}, liveToken())
	assert.NoError(t, err)

	assert.Equal(t, 2, len(quota.ExecutorCallData))
	withdraw := quota.ExecutorCallData[1]
	assert.Equal(t, common.HexToAddress(wbnbAddr), withdraw.To)
	assert.True(t, bytes.Equal(withdrawSelector, withdraw.CallData[:4]))
}

func TestCompileRejectsUnsupportedWrapPair(t *testing.T) {
	sim := exactInSim()
	sim.TokenIn = usdt
	sim.TokensOut = []models.Token{dai}
	sim.Routes = models.RouteSet{{{Version: models.AMMWrapper, Token0: common.HexToAddress(usdtAddr), Token1: common.HexToAddress(daiAddr)}}}

	c := newCompiler(new(big.Int))
	_, err := c.Compile(context.Background(), sim, Params{Owner: owner}, liveToken())
	assert.Error(t, err)
	assert.True(t, models.IsCode(err, models.CodeTransactionPrepare))
}

func TestCompileRejectsStaleTask(t *testing.T) {
	reg := &task.Registry{}
	tok := reg.Begin()
	reg.Begin()

	c := newCompiler(new(big.Int))
	_, err := c.Compile(context.Background(), exactInSim(), Params{Owner: owner}, tok)
	assert.Error(t, err)
	assert.True(t, models.IsCode(err, models.CodeAborted))
}

func TestGasEstimateSumsHopsAndNativeReceive(t *testing.T) {
	sim := exactInSim()
	sim.TokensOut = []models.Token{bnb}
	sim.Routes = models.RouteSet{{
		{Pool: common.HexToAddress("0x0000000000000000000000000000000000000A02"), Version: models.AMMv3, Fee: 500, Token0: common.HexToAddress(usdtAddr), Token1: common.HexToAddress(wbnbAddr)},
		{Pool: common.HexToAddress("0x0000000000000000000000000000000000000A01"), Version: models.AMMv2, Fee: 30, Token0: common.HexToAddress(wbnbAddr), Token1: common.HexToAddress(wbnbAddr)},
	}}

	c := newCompiler(whole(1000))
	quota, err := c.Compile(context.Background(), sim, Params{Owner: owner}, liveToken())
	assert.NoError(t, err)
	assert.Equal(t, uint64(160000+120000+40000), quota.GasEstimate)
}

func decodeApprove(t *testing.T, callData []byte) (common.Address, *big.Int) {
	t.Helper()
	values, err := addressAmountArgs.Unpack(callData[4:])
	assert.NoError(t, err)
	return values[0].(common.Address), values[1].(*big.Int)
}
