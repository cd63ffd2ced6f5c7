package quota

import (
	"context"
	"math/big"

	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"

	"github.com/prism-fi/prism-router/config"
	"github.com/prism-fi/prism-router/models"
	"github.com/prism-fi/prism-router/routing"
	"github.com/prism-fi/prism-router/task"
)

// swapGasMultiplier pads the node's estimate for swap calls, whose real cost
// moves with pool state between quoting and execution.
const swapGasMultiplier = 1.3

var (
	bytesType, _        = abi.NewType("bytes", "", nil)
	bytesSliceType, _   = abi.NewType("bytes[]", "", nil)
	uint256SliceType, _ = abi.NewType("uint256[]", "", nil)

	swapExactInputArgs     = abi.Arguments{{Type: bytesType}, {Type: uint256Type}, {Type: uint256Type}, {Type: addressType}}
	swapExactInputSelector = crypto.Keccak256([]byte("swapExactInput(bytes,uint256,uint256,address)"))[:4]

	swapExactOutputArgs     = abi.Arguments{{Type: bytesType}, {Type: uint256Type}, {Type: uint256Type}, {Type: addressType}}
	swapExactOutputSelector = crypto.Keccak256([]byte("swapExactOutput(bytes,uint256,uint256,address)"))[:4]

	swapSplitArgs     = abi.Arguments{{Type: bytesSliceType}, {Type: uint256Type}, {Type: uint256SliceType}, {Type: uint256SliceType}, {Type: addressType}}
	swapSplitSelector = crypto.Keccak256([]byte("swapSplit(bytes[],uint256,uint256[],uint256[],address)"))[:4]
)

// Params carries the execution context a simulated route alone does not
// know: who pays and who receives.
type Params struct {
	Owner     common.Address
	Recipient common.Address // zero means Owner
}

// Compiler turns a simulated route into the ordered call list an executor
// submits verbatim: allowance fixes first, then the swap itself.
type Compiler struct {
	cfg        *config.Config
	allowances AllowanceReader
	gas        *Estimator
}

func NewCompiler(cfg *config.Config, allowances AllowanceReader, gas *Estimator) *Compiler {
	return &Compiler{cfg: cfg, allowances: allowances, gas: gas}
}

// Compile builds the executable quota for one single-network route.
func (c *Compiler) Compile(ctx context.Context, sim *models.SimulatedRoute, p Params, tok task.Token) (*models.Quota, error) {
	if !tok.Live() {
		return nil, models.NewError(models.CodeAborted, "request superseded before compilation")
	}
	network := sim.TokenIn.Network
	for _, out := range sim.TokensOut {
		if out.Network != network {
			return nil, models.NewError(models.CodeTransactionPrepare, "route crosses networks %s and %s", network, out.Network)
		}
	}
	if !sim.AmountIn.IsPositive() {
		return nil, models.NewError(models.CodeTransactionPrepare, "amount in must be positive")
	}
	recipient := p.Recipient
	if recipient == (common.Address{}) {
		recipient = p.Owner
	}

	quota := &models.Quota{
		AmountIn:         sim.AmountIn,
		AmountsOut:       sim.AmountsOut,
		TokenIn:          sim.TokenIn,
		TokensOut:        sim.TokensOut,
		SlippageReadable: sim.SlippagePercent,
		PriceImpact:      sim.PriceImpact,
	}

	if isWrapperOnly(sim) {
		calls, err := c.wrapperCalls(sim, recipient, p.Owner)
		if err != nil {
			return nil, err
		}
		quota.ExecutorCallData = calls
		quota.GasEstimate = c.gas.RouteGas(sim.Routes)
		return quota, nil
	}

	nc, ok := c.cfg.Networks[network]
	if !ok || nc.RouterContract == "" {
		return nil, models.NewError(models.CodeTransactionPrepare, "no router contract configured on %s", network)
	}
	router := common.HexToAddress(nc.RouterContract)

	required := sim.AmountIn.Raw()
	if sim.ExactOutput {
		required = sim.AmountIn.ApplyBps(slippageBps(sim)).Raw()
	}

	var calls []models.ExecutorCall
	if !sim.TokenIn.IsNative() {
		approvals, err := c.approvalCalls(ctx, sim.TokenIn, p.Owner, router, required)
		if err != nil {
			return nil, err
		}
		if !tok.Live() {
			return nil, models.NewError(models.CodeAborted, "request superseded during compilation")
		}
		calls = append(calls, approvals...)
	}

	// Routes end at wrapped native, so a native output must come back to the
	// executor first and be unwrapped before delivery.
	swapTo := recipient
	if hasNativeOutput(sim) {
		swapTo = p.Owner
	}
	swapData, err := c.swapCallData(sim, swapTo)
	if err != nil {
		return nil, err
	}
	value := new(big.Int)
	if sim.TokenIn.IsNative() {
		value = new(big.Int).Set(required)
	}
	calls = append(calls, models.ExecutorCall{
		CallData:           swapData,
		Network:            network,
		To:                 router,
		Value:              value,
		GasLimitMultiplier: swapGasMultiplier,
	})

	if hasNativeOutput(sim) {
		tail, err := c.deliveryCalls(sim, recipient, p.Owner)
		if err != nil {
			return nil, err
		}
		calls = append(calls, tail...)
	}

	quota.ExecutorCallData = calls
	quota.GasEstimate = c.gas.RouteGas(sim.Routes) + c.nativeReceiveGas(sim)
	return quota, nil
}

// approvalCalls brings the router's allowance up to required. Tokens with
// reset semantics must see a zero approval before a new non-zero one.
func (c *Compiler) approvalCalls(ctx context.Context, tokenIn models.Token, owner, router common.Address, required *big.Int) ([]models.ExecutorCall, error) {
	current, err := c.allowances.Allowance(ctx, tokenIn, owner, router)
	if err != nil {
		return nil, models.WrapError(models.CodeTransactionPrepare, err, "failed to read allowance for %s", tokenIn.Key())
	}
	if current.Cmp(required) >= 0 {
		return nil, nil
	}

	var calls []models.ExecutorCall
	if c.cfg.RequiresZeroReset(tokenIn) && current.Sign() > 0 {
		calls = append(calls, models.ExecutorCall{
			CallData: encodeApprove(router, new(big.Int)),
			Network:  tokenIn.Network,
			To:       tokenIn.Address,
			Value:    new(big.Int),
		})
	}
	calls = append(calls, models.ExecutorCall{
		CallData: encodeApprove(router, required),
		Network:  tokenIn.Network,
		To:       tokenIn.Address,
		Value:    new(big.Int),
	})
	return calls, nil
}

// swapCallData encodes the router invocation for the route set. A payload
// from an alternate routing backend is used verbatim.
func (c *Compiler) swapCallData(sim *models.SimulatedRoute, recipient common.Address) ([]byte, error) {
	if sim.SmartRoutePayload != nil {
		return sim.SmartRoutePayload, nil
	}

	bps := slippageBps(sim)
	if sim.ExactOutput {
		path, err := routing.PackRoute(sim.Routes[0])
		if err != nil {
			return nil, models.WrapError(models.CodeTransactionPrepare, err, "failed to pack route")
		}
		maxIn := sim.AmountIn.ApplyBps(bps).Raw()
		data, err := swapExactOutputArgs.Pack(path, sim.AmountsOut[0].Raw(), maxIn, recipient)
		if err != nil {
			return nil, models.WrapError(models.CodeTransactionPrepare, err, "failed to pack exact-output swap")
		}
		return append(append([]byte{}, swapExactOutputSelector...), data...), nil
	}

	if len(sim.Routes) == 1 {
		path, err := routing.PackRoute(sim.Routes[0])
		if err != nil {
			return nil, models.WrapError(models.CodeTransactionPrepare, err, "failed to pack route")
		}
		minOut := sim.AmountsOut[0].ApplyBps(-bps).Raw()
		data, err := swapExactInputArgs.Pack(path, sim.AmountIn.Raw(), minOut, recipient)
		if err != nil {
			return nil, models.WrapError(models.CodeTransactionPrepare, err, "failed to pack exact-input swap")
		}
		return append(append([]byte{}, swapExactInputSelector...), data...), nil
	}

	paths := make([][]byte, len(sim.Routes))
	shares := make([]*big.Int, len(sim.Routes))
	minOuts := make([]*big.Int, len(sim.Routes))
	for i, route := range sim.Routes {
		path, err := routing.PackRoute(route)
		if err != nil {
			return nil, models.WrapError(models.CodeTransactionPrepare, err, "failed to pack route %d", i)
		}
		paths[i] = path
		shares[i] = sim.Percents[i].Shift(4).BigInt() // 10^-4 percent units
		minOuts[i] = sim.AmountsOut[i].ApplyBps(-bps).Raw()
	}
	data, err := swapSplitArgs.Pack(paths, sim.AmountIn.Raw(), shares, minOuts, recipient)
	if err != nil {
		return nil, models.WrapError(models.CodeTransactionPrepare, err, "failed to pack split swap")
	}
	return append(append([]byte{}, swapSplitSelector...), data...), nil
}

// wrapperCalls handles routes that never touch a pool: same-token delivery
// and native wrap/unwrap against the configured wrapped-native contract.
func (c *Compiler) wrapperCalls(sim *models.SimulatedRoute, recipient, owner common.Address) ([]models.ExecutorCall, error) {
	in, out := sim.TokenIn, sim.TokensOut[0]
	network := in.Network
	amount := sim.AmountIn.Raw()

	if in.Equal(out) {
		if recipient == owner {
			return nil, nil
		}
		if in.IsNative() {
			return []models.ExecutorCall{{Network: network, To: recipient, Value: amount}}, nil
		}
		return []models.ExecutorCall{{
			CallData: encodeTransfer(recipient, amount),
			Network:  network,
			To:       in.Address,
			Value:    new(big.Int),
		}}, nil
	}

	wrapped, ok := c.cfg.WrappedNativeToken(network)
	if !ok {
		return nil, models.NewError(models.CodeTransactionPrepare, "no wrapped native configured on %s", network)
	}
	switch {
	case in.IsNative() && out.Equal(wrapped):
		return []models.ExecutorCall{{
			CallData: append([]byte{}, depositSelector...),
			Network:  network,
			To:       wrapped.Address,
			Value:    amount,
		}}, nil
	case in.Equal(wrapped) && out.IsNative():
		return []models.ExecutorCall{{
			CallData: encodeWithdraw(amount),
			Network:  network,
			To:       wrapped.Address,
			Value:    new(big.Int),
		}}, nil
	default:
		return nil, models.NewError(models.CodeTransactionPrepare, "unsupported wrap pair %s to %s", in.Key(), out.Key())
	}
}

// deliveryCalls moves swap outputs from the executor to the recipient when
// the swap itself could not deliver them. Native outputs get an unwrap and,
// when the recipient differs from the owner, a plain value send; other
// outputs of a mixed split get an ERC20 transfer. Amounts are the worst-case
// delivery, so the calls stay valid even at the slippage floor.
func (c *Compiler) deliveryCalls(sim *models.SimulatedRoute, recipient, owner common.Address) ([]models.ExecutorCall, error) {
	network := sim.TokenIn.Network
	wrapped, ok := c.cfg.WrappedNativeToken(network)
	if !ok {
		return nil, models.NewError(models.CodeTransactionPrepare, "no wrapped native configured on %s", network)
	}

	var calls []models.ExecutorCall
	for i, out := range sim.TokensOut {
		amount := guaranteedOut(sim, i)
		if out.IsNative() {
			calls = append(calls, models.ExecutorCall{
				CallData: encodeWithdraw(amount),
				Network:  network,
				To:       wrapped.Address,
				Value:    new(big.Int),
			})
			if recipient != owner {
				calls = append(calls, models.ExecutorCall{
					Network: network,
					To:      recipient,
					Value:   amount,
				})
			}
			continue
		}
		if recipient != owner {
			calls = append(calls, models.ExecutorCall{
				CallData: encodeTransfer(recipient, amount),
				Network:  network,
				To:       out.Address,
				Value:    new(big.Int),
			})
		}
	}
	return calls, nil
}

// guaranteedOut is the worst-case delivery for output i: the fixed amount on
// an exact-output route, the slippage floor otherwise.
func guaranteedOut(sim *models.SimulatedRoute, i int) *big.Int {
	if sim.ExactOutput {
		return sim.AmountsOut[i].Raw()
	}
	return sim.AmountsOut[i].ApplyBps(-slippageBps(sim)).Raw()
}

func (c *Compiler) nativeReceiveGas(sim *models.SimulatedRoute) uint64 {
	if hasNativeOutput(sim) {
		return c.gas.NativeReceive()
	}
	return 0
}

func hasNativeOutput(sim *models.SimulatedRoute) bool {
	for _, out := range sim.TokensOut {
		if out.IsNative() {
			return true
		}
	}
	return false
}

func isWrapperOnly(sim *models.SimulatedRoute) bool {
	return len(sim.Routes) == 1 && len(sim.Routes[0]) == 1 && sim.Routes[0][0].Version == models.AMMWrapper
}

// slippageBps converts the readable percent into basis points, truncating
// sub-bps precision.
func slippageBps(sim *models.SimulatedRoute) int64 {
	return sim.SlippagePercent.Shift(2).IntPart()
}
