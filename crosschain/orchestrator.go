// Package crosschain composes single-network swaps and bridge transfers
// into one executable plan: swap into the source anchor, bridge it, swap out
// of the destination anchor.
package crosschain

import (
	"context"
	"math/big"
	"os"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"

	"github.com/prism-fi/prism-router/bridge"
	"github.com/prism-fi/prism-router/config"
	"github.com/prism-fi/prism-router/models"
	"github.com/prism-fi/prism-router/quota"
	"github.com/prism-fi/prism-router/task"
)

var log zerolog.Logger

func init() {
	out := zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.RFC3339}
	log = zerolog.New(out).With().Timestamp().Str("component", "crosschain").Logger()
}

// bridgeCompensationBps absorbs small bridge-side fee drift on hollow plans,
// where no destination swap re-verifies the bridged amount. Exact-output
// plans pad the bridge send by this margin; exact-input plans have a fixed
// input, so the promised output is shaved by the same margin instead.
const bridgeCompensationBps = 3

// Simulator quotes a single-network request.
type Simulator interface {
	Simulate(ctx context.Context, req *models.SwapRequest, tok task.Token) (*models.SimulatedRoute, error)
}

// BridgeQuoter produces an executable bridge transfer quote.
type BridgeQuoter interface {
	Quote(ctx context.Context, req bridge.Request) (bridge.Quote, error)
}

// Compiler turns a simulated route into executor calls.
type Compiler interface {
	Compile(ctx context.Context, sim *models.SimulatedRoute, p quota.Params, tok task.Token) (*models.Quota, error)
}

// Orchestrator plans cross-network swaps. Every stage carries the same task
// token; a superseded request aborts between stages instead of burning
// further RPC calls.
type Orchestrator struct {
	cfg       *config.Config
	simulator Simulator
	bridges   BridgeQuoter
	compiler  Compiler
	gas       *quota.Estimator
}

func NewOrchestrator(cfg *config.Config, simulator Simulator, bridges BridgeQuoter, compiler Compiler, gas *quota.Estimator) *Orchestrator {
	return &Orchestrator{cfg: cfg, simulator: simulator, bridges: bridges, compiler: compiler, gas: gas}
}

// Quote builds the full cross-network plan for a normalized request.
func (o *Orchestrator) Quote(ctx context.Context, req *models.SwapRequest, p quota.Params, tok task.Token) (*models.Quota, error) {
	dstNetwork, err := destinationNetwork(req)
	if err != nil {
		return nil, err
	}
	srcNetwork := req.TokenIn.Network
	if dstNetwork == srcNetwork {
		return nil, models.NewError(models.CodeSameNetwork, "both sides are on %s; use a direct swap quote", srcNetwork)
	}
	if req.DestinationAddress != nil {
		p.Recipient = *req.DestinationAddress
	}

	srcAnchor, err := o.cfg.AnchorToken(srcNetwork)
	if err != nil {
		return nil, err
	}
	dstAnchor, err := o.cfg.AnchorToken(dstNetwork)
	if err != nil {
		return nil, err
	}

	if req.ExactOutput {
		return o.quoteExactOutput(ctx, req, p, tok, srcAnchor, dstAnchor)
	}
	return o.quoteExactInput(ctx, req, p, tok, srcAnchor, dstAnchor)
}

// quoteExactInput runs the plan forward: source swap, bridge, destination
// swap, each leg skipped when its sides already match.
func (o *Orchestrator) quoteExactInput(
	ctx context.Context,
	req *models.SwapRequest,
	p quota.Params,
	tok task.Token,
	srcAnchor, dstAnchor models.Token,
) (*models.Quota, error) {
	plan := newPlan(req)

	// Source leg: bring the input into the source anchor.
	anchorIn := *req.AmountIn
	if !req.TokenIn.Equal(srcAnchor) {
		srcSim, err := o.simulator.Simulate(ctx, &models.SwapRequest{
			TokenIn:                 req.TokenIn,
			TokensOut:               []models.Token{srcAnchor},
			AmountIn:                req.AmountIn,
			SlippageReadablePercent: req.SlippageReadablePercent,
			BannedExchangeIDs:       req.BannedExchangeIDs,
		}, tok)
		if err != nil {
			return nil, err
		}
		srcQuota, err := o.compiler.Compile(ctx, srcSim, quota.Params{Owner: p.Owner}, tok)
		if err != nil {
			return nil, err
		}
		plan.addLeg(srcQuota, srcSim.PriceImpact[0])
		anchorIn = srcSim.AmountsOut[0]
	}
	if !tok.Live() {
		return nil, models.NewError(models.CodeAborted, "request superseded before bridging")
	}

	// Bridge leg.
	bridgeQuote, err := o.bridgeLeg(ctx, plan, srcAnchor, dstAnchor, anchorIn, p)
	if err != nil {
		return nil, err
	}
	if !tok.Live() {
		return nil, models.NewError(models.CodeAborted, "request superseded during bridge quoting")
	}
	bridged := bridgeQuote.AmountOut

	// Destination leg.
	needsDstLeg := req.MultiOutput() || !req.TokensOut[0].Equal(dstAnchor)
	if !needsDstLeg {
		// Nothing re-verifies the bridged amount on the destination, so
		// promise slightly less than the bridge estimated.
		plan.amountsOut = []models.Amount{bridged.ApplyBps(-bridgeCompensationBps)}
		plan.perOutputImpact = []decimal.Decimal{plan.baseImpact}
		return plan.build(req, o.gas, true)
	}

	dstIn := bridged
	if req.ArrivalGasAmount != nil && req.ArrivalGasAmount.IsPositive() {
		rest, err := o.arrivalGasLeg(ctx, req, p, tok, dstAnchor, bridged, plan)
		if err != nil {
			return nil, err
		}
		dstIn = rest
	}

	dstSim, err := o.simulator.Simulate(ctx, &models.SwapRequest{
		TokenIn:                      dstAnchor,
		TokensOut:                    req.TokensOut,
		AmountIn:                     &dstIn,
		AmountOutReadablePercentages: req.AmountOutReadablePercentages,
		SlippageReadablePercent:      req.SlippageReadablePercent,
		BannedExchangeIDs:            req.BannedExchangeIDs,
	}, tok)
	if err != nil {
		return nil, err
	}
	dstQuota, err := o.compiler.Compile(ctx, dstSim, quota.Params{Owner: p.Owner, Recipient: p.Recipient}, tok)
	if err != nil {
		return nil, err
	}
	plan.addLeg(dstQuota, decimal.Zero)

	plan.amountsOut = dstSim.AmountsOut
	plan.perOutputImpact = make([]decimal.Decimal, len(dstSim.PriceImpact))
	for i, impact := range dstSim.PriceImpact {
		plan.perOutputImpact[i] = plan.baseImpact.Add(impact)
	}
	return plan.build(req, o.gas, false)
}

// quoteExactOutput runs the plan backwards from the fixed destination
// amount. Normalize guarantees a single output token here.
func (o *Orchestrator) quoteExactOutput(
	ctx context.Context,
	req *models.SwapRequest,
	p quota.Params,
	tok task.Token,
	srcAnchor, dstAnchor models.Token,
) (*models.Quota, error) {
	tokenOut := req.TokensOut[0]
	wantOut := req.AmountsOut[0]

	// How much destination anchor must arrive.
	var dstSim *models.SimulatedRoute
	neededDstAnchor := wantOut
	if !tokenOut.Equal(dstAnchor) {
		var err error
		dstSim, err = o.simulator.Simulate(ctx, &models.SwapRequest{
			TokenIn:                 dstAnchor,
			TokensOut:               []models.Token{tokenOut},
			AmountsOut:              []models.Amount{wantOut},
			ExactOutput:             true,
			SlippageReadablePercent: req.SlippageReadablePercent,
			BannedExchangeIDs:       req.BannedExchangeIDs,
		}, tok)
		if err != nil {
			return nil, err
		}
		neededDstAnchor = dstSim.AmountIn
	}

	// Pad for bridge-side drift, then find the source anchor amount.
	neededSrcAnchor := neededDstAnchor.ApplyBps(bridgeCompensationBps).Rescale(srcAnchor.Decimals)

	plan := newPlan(req)
	totalIn := neededSrcAnchor
	if !req.TokenIn.Equal(srcAnchor) {
		srcSim, err := o.simulator.Simulate(ctx, &models.SwapRequest{
			TokenIn:                 req.TokenIn,
			TokensOut:               []models.Token{srcAnchor},
			AmountsOut:              []models.Amount{neededSrcAnchor},
			ExactOutput:             true,
			SlippageReadablePercent: req.SlippageReadablePercent,
			BannedExchangeIDs:       req.BannedExchangeIDs,
		}, tok)
		if err != nil {
			return nil, err
		}
		srcQuota, err := o.compiler.Compile(ctx, srcSim, quota.Params{Owner: p.Owner}, tok)
		if err != nil {
			return nil, err
		}
		plan.addLeg(srcQuota, srcSim.PriceImpact[0])
		totalIn = srcSim.AmountIn
	}
	if !tok.Live() {
		return nil, models.NewError(models.CodeAborted, "request superseded before bridging")
	}

	if _, err := o.bridgeLeg(ctx, plan, srcAnchor, dstAnchor, neededSrcAnchor, p); err != nil {
		return nil, err
	}
	if !tok.Live() {
		return nil, models.NewError(models.CodeAborted, "request superseded during bridge quoting")
	}

	hollow := dstSim == nil
	if dstSim != nil {
		dstQuota, err := o.compiler.Compile(ctx, dstSim, quota.Params{Owner: p.Owner, Recipient: p.Recipient}, tok)
		if err != nil {
			return nil, err
		}
		plan.addLeg(dstQuota, decimal.Zero)
		plan.perOutputImpact = []decimal.Decimal{plan.baseImpact.Add(dstSim.PriceImpact[0])}
	} else {
		plan.perOutputImpact = []decimal.Decimal{plan.baseImpact}
	}

	plan.amountIn = totalIn
	plan.amountsOut = []models.Amount{wantOut}
	return plan.build(req, o.gas, hollow)
}

// bridgeLeg quotes the bridge and appends its approval and send calls.
func (o *Orchestrator) bridgeLeg(
	ctx context.Context,
	plan *planState,
	srcAnchor, dstAnchor models.Token,
	amount models.Amount,
	p quota.Params,
) (bridge.Quote, error) {
	recipient := p.Recipient
	if recipient == (common.Address{}) {
		recipient = p.Owner
	}
	bq, err := o.bridges.Quote(ctx, bridge.Request{
		TokenIn:   srcAnchor,
		TokenOut:  dstAnchor,
		AmountIn:  amount,
		Recipient: recipient,
	})
	if err != nil {
		return bridge.Quote{}, err
	}

	if !srcAnchor.IsNative() {
		plan.calls = append(plan.calls, quota.ApprovalCall(srcAnchor, bq.To, amount.Raw()))
	}
	value := bq.Value
	if value == nil {
		value = new(big.Int)
	}
	plan.calls = append(plan.calls, models.ExecutorCall{
		CallData: bq.CallData,
		Network:  srcAnchor.Network,
		To:       bq.To,
		Value:    value,
	})
	plan.baseImpact = plan.baseImpact.Add(bq.PriceImpact)

	log.Debug().
		Str("provider", bq.Provider).
		Str("amountIn", amount.Raw().String()).
		Str("amountOut", bq.AmountOut.Raw().String()).
		Msg("Bridge leg quoted")
	return bq, nil
}

// arrivalGasLeg carves native gas money for the recipient out of the bridged
// anchor before the main destination swap.
func (o *Orchestrator) arrivalGasLeg(
	ctx context.Context,
	req *models.SwapRequest,
	p quota.Params,
	tok task.Token,
	dstAnchor models.Token,
	bridged models.Amount,
	plan *planState,
) (models.Amount, error) {
	native := models.Token{Network: dstAnchor.Network, Decimals: 18}
	gasSim, err := o.simulator.Simulate(ctx, &models.SwapRequest{
		TokenIn:                 dstAnchor,
		TokensOut:               []models.Token{native},
		AmountsOut:              []models.Amount{*req.ArrivalGasAmount},
		ExactOutput:             true,
		SlippageReadablePercent: req.SlippageReadablePercent,
		BannedExchangeIDs:       req.BannedExchangeIDs,
	}, tok)
	if err != nil {
		return models.Amount{}, err
	}

	rest := new(big.Int).Sub(bridged.Raw(), gasSim.AmountIn.Raw())
	if rest.Sign() <= 0 {
		return models.Amount{}, models.NewError(models.CodeInvalidRequest, "arrival gas consumes the whole bridged amount")
	}
	gasQuota, err := o.compiler.Compile(ctx, gasSim, quota.Params{Owner: p.Owner, Recipient: p.Recipient}, tok)
	if err != nil {
		return models.Amount{}, err
	}
	plan.addLeg(gasQuota, decimal.Zero)
	return models.NewAmount(rest, bridged.Decimals()), nil
}

// planState accumulates calls and cost attribution across legs.
type planState struct {
	calls           []models.ExecutorCall
	gasFromLegs     uint64
	baseImpact      decimal.Decimal
	amountIn        models.Amount
	amountsOut      []models.Amount
	perOutputImpact []decimal.Decimal
}

func newPlan(req *models.SwapRequest) *planState {
	p := &planState{baseImpact: decimal.Zero}
	if req.AmountIn != nil {
		p.amountIn = *req.AmountIn
	}
	return p
}

func (p *planState) addLeg(q *models.Quota, impact decimal.Decimal) {
	p.calls = append(p.calls, q.ExecutorCallData...)
	p.gasFromLegs += q.GasEstimate
	p.baseImpact = p.baseImpact.Add(impact)
}

func (p *planState) build(req *models.SwapRequest, gas *quota.Estimator, hollow bool) (*models.Quota, error) {
	return &models.Quota{
		ExecutorCallData: p.calls,
		AmountIn:         p.amountIn,
		AmountsOut:       p.amountsOut,
		TokenIn:          req.TokenIn,
		TokensOut:        req.TokensOut,
		SlippageReadable: req.SlippageReadablePercent,
		PriceImpact:      p.perOutputImpact,
		GasEstimate:      p.gasFromLegs + gas.BridgeMessage(hollow),
	}, nil
}

// destinationNetwork returns the single network every output token lives on.
func destinationNetwork(req *models.SwapRequest) (string, error) {
	network := req.TokensOut[0].Network
	for _, out := range req.TokensOut[1:] {
		if out.Network != network {
			return "", models.NewError(models.CodeInvalidRequest, "output tokens span networks %s and %s", network, out.Network)
		}
	}
	return network, nil
}
