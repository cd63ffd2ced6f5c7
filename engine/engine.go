// Package engine assembles the quoting pipeline: price store, route
// discovery and simulation, bridge aggregation, cross-chain orchestration and
// call compilation behind one facade. The engine owns the task registries, so
// a new request on a stream voids whatever older work is still in flight.
package engine

import (
	"context"
	"math/big"
	"os"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/rs/zerolog"

	"github.com/prism-fi/prism-router/bridge"
	"github.com/prism-fi/prism-router/bridge/providers"
	"github.com/prism-fi/prism-router/config"
	"github.com/prism-fi/prism-router/crosschain"
	"github.com/prism-fi/prism-router/extensions"
	"github.com/prism-fi/prism-router/graphquery"
	"github.com/prism-fi/prism-router/models"
	"github.com/prism-fi/prism-router/multicall"
	"github.com/prism-fi/prism-router/pricing"
	"github.com/prism-fi/prism-router/quota"
	"github.com/prism-fi/prism-router/routing"
	"github.com/prism-fi/prism-router/task"
)

var log zerolog.Logger

func init() {
	out := zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.RFC3339}
	log = zerolog.New(out).With().Timestamp().Str("component", "engine").Logger()
}

// Lifecycle events extensions can claim.
const (
	EventStarted          = "onEngineStarted"
	EventPricesUpdated    = "onPricesUpdated"
	EventSwapQuoted       = "onSwapQuoted"
	EventCrossChainQuoted = "onCrossChainQuoted"
)

// Engine is the composition root. One instance serves all networks.
type Engine struct {
	cfg      *config.Config
	caller   *multicall.EthClient
	graph    *graphquery.Client
	prices   *pricing.Store
	sim      *routing.Simulator
	compiler *quota.Compiler
	orch     *crosschain.Orchestrator
	exts     *extensions.Registry

	// Separate streams: a cross-chain request must not void an in-flight
	// single-chain one, and vice versa.
	swapTasks  task.Registry
	crossTasks task.Registry
}

// New wires the engine from config. Extensions are registered by the caller
// beforehand; their OnInitialize hooks run here, and a failing hook fails
// construction.
func New(ctx context.Context, cfg *config.Config, exts *extensions.Registry) (*Engine, error) {
	if exts == nil {
		exts = extensions.NewRegistry()
	}

	caller, err := multicall.NewEthClient(cfg)
	if err != nil {
		return nil, err
	}

	graph, err := graphquery.NewClient(cfg.Routing.GraphURL, cfg.Routing.GraphBackupURLs, graphquery.DefaultFailoverConfig())
	if err != nil {
		caller.Close()
		return nil, err
	}

	prices := pricing.NewStore(cfg, pricing.NewOracleClient(caller, cfg.Pricing.BatchSize))
	simulator := routing.NewSimulator(cfg, routing.NewDiscovery(graph, cfg), prices, caller)

	bridges := bridge.NewAggregator(
		[]bridge.Provider{providers.NewLiFi(cfg), providers.NewDeBridge(cfg)},
		bridge.NewContractQuoter(cfg, caller),
		prices,
	)

	gas := quota.NewEstimator(cfg)
	compiler := quota.NewCompiler(cfg, quota.NewERC20Reader(caller), gas)
	orch := crosschain.NewOrchestrator(cfg, simulator, bridges, compiler, gas)

	e := &Engine{
		cfg:      cfg,
		caller:   caller,
		graph:    graph,
		prices:   prices,
		sim:      simulator,
		compiler: compiler,
		orch:     orch,
		exts:     exts,
	}
	prices.OnUpdated = func() { exts.Emit(context.Background(), EventPricesUpdated, nil) }

	if err := exts.Initialize(ctx); err != nil {
		e.Close()
		return nil, err
	}

	log.Info().Int("networks", len(cfg.Networks)).Msg("Engine assembled")
	return e, nil
}

// Run drives the periodic price refresh until the context is cancelled.
func (e *Engine) Run(ctx context.Context) {
	e.exts.Emit(ctx, EventStarted, nil)
	e.prices.Run(ctx)
}

// WaitReady kicks an initial price refresh and blocks until the first cycle
// commits or the timeout elapses.
func (e *Engine) WaitReady(ctx context.Context, timeout time.Duration) error {
	e.prices.Refresh(ctx, false)
	return e.prices.WaitInitialFetch(timeout)
}

// Ready reports whether at least one price refresh has committed.
func (e *Engine) Ready() bool {
	return e.prices.Ready()
}

// Close releases RPC and graph connections.
func (e *Engine) Close() {
	e.graph.Close()
	e.caller.Close()
}

// Prices returns a copy of a network's current price table, or nil when the
// network is unknown or not yet refreshed.
func (e *Engine) Prices(network string) map[common.Address]*big.Int {
	return e.prices.Snapshot(network)
}

// SwapQuote produces an executable quota for a single-network swap. Each call
// starts a new generation on the swap stream, so a superseded request fails
// with an Aborted error rather than returning stale results.
func (e *Engine) SwapQuote(ctx context.Context, req *models.SwapRequest, p quota.Params) (*models.Quota, error) {
	if err := req.Normalize(); err != nil {
		return nil, err
	}
	tok := e.swapTasks.Begin()
	// The debounced refresh may fire after this request finishes; detach it
	// from the request's lifetime.
	e.prices.Refresh(context.WithoutCancel(ctx), true)

	sim, err := e.sim.Simulate(ctx, req, tok)
	if err != nil {
		return nil, err
	}
	adjusted := extensions.Apply(ctx, e.exts, extensions.BreakSimulatedRoutes, *sim)

	q, err := e.compiler.Compile(ctx, &adjusted, p, tok)
	if err != nil {
		return nil, err
	}
	final := extensions.Apply(ctx, e.exts, extensions.BreakQuotaReady, *q)
	e.exts.Emit(ctx, EventSwapQuoted, &final)
	return &final, nil
}

// CrossChainQuote produces an executable quota for a swap whose outputs live
// on a different network than the input. Same-network requests are rejected
// with a SameNetwork error before any work happens.
func (e *Engine) CrossChainQuote(ctx context.Context, req *models.SwapRequest, p quota.Params) (*models.Quota, error) {
	if err := req.Normalize(); err != nil {
		return nil, err
	}
	tok := e.crossTasks.Begin()
	e.prices.Refresh(context.WithoutCancel(ctx), true)

	if req.ArrivalGasAmount != nil {
		gas := extensions.Apply(ctx, e.exts, extensions.BreakNativeValue, *req.ArrivalGasAmount)
		req.ArrivalGasAmount = &gas
	}

	q, err := e.orch.Quote(ctx, req, p, tok)
	if err != nil {
		return nil, err
	}
	final := extensions.Apply(ctx, e.exts, extensions.BreakQuotaReady, *q)
	e.exts.Emit(ctx, EventCrossChainQuoted, &final)
	return &final, nil
}
