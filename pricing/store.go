// Package pricing maintains the per-network reference price table: every
// tracked token valued in the network's stable anchor asset. The table is the
// engine's only long-lived mutable shared state; it is read freely by every
// component and written exclusively by the refresh cycle, guarded by the
// task-versioning rule so a slower, older refresh can never overwrite fresher
// values.
package pricing

import (
	"context"
	"math/big"
	"os"
	"sync"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/rs/zerolog"

	"github.com/prism-fi/prism-router/config"
	"github.com/prism-fi/prism-router/models"
	"github.com/prism-fi/prism-router/task"
)

var log zerolog.Logger

func init() {
	out := zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.RFC3339}
	log = zerolog.New(out).With().Timestamp().Str("component", "pricing").Logger()
}

var (
	refreshCycles = promauto.NewCounter(prometheus.CounterOpts{
		Name: "prism_price_refresh_cycles_total",
		Help: "Completed price refresh cycles, including partially failed ones.",
	})
	refreshFailures = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "prism_price_refresh_failures_total",
		Help: "Per-network price fetch failures, swallowed as stale data.",
	}, []string{"network"})
)

// Store holds the price table. Prices are raw integers: anchor smallest
// units per one whole token.
type Store struct {
	cfg   *config.Config
	rates RateSource
	tasks task.Registry

	mu     sync.RWMutex
	prices map[string]map[common.Address]*big.Int

	refreshMu   sync.Mutex
	inFlight    bool
	lastRefresh time.Time
	debounce    *time.Timer

	initOnce sync.Once
	initDone chan struct{}

	// OnUpdated, when set, is called after each committed refresh. Wired to
	// the extension event surface by the engine.
	OnUpdated func()
}

// NewStore builds a price store over the given rate source.
func NewStore(cfg *config.Config, rates RateSource) *Store {
	return &Store{
		cfg:      cfg,
		rates:    rates,
		prices:   make(map[string]map[common.Address]*big.Int),
		initDone: make(chan struct{}),
	}
}

// GetPrice returns the anchor price of a token, or zero when unknown. The
// native pseudo-address resolves to the wrapped-native entry.
func (s *Store) GetPrice(network string, token common.Address) *big.Int {
	if token == models.NativeAddress {
		if wn, ok := s.cfg.WrappedNativeToken(network); ok {
			token = wn.Address
		}
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	if byToken, ok := s.prices[network]; ok {
		if p, ok := byToken[token]; ok {
			return new(big.Int).Set(p)
		}
	}
	return new(big.Int)
}

// Snapshot returns a copy of the current price table of one network.
func (s *Store) Snapshot(network string) map[common.Address]*big.Int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	byToken, ok := s.prices[network]
	if !ok {
		return nil
	}
	out := make(map[common.Address]*big.Int, len(byToken))
	for addr, p := range byToken {
		out[addr] = new(big.Int).Set(p)
	}
	return out
}

// Value returns the anchor-unit valuation of a raw token amount:
// amount * price / 10^decimals.
func (s *Store) Value(tok models.Token, amount *big.Int) *big.Int {
	price := s.GetPrice(tok.Network, tok.Address)
	if price.Sign() == 0 || amount == nil || amount.Sign() == 0 {
		return new(big.Int)
	}
	v := new(big.Int).Mul(amount, price)
	return v.Quo(v, exp10(int64(tok.Decimals)))
}

// WaitInitialFetch blocks until the first successful refresh commits or the
// timeout elapses. It always resolves.
func (s *Store) WaitInitialFetch(timeout time.Duration) error {
	select {
	case <-s.initDone:
		return nil
	case <-time.After(timeout):
		return models.NewError(models.CodeInternalError, "initial price fetch did not complete within %s", timeout)
	}
}

// Ready reports whether the first refresh has committed.
func (s *Store) Ready() bool {
	select {
	case <-s.initDone:
		return true
	default:
		return false
	}
}

// Refresh triggers a refresh cycle. Unforced calls are skipped while one is
// in flight or before the minimum interval elapses. Forced calls void any
// in-flight cycle via task versioning and are debounced so rapid repeats
// collapse into a single execution.
func (s *Store) Refresh(ctx context.Context, force bool) {
	if !force {
		s.refreshMu.Lock()
		interval := time.Duration(s.cfg.Pricing.RefreshIntervalSeconds) * time.Second
		if s.inFlight || time.Since(s.lastRefresh) < interval {
			s.refreshMu.Unlock()
			return
		}
		s.inFlight = true
		s.refreshMu.Unlock()

		go s.run(ctx, s.tasks.Begin())
		return
	}

	s.refreshMu.Lock()
	defer s.refreshMu.Unlock()
	if s.debounce != nil {
		s.debounce.Stop()
	}
	debounce := time.Duration(s.cfg.Pricing.ForceDebounceMillis) * time.Millisecond
	s.debounce = time.AfterFunc(debounce, func() {
		s.refreshMu.Lock()
		s.inFlight = true
		s.refreshMu.Unlock()
		// A forced refresh supersedes whatever is in flight; the older
		// cycle's commit will fail its liveness check.
		s.run(ctx, s.tasks.Begin())
	})
}

// Run refreshes periodically until the context is cancelled.
func (s *Store) Run(ctx context.Context) {
	interval := time.Duration(s.cfg.Pricing.RefreshIntervalSeconds) * time.Second
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	s.Refresh(ctx, false)
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.Refresh(ctx, false)
		}
	}
}

// run executes one refresh cycle under the given task token.
func (s *Store) run(ctx context.Context, tok task.Token) {
	defer func() {
		s.refreshMu.Lock()
		// A superseded cycle no longer owns the flag; the newer cycle that
		// voided it clears the flag when it finishes.
		if tok.Live() {
			s.inFlight = false
		}
		s.refreshMu.Unlock()
	}()

	type networkPrices struct {
		network string
		prices  map[common.Address]*big.Int
	}

	results := make(chan networkPrices, len(s.cfg.Networks))
	var wg sync.WaitGroup

	for id, nc := range s.cfg.Networks {
		wg.Add(1)
		go func(id string, nc config.NetworkConfig) {
			defer wg.Done()
			prices, err := s.fetchNetwork(ctx, id, nc)
			if err != nil {
				// Stale prices are preferable to a failed cycle.
				refreshFailures.WithLabelValues(id).Inc()
				log.Warn().Err(err).Str("network", id).Msg("Price fetch failed, keeping stale prices")
				return
			}
			results <- networkPrices{network: id, prices: prices}
		}(id, nc)
	}
	wg.Wait()
	close(results)

	if !tok.Live() {
		log.Debug().Msg("Refresh superseded, discarding results")
		return
	}

	committed := 0
	s.mu.Lock()
	for res := range results {
		s.prices[res.network] = res.prices
		committed++
	}
	s.mu.Unlock()

	s.refreshMu.Lock()
	s.lastRefresh = time.Now()
	s.refreshMu.Unlock()

	refreshCycles.Inc()
	log.Info().Int("networks", committed).Msg("Price table refreshed")

	if committed > 0 {
		s.initOnce.Do(func() { close(s.initDone) })
		if s.OnUpdated != nil {
			s.OnUpdated()
		}
	}
}

// fetchNetwork queries every tracked token's rate against wrapped-native and
// converts the rates into anchor prices.
func (s *Store) fetchNetwork(ctx context.Context, network string, nc config.NetworkConfig) (map[common.Address]*big.Int, error) {
	oracle := common.HexToAddress(nc.OracleContract)
	wrapped := common.HexToAddress(nc.WrappedNative.Address)
	anchor := common.HexToAddress(nc.Anchor.Address)

	tokens := make([]common.Address, 0, len(nc.Tracked)+2)
	tokens = append(tokens, anchor, wrapped)
	for _, tc := range nc.Tracked {
		addr := common.HexToAddress(tc.Address)
		if addr == anchor || addr == wrapped {
			continue
		}
		tokens = append(tokens, addr)
	}

	rates, err := s.rates.Rates(ctx, network, oracle, wrapped, tokens)
	if err != nil {
		return nil, err
	}
	anchorRate, ok := rates[anchor]
	if !ok || anchorRate.Sign() == 0 {
		return nil, models.NewError(models.CodeNoBaseTokenFound, "no oracle rate for anchor on %s", network)
	}

	anchorScale := exp10(int64(nc.Anchor.Decimals))
	prices := make(map[common.Address]*big.Int, len(rates)+1)

	// price = rate / anchorRate, expressed in anchor smallest units.
	for addr, rate := range rates {
		p := new(big.Int).Mul(rate, anchorScale)
		p.Quo(p, anchorRate)
		prices[addr] = p
	}

	// The native and wrapped-native pair is priced by inverting the anchor
	// rate directly, and the two entries are kept identical.
	nativePrice := new(big.Int).Mul(rateScale, anchorScale)
	nativePrice.Quo(nativePrice, anchorRate)
	prices[wrapped] = nativePrice
	prices[models.NativeAddress] = new(big.Int).Set(nativePrice)

	return prices, nil
}

// rateScale is the fixed-point base of oracle rates.
var rateScale = new(big.Int).Exp(big.NewInt(10), big.NewInt(18), nil)

func exp10(n int64) *big.Int {
	return new(big.Int).Exp(big.NewInt(10), big.NewInt(n), nil)
}
