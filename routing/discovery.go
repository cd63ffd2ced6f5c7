// Package routing discovers candidate exchange paths through the external
// route-graph service and verifies them against on-chain quoter contracts.
package routing

import (
	"context"
	"fmt"
	"os"
	"sort"
	"strings"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/rs/zerolog"

	"github.com/prism-fi/prism-router/config"
	"github.com/prism-fi/prism-router/graphquery"
	"github.com/prism-fi/prism-router/models"
)

var log zerolog.Logger

func init() {
	out := zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.RFC3339}
	log = zerolog.New(out).With().Timestamp().Str("component", "routing").Logger()
}

// GraphClient is the route-graph query surface Discovery depends on.
type GraphClient interface {
	GetRoutes(ctx context.Context, network, fromToken, toToken string, limit int, bannedExchangeIDs []int, amountHint string) (graphquery.RoutesResponse, error)
}

// DiscoveryResult is the set of candidate routes for one token pair, best
// guess first. An empty candidate list is a valid result, not an error.
type DiscoveryResult struct {
	Candidates []models.Route
}

// Discovery fetches candidate routes for token pairs, with a bounded TTL
// cache in front of the graph service. Graph failures degrade to an empty
// result so one flaky backend never fails a whole quote.
type Discovery struct {
	graph GraphClient
	cache *routeCache
	limit int
}

// NewDiscovery builds a Discovery using the routing limits from cfg.
func NewDiscovery(graph GraphClient, cfg *config.Config) *Discovery {
	return &Discovery{
		graph: graph,
		cache: newRouteCache(cfg.Routing.CacheSize, time.Duration(cfg.Routing.CacheTTLSeconds)*time.Second),
		limit: cfg.Routing.MaxRoutes,
	}
}

// Routes returns candidate routes from `from` to `to`. Results are cached per
// (pair, banned set, amount hint). A failed or empty graph response yields an
// empty candidate list.
func (d *Discovery) Routes(ctx context.Context, from, to models.Token, banned []int, amountHint string) DiscoveryResult {
	key := cacheKey(from, to, d.limit, banned, amountHint)
	if cached, ok := d.cache.get(key); ok {
		return cached
	}

	resp, err := d.graph.GetRoutes(ctx, from.Network, from.Address.Hex(), to.Address.Hex(), d.limit, banned, amountHint)
	if err != nil {
		log.Warn().Err(err).
			Str("network", from.Network).
			Str("from", from.Address.Hex()).
			Str("to", to.Address.Hex()).
			Msg("Route discovery failed, returning no candidates")
		return DiscoveryResult{}
	}

	result := DiscoveryResult{Candidates: convertCandidates(resp, from, to)}
	d.cache.put(key, result)
	return result
}

// convertCandidates flattens both response flavors into validated routes.
// Split suggestions lose their percentage hints here; the simulator reranks
// every candidate against live quotes anyway.
func convertCandidates(resp graphquery.RoutesResponse, from, to models.Token) []models.Route {
	raw := make([][]graphquery.PoolItem, 0, len(resp.Items.Swap))
	raw = append(raw, resp.Items.Swap...)
	for _, multi := range resp.Items.Multiswap {
		raw = append(raw, multi.Routes...)
	}

	candidates := make([]models.Route, 0, len(raw))
	for _, hops := range raw {
		route := make(models.Route, 0, len(hops))
		for _, hop := range hops {
			route = append(route, models.RouteStep{
				Pool:       common.HexToAddress(hop.Pool),
				ExchangeID: hop.ExchangeID,
				Fee:        hop.Fee,
				Version:    models.AMMVersion(hop.Version),
				Token0:     common.HexToAddress(hop.Token0),
				Token1:     common.HexToAddress(hop.Token1),
			})
		}
		if err := route.Validate(from.Address, to.Address); err != nil {
			log.Warn().Err(err).Str("from", from.Key()).Str("to", to.Key()).Msg("Dropping malformed route from graph")
			continue
		}
		candidates = append(candidates, route)
	}
	return candidates
}

func cacheKey(from, to models.Token, limit int, banned []int, amountHint string) string {
	ids := make([]string, 0, len(banned))
	for _, id := range banned {
		ids = append(ids, fmt.Sprintf("%d", id))
	}
	sort.Strings(ids)
	return fmt.Sprintf("%s|%s|%d|%s|%s", from.Key(), to.Key(), limit, strings.Join(ids, ","), amountHint)
}
