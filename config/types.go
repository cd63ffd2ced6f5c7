package config

import (
	"github.com/prism-fi/prism-router/models"
	"github.com/shopspring/decimal"
)

// TokenConfig describes one tracked token of a network.
type TokenConfig struct {
	Symbol            string `toml:"symbol"`
	Address           string `toml:"address"`
	Decimals          uint8  `toml:"decimals"`
	RequiresZeroReset bool   `toml:"requires_zero_reset"`
}

// NetworkConfig describes one supported network: its anchor and
// wrapped-native assets, the deployed contracts the engine reads from and
// compiles calls against, and the token list the price store tracks.
type NetworkConfig struct {
	Name              string        `toml:"name"`
	ChainID           uint64        `toml:"chain_id"`
	RPCURL            string        `toml:"rpc_url"`
	MulticallContract string        `toml:"multicall_contract"`
	WrappedNative     TokenConfig   `toml:"wrapped_native"`
	Anchor            TokenConfig   `toml:"anchor"`
	Tracked           []TokenConfig `toml:"tracked"`
	OracleContract    string        `toml:"oracle_contract"`
	QuoterContract    string        `toml:"quoter_contract"`
	RouterContract    string        `toml:"router_contract"`
	BridgeContract    string        `toml:"bridge_contract"`
}

// RoutingConfig controls route discovery and simulation.
type RoutingConfig struct {
	GraphURL        string   `toml:"graph_url"`
	GraphBackupURLs []string `toml:"graph_backup_urls"`
	MaxRoutes       int      `toml:"max_routes"`
	CacheSize       int      `toml:"cache_size"`
	CacheTTLSeconds int      `toml:"cache_ttl_seconds"`

	// MaxPriceDivergencePercent discards simulated routes whose anchor-valued
	// output strays further than this from the input value. Calibration
	// value; must come from config, never a constant in code.
	MaxPriceDivergencePercent decimal.Decimal `toml:"max_price_divergence_percent"`
}

// PricingConfig controls the price refresh cycle.
type PricingConfig struct {
	RefreshIntervalSeconds int `toml:"refresh_interval_seconds"`
	ForceDebounceMillis    int `toml:"force_debounce_millis"`
	BatchSize              int `toml:"batch_size"`
}

// BridgeConfig holds the provider endpoints for bridge aggregation.
type BridgeConfig struct {
	LiFiURL        string `toml:"lifi_url"`
	DeBridgeURL    string `toml:"debridge_url"`
	TimeoutSeconds int    `toml:"timeout_seconds"`
}

// GasConfig holds the fixed gas cost tables. All values are calibration
// constants tied to deployed contracts and stay externally configurable.
type GasConfig struct {
	PerHop              map[string]uint64 `toml:"per_hop"` // keyed "v2", "v3", "stable", "wrapper"
	NativeReceive       uint64            `toml:"native_receive"`
	BridgeSwapMessage   uint64            `toml:"bridge_swap_message"`
	BridgeHollowMessage uint64            `toml:"bridge_hollow_message"`
}

// ServerConfig configures the HTTP API.
type ServerConfig struct {
	Address        string   `toml:"address"`
	AllowedOrigins []string `toml:"allowed_origins"`
	RatePerMinute  int      `toml:"rate_per_minute"`
}

// Config is the root configuration document.
type Config struct {
	Networks map[string]NetworkConfig `toml:"networks"`
	Routing  RoutingConfig            `toml:"routing"`
	Pricing  PricingConfig            `toml:"pricing"`
	Bridge   BridgeConfig             `toml:"bridge"`
	Gas      GasConfig                `toml:"gas"`
	Server   ServerConfig             `toml:"server"`
}

// Token converts a TokenConfig into the model type for the given network.
func (tc TokenConfig) Token(network string) models.Token {
	return models.NewToken(tc.Address, tc.Decimals, network)
}

// AnchorToken returns the stable anchor asset of a network.
func (c *Config) AnchorToken(network string) (models.Token, error) {
	nc, ok := c.Networks[network]
	if !ok || nc.Anchor.Address == "" {
		return models.Token{}, models.NewError(models.CodeNoBaseTokenFound, "no anchor asset configured for network %s", network)
	}
	return nc.Anchor.Token(network), nil
}

// WrappedNativeToken returns the wrapped-native asset of a network.
func (c *Config) WrappedNativeToken(network string) (models.Token, bool) {
	nc, ok := c.Networks[network]
	if !ok || nc.WrappedNative.Address == "" {
		return models.Token{}, false
	}
	return nc.WrappedNative.Token(network), true
}

// RequiresZeroReset reports whether the token needs an allowance reset to
// zero before a new approval (USDT-style semantics).
func (c *Config) RequiresZeroReset(tok models.Token) bool {
	nc, ok := c.Networks[tok.Network]
	if !ok {
		return false
	}
	for _, tc := range nc.Tracked {
		if tc.Token(tok.Network).Equal(tok) {
			return tc.RequiresZeroReset
		}
	}
	return false
}
