package config

import (
	"fmt"
	"os"

	"github.com/pelletier/go-toml/v2"
	"github.com/shopspring/decimal"
)

// Load reads and validates a TOML config file, filling defaults for optional
// tuning knobs.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	var cfg Config
	if err := toml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("failed to parse TOML config: %w", err)
	}

	cfg.applyDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// canonicalMulticall is the Multicall3 deployment shared by most EVM chains.
const canonicalMulticall = "0xcA11bde05977b3631167028862bE2a173976CA11"

func (c *Config) applyDefaults() {
	for id, nc := range c.Networks {
		if nc.MulticallContract == "" {
			nc.MulticallContract = canonicalMulticall
			c.Networks[id] = nc
		}
	}
	if c.Routing.MaxRoutes == 0 {
		c.Routing.MaxRoutes = 5
	}
	if c.Routing.CacheSize == 0 {
		c.Routing.CacheSize = 512
	}
	if c.Routing.CacheTTLSeconds == 0 {
		c.Routing.CacheTTLSeconds = 30
	}
	if c.Routing.MaxPriceDivergencePercent.IsZero() {
		c.Routing.MaxPriceDivergencePercent = decimal.NewFromInt(10)
	}
	if c.Pricing.RefreshIntervalSeconds == 0 {
		c.Pricing.RefreshIntervalSeconds = 10
	}
	if c.Pricing.ForceDebounceMillis == 0 {
		c.Pricing.ForceDebounceMillis = 200
	}
	if c.Pricing.BatchSize == 0 {
		c.Pricing.BatchSize = 25
	}
	if c.Bridge.TimeoutSeconds == 0 {
		c.Bridge.TimeoutSeconds = 10
	}
	if c.Server.Address == "" {
		c.Server.Address = "localhost:8080"
	}
	if c.Server.RatePerMinute == 0 {
		c.Server.RatePerMinute = 100
	}
	if c.Gas.PerHop == nil {
		c.Gas.PerHop = map[string]uint64{
			"v2":      120_000,
			"v3":      160_000,
			"stable":  180_000,
			"wrapper": 50_000,
		}
	}
	if c.Gas.NativeReceive == 0 {
		c.Gas.NativeReceive = 40_000
	}
	if c.Gas.BridgeSwapMessage == 0 {
		c.Gas.BridgeSwapMessage = 700_000
	}
	if c.Gas.BridgeHollowMessage == 0 {
		c.Gas.BridgeHollowMessage = 400_000
	}
}
