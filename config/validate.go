package config

import (
	"fmt"
	"strings"
)

// Validate checks the config for the mistakes that would otherwise only
// surface as confusing runtime failures deep inside the engine.
func (c *Config) Validate() error {
	if len(c.Networks) == 0 {
		return fmt.Errorf("config has no networks")
	}

	for id, nc := range c.Networks {
		if id != strings.ToLower(id) {
			return fmt.Errorf("network id %q must be lowercase", id)
		}
		if nc.ChainID == 0 {
			return fmt.Errorf("network %s: chain_id is required", id)
		}
		if nc.RPCURL == "" {
			return fmt.Errorf("network %s: rpc_url is required", id)
		}
		if nc.WrappedNative.Address == "" {
			return fmt.Errorf("network %s: wrapped_native is required", id)
		}
		if nc.Anchor.Address == "" {
			return fmt.Errorf("network %s: anchor is required", id)
		}
		if nc.OracleContract == "" {
			return fmt.Errorf("network %s: oracle_contract is required", id)
		}
		if nc.QuoterContract == "" {
			return fmt.Errorf("network %s: quoter_contract is required", id)
		}
		if nc.RouterContract == "" {
			return fmt.Errorf("network %s: router_contract is required", id)
		}
		for _, tc := range nc.Tracked {
			if tc.Address == "" {
				return fmt.Errorf("network %s: tracked token %q has no address", id, tc.Symbol)
			}
		}
	}

	if c.Routing.GraphURL == "" {
		return fmt.Errorf("routing.graph_url is required")
	}
	if c.Routing.MaxPriceDivergencePercent.IsNegative() {
		return fmt.Errorf("routing.max_price_divergence_percent must not be negative")
	}
	return nil
}
