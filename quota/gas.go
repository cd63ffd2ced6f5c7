// Package quota compiles simulated routes into ordered, ready-to-submit
// call lists with slippage bounds and gas estimates.
package quota

import (
	"os"
	"time"

	"github.com/rs/zerolog"

	"github.com/prism-fi/prism-router/config"
	"github.com/prism-fi/prism-router/models"
)

var log zerolog.Logger

func init() {
	out := zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.RFC3339}
	log = zerolog.New(out).With().Timestamp().Str("component", "quota").Logger()
}

// Estimator sums fixed per-hop gas costs from the configured tables. The
// numbers are calibrated against the deployed router and bridge contracts,
// so they live in config rather than code.
type Estimator struct {
	cfg *config.Config
}

func NewEstimator(cfg *config.Config) *Estimator {
	return &Estimator{cfg: cfg}
}

func versionKey(v models.AMMVersion) string {
	switch v {
	case models.AMMv2:
		return "v2"
	case models.AMMv3:
		return "v3"
	case models.AMMStable:
		return "stable"
	default:
		return "wrapper"
	}
}

// RouteGas sums the per-hop costs of every route in the set.
func (e *Estimator) RouteGas(routes models.RouteSet) uint64 {
	var total uint64
	for _, route := range routes {
		for _, step := range route {
			total += e.cfg.Gas.PerHop[versionKey(step.Version)]
		}
	}
	return total
}

// NativeReceive is the extra cost of delivering native coin to the recipient.
func (e *Estimator) NativeReceive() uint64 {
	return e.cfg.Gas.NativeReceive
}

// BridgeMessage is the destination-side execution cost of a bridge transfer.
// A hollow message only delivers funds; a swap message also runs the
// destination route.
func (e *Estimator) BridgeMessage(hollow bool) uint64 {
	if hollow {
		return e.cfg.Gas.BridgeHollowMessage
	}
	return e.cfg.Gas.BridgeSwapMessage
}
