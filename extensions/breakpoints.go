package extensions

import (
	"context"
	"encoding/json"
)

// Breakpoint names the engine states an extension may transform. Each is
// also an event, so ownership follows the same single-claimant rule.
type Breakpoint string

const (
	// BreakSimulatedRoutes fires with the verified route list before the
	// best candidate is compiled.
	BreakSimulatedRoutes Breakpoint = "onSimulatedRoutes"
	// BreakQuotaReady fires with the assembled quota before it is returned.
	BreakQuotaReady Breakpoint = "onQuotaReady"
	// BreakNativeValue fires with a computed native-coin valuation.
	BreakNativeValue Breakpoint = "onNativeValue"
)

// Transformer is the optional extension surface for breakpoints. The value
// handed in is a deep copy; the returned value replaces the original only
// when the transform succeeds.
type Transformer interface {
	Transform(ctx context.Context, bp Breakpoint, value any) (any, error)
}

// Apply runs the breakpoint's owning transformer over a deep copy of value.
// Any failure, at the copy, the transform, or the type round trip, leaves
// the original value untouched.
func Apply[T any](ctx context.Context, reg *Registry, bp Breakpoint, value T) T {
	ext, ok := reg.owner(string(bp))
	if !ok {
		return value
	}
	transformer, ok := ext.(Transformer)
	if !ok {
		return value
	}

	copied, err := deepCopy(value)
	if err != nil {
		log.Warn().Err(err).Str("breakpoint", string(bp)).Msg("Breakpoint value not copyable")
		return value
	}
	transformed, err := transformer.Transform(ctx, bp, copied)
	if err != nil {
		log.Warn().Err(err).Str("extension", ext.Name()).Str("breakpoint", string(bp)).Msg("Breakpoint transform failed")
		return value
	}
	result, ok := transformed.(T)
	if !ok {
		log.Warn().Str("extension", ext.Name()).Str("breakpoint", string(bp)).Msg("Breakpoint transform changed the value type")
		return value
	}
	return result
}

// deepCopy round-trips the value through JSON so transformers can never
// alias engine-owned state.
func deepCopy[T any](v T) (T, error) {
	var out T
	data, err := json.Marshal(v)
	if err != nil {
		return out, err
	}
	if err := json.Unmarshal(data, &out); err != nil {
		return out, err
	}
	return out, nil
}
