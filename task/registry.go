// Package task implements the generation-counter discipline that lets a new
// top-level request silently void all in-flight work of an older one. There
// is no explicit cancel signal: stages capture a Token when they start and
// re-check it after every suspension point; a stale token means the eventual
// result must be discarded, never committed or returned as authoritative.
package task

import "sync/atomic"

// Registry mints tokens for one logical stream of requests. The zero value is
// ready to use.
type Registry struct {
	current atomic.Uint64
}

// Token is an opaque generation marker. Tokens from different registries are
// not comparable.
type Token struct {
	reg *Registry
	gen uint64
}

// Begin starts a new generation, invalidating every token minted before it,
// and returns the token for the new work.
func (r *Registry) Begin() Token {
	return Token{reg: r, gen: r.current.Add(1)}
}

// Current returns the live token without starting a new generation.
func (r *Registry) Current() Token {
	return Token{reg: r, gen: r.current.Load()}
}

// Live reports whether the token still belongs to the newest generation.
// A stage must call this after each suspension point and before writing any
// shared state or returning a trusted result.
func (t Token) Live() bool {
	return t.reg != nil && t.reg.current.Load() == t.gen
}
