// Package extensions hosts the engine's plugin surface: named extensions
// subscribe to lifecycle events and may transform values at designated
// breakpoints. Extensions observe and suggest; they can never fail a quote.
package extensions

import (
	"context"
	"os"
	"regexp"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/prism-fi/prism-router/models"
)

var log zerolog.Logger

func init() {
	out := zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.RFC3339}
	log = zerolog.New(out).With().Timestamp().Str("component", "extensions").Logger()
}

var (
	nameRe  = regexp.MustCompile(`^[a-z][a-z0-9-]*$`)
	eventRe = regexp.MustCompile(`^on[A-Z][A-Za-z0-9]*$`)
)

// Extension is a named plugin. Events lists the lifecycle events it claims;
// each event has at most one owner across the registry.
type Extension interface {
	Name() string
	Events() []string
	OnInitialize(ctx context.Context) error
	Handle(ctx context.Context, event string, payload any) error
}

// Registry validates and dispatches extensions. Registration happens before
// the engine starts; emission is concurrent afterwards.
type Registry struct {
	mu          sync.RWMutex
	order       []Extension
	byName      map[string]Extension
	byEvent     map[string]Extension
	initialized bool
}

func NewRegistry() *Registry {
	return &Registry{
		byName:  make(map[string]Extension),
		byEvent: make(map[string]Extension),
	}
}

// Register validates the extension's name and event claims and adds it.
// Registration closes once Initialize has run.
func (r *Registry) Register(ext Extension) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.initialized {
		return models.NewError(models.CodeExtensionInit, "registry already initialized, cannot register %q", ext.Name())
	}
	name := ext.Name()
	if !nameRe.MatchString(name) {
		return models.NewError(models.CodeExtensionInit, "invalid extension name %q", name)
	}
	if _, exists := r.byName[name]; exists {
		return models.NewError(models.CodeExtensionInit, "extension %q already registered", name)
	}
	for _, event := range ext.Events() {
		if !eventRe.MatchString(event) {
			return models.NewError(models.CodeExtensionInit, "extension %q claims malformed event %q", name, event)
		}
		if owner, taken := r.byEvent[event]; taken {
			return models.NewError(models.CodeExtensionInit, "event %q already claimed by %q", event, owner.Name())
		}
	}

	for _, event := range ext.Events() {
		r.byEvent[event] = ext
	}
	r.byName[name] = ext
	r.order = append(r.order, ext)
	return nil
}

// Initialize runs every extension's OnInitialize hook in registration order.
// The first failure stops the engine from starting.
func (r *Registry) Initialize(ctx context.Context) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	for _, ext := range r.order {
		if err := ext.OnInitialize(ctx); err != nil {
			return models.WrapError(models.CodeExtensionInit, err, "extension %q failed to initialize", ext.Name())
		}
		log.Info().Str("extension", ext.Name()).Msg("Extension initialized")
	}
	r.initialized = true
	return nil
}

// Emit delivers an event to its owning extension, if any. Listener errors
// are logged and swallowed; observers never fail the caller.
func (r *Registry) Emit(ctx context.Context, event string, payload any) {
	r.mu.RLock()
	ext, ok := r.byEvent[event]
	r.mu.RUnlock()
	if !ok {
		return
	}
	if err := ext.Handle(ctx, event, payload); err != nil {
		log.Warn().Err(err).Str("extension", ext.Name()).Str("event", event).Msg("Extension handler failed")
	}
}

// owner returns the extension claiming an event.
func (r *Registry) owner(event string) (Extension, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	ext, ok := r.byEvent[event]
	return ext, ok
}
