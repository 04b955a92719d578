package provider

import (
	"context"
	"fmt"
	"sync"
)

// Config is the per-provider configuration a Registry lazily turns into a
// live Provider.
type Config struct {
	Driver   string            `json:"driver"`
	Model    string            `json:"model"`
	APIKey   string            `json:"api_key,omitempty"`
	BaseURL  string            `json:"base_url,omitempty"`
	Settings map[string]string `json:"settings,omitempty"`
}

// Factory builds a live Provider from Config. Registered per driver name
// (spec §4.4 concrete drivers: anthropic, openai, ollama).
type Factory func(ctx context.Context, cfg Config) (Provider, error)

var factories = map[string]Factory{}

// RegisterDriver adds a Factory under name. Concrete driver packages call
// this from an init func, the way the teacher's model drivers self-register.
func RegisterDriver(name string, f Factory) {
	factories[name] = f
}

type entry struct {
	cfg      Config
	once     sync.Once
	provider Provider
	err      error
}

// Registry manages named providers with lazy, once-only initialization:
// a provider is only constructed (and only fails) on first use.
type Registry struct {
	mu          sync.RWMutex
	entries     map[string]*entry
	defaultName string
}

// NewRegistry builds a Registry from named configs plus which name is the
// default.
func NewRegistry(defaultName string, configs map[string]Config) *Registry {
	r := &Registry{
		entries:     make(map[string]*entry, len(configs)),
		defaultName: defaultName,
	}
	for name, cfg := range configs {
		r.entries[name] = &entry{cfg: cfg}
	}
	return r
}

// Get returns the named provider, constructing it on first call.
func (r *Registry) Get(ctx context.Context, name string) (Provider, error) {
	r.mu.RLock()
	e, ok := r.entries[name]
	r.mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("provider %q not configured", name)
	}

	e.once.Do(func() {
		f, ok := factories[e.cfg.Driver]
		if !ok {
			e.err = fmt.Errorf("no driver registered for %q", e.cfg.Driver)
			return
		}
		e.provider, e.err = f(ctx, e.cfg)
	})
	return e.provider, e.err
}

// Default returns the registry's default provider.
func (r *Registry) Default(ctx context.Context) (Provider, error) {
	if r.defaultName == "" {
		return nil, fmt.Errorf("no default provider configured")
	}
	return r.Get(ctx, r.defaultName)
}

// DefaultName returns the configured default provider's name.
func (r *Registry) DefaultName() string { return r.defaultName }
