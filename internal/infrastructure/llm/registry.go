package llm

import (
	"fmt"
	"log/slog"
	"sort"

	"ApplicationScanner/internal/config"
	"ApplicationScanner/internal/ports"
)

// Backend is an extractor that can be selected by provider name.
type Backend interface {
	ports.Extractor
	Name() string
}

// Registry keeps a mapping from provider names to their implementations.
type Registry struct {
	backends map[string]Backend
}

// NewRegistry builds an empty registry.
func NewRegistry() *Registry {
	return &Registry{backends: map[string]Backend{}}
}

// Register adds or replaces a backend implementation.
func (r *Registry) Register(backend Backend) {
	if r.backends == nil {
		r.backends = map[string]Backend{}
	}
	r.backends[backend.Name()] = backend
}

// Resolve returns a backend by name or an error if it is absent.
func (r *Registry) Resolve(name string) (Backend, error) {
	if backend, ok := r.backends[name]; ok {
		return backend, nil
	}
	return nil, fmt.Errorf("llm provider %s is not registered (have %v)", name, r.Names())
}

// Names lists registered providers in sorted order.
func (r *Registry) Names() []string {
	names := make([]string, 0, len(r.backends))
	for name := range r.backends {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// NewExtractor registers the backends the configuration can reach and resolves the
// configured provider.
func NewExtractor(cfg config.LLMConfig, logger *slog.Logger) (Backend, error) {
	registry := NewRegistry()
	registry.Register(NewOpenAIClient(cfg, logger))
	if cfg.APIKey != "" {
		registry.Register(NewAnthropicClient(cfg, logger))
	}
	return registry.Resolve(cfg.Provider)
}
