package llm

import (
	"fmt"
	"sort"
	"strings"
	"time"

	"golang.org/x/time/rate"

	"SentimentTracker/internal/ports"
)

const (
	ProviderAnthropic = "anthropic"
	ProviderOpenAI    = "openai"

	defaultMaxTokens = 500
	defaultTimeout   = 60 * time.Second
)

// ProviderConfig is what every provider constructor receives.
type ProviderConfig struct {
	APIKey  string
	Model   string
	BaseURL string
	Timeout time.Duration
	// RequestsPerSecond paces calls; zero means unlimited.
	RequestsPerSecond float64
	// MaxRetries is passed to the SDK; negative keeps the SDK default.
	MaxRetries int
}

func (c ProviderConfig) timeout() time.Duration {
	if c.Timeout <= 0 {
		return defaultTimeout
	}
	return c.Timeout
}

func (c ProviderConfig) limiter() *rate.Limiter {
	if c.RequestsPerSecond <= 0 {
		return rate.NewLimiter(rate.Inf, 1)
	}
	return rate.NewLimiter(rate.Limit(c.RequestsPerSecond), 1)
}

func maxTokens(requested int) int {
	if requested <= 0 {
		return defaultMaxTokens
	}
	return requested
}

// Factory builds a completer for one provider.
type Factory func(cfg ProviderConfig) (ports.Completer, error)

// Registry keeps a mapping from provider names to their constructors.
type Registry struct {
	factories map[string]Factory
}

// NewRegistry returns a registry with the built-in providers registered.
func NewRegistry() *Registry {
	r := &Registry{factories: map[string]Factory{}}
	r.Register(ProviderAnthropic, func(cfg ProviderConfig) (ports.Completer, error) {
		return NewAnthropicClient(cfg)
	})
	r.Register(ProviderOpenAI, func(cfg ProviderConfig) (ports.Completer, error) {
		return NewOpenAIClient(cfg)
	})
	return r
}

// Register adds or replaces a provider.
func (r *Registry) Register(name string, factory Factory) {
	if r.factories == nil {
		r.factories = map[string]Factory{}
	}
	r.factories[strings.ToLower(name)] = factory
}

// Resolve builds the named provider or reports it as unknown.
func (r *Registry) Resolve(name string, cfg ProviderConfig) (ports.Completer, error) {
	factory, ok := r.factories[strings.ToLower(strings.TrimSpace(name))]
	if !ok {
		return nil, fmt.Errorf("llm provider %q is not registered (known: %s)", name, strings.Join(r.Names(), ", "))
	}
	return factory(cfg)
}

// Names lists registered providers in sorted order.
func (r *Registry) Names() []string {
	names := make([]string, 0, len(r.factories))
	for name := range r.factories {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
