package adapters

import (
	"errors"
	"fmt"
	"net/http"
	"os"
	"sort"
	"sync"
	"time"
)

var (
	ErrUnknownKind  = errors.New("unknown adapter kind")
	ErrInvalidSpec  = errors.New("invalid adapter spec")
	ErrDuplicateTag = errors.New("adapter kind already registered")
)

// Spec describes one pool member. Kind selects the registered factory.
type Spec struct {
	Name               string        `yaml:"name" json:"name"`
	Kind               string        `yaml:"kind" json:"kind"`
	Model              string        `yaml:"model,omitempty" json:"model,omitempty"`
	BaseURL            string        `yaml:"base_url,omitempty" json:"base_url,omitempty"`
	APIKeyEnv          string        `yaml:"api_key_env,omitempty" json:"api_key_env,omitempty"`
	RateLimitPerMinute int           `yaml:"rate_limit_per_minute,omitempty" json:"rate_limit_per_minute,omitempty"`
	Burst              int           `yaml:"burst,omitempty" json:"burst,omitempty"`
	Timeout            time.Duration `yaml:"timeout,omitempty" json:"timeout,omitempty"`

	// APIKey overrides APIKeyEnv; never read from files.
	APIKey     string       `yaml:"-" json:"-"`
	HTTPClient *http.Client `yaml:"-" json:"-"`
}

func (s Spec) apiKey() string {
	if s.APIKey != "" {
		return s.APIKey
	}
	if s.APIKeyEnv != "" {
		return os.Getenv(s.APIKeyEnv)
	}
	return ""
}

func (s Spec) orDefault(v, def string) string {
	if v == "" {
		return def
	}
	return v
}

// Factory builds the provider half of an adapter from its spec.
type Factory func(spec Spec) (Provider, error)

// Registry is a tagged registry of adapter kinds.
type Registry struct {
	mu        sync.RWMutex
	factories map[string]Factory
}

func NewRegistry() *Registry {
	return &Registry{factories: make(map[string]Factory)}
}

// DefaultRegistry returns a registry with the built-in oracle kinds.
func DefaultRegistry() *Registry {
	r := NewRegistry()
	_ = r.Register("openai", func(s Spec) (Provider, error) {
		return NewChatProvider(s.Name, s.orDefault(s.BaseURL, "https://api.openai.com/v1"), s.apiKey(), s.orDefault(s.Model, "gpt-4o-mini"), s.HTTPClient), nil
	})
	_ = r.Register("xai", func(s Spec) (Provider, error) {
		return NewChatProvider(s.Name, s.orDefault(s.BaseURL, "https://api.x.ai/v1"), s.apiKey(), s.orDefault(s.Model, "grok-2-latest"), s.HTTPClient), nil
	})
	_ = r.Register("anthropic", func(s Spec) (Provider, error) {
		return NewMessagesProvider(s.Name, s.orDefault(s.BaseURL, "https://api.anthropic.com/v1"), s.apiKey(), s.orDefault(s.Model, "claude-3-5-sonnet-latest"), s.HTTPClient), nil
	})
	_ = r.Register("theia", func(s Spec) (Provider, error) {
		return NewReflectProvider(s.Model), nil
	})
	return r
}

// DefaultSpecs is the four-oracle lattice.
func DefaultSpecs() []Spec {
	return []Spec{
		{Name: "gpt", Kind: "openai", APIKeyEnv: "OPENAI_API_KEY"},
		{Name: "claude", Kind: "anthropic", APIKeyEnv: "ANTHROPIC_API_KEY"},
		{Name: "grok", Kind: "xai", APIKeyEnv: "XAI_API_KEY"},
		{Name: "theia", Kind: "theia"},
	}
}

// Register adds a kind. Kinds are registered once.
func (r *Registry) Register(kind string, f Factory) error {
	if kind == "" || f == nil {
		return fmt.Errorf("%w: kind and factory are required", ErrInvalidSpec)
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.factories[kind]; exists {
		return fmt.Errorf("%w: %s", ErrDuplicateTag, kind)
	}
	r.factories[kind] = f
	return nil
}

// Kinds lists registered kinds in order.
func (r *Registry) Kinds() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	kinds := make([]string, 0, len(r.factories))
	for k := range r.factories {
		kinds = append(kinds, k)
	}
	sort.Strings(kinds)
	return kinds
}

// Build constructs the adapter for spec, always wrapped by Base.
func (r *Registry) Build(spec Spec, opts ...Option) (Adapter, error) {
	if spec.Name == "" {
		return nil, fmt.Errorf("%w: name is required", ErrInvalidSpec)
	}
	r.mu.RLock()
	f, ok := r.factories[spec.Kind]
	r.mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("%w: %q for adapter %s", ErrUnknownKind, spec.Kind, spec.Name)
	}

	provider, err := f(spec)
	if err != nil {
		return nil, fmt.Errorf("build adapter %s: %w", spec.Name, err)
	}

	base := []Option{WithTimeout(spec.Timeout), WithRateLimit(spec.RateLimitPerMinute, spec.Burst)}
	return New(spec.Name, provider, append(base, opts...)...), nil
}

// BuildAll constructs a pool keyed by adapter name. Duplicate names are rejected.
func (r *Registry) BuildAll(specs []Spec, opts ...Option) (map[string]Adapter, error) {
	pool := make(map[string]Adapter, len(specs))
	for _, spec := range specs {
		if _, dup := pool[spec.Name]; dup {
			return nil, fmt.Errorf("%w: duplicate adapter name %q", ErrInvalidSpec, spec.Name)
		}
		a, err := r.Build(spec, opts...)
		if err != nil {
			return nil, err
		}
		pool[spec.Name] = a
	}
	return pool, nil
}
