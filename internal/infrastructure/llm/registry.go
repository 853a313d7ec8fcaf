package llm

import (
	"fmt"
	"net"
	"net/http"
	"sort"
	"time"

	"github.com/palamut62/ai-gant-news/internal/config"
	"github.com/palamut62/ai-gant-news/internal/ports"
)

// Registry keeps a mapping from provider names to generator implementations.
type Registry struct {
	generators map[string]ports.Generator
}

// NewRegistry builds an empty registry.
func NewRegistry() *Registry {
	return &Registry{generators: map[string]ports.Generator{}}
}

// NewDefaultRegistry registers every supported provider with the same generator settings.
func NewDefaultRegistry(cfg config.GeneratorConfig) *Registry {
	reg := NewRegistry()
	reg.Register(NewChatGPTClient(cfg))
	reg.Register(NewGeminiClient(cfg))
	return reg
}

// Register adds or replaces a generator implementation.
func (r *Registry) Register(gen ports.Generator) {
	if r.generators == nil {
		r.generators = map[string]ports.Generator{}
	}
	r.generators[gen.Name()] = gen
}

// Resolve returns a generator by name or an error if it is absent.
func (r *Registry) Resolve(name string) (ports.Generator, error) {
	if gen, ok := r.generators[name]; ok {
		return gen, nil
	}
	return nil, fmt.Errorf("generator %s is not registered (have %v)", name, r.names())
}

func (r *Registry) names() []string {
	names := make([]string, 0, len(r.generators))
	for name := range r.generators {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

func newHTTPClient(timeout time.Duration) *http.Client {
	if timeout <= 0 {
		timeout = 60 * time.Second
	}
	tr := &http.Transport{
		Proxy:               http.ProxyFromEnvironment,
		DialContext:         (&net.Dialer{Timeout: 5 * time.Second, KeepAlive: 60 * time.Second}).DialContext,
		MaxIdleConns:        10,
		IdleConnTimeout:     90 * time.Second,
		TLSHandshakeTimeout: 5 * time.Second,
	}
	return &http.Client{Timeout: timeout, Transport: tr}
}
