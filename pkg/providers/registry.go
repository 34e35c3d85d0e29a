package providers

import (
	"context"

	"github.com/pkg/errors"
)

// Provider pairs a client with its gate. One Provider exists per external
// source, constructed at startup and shared process-wide.
type Provider struct {
	Client Client
	Gate   *Gate
}

type Registry struct {
	providers map[string]*Provider
	order     []string
}

func NewRegistry() *Registry {
	return &Registry{providers: map[string]*Provider{}}
}

func (r *Registry) Register(client Client, gate *Gate) {
	name := client.Name()
	if _, ok := r.providers[name]; !ok {
		r.order = append(r.order, name)
	}
	r.providers[name] = &Provider{Client: client, Gate: gate}
}

func (r *Registry) Get(name string) (*Provider, bool) {
	p, ok := r.providers[name]
	return p, ok
}

// Names returns provider names in registration order.
func (r *Registry) Names() []string {
	return append([]string(nil), r.order...)
}

// Fetch routes one series lookup through the named provider's gate.
func (r *Registry) Fetch(ctx context.Context, provider, seriesName string) (*FetchResult, error) {
	p, ok := r.providers[provider]
	if !ok {
		return nil, errors.Errorf("unknown provider %q", provider)
	}
	res, err := p.Gate.Do(ctx, func(ctx context.Context) (*FetchResult, error) {
		return p.Client.FetchSeries(ctx, seriesName)
	})
	if err != nil {
		return nil, err
	}
	if res != nil {
		res.Provider = provider
	}
	return res, nil
}
