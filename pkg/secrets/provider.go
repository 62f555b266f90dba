package secrets

import (
	"context"
	"fmt"
)

// Provider retrieves a secret by name as a flat key/value map.
type Provider interface {
	GetSecret(ctx context.Context, name string) (map[string]string, error)
}

// StaticProvider serves secrets from memory. It backs the env credentials
// source and tests.
type StaticProvider struct {
	secrets map[string]map[string]string
}

// NewStaticProvider returns a provider holding one named secret.
func NewStaticProvider(name string, values map[string]string) *StaticProvider {
	p := &StaticProvider{secrets: make(map[string]map[string]string)}
	p.Put(name, values)
	return p
}

// Put stores (or replaces) a secret.
func (p *StaticProvider) Put(name string, values map[string]string) {
	cp := make(map[string]string, len(values))
	for k, v := range values {
		cp[k] = v
	}
	p.secrets[name] = cp
}

func (p *StaticProvider) GetSecret(_ context.Context, name string) (map[string]string, error) {
	v, ok := p.secrets[name]
	if !ok {
		return nil, fmt.Errorf("secret [%s] not found", name)
	}
	out := make(map[string]string, len(v))
	for k, val := range v {
		out[k] = val
	}
	return out, nil
}

var _ Provider = (*StaticProvider)(nil)
