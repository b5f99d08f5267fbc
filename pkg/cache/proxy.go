package cache

import (
	"context"
	"path"
	"time"
)

// proxyProv namespaces a parent provider under a key prefix, so the
// revocation store and other collections can share one client.
type proxyProv struct {
	prefix string
	prov   Provider
}

// NewProxyProvider returns proxy provider
func NewProxyProvider(prefix string, prov Provider) Provider {
	return &proxyProv{
		prefix: prefix,
		prov:   prov,
	}
}

func (p *proxyProv) keyName(key string) string {
	return path.Join(p.prefix, key)
}

// Close does nothing as the parent must be closed safely
func (p *proxyProv) Close() error {
	return nil
}

// IsLocal returns true, if cache is local
func (p *proxyProv) IsLocal() bool {
	return p.prov.IsLocal()
}

// Set data
func (p *proxyProv) Set(ctx context.Context, key string, v any, ttl time.Duration) error {
	return p.prov.Set(ctx, p.keyName(key), v, ttl)
}

// Get data
func (p *proxyProv) Get(ctx context.Context, key string, v any) error {
	return p.prov.Get(ctx, p.keyName(key), v)
}

// Delete data
func (p *proxyProv) Delete(ctx context.Context, keys ...string) error {
	if len(keys) == 0 {
		return nil
	}
	pkeys := make([]string, 0, len(keys))
	for _, key := range keys {
		pkeys = append(pkeys, p.keyName(key))
	}
	return p.prov.Delete(ctx, pkeys...)
}

// CleanExpired data
func (p *proxyProv) CleanExpired(ctx context.Context) {
	p.prov.CleanExpired(ctx)
}

// Keys returns list of keys matching the pattern, relative to the proxy prefix.
func (p *proxyProv) Keys(ctx context.Context, pattern string) ([]string, error) {
	keys, err := p.prov.Keys(ctx, p.keyName(pattern))
	if err != nil {
		return nil, err
	}
	for i, key := range keys {
		keys[i] = relativeKey(p.prefix, key)
	}
	return keys, nil
}
