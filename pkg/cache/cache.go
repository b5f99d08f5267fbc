// Package cache provides the key-value storage behind the revocation store
// and other locally mirrored collections: a local in-memory provider for
// single-process verifiers, and a redis provider for fleets that share one
// revocation dataset. Values are kept JSON encoded so both behave the same.
package cache

import (
	"context"
	"strings"
	"time"

	"github.com/cockroachdb/errors"
)

// DefaultTTL specifies default TTL
var DefaultTTL = 30 * time.Minute

// KeepTTL specifies to keep value
var KeepTTL = time.Duration(-1)

// NowFunc allows to override default time
var NowFunc = time.Now

// Config specifies configuration of the cache.
type Config struct {
	// Provider specifies the cache provider: redis|memory
	Provider string       `json:"provider" yaml:"provider"`
	Redis    *RedisConfig `json:"redis" yaml:"redis"`
}

// RedisConfig specifies configuration of the redis.
type RedisConfig struct {
	Server   string        `json:"server,omitempty" yaml:"server,omitempty"`
	TTL      time.Duration `json:"ttl,omitempty" yaml:"ttl,omitempty"`
	User     string        `json:"user,omitempty" yaml:"user,omitempty"`
	Password string        `json:"password,omitempty" yaml:"password,omitempty"`
}

// Provider defines cache interface
type Provider interface {
	// Set data
	Set(ctx context.Context, key string, v any, ttl time.Duration) error
	// Get data
	Get(ctx context.Context, key string, v any) error
	// Delete data
	Delete(ctx context.Context, keys ...string) error
	// CleanExpired data
	CleanExpired(ctx context.Context)
	// Close closes the client, releasing any open resources.
	// It is rare to Close a Client, as the Client is meant to be long-lived and shared between many goroutines.
	Close() error
	// Keys returns the list of keys matching the pattern.
	// The revocation store uses this to enumerate a kid's partitions.
	Keys(ctx context.Context, pattern string) ([]string, error)

	// IsLocal returns true, if cache is local
	IsLocal() bool
}

// New returns a Provider for the config.
func New(cfg *Config, prefix string) (Provider, error) {
	if cfg == nil || cfg.Provider == "" || cfg.Provider == "memory" {
		return NewMemoryProvider(prefix), nil
	}
	if cfg.Provider == "redis" {
		if cfg.Redis == nil {
			return nil, errors.New("redis provider requires redis config")
		}
		return NewRedisProvider(*cfg.Redis, prefix)
	}
	return nil, errors.Errorf("unsupported cache provider: %s", cfg.Provider)
}

// relativeKey strips the provider prefix from a stored key name,
// so Keys results are relative regardless of provider.
func relativeKey(prefix, name string) string {
	name = strings.TrimPrefix(name, prefix)
	return strings.TrimPrefix(name, "/")
}

// ErrNotFound defines not found error
var ErrNotFound = errors.New("not found")

// IsNotFoundError returns true, if error is NotFound
func IsNotFoundError(err error) bool {
	return err != nil &&
		(err == ErrNotFound || errors.Is(err, ErrNotFound) || strings.Contains(err.Error(), "not found"))
}
