// Package mockappcontainer assembles the inspection engine's
// collaborators into a dig container for tests.
package mockappcontainer

import (
	"go.uber.org/dig"

	"github.com/trustpass/inspect/pkg/cache"
	"github.com/trustpass/inspect/pkg/datasync"
	"github.com/trustpass/inspect/pkg/inspect"
	"github.com/trustpass/inspect/pkg/localdata"
	"github.com/trustpass/inspect/pkg/revocation"
	"github.com/trustpass/inspect/pkg/validity"
)

// Builder helps to build container
type Builder struct {
	container *dig.Container
}

// NewBuilder returns ContainerBuilder
func NewBuilder() *Builder {
	return &Builder{
		container: dig.New(),
	}
}

// Container returns Container
func (b *Builder) Container() *dig.Container {
	return b.container
}

// WithConfig sets inspect.Config
func (b *Builder) WithConfig(c *inspect.Config) *Builder {
	_ = b.container.Provide(func() *inspect.Config {
		return c
	})
	return b
}

// WithGateway sets the gateway used by the sync pipeline
func (b *Builder) WithGateway(gw datasync.Gateway) *Builder {
	_ = b.container.Provide(func() datasync.Gateway {
		return gw
	})
	return b
}

// WithRuleEngine sets the external rule engine
func (b *Builder) WithRuleEngine(e validity.RuleEngine) *Builder {
	_ = b.container.Provide(func() validity.RuleEngine {
		return e
	})
	return b
}

// WithCacheProvider sets the cache provider backing the revocation store
func (b *Builder) WithCacheProvider(p cache.Provider) *Builder {
	_ = b.container.Provide(func() cache.Provider {
		return p
	})
	_ = b.container.Provide(revocation.NewStore)
	return b
}

// WithLocalData sets the local dataset manager
func (b *Builder) WithLocalData(m *localdata.Manager) *Builder {
	_ = b.container.Provide(func() *localdata.Manager {
		return m
	})
	return b
}
