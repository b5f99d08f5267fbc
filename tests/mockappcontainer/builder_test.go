package mockappcontainer_test

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"
	"github.com/trustpass/inspect/pkg/cache"
	"github.com/trustpass/inspect/pkg/datasync"
	"github.com/trustpass/inspect/pkg/inspect"
	"github.com/trustpass/inspect/pkg/localdata"
	"github.com/trustpass/inspect/pkg/revocation"
	"github.com/trustpass/inspect/pkg/validity"
	"github.com/trustpass/inspect/tests/mockappcontainer"
)

type noopEngine struct{}

func (noopEngine) Validate(_ context.Context, _ validity.RuleKind, _ validity.FilterParameter, _ validity.ExternalParameter, _ string) []validity.RuleResult {
	return nil
}

type noopGateway struct {
	datasync.Gateway
}

func TestBuilder(t *testing.T) {
	local, err := localdata.NewManager(t.TempDir())
	require.NoError(t, err)

	container := mockappcontainer.NewBuilder().
		WithConfig(&inspect.Config{AppVersion: "test"}).
		WithGateway(noopGateway{}).
		WithRuleEngine(noopEngine{}).
		WithCacheProvider(cache.NewMemoryProvider(t.Name())).
		WithLocalData(local).
		Container()
	require.NotNil(t, container)

	err = container.Invoke(func(
		cfg *inspect.Config,
		gw datasync.Gateway,
		engine validity.RuleEngine,
		store *revocation.Store,
		m *localdata.Manager,
	) error {
		require.NotNil(t, store)
		require.Equal(t, "test", cfg.AppVersion)
		return nil
	})
	require.NoError(t, err)
}
