package engine

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	tcpostgres "github.com/testcontainers/testcontainers-go/modules/postgres"
	"github.com/testcontainers/testcontainers-go/wait"

	"github.com/ecsdb/ecsdb/internal/hooks"
	"github.com/ecsdb/ecsdb/internal/query"
)

type profile struct {
	DisplayName string `json:"displayName"`
}

// newTestEngine boots a disposable Postgres container and opens an Engine
// against it, the same container-per-test shape internal/entity's
// save_integration_test.go uses, generalized to go through Open instead of
// hand-assembling Deps.
func newTestEngine(t *testing.T) *Engine {
	t.Helper()
	if testing.Short() {
		t.Skip("skipping container-backed test in short mode")
	}
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Minute)
	defer cancel()

	container, err := tcpostgres.Run(ctx, "postgres:16-alpine",
		tcpostgres.WithDatabase("ecsdb_test"),
		tcpostgres.WithUsername("ecsdb"),
		tcpostgres.WithPassword("ecsdb"),
		testcontainers.WithWaitStrategy(wait.ForListeningPort("5432/tcp")),
	)
	require.NoError(t, err)
	t.Cleanup(func() { _ = container.Terminate(context.Background()) })

	dsn, err := container.ConnectionString(ctx, "sslmode=disable")
	require.NoError(t, err)

	cfg := DefaultConfig()
	cfg.Conn.URL = dsn
	cfg.Cache.Enabled = false

	eng, err := Open(ctx, cfg)
	require.NoError(t, err)
	t.Cleanup(eng.Close)
	return eng
}

func TestOpenRegisterSaveLoadRoundTrips(t *testing.T) {
	eng := newTestEngine(t)
	ctx := context.Background()

	_, err := eng.RegisterComponent(ctx, "Profile", func() any { return &profile{} }, nil)
	require.NoError(t, err)

	e := eng.NewEntity()
	require.NoError(t, e.Add("Profile", &profile{DisplayName: "ada"}))
	require.NoError(t, eng.SaveEntity(ctx, e))

	loaded, err := eng.LoadEntity(ctx, e.ID)
	require.NoError(t, err)
	require.NotNil(t, loaded)

	got, err := loaded.Get(ctx, "Profile", nil)
	require.NoError(t, err)
	require.Equal(t, &profile{DisplayName: "ada"}, got)
}

func TestLoadEntityReturnsNilForSoftDeletedEntity(t *testing.T) {
	eng := newTestEngine(t)
	ctx := context.Background()

	_, err := eng.RegisterComponent(ctx, "Profile", func() any { return &profile{} }, nil)
	require.NoError(t, err)

	e := eng.NewEntity()
	require.NoError(t, e.Add("Profile", &profile{DisplayName: "ada"}))
	require.NoError(t, eng.SaveEntity(ctx, e))

	missingID := e.ID
	require.NoError(t, eng.DeleteEntity(ctx, e, false))

	loaded, err := eng.LoadEntity(ctx, missingID)
	require.NoError(t, err)
	require.Nil(t, loaded)
}

func TestQueryFindsEntityByComponentPredicate(t *testing.T) {
	eng := newTestEngine(t)
	ctx := context.Background()

	_, err := eng.RegisterComponent(ctx, "Profile", func() any { return &profile{} }, nil)
	require.NoError(t, err)

	e := eng.NewEntity()
	require.NoError(t, e.Add("Profile", &profile{DisplayName: "ada"}))
	require.NoError(t, eng.SaveEntity(ctx, e))

	results, err := eng.Query().
		With("Profile", query.Eq("displayName", "ada")).
		Exec(ctx)
	require.NoError(t, err)
	require.Len(t, results, 1)
	require.Equal(t, e.ID, results[0].ID)
}

func TestRequestLoadersBatchesComponentLookups(t *testing.T) {
	eng := newTestEngine(t)
	ctx := context.Background()

	_, err := eng.RegisterComponent(ctx, "Profile", func() any { return &profile{} }, nil)
	require.NoError(t, err)

	e := eng.NewEntity()
	require.NoError(t, e.Add("Profile", &profile{DisplayName: "ada"}))
	require.NoError(t, eng.SaveEntity(ctx, e))

	loaders := eng.NewRequestLoaders()
	loaded, err := eng.LoadEntity(ctx, e.ID)
	require.NoError(t, err)

	got, err := loaded.Get(ctx, "Profile", loaders.EntityContext())
	require.NoError(t, err)
	require.Equal(t, &profile{DisplayName: "ada"}, got)
}

func TestStatsReportsHookInvocationAfterSave(t *testing.T) {
	eng := newTestEngine(t)
	ctx := context.Background()

	_, err := eng.RegisterComponent(ctx, "Profile", func() any { return &profile{} }, nil)
	require.NoError(t, err)

	eng.Hooks().On(hooks.EntityCreated, func(ctx context.Context, evt hooks.Event) error {
		return nil
	}, hooks.Options{})

	e := eng.NewEntity()
	require.NoError(t, e.Add("Profile", &profile{DisplayName: "ada"}))
	require.NoError(t, eng.SaveEntity(ctx, e))

	stats := eng.Stats()
	require.Equal(t, int64(1), stats.Hooks[hooks.EntityCreated].Invocations)
}
