package query

import (
	"context"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ecsdb/ecsdb/internal/entity"
	"github.com/ecsdb/ecsdb/internal/registry"
)

func testDeps(t *testing.T) Deps {
	t.Helper()
	ctx := context.Background()
	reg := registry.New(registry.Options{})
	_, err := reg.Register(ctx, "Profile", func() any { return &map[string]any{} }, nil)
	require.NoError(t, err)
	_, err = reg.Register(ctx, "Tag", func() any { return &map[string]any{} }, nil)
	require.NoError(t, err)
	require.NoError(t, reg.ReadyPromise(ctx, "Profile"))
	require.NoError(t, reg.ReadyPromise(ctx, "Tag"))
	return Deps{Entity: entity.Deps{Registry: reg}}
}

func TestCompileRejectsUnregisteredComponent(t *testing.T) {
	b := New(testDeps(t)).With("Ghost")
	_, err := compile(b)
	assert.Error(t, err)
}

func TestCompileRequiresAtLeastOneRequirement(t *testing.T) {
	b := New(testDeps(t))
	_, err := compile(b)
	assert.Error(t, err)
}

func TestCompileAllowsFindByIDAlone(t *testing.T) {
	b := New(testDeps(t)).FindByID(uuid.New())
	cq, err := compile(b)
	require.NoError(t, err)
	assert.True(t, cq.findID)
}

func TestRenderProducesExistsClausePerRequirement(t *testing.T) {
	b := New(testDeps(t)).With("Profile", Eq("displayName", "ada")).Without("Tag")
	cq, err := compile(b)
	require.NoError(t, err)

	sql, params := render(cq, modeRows)
	assert.Contains(t, sql, "EXISTS (SELECT 1 FROM components r0")
	assert.Contains(t, sql, "NOT EXISTS (SELECT 1 FROM components wo0")
	assert.Contains(t, sql, "FROM entities e")
	assert.Equal(t, []string{"req:0:0"}, params)
}

func TestRenderOrGroupProducesDisjunction(t *testing.T) {
	b := New(testDeps(t)).WithOr(Or(
		ComponentFilter{Component: "Profile", Predicates: []Predicate{Eq("displayName", "ada")}},
		ComponentFilter{Component: "Tag", Predicates: []Predicate{Eq("label", "vip")}},
	))
	cq, err := compile(b)
	require.NoError(t, err)

	sql, params := render(cq, modeRows)
	assert.Contains(t, sql, " OR ")
	assert.Equal(t, []string{"or:0:0:0", "or:0:1:0"}, params)
}

func TestRenderCountModeOmitsOrderAndPagination(t *testing.T) {
	b := New(testDeps(t)).With("Profile").Take(10).Offset(5).SortBy("Profile", "displayName", Asc)
	cq, err := compile(b)
	require.NoError(t, err)

	sql, _ := render(cq, modeCount)
	assert.Contains(t, sql, "SELECT COUNT(*)")
	assert.NotContains(t, sql, "ORDER BY")
	assert.NotContains(t, sql, "LIMIT")
}

func TestShapeKeyIgnoresLiteralValuesButNotOperatorsOrFields(t *testing.T) {
	a := New(testDeps(t)).With("Profile", Eq("displayName", "ada"))
	cqA, err := compile(a)
	require.NoError(t, err)
	keyA := shapeKey(cqA, modeRows, false, 0)

	b := New(testDeps(t)).With("Profile", Eq("displayName", "grace"))
	cqB, err := compile(b)
	require.NoError(t, err)
	keyB := shapeKey(cqB, modeRows, false, 0)

	assert.Equal(t, keyA, keyB)

	c := New(testDeps(t)).With("Profile", Neq("displayName", "ada"))
	cqC, err := compile(c)
	require.NoError(t, err)
	keyC := shapeKey(cqC, modeRows, false, 0)

	assert.NotEqual(t, keyA, keyC)
}

func TestBindValuesMatchesRenderOrder(t *testing.T) {
	b := New(testDeps(t)).
		With("Profile", Eq("displayName", "ada"), Gt("score", 5)).
		FindByID(uuid.New()).
		Take(10)
	cq, err := compile(b)
	require.NoError(t, err)

	_, paramNames := render(cq, modeRows)
	values, err := bindValues(b, cq, paramNames)
	require.NoError(t, err)
	require.Len(t, values, 4)
	assert.Equal(t, "ada", values[0])
	assert.Equal(t, 5, values[1])
	assert.Equal(t, *b.findID, values[2])
	assert.Equal(t, 10, values[3])
}

func TestCompileDetectsCustomOperatorAndRoutesToLivePath(t *testing.T) {
	const near Operator = "NEAR"
	RegisterOperator(near, func(alias string, qc *QueryContext, fieldPath string, value any) (string, int) {
		ph := qc.Bind(value)
		return alias + ".data->>'" + fieldPath + "' = " + ph, 1
	})

	b := New(testDeps(t)).With("Profile", Predicate{FieldPath: "geo", Op: near, Value: "0,0"})
	cq, err := compile(b)
	require.NoError(t, err)
	assert.True(t, cq.hasCustomOperator)

	sql, params, err := renderLive(b, cq, modeRows)
	require.NoError(t, err)
	assert.Contains(t, sql, "data->>'geo'")
	assert.Equal(t, []any{"0,0"}, params)
}

func TestComponentsToLoadMergesPopulateAndEagerLoad(t *testing.T) {
	b := New(testDeps(t)).With("Profile").Populate().EagerLoadComponents("Tag", "Profile")
	names := b.componentsToLoad()
	assert.ElementsMatch(t, []string{"Profile", "Tag"}, names)
}
