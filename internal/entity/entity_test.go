package entity

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ecsdb/ecsdb/internal/registry"
)

type profile struct {
	DisplayName string `json:"displayName"`
}

func testDeps(t *testing.T) Deps {
	t.Helper()
	reg := registry.New(registry.Options{})
	ctx := context.Background()
	_, err := reg.Register(ctx, "Profile", func() any { return &profile{} }, nil)
	require.NoError(t, err)
	require.NoError(t, reg.ReadyPromise(ctx, "Profile"))
	return Deps{Registry: reg}
}

func TestNewEntityStartsDirtyAndUnpersisted(t *testing.T) {
	deps := testDeps(t)
	e := New(deps)
	assert.False(t, e.IsPersisted())
	assert.True(t, e.IsDirty())
	assert.NotEmpty(t, e.ID)
}

func TestAddAttachesComponentAndMarksDirty(t *testing.T) {
	deps := testDeps(t)
	e := New(deps)
	require.NoError(t, e.Add("Profile", &profile{DisplayName: "ada"}))

	got, err := e.Get(context.Background(), "Profile", nil)
	require.NoError(t, err)
	assert.Equal(t, &profile{DisplayName: "ada"}, got)
	assert.Len(t, e.AttachedTypeIDs(), 1)
}

func TestAddUnregisteredComponentFails(t *testing.T) {
	deps := testDeps(t)
	e := New(deps)
	err := e.Add("DoesNotExist", struct{}{})
	assert.Error(t, err)
}

func TestSetUpdatesInPlaceWhenAlreadyAttached(t *testing.T) {
	deps := testDeps(t)
	e := New(deps)
	require.NoError(t, e.Add("Profile", &profile{DisplayName: "ada"}))
	require.NoError(t, e.Set("Profile", &profile{DisplayName: "grace"}))

	got, err := e.Get(context.Background(), "Profile", nil)
	require.NoError(t, err)
	assert.Equal(t, &profile{DisplayName: "grace"}, got)
	assert.Len(t, e.AttachedTypeIDs(), 1)
}

func TestSetAttachesWhenNotYetPresent(t *testing.T) {
	deps := testDeps(t)
	e := New(deps)
	require.NoError(t, e.Set("Profile", &profile{DisplayName: "ada"}))
	assert.Len(t, e.AttachedTypeIDs(), 1)
}

func TestRemoveQueuesPendingRemovalAndDetaches(t *testing.T) {
	deps := testDeps(t)
	e := New(deps)
	require.NoError(t, e.Add("Profile", &profile{DisplayName: "ada"}))
	require.NoError(t, e.Remove("Profile"))

	assert.Empty(t, e.AttachedTypeIDs())
	assert.True(t, e.IsDirty())
	_, err := e.Get(context.Background(), "Profile", nil)
	assert.Error(t, err)
}

func TestCloneCopiesComponentsAsNewUnpersistedEntity(t *testing.T) {
	deps := testDeps(t)
	e := New(deps)
	require.NoError(t, e.Add("Profile", &profile{DisplayName: "ada"}))

	clone := e.Clone()
	assert.NotEqual(t, e.ID, clone.ID)
	assert.False(t, clone.IsPersisted())
	assert.True(t, clone.IsDirty())

	got, err := clone.Get(context.Background(), "Profile", nil)
	require.NoError(t, err)
	assert.Equal(t, &profile{DisplayName: "ada"}, got)
}

func TestMakeRefSharesSourceComponentsByReference(t *testing.T) {
	deps := testDeps(t)
	src := New(deps)
	require.NoError(t, src.Add("Profile", &profile{DisplayName: "ada"}))

	ref := MakeRef(src)
	assert.Equal(t, src.ID, ref.ID)
	assert.True(t, ref.IsPersisted())
	assert.False(t, ref.IsDirty())
	assert.Equal(t, src.AttachedTypeIDs(), ref.AttachedTypeIDs())

	got, err := ref.Get(context.Background(), "Profile", nil)
	require.NoError(t, err)
	assert.Equal(t, &profile{DisplayName: "ada"}, got)
}

func TestSaveIsNoOpWhenNotDirty(t *testing.T) {
	deps := testDeps(t)
	src := New(deps)
	require.NoError(t, src.Add("Profile", &profile{DisplayName: "ada"}))
	e := MakeRef(src)
	require.NoError(t, e.Save(context.Background()))
}
