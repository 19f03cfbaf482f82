package registry

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeStore struct {
	persisted map[string]int64
}

func newFakeStore() *fakeStore {
	return &fakeStore{persisted: make(map[string]int64)}
}

func (f *fakeStore) LoadAll(ctx context.Context) ([]Metadata, error) { return nil, nil }

func (f *fakeStore) Persist(ctx context.Context, name string, typeID int64, schema PropertySchema) error {
	f.persisted[name] = typeID
	return nil
}

func (f *fakeStore) EnsurePartition(ctx context.Context, typeID int64, partitionTable string) error {
	return nil
}

func TestDeriveTypeIDIsDeterministic(t *testing.T) {
	a := DeriveTypeID("Profile")
	b := DeriveTypeID("Profile")
	assert.Equal(t, a, b)
	assert.NotEqual(t, a, DeriveTypeID("Settings"))
}

func TestRegisterIsIdempotent(t *testing.T) {
	store := newFakeStore()
	r := New(Options{Store: store})
	ctx := context.Background()

	schema := PropertySchema{{Name: "name", Kind: PropertyString}}
	id1, err := r.Register(ctx, "Profile", func() any { return &struct{}{} }, schema)
	require.NoError(t, err)

	id2, err := r.Register(ctx, "Profile", func() any { return &struct{}{} }, schema)
	require.NoError(t, err)
	assert.Equal(t, id1, id2)

	require.NoError(t, r.ReadyPromise(ctx, "Profile"))
	assert.Equal(t, id1, store.persisted["Profile"])
}

func TestRegisterMismatchedSchemaIsFatal(t *testing.T) {
	r := New(Options{Store: newFakeStore()})
	ctx := context.Background()

	_, err := r.Register(ctx, "Profile", func() any { return &struct{}{} }, PropertySchema{{Name: "name", Kind: PropertyString}})
	require.NoError(t, err)

	_, err = r.Register(ctx, "Profile", func() any { return &struct{}{} }, PropertySchema{{Name: "age", Kind: PropertyInt}})
	require.Error(t, err)
}

func TestReadyPromiseWaitsForPartitionDDL(t *testing.T) {
	r := New(Options{Store: newFakeStore(), Strategy: StrategyHash, HashPartitionCount: 8})
	ctx := context.Background()

	typeID, err := r.Register(ctx, "Settings", func() any { return &struct{}{} }, nil)
	require.NoError(t, err)

	require.NoError(t, r.ReadyPromise(ctx, "Settings"))

	ctor, ok := r.ConstructorOf(typeID)
	require.True(t, ok)
	require.NotNil(t, ctor())

	d, ok := r.Describe("Settings")
	require.True(t, ok)
	assert.Equal(t, "components_p"+itoaMod(typeID, 8), d.PartitionTable)
}

func itoaMod(id int64, n int) string {
	v := uint64(id) % uint64(n)
	return fmtUint(v)
}

func fmtUint(v uint64) string {
	if v == 0 {
		return "0"
	}
	var buf [20]byte
	i := len(buf)
	for v > 0 {
		i--
		buf[i] = byte('0' + v%10)
		v /= 10
	}
	return string(buf[i:])
}
