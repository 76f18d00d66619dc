package nats

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/codewandler/cqrskit/core/es"
	"github.com/codewandler/cqrskit/ports/kv"
)

func TestKVStore(t *testing.T) {
	if testing.Short() {
		t.Skip("requires nats")
	}
	store, err := NewKVStore(t.Context(), KVConfig{Bucket: "fruits", Connect: NewTestContainer(t)})
	require.NoError(t, err)
	defer store.Close()

	_, err = store.Get(t.Context(), "apple")
	require.ErrorIs(t, err, kv.ErrNotFound)

	type fruit struct {
		Name  string
		Count int
	}
	require.NoError(t, kv.Put(t.Context(), store, "apple", fruit{Name: "apple", Count: 10}, kv.PutOptions{}))
	v, err := kv.Get[fruit](t.Context(), store, "apple")
	require.NoError(t, err)
	require.Equal(t, fruit{Name: "apple", Count: 10}, v)

	require.NoError(t, store.Delete(t.Context(), "apple"))
	require.NoError(t, store.Delete(t.Context(), "apple"))
	_, err = store.Get(t.Context(), "apple")
	require.ErrorIs(t, err, kv.ErrNotFound)
}

func TestStateStore(t *testing.T) {
	if testing.Short() {
		t.Skip("requires nats")
	}
	states, store, err := NewStateStore(t.Context(), KVConfig{Bucket: "snapshots", Connect: NewTestContainer(t)})
	require.NoError(t, err)
	defer store.Close()

	_, err = states.Get(t.Context(), "account", "acc")
	require.ErrorIs(t, err, es.ErrSnapshotNotFound)

	ss := &es.Snapshot{SnapshotID: "s-1", ObjType: "account", ObjID: "acc", ObjVersion: 3, Encoding: "json", Data: []byte(`{"value":3}`)}
	require.NoError(t, states.Save(t.Context(), "account", "acc", ss))
	got, err := states.Get(t.Context(), "account", "acc")
	require.NoError(t, err)
	require.Equal(t, es.Version(3), got.ObjVersion)
	require.JSONEq(t, `{"value":3}`, string(got.Data))
}
