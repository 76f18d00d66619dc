package kv

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func Test_Memory(t *testing.T) {
	type Foo struct {
		Name string
		Age  int
	}
	s := NewMemStore()

	_, err := Get[Foo](t.Context(), s, "foobar")
	require.ErrorIs(t, err, ErrNotFound)

	require.NoError(t, Put(t.Context(), s, "p1", Foo{Name: "P1", Age: 10}, PutOptions{}))
	require.NoError(t, Put(t.Context(), s, "p2", Foo{Name: "P2", Age: 20}, PutOptions{}))

	loaded, err := Get[Foo](t.Context(), s, "p1")
	require.NoError(t, err)
	require.Equal(t, Foo{Name: "P1", Age: 10}, loaded)

	require.NoError(t, s.Delete(t.Context(), "p1"))
	_, err = Get[Foo](t.Context(), s, "p1")
	require.ErrorIs(t, err, ErrNotFound)
}

func Test_Memory_TTL(t *testing.T) {
	s := NewMemStore()
	now := time.Now()
	s.now = func() time.Time { return now }

	require.NoError(t, s.Put(t.Context(), "a", Entry{Data: []byte("1")}, PutOptions{TTL: time.Second}))
	_, err := s.Get(t.Context(), "a")
	require.NoError(t, err)

	now = now.Add(2 * time.Second)
	_, err = s.Get(t.Context(), "a")
	require.ErrorIs(t, err, ErrNotFound)
}

func Test_Memory_CopiesData(t *testing.T) {
	s := NewMemStore()
	buf := []byte("abc")
	require.NoError(t, s.Put(t.Context(), "a", Entry{Data: buf}, PutOptions{}))
	buf[0] = 'x'

	e, err := s.Get(t.Context(), "a")
	require.NoError(t, err)
	require.Equal(t, "abc", string(e.Data))
}

func TestKey(t *testing.T) {
	require.Equal(t, "snapshot.account.acc-1", Key("snapshot", "account", "acc-1"))
}
