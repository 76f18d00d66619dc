package es

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestEventRegistry_RoundTrip(t *testing.T) {
	r := NewEventRegistry()
	RegisterEvent[credited](r)

	w := newWallet("w-1")
	ev := NewEvent(credited{Amount: 42}, WithUserID("u-1"))
	require.NoError(t, w.Apply(ev))

	env, err := r.Encode(ev)
	require.NoError(t, err)
	require.Equal(t, "wallet.Credited", env.Type)
	require.Equal(t, "w-1", env.AggregateID)
	require.JSONEq(t, `{"amount":42}`, string(env.Data))

	decoded, err := r.Decode(env)
	require.NoError(t, err)
	typed, ok := decoded.(*Event[credited])
	require.True(t, ok)
	require.Equal(t, 42, typed.Data.Amount)
	require.Equal(t, ev.Metadata.EventID, typed.Metadata.EventID)
	require.Equal(t, Version(1), typed.Metadata.Version)
	require.Equal(t, "u-1", typed.Metadata.UserID)
	require.True(t, ev.Metadata.Timestamp.Equal(typed.Metadata.Timestamp))

	// decoded events drive the same reducers
	w2 := newWallet("w-1")
	require.NoError(t, w2.Apply(decoded))
	require.Equal(t, 42, w2.State().Balance)
}

func TestEventRegistry_UnknownType(t *testing.T) {
	_, err := NewEventRegistry().Decode(Envelope{Type: "nope"})
	require.ErrorIs(t, err, ErrUnknownEventType)
}

func TestEventRegistry_EncodeRequiresAggregate(t *testing.T) {
	_, err := NewEventRegistry().Encode(NewEvent(credited{Amount: 1}))
	require.Error(t, err)
}
