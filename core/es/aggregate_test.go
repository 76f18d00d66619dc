package es

import (
	"bytes"
	"errors"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type (
	credited struct {
		Amount int `json:"amount"`
	}
	debited struct {
		Amount int `json:"amount"`
	}
	frozen struct{}
)

func (credited) EventType() string { return "wallet.Credited" }
func (debited) EventType() string  { return "wallet.Debited" }
func (frozen) EventType() string   { return "wallet.Frozen" }

var errInsufficient = errors.New("insufficient funds")

type wallet struct {
	Balance int      `json:"balance"`
	Frozen  bool     `json:"frozen,omitempty"`
	Log     []string `json:"log,omitempty"`
}

func (w *wallet) OnCredited(DomainEvent) { w.Log = append(w.Log, "OnCredited") }

func (w *wallet) OnDebited(ev *Event[debited]) error {
	if w.Balance < ev.Data.Amount {
		return errInsufficient
	}
	w.Balance -= ev.Data.Amount
	w.Log = append(w.Log, "OnDebited")
	return nil
}

// not a convention handler: wrong arity
func (w *wallet) OnAudit() {}

func walletReducers() *ReducerTable[wallet] {
	t := NewReducerTable[wallet]()
	OnEvent(t, "credit", func(s *wallet, ev *Event[credited]) error {
		s.Balance += ev.Data.Amount
		s.Log = append(s.Log, "credit")
		return nil
	})
	t.On(EventTypeOf[credited](), "audit", func(s *wallet, _ DomainEvent) error {
		s.Log = append(s.Log, "audit")
		return nil
	})
	return t
}

func newWallet(id string) *Root[wallet] {
	return NewRoot("wallet", id, walletReducers(), wallet{})
}

func TestRoot_Apply(t *testing.T) {
	w := newWallet("w-1")
	ev := NewEvent(credited{Amount: 100})

	require.NoError(t, w.Apply(ev))
	require.Equal(t, 100, w.State().Balance)
	require.Equal(t, Version(1), w.GetVersion())
	require.Len(t, w.PendingEvents(), 1)
	require.True(t, w.IsApplied(ev.Metadata.EventID))

	meta := ev.EventMeta()
	assert.Equal(t, "w-1", meta.AggregateID)
	assert.Equal(t, "wallet", meta.AggregateType)
	assert.Equal(t, Version(1), meta.Version)
}

func TestRoot_Apply_Idempotent(t *testing.T) {
	w := newWallet("w-1")
	ev := NewEvent(credited{Amount: 10})

	require.NoError(t, w.Apply(ev))
	pending, state := w.PendingEvents(), w.State()

	require.NoError(t, w.Apply(ev))
	require.Equal(t, pending, w.PendingEvents())
	require.Equal(t, state, w.State())
	require.Equal(t, Version(1), w.GetVersion())
}

func TestRoot_Apply_AssignsMissingID(t *testing.T) {
	w := newWallet("w-1")
	ev := &Event[credited]{Type: EventTypeOf[credited](), Data: credited{Amount: 1}}

	require.NoError(t, w.Apply(ev))
	require.NotEmpty(t, ev.Metadata.EventID)
	require.True(t, w.IsApplied(ev.Metadata.EventID))
}

func TestRoot_Apply_Nil(t *testing.T) {
	require.ErrorIs(t, newWallet("w").Apply(nil), ErrNilEvent)
}

func TestRoot_Apply_ReducerOrder(t *testing.T) {
	w := newWallet("w-1")
	require.NoError(t, w.Apply(NewEvent(credited{Amount: 5})))
	require.Equal(t, []string{"credit", "audit", "OnCredited"}, w.State().Log)
	require.Equal(t, []string{"credit", "audit", "OnCredited"}, w.Reducers().Reducers("wallet.Credited"))
}

func TestRoot_Apply_ReducerErrorAborts(t *testing.T) {
	w := newWallet("w-1")
	ev := NewEvent(debited{Amount: 5})

	err := w.Apply(ev)
	require.ErrorIs(t, err, errInsufficient)
	require.Empty(t, w.PendingEvents())
	require.False(t, w.IsApplied(ev.Metadata.EventID))
	require.Equal(t, Version(0), w.GetVersion())

	require.NoError(t, w.Apply(NewEvent(credited{Amount: 10})))
	require.NoError(t, w.Apply(ev), "same event succeeds once funds exist")
	require.Equal(t, 5, w.State().Balance)
}

func TestRoot_Apply_FailedReducerLeavesStateUntouched(t *testing.T) {
	tbl := walletReducers()
	tbl.On(EventTypeOf[debited](), "fee", func(s *wallet, _ DomainEvent) error {
		s.Balance--
		return nil
	})
	w := NewRoot("wallet", "w-1", tbl, wallet{})
	require.NoError(t, w.Apply(NewEvent(credited{Amount: 3})))
	before := w.State()

	// fee runs, then OnDebited rejects the debit
	ev := NewEvent(debited{Amount: 5})
	require.ErrorIs(t, w.Apply(ev), errInsufficient)
	require.Equal(t, before, w.State())

	require.NoError(t, w.Apply(NewEvent(credited{Amount: 10})))
	require.NoError(t, w.Apply(ev))
	require.Equal(t, 7, w.State().Balance, "the fee is charged once")
}

func TestRoot_Apply_UnhandledEvent(t *testing.T) {
	w := newWallet("w-1")
	require.NoError(t, w.Apply(NewEvent(frozen{})))
	require.Len(t, w.PendingEvents(), 1)
	require.Empty(t, w.Reducers().Reducers("wallet.Frozen"))
}

func TestRoot_ClearEvents(t *testing.T) {
	w := newWallet("w-1")
	ev := NewEvent(credited{Amount: 10})
	require.NoError(t, w.Apply(ev))

	w.ClearEvents()
	require.Empty(t, w.PendingEvents())
	require.False(t, w.IsApplied(ev.Metadata.EventID))
}

func TestRoot_PendingEventsIsCopy(t *testing.T) {
	w := newWallet("w-1")
	require.NoError(t, w.Apply(NewEvent(credited{Amount: 10})))

	p := w.PendingEvents()
	p[0] = nil
	require.NotNil(t, w.PendingEvents()[0])
}

func TestRoot_NewRoot_GeneratesID(t *testing.T) {
	require.NotEmpty(t, NewRoot[wallet]("wallet", "", nil, wallet{}).GetID())
}

func TestRoot_SerializeRoundTrip(t *testing.T) {
	w := newWallet("w-1")
	require.NoError(t, w.Apply(NewEvent(credited{Amount: 30})))
	require.NoError(t, w.Apply(NewEvent(debited{Amount: 10})))

	data, err := w.Serialize()
	require.NoError(t, err)
	require.NotContains(t, string(data), "event_id", "pending events are not serialized")

	w2 := newWallet("w-1")
	require.NoError(t, w2.Deserialize(data))
	data2, err := w2.Serialize()
	require.NoError(t, err)
	require.JSONEq(t, string(data), string(data2))
	require.Empty(t, w2.PendingEvents())

	viaJSON, err := w.MarshalJSON()
	require.NoError(t, err)
	require.Equal(t, data, viaJSON)

	require.Error(t, w2.Deserialize([]byte("{")))
}

func TestReplayMatchesSnapshot(t *testing.T) {
	history := []DomainEvent{
		NewEvent(credited{Amount: 50}),
		NewEvent(debited{Amount: 20}),
		NewEvent(credited{Amount: 5}),
	}

	live := newWallet("w-1")
	for _, ev := range history {
		require.NoError(t, live.Apply(ev))
	}
	ss, err := CreateSnapshot(live)
	require.NoError(t, err)
	require.Equal(t, Version(3), ss.ObjVersion)

	replayed := newWallet("w-1")
	for _, ev := range history {
		require.NoError(t, replayed.Apply(ev))
	}
	replayed.ClearEvents()

	restored := newWallet("w-1")
	require.NoError(t, RestoreSnapshot(restored, ss))

	require.Equal(t, replayed.State(), restored.State())
	require.Equal(t, replayed.GetVersion(), restored.GetVersion())
	require.Equal(t, 35, restored.State().Balance)
}

func TestRestoreSnapshot_UnsupportedEncoding(t *testing.T) {
	err := RestoreSnapshot(newWallet("w"), &Snapshot{Encoding: "gob", Data: []byte(`{}`)})
	require.Error(t, err)
}

func TestEventTypeOf(t *testing.T) {
	require.Equal(t, "wallet.Credited", EventTypeOf[credited]())

	type plain struct{}
	require.Equal(t, "github.com/codewandler/cqrskit/core/es.plain", EventTypeOf[plain]())
	require.Equal(t, "OnPlain", ConventionName(EventTypeOf[plain]()))
}

func TestNewEvent_Options(t *testing.T) {
	ev := NewEvent(credited{Amount: 1},
		WithEventID("e-1"),
		WithAggregate("wallet", "w-1"),
		WithUserID("u-1"),
		WithCorrelationID("c-1"),
	)
	require.Equal(t, "wallet.Credited", ev.EventType())
	require.Equal(t, credited{Amount: 1}, ev.Payload())
	require.Equal(t, EventMetadata{
		EventID:       "e-1",
		Timestamp:     ev.Metadata.Timestamp,
		AggregateID:   "w-1",
		AggregateType: "wallet",
		UserID:        "u-1",
		CorrelationID: "c-1",
	}, ev.Metadata)
	require.False(t, ev.Metadata.Timestamp.IsZero())
}

func TestRoot_LogAttrs(t *testing.T) {
	w := newWallet("w-1")
	require.NoError(t, w.Apply(NewEvent(credited{Amount: 1})))

	var buf bytes.Buffer
	slog.New(slog.NewTextHandler(&buf, nil)).Info("applied", w.LogAttrs())
	require.Contains(t, buf.String(), "agg.type=wallet agg.id=w-1 agg.version=1")
}
