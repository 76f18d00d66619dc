// Package es contains the event-sourcing half of the kernel: domain events,
// the aggregate root that applies them, reducer tables, snapshots, and the
// store interfaces that persist both.
//
// # Aggregates
//
// An aggregate is a [Root] over a plain state struct. All state changes go
// through [Root.Apply], which runs the reducers registered in a
// [ReducerTable] for the event's type:
//
//	reducers := es.NewReducerTable[Account]()
//	es.OnEvent(reducers, "credit", func(s *Account, ev *es.Event[Deposited]) error {
//		s.Value += ev.Data.Amount
//		return nil
//	})
//	acc := es.NewRoot("account", "acc-1", reducers, Account{})
//	_ = acc.Apply(es.NewEvent(Deposited{Amount: 100}))
//
// Besides explicit reducers, methods on *S named On<EventName> are picked up
// by convention and run after the explicit ones.
//
// Applying is idempotent by event id: an event whose id was already applied
// to this instance is ignored. Applied events collect in a pending buffer
// until [Root.ClearEvents].
//
// # Stores
//
// [EventStore] holds the ordered event log per aggregate, [StateStore] holds
// the latest [Snapshot]. In-memory, key-value and cached implementations live
// here; durable backends are in the adapters packages.
package es
