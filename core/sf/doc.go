// Package sf deduplicates concurrent calls that share a key.
//
// While a call for a key is in flight, later callers with the same key wait
// for it and receive its result instead of running their own. The state
// stores use it so that a burst of commands for a cold aggregate loads the
// snapshot once.
//
//	g := sf.New[*es.Snapshot]()
//	ss, err := g.Do("account/acc-1", func() (*es.Snapshot, error) {
//		return store.Get(ctx, "account", "acc-1")
//	})
package sf
