// Package metrics defines the instrument interfaces the core packages record
// into. Backends such as adapters/prometheus implement them.
package metrics

// Timer records the time elapsed since it was created, allowing
//
//	defer m.DispatchDuration("bank.Deposit").ObserveDuration()
type Timer interface {
	ObserveDuration()
}
