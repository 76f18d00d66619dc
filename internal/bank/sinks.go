package bank

import (
	"context"
	"sync"

	"github.com/codewandler/cqrskit/core/cqrs"
	"github.com/codewandler/cqrskit/core/es"
)

type LedgerLine struct {
	AccountID string
	EventID   string
	Delta     int
}

// Ledger records every balance change.
type Ledger struct {
	mu    sync.Mutex
	lines []LedgerLine
}

func NewLedger() *Ledger { return &Ledger{} }

func (l *Ledger) Handle(_ context.Context, ev es.DomainEvent, agg es.Aggregate, _ cqrs.Command) error {
	line := LedgerLine{AccountID: agg.GetID(), EventID: ev.EventMeta().EventID}
	switch p := ev.Payload().(type) {
	case Deposited:
		line.Delta = p.Amount
	case Withdrawn:
		line.Delta = -p.Amount
	default:
		return nil
	}
	l.mu.Lock()
	l.lines = append(l.lines, line)
	l.mu.Unlock()
	return nil
}

func (l *Ledger) Lines() []LedgerLine {
	l.mu.Lock()
	defer l.mu.Unlock()
	out := make([]LedgerLine, len(l.lines))
	copy(out, l.lines)
	return out
}

// LargeDepositAlert fires for deposits of at least Threshold.
type LargeDepositAlert struct {
	Threshold int

	mu     sync.Mutex
	alerts []string
}

func (a *LargeDepositAlert) CouldBeTriggered(_ context.Context, ev es.DomainEvent, _ es.Aggregate) (bool, error) {
	d, ok := ev.Payload().(Deposited)
	return ok && d.Amount >= a.Threshold, nil
}

func (a *LargeDepositAlert) Handle(_ context.Context, ev es.DomainEvent, agg es.Aggregate, _ cqrs.Command) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.alerts = append(a.alerts, agg.GetID()+"/"+ev.EventMeta().EventID)
	return nil
}

// Alerts returns "<account>/<event id>" per alert raised.
func (a *LargeDepositAlert) Alerts() []string {
	a.mu.Lock()
	defer a.mu.Unlock()
	out := make([]string, len(a.alerts))
	copy(out, a.alerts)
	return out
}

var (
	_ cqrs.Sink        = (*Ledger)(nil)
	_ cqrs.Sink        = (*LargeDepositAlert)(nil)
	_ cqrs.Triggerable = (*LargeDepositAlert)(nil)
)
