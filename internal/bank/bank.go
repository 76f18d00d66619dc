// Package bank is a small account domain: deposits go through an external
// command handler, withdrawals through an aggregate method, and committed
// events feed a ledger and a large-deposit alert.
package bank

import (
	"context"
	"errors"
	"fmt"

	"github.com/codewandler/cqrskit/core/cqrs"
	"github.com/codewandler/cqrskit/core/es"
)

const (
	AggregateType = "account"

	DepositHandlerType = "bank.DepositHandler"
	LedgerSinkType     = "bank.Ledger"
	AlertSinkType      = "bank.LargeDepositAlert"
)

var (
	ErrInvalidAmount     = errors.New("amount must be positive")
	ErrInsufficientFunds = errors.New("insufficient funds")
	ErrLimitExceeded     = errors.New("deposit limit exceeded")
)

type Account struct {
	Value    int `json:"value"`
	Deposits int `json:"deposits,omitempty"`
}

// OnWithdrawn is the convention reducer for bank.Withdrawn.
func (a *Account) OnWithdrawn(ev *es.Event[Withdrawn]) {
	a.Value -= ev.Data.Amount
}

// events

type Deposited struct {
	Amount int `json:"amount"`
}

func (Deposited) EventType() string { return "bank.Deposited" }

type Withdrawn struct {
	Amount int `json:"amount"`
}

func (Withdrawn) EventType() string { return "bank.Withdrawn" }

// commands

type Deposit struct {
	Amount int `json:"amount"`
}

func (Deposit) CommandType() string { return "bank.Deposit" }

type Withdraw struct {
	Amount int `json:"amount"`
}

func (Withdraw) CommandType() string { return "bank.Withdraw" }

func Reducers() *es.ReducerTable[Account] {
	t := es.NewReducerTable[Account]()
	es.OnEvent(t, "deposit", func(a *Account, ev *es.Event[Deposited]) error {
		a.Value += ev.Data.Amount
		a.Deposits++
		return nil
	})
	return t
}

func Definition() *cqrs.AggregateDef[Account] {
	def := cqrs.DefineAggregate(AggregateType, Reducers(), nil)
	return cqrs.HandleCommand(def, "Withdraw", withdraw)
}

// withdraw applies its event itself and returns none.
func withdraw(_ context.Context, acc *es.Root[Account], cmd *cqrs.Cmd[Withdraw]) ([]es.DomainEvent, error) {
	amount := cmd.Data.Amount
	if amount <= 0 {
		return nil, ErrInvalidAmount
	}
	if acc.State().Value < amount {
		return nil, fmt.Errorf("%w: have %d, want %d", ErrInsufficientFunds, acc.State().Value, amount)
	}
	return nil, acc.Apply(cqrs.EventFor(cmd, Withdrawn{Amount: amount}))
}

// DepositHandler handles bank.Deposit. A positive Limit caps single deposits.
type DepositHandler struct {
	Limit int
}

func (h *DepositHandler) Execute(ctx context.Context, agg es.Aggregate, cmd cqrs.Command) ([]es.DomainEvent, error) {
	return cqrs.Typed(h.deposit).Execute(ctx, agg, cmd)
}

func (h *DepositHandler) deposit(_ context.Context, _ *es.Root[Account], cmd *cqrs.Cmd[Deposit]) ([]es.DomainEvent, error) {
	amount := cmd.Data.Amount
	if amount <= 0 {
		return nil, ErrInvalidAmount
	}
	if h.Limit > 0 && amount > h.Limit {
		return nil, fmt.Errorf("%w: %d > %d", ErrLimitExceeded, amount, h.Limit)
	}
	return []es.DomainEvent{cqrs.EventFor(cmd, Deposited{Amount: amount})}, nil
}

// Register binds the account aggregate, its commands and sinks.
func Register(r *cqrs.Registry) {
	r.RegisterAggregate(Definition())
	cqrs.Bind[Deposit](r, AggregateType, cqrs.WithHandler(DepositHandlerType))
	cqrs.SinkFor[Deposited](r, LedgerSinkType)
	cqrs.SinkFor[Withdrawn](r, LedgerSinkType)
	cqrs.SinkFor[Deposited](r, AlertSinkType)
}

// RegisterEvents makes the bank events decodable by durable stores.
func RegisterEvents(r *es.EventRegistry) {
	es.RegisterEvent[Deposited](r)
	es.RegisterEvent[Withdrawn](r)
}

// Provide registers the deposit handler and the given sinks. Nil sinks are
// left unprovided and skipped at dispatch.
func Provide(f *cqrs.Factory, ledger *Ledger, alert *LargeDepositAlert) {
	f.Provide(DepositHandlerType, func() any { return &DepositHandler{} })
	if ledger != nil {
		f.ProvideValue(LedgerSinkType, ledger)
	}
	if alert != nil {
		f.ProvideValue(AlertSinkType, alert)
	}
}
