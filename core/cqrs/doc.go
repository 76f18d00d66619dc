// Package cqrs turns commands into committed domain events.
//
// A [Dispatcher] runs each command through an ordered chain of [Middleware]
// into the [Pipeline], which resolves the command against a [Registry],
// hydrates the target aggregate from its snapshot or event log, executes the
// handler, applies and persists the resulting events. Committed events are
// then fanned out to the event sinks bound to their type by a [SinkExecutor].
//
//	reg := cqrs.NewRegistry()
//	bank.Register(reg)
//
//	f := cqrs.NewFactory(es.NewInMemoryStateStore(), es.NewInMemoryEventStore())
//	bank.Provide(f)
//
//	d := cqrs.NewDispatcher(reg, f, cqrs.WithMiddlewares(cqrs.NewLogMiddleware(log)))
//	res, err := d.Dispatch(ctx, cqrs.NewCommand(bank.Deposit{Amount: 100}, "acc-1"))
//
// Failures are classified as [InputError], [StoreError], [HandlerError] and
// [SinkError]; match them with errors.Is against [ErrInput], [ErrStore],
// [ErrHandler] and [ErrSink].
package cqrs
