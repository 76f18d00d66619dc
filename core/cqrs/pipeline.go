package cqrs

import (
	"context"
	"errors"
	"log/slog"

	"github.com/codewandler/cqrskit/core/es"
)

// Result is the outcome of a committed command.
type Result struct {
	Aggregate es.Aggregate
	// Events are the committed events in commit order.
	Events []es.DomainEvent
}

// StateOf returns the state of the result's aggregate if it is an
// *es.Root[S].
func StateOf[S any](res *Result) (S, bool) {
	var zero S
	if res == nil {
		return zero, false
	}
	root, ok := res.Aggregate.(*es.Root[S])
	if !ok {
		return zero, false
	}
	return root.State(), true
}

// Processor handles one command end to end, without sinks.
type Processor interface {
	Handle(ctx context.Context, cmd Command) (*Result, error)
}

// Pipeline hydrates, executes, applies and persists one command at a time.
//
// A nil state store disables snapshots; the aggregate is then always
// replayed from the event store. A nil event store keeps snapshots only.
type Pipeline struct {
	log          *slog.Logger
	registry     *Registry
	factory      HandlerFactory
	metrics      Metrics
	versionCheck bool
}

func NewPipeline(registry *Registry, factory HandlerFactory, opts ...PipelineOption) *Pipeline {
	options := pipelineOpts{log: slog.Default(), metrics: NopMetrics()}
	for _, opt := range opts {
		opt.applyToPipeline(&options)
	}
	return &Pipeline{
		log:          options.log.With(slog.String("component", "pipeline")),
		registry:     registry,
		factory:      factory,
		metrics:      options.metrics,
		versionCheck: options.versionCheck,
	}
}

func (p *Pipeline) Handle(ctx context.Context, cmd Command) (*Result, error) {
	setStage(ctx, StageReceived)
	res, err := p.registry.Resolve(cmd, p.factory)
	if err != nil {
		return nil, err
	}

	agg := res.NewAggregate()
	log := p.log.With(
		slog.Group("agg", slog.String("type", res.AggregateType), slog.String("id", res.AggregateID)),
		slog.String("cmd", cmd.CommandType()),
	)

	setStage(ctx, StageHydrating)
	if err := p.hydrate(ctx, log, agg); err != nil {
		return nil, err
	}
	base := agg.GetVersion()

	setStage(ctx, StageExecuting)
	events, err := res.Handler.Execute(ctx, agg, cmd)
	if err != nil {
		return nil, &HandlerError{Stage: StageExecuting, CommandType: cmd.CommandType(), Handler: res.Target, Err: err}
	}

	setStage(ctx, StageApplying)
	for _, ev := range events {
		if ev == nil {
			continue
		}
		if err := agg.Apply(ev); err != nil {
			return nil, &HandlerError{Stage: StageApplying, CommandType: cmd.CommandType(), Handler: res.Target, Err: err}
		}
	}

	setStage(ctx, StagePersisting)
	committed := agg.PendingEvents()
	if err := p.persist(ctx, log, agg, base, committed); err != nil {
		log.Error("persist failed", slog.Any("error", err))
		return nil, err
	}
	agg.ClearEvents()
	p.metrics.EventsCommitted(res.AggregateType, len(committed))

	log.Debug(
		"command committed",
		slog.String("target", res.Target),
		slog.Int("events", len(committed)),
		agg.GetVersion().SlogAttr(),
	)
	return &Result{Aggregate: agg, Events: committed}, nil
}

func (p *Pipeline) hydrate(ctx context.Context, log *slog.Logger, agg es.Aggregate) error {
	aggType, aggID := agg.GetAggType(), agg.GetID()
	storeErr := func(op string, err error) error {
		return &StoreError{Stage: StageHydrating, Op: op, AggregateType: aggType, AggregateID: aggID, Err: err}
	}

	if states := p.factory.StateStore(); states != nil {
		ss, err := states.Get(ctx, aggType, aggID)
		switch {
		case err == nil:
			if err := es.RestoreSnapshot(agg, ss); err != nil {
				return storeErr("restore snapshot", err)
			}
			log.Debug("hydrated from snapshot", ss.LogAttrs())
			return p.catchUp(ctx, log, agg, storeErr)
		case !errors.Is(err, es.ErrSnapshotNotFound):
			return storeErr("get snapshot", err)
		}
	}

	events := p.factory.EventStore()
	if events == nil {
		return nil
	}
	history, err := events.Load(ctx, aggType, aggID)
	if err != nil {
		return storeErr("load events", err)
	}
	for _, ev := range history {
		if err := agg.Apply(ev); err != nil {
			return storeErr("replay events", err)
		}
	}
	agg.ClearEvents()
	if len(history) > 0 {
		log.Debug("hydrated from events", slog.Int("events", len(history)))
	}
	return nil
}

// catchUp replays the events committed after the restored snapshot. Only
// the version-checked path commits to the log before saving the snapshot, so
// only there can the snapshot lag behind.
func (p *Pipeline) catchUp(ctx context.Context, log *slog.Logger, agg es.Aggregate, storeErr func(string, error) error) error {
	if !p.versionCheck {
		return nil
	}
	events, ok := p.factory.EventStore().(es.VersionedEventStore)
	if !ok {
		return nil
	}
	tail, err := es.LoadAfter(ctx, events, agg.GetAggType(), agg.GetID(), agg.GetVersion())
	if err != nil {
		return storeErr("load events", err)
	}
	for _, ev := range tail {
		if err := agg.Apply(ev); err != nil {
			return storeErr("replay events", err)
		}
	}
	agg.ClearEvents()
	if len(tail) > 0 {
		log.Debug("snapshot behind log, replayed tail", slog.Int("events", len(tail)), agg.GetVersion().SlogAttr())
	}
	return nil
}

// persist saves the snapshot, then appends the events. With a version
// check the conditional append comes first so that a conflict leaves both
// stores untouched; the append is then the commit point, and a snapshot
// that fails to save afterwards is caught up from the log on the next
// hydrate.
func (p *Pipeline) persist(ctx context.Context, log *slog.Logger, agg es.Aggregate, base es.Version, events []es.DomainEvent) error {
	aggType, aggID := agg.GetAggType(), agg.GetID()
	storeErr := func(op string, err error) error {
		return &StoreError{Stage: StagePersisting, Op: op, AggregateType: aggType, AggregateID: aggID, Err: err}
	}

	saveSnapshot := func() error {
		states := p.factory.StateStore()
		if states == nil {
			return nil
		}
		ss, err := es.CreateSnapshot(agg)
		if err != nil {
			return storeErr("create snapshot", err)
		}
		if err := states.Save(ctx, aggType, aggID, ss); err != nil {
			return storeErr("save snapshot", err)
		}
		return nil
	}

	store := p.factory.EventStore()
	if p.versionCheck {
		if vs, ok := store.(es.VersionedEventStore); ok {
			if err := vs.AppendExpect(ctx, aggType, aggID, base, events); err != nil {
				return &StoreError{
					Stage:         StagePersisting,
					Op:            "append events",
					AggregateType: aggType,
					AggregateID:   aggID,
					Conditional:   true,
					Err:           err,
				}
			}
			if err := saveSnapshot(); err != nil {
				log.Warn("events committed, snapshot not saved", slog.Any("error", err))
			}
			return nil
		}
	}

	if err := saveSnapshot(); err != nil {
		return err
	}
	if store == nil || len(events) == 0 {
		return nil
	}
	if err := store.Append(ctx, aggType, aggID, events); err != nil {
		return storeErr("append events", err)
	}
	return nil
}

var _ Processor = (*Pipeline)(nil)
