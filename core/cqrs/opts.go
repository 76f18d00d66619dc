package cqrs

import "log/slog"

type (
	valueOption[T any] struct{ v T }
	LogOption          valueOption[*slog.Logger]
	MetricsOption      valueOption[Metrics]
	FailFastOption     struct{}
	VersionCheckOption struct{}
	MiddlewaresOption  valueOption[[]Middleware]
	SinkRunnerOption   valueOption[SinkRunner]
	ProcessorOption    valueOption[Processor]
	TraceOption        valueOption[TraceFunc]
)

func WithLog(l *slog.Logger) LogOption               { return LogOption{v: l} }
func WithMetrics(m Metrics) MetricsOption            { return MetricsOption{v: m} }
func WithFailFast() FailFastOption                   { return FailFastOption{} }
func WithVersionCheck() VersionCheckOption           { return VersionCheckOption{} }
func WithSinkExecutor(s SinkRunner) SinkRunnerOption { return SinkRunnerOption{v: s} }
func WithPipeline(p Processor) ProcessorOption       { return ProcessorOption{v: p} }

// WithMiddlewares appends mws to the dispatcher's chain. The first runs
// outermost.
func WithMiddlewares(mws ...Middleware) MiddlewaresOption { return MiddlewaresOption{v: mws} }

// WithDispatcherTrace observes every dispatch.
func WithDispatcherTrace(fn TraceFunc) TraceOption { return TraceOption{v: fn} }

// WithTrace observes a single dispatch.
func WithTrace(fn TraceFunc) DispatchOption { return dispatchTraceOption{fn: fn} }

type (
	pipelineOpts struct {
		log          *slog.Logger
		metrics      Metrics
		versionCheck bool
	}
	PipelineOption interface{ applyToPipeline(*pipelineOpts) }

	sinkExecutorOpts struct {
		log      *slog.Logger
		metrics  Metrics
		failFast bool
	}
	SinkExecutorOption interface{ applyToSinkExecutor(*sinkExecutorOpts) }

	dispatcherOpts struct {
		log         *slog.Logger
		metrics     Metrics
		middlewares []Middleware
		sinks       SinkRunner
		pipeline    Processor
		trace       TraceFunc
		failFast    bool
		version     bool
	}
	DispatcherOption interface{ applyToDispatcher(*dispatcherOpts) }

	dispatchOpts        struct{ trace TraceFunc }
	DispatchOption      interface{ applyToDispatch(*dispatchOpts) }
	dispatchTraceOption struct{ fn TraceFunc }
)

func (o LogOption) applyToPipeline(p *pipelineOpts)              { p.log = o.v }
func (o MetricsOption) applyToPipeline(p *pipelineOpts)          { p.metrics = o.v }
func (o VersionCheckOption) applyToPipeline(p *pipelineOpts)     { p.versionCheck = true }
func (o LogOption) applyToSinkExecutor(s *sinkExecutorOpts)      { s.log = o.v }
func (o MetricsOption) applyToSinkExecutor(s *sinkExecutorOpts)  { s.metrics = o.v }
func (o FailFastOption) applyToSinkExecutor(s *sinkExecutorOpts) { s.failFast = true }
func (o LogOption) applyToDispatcher(d *dispatcherOpts)          { d.log = o.v }
func (o MetricsOption) applyToDispatcher(d *dispatcherOpts)      { d.metrics = o.v }
func (o FailFastOption) applyToDispatcher(d *dispatcherOpts)     { d.failFast = true }
func (o VersionCheckOption) applyToDispatcher(d *dispatcherOpts) { d.version = true }
func (o SinkRunnerOption) applyToDispatcher(d *dispatcherOpts)   { d.sinks = o.v }
func (o ProcessorOption) applyToDispatcher(d *dispatcherOpts)    { d.pipeline = o.v }
func (o TraceOption) applyToDispatcher(d *dispatcherOpts)        { d.trace = o.v }
func (o dispatchTraceOption) applyToDispatch(d *dispatchOpts)    { d.trace = o.fn }
func (o MiddlewaresOption) applyToDispatcher(d *dispatcherOpts) {
	d.middlewares = append(d.middlewares, o.v...)
}
