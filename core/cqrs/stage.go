package cqrs

import (
	"context"
	"sync/atomic"
)

// Stage is the lifecycle position of a dispatched command.
type Stage int32

const (
	StageReceived Stage = iota
	StageHydrating
	StageExecuting
	StageApplying
	StagePersisting
	StageSinksRunning
	StageCompleted
	StageFailed
)

var stageNames = [...]string{
	StageReceived:     "received",
	StageHydrating:    "hydrating",
	StageExecuting:    "executing",
	StageApplying:     "applying",
	StagePersisting:   "persisting",
	StageSinksRunning: "sinks_running",
	StageCompleted:    "completed",
	StageFailed:       "failed",
}

func (s Stage) String() string {
	if s < 0 || int(s) >= len(stageNames) {
		return "unknown"
	}
	return stageNames[s]
}

type stageTracker struct{ v atomic.Int32 }

func (t *stageTracker) set(s Stage) { t.v.Store(int32(s)) }
func (t *stageTracker) get() Stage  { return Stage(t.v.Load()) }

type stageKey struct{}

func withStageTracker(ctx context.Context) (context.Context, *stageTracker) {
	t := &stageTracker{}
	return context.WithValue(ctx, stageKey{}, t), t
}

// setStage records s on the tracker carried by ctx, if any.
func setStage(ctx context.Context, s Stage) {
	if t, ok := ctx.Value(stageKey{}).(*stageTracker); ok {
		t.set(s)
	}
}

// CurrentStage reports the stage of the dispatch ctx belongs to.
func CurrentStage(ctx context.Context) (Stage, bool) {
	t, ok := ctx.Value(stageKey{}).(*stageTracker)
	if !ok {
		return 0, false
	}
	return t.get(), true
}
