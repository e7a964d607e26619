package pipeline

import (
	"sync"

	"github.com/roach88/flowstate/internal/anim"
	"github.com/roach88/flowstate/internal/data"
	"github.com/roach88/flowstate/internal/future"
	"github.com/roach88/flowstate/internal/notify"
)

// Modifier is a reusable, parameterized transformation. One modifier may be
// applied in several pipelines; per-pipeline state lives in the
// ModifierApplication.
type Modifier interface {
	Title() string
	Enabled() bool

	// Events is notified when parameters change or the modifier is
	// switched on or off.
	Events() *notify.Target

	// ValidityInterval returns how long the output stays unchanged for a
	// fixed input. Embed ModifierBase for the unbounded default.
	ValidityInterval(req Request, app *ModifierApplication) anim.Interval

	// Evaluate transforms state, a fork of the input that the modifier
	// owns. Expected failures are returned as *data.DomainError.
	Evaluate(req Request, app *ModifierApplication, state *data.FlowState) *future.Future[*data.FlowState]
}

// SyncEvaluator is implemented by modifiers that compute in place without
// asynchronous work. See EvaluateSynchronously.
type SyncEvaluator interface {
	EvaluateSynchronous(t anim.TimePoint, app *ModifierApplication, state *data.FlowState) error
}

// PreliminaryEvaluator computes a quick approximation of the output from
// the upstream's preliminary state.
type PreliminaryEvaluator interface {
	EvaluatePreliminary(t anim.TimePoint, app *ModifierApplication, state *data.FlowState) error
}

// ChangeScoper is implemented by modifiers that can name the cached output
// surviving an upstream change over changed. Without it every upstream
// change invalidates the whole cache.
type ChangeScoper interface {
	KeepInterval(changed, cached anim.Interval) anim.Interval
}

// ApplicationCreator lets a modifier prepare the applications bound to it,
// e.g. to attach per-slot state.
type ApplicationCreator interface {
	CreateApplication(ds *Dataset) *ModifierApplication
}

// PreliminaryUpdater is implemented by modifiers whose applications should
// announce a preliminary state as soon as their own evaluation finishes.
type PreliminaryUpdater interface {
	PerformPreliminaryUpdateAfterEvaluation() bool
}

// EvaluateSynchronously runs m in place on state and wraps the outcome in a
// resolved future.
func EvaluateSynchronously(m SyncEvaluator, req Request, app *ModifierApplication, state *data.FlowState) *future.Future[*data.FlowState] {
	if err := m.EvaluateSynchronous(req.Time, app, state); err != nil {
		return future.Failed[*data.FlowState](err)
	}
	return future.Resolved(state)
}

// ModifierBase implements the bookkeeping part of Modifier. Embed it and
// add Evaluate. The zero value is an enabled modifier without title.
type ModifierBase struct {
	notify.Target
	mu       sync.RWMutex
	title    string
	disabled bool
}

func (b *ModifierBase) Title() string {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.title
}

func (b *ModifierBase) SetTitle(title string) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.title = title
}

func (b *ModifierBase) Enabled() bool {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return !b.disabled
}

// SetEnabled switches the modifier on or off. Applications invalidate
// their caches in response.
func (b *ModifierBase) SetEnabled(on bool) {
	b.mu.Lock()
	changed := b.disabled == on
	b.disabled = !on
	b.mu.Unlock()
	if changed {
		b.NotifyDependents(notify.Of(notify.TargetEnabledOrDisabled))
	}
}

func (b *ModifierBase) Events() *notify.Target { return &b.Target }

// NotifyChanged tells every application that the parameters changed.
func (b *ModifierBase) NotifyChanged() {
	b.NotifyDependents(notify.Changed())
}

// ValidityInterval returns the unbounded interval.
func (b *ModifierBase) ValidityInterval(Request, *ModifierApplication) anim.Interval {
	return anim.Infinite()
}
