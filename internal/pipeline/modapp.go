package pipeline

import (
	"context"
	"errors"
	"sync"

	"github.com/roach88/flowstate/internal/anim"
	"github.com/roach88/flowstate/internal/data"
	"github.com/roach88/flowstate/internal/future"
	"github.com/roach88/flowstate/internal/notify"
)

// ModifierApplication binds a modifier to one slot of a pipeline. It reads
// its input node, applies the modifier and caches the result.
type ModifierApplication struct {
	nodeBase

	mu       sync.Mutex
	modifier Modifier
	input    Node
	status   data.Status
	pending  int
	slot     any

	// The receivers are owned here; upstream targets hold them weakly.
	inputRecv    *notify.Receiver
	modifierRecv *notify.Receiver
}

// NewModifierApplication creates an application of mod without input.
// Modifiers implementing ApplicationCreator should be applied through
// Apply instead.
func NewModifierApplication(ds *Dataset, mod Modifier) *ModifierApplication {
	title := "application"
	if mod != nil {
		title = mod.Title()
	}
	a := &ModifierApplication{nodeBase: newNodeBase(ds, title)}
	a.inputRecv = notify.NewReceiver(a.handleInputEvent)
	a.modifierRecv = notify.NewReceiver(a.handleModifierEvent)
	a.modifier = mod
	if mod != nil {
		mod.Events().AddDependent(a.modifierRecv)
	}
	ds.registerApplication(a)
	return a
}

// Apply creates the application for mod, letting the modifier build it
// when it implements ApplicationCreator.
func Apply(ds *Dataset, mod Modifier) *ModifierApplication {
	if creator, ok := mod.(ApplicationCreator); ok {
		if app := creator.CreateApplication(ds); app != nil {
			return app
		}
	}
	return NewModifierApplication(ds, mod)
}

// Title returns the modifier's current title.
func (a *ModifierApplication) Title() string {
	if mod := a.Modifier(); mod != nil {
		return mod.Title()
	}
	return a.title
}

// Modifier returns the bound modifier.
func (a *ModifierApplication) Modifier() Modifier {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.modifier
}

// Input returns the upstream node, or nil.
func (a *ModifierApplication) Input() Node {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.input
}

// Upstream implements Node.
func (a *ModifierApplication) Upstream() Node { return a.Input() }

// SetInput links the application to input. It fails with a cycle error
// when input already depends on the application.
func (a *ModifierApplication) SetInput(input Node) error {
	if input != nil && dependsOn(input, a) {
		return NewCycleError(a.Title(), input.Title())
	}

	a.mu.Lock()
	old := a.input
	a.input = input
	a.mu.Unlock()

	if old == input {
		return nil
	}
	if old != nil {
		old.Events().RemoveDependent(a.inputRecv)
	}
	if input != nil {
		input.Events().AddDependent(a.inputRecv)
	}
	a.cache.Invalidate(anim.Empty())
	a.NotifyDependents(notify.Changed())
	return nil
}

// SlotState returns the per-slot state attached by the modifier.
func (a *ModifierApplication) SlotState() any {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.slot
}

// SetSlotState attaches per-slot state.
func (a *ModifierApplication) SetSlotState(v any) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.slot = v
}

// Status returns Pending while the modifier is computing and the status of
// the last finished evaluation otherwise. Waiting on upstream nodes does
// not count.
func (a *ModifierApplication) Status() data.Status {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.pending > 0 {
		return data.Pending()
	}
	return a.status
}

func (a *ModifierApplication) handleInputEvent(ev notify.Event) {
	switch ev.Kind {
	case notify.TargetChanged:
		keep := anim.Empty()
		forward := notify.Changed()
		if scoper, ok := a.Modifier().(ChangeScoper); ok {
			keep = scoper.KeepInterval(ev.Changed, a.cache.Validity())
			forward = notify.ChangedOver(ev.Changed)
		}
		a.cache.Invalidate(keep)
		a.NotifyDependents(forward)
	case notify.PreliminaryStateAvailable, notify.AnimationFramesChanged, notify.PipelineChanged:
		a.NotifyDependents(notify.Of(ev.Kind))
	}
}

func (a *ModifierApplication) handleModifierEvent(ev notify.Event) {
	switch ev.Kind {
	case notify.TargetEnabledOrDisabled:
		if mod := a.Modifier(); mod != nil && !mod.Enabled() {
			a.setStatus(disabledStatus)
			a.NotifyDependents(notify.Of(notify.StatusChanged))
		}
		a.cache.Invalidate(anim.Empty())
		a.NotifyDependents(notify.Changed())
	case notify.TargetChanged:
		a.cache.Invalidate(anim.Empty())
		a.NotifyDependents(notify.Changed())
	}
}

// Evaluate returns the modifier's output for req.
func (a *ModifierApplication) Evaluate(req Request) *future.Future[*data.FlowState] {
	return a.cache.Evaluate(req, a.evaluateInternal)
}

func (a *ModifierApplication) evaluateInternal(req Request) *future.Future[*data.FlowState] {
	input := a.Input()
	if input == nil {
		st := data.EmptyFlowState()
		return future.Resolved(st)
	}

	exec := a.ds.Coordinator()

	// input state, set before the modifier runs
	var in *data.FlowState
	applied := future.ThenFuture(exec, input.Evaluate(req), func(_ context.Context, st *data.FlowState) *future.Future[*data.FlowState] {
		in = clearInputStatus(st)
		return a.applyModifier(req, in)
	})
	return future.Handle(exec, applied, func(_ context.Context, out *data.FlowState, err error) (*data.FlowState, error) {
		if err != nil {
			var de *data.DomainError
			if in == nil || !errors.As(err, &de) {
				return nil, err
			}
			a.ds.Logger().Debug("modifier reported error", "node", a.Title(), "time", req.Time, "code", de.Code)
			own := domainStatus(de)
			a.setStatus(own)
			out = in.Fork()
			out.SetStatus(data.Errorf("Modifier '%s' reported: %s", a.Title(), own.Text))
			return out, nil
		}
		if out == nil || out == in {
			if !req.BreakOnError || !in.Status().IsError() {
				a.setStatus(a.passThroughStatus())
			}
			return in, nil
		}
		own := out.Status()
		switch {
		case !in.Status().IsError():
			a.setStatus(own)
		case own.Type == data.StatusSuccess:
			a.setStatus(own)
			out.SetStatus(data.MergeStatus(in.Status(), own))
		default:
			// the upstream error is reported by the node that raised it
			a.setStatus(data.Status{})
			out.SetStatus(data.MergeStatus(in.Status(), own))
		}
		if up, ok := a.Modifier().(PreliminaryUpdater); ok && up.PerformPreliminaryUpdateAfterEvaluation() {
			a.cache.SetPreliminary(out)
			exec.Submit(func() { a.NotifyDependents(notify.Of(notify.PreliminaryStateAvailable)) })
		}
		return out, nil
	})
}

// clearInputStatus drops a non-error upstream status. Each node reports its
// own outcome; only errors travel down the pipeline.
func clearInputStatus(st *data.FlowState) *data.FlowState {
	if st == nil {
		return data.EmptyFlowState()
	}
	if s := st.Status(); s.IsError() || s == (data.Status{}) {
		return st
	}
	out := st.Fork()
	out.SetStatus(data.Status{})
	return out
}

// applyModifier runs the modifier on a fork of in, or passes in through
// when there is nothing to do. The application is Pending while the
// modifier's own future runs.
func (a *ModifierApplication) applyModifier(req Request, in *data.FlowState) *future.Future[*data.FlowState] {
	mod := a.Modifier()
	switch {
	case req.BreakOnError && in.Status().IsError():
		return future.Resolved(in)
	case mod == nil || !mod.Enabled() || in.IsEmpty():
		return future.Resolved(in)
	}
	out := in.Fork()
	out.SetStatus(data.Status{})
	out.IntersectValidity(mod.ValidityInterval(req, a))

	f := mod.Evaluate(req, a, out)
	if f.IsDone() {
		return f
	}
	a.beginPending()
	return future.Finally(a.ds.Coordinator(), f, a.endPending)
}

// passThroughStatus is the status of an application that did not run its
// modifier.
func (a *ModifierApplication) passThroughStatus() data.Status {
	if mod := a.Modifier(); mod != nil && !mod.Enabled() {
		return disabledStatus
	}
	return data.Status{}
}

var disabledStatus = data.Success("Modifier is currently disabled.")

func (a *ModifierApplication) setStatus(s data.Status) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.status = s
}

func (a *ModifierApplication) beginPending() {
	a.mu.Lock()
	a.pending++
	first := a.pending == 1
	a.mu.Unlock()
	if first {
		a.ds.Coordinator().Submit(func() { a.NotifyDependents(notify.Of(notify.StatusChanged)) })
	}
}

func (a *ModifierApplication) endPending() {
	a.mu.Lock()
	a.pending--
	last := a.pending == 0
	a.mu.Unlock()
	if last {
		a.ds.Coordinator().Submit(func() { a.NotifyDependents(notify.Of(notify.StatusChanged)) })
	}
}

// EvaluatePreliminary returns the cached output for the dataset's current
// time if there is one. Otherwise it runs the modifier's quick path on the
// upstream's preliminary state, and failing that returns the last known
// output or the upstream state itself.
func (a *ModifierApplication) EvaluatePreliminary() *data.FlowState {
	t := a.ds.Animation().Time()
	if st, ok := a.cache.Lookup(t); ok {
		return st
	}
	input := a.Input()
	if input == nil {
		return data.EmptyFlowState()
	}
	in := input.EvaluatePreliminary()
	mod := a.Modifier()
	if mod == nil || !mod.Enabled() || in.IsEmpty() {
		return in
	}

	var quick func(anim.TimePoint, *ModifierApplication, *data.FlowState) error
	switch m := mod.(type) {
	case PreliminaryEvaluator:
		quick = m.EvaluatePreliminary
	case SyncEvaluator:
		quick = m.EvaluateSynchronous
	}
	if quick != nil {
		out := in.Fork()
		out.SetStatus(data.Status{})
		if err := quick(t, a, out); err != nil {
			var de *data.DomainError
			if !errors.As(err, &de) {
				a.ds.Logger().Warn("preliminary evaluation failed", "node", a.Title(), "error", err)
				return in
			}
			out = in.Fork()
			out.SetStatus(domainStatus(de))
		}
		return out
	}
	if st := a.cache.Preliminary(); st != nil {
		return st
	}
	return in
}

// NumberOfSourceFrames passes the question to the upstream node. Without
// one the application has a single frame.
func (a *ModifierApplication) NumberOfSourceFrames() int {
	if input := a.Input(); input != nil {
		return input.NumberOfSourceFrames()
	}
	return 1
}

// SourceFrameToAnimationTime maps a source frame to animation time through
// the upstream node, or through the animation settings without one.
func (a *ModifierApplication) SourceFrameToAnimationTime(frame int) anim.TimePoint {
	if input := a.Input(); input != nil {
		return input.SourceFrameToAnimationTime(frame)
	}
	return a.ds.Animation().FrameToTime(frame)
}

// AnimationTimeToSourceFrame is the inverse of SourceFrameToAnimationTime.
func (a *ModifierApplication) AnimationTimeToSourceFrame(t anim.TimePoint) int {
	if input := a.Input(); input != nil {
		return input.AnimationTimeToSourceFrame(t)
	}
	return a.ds.Animation().TimeToFrame(t)
}

// domainStatus turns an expected modifier failure into an error status.
func domainStatus(de *data.DomainError) data.Status {
	if de.Object != "" {
		return data.Errorf("%s: %s", de.Message, de.Object)
	}
	return data.Errorf("%s", de.Message)
}
