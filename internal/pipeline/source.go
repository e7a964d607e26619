package pipeline

import (
	"sync"

	"github.com/roach88/flowstate/internal/anim"
	"github.com/roach88/flowstate/internal/data"
	"github.com/roach88/flowstate/internal/future"
	"github.com/roach88/flowstate/internal/notify"
)

// Source is a static data source: one master state, valid for all time.
type Source struct {
	nodeBase
	mu     sync.Mutex
	master *data.FlowState
}

// NewSource creates a source holding objs.
func NewSource(ds *Dataset, title string, objs ...data.Object) *Source {
	return &Source{
		nodeBase: newNodeBase(ds, title),
		master:   data.NewFlowState(data.NewCollection(objs...), anim.Infinite()),
	}
}

// Evaluate returns a state sharing the master's objects.
func (s *Source) Evaluate(req Request) *future.Future[*data.FlowState] {
	return s.cache.Evaluate(req, func(Request) *future.Future[*data.FlowState] {
		s.mu.Lock()
		defer s.mu.Unlock()
		st := s.master.Fork()
		st.SetValidity(anim.Infinite())
		return future.Resolved(st)
	})
}

// EvaluatePreliminary returns the cached state or, failing that, the
// current master content.
func (s *Source) EvaluatePreliminary() *data.FlowState {
	if cached, ok := s.cache.Lookup(s.ds.Animation().Time()); ok {
		return cached
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.master.Fork()
}

// Upstream returns nil: a source has no input.
func (s *Source) Upstream() Node { return nil }

// Modify runs fn on the master state and notifies dependents. fn must use
// MakeMutable before changing an object the master shares.
func (s *Source) Modify(fn func(master *data.FlowState)) {
	s.mu.Lock()
	fn(s.master)
	s.mu.Unlock()
	s.NotifyDependents(notify.Changed())
}

// Master returns the source's own state. Callers that mutate its objects
// directly are detected through revision stamps.
func (s *Source) Master() *data.FlowState {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.master
}

// NotifyDependents invalidates the source's own cache on a change and then
// delivers ev.
func (s *Source) NotifyDependents(ev notify.Event) {
	if ev.Kind == notify.TargetChanged {
		s.cache.Invalidate(s.cache.Validity().Without(ev.Changed))
	}
	s.Target.NotifyDependents(ev)
}

// NumberOfSourceFrames is 1. A static source shows the same data at every
// time.
func (s *Source) NumberOfSourceFrames() int { return 1 }

// SourceFrameToAnimationTime uses the animation settings.
func (s *Source) SourceFrameToAnimationTime(frame int) anim.TimePoint {
	return s.ds.Animation().FrameToTime(frame)
}

// AnimationTimeToSourceFrame is 0 for every time.
func (s *Source) AnimationTimeToSourceFrame(anim.TimePoint) int { return 0 }
