package pipeline

import (
	"context"
	"sync"

	"github.com/roach88/flowstate/internal/anim"
	"github.com/roach88/flowstate/internal/data"
	"github.com/roach88/flowstate/internal/future"
	"github.com/roach88/flowstate/internal/notify"
)

// FrameLoader produces the state of one source frame. It runs on the
// dataset's pool and should return early once ctx is cancelled.
type FrameLoader func(ctx context.Context, frame int) (*data.FlowState, error)

// FrameSource is a multi-frame source. Each frame is valid from its own
// animation time up to the next frame's; the first frame extends into the
// past and the last one into the future.
type FrameSource struct {
	nodeBase
	mu     sync.Mutex
	frames int
	load   FrameLoader
}

// FrameSourceOption configures a FrameSource.
type FrameSourceOption func(*frameSourceConfig)

type frameSourceConfig struct {
	displayedOnly bool
}

// WithDisplayedFrameOnly makes the cache answer only requests for the frame
// currently shown by the dataset's animation settings; every other frame is
// loaded again.
func WithDisplayedFrameOnly() FrameSourceOption {
	return func(c *frameSourceConfig) {
		c.displayedOnly = true
	}
}

// NewFrameSource creates a source with frames frames produced by load.
func NewFrameSource(ds *Dataset, title string, frames int, load FrameLoader, opts ...FrameSourceOption) *FrameSource {
	var cfg frameSourceConfig
	for _, opt := range opts {
		opt(&cfg)
	}
	var cacheOpts []CacheOption
	if cfg.displayedOnly {
		cacheOpts = append(cacheOpts, WithFreshness(func(t anim.TimePoint) bool {
			settings := ds.Animation()
			return settings.TimeToFrame(t) == settings.TimeToFrame(settings.Time())
		}))
	}
	return &FrameSource{
		nodeBase: newNodeBase(ds, title, cacheOpts...),
		frames:   max(1, frames),
		load:     load,
	}
}

// Evaluate loads the frame shown at req.Time unless it is cached.
func (s *FrameSource) Evaluate(req Request) *future.Future[*data.FlowState] {
	return s.cache.Evaluate(req, s.loadFrame)
}

func (s *FrameSource) loadFrame(req Request) *future.Future[*data.FlowState] {
	frame := s.AnimationTimeToSourceFrame(req.Time)
	validity := s.FrameInterval(frame)
	return future.Go(s.ds.Pool(), func(ctx context.Context) (*data.FlowState, error) {
		st, err := s.load(ctx, frame)
		if err != nil {
			if !data.IsDomainError(err) {
				return nil, err
			}
			st = data.NewFlowState(nil, validity)
			st.SetStatus(data.Errorf("%s", err.Error()))
			return st, nil
		}
		if st == nil {
			st = data.NewFlowState(nil, validity)
		}
		st.IntersectValidity(validity)
		return st, nil
	})
}

// EvaluatePreliminary returns the cached frame for the current time, or
// the most recently loaded frame.
func (s *FrameSource) EvaluatePreliminary() *data.FlowState {
	if st, ok := s.cache.Lookup(s.ds.Animation().Time()); ok {
		return st
	}
	if st := s.cache.Preliminary(); st != nil {
		return st
	}
	return data.EmptyFlowState()
}

// Upstream returns nil: a source has no input.
func (s *FrameSource) Upstream() Node { return nil }

// NotifyDependents invalidates the source's own cache over the changed
// interval and then delivers ev.
func (s *FrameSource) NotifyDependents(ev notify.Event) {
	if ev.Kind == notify.TargetChanged {
		s.cache.Invalidate(s.cache.Validity().Without(ev.Changed))
	}
	s.Target.NotifyDependents(ev)
}

// FrameInterval returns the animation time interval frame is shown for.
func (s *FrameSource) FrameInterval(frame int) anim.Interval {
	n := s.NumberOfSourceFrames()
	settings := s.ds.Animation()
	iv := anim.Span(settings.FrameToTime(frame), settings.FrameToTime(frame+1)-1)
	if frame <= 0 {
		iv.Start = anim.NegativeInfinity
	}
	if frame >= n-1 {
		iv.End = anim.PositiveInfinity
	}
	return iv
}

// SetFrameCount changes the number of frames. All cached output is dropped.
func (s *FrameSource) SetFrameCount(frames int) {
	s.mu.Lock()
	changed := s.frames != max(1, frames)
	s.frames = max(1, frames)
	s.mu.Unlock()
	if !changed {
		return
	}
	s.NotifyDependents(notify.Of(notify.AnimationFramesChanged))
	s.NotifyDependents(notify.Changed())
}

// ReloadFrame discards the cached output of one frame.
func (s *FrameSource) ReloadFrame(frame int) {
	s.NotifyDependents(notify.ChangedOver(s.FrameInterval(frame)))
}

// NumberOfSourceFrames returns the number of frames the loader offers.
func (s *FrameSource) NumberOfSourceFrames() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.frames
}

// SourceFrameToAnimationTime returns the time frame is first shown at.
func (s *FrameSource) SourceFrameToAnimationTime(frame int) anim.TimePoint {
	return s.ds.Animation().FrameToTime(frame)
}

// AnimationTimeToSourceFrame clamps to the available frames.
func (s *FrameSource) AnimationTimeToSourceFrame(t anim.TimePoint) int {
	frame := s.ds.Animation().TimeToFrame(t)
	return min(max(frame, 0), s.NumberOfSourceFrames()-1)
}
