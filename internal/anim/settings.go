package anim

import "sync"

// DefaultTicksPerFrame corresponds to 10 frames per second.
const DefaultTicksPerFrame = TicksPerSecond / 10

// Settings holds the animation state of a dataset: the currently displayed
// time, the playback interval and the frame rate.
//
// Thread-safety: Settings is safe for concurrent use.
type Settings struct {
	mu            sync.RWMutex
	time          TimePoint
	interval      Interval
	ticksPerFrame TimePoint
}

// NewSettings creates settings positioned at time 0 with a single-frame interval.
func NewSettings() *Settings {
	return &Settings{
		interval:      Instant(0),
		ticksPerFrame: DefaultTicksPerFrame,
	}
}

// Time returns the currently displayed animation time.
func (s *Settings) Time() TimePoint {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.time
}

// SetTime changes the currently displayed animation time.
func (s *Settings) SetTime(t TimePoint) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.time = t
}

// Interval returns the animation playback interval.
func (s *Settings) Interval() Interval {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.interval
}

// SetInterval changes the animation playback interval.
func (s *Settings) SetInterval(iv Interval) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.interval = iv
}

// TicksPerFrame returns the number of ticks between two animation frames.
func (s *Settings) TicksPerFrame() TimePoint {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.ticksPerFrame
}

// SetTicksPerFrame changes the frame rate. Non-positive values are ignored.
func (s *Settings) SetTicksPerFrame(ticks TimePoint) {
	if ticks <= 0 {
		return
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.ticksPerFrame = ticks
}

// FrameToTime converts an animation frame number to a time point.
func (s *Settings) FrameToTime(frame int) TimePoint {
	return TimePoint(frame) * s.TicksPerFrame()
}

// TimeToFrame converts a time point to the frame being shown at that time.
func (s *Settings) TimeToFrame(t TimePoint) int {
	tpf := s.TicksPerFrame()
	if t < 0 {
		return int((t - tpf + 1) / tpf)
	}
	return int(t / tpf)
}
