// Package notify implements change notification between pipeline objects.
//
// A Target keeps a list of dependents. The list holds weak pointers only:
// a dependent owns its Receiver, and once the dependent is garbage collected
// its entry is skipped and pruned on the next notification.
package notify

import (
	"fmt"
	"slices"
	"sync"
	"weak"

	"github.com/roach88/flowstate/internal/anim"
)

// EventKind identifies what changed.
type EventKind int

const (
	// TargetChanged means the sender's output has changed over Event.Changed.
	TargetChanged EventKind = iota
	// PipelineChanged means the structure of the pipeline has changed.
	PipelineChanged
	// PreliminaryStateAvailable means a new preliminary state can be fetched.
	PreliminaryStateAvailable
	// StatusChanged means the sender's status has changed.
	StatusChanged
	// TargetEnabledOrDisabled means a modifier was switched on or off.
	TargetEnabledOrDisabled
	// AnimationFramesChanged means the number of source frames has changed.
	AnimationFramesChanged
)

// String returns the event kind name.
func (k EventKind) String() string {
	switch k {
	case TargetChanged:
		return "target_changed"
	case PipelineChanged:
		return "pipeline_changed"
	case PreliminaryStateAvailable:
		return "preliminary_state_available"
	case StatusChanged:
		return "status_changed"
	case TargetEnabledOrDisabled:
		return "target_enabled_or_disabled"
	case AnimationFramesChanged:
		return "animation_frames_changed"
	default:
		return fmt.Sprintf("event(%d)", int(k))
	}
}

// ParseEventKind converts an event kind name back to its kind.
func ParseEventKind(s string) (EventKind, error) {
	for k := TargetChanged; k <= AnimationFramesChanged; k++ {
		if k.String() == s {
			return k, nil
		}
	}
	return 0, fmt.Errorf("unknown event kind %q", s)
}

// Event is delivered to dependents.
type Event struct {
	Kind EventKind
	// Source is the target that sent the event.
	Source *Target
	// Changed is the part of the timeline affected by a TargetChanged
	// event. Infinite unless the sender knows better.
	Changed anim.Interval
}

// Changed returns a TargetChanged event covering all of time.
func Changed() Event {
	return Event{Kind: TargetChanged, Changed: anim.Infinite()}
}

// ChangedOver returns a TargetChanged event covering iv.
func ChangedOver(iv anim.Interval) Event {
	return Event{Kind: TargetChanged, Changed: iv}
}

// Of returns an event of the given kind covering all of time.
func Of(kind EventKind) Event {
	return Event{Kind: kind, Changed: anim.Infinite()}
}

// Receiver handles events for a dependent. The dependent must keep its
// Receiver reachable for as long as it wants to be notified.
type Receiver struct {
	handle func(Event)
}

// NewReceiver wraps handle as a receiver.
func NewReceiver(handle func(Event)) *Receiver {
	return &Receiver{handle: handle}
}

// Target is embedded by everything that can notify dependents.
// The zero value is ready to use.
type Target struct {
	mu         sync.Mutex
	dependents []weak.Pointer[Receiver]
}

// AddDependent registers r. Registering the same receiver twice is a no-op.
func (t *Target) AddDependent(r *Receiver) {
	wp := weak.Make(r)
	t.mu.Lock()
	defer t.mu.Unlock()
	if slices.Contains(t.dependents, wp) {
		return
	}
	t.dependents = append(t.dependents, wp)
}

// RemoveDependent unregisters r.
func (t *Target) RemoveDependent(r *Receiver) {
	wp := weak.Make(r)
	t.mu.Lock()
	defer t.mu.Unlock()
	t.dependents = slices.DeleteFunc(t.dependents, func(p weak.Pointer[Receiver]) bool {
		return p == wp
	})
}

// Dependents returns the number of registered receivers that are still alive.
func (t *Target) Dependents() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	n := 0
	for _, p := range t.dependents {
		if p.Value() != nil {
			n++
		}
	}
	return n
}

// NotifyDependents delivers ev synchronously, in registration order, to
// every live receiver. Receivers that have been collected are pruned.
// Receivers may add or remove dependents while being notified; such
// changes take effect from the next notification on.
func (t *Target) NotifyDependents(ev Event) {
	if ev.Source == nil {
		ev.Source = t
	}

	t.mu.Lock()
	live := make([]*Receiver, 0, len(t.dependents))
	kept := t.dependents[:0]
	for _, p := range t.dependents {
		if r := p.Value(); r != nil {
			live = append(live, r)
			kept = append(kept, p)
		}
	}
	clear(t.dependents[len(kept):])
	t.dependents = kept
	t.mu.Unlock()

	for _, r := range live {
		r.handle(ev)
	}
}
