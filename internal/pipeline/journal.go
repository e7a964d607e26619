package pipeline

import (
	"github.com/roach88/flowstate/internal/anim"
	"github.com/roach88/flowstate/internal/data"
)

// Cache event kinds recorded in the journal.
const (
	EventHit         = "hit"
	EventShared      = "shared"
	EventStarted     = "started"
	EventCommitted   = "committed"
	EventDiscarded   = "discarded"
	EventFailed      = "failed"
	EventInvalidated = "invalidated"
	EventDropped     = "dropped"
)

// IsEventKind reports whether kind names a journal event kind.
func IsEventKind(kind string) bool {
	switch kind {
	case EventHit, EventShared, EventStarted, EventCommitted,
		EventDiscarded, EventFailed, EventInvalidated, EventDropped:
		return true
	}
	return false
}

// JournalEvent describes one thing a cache did.
type JournalEvent struct {
	Node       string
	Kind       string
	Time       anim.TimePoint
	Validity   anim.Interval
	Generation int64
	Status     data.Status
	Digest     string
	Reason     string
}

// Journal receives cache events for later inspection. It has no influence
// on evaluation. Implementations must be safe for concurrent use.
type Journal interface {
	Record(ev JournalEvent)
}
