package pipeline

import (
	"errors"
	"slices"
	"sync"
	"time"

	"github.com/roach88/flowstate/internal/anim"
	"github.com/roach88/flowstate/internal/data"
	"github.com/roach88/flowstate/internal/future"
)

// Discard reasons reported in logs, metrics and the journal.
const (
	reasonDropped      = "dropped"
	reasonSuperseded   = "superseded"
	reasonCanceled     = "canceled"
	reasonBreakOnError = "break_on_error"
)

// ComputeFunc starts the computation of a node's output for req.
type ComputeFunc func(req Request) *future.Future[*data.FlowState]

// CacheStats counts what a cache has done since it was created.
type CacheStats struct {
	Hits          int
	Misses        int
	Shared        int
	Committed     int
	Discarded     int
	Failed        int
	Invalidations int
	Stale         int
}

// cacheEntry is the single authoritative result of a node.
type cacheEntry struct {
	state      *data.FlowState
	validity   anim.Interval
	generation int64
	// revision is the cache's invalidation count when the entry was last
	// written; a mismatch means an invalidation bypassed the entry.
	revision uint64
	stamps   []data.WeakRef
}

// inflightEval is an evaluation that has been started but not committed.
type inflightEval struct {
	req        Request
	generation int64
	promise    *future.Promise[*data.FlowState]
	// restriction clips the validity the result may be stored with.
	restriction anim.Interval
	startRev    uint64
	// applied counts invalidations seen while registered.
	applied uint64
	started time.Time
}

// Cache memoizes a node's output over animation time and deduplicates
// concurrent evaluations of the same time.
//
// All bookkeeping is serialized by the cache's mutex; the computation itself
// runs outside of it and its result is committed on the dataset's
// coordinator.
type Cache struct {
	mu          sync.Mutex
	name        string
	ds          *Dataset
	entry       *cacheEntry
	inflight    []*inflightEval
	revision    uint64
	preliminary *data.FlowState
	fresh       func(t anim.TimePoint) bool
	stats       CacheStats
}

// CacheOption configures a Cache.
type CacheOption func(*Cache)

// WithFreshness adds a condition a cache hit must satisfy on top of the
// validity interval, for sources whose output depends on external state.
func WithFreshness(fn func(t anim.TimePoint) bool) CacheOption {
	return func(c *Cache) {
		c.fresh = fn
	}
}

// NewCache creates an empty cache for the node called name.
func NewCache(ds *Dataset, name string, opts ...CacheOption) *Cache {
	c := &Cache{name: name, ds: ds}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Evaluate returns the cached state for req.Time, joins an in-flight
// evaluation of the same request, or starts compute. It never blocks on
// the computation.
func (c *Cache) Evaluate(req Request, compute ComputeFunc) *future.Future[*data.FlowState] {
	logger := c.ds.Logger()

	c.mu.Lock()
	if st, ok := c.lookupLocked(req.Time); ok && answers(req, st) {
		c.stats.Hits++
		c.mu.Unlock()
		logger.Debug("cache hit", "node", c.name, "time", req.Time)
		c.ds.Metrics().CacheHit(c.name)
		c.record(EventHit, req.Time, st.Validity(), 0, st, "")
		return future.Resolved(st)
	}
	for _, ev := range c.inflight {
		if ev.req != req {
			continue
		}
		if f, ok := ev.promise.TryFuture(); ok {
			c.stats.Shared++
			c.mu.Unlock()
			logger.Debug("evaluation shared", "node", c.name, "time", req.Time, "generation", ev.generation)
			c.ds.Metrics().Shared(c.name)
			c.record(EventShared, req.Time, anim.Empty(), ev.generation, nil, "")
			return f
		}
	}

	ev := &inflightEval{
		req:         req,
		generation:  c.ds.clock.Next(),
		promise:     future.NewPromise[*data.FlowState](),
		restriction: anim.Infinite(),
		startRev:    c.revision,
		started:     time.Now(),
	}
	c.inflight = append(c.inflight, ev)
	c.stats.Misses++
	out := ev.promise.Future()
	c.mu.Unlock()

	logger.Debug("evaluation started", "node", c.name, "time", req.Time, "generation", ev.generation)
	c.ds.Metrics().CacheMiss(c.name)
	c.record(EventStarted, req.Time, anim.Empty(), ev.generation, nil, "")

	inner := compute(req)
	ev.promise.OnCancel(func() {
		inner.Cancel()
		c.forget(ev)
	})
	future.OnComplete(c.ds.Coordinator(), inner, func(st *data.FlowState, err error) {
		c.complete(ev, st, err)
	})
	return out
}

// lookupLocked returns the entry's state if it may answer a request for t.
// A stale entry is dropped.
func (c *Cache) lookupLocked(t anim.TimePoint) (*data.FlowState, bool) {
	e := c.entry
	if e == nil || !e.validity.Contains(t) {
		return nil, false
	}
	if e.revision != c.revision || slices.ContainsFunc(e.stamps, data.WeakRef.Changed) {
		c.entry = nil
		c.stats.Stale++
		c.ds.Logger().Debug("cache entry stale", "node", c.name, "validity", e.validity.String())
		return nil, false
	}
	if c.fresh != nil && !c.fresh(t) {
		return nil, false
	}
	return e.state, true
}

// answers reports whether a cached st may be returned for req. An error
// state committed for a normal request ran the modifiers that BreakOnError
// skips.
func answers(req Request, st *data.FlowState) bool {
	return !req.BreakOnError || !st.Status().IsError()
}

// Lookup returns the cached state for t without starting anything.
func (c *Cache) Lookup(t anim.TimePoint) (*data.FlowState, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.lookupLocked(t)
}

func (c *Cache) complete(ev *inflightEval, st *data.FlowState, err error) {
	logger := c.ds.Logger()
	elapsed := time.Since(ev.started)

	c.mu.Lock()
	registered := c.removeLocked(ev)

	if ev.promise.IsCanceled() {
		c.stats.Discarded++
		c.mu.Unlock()
		c.discarded(ev, nil, reasonCanceled, elapsed)
		return
	}

	if err != nil {
		c.stats.Failed++
		c.mu.Unlock()
		if errors.Is(err, future.ErrCanceled) {
			logger.Debug("evaluation canceled", "node", c.name, "time", ev.req.Time)
		} else {
			logger.Error("evaluation failed", "node", c.name, "time", ev.req.Time, "error", err)
		}
		c.ds.Metrics().ObserveEvaluation(c.name, EventFailed, elapsed)
		c.record(EventFailed, ev.req.Time, anim.Empty(), ev.generation, nil, err.Error())
		ev.promise.SetError(err)
		return
	}
	if st == nil {
		st = data.EmptyFlowState()
	}

	reason := ""
	switch {
	case !registered:
		reason = reasonDropped
	case ev.startRev+ev.applied != c.revision:
		c.stats.Failed++
		c.mu.Unlock()
		raceErr := NewCacheRaceError(c.name, ev.generation, ev.startRev+ev.applied, c.revision)
		logger.Error("cache invariant violated", "node", c.name, "error", raceErr)
		c.record(EventFailed, ev.req.Time, anim.Empty(), ev.generation, nil, raceErr.Error())
		ev.promise.SetError(raceErr)
		return
	case c.entry != nil && c.entry.generation > ev.generation && c.entry.validity.Contains(ev.req.Time):
		reason = reasonSuperseded
	case ev.req.BreakOnError && st.Status().IsError():
		reason = reasonBreakOnError
	}

	if reason != "" {
		c.stats.Discarded++
		c.mu.Unlock()
		c.discarded(ev, st, reason, elapsed)
		ev.promise.SetResult(st)
		return
	}

	validity := st.Validity().Intersect(ev.restriction)
	if validity.IsEmpty() {
		c.entry = nil
	} else {
		c.entry = &cacheEntry{
			state:      st,
			validity:   validity,
			generation: ev.generation,
			revision:   c.revision,
			stamps:     st.Stamps(),
		}
	}
	c.preliminary = st
	c.stats.Committed++
	c.mu.Unlock()

	logger.Debug("result committed", "node", c.name, "time", ev.req.Time,
		"generation", ev.generation, "validity", validity.String())
	c.ds.Metrics().Committed(c.name)
	c.ds.Metrics().ObserveEvaluation(c.name, EventCommitted, elapsed)
	c.record(EventCommitted, ev.req.Time, validity, ev.generation, st, "")
	ev.promise.SetResult(st)
}

func (c *Cache) discarded(ev *inflightEval, st *data.FlowState, reason string, elapsed time.Duration) {
	c.ds.Logger().Debug("result discarded", "node", c.name, "time", ev.req.Time,
		"generation", ev.generation, "reason", reason)
	c.ds.Metrics().Discarded(c.name, reason)
	c.ds.Metrics().ObserveEvaluation(c.name, EventDiscarded, elapsed)
	c.record(EventDiscarded, ev.req.Time, anim.Empty(), ev.generation, st, reason)
}

// removeLocked unregisters ev and reports whether it was still registered.
func (c *Cache) removeLocked(ev *inflightEval) bool {
	i := slices.Index(c.inflight, ev)
	if i < 0 {
		return false
	}
	c.inflight = slices.Delete(c.inflight, i, i+1)
	return true
}

func (c *Cache) forget(ev *inflightEval) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.removeLocked(ev)
}

// Invalidate shrinks the cached validity to keep. Evaluations in flight may
// commit at most keep; those whose time lies outside keep are no longer
// tracked and their results will not be stored. An empty keep clears the
// cache.
func (c *Cache) Invalidate(keep anim.Interval) {
	c.mu.Lock()
	c.revision++
	c.stats.Invalidations++
	if c.entry != nil {
		c.entry.validity = c.entry.validity.Intersect(keep)
		c.entry.revision = c.revision
		if c.entry.validity.IsEmpty() {
			c.entry = nil
		}
	}
	var dropped []*inflightEval
	kept := c.inflight[:0]
	for _, ev := range c.inflight {
		ev.applied++
		if !keep.Contains(ev.req.Time) {
			dropped = append(dropped, ev)
			continue
		}
		ev.restriction = ev.restriction.Intersect(keep)
		kept = append(kept, ev)
	}
	clear(c.inflight[len(kept):])
	c.inflight = kept
	c.mu.Unlock()

	c.ds.Logger().Debug("cache invalidated", "node", c.name, "keep", keep.String(), "dropped", len(dropped))
	c.ds.Metrics().Invalidated(c.name)
	c.record(EventInvalidated, 0, keep, 0, nil, "")
	for _, ev := range dropped {
		c.ds.Logger().Warn("in-flight evaluation dropped", "node", c.name,
			"time", ev.req.Time, "generation", ev.generation)
		c.record(EventDropped, ev.req.Time, anim.Empty(), ev.generation, nil, "")
	}
}

// RestrictValidityOfNextInsertedState limits the validity with which the
// evaluations currently in flight may be stored.
func (c *Cache) RestrictValidityOfNextInsertedState(keep anim.Interval) {
	c.mu.Lock()
	defer c.mu.Unlock()
	for _, ev := range c.inflight {
		ev.restriction = ev.restriction.Intersect(keep)
	}
}

// Preliminary returns the most recently committed state, which may be stale.
func (c *Cache) Preliminary() *data.FlowState {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.preliminary
}

// SetPreliminary replaces the preliminary state without touching the entry.
func (c *Cache) SetPreliminary(st *data.FlowState) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.preliminary = st
}

// Validity returns the interval the cached entry is valid for.
func (c *Cache) Validity() anim.Interval {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.entry == nil {
		return anim.Empty()
	}
	return c.entry.validity
}

// InFlight returns the number of evaluations the cache currently tracks.
func (c *Cache) InFlight() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.inflight)
}

// Stats returns a snapshot of the cache counters.
func (c *Cache) Stats() CacheStats {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.stats
}

func (c *Cache) record(kind string, t anim.TimePoint, validity anim.Interval, generation int64, st *data.FlowState, reason string) {
	if !c.ds.hasJournal() {
		return
	}
	ev := JournalEvent{
		Node:       c.name,
		Kind:       kind,
		Time:       t,
		Validity:   validity,
		Generation: generation,
		Reason:     reason,
	}
	if st != nil {
		ev.Status = st.Status()
		if digest, err := st.Digest(); err == nil {
			ev.Digest = digest
		} else {
			c.ds.Logger().Warn("state digest failed", "node", c.name, "error", err)
		}
	}
	c.ds.record(ev)
}
