package pipeline

import (
	"github.com/roach88/flowstate/internal/anim"
	"github.com/roach88/flowstate/internal/data"
	"github.com/roach88/flowstate/internal/future"
	"github.com/roach88/flowstate/internal/notify"
)

// Node is a vertex of the evaluation graph. Sources and modifier
// applications are nodes; anything implementing Node can serve as the root
// of a pipeline.
type Node interface {
	// Title names the node in logs and traces.
	Title() string

	// Evaluate returns the node's output for req without blocking.
	Evaluate(req Request) *future.Future[*data.FlowState]

	// EvaluatePreliminary returns the best output available right now for
	// the dataset's current time, possibly stale.
	EvaluatePreliminary() *data.FlowState

	// Events is the target dependents register with.
	Events() *notify.Target

	// Upstream returns the node this one reads from, or nil for sources.
	Upstream() Node

	// InvalidatePipelineCache discards cached output outside keep.
	InvalidatePipelineCache(keep anim.Interval)

	NumberOfSourceFrames() int
	SourceFrameToAnimationTime(frame int) anim.TimePoint
	AnimationTimeToSourceFrame(t anim.TimePoint) int
}

// nodeBase holds what every built-in node has: a title, a cache and the
// dependents list.
type nodeBase struct {
	notify.Target
	ds    *Dataset
	title string
	cache *Cache
}

func newNodeBase(ds *Dataset, title string, opts ...CacheOption) nodeBase {
	return nodeBase{ds: ds, title: title, cache: NewCache(ds, title, opts...)}
}

func (n *nodeBase) Title() string { return n.title }

func (n *nodeBase) Events() *notify.Target { return &n.Target }

// Cache returns the node's cache.
func (n *nodeBase) Cache() *Cache { return n.cache }

// Dataset returns the dataset the node belongs to.
func (n *nodeBase) Dataset() *Dataset { return n.ds }

func (n *nodeBase) InvalidatePipelineCache(keep anim.Interval) {
	n.cache.Invalidate(keep)
}

// PipelineSource follows the upstream links from n to the root node.
func PipelineSource(n Node) Node {
	for n != nil {
		up := n.Upstream()
		if up == nil {
			return n
		}
		n = up
	}
	return nil
}

// dependsOn reports whether n reaches target by following upstream links.
func dependsOn(n, target Node) bool {
	for ; n != nil; n = n.Upstream() {
		if n == target {
			return true
		}
	}
	return false
}
