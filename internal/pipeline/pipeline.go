package pipeline

import (
	"sync"

	"github.com/roach88/flowstate/internal/anim"
	"github.com/roach88/flowstate/internal/data"
	"github.com/roach88/flowstate/internal/future"
	"github.com/roach88/flowstate/internal/notify"
)

// Pipeline is what consumers see: a named chain of modifier applications
// on top of a source. Its Target forwards every event of the current head.
type Pipeline struct {
	notify.Target

	name   string
	ds     *Dataset
	source Node

	mu       sync.Mutex
	head     Node
	apps     []*ModifierApplication
	headRecv *notify.Receiver
}

// NewPipeline creates a pipeline whose output is source's until modifiers
// are inserted. source may be the head of another pipeline.
func NewPipeline(ds *Dataset, name string, source Node) *Pipeline {
	p := &Pipeline{name: name, ds: ds, source: source, head: source}
	p.headRecv = notify.NewReceiver(func(ev notify.Event) {
		ev.Source = nil
		p.NotifyDependents(ev)
	})
	source.Events().AddDependent(p.headRecv)
	return p
}

// Name returns the pipeline's name.
func (p *Pipeline) Name() string { return p.name }

// Dataset returns the dataset the pipeline belongs to.
func (p *Pipeline) Dataset() *Dataset { return p.ds }

// Source returns the root node.
func (p *Pipeline) Source() Node { return p.source }

// Head returns the node whose output is the pipeline's output.
func (p *Pipeline) Head() Node {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.head
}

// Modifiers returns the applications from the source upwards.
func (p *Pipeline) Modifiers() []*ModifierApplication {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make([]*ModifierApplication, len(p.apps))
	copy(out, p.apps)
	return out
}

// InsertModifier applies mod on top of the current head.
func (p *Pipeline) InsertModifier(mod Modifier) (*ModifierApplication, error) {
	app := Apply(p.ds, mod)

	p.mu.Lock()
	if err := app.SetInput(p.head); err != nil {
		p.mu.Unlock()
		return nil, err
	}
	p.head.Events().RemoveDependent(p.headRecv)
	app.Events().AddDependent(p.headRecv)
	p.head = app
	p.apps = append(p.apps, app)
	position := len(p.apps) - 1
	p.mu.Unlock()

	p.ds.Logger().Debug("modifier inserted", "pipeline", p.name, "modifier", app.Title(), "position", position)
	p.ds.Coordinator().Submit(func() { p.NotifyDependents(notify.Of(notify.PipelineChanged)) })
	return app, nil
}

// EvaluatePipeline returns the pipeline's output at time t.
func (p *Pipeline) EvaluatePipeline(t anim.TimePoint) *future.Future[*data.FlowState] {
	return p.Head().Evaluate(At(t))
}

// EvaluatePipelineRequest evaluates the pipeline for an explicit request.
func (p *Pipeline) EvaluatePipelineRequest(req Request) *future.Future[*data.FlowState] {
	return p.Head().Evaluate(req)
}

// EvaluatePipelinePreliminary returns the best output available right now
// without waiting.
func (p *Pipeline) EvaluatePipelinePreliminary() *data.FlowState {
	return p.Head().EvaluatePreliminary()
}

// GlobalStatus merges the status of every application of mod in the dataset.
func (p *Pipeline) GlobalStatus(mod Modifier) data.Status {
	return p.ds.GlobalStatus(mod)
}
