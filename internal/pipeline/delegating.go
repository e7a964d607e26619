package pipeline

import (
	"context"
	"slices"
	"sync"

	"github.com/roach88/flowstate/internal/data"
	"github.com/roach88/flowstate/internal/future"
)

// Delegate is one interchangeable implementation of a delegating
// modifier, selected by the kind of data it finds in the input.
type Delegate interface {
	Title() string

	// IsApplicableTo reports whether the delegate can work on c.
	// It must not modify c.
	IsApplicableTo(c *data.Collection) bool

	// Apply transforms state in place and returns the delegate's status.
	Apply(ctx context.Context, req Request, app *ModifierApplication, state *data.FlowState) (data.Status, error)
}

// NewNotApplicableError reports that no delegate can handle the input.
func NewNotApplicableError(modifier string) *data.DomainError {
	return &data.DomainError{
		Code:    data.ErrCodeMissingInput,
		Message: "input does not contain the expected kind of data",
		Object:  modifier,
	}
}

// MultiDelegatingModifier runs every enabled delegate that applies to the
// input, one after the other, on the dataset's pool.
type MultiDelegatingModifier struct {
	ModifierBase
	mu        sync.Mutex
	delegates []Delegate
	disabled  map[string]bool
}

// NewMultiDelegatingModifier creates a modifier over delegates.
func NewMultiDelegatingModifier(title string, delegates ...Delegate) *MultiDelegatingModifier {
	m := &MultiDelegatingModifier{delegates: delegates, disabled: map[string]bool{}}
	m.SetTitle(title)
	return m
}

// Delegates returns the delegates in order.
func (m *MultiDelegatingModifier) Delegates() []Delegate {
	m.mu.Lock()
	defer m.mu.Unlock()
	return slices.Clone(m.delegates)
}

// SetDelegateEnabled switches the delegate with the given title on or off.
func (m *MultiDelegatingModifier) SetDelegateEnabled(title string, on bool) {
	m.mu.Lock()
	changed := m.disabled[title] == on
	if on {
		delete(m.disabled, title)
	} else {
		m.disabled[title] = true
	}
	m.mu.Unlock()
	if changed {
		m.NotifyChanged()
	}
}

// DelegateEnabled reports whether the delegate with the given title runs.
func (m *MultiDelegatingModifier) DelegateEnabled(title string) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return !m.disabled[title]
}

func (m *MultiDelegatingModifier) applicable(c *data.Collection) []Delegate {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []Delegate
	for _, d := range m.delegates {
		if !m.disabled[d.Title()] && d.IsApplicableTo(c) {
			out = append(out, d)
		}
	}
	return out
}

// Evaluate runs the applicable delegates and merges their statuses.
func (m *MultiDelegatingModifier) Evaluate(req Request, app *ModifierApplication, state *data.FlowState) *future.Future[*data.FlowState] {
	return runDelegates(m.Title(), m.applicable(state.Data()), req, app, state)
}

// DelegatingModifier has a single delegate.
type DelegatingModifier struct {
	ModifierBase
	mu       sync.Mutex
	delegate Delegate
}

// NewDelegatingModifier creates a modifier around d.
func NewDelegatingModifier(title string, d Delegate) *DelegatingModifier {
	m := &DelegatingModifier{delegate: d}
	m.SetTitle(title)
	return m
}

// Delegate returns the current delegate.
func (m *DelegatingModifier) Delegate() Delegate {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.delegate
}

// SetDelegate replaces the delegate.
func (m *DelegatingModifier) SetDelegate(d Delegate) {
	m.mu.Lock()
	m.delegate = d
	m.mu.Unlock()
	m.NotifyChanged()
}

// Evaluate runs the delegate if it applies to the input.
func (m *DelegatingModifier) Evaluate(req Request, app *ModifierApplication, state *data.FlowState) *future.Future[*data.FlowState] {
	var delegates []Delegate
	if d := m.Delegate(); d != nil && d.IsApplicableTo(state.Data()) {
		delegates = append(delegates, d)
	}
	return runDelegates(m.Title(), delegates, req, app, state)
}

func runDelegates(title string, delegates []Delegate, req Request, app *ModifierApplication, state *data.FlowState) *future.Future[*data.FlowState] {
	if len(delegates) == 0 {
		return future.Failed[*data.FlowState](NewNotApplicableError(title))
	}
	return future.Go(app.Dataset().Pool(), func(ctx context.Context) (*data.FlowState, error) {
		statuses := make([]data.Status, 0, len(delegates))
		for _, d := range delegates {
			if ctx.Err() != nil {
				return nil, future.ErrCanceled
			}
			st, err := d.Apply(ctx, req, app, state)
			if err != nil {
				return nil, err
			}
			statuses = append(statuses, st)
		}
		state.SetStatus(data.MergeStatus(statuses...))
		return state, nil
	})
}
