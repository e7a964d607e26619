package pipeline

import (
	"fmt"

	"github.com/roach88/flowstate/internal/anim"
)

// Request asks a node for its output at one animation time.
type Request struct {
	Time anim.TimePoint
	// BreakOnError makes modifiers downstream of an error pass the error
	// state through instead of running.
	BreakOnError bool
}

// At returns a request for time t.
func At(t anim.TimePoint) Request {
	return Request{Time: t}
}

func (r Request) String() string {
	if r.BreakOnError {
		return fmt.Sprintf("t=%d (break on error)", r.Time)
	}
	return fmt.Sprintf("t=%d", r.Time)
}
