package modifiers

import (
	"math"
	"sync"

	"github.com/roach88/flowstate/internal/anim"
	"github.com/roach88/flowstate/internal/data"
	"github.com/roach88/flowstate/internal/future"
	"github.com/roach88/flowstate/internal/pipeline"
)

// singularThreshold is the smallest determinant accepted as invertible.
const singularThreshold = 1e-12

// Identity is the identity transformation.
var Identity = [3][4]float64{
	{1, 0, 0, 0},
	{0, 1, 0, 0},
	{0, 0, 1, 0},
}

// AffineTransformation applies a 3x4 matrix (linear part plus translation)
// to the particle positions and, optionally, to the simulation cell.
//
// The input must contain a simulation cell even when only positions are
// transformed: without a cell the coordinates have no frame of reference.
type AffineTransformation struct {
	pipeline.ModifierBase

	mu            sync.RWMutex
	matrix        [3][4]float64
	transformCell bool
}

// NewAffineTransformation creates the modifier with matrix m.
func NewAffineTransformation(m [3][4]float64) *AffineTransformation {
	a := &AffineTransformation{matrix: m, transformCell: true}
	a.SetTitle("Affine transformation")
	return a
}

// Matrix returns the transformation matrix.
func (a *AffineTransformation) Matrix() [3][4]float64 {
	a.mu.RLock()
	defer a.mu.RUnlock()
	return a.matrix
}

// SetMatrix replaces the transformation matrix.
func (a *AffineTransformation) SetMatrix(m [3][4]float64) {
	a.mu.Lock()
	a.matrix = m
	a.mu.Unlock()
	a.NotifyChanged()
}

// TransformCell reports whether the cell is transformed along with the positions.
func (a *AffineTransformation) TransformCell() bool {
	a.mu.RLock()
	defer a.mu.RUnlock()
	return a.transformCell
}

// SetTransformCell switches cell transformation on or off.
func (a *AffineTransformation) SetTransformCell(on bool) {
	a.mu.Lock()
	changed := a.transformCell != on
	a.transformCell = on
	a.mu.Unlock()
	if changed {
		a.NotifyChanged()
	}
}

func (a *AffineTransformation) Evaluate(req pipeline.Request, app *pipeline.ModifierApplication, state *data.FlowState) *future.Future[*data.FlowState] {
	return pipeline.EvaluateSynchronously(a, req, app, state)
}

func (a *AffineTransformation) EvaluateSynchronous(_ anim.TimePoint, _ *pipeline.ModifierApplication, state *data.FlowState) error {
	cell, err := data.Expect[*data.SimulationCell](state, data.CellIdentifier)
	if err != nil {
		return err
	}
	m := a.Matrix()
	if math.Abs(data.Determinant3(m)) < singularThreshold {
		return data.NewDegenerateGeometryError("transformation matrix is singular")
	}

	if pos, ok := data.GetByID[*data.Property](state, data.PositionProperty); ok {
		if pos.Components() != 3 {
			return data.NewInvalidParameterError(data.PositionProperty, "positions need 3 components, got %d", pos.Components())
		}
		pos = data.MakeMutable(state.Data(), pos)
		pos.Update(func(values []float64) {
			for i := 0; i+2 < len(values); i += 3 {
				x, y, z := values[i], values[i+1], values[i+2]
				for r := range 3 {
					values[i+r] = m[r][0]*x + m[r][1]*y + m[r][2]*z + m[r][3]
				}
			}
		})
	}

	if a.TransformCell() {
		cell = data.MakeMutable(state.Data(), cell)
		cell.SetMatrix(Compose(m, cell.Matrix()))
	}
	return nil
}

// Compose returns the affine map m applied after c: the cell vectors of c
// are multiplied by the linear part of m and c's origin is fully transformed.
func Compose(m, c [3][4]float64) [3][4]float64 {
	var out [3][4]float64
	for r := range 3 {
		for col := range 4 {
			var v float64
			for k := range 3 {
				v += m[r][k] * c[k][col]
			}
			out[r][col] = v
		}
		out[r][3] += m[r][3]
	}
	return out
}

// MatrixFromFlat builds a transformation from 9 (linear part only) or 12
// column-major values.
func MatrixFromFlat(values []float64) ([3][4]float64, error) {
	switch len(values) {
	case 0:
		return Identity, nil
	case 9, 12:
		return data.CellFromFlat(values), nil
	default:
		return [3][4]float64{}, data.NewInvalidParameterError("matrix", "expected 9 or 12 values, got %d", len(values))
	}
}
