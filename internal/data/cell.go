package data

import (
	"github.com/roach88/flowstate/internal/ir"
)

// CellIdentifier is the identifier every simulation cell carries.
const CellIdentifier = "SimulationCell"

// SimulationCell is the periodic domain of a particle system.
// The matrix holds the three cell vectors in columns 0-2 and the origin in column 3.
type SimulationCell struct {
	ObjectBase
	matrix [3][4]float64
	pbc    [3]bool
}

// NewSimulationCell creates a cell from its matrix and periodicity flags.
func NewSimulationCell(matrix [3][4]float64, pbc [3]bool) *SimulationCell {
	c := &SimulationCell{matrix: matrix, pbc: pbc}
	c.SetIdentifier(CellIdentifier)
	return c
}

// CellFromFlat builds the matrix from 12 column-major values
// (a, b, c, origin). Missing values are zero.
func CellFromFlat(values []float64) [3][4]float64 {
	var m [3][4]float64
	for i, v := range values {
		if i >= 12 {
			break
		}
		m[i%3][i/3] = v
	}
	return m
}

// Matrix returns the cell matrix.
func (c *SimulationCell) Matrix() [3][4]float64 { return c.matrix }

// PBC returns the periodic boundary flags.
func (c *SimulationCell) PBC() [3]bool { return c.pbc }

// SetMatrix replaces the cell matrix.
func (c *SimulationCell) SetMatrix(m [3][4]float64) {
	c.matrix = m
	c.Touch()
}

// Volume returns the signed volume spanned by the cell vectors.
func (c *SimulationCell) Volume() float64 {
	return Determinant3(c.matrix)
}

// Determinant3 returns the determinant of the linear 3x3 part of m.
func Determinant3(m [3][4]float64) float64 {
	return m[0][0]*(m[1][1]*m[2][2]-m[1][2]*m[2][1]) -
		m[0][1]*(m[1][0]*m[2][2]-m[1][2]*m[2][0]) +
		m[0][2]*(m[1][0]*m[2][1]-m[1][1]*m[2][0])
}

// Clone returns a copy with the same revision.
func (c *SimulationCell) Clone() Object {
	n := &SimulationCell{matrix: c.matrix, pbc: c.pbc}
	n.InheritFrom(&c.ObjectBase)
	return n
}

// Describe returns the canonical description of the cell.
func (c *SimulationCell) Describe() ir.Object {
	flat := make([]float64, 0, 12)
	for col := 0; col < 4; col++ {
		for row := 0; row < 3; row++ {
			flat = append(flat, c.matrix[row][col])
		}
	}
	return ir.Object{
		"kind":   ir.String(ir.KindCell),
		"name":   ir.String(c.Identifier()),
		"matrix": ir.Floats(flat),
		"pbc":    ir.Array{ir.Bool(c.pbc[0]), ir.Bool(c.pbc[1]), ir.Bool(c.pbc[2])},
	}
}
