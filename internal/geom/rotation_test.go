package geom

import (
	"math"
	"testing"

	"github.com/golang/geo/r3"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gonum.org/v1/gonum/mat"
)

func TestRodriguesRoundTrip(t *testing.T) {
	tests := []struct {
		name string
		v    r3.Vector
	}{
		{"zero", r3.Vector{}},
		{"small yaw", r3.Vector{Y: 0.1}},
		{"pitch", r3.Vector{X: -0.4}},
		{"mixed", r3.Vector{X: 0.3, Y: -0.2, Z: 0.7}},
		{"large", r3.Vector{X: 1.2, Y: 1.1, Z: -0.9}},
		{"half turn", r3.Vector{Z: math.Pi}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := Rodrigues(tt.v)
			require.True(t, IsOrthonormal(r, 1e-9))
			assert.InDelta(t, 1, mat.Det(r), 1e-9)

			back := AxisAngle(r)
			assert.InDelta(t, tt.v.X, back.X, 1e-6)
			assert.InDelta(t, tt.v.Y, back.Y, 1e-6)
			assert.InDelta(t, tt.v.Z, back.Z, 1e-6)
		})
	}
}

func TestRodriguesKnownRotation(t *testing.T) {
	r := Rodrigues(r3.Vector{Z: math.Pi / 2})
	x := MulVec(r, r3.Vector{X: 1})

	assert.InDelta(t, 0, x.X, 1e-12)
	assert.InDelta(t, 1, x.Y, 1e-12)
	assert.InDelta(t, 0, x.Z, 1e-12)
}

func TestOrthogonalizeProjectsNearRotation(t *testing.T) {
	r := Rodrigues(r3.Vector{X: 0.2, Y: 0.1})
	noisy := mat.DenseCopyOf(r)
	noisy.Set(0, 1, noisy.At(0, 1)+1e-3)
	noisy.Set(2, 2, noisy.At(2, 2)*1.01)
	require.False(t, IsOrthonormal(noisy, 1e-6))

	fixed := Orthogonalize(noisy)
	assert.True(t, IsOrthonormal(fixed, 1e-9))
	assert.True(t, mat.EqualApprox(fixed, r, 1e-2))
}

func TestRowsAndColumns(t *testing.T) {
	x := r3.Vector{X: 1, Y: 2, Z: 3}
	y := r3.Vector{X: 4, Y: 5, Z: 6}
	z := r3.Vector{X: 7, Y: 8, Z: 9}

	rows := FromRows(x, y, z)
	cols := FromColumns(x, y, z)

	assert.Equal(t, y, Row(rows, 1))
	assert.Equal(t, z, Column(cols, 2))
	assert.True(t, mat.Equal(rows, cols.T()))
}

func TestIsOrthonormalRejectsWrongShape(t *testing.T) {
	assert.False(t, IsOrthonormal(mat.NewDense(2, 2, []float64{1, 0, 0, 1}), 1e-9))
	assert.True(t, IsOrthonormal(Identity(), 1e-12))
}

func TestFinite(t *testing.T) {
	assert.True(t, Finite(r3.Vector{X: 1}))
	assert.False(t, Finite(r3.Vector{Y: math.NaN()}))
	assert.False(t, Finite(r3.Vector{Z: math.Inf(1)}))
}
