package geom

import (
	"math"

	"github.com/golang/geo/r3"
	"gonum.org/v1/gonum/mat"
)

const eps = 1e-12

// Identity returns a new 3x3 identity matrix
func Identity() *mat.Dense {
	return mat.NewDense(3, 3, []float64{
		1, 0, 0,
		0, 1, 0,
		0, 0, 1,
	})
}

// FromRows builds a 3x3 matrix whose rows are the given vectors
func FromRows(x, y, z r3.Vector) *mat.Dense {
	return mat.NewDense(3, 3, []float64{
		x.X, x.Y, x.Z,
		y.X, y.Y, y.Z,
		z.X, z.Y, z.Z,
	})
}

// FromColumns builds a 3x3 matrix whose columns are the given vectors
func FromColumns(x, y, z r3.Vector) *mat.Dense {
	return mat.NewDense(3, 3, []float64{
		x.X, y.X, z.X,
		x.Y, y.Y, z.Y,
		x.Z, y.Z, z.Z,
	})
}

// Column returns column j of a 3x3 matrix
func Column(m mat.Matrix, j int) r3.Vector {
	return r3.Vector{X: m.At(0, j), Y: m.At(1, j), Z: m.At(2, j)}
}

// Row returns row i of a 3x3 matrix
func Row(m mat.Matrix, i int) r3.Vector {
	return r3.Vector{X: m.At(i, 0), Y: m.At(i, 1), Z: m.At(i, 2)}
}

// MulVec returns m·v for a 3x3 matrix
func MulVec(m mat.Matrix, v r3.Vector) r3.Vector {
	return r3.Vector{
		X: m.At(0, 0)*v.X + m.At(0, 1)*v.Y + m.At(0, 2)*v.Z,
		Y: m.At(1, 0)*v.X + m.At(1, 1)*v.Y + m.At(1, 2)*v.Z,
		Z: m.At(2, 0)*v.X + m.At(2, 1)*v.Y + m.At(2, 2)*v.Z,
	}
}

// Mul returns a·b as a new matrix
func Mul(a, b mat.Matrix) *mat.Dense {
	var out mat.Dense
	out.Mul(a, b)
	return &out
}

// Rodrigues converts an axis-angle vector into a rotation matrix
func Rodrigues(v r3.Vector) *mat.Dense {
	theta := v.Norm()
	if theta < eps {
		return Identity()
	}
	k := v.Mul(1 / theta)
	c, s := math.Cos(theta), math.Sin(theta)
	t := 1 - c

	return mat.NewDense(3, 3, []float64{
		c + t*k.X*k.X, t*k.X*k.Y - s*k.Z, t*k.X*k.Z + s*k.Y,
		t*k.X*k.Y + s*k.Z, c + t*k.Y*k.Y, t*k.Y*k.Z - s*k.X,
		t*k.X*k.Z - s*k.Y, t*k.Y*k.Z + s*k.X, c + t*k.Z*k.Z,
	})
}

// AxisAngle converts a rotation matrix into its axis-angle vector.
// Inputs that are not exactly orthonormal are projected onto the nearest
// rotation first.
func AxisAngle(m mat.Matrix) r3.Vector {
	r := Orthogonalize(m)

	rx := r.At(2, 1) - r.At(1, 2)
	ry := r.At(0, 2) - r.At(2, 0)
	rz := r.At(1, 0) - r.At(0, 1)

	s := math.Sqrt((rx*rx + ry*ry + rz*rz) * 0.25)
	c := (r.At(0, 0) + r.At(1, 1) + r.At(2, 2) - 1) * 0.5
	c = math.Max(-1, math.Min(1, c))
	theta := math.Acos(c)

	if s < 1e-5 {
		if c > 0 {
			return r3.Vector{}
		}
		// theta is pi: recover the axis from the symmetric part
		t := (r.At(0, 0) + 1) * 0.5
		ax := math.Sqrt(math.Max(t, 0))
		t = (r.At(1, 1) + 1) * 0.5
		ay := math.Sqrt(math.Max(t, 0))
		if r.At(0, 1) < 0 {
			ay = -ay
		}
		t = (r.At(2, 2) + 1) * 0.5
		az := math.Sqrt(math.Max(t, 0))
		if r.At(0, 2) < 0 {
			az = -az
		}
		if math.Abs(ax) < math.Abs(ay) && math.Abs(ax) < math.Abs(az) && (r.At(1, 2) > 0) != (ay*az > 0) {
			az = -az
		}
		axis := r3.Vector{X: ax, Y: ay, Z: az}
		return axis.Mul(theta / axis.Norm())
	}

	vth := 1 / (2 * s) * theta
	return r3.Vector{X: rx * vth, Y: ry * vth, Z: rz * vth}
}

// Orthogonalize returns the rotation closest to m in the Frobenius norm
func Orthogonalize(m mat.Matrix) *mat.Dense {
	var svd mat.SVD
	if !svd.Factorize(m, mat.SVDFull) {
		return mat.DenseCopyOf(m)
	}
	var u, v mat.Dense
	svd.UTo(&u)
	svd.VTo(&v)

	var r mat.Dense
	r.Mul(&u, v.T())
	if mat.Det(&r) < 0 {
		// flip the weakest singular direction so det(r) = +1
		for i := 0; i < 3; i++ {
			u.Set(i, 2, -u.At(i, 2))
		}
		r.Mul(&u, v.T())
	}
	return &r
}

// IsOrthonormal reports whether m·mᵀ is the identity within tol
func IsOrthonormal(m mat.Matrix, tol float64) bool {
	r, c := m.Dims()
	if r != 3 || c != 3 {
		return false
	}
	var p mat.Dense
	p.Mul(m, m.T())
	return mat.EqualApprox(&p, Identity(), tol)
}

// Finite reports whether every component of v is a finite number
func Finite(v r3.Vector) bool {
	for _, f := range []float64{v.X, v.Y, v.Z} {
		if math.IsNaN(f) || math.IsInf(f, 0) {
			return false
		}
	}
	return true
}
