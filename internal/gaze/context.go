package gaze

import (
	"errors"
	"fmt"
	"image"
	"math"

	"github.com/golang/geo/r2"
	"github.com/golang/geo/r3"
	"gonum.org/v1/gonum/mat"

	"github.com/dudu/gazeprep/internal/geom"
)

const (
	// DefaultFocal is the focal length of the virtual camera in pixels
	DefaultFocal = 960.0
	// DefaultDistance is the virtual camera distance to the eye in millimetres
	DefaultDistance = 600.0
)

// ErrNoImage is returned when cropping or warping has no image to work on
var ErrNoImage = errors.New("no image available")

// InvalidGeometryError reports a malformed normalization input
type InvalidGeometryError struct {
	Field  string
	Reason string
}

func (e *InvalidGeometryError) Error() string {
	return fmt.Sprintf("invalid geometry: %s: %s", e.Field, e.Reason)
}

func invalid(field, format string, args ...any) error {
	return &InvalidGeometryError{Field: field, Reason: fmt.Sprintf(format, args...)}
}

// Input describes one eye sample to normalize. HeadRotation is either a
// 3-element axis-angle vector (3x1 or 1x3) or a 3x3 rotation matrix.
type Input struct {
	Center       r3.Vector
	Target       r3.Vector
	HeadRotation mat.Matrix
	ImageSize    image.Point
	Camera       mat.Matrix
	Focal        float64 // zero means DefaultFocal
	Distance     float64 // zero means DefaultDistance
}

// HeadVector wraps an axis-angle vector as an Input.HeadRotation
func HeadVector(v r3.Vector) mat.Matrix {
	return mat.NewVecDense(3, []float64{v.X, v.Y, v.Z})
}

// Context is the normalization of one eye sample. All matrices are
// derived once in NewContext and never change; accessors return copies.
type Context struct {
	center   r3.Vector
	target   r3.Vector
	head     *mat.Dense
	size     image.Point
	focal    float64
	distance float64

	s *mat.Dense // scale
	r *mat.Dense // rotation into the virtual camera
	m *mat.Dense // S·R
	c *mat.Dense // virtual camera matrix
	w *mat.Dense // C·M·K⁻¹
}

// NewContext validates the input and derives S, R, M, C and W
func NewContext(in Input) (*Context, error) {
	if in.Focal == 0 {
		in.Focal = DefaultFocal
	}
	if in.Distance == 0 {
		in.Distance = DefaultDistance
	}

	if !geom.Finite(in.Center) {
		return nil, invalid("center", "must be a finite 3-vector")
	}
	if !geom.Finite(in.Target) {
		return nil, invalid("target", "must be a finite 3-vector")
	}
	curDistance := in.Center.Norm()
	if curDistance == 0 {
		return nil, invalid("center", "must not be the camera origin")
	}
	if in.ImageSize.X <= 0 || in.ImageSize.Y <= 0 {
		return nil, invalid("image_size", "must be positive, got %dx%d", in.ImageSize.X, in.ImageSize.Y)
	}
	if !(in.Focal > 0) || math.IsInf(in.Focal, 0) {
		return nil, invalid("focal", "must be positive, got %g", in.Focal)
	}
	if !(in.Distance > 0) || math.IsInf(in.Distance, 0) {
		return nil, invalid("distance", "must be positive, got %g", in.Distance)
	}

	head, err := headMatrix(in.HeadRotation)
	if err != nil {
		return nil, err
	}

	if in.Camera == nil {
		return nil, invalid("camera_matrix", "missing")
	}
	if r, c := in.Camera.Dims(); r != 3 || c != 3 {
		return nil, invalid("camera_matrix", "must be 3x3, got %dx%d", r, c)
	}
	var camInv mat.Dense
	if err := camInv.Inverse(in.Camera); err != nil {
		return nil, invalid("camera_matrix", "not invertible: %v", err)
	}

	ctx := &Context{
		center:   in.Center,
		target:   in.Target,
		head:     head,
		size:     in.ImageSize,
		focal:    in.Focal,
		distance: in.Distance,
	}

	ctx.s = mat.NewDense(3, 3, []float64{
		1, 0, 0,
		0, 1, 0,
		0, 0, in.Distance / curDistance,
	})

	z := in.Center.Mul(1 / curDistance)
	y := z.Cross(geom.Column(head, 0))
	if y.Norm() < 1e-9 {
		return nil, invalid("head_rotation", "head x-axis is parallel to the viewing direction")
	}
	y = y.Normalize()
	x := y.Cross(z).Normalize()
	ctx.r = geom.FromRows(x, y, z)

	ctx.c = mat.NewDense(3, 3, []float64{
		in.Focal, 0, float64(in.ImageSize.X) / 2,
		0, in.Focal, float64(in.ImageSize.Y) / 2,
		0, 0, 1,
	})
	ctx.m = geom.Mul(ctx.s, ctx.r)
	ctx.w = geom.Mul(geom.Mul(ctx.c, ctx.m), &camInv)

	return ctx, nil
}

// headMatrix accepts an axis-angle vector or an orthonormal 3x3 matrix
func headMatrix(h mat.Matrix) (*mat.Dense, error) {
	if h == nil {
		return nil, invalid("head_rotation", "missing")
	}
	r, c := h.Dims()
	switch {
	case r == 3 && c == 1, r == 1 && c == 3:
		var v r3.Vector
		if r == 3 {
			v = geom.Column(h, 0)
		} else {
			v = geom.Row(h, 0)
		}
		if !geom.Finite(v) {
			return nil, invalid("head_rotation", "must be finite")
		}
		return geom.Rodrigues(v), nil
	case r == 3 && c == 3:
		if !geom.IsOrthonormal(h, 1e-6) {
			return nil, invalid("head_rotation", "3x3 matrix is not orthonormal")
		}
		return mat.DenseCopyOf(h), nil
	default:
		return nil, invalid("head_rotation", "must be a 3-vector or 3x3 matrix, got %dx%d", r, c)
	}
}

// S returns the scale matrix
func (c *Context) S() *mat.Dense { return mat.DenseCopyOf(c.s) }

// R returns the rotation into the virtual camera
func (c *Context) R() *mat.Dense { return mat.DenseCopyOf(c.r) }

// M returns S·R
func (c *Context) M() *mat.Dense { return mat.DenseCopyOf(c.m) }

// C returns the virtual camera matrix
func (c *Context) C() *mat.Dense { return mat.DenseCopyOf(c.c) }

// W returns the perspective warp C·M·K⁻¹
func (c *Context) W() *mat.Dense { return mat.DenseCopyOf(c.w) }

// Size returns the normalized image size
func (c *Context) Size() image.Point { return c.size }

// Center returns the eye center in camera space
func (c *Context) Center() r3.Vector { return c.center }

// Project maps a camera-space point into the normalized space (M·p)
func (c *Context) Project(p r3.Vector) r3.Vector {
	return geom.MulVec(c.m, p)
}

// Origin returns the normalized eye center
func (c *Context) Origin() r3.Vector {
	return c.Project(c.center)
}

// ProjectImagePoint returns the normalized-image pixel of a camera-space
// point. ok is false for points behind the virtual camera.
func (c *Context) ProjectImagePoint(p r3.Vector) (r2.Point, bool) {
	q := geom.MulVec(c.c, c.Project(p))
	if q.Z <= 0 {
		return r2.Point{}, false
	}
	return r2.Point{X: q.X / q.Z, Y: q.Y / q.Z}, true
}

// MapPoint maps a pixel of the original image into the normalized image
func (c *Context) MapPoint(p r2.Point) r2.Point {
	q := geom.MulVec(c.w, r3.Vector{X: p.X, Y: p.Y, Z: 1})
	return r2.Point{X: q.X / q.Z, Y: q.Y / q.Z}
}

// GazeVector returns the unit gaze direction, M·g when scaled and R·g
// otherwise, with g = target − center
func (c *Context) GazeVector(scaled bool) r3.Vector {
	g := c.target.Sub(c.center)
	if scaled {
		return geom.MulVec(c.m, g).Normalize()
	}
	return geom.MulVec(c.r, g).Normalize()
}

// HeadRotation returns M·H
func (c *Context) HeadRotation() *mat.Dense {
	return geom.Mul(c.m, c.head)
}

// HeadVector returns M·H as an axis-angle vector
func (c *Context) HeadVector() r3.Vector {
	return geom.AxisAngle(c.HeadRotation())
}

// Params returns the axis-angle vector of R and the diagonal of S
func (c *Context) Params() (rotation, scale r3.Vector) {
	return geom.AxisAngle(c.r), r3.Vector{X: c.s.At(0, 0), Y: c.s.At(1, 1), Z: c.s.At(2, 2)}
}
