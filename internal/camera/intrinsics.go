package camera

import (
	"errors"
	"fmt"
	"math"

	"github.com/golang/geo/r3"
	"gocv.io/x/gocv"
	"gonum.org/v1/gonum/mat"
)

// ErrInvalidIntrinsics is returned when a camera matrix is not usable
var ErrInvalidIntrinsics = errors.New("invalid camera intrinsics")

// Intrinsics holds a pinhole camera matrix and OpenCV-style distortion
// coefficients (k1, k2, p1, p2, k3). Values are never mutated after New.
type Intrinsics struct {
	Matrix     *mat.Dense
	Distortion []float64
}

// New validates and copies a 3x3 camera matrix and up to 5 distortion coefficients
func New(m mat.Matrix, distortion []float64) (Intrinsics, error) {
	if m == nil {
		return Intrinsics{}, fmt.Errorf("%w: missing camera matrix", ErrInvalidIntrinsics)
	}
	r, c := m.Dims()
	if r != 3 || c != 3 {
		return Intrinsics{}, fmt.Errorf("%w: camera matrix is %dx%d, want 3x3", ErrInvalidIntrinsics, r, c)
	}
	if m.At(0, 0) <= 0 || m.At(1, 1) <= 0 {
		return Intrinsics{}, fmt.Errorf("%w: focal lengths must be positive", ErrInvalidIntrinsics)
	}
	if len(distortion) > 5 {
		return Intrinsics{}, fmt.Errorf("%w: %d distortion coefficients, want at most 5", ErrInvalidIntrinsics, len(distortion))
	}

	dist := make([]float64, 5)
	copy(dist, distortion)
	for _, d := range dist {
		if math.IsNaN(d) || math.IsInf(d, 0) {
			return Intrinsics{}, fmt.Errorf("%w: non-finite distortion coefficient", ErrInvalidIntrinsics)
		}
	}

	return Intrinsics{Matrix: mat.DenseCopyOf(m), Distortion: dist}, nil
}

// FromRows builds intrinsics from a row-major camera matrix as found in
// calibration manifests
func FromRows(rows [][]float64, distortion []float64) (Intrinsics, error) {
	if len(rows) != 3 {
		return Intrinsics{}, fmt.Errorf("%w: camera matrix has %d rows, want 3", ErrInvalidIntrinsics, len(rows))
	}
	data := make([]float64, 0, 9)
	for i, row := range rows {
		if len(row) != 3 {
			return Intrinsics{}, fmt.Errorf("%w: camera matrix row %d has %d columns, want 3", ErrInvalidIntrinsics, i, len(row))
		}
		data = append(data, row...)
	}
	return New(mat.NewDense(3, 3, data), distortion)
}

// Approximate returns intrinsics for an uncalibrated camera: focal length
// (w+h)/2, principal point at the image center and no distortion
func Approximate(width, height int) Intrinsics {
	f := float64(width+height) / 2
	return Intrinsics{
		Matrix: mat.NewDense(3, 3, []float64{
			f, 0, float64(width) / 2,
			0, f, float64(height) / 2,
			0, 0, 1,
		}),
		Distortion: make([]float64, 5),
	}
}

// Mats returns the camera matrix (3x3) and distortion coefficients (1x5)
// as CV_64F Mats for calib3d calls. The caller closes both.
func (in Intrinsics) Mats() (cameraMatrix, distCoeffs gocv.Mat) {
	cameraMatrix = gocv.NewMatWithSize(3, 3, gocv.MatTypeCV64F)
	for r := 0; r < 3; r++ {
		for c := 0; c < 3; c++ {
			cameraMatrix.SetDoubleAt(r, c, in.Matrix.At(r, c))
		}
	}

	distCoeffs = gocv.NewMatWithSize(1, len(in.Distortion), gocv.MatTypeCV64F)
	for i, d := range in.Distortion {
		distCoeffs.SetDoubleAt(0, i, d)
	}
	return cameraMatrix, distCoeffs
}

// Fx returns the horizontal focal length in pixels
func (in Intrinsics) Fx() float64 { return in.Matrix.At(0, 0) }

// Fy returns the vertical focal length in pixels
func (in Intrinsics) Fy() float64 { return in.Matrix.At(1, 1) }

// Cx returns the principal point x
func (in Intrinsics) Cx() float64 { return in.Matrix.At(0, 2) }

// Cy returns the principal point y
func (in Intrinsics) Cy() float64 { return in.Matrix.At(1, 2) }

// Inverse returns K⁻¹
func (in Intrinsics) Inverse() (*mat.Dense, error) {
	var inv mat.Dense
	if err := inv.Inverse(in.Matrix); err != nil {
		return nil, fmt.Errorf("failed to invert camera matrix: %w", err)
	}
	return &inv, nil
}

// Project maps a camera-space point to pixel coordinates, applying the
// radial and tangential distortion model. ok is false for points at or
// behind the camera plane.
func (in Intrinsics) Project(p r3.Vector) (u, v float64, ok bool) {
	if p.Z <= eps {
		return 0, 0, false
	}
	x := p.X / p.Z
	y := p.Y / p.Z
	x, y = in.distort(x, y)

	skew := in.Matrix.At(0, 1)
	u = in.Fx()*x + skew*y + in.Cx()
	v = in.Fy()*y + in.Cy()
	return u, v, true
}

// distort applies k1, k2, p1, p2, k3 to normalized image coordinates
func (in Intrinsics) distort(x, y float64) (float64, float64) {
	d := in.Distortion
	if len(d) < 5 {
		return x, y
	}
	k1, k2, p1, p2, k3 := d[0], d[1], d[2], d[3], d[4]
	if k1 == 0 && k2 == 0 && p1 == 0 && p2 == 0 && k3 == 0 {
		return x, y
	}

	r2 := x*x + y*y
	radial := 1 + k1*r2 + k2*r2*r2 + k3*r2*r2*r2
	xd := x*radial + 2*p1*x*y + p2*(r2+2*x*x)
	yd := y*radial + p1*(r2+2*y*y) + 2*p2*x*y
	return xd, yd
}

const eps = 1e-9
