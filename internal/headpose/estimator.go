package headpose

import (
	"errors"
	"fmt"
	"math"

	"github.com/golang/geo/r2"
	"github.com/golang/geo/r3"
	"gocv.io/x/gocv"
	"gonum.org/v1/gonum/mat"

	"github.com/dudu/gazeprep/internal/camera"
	"github.com/dudu/gazeprep/internal/geom"
	"github.com/dudu/gazeprep/internal/landmark"
)

// ErrPoseUnavailable is returned when no pose can be recovered; callers
// substitute the zero Pose
var ErrPoseUnavailable = errors.New("head pose unavailable")

// DefaultMaxReprojectionError is the RMS pixel error above which a
// solution is rejected
const DefaultMaxReprojectionError = 20.0

// cv::SOLVEPNP_ITERATIVE, Levenberg-Marquardt refinement
const solvePnPIterative = 0

// Estimator solves 6-point PnP against a fixed 3D model
type Estimator struct {
	model  [6]r3.Vector
	maxRMS float64
}

// Option configures an Estimator
type Option func(*Estimator)

// WithModel replaces the generic face model
func WithModel(model [6]r3.Vector) Option {
	return func(e *Estimator) {
		e.model = model
	}
}

// WithMaxReprojectionError sets the RMS pixel error limit
func WithMaxReprojectionError(px float64) Option {
	return func(e *Estimator) {
		e.maxRMS = px
	}
}

// NewEstimator creates an estimator for the generic face model
func NewEstimator(opts ...Option) *Estimator {
	e := &Estimator{
		model:  GenericModel,
		maxRMS: DefaultMaxReprojectionError,
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Estimate recovers the head pose from a 68-point shape
func (e *Estimator) Estimate(shape landmark.Accessor, cam camera.Intrinsics) (Pose, error) {
	pts, err := landmark.PosePoints(shape)
	if err != nil {
		return Pose{}, fmt.Errorf("%w: %v", ErrPoseUnavailable, err)
	}
	image := make([]r2.Point, len(pts))
	for i, p := range pts {
		image[i] = r2.Point{X: float64(p.X), Y: float64(p.Y)}
	}
	return e.Solve(image, cam)
}

// Solve recovers the pose mapping the model onto the given image points,
// ordered as the model. The iterative solver runs once from its own DLT
// start and once from each weak-perspective guess; the lowest RMS wins.
func (e *Estimator) Solve(image []r2.Point, cam camera.Intrinsics) (Pose, error) {
	if len(image) != len(e.model) {
		return Pose{}, fmt.Errorf("%w: need %d points, got %d", ErrPoseUnavailable, len(e.model), len(image))
	}
	for _, p := range image {
		if math.IsNaN(p.X) || math.IsNaN(p.Y) || math.IsInf(p.X, 0) || math.IsInf(p.Y, 0) {
			return Pose{}, fmt.Errorf("%w: non-finite image point", ErrPoseUnavailable)
		}
	}
	if cam.Matrix == nil {
		return Pose{}, fmt.Errorf("%w: missing camera matrix", ErrPoseUnavailable)
	}

	objectPts := make([]gocv.Point3f, len(e.model))
	for i, m := range e.model {
		objectPts[i] = gocv.NewPoint3f(float32(m.X), float32(m.Y), float32(m.Z))
	}
	imagePts := make([]gocv.Point2f, len(image))
	for i, p := range image {
		imagePts[i] = gocv.NewPoint2f(float32(p.X), float32(p.Y))
	}

	objects := gocv.NewPoint3fVectorFromPoints(objectPts)
	defer objects.Close()
	points := gocv.NewPoint2fVectorFromPoints(imagePts)
	defer points.Close()
	k, dist := cam.Mats()
	defer k.Close()
	defer dist.Close()

	var (
		best    Pose
		bestRMS = math.Inf(1)
	)
	starts := append([]*Pose{nil}, e.initialGuesses(image, cam)...)
	for _, guess := range starts {
		sol, ok := solvePnP(objects, points, k, dist, guess)
		if !ok {
			continue
		}
		if !geom.Finite(sol.pose.Rotation) || !geom.Finite(sol.pose.Translation) || sol.pose.Translation.Z <= 0 {
			continue
		}
		rms, ok := e.rms(sol.rotation, sol.pose.Translation, image, cam)
		if ok && rms < bestRMS {
			best, bestRMS = sol.pose, rms
		}
	}

	if math.IsInf(bestRMS, 1) {
		return Pose{}, fmt.Errorf("%w: solver did not converge", ErrPoseUnavailable)
	}
	if bestRMS > e.maxRMS {
		return Pose{}, fmt.Errorf("%w: reprojection error %.1fpx", ErrPoseUnavailable, bestRMS)
	}
	return best, nil
}

// solution is one solver result with its rotation matrix
type solution struct {
	pose     Pose
	rotation *mat.Dense
}

// solvePnP runs the iterative solver, starting from guess when given
func solvePnP(objects gocv.Point3fVector, points gocv.Point2fVector, k, dist gocv.Mat, guess *Pose) (solution, bool) {
	rvec := gocv.NewMatWithSizeFromScalar(gocv.NewScalar(0, 0, 0, 0), 3, 1, gocv.MatTypeCV64F)
	defer rvec.Close()
	tvec := gocv.NewMatWithSizeFromScalar(gocv.NewScalar(0, 0, 0, 0), 3, 1, gocv.MatTypeCV64F)
	defer tvec.Close()

	if guess != nil {
		setVector(&rvec, guess.Rotation)
		setVector(&tvec, guess.Translation)
	}

	if !gocv.SolvePnP(objects, points, k, dist, &rvec, &tvec, guess != nil, solvePnPIterative) {
		return solution{}, false
	}
	if rvec.Total() != 3 || tvec.Total() != 3 {
		return solution{}, false
	}

	rotation, err := rotationMatrix(rvec)
	if err != nil {
		return solution{}, false
	}
	return solution{
		pose:     Pose{Rotation: vectorOf(rvec), Translation: vectorOf(tvec)},
		rotation: rotation,
	}, true
}

// rotationMatrix converts a 3x1 CV_64F rotation vector with cv::Rodrigues
func rotationMatrix(rvec gocv.Mat) (*mat.Dense, error) {
	rmat := gocv.NewMat()
	defer rmat.Close()
	if err := gocv.Rodrigues(rvec, &rmat); err != nil {
		return nil, fmt.Errorf("failed to convert rotation vector: %w", err)
	}
	if rmat.Rows() != 3 || rmat.Cols() != 3 {
		return nil, fmt.Errorf("rotation matrix is %dx%d", rmat.Rows(), rmat.Cols())
	}

	r := mat.NewDense(3, 3, nil)
	for i := 0; i < 3; i++ {
		for j := 0; j < 3; j++ {
			r.Set(i, j, rmat.GetDoubleAt(i, j))
		}
	}
	return r, nil
}

func setVector(m *gocv.Mat, v r3.Vector) {
	m.SetDoubleAt(0, 0, v.X)
	m.SetDoubleAt(1, 0, v.Y)
	m.SetDoubleAt(2, 0, v.Z)
}

func vectorOf(m gocv.Mat) r3.Vector {
	if m.Rows() == 1 {
		return r3.Vector{X: m.GetDoubleAt(0, 0), Y: m.GetDoubleAt(0, 1), Z: m.GetDoubleAt(0, 2)}
	}
	return r3.Vector{X: m.GetDoubleAt(0, 0), Y: m.GetDoubleAt(1, 0), Z: m.GetDoubleAt(2, 0)}
}

// rms is the root mean square reprojection error of the model under (r, t)
func (e *Estimator) rms(r mat.Matrix, t r3.Vector, image []r2.Point, cam camera.Intrinsics) (float64, bool) {
	proj, ok := project(e.model[:], r, t, cam)
	if !ok {
		return 0, false
	}
	var sum float64
	for i, q := range proj {
		d := q.Sub(image[i])
		sum += d.X*d.X + d.Y*d.Y
	}
	return math.Sqrt(sum / float64(len(proj))), true
}

// Reproject projects the model under pose, returning pixel positions
func (e *Estimator) Reproject(pose Pose, cam camera.Intrinsics) ([]r2.Point, bool) {
	return project(e.model[:], pose.Matrix(), pose.Translation, cam)
}

func project(model []r3.Vector, r mat.Matrix, t r3.Vector, cam camera.Intrinsics) ([]r2.Point, bool) {
	out := make([]r2.Point, len(model))
	for i, m := range model {
		u, v, ok := cam.Project(geom.MulVec(r, m).Add(t))
		if !ok {
			return nil, false
		}
		out[i] = r2.Point{X: u, Y: v}
	}
	return out, true
}

// initialGuesses returns weak-perspective starts at a few head rotations
func (e *Estimator) initialGuesses(image []r2.Point, cam camera.Intrinsics) []*Pose {
	var mc r3.Vector
	for _, m := range e.model {
		mc = mc.Add(m)
	}
	mc = mc.Mul(1 / float64(len(e.model)))

	var ic r2.Point
	for _, q := range image {
		ic = ic.Add(q)
	}
	ic = ic.Mul(1 / float64(len(image)))

	var modelSpread, imageSpread float64
	for i, m := range e.model {
		d := m.Sub(mc)
		modelSpread += d.X*d.X + d.Y*d.Y
		q := image[i].Sub(ic)
		imageSpread += q.X*q.X + q.Y*q.Y
	}
	f := (cam.Fx() + cam.Fy()) / 2
	depth := 1000.0
	if imageSpread > 0 {
		depth = f * math.Sqrt(modelSpread/imageSpread)
	}

	t := r3.Vector{
		X: (ic.X-cam.Cx())*depth/cam.Fx() - mc.X,
		Y: (ic.Y-cam.Cy())*depth/cam.Fy() - mc.Y,
		Z: depth - mc.Z,
	}

	rotations := []r3.Vector{
		{},
		{Y: 0.6}, {Y: -0.6},
		{X: 0.5}, {X: -0.5},
		{Z: 0.5}, {Z: -0.5},
	}
	out := make([]*Pose, len(rotations))
	for i, r := range rotations {
		out[i] = &Pose{Rotation: r, Translation: t}
	}
	return out
}
