package headpose

import (
	"github.com/golang/geo/r3"
	"gonum.org/v1/gonum/mat"

	"github.com/dudu/gazeprep/internal/geom"
)

// modelScale converts the generic model's units to millimetres
const modelScale = 0.2

// Generic face model in camera-aligned axes (x right, y down, z away from
// the camera) so a face looking straight into the lens has zero rotation.
// Order matches landmark.PosePoints. Left and right are image sides, as in
// landmark.LeftEye.
var GenericModel = [6]r3.Vector{
	scaled(0, 0, 0),         // nose tip
	scaled(0, 330, 65),      // chin
	scaled(-225, -170, 135), // image-left eye outer corner (36)
	scaled(225, -170, 135),  // image-right eye outer corner (45)
	scaled(-150, 150, 125),  // image-left mouth corner (48)
	scaled(150, 150, 125),   // image-right mouth corner (54)
}

// Eye centers of the generic model for landmark.LeftEye and
// landmark.RightEye, same axes as GenericModel
var (
	ModelLeftEye  = scaled(-150, -170, 135)
	ModelRightEye = scaled(150, -170, 135)
)

func scaled(x, y, z float64) r3.Vector {
	return r3.Vector{X: x, Y: y, Z: z}.Mul(modelScale)
}

// Pose is a rigid head transform from model to camera space
type Pose struct {
	Rotation    r3.Vector // axis-angle
	Translation r3.Vector // millimetres
}

// IsZero reports whether the pose is the zero fallback
func (p Pose) IsZero() bool {
	return p.Rotation == (r3.Vector{}) && p.Translation == (r3.Vector{})
}

// Matrix returns the rotation matrix of the pose
func (p Pose) Matrix() *mat.Dense {
	return geom.Rodrigues(p.Rotation)
}

// Transform maps a model point into camera space
func (p Pose) Transform(v r3.Vector) r3.Vector {
	return geom.MulVec(p.Matrix(), v).Add(p.Translation)
}

// EyeCenters returns the camera-space centers of both model eyes
func (p Pose) EyeCenters() (left, right r3.Vector) {
	return p.Transform(ModelLeftEye), p.Transform(ModelRightEye)
}
