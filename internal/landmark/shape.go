package landmark

import (
	"errors"
	"fmt"
	"image"
)

// NumPoints is the size of the iBUG 68-point markup
const NumPoints = 68

// Indices used by the pose solver and eye extraction
const (
	Chin           = 8
	NoseTip        = 30
	LeftEyeOuter   = 36
	LeftEyeInner   = 39
	RightEyeInner  = 42
	RightEyeOuter  = 45
	LeftMouth      = 48
	RightMouth     = 54
	leftEyeFirst   = 36
	rightEyeFirst  = 42
	eyeContourSize = 6
)

// ErrShortShape is returned when a landmark set has fewer than 68 points
var ErrShortShape = errors.New("landmark shape has fewer than 68 points")

// Point represents a 2D landmark in image pixels
type Point struct {
	X, Y int
}

// Pt converts the landmark to an image.Point
func (p Point) Pt() image.Point {
	return image.Pt(p.X, p.Y)
}

// Accessor is the read contract of a landmark predictor's output
type Accessor interface {
	Part(i int) Point
	NumParts() int
}

// Shape holds the 68 landmarks of one detected face
type Shape [NumPoints]Point

// Part returns landmark i
func (s *Shape) Part(i int) Point {
	return s[i]
}

// NumParts returns the number of landmarks
func (s *Shape) NumParts() int {
	return NumPoints
}

// FromPairs builds a shape from [x, y] pairs as found in manifests
func FromPairs(pairs [][2]float64) (*Shape, error) {
	if len(pairs) < NumPoints {
		return nil, fmt.Errorf("%w: got %d", ErrShortShape, len(pairs))
	}
	var s Shape
	for i := 0; i < NumPoints; i++ {
		s[i] = Point{X: round(pairs[i][0]), Y: round(pairs[i][1])}
	}
	return &s, nil
}

// Eye identifies one eye by its image side
type Eye int

const (
	// LeftEye is the eye on the left of the image (landmarks 36-41)
	LeftEye Eye = iota
	// RightEye is the eye on the right of the image (landmarks 42-47)
	RightEye
)

// String returns the label used in dataset records
func (e Eye) String() string {
	if e == RightEye {
		return "right"
	}
	return "left"
}

// Indices returns the 6 contour indices of the eye
func (e Eye) Indices() []int {
	first := leftEyeFirst
	if e == RightEye {
		first = rightEyeFirst
	}
	idx := make([]int, eyeContourSize)
	for i := range idx {
		idx[i] = first + i
	}
	return idx
}

// Corners returns the outer and inner corner indices of the eye
func (e Eye) Corners() (outer, inner int) {
	if e == RightEye {
		return RightEyeOuter, RightEyeInner
	}
	return LeftEyeOuter, LeftEyeInner
}

// Select returns the landmarks at the given indices
func Select(a Accessor, indices []int) ([]Point, error) {
	out := make([]Point, 0, len(indices))
	for _, i := range indices {
		if i < 0 || i >= a.NumParts() {
			return nil, fmt.Errorf("landmark index %d out of range [0,%d)", i, a.NumParts())
		}
		out = append(out, a.Part(i))
	}
	return out, nil
}

// PosePoints returns nose tip, chin, outer eye corners and mouth corners
// in that order
func PosePoints(a Accessor) ([]Point, error) {
	return Select(a, []int{NoseTip, Chin, LeftEyeOuter, RightEyeOuter, LeftMouth, RightMouth})
}

// BoundingBox computes the tight box around a set of points
func BoundingBox(pts []Point) image.Rectangle {
	if len(pts) == 0 {
		return image.Rectangle{}
	}
	minX, minY := pts[0].X, pts[0].Y
	maxX, maxY := pts[0].X, pts[0].Y
	for _, p := range pts[1:] {
		if p.X < minX {
			minX = p.X
		}
		if p.X > maxX {
			maxX = p.X
		}
		if p.Y < minY {
			minY = p.Y
		}
		if p.Y > maxY {
			maxY = p.Y
		}
	}
	return image.Rect(minX, minY, maxX, maxY)
}

func round(f float64) int {
	if f < 0 {
		return int(f - 0.5)
	}
	return int(f + 0.5)
}
