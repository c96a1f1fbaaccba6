package source

import (
	"errors"
	"fmt"
	"io"

	"github.com/golang/geo/r3"
	jsoniter "github.com/json-iterator/go"

	"github.com/dudu/gazeprep/internal/camera"
	"github.com/dudu/gazeprep/internal/landmark"
)

// ManifestName is the manifest object at the root of a source
const ManifestName = "manifest.json"

// ErrNotFound is returned when a key does not exist in a source
var ErrNotFound = errors.New("object not found")

var json = jsoniter.ConfigCompatibleWithStandardLibrary

// Matrix is a row-major matrix. Capture clients send it either as a JSON
// array or as a string holding one.
type Matrix [][]float64

func (m *Matrix) UnmarshalJSON(data []byte) error {
	var rows [][]float64
	if err := json.Unmarshal(unquote(data), &rows); err != nil {
		return fmt.Errorf("failed to decode matrix: %w", err)
	}
	*m = rows
	return nil
}

// Coefficients is a flat list of numbers, encoded like Matrix
type Coefficients []float64

func (c *Coefficients) UnmarshalJSON(data []byte) error {
	var values []float64
	if err := json.Unmarshal(unquote(data), &values); err != nil {
		return fmt.Errorf("failed to decode coefficients: %w", err)
	}
	*c = values
	return nil
}

func unquote(data []byte) []byte {
	if len(data) > 0 && data[0] == '"' {
		var s string
		if err := json.Unmarshal(data, &s); err == nil {
			return []byte(s)
		}
	}
	return data
}

// CameraInfo holds the calibration reported by the capture client
type CameraInfo struct {
	CameraMatrix Matrix       `json:"cameraMatrix"`
	DistCoeffs   Coefficients `json:"distCoeffs"`
}

// Empty reports whether no calibration was recorded
func (c CameraInfo) Empty() bool {
	return len(c.CameraMatrix) == 0
}

// Intrinsics validates the calibration
func (c CameraInfo) Intrinsics() (camera.Intrinsics, error) {
	return camera.FromRows(c.CameraMatrix, c.DistCoeffs)
}

// Vec3 is a 3D point in camera space, millimetres
type Vec3 [3]float64

// R3 converts the point to a vector
func (v Vec3) R3() r3.Vector {
	return r3.Vector{X: v[0], Y: v[1], Z: v[2]}
}

// ScreenPoint is the on-screen gaze target in pixels
type ScreenPoint struct {
	X float64 `json:"x"`
	Y float64 `json:"y"`
}

// Frame is one captured image and its annotations
type Frame struct {
	Image       string       `json:"image"`
	Landmarks   [][2]float64 `json:"landmarks"`
	Screen      *ScreenPoint `json:"screen,omitempty"`
	Target      *Vec3        `json:"target,omitempty"`
	LeftCenter  *Vec3        `json:"leftCenter,omitempty"`
	RightCenter *Vec3        `json:"rightCenter,omitempty"`
	Camera      *CameraInfo  `json:"camera,omitempty"`
}

// Shape returns the 68 landmarks of the frame
func (f Frame) Shape() (*landmark.Shape, error) {
	return landmark.FromPairs(f.Landmarks)
}

// EyeCenter returns the annotated 3D center of one eye, if any
func (f Frame) EyeCenter(which landmark.Eye) (r3.Vector, bool) {
	c := f.LeftCenter
	if which == landmark.RightEye {
		c = f.RightCenter
	}
	if c == nil {
		return r3.Vector{}, false
	}
	return c.R3(), true
}

// Manifest lists the frames of a capture session
type Manifest struct {
	Camera CameraInfo `json:"camera"`
	Frames []Frame    `json:"frames"`
}

// CameraFor returns the calibration of a frame, falling back to the
// session calibration. ok is false when neither is recorded.
func (m *Manifest) CameraFor(f Frame) (camera.Intrinsics, bool, error) {
	info := m.Camera
	if f.Camera != nil && !f.Camera.Empty() {
		info = *f.Camera
	}
	if info.Empty() {
		return camera.Intrinsics{}, false, nil
	}
	in, err := info.Intrinsics()
	if err != nil {
		return camera.Intrinsics{}, false, fmt.Errorf("failed to read camera of %s: %w", f.Image, err)
	}
	return in, true, nil
}

// Decode reads a manifest
func Decode(r io.Reader) (*Manifest, error) {
	var m Manifest
	if err := json.NewDecoder(r).Decode(&m); err != nil {
		return nil, fmt.Errorf("failed to decode manifest: %w", err)
	}
	for i, f := range m.Frames {
		if f.Image == "" {
			return nil, fmt.Errorf("failed to decode manifest: frame %d has no image", i)
		}
	}
	return &m, nil
}
