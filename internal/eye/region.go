package eye

import (
	"errors"
	"fmt"
	"image"
	"image/color"

	"gocv.io/x/gocv"

	"github.com/dudu/gazeprep/internal/landmark"
)

// DefaultBuffer is the pixel margin added around the eye polygon
const DefaultBuffer = 1

// LosslessBuffer is the wider margin used when crops feed super-resolution
const LosslessBuffer = 3

// ErrDegenerateRegion is returned when the clamped box has no area
var ErrDegenerateRegion = errors.New("degenerate eye region")

// Box is a pixel rectangle covering [MinX,MaxX)×[MinY,MaxY)
type Box struct {
	MinX, MinY int
	MaxX, MaxY int
}

// Width returns box width
func (b Box) Width() int {
	return b.MaxX - b.MinX
}

// Height returns box height
func (b Box) Height() int {
	return b.MaxY - b.MinY
}

// Empty reports whether the box has zero area
func (b Box) Empty() bool {
	return b.Width() <= 0 || b.Height() <= 0
}

// Origin returns the top-left corner
func (b Box) Origin() image.Point {
	return image.Pt(b.MinX, b.MinY)
}

// Rect converts the box to an image.Rectangle
func (b Box) Rect() image.Rectangle {
	return image.Rect(b.MinX, b.MinY, b.MaxX, b.MaxY)
}

// XYWH returns the box as origin plus size
func (b Box) XYWH() [4]int {
	return [4]int{b.MinX, b.MinY, b.Width(), b.Height()}
}

// Region is a masked eye crop and the box it was cut from
type Region struct {
	Crop gocv.Mat
	Box  Box
}

// Close releases the crop
func (r *Region) Close() error {
	return r.Crop.Close()
}

// Extractor cuts eye regions out of face images
type Extractor struct {
	buffer int
}

// NewExtractor creates an extractor with the given pixel buffer.
// Negative values fall back to DefaultBuffer.
func NewExtractor(buffer int) *Extractor {
	if buffer < 0 {
		buffer = DefaultBuffer
	}
	return &Extractor{buffer: buffer}
}

// Buffer returns the configured margin
func (e *Extractor) Buffer() int {
	return e.buffer
}

// BoxFor computes the buffered, clamped box around a polygon for an image
// of the given size
func BoxFor(polygon []landmark.Point, width, height, buffer int) Box {
	bounds := landmark.BoundingBox(polygon)
	return Box{
		MinX: clamp(bounds.Min.X-buffer, 0, width),
		MinY: clamp(bounds.Min.Y-buffer, 0, height),
		MaxX: clamp(bounds.Max.X+buffer, 0, width),
		MaxY: clamp(bounds.Max.Y+buffer, 0, height),
	}
}

// Extract masks the eye polygon out of img and crops its box. Pixels
// inside the box but outside the polygon are black in the crop.
func (e *Extractor) Extract(img gocv.Mat, shape landmark.Accessor, which landmark.Eye) (*Region, error) {
	return e.ExtractPoints(img, shape, which.Indices())
}

// ExtractPoints is Extract for an arbitrary contour
func (e *Extractor) ExtractPoints(img gocv.Mat, shape landmark.Accessor, indices []int) (*Region, error) {
	if img.Empty() {
		return nil, fmt.Errorf("failed to extract eye region: empty image")
	}
	polygon, err := landmark.Select(shape, indices)
	if err != nil {
		return nil, fmt.Errorf("failed to select eye landmarks: %w", err)
	}

	box := BoxFor(polygon, img.Cols(), img.Rows(), e.buffer)
	if box.Empty() {
		return nil, ErrDegenerateRegion
	}

	mask := gocv.Zeros(img.Rows(), img.Cols(), gocv.MatTypeCV8U)
	defer mask.Close()

	pts := make([]image.Point, len(polygon))
	for i, p := range polygon {
		pts[i] = p.Pt()
	}
	pv := gocv.NewPointsVectorFromPoints([][]image.Point{pts})
	defer pv.Close()
	gocv.FillPoly(&mask, pv, color.RGBA{R: 255, G: 255, B: 255, A: 255})

	masked := gocv.NewMat()
	defer masked.Close()
	gocv.BitwiseAndWithMask(img, img, &masked, mask)

	roi := masked.Region(box.Rect())
	defer roi.Close()

	return &Region{Crop: roi.Clone(), Box: box}, nil
}

func clamp(v, lo, hi int) int {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
