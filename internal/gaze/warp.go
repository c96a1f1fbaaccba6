package gaze

import (
	"errors"
	"image"
	"math"

	"github.com/golang/geo/r2"
	"gocv.io/x/gocv"
)

// Eye crop geometry of the normalized image
const (
	EyeWidth  = 60
	EyeHeight = 36

	cornerScale = 1.5
	centerScale = 1.2
)

// ErrEmptyCrop is returned when a crop window falls outside the image
var ErrEmptyCrop = errors.New("eye crop is empty")

// Warped is an image rendered under a normalization context. Cropping is
// only available on this type.
type Warped struct {
	img  gocv.Mat
	size image.Point
}

// WarpImage renders img under the virtual camera
func (c *Context) WarpImage(img gocv.Mat) (*Warped, error) {
	if img.Empty() {
		return nil, ErrNoImage
	}

	w := gocv.NewMatWithSize(3, 3, gocv.MatTypeCV64F)
	defer w.Close()
	for i := 0; i < 3; i++ {
		for j := 0; j < 3; j++ {
			w.SetDoubleAt(i, j, c.w.At(i, j))
		}
	}

	out := gocv.NewMat()
	gocv.WarpPerspective(img, &out, w, c.size)
	return &Warped{img: out, size: c.size}, nil
}

// Image returns the warped image; it stays owned by w
func (w *Warped) Image() gocv.Mat {
	return w.img
}

// Empty reports whether there is no image to crop
func (w *Warped) Empty() bool {
	return w == nil || w.img.Empty()
}

// Close releases the warped image
func (w *Warped) Close() error {
	if w == nil {
		return nil
	}
	return w.img.Close()
}

// CropEye cuts a 60:36 window centred between two eye corners, 1.5 times
// the corner distance wide, resized to 60x36
func (w *Warped) CropEye(a, b r2.Point) (gocv.Mat, error) {
	width := math.Abs(a.X-b.X) * cornerScale
	height := width * EyeHeight / EyeWidth
	center := r2.Point{X: (a.X + b.X) / 2, Y: (a.Y + b.Y) / 2}
	return w.crop(center, width, height)
}

// CropEyeAt cuts a fixed 72x43.2 window around center, resized to 60x36
func (w *Warped) CropEyeAt(center r2.Point) (gocv.Mat, error) {
	return w.crop(center, EyeWidth*centerScale, EyeHeight*centerScale)
}

func (w *Warped) crop(center r2.Point, width, height float64) (gocv.Mat, error) {
	if w.Empty() {
		return gocv.NewMat(), ErrNoImage
	}

	x1 := math.Max(center.X-width/2, 0)
	y1 := math.Max(center.Y-height/2, 0)
	x2 := math.Min(x1+width, float64(w.size.X))
	y2 := math.Min(y1+height, float64(w.size.Y))

	if x2 <= x1 || y2 <= y1 {
		return gocv.NewMat(), ErrEmptyCrop
	}
	rect := image.Rect(int(x1), int(y1), int(x2), int(y2))
	if rect.Empty() {
		return gocv.NewMat(), ErrEmptyCrop
	}

	roi := w.img.Region(rect)
	defer roi.Close()

	out := gocv.NewMat()
	gocv.Resize(roi, &out, image.Pt(EyeWidth, EyeHeight), 0, 0, gocv.InterpolationLinear)
	return out, nil
}
