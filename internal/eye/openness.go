package eye

import (
	"math"

	"github.com/dudu/gazeprep/internal/landmark"
)

// MinAspectRatio is the eye aspect ratio below which an eye counts as closed
const MinAspectRatio = 0.2

// BlinkThreshold is the horizontal/vertical ratio above which a face is blinking
const BlinkThreshold = 5.7

// AspectRatio returns (|p2-p6| + |p3-p5|) / (2|p1-p4|) for a 6-point eye contour
func AspectRatio(shape landmark.Accessor, which landmark.Eye) float64 {
	p := contour(shape, which)
	horizontal := dist(p[0], p[3])
	if horizontal == 0 {
		return 0
	}
	return (dist(p[1], p[5]) + dist(p[2], p[4])) / (2 * horizontal)
}

// BlinkRatio returns the corner distance over the lid midpoint distance.
// A fully closed eye yields +Inf.
func BlinkRatio(shape landmark.Accessor, which landmark.Eye) float64 {
	p := contour(shape, which)
	topX, topY := mid(p[1], p[2])
	botX, botY := mid(p[5], p[4])
	vertical := math.Hypot(topX-botX, topY-botY)
	horizontal := dist(p[0], p[3])
	if vertical == 0 {
		return math.Inf(1)
	}
	return horizontal / vertical
}

// IsBlinking averages both eyes' blink ratios against threshold
func IsBlinking(shape landmark.Accessor, threshold float64) bool {
	ratio := (BlinkRatio(shape, landmark.LeftEye) + BlinkRatio(shape, landmark.RightEye)) / 2
	return ratio > threshold
}

func contour(shape landmark.Accessor, which landmark.Eye) [6]landmark.Point {
	var out [6]landmark.Point
	for i, idx := range which.Indices() {
		out[i] = shape.Part(idx)
	}
	return out
}

func dist(a, b landmark.Point) float64 {
	return math.Hypot(float64(a.X-b.X), float64(a.Y-b.Y))
}

func mid(a, b landmark.Point) (float64, float64) {
	return float64(a.X+b.X) / 2, float64(a.Y+b.Y) / 2
}
