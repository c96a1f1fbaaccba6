package pupil

import (
	"image"
	"math"

	"gocv.io/x/gocv"
)

// candidate holds the measurements of one contour
type candidate struct {
	points      []image.Point
	area        float64
	perimeter   float64
	circularity float64
	radius      float64
	circle      image.Point
}

func measure(points []image.Point) candidate {
	pv := gocv.NewPointVectorFromPoints(points)
	defer pv.Close()

	c := candidate{
		points:    points,
		area:      gocv.ContourArea(pv),
		perimeter: gocv.ArcLength(pv, true),
	}
	if c.perimeter > 0 {
		c.circularity = 4 * math.Pi * c.area / (c.perimeter * c.perimeter)
	}
	x, y, r := gocv.MinEnclosingCircle(pv)
	c.radius = float64(r)
	c.circle = image.Pt(int(x), int(y))
	return c
}

// choose runs the circularity pass and, failing that, the polygon fallback
func choose(contours [][]image.Point, cfg Config) Detection {
	if !cfg.SkipCircularity {
		if det, ok := chooseCircular(contours, cfg); ok {
			return det
		}
	}
	if cfg.Fallback {
		if det, ok := chooseApprox(contours, cfg); ok {
			return det
		}
	}
	return Detection{}
}

// chooseCircular returns the largest contour inside the circularity band
func chooseCircular(contours [][]image.Point, cfg Config) (Detection, bool) {
	var best *candidate
	for _, pts := range contours {
		if len(pts) == 0 {
			continue
		}
		c := measure(pts)
		if c.perimeter == 0 {
			continue
		}
		if c.area <= cfg.MinArea {
			continue
		}
		if c.circularity <= cfg.CircularityMin || c.circularity >= cfg.CircularityMax {
			continue
		}
		if c.radius <= cfg.MinRadius {
			continue
		}
		if best == nil || c.area > best.area {
			best = &c
		}
	}
	if best == nil {
		return Detection{}, false
	}
	return Detection{Center: centroid(best.points, best.circle), Contour: best.points, found: true}, true
}

// chooseApprox returns the first contour whose polygon approximation is
// round and large enough
func chooseApprox(contours [][]image.Point, cfg Config) (Detection, bool) {
	for _, pts := range contours {
		if len(pts) == 0 {
			continue
		}
		det, ok := approxCandidate(pts, cfg)
		if ok {
			return det, true
		}
	}
	return Detection{}, false
}

func approxCandidate(pts []image.Point, cfg Config) (Detection, bool) {
	pv := gocv.NewPointVectorFromPoints(pts)
	defer pv.Close()

	arc := gocv.ArcLength(pv, true)
	if arc == 0 {
		return Detection{}, false
	}
	approx := gocv.ApproxPolyDP(pv, cfg.FallbackEpsilon*arc, true)
	defer approx.Close()

	if approx.Size() <= cfg.FallbackMinVertices {
		return Detection{}, false
	}
	if gocv.ContourArea(approx) <= cfg.FallbackMinArea {
		return Detection{}, false
	}
	x, y, r := gocv.MinEnclosingCircle(approx)
	if float64(r) <= cfg.FallbackMinRadius {
		return Detection{}, false
	}
	center := centroid(approx.ToPoints(), image.Pt(int(x), int(y)))
	return Detection{Center: center, Contour: pts, found: true}, true
}

// centroid returns m10/m00, m01/m00 of the polygon, or fallback when the
// polygon has no area
func centroid(pts []image.Point, fallback image.Point) image.Point {
	m00, m10, m01 := moments(pts)
	if m00 == 0 {
		return fallback
	}
	return image.Pt(int(m10/m00), int(m01/m00))
}

// moments computes the zeroth and first order moments of a closed polygon
func moments(pts []image.Point) (m00, m10, m01 float64) {
	n := len(pts)
	if n < 3 {
		return 0, 0, 0
	}
	for i := 0; i < n; i++ {
		x0, y0 := float64(pts[i].X), float64(pts[i].Y)
		x1, y1 := float64(pts[(i+1)%n].X), float64(pts[(i+1)%n].Y)
		cross := x0*y1 - x1*y0
		m00 += cross
		m10 += (x0 + x1) * cross
		m01 += (y0 + y1) * cross
	}
	return m00 / 2, m10 / 6, m01 / 6
}
