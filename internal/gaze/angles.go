package gaze

import (
	"math"

	"github.com/golang/geo/r3"

	"github.com/dudu/gazeprep/internal/geom"
)

// Angles is a direction as yaw and pitch in radians
type Angles struct {
	Yaw   float64
	Pitch float64
}

// GazeTo2D converts a unit gaze vector to yaw and pitch
func GazeTo2D(g r3.Vector) Angles {
	return Angles{
		Yaw:   math.Atan2(-g.X, -g.Z),
		Pitch: math.Asin(clampUnit(-g.Y)),
	}
}

// GazeTo3D converts yaw and pitch back to a unit gaze vector
func GazeTo3D(a Angles) r3.Vector {
	return r3.Vector{
		X: -math.Cos(a.Pitch) * math.Sin(a.Yaw),
		Y: -math.Sin(a.Pitch),
		Z: -math.Cos(a.Pitch) * math.Cos(a.Yaw),
	}
}

// HeadTo2D converts a head axis-angle vector to the yaw and pitch of its
// forward axis
func HeadTo2D(head r3.Vector) Angles {
	v := geom.Column(geom.Rodrigues(head), 2)
	return Angles{
		Yaw:   math.Atan2(v.X, v.Z),
		Pitch: math.Asin(clampUnit(v.Y)),
	}
}

// FlipGaze mirrors a gaze vector left to right
func FlipGaze(g r3.Vector) r3.Vector {
	return r3.Vector{X: -g.X, Y: g.Y, Z: g.Z}
}

// FlipHead mirrors a head rotation left to right: the forward axis has its
// x negated and the basis is rebuilt around it
func FlipHead(head r3.Vector) r3.Vector {
	rot := geom.Rodrigues(head)
	y := geom.Column(rot, 1)
	z := geom.Column(rot, 2)
	z.X = -z.X

	x := y.Cross(z).Normalize()
	y = z.Cross(x).Normalize()
	return geom.AxisAngle(geom.FromColumns(x, y, z))
}

func clampUnit(v float64) float64 {
	return math.Max(-1, math.Min(1, v))
}
