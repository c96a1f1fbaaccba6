package gaze_test

import (
	"image"
	"math"
	"testing"

	"github.com/golang/geo/r3"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dudu/gazeprep/internal/camera"
	"github.com/dudu/gazeprep/internal/gaze"
	"github.com/dudu/gazeprep/internal/headpose"
	"github.com/dudu/gazeprep/internal/landmark"
)

// A face 600mm in front of the camera looking at a target straight ahead
// of its left eye normalizes to zero gaze angles.
func TestFrontalFaceNormalizesToZeroGaze(t *testing.T) {
	cam, err := camera.FromRows([][]float64{{560, 0, 320}, {0, 560, 240}, {0, 0, 1}}, make([]float64, 5))
	require.NoError(t, err)

	estimator := headpose.NewEstimator()
	truth := headpose.Pose{Translation: r3.Vector{Z: 600}}
	pts, ok := estimator.Reproject(truth, cam)
	require.True(t, ok)

	var shape landmark.Shape
	for i, idx := range []int{landmark.NoseTip, landmark.Chin, landmark.LeftEyeOuter, landmark.RightEyeOuter, landmark.LeftMouth, landmark.RightMouth} {
		shape[idx] = landmark.Point{X: int(math.Round(pts[i].X)), Y: int(math.Round(pts[i].Y))}
	}

	pose, err := estimator.Estimate(&shape, cam)
	require.NoError(t, err)
	assert.Less(t, pose.Rotation.Norm(), 0.05)

	center, _ := pose.EyeCenters()
	target := center.Mul(1 - 600/center.Norm())

	ctx, err := gaze.NewContext(gaze.Input{
		Center:       center,
		Target:       target,
		HeadRotation: pose.Matrix(),
		ImageSize:    image.Pt(gaze.EyeWidth, gaze.EyeHeight),
		Camera:       cam.Matrix,
	})
	require.NoError(t, err)

	for _, scaled := range []bool{true, false} {
		angles := gaze.GazeTo2D(ctx.GazeVector(scaled))
		assert.InDelta(t, 0, angles.Yaw, 1e-9)
		assert.InDelta(t, 0, angles.Pitch, 1e-9)
	}

	head := gaze.HeadTo2D(ctx.HeadVector())
	assert.Less(t, math.Abs(head.Yaw), 0.15)
	assert.Less(t, math.Abs(head.Pitch), 0.15)
}
