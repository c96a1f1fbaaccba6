package gaze

import (
	"errors"
	"image"
	"image/color"
	"math"
	"testing"

	"github.com/golang/geo/r2"
	"github.com/golang/geo/r3"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gocv.io/x/gocv"
	"gonum.org/v1/gonum/mat"

	"github.com/dudu/gazeprep/internal/geom"
)

func testCamera() *mat.Dense {
	return mat.NewDense(3, 3, []float64{560, 0, 320, 0, 560, 240, 0, 0, 1})
}

func testInput() Input {
	return Input{
		Center:       r3.Vector{X: -30, Y: -34, Z: 627},
		Target:       r3.Vector{X: 120, Y: 80, Z: 0},
		HeadRotation: HeadVector(r3.Vector{X: 0.1, Y: -0.2, Z: 0.05}),
		ImageSize:    image.Pt(EyeWidth, EyeHeight),
		Camera:       testCamera(),
	}
}

func newContext(t *testing.T, in Input) *Context {
	t.Helper()
	ctx, err := NewContext(in)
	require.NoError(t, err)
	return ctx
}

func TestContextInvariants(t *testing.T) {
	inputs := []Input{
		testInput(),
		{Center: r3.Vector{X: 45, Y: 20, Z: 480}, Target: r3.Vector{Y: -100}, HeadRotation: geom.Identity(), ImageSize: image.Pt(640, 480), Camera: testCamera(), Focal: 650, Distance: 300},
		{Center: r3.Vector{X: -80, Y: 60, Z: 900}, Target: r3.Vector{X: 10, Z: 50}, HeadRotation: HeadVector(r3.Vector{Y: 0.7}), ImageSize: image.Pt(224, 224), Camera: testCamera()},
	}

	for _, in := range inputs {
		ctx := newContext(t, in)

		assert.True(t, geom.IsOrthonormal(ctx.R(), 1e-9))
		assert.InDelta(t, 1, mat.Det(ctx.R()), 1e-9)

		distance := in.Distance
		if distance == 0 {
			distance = DefaultDistance
		}
		s := ctx.S()
		assert.InDelta(t, distance/in.Center.Norm(), s.At(2, 2), 1e-12)
		for i := 0; i < 3; i++ {
			for j := 0; j < 3; j++ {
				if i != j {
					assert.Equal(t, 0.0, s.At(i, j))
				}
			}
		}

		assert.True(t, mat.EqualApprox(ctx.M(), geom.Mul(ctx.S(), ctx.R()), 1e-12))
	}
}

func TestContextDefaults(t *testing.T) {
	ctx := newContext(t, testInput())
	c := ctx.C()

	assert.Equal(t, DefaultFocal, c.At(0, 0))
	assert.Equal(t, DefaultFocal, c.At(1, 1))
	assert.Equal(t, 30.0, c.At(0, 2))
	assert.Equal(t, 18.0, c.At(1, 2))
}

func TestAccessorsReturnCopies(t *testing.T) {
	ctx := newContext(t, testInput())

	m := ctx.M()
	m.Set(0, 0, 42)
	assert.NotEqual(t, 42.0, ctx.M().At(0, 0))
}

func TestCenterMapsToImageCenter(t *testing.T) {
	ctx := newContext(t, testInput())
	center := ctx.Center()

	origin := ctx.Origin()
	assert.InDelta(t, 0, origin.X, 1e-9)
	assert.InDelta(t, 0, origin.Y, 1e-9)
	assert.InDelta(t, DefaultDistance, origin.Z, 1e-9)

	p, ok := ctx.ProjectImagePoint(center)
	require.True(t, ok)
	assert.InDelta(t, 30, p.X, 1e-9)
	assert.InDelta(t, 18, p.Y, 1e-9)

	// pixel of the eye center in the source camera
	px := r2.Point{X: 560*center.X/center.Z + 320, Y: 560*center.Y/center.Z + 240}
	q := ctx.MapPoint(px)
	assert.InDelta(t, 30, q.X, 1e-6)
	assert.InDelta(t, 18, q.Y, 1e-6)
}

func TestGazeVectorIsUnit(t *testing.T) {
	ctx := newContext(t, testInput())

	for _, scaled := range []bool{true, false} {
		g := ctx.GazeVector(scaled)
		assert.InDelta(t, 1, g.Norm(), 1e-12)
	}

	// R·g and M·g only differ in their z scaling before normalization
	r := ctx.GazeVector(false)
	m := ctx.GazeVector(true)
	assert.Equal(t, math.Signbit(r.X), math.Signbit(m.X))
}

func TestHeadMatrixAndVectorInputsAgree(t *testing.T) {
	v := r3.Vector{X: 0.1, Y: -0.2, Z: 0.05}

	a := testInput()
	b := testInput()
	b.HeadRotation = geom.Rodrigues(v)
	c := testInput()
	c.HeadRotation = mat.NewDense(1, 3, []float64{v.X, v.Y, v.Z})

	ha := newContext(t, a).HeadVector()
	hb := newContext(t, b).HeadVector()
	hc := newContext(t, c).HeadVector()

	assert.InDelta(t, ha.X, hb.X, 1e-9)
	assert.InDelta(t, ha.Y, hb.Y, 1e-9)
	assert.InDelta(t, ha.Z, hc.Z, 1e-9)
	assert.True(t, mat.EqualApprox(newContext(t, a).HeadRotation(), newContext(t, b).HeadRotation(), 1e-9))
}

func TestParams(t *testing.T) {
	in := testInput()
	ctx := newContext(t, in)

	rvec, svec := ctx.Params()
	assert.Equal(t, 1.0, svec.X)
	assert.Equal(t, 1.0, svec.Y)
	assert.InDelta(t, DefaultDistance/in.Center.Norm(), svec.Z, 1e-12)
	assert.True(t, mat.EqualApprox(geom.Rodrigues(rvec), ctx.R(), 1e-9))
}

func TestInvalidGeometry(t *testing.T) {
	tests := []struct {
		field  string
		mutate func(*Input)
	}{
		{"center", func(in *Input) { in.Center = r3.Vector{} }},
		{"center", func(in *Input) { in.Center.Y = math.NaN() }},
		{"target", func(in *Input) { in.Target.Z = math.Inf(-1) }},
		{"image_size", func(in *Input) { in.ImageSize = image.Pt(0, 36) }},
		{"focal", func(in *Input) { in.Focal = -1 }},
		{"distance", func(in *Input) { in.Distance = math.NaN() }},
		{"head_rotation", func(in *Input) { in.HeadRotation = nil }},
		{"head_rotation", func(in *Input) { in.HeadRotation = mat.NewDense(2, 2, nil) }},
		{"head_rotation", func(in *Input) { in.HeadRotation = mat.NewDense(3, 3, []float64{1, 0, 0, 0, 2, 0, 0, 0, 1}) }},
		{"head_rotation", func(in *Input) { in.Center = r3.Vector{X: 500}; in.HeadRotation = geom.Identity() }},
		{"camera_matrix", func(in *Input) { in.Camera = mat.NewDense(2, 3, nil) }},
		{"camera_matrix", func(in *Input) { in.Camera = mat.NewDense(3, 3, nil) }},
		{"camera_matrix", func(in *Input) { in.Camera = nil }},
	}

	for _, tt := range tests {
		t.Run(tt.field, func(t *testing.T) {
			in := testInput()
			tt.mutate(&in)

			ctx, err := NewContext(in)
			require.Error(t, err)
			assert.Nil(t, ctx)

			var geomErr *InvalidGeometryError
			require.True(t, errors.As(err, &geomErr))
			assert.Equal(t, tt.field, geomErr.Field)
			assert.Contains(t, err.Error(), tt.field)
		})
	}
}

func TestWarpImage(t *testing.T) {
	img := gocv.NewMatWithSizeFromScalar(gocv.NewScalar(128, 0, 0, 0), 480, 640, gocv.MatTypeCV8UC1)
	defer img.Close()

	in := testInput()
	in.ImageSize = image.Pt(640, 480)
	ctx := newContext(t, in)

	warped, err := ctx.WarpImage(img)
	require.NoError(t, err)
	defer warped.Close()

	warpedImg := warped.Image()
	assert.Equal(t, 640, warpedImg.Cols())
	assert.Equal(t, 480, warpedImg.Rows())

	eye, err := warped.CropEye(r2.Point{X: 280, Y: 240}, r2.Point{X: 360, Y: 244})
	require.NoError(t, err)
	assert.Equal(t, EyeWidth, eye.Cols())
	assert.Equal(t, EyeHeight, eye.Rows())
	eye.Close()

	eye, err = warped.CropEyeAt(r2.Point{X: 5, Y: 470})
	require.NoError(t, err)
	assert.Equal(t, EyeWidth, eye.Cols())
	assert.Equal(t, EyeHeight, eye.Rows())
	eye.Close()

	_, err = warped.CropEyeAt(r2.Point{X: 900, Y: 240})
	assert.True(t, errors.Is(err, ErrEmptyCrop))
}

func TestWarpWithoutImage(t *testing.T) {
	ctx := newContext(t, testInput())

	empty := gocv.NewMat()
	defer empty.Close()

	warped, err := ctx.WarpImage(empty)
	assert.True(t, errors.Is(err, ErrNoImage))
	assert.Nil(t, warped)

	var none *Warped
	_, err = none.CropEye(r2.Point{X: 1}, r2.Point{X: 9})
	assert.True(t, errors.Is(err, ErrNoImage))
	_, err = none.CropEyeAt(r2.Point{})
	assert.True(t, errors.Is(err, ErrNoImage))

	_, err = ctx.Sample(empty, SampleOptions{})
	assert.True(t, errors.Is(err, ErrNoImage))
}

func TestSampleMirror(t *testing.T) {
	img := gocv.NewMatWithSizeFromScalar(gocv.NewScalar(0, 0, 0, 0), 480, 640, gocv.MatTypeCV8UC3)
	defer img.Close()
	gocv.Rectangle(&img, image.Rect(0, 0, 293, 480), color.RGBA{R: 255, G: 255, B: 255, A: 255}, -1)

	ctx := newContext(t, testInput())

	plain, err := ctx.Sample(img, SampleOptions{Scaled: true, Equalize: true})
	require.NoError(t, err)
	defer plain.Close()
	mirrored, err := ctx.Sample(img, SampleOptions{Scaled: true, Equalize: true, Mirror: true})
	require.NoError(t, err)
	defer mirrored.Close()

	assert.Equal(t, 1, plain.Image.Channels())
	assert.Equal(t, EyeWidth, plain.Image.Cols())
	assert.Equal(t, EyeHeight, plain.Image.Rows())

	assert.Equal(t, FlipGaze(plain.Gaze3D), mirrored.Gaze3D)
	assert.Equal(t, -plain.Origin.X, mirrored.Origin.X)
	assert.InDelta(t, -plain.Gaze2D.Yaw, mirrored.Gaze2D.Yaw, 1e-12)
	assert.Equal(t, plain.RotationParams, mirrored.RotationParams)
	assert.True(t, mirrored.Mirrored)

	assert.Equal(t, plain.Image.GetUCharAt(10, 0), mirrored.Image.GetUCharAt(10, EyeWidth-1))
}
