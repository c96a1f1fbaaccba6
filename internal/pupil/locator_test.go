package pupil

import (
	"errors"
	"image"
	"image/color"
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gocv.io/x/gocv"
)

func circlePoints(cx, cy, r float64, n int) []image.Point {
	pts := make([]image.Point, n)
	for i := range pts {
		a := 2 * math.Pi * float64(i) / float64(n)
		pts[i] = image.Pt(int(math.Round(cx+r*math.Cos(a))), int(math.Round(cy+r*math.Sin(a))))
	}
	return pts
}

// eyeCrop draws a dark disc on a light background
func eyeCrop(t *testing.T, w, h int, center image.Point, radius int, channels int) gocv.Mat {
	t.Helper()
	typ := gocv.MatTypeCV8UC1
	if channels == 3 {
		typ = gocv.MatTypeCV8UC3
	}
	img := gocv.NewMatWithSizeFromScalar(gocv.NewScalar(210, 210, 210, 0), h, w, typ)
	if radius > 0 {
		gocv.Circle(&img, center, radius, color.RGBA{R: 40, G: 40, B: 40, A: 255}, -1)
	}
	return img
}

func newLocator(t *testing.T, cfg Config, opts ...Option) *Locator {
	t.Helper()
	l, err := NewLocator(cfg, opts...)
	require.NoError(t, err)
	t.Cleanup(func() { l.Close() })
	return l
}

func TestLocateSyntheticBlob(t *testing.T) {
	tests := []struct {
		name     string
		cfg      Config
		channels int
		center   image.Point
		radius   int
	}{
		{"default gray", PresetDefault, 1, image.Pt(37, 24), 10},
		{"default color", PresetDefault, 3, image.Pt(30, 20), 8},
		{"circular", PresetCircular, 1, image.Pt(42, 25), 9},
		{"mean threshold", withThreshold(PresetDefault, ThresholdMean), 1, image.Pt(35, 22), 10},
		{"bilateral", withBlur(PresetDefault, BlurBilateral, 9), 3, image.Pt(40, 26), 10},
		{"superres preset without model", PresetSuperRes, 1, image.Pt(36, 25), 10},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			crop := eyeCrop(t, 80, 50, tt.center, tt.radius, tt.channels)
			defer crop.Close()

			det, err := newLocator(t, tt.cfg).Locate(crop)
			require.NoError(t, err)
			require.True(t, det.Found())

			assert.InDelta(t, tt.center.X, det.Center.X, 2)
			assert.InDelta(t, tt.center.Y, det.Center.Y, 2)
			assert.NotEmpty(t, det.Contour)
		})
	}
}

func withThreshold(cfg Config, m ThresholdMethod) Config {
	cfg.Threshold = m
	return cfg
}

func withBlur(cfg Config, b BlurMethod, size int) Config {
	cfg.Blur = b
	cfg.BlurSize = size
	return cfg
}

func TestLocateBlankCrop(t *testing.T) {
	for name, cfg := range Presets {
		t.Run(name, func(t *testing.T) {
			crop := eyeCrop(t, 60, 36, image.Point{}, 0, 1)
			defer crop.Close()

			det, err := newLocator(t, cfg).Locate(crop)
			require.NoError(t, err)
			assert.False(t, det.Found())
			assert.Nil(t, det.Contour)
		})
	}
}

func TestLocateEmptyCrop(t *testing.T) {
	crop := gocv.NewMat()
	defer crop.Close()

	_, err := newLocator(t, PresetDefault).Locate(crop)
	assert.Error(t, err)
}

func TestChooseLargestArea(t *testing.T) {
	small := circlePoints(20, 20, math.Sqrt(150/math.Pi), 48)
	large := circlePoints(60, 30, math.Sqrt(400/math.Pi), 48)

	for _, order := range [][][]image.Point{{small, large}, {large, small}} {
		det := choose(order, PresetDefault)
		require.True(t, det.Found())
		assert.InDelta(t, 60, det.Center.X, 1)
		assert.InDelta(t, 30, det.Center.Y, 1)
		assert.Equal(t, large, det.Contour)
	}
}

func TestChooseSkipsZeroPerimeter(t *testing.T) {
	contours := [][]image.Point{
		{image.Pt(5, 5)},
		{},
		circlePoints(30, 20, 8, 40),
	}

	det := choose(contours, PresetCircular)
	require.True(t, det.Found())
	assert.InDelta(t, 30, det.Center.X, 1)

	assert.False(t, choose(contours[:2], PresetDefault).Found())
	assert.False(t, choose(nil, PresetDefault).Found())
}

func TestChooseRejectsElongated(t *testing.T) {
	// 60x2 strip: circularity well below any band and no rounded approximation
	strip := []image.Point{{0, 0}, {60, 0}, {60, 2}, {0, 2}}

	assert.False(t, choose([][]image.Point{strip}, PresetCircular).Found())
	assert.False(t, choose([][]image.Point{strip}, PresetBackend).Found())
}

func TestBackendPresetUsesFallback(t *testing.T) {
	disc := circlePoints(40, 40, 14, 64)

	det := choose([][]image.Point{disc}, PresetBackend)
	require.True(t, det.Found())
	assert.InDelta(t, 40, det.Center.X, 1)
	assert.InDelta(t, 40, det.Center.Y, 1)
}

func TestMomentsOfSquare(t *testing.T) {
	m00, m10, m01 := moments([]image.Point{{0, 0}, {10, 0}, {10, 10}, {0, 10}})

	assert.InDelta(t, 100, m00, 1e-9)
	assert.InDelta(t, 5, m10/m00, 1e-9)
	assert.InDelta(t, 5, m01/m00, 1e-9)

	assert.Equal(t, image.Pt(7, 7), centroid([]image.Point{{1, 1}, {2, 2}}, image.Pt(7, 7)))
}

type fakeUpsampler struct {
	factor int
	err    error
	calls  int
}

func (f *fakeUpsampler) Upscale(img gocv.Mat) (gocv.Mat, error) {
	f.calls++
	if f.err != nil {
		return gocv.NewMat(), f.err
	}
	out := gocv.NewMat()
	gocv.Resize(img, &out, image.Pt(img.Cols()*f.factor, img.Rows()*f.factor), 0, 0, gocv.InterpolationCubic)
	return out, nil
}

func (f *fakeUpsampler) Factor() int { return f.factor }

func TestLocateWithUpsamplerScalesBack(t *testing.T) {
	up := &fakeUpsampler{factor: 4}
	crop := eyeCrop(t, 40, 24, image.Pt(20, 12), 6, 3)
	defer crop.Close()

	det, err := newLocator(t, PresetSuperRes, WithUpsampler(up)).Locate(crop)
	require.NoError(t, err)
	require.True(t, det.Found())

	assert.Equal(t, 1, up.calls)
	assert.InDelta(t, 20, det.Center.X, 2)
	assert.InDelta(t, 12, det.Center.Y, 2)
	for _, p := range det.Contour {
		assert.True(t, p.In(image.Rect(0, 0, 41, 25)))
	}
}

func TestLocateUpsamplerError(t *testing.T) {
	boom := errors.New("model failed")
	crop := eyeCrop(t, 40, 24, image.Pt(20, 12), 6, 1)
	defer crop.Close()

	_, err := newLocator(t, PresetDefault, WithUpsampler(&fakeUpsampler{factor: 4, err: boom})).Locate(crop)
	assert.ErrorIs(t, err, boom)
}

func TestDetectionTranslate(t *testing.T) {
	det := Detection{Center: image.Pt(3, 4), Contour: []image.Point{{1, 1}}, found: true}

	moved := det.Translate(image.Pt(100, 50))
	assert.Equal(t, image.Pt(103, 54), moved.Center)
	assert.Equal(t, []image.Point{{101, 51}}, moved.Contour)
	assert.Equal(t, image.Pt(3, 4), det.Center)

	assert.False(t, Detection{}.Translate(image.Pt(1, 1)).Found())
}

func TestScaleDownClampsToCrop(t *testing.T) {
	det := Detection{Center: image.Pt(250, -3), found: true}.scaleDown(4, 60, 36)
	assert.Equal(t, image.Pt(59, 0), det.Center)
}

func TestPresetTable(t *testing.T) {
	tests := []struct {
		name      string
		band      [2]float64
		minArea   float64
		minRadius float64
		skip      bool
		fallback  bool
	}{
		{"default", [2]float64{0.1, 1.1}, 10, 1, false, true},
		{"circular", [2]float64{0.2, 1}, 10, 4, false, false},
		{"backend", [2]float64{0, 0}, 0, 0, true, true},
		{"superres", [2]float64{0.1, 1.1}, 30, 1, false, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg, err := PresetByName(tt.name)
			require.NoError(t, err)
			require.NoError(t, cfg.Validate())

			assert.Equal(t, tt.band, [2]float64{cfg.CircularityMin, cfg.CircularityMax})
			assert.Equal(t, tt.minArea, cfg.MinArea)
			assert.Equal(t, tt.minRadius, cfg.MinRadius)
			assert.Equal(t, tt.skip, cfg.SkipCircularity)
			assert.Equal(t, tt.fallback, cfg.Fallback)
			if cfg.Fallback {
				assert.Equal(t, 100.0, cfg.FallbackMinArea)
				assert.Equal(t, 0.04, cfg.FallbackEpsilon)
			}
		})
	}

	_, err := PresetByName("nope")
	assert.Error(t, err)
}

func TestConfigValidate(t *testing.T) {
	bad := []Config{
		withBlur(PresetDefault, BlurGaussian, 4),
		withBlur(PresetDefault, "median", 5),
		withThreshold(PresetDefault, "otsu"),
		func() Config { c := PresetDefault; c.BlockSize = 10; return c }(),
		func() Config { c := PresetDefault; c.CircularityMin = 2; return c }(),
		func() Config { c := PresetBackend; c.Fallback = false; return c }(),
	}
	for _, cfg := range bad {
		assert.Error(t, cfg.Validate())
		_, err := NewLocator(cfg)
		assert.Error(t, err)
	}
}

func TestCloseGapsFillsThinCut(t *testing.T) {
	l := newLocator(t, PresetDefault)

	binary := gocv.NewMatWithSizeFromScalar(gocv.NewScalar(0, 0, 0, 0), 40, 40, gocv.MatTypeCV8UC1)
	defer binary.Close()
	gocv.Rectangle(&binary, image.Rect(10, 10, 30, 30), color.RGBA{R: 255, G: 255, B: 255, A: 255}, -1)
	// one-pixel cut through the blob
	gocv.Line(&binary, image.Pt(10, 20), image.Pt(29, 20), color.RGBA{A: 255}, 1)
	require.Equal(t, uint8(0), binary.GetUCharAt(20, 20))

	l.closeGaps(&binary)

	assert.Equal(t, uint8(255), binary.GetUCharAt(20, 20))
	assert.Equal(t, uint8(255), binary.GetUCharAt(20, 15))
	assert.Equal(t, uint8(0), binary.GetUCharAt(3, 3))
}

func TestCloseGapsDisabled(t *testing.T) {
	cfg := PresetDefault
	cfg.CloseIterations = 0
	l := newLocator(t, cfg)

	binary := gocv.NewMatWithSizeFromScalar(gocv.NewScalar(0, 0, 0, 0), 20, 20, gocv.MatTypeCV8UC1)
	defer binary.Close()
	gocv.Rectangle(&binary, image.Rect(4, 4, 16, 16), color.RGBA{R: 255, G: 255, B: 255, A: 255}, -1)
	gocv.Line(&binary, image.Pt(4, 10), image.Pt(15, 10), color.RGBA{A: 255}, 1)

	l.closeGaps(&binary)

	assert.Equal(t, uint8(0), binary.GetUCharAt(10, 10))
}
