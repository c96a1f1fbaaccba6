package enhancer

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	ort "github.com/yalue/onnxruntime_go"
	"gocv.io/x/gocv"

	"github.com/dudu/gazeprep/internal/pupil"
)

var _ pupil.Upsampler = (*RealESRGAN)(nil)

func TestNCHWRoundTrip(t *testing.T) {
	img := gocv.NewMatWithSizeFromScalar(gocv.NewScalar(10, 120, 250, 0), 3, 4, gocv.MatTypeCV8UC3)
	defer img.Close()

	data := toNCHW(img)
	require.Len(t, data, 3*3*4)
	assert.InDelta(t, 250.0/255.0, data[0], 1e-6) // R plane first
	assert.InDelta(t, 10.0/255.0, data[2*12], 1e-6)

	back, err := fromNCHW(data, 3, 4)
	require.NoError(t, err)
	defer back.Close()

	px := back.GetVecbAt(2, 3)
	assert.InDelta(t, 10, int(px[0]), 1)
	assert.InDelta(t, 120, int(px[1]), 1)
	assert.InDelta(t, 250, int(px[2]), 1)
}

func TestFromNCHWShortOutput(t *testing.T) {
	_, err := fromNCHW(make([]float32, 5), 2, 2)
	assert.Error(t, err)
}

func TestToByteClamps(t *testing.T) {
	assert.Equal(t, uint8(0), toByte(-0.2))
	assert.Equal(t, uint8(255), toByte(1.7))
	assert.Equal(t, uint8(127), toByte(0.5))
}

type failingRunner struct{ destroyed bool }

func (f *failingRunner) Run(_ []ort.Value, _ []ort.Value) error { return errors.New("no model") }
func (f *failingRunner) Destroy() error                         { f.destroyed = true; return nil }

func TestUpscaleRejectsBadInput(t *testing.T) {
	runner := &failingRunner{}
	r := NewRealESRGANWithRunner(runner)
	assert.Equal(t, RealESRGANFactor, r.Factor())

	empty := gocv.NewMat()
	defer empty.Close()
	_, err := r.Upscale(empty)
	assert.Error(t, err)

	gray := gocv.NewMatWithSize(4, 4, gocv.MatTypeCV8UC1)
	defer gray.Close()
	_, err = r.Upscale(gray)
	assert.Error(t, err)

	require.NoError(t, r.Close())
	assert.True(t, runner.destroyed)
}
