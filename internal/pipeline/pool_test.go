package pipeline

import (
	"context"
	"errors"
	"fmt"
	"testing"

	jsoniter "github.com/json-iterator/go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gocv.io/x/gocv"

	"github.com/dudu/gazeprep/internal/source"
)

// sessionDir writes a capture session with good frames, one missing image
// and one frame with a truncated landmark set
func sessionDir(t *testing.T, good int) (*source.Dir, *source.Manifest) {
	t.Helper()
	cam := testCamera(t)
	img, frame := syntheticFace(t, cam)
	defer img.Close()

	buf, err := gocv.IMEncode(gocv.PNGFileExt, img)
	require.NoError(t, err)
	defer buf.Close()

	dir, err := source.NewDir(t.TempDir())
	require.NoError(t, err)
	ctx := context.Background()

	m := source.Manifest{Camera: source.CameraInfo{
		CameraMatrix: source.Matrix{{560, 0, 320}, {0, 560, 240}, {0, 0, 1}},
		DistCoeffs:   source.Coefficients{0, 0, 0, 0, 0},
	}}
	for i := 0; i < good; i++ {
		f := frame
		f.Image = fmt.Sprintf("frames/%03d.png", i)
		require.NoError(t, dir.Put(ctx, f.Image, buf.GetBytes()))
		m.Frames = append(m.Frames, f)
	}

	missing := frame
	missing.Image = "frames/missing.png"
	short := frame
	short.Image = "frames/short.png"
	short.Landmarks = frame.Landmarks[:10]
	require.NoError(t, dir.Put(ctx, short.Image, buf.GetBytes()))
	m.Frames = append(m.Frames, missing, short)

	data, err := jsoniter.Marshal(m)
	require.NoError(t, err)
	require.NoError(t, dir.Put(ctx, source.ManifestName, data))

	listed, err := dir.List(ctx)
	require.NoError(t, err)
	return dir, listed
}

func TestPoolProcessesAllFramesAndSkipsFailures(t *testing.T) {
	dir, m := sessionDir(t, 3)
	require.Len(t, m.Frames, 5)
	pool := NewPool(newProcessor(t), dir, 2)

	var seen []string
	stats, err := pool.Run(context.Background(), m, func(r *Result) error {
		seen = append(seen, r.Frame.Image)
		assert.True(t, r.PoseFound)
		for _, eye := range r.Eyes {
			assert.NotNil(t, eye.Sample)
		}
		return nil
	})
	require.NoError(t, err)

	assert.Equal(t, int64(3), stats.Processed)
	assert.Equal(t, int64(2), stats.Skipped)
	assert.ElementsMatch(t, []string{"frames/000.png", "frames/001.png", "frames/002.png"}, seen)
}

func TestPoolStopsOnHandlerError(t *testing.T) {
	dir, m := sessionDir(t, 4)
	pool := NewPool(newProcessor(t), dir, 1)

	boom := errors.New("disk full")
	calls := 0
	stats, err := pool.Run(context.Background(), m, func(*Result) error {
		calls++
		return boom
	})

	assert.True(t, errors.Is(err, boom))
	assert.Equal(t, 1, calls)
	assert.Equal(t, int64(0), stats.Processed)
}

func TestPoolHonoursCancellation(t *testing.T) {
	dir, m := sessionDir(t, 2)
	pool := NewPool(newProcessor(t), dir, 0)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	stats, err := pool.Run(ctx, m, func(*Result) error {
		t.Fatal("handler called after cancellation")
		return nil
	})
	assert.True(t, errors.Is(err, context.Canceled))
	assert.Equal(t, int64(0), stats.Processed)
}
