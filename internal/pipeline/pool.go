package pipeline

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"

	"golang.org/x/sync/errgroup"

	"github.com/dudu/gazeprep/internal/camera"
	"github.com/dudu/gazeprep/internal/log"
	"github.com/dudu/gazeprep/internal/source"
)

// Handler consumes one frame result. Calls are serialized.
type Handler func(*Result) error

// Stats counts the frames of a run
type Stats struct {
	Processed int64
	Skipped   int64
}

// Pool feeds the frames of a manifest to a processor with a fixed number
// of workers
type Pool struct {
	processor *Processor
	src       source.Source
	workers   int
}

// NewPool creates a pool; workers below 1 run sequentially
func NewPool(processor *Processor, src source.Source, workers int) *Pool {
	if workers < 1 {
		workers = 1
	}
	return &Pool{processor: processor, src: src, workers: workers}
}

// Run processes every frame of m. Frames that fail are logged and skipped;
// a handler error or a cancelled ctx stops the run.
func (p *Pool) Run(ctx context.Context, m *source.Manifest, handle Handler) (Stats, error) {
	var (
		stats     Stats
		processed atomic.Int64
		skipped   atomic.Int64
		mu        sync.Mutex
	)

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(p.workers)

	for i := range m.Frames {
		if gctx.Err() != nil {
			break
		}
		frame := m.Frames[i]
		g.Go(func() error {
			if gctx.Err() != nil {
				return nil
			}

			result, err := p.process(gctx, m, frame)
			if err != nil {
				skipped.Add(1)
				log.Warn(log.Fields{
					log.RunIDKey: log.RunID(ctx),
					"frame":      frame.Image,
					"error":      err.Error(),
				}, "[pipeline.Pool] frame skipped")
				return nil
			}
			defer result.Close()

			mu.Lock()
			defer mu.Unlock()
			if err := handle(result); err != nil {
				return fmt.Errorf("failed to handle %s: %w", frame.Image, err)
			}
			processed.Add(1)
			return nil
		})
	}

	err := g.Wait()
	stats.Processed = processed.Load()
	stats.Skipped = skipped.Load()
	if err != nil {
		return stats, err
	}
	return stats, ctx.Err()
}

func (p *Pool) process(ctx context.Context, m *source.Manifest, frame source.Frame) (*Result, error) {
	job, err := LoadJob(ctx, p.src, m, frame)
	if err != nil {
		return nil, err
	}
	defer job.Image.Close()

	return p.processor.Process(job)
}

// LoadJob fetches and decodes a frame and resolves its camera. Frames
// without calibration get approximate intrinsics from the image size.
// The caller owns job.Image.
func LoadJob(ctx context.Context, src source.Source, m *source.Manifest, frame source.Frame) (Job, error) {
	img, err := source.LoadImage(ctx, src, frame.Image)
	if err != nil {
		return Job{}, err
	}

	cam, ok, err := m.CameraFor(frame)
	if err != nil {
		img.Close()
		return Job{}, err
	}
	if !ok {
		cam = camera.Approximate(img.Cols(), img.Rows())
	}

	return Job{Frame: frame, Image: img, Camera: cam}, nil
}
