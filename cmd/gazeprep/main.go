package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"image"
	"os"
	"os/signal"
	"path/filepath"
	"runtime"
	"syscall"

	"github.com/joho/godotenv"
	"gocv.io/x/gocv"

	"github.com/dudu/gazeprep/internal/config"
	"github.com/dudu/gazeprep/internal/enhancer"
	"github.com/dudu/gazeprep/internal/inference"
	"github.com/dudu/gazeprep/internal/label"
	"github.com/dudu/gazeprep/internal/log"
	"github.com/dudu/gazeprep/internal/pipeline"
	"github.com/dudu/gazeprep/internal/preview"
	"github.com/dudu/gazeprep/internal/pupil"
	"github.com/dudu/gazeprep/internal/source"
)

func init() {
	// highgui needs the main OS thread on macOS
	runtime.LockOSThread()
}

type Flags struct {
	Input   string
	Output  string
	EnvFile string
	Preset  string
	Workers int
	Preview bool
}

func main() {
	flags := parseFlags()

	if err := godotenv.Load(flags.EnvFile); err != nil && !errors.Is(err, os.ErrNotExist) {
		fmt.Fprintf(os.Stderr, "Error: failed to load %s: %v\n", flags.EnvFile, err)
		os.Exit(1)
	}

	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
	if flags.Preset != "" {
		cfg.PupilPreset = flags.Preset
	}
	if flags.Workers > 0 {
		cfg.Workers = flags.Workers
	}
	log.NewLogger(log.Options{Level: cfg.LogLevel, Dir: cfg.LogDir})

	if flags.Input == "" && !cfg.UsesS3() {
		fmt.Fprintln(os.Stderr, "Error: --input is required unless AWS_BUCKET_NAME is set")
		flag.Usage()
		os.Exit(1)
	}

	if err := run(flags, cfg); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func parseFlags() Flags {
	flags := Flags{}

	flag.StringVar(&flags.Input, "input", "", "Capture session directory with manifest.json")
	flag.StringVar(&flags.Input, "i", "", "Capture session directory (shorthand)")
	flag.StringVar(&flags.Output, "output", "out", "Output directory")
	flag.StringVar(&flags.Output, "o", "out", "Output directory (shorthand)")
	flag.StringVar(&flags.EnvFile, "env", ".env", "Environment file")
	flag.StringVar(&flags.Preset, "preset", "", "Pupil preset: default, circular, backend or superres")
	flag.IntVar(&flags.Workers, "workers", 0, "Worker count (overrides WORKERS)")
	flag.IntVar(&flags.Workers, "w", 0, "Worker count (shorthand)")
	flag.BoolVar(&flags.Preview, "preview", false, "Show annotated frames one at a time")
	flag.BoolVar(&flags.Preview, "p", false, "Show annotated frames (shorthand)")

	flag.Usage = func() {
		fmt.Fprintf(os.Stderr, "gazeprep - prepare eye images and gaze labels from capture sessions\n\n")
		fmt.Fprintf(os.Stderr, "Usage: gazeprep [options]\n\n")
		fmt.Fprintf(os.Stderr, "Options:\n")
		flag.PrintDefaults()
		fmt.Fprintf(os.Stderr, "\nExamples:\n")
		fmt.Fprintf(os.Stderr, "  gazeprep --input data/user1 --output out/user1\n")
		fmt.Fprintf(os.Stderr, "  AWS_BUCKET_NAME=eye-gaze-data S3_PREFIX=data/user1 gazeprep -o out/user1\n")
		fmt.Fprintf(os.Stderr, "  gazeprep -i data/user1 --preset superres --preview\n")
	}

	flag.Parse()
	return flags
}

func run(flags Flags, cfg *config.Config) error {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()
	ctx, runID := log.NewRunID(ctx)

	src, err := openSource(flags, cfg)
	if err != nil {
		return err
	}
	manifest, err := src.List(ctx)
	if err != nil {
		return fmt.Errorf("failed to read manifest: %w", err)
	}

	processor, cleanup, err := newProcessor(cfg)
	if err != nil {
		return err
	}
	defer cleanup()

	out, err := newOutputs(flags.Output)
	if err != nil {
		return err
	}
	defer out.Close()

	log.Info(log.Fields{
		log.RunIDKey: runID,
		"frames":     len(manifest.Frames),
		"workers":    cfg.Workers,
		"preset":     cfg.PupilPreset,
	}, "[main] processing session")

	var stats pipeline.Stats
	if flags.Preview {
		stats, err = runPreview(ctx, src, manifest, processor, out.handle(ctx))
	} else {
		pool := pipeline.NewPool(processor, src, cfg.Workers)
		stats, err = pool.Run(ctx, manifest, out.handle(ctx))
	}

	log.Info(log.Fields{
		log.RunIDKey: runID,
		"processed":  stats.Processed,
		"skipped":    stats.Skipped,
		"samples":    out.samples,
	}, "[main] session done")

	if errors.Is(err, context.Canceled) {
		return nil
	}
	return err
}

func openSource(flags Flags, cfg *config.Config) (source.Source, error) {
	if flags.Input != "" {
		return source.NewDir(flags.Input)
	}
	return source.NewS3(source.S3Config{
		Bucket:          cfg.S3Bucket,
		Prefix:          cfg.S3Prefix,
		Region:          cfg.S3Region,
		AccessKeyID:     cfg.S3AccessKeyID,
		SecretAccessKey: cfg.S3SecretAccessKey,
	})
}

func newProcessor(cfg *config.Config) (*pipeline.Processor, func(), error) {
	preset, err := pupil.PresetByName(cfg.PupilPreset)
	if err != nil {
		return nil, nil, err
	}

	pcfg := pipeline.DefaultConfig()
	pcfg.EyeBuffer = cfg.EyeBuffer
	pcfg.Pupil = preset
	pcfg.BlurThreshold = cfg.BlurThreshold
	pcfg.MaxPoseError = cfg.MaxPoseError
	pcfg.Focal = cfg.Focal
	pcfg.Distance = cfg.Distance
	pcfg.NormSize = image.Pt(cfg.NormWidth, cfg.NormHeight)

	var closers []func()
	cleanup := func() {
		for i := len(closers) - 1; i >= 0; i-- {
			closers[i]()
		}
	}

	if cfg.UsesSuperResolution() {
		if err := inference.Initialize(cfg.ORTLibPath); err != nil {
			return nil, nil, fmt.Errorf("failed to initialize inference: %w", err)
		}
		closers = append(closers, func() { inference.Shutdown() })

		sr, err := enhancer.NewRealESRGAN(cfg.SRModelPath, cfg.SRThreads)
		if err != nil {
			cleanup()
			return nil, nil, err
		}
		closers = append(closers, func() { sr.Close() })
		pcfg.Upsampler = sr
	}

	p, err := pipeline.New(pcfg)
	if err != nil {
		cleanup()
		return nil, nil, fmt.Errorf("failed to create processor: %w", err)
	}
	closers = append(closers, func() { p.Close() })

	return p, cleanup, nil
}

// outputs writes crops, frame rows and labels below one directory
type outputs struct {
	dir     *source.Dir
	rowFile *os.File
	lblFile *os.File
	rows    *label.FrameWriter
	labels  *label.Writer
	samples int
}

func newOutputs(root string) (*outputs, error) {
	if err := os.MkdirAll(filepath.Join(root, "Label"), 0o755); err != nil {
		return nil, fmt.Errorf("failed to create output directory: %w", err)
	}
	dir, err := source.NewDir(root)
	if err != nil {
		return nil, err
	}

	rowFile, err := os.Create(filepath.Join(root, "data.csv"))
	if err != nil {
		return nil, fmt.Errorf("failed to create frame rows: %w", err)
	}
	lblFile, err := os.Create(filepath.Join(root, "Label", "session.label"))
	if err != nil {
		rowFile.Close()
		return nil, fmt.Errorf("failed to create label file: %w", err)
	}

	return &outputs{
		dir:     dir,
		rowFile: rowFile,
		lblFile: lblFile,
		rows:    label.NewFrameWriter(rowFile),
		labels:  label.NewWriter(lblFile),
	}, nil
}

// handle stores one result; the pool serializes calls
func (o *outputs) handle(ctx context.Context) pipeline.Handler {
	return func(r *pipeline.Result) error {
		if err := o.rows.Write(r.Row()); err != nil {
			return err
		}

		for _, eye := range r.Eyes {
			if eye.Sample == nil {
				continue
			}
			o.samples++
			name := fmt.Sprintf("Image/%d.jpg", o.samples)

			buf, err := gocv.IMEncode(gocv.JPEGFileExt, eye.Sample.Image)
			if err != nil {
				return fmt.Errorf("failed to encode %s: %w", name, err)
			}
			err = o.dir.Put(ctx, name, buf.GetBytes())
			buf.Close()
			if err != nil {
				return err
			}

			if err := o.labels.Write(label.NewEntry(name, r.Frame.Image, eye.Which.String(), eye.Sample)); err != nil {
				return err
			}
		}
		return nil
	}
}

func (o *outputs) Close() error {
	return errors.Join(o.rowFile.Close(), o.lblFile.Close())
}

// runPreview processes frames one by one on the main thread and shows them
func runPreview(ctx context.Context, src source.Source, m *source.Manifest, p *pipeline.Processor, handle pipeline.Handler) (pipeline.Stats, error) {
	var stats pipeline.Stats

	window := preview.NewWindow("gazeprep")
	defer window.Close()

	fmt.Println("\nRunning... Press 'q' to quit")

	for _, frame := range m.Frames {
		if err := ctx.Err(); err != nil {
			return stats, err
		}

		job, err := pipeline.LoadJob(ctx, src, m, frame)
		if err != nil {
			stats.Skipped++
			log.Warn(log.Fields{"frame": frame.Image, "error": err.Error()}, "[main] frame skipped")
			continue
		}
		img := job.Image

		result, err := p.Process(job)
		if err != nil {
			img.Close()
			stats.Skipped++
			log.Warn(log.Fields{"frame": frame.Image, "error": err.Error()}, "[main] frame skipped")
			continue
		}

		err = handle(result)
		preview.Annotate(&img, result)
		result.Close()
		if err != nil {
			img.Close()
			return stats, err
		}
		stats.Processed++

		window.Show(&img)
		img.Close()
		key := window.WaitKey(0)
		if key == 'q' || key == 27 {
			fmt.Println("\nQuitting...")
			return stats, nil
		}
	}
	return stats, nil
}
