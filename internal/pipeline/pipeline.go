package pipeline

import (
	"errors"
	"fmt"
	"image"
	"time"

	"github.com/golang/geo/r3"
	"gocv.io/x/gocv"

	"github.com/dudu/gazeprep/internal/camera"
	"github.com/dudu/gazeprep/internal/eye"
	"github.com/dudu/gazeprep/internal/gaze"
	"github.com/dudu/gazeprep/internal/headpose"
	"github.com/dudu/gazeprep/internal/label"
	"github.com/dudu/gazeprep/internal/landmark"
	"github.com/dudu/gazeprep/internal/log"
	"github.com/dudu/gazeprep/internal/pupil"
	"github.com/dudu/gazeprep/internal/source"
)

var (
	// ErrEmptyFrame is returned for a frame without image data
	ErrEmptyFrame = errors.New("empty frame")
	// ErrBlurryFrame is returned when a frame fails the sharpness check
	ErrBlurryFrame = errors.New("frame is too blurry")
)

// Config holds processor configuration
type Config struct {
	EyeBuffer         int
	Pupil             pupil.Config
	Upsampler         pupil.Upsampler
	BlurThreshold     float64 // variance of the Laplacian; 0 disables the check
	MinEyeAspectRatio float64 // eyes below are treated as closed; 0 disables the check
	MaxPoseError      float64
	Focal             float64
	Distance          float64
	NormSize          image.Point
	UnscaledGaze      bool // use R·g instead of M·g
}

// DefaultConfig returns the MPIIGaze-style settings
func DefaultConfig() Config {
	return Config{
		EyeBuffer:         eye.DefaultBuffer,
		Pupil:             pupil.PresetDefault,
		MinEyeAspectRatio: eye.MinAspectRatio,
		MaxPoseError:      headpose.DefaultMaxReprojectionError,
		Focal:             gaze.DefaultFocal,
		Distance:          gaze.DefaultDistance,
		NormSize:          image.Pt(gaze.EyeWidth, gaze.EyeHeight),
	}
}

// Timing holds performance timing information
type Timing struct {
	Pose      time.Duration
	Eyes      time.Duration
	Normalize time.Duration
	Total     time.Duration
}

// Job is one decoded frame to process
type Job struct {
	Frame  source.Frame
	Image  gocv.Mat
	Camera camera.Intrinsics
}

// EyeResult is the outcome for one eye
type EyeResult struct {
	Which  landmark.Eye
	Open   bool
	Box    eye.Box
	HasBox bool
	Pupil  pupil.Detection // image coordinates
	Center r3.Vector       // camera space, valid when Sample is set
	Sample *gaze.Sample    // nil when the eye could not be normalized
}

// Result is the outcome for one frame
type Result struct {
	Frame     source.Frame
	Pose      headpose.Pose
	PoseFound bool
	Eyes      [2]EyeResult
	Timing    Timing
}

// Row returns the frame row of the result
func (r *Result) Row() label.FrameRow {
	row := label.FrameRow{
		Image:       r.Frame.Image,
		Rotation:    r.Pose.Rotation,
		Translation: r.Pose.Translation,
		Left:        r.Eyes[landmark.LeftEye].info(),
		Right:       r.Eyes[landmark.RightEye].info(),
	}
	if r.Frame.Screen != nil {
		row.TargetX = r.Frame.Screen.X
		row.TargetY = r.Frame.Screen.Y
	}
	return row
}

func (e EyeResult) info() label.EyeInfo {
	return label.EyeInfo{
		Pupil:  e.Pupil.Center,
		Found:  e.Pupil.Found(),
		Box:    e.Box.XYWH(),
		HasBox: e.HasBox,
	}
}

// Close releases the normalized samples
func (r *Result) Close() error {
	var errs []error
	for i := range r.Eyes {
		if s := r.Eyes[i].Sample; s != nil {
			if err := s.Close(); err != nil {
				errs = append(errs, err)
			}
			r.Eyes[i].Sample = nil
		}
	}
	return errors.Join(errs...)
}

// Option replaces a processor component
type Option func(*Processor)

// WithExtractor replaces the eye region extractor
func WithExtractor(e RegionExtractor) Option {
	return func(p *Processor) { p.extractor = e }
}

// WithLocator replaces the pupil locator
func WithLocator(l PupilLocator) Option {
	return func(p *Processor) { p.locator = l }
}

// WithEstimator replaces the head pose estimator
func WithEstimator(e PoseEstimator) Option {
	return func(p *Processor) { p.estimator = e }
}

// Processor runs the per-frame perception and normalization steps. It holds
// no per-frame state and is safe for concurrent use.
type Processor struct {
	config    Config
	extractor RegionExtractor
	locator   PupilLocator
	estimator PoseEstimator
}

// New creates a processor
func New(config Config, opts ...Option) (*Processor, error) {
	if config.NormSize.X <= 0 || config.NormSize.Y <= 0 {
		config.NormSize = image.Pt(gaze.EyeWidth, gaze.EyeHeight)
	}

	p := &Processor{config: config}
	for _, opt := range opts {
		opt(p)
	}

	if p.extractor == nil {
		p.extractor = eye.NewExtractor(config.EyeBuffer)
	}
	if p.estimator == nil {
		var estOpts []headpose.Option
		if config.MaxPoseError > 0 {
			estOpts = append(estOpts, headpose.WithMaxReprojectionError(config.MaxPoseError))
		}
		p.estimator = headpose.NewEstimator(estOpts...)
	}
	if p.locator == nil {
		var locOpts []pupil.Option
		if config.Upsampler != nil {
			locOpts = append(locOpts, pupil.WithUpsampler(config.Upsampler))
		}
		loc, err := pupil.NewLocator(config.Pupil, locOpts...)
		if err != nil {
			return nil, fmt.Errorf("failed to create pupil locator: %w", err)
		}
		p.locator = loc
	}

	return p, nil
}

// Process runs one frame. Per-eye misses never fail the frame; errors are
// returned only for frames that cannot be used at all.
func (p *Processor) Process(job Job) (*Result, error) {
	totalStart := time.Now()
	result := &Result{Frame: job.Frame}

	if job.Image.Empty() {
		return nil, fmt.Errorf("%s: %w", job.Frame.Image, ErrEmptyFrame)
	}
	shape, err := job.Frame.Shape()
	if err != nil {
		return nil, fmt.Errorf("%s: %w", job.Frame.Image, err)
	}

	if p.config.BlurThreshold > 0 {
		if v := Sharpness(job.Image); v < p.config.BlurThreshold {
			return nil, fmt.Errorf("%s: %w (variance %.1f)", job.Frame.Image, ErrBlurryFrame, v)
		}
	}

	// Detect head pose
	poseStart := time.Now()
	pose, err := p.estimator.Estimate(shape, job.Camera)
	if err != nil {
		log.Debug(log.Fields{
			"frame": job.Frame.Image,
			"error": err.Error(),
		}, "[pipeline.Process] head pose unavailable, using zero pose")
		pose = headpose.Pose{}
	} else {
		result.PoseFound = true
	}
	result.Pose = pose
	result.Timing.Pose = time.Since(poseStart)

	// Locate pupils
	eyesStart := time.Now()
	for _, which := range []landmark.Eye{landmark.LeftEye, landmark.RightEye} {
		result.Eyes[which] = p.locateEye(job, shape, which)
	}
	result.Timing.Eyes = time.Since(eyesStart)

	// Normalize
	normStart := time.Now()
	for _, which := range []landmark.Eye{landmark.LeftEye, landmark.RightEye} {
		res := &result.Eyes[which]
		if !res.Open {
			continue
		}
		sample, center, err := p.normalize(job, result, which)
		if err != nil {
			var geomErr *gaze.InvalidGeometryError
			if errors.As(err, &geomErr) {
				log.ErrorWithTraceID(log.Fields{
					"frame": job.Frame.Image,
					"eye":   which.String(),
					"field": geomErr.Field,
					"error": err.Error(),
				}, "[pipeline.Process] malformed normalization geometry")
			} else {
				log.Debug(log.Fields{
					"frame": job.Frame.Image,
					"eye":   which.String(),
					"error": err.Error(),
				}, "[pipeline.Process] eye not normalized")
			}
			continue
		}
		res.Sample = sample
		res.Center = center
	}
	result.Timing.Normalize = time.Since(normStart)

	result.Timing.Total = time.Since(totalStart)
	return result, nil
}

func (p *Processor) locateEye(job Job, shape landmark.Accessor, which landmark.Eye) EyeResult {
	res := EyeResult{Which: which, Open: true}

	if p.config.MinEyeAspectRatio > 0 {
		if ear := eye.AspectRatio(shape, which); ear < p.config.MinEyeAspectRatio {
			log.Debug(log.Fields{
				"frame": job.Frame.Image,
				"eye":   which.String(),
				"ear":   ear,
			}, "[pipeline.locateEye] eye closed, skipping")
			res.Open = false
			return res
		}
	}

	region, err := p.extractor.Extract(job.Image, shape, which)
	if err != nil {
		log.Debug(log.Fields{
			"frame": job.Frame.Image,
			"eye":   which.String(),
			"error": err.Error(),
		}, "[pipeline.locateEye] no eye region")
		return res
	}
	defer region.Close()
	res.Box = region.Box
	res.HasBox = true

	det, err := p.locator.Locate(region.Crop)
	if err != nil {
		log.Debug(log.Fields{
			"frame": job.Frame.Image,
			"eye":   which.String(),
			"error": err.Error(),
		}, "[pipeline.locateEye] pupil detection failed")
		return res
	}
	res.Pupil = det.Translate(region.Box.Origin())
	return res
}

var errNoTarget = errors.New("frame has no gaze target")
var errNoCenter = errors.New("no eye center and no head pose")

// normalize builds the sample of one eye. The eye center comes from the
// manifest, else from the head pose and the generic face model.
func (p *Processor) normalize(job Job, result *Result, which landmark.Eye) (*gaze.Sample, r3.Vector, error) {
	if job.Frame.Target == nil {
		return nil, r3.Vector{}, errNoTarget
	}

	center, ok := job.Frame.EyeCenter(which)
	if !ok {
		if !result.PoseFound {
			return nil, r3.Vector{}, errNoCenter
		}
		left, right := result.Pose.EyeCenters()
		center = left
		if which == landmark.RightEye {
			center = right
		}
	}

	ctx, err := gaze.NewContext(gaze.Input{
		Center:       center,
		Target:       job.Frame.Target.R3(),
		HeadRotation: result.Pose.Matrix(),
		ImageSize:    p.config.NormSize,
		Camera:       job.Camera.Matrix,
		Focal:        p.config.Focal,
		Distance:     p.config.Distance,
	})
	if err != nil {
		return nil, r3.Vector{}, err
	}

	sample, err := ctx.Sample(job.Image, gaze.SampleOptions{
		Scaled:   !p.config.UnscaledGaze,
		Equalize: true,
		Mirror:   which == landmark.RightEye,
	})
	if err != nil {
		return nil, r3.Vector{}, err
	}
	return sample, center, nil
}

// Sharpness returns the variance of the Laplacian of img
func Sharpness(img gocv.Mat) float64 {
	gray := gocv.NewMat()
	defer gray.Close()
	if img.Channels() == 1 {
		img.CopyTo(&gray)
	} else {
		gocv.CvtColor(img, &gray, gocv.ColorBGRToGray)
	}

	lap := gocv.NewMat()
	defer lap.Close()
	gocv.Laplacian(gray, &lap, gocv.MatTypeCV64F, 1, 1, 0, gocv.BorderDefault)

	mean := gocv.NewMat()
	defer mean.Close()
	stddev := gocv.NewMat()
	defer stddev.Close()
	gocv.MeanStdDev(lap, &mean, &stddev)

	sd := stddev.GetDoubleAt(0, 0)
	return sd * sd
}

// Close releases processor resources
func (p *Processor) Close() error {
	if p.locator != nil {
		return p.locator.Close()
	}
	return nil
}
