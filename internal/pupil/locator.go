package pupil

import (
	"fmt"
	"image"

	"gocv.io/x/gocv"
)

// Upsampler enlarges an eye crop before detection
type Upsampler interface {
	Upscale(img gocv.Mat) (gocv.Mat, error)
	Factor() int
}

// Detection is a located pupil in eye-crop coordinates. The zero value
// means no pupil was found.
type Detection struct {
	Center  image.Point
	Contour []image.Point
	found   bool
}

// Found reports whether a pupil was located
func (d Detection) Found() bool {
	return d.found
}

// Translate moves the detection into full-image coordinates
func (d Detection) Translate(origin image.Point) Detection {
	if !d.found {
		return d
	}
	contour := make([]image.Point, len(d.Contour))
	for i, p := range d.Contour {
		contour[i] = p.Add(origin)
	}
	return Detection{Center: d.Center.Add(origin), Contour: contour, found: true}
}

// Option configures a Locator
type Option func(*Locator)

// WithUpsampler runs every crop through u before smoothing
func WithUpsampler(u Upsampler) Option {
	return func(l *Locator) {
		l.upsampler = u
	}
}

// Locator finds the pupil inside an eye crop
type Locator struct {
	config    Config
	upsampler Upsampler
	kernel    gocv.Mat
}

// NewLocator creates a locator for the given configuration
func NewLocator(config Config, opts ...Option) (*Locator, error) {
	if err := config.Validate(); err != nil {
		return nil, fmt.Errorf("invalid pupil config %q: %w", config.Name, err)
	}
	l := &Locator{
		config: config,
		kernel: gocv.GetStructuringElement(gocv.MorphRect, image.Pt(3, 3)),
	}
	for _, opt := range opts {
		opt(l)
	}
	return l, nil
}

// Config returns the active configuration
func (l *Locator) Config() Config {
	return l.config
}

// Locate returns the pupil of a grayscale or BGR eye crop. A crop with no
// acceptable contour yields a Detection whose Found is false and a nil
// error; errors are reserved for unusable input.
func (l *Locator) Locate(crop gocv.Mat) (Detection, error) {
	if crop.Empty() {
		return Detection{}, fmt.Errorf("failed to locate pupil: empty crop")
	}
	width, height := crop.Cols(), crop.Rows()

	gray := gocv.NewMat()
	defer gray.Close()
	if crop.Channels() == 1 {
		crop.CopyTo(&gray)
	} else {
		gocv.CvtColor(crop, &gray, gocv.ColorBGRToGray)
	}

	work := gray
	factor := 1
	if l.upsampler != nil {
		up, err := l.upscale(gray)
		if err != nil {
			return Detection{}, fmt.Errorf("failed to upscale eye crop: %w", err)
		}
		defer up.Close()
		work = up
		factor = l.upsampler.Factor()
	}

	binary := l.binarize(work)
	defer binary.Close()

	contours := findContours(binary)
	det := choose(contours, l.config)
	if !det.found {
		return Detection{}, nil
	}
	return det.scaleDown(factor, width, height), nil
}

// upscale feeds the model a 3-channel image and returns a grayscale result
func (l *Locator) upscale(gray gocv.Mat) (gocv.Mat, error) {
	bgr := gocv.NewMat()
	defer bgr.Close()
	gocv.CvtColor(gray, &bgr, gocv.ColorGrayToBGR)

	up, err := l.upsampler.Upscale(bgr)
	if err != nil {
		return gocv.NewMat(), err
	}
	defer up.Close()

	out := gocv.NewMat()
	if up.Channels() == 1 {
		up.CopyTo(&out)
	} else {
		gocv.CvtColor(up, &out, gocv.ColorBGRToGray)
	}
	return out, nil
}

// binarize smooths, thresholds and closes the grayscale crop
func (l *Locator) binarize(gray gocv.Mat) gocv.Mat {
	cfg := l.config

	src := gray
	if cfg.Equalize {
		eq := gocv.NewMat()
		defer eq.Close()
		gocv.EqualizeHist(gray, &eq)
		src = eq
	}

	blurred := gocv.NewMat()
	defer blurred.Close()
	if cfg.Blur == BlurBilateral {
		sigma := cfg.BlurSigma
		if sigma <= 0 {
			sigma = 75
		}
		gocv.BilateralFilter(src, &blurred, cfg.BlurSize, sigma, sigma)
	} else {
		gocv.GaussianBlur(src, &blurred, image.Pt(cfg.BlurSize, cfg.BlurSize), 0, 0, gocv.BorderDefault)
	}

	method := gocv.AdaptiveThresholdGaussian
	if cfg.Threshold == ThresholdMean {
		method = gocv.AdaptiveThresholdMean
	}
	thresh := gocv.NewMat()
	gocv.AdaptiveThreshold(blurred, &thresh, 255, method, gocv.ThresholdBinaryInv, cfg.BlockSize, float32(cfg.C))

	l.closeGaps(&thresh)
	return thresh
}

// closeGaps applies morphological closing in place
func (l *Locator) closeGaps(binary *gocv.Mat) {
	if l.config.CloseIterations <= 0 {
		return
	}
	gocv.MorphologyExWithParams(*binary, binary, gocv.MorphClose, l.kernel, l.config.CloseIterations, gocv.BorderConstant)
}

// Close releases the morphology kernel
func (l *Locator) Close() error {
	return l.kernel.Close()
}

// findContours returns the external contours of a binary image
func findContours(binary gocv.Mat) [][]image.Point {
	pv := gocv.FindContours(binary, gocv.RetrievalExternal, gocv.ChainApproxSimple)
	defer pv.Close()

	out := make([][]image.Point, 0, pv.Size())
	for i := 0; i < pv.Size(); i++ {
		out = append(out, pv.At(i).ToPoints())
	}
	return out
}

// scaleDown maps an upsampled detection back into the original crop
func (d Detection) scaleDown(factor, width, height int) Detection {
	if factor > 1 {
		d.Center = image.Pt(d.Center.X/factor, d.Center.Y/factor)
		contour := make([]image.Point, len(d.Contour))
		for i, p := range d.Contour {
			contour[i] = image.Pt(p.X/factor, p.Y/factor)
		}
		d.Contour = contour
	}
	d.Center.X = clampInt(d.Center.X, 0, width-1)
	d.Center.Y = clampInt(d.Center.Y, 0, height-1)
	return d
}

func clampInt(v, lo, hi int) int {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
