package pupil

import (
	"fmt"
	"strings"
)

// BlurMethod selects the smoothing filter applied before thresholding
type BlurMethod string

const (
	BlurGaussian  BlurMethod = "gaussian"
	BlurBilateral BlurMethod = "bilateral"
)

// ThresholdMethod selects the adaptive threshold weighting
type ThresholdMethod string

const (
	ThresholdMean     ThresholdMethod = "mean"
	ThresholdGaussian ThresholdMethod = "gaussian"
)

// Config parameterizes the pupil locator
type Config struct {
	Name string

	Equalize  bool
	Blur      BlurMethod
	BlurSize  int     // gaussian kernel side or bilateral diameter
	BlurSigma float64 // bilateral color and space sigma

	Threshold ThresholdMethod
	BlockSize int
	C         float64

	CloseIterations int

	// Circularity pass; disabled when SkipCircularity is set
	SkipCircularity bool
	CircularityMin  float64
	CircularityMax  float64
	MinArea         float64
	MinRadius       float64

	// Polygon approximation pass
	Fallback            bool
	FallbackEpsilon     float64 // fraction of arc length
	FallbackMinVertices int
	FallbackMinArea     float64
	FallbackMinRadius   float64
}

// PresetDefault is the loose circularity band used by the batch tools
var PresetDefault = Config{
	Name:                "default",
	Blur:                BlurGaussian,
	BlurSize:            7,
	Threshold:           ThresholdGaussian,
	BlockSize:           11,
	C:                   2,
	CloseIterations:     2,
	CircularityMin:      0.1,
	CircularityMax:      1.1,
	MinArea:             10,
	MinRadius:           1,
	Fallback:            true,
	FallbackEpsilon:     0.04,
	FallbackMinVertices: 5,
	FallbackMinArea:     100,
	FallbackMinRadius:   1,
}

// PresetCircular is the strict band used on raw landmark crops
var PresetCircular = Config{
	Name:            "circular",
	Blur:            BlurGaussian,
	BlurSize:        7,
	Threshold:       ThresholdGaussian,
	BlockSize:       11,
	C:               2,
	CloseIterations: 2,
	CircularityMin:  0.2,
	CircularityMax:  1,
	MinArea:         10,
	MinRadius:       4,
}

// PresetBackend accepts the first large rounded polygon without a
// circularity pass, as the capture API did
var PresetBackend = Config{
	Name:                "backend",
	Blur:                BlurGaussian,
	BlurSize:            7,
	Threshold:           ThresholdGaussian,
	BlockSize:           11,
	C:                   2,
	CloseIterations:     2,
	SkipCircularity:     true,
	Fallback:            true,
	FallbackEpsilon:     0.04,
	FallbackMinVertices: 5,
	FallbackMinArea:     100,
	FallbackMinRadius:   1,
}

// PresetSuperRes is tuned for x4 upsampled, equalized crops
var PresetSuperRes = Config{
	Name:                "superres",
	Equalize:            true,
	Blur:                BlurGaussian,
	BlurSize:            5,
	Threshold:           ThresholdGaussian,
	BlockSize:           11,
	C:                   2,
	CloseIterations:     2,
	CircularityMin:      0.1,
	CircularityMax:      1.1,
	MinArea:             30,
	MinRadius:           1,
	Fallback:            true,
	FallbackEpsilon:     0.04,
	FallbackMinVertices: 5,
	FallbackMinArea:     100,
	FallbackMinRadius:   1,
}

// Presets lists the named presets
var Presets = map[string]Config{
	PresetDefault.Name:  PresetDefault,
	PresetCircular.Name: PresetCircular,
	PresetBackend.Name:  PresetBackend,
	PresetSuperRes.Name: PresetSuperRes,
}

// PresetByName looks up a preset case-insensitively
func PresetByName(name string) (Config, error) {
	cfg, ok := Presets[strings.ToLower(strings.TrimSpace(name))]
	if !ok {
		return Config{}, fmt.Errorf("unknown pupil preset %q", name)
	}
	return cfg, nil
}

// Validate checks that the kernel sizes and bands are usable
func (c Config) Validate() error {
	switch c.Blur {
	case BlurGaussian:
		if c.BlurSize < 1 || c.BlurSize%2 == 0 {
			return fmt.Errorf("gaussian blur size must be odd and positive, got %d", c.BlurSize)
		}
	case BlurBilateral:
		if c.BlurSize < 1 {
			return fmt.Errorf("bilateral diameter must be positive, got %d", c.BlurSize)
		}
	default:
		return fmt.Errorf("unknown blur method %q", c.Blur)
	}
	if c.Threshold != ThresholdMean && c.Threshold != ThresholdGaussian {
		return fmt.Errorf("unknown threshold method %q", c.Threshold)
	}
	if c.BlockSize < 3 || c.BlockSize%2 == 0 {
		return fmt.Errorf("threshold block size must be odd and >= 3, got %d", c.BlockSize)
	}
	if !c.SkipCircularity && c.CircularityMin >= c.CircularityMax {
		return fmt.Errorf("empty circularity band [%g, %g]", c.CircularityMin, c.CircularityMax)
	}
	if c.SkipCircularity && !c.Fallback {
		return fmt.Errorf("both detection passes are disabled")
	}
	return nil
}
