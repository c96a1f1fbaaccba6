package enhancer

import (
	"fmt"

	ort "github.com/yalue/onnxruntime_go"
	"gocv.io/x/gocv"

	"github.com/dudu/gazeprep/internal/inference"
)

// RealESRGANFactor is the upscale factor of the x4 models
const RealESRGANFactor = 4

// Runner executes a model with prepared input and output tensors
type Runner interface {
	Run(inputs []ort.Value, outputs []ort.Value) error
	Destroy() error
}

// RealESRGAN upsamples eye crops with a Real-ESRGAN x4 model before pupil
// detection. Input: any size BGR image, output: 4x larger BGR image.
type RealESRGAN struct {
	session Runner
	factor  int
}

// NewRealESRGAN loads a Real-ESRGAN model
func NewRealESRGAN(modelPath string, threads int) (*RealESRGAN, error) {
	session, err := inference.NewSession(modelPath, []string{"input"}, []string{"output"}, threads)
	if err != nil {
		return nil, fmt.Errorf("failed to create RealESRGAN session: %w", err)
	}
	return NewRealESRGANWithRunner(session), nil
}

// NewRealESRGANWithRunner wraps an already constructed session
func NewRealESRGANWithRunner(session Runner) *RealESRGAN {
	return &RealESRGAN{session: session, factor: RealESRGANFactor}
}

// Factor returns the upscale factor
func (r *RealESRGAN) Factor() int {
	return r.factor
}

// Upscale enlarges a BGR crop by Factor
func (r *RealESRGAN) Upscale(img gocv.Mat) (gocv.Mat, error) {
	if img.Empty() {
		return gocv.NewMat(), fmt.Errorf("failed to upscale: empty image")
	}
	if img.Channels() != 3 {
		return gocv.NewMat(), fmt.Errorf("failed to upscale: want 3 channels, got %d", img.Channels())
	}

	height, width := img.Rows(), img.Cols()

	inputTensor, err := inference.CreateTensor([]int64{1, 3, int64(height), int64(width)}, toNCHW(img))
	if err != nil {
		return gocv.NewMat(), fmt.Errorf("failed to create input tensor: %w", err)
	}
	defer inputTensor.Destroy()

	outHeight := height * r.factor
	outWidth := width * r.factor

	outputTensor, err := inference.CreateEmptyTensor[float32]([]int64{1, 3, int64(outHeight), int64(outWidth)})
	if err != nil {
		return gocv.NewMat(), fmt.Errorf("failed to create output tensor: %w", err)
	}
	defer outputTensor.Destroy()

	if err := r.session.Run([]ort.Value{inputTensor}, []ort.Value{outputTensor}); err != nil {
		return gocv.NewMat(), fmt.Errorf("RealESRGAN inference failed: %w", err)
	}

	return fromNCHW(outputTensor.GetData(), outHeight, outWidth)
}

// toNCHW converts a BGR image to planar RGB floats in [0,1]
func toNCHW(img gocv.Mat) []float32 {
	height, width := img.Rows(), img.Cols()
	plane := height * width
	data := make([]float32, 3*plane)

	for y := 0; y < height; y++ {
		for x := 0; x < width; x++ {
			pixel := img.GetVecbAt(y, x)
			idx := y*width + x
			data[0*plane+idx] = float32(pixel[2]) / 255.0
			data[1*plane+idx] = float32(pixel[1]) / 255.0
			data[2*plane+idx] = float32(pixel[0]) / 255.0
		}
	}
	return data
}

// fromNCHW converts planar RGB floats back to a BGR image
func fromNCHW(output []float32, height, width int) (gocv.Mat, error) {
	plane := height * width
	if len(output) < 3*plane {
		return gocv.NewMat(), fmt.Errorf("model output has %d values, want %d", len(output), 3*plane)
	}
	pixels := make([]byte, plane*3)

	for idx := 0; idx < plane; idx++ {
		pixels[idx*3+0] = toByte(output[2*plane+idx])
		pixels[idx*3+1] = toByte(output[1*plane+idx])
		pixels[idx*3+2] = toByte(output[0*plane+idx])
	}

	result, err := gocv.NewMatFromBytes(height, width, gocv.MatTypeCV8UC3, pixels)
	if err != nil {
		return gocv.NewMat(), fmt.Errorf("failed to build output image: %w", err)
	}
	return result, nil
}

func toByte(v float32) uint8 {
	v *= 255
	if v < 0 {
		return 0
	}
	if v > 255 {
		return 255
	}
	return uint8(v)
}

// Close releases resources
func (r *RealESRGAN) Close() error {
	return r.session.Destroy()
}
