package inference

import (
	"fmt"
	"sync"

	ort "github.com/yalue/onnxruntime_go"

	"github.com/dudu/gazeprep/internal/log"
)

// DefaultLibraryPath is used when no ONNX Runtime location is configured
const DefaultLibraryPath = "lib/libonnxruntime.so"

var (
	initialized bool
	initMu      sync.Mutex
)

// Initialize sets up the ONNX Runtime environment from the shared library
// at libPath (call once at startup)
func Initialize(libPath string) error {
	initMu.Lock()
	defer initMu.Unlock()

	if initialized {
		return nil
	}

	if libPath == "" {
		libPath = DefaultLibraryPath
	}
	ort.SetSharedLibraryPath(libPath)

	if err := ort.InitializeEnvironment(); err != nil {
		return fmt.Errorf("failed to initialize ONNX Runtime: %w", err)
	}

	initialized = true
	return nil
}

// Shutdown cleans up ONNX Runtime environment
func Shutdown() error {
	initMu.Lock()
	defer initMu.Unlock()

	if !initialized {
		return nil
	}

	if err := ort.DestroyEnvironment(); err != nil {
		return err
	}

	initialized = false
	return nil
}

// Initialized reports whether Initialize succeeded
func Initialized() bool {
	initMu.Lock()
	defer initMu.Unlock()
	return initialized
}

// Session wraps an ONNX Runtime inference session. Run is serialized so
// one session can be shared by the worker pool.
type Session struct {
	mu          sync.Mutex
	session     *ort.DynamicAdvancedSession
	modelPath   string
	inputNames  []string
	outputNames []string
}

// NewSession creates a CPU inference session from an ONNX model
func NewSession(modelPath string, inputNames, outputNames []string, threads int) (*Session, error) {
	if !Initialized() {
		return nil, fmt.Errorf("ONNX Runtime not initialized, call Initialize() first")
	}

	options, err := ort.NewSessionOptions()
	if err != nil {
		return nil, fmt.Errorf("failed to create session options: %w", err)
	}
	defer options.Destroy()

	if threads > 0 {
		if err := options.SetIntraOpNumThreads(threads); err != nil {
			log.Warn(log.Fields{"model": modelPath, "error": err.Error()}, "failed to set intra-op threads")
		}
	}

	session, err := ort.NewDynamicAdvancedSession(
		modelPath,
		inputNames,
		outputNames,
		options,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create session for %s: %w", modelPath, err)
	}

	log.Info(log.Fields{"model": modelPath, "threads": threads}, "inference session ready")

	return &Session{
		session:     session,
		modelPath:   modelPath,
		inputNames:  inputNames,
		outputNames: outputNames,
	}, nil
}

// Run executes inference with the given inputs
func (s *Session) Run(inputs []ort.Value, outputs []ort.Value) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.session.Run(inputs, outputs)
}

// ModelPath returns the model file the session was built from
func (s *Session) ModelPath() string {
	return s.modelPath
}

// Destroy releases session resources
func (s *Session) Destroy() error {
	if s.session != nil {
		return s.session.Destroy()
	}
	return nil
}

// CreateTensor creates a tensor with the given shape and data
func CreateTensor[T ort.TensorData](shape []int64, data []T) (*ort.Tensor[T], error) {
	return ort.NewTensor(ort.NewShape(shape...), data)
}

// CreateEmptyTensor creates a zeroed tensor for output
func CreateEmptyTensor[T ort.TensorData](shape []int64) (*ort.Tensor[T], error) {
	return ort.NewTensor(ort.NewShape(shape...), make([]T, ShapeSize(shape)))
}

// ShapeSize returns the element count of a tensor shape
func ShapeSize(shape []int64) int64 {
	size := int64(1)
	for _, dim := range shape {
		size *= dim
	}
	return size
}

// ModelInfo describes one model input or output
type ModelInfo struct {
	Name       string
	Dimensions []int64
	DataType   string
}

// Inspect lists the inputs and outputs declared by a model file
func Inspect(modelPath string) (inputs, outputs []ModelInfo, err error) {
	ins, outs, err := ort.GetInputOutputInfo(modelPath)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to read model info: %w", err)
	}
	for _, info := range ins {
		inputs = append(inputs, ModelInfo{Name: info.Name, Dimensions: info.Dimensions, DataType: fmt.Sprintf("%v", info.DataType)})
	}
	for _, info := range outs {
		outputs = append(outputs, ModelInfo{Name: info.Name, Dimensions: info.Dimensions, DataType: fmt.Sprintf("%v", info.DataType)})
	}
	return inputs, outputs, nil
}
