package riskmodel

import (
	"context"
	"fmt"
	"os"
	"sync"

	"github.com/rs/zerolog/log"
	ort "github.com/yalue/onnxruntime_go"
)

// Output tensor names produced by the converted classifiers.
const (
	labelOutputName       = "label"
	probabilityOutputName = "probabilities"
)

var (
	envOnce sync.Once
	envErr  error
)

// initEnvironment loads the ONNX Runtime shared library once per process.
func initEnvironment(libraryPath string) error {
	envOnce.Do(func() {
		if libraryPath != "" {
			ort.SetSharedLibraryPath(libraryPath)
		}
		if err := ort.InitializeEnvironment(); err != nil {
			envErr = fmt.Errorf("initialize ONNX runtime: %w", err)
			return
		}
		log.Info().Str("library", libraryPath).Msg("ONNX runtime initialized")
	})
	return envErr
}

// ShutdownRuntime releases the ONNX Runtime environment. Call once at exit.
// It is a no-op when no session was ever loaded.
func ShutdownRuntime() error {
	if !ort.IsInitialized() {
		return nil
	}
	return ort.DestroyEnvironment()
}

// ONNXLoader opens classifier sessions with ONNX Runtime.
type ONNXLoader struct {
	libraryPath string
}

// Compile-time check that ONNXLoader implements Loader
var _ Loader = (*ONNXLoader)(nil)

// NewONNXLoader creates a loader. An empty libraryPath uses the runtime's
// default library lookup.
func NewONNXLoader(libraryPath string) *ONNXLoader {
	return &ONNXLoader{libraryPath: libraryPath}
}

// Load opens the model at path. Input and output names are read from the model.
func (l *ONNXLoader) Load(ctx context.Context, path string) (Session, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if _, err := os.Stat(path); err != nil {
		return nil, fmt.Errorf("model artifact: %w", err)
	}
	if err := initEnvironment(l.libraryPath); err != nil {
		return nil, err
	}

	inputs, outputs, err := ort.GetInputOutputInfo(path)
	if err != nil {
		return nil, fmt.Errorf("inspect model %s: %w", path, err)
	}
	if len(inputs) != 1 {
		return nil, fmt.Errorf("model %s has %d inputs, want 1", path, len(inputs))
	}
	labelName, probName, err := outputNames(outputs)
	if err != nil {
		return nil, fmt.Errorf("model %s: %w", path, err)
	}

	session, err := ort.NewDynamicAdvancedSession(path, []string{inputs[0].Name}, []string{labelName, probName}, nil)
	if err != nil {
		return nil, fmt.Errorf("create ONNX session: %w", err)
	}

	width := 0
	if dims := inputs[0].Dimensions; len(dims) > 0 && dims[len(dims)-1] > 0 {
		width = int(dims[len(dims)-1])
	}

	log.Debug().
		Str("path", path).
		Str("input", inputs[0].Name).
		Int("width", width).
		Msg("Loaded ONNX classifier")

	return &onnxSession{session: session, width: width}, nil
}

// outputNames picks the label and probability outputs, falling back to
// declaration order when the model uses other names.
func outputNames(outputs []ort.InputOutputInfo) (string, string, error) {
	var label, prob string
	for _, o := range outputs {
		switch o.Name {
		case labelOutputName:
			label = o.Name
		case probabilityOutputName:
			prob = o.Name
		}
	}
	if label != "" && prob != "" {
		return label, prob, nil
	}
	if len(outputs) < 2 {
		return "", "", fmt.Errorf("expected label and probability outputs, got %d outputs", len(outputs))
	}
	return outputs[0].Name, outputs[1].Name, nil
}

// onnxSession wraps a DynamicAdvancedSession. ONNX sessions are not safe for
// concurrent Run calls, so runs are serialized.
type onnxSession struct {
	session *ort.DynamicAdvancedSession
	mu      sync.Mutex
	width   int
}

// Compile-time check that onnxSession implements Session
var _ Session = (*onnxSession)(nil)

func (s *onnxSession) InputWidth() int {
	return s.width
}

func (s *onnxSession) Run(input []float32) (Output, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.session == nil {
		return Output{}, fmt.Errorf("session closed")
	}

	in, err := ort.NewTensor(ort.NewShape(1, int64(len(input))), input)
	if err != nil {
		return Output{}, fmt.Errorf("create input tensor: %w", err)
	}
	defer in.Destroy()

	// Nil outputs are allocated by the runtime with the shapes it produces.
	outputs := []ort.Value{nil, nil}
	if err := s.session.Run([]ort.Value{in}, outputs); err != nil {
		return Output{}, fmt.Errorf("run ONNX session: %w", err)
	}
	defer func() {
		for _, o := range outputs {
			if o != nil {
				_ = o.Destroy()
			}
		}
	}()

	labels, ok := outputs[0].(*ort.Tensor[int64])
	if !ok {
		return Output{}, fmt.Errorf("label output has unexpected type %T", outputs[0])
	}
	probs, ok := outputs[1].(*ort.Tensor[float32])
	if !ok {
		return Output{}, fmt.Errorf("probability output has unexpected type %T", outputs[1])
	}

	labelData := labels.GetData()
	if len(labelData) == 0 {
		return Output{}, fmt.Errorf("label output is empty")
	}

	return Output{
		Label:         labelData[0],
		Probabilities: append([]float32(nil), probs.GetData()...),
	}, nil
}

func (s *onnxSession) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.session == nil {
		return nil
	}
	err := s.session.Destroy()
	s.session = nil
	return err
}
