// Package ort backs the inference Session abstraction with ONNX Runtime.
package ort

import (
	"context"
	"fmt"
	"log/slog"
	"runtime"
	"sync"

	onnx "github.com/yalue/onnxruntime_go"

	"github.com/panam-dodia/NeuralLense/backend"
)

// Options configures the shared ONNX Runtime environment.
type Options struct {
	// LibraryPath points at the onnxruntime shared library. Empty uses
	// the binding's default lookup.
	LibraryPath string

	// Accelerator is the execution provider preference: auto, cuda,
	// coreml or cpu.
	Accelerator string

	// IntraOpThreads limits intra-op parallelism; 0 lets the runtime
	// decide.
	IntraOpThreads int
}

// The native environment is process-global; initialize it once and keep a
// refcount so the last Runtime closed tears it down.
var (
	envMu   sync.Mutex
	envRefs int
)

// Runtime wraps the ONNX Runtime environment plus the session options all
// sessions loaded through it share.
type Runtime struct {
	opts     *onnx.SessionOptions
	provider string
	closed   bool
}

// NewRuntime initializes the environment and resolves the execution
// provider. Acceleration failing to enable is a soft failure: it is logged
// and the runtime continues on the default CPU path.
func NewRuntime(options Options) (*Runtime, error) {
	envMu.Lock()
	defer envMu.Unlock()

	if envRefs == 0 {
		if options.LibraryPath != "" {
			onnx.SetSharedLibraryPath(options.LibraryPath)
		}
		if !onnx.IsInitialized() {
			if err := onnx.InitializeEnvironment(); err != nil {
				return nil, backend.Classify("runtime initialization", err)
			}
		}
	}

	sessionOpts, err := onnx.NewSessionOptions()
	if err != nil {
		return nil, backend.Classify("session options", err)
	}
	if options.IntraOpThreads > 0 {
		if err := sessionOpts.SetIntraOpNumThreads(options.IntraOpThreads); err != nil {
			sessionOpts.Destroy()
			return nil, backend.Classify("session options", err)
		}
	}

	r := &Runtime{opts: sessionOpts, provider: "cpu"}
	r.enableAcceleration(options.Accelerator)
	envRefs++
	return r, nil
}

// enableAcceleration appends the preferred execution provider. Failure here
// never fails runtime construction.
func (r *Runtime) enableAcceleration(accelerator string) {
	try := func(name string, enable func() error) bool {
		if err := enable(); err != nil {
			slog.Warn("acceleration unavailable, continuing on CPU", "provider", name, "error", err)
			return false
		}
		r.provider = name
		slog.Info("hardware acceleration enabled", "provider", name)
		return true
	}

	switch accelerator {
	case "cuda":
		try("cuda", r.appendCUDA)
	case "coreml":
		try("coreml", r.appendCoreML)
	case "auto":
		if runtime.GOOS == "darwin" {
			try("coreml", r.appendCoreML)
		} else {
			try("cuda", r.appendCUDA)
		}
	}
}

func (r *Runtime) appendCUDA() error {
	cudaOpts, err := onnx.NewCUDAProviderOptions()
	if err != nil {
		return err
	}
	defer cudaOpts.Destroy()
	return r.opts.AppendExecutionProviderCUDA(cudaOpts)
}

func (r *Runtime) appendCoreML() error {
	return r.opts.AppendExecutionProviderCoreML(0)
}

func (r *Runtime) Provider() string {
	return r.provider
}

// LoadSession loads the model at path with this runtime's options.
func (r *Runtime) LoadSession(path string) (backend.Session, error) {
	inputs, outputs, err := onnx.GetInputOutputInfo(path)
	if err != nil {
		return nil, backend.Classify("model inspection", err)
	}

	inputNames := make([]string, len(inputs))
	for i, info := range inputs {
		inputNames[i] = info.Name
	}
	outputNames := make([]string, len(outputs))
	for i, info := range outputs {
		outputNames[i] = info.Name
	}

	sess, err := onnx.NewDynamicAdvancedSession(path, inputNames, outputNames, r.opts)
	if err != nil {
		return nil, backend.Classify("model load", err)
	}

	return &session{
		path:        path,
		inputNames:  inputNames,
		outputNames: outputNames,
		sess:        sess,
	}, nil
}

func (r *Runtime) Close() error {
	envMu.Lock()
	defer envMu.Unlock()

	if r.closed {
		return nil
	}
	r.closed = true

	err := r.opts.Destroy()
	envRefs--
	if envRefs == 0 {
		if destroyErr := onnx.DestroyEnvironment(); err == nil {
			err = destroyErr
		}
	}
	return err
}

type session struct {
	path        string
	inputNames  []string
	outputNames []string

	mu     sync.Mutex
	sess   *onnx.DynamicAdvancedSession
	closed bool
}

// Run matches the supplied tensors to the model's declared inputs by name
// and returns all outputs as flat float32 tensors.
func (s *session) Run(ctx context.Context, inputs []backend.Tensor) ([]backend.Tensor, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return nil, &backend.InferenceError{Op: "run", Err: fmt.Errorf("session %s is closed", s.path)}
	}

	byName := make(map[string]backend.Tensor, len(inputs))
	for _, in := range inputs {
		byName[in.Name] = in
	}

	values := make([]onnx.Value, 0, len(s.inputNames))
	defer func() {
		for _, v := range values {
			v.Destroy()
		}
	}()

	for _, name := range s.inputNames {
		in, ok := byName[name]
		if !ok {
			return nil, &backend.InferenceError{Op: "run", Err: fmt.Errorf("missing input tensor %q", name)}
		}
		value, err := newValue(in)
		if err != nil {
			return nil, backend.Classify("input tensor creation", err)
		}
		values = append(values, value)
	}

	outputs := make([]onnx.Value, len(s.outputNames))
	if err := s.sess.Run(values, outputs); err != nil {
		return nil, backend.Classify("model execution", err)
	}
	defer func() {
		for _, out := range outputs {
			if out != nil {
				out.Destroy()
			}
		}
	}()

	results := make([]backend.Tensor, len(outputs))
	for i, out := range outputs {
		tensor, ok := out.(*onnx.Tensor[float32])
		if !ok {
			return nil, &backend.InferenceError{Op: "run", Err: fmt.Errorf("output %q is not float32", s.outputNames[i])}
		}

		// The tensor's data references runtime-owned memory; copy it
		// out before the deferred destroy.
		data := make([]float32, len(tensor.GetData()))
		copy(data, tensor.GetData())
		shape := make([]int64, len(tensor.GetShape()))
		copy(shape, tensor.GetShape())

		results[i] = backend.Tensor{Name: s.outputNames[i], Shape: shape, Floats: data}
	}

	return results, nil
}

func newValue(in backend.Tensor) (onnx.Value, error) {
	shape := onnx.NewShape(in.Shape...)
	if in.Ints != nil {
		return onnx.NewTensor(shape, in.Ints)
	}
	return onnx.NewTensor(shape, in.Floats)
}

func (s *session) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return nil
	}
	s.closed = true
	return s.sess.Destroy()
}
