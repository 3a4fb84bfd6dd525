package restore

import (
	"context"
	"errors"
	"fmt"
	"image"
	"image/color"
	"path/filepath"
	"sync"
	"testing"

	"github.com/panam-dodia/NeuralLense/backend"
	"github.com/panam-dodia/NeuralLense/diffusion"
)

// fakeSession computes plausible model outputs in-process so the engine can
// be exercised without a real runtime.
type fakeSession struct {
	run    func(inputs []backend.Tensor) ([]backend.Tensor, error)
	closed bool
}

func (f *fakeSession) Run(ctx context.Context, inputs []backend.Tensor) ([]backend.Tensor, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if f.closed {
		return nil, &backend.InferenceError{Op: "run", Err: errors.New("session closed")}
	}
	return f.run(inputs)
}

func (f *fakeSession) Close() error {
	f.closed = true
	return nil
}

func fakeEncoderSession() *fakeSession {
	return &fakeSession{run: func(inputs []backend.Tensor) ([]backend.Tensor, error) {
		vec := make([]float32, 2*contextDim)
		for i := range vec {
			vec[i] = float32(i%7) * 0.1
		}
		return []backend.Tensor{{Name: "contexts", Shape: []int64{1, 2 * contextDim}, Floats: vec}}, nil
	}}
}

func fakeDenoiserSession() *fakeSession {
	return &fakeSession{run: func(inputs []backend.Tensor) ([]backend.Tensor, error) {
		var x, lq backend.Tensor
		for _, in := range inputs {
			switch in.Name {
			case "noisy_image":
				x = in
			case "lq_image":
				lq = in
			}
		}
		noise := make([]float32, len(x.Floats))
		for i := range noise {
			noise[i] = (x.Floats[i] - lq.Floats[i]) * 0.1
		}
		return []backend.Tensor{{Name: "noise", Shape: x.Shape, Floats: noise}}, nil
	}}
}

// fakeRuntime returns canned sessions by model file name.
type fakeRuntime struct {
	sessions map[string]backend.Session
	loadErr  map[string]error
}

func (f *fakeRuntime) LoadSession(path string) (backend.Session, error) {
	name := filepath.Base(path)
	if err := f.loadErr[name]; err != nil {
		return nil, err
	}
	sess, ok := f.sessions[name]
	if !ok {
		return nil, &backend.InferenceError{Op: "model load", Err: fmt.Errorf("no fake for %s", name)}
	}
	return sess, nil
}

func (f *fakeRuntime) Provider() string { return "cpu" }
func (f *fakeRuntime) Close() error     { return nil }

func newFakeRuntime() *fakeRuntime {
	return &fakeRuntime{
		sessions: map[string]backend.Session{
			"encoder.onnx":  fakeEncoderSession(),
			"denoiser.onnx": fakeDenoiserSession(),
		},
		loadErr: map[string]error{},
	}
}

func testConfig() Config {
	return Config{
		ScheduleSteps: 100,
		MaxSigma:      50.0 / 255,
		Eps:           0.005,
		EncoderPath:   "encoder.onnx",
		DenoiserPath:  "denoiser.onnx",
		NoiseDist:     diffusion.DistGaussian,
	}
}

func grayImage(w, h int) image.Image {
	img := image.NewRGBA(image.Rect(0, 0, w, h))
	mid := color.RGBA{128, 128, 128, 255}
	for y := range h {
		for x := range w {
			img.SetRGBA(x, y, mid)
		}
	}
	return img
}

func readySession(t *testing.T) *Session {
	t.Helper()
	s := NewSession(newFakeRuntime(), testConfig())
	if err := s.Initialize(context.Background()); err != nil {
		t.Fatal(err)
	}
	return s
}

func TestInitializeLifecycle(t *testing.T) {
	s := NewSession(newFakeRuntime(), testConfig())
	if s.State() != StateUninitialized {
		t.Fatalf("new session state = %s", s.State())
	}

	if err := s.Initialize(context.Background()); err != nil {
		t.Fatal(err)
	}
	if s.State() != StateReady {
		t.Fatalf("state after initialize = %s", s.State())
	}

	// Idempotent from Ready.
	if err := s.Initialize(context.Background()); err != nil {
		t.Fatal(err)
	}

	s.Release()
	if s.State() != StateReleased {
		t.Fatalf("state after release = %s", s.State())
	}
	s.Release() // idempotent

	if err := s.Initialize(context.Background()); !errors.Is(err, ErrReleased) {
		t.Errorf("initialize after release: expected ErrReleased, got %v", err)
	}
}

func TestInitializeRejectsBadScheduleBeforeLoad(t *testing.T) {
	rt := newFakeRuntime()
	rt.loadErr["encoder.onnx"] = errors.New("must not be reached")

	config := testConfig()
	config.Eps = 2

	s := NewSession(rt, config)
	if err := s.Initialize(context.Background()); !errors.Is(err, diffusion.ErrConfig) {
		t.Fatalf("expected ErrConfig, got %v", err)
	}
	if s.State() != StateUninitialized {
		t.Errorf("config rejection should not change state, got %s", s.State())
	}
}

func TestInitializeOOMTransitionsToFailed(t *testing.T) {
	rt := newFakeRuntime()
	rt.loadErr["denoiser.onnx"] = fmt.Errorf("%w: arena allocation failed", backend.ErrOutOfMemory)

	s := NewSession(rt, testConfig())
	err := s.Initialize(context.Background())
	if !errors.Is(err, backend.ErrOutOfMemory) {
		t.Fatalf("expected ErrOutOfMemory, got %v", err)
	}
	if s.State() != StateFailed {
		t.Fatalf("state after OOM = %s, want failed", s.State())
	}

	// The partially loaded encoder must have been released.
	enc := rt.sessions["encoder.onnx"].(*fakeSession)
	if !enc.closed {
		t.Error("encoder session should be closed after a failed denoiser load")
	}

	// The caller may retry after freeing memory.
	delete(rt.loadErr, "denoiser.onnx")
	rt.sessions["encoder.onnx"] = fakeEncoderSession()
	if err := s.Initialize(context.Background()); err != nil {
		t.Fatalf("retry after OOM: %v", err)
	}
	if s.State() != StateReady {
		t.Fatalf("state after retry = %s", s.State())
	}
}

func TestStateSafeForConcurrentReads(t *testing.T) {
	s := NewSession(newFakeRuntime(), testConfig())

	stop := make(chan struct{})
	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		for {
			select {
			case <-stop:
				return
			default:
				s.State()
			}
		}
	}()

	if err := s.Initialize(context.Background()); err != nil {
		t.Fatal(err)
	}
	s.Release()
	close(stop)
	wg.Wait()

	if s.State() != StateReleased {
		t.Errorf("state = %s, want released", s.State())
	}
}

func TestRestoreRejectsWrongStates(t *testing.T) {
	s := NewSession(newFakeRuntime(), testConfig())
	req := Request{Image: grayImage(16, 16), Steps: 2}

	if _, err := s.Restore(context.Background(), req); !errors.Is(err, ErrNotReady) {
		t.Errorf("uninitialized: expected ErrNotReady, got %v", err)
	}

	rt := newFakeRuntime()
	rt.loadErr["encoder.onnx"] = fmt.Errorf("%w", backend.ErrOutOfMemory)
	failed := NewSession(rt, testConfig())
	failed.Initialize(context.Background())
	if _, err := failed.Restore(context.Background(), req); !errors.Is(err, ErrNotReady) {
		t.Errorf("failed: expected ErrNotReady, got %v", err)
	}

	released := readySession(t)
	released.Release()
	if _, err := released.Restore(context.Background(), req); !errors.Is(err, ErrReleased) {
		t.Errorf("released: expected ErrReleased, got %v", err)
	}
}

func TestRestoreRejectsStepBounds(t *testing.T) {
	s := readySession(t)

	for _, steps := range []int{0, -1, 101} {
		req := Request{Image: grayImage(16, 16), Steps: steps}
		_, err := s.Restore(context.Background(), req)
		if !errors.Is(err, ErrInvalidRequest) {
			t.Errorf("steps=%d: expected ErrInvalidRequest, got %v", steps, err)
		}
	}
}
