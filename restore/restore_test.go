package restore

import (
	"context"
	"errors"
	"image"
	"sync"
	"testing"

	"github.com/google/go-cmp/cmp"

	"github.com/panam-dodia/NeuralLense/backend"
)

func TestRestoreEndToEnd(t *testing.T) {
	s := readySession(t)

	var calls []int
	out, err := s.Restore(context.Background(), Request{
		Image:        grayImage(100, 100),
		Steps:        10,
		MaxDimension: 100,
		Seed:         1,
		Progress: func(completed, total int, _ string) {
			calls = append(calls, completed)
			if total != 10 {
				t.Errorf("total = %d, want 10", total)
			}
		},
	})
	if err != nil {
		t.Fatal(err)
	}

	bounds := out.Bounds()
	if bounds.Dx() != 100 || bounds.Dy() != 100 {
		t.Fatalf("output size %dx%d, want 100x100", bounds.Dx(), bounds.Dy())
	}

	if len(calls) != 10 {
		t.Fatalf("progress reported %d times, want 10", len(calls))
	}
	for i, c := range calls {
		if c != i+1 {
			t.Fatalf("completed[%d] = %d", i, c)
		}
	}

	// Decoded output is always in display range by construction; spot
	// check a few pixels anyway.
	rgba := out.(*image.RGBA)
	for _, pt := range []image.Point{{0, 0}, {50, 50}, {99, 99}} {
		px := rgba.RGBAAt(pt.X, pt.Y)
		if px.A != 255 {
			t.Errorf("pixel %v alpha = %d", pt, px.A)
		}
	}
}

func TestRestoreDeterministic(t *testing.T) {
	s := readySession(t)

	run := func() *image.RGBA {
		out, err := s.Restore(context.Background(), Request{
			Image:        grayImage(64, 48),
			Steps:        5,
			MaxDimension: 64,
			Seed:         99,
		})
		if err != nil {
			t.Fatal(err)
		}
		return out.(*image.RGBA)
	}

	if diff := cmp.Diff(run().Pix, run().Pix); diff != "" {
		t.Errorf("seeded restorations differ:\n%s", diff)
	}
}

func TestRestorePreservesAspectRatio(t *testing.T) {
	s := readySession(t)

	out, err := s.Restore(context.Background(), Request{
		Image:        grayImage(200, 100),
		Steps:        2,
		MaxDimension: 64,
		Seed:         1,
	})
	if err != nil {
		t.Fatal(err)
	}

	bounds := out.Bounds()
	if bounds.Dx() != 200 || bounds.Dy() != 100 {
		t.Errorf("output size %dx%d, want the original 200x100", bounds.Dx(), bounds.Dy())
	}
}

func TestRestoreAbortsOnInferenceError(t *testing.T) {
	rt := newFakeRuntime()
	failing := fakeDenoiserSession()
	inner := failing.run
	var runs int
	failing.run = func(inputs []backend.Tensor) ([]backend.Tensor, error) {
		runs++
		if runs == 3 {
			return nil, &backend.InferenceError{Op: "noise prediction", Err: errors.New("execution failed")}
		}
		return inner(inputs)
	}
	rt.sessions["denoiser.onnx"] = failing

	s := NewSession(rt, testConfig())
	if err := s.Initialize(context.Background()); err != nil {
		t.Fatal(err)
	}

	out, err := s.Restore(context.Background(), Request{Image: grayImage(32, 32), Steps: 5, Seed: 1})
	var infErr *backend.InferenceError
	if !errors.As(err, &infErr) {
		t.Fatalf("expected InferenceError, got %v", err)
	}
	if out != nil {
		t.Error("no partial image may be returned from an aborted run")
	}
}

func TestRestoreRejectsMisshapenPrediction(t *testing.T) {
	rt := newFakeRuntime()
	bad := fakeDenoiserSession()
	inner := bad.run
	bad.run = func(inputs []backend.Tensor) ([]backend.Tensor, error) {
		outputs, err := inner(inputs)
		if err != nil {
			return nil, err
		}
		// Plausible data length but a shape that does not match it.
		outputs[0].Shape = []int64{1, 3, 1, 1}
		return outputs, nil
	}
	rt.sessions["denoiser.onnx"] = bad

	s := NewSession(rt, testConfig())
	if err := s.Initialize(context.Background()); err != nil {
		t.Fatal(err)
	}

	out, err := s.Restore(context.Background(), Request{Image: grayImage(16, 16), Steps: 2, Seed: 1})
	var infErr *backend.InferenceError
	if !errors.As(err, &infErr) {
		t.Fatalf("expected InferenceError for a misdeclared output shape, got %v", err)
	}
	if out != nil {
		t.Error("no partial image may be returned from an aborted run")
	}
}

func TestRestoreRejectsOverlappingCalls(t *testing.T) {
	rt := newFakeRuntime()

	release := make(chan struct{})
	started := make(chan struct{})
	var once sync.Once
	blocking := fakeDenoiserSession()
	inner := blocking.run
	blocking.run = func(inputs []backend.Tensor) ([]backend.Tensor, error) {
		once.Do(func() {
			close(started)
			<-release
		})
		return inner(inputs)
	}
	rt.sessions["denoiser.onnx"] = blocking

	s := NewSession(rt, testConfig())
	if err := s.Initialize(context.Background()); err != nil {
		t.Fatal(err)
	}

	done := make(chan error, 1)
	go func() {
		_, err := s.Restore(context.Background(), Request{Image: grayImage(16, 16), Steps: 2, Seed: 1})
		done <- err
	}()

	<-started
	if _, err := s.Restore(context.Background(), Request{Image: grayImage(16, 16), Steps: 2, Seed: 1}); !errors.Is(err, ErrBusy) {
		t.Errorf("expected ErrBusy for an overlapping call, got %v", err)
	}

	close(release)
	if err := <-done; err != nil {
		t.Fatalf("first restoration failed: %v", err)
	}
}

func TestRestoreHonorsCancellation(t *testing.T) {
	s := readySession(t)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	if _, err := s.Restore(ctx, Request{Image: grayImage(16, 16), Steps: 2, Seed: 1}); !errors.Is(err, context.Canceled) {
		t.Errorf("expected context.Canceled, got %v", err)
	}
}

func TestDefaultConfig(t *testing.T) {
	config := DefaultConfig()
	if config.ScheduleSteps != 100 {
		t.Errorf("schedule steps = %d, want 100", config.ScheduleSteps)
	}
	if config.MaxSigma <= 0 || config.Eps <= 0 || config.Eps >= 1 {
		t.Errorf("implausible defaults: maxSigma=%g eps=%g", config.MaxSigma, config.Eps)
	}
}
