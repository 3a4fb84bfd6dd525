package restore

import (
	"context"
	"fmt"
	"image"
	"log/slog"
	"math/rand/v2"
	"time"

	"github.com/panam-dodia/NeuralLense/diffusion"
	"github.com/panam-dodia/NeuralLense/tensor"
)

// Request describes one restoration call. It is consumed entirely within
// that call.
type Request struct {
	// Image is the degraded photograph.
	Image image.Image

	// Steps is the number of reverse-diffusion steps, between 1 and the
	// schedule length.
	Steps int

	// MaxDimension bounds the working resolution; the engine downsamples
	// before sampling and upsamples the result back. Zero or less leaves
	// the resolution unbounded.
	MaxDimension int

	// Seed fixes the random source for reproducible output. Zero draws a
	// fresh seed.
	Seed uint64

	// Progress, when set, is called synchronously after each completed
	// step.
	Progress diffusion.ProgressFunc
}

// Restore runs the full reverse-diffusion restoration and returns the
// restored image at the request's original resolution. Any inference
// failure or resource exhaustion aborts the run; no partial image is ever
// returned.
func (s *Session) Restore(ctx context.Context, req Request) (image.Image, error) {
	if !s.flight.TryAcquire(1) {
		return nil, ErrBusy
	}
	defer s.flight.Release(1)

	switch s.State() {
	case StateReleased:
		return nil, ErrReleased
	case StateReady:
	default:
		return nil, fmt.Errorf("%w: state %s", ErrNotReady, s.State())
	}

	if req.Image == nil {
		return nil, fmt.Errorf("%w: no image", ErrInvalidRequest)
	}
	if req.Steps < 1 || req.Steps > s.schedule.Steps {
		return nil, fmt.Errorf("%w: steps %d out of range [1, %d]", ErrInvalidRequest, req.Steps, s.schedule.Steps)
	}

	bounds := req.Image.Bounds()
	origW, origH := bounds.Dx(), bounds.Dy()
	if origW < 1 || origH < 1 {
		return nil, fmt.Errorf("%w: empty image", ErrInvalidRequest)
	}

	workW, workH := tensor.FitWithin(origW, origH, req.MaxDimension)

	seed := req.Seed
	if seed == 0 {
		seed = rand.Uint64()
	}

	start := time.Now()
	slog.Debug("restoration starting",
		"size", fmt.Sprintf("%dx%d", origW, origH),
		"working_size", fmt.Sprintf("%dx%d", workW, workH),
		"steps", req.Steps,
		"seed", seed)

	imageCtx, degraCtx, err := s.encoder.Extract(ctx, req.Image)
	if err != nil {
		return nil, fmt.Errorf("extract conditioning: %w", err)
	}

	lq := tensor.FromImage(req.Image, workW, workH, nil)

	sampler := &diffusion.Sampler{
		Schedule:  s.schedule,
		Predictor: &denoiseRun{denoiser: s.denoiser, imageCtx: imageCtx, degraCtx: degraCtx},
		Rand:      diffusion.NewRand(seed),
		Dist:      s.config.NoiseDist,
		Progress:  req.Progress,
	}

	restored, err := sampler.Run(ctx, lq, req.Steps)
	if err != nil {
		return nil, err
	}

	out := image.Image(restored.ToImage())
	if workW != origW || workH != origH {
		out = tensor.Resize(out, image.Point{origW, origH})
	}

	slog.Debug("restoration complete", "duration", time.Since(start))
	return out, nil
}
