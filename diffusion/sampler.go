package diffusion

import (
	"context"
	"fmt"
	"math"
	"math/rand/v2"

	"github.com/panam-dodia/NeuralLense/logutil"
	"github.com/panam-dodia/NeuralLense/tensor"
)

// Predictor produces the noise residual for the current estimate. Both
// tensors are read-only for the predictor; the returned tensor must match
// their shape.
type Predictor interface {
	PredictNoise(ctx context.Context, x, lq *tensor.Image, t int) (*tensor.Image, error)
}

// ProgressFunc is invoked synchronously after each fully applied step. It
// must not block for long or it stalls the sampler.
type ProgressFunc func(completed, total int, message string)

// Sampler runs the reverse SDE from an initial noisy estimate back to a
// restored image. A Sampler is built per restoration run and is not safe
// for concurrent use.
type Sampler struct {
	Schedule  *Schedule
	Predictor Predictor
	Rand      *rand.Rand
	Dist      Dist
	Progress  ProgressFunc
}

// Run transforms lq into a restored tensor using the requested number of
// reverse steps. lq itself is never modified. On any predictor error or
// cancellation the run aborts with no partial result; the evolving estimate
// only ever reflects fully applied steps.
func (s *Sampler) Run(ctx context.Context, lq *tensor.Image, steps int) (*tensor.Image, error) {
	if steps < 1 || steps > s.Schedule.Steps {
		return nil, fmt.Errorf("%w: steps %d out of range [1, %d]", ErrConfig, steps, s.Schedule.Steps)
	}

	// Initial estimate: the low-quality reference plus bounded uniform
	// noise at the stationary level.
	x := lq.Clone()
	for i := range x.Data {
		x.Data[i] += float32((s.Rand.Float64()*2 - 1) * s.Schedule.MaxSigma)
	}

	sqrtDt := math.Sqrt(s.Schedule.Dt)

	for step := steps; step >= 1; step-- {
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		t := s.Schedule.index(step, steps)

		noise, err := s.Predictor.PredictNoise(ctx, x, lq, t)
		if err != nil {
			return nil, err
		}
		if !noise.SameShape(x) {
			panic(fmt.Sprintf("diffusion: noise shape %v does not match estimate %v", noise, x))
		}

		theta := s.Schedule.Thetas[t]
		sigma := s.Schedule.Sigmas[t]
		sigmaBar := s.Schedule.SigmaBars[t]
		dt := s.Schedule.Dt

		for i := range x.Data {
			score := -float64(noise.Data[i]) / sigmaBar
			drift := (theta*float64(lq.Data[i]-x.Data[i]) - sigma*sigma*score) * dt
			dispersion := sigma * s.Dist.sample(s.Rand) * sqrtDt
			x.Data[i] -= float32(drift + dispersion)
		}

		completed := steps - step + 1
		logutil.Trace("sampler step applied", "step", step, "t", t, "theta", theta, "sigma", sigma)
		if s.Progress != nil {
			s.Progress(completed, steps, fmt.Sprintf("restoring %d/%d", completed, steps))
		}
	}

	return x, nil
}
