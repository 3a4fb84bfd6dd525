// Package diffusion implements the mean-reverting SDE schedule and the
// reverse-diffusion sampling loop used to restore degraded photographs.
package diffusion

import (
	"errors"
	"fmt"
	"math"
)

// ErrConfig marks schedule or sampling parameters rejected before any model
// is touched.
var ErrConfig = errors.New("invalid diffusion configuration")

// cosineOffset avoids the zero-derivative singularity of the cosine
// alpha-cumprod curve at the origin.
const cosineOffset = 0.008

// Schedule holds the precomputed coefficients of the forward noising
// process. It is built once per session and read-only afterwards.
type Schedule struct {
	Steps    int     // T
	MaxSigma float64 // stationary noise level
	Eps      float64 // residual noise ratio at the final index

	Thetas       []float64
	ThetasCumsum []float64
	Sigmas       []float64
	SigmaBars    []float64
	Dt           float64
}

// NewSchedule derives the schedule arrays from the three scalars that
// parameterize the SDE. It performs no I/O and fails only on invalid
// parameters.
func NewSchedule(steps int, maxSigma, eps float64) (*Schedule, error) {
	if steps < 1 {
		return nil, fmt.Errorf("%w: step count %d, must be at least 1", ErrConfig, steps)
	}
	if maxSigma <= 0 {
		return nil, fmt.Errorf("%w: max sigma %g, must be positive", ErrConfig, maxSigma)
	}
	if eps <= 0 || eps >= 1 {
		return nil, fmt.Errorf("%w: eps %g, must be in (0, 1)", ErrConfig, eps)
	}

	// Cosine-shaped cumulative alpha over steps+2 points, normalized so
	// the first entry is exactly 1.
	alphaCumprod := make([]float64, steps+2)
	for i := range alphaCumprod {
		f := math.Cos((float64(i)/float64(steps+1) + cosineOffset) / (1 + cosineOffset) * math.Pi / 2)
		alphaCumprod[i] = f * f
	}
	for i := range alphaCumprod {
		alphaCumprod[i] /= alphaCumprod[0]
	}

	s := &Schedule{
		Steps:        steps,
		MaxSigma:     maxSigma,
		Eps:          eps,
		Thetas:       make([]float64, steps),
		ThetasCumsum: make([]float64, steps),
		Sigmas:       make([]float64, steps),
		SigmaBars:    make([]float64, steps),
	}

	var sum float64
	for i := range steps {
		s.Thetas[i] = 1 - alphaCumprod[i+1]
		sum += s.Thetas[i]
		// Anchoring at the first theta makes ThetasCumsum[0] == 0.
		s.ThetasCumsum[i] = sum - s.Thetas[0]
	}

	if s.ThetasCumsum[steps-1] <= 0 {
		return nil, fmt.Errorf("%w: step count %d yields a degenerate schedule", ErrConfig, steps)
	}

	s.Dt = -math.Log(eps) / s.ThetasCumsum[steps-1]

	for i := range steps {
		s.Sigmas[i] = math.Sqrt(2 * maxSigma * maxSigma * s.Thetas[i])
		s.SigmaBars[i] = math.Sqrt(maxSigma * maxSigma * (1 - math.Exp(-2*s.ThetasCumsum[i]*s.Dt)))
	}

	return s, nil
}

// index maps a wall-clock sampling step (counted down from the requested
// step count) onto a schedule position. Later wall-clock steps land on
// higher schedule indices, so sampling walks the forward schedule backward.
func (s *Schedule) index(step, steps int) int {
	t := int(math.Round(float64(step) * float64(s.Steps) / float64(steps)))
	if t > s.Steps-1 {
		t = s.Steps - 1
	}
	if t < 0 {
		t = 0
	}
	return t
}
