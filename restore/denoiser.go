package restore

import (
	"context"
	"fmt"

	"github.com/panam-dodia/NeuralLense/backend"
	"github.com/panam-dodia/NeuralLense/tensor"
)

// denoiser predicts the noise residual for the current estimate,
// conditioned on the degraded reference, the schedule index and the two
// context vectors.
type denoiser struct {
	session backend.Session
}

func (d *denoiser) predict(ctx context.Context, x, lq *tensor.Image, t int, imageCtx, degraCtx []float32) (*tensor.Image, error) {
	inputs := []backend.Tensor{
		{Name: "noisy_image", Shape: x.Shape(), Floats: x.Data},
		{Name: "lq_image", Shape: lq.Shape(), Floats: lq.Data},
		{Name: "timestep", Shape: []int64{1}, Ints: []int64{int64(t)}},
		{Name: "image_context", Shape: []int64{1, contextDim}, Floats: imageCtx},
		{Name: "degra_context", Shape: []int64{1, contextDim}, Floats: degraCtx},
	}

	outputs, err := d.session.Run(ctx, inputs)
	if err != nil {
		return nil, err
	}

	if len(outputs) == 0 || outputs[0].Elems() != x.Elems() || len(outputs[0].Floats) != x.Elems() {
		return nil, &backend.InferenceError{
			Op:  "noise prediction",
			Err: fmt.Errorf("denoiser emitted %d values, want %d", outputLen(outputs), x.Elems()),
		}
	}

	return &tensor.Image{Data: outputs[0].Floats, C: x.C, H: x.H, W: x.W}, nil
}

// denoiseRun binds a denoiser to one restoration's conditioning vectors so
// it can serve as the sampler's predictor.
type denoiseRun struct {
	denoiser *denoiser
	imageCtx []float32
	degraCtx []float32
}

func (r *denoiseRun) PredictNoise(ctx context.Context, x, lq *tensor.Image, t int) (*tensor.Image, error) {
	return r.denoiser.predict(ctx, x, lq, t, r.imageCtx, r.degraCtx)
}
