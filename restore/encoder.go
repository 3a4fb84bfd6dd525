package restore

import (
	"context"
	"fmt"
	"image"

	"github.com/panam-dodia/NeuralLense/backend"
	"github.com/panam-dodia/NeuralLense/tensor"
)

const (
	// encoderEdge is the encoder's fixed square input size.
	encoderEdge = 224

	// contextDim is the length of each conditioning vector. The encoder
	// emits both halves as one 2*contextDim vector.
	contextDim = 512
)

// encoderNorm matches the statistics the encoder was trained with.
var encoderNorm = tensor.Normalization{
	Mean: tensor.ImageNetDefaultMean,
	Std:  tensor.ImageNetDefaultSTD,
}

// encoder turns the degraded input into the two conditioning vectors: what
// the image shows, and how it is degraded.
type encoder struct {
	session backend.Session
}

func (e *encoder) Extract(ctx context.Context, img image.Image) (imageCtx, degraCtx []float32, err error) {
	in := tensor.FromImage(img, encoderEdge, encoderEdge, &encoderNorm)

	outputs, err := e.session.Run(ctx, []backend.Tensor{{
		Name:   "image",
		Shape:  in.Shape(),
		Floats: in.Data,
	}})
	if err != nil {
		return nil, nil, err
	}

	if len(outputs) == 0 || outputs[0].Elems() != 2*contextDim || len(outputs[0].Floats) != 2*contextDim {
		return nil, nil, &backend.InferenceError{
			Op:  "context extraction",
			Err: fmt.Errorf("encoder emitted %d values, want %d", outputLen(outputs), 2*contextDim),
		}
	}

	vec := outputs[0].Floats
	return vec[:contextDim], vec[contextDim:], nil
}

func outputLen(outputs []backend.Tensor) int {
	if len(outputs) == 0 {
		return 0
	}
	return len(outputs[0].Floats)
}
