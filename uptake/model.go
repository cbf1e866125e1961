package uptake

import (
	"context"
	"errors"
	"math"
)

var (
	// ErrMissingHead is returned when the model output lacks the requested head.
	ErrMissingHead = errors.New("model output has no such head")
	// ErrBadLogits is returned when the head does not carry exactly two logits.
	ErrBadLogits = errors.New("expected two logits")
)

// Model exposes the minimal surface required by the scorer: a batch of one
// encoded pair in, named logit vectors out. Implementations may compute
// only the requested heads.
type Model interface {
	Predict(ctx context.Context, enc Encoding, heads ...string) (map[string][]float32, error)
	ModelID() string
}

// Softmax returns the normalized exponential of logits, shifted by the
// maximum for numerical stability.
func Softmax(logits []float32) []float64 {
	out := make([]float64, len(logits))
	if len(logits) == 0 {
		return out
	}
	maxVal := math.Inf(-1)
	for _, l := range logits {
		maxVal = math.Max(maxVal, float64(l))
	}
	var sum float64
	for i, l := range logits {
		out[i] = math.Exp(float64(l) - maxVal)
		sum += out[i]
	}
	for i := range out {
		out[i] /= sum
	}
	return out
}
