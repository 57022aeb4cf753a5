// Package loss provides the elementwise loss kernels used by the
// diffusion training objective.
package loss

import (
	"errors"
	"fmt"
	"math"
)

// ErrUnknownKind is wrapped when a loss kind name is not recognized.
var ErrUnknownKind = errors.New("loss: unknown kind")

// Loss measures the distance between a predicted and a true tensor,
// both given as flat slices of identical length.
type Loss interface {
	// Forward computes the scalar loss between prediction and target.
	Forward(yPred, yTrue []float64) float64
}

// Parse maps a loss kind name to its kernel. Recognized kinds are
// "l1" (mean absolute error) and "l2" (mean squared error).
func Parse(kind string) (Loss, error) {
	switch kind {
	case "l1":
		return L1{}, nil
	case "l2":
		return MSE{}, nil
	}
	return nil, fmt.Errorf("%w: %q", ErrUnknownKind, kind)
}

// MSE (Mean Squared Error) loss.
type MSE struct{}

// Forward computes mean squared error: (1/n) * sum((y_pred - y_true)^2)
func (MSE) Forward(yPred, yTrue []float64) float64 {
	n := len(yPred)
	if n != len(yTrue) {
		panic("MSE: prediction and target must have same length")
	}

	var sum float64
	for i := 0; i < n; i++ {
		diff := yPred[i] - yTrue[i]
		sum += diff * diff
	}
	return sum / float64(n)
}

// L1 (Mean Absolute Error) loss.
type L1 struct{}

// Forward computes mean absolute error: (1/n) * sum(|y_pred - y_true|)
func (L1) Forward(yPred, yTrue []float64) float64 {
	n := len(yPred)
	if n != len(yTrue) {
		panic("L1: prediction and target must have same length")
	}

	var sum float64
	for i := 0; i < n; i++ {
		sum += math.Abs(yPred[i] - yTrue[i])
	}
	return sum / float64(n)
}
