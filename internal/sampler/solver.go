package sampler

import (
	"gonum.org/v1/gonum/floats"

	"github.com/FlavioCFOliveira/GoDiffusion/internal/tensor"
)

// OracleFunc is the adapted oracle signature consumed by fast solvers:
// conditioning and reference are already bound, and the model-input
// concatenation happens inside the adapter.
type OracleFunc func(x *tensor.Tensor, t []int) (*tensor.Tensor, error)

// Solver is an external multistep integrator (DPM-Solver, UniPC). It is
// injected at configuration time and owns the entire integration loop for
// a reduced step budget.
type Solver interface {
	Integrate(x *tensor.Tensor, steps int, view *NoiseScheduleView, oracle OracleFunc) (*tensor.Tensor, error)
}

// NoiseScheduleView exposes the beta-subsequence parameterization fast
// solvers consume: the first t entries of the training beta table and
// their cumulative alphas.
type NoiseScheduleView struct {
	Betas         []float64
	AlphasCumprod []float64
}

// NewNoiseScheduleView builds a view over a beta prefix.
func NewNoiseScheduleView(betas []float64) *NoiseScheduleView {
	alphas := make([]float64, len(betas))
	for i, b := range betas {
		alphas[i] = 1 - b
	}
	cumprod := make([]float64, len(betas))
	floats.CumProd(cumprod, alphas)
	return &NoiseScheduleView{
		Betas:         append([]float64{}, betas...),
		AlphasCumprod: cumprod,
	}
}

// Timesteps returns the length of the viewed schedule prefix.
func (v *NoiseScheduleView) Timesteps() int { return len(v.Betas) }

// WrapOracle binds conditioning and reference into an OracleFunc: each
// call concatenates x's channel with the conditioning, invokes the
// oracle, and ticks the progress hook.
func (s *Sampler) WrapOracle(cond, reference *tensor.Tensor) OracleFunc {
	return func(x *tensor.Tensor, t []int) (*tensor.Tensor, error) {
		return s.Denoise(x, t, cond, reference)
	}
}
