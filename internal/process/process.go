// Package process implements the closed-form forward (noising) diffusion
// process and its Gaussian posterior. Every operation is a pure table
// lookup plus elementwise arithmetic; per-timestep coefficients are
// broadcast across each batch element, which may carry its own timestep.
package process

import (
	"fmt"

	"golang.org/x/exp/rand"

	"github.com/FlavioCFOliveira/GoDiffusion/internal/schedule"
	"github.com/FlavioCFOliveira/GoDiffusion/internal/tensor"
)

// Process evaluates q(x_t | x_0) and q(x_{t-1} | x_t, x_0) against a
// precomputed coefficient bank. The random source is only consulted when
// a caller omits the noise argument to QSample.
type Process struct {
	bank *schedule.Bank
	src  rand.Source
}

// New creates a forward process over the given coefficient bank.
func New(bank *schedule.Bank, src rand.Source) *Process {
	return &Process{bank: bank, src: src}
}

// Bank exposes the underlying coefficient tables (read-only).
func (p *Process) Bank() *schedule.Bank { return p.bank }

// gather looks up one table value per batch element.
func gather(table []float64, t []int) []float64 {
	out := make([]float64, len(t))
	for i, ti := range t {
		if ti < 0 || ti >= len(table) {
			panic(fmt.Sprintf("process: timestep %d out of range [0,%d)", ti, len(table)))
		}
		out[i] = table[ti]
	}
	return out
}

// batchStride returns the number of elements per batch entry.
func batchStride(x *tensor.Tensor, batch int) int {
	if batch == 0 || x.Numel()%batch != 0 {
		panic(fmt.Sprintf("process: tensor %v not divisible into %d batch entries", x.Shape, batch))
	}
	return x.Numel() / batch
}

// combine computes ca[b]*a + cb[b]*b element-wise, broadcasting the
// per-batch scalars over each batch block.
func combine(a *tensor.Tensor, ca []float64, b *tensor.Tensor, cb []float64) *tensor.Tensor {
	if len(a.Data) != len(b.Data) {
		panic("process: operands must have same size")
	}
	out := tensor.New(a.Shape...)
	stride := batchStride(a, len(ca))
	for n := range ca {
		base := n * stride
		for i := base; i < base+stride; i++ {
			out.Data[i] = ca[n]*a.Data[i] + cb[n]*b.Data[i]
		}
	}
	return out
}

// broadcast expands one scalar per batch element to the full tensor shape.
func broadcast(vals []float64, like *tensor.Tensor) *tensor.Tensor {
	out := tensor.New(like.Shape...)
	stride := batchStride(like, len(vals))
	for n, v := range vals {
		base := n * stride
		for i := base; i < base+stride; i++ {
			out.Data[i] = v
		}
	}
	return out
}

// QSample draws x_t from q(x_t | x_0):
//
//	x_t = sqrt(abar_t)*x_0 + sqrt(1-abar_t)*noise
//
// t holds one timestep per batch element. If noise is nil, fresh N(0,I)
// noise matching xStart's shape is drawn.
func (p *Process) QSample(xStart *tensor.Tensor, t []int, noise *tensor.Tensor) *tensor.Tensor {
	if noise == nil {
		noise = tensor.RandnLike(p.src, xStart)
	}
	return combine(
		xStart, gather(p.bank.SqrtAlphasCumprod, t),
		noise, gather(p.bank.SqrtOneMinusAlphasCumprod, t),
	)
}

// QMeanVariance returns the moments of q(x_t | x_0): mean sqrt(abar_t)*x_0,
// variance 1-abar_t and its log, broadcast to xStart's shape.
func (p *Process) QMeanVariance(xStart *tensor.Tensor, t []int) (mean, variance, logVariance *tensor.Tensor) {
	sac := gather(p.bank.SqrtAlphasCumprod, t)
	mean = tensor.New(xStart.Shape...)
	stride := batchStride(xStart, len(t))
	for n, c := range sac {
		base := n * stride
		for i := base; i < base+stride; i++ {
			mean.Data[i] = c * xStart.Data[i]
		}
	}
	oneMinus := make([]float64, len(t))
	for i, ti := range t {
		oneMinus[i] = 1 - p.bank.AlphasCumprod[ti]
	}
	variance = broadcast(oneMinus, xStart)
	logVariance = broadcast(gather(p.bank.LogOneMinusAlphasCumprod, t), xStart)
	return mean, variance, logVariance
}

// PredictStartFromNoise inverts QSample algebraically:
//
//	x_0 = sqrt(1/abar_t)*x_t - sqrt(1/abar_t - 1)*noise
func (p *Process) PredictStartFromNoise(xT *tensor.Tensor, t []int, noise *tensor.Tensor) *tensor.Tensor {
	recip := gather(p.bank.SqrtRecipAlphasCumprod, t)
	recipM1 := gather(p.bank.SqrtRecipM1AlphasCumprod, t)
	for i := range recipM1 {
		recipM1[i] = -recipM1[i]
	}
	return combine(xT, recip, noise, recipM1)
}

// QPosterior returns the mean, variance and clipped log-variance of the
// diffusion posterior q(x_{t-1} | x_t, x_0).
func (p *Process) QPosterior(xStart, xT *tensor.Tensor, t []int) (mean, variance, logVariance *tensor.Tensor) {
	mean = combine(
		xStart, gather(p.bank.PosteriorMeanCoef1, t),
		xT, gather(p.bank.PosteriorMeanCoef2, t),
	)
	variance = broadcast(gather(p.bank.PosteriorVariance, t), xT)
	logVariance = broadcast(gather(p.bank.PosteriorLogVarianceClipped, t), xT)
	return mean, variance, logVariance
}
