// Package sampler drives the iterative reverse (denoising) diffusion
// process. It supports stochastic ancestral sampling, deterministic DDIM
// steps, PLMS (pseudo linear multistep) steps with a bounded history of
// past noise predictions, and delegation to pluggable fast solvers.
//
// A Sampler is created per inference run: its noise-prediction history is
// call-local state. The coefficient bank it reads is shared and immutable.
package sampler

import (
	"math"

	"golang.org/x/exp/rand"

	"github.com/FlavioCFOliveira/GoDiffusion/internal/process"
	"github.com/FlavioCFOliveira/GoDiffusion/internal/schedule"
	"github.com/FlavioCFOliveira/GoDiffusion/internal/tensor"
)

// Oracle is the external learned denoising model. Given the concatenated
// model input [batch, outDims+condDims, seq], one timestep per batch
// element, and an optional reference tensor, it predicts the noise
// component of the input's outDims slice as a [batch, outDims, seq]
// tensor.
type Oracle interface {
	Infer(input *tensor.Tensor, t []int, reference *tensor.Tensor) (*tensor.Tensor, error)
}

// Sampler holds the per-run reverse-process state.
type Sampler struct {
	bank     *schedule.Bank
	proc     *process.Process
	oracle   Oracle
	src      rand.Source
	hist     History
	progress func()
}

// New creates a sampler over the shared coefficient bank. progress, if
// non-nil, is invoked once per oracle call; it is an observability hook
// with no effect on the computation.
func New(bank *schedule.Bank, proc *process.Process, oracle Oracle, src rand.Source, progress func()) *Sampler {
	return &Sampler{bank: bank, proc: proc, oracle: oracle, src: src, progress: progress}
}

// HistoryLen reports how many past noise predictions are buffered.
func (s *Sampler) HistoryLen() int { return s.hist.Len() }

// Denoise builds the model input by concatenating x's single channel with
// the conditioning tensor along the feature axis, invokes the oracle, and
// returns the predicted noise reshaped to x's [batch, 1, outDims, seq]
// layout. The oracle output shape is validated.
func (s *Sampler) Denoise(x *tensor.Tensor, t []int, cond, reference *tensor.Tensor) (*tensor.Tensor, error) {
	b, outDims, seq := x.Shape[0], x.Shape[2], x.Shape[3]
	rows := x.Reshape(b, outDims, seq)
	input := tensor.ConcatRows(rows, cond)

	pred, err := s.oracle.Infer(input, t, reference)
	if err != nil {
		return nil, err
	}
	if s.progress != nil {
		s.progress()
	}
	want := []int{b, outDims, seq}
	if !tensor.SameShape(pred.Shape, want) {
		return nil, &tensor.ShapeError{Op: "sampler: oracle output", Want: want, Got: pred.Shape}
	}
	return pred.Reshape(b, 1, outDims, seq), nil
}

// gatherFloor looks up table[t-offset] per batch element, flooring the
// index at 0.
func gatherFloor(table []float64, t []int, offset int) []float64 {
	out := make([]float64, len(t))
	for i, ti := range t {
		idx := ti - offset
		if idx < 0 {
			idx = 0
		}
		out[i] = table[idx]
	}
	return out
}

// PSample performs one ancestral sampling step: estimate x_0 from the
// predicted noise, clamp it to [-1, 1], then draw from the posterior
// q(x_{t-1} | x_t, x_0). The injected noise is masked out for batch
// elements at t=0, making the final step deterministic. repeatNoise draws
// a single noise row shared across the batch.
func (s *Sampler) PSample(x *tensor.Tensor, t []int, cond, reference *tensor.Tensor, repeatNoise bool) (*tensor.Tensor, error) {
	noisePred, err := s.Denoise(x, t, cond, reference)
	if err != nil {
		return nil, err
	}
	xRecon := s.proc.PredictStartFromNoise(x, t, noisePred).Clamp(-1, 1)
	mean, _, logVar := s.proc.QPosterior(xRecon, x, t)

	var noise *tensor.Tensor
	if repeatNoise {
		noise = tensor.RandnRepeated(s.src, x.Shape...)
	} else {
		noise = tensor.RandnLike(s.src, x)
	}

	out := tensor.New(x.Shape...)
	stride := x.Numel() / len(t)
	for n, tn := range t {
		mask := 1.0
		if tn == 0 {
			mask = 0
		}
		base := n * stride
		for i := base; i < base+stride; i++ {
			out.Data[i] = mean.Data[i] + mask*math.Exp(0.5*logVar.Data[i])*noise.Data[i]
		}
	}
	return out, nil
}

// PSampleDDIM performs one deterministic DDIM step of size interval:
//
//	x_prev = sqrt(a_prev) * (x/sqrt(a_t) + (sqrt((1-a_prev)/a_prev) - sqrt((1-a_t)/a_t)) * noise_pred)
//
// where a_prev is abar at t-interval, floored at timestep 0.
func (s *Sampler) PSampleDDIM(x *tensor.Tensor, t []int, interval int, cond, reference *tensor.Tensor) (*tensor.Tensor, error) {
	noisePred, err := s.Denoise(x, t, cond, reference)
	if err != nil {
		return nil, err
	}
	aT := gatherFloor(s.bank.AlphasCumprod, t, 0)
	aPrev := gatherFloor(s.bank.AlphasCumprod, t, interval)

	out := tensor.New(x.Shape...)
	stride := x.Numel() / len(t)
	for n := range t {
		sqrtAT := math.Sqrt(aT[n])
		sqrtAPrev := math.Sqrt(aPrev[n])
		noiseCoef := math.Sqrt((1-aPrev[n])/aPrev[n]) - math.Sqrt((1-aT[n])/aT[n])
		base := n * stride
		for i := base; i < base+stride; i++ {
			out.Data[i] = sqrtAPrev * (x.Data[i]/sqrtAT + noiseCoef*noisePred.Data[i])
		}
	}
	return out, nil
}

// getXPred extrapolates x one interval forward given a noise estimate,
// using the DDIM-style update rewritten as x + x_delta.
func (s *Sampler) getXPred(x, noiseT *tensor.Tensor, t []int, interval int) *tensor.Tensor {
	aT := gatherFloor(s.bank.AlphasCumprod, t, 0)
	aPrev := gatherFloor(s.bank.AlphasCumprod, t, interval)

	out := tensor.New(x.Shape...)
	stride := x.Numel() / len(t)
	for n := range t {
		aTSq := math.Sqrt(aT[n])
		aPrevSq := math.Sqrt(aPrev[n])
		xCoef := 1 / (aTSq * (aTSq + aPrevSq))
		noiseCoef := 1 / (aTSq * (math.Sqrt((1-aPrev[n])*aT[n]) + math.Sqrt((1-aT[n])*aPrev[n])))
		diff := aPrev[n] - aT[n]
		base := n * stride
		for i := base; i < base+stride; i++ {
			out.Data[i] = x.Data[i] + diff*(xCoef*x.Data[i]-noiseCoef*noiseT.Data[i])
		}
	}
	return out
}

// PSamplePLMS performs one pseudo linear multistep update of size
// interval. The current noise prediction is blended with up to three
// prior predictions using Adams-Bashforth coefficients of increasing
// order; with an empty history it warms up with a trapezoidal estimate
// that costs one extra oracle call. That warm-up call intentionally
// passes the unfloored t-interval to the oracle (matching the reference
// behavior); only table lookups are floored at 0.
func (s *Sampler) PSamplePLMS(x *tensor.Tensor, t []int, interval int, cond, reference *tensor.Tensor) (*tensor.Tensor, error) {
	noisePred, err := s.Denoise(x, t, cond, reference)
	if err != nil {
		return nil, err
	}

	var prime *tensor.Tensor
	switch s.hist.Len() {
	case 0:
		xPred := s.getXPred(x, noisePred, t, interval)
		tPrev := make([]int, len(t))
		for i, ti := range t {
			tPrev[i] = ti - interval
		}
		noisePredPrev, err := s.Denoise(xPred, tPrev, cond, reference)
		if err != nil {
			return nil, err
		}
		prime = blend(term{0.5, noisePred}, term{0.5, noisePredPrev})
	case 1:
		prime = blend(term{3.0 / 2, noisePred}, term{-1.0 / 2, s.hist.Prev(1)})
	case 2:
		prime = blend(term{23.0 / 12, noisePred}, term{-16.0 / 12, s.hist.Prev(1)}, term{5.0 / 12, s.hist.Prev(2)})
	default:
		prime = blend(term{55.0 / 24, noisePred}, term{-59.0 / 24, s.hist.Prev(1)}, term{37.0 / 24, s.hist.Prev(2)}, term{-9.0 / 24, s.hist.Prev(3)})
	}

	xPrev := s.getXPred(x, prime, t, interval)
	s.hist.Push(noisePred)
	return xPrev, nil
}

// term is one weighted noise prediction in a multistep blend.
type term struct {
	coef float64
	pred *tensor.Tensor
}

// blend computes a linear combination of noise predictions.
func blend(terms ...term) *tensor.Tensor {
	out := tensor.New(terms[0].pred.Shape...)
	for _, tm := range terms {
		for i, v := range tm.pred.Data {
			out.Data[i] += tm.coef * v
		}
	}
	return out
}
