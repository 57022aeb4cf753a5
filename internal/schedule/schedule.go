// Package schedule builds diffusion beta schedules and derives the full
// per-timestep coefficient tables used by the forward and reverse
// processes. Tables are computed once and never mutated, so a Bank is
// safe for concurrent readers.
package schedule

import (
	"errors"
	"fmt"
	"math"

	"gonum.org/v1/gonum/floats"
)

// Family selects the beta schedule shape.
type Family int

const (
	// Linear spaces betas evenly from betaStart to the configured maximum.
	Linear Family = iota
	// Cosine derives betas from a squared-cosine cumulative-alpha curve.
	Cosine
)

const (
	betaStart     = 1e-4
	cosineOffset  = 0.008
	cosineBetaCap = 0.999
)

// ErrBadConfig is wrapped by every configuration error this package returns.
var ErrBadConfig = errors.New("schedule: invalid configuration")

// String returns the canonical family name.
func (f Family) String() string {
	switch f {
	case Linear:
		return "linear"
	case Cosine:
		return "cosine"
	}
	return fmt.Sprintf("Family(%d)", int(f))
}

// ParseFamily converts a schedule name to a Family.
func ParseFamily(name string) (Family, error) {
	switch name {
	case "linear":
		return Linear, nil
	case "cosine":
		return Cosine, nil
	}
	return 0, fmt.Errorf("%w: unknown schedule family %q", ErrBadConfig, name)
}

// Schedule is an immutable sequence of per-timestep betas.
type Schedule struct {
	Family Family
	Betas  []float64
}

// Build constructs a beta schedule with the given number of timesteps.
// maxBeta is only consulted by the linear family.
func Build(family Family, timesteps int, maxBeta float64) (Schedule, error) {
	if timesteps < 1 {
		return Schedule{}, fmt.Errorf("%w: timesteps must be at least 1, got %d", ErrBadConfig, timesteps)
	}
	switch family {
	case Linear:
		if maxBeta <= 0 || maxBeta >= 1 {
			return Schedule{}, fmt.Errorf("%w: max beta must be in (0,1), got %v", ErrBadConfig, maxBeta)
		}
		return Schedule{Family: Linear, Betas: linearBetas(timesteps, maxBeta)}, nil
	case Cosine:
		return Schedule{Family: Cosine, Betas: cosineBetas(timesteps)}, nil
	}
	return Schedule{}, fmt.Errorf("%w: unknown schedule family %v", ErrBadConfig, family)
}

// linearBetas spaces timesteps values evenly over [betaStart, maxBeta].
func linearBetas(timesteps int, maxBeta float64) []float64 {
	betas := make([]float64, timesteps)
	if timesteps == 1 {
		betas[0] = betaStart
		return betas
	}
	return floats.Span(betas, betaStart, maxBeta)
}

// cosineBetas samples a squared-cosine cumulative-alpha curve at
// timesteps+1 points, normalizes it to start at 1, and converts
// consecutive ratios to betas capped at cosineBetaCap.
func cosineBetas(timesteps int) []float64 {
	steps := timesteps + 1
	xs := make([]float64, steps)
	floats.Span(xs, 0, float64(steps))

	cumprod := make([]float64, steps)
	for i, x := range xs {
		phase := (x/float64(steps) + cosineOffset) / (1 + cosineOffset) * math.Pi * 0.5
		c := math.Cos(phase)
		cumprod[i] = c * c
	}
	first := cumprod[0]
	for i := range cumprod {
		cumprod[i] /= first
	}

	betas := make([]float64, timesteps)
	for i := 0; i < timesteps; i++ {
		b := 1 - cumprod[i+1]/cumprod[i]
		if b < 0 {
			b = 0
		} else if b > cosineBetaCap {
			b = cosineBetaCap
		}
		betas[i] = b
	}
	return betas
}

// Bank holds every per-timestep coefficient derived from a schedule.
// All slices have exactly len(Betas) entries, indexed by timestep, and
// must be treated as read-only.
type Bank struct {
	Betas             []float64
	Alphas            []float64
	AlphasCumprod     []float64
	AlphasCumprodPrev []float64

	SqrtAlphasCumprod         []float64
	SqrtOneMinusAlphasCumprod []float64
	LogOneMinusAlphasCumprod  []float64
	SqrtRecipAlphasCumprod    []float64
	SqrtRecipM1AlphasCumprod  []float64

	PosteriorVariance           []float64
	PosteriorLogVarianceClipped []float64
	PosteriorMeanCoef1          []float64
	PosteriorMeanCoef2          []float64
}

// posteriorVarFloor keeps the clipped log-variance finite when the
// posterior variance underflows (it is exactly 0 at t=0 for any schedule).
const posteriorVarFloor = 1e-20

// Derive precomputes the coefficient tables for a schedule using the
// standard DDPM closed-form relations. Pure and deterministic.
func Derive(s Schedule) *Bank {
	n := len(s.Betas)
	b := &Bank{
		Betas:             append([]float64{}, s.Betas...),
		Alphas:            make([]float64, n),
		AlphasCumprod:     make([]float64, n),
		AlphasCumprodPrev: make([]float64, n),

		SqrtAlphasCumprod:         make([]float64, n),
		SqrtOneMinusAlphasCumprod: make([]float64, n),
		LogOneMinusAlphasCumprod:  make([]float64, n),
		SqrtRecipAlphasCumprod:    make([]float64, n),
		SqrtRecipM1AlphasCumprod:  make([]float64, n),

		PosteriorVariance:           make([]float64, n),
		PosteriorLogVarianceClipped: make([]float64, n),
		PosteriorMeanCoef1:          make([]float64, n),
		PosteriorMeanCoef2:          make([]float64, n),
	}

	for t := range b.Alphas {
		b.Alphas[t] = 1 - b.Betas[t]
	}
	floats.CumProd(b.AlphasCumprod, b.Alphas)

	b.AlphasCumprodPrev[0] = 1
	copy(b.AlphasCumprodPrev[1:], b.AlphasCumprod[:n-1])

	for t := 0; t < n; t++ {
		ac := b.AlphasCumprod[t]
		acPrev := b.AlphasCumprodPrev[t]

		b.SqrtAlphasCumprod[t] = math.Sqrt(ac)
		b.SqrtOneMinusAlphasCumprod[t] = math.Sqrt(1 - ac)
		b.LogOneMinusAlphasCumprod[t] = math.Log(1 - ac)
		b.SqrtRecipAlphasCumprod[t] = math.Sqrt(1 / ac)
		b.SqrtRecipM1AlphasCumprod[t] = math.Sqrt(1/ac - 1)

		pv := b.Betas[t] * (1 - acPrev) / (1 - ac)
		b.PosteriorVariance[t] = pv
		b.PosteriorLogVarianceClipped[t] = math.Log(math.Max(pv, posteriorVarFloor))
		b.PosteriorMeanCoef1[t] = b.Betas[t] * math.Sqrt(acPrev) / (1 - ac)
		b.PosteriorMeanCoef2[t] = (1 - acPrev) * math.Sqrt(b.Alphas[t]) / (1 - ac)
	}
	return b
}

// Timesteps returns the number of diffusion timesteps in the bank.
func (b *Bank) Timesteps() int { return len(b.Betas) }
