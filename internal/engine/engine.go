// Package engine orchestrates the diffusion core: it owns the schedule
// coefficient bank, the spectrogram normalizer and the random source, and
// dispatches between the training loss and the reverse samplers.
package engine

import (
	"errors"
	"fmt"

	"golang.org/x/exp/rand"

	"github.com/FlavioCFOliveira/GoDiffusion/internal/loss"
	"github.com/FlavioCFOliveira/GoDiffusion/internal/norm"
	"github.com/FlavioCFOliveira/GoDiffusion/internal/process"
	"github.com/FlavioCFOliveira/GoDiffusion/internal/sampler"
	"github.com/FlavioCFOliveira/GoDiffusion/internal/schedule"
	"github.com/FlavioCFOliveira/GoDiffusion/internal/tensor"
)

// Algorithm selects the reverse sampling method.
type Algorithm int

const (
	// Ancestral runs the full stochastic reverse chain, one step per
	// timestep.
	Ancestral Algorithm = iota
	// DDIM runs deterministic non-Markovian steps of size speedup.
	DDIM
	// PLMS runs pseudo linear multistep steps of size speedup.
	PLMS
	// DPMSolver delegates integration to an injected DPM-Solver strategy.
	DPMSolver
	// UniPC delegates integration to an injected UniPC strategy.
	UniPC
)

// ErrBadConfig is wrapped by every configuration error this package returns.
var ErrBadConfig = errors.New("engine: invalid configuration")

// String returns the canonical algorithm name.
func (a Algorithm) String() string {
	switch a {
	case Ancestral:
		return "ancestral"
	case DDIM:
		return "ddim"
	case PLMS:
		return "plms"
	case DPMSolver:
		return "dpm-solver"
	case UniPC:
		return "unipc"
	}
	return fmt.Sprintf("Algorithm(%d)", int(a))
}

// ParseAlgorithm converts an algorithm name to its Algorithm value.
// "pndm" is accepted as an alias for PLMS.
func ParseAlgorithm(name string) (Algorithm, error) {
	switch name {
	case "ancestral":
		return Ancestral, nil
	case "ddim":
		return DDIM, nil
	case "plms", "pndm":
		return PLMS, nil
	case "dpm-solver":
		return DPMSolver, nil
	case "unipc":
		return UniPC, nil
	}
	return 0, fmt.Errorf("%w: unknown sampling algorithm %q", ErrBadConfig, name)
}

// Config holds the engine's construction-time parameters. Zero fields
// fall back to the defaults noted per field.
type Config struct {
	OutDims   int             // spectrogram rows generated per frame (default 128)
	Timesteps int             // total diffusion timesteps T (default 1000)
	KStep     int             // default starting timestep for inference and t_max for training (default Timesteps)
	Family    schedule.Family // beta schedule family (default Linear)
	MaxBeta   float64         // linear schedule ceiling (default 0.02)
	SpecMin   float64         // spectrogram lower bound (default -12 when both bounds are zero)
	SpecMax   float64         // spectrogram upper bound (default 2 when both bounds are zero)
	Seed      uint64          // random source seed

	// Solvers holds injected fast-solver strategies, keyed by the
	// algorithm they serve. Sampling with DPMSolver or UniPC fails when
	// no strategy is registered.
	Solvers map[Algorithm]sampler.Solver
}

func (c *Config) applyDefaults() {
	if c.OutDims == 0 {
		c.OutDims = 128
	}
	if c.Timesteps == 0 {
		c.Timesteps = 1000
	}
	if c.KStep == 0 {
		c.KStep = c.Timesteps
	}
	if c.MaxBeta == 0 {
		c.MaxBeta = 0.02
	}
	if c.SpecMin == 0 && c.SpecMax == 0 {
		c.SpecMin, c.SpecMax = -12, 2
	}
}

// Engine is the public entry point of the diffusion core. The coefficient
// bank is derived once at construction and shared read-only with every
// component; per-call state (sampler history, state tensor) never crosses
// calls.
type Engine struct {
	cfg    Config
	bank   *schedule.Bank
	norm   norm.Normalizer
	oracle sampler.Oracle
	src    rand.Source
	rng    *rand.Rand
}

// New builds an engine around the external denoising oracle.
func New(oracle sampler.Oracle, cfg Config) (*Engine, error) {
	cfg.applyDefaults()
	if oracle == nil {
		return nil, fmt.Errorf("%w: oracle must not be nil", ErrBadConfig)
	}
	if cfg.KStep < 1 || cfg.KStep > cfg.Timesteps {
		return nil, fmt.Errorf("%w: k-step %d outside [1,%d]", ErrBadConfig, cfg.KStep, cfg.Timesteps)
	}
	sched, err := schedule.Build(cfg.Family, cfg.Timesteps, cfg.MaxBeta)
	if err != nil {
		return nil, err
	}
	src := rand.NewSource(cfg.Seed)
	return &Engine{
		cfg:    cfg,
		bank:   schedule.Derive(sched),
		norm:   norm.Normalizer{Min: cfg.SpecMin, Max: cfg.SpecMax},
		oracle: oracle,
		src:    src,
		rng:    rand.New(src),
	}, nil
}

// Bank exposes the derived coefficient tables (read-only).
func (e *Engine) Bank() *schedule.Bank { return e.bank }

// SampleOptions controls one inference call.
type SampleOptions struct {
	Algorithm Algorithm
	// Speedup is the sampler step size; values <= 1 run the full
	// ancestral chain regardless of Algorithm.
	Speedup int
	// GroundTruth, when set together with StartStep, seeds sampling with
	// a partially noised ground truth [batch, seq, outDims] instead of
	// pure noise (refinement/continuation).
	GroundTruth *tensor.Tensor
	// StartStep is the timestep sampling starts from; 0 means the
	// engine's KStep.
	StartStep int
	// Progress, if non-nil, is called once per oracle invocation. It is
	// an observability hook only.
	Progress func()
}

// RunOptions selects between training and inference for Run.
type RunOptions struct {
	Train bool
	// LossKind is the training objective, "l1" or "l2".
	LossKind string
	// TMax bounds the sampled training timestep; 0 means the engine's
	// KStep.
	TMax int

	Sample SampleOptions
}

// RunResult carries either the scalar training loss or the denormalized
// inference output, depending on the mode.
type RunResult struct {
	Loss   float64
	Output *tensor.Tensor
}

// Run is the single dispatching entry point: training mode computes the
// diffusion loss against the ground truth, inference mode samples a new
// output conditioned on cond.
func (e *Engine) Run(cond, reference, groundTruth *tensor.Tensor, opts RunOptions) (RunResult, error) {
	if opts.Train {
		tMax := opts.TMax
		if tMax == 0 {
			tMax = e.cfg.KStep
		}
		l, err := e.Loss(groundTruth, cond, reference, tMax, opts.LossKind)
		return RunResult{Loss: l}, err
	}
	so := opts.Sample
	if so.GroundTruth == nil {
		so.GroundTruth = groundTruth
	}
	out, err := e.Sample(cond, reference, so)
	return RunResult{Output: out}, err
}

// fullT builds a per-batch timestep slice holding the same value.
func fullT(batch, v int) []int {
	t := make([]int, batch)
	for i := range t {
		t[i] = v
	}
	return t
}

// checkCond validates the [batch, seq, features] conditioning layout.
func checkCond(cond *tensor.Tensor) error {
	if cond == nil || len(cond.Shape) != 3 {
		got := []int(nil)
		if cond != nil {
			got = cond.Shape
		}
		return &tensor.ShapeError{Op: "engine: conditioning must be [batch, seq, features]", Got: got}
	}
	return nil
}

// Loss computes the training objective: a timestep is drawn uniformly
// from [0, tMax) per batch element, the normalized ground truth is noised
// via q_sample, and the oracle's noise prediction is compared against the
// true noise with the selected loss kernel.
func (e *Engine) Loss(groundTruth, cond, reference *tensor.Tensor, tMax int, kind string) (float64, error) {
	crit, err := loss.Parse(kind)
	if err != nil {
		return 0, err
	}
	if err := checkCond(cond); err != nil {
		return 0, err
	}
	batch, seq := cond.Shape[0], cond.Shape[1]
	want := []int{batch, seq, e.cfg.OutDims}
	if groundTruth == nil || !tensor.SameShape(groundTruth.Shape, want) {
		got := []int(nil)
		if groundTruth != nil {
			got = groundTruth.Shape
		}
		return 0, &tensor.ShapeError{Op: "engine: ground truth", Want: want, Got: got}
	}
	if tMax < 1 || tMax > e.cfg.Timesteps {
		return 0, fmt.Errorf("%w: t_max %d outside [1,%d]", ErrBadConfig, tMax, e.cfg.Timesteps)
	}

	condT := tensor.TransposeBatch(cond)
	normSpec := tensor.TransposeBatch(e.norm.Normalize(groundTruth)).
		Reshape(batch, 1, e.cfg.OutDims, seq)

	t := make([]int, batch)
	for i := range t {
		t[i] = e.rng.Intn(tMax)
	}
	noise := tensor.RandnLike(e.src, normSpec)

	proc := process.New(e.bank, e.src)
	xNoisy := proc.QSample(normSpec, t, noise)

	smp := sampler.New(e.bank, proc, e.oracle, e.src, nil)
	pred, err := smp.Denoise(xNoisy, t, condT, reference)
	if err != nil {
		return 0, err
	}
	return crit.Forward(pred.Data, noise.Data), nil
}

// Sample runs the reverse process and returns the denormalized output as
// [batch, seq, outDims].
func (e *Engine) Sample(cond, reference *tensor.Tensor, opts SampleOptions) (*tensor.Tensor, error) {
	if err := checkCond(cond); err != nil {
		return nil, err
	}
	batch, seq := cond.Shape[0], cond.Shape[1]
	condT := tensor.TransposeBatch(cond)
	outDims := e.cfg.OutDims

	proc := process.New(e.bank, e.src)
	smp := sampler.New(e.bank, proc, e.oracle, e.src, opts.Progress)

	// Initial state: pure Gaussian noise from the default starting step,
	// or the ground truth noised up to the caller's starting step.
	t := e.cfg.KStep
	var x *tensor.Tensor
	if opts.GroundTruth == nil || opts.StartStep == 0 {
		x = tensor.Randn(e.src, batch, 1, outDims, seq)
	} else {
		t = opts.StartStep
		if t < 1 || t > e.cfg.Timesteps {
			return nil, fmt.Errorf("%w: start step %d outside [1,%d]", ErrBadConfig, t, e.cfg.Timesteps)
		}
		want := []int{batch, seq, outDims}
		if !tensor.SameShape(opts.GroundTruth.Shape, want) {
			return nil, &tensor.ShapeError{Op: "engine: ground truth", Want: want, Got: opts.GroundTruth.Shape}
		}
		normSpec := tensor.TransposeBatch(e.norm.Normalize(opts.GroundTruth)).
			Reshape(batch, 1, outDims, seq)
		x = proc.QSample(normSpec, fullT(batch, t-1), nil)
	}

	var err error
	if opts.Speedup > 1 && opts.Algorithm != Ancestral {
		switch opts.Algorithm {
		case DDIM:
			for i := lastStep(t, opts.Speedup); i >= 0; i -= opts.Speedup {
				if x, err = smp.PSampleDDIM(x, fullT(batch, i), opts.Speedup, condT, reference); err != nil {
					return nil, err
				}
			}
		case PLMS:
			for i := lastStep(t, opts.Speedup); i >= 0; i -= opts.Speedup {
				if x, err = smp.PSamplePLMS(x, fullT(batch, i), opts.Speedup, condT, reference); err != nil {
					return nil, err
				}
			}
		case DPMSolver, UniPC:
			solver, ok := e.cfg.Solvers[opts.Algorithm]
			if !ok {
				return nil, fmt.Errorf("%w: no solver registered for %v", ErrBadConfig, opts.Algorithm)
			}
			view := sampler.NewNoiseScheduleView(e.bank.Betas[:t])
			if x, err = solver.Integrate(x, t/opts.Speedup, view, smp.WrapOracle(condT, reference)); err != nil {
				return nil, err
			}
		default:
			return nil, fmt.Errorf("%w: unknown sampling algorithm %v", ErrBadConfig, opts.Algorithm)
		}
	} else {
		for i := t - 1; i >= 0; i-- {
			if x, err = smp.PSample(x, fullT(batch, i), condT, reference, false); err != nil {
				return nil, err
			}
		}
	}

	out := tensor.TransposeBatch(x.Reshape(batch, outDims, seq))
	return e.norm.Denormalize(out), nil
}

// lastStep returns the largest multiple of interval strictly below t,
// the first timestep visited by the DDIM/PLMS loops.
func lastStep(t, interval int) int {
	return (t - 1) / interval * interval
}
