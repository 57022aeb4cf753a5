package godiffusion

import (
	"github.com/FlavioCFOliveira/GoDiffusion/internal/engine"
	"github.com/FlavioCFOliveira/GoDiffusion/internal/norm"
	"github.com/FlavioCFOliveira/GoDiffusion/internal/sampler"
	"github.com/FlavioCFOliveira/GoDiffusion/internal/schedule"
	"github.com/FlavioCFOliveira/GoDiffusion/internal/tensor"
)

// Re-export common types for easier access
type (
	Engine        = engine.Engine
	Config        = engine.Config
	RunOptions    = engine.RunOptions
	RunResult     = engine.RunResult
	SampleOptions = engine.SampleOptions
	Algorithm     = engine.Algorithm

	Tensor     = tensor.Tensor
	ShapeError = tensor.ShapeError
	Normalizer = norm.Normalizer

	Oracle            = sampler.Oracle
	OracleFunc        = sampler.OracleFunc
	Solver            = sampler.Solver
	NoiseScheduleView = sampler.NoiseScheduleView

	Schedule       = schedule.Schedule
	Bank           = schedule.Bank
	ScheduleFamily = schedule.Family
)

// Sampling algorithms
const (
	Ancestral = engine.Ancestral
	DDIM      = engine.DDIM
	PLMS      = engine.PLMS
	DPMSolver = engine.DPMSolver
	UniPC     = engine.UniPC
)

// Schedule families
const (
	LinearSchedule = schedule.Linear
	CosineSchedule = schedule.Cosine
)

// Engine creation
func New(oracle Oracle, cfg Config) (*Engine, error) {
	return engine.New(oracle, cfg)
}

// Selectors
func ParseAlgorithm(name string) (Algorithm, error) {
	return engine.ParseAlgorithm(name)
}

func ParseScheduleFamily(name string) (ScheduleFamily, error) {
	return schedule.ParseFamily(name)
}

// Schedules
func BuildSchedule(family ScheduleFamily, timesteps int, maxBeta float64) (Schedule, error) {
	return schedule.Build(family, timesteps, maxBeta)
}

func DeriveBank(s Schedule) *Bank {
	return schedule.Derive(s)
}

// Tensors
func NewTensor(shape ...int) *Tensor {
	return tensor.New(shape...)
}

func TensorFrom(data []float64, shape ...int) *Tensor {
	return tensor.From(data, shape...)
}
