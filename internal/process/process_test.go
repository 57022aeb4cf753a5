// Package process provides unit tests for the forward diffusion process.
package process

import (
	"math"
	"testing"

	"golang.org/x/exp/rand"

	"github.com/FlavioCFOliveira/GoDiffusion/internal/schedule"
	"github.com/FlavioCFOliveira/GoDiffusion/internal/tensor"
)

func testProcess(t *testing.T, timesteps int) *Process {
	t.Helper()
	s, err := schedule.Build(schedule.Linear, timesteps, 0.02)
	if err != nil {
		t.Fatalf("Build() error = %v", err)
	}
	return New(schedule.Derive(s), rand.NewSource(11))
}

// TestQSampleInverse tests that PredictStartFromNoise inverts QSample.
func TestQSampleInverse(t *testing.T) {
	p := testProcess(t, 100)
	src := rand.NewSource(3)

	xStart := tensor.Randn(src, 2, 1, 4, 6)
	noise := tensor.RandnLike(src, xStart)
	ts := []int{7, 93} // distinct timestep per batch element

	xT := p.QSample(xStart, ts, noise)
	recon := p.PredictStartFromNoise(xT, ts, noise)

	for i := range xStart.Data {
		if math.Abs(recon.Data[i]-xStart.Data[i]) > 1e-9 {
			t.Fatalf("recon[%d] = %v, want %v", i, recon.Data[i], xStart.Data[i])
		}
	}
}

// TestQSampleCoefficients tests the closed-form combination against the
// bank tables for a per-batch timestep mix.
func TestQSampleCoefficients(t *testing.T) {
	p := testProcess(t, 50)
	xStart := tensor.From([]float64{1, 1, 2, 2}, 2, 1, 1, 2)
	noise := tensor.From([]float64{0.5, 0.5, -0.5, -0.5}, 2, 1, 1, 2)
	ts := []int{0, 49}

	xT := p.QSample(xStart, ts, noise)
	bank := p.Bank()
	want := []float64{
		bank.SqrtAlphasCumprod[0]*1 + bank.SqrtOneMinusAlphasCumprod[0]*0.5,
		bank.SqrtAlphasCumprod[0]*1 + bank.SqrtOneMinusAlphasCumprod[0]*0.5,
		bank.SqrtAlphasCumprod[49]*2 - bank.SqrtOneMinusAlphasCumprod[49]*0.5,
		bank.SqrtAlphasCumprod[49]*2 - bank.SqrtOneMinusAlphasCumprod[49]*0.5,
	}
	for i := range want {
		if math.Abs(xT.Data[i]-want[i]) > 1e-12 {
			t.Errorf("xT[%d] = %v, want %v", i, xT.Data[i], want[i])
		}
	}
}

// TestQSampleDrawsNoise tests that omitting the noise argument still
// produces a valid sample (shape preserved, not equal to the mean).
func TestQSampleDrawsNoise(t *testing.T) {
	p := testProcess(t, 100)
	xStart := tensor.New(1, 1, 2, 2)
	xT := p.QSample(xStart, []int{50}, nil)
	if !tensor.SameShape(xT.Shape, xStart.Shape) {
		t.Fatalf("shape = %v, want %v", xT.Shape, xStart.Shape)
	}
	allZero := true
	for _, v := range xT.Data {
		if v != 0 {
			allZero = false
		}
	}
	if allZero {
		t.Error("QSample with nil noise produced the noiseless mean")
	}
}

// TestQPosterior tests the posterior mean combination and the broadcast
// variance lookups.
func TestQPosterior(t *testing.T) {
	p := testProcess(t, 50)
	bank := p.Bank()

	xStart := tensor.From([]float64{1, 2}, 2, 1, 1, 1)
	xT := tensor.From([]float64{3, 4}, 2, 1, 1, 1)
	ts := []int{5, 20}

	mean, variance, logVar := p.QPosterior(xStart, xT, ts)
	for i, ti := range ts {
		wantMean := bank.PosteriorMeanCoef1[ti]*xStart.Data[i] + bank.PosteriorMeanCoef2[ti]*xT.Data[i]
		if math.Abs(mean.Data[i]-wantMean) > 1e-12 {
			t.Errorf("mean[%d] = %v, want %v", i, mean.Data[i], wantMean)
		}
		if variance.Data[i] != bank.PosteriorVariance[ti] {
			t.Errorf("variance[%d] = %v, want %v", i, variance.Data[i], bank.PosteriorVariance[ti])
		}
		if logVar.Data[i] != bank.PosteriorLogVarianceClipped[ti] {
			t.Errorf("logVar[%d] = %v, want %v", i, logVar.Data[i], bank.PosteriorLogVarianceClipped[ti])
		}
	}
}

// TestQMeanVariance tests the q(x_t | x_0) moments against the tables.
func TestQMeanVariance(t *testing.T) {
	p := testProcess(t, 50)
	bank := p.Bank()

	xStart := tensor.From([]float64{2, -2}, 1, 1, 1, 2)
	mean, variance, logVar := p.QMeanVariance(xStart, []int{10})

	for i := range xStart.Data {
		wantMean := bank.SqrtAlphasCumprod[10] * xStart.Data[i]
		if math.Abs(mean.Data[i]-wantMean) > 1e-12 {
			t.Errorf("mean[%d] = %v, want %v", i, mean.Data[i], wantMean)
		}
		wantVar := 1 - bank.AlphasCumprod[10]
		if math.Abs(variance.Data[i]-wantVar) > 1e-12 {
			t.Errorf("variance[%d] = %v, want %v", i, variance.Data[i], wantVar)
		}
		if logVar.Data[i] != bank.LogOneMinusAlphasCumprod[10] {
			t.Errorf("logVar[%d] = %v, want %v", i, logVar.Data[i], bank.LogOneMinusAlphasCumprod[10])
		}
	}
}

// TestGatherOutOfRange tests the timestep range precondition.
func TestGatherOutOfRange(t *testing.T) {
	p := testProcess(t, 10)
	defer func() {
		if r := recover(); r == nil {
			t.Error("Expected panic for out-of-range timestep")
		}
	}()
	p.QSample(tensor.New(1, 1, 1, 1), []int{10}, tensor.New(1, 1, 1, 1))
}
