// Package schedule provides unit tests for schedule construction and
// coefficient derivation.
package schedule

import (
	"errors"
	"math"
	"testing"
)

// TestLinearSchedule tests endpoints and monotonicity of the linear family.
func TestLinearSchedule(t *testing.T) {
	s, err := Build(Linear, 1000, 0.02)
	if err != nil {
		t.Fatalf("Build() error = %v", err)
	}
	if len(s.Betas) != 1000 {
		t.Fatalf("len(Betas) = %d, want 1000", len(s.Betas))
	}
	if math.Abs(s.Betas[0]-1e-4) > 1e-12 {
		t.Errorf("Betas[0] = %v, want 1e-4", s.Betas[0])
	}
	if math.Abs(s.Betas[999]-0.02) > 1e-12 {
		t.Errorf("Betas[999] = %v, want 0.02", s.Betas[999])
	}
	for i := 1; i < len(s.Betas); i++ {
		if s.Betas[i] <= s.Betas[i-1] {
			t.Fatalf("Betas not strictly increasing at %d: %v <= %v", i, s.Betas[i], s.Betas[i-1])
		}
	}
}

// TestCosineSchedule tests the clipping bounds of the cosine family.
func TestCosineSchedule(t *testing.T) {
	s, err := Build(Cosine, 1000, 0)
	if err != nil {
		t.Fatalf("Build() error = %v", err)
	}
	if len(s.Betas) != 1000 {
		t.Fatalf("len(Betas) = %d, want 1000", len(s.Betas))
	}
	if s.Betas[0] <= 0 {
		t.Errorf("Betas[0] = %v, want > 0", s.Betas[0])
	}
	for i, b := range s.Betas {
		if b < 0 || b > 0.999 {
			t.Fatalf("Betas[%d] = %v outside [0, 0.999]", i, b)
		}
	}
}

// TestBuildErrors tests configuration error detection.
func TestBuildErrors(t *testing.T) {
	tests := []struct {
		name      string
		family    Family
		timesteps int
		maxBeta   float64
	}{
		{"Zero timesteps", Linear, 0, 0.02},
		{"Negative timesteps", Linear, -5, 0.02},
		{"Unknown family", Family(99), 100, 0.02},
		{"Max beta zero", Linear, 100, 0},
		{"Max beta one", Linear, 100, 1},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Build(tt.family, tt.timesteps, tt.maxBeta)
			if !errors.Is(err, ErrBadConfig) {
				t.Errorf("Build() error = %v, want ErrBadConfig", err)
			}
		})
	}
}

// TestParseFamily tests schedule family name parsing.
func TestParseFamily(t *testing.T) {
	tests := []struct {
		name    string
		want    Family
		wantErr bool
	}{
		{"linear", Linear, false},
		{"cosine", Cosine, false},
		{"quadratic", 0, true},
		{"", 0, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := ParseFamily(tt.name)
			if tt.wantErr {
				if !errors.Is(err, ErrBadConfig) {
					t.Errorf("ParseFamily(%q) error = %v, want ErrBadConfig", tt.name, err)
				}
				return
			}
			if err != nil {
				t.Fatalf("ParseFamily(%q) error = %v", tt.name, err)
			}
			if got != tt.want {
				t.Errorf("ParseFamily(%q) = %v, want %v", tt.name, got, tt.want)
			}
		})
	}
}

// TestDeriveIdentities tests the closed-form relations that must hold
// between the derived coefficient tables.
func TestDeriveIdentities(t *testing.T) {
	families := []struct {
		name   string
		family Family
	}{
		{"Linear", Linear},
		{"Cosine", Cosine},
	}

	for _, f := range families {
		t.Run(f.name, func(t *testing.T) {
			s, err := Build(f.family, 200, 0.02)
			if err != nil {
				t.Fatalf("Build() error = %v", err)
			}
			b := Derive(s)
			if b.Timesteps() != 200 {
				t.Fatalf("Timesteps() = %d, want 200", b.Timesteps())
			}

			prev := 1.0
			for i := 0; i < b.Timesteps(); i++ {
				// abar_t = abar_{t-1} * alpha_t with abar_{-1} = 1.
				if math.Abs(b.AlphasCumprod[i]-prev*b.Alphas[i]) > 1e-12 {
					t.Fatalf("AlphasCumprod[%d] = %v, want %v", i, b.AlphasCumprod[i], prev*b.Alphas[i])
				}
				if math.Abs(b.AlphasCumprodPrev[i]-prev) > 1e-12 {
					t.Fatalf("AlphasCumprodPrev[%d] = %v, want %v", i, b.AlphasCumprodPrev[i], prev)
				}
				prev = b.AlphasCumprod[i]

				// Signal and noise fractions sum to one.
				sig := b.SqrtAlphasCumprod[i] * b.SqrtAlphasCumprod[i]
				noise := b.SqrtOneMinusAlphasCumprod[i] * b.SqrtOneMinusAlphasCumprod[i]
				if math.Abs(sig+noise-1) > 1e-10 {
					t.Fatalf("signal+noise at %d = %v, want 1", i, sig+noise)
				}

				if b.PosteriorVariance[i] < 0 {
					t.Fatalf("PosteriorVariance[%d] = %v, want >= 0", i, b.PosteriorVariance[i])
				}
				if math.IsInf(b.PosteriorLogVarianceClipped[i], 0) || math.IsNaN(b.PosteriorLogVarianceClipped[i]) {
					t.Fatalf("PosteriorLogVarianceClipped[%d] = %v, want finite", i, b.PosteriorLogVarianceClipped[i])
				}
			}
		})
	}
}

// TestDeriveTableLengths tests that every table carries exactly T entries.
func TestDeriveTableLengths(t *testing.T) {
	s, err := Build(Linear, 37, 0.02)
	if err != nil {
		t.Fatalf("Build() error = %v", err)
	}
	b := Derive(s)

	tables := map[string][]float64{
		"Betas":                       b.Betas,
		"Alphas":                      b.Alphas,
		"AlphasCumprod":               b.AlphasCumprod,
		"AlphasCumprodPrev":           b.AlphasCumprodPrev,
		"SqrtAlphasCumprod":           b.SqrtAlphasCumprod,
		"SqrtOneMinusAlphasCumprod":   b.SqrtOneMinusAlphasCumprod,
		"LogOneMinusAlphasCumprod":    b.LogOneMinusAlphasCumprod,
		"SqrtRecipAlphasCumprod":      b.SqrtRecipAlphasCumprod,
		"SqrtRecipM1AlphasCumprod":    b.SqrtRecipM1AlphasCumprod,
		"PosteriorVariance":           b.PosteriorVariance,
		"PosteriorLogVarianceClipped": b.PosteriorLogVarianceClipped,
		"PosteriorMeanCoef1":          b.PosteriorMeanCoef1,
		"PosteriorMeanCoef2":          b.PosteriorMeanCoef2,
	}
	for name, table := range tables {
		if len(table) != 37 {
			t.Errorf("len(%s) = %d, want 37", name, len(table))
		}
	}
}

// TestPosteriorCoefficients tests the posterior tables against a direct
// recomputation from betas.
func TestPosteriorCoefficients(t *testing.T) {
	s, err := Build(Linear, 100, 0.02)
	if err != nil {
		t.Fatalf("Build() error = %v", err)
	}
	b := Derive(s)

	for i := 0; i < b.Timesteps(); i++ {
		ac := b.AlphasCumprod[i]
		acPrev := b.AlphasCumprodPrev[i]
		wantVar := b.Betas[i] * (1 - acPrev) / (1 - ac)
		if math.Abs(b.PosteriorVariance[i]-wantVar) > 1e-15 {
			t.Fatalf("PosteriorVariance[%d] = %v, want %v", i, b.PosteriorVariance[i], wantVar)
		}
		wantCoef1 := b.Betas[i] * math.Sqrt(acPrev) / (1 - ac)
		if math.Abs(b.PosteriorMeanCoef1[i]-wantCoef1) > 1e-15 {
			t.Fatalf("PosteriorMeanCoef1[%d] = %v, want %v", i, b.PosteriorMeanCoef1[i], wantCoef1)
		}
		wantCoef2 := (1 - acPrev) * math.Sqrt(b.Alphas[i]) / (1 - ac)
		if math.Abs(b.PosteriorMeanCoef2[i]-wantCoef2) > 1e-15 {
			t.Fatalf("PosteriorMeanCoef2[%d] = %v, want %v", i, b.PosteriorMeanCoef2[i], wantCoef2)
		}
	}
}

// BenchmarkDerive benchmarks coefficient derivation for a full-length
// schedule.
func BenchmarkDerive(b *testing.B) {
	s, err := Build(Linear, 1000, 0.02)
	if err != nil {
		b.Fatalf("Build() error = %v", err)
	}
	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		Derive(s)
	}
}
