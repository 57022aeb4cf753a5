package main

import (
	"fmt"
	"math"

	"github.com/FlavioCFOliveira/GoDiffusion/godiffusion"
)

// decayOracle is a stand-in for a trained denoiser: it predicts a small
// fraction of the noisy input as noise, which steadily contracts the
// sample towards zero over the reverse chain.
type decayOracle struct {
	outDims int
}

func (o decayOracle) Infer(input *godiffusion.Tensor, t []int, _ *godiffusion.Tensor) (*godiffusion.Tensor, error) {
	out := godiffusion.NewTensor(input.Shape[0], o.outDims, input.Shape[2])
	stride := o.outDims * input.Shape[2]
	inStride := input.Shape[1] * input.Shape[2]
	for b := 0; b < input.Shape[0]; b++ {
		for i := 0; i < stride; i++ {
			out.Data[b*stride+i] = 0.1 * input.Data[b*inStride+i]
		}
	}
	return out, nil
}

func main() {
	fmt.Println("=== Diffusion Sampling Example ===")

	const (
		batch   = 1
		seq     = 32
		condDim = 16
		outDims = 64
	)

	engine, err := godiffusion.New(decayOracle{outDims: outDims}, godiffusion.Config{
		OutDims:   outDims,
		Timesteps: 1000,
		MaxBeta:   0.02,
		Seed:      42,
	})
	if err != nil {
		fmt.Printf("Error creating engine: %v\n", err)
		return
	}

	// Conditioning: a synthetic acoustic feature sequence.
	cond := godiffusion.NewTensor(batch, seq, condDim)
	for i := range cond.Data {
		cond.Data[i] = math.Sin(float64(i) * 0.01)
	}

	fmt.Printf("Conditioning: %v, output dims: %d\n", cond.Shape, outDims)

	algorithms := []struct {
		name    string
		alg     godiffusion.Algorithm
		speedup int
	}{
		{"DDIM speedup 50", godiffusion.DDIM, 50},
		{"PLMS speedup 50", godiffusion.PLMS, 50},
		{"Ancestral (full chain)", godiffusion.Ancestral, 1},
	}

	for _, a := range algorithms {
		steps := 0
		out, err := engine.Sample(cond, nil, godiffusion.SampleOptions{
			Algorithm: a.alg,
			Speedup:   a.speedup,
			Progress:  func() { steps++ },
		})
		if err != nil {
			fmt.Printf("Error sampling with %s: %v\n", a.name, err)
			return
		}

		mean, min, max := stats(out.Data)
		fmt.Printf("%-24s oracle calls: %4d, output %v, mean %.3f, range [%.3f, %.3f]\n",
			a.name, steps, out.Shape, mean, min, max)
	}
}

func stats(data []float64) (mean, min, max float64) {
	min, max = math.Inf(1), math.Inf(-1)
	for _, v := range data {
		mean += v
		if v < min {
			min = v
		}
		if v > max {
			max = v
		}
	}
	return mean / float64(len(data)), min, max
}
