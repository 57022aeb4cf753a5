package main

import (
	"fmt"
	"math"

	"github.com/FlavioCFOliveira/GoDiffusion/godiffusion"
)

// zeroOracle predicts zero noise; with it, the diffusion loss measures
// the raw moment of the injected noise, which is a useful sanity anchor
// (an l2 loss near 1.0 means the plumbing is correct).
type zeroOracle struct {
	outDims int
}

func (o zeroOracle) Infer(input *godiffusion.Tensor, t []int, _ *godiffusion.Tensor) (*godiffusion.Tensor, error) {
	return godiffusion.NewTensor(input.Shape[0], o.outDims, input.Shape[2]), nil
}

func main() {
	fmt.Println("=== Diffusion Training Loss Example ===")

	const (
		batch   = 4
		seq     = 64
		condDim = 16
		outDims = 64
	)

	engine, err := godiffusion.New(zeroOracle{outDims: outDims}, godiffusion.Config{
		OutDims:   outDims,
		Timesteps: 1000,
		KStep:     1000,
		Seed:      7,
	})
	if err != nil {
		fmt.Printf("Error creating engine: %v\n", err)
		return
	}

	// Synthetic ground-truth spectrogram inside the normalizer bounds.
	gt := godiffusion.NewTensor(batch, seq, outDims)
	for i := range gt.Data {
		gt.Data[i] = -5 + 3*math.Sin(float64(i)*0.02)
	}
	cond := godiffusion.NewTensor(batch, seq, condDim)
	for i := range cond.Data {
		cond.Data[i] = math.Cos(float64(i) * 0.05)
	}

	fmt.Printf("Ground truth: %v, conditioning: %v\n", gt.Shape, cond.Shape)
	fmt.Println("Loss with a zero-predicting oracle (expect l2 near 1.0, l1 near 0.80):")

	for _, kind := range []string{"l2", "l1"} {
		var total float64
		const iters = 10
		for i := 0; i < iters; i++ {
			res, err := engine.Run(cond, nil, gt, godiffusion.RunOptions{
				Train:    true,
				LossKind: kind,
				TMax:     1000,
			})
			if err != nil {
				fmt.Printf("Error computing loss: %v\n", err)
				return
			}
			total += res.Loss
		}
		fmt.Printf("  %s: %.4f (averaged over %d draws)\n", kind, total/iters, iters)
	}
}
