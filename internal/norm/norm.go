// Package norm maps spectrogram-domain values into the [-1, 1] range the
// diffusion process operates in, and back.
package norm

import "github.com/FlavioCFOliveira/GoDiffusion/internal/tensor"

// Normalizer affinely rescales values between [Min, Max] and [-1, 1].
// Values outside [Min, Max] are extrapolated linearly, not clamped;
// callers are expected to keep domain values in range upstream.
type Normalizer struct {
	Min float64
	Max float64
}

// Normalize maps x from [Min, Max] into [-1, 1].
func (n Normalizer) Normalize(x *tensor.Tensor) *tensor.Tensor {
	out := tensor.New(x.Shape...)
	span := n.Max - n.Min
	for i, v := range x.Data {
		out.Data[i] = (v-n.Min)/span*2 - 1
	}
	return out
}

// Denormalize maps y from [-1, 1] back into [Min, Max].
func (n Normalizer) Denormalize(y *tensor.Tensor) *tensor.Tensor {
	out := tensor.New(y.Shape...)
	span := n.Max - n.Min
	for i, v := range y.Data {
		out.Data[i] = (v+1)/2*span + n.Min
	}
	return out
}
