package gan_trainer

import (
	rng "github.com/leesper/go_rng"
	"gorgonia.org/tensor"
)

// NoiseSource Source of random tensors for latent vectors, dropout masks and shuffling
type NoiseSource interface {
	// Normal Returns tensor of given shape filled with i.i.d. N(0, 1) values
	Normal(shape ...int) *tensor.Dense
	// Uniform Returns tensor of given shape filled with i.i.d. U[0, 1) values
	Uniform(shape ...int) *tensor.Dense
	// Intn Returns pseudo-random integer in [0;n)
	Intn(n int) int
}

// SeededNoise NoiseSource on top of go_rng generators. It is not safe for concurrent use.
type SeededNoise struct {
	gaussian *rng.GaussianGenerator
	uniform  *rng.UniformGenerator
}

// NewNoiseSource Returns reproducible NoiseSource for provided seed
func NewNoiseSource(seed int64) *SeededNoise {
	return &SeededNoise{
		gaussian: rng.NewGaussianGenerator(seed),
		uniform:  rng.NewUniformGenerator(seed + 1),
	}
}

func (s *SeededNoise) Normal(shape ...int) *tensor.Dense {
	data := make([]float64, tensor.Shape(shape).TotalSize())
	for i := range data {
		data[i] = s.gaussian.Gaussian(0, 1)
	}
	return tensor.New(tensor.WithShape(shape...), tensor.WithBacking(data))
}

func (s *SeededNoise) Uniform(shape ...int) *tensor.Dense {
	data := make([]float64, tensor.Shape(shape).TotalSize())
	for i := range data {
		data[i] = s.uniform.Float64()
	}
	return tensor.New(tensor.WithShape(shape...), tensor.WithBacking(data))
}

func (s *SeededNoise) Intn(n int) int {
	return int(s.uniform.Int64n(int64(n)))
}

// sampleDropoutMask Inverted dropout mask: 0 with given probability, 1/(1-probability) otherwise
func sampleDropoutMask(src NoiseSource, shape tensor.Shape, probability float64) *tensor.Dense {
	mask := src.Uniform(shape...)
	keep := 1.0 / (1.0 - probability)
	data := mask.Data().([]float64)
	for i := range data {
		if data[i] < probability {
			data[i] = 0
		} else {
			data[i] = keep
		}
	}
	return mask
}
