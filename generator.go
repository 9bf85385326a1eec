package gan_trainer

import (
	"fmt"

	"github.com/pkg/errors"
	"gorgonia.org/tensor"
)

// GeneratorNet Abstraction for generator part of GAN. It's simple neural network mapping latent vectors to samples.
//
// NoiseDim - size of latent vector
//
type GeneratorNet struct {
	private  *Network
	NoiseDim int
}

// Generator Constructor for GeneratorNet
func Generator(noiseDim int, Layers ...*Layer) *GeneratorNet {
	return &GeneratorNet{
		private: &Network{
			Name:   "generator",
			Layers: Layers,
		},
		NoiseDim: noiseDim,
	}
}

// Network Returns underlying network
func (net *GeneratorNet) Network() *Network {
	return net.private
}

// TrainableParameters Returns parameter tensors
func (net *GeneratorNet) TrainableParameters() []*tensor.Dense {
	return net.private.TrainableParameters()
}

// Forward Maps noise [B, NoiseDim] to samples [B, ...]
func (net *GeneratorNet) Forward(noise *tensor.Dense, training bool) (*tensor.Dense, error) {
	if noise.Dims() != 2 || noise.Shape()[1] != net.NoiseDim {
		return nil, fmt.Errorf("Generator expects noise of shape [B, %d], but got %v", net.NoiseDim, noise.Shape())
	}
	out, err := net.private.Forward(noise, training)
	if err != nil {
		return nil, errors.Wrap(err, "[Generator]")
	}
	return out, nil
}

// Close Releases compiled feedforward graphs
func (net *GeneratorNet) Close() error {
	return net.private.Close()
}
