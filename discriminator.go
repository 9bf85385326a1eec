package gan_trainer

import (
	"github.com/pkg/errors"
	"gorgonia.org/tensor"
)

// DiscriminatorNet Abstraction for discriminator part of GAN. It's simple neural network actually.
type DiscriminatorNet struct {
	private *Network
}

// Discriminator Constructor for DiscriminatorNet
func Discriminator(Layers ...*Layer) *DiscriminatorNet {
	return &DiscriminatorNet{private: &Network{
		Name:   "discriminator",
		Layers: Layers,
	}}
}

// Network Returns underlying network
func (net *DiscriminatorNet) Network() *Network {
	return net.private
}

// OutputActivation Returns activation of the last layer
func (net *DiscriminatorNet) OutputActivation() Activation {
	layers := net.private.Layers
	if len(layers) == 0 {
		return ActivationNone
	}
	return layers[len(layers)-1].Activation
}

// TrainableParameters Returns parameter tensors
func (net *DiscriminatorNet) TrainableParameters() []*tensor.Dense {
	return net.private.TrainableParameters()
}

// Forward Scores samples [B, ...] with [B, 1] scores (logits unless the last layer has an activation)
func (net *DiscriminatorNet) Forward(samples *tensor.Dense, training bool) (*tensor.Dense, error) {
	out, err := net.private.Forward(samples, training)
	if err != nil {
		return nil, errors.Wrap(err, "[Discriminator]")
	}
	return out, nil
}

// Close Releases compiled feedforward graphs
func (net *DiscriminatorNet) Close() error {
	return net.private.Close()
}
