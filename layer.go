package gan_trainer

import (
	"fmt"

	"github.com/pkg/errors"
	"gorgonia.org/gorgonia"
	"gorgonia.org/tensor"
)

// Layer Just an alias to Weight+Bias+ActivationFunction combo
//
// Weights and Bias live outside of any expression graph: every graph built for the layer binds the very same tensors,
// so an optimizer step is visible to all of them at once.
//
type Layer struct {
	Type       LayerType  `json:"type"`
	Activation Activation `json:"activation,omitempty"`
	Options    Options    `json:"options,omitempty"`

	Weights *tensor.Dense `json:"-"`
	Bias    *tensor.Dense `json:"-"`

	KernelHeight int     `json:"kernel_height,omitempty"`
	KernelWidth  int     `json:"kernel_width,omitempty"`
	Padding      []int   `json:"padding,omitempty"`
	Stride       []int   `json:"stride,omitempty"`
	Dilation     []int   `json:"dilation,omitempty"`
	ReshapeDims  []int   `json:"reshape_dims,omitempty"`
	Axes         []int   `json:"axes,omitempty"`
	Probability  float64 `json:"probability,omitempty"`
}

type LayerType uint16

const (
	LayerLinear = LayerType(iota)
	LayerFlatten
	LayerConvolutional
	LayerMaxpool
	LayerReshape
	LayerTranspose
	LayerDropout
)

var layerTypeNames = map[LayerType]string{
	LayerLinear:        "linear",
	LayerFlatten:       "flatten",
	LayerConvolutional: "conv2d",
	LayerMaxpool:       "maxpool2d",
	LayerReshape:       "reshape",
	LayerTranspose:     "transpose",
	LayerDropout:       "dropout",
}

func (lt LayerType) String() string {
	if name, ok := layerTypeNames[lt]; ok {
		return name
	}
	return fmt.Sprintf("layer_type(%d)", uint16(lt))
}

// MarshalText Layer types are stored by name in exported models
func (lt LayerType) MarshalText() ([]byte, error) {
	name, ok := layerTypeNames[lt]
	if !ok {
		return nil, fmt.Errorf("Layer type '%d' (uint16) is not handled", lt)
	}
	return []byte(name), nil
}

func (lt *LayerType) UnmarshalText(text []byte) error {
	for k, v := range layerTypeNames {
		if v == string(text) {
			*lt = k
			return nil
		}
	}
	return fmt.Errorf("Layer type '%s' is not handled", string(text))
}

var (
	allowedNoWeights = []LayerType{LayerMaxpool, LayerFlatten, LayerReshape, LayerTranspose, LayerDropout}
)

func noWeightsAllowed(checkType LayerType) bool {
	return checkLayerType(checkType, allowedNoWeights...)
}

func checkLayerType(checkType LayerType, t ...LayerType) bool {
	for _, typeOf := range t {
		if checkType == typeOf {
			return true
		}
	}
	return false
}

// Linear Fully connected layer: y = x*W^T (+ b)
//
// Weights are initialized with Glorot normal, bias with zeros.
//
func Linear(in, out int, activation Activation, withBias bool) *Layer {
	l := &Layer{
		Type:       LayerLinear,
		Activation: activation,
		Weights:    glorotDense(out, in),
	}
	if withBias {
		l.Bias = tensor.New(tensor.Of(tensor.Float64), tensor.WithShape(1, out))
	}
	return l
}

// Conv2D Convolutional layer for NCHW input. Bias is not supported.
func Conv2D(inChannels, filters, kernelHeight, kernelWidth int, padding, stride []int, activation Activation) *Layer {
	return &Layer{
		Type:         LayerConvolutional,
		Activation:   activation,
		Weights:      glorotDense(filters, inChannels, kernelHeight, kernelWidth),
		KernelHeight: kernelHeight,
		KernelWidth:  kernelWidth,
		Padding:      padding,
		Stride:       stride,
		Dilation:     []int{1, 1},
	}
}

// MaxPool2D Max pooling for NCHW input
func MaxPool2D(kernelHeight, kernelWidth int, padding, stride []int) *Layer {
	return &Layer{
		Type:         LayerMaxpool,
		KernelHeight: kernelHeight,
		KernelWidth:  kernelWidth,
		Padding:      padding,
		Stride:       stride,
	}
}

// Flatten Reshapes [batch, ...] into [batch, N]
func Flatten() *Layer {
	return &Layer{Type: LayerFlatten}
}

// Reshape Reshapes [batch, ...] into [batch, dims...]. Batch dimension must not be provided.
func Reshape(dims ...int) *Layer {
	return &Layer{Type: LayerReshape, ReshapeDims: dims}
}

// Transpose Permutes axes (batch axis included), e.g. Transpose(0, 3, 1, 2) turns NHWC into NCHW
func Transpose(axes ...int) *Layer {
	return &Layer{Type: LayerTranspose, Axes: axes}
}

// Dropout Zeroes elements with given probability in training mode and scales the rest by 1/(1-probability).
// Does nothing in inference mode.
func Dropout(probability float64) *Layer {
	return &Layer{Type: LayerDropout, Probability: probability}
}

func glorotDense(shape ...int) *tensor.Dense {
	backing := gorgonia.GlorotN(1.0)(tensor.Float64, shape...).([]float64)
	return tensor.New(tensor.WithShape(shape...), tensor.WithBacking(backing))
}

// dropoutMask Input node holding dropout mask for one feedforward. Values are sampled per step and fed via gorgonia.Let
type dropoutMask struct {
	node        *gorgonia.Node
	probability float64
}

// fwd Feedforward input through the layer before activation
//
// bn - network bound to the graph (holds weight and bias nodes)
// idx - index of the layer in the network
// batchSize - batch size. If it's >= 2 then broadcast function will be applied
// training - whether stochastic layers should be active
//
func (l *Layer) fwd(bn *boundNetwork, idx int, input *gorgonia.Node, batchSize int, training bool) (*gorgonia.Node, *dropoutMask, error) {
	var err error
	var out *gorgonia.Node
	switch l.Type {
	case LayerLinear:
		tOp, err := gorgonia.Transpose(bn.weights[idx])
		if err != nil {
			return nil, nil, errors.Wrap(err, "Can't transpose weights")
		}
		out, err = gorgonia.Mul(input, tOp)
		if err != nil {
			return nil, nil, errors.Wrap(err, "Can't multiply input and weights")
		}
		if bn.biases[idx] != nil {
			if batchSize < 2 {
				out, err = gorgonia.Add(out, bn.biases[idx])
				if err != nil {
					return nil, nil, errors.Wrap(err, "Can't add bias to non-activated output")
				}
			} else {
				out, err = gorgonia.BroadcastAdd(out, bn.biases[idx], nil, []byte{0})
				if err != nil {
					return nil, nil, errors.Wrap(err, fmt.Sprintf("Can't add [in broadcast term with batch_size = %d] bias to non-activated output", batchSize))
				}
			}
		}
	case LayerConvolutional:
		if bn.biases[idx] != nil {
			return nil, nil, fmt.Errorf("Bias is not supported for convolutional layer")
		}
		out, err = gorgonia.Conv2d(input, bn.weights[idx], tensor.Shape{l.KernelHeight, l.KernelWidth}, intsOr(l.Padding, 0, 0), intsOr(l.Stride, 1, 1), intsOr(l.Dilation, 1, 1))
		if err != nil {
			return nil, nil, errors.Wrap(err, "Can't convolve[2D] input by kernel")
		}
	case LayerMaxpool:
		out, err = gorgonia.MaxPool2D(input, tensor.Shape{l.KernelHeight, l.KernelWidth}, intsOr(l.Padding, 0, 0), intsOr(l.Stride, l.KernelHeight, l.KernelWidth))
		if err != nil {
			return nil, nil, errors.Wrap(err, "Can't maxpool[2D] input by kernel")
		}
	case LayerFlatten:
		out, err = gorgonia.Reshape(input, tensor.Shape{batchSize, input.Shape().TotalSize() / batchSize})
		if err != nil {
			return nil, nil, errors.Wrap(err, "Can't flatten input")
		}
	case LayerReshape:
		to := append(tensor.Shape{batchSize}, l.ReshapeDims...)
		out, err = gorgonia.Reshape(input, to)
		if err != nil {
			return nil, nil, errors.Wrap(err, fmt.Sprintf("Can't reshape input to %v", to))
		}
	case LayerTranspose:
		out, err = gorgonia.Transpose(input, l.Axes...)
		if err != nil {
			return nil, nil, errors.Wrap(err, fmt.Sprintf("Can't transpose input by axes %v", l.Axes))
		}
	case LayerDropout:
		if !training || l.Probability <= 0 {
			return input, nil, nil
		}
		if l.Probability >= 1 {
			return nil, nil, fmt.Errorf("Dropout probability must be in [0;1), but got %f", l.Probability)
		}
		maskNode := gorgonia.NewTensor(bn.graph, gorgonia.Float64, input.Dims(), gorgonia.WithShape(input.Shape().Clone()...), gorgonia.WithName(fmt.Sprintf("%s_mask_%d_%d", bn.scope, bn.passes, idx)))
		out, err = gorgonia.HadamardProd(input, maskNode)
		if err != nil {
			return nil, nil, errors.Wrap(err, "Can't apply dropout mask")
		}
		return out, &dropoutMask{node: maskNode, probability: l.Probability}, nil
	default:
		return nil, nil, fmt.Errorf("Layer's type '%d' (uint16) is not handled", l.Type)
	}
	return out, nil, nil
}

// params Returns non-nil parameter tensors in order: weights, bias
func (l *Layer) params() []*tensor.Dense {
	params := make([]*tensor.Dense, 0, 2)
	if l.Weights != nil {
		params = append(params, l.Weights)
	}
	if l.Bias != nil {
		params = append(params, l.Bias)
	}
	return params
}

func intsOr(values []int, defaults ...int) []int {
	if len(values) != 0 {
		return values
	}
	return defaults
}
