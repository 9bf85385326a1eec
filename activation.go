package gan_trainer

import (
	"fmt"

	"gorgonia.org/gorgonia"
)

// ActivationFunc Just an alias to Gorgonia'a api_gen.go - https://github.com/gorgonia/gorgonia/blob/master/api_gen.go#L1
type ActivationFunc func(a *gorgonia.Node, opts ...Options) (*gorgonia.Node, error)

// Activation Name of activation function. Layers keep the name (not the function itself) so they could be exported and loaded back.
type Activation string

const (
	ActivationNone         = Activation("")
	ActivationAbs          = Activation("abs")
	ActivationSin          = Activation("sin")
	ActivationCos          = Activation("cos")
	ActivationExp          = Activation("exp")
	ActivationLog          = Activation("log")
	ActivationNeg          = Activation("neg")
	ActivationSquare       = Activation("square")
	ActivationSqrt         = Activation("sqrt")
	ActivationCube         = Activation("cube")
	ActivationTanh         = Activation("tanh")
	ActivationSigmoid      = Activation("sigmoid")
	ActivationSoftplus     = Activation("softplus")
	ActivationRectify      = Activation("relu")
	ActivationLeakyRectify = Activation("leaky_relu")
	ActivationSoftmax      = Activation("softmax")
)

var activations = map[Activation]ActivationFunc{
	ActivationNone:         NoActivation,
	ActivationAbs:          Abs,
	ActivationSin:          Sin,
	ActivationCos:          Cos,
	ActivationExp:          Exp,
	ActivationLog:          Log,
	ActivationNeg:          Neg,
	ActivationSquare:       Square,
	ActivationSqrt:         Sqrt,
	ActivationCube:         Cube,
	ActivationTanh:         Tanh,
	ActivationSigmoid:      Sigmoid,
	ActivationSoftplus:     Softplus,
	ActivationRectify:      Rectify,
	ActivationLeakyRectify: LeakyRectify,
	ActivationSoftmax:      Softmax,
}

// Func Returns activation function for the name
func (a Activation) Func() (ActivationFunc, error) {
	f, ok := activations[a]
	if !ok {
		return nil, fmt.Errorf("Activation '%s' is not handled", a)
	}
	return f, nil
}

func NoActivation(a *gorgonia.Node, opts ...Options) (*gorgonia.Node, error) { return a, nil }
func Abs(a *gorgonia.Node, opts ...Options) (*gorgonia.Node, error)          { return gorgonia.Abs(a) }
func Sin(a *gorgonia.Node, opts ...Options) (*gorgonia.Node, error)          { return gorgonia.Sin(a) }
func Cos(a *gorgonia.Node, opts ...Options) (*gorgonia.Node, error)          { return gorgonia.Cos(a) }
func Exp(a *gorgonia.Node, opts ...Options) (*gorgonia.Node, error)          { return gorgonia.Exp(a) }
func Log(a *gorgonia.Node, opts ...Options) (*gorgonia.Node, error)          { return gorgonia.Log(a) }
func Neg(a *gorgonia.Node, opts ...Options) (*gorgonia.Node, error)          { return gorgonia.Neg(a) }
func Square(a *gorgonia.Node, opts ...Options) (*gorgonia.Node, error)       { return gorgonia.Square(a) }
func Sqrt(a *gorgonia.Node, opts ...Options) (*gorgonia.Node, error)         { return gorgonia.Sqrt(a) }
func Cube(a *gorgonia.Node, opts ...Options) (*gorgonia.Node, error)         { return gorgonia.Cube(a) }
func Tanh(a *gorgonia.Node, opts ...Options) (*gorgonia.Node, error)         { return gorgonia.Tanh(a) }
func Sigmoid(a *gorgonia.Node, opts ...Options) (*gorgonia.Node, error)      { return gorgonia.Sigmoid(a) }
func Softplus(a *gorgonia.Node, opts ...Options) (*gorgonia.Node, error)     { return gorgonia.Softplus(a) }
func Rectify(a *gorgonia.Node, opts ...Options) (*gorgonia.Node, error)      { return gorgonia.Rectify(a) }

// LeakyRectify Leaky ReLU. First provided non-zero 'Alpha' option is used as negative slope, default is 0.2
func LeakyRectify(a *gorgonia.Node, opts ...Options) (*gorgonia.Node, error) {
	alpha := 0.2
	for i := range opts {
		if opts[i].Alpha != 0 {
			alpha = opts[i].Alpha
			break
		}
	}
	return gorgonia.LeakyRelu(a, alpha)
}

func Softmax(a *gorgonia.Node, opts ...Options) (*gorgonia.Node, error) {
	for i := range opts {
		// Check if axis option is provided
		// First i-th option with provided field 'Axis' would be considered for use.
		if len(opts[i].Axis) > 0 {
			return gorgonia.SoftMax(a, opts[i].Axis...)
		}
	}
	return gorgonia.SoftMax(a)
}

// Options Struct for holding options for certain activation functions.
type Options struct {
	Axis  []int   `json:"axis,omitempty"`
	Alpha float64 `json:"alpha,omitempty"`
}
