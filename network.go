package gan_trainer

import (
	"fmt"

	"github.com/pkg/errors"
	"gorgonia.org/gorgonia"
	"gorgonia.org/tensor"
)

// Network Abstraction for neural network.
//
// Name - prefix for nodes' names
// Layers - simple sequence of layers
// forwards - graphs compiled by Forward, keyed by input shape and mode
// masks - randomness for dropout layers when Forward is called in training mode
//
type Network struct {
	Name   string   `json:"name"`
	Layers []*Layer `json:"layers"`

	forwards map[forwardKey]*forwardGraph
	masks    NoiseSource
}

// TrainableParameters Returns parameter tensors in stable order (layer by layer: weights, then bias)
func (net *Network) TrainableParameters() []*tensor.Dense {
	params := make([]*tensor.Dense, 0, 2*len(net.Layers))
	for _, l := range net.Layers {
		if l != nil {
			params = append(params, l.params()...)
		}
	}
	return params
}

// SetMaskSource Sets randomness used by dropout layers in Forward(..., true)
func (net *Network) SetMaskSource(src NoiseSource) {
	net.masks = src
}

func (net *Network) name() string {
	if net.Name != "" {
		return net.Name
	}
	return "network"
}

func (net *Network) validate() error {
	if len(net.Layers) == 0 {
		return fmt.Errorf("Network must have one layer atleast")
	}
	for i, l := range net.Layers {
		if l == nil {
			return fmt.Errorf("Network's layer #%d is nil", i)
		}
		if l.Weights == nil && !noWeightsAllowed(l.Type) {
			return fmt.Errorf("Network's layer's #%d Weights is nil", i)
		}
	}
	return nil
}

// boundNetwork Network's parameters attached to single expression graph.
//
// The same bound network could be feedforwarded several times (e.g. Discriminator on real and on generated images):
// every feedforward shares weight nodes hence gradients from all of them are summed up.
//
type boundNetwork struct {
	net     *Network
	graph   *gorgonia.ExprGraph
	scope   string
	weights []*gorgonia.Node
	biases  []*gorgonia.Node
	passes  int
}

// bind Creates nodes for network's parameters on the graph. Nodes are backed by the parameter tensors themselves.
func (net *Network) bind(g *gorgonia.ExprGraph, scope string) (*boundNetwork, error) {
	if err := net.validate(); err != nil {
		return nil, err
	}
	bn := &boundNetwork{
		net:     net,
		graph:   g,
		scope:   scope,
		weights: make([]*gorgonia.Node, len(net.Layers)),
		biases:  make([]*gorgonia.Node, len(net.Layers)),
	}
	for i, l := range net.Layers {
		if l.Weights != nil {
			bn.weights[i] = gorgonia.NewTensor(g, gorgonia.Float64, l.Weights.Dims(), gorgonia.WithShape(l.Weights.Shape()...), gorgonia.WithName(fmt.Sprintf("%s_w%d", scope, i)), gorgonia.WithValue(l.Weights))
		}
		if l.Bias != nil {
			bn.biases[i] = gorgonia.NewTensor(g, gorgonia.Float64, l.Bias.Dims(), gorgonia.WithShape(l.Bias.Shape()...), gorgonia.WithName(fmt.Sprintf("%s_b%d", scope, i)), gorgonia.WithValue(l.Bias))
		}
	}
	return bn, nil
}

// learnables Returns parameter nodes in the same order as Network.TrainableParameters
func (bn *boundNetwork) learnables() gorgonia.Nodes {
	learnables := make(gorgonia.Nodes, 0, 2*len(bn.weights))
	for i := range bn.weights {
		if bn.weights[i] != nil {
			learnables = append(learnables, bn.weights[i])
		}
		if bn.biases[i] != nil {
			learnables = append(learnables, bn.biases[i])
		}
	}
	return learnables
}

// forwardPass Result of single feedforward over bound network
//
// out - activated output of last layer
// masks - dropout masks which must be fed before running the graph (empty in inference mode)
//
type forwardPass struct {
	out   *gorgonia.Node
	masks []*dropoutMask
}

// fwd Initializates feedforward for provided input
//
// input - Input node
// batchSize - batch size. If it's >= 2 then broadcast function will be applied
// training - whether dropout layers are active
//
func (bn *boundNetwork) fwd(input *gorgonia.Node, batchSize int, training bool) (*forwardPass, error) {
	pass := &forwardPass{}
	prefix := fmt.Sprintf("%s_%d", bn.scope, bn.passes)
	lastActivatedLayer := input
	for i, l := range bn.net.Layers {
		layerNonActivated, mask, err := l.fwd(bn, i, lastActivatedLayer, batchSize, training)
		if err != nil {
			return nil, errors.Wrap(err, fmt.Sprintf("[%s, Layer #%d] Can't feedforward input before activation", bn.scope, i))
		}
		if mask != nil {
			pass.masks = append(pass.masks, mask)
		}
		activation, err := l.Activation.Func()
		if err != nil {
			return nil, errors.Wrap(err, fmt.Sprintf("[%s, Layer #%d]", bn.scope, i))
		}
		layerActivated, err := activation(layerNonActivated, l.Options)
		if err != nil {
			return nil, errors.Wrap(err, fmt.Sprintf("Can't apply activation function to non-activated output of %s's layer #%d", bn.scope, i))
		}
		if layerActivated != lastActivatedLayer {
			gorgonia.WithName(fmt.Sprintf("%s_activated_%d", prefix, i))(layerActivated)
		}
		lastActivatedLayer = layerActivated
	}
	bn.passes++
	pass.out = lastActivatedLayer
	return pass, nil
}

// feedMasks Samples fresh dropout masks and feeds them into the graph
func (pass *forwardPass) feedMasks(src NoiseSource) ([]*tensor.Dense, error) {
	values := make([]*tensor.Dense, len(pass.masks))
	for i, m := range pass.masks {
		values[i] = sampleDropoutMask(src, m.node.Shape(), m.probability)
		if err := gorgonia.Let(m.node, values[i]); err != nil {
			return nil, errors.Wrap(err, "Can't init dropout mask value")
		}
	}
	return values, nil
}

// reuseMasks Feeds masks sampled for another pass of the same architecture and batch size
func (pass *forwardPass) reuseMasks(values []*tensor.Dense) error {
	if len(values) != len(pass.masks) {
		return fmt.Errorf("Number of dropout masks mismatch: %d provided, %d expected", len(values), len(pass.masks))
	}
	for i, m := range pass.masks {
		if err := gorgonia.Let(m.node, values[i]); err != nil {
			return errors.Wrap(err, "Can't init dropout mask value")
		}
	}
	return nil
}

type forwardKey struct {
	shape    string
	training bool
}

type forwardGraph struct {
	input *gorgonia.Node
	pass  *forwardPass
	out   gorgonia.Value
	vm    gorgonia.VM
}

// Forward Evaluates network on provided input. First call for every input shape compiles a graph which is reused later.
//
// training - if false, stochastic layers are disabled and repeated calls give identical output for unchanged parameters
//
func (net *Network) Forward(input *tensor.Dense, training bool) (*tensor.Dense, error) {
	if input == nil || input.Dims() == 0 {
		return nil, fmt.Errorf("Input must have batch dimension")
	}
	key := forwardKey{shape: fmt.Sprint(input.Shape()), training: training}
	if net.forwards == nil {
		net.forwards = make(map[forwardKey]*forwardGraph)
	}
	fg, ok := net.forwards[key]
	if !ok {
		var err error
		fg, err = net.compileForward(input.Shape(), training)
		if err != nil {
			return nil, errors.Wrap(err, fmt.Sprintf("Can't compile feedforward of %s", net.name()))
		}
		net.forwards[key] = fg
	}
	defer fg.vm.Reset()
	err := gorgonia.Let(fg.input, input)
	if err != nil {
		return nil, errors.Wrap(err, "Can't init input value")
	}
	if len(fg.pass.masks) != 0 {
		if net.masks == nil {
			net.masks = NewNoiseSource(1)
		}
		if _, err = fg.pass.feedMasks(net.masks); err != nil {
			return nil, err
		}
	}
	err = fg.vm.RunAll()
	if err != nil {
		return nil, errors.Wrap(err, "Can't run VM")
	}
	out, ok := fg.out.(*tensor.Dense)
	if !ok {
		return nil, fmt.Errorf("Unexpected output value type %T", fg.out)
	}
	return out.Clone().(*tensor.Dense), nil
}

func (net *Network) compileForward(shape tensor.Shape, training bool) (*forwardGraph, error) {
	g := gorgonia.NewGraph()
	bn, err := net.bind(g, net.name())
	if err != nil {
		return nil, err
	}
	fg := &forwardGraph{}
	fg.input = gorgonia.NewTensor(g, gorgonia.Float64, shape.Dims(), gorgonia.WithShape(shape.Clone()...), gorgonia.WithName(net.name()+"_input"))
	fg.pass, err = bn.fwd(fg.input, shape[0], training)
	if err != nil {
		return nil, err
	}
	gorgonia.Read(fg.pass.out, &fg.out)
	fg.vm = gorgonia.NewTapeMachine(g)
	return fg, nil
}

// Close Releases graphs compiled by Forward
func (net *Network) Close() error {
	var firstErr error
	for key, fg := range net.forwards {
		if err := fg.vm.Close(); err != nil && firstErr == nil {
			firstErr = err
		}
		delete(net.forwards, key)
	}
	return firstErr
}
