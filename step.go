package gan_trainer

import (
	"fmt"
	"io"
	"sort"

	"github.com/pkg/errors"
	"gorgonia.org/gorgonia"
	"gorgonia.org/tensor"
)

// discriminatorGraph Discriminator side of the adversarial step for fixed batch size.
// Discriminator is feedforwarded twice (real and generated samples) with shared weight nodes.
type discriminatorGraph struct {
	graph *gorgonia.ExprGraph

	real     *gorgonia.Node
	fake     *gorgonia.Node
	bound    *boundNetwork
	realPass *forwardPass
	fakePass *forwardPass

	loss      *gorgonia.Node
	lossValue gorgonia.Value
	recorder  *recorder
}

func newDiscriminatorGraph(definedDiscriminator *DiscriminatorNet, losses LossPair, sampleShape tensor.Shape) (*discriminatorGraph, error) {
	g := gorgonia.NewGraph()
	dg := &discriminatorGraph{graph: g}
	var err error
	dg.bound, err = definedDiscriminator.private.bind(g, "discriminator")
	if err != nil {
		return nil, errors.Wrap(err, "Can't bind Discriminator")
	}
	batchSize := sampleShape[0]
	dg.real = gorgonia.NewTensor(g, gorgonia.Float64, sampleShape.Dims(), gorgonia.WithShape(sampleShape.Clone()...), gorgonia.WithName("discriminator_real_input"))
	dg.fake = gorgonia.NewTensor(g, gorgonia.Float64, sampleShape.Dims(), gorgonia.WithShape(sampleShape.Clone()...), gorgonia.WithName("discriminator_fake_input"))
	dg.realPass, err = dg.bound.fwd(dg.real, batchSize, true)
	if err != nil {
		return nil, errors.Wrap(err, "[Discriminator, real samples]")
	}
	dg.fakePass, err = dg.bound.fwd(dg.fake, batchSize, true)
	if err != nil {
		return nil, errors.Wrap(err, "[Discriminator, generated samples]")
	}
	dg.loss, err = losses.Discriminator(dg.realPass.out, dg.fakePass.out)
	if err != nil {
		return nil, errors.Wrap(err, "Can't define discriminator loss")
	}
	gorgonia.WithName("discriminator_loss")(dg.loss)
	gorgonia.Read(dg.loss, &dg.lossValue)

	learnables := dg.bound.learnables()
	_, err = gorgonia.Grad(dg.loss, learnables...)
	if err != nil {
		return nil, errors.Wrap(err, "Can't define gradients of discriminator loss")
	}
	dg.recorder = &recorder{
		vm:         gorgonia.NewTapeMachine(g, gorgonia.BindDualValues(learnables...)),
		learnables: learnables,
	}
	return dg, nil
}

// forwardAndRecord Scores real and generated samples and records gradients of discriminator loss
//
// fakeMasks - dropout masks used when the same generated samples were scored on generator side
//
func (dg *discriminatorGraph) forwardAndRecord(real, fake *tensor.Dense, fakeMasks []*tensor.Dense, src NoiseSource) (float64, *Tape, error) {
	if dg.recorder.busy() {
		return 0, nil, ErrTapePending
	}
	err := gorgonia.Let(dg.real, real)
	if err != nil {
		return 0, nil, errors.Wrap(err, "Can't init real samples value")
	}
	err = gorgonia.Let(dg.fake, fake)
	if err != nil {
		return 0, nil, errors.Wrap(err, "Can't init generated samples value")
	}
	if _, err = dg.realPass.feedMasks(src); err != nil {
		return 0, nil, errors.Wrap(err, "[Discriminator, real samples]")
	}
	if err = dg.fakePass.reuseMasks(fakeMasks); err != nil {
		return 0, nil, errors.Wrap(err, "[Discriminator, generated samples]")
	}
	tape, err := dg.recorder.record()
	if err != nil {
		return 0, nil, errors.Wrap(err, "[Discriminator]")
	}
	loss, err := scalarOf(dg.lossValue)
	if err != nil {
		tape.Discard()
		return 0, nil, errors.Wrap(err, "Can't read discriminator loss")
	}
	return loss, tape, nil
}

func (dg *discriminatorGraph) Close() error {
	return dg.recorder.vm.Close()
}

// stepGraphs Both sides of adversarial step specialized for one batch size
type stepGraphs struct {
	gan  *GAN
	disc *discriminatorGraph
}

func (sg *stepGraphs) Close() error {
	errGAN := sg.gan.Close()
	errDisc := sg.disc.Close()
	if errGAN != nil {
		return errGAN
	}
	return errDisc
}

// CompiledStep Adversarial train step compiled once per batch size and called many times.
//
// Graphs have static shapes, so every distinct batch size (e.g. smaller last batch of an epoch) gets its own pair of graphs.
// Graphs for sizes passed via WithBatchSizes are built by CompileStep, other sizes are built on first use.
// All specializations bind the same parameter tensors, so they never diverge.
//
type CompiledStep struct {
	generator     *GeneratorNet
	discriminator *DiscriminatorNet
	losses        LossPair
	sampleShape   tensor.Shape

	specializations map[int]*stepGraphs
	batchSizes      []int
}

// StepOption Option for CompileStep
type StepOption func(*CompiledStep)

// WithBatchSizes Compiles graphs for provided batch sizes up front
func WithBatchSizes(sizes ...int) StepOption {
	return func(cs *CompiledStep) {
		cs.batchSizes = append(cs.batchSizes, sizes...)
	}
}

// CompileStep Prepares adversarial train step for the training state
func CompileStep(ts *TrainingState, losses LossPair, opts ...StepOption) (*CompiledStep, error) {
	if ts == nil || ts.Generator == nil || ts.Discriminator == nil {
		return nil, fmt.Errorf("Training state must provide both Generator and Discriminator")
	}
	if losses.Generator == nil || losses.Discriminator == nil {
		return nil, fmt.Errorf("Both generator and discriminator losses must be provided")
	}
	if losses.ScoreActivation != ActivationNone && ts.Discriminator.OutputActivation() != losses.ScoreActivation {
		return nil, fmt.Errorf("Losses expect discriminator output activation '%s', but discriminator ends with '%s'", losses.ScoreActivation, ts.Discriminator.OutputActivation())
	}
	cs := &CompiledStep{
		generator:       ts.Generator,
		discriminator:   ts.Discriminator,
		losses:          losses,
		sampleShape:     tensor.Shape(ts.SampleShape).Clone(),
		specializations: make(map[int]*stepGraphs),
	}
	for _, opt := range opts {
		opt(cs)
	}
	for _, batchSize := range cs.batchSizes {
		if batchSize <= 0 {
			continue
		}
		if _, err := cs.specialize(batchSize); err != nil {
			cs.Close()
			return nil, err
		}
	}
	return cs, nil
}

func (cs *CompiledStep) specialize(batchSize int) (*stepGraphs, error) {
	if sg, ok := cs.specializations[batchSize]; ok {
		return sg, nil
	}
	definedGAN, err := NewGAN(cs.generator, cs.discriminator, cs.losses, batchSize)
	if err != nil {
		return nil, errors.Wrap(err, fmt.Sprintf("Can't compile generator side for batch size %d", batchSize))
	}
	shape := append(tensor.Shape{batchSize}, cs.sampleShape...)
	disc, err := newDiscriminatorGraph(cs.discriminator, cs.losses, shape)
	if err != nil {
		definedGAN.Close()
		return nil, errors.Wrap(err, fmt.Sprintf("Can't compile discriminator side for batch size %d", batchSize))
	}
	sg := &stepGraphs{gan: definedGAN, disc: disc}
	cs.specializations[batchSize] = sg
	return sg, nil
}

// Run Does exactly one synchronized update of both networks on a batch of real samples [B, ...].
//
// Both losses are evaluated before any parameter changes; generator's update uses gradients of generator loss only
// and discriminator's update uses gradients of discriminator loss only.
//
func (cs *CompiledStep) Run(ts *TrainingState, batch *tensor.Dense) (genLoss float64, discLoss float64, err error) {
	if ts.Generator != cs.generator || ts.Discriminator != cs.discriminator {
		return 0, 0, fmt.Errorf("Step was compiled for another pair of networks")
	}
	if batch == nil || batch.Dims() < 1 {
		return 0, 0, fmt.Errorf("Batch must have batch dimension")
	}
	shape := batch.Shape()
	if !shape[1:].Eq(cs.sampleShape) {
		return 0, 0, fmt.Errorf("Batch has shape %v, but samples of shape %v are expected", shape, cs.sampleShape)
	}
	batchSize := shape[0]
	sg, err := cs.specialize(batchSize)
	if err != nil {
		return 0, 0, err
	}

	noise := ts.Noise.Normal(batchSize, ts.NoiseDim)
	genLoss, generated, genTape, err := sg.gan.forwardAndRecord(noise, ts.Noise)
	if err != nil {
		return 0, 0, err
	}
	discLoss, discTape, err := sg.disc.forwardAndRecord(batch, generated, sg.gan.scoredMasks, ts.Noise)
	if err != nil {
		genTape.Discard()
		return 0, 0, err
	}
	// Parameter sets are disjoint: order of updates does not matter
	if err = genTape.Apply(ts.GeneratorOptimizer); err != nil {
		discTape.Discard()
		return 0, 0, errors.Wrap(err, "[Generator]")
	}
	if err = discTape.Apply(ts.DiscriminatorOptimizer); err != nil {
		return 0, 0, errors.Wrap(err, "[Discriminator]")
	}
	ts.Steps++
	return genLoss, discLoss, nil
}

// BatchSizes Returns batch sizes compiled so far
func (cs *CompiledStep) BatchSizes() []int {
	sizes := make([]int, 0, len(cs.specializations))
	for size := range cs.specializations {
		sizes = append(sizes, size)
	}
	sort.Ints(sizes)
	return sizes
}

// WriteDot Writes generator side graph (Graphviz format) of the largest compiled batch size
func (cs *CompiledStep) WriteDot(w io.Writer) error {
	sizes := cs.BatchSizes()
	if len(sizes) == 0 {
		return fmt.Errorf("Nothing has been compiled yet")
	}
	sg := cs.specializations[sizes[len(sizes)-1]]
	if _, err := io.WriteString(w, sg.gan.graph.ToDot()); err != nil {
		return errors.Wrap(err, "Can't write graph")
	}
	return nil
}

// Close Releases every compiled graph
func (cs *CompiledStep) Close() error {
	var firstErr error
	for size, sg := range cs.specializations {
		if err := sg.Close(); err != nil && firstErr == nil {
			firstErr = err
		}
		delete(cs.specializations, size)
	}
	return firstErr
}
