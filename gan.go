package gan_trainer

import (
	"fmt"

	"github.com/pkg/errors"
	"gorgonia.org/gorgonia"
	"gorgonia.org/tensor"
)

// GAN Generator side of the adversarial step for fixed batch size.
//
// generatorPart - Generator bound to the graph; the only learnables of the graph
// discriminatorPart - Discriminator bound to the same graph. It shares parameter tensors with the real Discriminator,
// but its nodes are not differentiated against, so the generator loss never produces gradients for it
//
type GAN struct {
	graph     *gorgonia.ExprGraph
	batchSize int

	noise             *gorgonia.Node
	generatorPart     *boundNetwork
	discriminatorPart *boundNetwork
	generated         *forwardPass
	scored            *forwardPass

	loss           *gorgonia.Node
	lossValue      gorgonia.Value
	generatedValue gorgonia.Value

	recorder *recorder
	// masks fed into discriminatorPart during the last run. Discriminator's own graph reuses them for generated samples
	scoredMasks []*tensor.Dense
}

// NewGAN Builds and compiles generator side graph
func NewGAN(definedGenerator *GeneratorNet, definedDiscriminator *DiscriminatorNet, losses LossPair, batchSize int) (*GAN, error) {
	if batchSize < 1 {
		return nil, fmt.Errorf("Batch size must be positive, but got %d", batchSize)
	}
	g := gorgonia.NewGraph()
	definedGAN := GAN{
		graph:     g,
		batchSize: batchSize,
	}
	var err error
	definedGAN.generatorPart, err = definedGenerator.private.bind(g, "generator")
	if err != nil {
		return nil, errors.Wrap(err, "Can't bind Generator [GAN]")
	}
	definedGAN.discriminatorPart, err = definedDiscriminator.private.bind(g, "gan_discriminator")
	if err != nil {
		return nil, errors.Wrap(err, "Can't bind Discriminator [GAN]")
	}

	definedGAN.noise = gorgonia.NewMatrix(g, gorgonia.Float64, gorgonia.WithShape(batchSize, definedGenerator.NoiseDim), gorgonia.WithName("generator_input"))
	definedGAN.generated, err = definedGAN.generatorPart.fwd(definedGAN.noise, batchSize, true)
	if err != nil {
		return nil, errors.Wrap(err, "[GAN, Generator part]")
	}
	definedGAN.scored, err = definedGAN.discriminatorPart.fwd(definedGAN.generated.out, batchSize, true)
	if err != nil {
		return nil, errors.Wrap(err, "[GAN, Discriminator part]")
	}
	definedGAN.loss, err = losses.Generator(definedGAN.scored.out)
	if err != nil {
		return nil, errors.Wrap(err, "Can't define generator loss")
	}
	gorgonia.WithName("generator_loss")(definedGAN.loss)

	gorgonia.Read(definedGAN.loss, &definedGAN.lossValue)
	gorgonia.Read(definedGAN.generated.out, &definedGAN.generatedValue)

	learnables := definedGAN.generatorPart.learnables()
	_, err = gorgonia.Grad(definedGAN.loss, learnables...)
	if err != nil {
		return nil, errors.Wrap(err, "Can't define gradients of generator loss")
	}
	definedGAN.recorder = &recorder{
		vm:         gorgonia.NewTapeMachine(g, gorgonia.BindDualValues(learnables...)),
		learnables: learnables,
	}
	return &definedGAN, nil
}

// forwardAndRecord Generates samples from noise, scores them and records gradients of generator loss
//
// Returns generator loss, copy of generated samples and tape which must be consumed before next call
//
func (net *GAN) forwardAndRecord(noise *tensor.Dense, src NoiseSource) (float64, *tensor.Dense, *Tape, error) {
	if net.recorder.busy() {
		return 0, nil, nil, ErrTapePending
	}
	err := gorgonia.Let(net.noise, noise)
	if err != nil {
		return 0, nil, nil, errors.Wrap(err, "Can't init noise value")
	}
	if _, err = net.generated.feedMasks(src); err != nil {
		return 0, nil, nil, errors.Wrap(err, "[GAN, Generator part]")
	}
	net.scoredMasks, err = net.scored.feedMasks(src)
	if err != nil {
		return 0, nil, nil, errors.Wrap(err, "[GAN, Discriminator part]")
	}
	tape, err := net.recorder.record()
	if err != nil {
		return 0, nil, nil, errors.Wrap(err, "[GAN]")
	}
	loss, err := scalarOf(net.lossValue)
	if err != nil {
		tape.Discard()
		return 0, nil, nil, errors.Wrap(err, "Can't read generator loss")
	}
	generated, err := denseOf(net.generatedValue)
	if err != nil {
		tape.Discard()
		return 0, nil, nil, errors.Wrap(err, "Can't read generated samples")
	}
	return loss, generated, tape, nil
}

// Learnables Returns learnables nodes (Generator's ones only)
func (net *GAN) Learnables() gorgonia.Nodes {
	return net.recorder.learnables
}

// Graph Returns expression graph
func (net *GAN) Graph() *gorgonia.ExprGraph {
	return net.graph
}

// Close Releases tape machine
func (net *GAN) Close() error {
	return net.recorder.vm.Close()
}
