package main

import (
	"fmt"
	"image/color"
	"log"
	"math"
	"os"
	"path/filepath"

	gan "github.com/LdDl/gan-trainer-go"
	"github.com/pkg/errors"
	"gonum.org/v1/plot"
	"gonum.org/v1/plot/plotter"
	"gonum.org/v1/plot/vg"
	"gorgonia.org/tensor"
)

var (
	outputFolder    = "./output"
	batchSize       = 16
	latentSpaceSize = 2
	numEpoches      = 400
	numTestSamples  = 300
	evalPrint       = 20
)

// genSyntheticData Points (x, sin(x)) with x uniformly distributed over [0, 2*Pi)
func genSyntheticData(numSamples int, seed int64) *tensor.Dense {
	xs := gan.NewNoiseSource(seed).Uniform(numSamples)
	backing := make([]float64, 0, 2*numSamples)
	for _, u := range xs.Data().([]float64) {
		x := 2 * math.Pi * u
		backing = append(backing, x, math.Sin(x))
	}
	return tensor.New(tensor.WithShape(numSamples, 2), tensor.WithBacking(backing))
}

// scatterSink Draws generated points every evalPrint epochs
type scatterSink struct {
	dir   string
	every int
	calls int
}

func (sink *scatterSink) Save(gen *gan.GeneratorNet, label string, seed *tensor.Dense) error {
	sink.calls++
	if label != "final" && sink.calls%sink.every != 0 {
		return nil
	}
	points, err := gen.Forward(seed, false)
	if err != nil {
		return errors.Wrap(err, "Can't generate points")
	}
	return plotPoints(points, filepath.Join(sink.dir, fmt.Sprintf("generated_%s.png", label)))
}

// plotPoints Plot chart for points [N, 2]
func plotPoints(points *tensor.Dense, fname string) error {
	if points.Dims() != 2 || points.Shape()[1] != 2 {
		return fmt.Errorf("Points must have shape [N, 2], but got %v", points.Shape())
	}
	data := points.Data().([]float64)
	scatterData := make(plotter.XYs, points.Shape()[0])
	for i := range scatterData {
		scatterData[i].X = data[2*i]
		scatterData[i].Y = data[2*i+1]
	}
	scatter, err := plotter.NewScatter(scatterData)
	if err != nil {
		return errors.Wrap(err, "Can't init new scatter")
	}
	scatter.GlyphStyle.Color = color.RGBA{R: 255, B: 128, A: 255}
	p := plot.New()
	p.X.Label.Text = "X"
	p.Y.Label.Text = "Y"
	p.Add(plotter.NewGrid())
	p.Add(scatter)
	if err := p.Save(4*vg.Inch, 4*vg.Inch, fname); err != nil {
		return errors.Wrap(err, "Can't save plot")
	}
	return nil
}

func main() {
	if err := os.MkdirAll(outputFolder, 0755); err != nil {
		log.Fatalf("failed to create output folder: %v", err)
	}

	// Prepare synthetic data
	trainDataLength := 1024
	samples := genSyntheticData(trainDataLength, 1337)
	if err := plotPoints(samples, filepath.Join(outputFolder, "reference_function.png")); err != nil {
		log.Fatalf("failed to plot reference function: %v", err)
	}
	trainSet, err := gan.NewTensorDataset(samples, batchSize, true, 1337)
	if err != nil {
		log.Fatalf("failed to prepare dataset: %v", err)
	}

	ts, err := gan.NewTrainingState(defineGenerator(), defineDiscriminator(), gan.StateConfig{
		NoiseDim:                  latentSpaceSize,
		NumExamplesToGenerate:     numTestSamples,
		SampleShape:               []int{2},
		GeneratorLearningRate:     0.001,
		DiscriminatorLearningRate: 0.001,
		RandomSeed:                1337,
	})
	if err != nil {
		log.Fatalf("failed to init training state: %v", err)
	}
	defer ts.Close()

	losses, err := gan.Losses(gan.LossBCESigmoid)
	if err != nil {
		log.Fatalf("invalid loss: %v", err)
	}
	step, err := gan.CompileStep(ts, losses, gan.WithBatchSizes(batchSize))
	if err != nil {
		log.Fatalf("failed to compile train step: %v", err)
	}
	defer step.Close()

	trainer := gan.NewTrainer(ts, step)
	trainer.Samples = &scatterSink{dir: outputFolder, every: evalPrint}
	trainer.LossPlot = filepath.Join(outputFolder, "losses.png")
	if _, err := trainer.Train(trainSet, numEpoches, trainDataLength, batchSize); err != nil {
		log.Fatalf("training failed: %v", err)
	}
}

func defineDiscriminator() *gan.DiscriminatorNet {
	/*
		input(2) => linear(256) => dropout(0.3) => linear(128) => dropout(0.3) => linear(64) => dropout(0.3) => linear(1)
	*/
	return gan.Discriminator(
		gan.Linear(2, 256, gan.ActivationRectify, true),
		gan.Dropout(0.3),
		gan.Linear(256, 128, gan.ActivationRectify, true),
		gan.Dropout(0.3),
		gan.Linear(128, 64, gan.ActivationRectify, true),
		gan.Dropout(0.3),
		gan.Linear(64, 1, gan.ActivationSigmoid, true),
	)
}

func defineGenerator() *gan.GeneratorNet {
	/*
		input(2) => linear(16) => linear(32) => linear(2)
	*/
	return gan.Generator(latentSpaceSize,
		gan.Linear(latentSpaceSize, 16, gan.ActivationRectify, true),
		gan.Linear(16, 32, gan.ActivationRectify, true),
		gan.Linear(32, 2, gan.ActivationNone, true),
	)
}
