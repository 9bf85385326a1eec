package gan_trainer

import (
	"bytes"
	"math"
	"reflect"
	"testing"

	"gorgonia.org/tensor"
)

func TestStepReturnsFiniteLosses(t *testing.T) {
	ts := newToyState(t, 1)
	step := newToyStep(t, ts, WithBatchSizes(4))
	for i, batchSize := range []int{1, 2, 3, 4, 5} {
		genLoss, discLoss, err := step.Run(ts, toyImages(batchSize))
		if err != nil {
			t.Fatalf("batch %d: Run: %v", batchSize, err)
		}
		if math.IsNaN(genLoss) || math.IsInf(genLoss, 0) {
			t.Fatalf("batch %d: generator loss is not finite: %v", batchSize, genLoss)
		}
		if math.IsNaN(discLoss) || math.IsInf(discLoss, 0) {
			t.Fatalf("batch %d: discriminator loss is not finite: %v", batchSize, discLoss)
		}
		if ts.Steps != i+1 {
			t.Fatalf("expected %d steps, got %d", i+1, ts.Steps)
		}
	}
	if got := step.BatchSizes(); !reflect.DeepEqual(got, []int{1, 2, 3, 4, 5}) {
		t.Fatalf("unexpected compiled batch sizes %v", got)
	}
	if ts.GeneratorOptimizer.Iteration() != 5 || ts.DiscriminatorOptimizer.Iteration() != 5 {
		t.Fatalf("each optimizer must step once per train step, got %d and %d", ts.GeneratorOptimizer.Iteration(), ts.DiscriminatorOptimizer.Iteration())
	}
}

func TestStepUpdatesBothNetworks(t *testing.T) {
	ts := newToyState(t, 2)
	step := newToyStep(t, ts)
	genBefore := snapshot(ts.Generator.TrainableParameters())
	discBefore := snapshot(ts.Discriminator.TrainableParameters())
	if _, _, err := step.Run(ts, toyImages(4)); err != nil {
		t.Fatalf("Run: %v", err)
	}
	if sameValues(genBefore, snapshot(ts.Generator.TrainableParameters())) {
		t.Fatalf("generator parameters were not updated")
	}
	if sameValues(discBefore, snapshot(ts.Discriminator.TrainableParameters())) {
		t.Fatalf("discriminator parameters were not updated")
	}
}

func TestGradientIsolation(t *testing.T) {
	ts := newToyState(t, 3)
	step := newToyStep(t, ts)
	sg, err := step.specialize(4)
	if err != nil {
		t.Fatalf("specialize: %v", err)
	}

	noise := ts.Noise.Normal(4, toyNoiseDim)
	_, generated, genTape, err := sg.gan.forwardAndRecord(noise, ts.Noise)
	if err != nil {
		t.Fatalf("generator side: %v", err)
	}
	discBefore := snapshot(ts.Discriminator.TrainableParameters())
	genBefore := snapshot(ts.Generator.TrainableParameters())
	if err := genTape.Apply(ts.GeneratorOptimizer); err != nil {
		t.Fatalf("Apply generator tape: %v", err)
	}
	if !sameValues(discBefore, snapshot(ts.Discriminator.TrainableParameters())) {
		t.Fatalf("generator loss must not change discriminator parameters")
	}
	if sameValues(genBefore, snapshot(ts.Generator.TrainableParameters())) {
		t.Fatalf("generator loss must change generator parameters")
	}

	_, discTape, err := sg.disc.forwardAndRecord(toyImages(4), generated, sg.gan.scoredMasks, ts.Noise)
	if err != nil {
		t.Fatalf("discriminator side: %v", err)
	}
	genBefore = snapshot(ts.Generator.TrainableParameters())
	if err := discTape.Apply(ts.DiscriminatorOptimizer); err != nil {
		t.Fatalf("Apply discriminator tape: %v", err)
	}
	if !sameValues(genBefore, snapshot(ts.Generator.TrainableParameters())) {
		t.Fatalf("discriminator loss must not change generator parameters")
	}
	if sameValues(discBefore, snapshot(ts.Discriminator.TrainableParameters())) {
		t.Fatalf("discriminator loss must change discriminator parameters")
	}
}

func TestTapeIsConsumedOnce(t *testing.T) {
	ts := newToyState(t, 4)
	step := newToyStep(t, ts)
	sg, err := step.specialize(2)
	if err != nil {
		t.Fatalf("specialize: %v", err)
	}
	_, _, tape, err := sg.gan.forwardAndRecord(ts.Noise.Normal(2, toyNoiseDim), ts.Noise)
	if err != nil {
		t.Fatalf("forwardAndRecord: %v", err)
	}
	noiseBefore := snapshot([]*tensor.Dense{sg.gan.noise.Value().(*tensor.Dense)})
	masksBefore := sg.gan.scoredMasks
	if len(masksBefore) == 0 {
		t.Fatalf("toy discriminator must have dropout masks")
	}
	if _, _, _, err := sg.gan.forwardAndRecord(ts.Noise.Normal(2, toyNoiseDim), ts.Noise); err != ErrTapePending {
		t.Fatalf("expected ErrTapePending while tape is outstanding, got %v", err)
	}
	// Rejected run must leave inputs of the outstanding tape as they were
	if !sameValues(noiseBefore, snapshot([]*tensor.Dense{sg.gan.noise.Value().(*tensor.Dense)})) {
		t.Fatalf("rejected run must not overwrite noise of the outstanding tape")
	}
	if !sameValues(snapshot(masksBefore), snapshot(sg.gan.scoredMasks)) {
		t.Fatalf("rejected run must not resample dropout masks of the outstanding tape")
	}
	_, discTape, err := sg.disc.forwardAndRecord(toyImages(2), toyImages(2), sg.gan.scoredMasks, ts.Noise)
	if err != nil {
		t.Fatalf("disc forwardAndRecord: %v", err)
	}
	if _, _, err := sg.disc.forwardAndRecord(toyImages(2), toyImages(2), sg.gan.scoredMasks, ts.Noise); err != ErrTapePending {
		t.Fatalf("expected ErrTapePending from discriminator graph, got %v", err)
	}
	discTape.Discard()
	if err := tape.Apply(ts.GeneratorOptimizer); err != nil {
		t.Fatalf("Apply: %v", err)
	}
	if !tape.Consumed() {
		t.Fatalf("tape must be consumed after Apply")
	}
	if err := tape.Apply(ts.GeneratorOptimizer); err != ErrTapeConsumed {
		t.Fatalf("expected ErrTapeConsumed, got %v", err)
	}
	if ts.GeneratorOptimizer.Iteration() != 1 {
		t.Fatalf("second Apply must not step the optimizer")
	}
	_, _, tape, err = sg.gan.forwardAndRecord(ts.Noise.Normal(2, toyNoiseDim), ts.Noise)
	if err != nil {
		t.Fatalf("forwardAndRecord after Apply: %v", err)
	}
	tape.Discard()
	if err := tape.Apply(ts.GeneratorOptimizer); err != ErrTapeConsumed {
		t.Fatalf("expected ErrTapeConsumed after Discard, got %v", err)
	}
}

func TestStepRejectsWrongSampleShape(t *testing.T) {
	ts := newToyState(t, 5)
	step := newToyStep(t, ts)
	bad := toyImages(4)
	if err := bad.Reshape(4, 16); err != nil {
		t.Fatalf("Reshape: %v", err)
	}
	if _, _, err := step.Run(ts, bad); err == nil {
		t.Fatalf("expected error for batch of shape %v", bad.Shape())
	}
	if ts.Steps != 0 {
		t.Fatalf("failed step must not be counted")
	}
}

func TestWriteDot(t *testing.T) {
	ts := newToyState(t, 6)
	step := newToyStep(t, ts)
	buf := &bytes.Buffer{}
	if err := step.WriteDot(buf); err == nil {
		t.Fatalf("expected error when nothing is compiled")
	}
	if _, _, err := step.Run(ts, toyImages(2)); err != nil {
		t.Fatalf("Run: %v", err)
	}
	if err := step.WriteDot(buf); err != nil {
		t.Fatalf("WriteDot: %v", err)
	}
	if !bytes.Contains(buf.Bytes(), []byte("digraph")) {
		t.Fatalf("expected Graphviz output, got %q", buf.String())
	}
}

func TestCompileStepChecksScoreActivation(t *testing.T) {
	losses, err := Losses(LossBCESigmoid)
	if err != nil {
		t.Fatalf("Losses: %v", err)
	}
	if losses.ScoreActivation != ActivationSigmoid {
		t.Fatalf("cross entropy over probabilities must require sigmoid scores, got '%s'", losses.ScoreActivation)
	}

	// Toy discriminator outputs logits: log(A) of them would be NaN
	logitsState := newToyState(t, 8)
	if step, err := CompileStep(logitsState, losses); err == nil {
		step.Close()
		t.Fatalf("expected error for discriminator without sigmoid output")
	}

	gen, disc := toyNetworks()
	layers := disc.Network().Layers
	layers[len(layers)-1].Activation = ActivationSigmoid
	ts, err := NewTrainingState(gen, disc, StateConfig{
		NoiseDim:                  toyNoiseDim,
		NumExamplesToGenerate:     toyExamples,
		SampleShape:               toySampleShape,
		GeneratorLearningRate:     1e-3,
		DiscriminatorLearningRate: 1e-3,
		RandomSeed:                8,
	})
	if err != nil {
		t.Fatalf("NewTrainingState: %v", err)
	}
	defer ts.Close()
	step, err := CompileStep(ts, losses)
	if err != nil {
		t.Fatalf("CompileStep: %v", err)
	}
	defer step.Close()
	for i := 0; i < 3; i++ {
		genLoss, discLoss, err := step.Run(ts, toyImages(4))
		if err != nil {
			t.Fatalf("Run: %v", err)
		}
		if math.IsNaN(genLoss) || math.IsNaN(discLoss) || math.IsInf(genLoss, 0) || math.IsInf(discLoss, 0) {
			t.Fatalf("step %d: expected finite losses, got %v and %v", i, genLoss, discLoss)
		}
	}
}
