package gan_trainer

import (
	"io"
	"log"
	"math"
	"testing"

	"gorgonia.org/tensor"
)

const (
	toyNoiseDim = 4
	toyExamples = 16
)

var toySampleShape = []int{4, 4, 1}

// toyNetworks Small conv discriminator and dense generator for [4, 4, 1] samples
func toyNetworks() (*GeneratorNet, *DiscriminatorNet) {
	gen := Generator(toyNoiseDim,
		Linear(toyNoiseDim, 8, ActivationLeakyRectify, true),
		Linear(8, 16, ActivationTanh, true),
		Reshape(toySampleShape...),
	)
	disc := Discriminator(
		Transpose(0, 3, 1, 2),
		Conv2D(1, 2, 3, 3, []int{1, 1}, []int{2, 2}, ActivationLeakyRectify),
		Dropout(0.3),
		Flatten(),
		Linear(2*2*2, 1, ActivationNone, true),
	)
	return gen, disc
}

func newToyState(t *testing.T, seed int64) *TrainingState {
	t.Helper()
	gen, disc := toyNetworks()
	ts, err := NewTrainingState(gen, disc, StateConfig{
		NoiseDim:                  toyNoiseDim,
		NumExamplesToGenerate:     toyExamples,
		SampleShape:               toySampleShape,
		GeneratorLearningRate:     1e-3,
		DiscriminatorLearningRate: 1e-3,
		RandomSeed:                seed,
	})
	if err != nil {
		t.Fatalf("NewTrainingState: %v", err)
	}
	t.Cleanup(func() { ts.Close() })
	return ts
}

func newToyStep(t *testing.T, ts *TrainingState, opts ...StepOption) *CompiledStep {
	t.Helper()
	losses, err := Losses(LossBCE)
	if err != nil {
		t.Fatalf("Losses: %v", err)
	}
	step, err := CompileStep(ts, losses, opts...)
	if err != nil {
		t.Fatalf("CompileStep: %v", err)
	}
	t.Cleanup(func() { step.Close() })
	return step
}

// toyImages Returns n images [n, 4, 4, 1] with values in [-1, 1]
func toyImages(n int) *tensor.Dense {
	backing := make([]float64, n*16)
	for i := range backing {
		backing[i] = math.Sin(float64(i))
	}
	return tensor.New(tensor.WithShape(n, 4, 4, 1), tensor.WithBacking(backing))
}

func snapshot(params []*tensor.Dense) [][]float64 {
	out := make([][]float64, len(params))
	for i, p := range params {
		out[i] = append([]float64(nil), p.Data().([]float64)...)
	}
	return out
}

func sameValues(a, b [][]float64) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if len(a[i]) != len(b[i]) {
			return false
		}
		for j := range a[i] {
			if a[i][j] != b[i][j] {
				return false
			}
		}
	}
	return true
}

func quietLogger() *log.Logger {
	return log.New(io.Discard, "", 0)
}
