package gan_trainer

import (
	"math"
	"testing"

	"gorgonia.org/gorgonia"
	"gorgonia.org/tensor"
)

// evalLoss Evaluates loss over constant inputs
func evalLoss(t *testing.T, build func(g *gorgonia.ExprGraph, a, b *gorgonia.Node) (*gorgonia.Node, error), a, b []float64) float64 {
	t.Helper()
	g := gorgonia.NewGraph()
	an := gorgonia.NewMatrix(g, gorgonia.Float64, gorgonia.WithShape(len(a), 1), gorgonia.WithName("a"), gorgonia.WithValue(tensor.New(tensor.WithShape(len(a), 1), tensor.WithBacking(a))))
	bn := gorgonia.NewMatrix(g, gorgonia.Float64, gorgonia.WithShape(len(b), 1), gorgonia.WithName("b"), gorgonia.WithValue(tensor.New(tensor.WithShape(len(b), 1), tensor.WithBacking(b))))
	loss, err := build(g, an, bn)
	if err != nil {
		t.Fatalf("build: %v", err)
	}
	var value gorgonia.Value
	gorgonia.Read(loss, &value)
	vm := gorgonia.NewTapeMachine(g)
	defer vm.Close()
	if err := vm.RunAll(); err != nil {
		t.Fatalf("RunAll: %v", err)
	}
	v, err := scalarOf(value)
	if err != nil {
		t.Fatalf("scalarOf: %v", err)
	}
	return v
}

func TestBinaryCrossEntropy(t *testing.T) {
	probs := []float64{0.9, 0.2}
	targets := []float64{1, 0}
	want := -(math.Log(0.9) + math.Log(0.8)) / 2
	got := evalLoss(t, func(g *gorgonia.ExprGraph, a, b *gorgonia.Node) (*gorgonia.Node, error) {
		return BinaryCrossEntropyLoss(a, b)
	}, probs, targets)
	if math.Abs(got-want) > 1e-9 {
		t.Fatalf("expected %v, got %v", want, got)
	}

	logits := []float64{math.Log(0.9 / 0.1), math.Log(0.2 / 0.8)}
	gotLogits := evalLoss(t, func(g *gorgonia.ExprGraph, a, b *gorgonia.Node) (*gorgonia.Node, error) {
		return BinaryCrossEntropyWithLogitsLoss(a, b)
	}, logits, targets)
	if math.Abs(gotLogits-want) > 1e-9 {
		t.Fatalf("logits version: expected %v, got %v", want, gotLogits)
	}
}

func TestLossPairs(t *testing.T) {
	scores := []float64{0.5, -1.5}
	zeros := []float64{0, 0}
	for _, kind := range []LossKind{LossBCE, LossBCESigmoid, LossLeastSquares} {
		pair, err := Losses(kind)
		if err != nil {
			t.Fatalf("%s: %v", kind, err)
		}
		input := scores
		if kind == LossBCESigmoid {
			input = []float64{0.6, 0.3}
		}
		gen := evalLoss(t, func(g *gorgonia.ExprGraph, a, _ *gorgonia.Node) (*gorgonia.Node, error) {
			return pair.Generator(a)
		}, input, zeros)
		disc := evalLoss(t, func(g *gorgonia.ExprGraph, a, b *gorgonia.Node) (*gorgonia.Node, error) {
			return pair.Discriminator(a, a)
		}, input, zeros)
		if gen <= 0 || disc <= gen {
			t.Fatalf("%s: discriminator loss over identical real and fake scores must exceed generator loss, got %v and %v", kind, gen, disc)
		}
	}
	if _, err := Losses("hinge"); err == nil {
		t.Fatalf("expected error for unknown loss kind")
	}
}

func TestLeastSquaresValues(t *testing.T) {
	pair, err := Losses(LossLeastSquares)
	if err != nil {
		t.Fatalf("Losses: %v", err)
	}
	got := evalLoss(t, func(g *gorgonia.ExprGraph, real, fake *gorgonia.Node) (*gorgonia.Node, error) {
		return pair.Discriminator(real, fake)
	}, []float64{1, 0}, []float64{0, 1})
	// real: ((1-1)^2 + (0-1)^2)/2, fake: (0^2 + 1^2)/2
	if math.Abs(got-1) > 1e-9 {
		t.Fatalf("expected 1, got %v", got)
	}
}
