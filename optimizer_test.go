package gan_trainer

import (
	"math"
	"testing"

	"gorgonia.org/gorgonia"
	"gorgonia.org/tensor"
)

type valueGrad struct {
	value *tensor.Dense
	grad  *tensor.Dense
}

func (vg valueGrad) Value() gorgonia.Value         { return vg.value }
func (vg valueGrad) Grad() (gorgonia.Value, error) { return vg.grad, nil }

func vector(values ...float64) *tensor.Dense {
	return tensor.New(tensor.WithShape(len(values)), tensor.WithBacking(values))
}

func TestAdamStep(t *testing.T) {
	param := vector(1, -1)
	opt := NewAdam(0.1)
	model := []gorgonia.ValueGrad{valueGrad{value: param, grad: vector(0.5, -2)}}
	if err := opt.Step(model); err != nil {
		t.Fatalf("Step: %v", err)
	}
	// First bias-corrected step moves every weight by ~lr against the sign of its gradient
	got := param.Data().([]float64)
	if math.Abs(got[0]-0.9) > 1e-6 || math.Abs(got[1]+0.9) > 1e-6 {
		t.Fatalf("unexpected weights after first step: %v", got)
	}
	if opt.Iteration() != 1 {
		t.Fatalf("expected iteration 1, got %d", opt.Iteration())
	}
	if err := opt.Step([]gorgonia.ValueGrad{model[0], model[0]}); err == nil {
		t.Fatalf("expected error for different number of parameters")
	}
}

func TestAdamStateRoundTrip(t *testing.T) {
	params := []*tensor.Dense{vector(1, 2, 3)}
	grads := []*tensor.Dense{vector(0.3, -0.1, 0.2)}
	model := []gorgonia.ValueGrad{valueGrad{value: params[0], grad: grads[0]}}

	a := NewAdam(0.01)
	for i := 0; i < 3; i++ {
		if err := a.Step(model); err != nil {
			t.Fatalf("Step: %v", err)
		}
	}
	b := NewAdam(0.01)
	if err := b.SetState(a.State(), params); err != nil {
		t.Fatalf("SetState: %v", err)
	}

	paramsB := []*tensor.Dense{params[0].Clone().(*tensor.Dense)}
	modelB := []gorgonia.ValueGrad{valueGrad{value: paramsB[0], grad: grads[0]}}
	if err := a.Step(model); err != nil {
		t.Fatalf("Step: %v", err)
	}
	if err := b.Step(modelB); err != nil {
		t.Fatalf("Step: %v", err)
	}
	if !sameValues(snapshot(params), snapshot(paramsB)) {
		t.Fatalf("restored optimizer must continue exactly: %v vs %v", params[0].Data(), paramsB[0].Data())
	}

	if err := b.SetState(a.State(), []*tensor.Dense{vector(1, 2)}); err == nil {
		t.Fatalf("expected shape mismatch error")
	}
	b.Reset()
	if b.Iteration() != 0 || len(b.State().FirstMoment) != 0 {
		t.Fatalf("Reset must drop moments")
	}
}
