package gan_trainer

import (
	"fmt"
	"math"

	"github.com/pkg/errors"
	"gorgonia.org/gorgonia"
	"gorgonia.org/tensor"
)

const (
	adamDefaultBeta1   = 0.9
	adamDefaultBeta2   = 0.999
	adamDefaultEpsilon = 1e-7
)

var _ gorgonia.Solver = (*Adam)(nil)

// Adam Adaptive moments optimizer, see ref. https://arxiv.org/pdf/1412.6980.pdf
//
// Unlike gorgonia.AdamSolver it keeps its moments accessible, so they could be checkpointed.
// Moments are created lazily on the first Step and are indexed by position of parameter in the model slice,
// hence every Step must be called with parameters of the same network in the same order.
//
type Adam struct {
	LearningRate float64
	// If these are 0, defaults are used.
	Beta1, Beta2 float64
	Epsilon      float64

	iteration    int
	firstMoment  []*tensor.Dense
	secondMoment []*tensor.Dense
}

// NewAdam Returns Adam with default decay rates
func NewAdam(learningRate float64) *Adam {
	return &Adam{
		LearningRate: learningRate,
		Beta1:        adamDefaultBeta1,
		Beta2:        adamDefaultBeta2,
		Epsilon:      adamDefaultEpsilon,
	}
}

// Step Applies gradients to values in place
func (a *Adam) Step(model []gorgonia.ValueGrad) error {
	if a.firstMoment == nil {
		a.firstMoment = make([]*tensor.Dense, len(model))
		a.secondMoment = make([]*tensor.Dense, len(model))
	}
	if len(model) != len(a.firstMoment) {
		return fmt.Errorf("Optimizer was initialized for %d parameters, but got %d", len(a.firstMoment), len(model))
	}

	a.iteration++
	beta1, beta2, eps := valueOrDefault(a.Beta1, adamDefaultBeta1), valueOrDefault(a.Beta2, adamDefaultBeta2), valueOrDefault(a.Epsilon, adamDefaultEpsilon)
	correction1 := 1 - math.Pow(beta1, float64(a.iteration))
	correction2 := 1 - math.Pow(beta2, float64(a.iteration))

	for i, vg := range model {
		weights, ok := vg.Value().(*tensor.Dense)
		if !ok {
			return fmt.Errorf("Parameter #%d has unexpected value type %T", i, vg.Value())
		}
		gradValue, err := vg.Grad()
		if err != nil {
			return errors.Wrap(err, fmt.Sprintf("Can't extract gradient of parameter #%d", i))
		}
		grad, ok := gradValue.(*tensor.Dense)
		if !ok {
			return fmt.Errorf("Gradient of parameter #%d has unexpected type %T", i, gradValue)
		}
		if !weights.Shape().Eq(grad.Shape()) {
			return fmt.Errorf("Parameter #%d has shape %v, but its gradient has shape %v", i, weights.Shape(), grad.Shape())
		}
		if a.firstMoment[i] == nil {
			a.firstMoment[i] = tensor.New(tensor.Of(tensor.Float64), tensor.WithShape(weights.Shape().Clone()...))
			a.secondMoment[i] = tensor.New(tensor.Of(tensor.Float64), tensor.WithShape(weights.Shape().Clone()...))
		}
		w := weights.Data().([]float64)
		g := grad.Data().([]float64)
		m := a.firstMoment[i].Data().([]float64)
		v := a.secondMoment[i].Data().([]float64)
		for j := range w {
			m[j] = beta1*m[j] + (1-beta1)*g[j]
			v[j] = beta2*v[j] + (1-beta2)*g[j]*g[j]
			mHat := m[j] / correction1
			vHat := v[j] / correction2
			w[j] -= a.LearningRate * mHat / (math.Sqrt(vHat) + eps)
		}
	}
	return nil
}

// Reset Drops moments: next Step starts from scratch
func (a *Adam) Reset() {
	a.iteration = 0
	a.firstMoment = nil
	a.secondMoment = nil
}

// Iteration Returns number of steps done so far
func (a *Adam) Iteration() int {
	return a.iteration
}

// AdamState Serializable snapshot of Adam's internal state
type AdamState struct {
	Iteration    int
	FirstMoment  []TensorRecord
	SecondMoment []TensorRecord
}

// State Returns deep copy of internal state
func (a *Adam) State() AdamState {
	st := AdamState{Iteration: a.iteration}
	if a.firstMoment == nil {
		return st
	}
	st.FirstMoment = make([]TensorRecord, len(a.firstMoment))
	st.SecondMoment = make([]TensorRecord, len(a.secondMoment))
	for i := range a.firstMoment {
		st.FirstMoment[i] = recordOf(a.firstMoment[i])
		st.SecondMoment[i] = recordOf(a.secondMoment[i])
	}
	return st
}

// SetState Replaces internal state. Moments must match shapes of provided parameters.
func (a *Adam) SetState(st AdamState, params []*tensor.Dense) error {
	first, second, err := a.momentsOf(st, params)
	if err != nil {
		return err
	}
	a.commit(st.Iteration, first, second)
	return nil
}

// momentsOf Builds moment tensors of the state without touching the optimizer. Empty moments mean fresh optimizer.
func (a *Adam) momentsOf(st AdamState, params []*tensor.Dense) ([]*tensor.Dense, []*tensor.Dense, error) {
	if len(st.FirstMoment) == 0 {
		return nil, nil, nil
	}
	if len(st.FirstMoment) != len(params) || len(st.SecondMoment) != len(params) {
		return nil, nil, fmt.Errorf("Optimizer state has %d/%d moments, but network has %d parameters", len(st.FirstMoment), len(st.SecondMoment), len(params))
	}
	first := make([]*tensor.Dense, len(params))
	second := make([]*tensor.Dense, len(params))
	for i := range params {
		var err error
		if first[i], err = st.FirstMoment[i].denseFor(params[i]); err != nil {
			return nil, nil, errors.Wrap(err, fmt.Sprintf("First moment #%d", i))
		}
		if second[i], err = st.SecondMoment[i].denseFor(params[i]); err != nil {
			return nil, nil, errors.Wrap(err, fmt.Sprintf("Second moment #%d", i))
		}
	}
	return first, second, nil
}

func (a *Adam) commit(iteration int, first, second []*tensor.Dense) {
	if first == nil {
		a.Reset()
	} else {
		a.firstMoment = first
		a.secondMoment = second
	}
	a.iteration = iteration
}

func valueOrDefault(value, def float64) float64 {
	if value != 0 {
		return value
	}
	return def
}
