package gan_trainer

import (
	"fmt"

	"github.com/pkg/errors"
	"gorgonia.org/gorgonia"
	"gorgonia.org/tensor"
)

var (
	// ErrTapeConsumed Returned when gradients of the same recorded feedforward are requested twice
	ErrTapeConsumed = errors.New("tape has been consumed already")
	// ErrTapePending Returned when graph is run again while its previous tape is still not consumed
	ErrTapePending = errors.New("previous tape of the graph is not consumed")
)

// Tape Recorded feedforward of one graph. Gradients held by the tape's machine belong to exactly one network.
// Tape must be consumed once: either by Apply or by Discard.
type Tape struct {
	vm         gorgonia.VM
	learnables gorgonia.Nodes
	consumed   bool
}

// Apply Feeds recorded gradients to the solver and resets the machine
func (t *Tape) Apply(solver gorgonia.Solver) error {
	if t.consumed {
		return ErrTapeConsumed
	}
	t.consumed = true
	defer t.vm.Reset()
	if err := solver.Step(gorgonia.NodesToValueGrads(t.learnables)); err != nil {
		return errors.Wrap(err, "Can't do solver step")
	}
	return nil
}

// Discard Drops recorded gradients
func (t *Tape) Discard() {
	if t.consumed {
		return
	}
	t.consumed = true
	t.vm.Reset()
}

// Consumed Returns true if tape can't be used anymore
func (t *Tape) Consumed() bool {
	return t.consumed
}

// recorder Compiled graph which produces tapes
type recorder struct {
	vm         gorgonia.VM
	learnables gorgonia.Nodes
	pending    *Tape
}

// busy Returns true while the last tape is not consumed. Inputs of the graph must not be touched then.
func (r *recorder) busy() bool {
	return r.pending != nil && !r.pending.consumed
}

// record Runs the graph (inputs must be fed already) and returns tape over its gradients
func (r *recorder) record() (*Tape, error) {
	if r.busy() {
		return nil, ErrTapePending
	}
	if err := r.vm.RunAll(); err != nil {
		r.vm.Reset()
		return nil, errors.Wrap(err, "Can't run VM")
	}
	r.pending = &Tape{vm: r.vm, learnables: r.learnables}
	return r.pending, nil
}

// scalarOf Extracts float64 from value of scalar node
func scalarOf(v gorgonia.Value) (float64, error) {
	if v == nil {
		return 0, fmt.Errorf("Value is nil")
	}
	switch data := v.Data().(type) {
	case float64:
		return data, nil
	case []float64:
		if len(data) == 1 {
			return data[0], nil
		}
		return 0, fmt.Errorf("Expected scalar, but got %d elements", len(data))
	default:
		return 0, fmt.Errorf("Unexpected scalar type %T", data)
	}
}

// denseOf Returns copy of tensor value so it outlives the machine's next run
func denseOf(v gorgonia.Value) (*tensor.Dense, error) {
	t, ok := v.(*tensor.Dense)
	if !ok {
		return nil, fmt.Errorf("Unexpected value type %T", v)
	}
	return t.Clone().(*tensor.Dense), nil
}
