package gan_trainer

import (
	"testing"

	"gorgonia.org/tensor"
)

func TestNewTrainingState(t *testing.T) {
	ts := newToyState(t, 50)
	if ts.RunID == "" {
		t.Fatalf("run id must be set")
	}
	if !ts.Seed.Shape().Eq([]int{toyExamples, toyNoiseDim}) {
		t.Fatalf("unexpected seed shape %v", ts.Seed.Shape())
	}
	if ts.Epoch != 0 || ts.Steps != 0 {
		t.Fatalf("fresh state must start from zero")
	}

	same := newToyState(t, 50)
	if !sameValues(snapshot([]*tensor.Dense{ts.Seed}), snapshot([]*tensor.Dense{same.Seed})) {
		t.Fatalf("seed must be reproducible for the same random seed")
	}
	if ts.RunID == same.RunID {
		t.Fatalf("every state must get its own run id")
	}

	// Training never touches the seed
	seedBefore := snapshot([]*tensor.Dense{ts.Seed})
	step := newToyStep(t, ts)
	if _, _, err := step.Run(ts, toyImages(2)); err != nil {
		t.Fatalf("Run: %v", err)
	}
	if !sameValues(seedBefore, snapshot([]*tensor.Dense{ts.Seed})) {
		t.Fatalf("train step must not mutate visualization seed")
	}
}

func TestNewTrainingStateValidation(t *testing.T) {
	valid := StateConfig{NoiseDim: toyNoiseDim, NumExamplesToGenerate: 4, SampleShape: toySampleShape}
	cases := []struct {
		name   string
		mutate func(*StateConfig)
	}{
		{"noise mismatch", func(c *StateConfig) { c.NoiseDim = toyNoiseDim + 1 }},
		{"no examples", func(c *StateConfig) { c.NumExamplesToGenerate = 0 }},
		{"no sample shape", func(c *StateConfig) { c.SampleShape = nil }},
	}
	for _, tc := range cases {
		cfg := valid
		tc.mutate(&cfg)
		gen, disc := toyNetworks()
		if _, err := NewTrainingState(gen, disc, cfg); err == nil {
			t.Fatalf("%s: expected error", tc.name)
		}
	}
	if _, err := NewTrainingState(nil, nil, valid); err == nil {
		t.Fatalf("expected error for missing networks")
	}
}
