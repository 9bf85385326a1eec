package gan_trainer

import (
	"os"
	"path/filepath"
	"testing"
)

func TestCheckpointRoundTrip(t *testing.T) {
	dir := t.TempDir()
	ts := newToyState(t, 10)
	step := newToyStep(t, ts)
	if _, _, err := step.Run(ts, toyImages(4)); err != nil {
		t.Fatalf("Run: %v", err)
	}
	ts.Epoch = 3
	cm := NewCheckpointManager(dir, "", 0)
	path, err := cm.Save(ts)
	if err != nil {
		t.Fatalf("Save: %v", err)
	}
	if filepath.Base(path) != "ckpt-1" {
		t.Fatalf("unexpected checkpoint name %s", path)
	}
	want, err := ts.Generator.Forward(ts.Seed, false)
	if err != nil {
		t.Fatalf("Forward: %v", err)
	}
	wantGen := snapshot(ts.Generator.TrainableParameters())
	wantDisc := snapshot(ts.Discriminator.TrainableParameters())
	wantOpt := ts.GeneratorOptimizer.State()

	// Diverge after save
	if _, _, err := step.Run(ts, toyImages(4)); err != nil {
		t.Fatalf("Run: %v", err)
	}
	ts.Epoch = 7

	latest, err := cm.RestoreLatest(ts)
	if err != nil {
		t.Fatalf("RestoreLatest: %v", err)
	}
	if latest != path {
		t.Fatalf("expected %s, got %s", path, latest)
	}
	if ts.Epoch != 3 || ts.Steps != 1 {
		t.Fatalf("expected epoch 3 and 1 step, got %d and %d", ts.Epoch, ts.Steps)
	}
	if !sameValues(wantGen, snapshot(ts.Generator.TrainableParameters())) || !sameValues(wantDisc, snapshot(ts.Discriminator.TrainableParameters())) {
		t.Fatalf("parameters were not restored")
	}
	if ts.GeneratorOptimizer.Iteration() != wantOpt.Iteration {
		t.Fatalf("optimizer iteration was not restored")
	}
	got, err := ts.Generator.Forward(ts.Seed, false)
	if err != nil {
		t.Fatalf("Forward: %v", err)
	}
	a, b := want.Data().([]float64), got.Data().([]float64)
	for i := range a {
		if a[i] != b[i] {
			t.Fatalf("restored generator gives different output at %d", i)
		}
	}
	// Compiled step keeps working on restored values
	if _, _, err := step.Run(ts, toyImages(4)); err != nil {
		t.Fatalf("Run after restore: %v", err)
	}
}

func TestCheckpointNumberingAndKeep(t *testing.T) {
	dir := t.TempDir()
	ts := newToyState(t, 11)
	cm := NewCheckpointManager(dir, "ckpt", 2)
	if _, err := cm.Latest(); err != ErrNoCheckpoint {
		t.Fatalf("expected ErrNoCheckpoint, got %v", err)
	}
	for i := 1; i <= 3; i++ {
		path, err := cm.Save(ts)
		if err != nil {
			t.Fatalf("Save #%d: %v", i, err)
		}
		if want := filepath.Join(dir, "ckpt-"+string(rune('0'+i))); path != want {
			t.Fatalf("expected %s, got %s", want, path)
		}
	}
	if _, err := os.Stat(filepath.Join(dir, "ckpt-1")); !os.IsNotExist(err) {
		t.Fatalf("ckpt-1 must be removed when only 2 checkpoints are kept")
	}
	for _, name := range []string{"ckpt-2", "ckpt-3", "checkpoint"} {
		if _, err := os.Stat(filepath.Join(dir, name)); err != nil {
			t.Fatalf("%s must exist: %v", name, err)
		}
	}
	latest, err := cm.Latest()
	if err != nil {
		t.Fatalf("Latest: %v", err)
	}
	if filepath.Base(latest) != "ckpt-3" {
		t.Fatalf("expected ckpt-3, got %s", latest)
	}

	// Numbers are never reused even if files are gone
	os.Remove(filepath.Join(dir, "ckpt-2"))
	os.Remove(filepath.Join(dir, "ckpt-3"))
	path, err := cm.Save(ts)
	if err != nil {
		t.Fatalf("Save: %v", err)
	}
	if filepath.Base(path) != "ckpt-4" {
		t.Fatalf("expected ckpt-4, got %s", path)
	}
}

func TestRestoreRejectsOtherArchitecture(t *testing.T) {
	dir := t.TempDir()
	ts := newToyState(t, 12)
	cm := NewCheckpointManager(dir, "ckpt", 0)
	path, err := cm.Save(ts)
	if err != nil {
		t.Fatalf("Save: %v", err)
	}

	gen := Generator(toyNoiseDim,
		Linear(toyNoiseDim, 6, ActivationLeakyRectify, true),
		Linear(6, 16, ActivationTanh, true),
		Reshape(toySampleShape...),
	)
	_, disc := toyNetworks()
	other, err := NewTrainingState(gen, disc, StateConfig{
		NoiseDim:              toyNoiseDim,
		NumExamplesToGenerate: toyExamples,
		SampleShape:           toySampleShape,
	})
	if err != nil {
		t.Fatalf("NewTrainingState: %v", err)
	}
	defer other.Close()
	discBefore := snapshot(other.Discriminator.TrainableParameters())
	if err := cm.Restore(path, other); err == nil {
		t.Fatalf("expected shape mismatch error")
	}
	if !sameValues(discBefore, snapshot(other.Discriminator.TrainableParameters())) {
		t.Fatalf("failed restore must not touch parameters")
	}
}

func TestRestoreKeepsStateOnBrokenOptimizer(t *testing.T) {
	dir := t.TempDir()
	ts := newToyState(t, 13)
	step := newToyStep(t, ts)
	if _, _, err := step.Run(ts, toyImages(4)); err != nil {
		t.Fatalf("Run: %v", err)
	}
	cm := NewCheckpointManager(dir, "ckpt", 0)
	path, err := cm.Save(ts)
	if err != nil {
		t.Fatalf("Save: %v", err)
	}
	var data checkpointData
	if err := readGob(path, &data); err != nil {
		t.Fatalf("readGob: %v", err)
	}
	// Generator part is valid, discriminator optimizer lost a moment
	data.GeneratorOptimizer.Iteration = 42
	data.DiscriminatorOptimizer.FirstMoment = data.DiscriminatorOptimizer.FirstMoment[1:]
	if err := writeGob(path, &data); err != nil {
		t.Fatalf("writeGob: %v", err)
	}

	if _, _, err := step.Run(ts, toyImages(4)); err != nil {
		t.Fatalf("Run: %v", err)
	}
	genState := ts.GeneratorOptimizer.State()
	genParams := snapshot(ts.Generator.TrainableParameters())
	if err := cm.Restore(path, ts); err == nil {
		t.Fatalf("expected error for broken discriminator optimizer state")
	}
	if ts.GeneratorOptimizer.Iteration() != genState.Iteration || ts.GeneratorOptimizer.Iteration() == 42 {
		t.Fatalf("failed restore must not replace generator optimizer, iteration %d", ts.GeneratorOptimizer.Iteration())
	}
	if !sameValues(genParams, snapshot(ts.Generator.TrainableParameters())) {
		t.Fatalf("failed restore must not touch parameters")
	}
}
