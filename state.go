package gan_trainer

import (
	"fmt"

	"github.com/google/uuid"
	"gorgonia.org/tensor"
)

// TrainingState Everything the adversarial loop mutates or depends on. Constructed once by the caller and passed explicitly.
//
// RunID - identity of training run, kept in checkpoints
// Seed - fixed latent vectors for visualization. Sampled once, never mutated by training
// Noise - source of latent vectors and dropout masks
// Epoch - number of completed epochs
// Steps - number of completed train steps
//
type TrainingState struct {
	RunID string

	Generator              *GeneratorNet
	Discriminator          *DiscriminatorNet
	GeneratorOptimizer     *Adam
	DiscriminatorOptimizer *Adam

	NoiseDim    int
	SampleShape []int
	Seed        *tensor.Dense
	Noise       NoiseSource

	Epoch int
	Steps int
}

// StateConfig Knobs for NewTrainingState
type StateConfig struct {
	NoiseDim              int
	NumExamplesToGenerate int
	// Shape of single real sample, e.g. [28, 28, 1]
	SampleShape []int

	GeneratorLearningRate     float64
	DiscriminatorLearningRate float64
	Beta1, Beta2, Epsilon     float64

	RandomSeed int64
}

// NewTrainingState Creates state with fresh optimizers and samples visualization seed
func NewTrainingState(gen *GeneratorNet, disc *DiscriminatorNet, cfg StateConfig) (*TrainingState, error) {
	if gen == nil || disc == nil {
		return nil, fmt.Errorf("Both Generator and Discriminator must be provided")
	}
	if cfg.NoiseDim <= 0 {
		return nil, fmt.Errorf("Noise dimension must be positive, but got %d", cfg.NoiseDim)
	}
	if gen.NoiseDim != cfg.NoiseDim {
		return nil, fmt.Errorf("Generator expects noise dimension %d, but %d is configured", gen.NoiseDim, cfg.NoiseDim)
	}
	if cfg.NumExamplesToGenerate <= 0 {
		return nil, fmt.Errorf("Number of examples to generate must be positive, but got %d", cfg.NumExamplesToGenerate)
	}
	if len(cfg.SampleShape) == 0 {
		return nil, fmt.Errorf("Sample shape must be provided")
	}
	noise := NewNoiseSource(cfg.RandomSeed)
	gen.private.SetMaskSource(noise)
	disc.private.SetMaskSource(noise)
	newAdam := func(lr float64) *Adam {
		opt := NewAdam(lr)
		opt.Beta1 = valueOrDefault(cfg.Beta1, adamDefaultBeta1)
		opt.Beta2 = valueOrDefault(cfg.Beta2, adamDefaultBeta2)
		opt.Epsilon = valueOrDefault(cfg.Epsilon, adamDefaultEpsilon)
		return opt
	}
	return &TrainingState{
		RunID:                  uuid.New().String(),
		Generator:              gen,
		Discriminator:          disc,
		GeneratorOptimizer:     newAdam(cfg.GeneratorLearningRate),
		DiscriminatorOptimizer: newAdam(cfg.DiscriminatorLearningRate),
		NoiseDim:               cfg.NoiseDim,
		SampleShape:            append([]int(nil), cfg.SampleShape...),
		Seed:                   noise.Normal(cfg.NumExamplesToGenerate, cfg.NoiseDim),
		Noise:                  noise,
	}, nil
}

// Close Releases graphs compiled for standalone feedforward of both networks
func (ts *TrainingState) Close() error {
	errGen := ts.Generator.Close()
	errDisc := ts.Discriminator.Close()
	if errGen != nil {
		return errGen
	}
	return errDisc
}
