package gan_trainer

import (
	"fmt"
	"os"

	"github.com/pkg/errors"
	"gopkg.in/yaml.v3"
)

// Config Runtime knobs of a training run
type Config struct {
	Dataset               string `yaml:"dataset"`
	Epochs                int    `yaml:"epochs"`
	BatchSize             int    `yaml:"batch_size"`
	Shuffle               bool   `yaml:"shuffle"`
	Prefetch              int    `yaml:"prefetch"`
	NoiseDim              int    `yaml:"noise_dim"`
	NumExamplesToGenerate int    `yaml:"num_examples_to_generate"`
	Seed                  int64  `yaml:"seed"`

	Loss                      LossKind `yaml:"loss"`
	GeneratorLearningRate     float64  `yaml:"generator_learning_rate"`
	DiscriminatorLearningRate float64  `yaml:"discriminator_learning_rate"`
	Beta1                     float64  `yaml:"beta1"`
	Beta2                     float64  `yaml:"beta2"`
	Epsilon                   float64  `yaml:"epsilon"`

	CheckpointDir    string `yaml:"checkpoint_dir"`
	CheckpointPrefix string `yaml:"checkpoint_prefix"`
	CheckpointEvery  int    `yaml:"checkpoint_every"`
	KeepCheckpoints  int    `yaml:"keep_checkpoints"`
	Resume           bool   `yaml:"resume"`

	ExportDir  string `yaml:"export_dir"`
	SamplesDir string `yaml:"samples_dir"`
	LossPlot   string `yaml:"loss_plot"`
	GraphDot   string `yaml:"graph_dot"`
}

// Overrides CLI supplied values. Zero values are ignored.
type Overrides struct {
	Dataset    string
	Epochs     int
	BatchSize  int
	NoiseDim   int
	Seed       int64
	Loss       string
	Resume     bool
	ExportDir  string
	SamplesDir string
	LossPlot   string
	GraphDot   string
}

// DefaultConfig Returns configuration of the reference MNIST run
func DefaultConfig() *Config {
	return &Config{
		Epochs:                    50,
		BatchSize:                 256,
		Shuffle:                   true,
		Prefetch:                  2,
		NoiseDim:                  100,
		NumExamplesToGenerate:     16,
		Seed:                      1337,
		Loss:                      LossBCE,
		GeneratorLearningRate:     1e-4,
		DiscriminatorLearningRate: 1e-4,
		Beta1:                     adamDefaultBeta1,
		Beta2:                     adamDefaultBeta2,
		Epsilon:                   adamDefaultEpsilon,
		CheckpointDir:             "./training_checkpoints",
		CheckpointPrefix:          "ckpt",
		CheckpointEvery:           1,
		ExportDir:                 "./models/1/",
		SamplesDir:                "./samples",
	}
}

// LoadConfig Reads YAML file on top of DefaultConfig and validates result
func LoadConfig(path string) (*Config, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, errors.Wrap(err, "Can't read config")
	}
	cfg := DefaultConfig()
	if err := yaml.Unmarshal(raw, cfg); err != nil {
		return nil, errors.Wrap(err, "Can't parse config")
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// ApplyOverrides Updates config using any non-zero override
func (cfg *Config) ApplyOverrides(o Overrides) {
	if o.Dataset != "" {
		cfg.Dataset = o.Dataset
	}
	if o.Epochs > 0 {
		cfg.Epochs = o.Epochs
	}
	if o.BatchSize > 0 {
		cfg.BatchSize = o.BatchSize
	}
	if o.NoiseDim > 0 {
		cfg.NoiseDim = o.NoiseDim
	}
	if o.Seed != 0 {
		cfg.Seed = o.Seed
	}
	if o.Loss != "" {
		cfg.Loss = LossKind(o.Loss)
	}
	if o.Resume {
		cfg.Resume = true
	}
	if o.ExportDir != "" {
		cfg.ExportDir = o.ExportDir
	}
	if o.SamplesDir != "" {
		cfg.SamplesDir = o.SamplesDir
	}
	if o.LossPlot != "" {
		cfg.LossPlot = o.LossPlot
	}
	if o.GraphDot != "" {
		cfg.GraphDot = o.GraphDot
	}
}

// Validate Verifies the config is runnable
func (cfg *Config) Validate() error {
	if cfg == nil {
		return fmt.Errorf("Config is nil")
	}
	if cfg.Epochs <= 0 {
		return fmt.Errorf("epochs must be > 0 (got %d)", cfg.Epochs)
	}
	if cfg.BatchSize <= 0 {
		return fmt.Errorf("batch_size must be > 0 (got %d)", cfg.BatchSize)
	}
	if cfg.NoiseDim <= 0 {
		return fmt.Errorf("noise_dim must be > 0 (got %d)", cfg.NoiseDim)
	}
	if cfg.NumExamplesToGenerate <= 0 {
		return fmt.Errorf("num_examples_to_generate must be > 0 (got %d)", cfg.NumExamplesToGenerate)
	}
	if cfg.GeneratorLearningRate <= 0 || cfg.DiscriminatorLearningRate <= 0 {
		return fmt.Errorf("learning rates must be > 0 (got %g and %g)", cfg.GeneratorLearningRate, cfg.DiscriminatorLearningRate)
	}
	if cfg.Beta1 < 0 || cfg.Beta1 >= 1 || cfg.Beta2 < 0 || cfg.Beta2 >= 1 {
		return fmt.Errorf("beta1 and beta2 must be in [0, 1) (got %g and %g)", cfg.Beta1, cfg.Beta2)
	}
	if cfg.Epsilon < 0 {
		return fmt.Errorf("epsilon must be >= 0 (got %g)", cfg.Epsilon)
	}
	if _, err := Losses(cfg.Loss); err != nil {
		return err
	}
	if cfg.CheckpointEvery < 0 {
		return fmt.Errorf("checkpoint_every must be >= 0 (got %d)", cfg.CheckpointEvery)
	}
	if cfg.KeepCheckpoints < 0 {
		return fmt.Errorf("keep_checkpoints must be >= 0 (got %d)", cfg.KeepCheckpoints)
	}
	if cfg.Prefetch < 0 {
		return fmt.Errorf("prefetch must be >= 0 (got %d)", cfg.Prefetch)
	}
	if cfg.Resume && cfg.CheckpointDir == "" {
		return fmt.Errorf("resume requires checkpoint_dir")
	}
	return nil
}

// datasetSeedOffset NoiseSource takes seed and seed+1 for its two streams, so the dataset shuffler starts past both
const datasetSeedOffset = 2

// DatasetSeed Returns seed of the dataset shuffler. Its streams never coincide with the ones of training state.
func (cfg *Config) DatasetSeed() int64 {
	return cfg.Seed + datasetSeedOffset
}

// StateConfig Returns knobs for NewTrainingState
func (cfg *Config) StateConfig(sampleShape []int) StateConfig {
	return StateConfig{
		NoiseDim:                  cfg.NoiseDim,
		NumExamplesToGenerate:     cfg.NumExamplesToGenerate,
		SampleShape:               sampleShape,
		GeneratorLearningRate:     cfg.GeneratorLearningRate,
		DiscriminatorLearningRate: cfg.DiscriminatorLearningRate,
		Beta1:                     cfg.Beta1,
		Beta2:                     cfg.Beta2,
		Epsilon:                   cfg.Epsilon,
		RandomSeed:                cfg.Seed,
	}
}
