package main

import (
	"flag"
	"log"
	"os"

	gan "github.com/LdDl/gan-trainer-go"
	"github.com/klauspost/cpuid/v2"
)

func main() {
	cfgPath := flag.String("config", "", "Path to YAML config. Defaults are used if empty")
	dataset := flag.String("dataset", "", "Override path to IDX images file (e.g. train-images-idx3-ubyte.gz)")
	epochs := flag.Int("epochs", 0, "Override number of epochs")
	batchSize := flag.Int("batch-size", 0, "Override batch size")
	noiseDim := flag.Int("noise-dim", 0, "Override size of latent vector")
	seed := flag.Int64("seed", 0, "Override PRNG seed")
	loss := flag.String("loss", "", "Override loss kind: bce, bce_sigmoid or lsgan")
	resume := flag.Bool("resume", false, "Restore the latest checkpoint before training")
	exportDir := flag.String("export-dir", "", "Override directory of exported generator")
	samplesDir := flag.String("samples-dir", "", "Override directory of sample grids")
	lossPlot := flag.String("loss-plot", "", "Override path of loss history chart")
	graphDot := flag.String("graph-dot", "", "Override path of Graphviz dump of generator side graph")
	flag.Parse()

	cfg := gan.DefaultConfig()
	if *cfgPath != "" {
		var err error
		cfg, err = gan.LoadConfig(*cfgPath)
		if err != nil {
			log.Fatalf("failed to load config: %v", err)
		}
	}
	cfg.ApplyOverrides(gan.Overrides{
		Dataset:    *dataset,
		Epochs:     *epochs,
		BatchSize:  *batchSize,
		NoiseDim:   *noiseDim,
		Seed:       *seed,
		Loss:       *loss,
		Resume:     *resume,
		ExportDir:  *exportDir,
		SamplesDir: *samplesDir,
		LossPlot:   *lossPlot,
		GraphDot:   *graphDot,
	})
	if err := cfg.Validate(); err != nil {
		log.Fatalf("invalid config: %v", err)
	}
	if cfg.Dataset == "" {
		log.Fatalf("dataset must be provided")
	}
	log.Printf("cpu=%q physical_cores=%d logical_cores=%d avx2=%t",
		cpuid.CPU.BrandName,
		cpuid.CPU.PhysicalCores,
		cpuid.CPU.LogicalCores,
		cpuid.CPU.Supports(cpuid.AVX2),
	)

	images, err := gan.LoadIDXImages(cfg.Dataset)
	if err != nil {
		log.Fatalf("failed to load dataset: %v", err)
	}
	trainSet, err := gan.NewTensorDataset(images, cfg.BatchSize, cfg.Shuffle, cfg.DatasetSeed())
	if err != nil {
		log.Fatalf("failed to prepare dataset: %v", err)
	}
	sampleShape := trainSet.SampleShape()
	log.Printf("dataset=%s samples=%d sample_shape=%v", cfg.Dataset, trainSet.Len(), sampleShape)

	var ds gan.Dataset = trainSet
	if cfg.Prefetch > 0 {
		prefetched := gan.Prefetch(trainSet, cfg.Prefetch)
		defer prefetched.Close()
		ds = prefetched
	}

	losses, err := gan.Losses(cfg.Loss)
	if err != nil {
		log.Fatalf("invalid loss: %v", err)
	}
	definedGenerator := defineGenerator(cfg.NoiseDim, sampleShape)
	definedDiscriminator := defineDiscriminator(sampleShape, losses.ScoreActivation)
	ts, err := gan.NewTrainingState(definedGenerator, definedDiscriminator, cfg.StateConfig(sampleShape))
	if err != nil {
		log.Fatalf("failed to init training state: %v", err)
	}
	defer ts.Close()

	checkpoints := gan.NewCheckpointManager(cfg.CheckpointDir, cfg.CheckpointPrefix, cfg.KeepCheckpoints)
	if cfg.Resume {
		path, err := checkpoints.RestoreLatest(ts)
		switch {
		case err == gan.ErrNoCheckpoint:
			log.Printf("no checkpoint under %s, starting from scratch", cfg.CheckpointDir)
		case err != nil:
			log.Fatalf("failed to restore checkpoint: %v", err)
		default:
			log.Printf("restored checkpoint=%s epoch=%d", path, ts.Epoch)
		}
	}

	batchSizes := []int{cfg.BatchSize}
	if rem := trainSet.Len() % cfg.BatchSize; rem != 0 {
		batchSizes = append(batchSizes, rem)
	}
	step, err := gan.CompileStep(ts, losses, gan.WithBatchSizes(batchSizes...))
	if err != nil {
		log.Fatalf("failed to compile train step: %v", err)
	}
	defer step.Close()
	if cfg.GraphDot != "" {
		if err := writeDot(step, cfg.GraphDot); err != nil {
			log.Fatalf("failed to dump graph: %v", err)
		}
	}

	trainer := gan.NewTrainer(ts, step)
	trainer.Checkpoints = checkpoints
	trainer.ExportDir = cfg.ExportDir
	trainer.Samples = gan.NewImageGridSink(cfg.SamplesDir)
	trainer.CheckpointEvery = cfg.CheckpointEvery
	trainer.LossPlot = cfg.LossPlot

	log.Printf("run=%s epochs=%d batch_size=%d loss=%s", ts.RunID, cfg.Epochs, cfg.BatchSize, cfg.Loss)
	if _, err := trainer.Train(ds, cfg.Epochs, trainSet.Len(), cfg.BatchSize); err != nil {
		log.Fatalf("training failed: %v", err)
	}
	log.Printf("done epochs=%d steps=%d", ts.Epoch, ts.Steps)
}

func writeDot(step *gan.CompiledStep, fname string) error {
	f, err := os.Create(fname)
	if err != nil {
		return err
	}
	defer f.Close()
	return step.WriteDot(f)
}
