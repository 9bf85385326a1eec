package gan_trainer

import (
	"fmt"
	"io"
	"log"
	"os"
	"time"

	"github.com/pkg/errors"
	"github.com/schollz/progressbar/v3"
)

// Trainer Epoch loop around compiled adversarial step
//
// Checkpoints - where full training state is saved. Nil disables checkpointing
// ExportDir - where standalone generator is exported along with every checkpoint. Empty disables export
// Samples - receives generator output for the fixed seed after every epoch. Nil disables sampling
// CheckpointEvery - save checkpoint (and export) every N epochs. Zero means every epoch
// LossPlot - if not empty, loss history chart is redrawn there after every epoch
// Logger - defaults to log.Default()
// Progress - where progress bar is drawn. Defaults to os.Stderr
//
type Trainer struct {
	State           *TrainingState
	Step            *CompiledStep
	Checkpoints     *CheckpointManager
	ExportDir       string
	Samples         SampleSink
	CheckpointEvery int
	LossPlot        string
	Logger          *log.Logger
	Progress        io.Writer

	history []EpochStats
}

// NewTrainer Constructor for Trainer
func NewTrainer(ts *TrainingState, step *CompiledStep) *Trainer {
	return &Trainer{
		State:           ts,
		Step:            step,
		CheckpointEvery: 1,
	}
}

// History Returns stats of every epoch trained by this Trainer
func (tr *Trainer) History() []EpochStats {
	return append([]EpochStats(nil), tr.history...)
}

func (tr *Trainer) logger() *log.Logger {
	if tr.Logger == nil {
		return log.Default()
	}
	return tr.Logger
}

func (tr *Trainer) progress() io.Writer {
	if tr.Progress == nil {
		return os.Stderr
	}
	return tr.Progress
}

// Train Runs epochs (ts.Epoch+1)..epochs over the dataset.
//
// datasetSize and batchSize define averaging count ceil(datasetSize/batchSize) of reported losses and
// total of progress bar. Batches themselves are whatever the dataset yields.
// Any failure aborts training; the latest checkpoint is the recovery point.
//
func (tr *Trainer) Train(ds Dataset, epochs, datasetSize, batchSize int) ([]EpochStats, error) {
	if tr.State == nil || tr.Step == nil {
		return nil, fmt.Errorf("Trainer needs both training state and compiled step")
	}
	if ds == nil {
		return nil, fmt.Errorf("Dataset must be provided")
	}
	batches := numBatches(datasetSize, batchSize)
	if batches == 0 {
		return nil, fmt.Errorf("Dataset size and batch size must be positive, but got %d and %d", datasetSize, batchSize)
	}
	ts := tr.State
	stats := []EpochStats{}
	if ts.Epoch > 0 {
		tr.logger().Printf("run=%s resume_epoch=%d steps=%d", ts.RunID, ts.Epoch, ts.Steps)
	}
	for epoch := ts.Epoch + 1; epoch <= epochs; epoch++ {
		st, err := tr.trainEpoch(ds, epoch, batches)
		if err != nil {
			return stats, errors.Wrap(err, fmt.Sprintf("Epoch %d", epoch))
		}
		stats = append(stats, st)
		tr.history = append(tr.history, st)
		if tr.LossPlot != "" {
			if err := PlotLosses(tr.history, tr.LossPlot); err != nil {
				tr.logger().Printf("epoch=%d loss_plot_error=%q", epoch, err.Error())
			}
		}
	}
	if tr.Samples != nil {
		if err := tr.Samples.Save(ts.Generator, "final", ts.Seed); err != nil {
			return stats, errors.Wrap(err, "Can't save final samples")
		}
	}
	return stats, nil
}

func (tr *Trainer) trainEpoch(ds Dataset, epoch, batches int) (EpochStats, error) {
	ts := tr.State
	start := time.Now()
	if err := ds.Reset(); err != nil {
		return EpochStats{}, errors.Wrap(err, "Can't reset dataset")
	}
	bar := progressbar.NewOptions(batches,
		progressbar.OptionSetDescription(fmt.Sprintf("Epoch %d: ", epoch)),
		progressbar.OptionSetWriter(tr.progress()),
		progressbar.OptionShowCount(),
		progressbar.OptionSetPredictTime(true),
	)
	acc := lossAccumulator{}
	for {
		batch, err := ds.Next()
		if err == io.EOF {
			break
		}
		if err != nil {
			return EpochStats{}, errors.Wrap(err, "Can't fetch batch")
		}
		genLoss, discLoss, err := tr.Step.Run(ts, batch)
		if err != nil {
			return EpochStats{}, errors.Wrap(err, fmt.Sprintf("Step %d", acc.steps()+1))
		}
		acc.add(genLoss, discLoss)
		bar.Add(1)
	}
	bar.Finish()
	fmt.Fprintln(tr.progress())
	if acc.steps() == 0 {
		return EpochStats{}, fmt.Errorf("Dataset produced no batches")
	}
	ts.Epoch = epoch

	if tr.Samples != nil {
		if err := tr.Samples.Save(ts.Generator, fmt.Sprintf("%04d", epoch), ts.Seed); err != nil {
			return EpochStats{}, errors.Wrap(err, "Can't save samples")
		}
	}
	every := tr.CheckpointEvery
	if every <= 0 {
		every = 1
	}
	if epoch%every == 0 {
		if err := tr.save(epoch); err != nil {
			return EpochStats{}, err
		}
	}

	genMean, discMean := acc.means(batches)
	st := EpochStats{
		Epoch:             epoch,
		Batches:           batches,
		Steps:             acc.steps(),
		GeneratorLoss:     genMean,
		DiscriminatorLoss: discMean,
		Duration:          time.Since(start),
	}
	if bad := acc.nonFinite(); bad > 0 {
		tr.logger().Printf("epoch=%d non_finite_steps=%d", epoch, bad)
	}
	tr.logger().Printf("epoch=%d duration=%s steps=%d gen_loss=%.6f disc_loss=%.6f",
		epoch,
		st.Duration.Round(time.Millisecond),
		st.Steps,
		st.GeneratorLoss,
		st.DiscriminatorLoss,
	)
	return st, nil
}

func (tr *Trainer) save(epoch int) error {
	ts := tr.State
	if tr.Checkpoints == nil && tr.ExportDir == "" {
		return nil
	}
	checkpoint := ""
	if tr.Checkpoints != nil {
		path, err := tr.Checkpoints.Save(ts)
		if err != nil {
			return errors.Wrap(err, "Can't save checkpoint")
		}
		checkpoint = path
	}
	if tr.ExportDir != "" {
		if err := ExportGenerator(ts.Generator, tr.ExportDir); err != nil {
			return errors.Wrap(err, "Can't export generator")
		}
	}
	tr.logger().Printf("Saving model epoch=%d checkpoint=%s export=%s", epoch, checkpoint, tr.ExportDir)
	return nil
}
