package gan_trainer

import (
	"math"
	"time"

	"gonum.org/v1/gonum/floats"
)

// EpochStats Summary of one epoch
//
// Batches - averaging count: ceil(datasetSize/batchSize)
// Steps - train steps actually done during the epoch
// GeneratorLoss, DiscriminatorLoss - accumulated losses divided by Batches
//
type EpochStats struct {
	Epoch             int
	Batches           int
	Steps             int
	GeneratorLoss     float64
	DiscriminatorLoss float64
	Duration          time.Duration
}

// Finite Returns false if any of mean losses is NaN or Inf
func (st EpochStats) Finite() bool {
	return !math.IsNaN(st.GeneratorLoss) && !math.IsInf(st.GeneratorLoss, 0) &&
		!math.IsNaN(st.DiscriminatorLoss) && !math.IsInf(st.DiscriminatorLoss, 0)
}

// numBatches ceil(datasetSize/batchSize)
func numBatches(datasetSize, batchSize int) int {
	if batchSize <= 0 || datasetSize <= 0 {
		return 0
	}
	return (datasetSize + batchSize - 1) / batchSize
}

// lossAccumulator Per-step losses of the running epoch
type lossAccumulator struct {
	generator     []float64
	discriminator []float64
}

func (acc *lossAccumulator) add(genLoss, discLoss float64) {
	acc.generator = append(acc.generator, genLoss)
	acc.discriminator = append(acc.discriminator, discLoss)
}

func (acc *lossAccumulator) steps() int {
	return len(acc.generator)
}

// means Returns sums of losses divided by provided denominator
func (acc *lossAccumulator) means(denominator int) (float64, float64) {
	if denominator <= 0 {
		denominator = acc.steps()
	}
	if denominator == 0 {
		return 0, 0
	}
	return floats.Sum(acc.generator) / float64(denominator), floats.Sum(acc.discriminator) / float64(denominator)
}

// nonFinite Returns number of steps where any loss was NaN or Inf
func (acc *lossAccumulator) nonFinite() int {
	count := 0
	for i := range acc.generator {
		if floats.HasNaN(acc.generator[i:i+1]) || floats.HasNaN(acc.discriminator[i:i+1]) ||
			math.IsInf(acc.generator[i], 0) || math.IsInf(acc.discriminator[i], 0) {
			count++
		}
	}
	return count
}
