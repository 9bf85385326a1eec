package gan_trainer

import (
	"fmt"
	"io"

	"gorgonia.org/tensor"
)

// TensorDataset In-memory set of samples [N, ...] served as batches [B, ...]
//
// BatchSize - number of samples in each batch. The last batch of a pass may be smaller
// Shuffle - reshuffle order of samples on every Reset
//
type TensorDataset struct {
	Data      *tensor.Dense
	BatchSize int
	Shuffle   bool

	rng    NoiseSource
	order  []int
	cursor int
}

// NewTensorDataset Constructor for TensorDataset. Seed is used for shuffling only.
func NewTensorDataset(data *tensor.Dense, batchSize int, shuffle bool, seed int64) (*TensorDataset, error) {
	if data == nil || data.Dims() < 2 {
		return nil, fmt.Errorf("Data must have shape [N, ...]")
	}
	if data.Dtype() != tensor.Float64 {
		return nil, fmt.Errorf("Data must be float64, but got %v", data.Dtype())
	}
	if data.Shape()[0] == 0 {
		return nil, fmt.Errorf("Data has no samples")
	}
	if batchSize <= 0 {
		return nil, fmt.Errorf("Batch size must be positive, but got %d", batchSize)
	}
	if data.IsView() {
		data = data.Materialize().(*tensor.Dense)
	}
	ds := &TensorDataset{
		Data:      data,
		BatchSize: batchSize,
		Shuffle:   shuffle,
		rng:       NewNoiseSource(seed),
	}
	ds.order = make([]int, data.Shape()[0])
	for i := range ds.order {
		ds.order[i] = i
	}
	if shuffle {
		ds.shuffle()
	}
	return ds, nil
}

// Len Returns number of samples
func (ds *TensorDataset) Len() int {
	return ds.Data.Shape()[0]
}

// SampleShape Returns shape of single sample
func (ds *TensorDataset) SampleShape() []int {
	return append([]int(nil), ds.Data.Shape()[1:]...)
}

// Next Returns next batch or io.EOF when pass is over
func (ds *TensorDataset) Next() (*tensor.Dense, error) {
	n := ds.Len()
	if ds.cursor >= n {
		return nil, io.EOF
	}
	end := ds.cursor + ds.BatchSize
	if end > n {
		end = n
	}
	rowSize := ds.Data.Shape().TotalSize() / n
	src := ds.Data.Data().([]float64)
	backing := make([]float64, 0, (end-ds.cursor)*rowSize)
	for _, idx := range ds.order[ds.cursor:end] {
		backing = append(backing, src[idx*rowSize:(idx+1)*rowSize]...)
	}
	shape := append([]int{end - ds.cursor}, ds.Data.Shape()[1:]...)
	ds.cursor = end
	return tensor.New(tensor.WithShape(shape...), tensor.WithBacking(backing)), nil
}

// Reset Starts new pass. Order of samples is reshuffled if Shuffle is set.
func (ds *TensorDataset) Reset() error {
	ds.cursor = 0
	if ds.Shuffle {
		ds.shuffle()
	}
	return nil
}

// shuffle Fisher-Yates over sample indices
func (ds *TensorDataset) shuffle() {
	for i := len(ds.order) - 1; i > 0; i-- {
		j := ds.rng.Intn(i + 1)
		ds.order[i], ds.order[j] = ds.order[j], ds.order[i]
	}
}
