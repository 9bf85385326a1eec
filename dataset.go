package gan_trainer

import (
	"io"
	"sync"

	"gorgonia.org/tensor"
)

// Dataset Restartable finite sequence of batches [B, H, W, C]
type Dataset interface {
	// Next Returns next batch of current pass or io.EOF when pass is over
	Next() (*tensor.Dense, error)
	// Reset Starts new pass over the data
	Reset() error
}

type prefetchItem struct {
	batch *tensor.Dense
	err   error
}

// PrefetchDataset Wraps dataset with background producer which keeps up to depth batches ready.
// Order of batches is preserved. Underlying dataset is only touched by the producer while it runs.
type PrefetchDataset struct {
	ds    Dataset
	depth int

	items    chan prefetchItem
	stop     chan struct{}
	wg       sync.WaitGroup
	finished bool
	lastErr  error
}

// Prefetch Constructor for PrefetchDataset. Depth below 1 is treated as 1.
func Prefetch(ds Dataset, depth int) *PrefetchDataset {
	if depth < 1 {
		depth = 1
	}
	return &PrefetchDataset{ds: ds, depth: depth}
}

func (p *PrefetchDataset) start() {
	p.items = make(chan prefetchItem, p.depth)
	p.stop = make(chan struct{})
	p.finished = false
	p.lastErr = nil
	p.wg.Add(1)
	go func(items chan<- prefetchItem, stop <-chan struct{}) {
		defer p.wg.Done()
		defer close(items)
		for {
			batch, err := p.ds.Next()
			select {
			case items <- prefetchItem{batch: batch, err: err}:
			case <-stop:
				return
			}
			if err != nil {
				return
			}
		}
	}(p.items, p.stop)
}

func (p *PrefetchDataset) halt() {
	if p.items == nil {
		return
	}
	close(p.stop)
	for range p.items {
	}
	p.wg.Wait()
	p.items = nil
}

// Next Returns next prefetched batch. Errors of underlying dataset (io.EOF included) are forwarded as is.
func (p *PrefetchDataset) Next() (*tensor.Dense, error) {
	if p.finished {
		return nil, p.lastErr
	}
	if p.items == nil {
		p.start()
	}
	item, ok := <-p.items
	if !ok {
		p.finished = true
		p.lastErr = io.EOF
		return nil, io.EOF
	}
	if item.err != nil {
		p.finished = true
		p.lastErr = item.err
		return nil, item.err
	}
	return item.batch, nil
}

// Reset Stops producer, resets underlying dataset. Producer is restarted by the next call of Next.
func (p *PrefetchDataset) Reset() error {
	p.halt()
	p.finished = false
	p.lastErr = nil
	return p.ds.Reset()
}

// Close Stops producer
func (p *PrefetchDataset) Close() error {
	p.halt()
	return nil
}
