package augment

import (
	"math/rand/v2"
	"sync"

	"gorgonia.org/tensor"

	"github.com/YuminosukeSato/voxnet/core/parallel"
	verrors "github.com/YuminosukeSato/voxnet/pkg/errors"
	"github.com/YuminosukeSato/voxnet/volume"
)

// Batch is one mini-batch: a dense (B, H, W, D, C) tensor and 0/1 targets.
type Batch struct {
	X *tensor.Dense
	Y []float64
}

// Generator wraps an augmentation configuration with batching parameters.
//
// Workers sets how many goroutines transform samples within a batch
// (0 or 1 means synchronous). Queue sets how many batches are prefetched
// ahead of the consumer; 0 disables prefetching entirely, which keeps
// batch content a pure function of the seed and is what the tests use.
type Generator struct {
	Config  Config
	Workers int
	Queue   int
}

// Flow binds the generator to a dataset and returns an infinite batch
// stream. The sample order is reshuffled after every full pass over the
// data; a batch never mixes two passes' shuffles, it simply wraps.
func (g *Generator) Flow(ds *volume.Dataset, batchSize int, rng *rand.Rand) (*Flow, error) {
	if err := g.Config.Validate(); err != nil {
		return nil, err
	}
	if ds == nil || ds.Len() == 0 {
		return nil, verrors.Wrap(verrors.ErrEmptyData, "augment.Flow")
	}
	if batchSize <= 0 {
		return nil, verrors.NewValidationError("batch_size", "must be positive", batchSize)
	}

	// Every flow owns an independent rng seeded from the caller's. A
	// prefetching flow samples transforms on its producer goroutine, so
	// sharing one source between flows would race.
	child := rand.New(rand.NewPCG(rng.Uint64(), rng.Uint64()))

	f := &Flow{
		ds:      ds,
		cfg:     g.Config,
		batch:   batchSize,
		workers: g.Workers,
		rng:     child,
		order:   child.Perm(ds.Len()),
	}
	if g.Queue > 0 {
		f.ch = make(chan *Batch, g.Queue)
		f.stop = make(chan struct{})
	}
	return f, nil
}

// Flow is an infinite, restartable sequence of augmented mini-batches.
// Next is not safe for concurrent use; the training loop is the only
// consumer.
type Flow struct {
	ds      *volume.Dataset
	cfg     Config
	batch   int
	workers int

	rng   *rand.Rand
	order []int
	pos   int

	ch       chan *Batch
	stop     chan struct{}
	startPre sync.Once
	stopOnce sync.Once
}

// BatchSize returns the configured mini-batch size.
func (f *Flow) BatchSize() int {
	return f.batch
}

// Next yields the next augmented batch. With prefetching enabled the first
// call starts the producer goroutine.
func (f *Flow) Next() (*Batch, error) {
	if f.ch == nil {
		return f.produce(), nil
	}

	f.startPre.Do(func() {
		go func() {
			for {
				b := f.produce()
				select {
				case f.ch <- b:
				case <-f.stop:
					return
				}
			}
		}()
	})

	select {
	case b := <-f.ch:
		return b, nil
	case <-f.stop:
		return nil, verrors.New("augment: generator stopped")
	}
}

// Stop shuts down the prefetching producer. Safe to call multiple times and
// on synchronous flows.
func (f *Flow) Stop() {
	if f.stop == nil {
		return
	}
	f.stopOnce.Do(func() { close(f.stop) })
}

// produce builds one batch. Runs either on the caller or on the single
// producer goroutine, so rng access stays sequential; only the per-sample
// transform application fans out.
func (f *Flow) produce() *Batch {
	shape := f.ds.Shape
	size := shape.Size()
	src := f.ds.X.Data().([]float64)

	idx := make([]int, f.batch)
	for i := range idx {
		if f.pos == len(f.order) {
			f.order = f.rng.Perm(len(f.order))
			f.pos = 0
		}
		idx[i] = f.order[f.pos]
		f.pos++
	}

	transforms := make([]transform, f.batch)
	identity := f.cfg.Identity()
	if !identity {
		for i := range transforms {
			transforms[i] = f.cfg.sample(f.rng, shape)
		}
	}

	backing := make([]float64, f.batch*size)
	y := make([]float64, f.batch)

	parallel.ParallelizeN(f.batch, f.workers, func(start, end int) {
		for i := start; i < end; i++ {
			sample := src[idx[i]*size : (idx[i]+1)*size]
			dst := backing[i*size : (i+1)*size]
			if identity {
				copy(dst, sample)
			} else {
				apply(dst, sample, shape, transforms[i])
			}
		}
	})
	for i, j := range idx {
		if f.ds.Y[j] {
			y[i] = 1
		}
	}

	x := tensor.New(tensor.WithShape(f.batch, shape.H, shape.W, shape.D, shape.C), tensor.WithBacking(backing))
	return &Batch{X: x, Y: y}
}
