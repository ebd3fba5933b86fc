package mapqlift

import (
	"context"
	"sync/atomic"

	"github.com/grailbio/base/log"
	"github.com/grailbio/base/traverse"
	"github.com/grailbio/hts/sam"
	gbam "github.com/grailbio/mapqlift/encoding/bam"
	"github.com/grailbio/mapqlift/interval"
)

// classifier decides, per record, whether the MAPQ should be raised.  It is
// read-only after construction and shared by all workers.
type classifier struct {
	index   *interval.Index
	mode    OverlapMode
	minMapQ byte
	newMapQ byte
}

func newClassifier(index *interval.Index, opts *Opts) *classifier {
	return &classifier{
		index:   index,
		mode:    opts.Overlap,
		minMapQ: byte(opts.MinMapQ),
		newMapQ: byte(opts.NewMapQ),
	}
}

// inRegion reports whether r overlaps some region.  Unmapped records never
// do.
func (c *classifier) inRegion(r *sam.Record) bool {
	if !gbam.IsMapped(r) {
		return false
	}
	if c.mode == OverlapSpan {
		start, end := gbam.AlignedSpan(r)
		return c.index.Overlaps(r.Ref.Name(), start, end)
	}
	return c.index.Contains(r.Ref.Name(), r.Pos)
}

// classify updates r in place and reports whether its MAPQ was changed.
func (c *classifier) classify(r *sam.Record) bool {
	if r.MapQ >= c.minMapQ || !c.inRegion(r) {
		return false
	}
	changed := r.MapQ != c.newMapQ
	r.MapQ = c.newMapQ
	return changed
}

func (c *classifier) classifyBatch(b *batch) (raised int64) {
	for _, r := range b.recs {
		if c.classify(r) {
			raised++
		}
	}
	return raised
}

// runClassifiers starts n workers that move batches from work to out.  out is
// closed once every worker has returned, so the writer sees end of stream
// exactly once.  A failing worker reports through fail before returning, which
// unblocks its peers; fail keeps only the first error.
func runClassifiers(ctx context.Context, n int, c *classifier, stats *counters,
	work <-chan *batch, out chan<- *batch, fail func(error)) {
	defer close(out)
	err := traverse.Each(n, func(worker int) error {
		err := c.work(ctx, worker, stats, work, out)
		if err != nil {
			fail(err)
		}
		return err
	})
	if err != nil {
		fail(err)
	}
}

func (c *classifier) work(ctx context.Context, worker int, stats *counters,
	work <-chan *batch, out chan<- *batch) (err error) {
	defer recoverStage("classifier", &err)
	var nBatches int
	for {
		b, err := pop(ctx, work)
		if err != nil {
			return cancelled("classifier", err)
		}
		if b == nil {
			log.Debug.Printf("classifier %d: end of stream after %d batches", worker, nBatches)
			return nil
		}
		atomic.AddInt64(&stats.raised, c.classifyBatch(b))
		atomic.AddInt64(&stats.classified, int64(len(b.recs)))
		if err := push(ctx, out, b); err != nil {
			b.free()
			return cancelled("classifier", err)
		}
		nBatches++
	}
}
