package mapqlift

import (
	"context"
	"sync/atomic"

	"github.com/grailbio/base/log"
	"github.com/grailbio/hts/sam"
	"github.com/grailbio/mapqlift/encoding/bamprovider"
)

// batch is the unit of transfer between stages.  A batch is owned by exactly
// one stage at a time.
type batch struct {
	seq  uint64
	recs []*sam.Record
}

// free returns the records to the sam free pool.  Used only on abort.
func (b *batch) free() {
	for _, r := range b.recs {
		sam.PutInFreePool(r)
	}
	b.recs = nil
}

// push sends b on ch unless ctx is cancelled first.
func push(ctx context.Context, ch chan<- *batch, b *batch) error {
	select {
	case ch <- b:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// pop receives from ch unless ctx is cancelled first.  It returns (nil, nil)
// at end of stream.
func pop(ctx context.Context, ch <-chan *batch) (*batch, error) {
	select {
	case b := <-ch:
		return b, nil
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// batchReader is the producer stage.
type batchReader struct {
	iter      bamprovider.Iterator
	path      string
	batchSize int
	stats     *counters
	// window holds one token per batch between the reader and the writer.
	// The reader blocks while it is full, which bounds how far sequence ids
	// can run ahead of the writer.  Nil means no bound.
	window chan<- struct{}
}

// run pulls records from the iterator into batches numbered 0, 1, 2, ... and
// pushes them on work.  It closes work on return, in all cases, and closes the
// iterator.
func (r *batchReader) run(ctx context.Context, work chan<- *batch) (err error) {
	defer close(work)
	defer func() {
		if cerr := r.iter.Close(); cerr != nil && err == nil {
			err = newError(CodecReadError, "reader", r.path, cerr)
		}
	}()
	defer recoverStage("reader", &err)

	var seq uint64
	b := &batch{seq: seq, recs: make([]*sam.Record, 0, r.batchSize)}
	flush := func() error {
		if r.window != nil {
			select {
			case r.window <- struct{}{}:
			case <-ctx.Done():
				b.free()
				return cancelled("reader", ctx.Err())
			}
		}
		n := int64(len(b.recs))
		r.stats.add(&r.stats.read, n, "read")
		atomic.AddInt64(&r.stats.batches, 1)
		if err := push(ctx, work, b); err != nil {
			b.free()
			return cancelled("reader", err)
		}
		seq++
		b = &batch{seq: seq, recs: make([]*sam.Record, 0, r.batchSize)}
		return nil
	}
	for r.iter.Scan() {
		b.recs = append(b.recs, r.iter.Record())
		if len(b.recs) >= r.batchSize {
			if err := flush(); err != nil {
				return err
			}
		}
	}
	if err := r.iter.Err(); err != nil {
		b.free()
		return newError(CodecReadError, "reader", r.path, err)
	}
	if len(b.recs) > 0 {
		if err := flush(); err != nil {
			return err
		}
	}
	log.Debug.Printf("reader: end of stream after %d batches", seq)
	return nil
}
