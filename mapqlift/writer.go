package mapqlift

import (
	"context"
	"fmt"
	"sort"

	"github.com/grailbio/base/log"
	"github.com/grailbio/hts/sam"
	gbam "github.com/grailbio/mapqlift/encoding/bam"
	"github.com/pkg/errors"
)

// orderedWriter is the consumer stage.  It writes batches strictly in
// sequence order, holding batches that arrive early until their turn.
type orderedWriter struct {
	w      gbam.RecordWriter
	path   string
	stats  *counters
	digest *streamDigest
	// window receives one token back per batch written; see batchReader.
	window <-chan struct{}

	// next is the sequence id of the next batch to write.
	next uint64
	// pending holds batches with seq > next.
	pending map[uint64]*batch
	// maxPending is the high-water mark of len(pending).
	maxPending int
}

func newOrderedWriter(w gbam.RecordWriter, path string, stats *counters) *orderedWriter {
	return &orderedWriter{
		w:       w,
		path:    path,
		stats:   stats,
		digest:  newStreamDigest(),
		pending: make(map[uint64]*batch),
	}
}

// run consumes out until it is closed, then closes the RecordWriter.  The
// RecordWriter is closed on error too.
func (ow *orderedWriter) run(ctx context.Context, out <-chan *batch) (err error) {
	defer func() {
		if cerr := ow.w.Close(); cerr != nil && err == nil {
			err = newError(CodecWriteError, "writer", ow.path, cerr)
		}
	}()
	defer func() {
		if err != nil {
			ow.discard()
		}
	}()
	defer recoverStage("writer", &err)
	for {
		b, err := pop(ctx, out)
		if err != nil {
			return cancelled("writer", err)
		}
		if b == nil {
			break
		}
		if err := ow.accept(b); err != nil {
			return err
		}
	}
	if len(ow.pending) > 0 {
		return newError(OrderingInvariantViolation, "writer", "",
			errors.Errorf("end of stream with %d batch(es) held, next expected sequence id %d, held %s",
				len(ow.pending), ow.next, ow.pendingIDs()))
	}
	log.Debug.Printf("writer: end of stream after %d batches, at most %d held", ow.next, ow.maxPending)
	return nil
}

// accept takes ownership of b and writes every batch that has become
// contiguous.
func (ow *orderedWriter) accept(b *batch) error {
	if b.seq < ow.next {
		return newError(OrderingInvariantViolation, "writer", "",
			errors.Errorf("sequence id %d received after it was written", b.seq))
	}
	if _, ok := ow.pending[b.seq]; ok {
		return newError(OrderingInvariantViolation, "writer", "",
			errors.Errorf("duplicate sequence id %d", b.seq))
	}
	if b.seq != ow.next {
		ow.pending[b.seq] = b
		if len(ow.pending) > ow.maxPending {
			ow.maxPending = len(ow.pending)
		}
		return nil
	}
	for {
		if err := ow.write(b); err != nil {
			return err
		}
		ow.next++
		var ok bool
		if b, ok = ow.pending[ow.next]; !ok {
			return nil
		}
		delete(ow.pending, ow.next)
	}
}

func (ow *orderedWriter) write(b *batch) error {
	for i, r := range b.recs {
		if err := ow.w.Write(r); err != nil {
			b.recs = b.recs[i:]
			b.free()
			return newError(CodecWriteError, "writer", ow.path, err)
		}
		ow.digest.add(r)
		sam.PutInFreePool(r)
	}
	ow.stats.add(&ow.stats.written, int64(len(b.recs)), "written")
	b.recs = nil
	if ow.window != nil {
		<-ow.window
	}
	return nil
}

// discard releases the held batches after a failure.
func (ow *orderedWriter) discard() {
	for seq, b := range ow.pending {
		b.free()
		delete(ow.pending, seq)
	}
}

func (ow *orderedWriter) pendingIDs() string {
	ids := make([]uint64, 0, len(ow.pending))
	for seq := range ow.pending {
		ids = append(ids, seq)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	const maxShown = 8
	if len(ids) > maxShown {
		return fmt.Sprintf("%v...", ids[:maxShown])
	}
	return fmt.Sprint(ids)
}
