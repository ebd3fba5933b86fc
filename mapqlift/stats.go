package mapqlift

import (
	"context"
	"encoding/binary"
	"fmt"
	"hash"
	"sync/atomic"

	"blainsmith.com/go/seahash"
	"github.com/grailbio/base/errors"
	"github.com/grailbio/base/file"
	"github.com/grailbio/base/log"
	"github.com/grailbio/base/tsv"
	gunsafe "github.com/grailbio/base/unsafe"
	"github.com/grailbio/hts/sam"
)

// Stats summarizes a pipeline run.
type Stats struct {
	// RecordsRead is the number of records pulled from the input.
	RecordsRead int64
	// RecordsClassified is the number of records tested by classifiers.
	RecordsClassified int64
	// RecordsWritten is the number of records handed to the output codec.
	RecordsWritten int64
	// RecordsRaised is the number of records whose MAPQ was changed.
	RecordsRaised int64
	// Batches is the number of batches the reader produced.
	Batches int64
	// Digest is a hash of the written record stream, in output order.  Two
	// runs produce the same digest iff they wrote the same (ref, pos, flags,
	// mapq, name) sequence, barring collisions.
	Digest uint64
	// RegionsFingerprint identifies the region set; see
	// interval.Index.Fingerprint.
	RegionsFingerprint uint64
	// MaxHeldBatches is the largest number of batches the writer held
	// waiting for an earlier sequence id.
	MaxHeldBatches int64
}

func (s Stats) String() string {
	return fmt.Sprintf("read %d, classified %d, written %d, raised %d, batches %d, digest %016x, regions %016x",
		s.RecordsRead, s.RecordsClassified, s.RecordsWritten, s.RecordsRaised, s.Batches, s.Digest, s.RegionsFingerprint)
}

// counters are updated by the pipeline stages and may be read at any time.
type counters struct {
	read, classified, written, raised, batches int64
	interval                                   int64
}

// add atomically adds n to *c and logs a progress line each time the total
// crosses a multiple of the progress interval.
func (c *counters) add(p *int64, n int64, what string) {
	total := atomic.AddInt64(p, n)
	if c.interval > 0 && total/c.interval != (total-n)/c.interval {
		log.Printf("%d records %s", total/c.interval*c.interval, what)
	}
}

func (c *counters) snapshot() Stats {
	return Stats{
		RecordsRead:       atomic.LoadInt64(&c.read),
		RecordsClassified: atomic.LoadInt64(&c.classified),
		RecordsWritten:    atomic.LoadInt64(&c.written),
		RecordsRaised:     atomic.LoadInt64(&c.raised),
		Batches:           atomic.LoadInt64(&c.batches),
	}
}

// streamDigest hashes the identifying fields of records in the order they are
// added.
type streamDigest struct {
	h   hash.Hash64
	buf [17]byte
}

func newStreamDigest() *streamDigest {
	return &streamDigest{h: seahash.New()}
}

func (d *streamDigest) add(r *sam.Record) {
	binary.LittleEndian.PutUint32(d.buf[0:4], uint32(r.Ref.ID()))
	binary.LittleEndian.PutUint64(d.buf[4:12], uint64(r.Pos))
	binary.LittleEndian.PutUint32(d.buf[12:16], uint32(r.Flags))
	d.buf[16] = r.MapQ
	d.h.Write(d.buf[:])                      // nolint: errcheck
	d.h.Write(gunsafe.StringToBytes(r.Name)) // nolint: errcheck
	d.h.Write(nameTerminator)                // nolint: errcheck
}

var nameTerminator = []byte{0}

func (d *streamDigest) sum() uint64 { return d.h.Sum64() }

// WriteMetrics writes stats as a two-line TSV file at path.
func WriteMetrics(ctx context.Context, path string, stats Stats) (err error) {
	out, err := file.Create(ctx, path)
	if err != nil {
		return errors.E(err, "couldn't create metrics file:", path)
	}
	defer file.CloseAndReport(ctx, out, &err)
	w := tsv.NewWriter(out.Writer(ctx))
	for _, col := range []string{"RECORDS_READ", "RECORDS_CLASSIFIED", "RECORDS_WRITTEN", "MAPQ_RAISED", "BATCHES", "DIGEST", "REGIONS_FINGERPRINT"} {
		w.WriteString(col)
	}
	if err = w.EndLine(); err != nil {
		return errors.E(err, "error writing to metrics file:", path)
	}
	w.WriteInt64(stats.RecordsRead)
	w.WriteInt64(stats.RecordsClassified)
	w.WriteInt64(stats.RecordsWritten)
	w.WriteInt64(stats.RecordsRaised)
	w.WriteInt64(stats.Batches)
	w.WriteString(fmt.Sprintf("%016x", stats.Digest))
	w.WriteString(fmt.Sprintf("%016x", stats.RegionsFingerprint))
	if err = w.EndLine(); err != nil {
		return errors.E(err, "error writing to metrics file:", path)
	}
	if err = w.Flush(); err != nil {
		return errors.E(err, "error writing to metrics file:", path)
	}
	return nil
}
