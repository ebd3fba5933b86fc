package mapqlift

import (
	"sync"
	"testing"

	"github.com/grailbio/hts/sam"
	"github.com/grailbio/mapqlift/interval"
	"github.com/stretchr/testify/require"
)

var (
	chr1, _   = sam.NewReference("chr1", "", "", 100000, nil, nil)
	chr2, _   = sam.NewReference("chr2", "", "", 100000, nil, nil)
	header, _ = sam.NewHeader(nil, []*sam.Reference{chr1, chr2})
)

func newRecord(name string, ref *sam.Reference, pos int, mapq byte) *sam.Record {
	r := &sam.Record{Name: name, Ref: ref, Pos: pos, MapQ: mapq, MatePos: -1}
	if ref == nil {
		r.Flags = sam.Unmapped
	} else {
		r.Cigar = []sam.CigarOp{sam.NewCigarOp(sam.CigarMatch, 50)}
	}
	return r
}

// recordingWriter is a RecordWriter that keeps a copy of every record.
type recordingWriter struct {
	mu     sync.Mutex
	recs   []sam.Record
	closed int
	// failAfter >= 0 makes Write fail once that many records are stored.
	failAfter int
	failErr   error
	// panicAfter >= 0 makes Write panic once that many records are stored.
	panicAfter int
}

func newRecordingWriter() *recordingWriter {
	return &recordingWriter{failAfter: -1, panicAfter: -1}
}

func (w *recordingWriter) Write(r *sam.Record) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.failAfter >= 0 && len(w.recs) >= w.failAfter {
		return w.failErr
	}
	if w.panicAfter >= 0 && len(w.recs) >= w.panicAfter {
		panic("recordingWriter: synthetic panic")
	}
	w.recs = append(w.recs, *r)
	return nil
}

func (w *recordingWriter) Close() error {
	w.mu.Lock()
	w.closed++
	w.mu.Unlock()
	return nil
}

// records returns pointers to the stored copies.
func (w *recordingWriter) records() []*sam.Record {
	recs := make([]*sam.Record, len(w.recs))
	for i := range w.recs {
		recs[i] = &w.recs[i]
	}
	return recs
}

func testOpts() Opts {
	opts := DefaultOpts
	opts.Parallelism = 4
	opts.BatchSize = 10
	opts.QueueLength = 4
	return opts
}

func mustIndex(t *testing.T, regions ...interval.Region) *interval.Index {
	idx, err := interval.NewIndex(regions)
	require.NoError(t, err)
	return idx
}
