package bam

import (
	"context"

	"github.com/grailbio/base/file"
	"github.com/grailbio/hts/bam"
	"github.com/grailbio/hts/sam"
	"github.com/klauspost/compress/gzip"
	"github.com/pkg/errors"
	"v.io/x/lib/vlog"
)

// DefaultWriterParallelism is the number of compression goroutines used when
// WriterOpts.Parallelism is unset.
const DefaultWriterParallelism = 4

// WriterOpts controls the output format of a Writer.
type WriterOpts struct {
	// Parallelism is the number of goroutines compressing BGZF blocks.
	// Values <= 0 select DefaultWriterParallelism.
	Parallelism int
	// Level is the gzip compression level, from gzip.HuffmanOnly to
	// gzip.BestCompression.  Note that 0 means no compression.
	Level int
	// SAM selects SAM text output instead of BAM.
	SAM bool
}

// RecordWriter is the subset of Writer used by pipeline stages.  Tests supply
// fakes.
type RecordWriter interface {
	Write(r *sam.Record) error
	Close() error
}

// recordWriter is implemented by both hts bam.Writer and sam.Writer.
type recordWriter interface {
	Write(r *sam.Record) error
}

// Writer writes records to a BAM (or SAM) file.  The file may be any path
// supported by grailbio/base/file.  Thread compatible.
type Writer struct {
	ctx  context.Context
	path string
	out  file.File
	w    recordWriter
	bamw *bam.Writer // non-nil iff w is a BAM writer.
}

// NewWriter creates path and writes header to it.  The header is emitted
// unchanged.  The format is chosen by opts.SAM only, not by the path.
func NewWriter(ctx context.Context, path string, header *sam.Header, opts WriterOpts) (*Writer, error) {
	if opts.Parallelism <= 0 {
		opts.Parallelism = DefaultWriterParallelism
	}
	if opts.Level < gzip.HuffmanOnly || opts.Level > gzip.BestCompression {
		return nil, errors.Errorf("bam.NewWriter %s: invalid compression level %d", path, opts.Level)
	}
	out, err := file.Create(ctx, path)
	if err != nil {
		return nil, errors.Wrapf(err, "bam.NewWriter %s", path)
	}
	w := &Writer{ctx: ctx, path: path, out: out}
	if opts.SAM {
		w.w, err = sam.NewWriter(out.Writer(ctx), header, sam.FlagDecimal)
	} else {
		w.bamw, err = bam.NewWriterLevel(out.Writer(ctx), header, opts.Level, opts.Parallelism)
		w.w = w.bamw
	}
	if err != nil {
		out.Close(ctx) // nolint: errcheck
		return nil, errors.Wrapf(err, "bam.NewWriter %s: write header", path)
	}
	vlog.VI(1).Infof("%s: opened for writing, %+v", path, opts)
	return w, nil
}

// Write appends r to the file.
func (w *Writer) Write(r *sam.Record) error {
	return w.w.Write(r)
}

// Close flushes the pending blocks, writes the BGZF terminator and closes the
// file.  Close must be called exactly once; the file is incomplete until it
// returns without error.
func (w *Writer) Close() error {
	var err error
	if w.bamw != nil {
		err = w.bamw.Close()
	}
	if e := w.out.Close(w.ctx); e != nil && err == nil {
		err = e
	}
	if err != nil {
		return errors.Wrapf(err, "bam.Writer.Close %s", w.path)
	}
	return nil
}
