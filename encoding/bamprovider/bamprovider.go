package bamprovider

import (
	"io"
	"sync"

	"github.com/grailbio/base/errors"
	"github.com/grailbio/base/file"
	"github.com/grailbio/base/vcontext"
	"github.com/grailbio/hts/bam"
	"github.com/grailbio/hts/sam"
	"v.io/x/lib/vlog"
)

// BAMProvider implements Provider for BAM and SAM files.  The path may be any
// URL supported by grailbio/base/file; by default that is the local
// filesystem.
type BAMProvider struct {
	// Path of the *.bam or *.sam file. Must be nonempty.
	Path string
	// SAM causes the file to be parsed as SAM text instead of BAM.
	SAM bool
	// Parallelism is the number of BAM decompression goroutines.
	Parallelism int
	err         errors.Once

	mu      sync.Mutex
	nActive int
	header  *sam.Header
}

// recordReader is implemented by both hts sam.Reader and hts bam.Reader.
type recordReader interface {
	Header() *sam.Header
	Read() (*sam.Record, error)
}

type bamIterator struct {
	provider *BAMProvider
	in       file.File
	reader   recordReader
	bamr     *bam.Reader // non-nil iff reader is a BAM reader.

	active bool
	err    error
	next   *sam.Record
}

// openReader opens b.Path and creates a record reader positioned at the first
// record.
func (b *BAMProvider) openReader() (file.File, recordReader, *bam.Reader, error) {
	ctx := vcontext.Background()
	in, err := file.Open(ctx, b.Path)
	if err != nil {
		return nil, nil, nil, err
	}
	if b.SAM {
		samr, err := sam.NewReader(in.Reader(ctx))
		if err != nil {
			in.Close(ctx) // nolint: errcheck
			return nil, nil, nil, err
		}
		return in, samr, nil, nil
	}
	parallelism := b.Parallelism
	if parallelism <= 0 {
		parallelism = 1
	}
	bamr, err := bam.NewReader(in.Reader(ctx), parallelism)
	if err != nil {
		in.Close(ctx) // nolint: errcheck
		return nil, nil, nil, err
	}
	return in, bamr, bamr, nil
}

// GetHeader implements the Provider interface.
func (b *BAMProvider) GetHeader() (*sam.Header, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.header != nil {
		return b.header, nil
	}
	in, reader, bamr, err := b.openReader()
	if err != nil {
		b.err.Set(err)
		return nil, err
	}
	b.header = reader.Header()
	if bamr != nil {
		bamr.Close() // nolint: errcheck
	}
	in.Close(vcontext.Background()) // nolint: errcheck
	return b.header, nil
}

// Close implements the Provider interface.
func (b *BAMProvider) Close() error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.nActive > 0 {
		vlog.Fatalf("%d iterators still active for %+v", b.nActive, b.Path)
	}
	return b.err.Err()
}

// NewIterator implements the Provider interface.
func (b *BAMProvider) NewIterator() Iterator {
	b.mu.Lock()
	b.nActive++
	b.mu.Unlock()
	iter := &bamIterator{provider: b, active: true}
	iter.in, iter.reader, iter.bamr, iter.err = b.openReader()
	return iter
}

func (i *bamIterator) Scan() bool {
	if !i.active {
		vlog.Fatal("Reusing iterator")
	}
	if i.err != nil {
		return false
	}
	i.next, i.err = i.reader.Read()
	return i.err == nil
}

func (i *bamIterator) Record() *sam.Record {
	return i.next
}

// Err implements the Iterator interface.
func (i *bamIterator) Err() error {
	if i.err == io.EOF {
		return nil
	}
	return i.err
}

// Close implements the Iterator interface.
func (i *bamIterator) Close() error {
	if !i.active {
		vlog.Fatal(i.provider.Path, ": iterator closed twice")
	}
	i.active = false
	if i.bamr != nil {
		if err := i.bamr.Close(); err != nil && i.err == nil {
			i.err = err
		}
		i.bamr = nil
	}
	if i.in != nil {
		if err := i.in.Close(vcontext.Background()); err != nil && i.err == nil {
			i.err = err
		}
		i.in = nil
	}
	err := i.Err()
	b := i.provider
	b.err.Set(err)
	b.mu.Lock()
	b.nActive--
	if b.nActive < 0 {
		vlog.Fatalf("Negative active count for %+v", b.Path)
	}
	b.mu.Unlock()
	return err
}
