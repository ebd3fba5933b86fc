package mapqlift

import (
	"context"
	"sync"

	"github.com/grailbio/base/errors"
	"github.com/grailbio/base/log"
	gbam "github.com/grailbio/mapqlift/encoding/bam"
	"github.com/grailbio/mapqlift/encoding/bamprovider"
	"github.com/grailbio/mapqlift/interval"
	pkgerrors "github.com/pkg/errors"
)

// Pipeline lifts the MAPQ of one record stream.  A Pipeline is run at most
// once.
type Pipeline struct {
	opts       Opts
	index      *interval.Index
	classifier *classifier
	stats      counters
}

// NewPipeline creates a pipeline that tests records against index.  Only the
// numeric options and Overlap are used; paths serve as labels in errors.
func NewPipeline(index *interval.Index, opts Opts) (*Pipeline, error) {
	if err := opts.Validate(); err != nil {
		return nil, err
	}
	p := &Pipeline{
		opts:       opts,
		index:      index,
		classifier: newClassifier(index, &opts),
	}
	p.stats.interval = opts.ProgressInterval
	return p, nil
}

// Run streams every record of iter through the classifiers into w, preserving
// order.  Run closes iter and w before returning.  On error, the returned
// Stats hold the counters reached so far and the output is incomplete.
func (p *Pipeline) Run(ctx context.Context, iter bamprovider.Iterator, w gbam.RecordWriter) (Stats, error) {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()
	var once errors.Once
	fail := func(err error) {
		once.Set(err)
		cancel()
	}

	work := make(chan *batch, p.opts.QueueLength)
	out := make(chan *batch, p.opts.QueueLength)
	window := make(chan struct{}, maxInFlight(&p.opts))
	reader := &batchReader{
		iter:      iter,
		path:      p.opts.BamFile,
		batchSize: p.opts.BatchSize,
		stats:     &p.stats,
		window:    window,
	}
	writer := newOrderedWriter(w, p.opts.OutputPath, &p.stats)
	writer.window = window

	log.Debug.Printf("starting pipeline: %d classifiers, batch size %d, queue length %d",
		p.opts.Parallelism, p.opts.BatchSize, p.opts.QueueLength)
	var wg sync.WaitGroup
	wg.Add(3)
	go func() {
		defer wg.Done()
		if err := reader.run(ctx, work); err != nil {
			fail(err)
		}
	}()
	go func() {
		defer wg.Done()
		runClassifiers(ctx, p.opts.Parallelism, p.classifier, &p.stats, work, out, fail)
	}()
	go func() {
		defer wg.Done()
		if err := writer.run(ctx, out); err != nil {
			fail(err)
		}
	}()
	wg.Wait()

	stats := p.stats.snapshot()
	stats.Digest = writer.digest.sum()
	stats.MaxHeldBatches = int64(writer.maxPending)
	stats.RegionsFingerprint = p.index.Fingerprint()
	err := once.Err()
	if err == nil {
		err = checkCounts(stats)
	}
	if err != nil {
		log.Error.Printf("%v; %v", err, stats)
		return stats, err
	}
	log.Printf("done: %v", stats)
	return stats, nil
}

// maxInFlight is the number of batches that may be read but not yet written:
// a full work queue, one batch per classifier and a full output queue.  The
// writer's holding area never exceeds maxInFlight-1 batches.
func maxInFlight(opts *Opts) int {
	return 2*opts.QueueLength + opts.Parallelism
}

// checkCounts verifies that no record was lost or duplicated.
func checkCounts(s Stats) error {
	if s.RecordsRead != s.RecordsClassified || s.RecordsRead != s.RecordsWritten {
		return newError(OrderingInvariantViolation, "pipeline", "",
			pkgerrors.Errorf("record counts differ: read %d, classified %d, written %d",
				s.RecordsRead, s.RecordsClassified, s.RecordsWritten))
	}
	return nil
}

// LoadRegions reads the regions named by opts.BedFile and opts.Regions.
func LoadRegions(opts *Opts) ([]interval.Region, error) {
	var regions []interval.Region
	if opts.BedFile != "" {
		var err error
		regions, err = interval.ReadRegionsFromPath(opts.BedFile, interval.ReadOpts{OneBasedInput: opts.OneBasedInput})
		if err != nil {
			if _, ok := pkgerrors.Cause(err).(*interval.ParseError); ok {
				return nil, newError(RegionParseError, "setup", opts.BedFile, err)
			}
			return nil, newError(InputOpenError, "setup", opts.BedFile, err)
		}
	}
	for _, s := range opts.Regions {
		r, err := interval.ParseRegionString(s)
		if err != nil {
			return nil, newError(RegionParseError, "setup", "", err)
		}
		regions = append(regions, r)
	}
	return regions, nil
}

// SetupAndRun opens opts.BamFile, loads the regions, and writes the lifted
// records to opts.OutputPath.  If opts.MetricsFile is set, the final Stats are
// written there as TSV.
func SetupAndRun(ctx context.Context, opts *Opts) (Stats, error) {
	switch {
	case opts.BamFile == "":
		return Stats{}, errors.E(errors.Invalid, "an input BAM file is required")
	case opts.OutputPath == "":
		return Stats{}, errors.E(errors.Invalid, "an output path is required")
	case opts.BedFile == "" && len(opts.Regions) == 0:
		return Stats{}, errors.E(errors.Invalid, "a BED file or at least one region is required")
	}
	if err := opts.Validate(); err != nil {
		return Stats{}, err
	}

	regions, err := LoadRegions(opts)
	if err != nil {
		return Stats{}, err
	}
	index, err := interval.NewIndex(regions)
	if err != nil {
		return Stats{}, newError(RegionParseError, "setup", opts.BedFile, err)
	}
	log.Printf("indexed %d region(s) on %d reference(s), fingerprint %016x",
		index.Len(), len(index.RefNames()), index.Fingerprint())

	provider := bamprovider.NewProvider(opts.BamFile, bamprovider.ProviderOpts{Parallelism: opts.ReadThreads})
	header, err := provider.GetHeader()
	if err != nil {
		provider.Close() // nolint: errcheck
		return Stats{}, newError(InputOpenError, "setup", opts.BamFile, err)
	}
	if missing := bamprovider.MissingRefs(header, index.RefNames()); len(missing) > 0 {
		log.Printf("%s: %d region reference(s) absent from the header, e.g. %s",
			opts.BamFile, len(missing), missing[0])
	}

	pipeline, err := NewPipeline(index, *opts)
	if err != nil {
		provider.Close() // nolint: errcheck
		return Stats{}, err
	}
	w, err := gbam.NewWriter(ctx, opts.OutputPath, header, gbam.WriterOpts{
		Parallelism: opts.WriteThreads,
		Level:       opts.CompressionLevel,
		SAM:         opts.outputFormat() == bamprovider.SAM,
	})
	if err != nil {
		provider.Close() // nolint: errcheck
		return Stats{}, newError(OutputOpenError, "setup", opts.OutputPath, err)
	}

	stats, err := pipeline.Run(ctx, provider.NewIterator(), w)
	if cerr := provider.Close(); cerr != nil && err == nil {
		err = newError(CodecReadError, "reader", opts.BamFile, cerr)
	}
	if err == nil && opts.MetricsFile != "" {
		if merr := WriteMetrics(ctx, opts.MetricsFile, stats); merr != nil {
			err = newError(CodecWriteError, "metrics", opts.MetricsFile, merr)
		}
	}
	return stats, err
}
