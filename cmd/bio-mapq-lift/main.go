package main

/*
  bio-mapq-lift raises the MAPQ of low-confidence alignments that fall inside
  a set of regions, leaving every other field and the record order unchanged.

    bio-mapq-lift -b in.bam -d regions.bed -o out.bam

  For more information, see github.com/grailbio/mapqlift/mapqlift/doc.go
*/

import (
	"flag"
	"fmt"
	"runtime"
	"strings"

	"github.com/grailbio/base/grail"
	"github.com/grailbio/base/log"
	"github.com/grailbio/base/vcontext"
	gbam "github.com/grailbio/mapqlift/encoding/bam"
	"github.com/grailbio/mapqlift/encoding/bamprovider"
	"github.com/grailbio/mapqlift/mapqlift"
	"github.com/klauspost/compress/gzip"
)

// regionList collects repeated -region flags.
type regionList []string

func (r *regionList) String() string { return strings.Join(*r, ",") }

func (r *regionList) Set(v string) error {
	*r = append(*r, v)
	return nil
}

var (
	bamFile            string
	bedFile            string
	outputPath         string
	regions            regionList
	format             = flag.String("format", "", "Output format. Value is either 'bam' or 'sam'; empty picks SAM for a .sam output path and BAM otherwise.")
	metricsFile        = flag.String("metrics", "", "Output metrics TSV file")
	oneBased           = flag.Bool("one-based", false, "Interpret BED coordinates as one-based [start, end]")
	overlap            = flag.String("overlap", "start", "Overlap test, either 'start' (alignment start inside a region) or 'span' (any aligned base inside a region)")
	minMapQ            = flag.Int("min-mapq", 30, "Records with MAPQ below this value are candidates for lifting")
	newMapQ            = flag.Int("new-mapq", 60, "MAPQ assigned to lifted records")
	parallelism        = flag.Int("parallelism", runtime.NumCPU(), "Number of classifier goroutines")
	batchSize          = flag.Int("batch-size", 1000, "Records per batch")
	queueLength        = flag.Int("queue-length", 10000, "Capacity, in batches, of each pipeline queue")
	readThreads        = flag.Int("read-threads", 1, "Number of BAM decompression goroutines")
	compressionThreads = flag.Int("compression-threads", gbam.DefaultWriterParallelism, "Number of BAM compression goroutines")
	compressionLevel   = flag.Int("compression-level", gzip.DefaultCompression, "gzip compression level of the output, -2 to 9")
	progressInterval   = flag.Int64("progress-interval", 1000000, "Log progress every this many records; 0 disables")
)

func init() {
	flag.StringVar(&bamFile, "bam", "", "Input BAM or SAM file")
	flag.StringVar(&bamFile, "b", "", "Shorthand for -bam")
	flag.StringVar(&bedFile, "bed", "", "Input BED file, optionally gzipped")
	flag.StringVar(&bedFile, "d", "", "Shorthand for -bed")
	flag.StringVar(&outputPath, "output", "", "Output BAM file; overwritten if it exists")
	flag.StringVar(&outputPath, "o", "", "Shorthand for -output")
	flag.Var(&regions, "region", "Additional region chr:start-end (1-based, inclusive); may be repeated")
}

// optsFromFlags builds the pipeline options from the parsed flags.
func optsFromFlags() (mapqlift.Opts, error) {
	opts := mapqlift.DefaultOpts
	if flag.NArg() > 0 {
		a := flag.Args()
		return opts, fmt.Errorf("unparsed flags, please check flag syntax: '%s'", strings.Join(a[len(a)-flag.NArg():], " "))
	}
	mode, err := mapqlift.ParseOverlapMode(*overlap)
	if err != nil {
		return opts, err
	}
	if *format != "" {
		if opts.OutputFormat = bamprovider.ParseFileType(*format); opts.OutputFormat == bamprovider.Unknown {
			return opts, fmt.Errorf("unknown output format '%s'", *format)
		}
	}
	opts.BamFile = bamFile
	opts.BedFile = bedFile
	opts.Regions = regions
	opts.OutputPath = outputPath
	opts.MetricsFile = *metricsFile
	opts.OneBasedInput = *oneBased
	opts.Overlap = mode
	opts.MinMapQ = *minMapQ
	opts.NewMapQ = *newMapQ
	opts.Parallelism = *parallelism
	opts.BatchSize = *batchSize
	opts.QueueLength = *queueLength
	opts.ReadThreads = *readThreads
	opts.WriteThreads = *compressionThreads
	opts.CompressionLevel = *compressionLevel
	opts.ProgressInterval = *progressInterval
	return opts, opts.Validate()
}

func main() {
	shutdown := grail.Init()
	defer shutdown()

	opts, err := optsFromFlags()
	if err != nil {
		log.Fatalf("%v", err)
	}
	ctx := vcontext.Background()
	stats, err := mapqlift.SetupAndRun(ctx, &opts)
	if err != nil {
		log.Fatalf("%v", err)
	}
	log.Printf("%s: records_read == records_classified == records_written == %d, %d MAPQ value(s) raised",
		opts.OutputPath, stats.RecordsWritten, stats.RecordsRaised)
	log.Debug.Printf("exiting")
}
