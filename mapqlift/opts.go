package mapqlift

import (
	"fmt"
	"runtime"

	"github.com/grailbio/base/errors"
	gbam "github.com/grailbio/mapqlift/encoding/bam"
	"github.com/grailbio/mapqlift/encoding/bamprovider"
	"github.com/klauspost/compress/gzip"
)

// OverlapMode selects how a record is tested against the regions.
type OverlapMode int

const (
	// OverlapStart tests only the alignment start position.
	OverlapStart OverlapMode = iota
	// OverlapSpan tests the whole aligned reference span.
	OverlapSpan
)

// ParseOverlapMode converts "start" or "span" to an OverlapMode.
func ParseOverlapMode(s string) (OverlapMode, error) {
	switch s {
	case "start", "":
		return OverlapStart, nil
	case "span":
		return OverlapSpan, nil
	}
	return OverlapStart, errors.E(errors.Invalid, "unknown overlap mode", s)
}

func (m OverlapMode) String() string {
	switch m {
	case OverlapStart:
		return "start"
	case OverlapSpan:
		return "span"
	}
	return "unknown"
}

// Opts holds the options for SetupAndRun and Pipeline.
type Opts struct {
	// Commandline options.
	BamFile    string
	BedFile    string
	Regions    []string
	OutputPath string
	// OutputFormat is BAM or SAM.  Unknown picks the format from the
	// OutputPath suffix, with BAM as the fallback.
	OutputFormat     bamprovider.FileType
	MetricsFile      string
	OneBasedInput    bool
	Overlap          OverlapMode
	MinMapQ          int
	NewMapQ          int
	Parallelism      int
	BatchSize        int
	QueueLength      int
	ReadThreads      int
	WriteThreads     int
	CompressionLevel int
	// ProgressInterval is the number of records between progress lines.  Zero
	// disables progress logging.
	ProgressInterval int64
}

// DefaultOpts holds the default values of the commandline options.
var DefaultOpts = Opts{
	Overlap:          OverlapStart,
	MinMapQ:          30,
	NewMapQ:          60,
	Parallelism:      runtime.NumCPU(),
	BatchSize:        1000,
	QueueLength:      10000,
	ReadThreads:      1,
	WriteThreads:     gbam.DefaultWriterParallelism,
	CompressionLevel: gzip.DefaultCompression,
	ProgressInterval: 1000000,
}

// Validate checks the numeric options.  It does not look at paths.
func (o *Opts) Validate() error {
	switch {
	case o.MinMapQ < 0 || o.MinMapQ > 255:
		return errors.E(errors.Invalid, fmt.Sprintf("min-mapq must be in [0, 255], got %d", o.MinMapQ))
	case o.NewMapQ < 0 || o.NewMapQ > 255:
		return errors.E(errors.Invalid, fmt.Sprintf("new-mapq must be in [0, 255], got %d", o.NewMapQ))
	case o.Parallelism <= 0:
		return errors.E(errors.Invalid, fmt.Sprintf("parallelism must be positive, got %d", o.Parallelism))
	case o.BatchSize <= 0:
		return errors.E(errors.Invalid, fmt.Sprintf("batch-size must be positive, got %d", o.BatchSize))
	case o.QueueLength <= 0:
		return errors.E(errors.Invalid, fmt.Sprintf("queue-length must be positive, got %d", o.QueueLength))
	case o.ReadThreads <= 0:
		return errors.E(errors.Invalid, fmt.Sprintf("read-threads must be positive, got %d", o.ReadThreads))
	case o.WriteThreads <= 0:
		return errors.E(errors.Invalid, fmt.Sprintf("compression-threads must be positive, got %d", o.WriteThreads))
	case o.CompressionLevel < gzip.HuffmanOnly || o.CompressionLevel > gzip.BestCompression:
		return errors.E(errors.Invalid, fmt.Sprintf("compression-level must be in [-2, 9], got %d", o.CompressionLevel))
	case o.ProgressInterval < 0:
		return errors.E(errors.Invalid, fmt.Sprintf("progress-interval must not be negative, got %d", o.ProgressInterval))
	case o.Overlap != OverlapStart && o.Overlap != OverlapSpan:
		return errors.E(errors.Invalid, fmt.Sprintf("unknown overlap mode %d", o.Overlap))
	case o.OutputFormat != bamprovider.Unknown && o.OutputFormat != bamprovider.BAM && o.OutputFormat != bamprovider.SAM:
		return errors.E(errors.Invalid, fmt.Sprintf("unknown output format %d", o.OutputFormat))
	}
	return nil
}

// outputFormat resolves OutputFormat against OutputPath.
func (o *Opts) outputFormat() bamprovider.FileType {
	if o.OutputFormat != bamprovider.Unknown {
		return o.OutputFormat
	}
	if bamprovider.GuessFileType(o.OutputPath) == bamprovider.SAM {
		return bamprovider.SAM
	}
	return bamprovider.BAM
}
