package interval

import (
	"bufio"
	"bytes"
	"fmt"
	"io"
	"math"
	"strconv"
	"strings"

	"github.com/grailbio/base/file"
	"github.com/grailbio/base/fileio"
	"github.com/grailbio/base/log"
	gunsafe "github.com/grailbio/base/unsafe"
	"github.com/grailbio/base/vcontext"
	"github.com/klauspost/compress/gzip"
	"github.com/pkg/errors"
)

// Region is a genomic interval [Start, End) on reference RefName, with
// 0-based coordinates.
type Region struct {
	RefName string
	Start   int
	End     int
}

// ReadOpts defines behavior of this package's region-loading functions.
type ReadOpts struct {
	// OneBasedInput interprets the BED interval boundaries as one-based [start,
	// end] instead of the usual zero-based [start, end).
	OneBasedInput bool
}

// ParseError reports a malformed line in a region file.
type ParseError struct {
	// Line is the 1-based line number.
	Line int
	Err  error
}

func (e *ParseError) Error() string {
	return fmt.Sprintf("line %d: %v", e.Line, e.Err)
}

// getTokens identifies up to the first len(tokens) tokens from curLine,
// returning the number of tokens saved.  Any (group of) characters <= ' ' is
// treated as a delimiter.
func getTokens(tokens [][]byte, curLine []byte) int {
	posEnd := 0
	lineLen := len(curLine)
	for tokenIdx := range tokens {
		pos := posEnd
		for ; pos != lineLen; pos++ {
			if curLine[pos] > ' ' {
				break
			}
		}
		if pos == lineLen {
			return tokenIdx
		}
		posEnd = pos
		for ; posEnd != lineLen; posEnd++ {
			if curLine[posEnd] <= ' ' {
				break
			}
		}
		tokens[tokenIdx] = curLine[pos:posEnd]
	}
	return len(tokens)
}

var (
	trackPrefix   = []byte("track")
	browserPrefix = []byte("browser")
)

// isHeaderLine reports whether curLine is a BED comment or a UCSC
// track/browser line.
func isHeaderLine(curLine []byte) bool {
	line := bytes.TrimLeft(curLine, " \t")
	if len(line) == 0 {
		return false
	}
	if line[0] == '#' {
		return true
	}
	for _, prefix := range [][]byte{trackPrefix, browserPrefix} {
		if bytes.HasPrefix(line, prefix) && (len(line) == len(prefix) || line[len(prefix)] <= ' ') {
			return true
		}
	}
	return false
}

// parseCoord parses an unsigned coordinate.
func parseCoord(token []byte, lineIdx int, what string) (uint64, error) {
	if bytes.HasPrefix(token, []byte("-")) {
		return 0, &ParseError{lineIdx, errors.Errorf("negative %s coordinate %s", what, token)}
	}
	v, err := strconv.ParseUint(gunsafe.BytesToString(token), 10, 64)
	if err != nil {
		return 0, &ParseError{lineIdx, errors.Wrapf(err, "invalid %s coordinate %q", what, token)}
	}
	return v, nil
}

// clampCoord limits v to the int32 range of alignment positions.
func clampCoord(v uint64) int {
	if v > math.MaxInt32 {
		return math.MaxInt32
	}
	return int(v)
}

// ReadRegions loads regions from a BED-like stream.  Only the first three
// columns (chrom, start, end) are used; any further columns are ignored.
// Blank lines, comments and track/browser lines are skipped.  Any other line
// with fewer than three columns, or with an invalid coordinate pair, is an
// error.  Regions are returned in file order; they need not be sorted, and
// overlapping or duplicate regions are kept.
func ReadRegions(reader io.Reader, opts ReadOpts) ([]Region, error) {
	scanner := bufio.NewScanner(reader)
	scanner.Buffer(make([]byte, 64<<10), 16<<20)

	var startSubtract uint64
	if opts.OneBasedInput {
		startSubtract++
	}

	var (
		tokens   [3][]byte
		regions  []Region
		lineIdx  int
		totBases int64
	)
	for scanner.Scan() {
		lineIdx++
		curLine := scanner.Bytes()
		nToken := getTokens(tokens[:], curLine)
		if nToken == 0 || isHeaderLine(curLine) {
			continue
		}
		if nToken != 3 {
			return nil, &ParseError{lineIdx, errors.Errorf("expected at least 3 columns, found %d", nToken)}
		}
		start, err := parseCoord(tokens[1], lineIdx, "start")
		if err != nil {
			return nil, err
		}
		if start < startSubtract {
			return nil, &ParseError{lineIdx, errors.Errorf("negative start coordinate %s", tokens[1])}
		}
		start -= startSubtract
		end, err := parseCoord(tokens[2], lineIdx, "end")
		if err != nil {
			return nil, err
		}
		if end < start {
			return nil, &ParseError{lineIdx, errors.Errorf("invalid coordinate pair [%s, %s)", tokens[1], tokens[2])}
		}
		// tokens[0] points into the scanner's buffer; copy it.
		r := Region{RefName: string(tokens[0]), Start: clampCoord(start), End: clampCoord(end)}
		regions = append(regions, r)
		totBases += int64(r.End - r.Start)
	}
	if err := scanner.Err(); err != nil {
		return nil, &ParseError{lineIdx + 1, err}
	}
	log.Printf("BED loaded, %d region(s), %d base(s) listed.", len(regions), totBases)
	return regions, nil
}

// ReadRegionsFromPath is a wrapper for ReadRegions that takes a path instead
// of an io.Reader.  Gzipped files are decompressed.
func ReadRegionsFromPath(path string, opts ReadOpts) (regions []Region, err error) {
	ctx := vcontext.Background()
	var infile file.File
	if infile, err = file.Open(ctx, path); err != nil {
		return
	}
	defer func() {
		if cerr := infile.Close(ctx); cerr != nil && err == nil {
			err = cerr
		}
	}()
	reader := io.Reader(infile.Reader(ctx))
	switch fileio.DetermineType(path) {
	case fileio.Gzip:
		var gz *gzip.Reader
		if gz, err = gzip.NewReader(reader); err != nil {
			return
		}
		defer gz.Close() // nolint: errcheck
		reader = gz
	}
	if regions, err = ReadRegions(reader, opts); err != nil {
		err = errors.Wrap(err, path)
	}
	return
}

// ParseRegionString parses a region string of one of the forms
//   [contig ID]:[1-based first pos]-[last pos]
//   [contig ID]:[1-based pos]
//   [contig ID]
// returning the equivalent 0-based half-open Region.  The interval
// [0, math.MaxInt32 - 1) is returned if there is no positional restriction.
func ParseRegionString(region string) (result Region, err error) {
	if len(region) == 0 {
		err = errors.New("interval.ParseRegionString: empty region string")
		return
	}
	colonPos := strings.LastIndexByte(region, ':')
	if colonPos == -1 {
		result.RefName = region
		result.Start = 0
		result.End = math.MaxInt32 - 1
		return
	}
	if colonPos == 0 {
		err = errors.New("interval.ParseRegionString: empty contig ID")
		return
	}
	result.RefName = region[0:colonPos]
	rangeStr := strings.Replace(region[colonPos+1:], ",", "", -1)
	dashPos := strings.IndexByte(rangeStr, '-')
	if dashPos == -1 {
		var pos1 int64
		if pos1, err = strconv.ParseInt(rangeStr, 10, 32); err != nil {
			return
		}
		if pos1 <= 0 {
			err = errors.Errorf("interval.ParseRegionString: position %v in region string out of range", rangeStr)
			return
		}
		result.Start = int(pos1 - 1)
		result.End = int(pos1)
		return
	}
	start1Str := rangeStr[:dashPos]
	endStr := rangeStr[dashPos+1:]
	var start1 int
	if start1, err = strconv.Atoi(start1Str); err != nil {
		return
	}
	if start1 <= 0 {
		err = errors.Errorf("interval.ParseRegionString: position %v in region string out of range", start1Str)
		return
	}
	var end0 int
	if end0, err = strconv.Atoi(endStr); err != nil {
		return
	}
	if end0 < start1 || end0 >= math.MaxInt32 {
		err = errors.Errorf("interval.ParseRegionString: invalid range string %v", rangeStr)
		return
	}
	result.Start = start1 - 1
	result.End = end0
	return
}
