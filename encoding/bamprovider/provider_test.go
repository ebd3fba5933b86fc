package bamprovider_test

import (
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/grailbio/base/file"
	"github.com/grailbio/base/grail"
	"github.com/grailbio/base/vcontext"
	"github.com/grailbio/hts/bam"
	"github.com/grailbio/hts/sam"
	"github.com/grailbio/mapqlift/encoding/bamprovider"
	"github.com/grailbio/testutil"
	"github.com/grailbio/testutil/expect"
	"github.com/stretchr/testify/require"
)

func TestMain(m *testing.M) {
	shutdown := grail.Init()
	status := m.Run()
	shutdown()
	os.Exit(status)
}

var (
	chr1, _   = sam.NewReference("chr1", "", "", 1000, nil, nil)
	chr2, _   = sam.NewReference("chr2", "", "", 2000, nil, nil)
	header, _ = sam.NewHeader(nil, []*sam.Reference{chr1, chr2})
)

func newRecord(name string, ref *sam.Reference, pos int) *sam.Record {
	r := &sam.Record{Name: name, Ref: ref, Pos: pos, MapQ: 20, MatePos: -1}
	if ref == nil {
		r.Flags = sam.Unmapped
	} else {
		r.Cigar = []sam.CigarOp{sam.NewCigarOp(sam.CigarMatch, 10)}
	}
	return r
}

func testRecords() []*sam.Record {
	return []*sam.Record{
		newRecord("read1", chr1, 0),
		newRecord("read2", chr2, 10),
		newRecord("read3", chr2, 100),
		newRecord("read10", nil, -1),
		newRecord("read10", nil, -1),
	}
}

// writeFile writes testRecords() to path using the hts writers directly.
func writeFile(t *testing.T, path string) {
	ctx := vcontext.Background()
	out, err := file.Create(ctx, path)
	require.NoError(t, err)
	if filepath.Ext(path) == ".sam" {
		w, err := sam.NewWriter(out.Writer(ctx), header, sam.FlagDecimal)
		require.NoError(t, err)
		for _, r := range testRecords() {
			require.NoError(t, w.Write(r))
		}
	} else {
		w, err := bam.NewWriter(out.Writer(ctx), header, 1)
		require.NoError(t, err)
		for _, r := range testRecords() {
			require.NoError(t, w.Write(r))
		}
		require.NoError(t, w.Close())
	}
	require.NoError(t, out.Close(ctx))
}

func doRead(t *testing.T, p bamprovider.Provider) []string {
	var names []string
	// Repeat the test to test iterator-reuse code path.
	for i := 0; i < 3; i++ {
		names = []string{}
		iter := p.NewIterator()
		for iter.Scan() {
			names = append(names, iter.Record().Name)
		}
		require.NoError(t, iter.Err())
		require.NoError(t, iter.Close())
	}
	require.NoError(t, p.Close())
	return names
}

func TestBAMAndSAM(t *testing.T) {
	tmpDir, cleanup := testutil.TempDir(t, "", "")
	defer cleanup()
	for _, name := range []string{"test.bam", "test.sam"} {
		path := filepath.Join(tmpDir, name)
		writeFile(t, path)
		p := bamprovider.NewProvider(path, bamprovider.ProviderOpts{Parallelism: 2})
		h, err := p.GetHeader()
		require.NoError(t, err)
		expect.EQ(t, len(h.Refs()), 2)
		expect.EQ(t, h.Refs()[0].Name(), "chr1")
		require.Equal(t,
			[]string{"read1", "read2", "read3", "read10", "read10"},
			doRead(t, p), name)
	}
}

func TestError(t *testing.T) {
	p := bamprovider.NewProvider("nonexistent.bam")
	_, err := p.GetHeader()
	require.Regexp(t, "no such file", err.Error())
	iter := p.NewIterator()
	expect.False(t, iter.Scan())
	require.Regexp(t, "no such file", iter.Close().Error())
	require.Regexp(t, "no such file", p.Close().Error())
}

func TestGuessFileType(t *testing.T) {
	expect.EQ(t, bamprovider.GuessFileType("foo.bam"), bamprovider.BAM)
	expect.EQ(t, bamprovider.GuessFileType("s3://bucket/foo.sam"), bamprovider.SAM)
	expect.EQ(t, bamprovider.GuessFileType("foo.cram"), bamprovider.Unknown)
	expect.EQ(t, bamprovider.ParseFileType("sam"), bamprovider.SAM)
	expect.EQ(t, bamprovider.ParseFileType("pam"), bamprovider.Unknown)
}

func TestFakeProvider(t *testing.T) {
	recs := testRecords()
	p := bamprovider.NewFakeProvider(header, recs)
	names := doRead(t, p)
	require.Equal(t, []string{"read1", "read2", "read3", "read10", "read10"}, names)

	// The fake provider must hand out copies.
	iter := p.NewIterator()
	require.True(t, iter.Scan())
	iter.Record().Name = "modified"
	require.NoError(t, iter.Close())
	expect.EQ(t, recs[0].Name, "read1")
}

func TestFailingProvider(t *testing.T) {
	failure := errors.New("synthetic read failure")
	for _, n := range []int{0, 2, 5} {
		p := bamprovider.NewFailingProvider(header, testRecords(), n, failure)
		iter := p.NewIterator()
		count := 0
		for iter.Scan() {
			count++
		}
		expect.EQ(t, count, n)
		expect.EQ(t, iter.Err(), failure)
		expect.EQ(t, iter.Close(), failure)
	}
}

func TestRefByName(t *testing.T) {
	expect.EQ(t, bamprovider.RefByName(header, "chr2"), chr2)
	expect.True(t, bamprovider.RefByName(header, "chrX") == nil)
	expect.EQ(t, bamprovider.MissingRefs(header, []string{"chr1", "chrX", "chr2", "chrY"}), []string{"chrX", "chrY"})
	expect.EQ(t, len(bamprovider.MissingRefs(header, nil)), 0)
}
