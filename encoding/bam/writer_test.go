package bam_test

import (
	"io/ioutil"
	"path/filepath"
	"strings"
	"testing"

	"github.com/grailbio/base/vcontext"
	"github.com/grailbio/hts/sam"
	gbam "github.com/grailbio/mapqlift/encoding/bam"
	"github.com/grailbio/mapqlift/encoding/bamprovider"
	"github.com/grailbio/testutil"
	"github.com/grailbio/testutil/expect"
	"github.com/klauspost/compress/gzip"
	"github.com/stretchr/testify/require"
)

var (
	chr1, _   = sam.NewReference("chr1", "", "", 1000, nil, nil)
	chr2, _   = sam.NewReference("chr2", "", "", 2000, nil, nil)
	header, _ = sam.NewHeader(nil, []*sam.Reference{chr1, chr2})
)

func newRecord(name string, ref *sam.Reference, pos int, mapq byte) *sam.Record {
	r := &sam.Record{Name: name, Ref: ref, Pos: pos, MapQ: mapq, MatePos: -1}
	if ref == nil {
		r.Flags = sam.Unmapped
	} else {
		r.Cigar = []sam.CigarOp{sam.NewCigarOp(sam.CigarMatch, 10)}
	}
	return r
}

func testRecords() []*sam.Record {
	return []*sam.Record{
		newRecord("read1", chr1, 10, 5),
		newRecord("read2", chr1, 500, 60),
		newRecord("read3", chr2, 0, 0),
		newRecord("read4", nil, -1, 0),
	}
}

func readAll(t *testing.T, path string) (*sam.Header, []*sam.Record) {
	p := bamprovider.NewProvider(path)
	h, err := p.GetHeader()
	require.NoError(t, err)
	iter := p.NewIterator()
	var recs []*sam.Record
	for iter.Scan() {
		recs = append(recs, iter.Record())
	}
	require.NoError(t, iter.Close())
	require.NoError(t, p.Close())
	return h, recs
}

func TestWriterRoundTrip(t *testing.T) {
	tmpDir, cleanup := testutil.TempDir(t, "", "")
	defer cleanup()
	ctx := vcontext.Background()

	for _, name := range []string{"out.bam", "out.sam"} {
		path := filepath.Join(tmpDir, name)
		opts := gbam.WriterOpts{Level: gzip.DefaultCompression, SAM: strings.HasSuffix(name, ".sam")}
		w, err := gbam.NewWriter(ctx, path, header, opts)
		require.NoError(t, err)
		for _, r := range testRecords() {
			require.NoError(t, w.Write(r))
		}
		require.NoError(t, w.Close())

		h, recs := readAll(t, path)
		expect.EQ(t, len(h.Refs()), 2, name)
		expect.EQ(t, h.Refs()[1].Name(), "chr2", name)
		require.Equal(t, 4, len(recs), name)
		for i, want := range testRecords() {
			expect.EQ(t, recs[i].Name, want.Name, name)
			expect.EQ(t, recs[i].Pos, want.Pos, name)
			expect.EQ(t, recs[i].MapQ, want.MapQ, name)
			if want.Ref == nil {
				expect.True(t, recs[i].Ref == nil, name)
			} else {
				expect.EQ(t, recs[i].Ref.Name(), want.Ref.Name(), name)
			}
		}
	}
}

func TestWriterEmpty(t *testing.T) {
	tmpDir, cleanup := testutil.TempDir(t, "", "")
	defer cleanup()
	path := filepath.Join(tmpDir, "empty.bam")
	w, err := gbam.NewWriter(vcontext.Background(), path, header, gbam.WriterOpts{Parallelism: 1, Level: 1})
	require.NoError(t, err)
	require.NoError(t, w.Close())

	h, recs := readAll(t, path)
	expect.EQ(t, len(h.Refs()), 2)
	expect.EQ(t, len(recs), 0)
}

func TestWriterErrors(t *testing.T) {
	tmpDir, cleanup := testutil.TempDir(t, "", "")
	defer cleanup()
	ctx := vcontext.Background()
	_, err := gbam.NewWriter(ctx, filepath.Join(tmpDir, "x.bam"), header, gbam.WriterOpts{Level: 42})
	require.Error(t, err)
	// The parent is a regular file.
	notDir := filepath.Join(tmpDir, "file")
	require.NoError(t, ioutil.WriteFile(notDir, nil, 0644))
	_, err = gbam.NewWriter(ctx, filepath.Join(notDir, "x.bam"), header, gbam.WriterOpts{Level: gzip.DefaultCompression})
	require.Error(t, err)
}

func TestAlignedSpan(t *testing.T) {
	r := newRecord("a", chr1, 100, 0)
	start, end := gbam.AlignedSpan(r)
	expect.EQ(t, start, 100)
	expect.EQ(t, end, 110)

	r.Cigar = nil
	start, end = gbam.AlignedSpan(r)
	expect.EQ(t, start, 100)
	expect.EQ(t, end, 101)

	expect.True(t, gbam.IsMapped(r))
	expect.False(t, gbam.IsMapped(newRecord("u", nil, -1, 0)))
}
