package mapqlift

import (
	"testing"

	"github.com/grailbio/base/errors"
	"github.com/grailbio/testutil/expect"
	pkgerrors "github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
)

func TestErrorString(t *testing.T) {
	err := newError(CodecReadError, "reader", "s3://bucket/in.bam", pkgerrors.New("truncated block"))
	expect.EQ(t, err.Error(), "mapqlift reader s3://bucket/in.bam: codec read error: truncated block")
	err = newError(OrderingInvariantViolation, "writer", "", nil)
	expect.EQ(t, err.Error(), "mapqlift writer: ordering invariant violation")
	expect.EQ(t, ErrorKind(99).String(), "ErrorKind(99)")
}

func TestKindOf(t *testing.T) {
	base := newError(RegionParseError, "setup", "x.bed", pkgerrors.New("bad"))
	expect.EQ(t, KindOf(base), RegionParseError)
	expect.EQ(t, KindOf(pkgerrors.Wrap(base, "context")), RegionParseError)
	expect.EQ(t, KindOf(errors.E(base, "more context")), RegionParseError)
	expect.EQ(t, KindOf(pkgerrors.New("plain")), Unknown)
	expect.EQ(t, KindOf(nil), Unknown)
	expect.EQ(t, pkgerrors.Cause(base).Error(), "bad")
}

func TestRecoverStage(t *testing.T) {
	run := func(fn func()) (err error) {
		defer recoverStage("test", &err)
		fn()
		return nil
	}
	err := run(func() { panic("boom") })
	expect.EQ(t, KindOf(err), InternalError)
	assert.Contains(t, err.Error(), "boom")

	err = run(func() {
		n := -1
		_ = make([]byte, n)
	})
	expect.EQ(t, KindOf(err), AllocationFailure)
	assert.Contains(t, err.Error(), "makeslice")

	err = run(func() {
		var m map[string]int
		m["x"] = 1
	})
	expect.EQ(t, KindOf(err), InternalError)

	expect.NoError(t, run(func() {}))
}

func TestCancelled(t *testing.T) {
	err := cancelled("writer", pkgerrors.New("context canceled"))
	expect.EQ(t, KindOf(err), ThreadCommunicationError)
	expect.True(t, errors.Is(errors.Canceled, err.Err))
}
