package bamprovider

import (
	"github.com/grailbio/hts/sam"
)

// fakeProvider is only for unittests. It yields the given records.
type fakeProvider struct {
	header *sam.Header
	recs   []*sam.Record
	// failAfter >= 0 causes iterators to stop with failErr after yielding
	// that many records.
	failAfter int
	failErr   error
}

type fakeIterator struct {
	recs []*sam.Record
	rec  *sam.Record

	remaining int
	failErr   error
	err       error
}

// NewFakeProvider creates a provider that returns "header" in response to a
// GetHeader() call, and recs by NewIterator calls.
func NewFakeProvider(header *sam.Header, recs []*sam.Record) Provider {
	return &fakeProvider{header: header, recs: recs, failAfter: -1}
}

// NewFailingProvider is similar to NewFakeProvider, but its iterators report
// "err" after yielding the first n records.
func NewFailingProvider(header *sam.Header, recs []*sam.Record, n int, err error) Provider {
	return &fakeProvider{header: header, recs: recs, failAfter: n, failErr: err}
}

// GetHeader implements the Provider interface. It returns the header passed to
// the constructor.
func (b *fakeProvider) GetHeader() (*sam.Header, error) {
	return b.header, nil
}

// Close implements the Provider interface.
func (b *fakeProvider) Close() error {
	return nil
}

// NewIterator implements the Provider interface.
func (b *fakeProvider) NewIterator() Iterator {
	if b.failAfter == 0 {
		return NewErrorIterator(b.failErr)
	}
	return &fakeIterator{recs: b.recs, remaining: b.failAfter, failErr: b.failErr}
}

// Err implements the Iterator interface.
func (i *fakeIterator) Err() error {
	return i.err
}

// Close implements the Iterator interface.
func (i *fakeIterator) Close() error {
	return i.err
}

func (i *fakeIterator) Scan() bool {
	if i.err != nil {
		return false
	}
	if i.remaining == 0 {
		i.err = i.failErr
		return false
	}
	if len(i.recs) == 0 {
		return false
	}
	if i.remaining > 0 {
		i.remaining--
	}
	i.rec = i.recs[0]
	i.recs = i.recs[1:]
	return true
}

func (i *fakeIterator) Record() *sam.Record {
	// Return a copy so that the code under test cannot alter the
	// original test input data.
	copy := sam.GetFromFreePool()
	*copy = *i.rec
	return copy
}
