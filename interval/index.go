package interval

import (
	"encoding/binary"
	"fmt"
	"sort"

	"github.com/biogo/store/interval"
	farm "github.com/dgryski/go-farm"
)

// entry is a Region as stored in an IntTree.  uid keeps duplicate regions
// distinct inside the tree.
type entry struct {
	start, end int
	uid        uintptr
}

// Overlap implements interval.IntOverlapper with half-open semantics.
func (e entry) Overlap(b interval.IntRange) bool {
	return e.end > b.Start && e.start < b.End
}
func (e entry) ID() uintptr              { return e.uid }
func (e entry) Range() interval.IntRange { return interval.IntRange{Start: e.start, End: e.end} }

// query is a half-open probe range [start, end).
type query struct {
	start, end int
}

func (q query) Overlap(b interval.IntRange) bool {
	return b.Start < q.end && q.start < b.End
}

// Index answers region membership queries, with one interval tree per
// reference name.  An Index is immutable once NewIndex returns, so it may be
// shared by any number of goroutines without locking.
type Index struct {
	trees       map[string]*interval.IntTree
	nRegions    int
	fingerprint uint64
}

// NewIndex builds an Index from regions.  The regions need not be sorted, and
// overlapping or duplicate regions are allowed.  Zero-width regions are
// accepted but never match a query.  An empty region list yields an Index that
// matches nothing.
func NewIndex(regions []Region) (*Index, error) {
	idx := &Index{trees: make(map[string]*interval.IntTree)}
	var buf []byte
	for i, r := range regions {
		if r.Start < 0 || r.End < r.Start {
			return nil, fmt.Errorf("interval.NewIndex: invalid region %s:[%d, %d)", r.RefName, r.Start, r.End)
		}
		idx.nRegions++
		buf = append(buf[:0], r.RefName...)
		buf = append(buf, 0)
		buf = appendUint64(buf, uint64(r.Start))
		buf = appendUint64(buf, uint64(r.End))
		idx.fingerprint += farm.Fingerprint64(buf)
		if r.End == r.Start {
			continue
		}
		tree, ok := idx.trees[r.RefName]
		if !ok {
			tree = &interval.IntTree{}
			idx.trees[r.RefName] = tree
		}
		if err := tree.Insert(entry{start: r.Start, end: r.End, uid: uintptr(i)}, true); err != nil {
			return nil, fmt.Errorf("interval.NewIndex: region %s:[%d, %d): %v", r.RefName, r.Start, r.End, err)
		}
	}
	for _, tree := range idx.trees {
		tree.AdjustRanges()
	}
	return idx, nil
}

// Len returns the number of regions the Index was built from, including
// zero-width ones.
func (idx *Index) Len() int { return idx.nRegions }

// Fingerprint returns a hash of the region multiset.  It does not depend on
// the order of the regions passed to NewIndex.
func (idx *Index) Fingerprint() uint64 { return idx.fingerprint }

func appendUint64(buf []byte, v uint64) []byte {
	var b [8]byte
	binary.LittleEndian.PutUint64(b[:], v)
	return append(buf, b[:]...)
}

// RefNames returns the sorted names of references with at least one
// nonempty region.
func (idx *Index) RefNames() []string {
	names := make([]string, 0, len(idx.trees))
	for name := range idx.trees {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Contains checks whether pos (0-based) lies inside at least one region on
// refName, i.e. start <= pos < end for some region.  Unknown references never
// match.
func (idx *Index) Contains(refName string, pos int) bool {
	return idx.Overlaps(refName, pos, pos+1)
}

// Overlaps checks whether the half-open range [start, end) intersects at least
// one region on refName.  The search stops at the first hit.
func (idx *Index) Overlaps(refName string, start, end int) bool {
	tree := idx.trees[refName]
	if tree == nil || end <= start {
		return false
	}
	found := false
	tree.DoMatching(func(interval.IntInterface) bool {
		found = true
		return true
	}, query{start: start, end: end})
	return found
}
