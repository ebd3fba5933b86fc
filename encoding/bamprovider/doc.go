// Package bamprovider provides utilities for scanning a BAM or SAM file
// sequentially, in file order.
//
// The Provider is an interface for opening the file and reading its header;
// an Iterator yields the records.  FakeProvider implementations are supplied
// for unittests.
package bamprovider
