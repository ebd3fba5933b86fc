package bam

import "github.com/grailbio/hts/sam"

// IsMapped returns true if record is placed on a reference.  Records with the
// Unmapped flag but a reference assigned (e.g. the unmapped mate of a mapped
// read) count as mapped.
func IsMapped(record *sam.Record) bool {
	return record.Ref != nil
}

// AlignedSpan returns the 0-based half-open reference interval covered by
// record's alignment.  Records whose CIGAR consumes no reference bases are
// given a one-base span at Pos.
func AlignedSpan(record *sam.Record) (start, end int) {
	start = record.Pos
	end = record.End()
	if end <= start {
		end = start + 1
	}
	return start, end
}
