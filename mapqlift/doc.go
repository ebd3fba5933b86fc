// Copyright 2018 GRAIL, Inc. All rights reserved.
// Use of this source code is governed by the Apache 2.0
// license that can be found in the LICENSE file.

/*
Package mapqlift raises the mapping quality of low-confidence alignments that
fall inside a set of genomic regions.

Records are streamed through a three-stage pipeline:

  reader -> work queue -> N classifiers -> output queue -> ordered writer

The reader groups records into batches tagged with consecutive sequence
numbers.  Classifiers run in parallel and may finish batches in any order;
the writer holds early batches until their turn so that the output has
exactly the input's record order.  Both queues are bounded, and the reader
stops once 2*QueueLength+Parallelism batches are read but not yet written,
so a stalled classifier cannot make the writer's holding area grow with the
input size.

A record is modified iff it is placed on a reference, it overlaps at least one
region on that reference, and its MAPQ is below Opts.MinMapQ.  Its MAPQ is
then set to Opts.NewMapQ.  No other field is touched, and no record is
dropped, added or reordered.

Any error stops every stage; the partially written output must be discarded.
*/
package mapqlift
