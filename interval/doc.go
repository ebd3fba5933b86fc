// Copyright 2018 GRAIL, Inc. All rights reserved.
// Use of this source code is governed by the Apache 2.0
// license that can be found in the LICENSE file.

/*Package interval loads genomic regions from BED files and indexes them for
  point and range membership tests.
  (Unlike an interval union, overlapping and duplicate regions are kept as
  separate entries; a query only asks whether at least one region matches.)
  Regions use 0-based half-open coordinates, [start, end).
*/
package interval
