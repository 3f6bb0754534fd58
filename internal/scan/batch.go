package scan

import (
	"sync"

	"statscan/internal/parser/csv"
)

// batch is a pooled block of copied records. Fields and missing flags are
// stored flat, width entries per record.
//
// The producer fills a batch and hands it to exactly one worker, which calls
// free once every record has been accumulated.
type batch struct {
	width   int
	lines   []int
	fields  []string
	missing []bool
}

var batchPool sync.Pool

// getBatch returns an empty pooled batch with room for size records of
// width fields.
func getBatch(size, width int) *batch {
	if v := batchPool.Get(); v != nil {
		b := v.(*batch)
		b.width = width
		b.lines = b.lines[:0]
		b.fields = b.fields[:0]
		b.missing = b.missing[:0]
		return b
	}
	return &batch{
		width:   width,
		lines:   make([]int, 0, size),
		fields:  make([]string, 0, size*width),
		missing: make([]bool, 0, size*width),
	}
}

// add copies rec into the batch. The reader reuses rec's slices, but the
// field strings themselves are not reused and can be retained.
func (b *batch) add(rec csv.Record) {
	b.lines = append(b.lines, rec.Line)
	b.fields = append(b.fields, rec.Fields...)
	b.missing = append(b.missing, rec.Missing...)
}

// len returns the number of records held.
func (b *batch) len() int { return len(b.lines) }

// record returns the i-th record's line, fields and missing flags.
func (b *batch) record(i int) (int, []string, []bool) {
	lo, hi := i*b.width, (i+1)*b.width
	return b.lines[i], b.fields[lo:hi], b.missing[lo:hi]
}

// free clears string references and returns b to the pool. The caller must
// not use b afterwards.
func (b *batch) free() {
	clear(b.fields)
	batchPool.Put(b)
}
