package domain

import "context"

// Record is one domain row exposed to the generators: a flat map of
// field values, with nested maps for related objects (e.g. "brand" ->
// {"name": ...}) and []string for collection-valued fields (categories,
// tags).
type Record map[string]any

// RecordIterator streams records for one generation. Callers must Close
// it and check Err after Next returns false.
type RecordIterator interface {
	Next() bool
	Record() Record
	Err() error
	Close()
}

// RecordSource supplies the filtered record stream for a feed. The
// catalog it reads is owned elsewhere; the pipeline never writes to it.
type RecordSource interface {
	Stream(ctx context.Context, feed *Feed) (RecordIterator, error)
}

// SliceIterator adapts an in-memory record slice to RecordIterator. The
// Postgres record source materializes and dedupes rows before handing
// them out through one of these; tests use it directly.
type SliceIterator struct {
	records []Record
	pos     int
}

func NewSliceIterator(records []Record) *SliceIterator {
	return &SliceIterator{records: records}
}

func (it *SliceIterator) Next() bool {
	if it.pos >= len(it.records) {
		return false
	}
	it.pos++
	return true
}

func (it *SliceIterator) Record() Record { return it.records[it.pos-1] }
func (it *SliceIterator) Err() error     { return nil }
func (it *SliceIterator) Close()         {}
