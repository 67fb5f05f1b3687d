package recordops

import (
	"context"

	"github.com/hydromelvictor/gogoose/odm"
)

// SliceCursor is an odm.Cursor over records that are already in memory.
type SliceCursor struct {
	records []odm.Record
	pos     int
	err     error
}

// NewSliceCursor creates a cursor positioned before the first record.
func NewSliceCursor(records []odm.Record) *SliceCursor {
	return &SliceCursor{records: records, pos: -1}
}

// Next advances the cursor. It stops when the records are exhausted or ctx is done.
func (c *SliceCursor) Next(ctx context.Context) bool {
	if c.err != nil {
		return false
	}

	if err := ctx.Err(); err != nil {
		c.err = err
		return false
	}

	if c.pos+1 >= len(c.records) {
		return false
	}

	c.pos++

	return true
}

// Record returns the current record.
func (c *SliceCursor) Record() odm.Record {
	if c.pos < 0 || c.pos >= len(c.records) {
		return nil
	}

	return c.records[c.pos]
}

// Err returns the context error that stopped the iteration, if any.
func (c *SliceCursor) Err() error {
	return c.err
}

// Close releases the records.
func (c *SliceCursor) Close(context.Context) error {
	c.records = nil
	return nil
}
