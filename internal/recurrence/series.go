package recurrence

import "github.com/google/uuid"

// SeriesAllocator hands out identifiers linking the instances of one recurring definition.
type SeriesAllocator interface {
	NewSeriesID() string
}

// UUIDAllocator allocates random v4 UUIDs.
type UUIDAllocator struct{}

func (UUIDAllocator) NewSeriesID() string {
	return uuid.NewString()
}

// SeriesAllocatorFunc adapts a plain function to SeriesAllocator.
type SeriesAllocatorFunc func() string

func (f SeriesAllocatorFunc) NewSeriesID() string {
	return f()
}
