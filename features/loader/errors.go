package loader

import (
	"errors"
	"fmt"

	"esdata/features/mapping"
)

var (
	// ErrSourceIO wraps failures to open, decompress, read or close a
	// fixture source.
	ErrSourceIO = errors.New("fixture source i/o failure")

	ErrUndetectableFormat = errors.New("could not auto-detect the format of data to load")

	// ErrNotArray is returned when manual content does not open with a JSON array.
	ErrNotArray = errors.New("not a valid manual format: expected an array")

	// ErrMalformedRecord always travels with ErrSourceIO: content that
	// cannot be parsed is a failure to read the source.
	ErrMalformedRecord   = errors.New("malformed record")
	ErrInvalidDataSource = errors.New("invalid data source")
	ErrUnknownMapping    = mapping.ErrUnknownMapping
)

func malformed(err error) error {
	return fmt.Errorf("%w: %w: %w", ErrSourceIO, ErrMalformedRecord, err)
}
