package loader

import (
	"fmt"
	"math"
	"strings"
)

// Unbounded is the default item limit of a DataSource.
const Unbounded int64 = math.MaxInt64

// DataSource describes one fixture file to load into the index of a
// mapping. It is immutable; build it with NewDataSource or FromSpec.
type DataSource struct {
	mappingID string
	location  string
	gzipped   bool
	maxItems  int64
	skipItems int64
	format    Format
}

type DataSourceOption func(*DataSource)

func WithMaxItems(n int64) DataSourceOption {
	return func(d *DataSource) { d.maxItems = n }
}

func WithSkipItems(n int64) DataSourceOption {
	return func(d *DataSource) { d.skipItems = n }
}

func WithFormat(f Format) DataSourceOption {
	return func(d *DataSource) { d.format = f }
}

// NewDataSource derives the compressed flag from a case-insensitive ".gz"
// suffix on location.
func NewDataSource(mappingID, location string, opts ...DataSourceOption) DataSource {
	d := DataSource{
		mappingID: mappingID,
		location:  location,
		gzipped:   strings.HasSuffix(strings.ToLower(location), ".gz"),
		maxItems:  Unbounded,
	}
	for _, opt := range opts {
		opt(&d)
	}
	return d
}

func (d DataSource) MappingID() string { return d.mappingID }
func (d DataSource) Location() string  { return d.location }
func (d DataSource) Gzipped() bool     { return d.gzipped }
func (d DataSource) MaxItems() int64   { return d.maxItems }
func (d DataSource) SkipItems() int64  { return d.skipItems }
func (d DataSource) Format() Format    { return d.format }

func (d DataSource) Validate() error {
	switch {
	case d.mappingID == "":
		return fmt.Errorf("%w: mapping is required", ErrInvalidDataSource)
	case d.location == "":
		return fmt.Errorf("%w: location is required", ErrInvalidDataSource)
	case d.maxItems < 0:
		return fmt.Errorf("%w: max items must not be negative, got %d", ErrInvalidDataSource, d.maxItems)
	case d.skipItems < 0:
		return fmt.Errorf("%w: skip items must not be negative, got %d", ErrInvalidDataSource, d.skipItems)
	case !d.format.valid():
		return fmt.Errorf("%w: unsupported format %q", ErrInvalidDataSource, string(d.format))
	}
	return nil
}

func (d DataSource) String() string {
	return fmt.Sprintf("%s <- %s", d.mappingID, d.location)
}

// readLimit is the number of records that must be read to fill the window.
func (d DataSource) readLimit() int64 {
	if d.skipItems > math.MaxInt64-d.maxItems {
		return math.MaxInt64
	}
	return d.skipItems + d.maxItems
}

// LoadSpec is the declarative form of a DataSource, as written in fixture
// plans.
type LoadSpec struct {
	Mapping   string `yaml:"mapping" json:"mapping"`
	Location  string `yaml:"location" json:"location"`
	MaxItems  *int64 `yaml:"maxItems,omitempty" json:"maxItems,omitempty"`
	SkipItems int64  `yaml:"skipItems,omitempty" json:"skipItems,omitempty"`
	Format    string `yaml:"format,omitempty" json:"format,omitempty"`
}

func FromSpec(s LoadSpec) (DataSource, error) {
	format, err := ParseFormat(s.Format)
	if err != nil {
		return DataSource{}, err
	}
	opts := []DataSourceOption{WithSkipItems(s.SkipItems), WithFormat(format)}
	if s.MaxItems != nil {
		opts = append(opts, WithMaxItems(*s.MaxItems))
	}
	d := NewDataSource(s.Mapping, s.Location, opts...)
	if err := d.Validate(); err != nil {
		return DataSource{}, err
	}
	return d, nil
}
