// Package loader resets Elasticsearch indices and bulk loads fixture
// documents into them so tests start from a known index state.
package loader

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"runtime"

	"github.com/klauspost/compress/gzip"
	"golang.org/x/sync/errgroup"

	"esdata/features/mapping"
	"esdata/internal/correlation"
)

// peekSize is the read buffer size, and so the amount of content format
// detection can look at.
const peekSize = 64 << 10

// IndexOperations is the slice of the search engine API the loader needs.
type IndexOperations interface {
	// DeleteIndex drops index; an absent index is not an error.
	DeleteIndex(ctx context.Context, index string) error
	CreateIndex(ctx context.Context, index string, settings json.RawMessage) error
	PutMapping(ctx context.Context, index string, schema json.RawMessage) error
	Refresh(ctx context.Context, index string) error
	Bulk(ctx context.Context, requests []IndexRequest) error
}

type MappingResolver interface {
	Resolve(id string) (mapping.Mapping, error)
}

type Opener interface {
	Open(ctx context.Context, location string) (io.ReadCloser, error)
}

type Result struct {
	Index     string
	Format    Format
	Submitted int
	// Empty is set when the window held no documents and nothing was submitted.
	Empty bool
}

type Loader struct {
	ops         IndexOperations
	mappings    MappingResolver
	opener      Opener
	logger      *slog.Logger
	concurrency int
}

type Option func(*Loader)

func WithLogger(logger *slog.Logger) Option {
	return func(l *Loader) {
		if logger != nil {
			l.logger = logger
		}
	}
}

// WithConcurrency bounds the goroutines transforming records. Values below
// one mean GOMAXPROCS.
func WithConcurrency(n int) Option {
	return func(l *Loader) { l.concurrency = n }
}

func New(ops IndexOperations, mappings MappingResolver, opener Opener, opts ...Option) *Loader {
	l := &Loader{
		ops:      ops,
		mappings: mappings,
		opener:   opener,
		logger:   slog.Default(),
	}
	for _, opt := range opts {
		opt(l)
	}
	if l.concurrency < 1 {
		l.concurrency = runtime.GOMAXPROCS(0)
	}
	return l
}

// Delete drops and recreates the index of mappingID, leaving it empty.
func (l *Loader) Delete(ctx context.Context, mappingID string) error {
	ctx, _ = correlation.Ensure(ctx)

	m, err := l.mappings.Resolve(mappingID)
	if err != nil {
		return err
	}
	l.logger.DebugContext(ctx, "dropping data in index", "mapping", m.ID, "index", m.IndexName())
	return l.reset(ctx, m)
}

// Load recreates the index of ds's mapping and bulk inserts the windowed
// records of ds. Nothing is submitted unless every record in the window,
// and every skipped record before it, was read and transformed.
func (l *Loader) Load(ctx context.Context, ds DataSource) (Result, error) {
	if err := ds.Validate(); err != nil {
		return Result{}, err
	}
	ctx, _ = correlation.Ensure(ctx)

	m, err := l.mappings.Resolve(ds.MappingID())
	if err != nil {
		return Result{}, err
	}
	index := m.IndexName()
	log := l.logger.With("mapping", m.ID, "index", index, "location", ds.Location())

	log.DebugContext(ctx, "recreating index")
	if err := l.reset(ctx, m); err != nil {
		return Result{}, err
	}

	log.DebugContext(ctx, "inserting data, please wait")
	requests, format, err := l.prepare(ctx, ds, target{index: index, typ: m.Type}, log)
	if err != nil {
		return Result{}, fmt.Errorf("load %s: %w", ds, err)
	}

	res := Result{Index: index, Format: format}
	if len(requests) == 0 {
		log.WarnContext(ctx, "there are no data to load, please review the content of the source",
			"skip_items", ds.SkipItems(), "max_items", ds.MaxItems())
		res.Empty = true
		return res, nil
	}

	if err := l.ops.Bulk(ctx, requests); err != nil {
		return Result{}, fmt.Errorf("bulk index %q: %w", index, err)
	}
	if err := l.ops.Refresh(ctx, index); err != nil {
		return Result{}, fmt.Errorf("refresh index %q: %w", index, err)
	}

	res.Submitted = len(requests)
	log.DebugContext(ctx, "insertion successfully done", "documents", res.Submitted, "format", format.String())
	return res, nil
}

// LoadAll loads each source in order and stops at the first failure.
func (l *Loader) LoadAll(ctx context.Context, sources []DataSource) ([]Result, error) {
	results := make([]Result, 0, len(sources))
	for _, ds := range sources {
		res, err := l.Load(ctx, ds)
		if err != nil {
			return results, err
		}
		results = append(results, res)
	}
	return results, nil
}

func (l *Loader) DeleteAll(ctx context.Context, mappingIDs []string) error {
	for _, id := range mappingIDs {
		if err := l.Delete(ctx, id); err != nil {
			return err
		}
	}
	return nil
}

func (l *Loader) reset(ctx context.Context, m mapping.Mapping) error {
	index := m.IndexName()
	if err := l.ops.DeleteIndex(ctx, index); err != nil {
		return fmt.Errorf("drop index %q: %w", index, err)
	}
	if err := l.ops.CreateIndex(ctx, index, m.Settings); err != nil {
		return fmt.Errorf("create index %q: %w", index, err)
	}
	if err := l.ops.PutMapping(ctx, index, m.Schema); err != nil {
		return fmt.Errorf("put mapping %q: %w", index, err)
	}
	if err := l.ops.Refresh(ctx, index); err != nil {
		return fmt.Errorf("refresh index %q: %w", index, err)
	}
	return nil
}

func (l *Loader) prepare(ctx context.Context, ds DataSource, t target, log *slog.Logger) (requests []IndexRequest, format Format, err error) {
	rc, err := l.open(ctx, ds)
	if err != nil {
		return nil, FormatUnknown, err
	}
	defer func() {
		if cerr := rc.Close(); cerr != nil && err == nil {
			err = fmt.Errorf("%w: close: %w", ErrSourceIO, cerr)
		}
	}()

	br := bufio.NewReaderSize(rc, peekSize)
	format, err = Detect(br, ds.Format())
	if err != nil {
		return nil, FormatUnknown, err
	}

	limit := ds.readLimit()
	var raw []string
	if limit > 0 {
		for rec, err := range records(br, format) {
			if err != nil {
				return nil, format, err
			}
			raw = append(raw, rec)
			if int64(len(raw)) >= limit {
				break
			}
		}
	}

	requests = make([]IndexRequest, len(raw))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(l.concurrency)
	for i, rec := range raw {
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			log.DebugContext(ctx, "preparing index request", "record", i+1)
			req, err := toIndexRequest(rec, t, format)
			if err != nil {
				return fmt.Errorf("record %d: %w", i+1, err)
			}
			requests[i] = req
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, format, err
	}

	return window(requests, ds.SkipItems(), ds.MaxItems()), format, nil
}

func (l *Loader) open(ctx context.Context, ds DataSource) (io.ReadCloser, error) {
	rc, err := l.opener.Open(ctx, ds.Location())
	if err != nil {
		return nil, fmt.Errorf("%w: open %s: %w", ErrSourceIO, ds.Location(), err)
	}
	if !ds.Gzipped() {
		return rc, nil
	}
	zr, err := gzip.NewReader(rc)
	if err != nil {
		rc.Close()
		return nil, fmt.Errorf("%w: decompress %s: %w", ErrSourceIO, ds.Location(), err)
	}
	return &gzipReadCloser{Reader: zr, src: rc}, nil
}

type gzipReadCloser struct {
	*gzip.Reader
	src io.Closer
}

func (g *gzipReadCloser) Close() error {
	return errors.Join(g.Reader.Close(), g.src.Close())
}
