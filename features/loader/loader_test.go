package loader_test

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"io/fs"
	"os"
	"strconv"
	"sync"
	"testing"
	"testing/fstest"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"esdata/features/loader"
	"esdata/features/mapping"
)

type MockIndexOperations struct {
	mock.Mock
}

func (m *MockIndexOperations) DeleteIndex(ctx context.Context, index string) error {
	args := m.Called(ctx, index)
	return args.Error(0)
}

func (m *MockIndexOperations) CreateIndex(ctx context.Context, index string, settings json.RawMessage) error {
	args := m.Called(ctx, index, settings)
	return args.Error(0)
}

func (m *MockIndexOperations) PutMapping(ctx context.Context, index string, schema json.RawMessage) error {
	args := m.Called(ctx, index, schema)
	return args.Error(0)
}

func (m *MockIndexOperations) Refresh(ctx context.Context, index string) error {
	args := m.Called(ctx, index)
	return args.Error(0)
}

func (m *MockIndexOperations) Bulk(ctx context.Context, requests []loader.IndexRequest) error {
	args := m.Called(ctx, requests)
	return args.Error(0)
}

// expectReset registers the drop/create/mapping/refresh sequence for index.
func (m *MockIndexOperations) expectReset(index string) {
	m.On("DeleteIndex", mock.Anything, index).Return(nil)
	m.On("CreateIndex", mock.Anything, index, mock.Anything).Return(nil)
	m.On("PutMapping", mock.Anything, index, mock.Anything).Return(nil)
	m.On("Refresh", mock.Anything, index).Return(nil)
}

// expectBulk captures the submitted requests into dst.
func (m *MockIndexOperations) expectBulk(dst *[]loader.IndexRequest) {
	m.On("Bulk", mock.Anything, mock.Anything).Return(nil).Run(func(args mock.Arguments) {
		*dst = args.Get(1).([]loader.IndexRequest)
	})
}

// trackingOpener serves locations from an fs.FS and records which handles
// were closed.
type trackingOpener struct {
	fsys fs.FS

	mu     sync.Mutex
	opened int
	closed int
}

func (o *trackingOpener) Open(_ context.Context, location string) (io.ReadCloser, error) {
	f, err := o.fsys.Open(location)
	if err != nil {
		return nil, err
	}
	o.mu.Lock()
	o.opened++
	o.mu.Unlock()
	return &trackedFile{File: f, owner: o}, nil
}

func (o *trackingOpener) allClosed() bool {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.opened == o.closed
}

type trackedFile struct {
	fs.File
	owner *trackingOpener
}

func (f *trackedFile) Close() error {
	f.owner.mu.Lock()
	f.owner.closed++
	f.owner.mu.Unlock()
	return f.File.Close()
}

func newRegistry(t *testing.T) *mapping.Registry {
	t.Helper()
	reg, err := mapping.NewRegistry(
		mapping.Mapping{ID: "Author", Index: "author", Schema: json.RawMessage(`{"properties":{"firstName":{"type":"keyword"}}}`)},
		mapping.Mapping{ID: "Book", Index: "book", Type: "Book"},
		mapping.Mapping{ID: "Thing"},
	)
	require.NoError(t, err)
	return reg
}

func newLoader(t *testing.T, fsys fs.FS) (*loader.Loader, *MockIndexOperations, *trackingOpener) {
	t.Helper()
	ops := new(MockIndexOperations)
	opener := &trackingOpener{fsys: fsys}
	return loader.New(ops, newRegistry(t), opener, loader.WithConcurrency(4)), ops, opener
}

func TestLoad_ManualWindow(t *testing.T) {
	l, ops, opener := newLoader(t, os.DirFS("testdata"))
	ops.expectReset("author")
	var submitted []loader.IndexRequest
	ops.expectBulk(&submitted)

	ds := loader.NewDataSource("Author", "authors.json", loader.WithMaxItems(5), loader.WithSkipItems(2))
	res, err := l.Load(context.Background(), ds)
	require.NoError(t, err)

	assert.Equal(t, "author", res.Index)
	assert.Equal(t, loader.FormatManual, res.Format)
	assert.Equal(t, 5, res.Submitted)
	assert.False(t, res.Empty)

	require.Len(t, submitted, 5)
	for i, req := range submitted {
		var doc struct {
			ID string `json:"id"`
		}
		require.NoError(t, json.Unmarshal(req.Body, &doc))
		assert.Equal(t, strconv.Itoa(i+3), doc.ID, "element %d of the window", i)
		assert.Empty(t, req.ID)
		assert.Equal(t, "author", req.Index)
	}
	assert.True(t, opener.allClosed())
	ops.AssertNumberOfCalls(t, "Refresh", 2)
	ops.AssertExpectations(t)
}

func TestLoad_GzippedDump(t *testing.T) {
	l, ops, opener := newLoader(t, os.DirFS("testdata"))
	ops.expectReset("book")
	var submitted []loader.IndexRequest
	ops.expectBulk(&submitted)

	res, err := l.Load(context.Background(), loader.NewDataSource("Book", "books.json.gz"))
	require.NoError(t, err)
	assert.Equal(t, loader.FormatDump, res.Format)
	assert.Equal(t, 10, res.Submitted)

	plain, err := os.ReadFile("testdata/books.json")
	require.NoError(t, err)
	lines := bytes.Split(bytes.TrimSpace(plain), []byte("\n"))
	require.Len(t, submitted, len(lines))

	for i, req := range submitted {
		var rec struct {
			ID     string          `json:"_id"`
			Source json.RawMessage `json:"_source"`
		}
		require.NoError(t, json.Unmarshal(lines[i], &rec))
		assert.Equal(t, rec.ID, req.ID)
		assert.Equal(t, "book", req.Index)
		assert.Equal(t, "Book", req.Type)
		assert.JSONEq(t, string(rec.Source), string(req.Body))
	}
	assert.True(t, opener.allClosed())
	ops.AssertExpectations(t)
}

func TestLoad_DumpDetection(t *testing.T) {
	t.Run("IndexMarkerOnly", func(t *testing.T) {
		fsys := fstest.MapFS{"x.json": {Data: bytes.Repeat([]byte(`{"_index":"x"}`+"\n"), 3)}}
		l, ops, opener := newLoader(t, fsys)
		ops.expectReset("thing")

		_, err := l.Load(context.Background(), loader.NewDataSource("Thing", "x.json"))
		assert.ErrorIs(t, err, loader.ErrUndetectableFormat)
		ops.AssertNotCalled(t, "Bulk", mock.Anything, mock.Anything)
		assert.True(t, opener.allClosed())
	})

	t.Run("WithSourceMarker", func(t *testing.T) {
		fsys := fstest.MapFS{"x.json": {Data: bytes.Repeat([]byte(`{"_index":"x","_id":"1","_source":{"a":1}}`+"\n"), 3)}}
		l, ops, _ := newLoader(t, fsys)
		ops.expectReset("thing")
		var submitted []loader.IndexRequest
		ops.expectBulk(&submitted)

		res, err := l.Load(context.Background(), loader.NewDataSource("Thing", "x.json"))
		require.NoError(t, err)
		assert.Equal(t, loader.FormatDump, res.Format)
		assert.Len(t, submitted, 3)
	})
}

func TestLoad_ManualRoundTrip(t *testing.T) {
	const k = 25
	docs := make([]string, k)
	for i := range docs {
		docs[i] = `{"n":` + strconv.Itoa(i) + `,"name":"doc ` + strconv.Itoa(i) + `"}`
	}
	var content bytes.Buffer
	content.WriteString("[\n")
	for i, d := range docs {
		if i > 0 {
			content.WriteString(",\n")
		}
		content.WriteString("  " + d)
	}
	content.WriteString("\n]\n")

	l, ops, _ := newLoader(t, fstest.MapFS{"docs.json": {Data: content.Bytes()}})
	ops.expectReset("thing")
	var submitted []loader.IndexRequest
	ops.expectBulk(&submitted)

	res, err := l.Load(context.Background(), loader.NewDataSource("Thing", "docs.json"))
	require.NoError(t, err)
	assert.Equal(t, k, res.Submitted)

	bodies := make([]string, 0, k)
	for _, req := range submitted {
		assert.Empty(t, req.ID)
		bodies = append(bodies, string(req.Body))
	}
	assert.ElementsMatch(t, docs, bodies)
}

func TestLoad_EmptyWindow(t *testing.T) {
	for name, ds := range map[string]loader.DataSource{
		"SkipPastEnd": loader.NewDataSource("Author", "authors.json", loader.WithSkipItems(10)),
		"MaxZero":     loader.NewDataSource("Author", "authors.json", loader.WithMaxItems(0)),
	} {
		t.Run(name, func(t *testing.T) {
			l, ops, opener := newLoader(t, os.DirFS("testdata"))
			ops.expectReset("author")

			res, err := l.Load(context.Background(), ds)
			require.NoError(t, err)
			assert.True(t, res.Empty)
			assert.Zero(t, res.Submitted)
			ops.AssertNotCalled(t, "Bulk", mock.Anything, mock.Anything)
			assert.True(t, opener.allClosed())
		})
	}
}

func TestLoad_EmptyArray(t *testing.T) {
	l, ops, _ := newLoader(t, fstest.MapFS{"empty.json": {Data: []byte("[]")}})
	ops.expectReset("thing")

	res, err := l.Load(context.Background(), loader.NewDataSource("Thing", "empty.json"))
	require.NoError(t, err)
	assert.True(t, res.Empty)
	ops.AssertNotCalled(t, "Bulk", mock.Anything, mock.Anything)
}

func TestLoad_DeclaredFormatFailsLate(t *testing.T) {
	l, ops, _ := newLoader(t, os.DirFS("testdata"))
	ops.expectReset("book")

	ds := loader.NewDataSource("Book", "books.json", loader.WithFormat(loader.FormatManual))
	_, err := l.Load(context.Background(), ds)
	assert.ErrorIs(t, err, loader.ErrNotArray)
	ops.AssertNotCalled(t, "Bulk", mock.Anything, mock.Anything)
}

func TestLoad_MalformedRecordAbortsBeforeBulk(t *testing.T) {
	content := `{"_index":"x","_id":"1","_source":{"a":1}}` + "\n" +
		`{"_index":"x","_id":"2"}` + "\n" +
		`{"_index":"x","_id":"3","_source":{"a":3}}` + "\n"
	l, ops, _ := newLoader(t, fstest.MapFS{"x.json": {Data: []byte(content)}})
	ops.expectReset("thing")

	_, err := l.Load(context.Background(), loader.NewDataSource("Thing", "x.json"))
	assert.ErrorIs(t, err, loader.ErrMalformedRecord)
	assert.ErrorIs(t, err, loader.ErrSourceIO)
	ops.AssertNotCalled(t, "Bulk", mock.Anything, mock.Anything)
}

func TestLoad_BrokenJSONIsSourceFailure(t *testing.T) {
	brokenDump := `{"_index":"x","_id":"1","_source":{"a":1}}` + "\n" +
		`{"_index":"x","_id":"2","_source":{"a":` + "\n"
	tests := map[string]string{
		"DumpLine":        brokenDump,
		"ManualElement":   `[{"a":1}, {bad}]`,
		"TruncatedManual": `[{"a":1}, {"b":2`,
	}
	for name, content := range tests {
		t.Run(name, func(t *testing.T) {
			l, ops, opener := newLoader(t, fstest.MapFS{"x.json": {Data: []byte(content)}})
			ops.expectReset("thing")

			_, err := l.Load(context.Background(), loader.NewDataSource("Thing", "x.json"))
			assert.ErrorIs(t, err, loader.ErrSourceIO)
			assert.ErrorIs(t, err, loader.ErrMalformedRecord)
			ops.AssertNotCalled(t, "Bulk", mock.Anything, mock.Anything)
			assert.True(t, opener.allClosed())
		})
	}
}

func TestLoad_MalformedRecordInSkippedRange(t *testing.T) {
	content := `{"_index":"x","_id":"1"}` + "\n" +
		`{"_index":"x","_id":"2","_source":{"a":2}}` + "\n"
	l, ops, _ := newLoader(t, fstest.MapFS{"x.json": {Data: []byte(content)}})
	ops.expectReset("thing")

	ds := loader.NewDataSource("Thing", "x.json", loader.WithSkipItems(1), loader.WithFormat(loader.FormatDump))
	_, err := l.Load(context.Background(), ds)
	assert.ErrorIs(t, err, loader.ErrMalformedRecord)
	ops.AssertNotCalled(t, "Bulk", mock.Anything, mock.Anything)
}

func TestLoad_StopsReadingAfterWindow(t *testing.T) {
	content := `[{"a":1},{"a":2},{"a":3}, this is not json`
	l, ops, _ := newLoader(t, fstest.MapFS{"x.json": {Data: []byte(content)}})
	ops.expectReset("thing")
	var submitted []loader.IndexRequest
	ops.expectBulk(&submitted)

	ds := loader.NewDataSource("Thing", "x.json", loader.WithSkipItems(1), loader.WithMaxItems(2))
	res, err := l.Load(context.Background(), ds)
	require.NoError(t, err)
	assert.Equal(t, 2, res.Submitted)
	assert.Equal(t, `{"a":2}`, string(submitted[0].Body))
	assert.Equal(t, `{"a":3}`, string(submitted[1].Body))
}

func TestLoad_OpenFailure(t *testing.T) {
	l, ops, _ := newLoader(t, fstest.MapFS{})
	ops.expectReset("author")

	_, err := l.Load(context.Background(), loader.NewDataSource("Author", "missing.json"))
	assert.ErrorIs(t, err, loader.ErrSourceIO)
	assert.ErrorIs(t, err, fs.ErrNotExist)
	ops.AssertNotCalled(t, "Bulk", mock.Anything, mock.Anything)
}

func TestLoad_CorruptGzip(t *testing.T) {
	l, ops, opener := newLoader(t, fstest.MapFS{"x.json.gz": {Data: []byte("definitely not gzip")}})
	ops.expectReset("thing")

	_, err := l.Load(context.Background(), loader.NewDataSource("Thing", "x.json.gz"))
	assert.ErrorIs(t, err, loader.ErrSourceIO)
	assert.True(t, opener.allClosed())
}

func TestLoad_UnknownMapping(t *testing.T) {
	l, ops, _ := newLoader(t, fstest.MapFS{})

	_, err := l.Load(context.Background(), loader.NewDataSource("Nope", "x.json"))
	assert.ErrorIs(t, err, loader.ErrUnknownMapping)
	ops.AssertNotCalled(t, "DeleteIndex", mock.Anything, mock.Anything)
}

func TestLoad_InvalidDataSource(t *testing.T) {
	l, ops, _ := newLoader(t, fstest.MapFS{})

	_, err := l.Load(context.Background(), loader.NewDataSource("Author", "a.json", loader.WithMaxItems(-3)))
	assert.ErrorIs(t, err, loader.ErrInvalidDataSource)
	ops.AssertNotCalled(t, "DeleteIndex", mock.Anything, mock.Anything)
}

func TestLoad_BulkErrorIsSurfaced(t *testing.T) {
	bulkErr := errors.New("2 of 10 documents rejected")
	l, ops, _ := newLoader(t, os.DirFS("testdata"))
	ops.expectReset("book")
	ops.On("Bulk", mock.Anything, mock.Anything).Return(bulkErr)

	_, err := l.Load(context.Background(), loader.NewDataSource("Book", "books.json"))
	assert.ErrorIs(t, err, bulkErr)
	ops.AssertNumberOfCalls(t, "Refresh", 1)
}

func TestDelete_Idempotent(t *testing.T) {
	l, ops, _ := newLoader(t, fstest.MapFS{})
	ops.expectReset("author")

	require.NoError(t, l.Delete(context.Background(), "Author"))
	require.NoError(t, l.Delete(context.Background(), "Author"))

	ops.AssertNumberOfCalls(t, "DeleteIndex", 2)
	ops.AssertNumberOfCalls(t, "CreateIndex", 2)
	ops.AssertCalled(t, "PutMapping", mock.Anything, "author", json.RawMessage(`{"properties":{"firstName":{"type":"keyword"}}}`))
	ops.AssertNotCalled(t, "Bulk", mock.Anything, mock.Anything)
}

func TestDelete_ResetFailure(t *testing.T) {
	l, ops, _ := newLoader(t, fstest.MapFS{})
	boom := errors.New("cluster unavailable")
	ops.On("DeleteIndex", mock.Anything, "author").Return(boom)

	err := l.Delete(context.Background(), "Author")
	assert.ErrorIs(t, err, boom)
	ops.AssertNotCalled(t, "CreateIndex", mock.Anything, mock.Anything, mock.Anything)
}

func TestLoadAll_StopsAtFirstFailure(t *testing.T) {
	l, ops, _ := newLoader(t, os.DirFS("testdata"))
	ops.expectReset("author")
	ops.expectReset("book")
	var submitted []loader.IndexRequest
	ops.expectBulk(&submitted)

	results, err := l.LoadAll(context.Background(), []loader.DataSource{
		loader.NewDataSource("Author", "authors.json"),
		loader.NewDataSource("Book", "missing.json"),
		loader.NewDataSource("Author", "authors.json"),
	})
	assert.ErrorIs(t, err, loader.ErrSourceIO)
	require.Len(t, results, 1)
	assert.Equal(t, 10, results[0].Submitted)
	ops.AssertNumberOfCalls(t, "Bulk", 1)
}

func TestDeleteAll(t *testing.T) {
	l, ops, _ := newLoader(t, fstest.MapFS{})
	ops.expectReset("author")
	ops.expectReset("book")

	require.NoError(t, l.DeleteAll(context.Background(), []string{"Author", "Book"}))
	ops.AssertNumberOfCalls(t, "DeleteIndex", 2)

	err := l.DeleteAll(context.Background(), []string{"Book", "Nope", "Author"})
	assert.ErrorIs(t, err, loader.ErrUnknownMapping)
	ops.AssertNumberOfCalls(t, "DeleteIndex", 3)
}
