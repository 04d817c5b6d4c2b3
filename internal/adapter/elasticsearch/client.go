package elasticsearch

import (
	"bytes"
	"context"
	"crypto/tls"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"

	es "github.com/elastic/go-elasticsearch/v8"
	"github.com/elastic/go-elasticsearch/v8/esapi"

	"esdata/features/loader"
)

// ErrRequestFailed is returned when the cluster answers with an error status.
var ErrRequestFailed = errors.New("elasticsearch request failed")

type Config struct {
	Addresses     []string
	Username      string
	Password      string
	SkipTLSVerify bool
}

// Client implements loader.IndexOperations on the official Go client.
type Client struct {
	es *es.Client
}

func NewClient(cfg Config) (*Client, error) {
	esCfg := es.Config{
		Addresses: cfg.Addresses,
		Username:  cfg.Username,
		Password:  cfg.Password,
	}
	if cfg.SkipTLSVerify {
		transport := http.DefaultTransport.(*http.Transport).Clone()
		transport.TLSClientConfig = &tls.Config{InsecureSkipVerify: true}
		esCfg.Transport = transport
	}
	client, err := es.NewClient(esCfg)
	if err != nil {
		return nil, fmt.Errorf("create elasticsearch client: %w", err)
	}
	return &Client{es: client}, nil
}

func NewClientWithES(client *es.Client) *Client {
	return &Client{es: client}
}

func (c *Client) Ping(ctx context.Context) error {
	res, err := c.es.Ping(c.es.Ping.WithContext(ctx))
	return check(res, err, "ping")
}

// DeleteIndex drops index. A missing index is not an error.
func (c *Client) DeleteIndex(ctx context.Context, index string) error {
	res, err := c.es.Indices.Delete([]string{index},
		c.es.Indices.Delete.WithContext(ctx),
	)
	if err == nil && res.StatusCode == http.StatusNotFound {
		drain(res)
		return nil
	}
	return check(res, err, "delete index "+index)
}

func (c *Client) CreateIndex(ctx context.Context, index string, settings json.RawMessage) error {
	opts := []func(*esapi.IndicesCreateRequest){c.es.Indices.Create.WithContext(ctx)}
	if len(settings) > 0 {
		body, err := json.Marshal(map[string]json.RawMessage{"settings": settings})
		if err != nil {
			return fmt.Errorf("encode settings: %w", err)
		}
		opts = append(opts, c.es.Indices.Create.WithBody(bytes.NewReader(body)))
	}
	res, err := c.es.Indices.Create(index, opts...)
	return check(res, err, "create index "+index)
}

// PutMapping applies schema to index. An empty schema leaves dynamic
// mapping in place.
func (c *Client) PutMapping(ctx context.Context, index string, schema json.RawMessage) error {
	if len(schema) == 0 {
		return nil
	}
	res, err := c.es.Indices.PutMapping([]string{index}, bytes.NewReader(schema),
		c.es.Indices.PutMapping.WithContext(ctx),
	)
	return check(res, err, "put mapping "+index)
}

func (c *Client) Refresh(ctx context.Context, index string) error {
	res, err := c.es.Indices.Refresh(
		c.es.Indices.Refresh.WithIndex(index),
		c.es.Indices.Refresh.WithContext(ctx),
	)
	return check(res, err, "refresh "+index)
}

// Count returns the number of searchable documents in index.
func (c *Client) Count(ctx context.Context, index string) (int, error) {
	res, err := c.es.Count(
		c.es.Count.WithIndex(index),
		c.es.Count.WithContext(ctx),
	)
	if err != nil {
		return 0, fmt.Errorf("count %s: %w", index, err)
	}
	defer res.Body.Close()
	if res.IsError() {
		return 0, responseError(res, "count "+index)
	}
	var out struct {
		Count int `json:"count"`
	}
	if err := json.NewDecoder(res.Body).Decode(&out); err != nil {
		return 0, fmt.Errorf("decode count response: %w", err)
	}
	return out.Count, nil
}

// Bulk submits every request in a single round trip. Documents the cluster
// rejects are reported as a *BulkError.
func (c *Client) Bulk(ctx context.Context, requests []loader.IndexRequest) error {
	if len(requests) == 0 {
		return nil
	}
	body, err := encodeBulk(requests)
	if err != nil {
		return err
	}

	res, err := c.es.Bulk(bytes.NewReader(body), c.es.Bulk.WithContext(ctx))
	if err != nil {
		return fmt.Errorf("bulk: %w", err)
	}
	defer res.Body.Close()
	if res.IsError() {
		return responseError(res, "bulk")
	}

	var out bulkResponse
	if err := json.NewDecoder(res.Body).Decode(&out); err != nil {
		return fmt.Errorf("decode bulk response: %w", err)
	}
	if !out.Errors {
		return nil
	}
	return newBulkError(out, len(requests))
}

type bulkAction struct {
	Index bulkMeta `json:"index"`
}

type bulkMeta struct {
	Index string `json:"_index"`
	ID    string `json:"_id,omitempty"`
	Type  string `json:"_type,omitempty"`
}

func encodeBulk(requests []loader.IndexRequest) ([]byte, error) {
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	for i, req := range requests {
		if err := enc.Encode(bulkAction{Index: bulkMeta{Index: req.Index, ID: req.ID, Type: req.Type}}); err != nil {
			return nil, fmt.Errorf("encode bulk action %d: %w", i, err)
		}
		if err := json.Compact(&buf, req.Body); err != nil {
			return nil, fmt.Errorf("encode bulk body %d: %w", i, err)
		}
		buf.WriteByte('\n')
	}
	return buf.Bytes(), nil
}

func check(res *esapi.Response, err error, op string) error {
	if err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	defer res.Body.Close()
	if res.IsError() {
		return responseError(res, op)
	}
	drain(res)
	return nil
}

func responseError(res *esapi.Response, op string) error {
	msg, _ := io.ReadAll(io.LimitReader(res.Body, 4<<10))
	return fmt.Errorf("%w: %s: %s: %s", ErrRequestFailed, op, res.Status(), strings.TrimSpace(string(msg)))
}

func drain(res *esapi.Response) {
	io.Copy(io.Discard, res.Body)
	res.Body.Close()
}
