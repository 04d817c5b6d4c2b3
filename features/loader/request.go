package loader

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strconv"
)

// IndexRequest is one document insertion of a bulk submission. An empty ID
// lets the engine assign one.
type IndexRequest struct {
	ID    string
	Index string
	Type  string
	Body  json.RawMessage
}

type target struct {
	index string
	typ   string
}

type dumpRecord struct {
	ID     json.RawMessage `json:"_id"`
	Source json.RawMessage `json:"_source"`
}

func toIndexRequest(record string, t target, format Format) (IndexRequest, error) {
	req := IndexRequest{Index: t.index, Type: t.typ}
	if format != FormatDump {
		req.Body = json.RawMessage(record)
		return req, nil
	}

	var rec dumpRecord
	if err := json.Unmarshal([]byte(record), &rec); err != nil {
		return IndexRequest{}, malformed(err)
	}
	if len(rec.Source) == 0 || string(rec.Source) == "null" {
		return IndexRequest{}, malformed(fmt.Errorf("missing %s", dumpSourceMarker))
	}

	id, err := documentID(rec.ID)
	if err != nil {
		return IndexRequest{}, err
	}

	var body bytes.Buffer
	if err := json.Compact(&body, rec.Source); err != nil {
		return IndexRequest{}, malformed(err)
	}
	req.ID = id
	req.Body = body.Bytes()
	return req, nil
}

// documentID accepts string and numeric _id values; absent or null means none.
func documentID(raw json.RawMessage) (string, error) {
	raw = bytes.TrimSpace(raw)
	if len(raw) == 0 || string(raw) == "null" {
		return "", nil
	}
	if raw[0] == '"' {
		var s string
		if err := json.Unmarshal(raw, &s); err != nil {
			return "", malformed(fmt.Errorf("_id: %w", err))
		}
		return s, nil
	}
	if _, err := strconv.ParseFloat(string(raw), 64); err != nil {
		return "", malformed(fmt.Errorf("_id must be a string or a number, got %s", raw))
	}
	return string(raw), nil
}

// window drops the first skip items and keeps at most max of the rest.
func window[T any](items []T, skip, max int64) []T {
	n := int64(len(items))
	if skip >= n || max <= 0 {
		return nil
	}
	end := n
	if max < n-skip {
		end = skip + max
	}
	return items[skip:end]
}
