package loader

import (
	"bufio"
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"iter"
	"strings"
)

// maxRecordSize bounds a single dump line.
const maxRecordSize = 64 << 20

// records yields the raw records of r in input order. The sequence is
// single-pass; stopping early leaves the rest of r unread.
func records(r io.Reader, format Format) iter.Seq2[string, error] {
	if format == FormatDump {
		return dumpRecords(r)
	}
	return manualRecords(r)
}

func dumpRecords(r io.Reader) iter.Seq2[string, error] {
	return func(yield func(string, error) bool) {
		sc := bufio.NewScanner(r)
		sc.Buffer(make([]byte, 0, 64<<10), maxRecordSize)
		for sc.Scan() {
			line := sc.Text()
			if strings.TrimSpace(line) == "" {
				continue
			}
			if !yield(line, nil) {
				return
			}
		}
		if err := sc.Err(); err != nil {
			yield("", fmt.Errorf("%w: %w", ErrSourceIO, err))
		}
	}
}

func manualRecords(r io.Reader) iter.Seq2[string, error] {
	return func(yield func(string, error) bool) {
		dec := json.NewDecoder(r)

		tok, err := dec.Token()
		if err != nil {
			if errors.Is(err, io.EOF) {
				err = ErrNotArray
			} else {
				err = classifyDecodeError(err)
			}
			yield("", err)
			return
		}
		if d, ok := tok.(json.Delim); !ok || d != '[' {
			yield("", fmt.Errorf("%w, got %v", ErrNotArray, tok))
			return
		}

		for dec.More() {
			var raw json.RawMessage
			if err := dec.Decode(&raw); err != nil {
				yield("", classifyDecodeError(err))
				return
			}
			var buf bytes.Buffer
			if err := json.Compact(&buf, raw); err != nil {
				yield("", malformed(err))
				return
			}
			if !yield(buf.String(), nil) {
				return
			}
		}

		if _, err := dec.Token(); err != nil {
			yield("", classifyDecodeError(err))
		}
	}
}

// classifyDecodeError separates bad JSON from failures of the underlying
// reader, such as a corrupt gzip stream.
func classifyDecodeError(err error) error {
	var syntaxErr *json.SyntaxError
	switch {
	case errors.As(err, &syntaxErr), errors.Is(err, io.EOF), errors.Is(err, io.ErrUnexpectedEOF):
		return malformed(err)
	default:
		return fmt.Errorf("%w: %w", ErrSourceIO, err)
	}
}
