package loader

import (
	"bufio"
	"bytes"
	"errors"
	"fmt"
	"io"
	"strings"
)

type Format string

const (
	// FormatUnknown asks for the format to be detected from the content.
	FormatUnknown Format = ""
	// FormatDump is newline-delimited JSON as written by index dump tools
	// such as elasticdump: one object per line carrying _id and _source.
	FormatDump Format = "dump"
	// FormatManual is a single JSON array whose elements are document bodies.
	FormatManual Format = "manual"
)

const (
	dumpIndexMarker  = "_index"
	dumpSourceMarker = "_source"
)

func ParseFormat(s string) (Format, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "unknown", "auto":
		return FormatUnknown, nil
	case "dump":
		return FormatDump, nil
	case "manual":
		return FormatManual, nil
	default:
		return FormatUnknown, fmt.Errorf("%w: unsupported format %q", ErrInvalidDataSource, s)
	}
}

func (f Format) String() string {
	if f == FormatUnknown {
		return "unknown"
	}
	return string(f)
}

func (f Format) valid() bool {
	return f == FormatUnknown || f == FormatDump || f == FormatManual
}

// Detect returns declared when it is not FormatUnknown. Otherwise it
// classifies the first non-blank line visible in br's buffer. br is only
// peeked, never read, so callers see the complete content afterwards.
func Detect(br *bufio.Reader, declared Format) (Format, error) {
	if declared != FormatUnknown {
		return declared, nil
	}

	head, err := br.Peek(br.Size())
	if err != nil && !errors.Is(err, io.EOF) && !errors.Is(err, bufio.ErrBufferFull) {
		return FormatUnknown, fmt.Errorf("%w: %w", ErrSourceIO, err)
	}

	line := firstNonBlankLine(head)
	switch {
	case strings.Contains(line, dumpIndexMarker) && strings.Contains(line, dumpSourceMarker):
		return FormatDump, nil
	case strings.HasPrefix(strings.TrimSpace(line), "["):
		return FormatManual, nil
	default:
		return FormatUnknown, ErrUndetectableFormat
	}
}

func firstNonBlankLine(head []byte) string {
	for len(head) > 0 {
		line, rest, _ := bytes.Cut(head, []byte("\n"))
		if len(bytes.TrimSpace(line)) > 0 {
			return string(line)
		}
		head = rest
	}
	return ""
}
