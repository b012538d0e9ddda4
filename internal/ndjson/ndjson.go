// Package ndjson provides an incremental reader for newline-delimited JSON
// streams. It is line-oriented, not JSON-aware: callers parse the returned
// bytes themselves, so a malformed line never poisons the stream.
package ndjson

import (
	"bufio"
	"bytes"
	"io"
)

// Reader reads newline-delimited records from an underlying stream.
type Reader struct {
	br *bufio.Reader
}

// NewReader creates a Reader over r. The buffer grows as needed; agent CLIs
// can emit very large result records (full file contents inside tool results).
func NewReader(r io.Reader) *Reader {
	return &Reader{br: bufio.NewReaderSize(r, 64*1024)}
}

// ReadLine returns the next record without its trailing newline. A final
// unterminated record is returned once before io.EOF, so trailing data
// buffered when the producer exits mid-line is not lost. Empty lines are
// skipped.
func (r *Reader) ReadLine() ([]byte, error) {
	for {
		raw, err := r.br.ReadBytes('\n')
		line := bytes.TrimRight(raw, "\r\n")
		if err == nil {
			if len(line) == 0 {
				continue
			}
			return line, nil
		}
		if err == io.EOF && len(line) > 0 {
			return line, nil
		}
		return nil, err
	}
}
