package parser

import (
	"bufio"
	"errors"
	"io"
)

const (
	initialBufSize = 64 * 1024        // 64KB
	maxLineSize    = 16 * 1024 * 1024 // 16MB per document
)

// lineReader reads an export one document per line. Lines longer
// than maxLen are skipped and counted rather than aborting the
// file; the buffer starts small and grows on demand.
type lineReader struct {
	r         *bufio.Reader
	maxLen    int
	buf       []byte
	lineNo    int
	oversized int
	err       error
}

func newLineReader(r io.Reader, maxLen int) *lineReader {
	return &lineReader{
		r:      bufio.NewReaderSize(r, initialBufSize),
		maxLen: maxLen,
		buf:    make([]byte, 0, initialBufSize),
	}
}

// next returns the next non-blank line without its trailing
// newline, or ("", false) at EOF or on a read error.
func (lr *lineReader) next() (string, bool) {
	for {
		line, err := lr.readLine()
		if err != nil {
			if !errors.Is(err, io.EOF) {
				lr.err = err
			}
			return "", false
		}
		if line != "" {
			return line, true
		}
	}
}

// line returns the 1-based number of the line last returned.
func (lr *lineReader) line() int { return lr.lineNo }

// Err returns the first non-EOF read error.
func (lr *lineReader) Err() error { return lr.err }

func (lr *lineReader) readLine() (string, error) {
	lr.buf = lr.buf[:0]
	skipping := false

	for {
		chunk, isPrefix, err := lr.r.ReadLine()
		if err != nil {
			if len(lr.buf) > 0 && errors.Is(err, io.EOF) {
				break
			}
			return "", err
		}
		if skipping {
			if !isPrefix {
				lr.lineNo++
				return "", nil
			}
			continue
		}

		lr.buf = append(lr.buf, chunk...)
		if len(lr.buf) > lr.maxLen {
			skipping = true
			lr.oversized++
			lr.buf = lr.buf[:0]
			if !isPrefix {
				lr.lineNo++
				return "", nil
			}
			continue
		}
		if !isPrefix {
			break
		}
	}

	lr.lineNo++
	return string(lr.buf), nil
}
