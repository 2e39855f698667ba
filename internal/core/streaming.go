package core

// streaming.go provides reader wrappers applied before CSV parsing.
//
//   - BOMSkippingReader: removes a leading UTF-8 BOM (0xEF 0xBB 0xBF)
//   - quoteSpaceTrimmingReader: drops blanks between a closing quote and the
//     next delimiter or line end
//   - countingReader: tracks bytes read for logging and size limits
//
// INSEE exports start with a BOM, which would otherwise end up glued to the
// first header name.

import (
	"bufio"
	"bytes"
	"io"
)

var utf8BOM = []byte{0xEF, 0xBB, 0xBF}

// BOMSkippingReader wraps an io.Reader and skips the UTF-8 BOM if present.
type BOMSkippingReader struct {
	br      *bufio.Reader
	checked bool
}

// NewBOMSkippingReader creates a new BOM-skipping reader.
func NewBOMSkippingReader(r io.Reader) *BOMSkippingReader {
	return &BOMSkippingReader{br: bufio.NewReader(r)}
}

// Read implements io.Reader. On the first read, it checks for and skips the BOM.
func (r *BOMSkippingReader) Read(p []byte) (int, error) {
	if !r.checked {
		r.checked = true
		head, err := r.br.Peek(len(utf8BOM))
		if err == nil && bytes.Equal(head, utf8BOM) {
			if _, err := r.br.Discard(len(utf8BOM)); err != nil {
				return 0, err
			}
		}
	}
	return r.br.Read(p)
}

// quoteSpaceTrimmingReader removes spaces and tabs that follow the closing
// quote of a quoted field, as in `"IPAMPA B" ;"002"`. encoding/csv rejects
// those rows; blanks before an opening quote are left to TrimLeadingSpace.
// Line breaks are never removed, so reported line numbers are unchanged.
type quoteSpaceTrimmingReader struct {
	br    *bufio.Reader
	delim byte
	out   bytes.Buffer
	err   error

	inQuotes   bool
	fieldStart bool
}

func newQuoteSpaceTrimmingReader(r io.Reader, delim rune) *quoteSpaceTrimmingReader {
	return &quoteSpaceTrimmingReader{
		br:         bufio.NewReader(r),
		delim:      byte(delim),
		fieldStart: true,
	}
}

// Read implements io.Reader.
func (r *quoteSpaceTrimmingReader) Read(p []byte) (int, error) {
	for r.out.Len() < len(p) && r.err == nil {
		b, err := r.br.ReadByte()
		if err != nil {
			r.err = err
			break
		}
		if err := r.step(b); err != nil {
			r.err = err
		}
	}
	if r.out.Len() == 0 {
		return 0, r.err
	}
	return r.out.Read(p)
}

func (r *quoteSpaceTrimmingReader) step(b byte) error {
	r.out.WriteByte(b)

	if r.inQuotes {
		if b != '"' {
			return nil
		}
		next, err := r.br.Peek(1)
		if err == nil && next[0] == '"' {
			r.br.Discard(1)
			r.out.WriteByte('"')
			return nil
		}
		r.inQuotes = false
		return r.skipTrailingBlanks()
	}

	switch {
	case b == '"' && r.fieldStart:
		r.inQuotes = true
		r.fieldStart = false
	case b == ' ' || b == '\t':
		// Leading blanks do not end the start of a field.
	default:
		r.fieldStart = b == r.delim || b == '\n'
	}
	return nil
}

// skipTrailingBlanks consumes blanks after a closing quote. They are dropped
// when a delimiter, line end or EOF follows, and kept otherwise so the CSV
// reader still reports the malformed field.
func (r *quoteSpaceTrimmingReader) skipTrailingBlanks() error {
	var blanks []byte
	for {
		c, err := r.br.ReadByte()
		if err == io.EOF {
			return nil
		}
		if err != nil {
			return err
		}
		if c == ' ' || c == '\t' {
			blanks = append(blanks, c)
			continue
		}
		if c != r.delim && c != '\n' && c != '\r' {
			r.out.Write(blanks)
		}
		return r.br.UnreadByte()
	}
}

// countingReader wraps an io.Reader to track bytes read.
type countingReader struct {
	reader    io.Reader
	BytesRead int64
}

func newCountingReader(r io.Reader) *countingReader {
	return &countingReader{reader: r}
}

// Read implements io.Reader.
func (r *countingReader) Read(p []byte) (int, error) {
	n, err := r.reader.Read(p)
	r.BytesRead += int64(n)
	return n, err
}
