package stream

import (
	"bytes"
	"io"
)

// DataPrefix marks the lines of the event feed that carry a payload.
const DataPrefix = "data: "

const readSize = 4 << 10

var dataPrefix = []byte(DataPrefix)

// Decoder splits a byte stream into newline-delimited records and yields the
// payload of every record that starts with DataPrefix. Chunks may end
// anywhere; the unfinished tail of a chunk is carried over to the next one.
type Decoder struct {
	r       io.Reader
	buf     []byte
	carry   []byte
	pending []string
	err     error
}

// NewDecoder returns a Decoder reading from r. r may be nil when the decoder
// is only driven through Feed.
func NewDecoder(r io.Reader) *Decoder {
	return &Decoder{r: r}
}

// Feed appends chunk to the carry buffer and returns the payloads of all
// lines completed by it, in order. Lines without the data prefix are dropped.
func (d *Decoder) Feed(chunk []byte) []string {
	d.carry = append(d.carry, chunk...)

	var out []string
	rest := d.carry
	for {
		i := bytes.IndexByte(rest, '\n')
		if i < 0 {
			break
		}
		if p, ok := payload(rest[:i]); ok {
			out = append(out, p)
		}
		rest = rest[i+1:]
	}

	if len(rest) == 0 {
		d.carry = d.carry[:0]
	} else if len(rest) != len(d.carry) {
		d.carry = append(d.carry[:0], rest...)
	}
	return out
}

// Buffered returns the number of bytes held for an incomplete line.
func (d *Decoder) Buffered() int {
	return len(d.carry)
}

// Next returns the next payload, blocking on the underlying reader until a
// complete line arrives. It returns io.EOF once the stream has ended and every
// complete line has been delivered; an incomplete final line is discarded.
// Any other read error is returned as is, after the lines read before it.
func (d *Decoder) Next() (string, error) {
	for len(d.pending) == 0 {
		if d.err != nil {
			return "", d.err
		}
		if d.buf == nil {
			d.buf = make([]byte, readSize)
		}
		n, err := d.r.Read(d.buf)
		if n > 0 {
			d.pending = append(d.pending, d.Feed(d.buf[:n])...)
		}
		if err != nil {
			d.err = err
			d.carry = nil
		}
	}

	p := d.pending[0]
	d.pending = d.pending[1:]
	return p, nil
}

func payload(line []byte) (string, bool) {
	line = bytes.TrimSuffix(line, []byte{'\r'})
	if !bytes.HasPrefix(line, dataPrefix) {
		return "", false
	}
	return string(line[len(dataPrefix):]), true
}
