// Package protocol implements the line-oriented wire format shared by the
// client, master and slave links: one JSON object per line, UTF-8, no BOM.
package protocol

import (
	"bufio"
	"bytes"
	"errors"
	"fmt"
	"io"

	"github.com/bytedance/sonic"
)

// ErrEmptyLine is returned by ReadLine for a line that carries no message.
var ErrEmptyLine = errors.New("empty line")

var (
	// api sorts map keys so identical values always encode to identical lines.
	api = sonic.ConfigStd

	bom = []byte{0xEF, 0xBB, 0xBF}
)

// Marshal encodes v as a single line without the trailing newline.
func Marshal(v any) ([]byte, error) {
	return api.Marshal(v)
}

// Unmarshal decodes one line into v.
func Unmarshal(line []byte, v any) error {
	return api.Unmarshal(line, v)
}

// LookupInt extracts an integer field from a raw line without decoding the
// whole message. It is used to salvage the task id of a malformed task.
func LookupInt(line []byte, key string) (int64, bool) {
	node, err := sonic.Get(line, key)
	if err != nil {
		return 0, false
	}
	v, err := node.Int64()
	if err != nil {
		return 0, false
	}
	return v, true
}

// Decoder reads messages one line at a time.
type Decoder struct {
	r *bufio.Reader
}

// NewDecoder wraps r. A *bufio.Reader is used as is so buffered data is not
// lost when the same reader is shared with other code.
func NewDecoder(r io.Reader) *Decoder {
	if br, ok := r.(*bufio.Reader); ok {
		return &Decoder{r: br}
	}
	return &Decoder{r: bufio.NewReader(r)}
}

// ReadLine returns the next line without its line terminator.
// It returns io.EOF when the stream ended before any byte of a new line, and
// ErrEmptyLine for a blank line.
func (d *Decoder) ReadLine() ([]byte, error) {
	line, err := d.r.ReadBytes('\n')
	if err != nil {
		if !errors.Is(err, io.EOF) || len(line) == 0 {
			return nil, err
		}
		// last line without terminator
	}
	line = bytes.TrimRight(line, "\r\n")
	line = bytes.TrimPrefix(line, bom)
	if len(bytes.TrimSpace(line)) == 0 {
		return nil, ErrEmptyLine
	}
	return line, nil
}

// Decode reads the next line and decodes it into v.
func (d *Decoder) Decode(v any) error {
	line, err := d.ReadLine()
	if err != nil {
		return err
	}
	if err := Unmarshal(line, v); err != nil {
		return fmt.Errorf("decode message: %w", err)
	}
	return nil
}

// Encoder writes one message per line.
type Encoder struct {
	w *bufio.Writer
}

// NewEncoder wraps w. A *bufio.Writer is used as is.
func NewEncoder(w io.Writer) *Encoder {
	if bw, ok := w.(*bufio.Writer); ok {
		return &Encoder{w: bw}
	}
	return &Encoder{w: bufio.NewWriter(w)}
}

// Encode writes v followed by a newline and flushes the buffer.
func (e *Encoder) Encode(v any) error {
	data, err := Marshal(v)
	if err != nil {
		return fmt.Errorf("encode message: %w", err)
	}
	if _, err := e.w.Write(data); err != nil {
		return err
	}
	if err := e.w.WriteByte('\n'); err != nil {
		return err
	}
	return e.w.Flush()
}
