package ipc

import (
	"bufio"
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
)

type Encoder struct {
	w io.Writer
}

func NewEncoder(w io.Writer) *Encoder {
	return &Encoder{w: w}
}

func (e *Encoder) WriteRequest(r Request) error {
	wr, err := r.wire()
	if err != nil {
		return err
	}
	return e.writeLine(wr)
}

func (e *Encoder) WriteResponse(r Response) error {
	return e.writeLine(wireResponse{Result: &r.Result})
}

// writeLine emits v followed by a newline in a single Write.
func (e *Encoder) writeLine(v any) error {
	b, err := json.Marshal(v)
	if err != nil {
		return err
	}
	if len(b)+1 > MaxLineSize {
		return fmt.Errorf("%w: %d bytes", ErrTooLong, len(b)+1)
	}
	_, err = e.w.Write(append(b, '\n'))
	return err
}

type Decoder struct {
	r *bufio.Reader
}

func NewDecoder(r io.Reader) *Decoder {
	return &Decoder{r: bufio.NewReaderSize(r, MaxLineSize)}
}

// ReadRequest returns io.EOF when the peer closed the stream between
// messages and io.ErrUnexpectedEOF when it closed mid-line.
func (d *Decoder) ReadRequest() (Request, error) {
	var w wireRequest
	if err := d.readLine(&w); err != nil {
		return Request{}, err
	}
	r, err := w.request()
	if err != nil {
		return Request{}, fmt.Errorf("%w: %v", ErrMalformed, err)
	}
	return r, nil
}

func (d *Decoder) ReadResponse() (Response, error) {
	var w wireResponse
	if err := d.readLine(&w); err != nil {
		return Response{}, err
	}
	if w.Result == nil {
		return Response{}, fmt.Errorf("%w: missing result", ErrMalformed)
	}
	return Response{Result: *w.Result}, nil
}

func (d *Decoder) readLine(v any) error {
	line, err := d.r.ReadSlice('\n')
	switch {
	case err == nil:
	case errors.Is(err, bufio.ErrBufferFull):
		return fmt.Errorf("%w: line exceeds %d bytes", ErrMalformed, MaxLineSize)
	case errors.Is(err, io.EOF):
		if len(line) == 0 {
			return io.EOF
		}
		return io.ErrUnexpectedEOF
	default:
		return err
	}

	line = bytes.TrimRight(line, "\r\n")
	dec := json.NewDecoder(bytes.NewReader(line))
	dec.DisallowUnknownFields()
	if err := dec.Decode(v); err != nil {
		return fmt.Errorf("%w: %v", ErrMalformed, err)
	}
	if _, err := dec.Token(); !errors.Is(err, io.EOF) {
		return fmt.Errorf("%w: trailing data", ErrMalformed)
	}
	return nil
}
