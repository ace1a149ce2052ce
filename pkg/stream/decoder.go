package stream

import (
	"bufio"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/tidwall/gjson"
)

// DefaultEvent is the name of a frame without an event line.
const DefaultEvent = "message"

// Frame is one decoded event.
type Frame struct {
	Event string
	ID    string
	Data  []byte
}

// Decode unmarshals the frame's data into v.
func (f *Frame) Decode(v interface{}) error {
	if err := json.Unmarshal(f.Data, v); err != nil {
		return fmt.Errorf("decode %s event: %w", f.Event, err)
	}
	return nil
}

// Get returns the value at a gjson path of the frame's data.
func (f *Frame) Get(path string) gjson.Result {
	return gjson.GetBytes(f.Data, path)
}

// Decoder reads frames from an event stream.
type Decoder struct {
	r *bufio.Reader
}

// NewDecoder creates a decoder reading from r.
func NewDecoder(r io.Reader) *Decoder {
	return &Decoder{r: bufio.NewReader(r)}
}

// Next returns the next frame. Comments and frames without data are
// skipped. It returns io.EOF at the end of the stream; a frame cut off by
// the end of the stream is dropped.
func (d *Decoder) Next() (*Frame, error) {
	var (
		event   string
		id      string
		data    strings.Builder
		hasData bool
	)

	for {
		line, err := d.r.ReadString('\n')
		if err != nil && !(errors.Is(err, io.EOF) && line != "") {
			return nil, err
		}
		atEOF := err != nil
		line = strings.TrimRight(line, "\r\n")

		if line == "" {
			if atEOF {
				return nil, io.EOF
			}
			if hasData {
				if event == "" {
					event = DefaultEvent
				}
				return &Frame{Event: event, ID: id, Data: []byte(data.String())}, nil
			}
			event, id = "", ""
			continue
		}

		if !strings.HasPrefix(line, ":") {
			field, value, _ := strings.Cut(line, ":")
			value = strings.TrimPrefix(value, " ")
			switch field {
			case "event":
				event = value
			case "id":
				id = value
			case "data":
				if hasData {
					data.WriteByte('\n')
				}
				data.WriteString(value)
				hasData = true
			}
		}

		if atEOF {
			return nil, io.EOF
		}
	}
}
