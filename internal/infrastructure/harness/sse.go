package harness

import (
	"bufio"
	"bytes"
	"errors"
	"io"
)

// MaxEventSize bounds a single server-sent event, field names included.
const MaxEventSize = 1 << 20

var ErrEventTooLarge = errors.New("harness: sse event exceeds size limit")

// Event is one dispatched server-sent event.
type Event struct {
	Type string
	ID   string
	Data []byte
}

// SSEReader splits a text/event-stream body into events. Data lines are
// joined with "\n"; comments and unknown fields are skipped.
type SSEReader struct {
	reader *bufio.Reader
	max    int
}

func NewSSEReader(r io.Reader) *SSEReader {
	return &SSEReader{reader: bufio.NewReader(r), max: MaxEventSize}
}

// ReadEvent returns the next event that carries data. It returns io.EOF when
// the stream ends; an event cut off by the end of the stream is still
// returned.
func (s *SSEReader) ReadEvent() (Event, error) {
	var (
		ev   Event
		data [][]byte
		size int
	)
	dispatch := func() Event {
		ev.Data = bytes.Join(data, []byte("\n"))
		return ev
	}

	for {
		line, err := s.readLine(s.max - size)
		eof := errors.Is(err, io.EOF)
		if err != nil && !eof {
			return Event{}, err
		}
		size += len(line)
		line = bytes.TrimRight(line, "\r\n")

		switch {
		case len(line) == 0:
			if len(data) > 0 {
				return dispatch(), nil
			}
			// Events without data are not dispatched.
			ev, size = Event{}, 0
		case line[0] == ':':
		default:
			field, value := splitField(line)
			switch string(field) {
			case "event":
				ev.Type = string(value)
			case "data":
				data = append(data, append([]byte(nil), value...))
			case "id":
				ev.ID = string(value)
			}
		}

		if eof {
			if len(data) > 0 {
				return dispatch(), nil
			}
			return Event{}, io.EOF
		}
	}
}

// readLine reads one line, failing once it grows beyond limit bytes.
func (s *SSEReader) readLine(limit int) ([]byte, error) {
	var line []byte
	for {
		frag, err := s.reader.ReadSlice('\n')
		if len(line)+len(frag) > limit {
			return nil, ErrEventTooLarge
		}
		line = append(line, frag...)
		if errors.Is(err, bufio.ErrBufferFull) {
			continue
		}
		return line, err
	}
}

func splitField(line []byte) (field, value []byte) {
	i := bytes.IndexByte(line, ':')
	if i < 0 {
		return line, nil
	}
	field, value = line[:i], line[i+1:]
	if len(value) > 0 && value[0] == ' ' {
		value = value[1:]
	}
	return field, value
}
