package openai

import (
	"bufio"
	"io"
	"strings"
)

// StreamDone is the sentinel data payload that terminates a completion event
// stream.
const StreamDone = "[DONE]"

// Event is a single server-sent event. Data holds the concatenated payload of
// the event's data lines, joined with newlines.
type Event struct {
	Name string
	Data string
}

// EventScanner incrementally parses a server-sent-event stream. Events are
// pulled one at a time with Next, so callers can act on each completion chunk
// as it arrives.
type EventScanner struct {
	scanner *bufio.Scanner
}

// NewEventScanner reads events from r.
func NewEventScanner(r io.Reader) *EventScanner {
	sc := bufio.NewScanner(r)
	// Chunks are small, but a completion chunk carrying a long code block can
	// exceed the default token size.
	sc.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	return &EventScanner{scanner: sc}
}

// Next returns the next event in the stream. It returns io.EOF once the
// stream is exhausted. Comment lines are skipped; an event is dispatched at
// the blank line that terminates its field block.
func (s *EventScanner) Next() (*Event, error) {
	var (
		name      string
		dataLines []string
		sawField  bool
	)

	for s.scanner.Scan() {
		line := s.scanner.Text()

		if line == "" {
			if !sawField {
				continue
			}
			return &Event{Name: name, Data: strings.Join(dataLines, "\n")}, nil
		}
		if strings.HasPrefix(line, ":") {
			continue
		}

		field, value, _ := strings.Cut(line, ":")
		value = strings.TrimPrefix(value, " ")

		switch field {
		case "event":
			name = value
			sawField = true
		case "data":
			dataLines = append(dataLines, value)
			sawField = true
		}
	}
	if err := s.scanner.Err(); err != nil {
		return nil, err
	}
	if sawField {
		// Stream ended without a trailing blank line; flush the final event.
		return &Event{Name: name, Data: strings.Join(dataLines, "\n")}, nil
	}
	return nil, io.EOF
}
