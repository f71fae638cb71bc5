package pricefeed

import (
	"bytes"
	"sort"
	"strings"

	"github.com/pkg/errors"
)

// STOMP commands used by the pricing feed.
const (
	cmdConnect     = "CONNECT"
	cmdConnected   = "CONNECTED"
	cmdSubscribe   = "SUBSCRIBE"
	cmdUnsubscribe = "UNSUBSCRIBE"
	cmdDisconnect  = "DISCONNECT"
	cmdMessage     = "MESSAGE"
	cmdError       = "ERROR"
)

// Frame is a single STOMP frame as exchanged over the websocket transport.
type Frame struct {
	Command string
	Headers map[string]string
	Body    []byte
}

// Marshal serializes the frame in wire format: command line, header lines,
// blank line, body, NUL terminator. Headers are written in sorted order so
// output is deterministic.
func (f *Frame) Marshal() []byte {
	var b bytes.Buffer
	b.WriteString(f.Command)
	b.WriteByte('\n')

	keys := make([]string, 0, len(f.Headers))
	for k := range f.Headers {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		b.WriteString(k)
		b.WriteByte(':')
		b.WriteString(f.Headers[k])
		b.WriteByte('\n')
	}

	b.WriteByte('\n')
	b.Write(f.Body)
	b.WriteByte(0)
	return b.Bytes()
}

// ParseFrame parses a wire-format STOMP frame.
//
// Parameters:
// - data: the raw frame bytes, with or without the trailing NUL.
//
// Returns:
// - *Frame: the parsed frame.
// - error: an error if the frame is structurally invalid.
func ParseFrame(data []byte) (*Frame, error) {
	data = bytes.TrimSuffix(data, []byte{0})
	head, body, found := bytes.Cut(data, []byte("\n\n"))
	if !found {
		return nil, errors.New("frame has no header/body separator")
	}

	lines := strings.Split(string(head), "\n")
	command := strings.TrimSuffix(lines[0], "\r")
	if command == "" {
		return nil, errors.New("frame has empty command")
	}

	headers := make(map[string]string, len(lines)-1)
	for _, line := range lines[1:] {
		line = strings.TrimSuffix(line, "\r")
		if line == "" {
			continue
		}
		key, value, ok := strings.Cut(line, ":")
		if !ok {
			return nil, errors.Errorf("malformed header line %q", line)
		}
		// First occurrence wins, per the STOMP spec.
		if _, exists := headers[key]; !exists {
			headers[key] = value
		}
	}

	return &Frame{
		Command: command,
		Headers: headers,
		Body:    body,
	}, nil
}
