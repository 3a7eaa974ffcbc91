package events

import (
	"bufio"
	"bytes"
	"encoding/json"
	"fmt"
	"io"
)

// Frame delimiter: an ASCII record separator followed by a newline.
// RS (0x1E) must be \u-escaped inside legal JSON strings, so the raw byte
// can never appear in a marshaled payload and one long-lived response body
// can carry discrete frames (RFC 7464 flavor).
const (
	frameRS        = 0x1E
	FrameDelimiter = string(rune(frameRS)) + "\n"
)

// maxFrameSize caps a single frame's payload. A long answer's text_done can
// run far past bufio.Scanner's 64 KiB default.
const maxFrameSize = 16 * 1024 * 1024

// WriteFrame marshals one event and writes it as a delimited frame.
func WriteFrame(w io.Writer, ev ClientEvent) error {
	payload, err := json.Marshal(ev)
	if err != nil {
		return fmt.Errorf("failed to marshal client event: %w", err)
	}
	if _, err := w.Write(payload); err != nil {
		return err
	}
	_, err = io.WriteString(w, FrameDelimiter)
	return err
}

// NewFrameScanner returns a scanner that yields one JSON payload per frame.
// Used by tests and Go clients reading a framed response body.
func NewFrameScanner(r io.Reader) *bufio.Scanner {
	sc := bufio.NewScanner(r)
	sc.Buffer(make([]byte, 0, 64*1024), maxFrameSize)
	sc.Split(func(data []byte, atEOF bool) (int, []byte, error) {
		if i := bytes.IndexByte(data, frameRS); i >= 0 {
			advance := i + 1
			// Swallow the trailing newline of the delimiter.
			if advance < len(data) && data[advance] == '\n' {
				advance++
			}
			return advance, bytes.TrimLeft(data[:i], "\n"), nil
		}
		if atEOF && len(data) > 0 {
			return len(data), bytes.TrimLeft(data, "\n"), nil
		}
		return 0, nil, nil
	})
	return sc
}
