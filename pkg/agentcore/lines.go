package agentcore

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"strings"
)

// dataPrefix is the SSE-like framing some runtimes put in front of each line
const dataPrefix = "data: "

// maxLineBytes bounds a single decoded line (tool results can be large)
const maxLineBytes = 4 * 1024 * 1024

// Line is one decoded unit of the stream. Exactly one of Raw, Text or Err is
// meaningful: Raw for a valid JSON payload, Text for the plain-text fallback
// and Err for a terminal transport failure.
type Line struct {
	Raw  json.RawMessage
	Text string
	Err  error
}

// readStream splits the body into newline-delimited frames and decodes each
// one. Bytes buffer until a complete line arrives, so multi-byte UTF-8
// sequences split across chunk boundaries reassemble before any string
// conversion. Leftover bytes at EOF flush through the same decode path.
func readStream(ctx context.Context, body io.ReadCloser, lines chan<- Line) {
	defer close(lines)
	defer body.Close()

	scanner := bufio.NewScanner(body)
	scanner.Buffer(make([]byte, 64*1024), maxLineBytes)

	for scanner.Scan() {
		raw := bytes.TrimSpace(scanner.Bytes())
		if len(raw) == 0 {
			continue
		}

		// Select-guarded so a consumer that stopped draining cannot park
		// this goroutine on the send forever
		select {
		case lines <- decodeLine(raw):
		case <-ctx.Done():
			return
		}
	}

	if err := scanner.Err(); err != nil {
		select {
		case lines <- Line{Err: fmt.Errorf("stream reading error: %w", err)}:
		case <-ctx.Done():
		}
	}
}

// decodeLine strips the optional data: prefix and attempts a JSON parse;
// anything that is not valid JSON becomes a quote-stripped text fallback
func decodeLine(raw []byte) Line {
	payload := raw
	if bytes.HasPrefix(payload, []byte(dataPrefix)) {
		payload = payload[len(dataPrefix):]
	}

	if json.Valid(payload) {
		// Copy out of the scanner's buffer before it is reused
		owned := make(json.RawMessage, len(payload))
		copy(owned, payload)
		return Line{Raw: owned}
	}

	return Line{Text: strings.Trim(string(payload), `"`)}
}
