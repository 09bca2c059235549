package authclient

import (
	"bufio"
	"encoding/json"
	"fmt"
	"io"
	"strings"
)

// sseReader decodes a text/event-stream body into session events.
type sseReader struct {
	sc *bufio.Scanner
}

func newSSEReader(r io.Reader) *sseReader {
	sc := bufio.NewScanner(r)
	sc.Buffer(make([]byte, 0, 4096), 64*1024)
	return &sseReader{sc: sc}
}

// next returns the next event, skipping comments and events without data.
// It returns io.EOF when the stream ends cleanly.
func (r *sseReader) next() (serverEvent, error) {
	var (
		name string
		data strings.Builder
	)
	for r.sc.Scan() {
		line := r.sc.Text()
		switch {
		case line == "":
			if data.Len() == 0 {
				name = ""
				continue
			}
			var evt serverEvent
			if err := json.Unmarshal([]byte(data.String()), &evt); err != nil {
				return serverEvent{}, fmt.Errorf("decoding event: %w", err)
			}
			if evt.Kind == "" {
				evt.Kind = name
			}
			return evt, nil
		case strings.HasPrefix(line, ":"):
			// comment or keep-alive
		default:
			field, value, _ := strings.Cut(line, ":")
			value = strings.TrimPrefix(value, " ")
			switch field {
			case "event":
				name = value
			case "data":
				if data.Len() > 0 {
					data.WriteByte('\n')
				}
				data.WriteString(value)
			}
		}
	}
	if err := r.sc.Err(); err != nil {
		return serverEvent{}, err
	}
	return serverEvent{}, io.EOF
}
