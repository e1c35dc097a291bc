package testutil

import (
	"bufio"
	"strings"
	"testing"
)

// ParseSSEData parses a data-only Server-Sent Events stream into its data
// payloads, one entry per event.
//
// The chat endpoint only ever emits "data:" frames (no "event:" lines), so
// the parser is strict about anything else:
//   - every event must be terminated by an empty line
//   - multiple "data:" lines within one event are joined with newline
//   - comment lines starting with ":" are ignored
func ParseSSEData(t *testing.T, body string) []string {
	t.Helper()

	var payloads []string
	var dataLines []string
	lineNum := 0

	scanner := bufio.NewScanner(strings.NewReader(body))
	for scanner.Scan() {
		lineNum++
		line := scanner.Text()

		switch {
		case strings.HasPrefix(line, "data: "):
			dataLines = append(dataLines, strings.TrimPrefix(line, "data: "))

		case line == "":
			if len(dataLines) > 0 {
				payloads = append(payloads, strings.Join(dataLines, "\n"))
				dataLines = nil
			}

		case strings.HasPrefix(line, ":"):
			// comment, ignore

		default:
			t.Fatalf("SSE parse error at line %d: unexpected line %q", lineNum, line)
		}
	}
	if err := scanner.Err(); err != nil {
		t.Fatalf("SSE scan error: %v", err)
	}

	if len(dataLines) > 0 {
		t.Fatalf("SSE stream ended without terminating event (missing empty line after %q)", dataLines[len(dataLines)-1])
	}

	return payloads
}
