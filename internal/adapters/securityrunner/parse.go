package securityrunner

import (
	"bufio"
	"bytes"
	"encoding/json"
	"io"
	"log/slog"
	"strings"
)

// Output markers a runner may print around its JSON result on stdout.
const (
	MarkerStart = "=== JSON_RESULT_START ==="
	MarkerEnd   = "=== JSON_RESULT_END ==="
)

// maxRecordSize bounds one NDJSON line on the structured channel.
const maxRecordSize = 4 << 20

type record struct {
	Type    string          `json:"type"`
	Payload json.RawMessage `json:"payload"`
}

// ExtractNDJSON reads {"type":..., "payload":...} lines and returns the payload of the
// last "result" record. Other record types are logged as progress; malformed lines are skipped.
func ExtractNDJSON(r io.Reader, logger *slog.Logger) (json.RawMessage, bool) {
	sc := bufio.NewScanner(r)
	sc.Buffer(make([]byte, 0, 64*1024), maxRecordSize)

	var last json.RawMessage
	for sc.Scan() {
		line := bytes.TrimSpace(sc.Bytes())
		if len(line) == 0 {
			continue
		}
		var rec record
		if err := json.Unmarshal(line, &rec); err != nil {
			if logger != nil {
				logger.Debug("skipping malformed structured record", "error", err)
			}
			continue
		}
		if rec.Type != "result" {
			if logger != nil {
				logger.Debug("security runner progress", "type", rec.Type, "payload", string(rec.Payload))
			}
			continue
		}
		if len(rec.Payload) > 0 && json.Valid(rec.Payload) {
			last = append(json.RawMessage(nil), rec.Payload...)
		}
	}
	if err := sc.Err(); err != nil && logger != nil {
		logger.Warn("structured channel read failed", "error", err)
	}
	return last, last != nil
}

// ExtractMarkedJSON returns the last well-formed JSON document enclosed by MarkerStart/MarkerEnd.
func ExtractMarkedJSON(out string) (json.RawMessage, bool) {
	var last json.RawMessage
	rest := out
	for {
		start := strings.Index(rest, MarkerStart)
		if start < 0 {
			break
		}
		rest = rest[start+len(MarkerStart):]
		end := strings.Index(rest, MarkerEnd)
		if end < 0 {
			break
		}
		body := strings.TrimSpace(rest[:end])
		rest = rest[end+len(MarkerEnd):]
		if body != "" && json.Valid([]byte(body)) {
			last = json.RawMessage(body)
		}
	}
	return last, last != nil
}

// ExtractLastJSONBlock scans for blocks that begin on a line starting with '{' and
// close when brace depth returns to zero. Braces inside JSON strings are ignored.
// The last block that parses as JSON is returned.
func ExtractLastJSONBlock(out string) (json.RawMessage, bool) {
	var (
		last  json.RawMessage
		block strings.Builder
		depth int
		inStr bool
		esc   bool
	)
	for _, line := range strings.Split(out, "\n") {
		if depth == 0 {
			if !strings.HasPrefix(strings.TrimSpace(line), "{") {
				continue
			}
			block.Reset()
			inStr, esc = false, false
		}
		block.WriteString(line)
		block.WriteByte('\n')

		for _, c := range line {
			switch {
			case esc:
				esc = false
			case inStr && c == '\\':
				esc = true
			case c == '"':
				inStr = !inStr
			case inStr:
			case c == '{':
				depth++
			case c == '}':
				depth--
			}
		}
		if depth <= 0 {
			depth = 0
			candidate := strings.TrimSpace(block.String())
			if json.Valid([]byte(candidate)) {
				last = json.RawMessage(candidate)
			}
		}
	}
	return last, last != nil
}
