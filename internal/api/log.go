package api

import (
	"encoding/json"
	"fmt"
	"net/http"
	"regexp"
	"sort"
	"strings"
	"time"

	"argusgo/pkg/logging"
)

// Matches key=value or key="value with spaces" pairs in a slog text line.
var logRegex = regexp.MustCompile(`([a-zA-Z0-9_\-.]+)=(?:"([^"]*)"|([^ ]+))`)

// maxAttrLen drops bulky attribute values (URLs, error chains) from the
// condensed line; the full line is still in the log file.
const maxAttrLen = 20

// handleLatestLog returns the last captured server log line and the
// last pipeline event, for the dashboard's ticker row.
func handleLatestLog(w http.ResponseWriter, r *http.Request) {
	resp := map[string]string{
		"log":   formatLogLine(logging.GlobalLogCapture.GetLastLine()),
		"event": logging.GlobalEventCapture.GetLastLine(),
	}
	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(resp); err != nil {
		fmt.Printf("Failed to write log response: %v\n", err)
	}
}

// formatLogLine condenses a raw slog text line for single-row display:
// HH:MM:SS message (key=value, ...), dropping level and long values.
// Lines that do not parse pass through unchanged.
func formatLogLine(raw string) string {
	matches := logRegex.FindAllStringSubmatch(raw, -1)
	if len(matches) == 0 {
		return raw
	}

	var stamp, msg string
	var attrs []string
	for _, m := range matches {
		key, val := m[1], m[2]
		if val == "" {
			val = m[3]
		}
		val = strings.TrimSpace(val)

		switch key {
		case "time":
			if t, err := time.Parse(time.RFC3339, val); err == nil {
				stamp = t.Format("15:04:05")
			}
		case "level":
			// implied by the stream
		case "msg":
			msg = val
		default:
			if len(val) <= maxAttrLen {
				attrs = append(attrs, key+"="+val)
			}
		}
	}
	if msg == "" {
		return raw
	}

	sort.Strings(attrs)

	var b strings.Builder
	if stamp != "" {
		b.WriteString(stamp)
		b.WriteByte(' ')
	}
	b.WriteString(msg)
	if len(attrs) > 0 {
		b.WriteString(" (")
		b.WriteString(strings.Join(attrs, ", "))
		b.WriteByte(')')
	}
	return b.String()
}
