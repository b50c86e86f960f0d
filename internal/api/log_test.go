package api

import "testing"

func TestFormatLogLine(t *testing.T) {
	input := `time=2026-08-25T14:02:11.531+02:00 level=INFO msg="Fetch round complete" sources=48 failed=2 fresh=217 elapsed=41.3s feed=https://feeds.example.com/world/rss.xml`
	want := "14:02:11 Fetch round complete (elapsed=41.3s, failed=2, fresh=217, sources=48)"

	if got := formatLogLine(input); got != want {
		t.Errorf("formatLogLine() = %q, want %q", got, want)
	}
}

func TestFormatLogLine_PassthroughWhenUnparsable(t *testing.T) {
	for _, raw := range []string{"", "plain panic output", "time=x level=INFO"} {
		if got := formatLogLine(raw); got != raw {
			t.Errorf("formatLogLine(%q) = %q, want passthrough", raw, got)
		}
	}
}
