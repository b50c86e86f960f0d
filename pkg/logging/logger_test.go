package logging

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"argusgo/pkg/config"
	"argusgo/pkg/model"
)

func TestInit(t *testing.T) {
	tempDir := t.TempDir()
	serverLog := filepath.Join(tempDir, "server.log")
	requestLog := filepath.Join(tempDir, "requests.log")
	eventLog := filepath.Join(tempDir, "events.log")

	cfg := &config.LogConfig{
		Server: config.LogSettings{
			Path:  serverLog,
			Level: "DEBUG",
		},
		Requests: config.LogSettings{
			Path:  requestLog,
			Level: "INFO",
		},
		Events: config.LogSettings{
			Path: eventLog,
		},
	}

	cleanup, err := Init(cfg)
	if err != nil {
		t.Fatalf("Init failed: %v", err)
	}
	defer cleanup()

	if _, err := os.Stat(serverLog); os.IsNotExist(err) {
		t.Error("Server log file not created")
	}
	if _, err := os.Stat(requestLog); os.IsNotExist(err) {
		t.Error("Request log file not created")
	}

	if RequestLogger == nil {
		t.Error("RequestLogger was not initialized")
	}
}

func TestRotation(t *testing.T) {
	tempDir := t.TempDir()
	p := filepath.Join(tempDir, "server.log")
	if err := os.WriteFile(p, []byte("previous run\n"), 0o644); err != nil {
		t.Fatal(err)
	}

	rotatePaths(p)

	if _, err := os.Stat(p + ".old"); err != nil {
		t.Errorf("expected rotated file at %s.old: %v", p, err)
	}
	if _, err := os.Stat(p); !os.IsNotExist(err) {
		t.Error("expected original path to be moved aside")
	}
}

func TestAddEventSink(t *testing.T) {
	got := make(chan model.PipelineEvent, 1)
	AddEventSink(func(ev model.PipelineEvent) {
		select {
		case got <- ev:
		default:
		}
	})

	LogEvent(&model.PipelineEvent{Type: model.EventFetchRound, Title: "round done"})

	select {
	case ev := <-got:
		if ev.Type != model.EventFetchRound {
			t.Errorf("sink received wrong event type: %s", ev.Type)
		}
		if ev.Timestamp.IsZero() {
			t.Error("sink event should carry a timestamp")
		}
	default:
		t.Fatal("sink was not invoked")
	}
}

func TestLogEvent(t *testing.T) {
	tempDir := t.TempDir()
	eventLog := filepath.Join(tempDir, "events.log")
	SetEventLogPath(eventLog)
	defer SetEventLogPath("")

	LogEvent(&model.PipelineEvent{
		Type:      model.EventZonesReplaced,
		Title:     "42 zones published",
		Summary:   "3 critical",
		Timestamp: time.Date(2026, 2, 11, 4, 30, 0, 0, time.UTC),
	})

	content, err := os.ReadFile(eventLog)
	if err != nil {
		t.Fatalf("event log not written: %v", err)
	}
	line := string(content)
	if !strings.Contains(line, "[zones_replaced] 42 zones published - 3 critical") {
		t.Errorf("unexpected event line: %q", line)
	}
	if got := GlobalEventCapture.GetLastLine(); !strings.Contains(got, "42 zones published") {
		t.Errorf("event capture missed the line: %q", got)
	}
}
