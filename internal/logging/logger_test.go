package logging

import (
	"bufio"
	"bytes"
	"encoding/json"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
)

func TestParseLevel(t *testing.T) {
	tests := []struct {
		in   string
		want slog.Level
	}{
		{"info", slog.LevelInfo},
		{"debug", slog.LevelDebug},
		{"trace", LevelTrace},
		{"TRACE", LevelTrace},
		{"", slog.LevelInfo},
		{"nonsense", slog.LevelInfo},
	}
	for _, tt := range tests {
		if got := ParseLevel(tt.in); got != tt.want {
			t.Errorf("ParseLevel(%q) = %v, want %v", tt.in, got, tt.want)
		}
	}
}

func TestNewLoggerFiltersBelowLevel(t *testing.T) {
	var buf bytes.Buffer
	logger := NewLogger("info", &buf)

	logger.Debug("hidden")
	logger.Info("visible")

	out := buf.String()
	if strings.Contains(out, "hidden") {
		t.Error("debug message leaked at info level")
	}
	if !strings.Contains(out, "visible") {
		t.Error("info message missing")
	}
}

func TestNewLoggerLabelsTraceLevel(t *testing.T) {
	var buf bytes.Buffer
	logger := NewLogger("trace", &buf)

	logger.Log(nil, LevelTrace, "deep detail")
	if !strings.Contains(buf.String(), "TRACE") {
		t.Errorf("trace level not labeled: %s", buf.String())
	}
}

func TestNewTraceLoggerNilAtInfoLevel(t *testing.T) {
	if tl := NewTraceLogger(t.TempDir(), "info"); tl != nil {
		t.Fatal("expected nil trace logger at info level")
	}
}

func TestNilTraceLoggerIsSafe(t *testing.T) {
	var tl *TraceLogger
	tl.Log(map[string]any{"subset": []int{0, 1}})
	tl.Close()
}

func TestTraceLoggerWritesJSONL(t *testing.T) {
	dir := t.TempDir()
	tl := NewTraceLogger(dir, "debug")
	if tl == nil {
		t.Fatal("expected trace logger at debug level")
	}
	defer tl.Close()

	tl.Log(map[string]any{"subset": []int{0, 2}, "score": 0.12})
	tl.Log(map[string]any{"subset": []int{1, 3}, "score": 0.08})
	tl.Close()

	f, err := os.Open(filepath.Join(dir, "trials.jsonl"))
	if err != nil {
		t.Fatalf("open trace file: %v", err)
	}
	defer f.Close()

	var lines int
	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		lines++
		var entry map[string]any
		if err := json.Unmarshal(scanner.Bytes(), &entry); err != nil {
			t.Fatalf("line %d is not valid JSON: %v", lines, err)
		}
		if _, ok := entry["time"]; !ok {
			t.Fatalf("line %d has no time field", lines)
		}
		if _, ok := entry["score"]; !ok {
			t.Fatalf("line %d has no score field", lines)
		}
	}
	if lines != 2 {
		t.Fatalf("got %d lines, want 2", lines)
	}
}

func TestTraceLoggerConcurrentUse(t *testing.T) {
	tl := NewTraceLogger(t.TempDir(), "debug")
	if tl == nil {
		t.Fatal("expected trace logger")
	}
	defer tl.Close()

	var wg sync.WaitGroup
	for i := 0; i < 16; i++ {
		wg.Add(1)
		go func(n int) {
			defer wg.Done()
			tl.Log(map[string]any{"worker": n})
		}(i)
	}
	wg.Wait()
}
