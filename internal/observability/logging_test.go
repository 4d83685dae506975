package observability

import (
	"bytes"
	"context"
	"encoding/json"
	"strings"
	"testing"
)

func TestLoggerRedactsSecrets(t *testing.T) {
	var buf bytes.Buffer
	logger := NewLogger(LogConfig{Level: "debug", Format: "json", Output: &buf})

	logger.Info(context.Background(), "provider call",
		"key", "api_key=sk-aaaaaaaaaaaaaaaaaaaaaaaaaaaaaa")

	out := buf.String()
	if strings.Contains(out, "sk-aaaa") {
		t.Errorf("API key leaked into log output: %s", out)
	}
	if !strings.Contains(out, "[REDACTED]") {
		t.Errorf("expected redaction marker, got: %s", out)
	}
}

func TestLoggerContextCorrelation(t *testing.T) {
	var buf bytes.Buffer
	logger := NewLogger(LogConfig{Level: "info", Format: "json", Output: &buf})

	ctx := context.WithValue(context.Background(), RunIDKey, "run_1")
	ctx = context.WithValue(ctx, ThreadIDKey, "thread_9")
	logger.Info(ctx, "turn started")

	var record map[string]any
	if err := json.Unmarshal(buf.Bytes(), &record); err != nil {
		t.Fatalf("log output is not JSON: %v", err)
	}
	if record["run_id"] != "run_1" {
		t.Errorf("run_id = %v, want run_1", record["run_id"])
	}
	if record["thread_id"] != "thread_9" {
		t.Errorf("thread_id = %v, want thread_9", record["thread_id"])
	}
}

func TestLoggerLevelFiltering(t *testing.T) {
	var buf bytes.Buffer
	logger := NewLogger(LogConfig{Level: "warn", Format: "text", Output: &buf})

	logger.Debug(context.Background(), "noise")
	logger.Info(context.Background(), "more noise")
	if buf.Len() != 0 {
		t.Errorf("expected debug/info suppressed at warn level, got: %s", buf.String())
	}

	logger.Warn(context.Background(), "kept")
	if !strings.Contains(buf.String(), "kept") {
		t.Error("warn record missing")
	}
}

func TestWithRun(t *testing.T) {
	var buf bytes.Buffer
	logger := NewLogger(LogConfig{Level: "info", Format: "json", Output: &buf}).
		WithRun("run_7", "thread_3")

	logger.Info(context.Background(), "hello")

	var record map[string]any
	if err := json.Unmarshal(buf.Bytes(), &record); err != nil {
		t.Fatal(err)
	}
	if record["run_id"] != "run_7" || record["thread_id"] != "thread_3" {
		t.Errorf("missing run fields: %v", record)
	}
}

func TestNopMetricsIsolated(t *testing.T) {
	// Two instances must not collide on registration.
	m1 := NopMetrics()
	m2 := NopMetrics()
	m1.EventsEmitted.WithLabelValues("content").Inc()
	m2.EventsEmitted.WithLabelValues("content").Inc()
}
