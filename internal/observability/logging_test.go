package observability

import (
	"bytes"
	"strings"
	"testing"
)

func TestRedactMasksJWT(t *testing.T) {
	in := "rejected token eyJhbGciOiJIUzI1NiJ9.eyJzdWIiOiIxIn0.c2ln"
	out := Redact(in)
	if strings.Contains(out, "eyJhbGci") {
		t.Fatalf("Redact() left token visible: %q", out)
	}
	if !strings.Contains(out, "[REDACTED]") {
		t.Fatalf("Redact() = %q, want [REDACTED] marker", out)
	}
}

func TestNewLoggerWritesJSON(t *testing.T) {
	var buf bytes.Buffer
	logger := NewLogger(LogConfig{Level: "info", Format: "json", Output: &buf})

	logger.Info("connection opened", "conn_id", "c1")
	line := buf.String()
	if !strings.Contains(line, `"msg":"connection opened"`) {
		t.Fatalf("log line = %q, want JSON msg field", line)
	}
	if !strings.Contains(line, `"conn_id":"c1"`) {
		t.Fatalf("log line = %q, want conn_id attr", line)
	}
}

func TestNewLoggerLevelFilter(t *testing.T) {
	var buf bytes.Buffer
	logger := NewLogger(LogConfig{Level: "warn", Format: "text", Output: &buf})

	logger.Info("dropped")
	logger.Warn("kept")
	out := buf.String()
	if strings.Contains(out, "dropped") {
		t.Fatalf("info log emitted despite warn level: %q", out)
	}
	if !strings.Contains(out, "kept") {
		t.Fatalf("warn log missing: %q", out)
	}
}

func TestMetricsRegistered(t *testing.T) {
	m := NewMetrics()
	m.ActiveConnections.Inc()
	m.InboundEvents.WithLabelValues("message:send", "ok").Inc()
	m.EventsDropped.WithLabelValues("typing:update").Inc()

	families, err := m.Registry().Gather()
	if err != nil {
		t.Fatalf("Gather() error = %v", err)
	}
	if len(families) == 0 {
		t.Fatalf("no metric families registered")
	}
}
