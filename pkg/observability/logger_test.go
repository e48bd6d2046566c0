package observability

import (
	"bytes"
	"log"
	"strings"
	"testing"
)

// captureOutput redirects the stdlib logger to a buffer for the duration of f.
func captureOutput(f func()) string {
	var buf bytes.Buffer
	oldWriter := log.Writer()
	log.SetOutput(&buf)
	defer log.SetOutput(oldWriter)

	f()

	return buf.String()
}

func TestStandardLogger_Levels(t *testing.T) {
	output := captureOutput(func() {
		logger := NewStandardLogger("store").(*StandardLogger).WithLevel(LogLevelDebug)

		logger.Debug("debug message", nil)
		logger.Info("info message", nil)
		logger.Warn("warn message", nil)
		logger.Error("error message", nil)
	})

	for _, want := range []string{"debug message", "info message", "warn message", "error message"} {
		if !strings.Contains(output, want) {
			t.Errorf("expected %q in output, got: %s", want, output)
		}
	}
	for _, tag := range []string{"[DEBUG]", "[INFO]", "[WARN]", "[ERROR]"} {
		if !strings.Contains(output, tag) {
			t.Errorf("expected level tag %q in output, got: %s", tag, output)
		}
	}
}

func TestStandardLogger_MinimumLevelFilters(t *testing.T) {
	output := captureOutput(func() {
		logger := NewStandardLogger("store").(*StandardLogger).WithLevel(LogLevelWarn)

		logger.Debug("debug message", nil)
		logger.Info("info message", nil)
		logger.Warn("warn message", nil)
	})

	if strings.Contains(output, "debug message") {
		t.Error("debug output should be filtered at WARN level")
	}
	if strings.Contains(output, "info message") {
		t.Error("info output should be filtered at WARN level")
	}
	if !strings.Contains(output, "warn message") {
		t.Errorf("expected warn message in output, got: %s", output)
	}
}

func TestStandardLogger_WithPrefix(t *testing.T) {
	output := captureOutput(func() {
		logger := NewStandardLogger("search")
		logger.WithPrefix("qdrant").Info("collection ready", nil)
	})

	if !strings.Contains(output, "[qdrant]") {
		t.Errorf("expected prefix in output, got: %s", output)
	}
	if !strings.Contains(output, "collection ready") {
		t.Errorf("expected message in output, got: %s", output)
	}
}

func TestStandardLogger_FieldsAreStable(t *testing.T) {
	fields := map[string]interface{}{
		"collection": "patterns",
		"mode":       "hybrid",
		"limit":      10,
	}

	first := captureOutput(func() {
		NewStandardLogger("search").Info("search complete", fields)
	})
	second := captureOutput(func() {
		NewStandardLogger("search").Info("search complete", fields)
	})

	// Field rendering sorts keys so repeated log lines compare equal.
	if firstFields, secondFields := afterMessage(first), afterMessage(second); firstFields != secondFields {
		t.Errorf("field rendering not stable: %q vs %q", firstFields, secondFields)
	}
	for _, want := range []string{"collection=patterns", "mode=hybrid", "limit=10"} {
		if !strings.Contains(first, want) {
			t.Errorf("expected %q in output, got: %s", want, first)
		}
	}
}

func afterMessage(line string) string {
	if idx := strings.Index(line, "search complete"); idx >= 0 {
		return line[idx:]
	}
	return line
}

func TestStandardLogger_WithMergesFields(t *testing.T) {
	output := captureOutput(func() {
		logger := NewStandardLogger("search").With(map[string]interface{}{
			"collection": "patterns",
		})
		logger.Info("stored document", map[string]interface{}{"id": "abc-123"})
	})

	if !strings.Contains(output, "collection=patterns") {
		t.Errorf("expected bound field in output, got: %s", output)
	}
	if !strings.Contains(output, "id=abc-123") {
		t.Errorf("expected call-site field in output, got: %s", output)
	}
}

func TestParseLogLevel(t *testing.T) {
	cases := map[string]LogLevel{
		"debug":   LogLevelDebug,
		"INFO":    LogLevelInfo,
		"Warn":    LogLevelWarn,
		"warning": LogLevelWarn,
		"error":   LogLevelError,
		"fatal":   LogLevelFatal,
		"":        LogLevelInfo,
		"bogus":   LogLevelInfo,
	}

	for input, want := range cases {
		if got := ParseLogLevel(input); got != want {
			t.Errorf("ParseLogLevel(%q) = %v, want %v", input, got, want)
		}
	}
}

func TestNoopLogger_ProducesNoOutput(t *testing.T) {
	output := captureOutput(func() {
		logger := NewNoopLogger()
		logger.Debug("debug message", nil)
		logger.Info("info message", map[string]interface{}{"key": "value"})
		logger.Error("error message", nil)
		logger.WithPrefix("child").Warn("warn message", nil)
		logger.With(map[string]interface{}{"k": "v"}).Info("info message", nil)
	})

	if output != "" {
		t.Errorf("expected no output from noop logger, got: %s", output)
	}
}
