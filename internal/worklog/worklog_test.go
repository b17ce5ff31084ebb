package worklog

import (
	"bytes"
	"strings"
	"testing"

	"github.com/sirupsen/logrus"

	"github.com/walexzzy/netmirage/internal/setup"
)

func TestPassesThresholdRespectsLevel(t *testing.T) {
	logger := logrus.New()
	logger.SetLevel(logrus.InfoLevel)
	l := New(logger)

	if l.PassesThreshold(setup.LevelDebug) {
		t.Fatal("debug should not pass an info threshold")
	}
	if !l.PassesThreshold(setup.LevelWarning) {
		t.Fatal("warning should pass an info threshold")
	}
}

func TestLogfEmitsFormattedMessage(t *testing.T) {
	var buf bytes.Buffer
	logger := logrus.New()
	logger.SetOutput(&buf)
	logger.SetLevel(logrus.DebugLevel)
	logger.SetFormatter(&logrus.TextFormatter{DisableTimestamp: true})
	l := New(logger)

	l.Logf(setup.LevelWarning, "edge %d has %d clients", 3, 7)

	out := buf.String()
	if !strings.Contains(out, "edge 3 has 7 clients") {
		t.Fatalf("expected formatted message in output, got %q", out)
	}
	if !strings.Contains(out, "level=warning") {
		t.Fatalf("expected warning level in output, got %q", out)
	}
}
