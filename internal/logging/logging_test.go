package logging

import (
	"bytes"
	"strings"
	"testing"

	"github.com/sirupsen/logrus"
)

func TestForSessionAddsFields(t *testing.T) {
	var buf bytes.Buffer
	logger := logrus.New()
	logger.SetOutput(&buf)
	logger.SetFormatter(&logrus.JSONFormatter{})

	ForSession(logger, "abc", 7).Info("hello")

	out := buf.String()
	if !strings.Contains(out, `"session":"abc"`) || !strings.Contains(out, `"generation":7`) {
		t.Fatalf("missing session fields: %s", out)
	}
}

func TestStderrHookOnlyWarnAndAbove(t *testing.T) {
	var buf bytes.Buffer
	logger := NewTestLogger()
	logger.AddHook(&stderrHook{out: &buf, formatter: &logrus.TextFormatter{DisableTimestamp: true}})

	logger.Info("quiet")
	logger.Warn("loud")

	if strings.Contains(buf.String(), "quiet") {
		t.Fatalf("info leaked to console: %q", buf.String())
	}
	if !strings.Contains(buf.String(), "loud") {
		t.Fatalf("warn missing from console: %q", buf.String())
	}
}
