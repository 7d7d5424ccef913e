package common

import (
	"bytes"
	"fmt"
	"strings"
	"testing"
	"time"
)

func TestLevelFilter(t *testing.T) {
	var buf bytes.Buffer
	SetLogOutput(&buf, "warn")
	defer SetLogOutput(new(bytes.Buffer), "INFO")

	Debugf("hidden %d", 1)
	Logf("hidden %d", 2)
	Warnf("shown %d", 3)
	Errorf("shown %d", 4)

	out := buf.String()
	if strings.Contains(out, "hidden") {
		t.Fatalf("filtered lines leaked: %q", out)
	}
	if !strings.Contains(out, "[WARN] shown 3") || !strings.Contains(out, "[ERROR] shown 4") {
		t.Fatalf("expected lines missing: %q", out)
	}
}

func TestThrottleSuppressesAndReports(t *testing.T) {
	var lines []string
	th := NewThrottle(time.Hour, 2)
	th.logf = func(format string, args ...interface{}) {
		lines = append(lines, fmt.Sprintf(format, args...))
	}
	for i := 0; i < 5; i++ {
		th.Warnf("unknown:pan:foo", "unknown token %d", i)
	}
	th.Warnf("other", "different key")
	if len(lines) != 3 {
		t.Fatalf("wrote %d lines, want 3: %q", len(lines), lines)
	}
	if th.suppressed["unknown:pan:foo"] != 3 {
		t.Fatalf("suppressed = %d, want 3", th.suppressed["unknown:pan:foo"])
	}
}
