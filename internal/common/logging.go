package common

import (
	"fmt"
	"io"
	"log"
	"os"
	"strings"
	"sync"
	"time"

	"github.com/hashicorp/logutils"
	"golang.org/x/time/rate"
)

// Log levels understood by the level filter, lowest first.
var LogLevels = []logutils.LogLevel{"DEBUG", "INFO", "WARN", "ERROR"}

var (
	logger = log.New(newFilter(os.Stderr, "INFO"), "", log.LstdFlags|log.Lmicroseconds)
)

func newFilter(w io.Writer, minLevel string) *logutils.LevelFilter {
	level := logutils.LogLevel(strings.ToUpper(strings.TrimSpace(minLevel)))
	valid := false
	for _, l := range LogLevels {
		if l == level {
			valid = true
			break
		}
	}
	if !valid {
		level = "INFO"
	}
	return &logutils.LevelFilter{Levels: LogLevels, MinLevel: level, Writer: w}
}

// SetLogOutput routes log lines at or above minLevel to w.
func SetLogOutput(w io.Writer, minLevel string) {
	logger.SetOutput(newFilter(w, minLevel))
}

// Logf writes an informational line.
func Logf(format string, args ...interface{}) {
	logger.Printf("[INFO] "+format, args...)
}

func Debugf(format string, args ...interface{}) {
	logger.Printf("[DEBUG] "+format, args...)
}

func Warnf(format string, args ...interface{}) {
	logger.Printf("[WARN] "+format, args...)
}

func Errorf(format string, args ...interface{}) {
	logger.Printf("[ERROR] "+format, args...)
}

func Fatalf(format string, args ...interface{}) {
	logger.Fatalf("[ERROR] "+format, args...)
}

// Throttle rate limits repetitive warnings per key. Suppressed lines are
// counted and reported with the next line that gets through.
type Throttle struct {
	mu         sync.Mutex
	every      time.Duration
	burst      int
	limiters   map[string]*rate.Limiter
	suppressed map[string]int
	logf       func(format string, args ...interface{})
}

// NewThrottle allows burst lines per key and then one per interval.
func NewThrottle(every time.Duration, burst int) *Throttle {
	if burst < 1 {
		burst = 1
	}
	return &Throttle{
		every:      every,
		burst:      burst,
		limiters:   make(map[string]*rate.Limiter),
		suppressed: make(map[string]int),
		logf:       Warnf,
	}
}

// Warnf logs the line unless key has exceeded its budget. It reports
// whether the line was written.
func (t *Throttle) Warnf(key, format string, args ...interface{}) bool {
	t.mu.Lock()
	lim, ok := t.limiters[key]
	if !ok {
		lim = rate.NewLimiter(rate.Every(t.every), t.burst)
		t.limiters[key] = lim
	}
	if !lim.Allow() {
		t.suppressed[key]++
		t.mu.Unlock()
		return false
	}
	n := t.suppressed[key]
	delete(t.suppressed, key)
	logf := t.logf
	t.mu.Unlock()

	msg := fmt.Sprintf(format, args...)
	if n > 0 {
		msg = fmt.Sprintf("%s (%d similar suppressed)", msg, n)
	}
	logf("%s", msg)
	return true
}

var defaultThrottle = NewThrottle(10*time.Second, 3)

// Throttled is Throttle.Warnf on a process wide throttle.
func Throttled(key, format string, args ...interface{}) bool {
	return defaultThrottle.Warnf(key, format, args...)
}
