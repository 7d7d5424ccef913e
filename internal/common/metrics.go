package common

import (
	"fmt"
	"io"
	"strings"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Counter names one of the runtime counters kept by Metrics.
type Counter int

const (
	StatusLines Counter = iota
	Datagrams
	Frames
	Gaps
	Stale
	Unsynced
	LostPackets
	Malformed
	Unaddressed
	UnknownTokens
	UnknownUnits
	Dropped
	numCounters
)

var counterInfo = [numCounters]struct{ name, help string }{
	StatusLines:   {"status_lines_total", "Control channel lines processed."},
	Datagrams:     {"datagrams_total", "Stream datagrams received."},
	Frames:        {"frames_total", "Frames and sample blocks delivered to handlers."},
	Gaps:          {"frame_gaps_total", "Frame index jumps seen by reassemblers."},
	Stale:         {"stale_datagrams_total", "Datagrams discarded as belonging to a finished frame."},
	Unsynced:      {"unsynced_datagrams_total", "Datagrams discarded while waiting for the start of a frame."},
	LostPackets:   {"lost_packets_total", "Sample stream packet count mismatches."},
	Malformed:     {"malformed_total", "Datagrams or lines dropped as malformed."},
	Unaddressed:   {"unaddressed_total", "Status lines for another client and datagrams for unknown streams."},
	UnknownTokens: {"unknown_tokens_total", "Status tokens skipped as unknown."},
	UnknownUnits:  {"unknown_units_total", "Meter updates skipped for an unknown unit."},
	Dropped:       {"dropped_total", "Datagrams dropped because a stream worker queue was full."},
}

func (c Counter) String() string {
	if c < 0 || c >= numCounters {
		return fmt.Sprintf("counter(%d)", int(c))
	}
	return counterInfo[c].name
}

// Metrics aggregates runtime counters. A nil *Metrics ignores updates.
type Metrics struct {
	mu       sync.Mutex
	start    time.Time
	end      time.Time
	bytes    int64
	counters [numCounters]int64

	descs     [numCounters]*prometheus.Desc
	bytesDesc *prometheus.Desc
}

func NewMetrics() *Metrics {
	m := &Metrics{}
	for i := range counterInfo {
		m.descs[i] = prometheus.NewDesc("sdrmodel_"+counterInfo[i].name, counterInfo[i].help, nil, nil)
	}
	m.bytesDesc = prometheus.NewDesc("sdrmodel_datagram_bytes_total", "Stream bytes received.", nil, nil)
	return m
}

func (m *Metrics) Start() {
	if m == nil {
		return
	}
	m.mu.Lock()
	if m.start.IsZero() {
		m.start = time.Now()
		m.end = time.Time{}
	}
	m.mu.Unlock()
}

func (m *Metrics) Stop() {
	if m == nil {
		return
	}
	m.mu.Lock()
	if !m.start.IsZero() && m.end.IsZero() {
		m.end = time.Now()
	}
	m.mu.Unlock()
}

// AddDatagram counts one received datagram of size bytes.
func (m *Metrics) AddDatagram(size int) {
	if m == nil || size <= 0 {
		return
	}
	m.mu.Lock()
	m.bytes += int64(size)
	m.counters[Datagrams]++
	m.mu.Unlock()
}

func (m *Metrics) Inc(c Counter) {
	m.Add(c, 1)
}

func (m *Metrics) Add(c Counter, n int64) {
	if m == nil || n <= 0 || c < 0 || c >= numCounters {
		return
	}
	m.mu.Lock()
	m.counters[c] += n
	m.mu.Unlock()
}

func (m *Metrics) Get(c Counter) int64 {
	if m == nil || c < 0 || c >= numCounters {
		return 0
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.counters[c]
}

func (m *Metrics) Snapshot() MetricsSnapshot {
	if m == nil {
		return MetricsSnapshot{}
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	c := m.counters
	return MetricsSnapshot{
		Duration:      m.elapsedLocked(),
		Bytes:         m.bytes,
		StatusLines:   c[StatusLines],
		Datagrams:     c[Datagrams],
		Frames:        c[Frames],
		Gaps:          c[Gaps],
		Stale:         c[Stale],
		Unsynced:      c[Unsynced],
		LostPackets:   c[LostPackets],
		Malformed:     c[Malformed],
		Unaddressed:   c[Unaddressed],
		UnknownTokens: c[UnknownTokens],
		UnknownUnits:  c[UnknownUnits],
		Dropped:       c[Dropped],
	}
}

func (m *Metrics) elapsedLocked() time.Duration {
	if m.start.IsZero() {
		return 0
	}
	if !m.end.IsZero() {
		return m.end.Sub(m.start)
	}
	return time.Since(m.start)
}

// Describe implements prometheus.Collector.
func (m *Metrics) Describe(ch chan<- *prometheus.Desc) {
	for _, d := range m.descs {
		ch <- d
	}
	ch <- m.bytesDesc
}

// Collect implements prometheus.Collector.
func (m *Metrics) Collect(ch chan<- prometheus.Metric) {
	m.mu.Lock()
	counters := m.counters
	bytes := m.bytes
	m.mu.Unlock()
	for i, d := range m.descs {
		ch <- prometheus.MustNewConstMetric(d, prometheus.CounterValue, float64(counters[i]))
	}
	ch <- prometheus.MustNewConstMetric(m.bytesDesc, prometheus.CounterValue, float64(bytes))
}

type MetricsSnapshot struct {
	Duration      time.Duration `json:"durationNs"`
	Bytes         int64         `json:"bytes"`
	StatusLines   int64         `json:"statusLines"`
	Datagrams     int64         `json:"datagrams"`
	Frames        int64         `json:"frames"`
	Gaps          int64         `json:"gaps"`
	Stale         int64         `json:"stale"`
	Unsynced      int64         `json:"unsynced"`
	LostPackets   int64         `json:"lostPackets"`
	Malformed     int64         `json:"malformed"`
	Unaddressed   int64         `json:"unaddressed"`
	UnknownTokens int64         `json:"unknownTokens"`
	UnknownUnits  int64         `json:"unknownUnits"`
	Dropped       int64         `json:"dropped"`
}

func (s MetricsSnapshot) ThroughputBytesPerSecond() float64 {
	if s.Duration <= 0 {
		return 0
	}
	return float64(s.Bytes) / s.Duration.Seconds()
}

func FormatBytes(b int64) string {
	const unit = 1024
	if b < unit {
		return fmt.Sprintf("%d B", b)
	}
	div := float64(unit)
	exp := 0
	for n := float64(b) / div; n >= unit && exp < 6; n /= unit {
		div *= unit
		exp++
	}
	prefixes := []string{"KiB", "MiB", "GiB", "TiB", "PiB", "EiB"}
	return fmt.Sprintf("%.2f %s", float64(b)/div, prefixes[exp])
}

func formatProgressLine(s MetricsSnapshot) string {
	throughput := s.ThroughputBytesPerSecond() / 1024
	return fmt.Sprintf("Lines: %d  Datagrams: %d (%s, %.1f KiB/s)  Frames: %d  Gaps: %d  Lost: %d  Dropped: %d",
		s.StatusLines, s.Datagrams, FormatBytes(s.Bytes), throughput, s.Frames, s.Gaps, s.LostPackets, s.Dropped)
}

// StartProgressPrinter rewrites a one line summary on w every interval until
// the returned stop function is called.
func StartProgressPrinter(w io.Writer, m *Metrics, interval time.Duration) func() {
	if m == nil || w == nil {
		return func() {}
	}
	if interval <= 0 {
		interval = time.Second
	}
	done := make(chan struct{})
	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		lastLen := 0
		for {
			select {
			case <-ticker.C:
				line := formatProgressLine(m.Snapshot())
				pad := lastLen - len(line)
				if pad > 0 {
					line += strings.Repeat(" ", pad)
				}
				fmt.Fprintf(w, "\r%s", line)
				lastLen = len(line)
			case <-done:
				if lastLen > 0 {
					fmt.Fprintf(w, "\r%s\r\n", strings.Repeat(" ", lastLen))
				}
				return
			}
		}
	}()
	return func() {
		close(done)
		wg.Wait()
	}
}
