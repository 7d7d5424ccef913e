package common

import (
	"bytes"
	"strings"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
)

func TestMetricsCounters(t *testing.T) {
	m := NewMetrics()
	m.AddDatagram(100)
	m.AddDatagram(0)
	m.Inc(Gaps)
	m.Add(LostPackets, 3)
	m.Add(LostPackets, -1)
	m.Inc(Counter(99))

	s := m.Snapshot()
	if s.Datagrams != 1 || s.Bytes != 100 {
		t.Fatalf("datagrams/bytes = %d/%d, want 1/100", s.Datagrams, s.Bytes)
	}
	if s.Gaps != 1 || s.LostPackets != 3 {
		t.Fatalf("gaps/lost = %d/%d, want 1/3", s.Gaps, s.LostPackets)
	}
	if m.Get(LostPackets) != 3 {
		t.Fatalf("Get(LostPackets) = %d", m.Get(LostPackets))
	}
}

func TestNilMetricsIgnoresUpdates(t *testing.T) {
	var m *Metrics
	m.Start()
	m.Inc(Frames)
	m.AddDatagram(10)
	m.Stop()
	if s := m.Snapshot(); s != (MetricsSnapshot{}) {
		t.Fatalf("nil snapshot = %+v", s)
	}
}

func TestMetricsCollector(t *testing.T) {
	m := NewMetrics()
	m.Add(Frames, 5)
	m.AddDatagram(64)

	reg := prometheus.NewPedanticRegistry()
	if err := reg.Register(m); err != nil {
		t.Fatalf("Register: %v", err)
	}
	if got := testutil.CollectAndCount(m); got != int(numCounters)+1 {
		t.Fatalf("collected %d metrics, want %d", got, int(numCounters)+1)
	}
	want := `
# HELP sdrmodel_frames_total Frames and sample blocks delivered to handlers.
# TYPE sdrmodel_frames_total counter
sdrmodel_frames_total 5
`
	if err := testutil.CollectAndCompare(m, strings.NewReader(want), "sdrmodel_frames_total"); err != nil {
		t.Fatalf("CollectAndCompare: %v", err)
	}
	bytesWant := `
# HELP sdrmodel_datagram_bytes_total Stream bytes received.
# TYPE sdrmodel_datagram_bytes_total counter
sdrmodel_datagram_bytes_total 64
`
	if err := testutil.CollectAndCompare(m, strings.NewReader(bytesWant), "sdrmodel_datagram_bytes_total"); err != nil {
		t.Fatalf("CollectAndCompare bytes: %v", err)
	}
}

func TestFormatBytes(t *testing.T) {
	tests := []struct {
		in   int64
		want string
	}{
		{512, "512 B"},
		{2048, "2.00 KiB"},
		{5 * 1024 * 1024, "5.00 MiB"},
	}
	for _, tc := range tests {
		if got := FormatBytes(tc.in); got != tc.want {
			t.Fatalf("FormatBytes(%d) = %q, want %q", tc.in, got, tc.want)
		}
	}
}

func TestProgressLine(t *testing.T) {
	line := formatProgressLine(MetricsSnapshot{StatusLines: 3, Datagrams: 9, LostPackets: 1})
	if !strings.Contains(line, "Lines: 3") || !strings.Contains(line, "Lost: 1") {
		t.Fatalf("progress line = %q", line)
	}
	var buf bytes.Buffer
	stop := StartProgressPrinter(&buf, nil, 0)
	stop()
	if buf.Len() != 0 {
		t.Fatalf("printer for nil metrics wrote %q", buf.String())
	}
}
