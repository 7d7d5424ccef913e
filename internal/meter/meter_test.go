package meter

import (
	"errors"
	"testing"

	"example.com/sdrmodel/internal/vita"
)

func TestScale(t *testing.T) {
	tests := []struct {
		unit   Unit
		raw    int16
		legacy bool
		want   float64
	}{
		{UnitDBM, -128 * 20, false, -20},
		{UnitDBFS, 64, false, 0.5},
		{UnitSWR, 256, false, 2},
		{UnitVolts, 256 * 13, false, 13},
		{UnitVolts, 1024 * 13, true, 13},
		{UnitAmps, 512, false, 2},
		{UnitAmps, 512, true, 0.5},
		{UnitDegC, 64 * 40, false, 40},
		{UnitDegF, -64, true, -1},
		{UnitWatts, 100, false, 100},
		{UnitRPM, 3000, true, 3000},
		{UnitPercent, 55, false, 55},
		{UnitNone, -7, false, -7},
	}
	for _, tc := range tests {
		got, err := Scale(tc.unit, tc.raw, tc.legacy)
		if err != nil {
			t.Fatalf("Scale(%s) returned error: %v", tc.unit, err)
		}
		if got != tc.want {
			t.Fatalf("Scale(%s, %d, legacy=%v) = %v, want %v", tc.unit, tc.raw, tc.legacy, got, tc.want)
		}
	}
	if _, err := Scale(UnitUnknown, 1, false); !errors.Is(err, ErrUnknownUnit) {
		t.Fatalf("expected ErrUnknownUnit, got %v", err)
	}
}

func TestParseUnit(t *testing.T) {
	for _, s := range []string{"dBm", "DBM", " volts ", "degC", "Percent", "none"} {
		if _, ok := ParseUnit(s); !ok {
			t.Fatalf("ParseUnit(%q) failed", s)
		}
	}
	if u, _ := ParseUnit("dBFS"); u != UnitDBFS || u.String() != "dBFS" {
		t.Fatalf("ParseUnit(dBFS) = %s", u)
	}
	if _, ok := ParseUnit("furlongs"); ok {
		t.Fatalf("ParseUnit accepted an unknown unit")
	}
}

type fakeMeter struct {
	unit   Unit
	values []float64
}

func (m *fakeMeter) SetRaw(raw int16, legacy bool) error {
	v, err := Scale(m.unit, raw, legacy)
	if err != nil {
		return err
	}
	m.values = append(m.values, v)
	return nil
}

func TestDemuxDedupAndUnknown(t *testing.T) {
	meters := map[uint16]*fakeMeter{
		3: {unit: UnitDBM},
		4: {unit: UnitVolts},
		5: {unit: UnitUnknown},
	}
	d := NewDemux(func(n uint16) (Target, bool) {
		m, ok := meters[n]
		return m, ok
	})
	payload := vita.EncodeMeterPayload([]vita.MeterReading{
		{Number: 3, Raw: -1280},
		{Number: 9, Raw: 1},
		{Number: 3, Raw: 1280},
		{Number: 4, Raw: 1024},
		{Number: 5, Raw: 1},
	})
	st, err := d.Apply(payload, true)
	if err != nil {
		t.Fatalf("Apply returned error: %v", err)
	}
	want := Stats{Pairs: 5, Applied: 2, Duplicates: 1, Unknown: 1, UnitErrors: 1}
	if st != want {
		t.Fatalf("stats = %+v, want %+v", st, want)
	}
	if got := meters[3].values; len(got) != 1 || got[0] != -10 {
		t.Fatalf("meter 3 values = %v, want [-10]", got)
	}
	if got := meters[4].values; len(got) != 1 || got[0] != 1 {
		t.Fatalf("meter 4 values = %v, want [1] with legacy scaling", got)
	}

	// Dedup state does not leak across datagrams.
	if _, err := d.Apply(vita.EncodeMeterPayload([]vita.MeterReading{{Number: 3, Raw: 1280}}), false); err != nil {
		t.Fatalf("second Apply: %v", err)
	}
	if got := meters[3].values; len(got) != 2 || got[1] != 10 {
		t.Fatalf("meter 3 values = %v after second datagram", got)
	}
}

func TestDemuxMalformed(t *testing.T) {
	d := NewDemux(func(uint16) (Target, bool) { return nil, false })
	if _, err := d.Apply([]byte{0, 1, 2, 3, 4}, false); !errors.Is(err, vita.ErrShortPayload) {
		t.Fatalf("expected ErrShortPayload, got %v", err)
	}
}
