// Package meter fans meter datagrams out to meter objects and converts raw
// readings to engineering units.
package meter

import (
	"errors"
	"fmt"
	"strings"

	"example.com/sdrmodel/internal/vita"
)

var ErrUnknownUnit = errors.New("meter: unknown unit")

// Unit is the measurement unit a meter reports in.
type Unit uint8

const (
	UnitUnknown Unit = iota
	UnitNone
	UnitDB
	UnitDBM
	UnitDBFS
	UnitSWR
	UnitVolts
	UnitAmps
	UnitDegC
	UnitDegF
	UnitRPM
	UnitWatts
	UnitPercent
)

var unitNames = map[Unit]string{
	UnitNone:    "None",
	UnitDB:      "dB",
	UnitDBM:     "dBm",
	UnitDBFS:    "dBFS",
	UnitSWR:     "SWR",
	UnitVolts:   "Volts",
	UnitAmps:    "Amps",
	UnitDegC:    "degC",
	UnitDegF:    "degF",
	UnitRPM:     "RPM",
	UnitWatts:   "Watts",
	UnitPercent: "Percent",
}

var unitsByName = func() map[string]Unit {
	m := make(map[string]Unit, len(unitNames))
	for u, name := range unitNames {
		m[strings.ToLower(name)] = u
	}
	return m
}()

func (u Unit) String() string {
	if name, ok := unitNames[u]; ok {
		return name
	}
	return "unknown"
}

// MarshalText lets snapshots carry the unit by name.
func (u Unit) MarshalText() ([]byte, error) {
	return []byte(u.String()), nil
}

func (u *Unit) UnmarshalText(b []byte) error {
	if string(b) == "unknown" {
		*u = UnitUnknown
		return nil
	}
	v, ok := ParseUnit(string(b))
	if !ok {
		return fmt.Errorf("%w: %q", ErrUnknownUnit, b)
	}
	*u = v
	return nil
}

// ParseUnit maps the unit token of a meter status line. Matching ignores
// case.
func ParseUnit(s string) (Unit, bool) {
	u, ok := unitsByName[strings.ToLower(strings.TrimSpace(s))]
	return u, ok
}

const (
	levelDenominator       = 128.0
	powerDenominator       = 256.0
	legacyPowerDenominator = 1024.0
	tempDenominator        = 64.0
)

// Scale converts a raw reading. Volts and amps changed scaling between
// firmware generations; legacy selects the older denominator.
func Scale(u Unit, raw int16, legacy bool) (float64, error) {
	v := float64(raw)
	switch u {
	case UnitDB, UnitDBM, UnitDBFS, UnitSWR:
		return v / levelDenominator, nil
	case UnitVolts, UnitAmps:
		if legacy {
			return v / legacyPowerDenominator, nil
		}
		return v / powerDenominator, nil
	case UnitDegC, UnitDegF:
		return v / tempDenominator, nil
	case UnitRPM, UnitWatts, UnitPercent, UnitNone:
		return v, nil
	default:
		return 0, fmt.Errorf("%w: %s", ErrUnknownUnit, u)
	}
}

// Target receives readings for one meter number.
type Target interface {
	SetRaw(raw int16, legacy bool) error
}

// LookupFunc resolves a meter number to its object.
type LookupFunc func(number uint16) (Target, bool)

// Stats summarises one Apply call.
type Stats struct {
	Pairs      int
	Applied    int
	Duplicates int
	Unknown    int
	UnitErrors int
}

// Demux applies meter datagrams. It keeps scratch state between calls and
// must only be used from one goroutine.
type Demux struct {
	lookup   LookupFunc
	readings []vita.MeterReading
	seen     map[uint16]struct{}
}

func NewDemux(lookup LookupFunc) *Demux {
	return &Demux{lookup: lookup, seen: make(map[uint16]struct{})}
}

// Apply routes every (number, value) pair of payload to its meter. Only the
// first occurrence of a number in one datagram is used; numbers with no
// meter are skipped.
func (d *Demux) Apply(payload []byte, legacy bool) (Stats, error) {
	var st Stats
	var err error
	d.readings, err = vita.MeterReadings(payload, d.readings)
	if err != nil {
		return st, err
	}
	clear(d.seen)
	st.Pairs = len(d.readings)
	for _, r := range d.readings {
		if _, dup := d.seen[r.Number]; dup {
			st.Duplicates++
			continue
		}
		d.seen[r.Number] = struct{}{}
		target, ok := d.lookup(r.Number)
		if !ok {
			st.Unknown++
			continue
		}
		if err := target.SetRaw(r.Raw, legacy); err != nil {
			st.UnitErrors++
			continue
		}
		st.Applied++
	}
	return st, nil
}
